package portalapi

import (
	"errors"
	"fmt"
)

// ErrSessionExpired is returned when an authenticated call is rejected because
// the session or journal credentials are no longer accepted. The response body
// is not processed further.
var ErrSessionExpired = errors.New("portalapi: session expired")

// HTTPStatusError captures non-2xx backend responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
	// Message is the envelope's error text, when the body carried one.
	Message string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("portalapi: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// APIError is a 2xx response whose envelope reported ok=false. Message is the
// backend's error text and may be empty.
type APIError struct {
	Op      string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("portalapi: %s rejected", e.Op)
	}
	return fmt.Sprintf("portalapi: %s rejected: %s", e.Op, e.Message)
}

// BackendMessage extracts the backend's error text from err, if any.
func BackendMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Message
	}
	return ""
}
