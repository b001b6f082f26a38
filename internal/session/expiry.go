package session

import (
	"net/http"
	"strings"
)

var expiryMarkers = []string{"session", "expired", "unauthorized", "invalid token"}

// IsExpiredResponse is the shared check every authenticated call runs on its
// response before looking at the body.
func IsExpiredResponse(status int, errText string) bool {
	if status == http.StatusUnauthorized {
		return true
	}
	errText = strings.ToLower(errText)
	if errText == "" {
		return false
	}
	for _, marker := range expiryMarkers {
		if strings.Contains(errText, marker) {
			return true
		}
	}
	return false
}
