// Package portalapi is the HTTP client for the document portal backend.
package portalapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"docportal/internal/session"
)

const defaultTimeout = 15 * time.Second

// envelope is the universal response wrapper.
type envelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// Client talks to one backend. Bearer-authenticated calls take their token
// from the TokenSource given to NewClient on every request.
type Client struct {
	baseURL    string
	httpClient *http.Client
	bearer     *http.Client
	tokens     oauth2.TokenSource
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a Client for baseURL. tokens supplies the session bearer
// for identifier and impersonation calls.
func NewClient(baseURL string, tokens oauth2.TokenSource, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("portalapi: base URL must not be empty")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("portalapi: invalid base URL: %w", err)
	}
	if tokens == nil {
		return nil, errors.New("portalapi: token source must not be nil")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		tokens:     tokens,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	c.bearer = &http.Client{
		Timeout:       c.httpClient.Timeout,
		CheckRedirect: c.httpClient.CheckRedirect,
		Jar:           c.httpClient.Jar,
		Transport: &oauth2.Transport{
			Source: c.tokens,
			Base:   c.httpClient.Transport,
		},
	}
	return c, nil
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// call describes one backend round trip.
type call struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
	// bearer attaches the session token.
	bearer bool
	// checkExpiry runs the shared session-expiry check on the response.
	checkExpiry bool
}

// do performs the call and decodes the body into out (which may be nil).
func (c *Client) do(ctx context.Context, cl call, out any) error {
	endpoint := c.baseURL + cl.path
	if len(cl.query) > 0 {
		endpoint += "?" + cl.query.Encode()
	}

	var reader io.Reader
	if cl.body != nil {
		buf, err := json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("portalapi: %s: marshal request: %w", cl.op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("portalapi: %s: create request: %w", cl.op, err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	httpClient := c.httpClient
	if cl.bearer {
		httpClient = c.bearer
	}
	res, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("portalapi: %s: request failed: %w", cl.op, err)
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("portalapi: %s: read response body: %w", cl.op, err)
	}

	// A malformed body is treated as an empty envelope.
	var env envelope
	_ = json.Unmarshal(raw, &env)

	if cl.checkExpiry && session.IsExpiredResponse(res.StatusCode, env.Error) {
		c.logger.Warn("backend rejected session", "op", cl.op, "status", res.StatusCode)
		return fmt.Errorf("portalapi: %s: %w", cl.op, ErrSessionExpired)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body := raw
		if len(body) > 4096 {
			body = body[:4096]
		}
		return &HTTPStatusError{StatusCode: res.StatusCode, URL: endpoint, Body: string(body), Message: env.Error}
	}
	if !env.OK {
		return &APIError{Op: cl.op, Message: env.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("portalapi: %s: decode response: %w", cl.op, err)
	}
	return nil
}
