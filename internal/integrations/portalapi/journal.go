package portalapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"docportal/internal/domain"
)

// JournalLink is the pre-shared credential pair of a signed journal link.
type JournalLink struct {
	ExternalID  string `json:"externalId"`
	AccessToken string `json:"accessToken"`
}

// Valid reports whether both halves are present.
func (l JournalLink) Valid() bool {
	return l.ExternalID != "" && l.AccessToken != ""
}

// ApproveResult is the backend's tally of an approve call.
type ApproveResult struct {
	Approved int `json:"approved"`
	Skipped  int `json:"skipped"`
}

type documentsResponse struct {
	Documents []domain.Document `json:"documents"`
	Items     []domain.Document `json:"items"`
	Session   string            `json:"session"`
}

func (r documentsResponse) list() []domain.Document {
	if r.Documents != nil {
		return r.Documents
	}
	return r.Items
}

type urlResponse struct {
	URL string `json:"url"`
}

// SendJournalOTP asks the backend to issue, or re-issue, the code for a
// journal link.
func (c *Client) SendJournalOTP(ctx context.Context, externalID string) error {
	return c.do(ctx, call{
		op: "otp-send", method: http.MethodPost, path: "/otp-send",
		body: map[string]string{"externalId": externalID},
	}, nil)
}

// VerifyJournalOTP checks a code for a journal link.
func (c *Client) VerifyJournalOTP(ctx context.Context, externalID, code string) error {
	return c.do(ctx, call{
		op: "otp-verify", method: http.MethodPost, path: "/otp-verify",
		body: map[string]string{"externalId": externalID, "otp": code},
	}, nil)
}

// ListJournalDocuments returns the raw document list of a journal link.
func (c *Client) ListJournalDocuments(ctx context.Context, link JournalLink) ([]domain.Document, error) {
	var out documentsResponse
	err := c.do(ctx, call{
		op: "doc-list", method: http.MethodPost, path: "/doc-list",
		body: link, checkExpiry: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.list(), nil
}

// PresignJournal returns a short-lived viewing URL.
func (c *Client) PresignJournal(ctx context.Context, link JournalLink, docID string) (string, error) {
	var out urlResponse
	err := c.do(ctx, call{
		op: "doc-url", method: http.MethodPost, path: "/doc-url",
		body: struct {
			JournalLink
			DocID string `json:"docId"`
		}{link, docID},
		checkExpiry: true,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", errors.New("portalapi: doc-url: response has no url")
	}
	return out.URL, nil
}

// ApproveJournal approves docIDs through a journal link.
func (c *Client) ApproveJournal(ctx context.Context, link JournalLink, docIDs []string) (ApproveResult, error) {
	var out ApproveResult
	err := c.do(ctx, call{
		op: "approve", method: http.MethodPost, path: "/approve",
		body: struct {
			JournalLink
			DocIDs []string `json:"docIds"`
		}{link, docIDs},
		checkExpiry: true,
	}, &out)
	return out, err
}

type messagesResponse struct {
	Messages []domain.ChatMessage `json:"messages"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// ListJournalChat fetches the conversation of a journal link.
func (c *Client) ListJournalChat(ctx context.Context, link JournalLink) ([]domain.ChatMessage, error) {
	var out messagesResponse
	err := c.do(ctx, call{
		op: "chat-list", method: http.MethodGet, path: "/chat/list",
		query:       url.Values{"e": {link.ExternalID}, "t": {link.AccessToken}},
		checkExpiry: true,
	}, &out)
	return out.Messages, err
}

// SendJournalChat posts an inbound message and returns its id.
func (c *Client) SendJournalChat(ctx context.Context, link JournalLink, body string) (string, error) {
	var out sendResponse
	err := c.do(ctx, call{
		op: "chat-send", method: http.MethodPost, path: "/chat/send",
		body: struct {
			JournalLink
			Body string `json:"body"`
		}{link, body},
		checkExpiry: true,
	}, &out)
	return out.ID, err
}
