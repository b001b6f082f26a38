package portalapi

import (
	"context"
	"net/http"

	"docportal/internal/domain"
)

// ListIdentifierChat fetches the conversation of a journal under the bearer
// session.
func (c *Client) ListIdentifierChat(ctx context.Context, journalID string) ([]domain.ChatMessage, error) {
	var out messagesResponse
	err := c.do(ctx, call{
		op: "identifier/chat/list", method: http.MethodPost, path: "/identifier/chat/list",
		body: map[string]string{"journalId": journalID}, bearer: true, checkExpiry: true,
	}, &out)
	return out.Messages, err
}

// SendIdentifierChat posts an inbound message to a journal and returns its id.
func (c *Client) SendIdentifierChat(ctx context.Context, journalID, body string) (string, error) {
	var out sendResponse
	err := c.do(ctx, call{
		op: "identifier/chat/send", method: http.MethodPost, path: "/identifier/chat/send",
		body: map[string]string{"journalId": journalID, "body": body}, bearer: true, checkExpiry: true,
	}, &out)
	return out.ID, err
}

// AskRequest is a question for the AI assistant. When Link is set the call is
// authenticated by the journal link instead of the bearer session.
type AskRequest struct {
	Link           *JournalLink
	JournalID      string
	DocumentID     string
	Question       string
	Brand          string
	OriginalTarget domain.Target
	FinalTarget    domain.Target
	TargetChanged  bool
	// MessageID references an existing message that is being re-asked.
	MessageID string
}

// AskResult is the AI assistant's answer.
type AskResult struct {
	Answer            string           `json:"answer"`
	OutboundMessageID string           `json:"outboundMessageId"`
	AIModel           string           `json:"aiModel"`
	ResponseTimeMs    int64            `json:"responseTimeMs"`
	Timestamp         domain.Timestamp `json:"timestamp"`
}

// Message renders the answer as an outbound AI chat message.
func (r AskResult) Message(req AskRequest) domain.ChatMessage {
	return domain.ChatMessage{
		ID:             r.OutboundMessageID,
		Body:           r.Answer,
		At:             r.Timestamp,
		MessageType:    domain.MessageAI,
		OriginalTarget: req.OriginalTarget,
		FinalTarget:    req.FinalTarget,
		TargetChanged:  req.TargetChanged,
		DocumentID:     req.DocumentID,
	}
}

type askBody struct {
	*JournalLink
	JournalID      string        `json:"journalId,omitempty"`
	DocumentID     string        `json:"documentId,omitempty"`
	Question       string        `json:"question"`
	Brand          string        `json:"brand,omitempty"`
	OriginalTarget domain.Target `json:"originalTarget"`
	FinalTarget    domain.Target `json:"finalTarget"`
	TargetChanged  bool          `json:"targetChanged"`
	MessageID      string        `json:"messageId,omitempty"`
}

// AskAI sends a question to the AI assistant.
func (c *Client) AskAI(ctx context.Context, req AskRequest) (AskResult, error) {
	var out AskResult
	err := c.do(ctx, call{
		op: "identifier/chat/ask-ai", method: http.MethodPost, path: "/identifier/chat/ask-ai",
		body: askBody{
			JournalLink:    req.Link,
			JournalID:      req.JournalID,
			DocumentID:     req.DocumentID,
			Question:       req.Question,
			Brand:          req.Brand,
			OriginalTarget: req.OriginalTarget,
			FinalTarget:    req.FinalTarget,
			TargetChanged:  req.TargetChanged,
			MessageID:      req.MessageID,
		},
		bearer:      req.Link == nil,
		checkExpiry: true,
	}, &out)
	return out, err
}

// Feedback records a one-shot verdict on an AI answer. action is "helpful"
// or "escalate".
func (c *Client) Feedback(ctx context.Context, link *JournalLink, messageID, action string) error {
	return c.do(ctx, call{
		op: "identifier/chat/feedback", method: http.MethodPost, path: "/identifier/chat/feedback",
		body: struct {
			*JournalLink
			MessageID string `json:"messageId"`
			Action    string `json:"action"`
		}{link, messageID, action},
		bearer:      link == nil,
		checkExpiry: true,
	}, nil)
}
