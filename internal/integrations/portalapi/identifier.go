package portalapi

import (
	"context"
	"errors"
	"net/http"

	"docportal/internal/domain"
)

// identifierBody carries exactly one of phone or email.
type identifierBody struct {
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

func bodyFor(claim domain.IdentityClaim) identifierBody {
	if claim.Channel == domain.ChannelEmail {
		return identifierBody{Email: claim.NormalizedValue}
	}
	return identifierBody{Phone: claim.NormalizedValue}
}

// RequestIdentifierOTP asks for a code for claim. Callers are expected to
// ignore the outcome.
func (c *Client) RequestIdentifierOTP(ctx context.Context, claim domain.IdentityClaim, market string) error {
	body := struct {
		Channel domain.Channel `json:"channel"`
		identifierBody
		PhoneDigits string `json:"phoneDigits,omitempty"`
		Country     string `json:"country,omitempty"`
		Market      string `json:"market,omitempty"`
	}{
		Channel:        claim.Channel,
		identifierBody: bodyFor(claim),
		Market:         market,
	}
	if claim.Channel == domain.ChannelPhone {
		body.PhoneDigits = claim.Digits
		body.Country = claim.Country
	}
	return c.do(ctx, call{
		op: "identifier/request-otp", method: http.MethodPost, path: "/identifier/request-otp",
		body: body,
	}, nil)
}

// VerifyIdentifierOTP exchanges a code for a session token.
func (c *Client) VerifyIdentifierOTP(ctx context.Context, claim domain.IdentityClaim, code string) (string, error) {
	body := struct {
		identifierBody
		OTP     string `json:"otp"`
		Country string `json:"country,omitempty"`
	}{identifierBody: bodyFor(claim), OTP: code}
	if claim.Channel == domain.ChannelPhone {
		body.Country = claim.Country
	}
	var out struct {
		Session string `json:"session"`
	}
	if err := c.do(ctx, call{
		op: "identifier/verify-otp", method: http.MethodPost, path: "/identifier/verify-otp",
		body: body,
	}, &out); err != nil {
		return "", err
	}
	if out.Session == "" {
		return "", errors.New("portalapi: identifier/verify-otp: session missing")
	}
	return out.Session, nil
}

// ListRequest scopes an identifier list call. Impersonation sessions send
// only the journal id; the backend derives the scope from the session.
type ListRequest struct {
	Claim         domain.IdentityClaim
	JournalID     string
	Impersonation bool
}

// ListResult is an identifier list response. HasJournals is false for
// backends that only return the flat item list.
type ListResult struct {
	Journals    []domain.Journal
	HasJournals bool
	Items       []domain.Document
	// Session is a rotated token, when the backend issued one.
	Session string
}

// ListIdentifier fetches journals and documents for the session's identity.
func (c *Client) ListIdentifier(ctx context.Context, req ListRequest) (ListResult, error) {
	body := struct {
		identifierBody
		JournalID string `json:"journalId,omitempty"`
	}{JournalID: req.JournalID}
	if !req.Impersonation {
		body.identifierBody = bodyFor(req.Claim)
	}

	var out struct {
		documentsResponse
		Journals []domain.Journal `json:"journals"`
	}
	if err := c.do(ctx, call{
		op: "identifier/list", method: http.MethodPost, path: "/identifier/list",
		body: body, bearer: true, checkExpiry: true,
	}, &out); err != nil {
		return ListResult{}, err
	}
	return ListResult{
		Journals:    out.Journals,
		HasJournals: out.Journals != nil,
		Items:       out.list(),
		Session:     out.Session,
	}, nil
}

// PresignIdentifier returns a short-lived viewing URL.
func (c *Client) PresignIdentifier(ctx context.Context, docID string) (string, error) {
	var out urlResponse
	if err := c.do(ctx, call{
		op: "identifier/doc-url", method: http.MethodPost, path: "/identifier/doc-url",
		body: map[string]string{"docId": docID}, bearer: true, checkExpiry: true,
	}, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", errors.New("portalapi: identifier/doc-url: response has no url")
	}
	return out.URL, nil
}

// ApproveIdentifier approves docIDs under the bearer session.
func (c *Client) ApproveIdentifier(ctx context.Context, docIDs []string) (ApproveResult, error) {
	var out ApproveResult
	err := c.do(ctx, call{
		op: "identifier/approve", method: http.MethodPost, path: "/identifier/approve",
		body: map[string][]string{"docIds": docIDs}, bearer: true, checkExpiry: true,
	}, &out)
	return out, err
}

// ImpersonationLogin exchanges a one-time staff link token for a session.
func (c *Client) ImpersonationLogin(ctx context.Context, token string) (domain.ImpersonationGrant, error) {
	var out struct {
		Session      string `json:"session"`
		JournalID    string `json:"journalId"`
		JournalName  string `json:"journalName"`
		AllowApprove bool   `json:"allowApprove"`
	}
	if err := c.do(ctx, call{
		op: "impersonation/login", method: http.MethodPost, path: "/impersonation/login",
		body: map[string]string{"token": token},
	}, &out); err != nil {
		return domain.ImpersonationGrant{}, err
	}
	if out.Session == "" {
		return domain.ImpersonationGrant{}, errors.New("portalapi: impersonation/login: session missing")
	}
	return domain.ImpersonationGrant{
		Session:      out.Session,
		JournalID:    out.JournalID,
		JournalName:  out.JournalName,
		AllowApprove: out.AllowApprove,
	}, nil
}
