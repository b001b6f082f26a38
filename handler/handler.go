// Package handler serves the sandbox portal backend as an API Gateway HTTP
// Lambda and, through NewRouter, as a plain HTTP server.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
)

const correlationHeader = "X-Correlation-Id"

type route struct {
	method string
	suffix string
	call   func(*Sandbox, request) (H, error)
}

// routes are matched by path suffix so a stage prefix is tolerated. Identifier
// paths come first because "/identifier/approve" also ends in "/approve".
var routes = []route{
	{http.MethodGet, "/ping", (*Sandbox).ping},
	{http.MethodPost, "/impersonation/login", (*Sandbox).impersonationLogin},
	{http.MethodPost, "/identifier/request-otp", (*Sandbox).requestIdentifierOTP},
	{http.MethodPost, "/identifier/verify-otp", (*Sandbox).verifyIdentifierOTP},
	{http.MethodPost, "/identifier/list", (*Sandbox).listIdentifier},
	{http.MethodPost, "/identifier/doc-url", (*Sandbox).presignIdentifier},
	{http.MethodPost, "/identifier/approve", (*Sandbox).approveIdentifier},
	{http.MethodPost, "/identifier/chat/list", (*Sandbox).listIdentifierChat},
	{http.MethodPost, "/identifier/chat/send", (*Sandbox).sendIdentifierChat},
	{http.MethodPost, "/identifier/chat/ask-ai", (*Sandbox).askAI},
	{http.MethodPost, "/identifier/chat/feedback", (*Sandbox).feedback},
	{http.MethodPost, "/otp-send", (*Sandbox).sendJournalOTP},
	{http.MethodPost, "/otp-verify", (*Sandbox).verifyJournalOTP},
	{http.MethodPost, "/doc-list", (*Sandbox).listJournalDocuments},
	{http.MethodPost, "/doc-url", (*Sandbox).presignJournal},
	{http.MethodPost, "/approve", (*Sandbox).approveJournal},
	{http.MethodGet, "/chat/list", (*Sandbox).listJournalChat},
	{http.MethodPost, "/chat/send", (*Sandbox).sendJournalChat},
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// Handler adapts API Gateway HTTP events to sandbox calls.
type Handler struct {
	sandbox *Sandbox
	logger  *slog.Logger
}

func NewHandler(sb *Sandbox) (*Handler, error) {
	if sb == nil {
		return nil, errors.New("handler: sandbox must not be nil")
	}
	return &Handler{sandbox: sb, logger: sb.logger}, nil
}

func (h *Handler) Handle(ctx context.Context, event events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	correlationID := headerValue(event.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	method := strings.ToUpper(event.RequestContext.HTTP.Method)
	path := event.RawPath
	if path == "" {
		path = event.RequestContext.HTTP.Path
	}
	logger := h.logger.With("correlation_id", correlationID, "method", method, "path", path)

	if method == http.MethodOptions {
		return respond(http.StatusNoContent, nil, correlationID), nil
	}
	rt, ok := match(method, path)
	if !ok {
		return respond(http.StatusNotFound, errorResponse{Error: "Not Found"}, correlationID), nil
	}

	req := request{bearer: bearerToken(event.Headers)}
	body := event.Body
	if event.IsBase64Encoded {
		raw, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return respond(http.StatusBadRequest, errorResponse{Error: "Invalid body"}, correlationID), nil
		}
		body = string(raw)
	}
	if strings.TrimSpace(body) != "" {
		if err := json.Unmarshal([]byte(body), &req.in); err != nil {
			return respond(http.StatusBadRequest, errorResponse{Error: "Invalid JSON"}, correlationID), nil
		}
	}
	if method == http.MethodGet {
		req.in.ExternalID = event.QueryStringParameters["e"]
		req.in.AccessToken = event.QueryStringParameters["t"]
	}

	out, err := rt.call(h.sandbox, req)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			logger.DebugContext(ctx, "sandbox call rejected", "status", apiErr.status, "error", apiErr.msg)
			return respond(apiErr.status, errorResponse{Error: apiErr.msg}, correlationID), nil
		}
		logger.ErrorContext(ctx, "sandbox call failed", "err", err)
		return respond(http.StatusInternalServerError, errorResponse{Error: "Internal error"}, correlationID), nil
	}
	if out == nil {
		out = H{}
	}
	out["ok"] = true
	return respond(http.StatusOK, out, correlationID), nil
}

func match(method, path string) (route, bool) {
	path = strings.TrimRight(path, "/")
	for _, rt := range routes {
		if rt.method == method && strings.HasSuffix(path, rt.suffix) {
			return rt, true
		}
	}
	return route{}, false
}

func respond(status int, body any, correlationID string) events.APIGatewayV2HTTPResponse {
	headers := map[string]string{
		"Content-Type":                 "application/json",
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Headers": "Content-Type, Authorization",
		correlationHeader:              correlationID,
	}
	if body == nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: status, Headers: headers}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		slog.Error("failed to marshal sandbox response", "err", err)
		status = http.StatusInternalServerError
		raw = []byte(`{"ok":false,"error":"Internal error"}`)
	}
	return events.APIGatewayV2HTTPResponse{StatusCode: status, Headers: headers, Body: string(raw)}
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func bearerToken(headers map[string]string) string {
	v := headerValue(headers, "Authorization")
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return ""
}
