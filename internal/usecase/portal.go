package usecase

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"docportal/internal/chat"
	"docportal/internal/config"
	"docportal/internal/documents"
	"docportal/internal/domain"
	"docportal/internal/integrations/portalapi"
	"docportal/internal/session"
)

// Mode is how the party authenticates. It is fixed for the lifetime of a
// Portal.
type Mode string

const (
	ModeIdentifier  Mode = "identifier"
	ModeJournalLink Mode = "journal-link"
)

// Stage is the step of the authentication flow the portal is in.
type Stage string

const (
	StageChooseChannel      Stage = "ChooseChannel"
	StageAwaitingOTP        Stage = "AwaitingOtp"
	StageJournalBridge      Stage = "JournalBridge"
	StagePortal             Stage = "Portal"
	StageImpersonationError Stage = "ImpersonationError"
)

type NoticeKind string

const (
	NoticeNone            NoticeKind = ""
	NoticeInfo            NoticeKind = "info"
	NoticeError           NoticeKind = "error"
	NoticeSessionExpired  NoticeKind = "session-expired"
	NoticeApprovalBlocked NoticeKind = "approval-blocked"
	NoticeCompleted       NoticeKind = "completed"
)

// Notice is the latest user-facing message.
type Notice struct {
	Kind NoticeKind
	Text string
}

// Impersonation is the banner state of a staff-issued session.
type Impersonation struct {
	Active      bool
	JournalID   string
	JournalName string
	ReadOnly    bool
}

// Backend is the set of portal API calls the controller makes.
// *portalapi.Client satisfies it.
type Backend interface {
	SendJournalOTP(ctx context.Context, externalID string) error
	VerifyJournalOTP(ctx context.Context, externalID, code string) error
	ListJournalDocuments(ctx context.Context, link portalapi.JournalLink) ([]domain.Document, error)
	PresignJournal(ctx context.Context, link portalapi.JournalLink, docID string) (string, error)
	ApproveJournal(ctx context.Context, link portalapi.JournalLink, docIDs []string) (portalapi.ApproveResult, error)
	ListJournalChat(ctx context.Context, link portalapi.JournalLink) ([]domain.ChatMessage, error)
	SendJournalChat(ctx context.Context, link portalapi.JournalLink, body string) (string, error)

	RequestIdentifierOTP(ctx context.Context, claim domain.IdentityClaim, market string) error
	VerifyIdentifierOTP(ctx context.Context, claim domain.IdentityClaim, code string) (string, error)
	ListIdentifier(ctx context.Context, req portalapi.ListRequest) (portalapi.ListResult, error)
	PresignIdentifier(ctx context.Context, docID string) (string, error)
	ApproveIdentifier(ctx context.Context, docIDs []string) (portalapi.ApproveResult, error)
	ImpersonationLogin(ctx context.Context, token string) (domain.ImpersonationGrant, error)
	ListIdentifierChat(ctx context.Context, journalID string) ([]domain.ChatMessage, error)
	SendIdentifierChat(ctx context.Context, journalID, body string) (string, error)

	AskAI(ctx context.Context, req portalapi.AskRequest) (portalapi.AskResult, error)
	Feedback(ctx context.Context, link *portalapi.JournalLink, messageID, action string) error
}

// Portal is the controller of one portal visit: authentication state, the
// active journal's documents and its conversation. Methods are safe for
// concurrent use; network calls run without holding the lock and their
// results are applied only if nothing superseded them meanwhile.
type Portal struct {
	backend Backend
	sess    *session.Manager
	brand   config.Brand
	link    portalapi.JournalLink
	mode    Mode
	logger  *slog.Logger
	texts   texts

	mu          sync.Mutex
	closed      bool
	stage       Stage
	notice      Notice
	claim       domain.IdentityClaim
	journals    []domain.Journal
	journalID   string
	journalName string
	imp         Impersonation
	docs        documents.Set
	thread      *chat.Thread
	approving   bool
	sending     bool
	feedback    map[string]bool
	poller      *ChatPoller

	// scope is bumped by every transition that invalidates in-flight work.
	scope session.Generation
	fetch session.Generation
	chats session.Generation
}

type Option func(*Portal)

// WithJournalLink selects journal-link mode when both values are present.
func WithJournalLink(externalID, accessToken string) Option {
	return func(p *Portal) {
		p.link = portalapi.JournalLink{ExternalID: externalID, AccessToken: accessToken}
	}
}

func WithBrand(b config.Brand) Option {
	return func(p *Portal) { p.brand = b }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Portal) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithThread replaces the message store, e.g. to inject a clock in tests.
func WithThread(t *chat.Thread) Option {
	return func(p *Portal) {
		if t != nil {
			p.thread = t
		}
	}
}

func New(backend Backend, sess *session.Manager, opts ...Option) (*Portal, error) {
	if backend == nil {
		return nil, errors.New("usecase: backend must not be nil")
	}
	if sess == nil {
		return nil, errors.New("usecase: session manager must not be nil")
	}
	p := &Portal{
		backend:  backend,
		sess:     sess,
		brand:    config.Default().Brand,
		logger:   slog.Default(),
		thread:   chat.NewThread(),
		feedback: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.texts = textsFor(p.brand.Lang)
	if p.link.Valid() {
		p.mode = ModeJournalLink
		p.stage = StageAwaitingOTP
	} else {
		p.link = portalapi.JournalLink{}
		p.mode = ModeIdentifier
		p.stage = StageChooseChannel
	}
	p.logger = p.logger.With("mode", string(p.mode))
	return p, nil
}

func (p *Portal) Mode() Mode { return p.mode }

func (p *Portal) Stage() Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stage
}

func (p *Portal) Notice() Notice {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.notice
}

// Brand returns the profile the portal was built with.
func (p *Portal) Brand() config.Brand { return p.brand }

// Impersonation returns the banner data; Active is false outside an
// impersonation session.
func (p *Portal) Impersonation() Impersonation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.imp
}

// ActiveJournal returns the selected journal, if any.
func (p *Portal) ActiveJournal() (id, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.journalID, p.journalName
}

// HandleUnauthorized is the single recovery path for a rejected session. It
// drops the token and all document and chat state and returns to the step
// that precedes authentication in the current mode. Repeated calls leave the
// same state.
func (p *Portal) HandleUnauthorized() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	wasAuthenticated := p.stage == StagePortal || p.stage == StageJournalBridge || p.sess.HasToken()
	p.resetLocked()
	p.notice = Notice{Kind: NoticeSessionExpired, Text: p.texts.sessionExpired}
	if p.imp.Active {
		p.stage = StageImpersonationError
	}
	if wasAuthenticated {
		p.logger.Warn("session expired, returning to sign-in", "stage", string(p.stage), "generation", p.scope.Current())
	}
}

// SignOut ends the session on request. An impersonation session ends for good.
func (p *Portal) SignOut() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.resetLocked()
	p.imp = Impersonation{}
	p.notice = Notice{}
	p.logger.Info("signed out")
}

// Close cancels every timer. The portal rejects further operations.
func (p *Portal) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.scope.Invalidate()
	p.stopPollingLocked()
	p.sess.Cancel()
}

// resetLocked clears everything tied to the current session.
func (p *Portal) resetLocked() {
	p.scope.Invalidate()
	p.fetch.Invalidate()
	p.chats.Invalidate()
	p.stopPollingLocked()
	p.sess.Clear()
	p.docs.Reset()
	p.thread.Reset()
	clear(p.feedback)
	p.journals = nil
	p.journalID = ""
	p.journalName = ""
	if p.mode == ModeJournalLink {
		p.stage = StageAwaitingOTP
		return
	}
	p.claim = domain.IdentityClaim{}
	p.stage = StageChooseChannel
}

// requireLocked checks that the portal is open and in one of stages.
func (p *Portal) requireLocked(stages ...Stage) error {
	if p.closed {
		return newError(ErrorInvalidState, "closed", nil)
	}
	if !slices.Contains(stages, p.stage) {
		return newError(ErrorInvalidState, "stage_"+string(p.stage), nil)
	}
	return nil
}

func isSessionError(err error) bool {
	return errors.Is(err, portalapi.ErrSessionExpired) || errors.Is(err, session.ErrNoToken)
}

// fail classifies a backend failure. Session rejections go through
// HandleUnauthorized; anything else becomes an upstream error notice.
func (p *Portal) fail(reason string, err error) error {
	if isSessionError(err) {
		p.HandleUnauthorized()
		return newError(ErrorSessionExpired, reason, err)
	}
	text := portalapi.BackendMessage(err)
	if text == "" {
		text = p.texts.genericError
	}
	p.setNotice(NoticeError, text)
	p.logger.Error("backend call failed", "op", reason, "err", err)
	return newError(ErrorUpstream, reason, err)
}

func (p *Portal) setNotice(kind NoticeKind, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notice = Notice{Kind: kind, Text: text}
}

func stale(reason string) error {
	return newError(ErrorStale, reason, nil)
}

// applyRotated installs a token the backend rotated and re-arms the refresh.
func (p *Portal) applyRotated(token string) {
	if token == "" || token == p.sess.Current() {
		return
	}
	p.sess.Set(token)
	p.sess.ScheduleRefresh(p.refresh)
	p.logger.Debug("session rotated")
}

// refresh re-fetches whatever the current stage shows so the backend can
// rotate the session before it expires.
func (p *Portal) refresh() error {
	ctx, cancel := context.WithTimeout(context.Background(), p.brand.RequestTimeout)
	defer cancel()

	switch p.Stage() {
	case StagePortal:
		_, err := p.loadDocuments(ctx)
		return err
	case StageJournalBridge:
		return p.reloadJournals(ctx)
	}
	return nil
}
