package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docportal/internal/domain"
)

const (
	otpTTL     = 10 * time.Minute
	docURLBase = "https://files.sandbox.invalid/documents/"
)

// H is the success payload of a call. The handler adds the ok flag.
type H map[string]any

// apiError is a call failure answered with an error envelope. A 200 status
// yields ok=false.
type apiError struct {
	status int
	msg    string
}

func (e *apiError) Error() string { return e.msg }

func reject(status int, msg string) error { return &apiError{status: status, msg: msg} }

func denied(msg string) error { return reject(http.StatusOK, msg) }

// payload is the union of every request body field the backend reads.
type payload struct {
	ExternalID     string        `json:"externalId"`
	AccessToken    string        `json:"accessToken"`
	OTP            string        `json:"otp"`
	Channel        string        `json:"channel"`
	Phone          string        `json:"phone"`
	Email          string        `json:"email"`
	JournalID      string        `json:"journalId"`
	DocID          string        `json:"docId"`
	DocIDs         []string      `json:"docIds"`
	Body           string        `json:"body"`
	Question       string        `json:"question"`
	DocumentID     string        `json:"documentId"`
	OriginalTarget domain.Target `json:"originalTarget"`
	FinalTarget    domain.Target `json:"finalTarget"`
	TargetChanged  bool          `json:"targetChanged"`
	MessageID      string        `json:"messageId"`
	Action         string        `json:"action"`
	Token          string        `json:"token"`
}

type request struct {
	bearer string
	in     payload
}

type journal struct {
	id          string
	name        string
	externalID  string
	accessToken string
	firstDraft  domain.Timestamp
	docs        []domain.Document
	messages    []domain.ChatMessage
}

type impersonation struct {
	ImpersonationFixture
	used bool
}

// Sandbox is an in-memory portal backend seeded from Fixtures. It is safe for
// concurrent use.
type Sandbox struct {
	mu         sync.Mutex
	fx         Fixtures
	secret     []byte
	journals   map[string]*journal
	order      []string
	byExternal map[string]string
	identities map[string][]string
	imps       map[string]*impersonation
	pending    map[string]time.Time
	aiFail     bool

	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

type Option func(*Sandbox)

func WithClock(now func() time.Time) Option {
	return func(s *Sandbox) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Sandbox) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sandbox) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSandbox builds the backend state from fx.
func NewSandbox(fx Fixtures, opts ...Option) (*Sandbox, error) {
	fx.applyDefaults()
	if err := fx.validate(); err != nil {
		return nil, err
	}
	s := &Sandbox{
		fx:         fx,
		secret:     []byte(fx.Secret),
		journals:   make(map[string]*journal, len(fx.Journals)),
		byExternal: make(map[string]string),
		identities: make(map[string][]string),
		imps:       make(map[string]*impersonation),
		pending:    make(map[string]time.Time),
		aiFail:     fx.AI.Fail,
		now:        time.Now,
		newID:      uuid.NewString,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, jf := range fx.Journals {
		j, err := newJournal(jf)
		if err != nil {
			return nil, err
		}
		s.journals[j.id] = j
		s.order = append(s.order, j.id)
		if j.externalID != "" {
			s.byExternal[j.externalID] = j.id
		}
	}
	for _, id := range fx.Identities {
		key := identityKey(id.Phone, id.Email)
		s.identities[key] = append(s.identities[key], id.Journals...)
	}
	for _, imp := range fx.Impersonations {
		s.imps[imp.Token] = &impersonation{ImpersonationFixture: imp}
	}
	return s, nil
}

func newJournal(jf JournalFixture) (*journal, error) {
	first, err := domain.ParseTimestamp(jf.FirstDraftSent)
	if err != nil {
		return nil, fmt.Errorf("handler: journal %s: %w", jf.ID, err)
	}
	j := &journal{
		id:          jf.ID,
		name:        jf.Name,
		externalID:  jf.ExternalID,
		accessToken: jf.AccessToken,
		firstDraft:  first,
	}
	for _, df := range jf.Documents {
		sent, err := domain.ParseTimestamp(df.SentDate)
		if err != nil {
			return nil, fmt.Errorf("handler: document %s: %w", df.ID, err)
		}
		j.docs = append(j.docs, domain.Document{
			ID:                df.ID,
			Name:              df.Name,
			FileName:          df.Name,
			Status:            domain.DocumentStatus(df.Status),
			IsNewestVersion:   !df.Superseded,
			DocumentType:      df.DocumentType,
			MarketUnit:        df.MarketUnit,
			SortOrder:         df.SortOrder,
			IsApprovalBlocked: df.Blocked,
			SentDate:          sent,
			JournalID:         jf.ID,
			JournalName:       jf.Name,
		})
	}
	for _, mf := range jf.Messages {
		at, err := domain.ParseTimestamp(mf.At)
		if err != nil {
			return nil, fmt.Errorf("handler: message %s: %w", mf.ID, err)
		}
		mt := domain.MessageType(mf.Type)
		if mt == "" {
			mt = domain.MessageHuman
		}
		j.messages = append(j.messages, domain.ChatMessage{
			ID:          mf.ID,
			Body:        mf.Body,
			At:          at,
			Inbound:     mf.Inbound,
			MessageType: mt,
		})
	}
	return j, nil
}

// SetAIFailure makes every AI ask fail until reset.
func (s *Sandbox) SetAIFailure(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aiFail = fail
}

// OTP returns the code every challenge accepts.
func (s *Sandbox) OTP() string { return s.fx.OTP }

// Document returns the current server-side state of a document.
func (s *Sandbox) Document(id string) (domain.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d := s.findDocument(id); d != nil {
		return *d, true
	}
	return domain.Document{}, false
}

// Messages returns the stored conversation of a journal.
func (s *Sandbox) Messages(journalID string) []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.journals[journalID]; ok {
		return slices.Clone(j.messages)
	}
	return nil
}

// identityKey keys an identity by channel and canonical value. Phone numbers
// compare by digits only.
func identityKey(phone, email string) string {
	if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
		return "email:" + email
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	if digits == "" {
		return ""
	}
	return "phone:" + digits
}

// ---- journal-link calls ----

func (s *Sandbox) linkJournal(in payload) (*journal, error) {
	id, ok := s.byExternal[in.ExternalID]
	if !ok || in.ExternalID == "" {
		return nil, reject(http.StatusUnauthorized, "Unauthorized")
	}
	j := s.journals[id]
	if in.AccessToken == "" || j.accessToken != in.AccessToken {
		return nil, reject(http.StatusUnauthorized, "Unauthorized")
	}
	return j, nil
}

func (s *Sandbox) sendJournalOTP(r request) (H, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.in.ExternalID == "" {
		return nil, reject(http.StatusBadRequest, "Missing externalId")
	}
	id, ok := s.byExternal[r.in.ExternalID]
	if !ok {
		return nil, reject(http.StatusNotFound, "Not found")
	}
	s.pending["journal:"+id] = s.now().Add(otpTTL)
	s.logger.Info("sandbox otp issued", "journal_id", id)
	return H{}, nil
}

func (s *Sandbox) verifyJournalOTP(r request) (H, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.in.ExternalID == "" || r.in.OTP == "" {
		return nil, reject(http.StatusBadRequest, "Missing externalId or otp")
	}
	id, ok := s.byExternal[r.in.ExternalID]
	if !ok {
		return nil, reject(http.StatusNotFound, "Not found")
	}
	if err := s.consumeOTP("journal:"+id, r.in.OTP); err != nil {
		return nil, err
	}
	return H{}, nil
}

// consumeOTP checks code against the pending challenge of key. A correct code
// clears the challenge.
func (s *Sandbox) consumeOTP(key, code string) error {
	until, ok := s.pending[key]
	if !ok {
		return denied("Invalid code")
	}
	if s.now().After(until) {
		delete(s.pending, key)
		return denied("Code expired")
	}
	if code != s.fx.OTP {
		return denied("Invalid code")
	}
	delete(s.pending, key)
	return nil
}

func (s *Sandbox) listJournalDocuments(r request) (H, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.linkJournal(r.in)
	if err != nil {
		return nil, err
	}
	return H{"documents": slices.Clone(j.docs)}, nil
}

func (s *Sandbox) presignJournal(r request) (H, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.linkJournal(r.in)
	if err != nil {
		return nil, err
	}
	d := s.findDocument(r.in.DocID)
	if d == nil || d.JournalID != j.id {
		return nil, reject(http.StatusNotFound, "Not found")
	}
	s.markViewed(d)
	return H{"url": s.documentURL(d.ID)}, nil
}

func (s *Sandbox) approveJournal(r request) (H, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.linkJournal(r.in)
	if err != nil {
		return nil, err
	}
	if len(r.in.DocIDs) == 0 {
		return nil, reject(http.StatusBadRequest, "Missing docIds")
	}
	approved, skipped := s.approve(r.in.DocIDs, func(jid string) bool { return jid == j.id })
	return H{"approved": approved, "skipped": skipped}, nil
}

func (s *Sandbox) listJournalChat(r request) (H, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.linkJournal(r.in)
	if err != nil {
		return nil, err
	}
	return H{"messages": slices.Clone(j.messages)}, nil
}

func (s *Sandbox) sendJournalChat(r request) (H, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(r.in.Body) == "" {
		return nil, reject(http.StatusBadRequest, "Missing body")
	}
	j, err := s.linkJournal(r.in)
	if err != nil {
		return nil, err
	}
	m := s.appendMessage(j, domain.ChatMessage{Body: r.in.Body, Inbound: true})
	return H{"id": m.ID}, nil
}

// ---- identifier calls ----

func (s *Sandbox) requestIdentifierOTP(r request) (H, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := identityKey(r.in.Phone, r.in.Email)
	if key == "" {
		return nil, reject(http.StatusBadRequest, "Provide exactly one of: email OR phone")
	}
	// Unknown identities get a challenge too, so the response reveals nothing.
	s.pending[key] = s.now().Add(otpTTL)
	s.logger.Info("sandbox otp issued", "channel", strings.SplitN(key, ":", 2)[0])
	return H{}, nil
}

func (s *Sandbox) verifyIdentifierOTP(r request) (H, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(r.in.OTP) != 6 || strings.Trim(r.in.OTP, "0123456789") != "" {
		return nil, denied("Invalid code")
	}
	if (r.in.Phone == "") == (r.in.Email == "") {
		return nil, denied("Provide exactly one of: email OR phone")
	}
	key := identityKey(r.in.Phone, r.in.Email)
	if err := s.consumeOTP(key, r.in.OTP); err != nil {
		return nil, err
	}
	if _, ok := s.identities[key]; !ok {
		return nil, denied("Invalid code")
	}
	typ := "phone"
	if r.in.Email != "" {
		typ = "email"
	}
	token, err := s.issue(sessionClaims{Typ: typ, RegisteredClaims: registered(key)})
	if err != nil {
		return nil, err
	}
	return H{"session": token}, nil
}

// scope resolves the journals a session may see.
func (s *Sandbox) scope(c *sessionClaims) []string {
	if c.impersonating() {
		return []string{c.JID}
	}
	return s.identities[c.Subject]
}

func (s *Sandbox) owns(c *sessionClaims, journalID string) bool {
	return journalID != "" && slices.Contains(s.scope(c), journalID)
}

func (s *Sandbox) listIdentifier(r request) (H, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.session(r.bearer)
	if err != nil {
		return nil, err
	}
	if !c.impersonating() {
		if (r.in.Phone == "") == (r.in.Email == "") {
			return nil, reject(http.StatusBadRequest, "Provide exactly one of: email OR phone")
		}
		if identityKey(r.in.Phone, r.in.Email) != c.Subject {
			return nil, reject(http.StatusForbidden, "Forbidden")
		}
	}
	ids := s.scope(c)
	if r.in.JournalID != "" {
		if !s.owns(c, r.in.JournalID) {
			return nil, reject(http.StatusForbidden, "Forbidden")
		}
		ids = []string{r.in.JournalID}
	}

	items := []domain.Document{}
	journals := []domain.Journal{}
	for _, id := range ids {
		j := s.journals[id]
		newest := newestDocuments(j)
		items = append(items, newest...)
		journals = append(journals, summarize(j, newest))
	}
	out := H{"items": items}
	if !s.fx.LegacyList {
		out["journals"] = journals
	}
	rotated, err := s.rotate(c)
	if err != nil {
		return nil, err
	}
	if rotated != "" {
		out["session"] = rotated
	}
	return out, nil
}

func newestDocuments(j *journal) []domain.Document {
	var out []domain.Document
	for _, d := range j.docs {
		if d.IsNewestVersion {
			out = append(out, d)
		}
	}
	return out
}

func summarize(j *journal, newest []domain.Document) domain.Journal {
	sum := domain.Journal{
		ID:               j.id,
		Name:             j.name,
		DocumentCount:    len(newest),
		FirstDraftSent:   j.firstDraft,
		DocumentStatuses: make(map[string]domain.TypeStatus),
	}
	for _, d := range newest {
		if d.Approved() {
			sum.ApprovedCount++
		}
		if d.DocumentType == "" {
			continue
		}
		st, seen := sum.DocumentStatuses[d.DocumentType]
		if !seen {
			sum.DocumentTypes = append(sum.DocumentTypes, d.DocumentType)
		}
		st.Total++
		if d.Approved() {
			st.Approved++
		}
		sum.DocumentStatuses[d.DocumentType] = st
	}
	return sum
}

func (s *Sandbox) presignIdentifier(r request) (H, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.session(r.bearer)
	if err != nil {
		return nil, err
	}
	if r.in.DocID == "" {
		return nil, reject(http.StatusBadRequest, "Missing docId")
	}
	d := s.findDocument(r.in.DocID)
	if d == nil {
		return nil, reject(http.StatusNotFound, "Not found")
	}
	if !s.owns(c, d.JournalID) {
		return nil, reject(http.StatusForbidden, "Forbidden")
	}
	// Staff browsing as the client leave no trace on the document.
	if !c.impersonating() {
		s.markViewed(d)
	}
	return H{"url": s.documentURL(d.ID)}, nil
}

func (s *Sandbox) approveIdentifier(r request) (H, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.session(r.bearer)
	if err != nil {
		return nil, err
	}
	if c.impersonating() && !c.AllowApprove {
		return nil, reject(http.StatusForbidden, "Approval not allowed in impersonation mode")
	}
	if len(r.in.DocIDs) == 0 {
		return nil, reject(http.StatusBadRequest, "Missing docIds")
	}
	approved, skipped := s.approve(r.in.DocIDs, func(jid string) bool { return s.owns(c, jid) })
	return H{"approved": approved, "skipped": skipped}, nil
}

// chatJournal authenticates a chat call by journal link when the body carries
// one, otherwise by bearer session and journal ownership.
func (s *Sandbox) chatJournal(r request) (*journal, error) {
	if r.in.ExternalID != "" || r.in.AccessToken != "" {
		return s.linkJournal(r.in)
	}
	c, err := s.session(r.bearer)
	if err != nil {
		return nil, err
	}
	if r.in.JournalID == "" {
		if !c.impersonating() {
			return nil, reject(http.StatusBadRequest, "Missing journalId")
		}
		r.in.JournalID = c.JID
	}
	if !s.owns(c, r.in.JournalID) {
		return nil, reject(http.StatusForbidden, "Forbidden")
	}
	return s.journals[r.in.JournalID], nil
}

func (s *Sandbox) listIdentifierChat(r request) (H, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.chatJournal(r)
	if err != nil {
		return nil, err
	}
	return H{"messages": slices.Clone(j.messages)}, nil
}

func (s *Sandbox) sendIdentifierChat(r request) (H, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(r.in.Body) == "" {
		return nil, reject(http.StatusBadRequest, "Missing body")
	}
	j, err := s.chatJournal(r)
	if err != nil {
		return nil, err
	}
	m := s.appendMessage(j, domain.ChatMessage{Body: r.in.Body, Inbound: true})
	return H{"id": m.ID}, nil
}

func (s *Sandbox) askAI(r request) (H, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.chatJournal(r)
	if err != nil {
		return nil, err
	}
	question := strings.TrimSpace(r.in.Question)
	if question == "" {
		return nil, reject(http.StatusBadRequest, "Missing question")
	}
	if s.aiFail {
		return nil, reject(http.StatusBadGateway, "AI service unavailable")
	}

	if r.in.MessageID != "" {
		i := slices.IndexFunc(j.messages, func(m domain.ChatMessage) bool { return m.ID == r.in.MessageID })
		if i < 0 {
			return nil, reject(http.StatusNotFound, "Not found")
		}
		j.messages[i].AskedAI = true
	} else {
		s.appendMessage(j, domain.ChatMessage{
			Body:           question,
			Inbound:        true,
			OriginalTarget: r.in.OriginalTarget,
			FinalTarget:    r.in.FinalTarget,
			TargetChanged:  r.in.TargetChanged,
			DocumentID:     r.in.DocumentID,
		})
	}

	answer := s.fx.AI.Answer
	if answer == "" {
		answer = "Sandbox answer: " + question
	}
	m := s.appendMessage(j, domain.ChatMessage{
		Body:           answer,
		MessageType:    domain.MessageAI,
		OriginalTarget: r.in.OriginalTarget,
		FinalTarget:    r.in.FinalTarget,
		TargetChanged:  r.in.TargetChanged,
		DocumentID:     r.in.DocumentID,
	})
	return H{
		"answer":            m.Body,
		"outboundMessageId": m.ID,
		"aiModel":           s.fx.AI.Model,
		"responseTimeMs":    0,
		"timestamp":         m.At,
	}, nil
}

func (s *Sandbox) feedback(r request) (H, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.chatJournal(r)
	if err != nil {
		return nil, err
	}
	if r.in.Action != "helpful" && r.in.Action != "escalate" {
		return nil, reject(http.StatusBadRequest, "Invalid action")
	}
	i := slices.IndexFunc(j.messages, func(m domain.ChatMessage) bool { return m.ID == r.in.MessageID })
	if i < 0 {
		return nil, reject(http.StatusNotFound, "Not found")
	}
	m := &j.messages[i]
	if !m.IsAI() {
		return nil, reject(http.StatusBadRequest, "Not an AI message")
	}
	if m.AIHelpful || m.AIEscalated {
		return nil, reject(http.StatusConflict, "Feedback already recorded")
	}
	if r.in.Action == "helpful" {
		m.AIHelpful = true
	} else {
		m.AIEscalated = true
	}
	return H{}, nil
}

func (s *Sandbox) impersonationLogin(r request) (H, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.in.Token == "" {
		return nil, reject(http.StatusBadRequest, "Missing token")
	}
	imp, ok := s.imps[r.in.Token]
	switch {
	case !ok:
		return nil, denied("Invalid or expired token")
	case imp.Revoked:
		return nil, denied("This link has been revoked")
	case imp.used:
		return nil, denied("This link has already been used")
	case imp.Expired:
		return nil, denied("Token expired")
	}
	imp.used = true

	j := s.journals[imp.Journal]
	token, err := s.issue(sessionClaims{
		Typ:              typImpersonation,
		Role:             roleImpersonation,
		JID:              j.id,
		AllowApprove:     imp.AllowApprove,
		RegisteredClaims: registered("staff:" + imp.Token),
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("sandbox impersonation login", "journal_id", j.id, "allow_approve", imp.AllowApprove)
	return H{
		"session":      token,
		"journalId":    j.id,
		"journalName":  j.name,
		"allowApprove": imp.AllowApprove,
	}, nil
}

func (s *Sandbox) ping(request) (H, error) {
	return H{"time": s.now().UTC()}, nil
}

// ---- shared state helpers, called with mu held ----

func (s *Sandbox) findDocument(id string) *domain.Document {
	for _, jid := range s.order {
		j := s.journals[jid]
		for i := range j.docs {
			if j.docs[i].ID == id {
				return &j.docs[i]
			}
		}
	}
	return nil
}

func (s *Sandbox) markViewed(d *domain.Document) {
	now := domain.NewTimestamp(s.now())
	if !d.FirstViewed.Valid() {
		d.FirstViewed = now
	}
	d.LastViewed = now
	if d.Status == domain.StatusSent {
		d.Status = domain.StatusViewed
	}
}

// approve moves each approvable id to Approved. Blocked, superseded, already
// approved and foreign documents are skipped.
func (s *Sandbox) approve(ids []string, allowed func(journalID string) bool) (approved, skipped int) {
	for _, id := range ids {
		d := s.findDocument(id)
		if d == nil || !allowed(d.JournalID) || d.IsApprovalBlocked || !d.IsNewestVersion || d.Approved() {
			skipped++
			continue
		}
		d.Status = domain.StatusApproved
		approved++
	}
	return approved, skipped
}

func (s *Sandbox) appendMessage(j *journal, m domain.ChatMessage) domain.ChatMessage {
	m.ID = s.newID()
	m.At = domain.NewTimestamp(s.now())
	if m.MessageType == "" {
		m.MessageType = domain.MessageHuman
	}
	j.messages = append(j.messages, m)
	return m
}

func (s *Sandbox) documentURL(docID string) string {
	return docURLBase + docID + "?sig=" + s.newID()
}
