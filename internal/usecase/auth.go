package usecase

import (
	"context"
	"errors"
	"strings"

	"docportal/internal/documents"
	"docportal/internal/domain"
	"docportal/internal/integrations/portalapi"
	"docportal/internal/phone"
)

// IdentifierInput is what the party typed on the sign-in step. Country is the
// selected dialing country and defaults to the brand's.
type IdentifierInput struct {
	Channel domain.Channel
	Value   string
	Country string
}

// ParseClaim validates and normalizes an identifier without side effects.
func (p *Portal) ParseClaim(in IdentifierInput) (domain.IdentityClaim, error) {
	raw := strings.TrimSpace(in.Value)
	if raw == "" {
		return domain.IdentityClaim{}, newError(ErrorInvalidInput, "empty_identifier", nil)
	}
	switch in.Channel {
	case domain.ChannelEmail:
		email, err := phone.NormalizeEmail(raw)
		if err != nil {
			return domain.IdentityClaim{}, newError(ErrorInvalidInput, "invalid_email", err)
		}
		return domain.IdentityClaim{Channel: domain.ChannelEmail, RawValue: raw, NormalizedValue: email}, nil
	case domain.ChannelPhone, "":
		iso := strings.ToUpper(strings.TrimSpace(in.Country))
		if iso == "" {
			iso = p.brand.CountryISO
		}
		res := phone.Normalize(phone.PrepareLocal(raw, iso), iso)
		if !res.OK {
			return domain.IdentityClaim{}, newError(ErrorInvalidInput, "invalid_phone", nil)
		}
		return domain.IdentityClaim{
			Channel:         domain.ChannelPhone,
			RawValue:        raw,
			NormalizedValue: res.E164,
			Digits:          res.Digits,
			Country:         iso,
		}, nil
	default:
		return domain.IdentityClaim{}, newError(ErrorInvalidInput, "unknown_channel", nil)
	}
}

// RequestOTP normalizes the identifier and asks the backend for a code. The
// backend's answer is deliberately ignored: the flow always moves on to code
// entry so the client cannot tell whether the identifier matched.
func (p *Portal) RequestOTP(ctx context.Context, in IdentifierInput) error {
	if p.mode != ModeIdentifier {
		return newError(ErrorInvalidState, "journal_link_mode", nil)
	}
	claim, err := p.ParseClaim(in)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if err := p.requireLocked(StageChooseChannel, StageAwaitingOTP); err != nil {
		p.mu.Unlock()
		return err
	}
	scope := p.scope.Next()
	p.claim = claim
	p.mu.Unlock()

	if err := p.backend.RequestIdentifierOTP(ctx, claim, p.brand.Market); err != nil {
		p.logger.Debug("identifier otp request not accepted", "err", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.scope.IsCurrent(scope) {
		return stale("request_otp")
	}
	p.stage = StageAwaitingOTP
	p.notice = Notice{Kind: NoticeInfo, Text: p.texts.codeSent}
	return nil
}

// ResendOTP re-issues the code: the request-otp call again in identifier
// mode, the dedicated send endpoint for a journal link.
func (p *Portal) ResendOTP(ctx context.Context) error {
	p.mu.Lock()
	if err := p.requireLocked(StageAwaitingOTP); err != nil {
		p.mu.Unlock()
		return err
	}
	scope := p.scope.Current()
	claim := p.claim
	p.mu.Unlock()

	if p.mode == ModeIdentifier {
		if err := p.backend.RequestIdentifierOTP(ctx, claim, p.brand.Market); err != nil {
			p.logger.Debug("identifier otp request not accepted", "err", err)
		}
	} else if err := p.backend.SendJournalOTP(ctx, p.link.ExternalID); err != nil {
		if !p.scope.IsCurrent(scope) {
			return stale("resend_otp")
		}
		return p.fail("resend_otp", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.scope.IsCurrent(scope) {
		return stale("resend_otp")
	}
	p.notice = Notice{Kind: NoticeInfo, Text: p.texts.codeSent}
	return nil
}

// VerifyOTP submits the code. A journal link lands directly in the portal;
// an identifier lands on the journal bridge, even with a single journal.
func (p *Portal) VerifyOTP(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return newError(ErrorInvalidInput, "empty_code", nil)
	}

	p.mu.Lock()
	if err := p.requireLocked(StageAwaitingOTP); err != nil {
		p.mu.Unlock()
		return err
	}
	scope := p.scope.Current()
	claim := p.claim
	p.mu.Unlock()

	if p.mode == ModeJournalLink {
		return p.verifyJournal(ctx, scope, code)
	}

	token, err := p.backend.VerifyIdentifierOTP(ctx, claim, code)
	if !p.scope.IsCurrent(scope) {
		return stale("verify_otp")
	}
	if err != nil {
		return p.otpFailed(err)
	}
	p.sess.Set(token)

	journals, err := p.listJournals(ctx, claim)
	if err != nil {
		if !p.scope.IsCurrent(scope) {
			return stale("list_journals")
		}
		if CodeOf(err) != "" {
			p.sess.Clear()
			return err
		}
		return p.fail("list_journals", err)
	}

	p.mu.Lock()
	if !p.scope.IsCurrent(scope) {
		p.mu.Unlock()
		return stale("list_journals")
	}
	p.journals = journals
	p.stage = StageJournalBridge
	p.notice = Notice{}
	p.mu.Unlock()

	p.sess.ScheduleRefresh(p.refresh)
	p.logger.Info("identifier verified", "journals", len(journals))
	return nil
}

func (p *Portal) verifyJournal(ctx context.Context, scope uint64, code string) error {
	err := p.backend.VerifyJournalOTP(ctx, p.link.ExternalID, code)
	if !p.scope.IsCurrent(scope) {
		return stale("verify_otp")
	}
	if err != nil {
		return p.otpFailed(err)
	}
	if _, err := p.loadDocuments(ctx); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.scope.IsCurrent(scope) {
		return stale("verify_otp")
	}
	p.stage = StagePortal
	p.logger.Info("journal link verified", "documents", p.docs.Len())
	return nil
}

// otpFailed keeps the party on the code step. A rejected code shows the
// backend's reason; transport and server failures are upstream errors.
func (p *Portal) otpFailed(err error) error {
	var apiErr *portalapi.APIError
	var statusErr *portalapi.HTTPStatusError
	rejected := errors.As(err, &apiErr) || (errors.As(err, &statusErr) && statusErr.StatusCode < 500)
	if !rejected {
		return p.fail("verify_otp", err)
	}
	text := portalapi.BackendMessage(err)
	if text == "" {
		text = p.texts.invalidCode
	}
	p.setNotice(NoticeError, text)
	return newError(ErrorInvalidInput, "otp_rejected", err)
}

// listJournals loads the journals of the verified identity. Backends that
// only return the flat item list get journals derived from it.
func (p *Portal) listJournals(ctx context.Context, claim domain.IdentityClaim) ([]domain.Journal, error) {
	res, err := p.backend.ListIdentifier(ctx, portalapi.ListRequest{Claim: claim})
	if err != nil {
		return nil, err
	}
	p.applyRotated(res.Session)

	journals := res.Journals
	if !res.HasJournals {
		p.logger.Warn("backend returned no journal list, deriving from items", "items", len(res.Items))
		journals = documents.JournalsFromItems(res.Items)
	}
	if len(journals) == 0 {
		p.setNotice(NoticeError, p.texts.noDocuments)
		return nil, newError(ErrorNoDocuments, "no_journals", documents.ErrNoDocuments)
	}
	return journals, nil
}

func (p *Portal) reloadJournals(ctx context.Context) error {
	p.mu.Lock()
	scope := p.scope.Current()
	claim := p.claim
	p.mu.Unlock()

	journals, err := p.listJournals(ctx, claim)
	if !p.scope.IsCurrent(scope) {
		return stale("list_journals")
	}
	if err != nil {
		if CodeOf(err) != "" {
			return err
		}
		return p.fail("list_journals", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.scope.IsCurrent(scope) {
		return stale("list_journals")
	}
	p.journals = journals
	return nil
}

// FetchJournals reloads the journal list on the bridge step so approval
// counts reflect work done in a journal that was just left.
func (p *Portal) FetchJournals(ctx context.Context) ([]domain.Journal, error) {
	p.mu.Lock()
	err := p.requireLocked(StageJournalBridge)
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := p.reloadJournals(ctx); err != nil {
		return nil, err
	}
	return p.Journals(), nil
}

// StartOver forgets the identifier and the session and returns to channel
// selection.
func (p *Portal) StartOver() error {
	if p.mode != ModeIdentifier {
		return newError(ErrorInvalidState, "journal_link_mode", nil)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireLocked(StageChooseChannel, StageAwaitingOTP, StageJournalBridge, StagePortal); err != nil {
		return err
	}
	if p.imp.Active {
		return newError(ErrorInvalidState, "impersonation", nil)
	}
	p.resetLocked()
	p.notice = Notice{}
	return nil
}

// Journals returns the journals offered on the bridge step.
func (p *Portal) Journals() []domain.Journal {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Journal, len(p.journals))
	copy(out, p.journals)
	return out
}

// SelectJournal makes id the active journal and loads its documents.
func (p *Portal) SelectJournal(ctx context.Context, id string) error {
	p.mu.Lock()
	if err := p.requireLocked(StageJournalBridge); err != nil {
		p.mu.Unlock()
		return err
	}
	var picked *domain.Journal
	for i := range p.journals {
		if p.journals[i].ID == id {
			picked = &p.journals[i]
			break
		}
	}
	if picked == nil {
		p.mu.Unlock()
		return newError(ErrorInvalidInput, "unknown_journal", nil)
	}
	scope := p.scope.Next()
	p.journalID = picked.ID
	p.journalName = picked.DisplayName()
	p.docs.Reset()
	p.thread.Reset()
	clear(p.feedback)
	p.stopPollingLocked()
	p.mu.Unlock()

	if _, err := p.loadDocuments(ctx); err != nil {
		p.mu.Lock()
		if p.scope.IsCurrent(scope) && p.stage == StageJournalBridge {
			p.journalID = ""
			p.journalName = ""
		}
		p.mu.Unlock()
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.scope.IsCurrent(scope) {
		return stale("select_journal")
	}
	p.stage = StagePortal
	p.logger.Info("journal selected", "journal_id", id, "documents", p.docs.Len())
	return nil
}

// BackToJournals leaves the portal for the bridge step without ending the
// session.
func (p *Portal) BackToJournals() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireLocked(StagePortal); err != nil {
		return err
	}
	if p.mode != ModeIdentifier || p.imp.Active {
		return newError(ErrorInvalidState, "no_journal_bridge", nil)
	}
	p.scope.Next()
	p.stopPollingLocked()
	p.docs.Reset()
	p.thread.Reset()
	clear(p.feedback)
	p.journalID = ""
	p.journalName = ""
	p.stage = StageJournalBridge
	p.notice = Notice{}
	return nil
}

// BootImpersonation exchanges a staff-issued one-time token for a session
// scoped to one journal. Any failure is terminal: the portal stays on the
// impersonation error step and never falls back to the normal sign-in.
func (p *Portal) BootImpersonation(ctx context.Context, token string) error {
	if p.mode != ModeIdentifier {
		return newError(ErrorInvalidState, "journal_link_mode", nil)
	}
	p.mu.Lock()
	if err := p.requireLocked(StageChooseChannel); err != nil {
		p.mu.Unlock()
		return err
	}
	scope := p.scope.Next()
	p.imp = Impersonation{Active: true}
	p.mu.Unlock()

	token = strings.TrimSpace(token)
	if token == "" {
		return p.impersonationFailed(scope, "", newError(ErrorInvalidInput, "empty_token", nil))
	}
	grant, err := p.backend.ImpersonationLogin(ctx, token)
	if err != nil {
		return p.impersonationFailed(scope, portalapi.BackendMessage(err), err)
	}

	p.mu.Lock()
	if !p.scope.IsCurrent(scope) {
		p.mu.Unlock()
		return stale("impersonation")
	}
	p.imp = Impersonation{
		Active:      true,
		JournalID:   grant.JournalID,
		JournalName: grant.JournalName,
		ReadOnly:    !grant.AllowApprove,
	}
	p.journalID = grant.JournalID
	p.journalName = grant.JournalName
	p.mu.Unlock()
	p.sess.Set(grant.Session)

	if _, err := p.loadDocuments(ctx); err != nil {
		if CodeOf(err) == ErrorStale {
			return err
		}
		return p.impersonationFailed(scope, p.Notice().Text, err)
	}

	p.mu.Lock()
	if !p.scope.IsCurrent(scope) {
		p.mu.Unlock()
		return stale("impersonation")
	}
	p.stage = StagePortal
	p.mu.Unlock()

	p.sess.ScheduleRefresh(p.refresh)
	p.logger.Info("impersonation session started", "journal_id", grant.JournalID, "read_only", !grant.AllowApprove)
	return nil
}

func (p *Portal) impersonationFailed(scope uint64, text string, err error) error {
	if text == "" {
		text = p.texts.impersonationFailed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.scope.IsCurrent(scope) && p.stage != StageImpersonationError {
		return stale("impersonation")
	}
	p.sess.Clear()
	p.stage = StageImpersonationError
	p.notice = Notice{Kind: NoticeError, Text: text}
	p.logger.Warn("impersonation failed", "err", err)
	return newError(ErrorImpersonationFailed, "impersonation", err)
}
