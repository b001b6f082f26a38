package usecase

import (
	"context"
	"errors"

	"docportal/internal/documents"
	"docportal/internal/domain"
	"docportal/internal/integrations/portalapi"
)

// FetchDocuments reloads the active journal's documents.
func (p *Portal) FetchDocuments(ctx context.Context) (documents.View, error) {
	p.mu.Lock()
	err := p.requireLocked(StagePortal)
	p.mu.Unlock()
	if err != nil {
		return documents.View{}, err
	}
	return p.loadDocuments(ctx)
}

// loadDocuments fetches, filters and sorts the document list and installs it
// unless a newer fetch or a state transition superseded this one.
func (p *Portal) loadDocuments(ctx context.Context) (documents.View, error) {
	p.mu.Lock()
	scope := p.scope.Current()
	attempt := p.fetch.Next()
	req := portalapi.ListRequest{Claim: p.claim, JournalID: p.journalID, Impersonation: p.imp.Active}
	p.mu.Unlock()

	var (
		raw     []domain.Document
		rotated string
		err     error
	)
	if p.mode == ModeJournalLink {
		raw, err = p.backend.ListJournalDocuments(ctx, p.link)
	} else {
		var res portalapi.ListResult
		res, err = p.backend.ListIdentifier(ctx, req)
		raw, rotated = inJournal(res.Items, req.JournalID), res.Session
	}

	if !p.scope.IsCurrent(scope) || !p.fetch.IsCurrent(attempt) {
		p.logger.Debug("discarding superseded document list", "generation", attempt)
		return documents.View{}, stale("list_documents")
	}
	if err != nil {
		return documents.View{}, p.fail("list_documents", err)
	}
	p.applyRotated(rotated)

	docs, err := documents.Prepare(raw)
	if errors.Is(err, documents.ErrNoDocuments) {
		p.setNotice(NoticeError, p.texts.noDocuments)
		return documents.View{}, newError(ErrorNoDocuments, "no_newest_documents", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.scope.IsCurrent(scope) || !p.fetch.IsCurrent(attempt) {
		return documents.View{}, stale("list_documents")
	}
	p.docs.Replace(docs)
	p.docs.ReplaceOlder(documents.OlderVersions(raw))
	if p.docs.CompletionDue() {
		p.notice = Notice{Kind: NoticeCompleted, Text: p.texts.completed}
	}
	return p.docs.View(), nil
}

// inJournal drops items of other journals when the backend returned a wider
// list than asked for.
func inJournal(items []domain.Document, journalID string) []domain.Document {
	if journalID == "" {
		return items
	}
	out := make([]domain.Document, 0, len(items))
	for _, d := range items {
		if d.JournalID == "" || d.JournalID == journalID {
			out = append(out, d)
		}
	}
	return out
}

// Views returns the pending and approved partitions of the held list.
func (p *Portal) Views() documents.View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.docs.View()
}

// Presign returns a short-lived viewing URL for docID. A Sent document is
// shown as Viewed from then on without a refetch.
func (p *Portal) Presign(ctx context.Context, docID string) (string, error) {
	p.mu.Lock()
	if err := p.requireLocked(StagePortal); err != nil {
		p.mu.Unlock()
		return "", err
	}
	if _, ok := p.docs.Get(docID); !ok {
		p.mu.Unlock()
		return "", newError(ErrorInvalidInput, "unknown_document", nil)
	}
	scope := p.scope.Current()
	p.mu.Unlock()

	var (
		url string
		err error
	)
	if p.mode == ModeJournalLink {
		url, err = p.backend.PresignJournal(ctx, p.link, docID)
	} else {
		url, err = p.backend.PresignIdentifier(ctx, docID)
	}
	if !p.scope.IsCurrent(scope) {
		return "", stale("presign")
	}
	if err != nil {
		return "", p.fail("presign", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.scope.IsCurrent(scope) {
		p.docs.MarkViewed(docID)
	}
	return url, nil
}
