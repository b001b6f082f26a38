package usecase

import (
	"context"
	"slices"

	"docportal/internal/documents"
	"docportal/internal/domain"
)

// ConfirmRequest is what the party is asked to confirm. All is set when the
// selection covers every pending document, which is worded differently.
type ConfirmRequest struct {
	DocumentIDs []string
	All         bool
}

// Confirmer asks the party to confirm an approval.
type Confirmer interface {
	ConfirmApproval(ctx context.Context, req ConfirmRequest) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, req ConfirmRequest) (bool, error)

func (f ConfirmFunc) ConfirmApproval(ctx context.Context, req ConfirmRequest) (bool, error) {
	return f(ctx, req)
}

// ApprovalResult reports the outcome of Approve.
type ApprovalResult struct {
	Approved []string
	// Blocked lists the approval-blocked ids that stopped the batch.
	Blocked   []string
	Cancelled bool
	// Completed is set the first time every document became approved.
	Completed bool
	View      documents.View
}

// CanApprove reports whether the approve action is offered at all. Read-only
// impersonation sessions hide it.
func (p *Portal) CanApprove() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed && p.stage == StagePortal && !(p.imp.Active && p.imp.ReadOnly)
}

// Approve approves ids after confirmation. A batch that contains any
// approval-blocked document is refused as a whole before anything is sent.
func (p *Portal) Approve(ctx context.Context, ids []string, confirm Confirmer) (ApprovalResult, error) {
	if confirm == nil {
		return ApprovalResult{}, newError(ErrorInvalidInput, "no_confirmer", nil)
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return ApprovalResult{}, newError(ErrorInvalidInput, "no_documents_selected", nil)
	}

	p.mu.Lock()
	if err := p.requireLocked(StagePortal); err != nil {
		p.mu.Unlock()
		return ApprovalResult{}, err
	}
	if p.imp.Active && p.imp.ReadOnly {
		p.mu.Unlock()
		return ApprovalResult{}, newError(ErrorReadOnly, "impersonation_read_only", nil)
	}
	if p.approving {
		p.mu.Unlock()
		return ApprovalResult{}, newError(ErrorInvalidState, "approval_in_flight", nil)
	}
	held := p.docs.Documents()
	_, blocked, unknown := documents.SplitBlocked(held, ids)
	if len(unknown) > 0 {
		p.mu.Unlock()
		return ApprovalResult{}, newError(ErrorInvalidInput, "unknown_document", nil)
	}
	if len(blocked) > 0 {
		p.notice = Notice{Kind: NoticeApprovalBlocked, Text: p.texts.approvalBlocked}
		p.mu.Unlock()
		p.logger.Info("approval refused, batch contains blocked documents", "doc_ids", blocked)
		return ApprovalResult{Blocked: blocked}, newError(ErrorApprovalBlocked, "approval_blocked", nil)
	}
	p.approving = true
	scope := p.scope.Current()
	pending, _ := documents.Partition(held)
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.approving = false
		p.mu.Unlock()
	}()

	ok, err := confirm.ConfirmApproval(ctx, ConfirmRequest{
		DocumentIDs: ids,
		All:         len(ids) > 1 && coversAll(ids, pending),
	})
	if err != nil {
		return ApprovalResult{}, newError(ErrorInvalidInput, "confirmation_failed", err)
	}
	if !ok {
		return ApprovalResult{Cancelled: true}, nil
	}

	if p.mode == ModeJournalLink {
		_, err = p.backend.ApproveJournal(ctx, p.link, ids)
	} else {
		_, err = p.backend.ApproveIdentifier(ctx, ids)
	}
	if !p.scope.IsCurrent(scope) {
		return ApprovalResult{}, stale("approve")
	}
	if err != nil {
		return ApprovalResult{}, p.fail("approve", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.scope.IsCurrent(scope) {
		return ApprovalResult{}, stale("approve")
	}
	p.docs.MarkApproved(ids)
	res := ApprovalResult{Approved: ids, Completed: p.docs.CompletionDue(), View: p.docs.View()}
	if res.Completed {
		p.notice = Notice{Kind: NoticeCompleted, Text: p.texts.completed}
	} else {
		p.notice = Notice{Kind: NoticeInfo, Text: p.texts.approved}
	}
	p.logger.Info("documents approved", "doc_ids", ids)
	return res, nil
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func coversAll(ids []string, pending []domain.Document) bool {
	for _, d := range pending {
		if !slices.Contains(ids, d.ID) {
			return false
		}
	}
	return len(pending) > 0
}
