package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"docportal/internal/domain"
	"docportal/internal/integrations/portalapi"
)

type recordingConfirmer struct {
	answer bool
	err    error
	reqs   []ConfirmRequest
}

func (c *recordingConfirmer) ConfirmApproval(_ context.Context, req ConfirmRequest) (bool, error) {
	c.reqs = append(c.reqs, req)
	return c.answer, c.err
}

func approvalPortal(t *testing.T, docs ...domain.Document) (*Portal, *mockBackend) {
	t.Helper()
	b := &mockBackend{journalDocs: docs}
	p, _, _ := newTestPortal(t, b, WithJournalLink("ext", "tok"))
	require.NoError(t, p.VerifyOTP(context.Background(), "123456"))
	require.Equal(t, StagePortal, p.Stage())
	return p, b
}

func pendingDoc(id string) domain.Document {
	return domain.Document{ID: id, Name: id, Status: domain.StatusSent, IsNewestVersion: true}
}

func TestApprove_ConfirmsThenMarksApproved(t *testing.T) {
	p, b := approvalPortal(t, pendingDoc("d1"), pendingDoc("d2"))
	confirm := &recordingConfirmer{answer: true}

	res, err := p.Approve(context.Background(), []string{"d1", "d1"}, confirm)
	require.NoError(t, err)
	require.Equal(t, []string{"d1"}, res.Approved)
	require.False(t, res.Completed)
	require.Equal(t, [][]string{{"d1"}}, b.approved)
	require.Equal(t, []ConfirmRequest{{DocumentIDs: []string{"d1"}}}, confirm.reqs)
	require.Len(t, res.View.Approved, 1)
	require.Equal(t, NoticeInfo, p.Notice().Kind)
}

func TestApprove_AllPendingIsWordedAsAll(t *testing.T) {
	p, _ := approvalPortal(t, pendingDoc("d1"), pendingDoc("d2"))
	confirm := &recordingConfirmer{answer: true}

	res, err := p.Approve(context.Background(), []string{"d2", "d1"}, confirm)
	require.NoError(t, err)
	require.True(t, confirm.reqs[0].All)
	require.True(t, res.Completed)
	require.True(t, res.View.AllApproved)
	require.Equal(t, NoticeCompleted, p.Notice().Kind)
}

func TestApprove_BlockedBatchIsRefusedWhole(t *testing.T) {
	blocked := pendingDoc("d2")
	blocked.IsApprovalBlocked = true
	p, b := approvalPortal(t, pendingDoc("d1"), blocked)
	confirm := &recordingConfirmer{answer: true}

	res, err := p.Approve(context.Background(), []string{"d1", "d2"}, confirm)
	require.Equal(t, ErrorApprovalBlocked, CodeOf(err))
	require.Equal(t, []string{"d2"}, res.Blocked)
	require.Empty(t, confirm.reqs)
	require.Zero(t, b.called("approve"))
	require.Equal(t, NoticeApprovalBlocked, p.Notice().Kind)
	require.Len(t, p.Views().Pending, 2)
}

func TestApprove_Cancelled(t *testing.T) {
	p, b := approvalPortal(t, pendingDoc("d1"))

	res, err := p.Approve(context.Background(), []string{"d1"}, &recordingConfirmer{answer: false})
	require.NoError(t, err)
	require.True(t, res.Cancelled)
	require.Zero(t, b.called("approve"))
	require.Len(t, p.Views().Pending, 1)
}

func TestApprove_ValidationErrors(t *testing.T) {
	p, _ := approvalPortal(t, pendingDoc("d1"))
	confirm := &recordingConfirmer{answer: true}

	_, err := p.Approve(context.Background(), []string{"d1"}, nil)
	require.Equal(t, ErrorInvalidInput, CodeOf(err))

	_, err = p.Approve(context.Background(), []string{"", ""}, confirm)
	require.Equal(t, ErrorInvalidInput, CodeOf(err))

	_, err = p.Approve(context.Background(), []string{"nope"}, confirm)
	require.Equal(t, ErrorInvalidInput, CodeOf(err))

	_, err = p.Approve(context.Background(), []string{"d1"}, &recordingConfirmer{err: errors.New("closed")})
	require.Equal(t, ErrorInvalidInput, CodeOf(err))
}

func TestApprove_BackendFailureKeepsState(t *testing.T) {
	p, b := approvalPortal(t, pendingDoc("d1"))
	b.approveErr = &portalapi.APIError{Op: "approve", Message: "Try later"}

	_, err := p.Approve(context.Background(), []string{"d1"}, &recordingConfirmer{answer: true})
	require.Equal(t, ErrorUpstream, CodeOf(err))
	require.Equal(t, Notice{Kind: NoticeError, Text: "Try later"}, p.Notice())
	require.Len(t, p.Views().Pending, 1)
}

func TestApprove_OneAtATime(t *testing.T) {
	p, b := approvalPortal(t, pendingDoc("d1"), pendingDoc("d2"))

	inner := make(chan error, 1)
	confirm := ConfirmFunc(func(ctx context.Context, _ ConfirmRequest) (bool, error) {
		_, err := p.Approve(ctx, []string{"d2"}, &recordingConfirmer{answer: true})
		inner <- err
		return true, nil
	})
	_, err := p.Approve(context.Background(), []string{"d1"}, confirm)
	require.NoError(t, err)
	require.Equal(t, ErrorInvalidState, CodeOf(<-inner))
	require.Equal(t, 1, b.called("approve"))
}

func TestApprove_RequiresPortal(t *testing.T) {
	p, _, _ := newTestPortal(t, &mockBackend{})
	require.False(t, p.CanApprove())

	_, err := p.Approve(context.Background(), []string{"d1"}, &recordingConfirmer{answer: true})
	require.Equal(t, ErrorInvalidState, CodeOf(err))
}
