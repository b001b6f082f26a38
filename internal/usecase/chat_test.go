package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"docportal/internal/domain"
	"docportal/internal/integrations/portalapi"
)

func chatPortal(t *testing.T, b *mockBackend) *Portal {
	t.Helper()
	if b.list == nil {
		b.verifyToken = "tok-1"
		b.list = twoJournals
	}
	p, _, _ := newTestPortal(t, b)
	openJournal(t, p)
	return p
}

func countType(msgs []domain.ChatMessage, mt domain.MessageType) int {
	n := 0
	for _, m := range msgs {
		if m.MessageType == mt {
			n++
		}
	}
	return n
}

func answer(id, text string) func(portalapi.AskRequest) (portalapi.AskResult, error) {
	return func(portalapi.AskRequest) (portalapi.AskResult, error) {
		return portalapi.AskResult{Answer: text, OutboundMessageID: id, AIModel: "m", Timestamp: domain.NewTimestamp(testNow)}, nil
	}
}

func TestRefreshChat_MergesAndDedupes(t *testing.T) {
	b := &mockBackend{chat: []domain.ChatMessage{
		{ID: "m1", Body: "Hello", MessageType: domain.MessageHuman},
		{ID: "m2", Body: "Question", Inbound: true, MessageType: domain.MessageHuman},
	}}
	p := chatPortal(t, b)

	added, err := p.RefreshChat(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, added)

	added, err = p.RefreshChat(context.Background())
	require.NoError(t, err)
	require.Zero(t, added)
	require.Len(t, p.Messages(), 2)
}

func TestRefreshChat_SessionExpiry(t *testing.T) {
	b := &mockBackend{chatErr: portalapi.ErrSessionExpired}
	p := chatPortal(t, b)

	_, err := p.RefreshChat(context.Background())
	require.Equal(t, ErrorSessionExpired, CodeOf(err))
	require.Equal(t, StageChooseChannel, p.Stage())
}

func TestRefreshChat_OtherErrorsLeaveNoNotice(t *testing.T) {
	b := &mockBackend{chatErr: errors.New("network down")}
	p := chatPortal(t, b)

	_, err := p.RefreshChat(context.Background())
	require.Equal(t, ErrorUpstream, CodeOf(err))
	require.Equal(t, NoticeNone, p.Notice().Kind)
	require.Equal(t, StagePortal, p.Stage())
}

func TestSendChat_OptimisticThenServerCopy(t *testing.T) {
	b := &mockBackend{sendID: "srv-1"}
	p := chatPortal(t, b)

	id, err := p.SendChat(context.Background(), "  Can I call you?  ")
	require.NoError(t, err)
	require.Equal(t, "srv-1", id)
	require.Equal(t, []string{"Can I call you?"}, b.sent)

	msgs := p.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "srv-1", msgs[0].ID)
	require.False(t, msgs[0].Local)

	_, err = p.SendChat(context.Background(), "   ")
	require.Equal(t, ErrorInvalidInput, CodeOf(err))
}

func TestSendChat_FailureDropsOptimisticCopy(t *testing.T) {
	b := &mockBackend{sendErr: errors.New("boom")}
	p := chatPortal(t, b)

	_, err := p.SendChat(context.Background(), "Hello")
	require.Equal(t, ErrorUpstream, CodeOf(err))
	require.Empty(t, p.Messages())
	require.Equal(t, NoticeError, p.Notice().Kind)
}

func TestAskAI_ResolvesPlaceholder(t *testing.T) {
	b := &mockBackend{ask: answer("ai-1", "A will is...")}
	p := chatPortal(t, b)

	msg, err := p.AskAI(context.Background(), "b2", "What is a will?")
	require.NoError(t, err)
	require.Equal(t, "ai-1", msg.ID)
	require.Equal(t, domain.MessageAI, msg.MessageType)
	require.Equal(t, domain.TargetAI, msg.FinalTarget)
	require.Equal(t, "b2", msg.DocumentID)

	req := b.askReqs[0]
	require.Nil(t, req.Link)
	require.Equal(t, "J-B", req.JournalID)
	require.Equal(t, "dk", req.Brand)
	require.Equal(t, "What is a will?", req.Question)

	msgs := p.Messages()
	require.Zero(t, countType(msgs, domain.MessageAIThinking))
	require.Equal(t, 1, countType(msgs, domain.MessageAI))
	require.Equal(t, 1, b.called("chat-list"))
}

func TestAskAI_FailureLeavesOneSystemMessage(t *testing.T) {
	b := &mockBackend{ask: func(portalapi.AskRequest) (portalapi.AskResult, error) {
		return portalapi.AskResult{}, errors.New("dial tcp: connection refused")
	}}
	p := chatPortal(t, b)

	_, err := p.AskAI(context.Background(), "", "Hello?")
	require.Equal(t, ErrorUpstream, CodeOf(err))

	msgs := p.Messages()
	require.Zero(t, countType(msgs, domain.MessageAIThinking))
	require.Zero(t, countType(msgs, domain.MessageAI))
	require.Equal(t, 1, countType(msgs, domain.MessageSystem))
	require.Equal(t, StagePortal, p.Stage())
}

func TestAskAI_JournalLinkCarriesCredentials(t *testing.T) {
	b := &mockBackend{
		journalDocs: []domain.Document{pendingDoc("d1")},
		ask:         answer("ai-1", "ok"),
	}
	p, _, _ := newTestPortal(t, b, WithJournalLink("ext", "tok"))
	require.NoError(t, p.VerifyOTP(context.Background(), "123456"))

	_, err := p.AskAI(context.Background(), "d1", "Hi")
	require.NoError(t, err)
	require.Equal(t, &portalapi.JournalLink{ExternalID: "ext", AccessToken: "tok"}, b.askReqs[0].Link)
}

func TestAskAIAboutMessage_OncePerMessage(t *testing.T) {
	b := &mockBackend{
		chat: []domain.ChatMessage{{ID: "m1", Body: "Is clause 4 right?", Inbound: true, MessageType: domain.MessageHuman, DocumentID: "b2"}},
		ask:  answer("ai-1", "Yes"),
	}
	p := chatPortal(t, b)
	_, err := p.RefreshChat(context.Background())
	require.NoError(t, err)

	msg, err := p.AskAIAboutMessage(context.Background(), "", "m1")
	require.NoError(t, err)
	require.True(t, msg.TargetChanged)
	require.Equal(t, domain.TargetHuman, msg.OriginalTarget)

	req := b.askReqs[0]
	require.Equal(t, "m1", req.MessageID)
	require.Equal(t, "Is clause 4 right?", req.Question)
	require.Equal(t, "b2", req.DocumentID)

	_, err = p.AskAIAboutMessage(context.Background(), "", "m1")
	require.Equal(t, ErrorInvalidState, CodeOf(err))
	_, err = p.AskAIAboutMessage(context.Background(), "", "ai-1")
	require.Equal(t, ErrorInvalidInput, CodeOf(err))
}

func TestFeedback_IsFinal(t *testing.T) {
	b := &mockBackend{ask: answer("ai-1", "Answer")}
	p := chatPortal(t, b)
	_, err := p.AskAI(context.Background(), "", "Q")
	require.NoError(t, err)

	require.NoError(t, p.MarkHelpful(context.Background(), "ai-1"))
	require.Equal(t, ErrorInvalidState, CodeOf(p.EscalateToHuman(context.Background(), "ai-1")))
	require.Equal(t, []string{"ai-1:helpful"}, b.feedbacks)

	var ai domain.ChatMessage
	for _, m := range p.Messages() {
		if m.ID == "ai-1" {
			ai = m
		}
	}
	require.True(t, ai.AIHelpful)
	require.False(t, ai.AIEscalated)
}

func TestEscalateToHuman_AddsSystemMessage(t *testing.T) {
	b := &mockBackend{ask: answer("ai-1", "Answer")}
	p := chatPortal(t, b)
	_, err := p.AskAI(context.Background(), "", "Q")
	require.NoError(t, err)

	require.NoError(t, p.EscalateToHuman(context.Background(), "ai-1"))
	require.Equal(t, []string{"ai-1:escalate"}, b.feedbacks)
	require.Equal(t, 1, countType(p.Messages(), domain.MessageSystem))
}

func TestFeedback_BackendFailureAllowsRetry(t *testing.T) {
	b := &mockBackend{ask: answer("ai-1", "Answer"), feedbackErr: errors.New("boom")}
	p := chatPortal(t, b)
	_, err := p.AskAI(context.Background(), "", "Q")
	require.NoError(t, err)

	require.Equal(t, ErrorUpstream, CodeOf(p.MarkHelpful(context.Background(), "ai-1")))

	b.mu.Lock()
	b.feedbackErr = nil
	b.mu.Unlock()
	require.NoError(t, p.MarkHelpful(context.Background(), "ai-1"))
}

// ---- polling ----

func TestChatPoller_StartStop(t *testing.T) {
	var runs atomic.Int32
	poller := NewChatPoller(time.Second, time.Second, func(context.Context) error {
		runs.Add(1)
		return nil
	}, nil)

	require.True(t, poller.Start())
	require.False(t, poller.Start())
	require.True(t, poller.Running())
	require.Eventually(t, func() bool { return runs.Load() > 0 }, 5*time.Second, 50*time.Millisecond)

	poller.Stop()
	require.False(t, poller.Running())
	poller.Stop()
}

func TestStartChatPolling_StopsOnSessionReset(t *testing.T) {
	p := chatPortal(t, &mockBackend{})

	require.NoError(t, p.StartChatPolling())
	require.True(t, p.Polling())
	require.NoError(t, p.StartChatPolling())

	p.HandleUnauthorized()
	require.False(t, p.Polling())
	require.Equal(t, ErrorInvalidState, CodeOf(p.StartChatPolling()))
}
