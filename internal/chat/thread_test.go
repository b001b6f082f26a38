package chat

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"docportal/internal/domain"
)

func newTestThread() *Thread {
	n := 0
	return NewThread(
		WithClock(func() time.Time { return time.Date(2025, 5, 11, 9, 0, 0, 0, time.UTC) }),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("local-%d", n) }),
	)
}

func types(msgs []domain.ChatMessage) []domain.MessageType {
	out := make([]domain.MessageType, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.MessageType)
	}
	return out
}

func TestMerge_DedupesByID(t *testing.T) {
	th := newTestThread()
	first := []domain.ChatMessage{
		{ID: "m1", Body: "hello", Inbound: true, MessageType: domain.MessageHuman},
		{ID: "m2", Body: "hi there", MessageType: domain.MessageHuman},
	}
	require.Equal(t, 2, th.Merge(first))
	require.Equal(t, 0, th.Merge(first))

	more := append(first, domain.ChatMessage{ID: "m3", Body: "answer", MessageType: domain.MessageAI})
	require.Equal(t, 1, th.Merge(more))
	require.Len(t, th.Messages(), 3)
}

func TestMerge_KeepsTerminalFlags(t *testing.T) {
	th := newTestThread()
	th.Merge([]domain.ChatMessage{{ID: "ai", MessageType: domain.MessageAI}})
	require.NoError(t, th.ApplyFeedback("ai", FeedbackHelpful))

	th.Merge([]domain.ChatMessage{{ID: "ai", MessageType: domain.MessageAI, Body: "edited"}})
	m, ok := th.Get("ai")
	require.True(t, ok)
	require.True(t, m.AIHelpful)
	require.Equal(t, "edited", m.Body)
}

func TestMerge_DropsOptimisticEcho(t *testing.T) {
	th := newTestThread()
	th.AppendLocal(domain.ChatMessage{Body: "<p>question</p>", Inbound: true})
	th.Merge([]domain.ChatMessage{{ID: "srv", Body: "<p>question</p>", Inbound: true, MessageType: domain.MessageHuman}})

	msgs := th.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "srv", msgs[0].ID)
	require.False(t, msgs[0].Local)
}

func TestRemove_OnlyLocal(t *testing.T) {
	th := newTestThread()
	th.Merge([]domain.ChatMessage{{ID: "m1", Body: "server", MessageType: domain.MessageHuman}})
	local := th.AppendLocal(domain.ChatMessage{Body: "draft", Inbound: true})

	require.False(t, th.Remove("m1"))
	require.False(t, th.Remove("missing"))
	require.True(t, th.Remove(local.ID))
	require.Len(t, th.Messages(), 1)
}

func TestReset(t *testing.T) {
	th := newTestThread()
	th.Merge([]domain.ChatMessage{{ID: "m1"}})
	th.Reset()
	require.Empty(t, th.Messages())
	require.Equal(t, 1, th.Merge([]domain.ChatMessage{{ID: "m1"}}))
}

// ---------------------------------------------------------------------------
// AI ask flow
// ---------------------------------------------------------------------------

func TestAsk_ResolveReplacesPlaceholder(t *testing.T) {
	th := newTestThread()
	thinking := th.BeginAsk("What is this?", "doc-1", DirectAI)
	require.True(t, th.Thinking())
	require.Equal(t, []domain.MessageType{domain.MessageHuman, domain.MessageAIThinking}, types(th.Messages()))

	th.Resolve(thinking, domain.ChatMessage{ID: "out-1", Body: "A contract.", MessageType: domain.MessageAI})
	require.False(t, th.Thinking())

	msgs := th.Messages()
	require.Equal(t, []domain.MessageType{domain.MessageHuman, domain.MessageAI}, types(msgs))
	require.Equal(t, domain.TargetAI, msgs[0].OriginalTarget)
	require.True(t, msgs[0].Inbound)
	require.Equal(t, "doc-1", msgs[0].DocumentID)
}

func TestAsk_FailAppendsExactlyOneSystemMessage(t *testing.T) {
	th := newTestThread()
	thinking := th.BeginAsk("What is this?", "doc-1", DirectAI)
	th.Fail(thinking, "The assistant is unavailable.")

	msgs := th.Messages()
	require.False(t, th.Thinking())
	require.Equal(t, []domain.MessageType{domain.MessageHuman, domain.MessageSystem}, types(msgs))
	require.Equal(t, "The assistant is unavailable.", msgs[1].Body)
}

func TestAsk_ReaskHasNoOptimisticQuestion(t *testing.T) {
	th := newTestThread()
	thinking := th.BeginAsk("", "doc-1", EscalatedToAI)
	require.Len(t, th.Messages(), 1)
	th.Fail(thinking, "failed")
	require.Equal(t, []domain.MessageType{domain.MessageSystem}, types(th.Messages()))
}

func TestMarkAskedAI_Once(t *testing.T) {
	th := newTestThread()
	th.Merge([]domain.ChatMessage{
		{ID: "q", Body: "help", Inbound: true, MessageType: domain.MessageHuman},
		{ID: "staff", Body: "reply", MessageType: domain.MessageHuman},
	})

	m, err := th.MarkAskedAI("q")
	require.NoError(t, err)
	require.True(t, m.AskedAI)

	_, err = th.MarkAskedAI("q")
	require.ErrorIs(t, err, ErrAlreadyAsked)

	_, err = th.MarkAskedAI("staff")
	require.ErrorIs(t, err, ErrNotHumanMessage)

	_, err = th.MarkAskedAI("nope")
	require.ErrorIs(t, err, ErrUnknownMessage)
}

// ---------------------------------------------------------------------------
// Feedback
// ---------------------------------------------------------------------------

func TestFeedback_TerminalAndExclusive(t *testing.T) {
	th := newTestThread()
	th.Merge([]domain.ChatMessage{
		{ID: "ai", MessageType: domain.MessageAI},
		{ID: "human", MessageType: domain.MessageHuman},
	})

	require.ErrorIs(t, th.ApplyFeedback("human", FeedbackHelpful), ErrNotAIMessage)
	require.ErrorIs(t, th.ApplyFeedback("missing", FeedbackHelpful), ErrUnknownMessage)

	require.NoError(t, th.ApplyFeedback("ai", FeedbackEscalate))
	require.ErrorIs(t, th.ApplyFeedback("ai", FeedbackHelpful), ErrFeedbackFinal)
	require.ErrorIs(t, th.ApplyFeedback("ai", FeedbackEscalate), ErrFeedbackFinal)

	m, _ := th.Get("ai")
	require.True(t, m.AIEscalated)
	require.False(t, m.AIHelpful)
}

// ---------------------------------------------------------------------------
// Pills
// ---------------------------------------------------------------------------

func labels(p []Pill) []string {
	out := make([]string, 0, len(p))
	for _, x := range p {
		out = append(out, x.Label)
	}
	return out
}

func TestPills(t *testing.T) {
	require.Equal(t, []string{"Asked Human", "Switched to AI"}, labels(Pills(domain.ChatMessage{
		Inbound: true, OriginalTarget: domain.TargetHuman, FinalTarget: domain.TargetAI, TargetChanged: true,
	})))
	require.Equal(t, []string{"Asked AI", "Escalated to Human"}, labels(Pills(domain.ChatMessage{
		Inbound: true, OriginalTarget: domain.TargetAI, FinalTarget: domain.TargetHuman, TargetChanged: true,
	})))
	require.Equal(t, []string{"Asked Human", "Tried AI"}, labels(Pills(domain.ChatMessage{
		Inbound: true, OriginalTarget: domain.TargetHuman, FinalTarget: domain.TargetHuman, TargetChanged: true,
	})))
	require.Equal(t, []string{"Asked AI"}, labels(Pills(domain.ChatMessage{
		Inbound: true, OriginalTarget: domain.TargetAI, FinalTarget: domain.TargetAI,
	})))
	require.Equal(t, []string{"Written by AI", "Helpful"}, labels(Pills(domain.ChatMessage{
		MessageType: domain.MessageAI, AIHelpful: true,
	})))
	require.Equal(t, []string{"Written by AI", "Routed to Agent"}, labels(Pills(domain.ChatMessage{
		MessageType: domain.MessageAI, AIEscalated: true,
	})))
	require.Equal(t, []string{"Written by Human"}, labels(Pills(domain.ChatMessage{MessageType: domain.MessageHuman})))
	require.Empty(t, Pills(domain.ChatMessage{MessageType: domain.MessageSystem}))
}
