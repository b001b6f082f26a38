// Package chat keeps the client-held message list of one conversation and the
// rules for optimistic, placeholder and feedback state.
package chat

import (
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"docportal/internal/domain"
)

var (
	ErrUnknownMessage  = errors.New("chat: unknown message")
	ErrNotAIMessage    = errors.New("chat: message is not an AI answer")
	ErrNotHumanMessage = errors.New("chat: message cannot be asked to AI")
	ErrAlreadyAsked    = errors.New("chat: message was already asked to AI")
	ErrFeedbackFinal   = errors.New("chat: feedback already given")
)

// Feedback is the one-shot verdict on an AI answer.
type Feedback string

const (
	FeedbackHelpful  Feedback = "helpful"
	FeedbackEscalate Feedback = "escalate"
)

// Routing is the target metadata attached to a question.
type Routing struct {
	OriginalTarget domain.Target
	FinalTarget    domain.Target
	TargetChanged  bool
}

// DirectAI is the routing of a question asked to AI from the start.
var DirectAI = Routing{OriginalTarget: domain.TargetAI, FinalTarget: domain.TargetAI}

// EscalatedToAI is the routing of a human-addressed message later asked to AI.
var EscalatedToAI = Routing{OriginalTarget: domain.TargetHuman, FinalTarget: domain.TargetAI, TargetChanged: true}

// Thread is the message list of the active conversation. It is not safe for
// concurrent use.
type Thread struct {
	msgs  []domain.ChatMessage
	seen  map[string]struct{}
	now   func() time.Time
	newID func() string
}

type Option func(*Thread)

func WithClock(now func() time.Time) Option {
	return func(t *Thread) {
		if now != nil {
			t.now = now
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(t *Thread) {
		if fn != nil {
			t.newID = fn
		}
	}
}

func NewThread(opts ...Option) *Thread {
	t := &Thread{
		seen:  make(map[string]struct{}),
		now:   time.Now,
		newID: func() string { return "local-" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Reset forgets every message, e.g. when the active journal changes.
func (t *Thread) Reset() {
	t.msgs = nil
	t.seen = make(map[string]struct{})
}

// Messages returns a copy of the list in display order.
func (t *Thread) Messages() []domain.ChatMessage {
	return slices.Clone(t.msgs)
}

// Get returns one message by id.
func (t *Thread) Get(id string) (domain.ChatMessage, bool) {
	if i := t.index(id); i >= 0 {
		return t.msgs[i], true
	}
	return domain.ChatMessage{}, false
}

// Merge folds a fetched server list into the thread and returns how many
// messages were new. Known ids are refreshed in place but never lose a terminal
// flag. Optimistic inbound copies are dropped once the server echoes them.
func (t *Thread) Merge(fetched []domain.ChatMessage) int {
	added := 0
	for _, m := range fetched {
		if m.ID == "" {
			continue
		}
		m.Local = false
		if _, ok := t.seen[m.ID]; ok {
			if i := t.index(m.ID); i >= 0 {
				prev := t.msgs[i]
				m.AIHelpful = m.AIHelpful || prev.AIHelpful
				m.AIEscalated = m.AIEscalated || prev.AIEscalated
				m.AskedAI = m.AskedAI || prev.AskedAI
				t.msgs[i] = m
			}
			continue
		}
		if m.Inbound {
			t.dropEcho(m.Body)
		}
		t.seen[m.ID] = struct{}{}
		t.msgs = append(t.msgs, m)
		added++
	}
	return added
}

func (t *Thread) dropEcho(body string) {
	for i, m := range t.msgs {
		if m.Local && m.Inbound && m.MessageType == domain.MessageHuman && m.Body == body {
			t.msgs = slices.Delete(t.msgs, i, i+1)
			return
		}
	}
}

// AppendLocal adds a client-only message and returns it.
func (t *Thread) AppendLocal(m domain.ChatMessage) domain.ChatMessage {
	if m.ID == "" {
		m.ID = t.newID()
	}
	if !m.At.Valid() {
		m.At = domain.NewTimestamp(t.now())
	}
	if m.MessageType == "" {
		m.MessageType = domain.MessageHuman
	}
	m.Local = true
	t.msgs = append(t.msgs, m)
	return m
}

// BeginAsk appends the optimistic question and a thinking placeholder. The
// returned id identifies the placeholder for Resolve or Fail. A question that
// re-asks an existing message passes an empty body and only the placeholder
// is added.
func (t *Thread) BeginAsk(question, documentID string, r Routing) (thinkingID string) {
	if question != "" {
		t.AppendLocal(domain.ChatMessage{
			Body:           question,
			Inbound:        true,
			MessageType:    domain.MessageHuman,
			OriginalTarget: r.OriginalTarget,
			FinalTarget:    r.FinalTarget,
			TargetChanged:  r.TargetChanged,
			DocumentID:     documentID,
		})
	}
	placeholder := t.AppendLocal(domain.ChatMessage{
		MessageType: domain.MessageAIThinking,
		DocumentID:  documentID,
	})
	return placeholder.ID
}

// Resolve replaces the placeholder with the AI answer.
func (t *Thread) Resolve(thinkingID string, answer domain.ChatMessage) {
	t.removeThinking(thinkingID)
	if answer.ID != "" {
		if _, ok := t.seen[answer.ID]; ok {
			return
		}
		t.seen[answer.ID] = struct{}{}
		t.msgs = append(t.msgs, answer)
		return
	}
	t.AppendLocal(answer)
}

// Fail replaces the placeholder with a single System error message.
func (t *Thread) Fail(thinkingID, text string) domain.ChatMessage {
	t.removeThinking(thinkingID)
	return t.AppendLocal(domain.ChatMessage{Body: text, MessageType: domain.MessageSystem})
}

// Remove drops a client-only message, e.g. an optimistic send that failed.
func (t *Thread) Remove(id string) bool {
	i := t.index(id)
	if i < 0 || !t.msgs[i].Local {
		return false
	}
	t.msgs = slices.Delete(t.msgs, i, i+1)
	return true
}

// AppendSystem adds a client-side notice.
func (t *Thread) AppendSystem(text string) domain.ChatMessage {
	return t.AppendLocal(domain.ChatMessage{Body: text, MessageType: domain.MessageSystem})
}

// Thinking reports whether any placeholder is pending.
func (t *Thread) Thinking() bool {
	return slices.ContainsFunc(t.msgs, func(m domain.ChatMessage) bool {
		return m.MessageType == domain.MessageAIThinking
	})
}

func (t *Thread) removeThinking(id string) {
	t.msgs = slices.DeleteFunc(t.msgs, func(m domain.ChatMessage) bool {
		return m.ID == id && m.MessageType == domain.MessageAIThinking
	})
}

// MarkAskedAI flags a human-addressed message as asked to AI. It succeeds
// once per message.
func (t *Thread) MarkAskedAI(id string) (domain.ChatMessage, error) {
	i := t.index(id)
	if i < 0 {
		return domain.ChatMessage{}, ErrUnknownMessage
	}
	m := &t.msgs[i]
	if !m.Inbound || m.MessageType != domain.MessageHuman {
		return domain.ChatMessage{}, ErrNotHumanMessage
	}
	if m.AskedAI {
		return domain.ChatMessage{}, ErrAlreadyAsked
	}
	m.AskedAI = true
	return *m, nil
}

// CanGiveFeedback checks that id is an AI answer with no verdict yet.
func (t *Thread) CanGiveFeedback(id string) error {
	i := t.index(id)
	if i < 0 {
		return ErrUnknownMessage
	}
	m := t.msgs[i]
	if !m.IsAI() {
		return ErrNotAIMessage
	}
	if m.AIHelpful || m.AIEscalated {
		return ErrFeedbackFinal
	}
	return nil
}

// ApplyFeedback records the verdict. Helpful and escalate exclude each other.
func (t *Thread) ApplyFeedback(id string, f Feedback) error {
	if err := t.CanGiveFeedback(id); err != nil {
		return err
	}
	m := &t.msgs[t.index(id)]
	switch f {
	case FeedbackHelpful:
		m.AIHelpful = true
	case FeedbackEscalate:
		m.AIEscalated = true
	default:
		return errors.New("chat: unknown feedback " + string(f))
	}
	return nil
}

func (t *Thread) index(id string) int {
	return slices.IndexFunc(t.msgs, func(m domain.ChatMessage) bool { return m.ID == id })
}
