package usecase

import (
	"context"
	"errors"
	"strings"

	"docportal/internal/chat"
	"docportal/internal/domain"
	"docportal/internal/integrations/portalapi"
)

// chatScope is what a chat call needs to address the active conversation.
type chatScope struct {
	scope     uint64
	link      *portalapi.JournalLink
	journalID string
}

// chatLocked checks that a conversation is open and captures its scope.
func (p *Portal) chatLocked() (chatScope, error) {
	if err := p.requireLocked(StagePortal); err != nil {
		return chatScope{}, err
	}
	cs := chatScope{scope: p.scope.Current(), journalID: p.journalID}
	if p.mode == ModeJournalLink {
		link := p.link
		cs.link = &link
	}
	return cs, nil
}

// Messages returns the conversation in display order.
func (p *Portal) Messages() []domain.ChatMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.thread.Messages()
}

// RefreshChat merges the server's message list into the conversation and
// returns the number of new messages.
func (p *Portal) RefreshChat(ctx context.Context) (int, error) {
	p.mu.Lock()
	cs, err := p.chatLocked()
	if err != nil {
		p.mu.Unlock()
		return 0, err
	}
	attempt := p.chats.Next()
	p.mu.Unlock()

	var msgs []domain.ChatMessage
	if cs.link != nil {
		msgs, err = p.backend.ListJournalChat(ctx, *cs.link)
	} else {
		msgs, err = p.backend.ListIdentifierChat(ctx, cs.journalID)
	}

	p.mu.Lock()
	if !p.scope.IsCurrent(cs.scope) || !p.chats.IsCurrent(attempt) {
		p.mu.Unlock()
		return 0, stale("chat_list")
	}
	if err != nil {
		p.mu.Unlock()
		if isSessionError(err) {
			p.HandleUnauthorized()
			return 0, newError(ErrorSessionExpired, "chat_list", err)
		}
		return 0, newError(ErrorUpstream, "chat_list", err)
	}
	added := p.thread.Merge(msgs)
	p.mu.Unlock()
	return added, nil
}

// refetchChat is the background refresh after a successful send or AI call.
// Its failures never surface.
func (p *Portal) refetchChat(ctx context.Context) {
	if _, err := p.RefreshChat(ctx); err != nil && CodeOf(err) != ErrorStale {
		p.logger.Debug("chat refetch failed", "err", err)
	}
}

// SendChat posts a message to staff. The message shows immediately and is
// replaced by the server copy on the next refresh.
func (p *Portal) SendChat(ctx context.Context, body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", newError(ErrorInvalidInput, "empty_message", nil)
	}

	p.mu.Lock()
	cs, err := p.chatLocked()
	if err != nil {
		p.mu.Unlock()
		return "", err
	}
	if p.sending {
		p.mu.Unlock()
		return "", newError(ErrorInvalidState, "send_in_flight", nil)
	}
	p.sending = true
	optimistic := p.thread.AppendLocal(domain.ChatMessage{
		Body:           body,
		Inbound:        true,
		MessageType:    domain.MessageHuman,
		OriginalTarget: domain.TargetHuman,
		FinalTarget:    domain.TargetHuman,
	})
	p.mu.Unlock()

	var id string
	if cs.link != nil {
		id, err = p.backend.SendJournalChat(ctx, *cs.link, body)
	} else {
		id, err = p.backend.SendIdentifierChat(ctx, cs.journalID, body)
	}

	p.mu.Lock()
	p.sending = false
	if !p.scope.IsCurrent(cs.scope) {
		p.mu.Unlock()
		return "", stale("chat_send")
	}
	if err != nil {
		p.thread.Remove(optimistic.ID)
		p.mu.Unlock()
		return "", p.fail("chat_send", err)
	}
	p.mu.Unlock()

	p.refetchChat(ctx)
	return id, nil
}

// AskAI asks the assistant a question about docID (which may be empty). The
// question and a thinking placeholder show at once; the placeholder is
// always replaced, by the answer or by a single system message.
func (p *Portal) AskAI(ctx context.Context, docID, question string) (domain.ChatMessage, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.ChatMessage{}, newError(ErrorInvalidInput, "empty_question", nil)
	}

	p.mu.Lock()
	cs, err := p.chatLocked()
	if err != nil {
		p.mu.Unlock()
		return domain.ChatMessage{}, err
	}
	thinking := p.thread.BeginAsk(question, docID, chat.DirectAI)
	req := p.askRequest(cs, docID, question, chat.DirectAI)
	p.mu.Unlock()

	return p.ask(ctx, cs, thinking, req)
}

// AskAIAboutMessage re-asks a message that was addressed to staff, once.
func (p *Portal) AskAIAboutMessage(ctx context.Context, docID, messageID string) (domain.ChatMessage, error) {
	p.mu.Lock()
	cs, err := p.chatLocked()
	if err != nil {
		p.mu.Unlock()
		return domain.ChatMessage{}, err
	}
	orig, err := p.thread.MarkAskedAI(messageID)
	if err != nil {
		p.mu.Unlock()
		return domain.ChatMessage{}, chatError(err)
	}
	if docID == "" {
		docID = orig.DocumentID
	}
	thinking := p.thread.BeginAsk("", docID, chat.EscalatedToAI)
	req := p.askRequest(cs, docID, orig.Body, chat.EscalatedToAI)
	req.MessageID = orig.ID
	p.mu.Unlock()

	return p.ask(ctx, cs, thinking, req)
}

func (p *Portal) askRequest(cs chatScope, docID, question string, r chat.Routing) portalapi.AskRequest {
	return portalapi.AskRequest{
		Link:           cs.link,
		JournalID:      cs.journalID,
		DocumentID:     docID,
		Question:       question,
		Brand:          p.brand.Key,
		OriginalTarget: r.OriginalTarget,
		FinalTarget:    r.FinalTarget,
		TargetChanged:  r.TargetChanged,
	}
}

func (p *Portal) ask(ctx context.Context, cs chatScope, thinking string, req portalapi.AskRequest) (domain.ChatMessage, error) {
	res, err := p.backend.AskAI(ctx, req)

	p.mu.Lock()
	if !p.scope.IsCurrent(cs.scope) {
		p.mu.Unlock()
		return domain.ChatMessage{}, stale("ask_ai")
	}
	if err != nil {
		if isSessionError(err) {
			p.mu.Unlock()
			p.HandleUnauthorized()
			return domain.ChatMessage{}, newError(ErrorSessionExpired, "ask_ai", err)
		}
		p.thread.Fail(thinking, p.texts.aiFailed)
		p.mu.Unlock()
		p.logger.Warn("ai answer failed", "journal_id", cs.journalID, "err", err)
		return domain.ChatMessage{}, newError(ErrorUpstream, "ask_ai", err)
	}
	answer := res.Message(req)
	p.thread.Resolve(thinking, answer)
	p.mu.Unlock()

	p.refetchChat(ctx)
	return answer, nil
}

// MarkHelpful records that an AI answer helped. It is final.
func (p *Portal) MarkHelpful(ctx context.Context, messageID string) error {
	return p.giveFeedback(ctx, messageID, chat.FeedbackHelpful)
}

// EscalateToHuman hands an AI answer over to staff. It is final and adds a
// system message announcing the handoff.
func (p *Portal) EscalateToHuman(ctx context.Context, messageID string) error {
	return p.giveFeedback(ctx, messageID, chat.FeedbackEscalate)
}

func (p *Portal) giveFeedback(ctx context.Context, messageID string, f chat.Feedback) error {
	p.mu.Lock()
	cs, err := p.chatLocked()
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if err := p.thread.CanGiveFeedback(messageID); err != nil {
		p.mu.Unlock()
		return chatError(err)
	}
	if p.feedback[messageID] {
		p.mu.Unlock()
		return newError(ErrorInvalidState, "feedback_in_flight", nil)
	}
	p.feedback[messageID] = true
	p.mu.Unlock()

	err = p.backend.Feedback(ctx, cs.link, messageID, string(f))

	p.mu.Lock()
	delete(p.feedback, messageID)
	if !p.scope.IsCurrent(cs.scope) {
		p.mu.Unlock()
		return stale("feedback")
	}
	if err != nil {
		p.mu.Unlock()
		return p.fail("feedback", err)
	}
	if err := p.thread.ApplyFeedback(messageID, f); err != nil {
		p.mu.Unlock()
		return chatError(err)
	}
	if f == chat.FeedbackEscalate {
		p.thread.AppendSystem(p.texts.escalated)
	}
	p.mu.Unlock()

	if f == chat.FeedbackEscalate {
		p.refetchChat(ctx)
	}
	return nil
}

func chatError(err error) error {
	switch {
	case errors.Is(err, chat.ErrUnknownMessage), errors.Is(err, chat.ErrNotAIMessage), errors.Is(err, chat.ErrNotHumanMessage):
		return newError(ErrorInvalidInput, "chat_message", err)
	default:
		return newError(ErrorInvalidState, "chat_message", err)
	}
}
