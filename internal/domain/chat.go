package domain

import (
	"encoding/json"
	"fmt"
)

// MessageType is the author category of a chat message.
type MessageType string

const (
	MessageHuman      MessageType = "Human"
	MessageAI         MessageType = "AI"
	MessageAIThinking MessageType = "AI-thinking"
	MessageSystem     MessageType = "System"
)

// Target is who a question was addressed to.
type Target string

const (
	TargetHuman Target = "Human"
	TargetAI    Target = "AI"
)

// Direction tells whether a message came from the external party.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// ChatMessage is one entry in a journal- or document-scoped conversation.
type ChatMessage struct {
	ID             string      `json:"id"`
	Body           string      `json:"body"`
	At             Timestamp   `json:"at"`
	Inbound        bool        `json:"inbound"`
	MessageType    MessageType `json:"messageType,omitempty"`
	OriginalTarget Target      `json:"originalTarget,omitempty"`
	FinalTarget    Target      `json:"finalTarget,omitempty"`
	TargetChanged  bool        `json:"targetChanged,omitempty"`
	AIHelpful      bool        `json:"aiHelpful,omitempty"`
	AIEscalated    bool        `json:"aiEscalated,omitempty"`
	AskedAI        bool        `json:"askedAI,omitempty"`
	DocumentID     string      `json:"documentId,omitempty"`

	// Local marks messages that exist only on the client.
	Local bool `json:"-"`
}

// Direction derives the message direction from the inbound flag.
func (m ChatMessage) Direction() Direction {
	if m.Inbound {
		return Inbound
	}
	return Outbound
}

// IsAI reports whether the message is a persisted AI answer.
func (m ChatMessage) IsAI() bool {
	return m.MessageType == MessageAI
}

func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	type chatMessage ChatMessage
	aux := struct {
		*chatMessage
		LegacyInbound *bool     `json:"Is_Inbound__c"`
		CreatedDate   Timestamp `json:"createdDate"`
	}{chatMessage: (*chatMessage)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("domain: decode chat message: %w", err)
	}
	if aux.LegacyInbound != nil && *aux.LegacyInbound {
		m.Inbound = true
	}
	if !m.At.Valid() {
		m.At = aux.CreatedDate
	}
	if m.MessageType == "" {
		m.MessageType = MessageHuman
	}
	return nil
}
