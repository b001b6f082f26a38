package chat

import "docportal/internal/domain"

// Pill is a small routing badge rendered next to a message.
type Pill struct {
	Label   string
	Variant string
}

// Pills derives the routing badges of a message.
func Pills(m domain.ChatMessage) []Pill {
	var out []Pill
	if m.Inbound {
		switch m.OriginalTarget {
		case domain.TargetHuman:
			out = append(out, Pill{"Asked Human", "pill-asked-human"})
		case domain.TargetAI:
			out = append(out, Pill{"Asked AI", "pill-asked-ai"})
		}
		if !m.TargetChanged {
			return out
		}
		switch {
		case m.OriginalTarget == domain.TargetHuman && m.FinalTarget == domain.TargetAI:
			out = append(out, Pill{"Switched to AI", "pill-switched-ai"})
		case m.OriginalTarget == domain.TargetAI && m.FinalTarget == domain.TargetHuman:
			out = append(out, Pill{"Escalated to Human", "pill-escalated-human"})
		case m.OriginalTarget == domain.TargetHuman && m.FinalTarget == domain.TargetHuman:
			out = append(out, Pill{"Tried AI", "pill-tried-ai"})
		}
		return out
	}

	switch m.MessageType {
	case domain.MessageAI:
		out = append(out, Pill{"Written by AI", "pill-written-ai"})
		if m.AIHelpful {
			out = append(out, Pill{"Helpful", "pill-helpful"})
		}
		if m.AIEscalated {
			out = append(out, Pill{"Routed to Agent", "pill-routed-agent"})
		}
	case domain.MessageHuman:
		out = append(out, Pill{"Written by Human", "pill-written-human"})
	}
	return out
}
