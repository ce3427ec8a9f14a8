package domain

import "time"

// Customer-facing channels a conversation can arrive on.
const (
	ChannelChat   = "chat"
	ChannelEmail  = "email"
	ChannelSocial = "social"
	ChannelAPI    = "api"
)

// Supported response languages.
const (
	LanguageEnglish = "en"
	LanguageArabic  = "ar"
)

// EscalationState is the conversation-level routing state.
type EscalationState string

const (
	StateNormal    EscalationState = "NORMAL"
	StateEscalated EscalationState = "ESCALATED"
	StateResolved  EscalationState = "RESOLVED"
)

// CanTransition reports whether from -> to is a legal state change.
// Staying in the same state is always legal.
func CanTransition(from, to EscalationState) bool {
	if from == to {
		return true
	}
	switch from {
	case StateNormal:
		return to == StateEscalated
	case StateEscalated:
		return to == StateResolved
	case StateResolved:
		return to == StateNormal
	}
	return false
}

// CanAdvance reports whether one turn may move the state from -> to. A turn
// on a RESOLVED conversation reopens it first, so RESOLVED -> ESCALATED is a
// legal single-turn move. An empty target leaves the state alone.
func CanAdvance(from, to EscalationState) bool {
	if to == "" || CanTransition(from, to) {
		return true
	}
	return from == StateResolved && CanTransition(StateNormal, to)
}

// ConversationKey identifies a conversation and the customer it belongs to.
// Everything but ConversationID is only used when the record is created.
type ConversationKey struct {
	ConversationID string `json:"conversation_id"`
	CustomerID     string `json:"customer_id"`
	AccountID      string `json:"account_id,omitempty"`
	Channel        string `json:"channel"`
}

// Conversation is the durable per-conversation context.
type Conversation struct {
	ID                         string           `json:"conversation_id"`
	CustomerID                 string           `json:"customer_id"`
	AccountID                  string           `json:"account_id,omitempty"`
	Channel                    string           `json:"channel"`
	Language                   string           `json:"detected_language,omitempty"`
	Turns                      []Turn           `json:"turns,omitempty"`
	ConsecutiveNegativeEmotion int              `json:"consecutive_negative_emotion_count"`
	UnresolvedTurns            int              `json:"unresolved_turn_count"`
	EscalationState            EscalationState  `json:"escalation_state"`
	EscalationReason           EscalationReason `json:"escalation_reason,omitempty"`
	Version                    int64            `json:"version"`
	CreatedAt                  time.Time        `json:"created_at"`
	UpdatedAt                  time.Time        `json:"updated_at"`
}

// Clone returns a deep copy so callers can hand out read-only snapshots.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	if c.Turns != nil {
		out.Turns = make([]Turn, len(c.Turns))
		for i, t := range c.Turns {
			out.Turns[i] = t.Clone()
		}
	}
	return &out
}

// RecentEmotions returns up to n dominant emotions, oldest first.
func (c *Conversation) RecentEmotions(n int) []Emotion {
	start := max(len(c.Turns)-n, 0)
	out := make([]Emotion, 0, len(c.Turns)-start)
	for _, t := range c.Turns[start:] {
		out = append(out, t.DominantEmotion)
	}
	return out
}

// ContextUpdate carries the counter and state values to commit together
// with a new turn. Values are absolute; the expected version guards them.
type ContextUpdate struct {
	ConsecutiveNegativeEmotion int
	UnresolvedTurns            int
	EscalationState            EscalationState
	EscalationReason           EscalationReason
	Language                   string
}
