package domain

import "time"

// CSAT bounds accepted on submission.
const (
	MinCSAT = 1.0
	MaxCSAT = 5.0
)

// FeedbackEvent is customer-submitted satisfaction for one turn.
type FeedbackEvent struct {
	TurnID      string    `json:"turn_id"`
	CSATScore   float64   `json:"csat_score"`
	Comment     string    `json:"comment,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// TurnRecord is the committed turn handed to the feedback dispatcher,
// with the prior sentiment history it needs for trend analysis.
type TurnRecord struct {
	ConversationID  string          `json:"conversation_id"`
	CustomerID      string          `json:"customer_id"`
	Channel         string          `json:"channel"`
	Turn            Turn            `json:"turn"`
	PriorSentiments []float64       `json:"prior_sentiments,omitempty"`
	EscalationState EscalationState `json:"escalation_state"`
}

// Handoff is an open request for a human agent to take a conversation.
type Handoff struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversation_id"`
	CustomerID     string           `json:"customer_id"`
	Channel        string           `json:"channel"`
	TurnID         string           `json:"turn_id"`
	Reason         EscalationReason `json:"reason"`
	CreatedAt      time.Time        `json:"created_at"`
	ClosedAt       *time.Time       `json:"closed_at,omitempty"`
}
