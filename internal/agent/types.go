package agent

import (
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
)

// Snapshot is the read-only view of the conversation a stage sees.
// It never includes the turn being processed.
type Snapshot struct {
	ConversationID  string                 `json:"conversation_id"`
	CustomerID      string                 `json:"customer_id"`
	AccountID       string                 `json:"account_id,omitempty"`
	Channel         string                 `json:"channel"`
	Language        string                 `json:"language,omitempty"`
	TurnCount       int                    `json:"turn_count"`
	EscalationState domain.EscalationState `json:"escalation_state"`
	RecentEmotions  []domain.Emotion       `json:"recent_emotions,omitempty"`
	RecentIntents   []domain.Intent        `json:"recent_intents,omitempty"`
}

const snapshotHistory = 5

// NewSnapshot builds a snapshot from a conversation record.
func NewSnapshot(conv *domain.Conversation) Snapshot {
	if conv == nil {
		return Snapshot{}
	}
	s := Snapshot{
		ConversationID:  conv.ID,
		CustomerID:      conv.CustomerID,
		AccountID:       conv.AccountID,
		Channel:         conv.Channel,
		Language:        conv.Language,
		TurnCount:       len(conv.Turns),
		EscalationState: conv.EscalationState,
		RecentEmotions:  conv.RecentEmotions(snapshotHistory),
	}
	start := max(len(conv.Turns)-snapshotHistory, 0)
	for _, t := range conv.Turns[start:] {
		s.RecentIntents = append(s.RecentIntents, t.Intent)
	}
	return s
}

// IntentInput feeds the intent stage.
type IntentInput struct {
	Message      string   `json:"customer_message"`
	Channel      string   `json:"channel"`
	LanguageHint string   `json:"language_hint,omitempty"`
	Snapshot     Snapshot `json:"context"`
}

// IntentOutput is the classified intent with a draft reply.
type IntentOutput struct {
	Intent        domain.Intent `json:"intent"`
	Confidence    float64       `json:"confidence"`
	DraftResponse string        `json:"draft_response"`
	Language      string        `json:"language"`
}

// KnowledgeInput feeds FAQ retrieval.
type KnowledgeInput struct {
	Message  string        `json:"customer_message"`
	Intent   domain.Intent `json:"intent"`
	Language string        `json:"language"`
	Draft    string        `json:"draft_response"`
	TopK     int           `json:"top_k"`
	Snapshot Snapshot      `json:"context"`
}

// KnowledgeOutput carries the retrieved articles and the enriched draft.
type KnowledgeOutput struct {
	Articles      []domain.FAQArticle `json:"articles"`
	EnrichedDraft string              `json:"enriched_draft"`
}

// EmotionInput feeds sentiment and emotion scoring.
type EmotionInput struct {
	Message  string   `json:"customer_message"`
	Draft    string   `json:"draft_response"`
	Language string   `json:"language"`
	Snapshot Snapshot `json:"context"`
}

// EmotionOutput is the scored message and the tone-adjusted reply.
type EmotionOutput struct {
	SentimentScore   float64            `json:"sentiment_score"`
	DominantEmotion  domain.Emotion     `json:"dominant_emotion"`
	Emotions         map[string]float64 `json:"emotions,omitempty"`
	Tone             string             `json:"tone_recommendation"`
	AdjustedResponse string             `json:"adjusted_response,omitempty"`
}

// AnomalyInput feeds the account anomaly scan.
type AnomalyInput struct {
	AccountID   string               `json:"account_id"`
	AccountData map[string]any       `json:"account_data,omitempty"`
	UsageLogs   []map[string]float64 `json:"usage_logs,omitempty"`
}

// AnomalyOutput lists proactive alerts, possibly none.
type AnomalyOutput struct {
	Alerts []domain.ProactiveAlert `json:"alerts"`
}

// AnalyticsInput carries exactly one of a committed turn or a feedback event.
type AnalyticsInput struct {
	Turn     *domain.TurnRecord    `json:"turn,omitempty"`
	Feedback *domain.FeedbackEvent `json:"feedback,omitempty"`
}

// Key returns the turn_id the input is about.
func (in AnalyticsInput) Key() string {
	switch {
	case in.Turn != nil:
		return in.Turn.Turn.ID
	case in.Feedback != nil:
		return in.Feedback.TurnID
	}
	return ""
}
