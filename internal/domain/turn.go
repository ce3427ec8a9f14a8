package domain

import (
	"maps"
	"slices"
	"time"
)

// Intent is the classified purpose of a customer message.
type Intent string

const (
	IntentBillingInquiry    Intent = "billing_inquiry"
	IntentTechnicalSupport  Intent = "technical_support"
	IntentAccountManagement Intent = "account_management"
	IntentProductInfo       Intent = "product_information"
	IntentFeedback          Intent = "feedback"
	IntentComplaint         Intent = "complaint"
	IntentEscalationRequest Intent = "escalation_request"
	IntentOrderStatus       Intent = "order_status"
	IntentCancellation      Intent = "cancellation"
	IntentRefundRequest     Intent = "refund_request"
	IntentGreeting          Intent = "greeting"
	IntentFarewell          Intent = "farewell"
	IntentGeneralInquiry    Intent = "general_inquiry"
	IntentUnknown           Intent = "unknown"
)

// Emotion is a dominant emotion label.
type Emotion string

const (
	EmotionAnger    Emotion = "anger"
	EmotionDistress Emotion = "distress"
	EmotionSadness  Emotion = "sadness"
	EmotionFear     Emotion = "fear"
	EmotionDisgust  Emotion = "disgust"
	EmotionJoy      Emotion = "joy"
	EmotionSurprise Emotion = "surprise"
	EmotionNeutral  Emotion = "neutral"
	EmotionUnknown  Emotion = "unknown"
)

// EscalationReason names the first condition that raised the flag.
type EscalationReason string

const (
	ReasonNone               EscalationReason = "NONE"
	ReasonExplicitRequest    EscalationReason = "EXPLICIT_REQUEST"
	ReasonSentimentThreshold EscalationReason = "SENTIMENT_THRESHOLD"
	ReasonEmotionStreak      EscalationReason = "EMOTION_STREAK"
	ReasonCriticalAlert      EscalationReason = "CRITICAL_ALERT"
	ReasonUnresolvedStreak   EscalationReason = "UNRESOLVED_STREAK"
)

// EscalationDecision is computed per turn and folded into the turn record.
type EscalationDecision struct {
	Flag   bool             `json:"flag"`
	Reason EscalationReason `json:"reason"`
}

// Stage names a pipeline step. They double as agent_logs keys.
type Stage string

const (
	StageIntent    Stage = "intent"
	StageKnowledge Stage = "knowledge"
	StageEmotion   Stage = "emotion"
	StageAnomaly   Stage = "anomaly"
	StageAnalytics Stage = "analytics"
)

// PipelineStages are the synchronous stages in execution order.
var PipelineStages = []Stage{StageIntent, StageKnowledge, StageEmotion, StageAnomaly}

// Stage statuses reported in agent_logs.
const (
	StageStatusOK       = "ok"
	StageStatusDegraded = "degraded"
	StageStatusSkipped  = "skipped"
)

// StageLog records how one stage ran for a turn.
type StageLog struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Degraded  bool   `json:"degraded"`
	Error     string `json:"error,omitempty"`
}

// Turn is one processed customer message. Immutable once appended.
type Turn struct {
	ID                 string             `json:"turn_id"`
	ConversationID     string             `json:"conversation_id"`
	Seq                int                `json:"seq"`
	Timestamp          time.Time          `json:"timestamp"`
	CustomerMessage    string             `json:"customer_message"`
	Language           string             `json:"language"`
	Intent             Intent             `json:"intent"`
	IntentConfidence   float64            `json:"intent_confidence"`
	DraftResponse      string             `json:"draft_response"`
	ResponseText       string             `json:"response_text"`
	FAQArticles        []FAQArticle       `json:"faq_articles,omitempty"`
	SentimentScore     float64            `json:"sentiment_score"`
	DominantEmotion    Emotion            `json:"dominant_emotion"`
	ToneRecommendation string             `json:"tone_recommendation,omitempty"`
	Alerts             []ProactiveAlert   `json:"alerts,omitempty"`
	Escalation         EscalationDecision `json:"escalation"`
	ResolutionSignal   bool               `json:"resolution_signal"`
	AgentLogs          map[Stage]StageLog `json:"agent_logs"`
}

// Clone returns a deep copy of the turn.
func (t Turn) Clone() Turn {
	t.FAQArticles = slices.Clone(t.FAQArticles)
	t.Alerts = slices.Clone(t.Alerts)
	t.AgentLogs = maps.Clone(t.AgentLogs)
	return t
}

// Degraded reports whether the given stage ran on a fallback value.
func (t Turn) Degraded(stage Stage) bool {
	return t.AgentLogs[stage].Degraded
}

// FAQArticle is a knowledge-base hit suggested with a response.
type FAQArticle struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Content  string  `json:"content,omitempty"`
	Category string  `json:"category,omitempty"`
	Language string  `json:"language,omitempty"`
	Score    float64 `json:"relevance_score"`
}

// Severity grades a proactive alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// AtLeast reports whether s is as severe as other or worse.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other] && s.Valid()
}

// ProactiveAlert is an account issue detected before the customer reports it.
type ProactiveAlert struct {
	AlertID         string   `json:"alert_id"`
	Type            string   `json:"alert_type"`
	Severity        Severity `json:"severity"`
	Description     string   `json:"description"`
	SuggestedAction string   `json:"suggested_action,omitempty"`
	AnomalyScore    float64  `json:"anomaly_score"`
}
