package domain

import "time"

// InteractionRequest is one inbound customer message, from any transport.
type InteractionRequest struct {
	ConversationID string               `json:"conversation_id"`
	CustomerID     string               `json:"customer_id"`
	AccountID      string               `json:"account_id,omitempty"`
	Channel        string               `json:"channel"`
	Message        string               `json:"message"`
	Language       string               `json:"language,omitempty"`
	Resolved       bool                 `json:"resolved,omitempty"`
	AccountData    map[string]any       `json:"account_data,omitempty"`
	UsageLogs      []map[string]float64 `json:"usage_logs,omitempty"`
}

// Key returns the conversation key for get-or-create.
func (r InteractionRequest) Key() ConversationKey {
	return ConversationKey{
		ConversationID: r.ConversationID,
		CustomerID:     r.CustomerID,
		AccountID:      r.AccountID,
		Channel:        r.Channel,
	}
}

// UnifiedResponse is the merged output of one pipeline run.
type UnifiedResponse struct {
	InteractionID        string             `json:"interaction_id"`
	ConversationID       string             `json:"conversation_id"`
	Timestamp            time.Time          `json:"timestamp"`
	CustomerID           string             `json:"customer_id"`
	Channel              string             `json:"channel"`
	Language             string             `json:"language"`
	ResponseText         string             `json:"response_text"`
	Intent               Intent             `json:"intent"`
	SentimentScore       float64            `json:"sentiment_score"`
	DominantEmotion      Emotion            `json:"dominant_emotion"`
	EscalationFlag       bool               `json:"escalation_flag"`
	EscalationReason     *EscalationReason  `json:"escalation_reason"`
	SuggestedFAQArticles []FAQArticle       `json:"suggested_faq_articles"`
	ProactiveAlerts      []ProactiveAlert   `json:"proactive_alerts"`
	FeedbackAnalysis     *FeedbackAnalysis  `json:"feedback_analysis"`
	AgentLogs            map[Stage]StageLog `json:"agent_logs"`
}

// Trend directions reported by the analytics stage.
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// FeedbackAnalysis is the analytics row kept per turn.
// Turn-derived fields and feedback-derived fields are written independently.
type FeedbackAnalysis struct {
	TurnID           string    `json:"turn_id"`
	ConversationID   string    `json:"conversation_id"`
	Intent           Intent    `json:"intent"`
	SentimentScore   float64   `json:"sentiment_score"`
	SentimentTrend   string    `json:"sentiment_trend"`
	KnowledgeGap     bool      `json:"knowledge_gap"`
	Escalated        bool      `json:"escalated"`
	CSATScore        *float64  `json:"csat_score,omitempty"`
	Comment          string    `json:"comment,omitempty"`
	CommentSentiment *float64  `json:"comment_sentiment,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}
