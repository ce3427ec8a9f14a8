package orchestrator

import (
	"maps"
	"slices"
	"time"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/escalation"
)

// BuildTurn folds the stage outputs and the escalation outcome into the turn
// to commit. The response text is the tone-adjusted text when the emotion
// stage produced one, else the draft; articles and alerts pass through as is.
func BuildTurn(id string, at time.Time, req domain.InteractionRequest, res *Result, out escalation.Outcome) domain.Turn {
	text := res.Emotion.AdjustedResponse
	if text == "" {
		text = res.Knowledge.EnrichedDraft
	}
	if text == "" {
		text = res.Intent.DraftResponse
	}

	return domain.Turn{
		ID:                 id,
		ConversationID:     req.ConversationID,
		Timestamp:          at,
		CustomerMessage:    req.Message,
		Language:           res.Language,
		Intent:             res.Intent.Intent,
		IntentConfidence:   res.Intent.Confidence,
		DraftResponse:      res.Intent.DraftResponse,
		ResponseText:       text,
		FAQArticles:        slices.Clone(res.Knowledge.Articles),
		SentimentScore:     res.Emotion.SentimentScore,
		DominantEmotion:    res.Emotion.DominantEmotion,
		ToneRecommendation: res.Emotion.Tone,
		Alerts:             slices.Clone(res.Alerts),
		Escalation:         out.Decision,
		ResolutionSignal:   req.Resolved,
		AgentLogs:          maps.Clone(res.Logs),
	}
}

// Aggregate projects a committed turn into the unified response.
// FeedbackAnalysis is left nil; it is only filled on later queries.
func Aggregate(conv *domain.Conversation, turn domain.Turn) domain.UnifiedResponse {
	resp := domain.UnifiedResponse{
		InteractionID:        turn.ID,
		ConversationID:       conv.ID,
		Timestamp:            turn.Timestamp,
		CustomerID:           conv.CustomerID,
		Channel:              conv.Channel,
		Language:             turn.Language,
		ResponseText:         turn.ResponseText,
		Intent:               turn.Intent,
		SentimentScore:       turn.SentimentScore,
		DominantEmotion:      turn.DominantEmotion,
		EscalationFlag:       turn.Escalation.Flag,
		SuggestedFAQArticles: slices.Clone(turn.FAQArticles),
		ProactiveAlerts:      slices.Clone(turn.Alerts),
		AgentLogs:            maps.Clone(turn.AgentLogs),
	}
	if resp.SuggestedFAQArticles == nil {
		resp.SuggestedFAQArticles = []domain.FAQArticle{}
	}
	if resp.ProactiveAlerts == nil {
		resp.ProactiveAlerts = []domain.ProactiveAlert{}
	}
	if turn.Escalation.Flag {
		reason := turn.Escalation.Reason
		resp.EscalationReason = &reason
	}
	return resp
}
