package agent

import (
	"context"
	"math"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
)

const trendDelta = 0.1

// LocalAnalytics derives the per-turn analytics row. A turn input fills the
// turn fields and a feedback input fills the feedback fields; the store
// merges both halves by turn_id. The output depends on the input alone, so
// UpdatedAt is the turn or submission time rather than the clock.
type LocalAnalytics struct{}

func NewLocalAnalytics() *LocalAnalytics { return &LocalAnalytics{} }

func (a *LocalAnalytics) Invoke(ctx context.Context, in AnalyticsInput) (domain.FeedbackAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return domain.FeedbackAnalysis{}, err
	}

	switch {
	case in.Turn != nil:
		rec := in.Turn
		t := rec.Turn
		history := append(append([]float64(nil), rec.PriorSentiments...), t.SentimentScore)
		return domain.FeedbackAnalysis{
			TurnID:         t.ID,
			ConversationID: rec.ConversationID,
			Intent:         t.Intent,
			SentimentScore: t.SentimentScore,
			SentimentTrend: SentimentTrend(history),
			KnowledgeGap:   len(t.FAQArticles) == 0 || t.Intent == domain.IntentUnknown,
			Escalated:      t.Escalation.Flag,
			UpdatedAt:      t.Timestamp,
		}, nil

	case in.Feedback != nil:
		fb := in.Feedback
		csat := NormalizeCSAT(fb.CSATScore)
		out := domain.FeedbackAnalysis{
			TurnID:    fb.TurnID,
			CSATScore: &csat,
			Comment:   fb.Comment,
			UpdatedAt: fb.SubmittedAt,
		}
		if fb.Comment != "" {
			s := SentimentFromEmotions(EmotionDistribution(fb.Comment))
			out.CommentSentiment = &s
		}
		return out, nil
	}

	return domain.FeedbackAnalysis{}, &AgentError{Agent: "analytics", Message: "empty analytics input"}
}

// NormalizeCSAT maps percentage-style ratings onto the 1-5 scale.
func NormalizeCSAT(score float64) float64 {
	if score > domain.MaxCSAT {
		score = math.Min(score/20, domain.MaxCSAT)
	}
	return score
}

// SentimentTrend compares the mean of the later half of scores with the
// earlier half. Fewer than two scores is always stable.
func SentimentTrend(scores []float64) string {
	if len(scores) < 2 {
		return domain.TrendStable
	}
	mid := len(scores) / 2
	diff := mean(scores[mid:]) - mean(scores[:mid])
	switch {
	case diff > trendDelta:
		return domain.TrendImproving
	case diff < -trendDelta:
		return domain.TrendDeclining
	}
	return domain.TrendStable
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
