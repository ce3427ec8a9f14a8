package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
)

// AnalyticsStore keeps one analytics row per turn plus the feedback journal
// that backs at-least-once delivery.
type AnalyticsStore struct {
	db *DB
}

// NewAnalyticsStore creates an analytics store using the given database.
func NewAnalyticsStore(db *DB) *AnalyticsStore {
	return &AnalyticsStore{db: db}
}

// UpsertTurnAnalysis writes the turn-derived columns, leaving feedback
// columns untouched.
func (a *AnalyticsStore) UpsertTurnAnalysis(ctx context.Context, fa domain.FeedbackAnalysis) error {
	_, err := a.db.sql.ExecContext(ctx,
		`INSERT INTO analytics (turn_id, conversation_id, intent, sentiment_score, sentiment_trend,
		                        knowledge_gap, escalated, turn_analyzed, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)
		 ON CONFLICT(turn_id) DO UPDATE SET
		   conversation_id = excluded.conversation_id,
		   intent = excluded.intent,
		   sentiment_score = excluded.sentiment_score,
		   sentiment_trend = excluded.sentiment_trend,
		   knowledge_gap = excluded.knowledge_gap,
		   escalated = excluded.escalated,
		   turn_analyzed = 1,
		   updated_at = max(analytics.updated_at, excluded.updated_at)`,
		fa.TurnID, fa.ConversationID, fa.Intent, fa.SentimentScore, fa.SentimentTrend,
		fa.KnowledgeGap, fa.Escalated, formatTime(fa.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert turn analysis %s: %w", fa.TurnID, err)
	}
	return nil
}

// UpsertFeedbackAnalysis writes the CSAT and comment columns, leaving the
// turn columns untouched.
func (a *AnalyticsStore) UpsertFeedbackAnalysis(ctx context.Context, fa domain.FeedbackAnalysis) error {
	_, err := a.db.sql.ExecContext(ctx,
		`INSERT INTO analytics (turn_id, csat_score, comment, comment_sentiment, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(turn_id) DO UPDATE SET
		   csat_score = excluded.csat_score,
		   comment = excluded.comment,
		   comment_sentiment = excluded.comment_sentiment,
		   updated_at = max(analytics.updated_at, excluded.updated_at)`,
		fa.TurnID, nullFloat(fa.CSATScore), fa.Comment, nullFloat(fa.CommentSentiment), formatTime(fa.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert feedback analysis %s: %w", fa.TurnID, err)
	}
	return nil
}

// Analysis returns the row for a turn, or nil when none has been written.
func (a *AnalyticsStore) Analysis(ctx context.Context, turnID string) (*domain.FeedbackAnalysis, error) {
	var (
		fa              domain.FeedbackAnalysis
		csat, sentiment sql.NullFloat64
		updatedAt       string
	)
	err := a.db.sql.QueryRowContext(ctx,
		`SELECT turn_id, conversation_id, intent, sentiment_score, sentiment_trend, knowledge_gap,
		        escalated, csat_score, comment, comment_sentiment, updated_at
		 FROM analytics WHERE turn_id = ?`, turnID,
	).Scan(
		&fa.TurnID, &fa.ConversationID, &fa.Intent, &fa.SentimentScore, &fa.SentimentTrend, &fa.KnowledgeGap,
		&fa.Escalated, &csat, &fa.Comment, &sentiment, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load analysis %s: %w", turnID, err)
	}
	if csat.Valid {
		fa.CSATScore = &csat.Float64
	}
	if sentiment.Valid {
		fa.CommentSentiment = &sentiment.Float64
	}
	fa.UpdatedAt = parseTime(updatedAt)
	return &fa, nil
}

// RecordFeedback journals a submission. A newer submission for the same
// turn replaces the older one and resets it to pending.
func (a *AnalyticsStore) RecordFeedback(ctx context.Context, ev domain.FeedbackEvent) error {
	_, err := a.db.sql.ExecContext(ctx,
		`INSERT INTO feedback_journal (turn_id, csat_score, comment, submitted_at, processed)
		 VALUES (?, ?, ?, ?, 0)
		 ON CONFLICT(turn_id) DO UPDATE SET
		   csat_score = excluded.csat_score,
		   comment = excluded.comment,
		   submitted_at = excluded.submitted_at,
		   processed = 0`,
		ev.TurnID, ev.CSATScore, ev.Comment, formatTime(ev.SubmittedAt),
	)
	if err != nil {
		return fmt.Errorf("journal feedback %s: %w", ev.TurnID, err)
	}
	return nil
}

// MarkProcessed is a no-op when ev was superseded by a newer submission.
func (a *AnalyticsStore) MarkProcessed(ctx context.Context, ev domain.FeedbackEvent) error {
	_, err := a.db.sql.ExecContext(ctx,
		`UPDATE feedback_journal SET processed = 1 WHERE turn_id = ? AND submitted_at = ?`,
		ev.TurnID, formatTime(ev.SubmittedAt),
	)
	if err != nil {
		return fmt.Errorf("mark feedback %s: %w", ev.TurnID, err)
	}
	return nil
}

// PendingFeedback lists unprocessed journal entries, oldest first.
func (a *AnalyticsStore) PendingFeedback(ctx context.Context) ([]domain.FeedbackEvent, error) {
	rows, err := a.db.sql.QueryContext(ctx,
		`SELECT turn_id, csat_score, comment, submitted_at FROM feedback_journal
		 WHERE processed = 0 ORDER BY submitted_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending feedback: %w", err)
	}
	defer rows.Close()

	var out []domain.FeedbackEvent
	for rows.Next() {
		var (
			ev domain.FeedbackEvent
			at string
		)
		if err := rows.Scan(&ev.TurnID, &ev.CSATScore, &ev.Comment, &at); err != nil {
			return nil, err
		}
		ev.SubmittedAt = parseTime(at)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// UnanalyzedTurns returns committed turns whose turn analysis was never
// written, with the sentiments of the turns before them.
func (a *AnalyticsStore) UnanalyzedTurns(ctx context.Context) ([]domain.TurnRecord, error) {
	rows, err := a.db.sql.QueryContext(ctx,
		`SELECT `+qualified("t")+`, c.customer_id, c.channel, c.escalation_state
		 FROM turns t
		 JOIN conversations c ON c.id = t.conversation_id
		 LEFT JOIN analytics a ON a.turn_id = t.id
		 WHERE a.turn_id IS NULL OR a.turn_analyzed = 0
		 ORDER BY t.timestamp`,
	)
	if err != nil {
		return nil, fmt.Errorf("list unanalyzed turns: %w", err)
	}

	var out []domain.TurnRecord
	for rows.Next() {
		var rec domain.TurnRecord
		t, err := scanTurn(rows, &rec.CustomerID, &rec.Channel, &rec.EscalationState)
		if err != nil {
			rows.Close()
			return nil, err
		}
		rec.Turn = t
		rec.ConversationID = t.ConversationID
		out = append(out, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Prior sentiments are read after the cursor is closed; the pool holds
	// a single connection.
	for i := range out {
		prior, err := a.priorSentiments(ctx, out[i].ConversationID, out[i].Turn.Seq)
		if err != nil {
			return nil, err
		}
		out[i].PriorSentiments = prior
	}
	return out, nil
}

func (a *AnalyticsStore) priorSentiments(ctx context.Context, conversationID string, seq int) ([]float64, error) {
	rows, err := a.db.sql.QueryContext(ctx,
		`SELECT sentiment_score FROM turns WHERE conversation_id = ? AND seq < ? ORDER BY seq`,
		conversationID, seq,
	)
	if err != nil {
		return nil, fmt.Errorf("load prior sentiments: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}
