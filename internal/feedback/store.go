package feedback

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
)

// AnalyticsStore persists analytics rows keyed by turn_id. Both upserts are
// idempotent: writing the same row twice leaves the same state as once.
// Turn fields and feedback fields are owned by separate upserts so neither
// overwrites the other.
type AnalyticsStore interface {
	UpsertTurnAnalysis(ctx context.Context, fa domain.FeedbackAnalysis) error
	UpsertFeedbackAnalysis(ctx context.Context, fa domain.FeedbackAnalysis) error
	Analysis(ctx context.Context, turnID string) (*domain.FeedbackAnalysis, error)
}

// Journal makes delivery survive a crash. Feedback is recorded before it is
// acknowledged and marked once its analytics row is written; committed
// turns without an analytics row are found through UnanalyzedTurns.
type Journal interface {
	RecordFeedback(ctx context.Context, ev domain.FeedbackEvent) error
	MarkProcessed(ctx context.Context, ev domain.FeedbackEvent) error
	PendingFeedback(ctx context.Context) ([]domain.FeedbackEvent, error)
	UnanalyzedTurns(ctx context.Context) ([]domain.TurnRecord, error)
}

// TurnJournal is implemented by journals that cannot see committed turns
// in their own storage. The dispatcher records every submitted turn there
// so a dropped turn is still found by UnanalyzedTurns.
type TurnJournal interface {
	RecordTurn(ctx context.Context, rec domain.TurnRecord) error
}

type journalEntry struct {
	ev        domain.FeedbackEvent
	processed bool
}

// MemoryStore is an in-process AnalyticsStore and Journal.
type MemoryStore struct {
	mu      sync.RWMutex
	rows    map[string]domain.FeedbackAnalysis
	journal map[string]*journalEntry // by turn id; the latest submission wins
	turns   map[string]domain.TurnRecord // recorded turns still waiting for a row
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:    make(map[string]domain.FeedbackAnalysis),
		journal: make(map[string]*journalEntry),
		turns:   make(map[string]domain.TurnRecord),
	}
}

func (m *MemoryStore) UpsertTurnAnalysis(_ context.Context, fa domain.FeedbackAnalysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row := m.rows[fa.TurnID]
	row.TurnID = fa.TurnID
	row.ConversationID = fa.ConversationID
	row.Intent = fa.Intent
	row.SentimentScore = fa.SentimentScore
	row.SentimentTrend = fa.SentimentTrend
	row.KnowledgeGap = fa.KnowledgeGap
	row.Escalated = fa.Escalated
	row.UpdatedAt = latest(row.UpdatedAt, fa.UpdatedAt)
	m.rows[fa.TurnID] = row
	delete(m.turns, fa.TurnID)
	return nil
}

func (m *MemoryStore) UpsertFeedbackAnalysis(_ context.Context, fa domain.FeedbackAnalysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row := m.rows[fa.TurnID]
	row.TurnID = fa.TurnID
	row.CSATScore = clonePtr(fa.CSATScore)
	row.Comment = fa.Comment
	row.CommentSentiment = clonePtr(fa.CommentSentiment)
	row.UpdatedAt = latest(row.UpdatedAt, fa.UpdatedAt)
	m.rows[fa.TurnID] = row
	return nil
}

func (m *MemoryStore) Analysis(_ context.Context, turnID string) (*domain.FeedbackAnalysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.rows[turnID]
	if !ok {
		return nil, nil
	}
	row.CSATScore = clonePtr(row.CSATScore)
	row.CommentSentiment = clonePtr(row.CommentSentiment)
	return &row, nil
}

func (m *MemoryStore) RecordFeedback(_ context.Context, ev domain.FeedbackEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal[ev.TurnID] = &journalEntry{ev: ev}
	return nil
}

// MarkProcessed ignores events superseded by a newer submission.
func (m *MemoryStore) MarkProcessed(_ context.Context, ev domain.FeedbackEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.journal[ev.TurnID]; ok && e.ev.SubmittedAt.Equal(ev.SubmittedAt) {
		e.processed = true
	}
	return nil
}

func (m *MemoryStore) PendingFeedback(context.Context) ([]domain.FeedbackEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.FeedbackEvent
	for _, e := range m.journal {
		if !e.processed {
			out = append(out, e.ev)
		}
	}
	slices.SortFunc(out, func(a, b domain.FeedbackEvent) int { return a.SubmittedAt.Compare(b.SubmittedAt) })
	return out, nil
}

// RecordTurn remembers a committed turn until its analytics row is
// written. Recording the same turn again is a no-op.
func (m *MemoryStore) RecordTurn(_ context.Context, rec domain.TurnRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[rec.Turn.ID]; ok && row.ConversationID != "" {
		return nil
	}
	m.turns[rec.Turn.ID] = rec
	return nil
}

// UnanalyzedTurns returns the recorded turns without an analytics row,
// oldest first.
func (m *MemoryStore) UnanalyzedTurns(context.Context) ([]domain.TurnRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.TurnRecord, 0, len(m.turns))
	for _, rec := range m.turns {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b domain.TurnRecord) int {
		if c := a.Turn.Timestamp.Compare(b.Turn.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(a.Turn.ID, b.Turn.ID)
	})
	return out, nil
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

var _ interface {
	AnalyticsStore
	Journal
	TurnJournal
} = (*MemoryStore)(nil)

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
