package feedback

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/agent"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/config"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/hooks"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func silentLog() *logging.Logger { return logging.New(nil, "silent") }

func testConfig() config.FeedbackConfig {
	return config.FeedbackConfig{QueueSize: 16, Workers: 2, MaxAttempts: 3, Backoff: time.Millisecond}
}

type analyticsAdapter = agent.Adapter[agent.AnalyticsInput, domain.FeedbackAnalysis]

func startDispatcher(t *testing.T, cfg config.FeedbackConfig, a analyticsAdapter, store *MemoryStore) *Dispatcher {
	t.Helper()
	d := NewDispatcher(cfg, time.Second, a, store, store, silentLog())
	d.Start(context.Background())
	t.Cleanup(func() { _ = d.Stop(context.Background()) })
	return d
}

func waitProcessed(t *testing.T, d *Dispatcher, n int64) {
	t.Helper()
	require.Eventually(t, func() bool { return d.Stats().Processed >= n }, 2*time.Second, 5*time.Millisecond)
}

var turnTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func turnRecord(id string, sentiment float64, prior ...float64) domain.TurnRecord {
	return domain.TurnRecord{
		ConversationID:  "c-1",
		CustomerID:      "cust-1",
		PriorSentiments: prior,
		Turn: domain.Turn{
			ID:             id,
			Timestamp:      turnTime,
			Intent:         domain.IntentBillingInquiry,
			SentimentScore: sentiment,
			FAQArticles:    []domain.FAQArticle{{ID: "faq-1"}},
		},
	}
}

func TestDispatcher_TurnAndFeedbackMerge(t *testing.T) {
	store := NewMemoryStore()
	d := startDispatcher(t, testConfig(), agent.NewLocalAnalytics(), store)
	ctx := context.Background()

	require.True(t, d.SubmitTurn(ctx, turnRecord("t-1", -0.6, 0.2, 0.1)))
	waitProcessed(t, d, 1)
	submitted := turnTime.Add(5 * time.Minute)
	require.NoError(t, d.SubmitFeedback(ctx, domain.FeedbackEvent{TurnID: "t-1", CSATScore: 2, Comment: "awful wait", SubmittedAt: submitted}))
	waitProcessed(t, d, 2)

	got, err := store.Analysis(ctx, "t-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	csat := 2.0
	commentSentiment := -0.5
	want := &domain.FeedbackAnalysis{
		TurnID:           "t-1",
		ConversationID:   "c-1",
		Intent:           domain.IntentBillingInquiry,
		SentimentScore:   -0.6,
		SentimentTrend:   domain.TrendDeclining,
		CSATScore:        &csat,
		Comment:          "awful wait",
		CommentSentiment: &commentSentiment,
		UpdatedAt:        submitted,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("analysis mismatch (-want +got):\n%s", diff)
	}

	pending, err := store.PendingFeedback(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDispatcher_RedeliveryIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	d := startDispatcher(t, testConfig(), agent.NewLocalAnalytics(), store)
	ctx := context.Background()

	ev := domain.FeedbackEvent{TurnID: "t-1", CSATScore: 4, Comment: "thanks, great help", SubmittedAt: turnTime.Add(time.Minute)}
	require.True(t, d.SubmitTurn(ctx, turnRecord("t-1", 0.4)))
	require.NoError(t, d.SubmitFeedback(ctx, ev))
	waitProcessed(t, d, 2)
	once, err := store.Analysis(ctx, "t-1")
	require.NoError(t, err)

	require.True(t, d.SubmitTurn(ctx, turnRecord("t-1", 0.4)))
	require.NoError(t, d.SubmitFeedback(ctx, ev))
	waitProcessed(t, d, 4)
	twice, err := store.Analysis(ctx, "t-1")
	require.NoError(t, err)

	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("re-delivery changed state (-once +twice):\n%s", diff)
	}
}

func TestDispatcher_RetriesWithBackoff(t *testing.T) {
	var calls atomic.Int32
	flaky := agent.Func[agent.AnalyticsInput, domain.FeedbackAnalysis](func(ctx context.Context, in agent.AnalyticsInput) (domain.FeedbackAnalysis, error) {
		if calls.Add(1) < 3 {
			return domain.FeedbackAnalysis{}, errors.New("analytics overloaded")
		}
		return agent.NewLocalAnalytics().Invoke(ctx, in)
	})
	store := NewMemoryStore()
	d := startDispatcher(t, testConfig(), flaky, store)

	require.True(t, d.SubmitTurn(context.Background(), turnRecord("t-1", 0)))
	waitProcessed(t, d, 1)

	stats := d.Stats()
	assert.Equal(t, int64(2), stats.Retried)
	assert.Zero(t, stats.Failed)
	got, _ := store.Analysis(context.Background(), "t-1")
	require.NotNil(t, got)
}

func TestDispatcher_FailedFeedbackIsRecovered(t *testing.T) {
	var broken atomic.Bool
	broken.Store(true)
	a := agent.Func[agent.AnalyticsInput, domain.FeedbackAnalysis](func(ctx context.Context, in agent.AnalyticsInput) (domain.FeedbackAnalysis, error) {
		if broken.Load() {
			return domain.FeedbackAnalysis{}, errors.New("down")
		}
		return agent.NewLocalAnalytics().Invoke(ctx, in)
	})
	store := NewMemoryStore()
	d := startDispatcher(t, testConfig(), a, store)
	ctx := context.Background()

	require.NoError(t, d.SubmitFeedback(ctx, domain.FeedbackEvent{TurnID: "t-9", CSATScore: 5, SubmittedAt: time.Now()}))
	require.Eventually(t, func() bool { return d.Stats().Failed == 1 }, 2*time.Second, 5*time.Millisecond)

	pending, err := store.PendingFeedback(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1, "failed event stays journaled")

	broken.Store(false)
	n, err := d.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	waitProcessed(t, d, 1)

	got, _ := store.Analysis(ctx, "t-9")
	require.NotNil(t, got)
	require.NotNil(t, got.CSATScore)
	assert.Equal(t, 5.0, *got.CSATScore)
}

func TestDispatcher_RecoverUnanalyzedTurns(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.RecordTurn(ctx, turnRecord("t-1", 0.1)))
	require.NoError(t, store.RecordTurn(ctx, turnRecord("t-2", 0.2)))
	require.NoError(t, store.UpsertTurnAnalysis(ctx, domain.FeedbackAnalysis{TurnID: "t-1", ConversationID: "c-1"}))
	require.NoError(t, store.RecordTurn(ctx, turnRecord("t-1", 0.1)), "already analyzed turns are not recorded again")

	d := startDispatcher(t, testConfig(), agent.NewLocalAnalytics(), store)
	n, err := d.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	waitProcessed(t, d, 1)

	left, err := store.UnanalyzedTurns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestDispatcher_DroppedTurnIsRecovered(t *testing.T) {
	store := NewMemoryStore()
	d := NewDispatcher(config.FeedbackConfig{QueueSize: 1, Workers: 1, MaxAttempts: 1}, time.Second, agent.NewLocalAnalytics(), store, store, silentLog())
	ctx := context.Background()

	require.True(t, d.SubmitTurn(ctx, turnRecord("t-1", 0.1)))
	require.False(t, d.SubmitTurn(ctx, turnRecord("t-2", 0.2)), "queue is full")

	d.Start(ctx)
	t.Cleanup(func() { _ = d.Stop(context.Background()) })
	waitProcessed(t, d, 1)

	left, err := store.UnanalyzedTurns(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "t-2", left[0].Turn.ID)

	n, err := d.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	waitProcessed(t, d, 2)

	got, err := store.Analysis(ctx, "t-2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "c-1", got.ConversationID)

	left, err = store.UnanalyzedTurns(ctx)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestDispatcher_SweepRequeuesDroppedTurns(t *testing.T) {
	store := NewMemoryStore()
	cfg := config.FeedbackConfig{QueueSize: 1, Workers: 1, MaxAttempts: 1, RecoverInterval: 10 * time.Millisecond}
	d := NewDispatcher(cfg, time.Second, agent.NewLocalAnalytics(), store, store, silentLog())
	ctx := context.Background()

	require.True(t, d.SubmitTurn(ctx, turnRecord("t-1", 0.1)))
	require.False(t, d.SubmitTurn(ctx, turnRecord("t-2", 0.2)))

	d.Start(ctx)
	t.Cleanup(func() { _ = d.Stop(context.Background()) })

	require.Eventually(t, func() bool {
		got, _ := store.Analysis(ctx, "t-2")
		return got != nil
	}, 2*time.Second, 5*time.Millisecond, "dropped turn is picked up without a restart")
}

func TestDispatcher_DropsNewestWhenFull(t *testing.T) {
	store := NewMemoryStore()
	// Not started: nothing drains the queue.
	d := NewDispatcher(config.FeedbackConfig{QueueSize: 2, Workers: 1, MaxAttempts: 1}, time.Second, agent.NewLocalAnalytics(), store, store, silentLog())
	ctx := context.Background()

	assert.True(t, d.SubmitTurn(ctx, turnRecord("t-1", 0)))
	assert.True(t, d.SubmitTurn(ctx, turnRecord("t-2", 0)))
	assert.False(t, d.SubmitTurn(ctx, turnRecord("t-3", 0)))

	require.NoError(t, d.SubmitFeedback(ctx, domain.FeedbackEvent{TurnID: "t-1", CSATScore: 3, SubmittedAt: time.Now()}),
		"feedback is journaled even when the queue drops it")

	stats := d.Stats()
	assert.Equal(t, int64(2), stats.Enqueued)
	assert.Equal(t, int64(2), stats.Dropped)
	assert.Equal(t, 2, stats.Pending)

	pending, err := store.PendingFeedback(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	require.NoError(t, d.Stop(ctx))
	assert.ErrorIs(t, d.SubmitFeedback(ctx, domain.FeedbackEvent{TurnID: "t-1", CSATScore: 3}), ErrStopped)
	assert.False(t, d.SubmitTurn(ctx, turnRecord("t-4", 0)))
}

func TestDispatcher_StopDrainsQueue(t *testing.T) {
	store := NewMemoryStore()
	d := NewDispatcher(testConfig(), time.Second, agent.NewLocalAnalytics(), store, store, silentLog())
	ctx := context.Background()
	for _, id := range []string{"t-1", "t-2", "t-3"} {
		require.True(t, d.SubmitTurn(ctx, turnRecord(id, 0)))
	}

	d.Start(ctx)
	require.NoError(t, d.Stop(ctx))
	assert.Equal(t, int64(3), d.Stats().Processed)
	require.NoError(t, d.Stop(ctx), "second stop is a no-op")
}

func TestDispatcher_EmitsFeedbackProcessed(t *testing.T) {
	store := NewMemoryStore()
	h := hooks.NewManager(silentLog())
	var got atomic.Value
	h.On(hooks.EventFeedbackProcessed, "test", func(_ context.Context, p hooks.Payload) error {
		got.Store(p.String("turnId"))
		return nil
	})

	d := NewDispatcher(testConfig(), time.Second, agent.NewLocalAnalytics(), store, store, silentLog())
	d.SetHooks(h)
	d.Start(context.Background())
	defer func() { _ = d.Stop(context.Background()) }()

	require.NoError(t, d.SubmitFeedback(context.Background(), domain.FeedbackEvent{TurnID: "t-7", CSATScore: 4, SubmittedAt: time.Now()}))
	waitProcessed(t, d, 1)
	assert.Equal(t, "t-7", got.Load())
}

func TestMemoryStore_MarkProcessedIgnoresSuperseded(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	first := domain.FeedbackEvent{TurnID: "t-1", CSATScore: 2, SubmittedAt: time.Unix(100, 0)}
	second := domain.FeedbackEvent{TurnID: "t-1", CSATScore: 5, SubmittedAt: time.Unix(200, 0)}

	require.NoError(t, store.RecordFeedback(ctx, first))
	require.NoError(t, store.RecordFeedback(ctx, second))
	require.NoError(t, store.MarkProcessed(ctx, first))

	pending, err := store.PendingFeedback(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 5.0, pending[0].CSATScore)
}
