// Package feedback runs post-response analytics off the request path: a
// bounded queue feeds a worker pool that calls the analytics agent and
// upserts the per-turn analytics row.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/agent"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/config"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/hooks"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/logging"
)

// ErrStopped is returned for submissions after Stop.
var ErrStopped = errors.New("feedback dispatcher stopped")

// Stats are cumulative dispatcher counters.
type Stats struct {
	Enqueued  int64 `json:"enqueued"`
	Processed int64 `json:"processed"`
	Dropped   int64 `json:"dropped"`
	Retried   int64 `json:"retried"`
	Failed    int64 `json:"failed"`
	Pending   int   `json:"pending"`
}

// Dispatcher delivers turn records and feedback events to the analytics
// agent at least once. Submit never blocks: a full queue drops the newest
// event with a warning, and the journal brings it back on the next Recover.
type Dispatcher struct {
	analytics agent.Adapter[agent.AnalyticsInput, domain.FeedbackAnalysis]
	store     AnalyticsStore
	journal   Journal
	hooks     hooks.Emitter

	queue        chan agent.AnalyticsInput
	workers      int
	maxAttempts  int
	backoff      time.Duration
	timeout      time.Duration
	recoverEvery time.Duration

	mu       sync.RWMutex
	stopped  bool
	stopping chan struct{}
	cancel   context.CancelFunc
	group    *errgroup.Group

	enqueued, processed, dropped, retried, failed atomic.Int64

	log *logging.Logger
}

// NewDispatcher creates a dispatcher. timeout bounds each analytics call.
func NewDispatcher(cfg config.FeedbackConfig, timeout time.Duration, analytics agent.Adapter[agent.AnalyticsInput, domain.FeedbackAnalysis], store AnalyticsStore, journal Journal, log *logging.Logger) *Dispatcher {
	return &Dispatcher{
		analytics:    analytics,
		store:        store,
		journal:      journal,
		queue:        make(chan agent.AnalyticsInput, max(cfg.QueueSize, 1)),
		workers:      max(cfg.Workers, 1),
		maxAttempts:  max(cfg.MaxAttempts, 1),
		backoff:      cfg.Backoff,
		timeout:      timeout,
		recoverEvery: cfg.RecoverInterval,
		stopping:     make(chan struct{}),
		log:          log.Sub("feedback"),
	}
}

// SetHooks publishes feedback_processed after each persisted feedback event.
func (d *Dispatcher) SetHooks(e hooks.Emitter) { d.hooks = e }

// Start launches the worker pool. Workers stop when ctx is cancelled or
// Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	d.mu.Lock()
	d.cancel = cancel
	d.group = g
	d.mu.Unlock()

	for i := range d.workers {
		g.Go(func() error {
			d.work(ctx, i)
			return nil
		})
	}
	if d.recoverEvery > 0 {
		g.Go(func() error {
			d.sweep(ctx)
			return nil
		})
	}
	d.log.Info().Int("workers", d.workers).Int("queue", cap(d.queue)).Msg("feedback dispatcher started")
}

// Stop refuses new submissions, lets the workers drain what is already
// queued, and waits for them. Items cut short by ctx stay in the journal.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.stopping)
	close(d.queue)
	g, cancel := d.group, d.cancel
	d.mu.Unlock()

	if g == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		cancel()
		return err
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

// SubmitTurn queues a committed turn for analytics. Journals that keep no
// turns of their own get the record first, so Recover can find it after a
// drop.
func (d *Dispatcher) SubmitTurn(ctx context.Context, rec domain.TurnRecord) bool {
	d.mu.RLock()
	stopped := d.stopped
	d.mu.RUnlock()
	if stopped {
		return false
	}

	if tj, ok := d.journal.(TurnJournal); ok {
		if err := tj.RecordTurn(ctx, rec); err != nil {
			d.log.Warn().Err(err).Str("turnId", rec.Turn.ID).Msg("failed to journal turn")
		}
	}
	return d.enqueue(agent.AnalyticsInput{Turn: &rec})
}

// SubmitFeedback journals the event, then queues it. Once it returns nil
// the event will be processed even if the queue dropped it.
func (d *Dispatcher) SubmitFeedback(ctx context.Context, ev domain.FeedbackEvent) error {
	d.mu.RLock()
	stopped := d.stopped
	d.mu.RUnlock()
	if stopped {
		return ErrStopped
	}

	if err := d.journal.RecordFeedback(ctx, ev); err != nil {
		return fmt.Errorf("failed to journal feedback: %w", err)
	}
	d.enqueue(agent.AnalyticsInput{Feedback: &ev})
	return nil
}

func (d *Dispatcher) enqueue(in agent.AnalyticsInput) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return false
	}

	select {
	case d.queue <- in:
		d.enqueued.Add(1)
		return true
	default:
		d.dropped.Add(1)
		d.log.Warn().Str("turnId", in.Key()).Int("queue", cap(d.queue)).Msg("feedback queue full, dropping newest event")
		return false
	}
}

// Recover re-queues journaled feedback that was never processed and
// committed turns that have no analytics row. Call it after Start; it
// waits for queue space rather than dropping.
func (d *Dispatcher) Recover(ctx context.Context) (int, error) {
	pending, err := d.journal.PendingFeedback(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending feedback: %w", err)
	}
	turns, err := d.journal.UnanalyzedTurns(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list unanalyzed turns: %w", err)
	}

	inputs := make([]agent.AnalyticsInput, 0, len(turns)+len(pending))
	for i := range turns {
		inputs = append(inputs, agent.AnalyticsInput{Turn: &turns[i]})
	}
	for i := range pending {
		inputs = append(inputs, agent.AnalyticsInput{Feedback: &pending[i]})
	}

	n := 0
	for _, in := range inputs {
		if err := d.enqueueWait(ctx, in); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		d.log.Info().Int("turns", len(turns)).Int("feedback", len(pending)).Msg("recovered undelivered analytics work")
	}
	return n, nil
}

// sweep re-runs Recover while the dispatcher is up, but only after
// something was dropped or failed since the previous pass.
func (d *Dispatcher) sweep(ctx context.Context) {
	t := time.NewTicker(d.recoverEvery)
	defer t.Stop()

	var seen int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopping:
			return
		case <-t.C:
		}

		lost := d.dropped.Load() + d.failed.Load()
		if lost == seen {
			continue
		}
		if _, err := d.Recover(ctx); err != nil {
			if !errors.Is(err, ErrStopped) && ctx.Err() == nil {
				d.log.Warn().Err(err).Msg("recovery sweep failed")
			}
			continue
		}
		seen = lost
	}
}

func (d *Dispatcher) enqueueWait(ctx context.Context, in agent.AnalyticsInput) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}
	select {
	case d.queue <- in:
		d.enqueued.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Enqueued:  d.enqueued.Load(),
		Processed: d.processed.Load(),
		Dropped:   d.dropped.Load(),
		Retried:   d.retried.Load(),
		Failed:    d.failed.Load(),
		Pending:   len(d.queue),
	}
}

func (d *Dispatcher) work(ctx context.Context, id int) {
	log := d.log.With("worker", fmt.Sprint(id))
	for {
		select {
		case <-ctx.Done():
			return
		case in, ok := <-d.queue:
			if !ok {
				return
			}
			if err := d.deliver(ctx, in); err != nil {
				if ctx.Err() != nil {
					return
				}
				d.failed.Add(1)
				log.Error().Err(err).Str("turnId", in.Key()).Msg("analytics delivery failed, left for recovery")
				continue
			}
			d.processed.Add(1)
		}
	}
}

// deliver retries with exponential backoff until maxAttempts.
func (d *Dispatcher) deliver(ctx context.Context, in agent.AnalyticsInput) error {
	var err error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if err = d.process(ctx, in); err == nil {
			return nil
		}
		if attempt == d.maxAttempts || ctx.Err() != nil {
			break
		}

		d.retried.Add(1)
		wait := d.backoff << (attempt - 1)
		d.log.Debug().Err(err).Str("turnId", in.Key()).Int("attempt", attempt).Dur("backoff", wait).Msg("retrying analytics")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func (d *Dispatcher) process(ctx context.Context, in agent.AnalyticsInput) error {
	callCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	fa, err := d.analytics.Invoke(callCtx, in)
	if err != nil {
		return err
	}

	// The row timestamp comes from the input so that re-delivery, local or
	// remote, writes an identical row.
	switch {
	case in.Turn != nil:
		fa.UpdatedAt = in.Turn.Turn.Timestamp
		if fa.TurnID == "" {
			fa.TurnID = in.Turn.Turn.ID
		}
		if fa.ConversationID == "" {
			fa.ConversationID = in.Turn.ConversationID
		}
		return d.store.UpsertTurnAnalysis(ctx, fa)

	case in.Feedback != nil:
		fa.UpdatedAt = in.Feedback.SubmittedAt
		if fa.TurnID == "" {
			fa.TurnID = in.Feedback.TurnID
		}
		if err := d.store.UpsertFeedbackAnalysis(ctx, fa); err != nil {
			return err
		}
		if err := d.journal.MarkProcessed(ctx, *in.Feedback); err != nil {
			return err
		}
		if d.hooks != nil {
			d.hooks.Emit(ctx, hooks.EventFeedbackProcessed, map[string]any{
				"turnId": fa.TurnID,
				"csat":   in.Feedback.CSATScore,
			})
		}
	}
	return nil
}
