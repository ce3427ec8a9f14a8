// Package orchestrator turns one customer message into a unified response:
// it runs the stage pipeline, evaluates escalation against the conversation
// context and commits the turn with the updated counters in one conditional
// write.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/agent"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/escalation"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/hooks"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/logging"
)

// FeedbackSink receives committed turns and customer feedback for
// asynchronous analytics. Implementations must not block the caller.
type FeedbackSink interface {
	SubmitTurn(ctx context.Context, rec domain.TurnRecord) bool
	SubmitFeedback(ctx context.Context, ev domain.FeedbackEvent) error
}

// AnalyticsReader returns the analytics row for a turn, or nil when none
// has been written yet.
type AnalyticsReader interface {
	Analysis(ctx context.Context, turnID string) (*domain.FeedbackAnalysis, error)
}

const defaultConflictRetries = 2

// Service is the synchronous request path.
type Service struct {
	store     ContextStore
	exec      *Executor
	policy    *escalation.PolicyHolder
	feedback  FeedbackSink
	analytics AnalyticsReader
	hooks     hooks.Emitter
	locks     *keyLock
	retries   int
	newID     func() string
	now       func() time.Time
	log       *logging.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithFeedback hands committed turns to sink after every response.
func WithFeedback(sink FeedbackSink) Option {
	return func(s *Service) { s.feedback = sink }
}

// WithAnalytics lets Interaction attach the stored feedback analysis.
func WithAnalytics(r AnalyticsReader) Option {
	return func(s *Service) { s.analytics = r }
}

// WithHooks publishes lifecycle events through e.
func WithHooks(e hooks.Emitter) Option {
	return func(s *Service) { s.hooks = e }
}

// WithConflictRetries bounds the full-pipeline re-runs after a version conflict.
func WithConflictRetries(n int) Option {
	return func(s *Service) { s.retries = max(n, 0) }
}

// WithSerialization toggles the per-conversation lock. Without it, concurrent
// requests for one conversation rely on the version check alone.
func WithSerialization(on bool) Option {
	return func(s *Service) {
		if on {
			s.locks = newKeyLock()
		} else {
			s.locks = nil
		}
	}
}

// WithClock overrides time.Now for turn timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides turn id generation.
func WithIDGenerator(f func() string) Option {
	return func(s *Service) { s.newID = f }
}

// NewService creates the orchestration service.
func NewService(store ContextStore, exec *Executor, policy *escalation.PolicyHolder, log *logging.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		exec:    exec,
		policy:  policy,
		locks:   newKeyLock(),
		retries: defaultConflictRetries,
		newID:   uuid.NewString,
		now:     func() time.Time { return time.Now().UTC() },
		log:     log.Sub("escalation"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle processes one customer message end to end.
//
// The escalation policy is read once up front so a reload mid-request never
// changes the thresholds this request is judged by. On a version conflict
// the whole pipeline re-runs against a fresh read, up to the retry bound,
// after which ErrContextConflict is returned. Fatal errors return no
// response at all.
func (s *Service) Handle(ctx context.Context, req domain.InteractionRequest) (*domain.UnifiedResponse, error) {
	if err := validateRequest(&req); err != nil {
		return nil, err
	}

	c, err := s.commitTurn(ctx, req)
	if err != nil {
		return nil, err
	}
	resp := Aggregate(c.after, c.turn)
	s.afterCommit(ctx, c)
	return &resp, nil
}

// commit is one turn as it was written to the store.
type commit struct {
	before *domain.Conversation
	after  *domain.Conversation
	turn   domain.Turn
	out    escalation.Outcome
}

// commitTurn holds the conversation lock from the first read to the
// conditional write and nothing longer.
func (s *Service) commitTurn(ctx context.Context, req domain.InteractionRequest) (*commit, error) {
	policy := s.policy.Policy()
	log := s.log.With("conversationId", req.ConversationID)

	unlock, err := s.lock(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	for attempt := 0; attempt <= s.retries; attempt++ {
		conv, err := s.store.GetOrCreate(ctx, req.Key())
		if err != nil {
			return nil, storeError(err)
		}

		res, err := s.exec.Run(ctx, req, agent.NewSnapshot(conv))
		if err != nil {
			return nil, err
		}

		out := escalation.Evaluate(policy, conv, escalation.Signals{
			Intent:           res.Intent.Intent,
			SentimentScore:   res.Emotion.SentimentScore,
			DominantEmotion:  res.Emotion.DominantEmotion,
			EmotionDegraded:  res.Logs[domain.StageEmotion].Degraded,
			Alerts:           res.Alerts,
			ResolutionSignal: req.Resolved,
		})
		out.Update.Language = res.Language

		turn := BuildTurn(s.newID(), s.now(), req, res, out)
		committed, err := s.store.AppendTurn(ctx, conv.ID, turn, out.Update, conv.Version)
		if errors.Is(err, domain.ErrVersionConflict) {
			log.Warn().Int("attempt", attempt+1).Int64("version", conv.Version).Msg("version conflict, re-running pipeline")
			continue
		}
		if err != nil {
			return nil, storeError(err)
		}
		return &commit{before: conv, after: committed, turn: findTurn(committed, turn), out: out}, nil
	}

	log.Error().Int("attempts", s.retries+1).Msg("giving up after repeated version conflicts")
	return nil, fmt.Errorf("%w after %d attempts", ErrContextConflict, s.retries+1)
}

// findTurn returns the stored copy of built from conv, which carries the
// sequence number the store assigned.
func findTurn(conv *domain.Conversation, built domain.Turn) domain.Turn {
	for i := len(conv.Turns) - 1; i >= 0; i-- {
		if conv.Turns[i].ID == built.ID {
			return conv.Turns[i]
		}
	}
	return built
}

// afterCommit runs the post-response work. Nothing here can fail the
// request, and nothing here waits on hook handlers or analytics.
func (s *Service) afterCommit(ctx context.Context, c *commit) {
	after, turn := c.after, c.turn
	log := s.log.With("conversationId", after.ID)

	if c.out.Reopened {
		log.Info().Str("turnId", turn.ID).Msg("conversation reopened after resolution")
	}
	s.emit(ctx, after.ID, hooks.EventTurnCommitted, map[string]any{
		"conversationId":  after.ID,
		"turnId":          turn.ID,
		"intent":          string(turn.Intent),
		"escalationState": string(after.EscalationState),
	})
	if c.out.Triggered {
		log.Warn().
			Str("turnId", turn.ID).
			Str("reason", string(turn.Escalation.Reason)).
			Msg("conversation escalated")
		s.emit(ctx, after.ID, hooks.EventEscalationTriggered, map[string]any{
			"conversationId": after.ID,
			"customerId":     after.CustomerID,
			"channel":        after.Channel,
			"turnId":         turn.ID,
			"reason":         string(turn.Escalation.Reason),
		})
	}

	if s.feedback == nil {
		return
	}
	prior := make([]float64, 0, len(c.before.Turns))
	for _, t := range c.before.Turns {
		prior = append(prior, t.SentimentScore)
	}
	rec := domain.TurnRecord{
		ConversationID:  after.ID,
		CustomerID:      after.CustomerID,
		Channel:         after.Channel,
		Turn:            turn,
		PriorSentiments: prior,
		EscalationState: after.EscalationState,
	}
	// The dispatcher must outlive the request; never hand it ctx.
	if !s.feedback.SubmitTurn(context.WithoutCancel(ctx), rec) {
		log.Debug().Str("turnId", turn.ID).Msg("turn not queued for analytics")
	}
}

// Resolve records the human resolution of an escalated conversation,
// moving it to RESOLVED and clearing both counters.
func (s *Service) Resolve(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, invalid("conversation_id is required")
	}

	updated, reason, err := s.commitResolve(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("conversationId", conversationID).
		Str("reason", string(reason)).
		Msg("conversation resolved")
	s.emit(ctx, conversationID, hooks.EventConversationResolved, map[string]any{
		"conversationId": conversationID,
		"reason":         string(reason),
	})
	return updated, nil
}

// commitResolve writes the resolution under the conversation lock and
// returns the reason the episode was opened with.
func (s *Service) commitResolve(ctx context.Context, conversationID string) (*domain.Conversation, domain.EscalationReason, error) {
	unlock, err := s.lock(ctx, conversationID)
	if err != nil {
		return nil, "", err
	}
	defer unlock()

	for attempt := 0; attempt <= s.retries; attempt++ {
		conv, err := s.store.Get(ctx, conversationID)
		if err != nil {
			return nil, "", storeError(err)
		}
		upd, err := escalation.Resolve(conv)
		if err != nil {
			return nil, "", err
		}
		updated, err := s.store.UpdateContext(ctx, conversationID, upd, conv.Version)
		if errors.Is(err, domain.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, "", storeError(err)
		}
		return updated, conv.EscalationReason, nil
	}
	return nil, "", fmt.Errorf("%w after %d attempts", ErrContextConflict, s.retries+1)
}

// Interaction rebuilds the unified response for a committed turn, with the
// feedback analysis attached when analytics has caught up.
func (s *Service) Interaction(ctx context.Context, turnID string) (*domain.UnifiedResponse, error) {
	turn, err := s.store.Turn(ctx, turnID)
	if err != nil {
		return nil, storeError(err)
	}
	conv, err := s.store.Get(ctx, turn.ConversationID)
	if err != nil {
		return nil, storeError(err)
	}

	resp := Aggregate(conv, turn)
	if s.analytics != nil {
		fa, err := s.analytics.Analysis(ctx, turnID)
		if err != nil {
			s.log.Warn().Err(err).Str("turnId", turnID).Msg("analytics lookup failed")
		}
		resp.FeedbackAnalysis = fa
	}
	return &resp, nil
}

// Conversation returns the stored context for id.
func (s *Service) Conversation(ctx context.Context, id string) (*domain.Conversation, error) {
	conv, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	return conv, nil
}

// SubmitFeedback validates a feedback event against a known turn and hands
// it to the feedback sink. It returns once the event is accepted.
func (s *Service) SubmitFeedback(ctx context.Context, ev domain.FeedbackEvent) error {
	if strings.TrimSpace(ev.TurnID) == "" {
		return invalid("turn_id is required")
	}
	if ev.CSATScore < domain.MinCSAT || ev.CSATScore > domain.MaxCSAT {
		return invalid("csat_score must be between %g and %g", domain.MinCSAT, domain.MaxCSAT)
	}
	if _, err := s.store.Turn(ctx, ev.TurnID); err != nil {
		return storeError(err)
	}
	if ev.SubmittedAt.IsZero() {
		ev.SubmittedAt = s.now()
	}
	if s.feedback == nil {
		return errors.New("feedback processing is not configured")
	}
	return s.feedback.SubmitFeedback(ctx, ev)
}

func (s *Service) lock(ctx context.Context, key string) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	return s.locks.Lock(ctx, key)
}

// emit queues event for asynchronous delivery. Events for one
// conversation reach handlers in the order they were emitted.
func (s *Service) emit(ctx context.Context, conversationID, event string, data map[string]any) {
	if s.hooks != nil {
		s.hooks.EmitAsync(context.WithoutCancel(ctx), conversationID, event, data)
	}
}

func validateRequest(req *domain.InteractionRequest) error {
	switch {
	case strings.TrimSpace(req.ConversationID) == "":
		return invalid("conversation_id is required")
	case strings.TrimSpace(req.CustomerID) == "":
		return invalid("customer_id is required")
	case strings.TrimSpace(req.Message) == "":
		return invalid("message is required")
	}
	if req.Channel == "" {
		req.Channel = domain.ChannelAPI
	}
	return nil
}

// storeError passes through not-found and cancellation errors and maps
// everything else onto ErrContextStoreUnavailable.
func storeError(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, domain.ErrConversationNotFound), errors.Is(err, domain.ErrTurnNotFound),
		errors.Is(err, domain.ErrInvalidTransition):
		return err
	}
	return fmt.Errorf("%w: %v", ErrContextStoreUnavailable, err)
}
