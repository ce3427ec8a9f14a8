// Package handoff keeps the queue of escalated conversations waiting for a
// human agent. It runs as a plugin: escalation_triggered opens a handoff and
// conversation_resolved closes it.
package handoff

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/hooks"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/logging"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/plugin"
)

// Queue stores handoffs. A conversation has at most one open handoff.
type Queue interface {
	// Enqueue reports false when the conversation already has one open.
	Enqueue(ctx context.Context, h domain.Handoff) (bool, error)
	// Close reports false when there was nothing open.
	Close(ctx context.Context, conversationID string) (bool, error)
	ListOpen(ctx context.Context) ([]domain.Handoff, error)
}

// Plugin wires a Queue to the lifecycle hooks.
type Plugin struct {
	queue Queue
	hooks *hooks.Manager
	log   *logging.Logger
	now   func() time.Time
}

var _ plugin.Plugin = (*Plugin)(nil)

// New creates the handoff plugin over q.
func New(q Queue) *Plugin {
	return &Plugin{
		queue: q,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (p *Plugin) ID() string      { return "handoff" }
func (p *Plugin) Name() string    { return "Human handoff queue" }
func (p *Plugin) Version() string { return "1.0.0" }

// Queue returns the underlying queue for listing.
func (p *Plugin) Queue() Queue { return p.queue }

func (p *Plugin) Init(_ context.Context, api plugin.API) error {
	p.hooks = api.Hooks
	p.log = api.Log
	api.Hooks.On(hooks.EventEscalationTriggered, p.ID(), p.onEscalation)
	api.Hooks.On(hooks.EventConversationResolved, p.ID(), p.onResolved)
	return nil
}

func (p *Plugin) Close() error {
	if p.hooks != nil {
		p.hooks.Off(hooks.EventEscalationTriggered, p.ID())
		p.hooks.Off(hooks.EventConversationResolved, p.ID())
	}
	return nil
}

func (p *Plugin) onEscalation(ctx context.Context, pl hooks.Payload) error {
	convID := pl.String("conversationId")
	if convID == "" {
		return fmt.Errorf("escalation event without conversationId")
	}
	h := domain.Handoff{
		ID:             uuid.New().String(),
		ConversationID: convID,
		CustomerID:     pl.String("customerId"),
		Channel:        pl.String("channel"),
		TurnID:         pl.String("turnId"),
		Reason:         domain.EscalationReason(pl.String("reason")),
		CreatedAt:      p.now(),
	}
	created, err := p.queue.Enqueue(ctx, h)
	if err != nil {
		return err
	}
	if created {
		p.log.Info().
			Str("conversationId", convID).
			Str("reason", string(h.Reason)).
			Msg("handoff opened")
	}
	return nil
}

func (p *Plugin) onResolved(ctx context.Context, pl hooks.Payload) error {
	convID := pl.String("conversationId")
	closed, err := p.queue.Close(ctx, convID)
	if err != nil {
		return err
	}
	if closed {
		p.log.Info().Str("conversationId", convID).Msg("handoff closed")
	}
	return nil
}

// MemoryQueue is an in-process Queue.
type MemoryQueue struct {
	mu   sync.Mutex
	open []domain.Handoff
}

func NewMemoryQueue() *MemoryQueue { return &MemoryQueue{} }

func (m *MemoryQueue) Enqueue(_ context.Context, h domain.Handoff) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexLocked(h.ConversationID) >= 0 {
		return false, nil
	}
	m.open = append(m.open, h)
	return true, nil
}

func (m *MemoryQueue) Close(_ context.Context, conversationID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexLocked(conversationID)
	if i < 0 {
		return false, nil
	}
	m.open = slices.Delete(m.open, i, i+1)
	return true, nil
}

func (m *MemoryQueue) ListOpen(context.Context) ([]domain.Handoff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.open)
	if out == nil {
		out = []domain.Handoff{}
	}
	return out, nil
}

func (m *MemoryQueue) indexLocked(conversationID string) int {
	return slices.IndexFunc(m.open, func(h domain.Handoff) bool { return h.ConversationID == conversationID })
}
