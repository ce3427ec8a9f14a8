// Package hooks dispatches careai lifecycle events to registered handlers.
package hooks

import (
	"context"
	"slices"
	"sync"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/logging"
)

// Event names for the hook system.
const (
	EventMessageReceived      = "message_received"
	EventTurnCommitted        = "turn_committed"
	EventEscalationTriggered  = "escalation_triggered"
	EventConversationResolved = "conversation_resolved"
	EventFeedbackProcessed    = "feedback_processed"
	EventGatewayStart         = "gateway_start"
	EventGatewayStop          = "gateway_stop"
)

// AllEvents lists all known hook event names.
var AllEvents = []string{
	EventMessageReceived,
	EventTurnCommitted,
	EventEscalationTriggered,
	EventConversationResolved,
	EventFeedbackProcessed,
	EventGatewayStart,
	EventGatewayStop,
}

// Payload carries event data to hook handlers.
type Payload struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// String returns Data[key] as a string, or "" when absent.
func (p Payload) String(key string) string {
	s, _ := p.Data[key].(string)
	return s
}

// Handler handles a hook event. A returned error is logged and does not
// stop the remaining handlers.
type Handler func(ctx context.Context, p Payload) error

// Emitter is the publishing side of Manager.
type Emitter interface {
	Emit(ctx context.Context, event string, data map[string]any)
	EmitAsync(ctx context.Context, key, event string, data map[string]any)
}

// Manager holds hook registrations and dispatches events.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	inflight sync.WaitGroup
	log      *logging.Logger

	// tails holds, per ordering key, the done channel of the most recently
	// queued async event.
	tailMu sync.Mutex
	tails  map[string]chan struct{}
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		tails:    make(map[string]chan struct{}),
		log:      log.Sub("hooks"),
	}
}

// On registers a handler for the given event under name.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Off removes every handler registered as name for the event.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = slices.DeleteFunc(m.handlers[event], func(h namedHandler) bool {
		return h.name == name
	})
}

func (m *Manager) snapshot(event string) []namedHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.handlers[event])
}

// Emit calls every handler for the event in registration order.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}

	payload := Payload{Event: event, Data: data}
	for _, h := range handlers {
		m.call(ctx, h, payload)
	}
}

// EmitAsync dispatches the event on a background goroutine and returns at
// once. Handlers for one event run in registration order. Events emitted
// with the same non-empty key are delivered in emission order; events with
// different keys, or no key, do not wait for each other. The handler list
// is captured at emit time.
func (m *Manager) EmitAsync(ctx context.Context, key, event string, data map[string]any) {
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}

	done := make(chan struct{})
	var prev chan struct{}
	if key != "" {
		m.tailMu.Lock()
		prev = m.tails[key]
		m.tails[key] = done
		m.tailMu.Unlock()
	}

	payload := Payload{Event: event, Data: data}
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		if prev != nil {
			<-prev
		}
		for _, h := range handlers {
			m.call(ctx, h, payload)
		}
		close(done)
		if key != "" {
			m.tailMu.Lock()
			if m.tails[key] == done {
				delete(m.tails, key)
			}
			m.tailMu.Unlock()
		}
	}()
}

// Wait blocks until every event queued by EmitAsync has been delivered.
func (m *Manager) Wait() { m.inflight.Wait() }

func (m *Manager) call(ctx context.Context, h namedHandler, p Payload) {
	if err := h.handler(ctx, p); err != nil {
		m.log.Warn().
			Err(err).
			Str("event", p.Event).
			Str("handler", h.name).
			Msg("hook handler error")
	}
}

// Count returns the number of handlers registered for an event.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Events returns the sorted events that have at least one handler.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]string, 0, len(m.handlers))
	for event, handlers := range m.handlers {
		if len(handlers) > 0 {
			events = append(events, event)
		}
	}
	slices.Sort(events)
	return events
}
