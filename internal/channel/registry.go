// Package channel manages the messaging integrations customers reach
// support through.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/logging"
)

// ErrDuplicate is returned when a channel ID is registered twice.
var ErrDuplicate = errors.New("channel already registered")

// Registry manages a set of messaging channels.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]domain.Channel
	running  sync.WaitGroup
	log      *logging.Logger
}

// NewRegistry creates a channel registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		channels: make(map[string]domain.Channel),
		log:      log.Sub("channels"),
	}
}

// Register adds a channel to the registry.
func (r *Registry) Register(ch domain.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[ch.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, ch.ID())
	}
	r.channels[ch.ID()] = ch
	r.log.Info().Str("channel", ch.ID()).Str("kind", ch.Kind()).Msg("channel registered")
	return nil
}

// Get returns a channel by ID.
func (r *Registry) Get(id string) (domain.Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[id]
	return ch, ok
}

// List returns the sorted channel IDs.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Status returns the status of all registered channels, sorted by ID.
func (r *Registry) Status() []domain.ChannelStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	statuses := make([]domain.ChannelStatus, 0, len(r.channels))
	for _, ch := range r.channels {
		if sc, ok := ch.(interface{ Status() domain.ChannelStatus }); ok {
			statuses = append(statuses, sc.Status())
		} else {
			statuses = append(statuses, domain.ChannelStatus{
				ChannelID: ch.ID(),
				Kind:      ch.Kind(),
				Running:   true,
			})
		}
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ChannelID < statuses[j].ChannelID })
	return statuses
}

// StartAll starts all registered channels in background goroutines.
// Channel Start methods may block (e.g. IRC's Connect), so each is
// launched concurrently to avoid preventing subsequent initialization.
func (r *Registry) StartAll(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, ch := range r.channels {
		r.log.Info().Str("channel", id).Msg("starting channel")
		r.running.Add(1)
		go func() {
			defer r.running.Done()
			if err := ch.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.log.Error().Err(err).Str("channel", id).Msg("channel exited with error")
			}
		}()
	}
}

// StopAll stops all registered channels and waits for their Start calls
// to return, or for ctx to expire.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.RLock()
	for id, ch := range r.channels {
		r.log.Info().Str("channel", id).Msg("stopping channel")
		if err := ch.Stop(ctx); err != nil {
			r.log.Error().Err(err).Str("channel", id).Msg("failed to stop channel")
		}
	}
	r.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		r.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Count returns the number of registered channels.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
