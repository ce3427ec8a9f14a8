package plugin

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/hooks"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/logging"
)

// Registry manages plugin lifecycle.
type Registry struct {
	mu          sync.RWMutex
	plugins     map[string]Plugin
	order       []string // insertion order for deterministic lifecycle
	initialized []string
	hooks       *hooks.Manager
	log         *logging.Logger
}

// NewRegistry creates a plugin registry.
func NewRegistry(hm *hooks.Manager, log *logging.Logger) *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
		hooks:   hm,
		log:     log.Sub("plugins"),
	}
}

// Register adds a plugin to the registry without initializing it.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[p.ID()]; exists {
		return fmt.Errorf("plugin already registered: %s", p.ID())
	}

	r.plugins[p.ID()] = p
	r.order = append(r.order, p.ID())

	r.log.Info().
		Str("id", p.ID()).
		Str("name", p.Name()).
		Str("version", p.Version()).
		Msg("plugin registered")

	return nil
}

// InitAll initializes registered plugins in registration order. If one
// fails, the plugins already initialized are closed again.
func (r *Registry) InitAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		if slices.Contains(r.initialized, id) {
			continue
		}
		p := r.plugins[id]
		api := API{
			Hooks: r.hooks,
			Log:   r.log.Sub(id),
		}

		r.log.Info().Str("id", id).Msg("initializing plugin")
		if err := p.Init(ctx, api); err != nil {
			r.closeLocked()
			return fmt.Errorf("init plugin %s: %w", id, err)
		}
		r.initialized = append(r.initialized, id)
	}
	return nil
}

// CloseAll shuts down initialized plugins in reverse order.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

func (r *Registry) closeLocked() {
	for i := len(r.initialized) - 1; i >= 0; i-- {
		id := r.initialized[i]
		r.log.Info().Str("id", id).Msg("closing plugin")
		if err := r.plugins[id].Close(); err != nil {
			r.log.Error().Err(err).Str("id", id).Msg("plugin close error")
		}
	}
	r.initialized = nil
}

// Get returns a plugin by ID, or nil if not found.
func (r *Registry) Get(id string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.plugins[id]
}

// List returns plugin IDs in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Info returns summary information about all registered plugins.
func (r *Registry) Info() []PluginInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]PluginInfo, 0, len(r.order))
	for _, id := range r.order {
		p := r.plugins[id]
		infos = append(infos, PluginInfo{
			ID:          p.ID(),
			Name:        p.Name(),
			Version:     p.Version(),
			Initialized: slices.Contains(r.initialized, id),
		})
	}
	return infos
}

// PluginInfo holds summary data about a plugin.
type PluginInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Initialized bool   `json:"initialized"`
}
