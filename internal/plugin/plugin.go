// Package plugin manages extensions that react to careai lifecycle events,
// such as the human handoff queue.
package plugin

import (
	"context"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/hooks"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/logging"
)

// Plugin is the interface every careai plugin implements.
type Plugin interface {
	// ID returns a unique identifier for the plugin (e.g., "handoff").
	ID() string

	// Name returns a human-readable name.
	Name() string

	// Version returns the plugin version string.
	Version() string

	// Init registers hooks and sets up resources.
	Init(ctx context.Context, api API) error

	// Close unregisters hooks and releases resources.
	Close() error
}

// API is what a plugin receives at Init.
type API struct {
	Hooks *hooks.Manager
	Log   *logging.Logger
}
