package agent

import (
	"context"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/logging"
)

// Failover tries the primary adapter and, on a retryable error, the
// fallback. Non-retryable errors are returned as is.
type Failover[In, Out any] struct {
	name     string
	primary  Adapter[In, Out]
	fallback Adapter[In, Out]
	log      *logging.Logger
}

// NewFailover creates a failover adapter for the named stage.
func NewFailover[In, Out any](name string, primary, fallback Adapter[In, Out], log *logging.Logger) *Failover[In, Out] {
	return &Failover[In, Out]{
		name:     name,
		primary:  primary,
		fallback: fallback,
		log:      log.Sub("failover"),
	}
}

func (f *Failover[In, Out]) Invoke(ctx context.Context, in In) (Out, error) {
	out, err := f.primary.Invoke(ctx, in)
	if err == nil {
		return out, nil
	}

	// Out of time: the fallback would fail the same way.
	if ctx.Err() != nil || !IsRetryable(err) {
		return out, err
	}

	f.log.Warn().
		Str("stage", f.name).
		Err(err).
		Msg("retryable agent error, using local fallback")
	return f.fallback.Invoke(ctx, in)
}
