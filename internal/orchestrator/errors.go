package orchestrator

import (
	"errors"
	"fmt"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
)

var (
	// ErrIntentUnavailable fails a request whose intent stage produced nothing.
	ErrIntentUnavailable = errors.New("intent stage unavailable")
	// ErrContextConflict means the conversation kept changing underneath the
	// request until the retry budget ran out. Callers may resubmit.
	ErrContextConflict = errors.New("conversation updated concurrently")
	// ErrContextStoreUnavailable wraps storage failures on the request path.
	ErrContextStoreUnavailable = errors.New("context store unavailable")
	// ErrInvalidRequest rejects malformed input before any stage runs.
	ErrInvalidRequest = errors.New("invalid request")
)

// PipelineError is a fatal stage failure. It carries the stage logs and the
// configured fallback text so transports can report what happened without
// returning a partial response.
type PipelineError struct {
	Stage        domain.Stage
	Logs         map[domain.Stage]domain.StageLog
	FallbackText string
	Err          error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline %s stage: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// IsRetryable reports whether resubmitting the same request may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrContextConflict)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
