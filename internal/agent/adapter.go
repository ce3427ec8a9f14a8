// Package agent defines the stage agent contract and its implementations:
// local rule-based agents, remote HTTP agents and the wrappers that cap,
// fail over and combine them.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
)

// Adapter is the uniform call contract every stage agent implements.
type Adapter[In, Out any] interface {
	Invoke(ctx context.Context, in In) (Out, error)
}

// Func adapts a plain function to Adapter.
type Func[In, Out any] func(ctx context.Context, in In) (Out, error)

func (f Func[In, Out]) Invoke(ctx context.Context, in In) (Out, error) { return f(ctx, in) }

// Set groups one adapter per stage.
type Set struct {
	Intent    Adapter[IntentInput, IntentOutput]
	Knowledge Adapter[KnowledgeInput, KnowledgeOutput]
	Emotion   Adapter[EmotionInput, EmotionOutput]
	Anomaly   Adapter[AnomalyInput, AnomalyOutput]
	Analytics Adapter[AnalyticsInput, domain.FeedbackAnalysis]
}

// AgentError is returned when a stage agent fails.
type AgentError struct {
	Agent   string
	Message string
	Code    int // HTTP status code when the agent is remote
}

func (e *AgentError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Agent, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Agent, e.Message)
}

// IsRetryable reports whether err suggests another implementation might
// succeed where this one failed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var agentErr *AgentError
	if errors.As(err, &agentErr) {
		switch agentErr.Code {
		case 408, 429, 500, 502, 503, 504:
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout")
}
