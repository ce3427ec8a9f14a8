package escalation

import (
	"fmt"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
)

// Signals are the per-turn inputs to an evaluation.
type Signals struct {
	Intent           domain.Intent
	SentimentScore   float64
	DominantEmotion  domain.Emotion
	EmotionDegraded  bool
	Alerts           []domain.ProactiveAlert
	ResolutionSignal bool
}

// Outcome is the decision for a turn plus the context values to commit with it.
type Outcome struct {
	Decision domain.EscalationDecision
	Update   domain.ContextUpdate

	// Triggered is set when this turn moved the conversation into ESCALATED.
	Triggered bool
	// Reopened is set when this turn started a new issue after a resolution.
	Reopened bool
}

// Evaluate computes the escalation decision for a new turn against the
// conversation snapshot. It never mutates conv.
//
// Counters are updated first, then conditions are checked in order and the
// first match names the reason. An ESCALATED conversation stays escalated
// whatever the turn says.
func Evaluate(p Policy, conv *domain.Conversation, s Signals) Outcome {
	state := conv.EscalationState
	if state == "" {
		state = domain.StateNormal
	}

	var out Outcome
	if state == domain.StateResolved {
		state = domain.StateNormal
		out.Reopened = true
	}

	emotionCount := conv.ConsecutiveNegativeEmotion
	switch {
	case s.EmotionDegraded:
		// no observation this turn; the streak is held
	case p.negative(s.DominantEmotion):
		emotionCount++
	default:
		emotionCount = 0
	}

	unresolved := conv.UnresolvedTurns + 1
	if s.ResolutionSignal {
		unresolved = 0
	}

	reason := firstMatch(p, s, emotionCount, unresolved)
	out.Decision = domain.EscalationDecision{Flag: reason != domain.ReasonNone, Reason: reason}

	out.Update = domain.ContextUpdate{
		ConsecutiveNegativeEmotion: emotionCount,
		UnresolvedTurns:            unresolved,
		EscalationState:            state,
		EscalationReason:           conv.EscalationReason,
	}

	switch {
	case state == domain.StateEscalated:
		out.Decision.Flag = true
		if reason == domain.ReasonNone {
			out.Decision.Reason = conv.EscalationReason
		}
	case out.Decision.Flag:
		out.Update.EscalationState = domain.StateEscalated
		out.Update.EscalationReason = reason
		out.Triggered = true
	default:
		out.Update.EscalationReason = ""
	}

	return out
}

func firstMatch(p Policy, s Signals, emotionCount, unresolved int) domain.EscalationReason {
	if s.Intent == domain.IntentEscalationRequest {
		return domain.ReasonExplicitRequest
	}
	if s.SentimentScore < p.SentimentThreshold {
		return domain.ReasonSentimentThreshold
	}
	if p.negative(s.DominantEmotion) && emotionCount >= p.EmotionStreak {
		return domain.ReasonEmotionStreak
	}
	for _, a := range s.Alerts {
		if a.Severity.AtLeast(p.AlertSeverity) {
			return domain.ReasonCriticalAlert
		}
	}
	if unresolved >= p.UnresolvedTurns {
		return domain.ReasonUnresolvedStreak
	}
	return domain.ReasonNone
}

// Resolve applies an explicit human resolution. Only an escalated
// conversation can be resolved; both counters start over.
func Resolve(conv *domain.Conversation) (domain.ContextUpdate, error) {
	if !domain.CanTransition(conv.EscalationState, domain.StateResolved) ||
		conv.EscalationState == domain.StateResolved {
		return domain.ContextUpdate{}, fmt.Errorf("%w: %s -> %s",
			domain.ErrInvalidTransition, conv.EscalationState, domain.StateResolved)
	}
	return domain.ContextUpdate{
		EscalationState:  domain.StateResolved,
		EscalationReason: conv.EscalationReason,
		Language:         conv.Language,
	}, nil
}
