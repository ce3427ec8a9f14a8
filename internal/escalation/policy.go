// Package escalation decides when a conversation must be handed to a human
// and keeps the per-conversation escalation state machine honest.
package escalation

import (
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
)

// Policy is the immutable set of escalation thresholds.
type Policy struct {
	SentimentThreshold float64
	EmotionStreak      int
	UnresolvedTurns    int
	AlertSeverity      domain.Severity
	NegativeEmotions   []domain.Emotion
}

// DefaultPolicy returns the stock thresholds.
func DefaultPolicy() Policy {
	return Policy{
		SentimentThreshold: -0.65,
		EmotionStreak:      2,
		UnresolvedTurns:    3,
		AlertSeverity:      domain.SeverityCritical,
		NegativeEmotions:   []domain.Emotion{domain.EmotionAnger, domain.EmotionDistress},
	}
}

// Validate checks the thresholds are usable.
func (p Policy) Validate() error {
	if p.SentimentThreshold < -1 || p.SentimentThreshold > 1 {
		return fmt.Errorf("sentiment threshold must be within [-1, 1], got %v", p.SentimentThreshold)
	}
	if p.EmotionStreak < 1 {
		return fmt.Errorf("emotion streak must be at least 1, got %d", p.EmotionStreak)
	}
	if p.UnresolvedTurns < 1 {
		return fmt.Errorf("unresolved turns must be at least 1, got %d", p.UnresolvedTurns)
	}
	if !p.AlertSeverity.Valid() {
		return fmt.Errorf("unknown alert severity %q", p.AlertSeverity)
	}
	if len(p.NegativeEmotions) == 0 {
		return fmt.Errorf("at least one negative emotion is required")
	}
	return nil
}

func (p Policy) negative(e domain.Emotion) bool {
	return slices.Contains(p.NegativeEmotions, e)
}

// PolicyHolder publishes the current policy. Readers take one snapshot per
// request; a Store never changes a snapshot already taken.
type PolicyHolder struct {
	current atomic.Pointer[Policy]
}

// NewPolicyHolder creates a holder seeded with p.
func NewPolicyHolder(p Policy) *PolicyHolder {
	h := &PolicyHolder{}
	h.Store(p)
	return h
}

// Policy returns the current snapshot.
func (h *PolicyHolder) Policy() Policy {
	return *h.current.Load()
}

// Store swaps in a new policy.
func (h *PolicyHolder) Store(p Policy) {
	p.NegativeEmotions = slices.Clone(p.NegativeEmotions)
	h.current.Store(&p)
}
