package escalation

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
)

func normalConv() *domain.Conversation {
	return &domain.Conversation{ID: "c-1", EscalationState: domain.StateNormal}
}

func calm() Signals {
	return Signals{
		Intent:          domain.IntentGeneralInquiry,
		SentimentScore:  0.1,
		DominantEmotion: domain.EmotionNeutral,
	}
}

// apply folds an outcome back into the conversation the way a commit would.
func apply(conv *domain.Conversation, out Outcome) {
	conv.ConsecutiveNegativeEmotion = out.Update.ConsecutiveNegativeEmotion
	conv.UnresolvedTurns = out.Update.UnresolvedTurns
	conv.EscalationState = out.Update.EscalationState
	conv.EscalationReason = out.Update.EscalationReason
}

func TestEvaluate_ExplicitRequestWins(t *testing.T) {
	s := Signals{
		Intent:          domain.IntentEscalationRequest,
		SentimentScore:  -0.9,
		DominantEmotion: domain.EmotionAnger,
	}

	out := Evaluate(DefaultPolicy(), normalConv(), s)

	assert.True(t, out.Decision.Flag)
	assert.Equal(t, domain.ReasonExplicitRequest, out.Decision.Reason)
	assert.Equal(t, domain.StateEscalated, out.Update.EscalationState)
	assert.True(t, out.Triggered)
}

func TestEvaluate_SentimentThresholdIsStrict(t *testing.T) {
	p := DefaultPolicy()

	s := calm()
	s.SentimentScore = p.SentimentThreshold
	out := Evaluate(p, normalConv(), s)
	assert.False(t, out.Decision.Flag, "score equal to threshold must not escalate")

	s.SentimentScore = p.SentimentThreshold - 0.01
	out = Evaluate(p, normalConv(), s)
	assert.True(t, out.Decision.Flag)
	assert.Equal(t, domain.ReasonSentimentThreshold, out.Decision.Reason)
}

func TestEvaluate_EmotionStreak(t *testing.T) {
	p := DefaultPolicy()
	conv := normalConv()

	angry := calm()
	angry.DominantEmotion = domain.EmotionAnger
	angry.SentimentScore = -0.4

	first := Evaluate(p, conv, angry)
	assert.False(t, first.Decision.Flag)
	assert.Equal(t, 1, first.Update.ConsecutiveNegativeEmotion)
	apply(conv, first)

	distressed := angry
	distressed.DominantEmotion = domain.EmotionDistress
	second := Evaluate(p, conv, distressed)
	assert.True(t, second.Decision.Flag)
	assert.Equal(t, domain.ReasonEmotionStreak, second.Decision.Reason)
	assert.Equal(t, 2, second.Update.ConsecutiveNegativeEmotion)
}

func TestEvaluate_EmotionStreakResetsOnOtherEmotion(t *testing.T) {
	conv := normalConv()
	conv.ConsecutiveNegativeEmotion = 1

	s := calm()
	s.DominantEmotion = domain.EmotionSadness
	out := Evaluate(DefaultPolicy(), conv, s)

	assert.Equal(t, 0, out.Update.ConsecutiveNegativeEmotion)
	assert.False(t, out.Decision.Flag)
}

func TestEvaluate_DegradedEmotionHoldsStreak(t *testing.T) {
	conv := normalConv()
	conv.ConsecutiveNegativeEmotion = 1

	s := calm()
	s.DominantEmotion = domain.EmotionUnknown
	s.SentimentScore = 0
	s.EmotionDegraded = true
	out := Evaluate(DefaultPolicy(), conv, s)

	assert.Equal(t, 1, out.Update.ConsecutiveNegativeEmotion)
	assert.False(t, out.Decision.Flag)
}

func TestEvaluate_CriticalAlert(t *testing.T) {
	s := calm()
	s.Alerts = []domain.ProactiveAlert{
		{AlertID: "a-1", Severity: domain.SeverityHigh},
		{AlertID: "a-2", Severity: domain.SeverityCritical},
	}

	out := Evaluate(DefaultPolicy(), normalConv(), s)

	assert.True(t, out.Decision.Flag)
	assert.Equal(t, domain.ReasonCriticalAlert, out.Decision.Reason)

	s.Alerts = s.Alerts[:1]
	out = Evaluate(DefaultPolicy(), normalConv(), s)
	assert.False(t, out.Decision.Flag)
}

func TestEvaluate_UnresolvedStreak(t *testing.T) {
	p := DefaultPolicy()
	conv := normalConv()

	for i := 1; i < p.UnresolvedTurns; i++ {
		out := Evaluate(p, conv, calm())
		require.False(t, out.Decision.Flag, "turn %d", i)
		require.Equal(t, i, out.Update.UnresolvedTurns)
		apply(conv, out)
	}

	out := Evaluate(p, conv, calm())
	assert.True(t, out.Decision.Flag)
	assert.Equal(t, domain.ReasonUnresolvedStreak, out.Decision.Reason)
}

func TestEvaluate_ResolutionSignalResetsUnresolved(t *testing.T) {
	conv := normalConv()
	conv.UnresolvedTurns = 2

	s := calm()
	s.ResolutionSignal = true
	out := Evaluate(DefaultPolicy(), conv, s)

	assert.Equal(t, 0, out.Update.UnresolvedTurns)
	assert.False(t, out.Decision.Flag)
}

func TestEvaluate_EscalatedStaysEscalated(t *testing.T) {
	conv := normalConv()
	conv.EscalationState = domain.StateEscalated
	conv.EscalationReason = domain.ReasonSentimentThreshold

	s := calm()
	s.SentimentScore = 0.9
	s.DominantEmotion = domain.EmotionJoy
	s.ResolutionSignal = true
	out := Evaluate(DefaultPolicy(), conv, s)

	assert.True(t, out.Decision.Flag)
	assert.Equal(t, domain.ReasonSentimentThreshold, out.Decision.Reason)
	assert.Equal(t, domain.StateEscalated, out.Update.EscalationState)
	assert.False(t, out.Triggered)
}

func TestEvaluate_EscalatedReportsNewReason(t *testing.T) {
	conv := normalConv()
	conv.EscalationState = domain.StateEscalated
	conv.EscalationReason = domain.ReasonSentimentThreshold

	s := calm()
	s.Intent = domain.IntentEscalationRequest
	out := Evaluate(DefaultPolicy(), conv, s)

	assert.Equal(t, domain.ReasonExplicitRequest, out.Decision.Reason)
	assert.Equal(t, domain.ReasonSentimentThreshold, out.Update.EscalationReason)
	assert.False(t, out.Triggered)
}

func TestEvaluate_ResolvedReopensAsNormal(t *testing.T) {
	conv := normalConv()
	conv.EscalationState = domain.StateResolved
	conv.EscalationReason = domain.ReasonExplicitRequest

	out := Evaluate(DefaultPolicy(), conv, calm())

	assert.True(t, out.Reopened)
	assert.False(t, out.Decision.Flag)
	assert.Equal(t, domain.StateNormal, out.Update.EscalationState)
	assert.Empty(t, out.Update.EscalationReason)
}

func TestEvaluate_NeverMovesBackFromEscalated(t *testing.T) {
	// Drive a conversation through a mixed sequence of turns and check every
	// committed state change is legal.
	seq := []Signals{
		calm(),
		{Intent: domain.IntentComplaint, SentimentScore: -0.5, DominantEmotion: domain.EmotionAnger},
		{Intent: domain.IntentComplaint, SentimentScore: -0.5, DominantEmotion: domain.EmotionAnger},
		calm(),
		{Intent: domain.IntentGreeting, SentimentScore: 0.9, DominantEmotion: domain.EmotionJoy, ResolutionSignal: true},
		calm(),
	}

	conv := normalConv()
	for i, s := range seq {
		out := Evaluate(DefaultPolicy(), conv, s)
		assert.True(t, domain.CanTransition(conv.EscalationState, out.Update.EscalationState),
			"turn %d: %s -> %s", i, conv.EscalationState, out.Update.EscalationState)
		if conv.EscalationState == domain.StateEscalated {
			assert.True(t, out.Decision.Flag, "turn %d", i)
		}
		apply(conv, out)
	}
	assert.Equal(t, domain.StateEscalated, conv.EscalationState)
	assert.Equal(t, domain.ReasonEmotionStreak, conv.EscalationReason)
}

func TestEvaluate_DoesNotMutateConversation(t *testing.T) {
	conv := normalConv()
	conv.UnresolvedTurns = 1
	before := *conv

	s := calm()
	s.Intent = domain.IntentEscalationRequest
	Evaluate(DefaultPolicy(), conv, s)

	assert.Equal(t, before, *conv)
}

func TestResolve(t *testing.T) {
	conv := normalConv()
	conv.EscalationState = domain.StateEscalated
	conv.EscalationReason = domain.ReasonCriticalAlert
	conv.ConsecutiveNegativeEmotion = 2
	conv.UnresolvedTurns = 4

	upd, err := Resolve(conv)
	require.NoError(t, err)
	assert.Equal(t, domain.StateResolved, upd.EscalationState)
	assert.Zero(t, upd.ConsecutiveNegativeEmotion)
	assert.Zero(t, upd.UnresolvedTurns)
}

func TestResolve_RejectsNonEscalated(t *testing.T) {
	for _, state := range []domain.EscalationState{domain.StateNormal, domain.StateResolved} {
		conv := normalConv()
		conv.EscalationState = state
		_, err := Resolve(conv)
		assert.True(t, errors.Is(err, domain.ErrInvalidTransition), "state %s", state)
	}
}

func TestPolicyValidate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())

	bad := DefaultPolicy()
	bad.SentimentThreshold = -2
	assert.Error(t, bad.Validate())

	bad = DefaultPolicy()
	bad.EmotionStreak = 0
	assert.Error(t, bad.Validate())

	bad = DefaultPolicy()
	bad.AlertSeverity = "severe"
	assert.Error(t, bad.Validate())

	bad = DefaultPolicy()
	bad.NegativeEmotions = nil
	assert.Error(t, bad.Validate())
}

func TestPolicyHolder_SnapshotIsStable(t *testing.T) {
	h := NewPolicyHolder(DefaultPolicy())
	snap := h.Policy()

	next := DefaultPolicy()
	next.SentimentThreshold = -0.2
	next.NegativeEmotions = append(next.NegativeEmotions, domain.EmotionSadness)
	h.Store(next)
	next.NegativeEmotions[0] = domain.EmotionJoy

	assert.Equal(t, -0.65, snap.SentimentThreshold)
	assert.Len(t, snap.NegativeEmotions, 2)
	assert.Equal(t, -0.2, h.Policy().SentimentThreshold)
	assert.Equal(t, domain.EmotionAnger, h.Policy().NegativeEmotions[0])
}

func TestPolicyHolder_ConcurrentAccess(t *testing.T) {
	h := NewPolicyHolder(DefaultPolicy())
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			p := DefaultPolicy()
			p.SentimentThreshold = -float64(i) / 10
			h.Store(p)
		}()
		go func() {
			defer wg.Done()
			_ = h.Policy().SentimentThreshold
		}()
	}
	wg.Wait()
	assert.NoError(t, h.Policy().Validate())
}
