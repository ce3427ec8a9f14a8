package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/escalation"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/logging"
)

func startWatcher(t *testing.T, path string, holder *escalation.PolicyHolder) *PolicyWatcher {
	t.Helper()
	pw, err := NewPolicyWatcher(path, holder, logging.New(nil, "silent"))
	require.NoError(t, err)
	pw.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pw.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return pw
}

func TestPolicyWatcher_SwapsPolicyOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("escalation:\n  sentimentThreshold: -0.65\n"), 0o600))

	holder := escalation.NewPolicyHolder(escalation.DefaultPolicy())
	before := holder.Policy()
	pw := startWatcher(t, path, holder)

	require.NoError(t, os.WriteFile(path, []byte("escalation:\n  sentimentThreshold: -0.3\n  emotionStreak: 4\n"), 0o600))

	require.Eventually(t, func() bool { return pw.Reloads() >= 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, -0.3, holder.Policy().SentimentThreshold)
	assert.Equal(t, 4, holder.Policy().EmotionStreak)
	assert.Equal(t, -0.65, before.SentimentThreshold, "snapshot taken before the reload is unchanged")
}

func TestPolicyWatcher_KeepsPolicyOnInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("escalation:\n  emotionStreak: 2\n"), 0o600))

	holder := escalation.NewPolicyHolder(escalation.DefaultPolicy())
	pw := startWatcher(t, path, holder)

	require.NoError(t, os.WriteFile(path, []byte("escalation:\n  sentimentThreshold: -7\n"), 0o600))

	require.Eventually(t, func() bool { return pw.Failures() >= 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(0), pw.Reloads())
	assert.Equal(t, -0.65, holder.Policy().SentimentThreshold)
}

func TestPolicyWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o600))

	holder := escalation.NewPolicyHolder(escalation.DefaultPolicy())
	pw := startWatcher(t, path, holder)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o600))
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int64(0), pw.Reloads())
	assert.Equal(t, int64(0), pw.Failures())
}
