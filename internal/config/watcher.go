package config

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/escalation"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/logging"
)

const defaultDebounce = 250 * time.Millisecond

// PolicyWatcher reloads the escalation policy when the config file changes.
// Requests already holding a policy snapshot are unaffected by a swap.
type PolicyWatcher struct {
	path     string
	holder   *escalation.PolicyHolder
	log      *logging.Logger
	watcher  *fsnotify.Watcher
	debounce time.Duration

	reloads  atomic.Int64
	failures atomic.Int64
}

// NewPolicyWatcher watches the directory holding path. Editors often replace
// the file instead of writing it, so the directory is watched, not the file.
func NewPolicyWatcher(path string, holder *escalation.PolicyHolder, log *logging.Logger) (*PolicyWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}
	return &PolicyWatcher{
		path:     filepath.Clean(path),
		holder:   holder,
		log:      log.Sub("config.watch"),
		watcher:  w,
		debounce: defaultDebounce,
	}, nil
}

// Run processes file events until ctx is cancelled, then closes the watcher.
func (pw *PolicyWatcher) Run(ctx context.Context) error {
	defer pw.watcher.Close()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-pw.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != pw.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(pw.debounce)

		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return nil
			}
			pw.log.Warn().Err(err).Msg("config watcher error")

		case <-timer.C:
			pw.reload()
		}
	}
}

// Reloads returns how many policy swaps have been applied.
func (pw *PolicyWatcher) Reloads() int64 { return pw.reloads.Load() }

// Failures returns how many reload attempts were rejected.
func (pw *PolicyWatcher) Failures() int64 { return pw.failures.Load() }

func (pw *PolicyWatcher) reload() {
	cfg, err := Load(pw.path)
	if err != nil {
		pw.failures.Add(1)
		pw.log.Warn().Err(err).Msg("config reload failed, keeping current policy")
		return
	}
	if issues := Validate(&cfg); len(issues) > 0 {
		pw.failures.Add(1)
		pw.log.Warn().Str("issue", issues[0].String()).Int("issues", len(issues)).
			Msg("reloaded config is invalid, keeping current policy")
		return
	}

	policy := cfg.Escalation.Policy()
	if err := policy.Validate(); err != nil {
		pw.failures.Add(1)
		pw.log.Warn().Err(err).Msg("reloaded escalation policy is invalid")
		return
	}

	pw.holder.Store(policy)
	pw.reloads.Add(1)
	pw.log.Info().
		Float64("sentimentThreshold", policy.SentimentThreshold).
		Int("emotionStreak", policy.EmotionStreak).
		Int("unresolvedTurns", policy.UnresolvedTurns).
		Str("alertSeverity", string(policy.AlertSeverity)).
		Msg("escalation policy reloaded")
}
