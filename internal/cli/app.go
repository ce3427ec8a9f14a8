package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/agent"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/config"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/escalation"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/feedback"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/handoff"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/hooks"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/logging"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/orchestrator"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/plugin"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/store"
)

// analyticsBackend is what the dispatcher and the service need from the
// analytics side.
type analyticsBackend interface {
	feedback.AnalyticsStore
	feedback.Journal
}

// app is the assembled engine shared by serve and the one-shot commands.
type app struct {
	cfg       config.Config
	log       *logging.Logger
	hooks     *hooks.Manager
	db        *store.DB // nil with the memory driver
	kb        *store.KnowledgeBase
	analytics analyticsBackend
	queue     handoff.Queue // nil when handoff is disabled
	plugins   *plugin.Registry
	policy    *escalation.PolicyHolder
	feedback  *feedback.Dispatcher
	svc       *orchestrator.Service

	logFile io.Closer
}

// newLogger builds the process logger from the logging section. The
// returned closer is non-nil when logging.file is set.
func newLogger(cfg config.LoggingConfig) (*logging.Logger, io.Closer, error) {
	w := logging.ConsoleWriter(cfg.ConsoleStyle)
	if cfg.File == "" {
		return logging.New(w, cfg.Level), nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o700); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return logging.New(io.MultiWriter(w, f), cfg.Level), f, nil
}

// openApp wires storage, agents, the feedback dispatcher, plugins and the
// orchestration service. The dispatcher is started and recovery has run
// when it returns. Callers must call close.
func openApp(ctx context.Context, cfg config.Config) (_ *app, err error) {
	a := &app{cfg: cfg, policy: escalation.NewPolicyHolder(cfg.Escalation.Policy())}
	a.log, a.logFile, err = newLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	log = a.log
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	a.hooks = hooks.NewManager(a.log)

	var (
		contexts orchestrator.ContextStore
		kb       agent.KnowledgeSearcher
	)
	switch cfg.Storage.Driver {
	case "memory":
		mem := feedback.NewMemoryStore()
		contexts = orchestrator.NewMemoryContextStore()
		kb = agent.NewMemoryKnowledge()
		a.analytics = mem
		if cfg.Handoff.Enabled {
			a.queue = handoff.NewMemoryQueue()
		}
		a.log.Info().Msg("using in-memory storage")
	default:
		dbPath := paths.DBPath(cfg.Storage)
		if a.db, err = store.Open(dbPath, a.log); err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		a.kb = store.NewKnowledgeBase(a.db)
		contexts = store.NewContextStore(a.db)
		kb = a.kb
		a.analytics = store.NewAnalyticsStore(a.db)
		if cfg.Handoff.Enabled {
			a.queue = store.NewHandoffStore(a.db)
		}
		a.log.Info().Str("path", dbPath).Msg("using SQLite storage")
	}

	agents, err := agent.Build(cfg, kb, a.log)
	if err != nil {
		return nil, fmt.Errorf("building agents: %w", err)
	}

	a.plugins = plugin.NewRegistry(a.hooks, a.log)
	if a.queue != nil {
		if err := a.plugins.Register(handoff.New(a.queue)); err != nil {
			return nil, err
		}
	}
	if err := a.plugins.InitAll(ctx); err != nil {
		return nil, fmt.Errorf("initializing plugins: %w", err)
	}

	a.feedback = feedback.NewDispatcher(cfg.Feedback, cfg.Pipeline.StageTimeouts.Analytics,
		agents.Analytics, a.analytics, a.analytics, a.log)
	a.feedback.SetHooks(a.hooks)
	a.feedback.Start(ctx)
	if _, err := a.feedback.Recover(ctx); err != nil {
		a.log.Warn().Err(err).Msg("feedback recovery incomplete")
	}

	exec := orchestrator.NewExecutor(agents, cfg.Pipeline, cfg.Knowledge.TopK, a.log)
	a.svc = orchestrator.NewService(contexts, exec, a.policy, a.log,
		orchestrator.WithFeedback(a.feedback),
		orchestrator.WithAnalytics(a.analytics),
		orchestrator.WithHooks(a.hooks),
		orchestrator.WithConflictRetries(cfg.Pipeline.ConflictRetries),
		orchestrator.WithSerialization(cfg.Pipeline.SerializeConversations),
	)
	return a, nil
}

// close drains the dispatcher and releases storage.
func (a *app) close(ctx context.Context) {
	if a.feedback != nil {
		if err := a.feedback.Stop(ctx); err != nil {
			a.log.Warn().Err(err).Msg("feedback queue not fully drained")
		}
	}
	// Handoff and other plugins still write on queued events.
	if a.hooks != nil {
		done := make(chan struct{})
		go func() {
			a.hooks.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			a.log.Warn().Msg("hook deliveries still running at shutdown")
		}
	}
	if a.plugins != nil {
		a.plugins.CloseAll()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn().Err(err).Msg("closing database")
		}
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

// knowledgeBase returns the SQLite knowledge base or an error for the
// memory driver, which has nothing to import into.
func (a *app) knowledgeBase() (*store.KnowledgeBase, error) {
	if a.kb == nil {
		return nil, fmt.Errorf("knowledge base needs storage.driver sqlite (have %q)", a.cfg.Storage.Driver)
	}
	return a.kb, nil
}
