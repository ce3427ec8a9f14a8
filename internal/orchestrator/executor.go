package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/agent"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/config"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/logging"
)

// Result holds the outputs of the four synchronous stages for one message.
// Degraded stages hold their fallback values.
type Result struct {
	Language  string
	Intent    agent.IntentOutput
	Knowledge agent.KnowledgeOutput
	Emotion   agent.EmotionOutput
	Alerts    []domain.ProactiveAlert
	Logs      map[domain.Stage]domain.StageLog
}

// Executor runs the pipeline stages in order, threading each output into the
// next stage and applying the per-stage timeout and fallback policy.
type Executor struct {
	agents   agent.Set
	pipeline config.PipelineConfig
	topK     int
	log      *logging.Logger
}

// NewExecutor creates an executor over the given agents.
func NewExecutor(agents agent.Set, pipeline config.PipelineConfig, topK int, log *logging.Logger) *Executor {
	return &Executor{
		agents:   agents,
		pipeline: pipeline,
		topK:     topK,
		log:      log.Sub("pipeline"),
	}
}

func (e *Executor) timeout(stage domain.Stage) time.Duration {
	t := e.pipeline.StageTimeouts
	switch stage {
	case domain.StageIntent:
		return t.Intent
	case domain.StageKnowledge:
		return t.Knowledge
	case domain.StageEmotion:
		return t.Emotion
	case domain.StageAnomaly:
		return t.Anomaly
	case domain.StageAnalytics:
		return t.Analytics
	}
	return 0
}

// Run executes the pipeline for req against a read-only snapshot.
//
// A failed or timed-out stage is replaced by its fallback and marked degraded,
// except intent: without an intent there is nothing to respond with, so Run
// returns a *PipelineError wrapping ErrIntentUnavailable. Cancellation of ctx
// aborts the run and returns ctx's error.
func (e *Executor) Run(ctx context.Context, req domain.InteractionRequest, snap agent.Snapshot) (*Result, error) {
	log := e.log.With("conversationId", req.ConversationID)
	res := &Result{Logs: make(map[domain.Stage]domain.StageLog, len(domain.PipelineStages))}

	intent, stageLog, err := runStage(ctx, e, domain.StageIntent, e.agents.Intent, agent.IntentInput{
		Message:      req.Message,
		Channel:      req.Channel,
		LanguageHint: req.Language,
		Snapshot:     snap,
	})
	res.Logs[domain.StageIntent] = stageLog
	if err == nil && intent.DraftResponse == "" {
		err = errors.New("empty draft response")
		stageLog = degraded(stageLog, err)
		res.Logs[domain.StageIntent] = stageLog
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lang := fallbackLanguage(req, snap)
		log.Error().Err(err).Str("stage", string(domain.StageIntent)).Msg("intent stage failed")
		return nil, &PipelineError{
			Stage:        domain.StageIntent,
			Logs:         res.Logs,
			FallbackText: e.pipeline.Fallback(lang),
			Err:          fmt.Errorf("%w: %v", ErrIntentUnavailable, err),
		}
	}
	if intent.Intent == "" {
		intent.Intent = domain.IntentUnknown
	}
	res.Intent = intent
	res.Language = resolveLanguage(intent.Language, req, snap)

	knowledge, stageLog, err := runStage(ctx, e, domain.StageKnowledge, e.agents.Knowledge, agent.KnowledgeInput{
		Message:  req.Message,
		Intent:   intent.Intent,
		Language: res.Language,
		Draft:    intent.DraftResponse,
		TopK:     e.topK,
		Snapshot: snap,
	})
	res.Logs[domain.StageKnowledge] = stageLog
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Str("stage", string(domain.StageKnowledge)).Msg("stage degraded")
		knowledge = agent.KnowledgeOutput{}
	}
	if knowledge.EnrichedDraft == "" {
		knowledge.EnrichedDraft = intent.DraftResponse
	}
	res.Knowledge = knowledge

	emotion, stageLog, err := runStage(ctx, e, domain.StageEmotion, e.agents.Emotion, agent.EmotionInput{
		Message:  req.Message,
		Draft:    knowledge.EnrichedDraft,
		Language: res.Language,
		Snapshot: snap,
	})
	res.Logs[domain.StageEmotion] = stageLog
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Str("stage", string(domain.StageEmotion)).Msg("stage degraded")
		emotion = agent.EmotionOutput{SentimentScore: 0, DominantEmotion: domain.EmotionUnknown}
	}
	if emotion.DominantEmotion == "" {
		emotion.DominantEmotion = domain.EmotionUnknown
	}
	emotion.SentimentScore = max(-1, min(1, emotion.SentimentScore))
	res.Emotion = emotion

	if req.AccountID == "" {
		res.Logs[domain.StageAnomaly] = domain.StageLog{Status: domain.StageStatusSkipped}
		return res, nil
	}
	anomaly, stageLog, err := runStage(ctx, e, domain.StageAnomaly, e.agents.Anomaly, agent.AnomalyInput{
		AccountID:   req.AccountID,
		AccountData: req.AccountData,
		UsageLogs:   req.UsageLogs,
	})
	res.Logs[domain.StageAnomaly] = stageLog
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Str("stage", string(domain.StageAnomaly)).Msg("stage degraded")
		anomaly = agent.AnomalyOutput{}
	}
	res.Alerts = anomaly.Alerts
	return res, nil
}

type stageResult[Out any] struct {
	out Out
	err error
}

// runStage invokes one adapter under the stage timeout. The call runs in its
// own goroutine so an adapter that ignores ctx still cannot hold the request
// past its deadline.
func runStage[In, Out any](ctx context.Context, e *Executor, stage domain.Stage, a agent.Adapter[In, Out], in In) (Out, domain.StageLog, error) {
	var zero Out
	start := time.Now()
	elapsed := func() int64 { return time.Since(start).Milliseconds() }

	if a == nil {
		err := fmt.Errorf("no %s agent configured", stage)
		return zero, degraded(domain.StageLog{}, err), err
	}

	var (
		stageCtx context.Context
		cancel   context.CancelFunc
	)
	if d := e.timeout(stage); d > 0 {
		stageCtx, cancel = context.WithTimeout(ctx, d)
	} else {
		stageCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan stageResult[Out], 1)
	go func() {
		out, err := a.Invoke(stageCtx, in)
		done <- stageResult[Out]{out: out, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return zero, degraded(domain.StageLog{LatencyMS: elapsed()}, r.err), r.err
		}
		e.log.Debug().Str("stage", string(stage)).Int64("latency", elapsed()).Msg("stage ok")
		return r.out, domain.StageLog{Status: domain.StageStatusOK, LatencyMS: elapsed()}, nil
	case <-stageCtx.Done():
		err := stageCtx.Err()
		if ctx.Err() == nil {
			err = fmt.Errorf("%s stage timed out: %w", stage, err)
		}
		return zero, degraded(domain.StageLog{LatencyMS: elapsed()}, err), err
	}
}

func degraded(l domain.StageLog, err error) domain.StageLog {
	l.Status = domain.StageStatusDegraded
	l.Degraded = true
	l.Error = err.Error()
	return l
}

func supportedLanguage(lang string) bool {
	return lang == domain.LanguageEnglish || lang == domain.LanguageArabic
}

func resolveLanguage(detected string, req domain.InteractionRequest, snap agent.Snapshot) string {
	switch {
	case supportedLanguage(req.Language):
		return req.Language
	case supportedLanguage(detected):
		return detected
	}
	return fallbackLanguage(req, snap)
}

func fallbackLanguage(req domain.InteractionRequest, snap agent.Snapshot) string {
	switch {
	case supportedLanguage(req.Language):
		return req.Language
	case supportedLanguage(snap.Language):
		return snap.Language
	}
	return agent.DetectLanguage(req.Message)
}
