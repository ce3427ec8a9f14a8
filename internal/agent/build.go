package agent

import (
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/config"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/logging"
)

// NewLocalSet returns the rule-based agents for every stage.
func NewLocalSet(kb KnowledgeSearcher, topK int) Set {
	return Set{
		Intent:    NewLocalIntent(),
		Knowledge: NewLocalKnowledge(kb, topK),
		Emotion:   NewLocalEmotion(),
		Anomaly:   NewLocalAnomaly(),
		Analytics: NewLocalAnalytics(),
	}
}

// Build selects local, remote or failover agents per stage according to
// cfg.Agents, then caps the request-path stages with one shared semaphore.
func Build(cfg config.Config, kb KnowledgeSearcher, log *logging.Logger) (Set, error) {
	local := NewLocalSet(kb, cfg.Knowledge.TopK)
	log = log.Sub("agents")

	intent, err := choose("intent", cfg.Agents.Intent, local.Intent, log)
	if err != nil {
		return Set{}, err
	}
	knowledge, err := choose("knowledge", cfg.Agents.Knowledge, local.Knowledge, log)
	if err != nil {
		return Set{}, err
	}
	emotion, err := choose("emotion", cfg.Agents.Emotion, local.Emotion, log)
	if err != nil {
		return Set{}, err
	}
	anomaly, err := choose("anomaly", cfg.Agents.Anomaly, local.Anomaly, log)
	if err != nil {
		return Set{}, err
	}
	analytics, err := choose("analytics", cfg.Agents.Analytics, local.Analytics, log)
	if err != nil {
		return Set{}, err
	}

	set := Set{
		Intent:    intent,
		Knowledge: knowledge,
		Emotion:   emotion,
		Anomaly:   anomaly,
		Analytics: analytics,
	}
	return LimitSet(set, semaphore.NewWeighted(int64(cfg.Pipeline.MaxConcurrentAgentCalls))), nil
}

func choose[In, Out any](stage string, entry config.AgentEntry, local Adapter[In, Out], log *logging.Logger) (Adapter[In, Out], error) {
	switch entry.Mode {
	case "", "local":
		return local, nil
	case "remote", "failover":
		if entry.URL == "" {
			return nil, fmt.Errorf("agents.%s: url is required for mode %s", stage, entry.Mode)
		}
		remote := NewRemote[In, Out](stage, entry.URL, entry.APIKey, entry.Timeout)
		log.Info().Str("stage", stage).Str("mode", entry.Mode).Str("url", entry.URL).Msg("remote agent configured")
		if entry.Mode == "remote" {
			return remote, nil
		}
		return NewFailover[In, Out](stage, remote, local, log), nil
	default:
		return nil, fmt.Errorf("agents.%s: unknown mode %q", stage, entry.Mode)
	}
}
