package config

import (
	"fmt"
	"time"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/escalation"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	policy := escalation.DefaultPolicy()
	negative := make([]string, len(policy.NegativeEmotions))
	for i, e := range policy.NegativeEmotions {
		negative[i] = string(e)
	}

	return Config{
		Gateway: GatewayConfig{
			Port:         18790,
			Bind:         "loopback",
			Auth:         GatewayAuth{Mode: "token"},
			MaxBodyBytes: 1 << 20,
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
		Storage: StorageConfig{
			Driver: "sqlite",
		},
		Escalation: EscalationConfig{
			SentimentThreshold: policy.SentimentThreshold,
			EmotionStreak:      policy.EmotionStreak,
			UnresolvedTurns:    policy.UnresolvedTurns,
			AlertSeverity:      string(policy.AlertSeverity),
			NegativeEmotions:   negative,
			HotReload:          true,
		},
		Pipeline: PipelineConfig{
			StageTimeouts: StageTimeouts{
				Intent:    3 * time.Second,
				Knowledge: 2 * time.Second,
				Emotion:   2 * time.Second,
				Anomaly:   2 * time.Second,
				Analytics: 5 * time.Second,
			},
			MaxConcurrentAgentCalls: 32,
			ConflictRetries:         2,
			SerializeConversations:  true,
			FallbackResponse: map[string]string{
				domain.LanguageEnglish: "We're sorry, we couldn't process your message right now. Please try again in a moment.",
				domain.LanguageArabic:  "نعتذر، لم نتمكن من معالجة رسالتك الآن. يرجى المحاولة مرة أخرى بعد قليل.",
			},
		},
		Agents: AgentsConfig{
			Intent:    AgentEntry{Mode: "local"},
			Knowledge: AgentEntry{Mode: "local"},
			Emotion:   AgentEntry{Mode: "local"},
			Anomaly:   AgentEntry{Mode: "local"},
			Analytics: AgentEntry{Mode: "local"},
		},
		Feedback: FeedbackConfig{
			QueueSize:   1024,
			Workers:     4,
			MaxAttempts: 5,
			Backoff:     200 * time.Millisecond,

			RecoverInterval: time.Minute,
		},
		Knowledge: KnowledgeConfig{TopK: 3},
		Handoff:   HandoffConfig{Enabled: true},
	}
}

// Policy converts the escalation section into an immutable policy value.
func (c EscalationConfig) Policy() escalation.Policy {
	emotions := make([]domain.Emotion, len(c.NegativeEmotions))
	for i, e := range c.NegativeEmotions {
		emotions[i] = domain.Emotion(e)
	}
	return escalation.Policy{
		SentimentThreshold: c.SentimentThreshold,
		EmotionStreak:      c.EmotionStreak,
		UnresolvedTurns:    c.UnresolvedTurns,
		AlertSeverity:      domain.Severity(c.AlertSeverity),
		NegativeEmotions:   emotions,
	}
}

// Fallback returns the configured fallback text for a language, or the
// English text when the language has none.
func (p PipelineConfig) Fallback(lang string) string {
	if s, ok := p.FallbackResponse[lang]; ok && s != "" {
		return s
	}
	return p.FallbackResponse[domain.LanguageEnglish]
}
