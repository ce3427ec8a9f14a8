package config

import "time"

// Config is the root configuration for careai.
type Config struct {
	Gateway    GatewayConfig    `yaml:"gateway,omitempty"`
	Logging    LoggingConfig    `yaml:"logging,omitempty"`
	Storage    StorageConfig    `yaml:"storage,omitempty"`
	Escalation EscalationConfig `yaml:"escalation,omitempty"`
	Pipeline   PipelineConfig   `yaml:"pipeline,omitempty"`
	Agents     AgentsConfig     `yaml:"agents,omitempty"`
	Feedback   FeedbackConfig   `yaml:"feedback,omitempty"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge,omitempty"`
	Handoff    HandoffConfig    `yaml:"handoff,omitempty"`
	Channels   ChannelsConfig   `yaml:"channels,omitempty"`
}

// GatewayConfig controls the gateway HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
	MaxBodyBytes   int64       `yaml:"maxBodyBytes,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "password" | "none"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
}

// StorageConfig selects the context store backend.
type StorageConfig struct {
	Driver string `yaml:"driver,omitempty"` // "sqlite" | "memory"
	Path   string `yaml:"path,omitempty"`   // defaults to <base>/data/careai.db
}

// EscalationConfig holds the escalation thresholds.
type EscalationConfig struct {
	SentimentThreshold float64  `yaml:"sentimentThreshold"`
	EmotionStreak      int      `yaml:"emotionStreak,omitempty"`
	UnresolvedTurns    int      `yaml:"unresolvedTurns,omitempty"`
	AlertSeverity      string   `yaml:"alertSeverity,omitempty"` // "low" | "medium" | "high" | "critical"
	NegativeEmotions   []string `yaml:"negativeEmotions,omitempty"`
	HotReload          bool     `yaml:"hotReload,omitempty"`
}

// PipelineConfig tunes the synchronous pipeline.
type PipelineConfig struct {
	StageTimeouts           StageTimeouts     `yaml:"stageTimeouts,omitempty"`
	MaxConcurrentAgentCalls int               `yaml:"maxConcurrentAgentCalls,omitempty"`
	ConflictRetries         int               `yaml:"conflictRetries,omitempty"`
	SerializeConversations  bool              `yaml:"serializeConversations"`
	FallbackResponse        map[string]string `yaml:"fallbackResponse,omitempty"` // language -> text
}

// StageTimeouts bounds each agent call.
type StageTimeouts struct {
	Intent    time.Duration `yaml:"intent,omitempty"`
	Knowledge time.Duration `yaml:"knowledge,omitempty"`
	Emotion   time.Duration `yaml:"emotion,omitempty"`
	Anomaly   time.Duration `yaml:"anomaly,omitempty"`
	Analytics time.Duration `yaml:"analytics,omitempty"`
}

// AgentsConfig selects the implementation behind each stage.
type AgentsConfig struct {
	Intent    AgentEntry `yaml:"intent,omitempty"`
	Knowledge AgentEntry `yaml:"knowledge,omitempty"`
	Emotion   AgentEntry `yaml:"emotion,omitempty"`
	Anomaly   AgentEntry `yaml:"anomaly,omitempty"`
	Analytics AgentEntry `yaml:"analytics,omitempty"`
}

// Entries returns the per-stage entries keyed by stage name.
func (a AgentsConfig) Entries() map[string]AgentEntry {
	return map[string]AgentEntry{
		"intent":    a.Intent,
		"knowledge": a.Knowledge,
		"emotion":   a.Emotion,
		"anomaly":   a.Anomaly,
		"analytics": a.Analytics,
	}
}

// AgentEntry configures one stage agent.
type AgentEntry struct {
	Mode    string        `yaml:"mode,omitempty"` // "local" | "remote" | "failover"
	URL     string        `yaml:"url,omitempty"`
	APIKey  string        `yaml:"apiKey,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"` // HTTP client timeout for remote calls
}

// FeedbackConfig tunes the asynchronous dispatcher.
type FeedbackConfig struct {
	QueueSize   int           `yaml:"queueSize,omitempty"`
	Workers     int           `yaml:"workers,omitempty"`
	MaxAttempts int           `yaml:"maxAttempts,omitempty"`
	Backoff     time.Duration `yaml:"backoff,omitempty"`

	// RecoverInterval is how often dropped or failed work is re-queued from
	// the journal. Negative disables the sweep; recovery then runs at
	// startup only.
	RecoverInterval time.Duration `yaml:"recoverInterval,omitempty"`
}

// KnowledgeConfig tunes FAQ retrieval.
type KnowledgeConfig struct {
	TopK int `yaml:"topK,omitempty"`
}

// HandoffConfig controls the human handoff queue.
type HandoffConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ChannelsConfig defines messaging channel configurations.
type ChannelsConfig struct {
	IRC   *IRCConfig   `yaml:"irc,omitempty"`
	Email *EmailConfig `yaml:"email,omitempty"`
}

// IRCConfig defines the IRC chat channel.
type IRCConfig struct {
	Server   string   `yaml:"server"`
	Port     int      `yaml:"port,omitempty"`
	Nick     string   `yaml:"nick"`
	Password string   `yaml:"password,omitempty"`
	Channels []string `yaml:"channels"`
	UseTLS   bool     `yaml:"useTLS,omitempty"`
	SASL     bool     `yaml:"sasl,omitempty"`
}

// EmailConfig defines the IMAP email channel.
type EmailConfig struct {
	Server       string        `yaml:"server"`
	Port         int           `yaml:"port,omitempty"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password,omitempty"`
	Mailbox      string        `yaml:"mailbox,omitempty"`
	DraftsFolder string        `yaml:"draftsFolder,omitempty"`
	From         string        `yaml:"from,omitempty"`
	PollInterval time.Duration `yaml:"pollInterval,omitempty"`
}
