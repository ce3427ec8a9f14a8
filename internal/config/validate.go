package config

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"time"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

var (
	validBinds         = []string{"loopback", "lan", "custom"}
	validAuthModes     = []string{"token", "password", "none"}
	validLogLevels     = []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	validConsoleStyles = []string{"pretty", "compact", "json"}
	validDrivers       = []string{"sqlite", "memory"}
	validSeverities    = []string{"low", "medium", "high", "critical"}
	validAgentModes    = []string{"local", "remote", "failover"}
)

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	// Gateway
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		add("gateway.bind", "must be one of %v, got %q", validBinds, cfg.Gateway.Bind)
	}
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		add("gateway.customBindHost", "required when bind is custom")
	}
	if cfg.Gateway.Auth.Mode != "" && !slices.Contains(validAuthModes, cfg.Gateway.Auth.Mode) {
		add("gateway.auth.mode", "must be one of %v, got %q", validAuthModes, cfg.Gateway.Auth.Mode)
	}
	if cfg.Gateway.Auth.Mode == "none" && cfg.Gateway.Bind != "" && cfg.Gateway.Bind != "loopback" {
		add("gateway.auth.mode", "auth mode none is only allowed on loopback")
	}
	if cfg.Gateway.MaxBodyBytes < 0 {
		add("gateway.maxBodyBytes", "must not be negative")
	}

	// Logging
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		add("logging.level", "must be one of %v, got %q", validLogLevels, cfg.Logging.Level)
	}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		add("logging.consoleStyle", "must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle)
	}

	// Storage
	if cfg.Storage.Driver != "" && !slices.Contains(validDrivers, cfg.Storage.Driver) {
		add("storage.driver", "must be one of %v, got %q", validDrivers, cfg.Storage.Driver)
	}

	// Escalation
	esc := cfg.Escalation
	if esc.SentimentThreshold < -1 || esc.SentimentThreshold > 1 {
		add("escalation.sentimentThreshold", "must be within [-1, 1], got %v", esc.SentimentThreshold)
	}
	if esc.EmotionStreak < 1 {
		add("escalation.emotionStreak", "must be at least 1, got %d", esc.EmotionStreak)
	}
	if esc.UnresolvedTurns < 1 {
		add("escalation.unresolvedTurns", "must be at least 1, got %d", esc.UnresolvedTurns)
	}
	if !slices.Contains(validSeverities, esc.AlertSeverity) {
		add("escalation.alertSeverity", "must be one of %v, got %q", validSeverities, esc.AlertSeverity)
	}
	if len(esc.NegativeEmotions) == 0 {
		add("escalation.negativeEmotions", "at least one emotion is required")
	}

	// Pipeline
	if cfg.Pipeline.MaxConcurrentAgentCalls < 1 {
		add("pipeline.maxConcurrentAgentCalls", "must be at least 1, got %d", cfg.Pipeline.MaxConcurrentAgentCalls)
	}
	if cfg.Pipeline.ConflictRetries < 0 {
		add("pipeline.conflictRetries", "must not be negative, got %d", cfg.Pipeline.ConflictRetries)
	}
	st := cfg.Pipeline.StageTimeouts
	timeouts := map[string]time.Duration{
		"intent": st.Intent, "knowledge": st.Knowledge, "emotion": st.Emotion,
		"anomaly": st.Anomaly, "analytics": st.Analytics,
	}
	for _, name := range slices.Sorted(maps.Keys(timeouts)) {
		if timeouts[name] < 0 {
			add("pipeline.stageTimeouts."+name, "must not be negative")
		}
	}

	// Agents
	agents := cfg.Agents.Entries()
	for _, name := range slices.Sorted(maps.Keys(agents)) {
		a := agents[name]
		path := "agents." + name
		if a.Mode != "" && !slices.Contains(validAgentModes, a.Mode) {
			add(path+".mode", "must be one of %v, got %q", validAgentModes, a.Mode)
			continue
		}
		if a.Mode == "remote" || a.Mode == "failover" {
			if a.URL == "" {
				add(path+".url", "required when mode is %s", a.Mode)
			} else if u, err := url.Parse(a.URL); err != nil || u.Scheme == "" || u.Host == "" {
				add(path+".url", "must be an absolute http(s) URL, got %q", a.URL)
			}
		}
	}

	// Feedback
	if cfg.Feedback.QueueSize < 1 {
		add("feedback.queueSize", "must be at least 1, got %d", cfg.Feedback.QueueSize)
	}
	if cfg.Feedback.Workers < 1 {
		add("feedback.workers", "must be at least 1, got %d", cfg.Feedback.Workers)
	}
	if cfg.Feedback.MaxAttempts < 1 {
		add("feedback.maxAttempts", "must be at least 1, got %d", cfg.Feedback.MaxAttempts)
	}

	if cfg.Knowledge.TopK < 1 {
		add("knowledge.topK", "must be at least 1, got %d", cfg.Knowledge.TopK)
	}

	// IRC (only if configured)
	if irc := cfg.Channels.IRC; irc != nil {
		if irc.Server == "" {
			add("channels.irc.server", "server is required")
		}
		if irc.Nick == "" {
			add("channels.irc.nick", "nick is required")
		}
		if irc.Port < 0 || irc.Port > 65535 {
			add("channels.irc.port", "port must be 0-65535, got %d", irc.Port)
		}
		if irc.SASL && irc.Password == "" {
			add("channels.irc.sasl", "SASL requires a password to be set")
		}
	}

	// Email (only if configured)
	if email := cfg.Channels.Email; email != nil {
		if email.Server == "" {
			add("channels.email.server", "server is required")
		}
		if email.Username == "" {
			add("channels.email.username", "username is required")
		}
		if email.Port < 0 || email.Port > 65535 {
			add("channels.email.port", "port must be 0-65535, got %d", email.Port)
		}
	}

	return issues
}
