package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields resolves ${ENV_VAR} references in credential fields.
func expandSensitiveFields(cfg *Config) {
	cfg.Gateway.Auth.Token = expandEnvVars(cfg.Gateway.Auth.Token)
	cfg.Gateway.Auth.Password = expandEnvVars(cfg.Gateway.Auth.Password)
	if cfg.Channels.IRC != nil {
		cfg.Channels.IRC.Password = expandEnvVars(cfg.Channels.IRC.Password)
	}
	if cfg.Channels.Email != nil {
		cfg.Channels.Email.Password = expandEnvVars(cfg.Channels.Email.Password)
	}
	for _, a := range []*AgentEntry{
		&cfg.Agents.Intent, &cfg.Agents.Knowledge, &cfg.Agents.Emotion,
		&cfg.Agents.Anomaly, &cfg.Agents.Analytics,
	} {
		a.APIKey = expandEnvVars(a.APIKey)
	}
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// FromRaw decodes an edited raw tree the same way Load decodes the file,
// so a change can be validated before it is saved.
func FromRaw(raw map[string]any) (Config, error) {
	cfg := Defaults()
	data, err := yaml.Marshal(raw)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	applyDefaults(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
// The sentiment threshold is left alone since zero is a legal value.
func applyDefaults(cfg *Config) {
	d := Defaults()

	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = d.Gateway.Port
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = d.Gateway.Bind
	}
	if cfg.Gateway.Auth.Mode == "" {
		cfg.Gateway.Auth.Mode = d.Gateway.Auth.Mode
	}
	if cfg.Gateway.MaxBodyBytes == 0 {
		cfg.Gateway.MaxBodyBytes = d.Gateway.MaxBodyBytes
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = d.Logging.ConsoleStyle
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = d.Storage.Driver
	}
	if cfg.Escalation.EmotionStreak == 0 {
		cfg.Escalation.EmotionStreak = d.Escalation.EmotionStreak
	}
	if cfg.Escalation.UnresolvedTurns == 0 {
		cfg.Escalation.UnresolvedTurns = d.Escalation.UnresolvedTurns
	}
	if cfg.Escalation.AlertSeverity == "" {
		cfg.Escalation.AlertSeverity = d.Escalation.AlertSeverity
	}
	if len(cfg.Escalation.NegativeEmotions) == 0 {
		cfg.Escalation.NegativeEmotions = d.Escalation.NegativeEmotions
	}

	st, dst := &cfg.Pipeline.StageTimeouts, d.Pipeline.StageTimeouts
	if st.Intent == 0 {
		st.Intent = dst.Intent
	}
	if st.Knowledge == 0 {
		st.Knowledge = dst.Knowledge
	}
	if st.Emotion == 0 {
		st.Emotion = dst.Emotion
	}
	if st.Anomaly == 0 {
		st.Anomaly = dst.Anomaly
	}
	if st.Analytics == 0 {
		st.Analytics = dst.Analytics
	}
	if cfg.Pipeline.MaxConcurrentAgentCalls == 0 {
		cfg.Pipeline.MaxConcurrentAgentCalls = d.Pipeline.MaxConcurrentAgentCalls
	}
	if cfg.Pipeline.FallbackResponse == nil {
		cfg.Pipeline.FallbackResponse = d.Pipeline.FallbackResponse
	}
	if cfg.Pipeline.FallbackResponse[domain.LanguageEnglish] == "" {
		cfg.Pipeline.FallbackResponse[domain.LanguageEnglish] = d.Pipeline.FallbackResponse[domain.LanguageEnglish]
	}

	for _, a := range []*AgentEntry{
		&cfg.Agents.Intent, &cfg.Agents.Knowledge, &cfg.Agents.Emotion,
		&cfg.Agents.Anomaly, &cfg.Agents.Analytics,
	} {
		if a.Mode == "" {
			a.Mode = "local"
		}
	}

	if cfg.Feedback.QueueSize == 0 {
		cfg.Feedback.QueueSize = d.Feedback.QueueSize
	}
	if cfg.Feedback.Workers == 0 {
		cfg.Feedback.Workers = d.Feedback.Workers
	}
	if cfg.Feedback.MaxAttempts == 0 {
		cfg.Feedback.MaxAttempts = d.Feedback.MaxAttempts
	}
	if cfg.Feedback.Backoff == 0 {
		cfg.Feedback.Backoff = d.Feedback.Backoff
	}
	if cfg.Feedback.RecoverInterval == 0 {
		cfg.Feedback.RecoverInterval = d.Feedback.RecoverInterval
	}
	if cfg.Knowledge.TopK == 0 {
		cfg.Knowledge.TopK = d.Knowledge.TopK
	}

	if cfg.Channels.Email != nil {
		e := cfg.Channels.Email
		if e.Port == 0 {
			e.Port = 993
		}
		if e.Mailbox == "" {
			e.Mailbox = "INBOX"
		}
		if e.DraftsFolder == "" {
			e.DraftsFolder = "Drafts"
		}
		if e.PollInterval == 0 {
			e.PollInterval = time.Minute
		}
	}
}

// applyEnvOverrides reads CAREAI_* environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CAREAI_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("CAREAI_GATEWAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("CAREAI_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Auth.Token = v
	}
	if v := os.Getenv("CAREAI_GATEWAY_PASSWORD"); v != "" {
		cfg.Gateway.Auth.Password = v
	}
	if v := os.Getenv("CAREAI_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("CAREAI_DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("CAREAI_SENTIMENT_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Escalation.SentimentThreshold = f
		}
	}
}
