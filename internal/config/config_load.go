package config

import (
	"fmt"
	"strings"
	"time"
)

// Load reads, merges (resolving $include), and decodes the configuration at
// path, applying defaults and validating the result.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Tracing.SamplingRate == 0 {
		cfg.Tracing.SamplingRate = 1.0
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "warden"
	}

	if cfg.Auth.TokenExpiry == 0 {
		cfg.Auth.TokenExpiry = 24 * time.Hour
	}

	if cfg.ContentSafety.Timeout == 0 {
		cfg.ContentSafety.Timeout = 10 * time.Second
	}

	if cfg.Reviewer.Model == "" {
		cfg.Reviewer.Model = "claude-haiku-4-5-20251001"
	}
	if cfg.Reviewer.Timeout == 0 {
		cfg.Reviewer.Timeout = 60 * time.Second
	}

	if cfg.Approval.Timeout == 0 {
		cfg.Approval.Timeout = 5 * time.Minute
	}

	if cfg.ToolActivity.Level == "" {
		cfg.ToolActivity.Level = "info"
	}
	if cfg.ToolActivity.Format == "" {
		cfg.ToolActivity.Format = "json"
	}
	if cfg.ToolActivity.Output == "" {
		cfg.ToolActivity.Output = "stdout"
	}
	if cfg.ToolActivity.MaxFieldSize == 0 {
		cfg.ToolActivity.MaxFieldSize = 4096
	}

	if cfg.Scheduler.TasksPath == "" {
		cfg.Scheduler.TasksPath = "data/scheduler-tasks.json"
	}
	if cfg.Scheduler.TickInterval == 0 {
		cfg.Scheduler.TickInterval = 30 * time.Second
	}

	if cfg.Proactive.PollInterval == 0 {
		cfg.Proactive.PollInterval = time.Minute
	}
	if cfg.Proactive.ActiveHours.Start == "" {
		cfg.Proactive.ActiveHours.Start = "09:00"
	}
	if cfg.Proactive.ActiveHours.End == "" {
		cfg.Proactive.ActiveHours.End = "21:00"
	}
	if cfg.Proactive.ActiveHours.Timezone == "" {
		cfg.Proactive.ActiveHours.Timezone = "local"
	}

	if cfg.LLM.DefaultModel == "" {
		cfg.LLM.DefaultModel = "claude-sonnet-4-5-20250929"
	}
}

func validateConfig(cfg *Config) error {
	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		return fmt.Errorf("config: llm.api_key is required")
	}
	if strings.TrimSpace(cfg.Guardrails.RulesPath) == "" {
		return fmt.Errorf("config: guardrails.rules_path is required")
	}
	if cfg.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("config: scheduler.tick_interval must be positive")
	}
	if cfg.Reviewer.Enabled && strings.TrimSpace(cfg.Reviewer.APIKey) == "" {
		cfg.Reviewer.APIKey = cfg.LLM.APIKey
	}
	if cfg.Channels.Phone.Enabled {
		if strings.TrimSpace(cfg.Channels.Phone.AccountSID) == "" || strings.TrimSpace(cfg.Channels.Phone.AuthToken) == "" {
			return fmt.Errorf("config: channels.phone.account_sid and auth_token are required when phone is enabled")
		}
		if strings.TrimSpace(cfg.Channels.Phone.VerifyTo) == "" {
			return fmt.Errorf("config: channels.phone.verify_to is required when phone is enabled")
		}
	}
	if cfg.Proactive.Enabled {
		for _, day := range cfg.Proactive.ActiveHours.Days {
			if day < 0 || day > 6 {
				return fmt.Errorf("config: proactive.active_hours.days entries must be 0-6 (Sunday-Saturday), got %d", day)
			}
		}
	}
	return nil
}
