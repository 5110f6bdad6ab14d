package config

import "time"

// Config is the root configuration structure for the runtime.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Tracing       TracingConfig       `yaml:"tracing"`
	Auth          AuthConfig          `yaml:"auth"`
	Guardrails    GuardrailsConfig    `yaml:"guardrails"`
	ContentSafety ContentSafetyConfig `yaml:"content_safety"`
	Reviewer      ReviewerConfig      `yaml:"reviewer"`
	Approval      ApprovalConfig      `yaml:"approval"`
	ToolActivity  ToolActivityConfig  `yaml:"tool_activity"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Proactive     ProactiveConfig     `yaml:"proactive"`
	Channels      ChannelsConfig      `yaml:"channels"`
	LLM           LLMConfig           `yaml:"llm"`
}

// ServerConfig configures the runtime's listen addresses.
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// LoggingConfig configures structured logging, translated into an
// observability.LogConfig at startup (Output defaults to os.Stdout there).
type LoggingConfig struct {
	Level          string   `yaml:"level"`
	Format         string   `yaml:"format"`
	AddSource      bool     `yaml:"add_source"`
	RedactPatterns []string `yaml:"redact_patterns"`
}

// TracingConfig configures OpenTelemetry export, translated into an
// observability.TraceConfig at startup. Endpoint empty disables tracing.
type TracingConfig struct {
	ServiceName  string  `yaml:"service_name"`
	Environment  string  `yaml:"environment"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// AuthConfig configures the JWT bearer auth guarding the gateway and web API.
type AuthConfig struct {
	JWTSecret   string         `yaml:"jwt_secret"`
	TokenExpiry time.Duration  `yaml:"token_expiry"`
	APIKeys     []APIKeyConfig `yaml:"api_keys"`
}

// APIKeyConfig grants programmatic access under a fixed key.
type APIKeyConfig struct {
	Key    string `yaml:"key"`
	UserID string `yaml:"user_id"`
	Name   string `yaml:"name"`
}

// GuardrailsConfig points at the on-disk rule table guardrails.Load reads.
type GuardrailsConfig struct {
	RulesPath      string   `yaml:"rules_path"`
	AlwaysApproved []string `yaml:"always_approved"`
}

// ContentSafetyConfig configures the shield.Client used for content-safety
// screening ahead of the escalation ladder.
type ContentSafetyConfig struct {
	Enabled bool          `yaml:"enabled"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// ReviewerConfig configures the AI-reviewer escalation tier.
type ReviewerConfig struct {
	Enabled bool          `yaml:"enabled"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ApprovalConfig configures the human-in-the-loop approval broker.
type ApprovalConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// ToolActivityConfig configures the audit trail (internal/audit).
type ToolActivityConfig struct {
	Enabled               bool     `yaml:"enabled"`
	Level                 string   `yaml:"level"`
	Format                string   `yaml:"format"`
	Output                string   `yaml:"output"`
	IncludeToolInput      bool     `yaml:"include_tool_input"`
	IncludeToolOutput     bool     `yaml:"include_tool_output"`
	IncludeMessageContent bool     `yaml:"include_message_content"`
	MaxFieldSize          int      `yaml:"max_field_size"`
	EventTypes            []string `yaml:"event_types"`
}

// SchedulerConfig points the scheduler at its persisted task table and
// controls how often it looks for due work.
type SchedulerConfig struct {
	TasksPath    string        `yaml:"tasks_path"`
	TickInterval time.Duration `yaml:"tick_interval"`
}

// ProactiveConfig configures the deliver/generate background loop.
type ProactiveConfig struct {
	Enabled      bool                `yaml:"enabled"`
	PollInterval time.Duration       `yaml:"poll_interval"`
	ActiveHours  ActiveHoursConfig   `yaml:"active_hours"`
	Limits       ProactiveLimitsConf `yaml:"limits"`
}

// ActiveHoursConfig is the yaml-facing form of proactive.ActiveHours.
type ActiveHoursConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	Timezone string `yaml:"timezone"`
	Days     []int  `yaml:"days"`
}

// ProactiveLimitsConf is the yaml-facing form of proactive.Limits.
type ProactiveLimitsConf struct {
	DailyMax int           `yaml:"daily_max"`
	MinGap   time.Duration `yaml:"min_gap"`
}

// ChannelsConfig configures the chat/voice channel adapters.
type ChannelsConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Slack    SlackConfig    `yaml:"slack"`
	Discord  DiscordConfig  `yaml:"discord"`
	Web      WebConfig      `yaml:"web"`
	Phone    PhoneConfig    `yaml:"phone"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	Webhook  string `yaml:"webhook"`
}

type SlackConfig struct {
	Enabled       bool   `yaml:"enabled"`
	BotToken      string `yaml:"bot_token"`
	AppToken      string `yaml:"app_token"`
	SigningSecret string `yaml:"signing_secret"`
}

type DiscordConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	AppID    string `yaml:"app_id"`
}

// WebConfig configures the gateway's WebSocket chat surface.
type WebConfig struct {
	Enabled    bool          `yaml:"enabled"`
	PingPeriod time.Duration `yaml:"ping_period"`
}

// PhoneConfig configures outbound Twilio voice verification calls.
type PhoneConfig struct {
	Enabled        bool   `yaml:"enabled"`
	AccountSID     string `yaml:"account_sid"`
	AuthToken      string `yaml:"auth_token"`
	PublicURL      string `yaml:"public_url"`
	VerifyTo       string `yaml:"verify_to"`
	VerifyFrom     string `yaml:"verify_from"`
	WebhookBaseURL string `yaml:"webhook_base_url"`
}

// LLMConfig configures the Anthropic-backed agent provider shared by the
// agent loop, the AI reviewer, and the proactive generator.
type LLMConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
}
