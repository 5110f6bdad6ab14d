package scheduler

import (
	"context"
	"time"
)

// MinIntervalSeconds is the shortest "every" interval a scheduled task may
// use. Anything tighter is rejected at registration: a sub-hour interval
// on an agent-prompt task would otherwise spam the gating pipeline and the
// channel it delivers to.
const MinIntervalSeconds = 3600

// TaskType identifies the handler a ScheduledTask dispatches to.
type TaskType string

const (
	// TaskTypeAgent runs the task's prompt through the gating pipeline as a
	// fresh interceptor-scoped agent turn, execution_context "scheduler".
	TaskTypeAgent TaskType = "agent"

	// TaskTypeWebhook fires an HTTP request. Supplemented beyond the
	// distilled spec's agent-prompt jobs: see DESIGN.md.
	TaskTypeWebhook TaskType = "webhook"

	// TaskTypeCustom dispatches to a handler registered by name at runtime.
	// Supplemented beyond the distilled spec for the same reason as webhook.
	TaskTypeCustom TaskType = "custom"
)

// WebhookAuth configures outbound authentication for a webhook task.
type WebhookAuth struct {
	Type   string `json:"type"` // bearer | basic | api_key
	Token  string `json:"token,omitempty"`
	User   string `json:"user,omitempty"`
	Pass   string `json:"pass,omitempty"`
	Header string `json:"header,omitempty"`
}

// WebhookSpec is the payload for a TaskTypeWebhook task.
type WebhookSpec struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Body    string            `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Auth    *WebhookAuth      `json:"auth,omitempty"`
	Timeout time.Duration     `json:"timeout,omitempty"`
}

// CustomSpec is the payload for a TaskTypeCustom task.
type CustomSpec struct {
	Handler string         `json:"handler"`
	Args    map[string]any `json:"args,omitempty"`
}

// AgentSpec is the payload for a TaskTypeAgent task: the prompt to run and
// the channel to deliver the result to, if any.
type AgentSpec struct {
	Prompt    string `json:"prompt"`
	Channel   string `json:"channel,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
}

// RetryPolicy configures exponential backoff for a failed task, mirroring
// the cron job retry shape.
type RetryPolicy struct {
	MaxRetries int           `json:"max_retries,omitempty"`
	Backoff    time.Duration `json:"backoff,omitempty"`
	MaxBackoff time.Duration `json:"max_backoff,omitempty"`
}

// ScheduledTask is one entry in the scheduler's registry.
type ScheduledTask struct {
	ID      string   `json:"id"`
	Name    string   `json:"name,omitempty"`
	Type    TaskType `json:"type"`
	Enabled bool     `json:"enabled"`

	Schedule Schedule `json:"schedule"`
	Retry    RetryPolicy `json:"retry,omitempty"`

	Agent   *AgentSpec   `json:"agent,omitempty"`
	Webhook *WebhookSpec `json:"webhook,omitempty"`
	Custom  *CustomSpec  `json:"custom,omitempty"`

	NextRun    time.Time `json:"next_run,omitempty"`
	LastRun    time.Time `json:"last_run,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	RetryCount int       `json:"retry_count,omitempty"`
}

// AgentRunner executes a TaskTypeAgent task through the runtime's gating
// pipeline. The scheduler interceptor shares its auxiliary services
// (shield, reviewer, phone, channel adapters) by reference with the
// interactive interceptor; only execution_context differs.
type AgentRunner interface {
	Run(ctx context.Context, task *ScheduledTask) error
}

// AgentRunnerFunc adapts a function to an AgentRunner.
type AgentRunnerFunc func(ctx context.Context, task *ScheduledTask) error

func (f AgentRunnerFunc) Run(ctx context.Context, task *ScheduledTask) error { return f(ctx, task) }

// CustomHandler executes a TaskTypeCustom task.
type CustomHandler interface {
	Handle(ctx context.Context, task *ScheduledTask, args map[string]any) error
}

// CustomHandlerFunc adapts a function to a CustomHandler.
type CustomHandlerFunc func(ctx context.Context, task *ScheduledTask, args map[string]any) error

func (f CustomHandlerFunc) Handle(ctx context.Context, task *ScheduledTask, args map[string]any) error {
	return f(ctx, task, args)
}
