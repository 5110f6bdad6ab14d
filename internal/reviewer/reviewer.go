// Package reviewer implements the AI-in-the-loop (aitl) strategy: an
// ephemeral, one-shot model call that renders a structured approve/deny
// verdict on a single tool invocation, with no memory of prior calls.
package reviewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultTimeout bounds a single review call. A review that does not return
// within this window is treated as unavailable by the caller, which falls
// through to HITL rather than blocking indefinitely.
const DefaultTimeout = 60 * time.Second

// verdictToolName is the forced tool the model must call to answer; using
// tool_choice rather than parsing free text keeps the verdict machine-checked.
const verdictToolName = "submit_verdict"

// ErrUnavailable wraps any failure that should be treated as "the reviewer
// could not render a verdict" (timeout, malformed response, API error),
// signaling the caller to fall through to HITL rather than propagate.
var ErrUnavailable = errors.New("reviewer: unavailable")

// Verdict is the reviewer's structured decision.
type Verdict struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

// Reviewer renders one-shot verdicts using a fresh, stateless model call per
// invocation.
type Reviewer struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
	baseURL string
}

// Option configures a Reviewer.
type Option func(*Reviewer)

// WithModel overrides the default review model.
func WithModel(model string) Option {
	return func(r *Reviewer) { r.model = model }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Reviewer) { r.timeout = d }
}

// WithBaseURL points the reviewer at an alternate API endpoint (an Azure or
// Bedrock gateway, or a test server), mirroring the BaseURL override on the
// runtime's own Anthropic provider config.
func WithBaseURL(url string) Option {
	return func(r *Reviewer) { r.baseURL = url }
}

// New constructs a Reviewer backed by the Anthropic API.
func New(apiKey string, opts ...Option) *Reviewer {
	r := &Reviewer{
		model:   "claude-haiku-4-5-20251001",
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if r.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(r.baseURL))
	}
	r.client = anthropic.NewClient(clientOpts...)
	return r
}

var verdictSchemaJSON = []byte(`{
	"type": "object",
	"properties": {
		"approved": {"type": "boolean", "description": "whether the tool call should be permitted to execute"},
		"reason": {"type": "string", "description": "a short justification for the verdict"}
	},
	"required": ["approved", "reason"]
}`)

func verdictTool() (anthropic.ToolUnionParam, error) {
	var schema anthropic.ToolInputSchemaParam
	if err := json.Unmarshal(verdictSchemaJSON, &schema); err != nil {
		return anthropic.ToolUnionParam{}, fmt.Errorf("reviewer: invalid verdict schema: %w", err)
	}
	tool := anthropic.ToolUnionParamOfTool(schema, verdictToolName)
	if tool.OfTool == nil {
		return anthropic.ToolUnionParam{}, fmt.Errorf("reviewer: invalid verdict tool definition")
	}
	tool.OfTool.Description = anthropic.String("Submit the approve/deny verdict for the tool invocation under review.")
	return tool, nil
}

// Review asks the model whether a single tool invocation, described by tool
// name and its JSON arguments, should be permitted. A malformed response,
// timeout, or API error returns ErrUnavailable; the caller must treat that
// as "fall through to HITL", never as an automatic allow.
func (r *Reviewer) Review(ctx context.Context, tool, argumentsJSON, contextSummary string) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"A tool invocation is awaiting review. Decide whether it should be permitted.\n\n"+
			"Tool: %s\nArguments: %s\nSession context: %s\n\n"+
			"Call submit_verdict exactly once with your decision. Default to approved=false when uncertain.",
		tool, argumentsJSON, contextSummary,
	)

	tool, err := verdictTool()
	if err != nil {
		return Verdict{}, err
	}

	message, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: 512,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Tools: []anthropic.ToolUnionParam{tool},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: verdictToolName},
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return Verdict{}, fmt.Errorf("%w: review timed out: %w", ErrUnavailable, ctx.Err())
		}
		return Verdict{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	for _, block := range message.Content {
		toolUse := block.AsToolUse()
		if toolUse.Name != verdictToolName {
			continue
		}
		var verdict Verdict
		if err := json.Unmarshal(toolUse.Input, &verdict); err != nil {
			return Verdict{}, fmt.Errorf("%w: malformed verdict: %w", ErrUnavailable, err)
		}
		return verdict, nil
	}

	return Verdict{}, fmt.Errorf("%w: model did not call %s", ErrUnavailable, verdictToolName)
}
