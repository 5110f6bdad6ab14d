package proactive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultGenerateTimeout bounds a single generation call.
const DefaultGenerateTimeout = 30 * time.Second

// ErrNoFollowup is returned when the model declines to produce a message
// this cycle, or the candidate fails the length bounds. Neither is an
// error condition for the loop: both simply mean "nothing to deliver".
var ErrNoFollowup = errors.New("proactive: no candidate message this cycle")

// Generator produces a one-shot candidate proactive message for a user, with
// no memory of prior generation attempts beyond what the caller includes in
// the prompt it builds.
type Generator interface {
	Generate(ctx context.Context, contextSummary string) (string, error)
}

// AnthropicGenerator is a Generator backed by a single, tool-free Anthropic
// completion call, mirroring the reviewer package's ephemeral one-shot
// call shape but asking for free text rather than a forced tool call.
type AnthropicGenerator struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
	baseURL string
}

// GeneratorOption configures an AnthropicGenerator.
type GeneratorOption func(*AnthropicGenerator)

// WithGeneratorModel overrides the default generation model.
func WithGeneratorModel(model string) GeneratorOption {
	return func(g *AnthropicGenerator) { g.model = model }
}

// WithGeneratorTimeout overrides DefaultGenerateTimeout.
func WithGeneratorTimeout(d time.Duration) GeneratorOption {
	return func(g *AnthropicGenerator) { g.timeout = d }
}

// WithGeneratorBaseURL points the generator at an alternate API endpoint.
func WithGeneratorBaseURL(url string) GeneratorOption {
	return func(g *AnthropicGenerator) { g.baseURL = url }
}

// NewAnthropicGenerator constructs a Generator backed by the Anthropic API.
func NewAnthropicGenerator(apiKey string, opts ...GeneratorOption) *AnthropicGenerator {
	g := &AnthropicGenerator{
		model:   "claude-haiku-4-5-20251001",
		timeout: DefaultGenerateTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if g.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(g.baseURL))
	}
	g.client = anthropic.NewClient(clientOpts...)
	return g
}

// Generate asks the model for a single candidate proactive message given a
// summary of the user's recent session context. The model may refuse by
// returning exactly NoFollowupToken; a candidate outside
// [MinMessageChars, MaxMessageChars] is rejected the same way as a refusal.
func (g *AnthropicGenerator) Generate(ctx context.Context, contextSummary string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"The user has been idle for a while. Decide whether a brief, useful "+
			"follow-up message is warranted given their recent session context "+
			"below. If nothing is worth saying, reply with exactly %s and "+
			"nothing else. Otherwise reply with only the message text, %d to "+
			"%d characters, no preamble.\n\nRecent context:\n%s",
		NoFollowupToken, MinMessageChars, MaxMessageChars, contextSummary,
	)

	message, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: 256,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("proactive: generation timed out: %w", ctx.Err())
		}
		return "", fmt.Errorf("proactive: generation request: %w", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if tb := block.AsText(); tb.Text != "" {
			text.WriteString(tb.Text)
		}
	}

	return validateCandidate(text.String())
}

// validateCandidate applies the refusal token and length-bound rules shared
// by every Generator implementation.
func validateCandidate(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" || candidate == NoFollowupToken {
		return "", ErrNoFollowup
	}
	if len(candidate) < MinMessageChars || len(candidate) > MaxMessageChars {
		return "", ErrNoFollowup
	}
	return candidate, nil
}
