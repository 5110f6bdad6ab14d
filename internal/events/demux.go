// Package events demultiplexes the runtime's typed AgentEvent stream: it
// deduplicates ToolStarted/ToolFinished events by call_id (a retried tool
// execution must not double-count against token/latency stats or double-
// deliver to a channel adapter), records model token usage onto the active
// OpenTelemetry span, and fans the stream out to interested consumers
// through the teacher's own EventSink contract.
package events

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wardenai/warden/internal/agent"
	"github.com/wardenai/warden/internal/cache"
	"github.com/wardenai/warden/pkg/models"
)

// dedupeTTL bounds how long a call_id is remembered for deduplication. Tool
// calls do not legitimately repeat within this window under the same id;
// after it elapses the id is forgotten rather than held forever.
const dedupeTTL = 10 * time.Minute

const dedupeMaxSize = 4096

// Demultiplexer wraps a downstream EventSink, deduplicating tool lifecycle
// events by call_id and annotating the active span with token usage before
// forwarding every event onward unchanged.
type Demultiplexer struct {
	downstream agent.EventSink
	seen       *cache.DedupeCache
}

// New constructs a Demultiplexer forwarding to downstream. A nil downstream
// is replaced with agent.NopSink{}, matching EventEmitter's own nil-sink
// convention.
func New(downstream agent.EventSink) *Demultiplexer {
	if downstream == nil {
		downstream = agent.NopSink{}
	}
	return &Demultiplexer{
		downstream: downstream,
		seen: cache.NewDedupeCache(cache.DedupeCacheOptions{
			TTL:     dedupeTTL,
			MaxSize: dedupeMaxSize,
		}),
	}
}

// Emit implements agent.EventSink. It drops a duplicate ToolStarted or
// ToolFinished carrying a call_id already seen, records token usage from
// ModelCompleted onto ctx's active span, and forwards every other event
// straight through.
func (d *Demultiplexer) Emit(ctx context.Context, e models.AgentEvent) {
	switch e.Type {
	case models.AgentEventToolStarted, models.AgentEventToolFinished, models.AgentEventToolTimedOut:
		if e.Tool != nil && e.Tool.CallID != "" {
			key := string(e.Type) + ":" + e.Tool.CallID
			if d.seen.Check(key) {
				return
			}
		}

	case models.AgentEventModelCompleted:
		recordTokenUsage(ctx, e)
	}

	d.downstream.Emit(ctx, e)
}

// recordTokenUsage annotates the span active in ctx with the provider,
// model, and token counts from a model.completed event. A non-recording
// span (no tracer configured, or the call originated outside a traced
// request) silently no-ops, matching trace.Span's documented behavior.
func recordTokenUsage(ctx context.Context, e models.AgentEvent) {
	if e.Stream == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("llm.provider", e.Stream.Provider),
		attribute.String("llm.model", e.Stream.Model),
		attribute.Int("llm.input_tokens", e.Stream.InputTokens),
		attribute.Int("llm.output_tokens", e.Stream.OutputTokens),
	)
	span.AddEvent("llm.token_usage", trace.WithAttributes(
		attribute.Int("llm.input_tokens", e.Stream.InputTokens),
		attribute.Int("llm.output_tokens", e.Stream.OutputTokens),
	))
}
