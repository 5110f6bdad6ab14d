// Package interceptor implements the tool gating pipeline: for every tool
// invocation it resolves a strategy via guardrails, runs the content-safety
// shield, dispatches to the AI reviewer or a human approval channel as the
// strategy demands, and records the full lifecycle to the audit store.
//
// Failure semantics are fail-closed throughout: a shield error denies, a
// reviewer error falls through to HITL, and a channel that cannot be
// reached falls through to the next channel or denies. Nothing ever
// fails open to an automatic allow.
package interceptor

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wardenai/warden/internal/approval"
	"github.com/wardenai/warden/internal/audit"
	"github.com/wardenai/warden/internal/guardrails"
	"github.com/wardenai/warden/internal/reviewer"
	"github.com/wardenai/warden/internal/shield"
)

// Request describes one tool invocation awaiting a gating decision.
type Request struct {
	CallID           string
	Tool             string
	MCPServer        string
	Category         audit.ToolCategory // sdk/custom/mcp/skill; derived from MCPServer if unset
	Model            string
	ExecutionContext guardrails.ExecutionContext
	Arguments        string
	SessionKey       string
	UserID           string
	ContextSummary   string // short natural-language summary for the AI reviewer

	// PreferredChannel is the channel the invocation originated from
	// (e.g. which bot chat or web session is asking), used for FIFO
	// approval resolution on that channel.
	PreferredChannel string
}

// Decision is the pipeline's final verdict on a Request.
type Decision struct {
	Allowed  bool
	Strategy guardrails.Strategy
	Channel  guardrails.Channel
	Reason   string
}

// WebNotifier pushes an approval_request frame to a web session and awaits
// nothing itself; resolution arrives asynchronously through the broker.
type WebNotifier interface {
	NotifyApproval(ctx context.Context, sessionKey, callID, tool, argsJSON string) error
}

// BotNotifier sends an approval prompt to a chat channel; resolution is via
// the broker's FIFO reply matching on that channel, not a return value here.
type BotNotifier interface {
	NotifyApproval(ctx context.Context, channel, callID, tool, argsJSON string) error
}

// PhoneInitiator places an outbound verification call. Initiation failure is
// a TransportError and falls through (never allows).
type PhoneInitiator interface {
	InitiateVerification(ctx context.Context, callID, tool, argsJSON string) error
}

// Interceptor wires guardrails resolution, the content-safety shield, the AI
// reviewer, the approval broker, and the channel adapters into the gating
// pipeline described by the runtime's escalation ladder.
type Interceptor struct {
	Resolver *guardrails.Resolver
	Store    *audit.Store
	Broker   *approval.Broker
	Shield   *shield.Client
	Reviewer *reviewer.Reviewer

	Web   WebNotifier
	Bot   BotNotifier
	Phone PhoneInitiator

	Logger *slog.Logger
}

// New constructs an Interceptor. Shield, Reviewer, Web, Bot, and Phone may
// be nil; their corresponding strategies then fall through per the rules
// documented on Intercept.
func New(resolver *guardrails.Resolver, store *audit.Store, broker *approval.Broker) *Interceptor {
	return &Interceptor{
		Resolver: resolver,
		Store:    store,
		Broker:   broker,
		Logger:   slog.Default(),
	}
}

// category returns req's declared category, or derives one from whether the
// invocation carries an MCP server hint (mcp) vs. a plain SDK tool (sdk).
// Custom and skill categories are always caller-declared.
func category(req Request) audit.ToolCategory {
	if req.Category != "" {
		return req.Category
	}
	if req.MCPServer != "" {
		return audit.CategoryMCP
	}
	return audit.CategorySDK
}

// interactionType maps a resolved strategy onto the audit entry's
// interaction_type field. An allow strategy records an empty interaction
// type: allow is the absence of any escalation, not a member of the
// {hitl,aitl,pitl,filter,deny} set.
func interactionType(strategy guardrails.Strategy) string {
	if strategy == guardrails.StrategyAllow {
		return ""
	}
	return string(strategy)
}

func (i *Interceptor) logger() *slog.Logger {
	if i.Logger != nil {
		return i.Logger
	}
	return slog.Default()
}

// Intercept runs the full gating pipeline for one tool invocation:
//
//  1. always-approved shortcut
//  2. record start
//  3. resolve strategy/channel
//  4. short-circuit allow/deny
//  5. pre-shield (skipped for filter, which IS the shield)
//  6. strategy dispatch: aitl review, filter-only, pitl (phone), hitl
//  7. approval solicitation channel resolution when human input is needed
//  8. record resolution
func (i *Interceptor) Intercept(ctx context.Context, req Request) (Decision, error) {
	start := time.Now()

	if i.Resolver.IsAlwaysApproved(req.Tool) {
		i.record(ctx, req, start, guardrails.StrategyAllow, guardrails.ChannelWeb, audit.OutcomeAllowed, "always-approved tool")
		return Decision{Allowed: true, Strategy: guardrails.StrategyAllow, Reason: "always-approved tool"}, nil
	}

	entryID := i.recordStart(ctx, req, start)

	decision := i.Resolver.Resolve(req.Tool, req.MCPServer, string(req.ExecutionContext), req.Model)

	switch decision.Strategy {
	case guardrails.StrategyAllow:
		i.complete(ctx, entryID, req, start, decision, audit.OutcomeAllowed, "strategy allow", nil)
		return Decision{Allowed: true, Strategy: decision.Strategy, Channel: decision.Channel, Reason: "strategy allow"}, nil

	case guardrails.StrategyDeny:
		i.complete(ctx, entryID, req, start, decision, audit.OutcomeDenied, "strategy deny", nil)
		return Decision{Allowed: false, Strategy: decision.Strategy, Channel: decision.Channel, Reason: "strategy deny"}, nil
	}

	// Every remaining strategy (filter, aitl, pitl, hitl) is preceded by the
	// content-safety shield, except when the strategy IS the shield. The
	// probe result, including a fail-closed synthetic one on transport
	// error, is attached to the audit entry before the tool ever executes.
	if decision.Strategy != guardrails.StrategyFilter {
		if i.Shield != nil {
			result, err := i.Shield.Probe(ctx, req.Arguments)
			if err != nil || result.AttackDetected {
				reason := "shield denied"
				if err != nil {
					reason = fmt.Sprintf("shield unavailable: %v", err)
				}
				i.complete(ctx, entryID, req, start, decision, audit.OutcomeDenied, reason, &result)
				return Decision{Allowed: false, Strategy: decision.Strategy, Channel: decision.Channel, Reason: reason}, nil
			}
			i.updateShieldResult(ctx, req.CallID, result)
		}
	}

	switch decision.Strategy {
	case guardrails.StrategyFilter:
		if i.Shield == nil {
			i.complete(ctx, entryID, req, start, decision, audit.OutcomeDenied, "shield unavailable", nil)
			return Decision{Allowed: false, Strategy: decision.Strategy, Channel: decision.Channel, Reason: "shield unavailable"}, nil
		}
		result, err := i.Shield.Probe(ctx, req.Arguments)
		if err != nil || result.AttackDetected {
			reason := "filter denied"
			if err != nil {
				reason = fmt.Sprintf("shield unavailable: %v", err)
			}
			i.complete(ctx, entryID, req, start, decision, audit.OutcomeFiltered, reason, &result)
			return Decision{Allowed: false, Strategy: decision.Strategy, Channel: decision.Channel, Reason: reason}, nil
		}
		i.complete(ctx, entryID, req, start, decision, audit.OutcomeAllowed, "filter passed", &result)
		return Decision{Allowed: true, Strategy: decision.Strategy, Channel: decision.Channel, Reason: "filter passed"}, nil

	case guardrails.StrategyAITL:
		return i.dispatchAITL(ctx, entryID, req, start, decision)

	case guardrails.StrategyPITL:
		return i.dispatchPITL(ctx, entryID, req, start, decision)

	case guardrails.StrategyHITL:
		return i.dispatchHITL(ctx, entryID, req, start, decision)
	}

	// Unreachable for a well-formed Decision, but fail-closed on principle.
	i.complete(ctx, entryID, req, start, decision, audit.OutcomeDenied, "unknown strategy", nil)
	return Decision{Allowed: false, Strategy: decision.Strategy, Channel: decision.Channel, Reason: "unknown strategy"}, nil
}

// dispatchAITL asks the AI reviewer for a verdict. Any reviewer failure
// (timeout, malformed verdict, API error) falls through to HITL rather than
// propagating or allowing automatically.
func (i *Interceptor) dispatchAITL(ctx context.Context, entryID string, req Request, start time.Time, decision guardrails.Decision) (Decision, error) {
	if i.Reviewer != nil {
		verdict, err := i.Reviewer.Review(ctx, req.Tool, req.Arguments, req.ContextSummary)
		if err == nil {
			outcome := audit.OutcomeApproved
			if !verdict.Approved {
				outcome = audit.OutcomeRejected
			}
			i.complete(ctx, entryID, req, start, decision, outcome, verdict.Reason, nil)
			return Decision{Allowed: verdict.Approved, Strategy: decision.Strategy, Channel: decision.Channel, Reason: verdict.Reason}, nil
		}
		i.logger().Warn("aitl review unavailable, falling through to hitl", "error", err, "call_id", req.CallID)
	}
	return i.dispatchHITL(ctx, entryID, req, start, decision)
}

// dispatchPITL initiates an outbound phone verification. A failure to place
// the call is a TransportError and denies; it never falls through to an
// automatic allow, but per spec does fall through to the web channel for
// the actual human decision once the call is placed (the call itself only
// verifies identity, the web approval still resolves the tool call).
func (i *Interceptor) dispatchPITL(ctx context.Context, entryID string, req Request, start time.Time, decision guardrails.Decision) (Decision, error) {
	if i.Phone == nil {
		return i.dispatchHITL(ctx, entryID, req, start, decision)
	}
	if err := i.Phone.InitiateVerification(ctx, req.CallID, req.Tool, req.Arguments); err != nil {
		reason := fmt.Sprintf("phone initiation failed: %v", err)
		i.complete(ctx, entryID, req, start, decision, audit.OutcomeDenied, reason, nil)
		return Decision{Allowed: false, Strategy: decision.Strategy, Channel: decision.Channel, Reason: reason}, nil
	}
	// Phone verifies identity; the approval itself still resolves through
	// the broker on the web channel once the call completes.
	return i.awaitApproval(ctx, entryID, req, start, decision, guardrails.ChannelWeb)
}

// dispatchHITL resolves the channel to solicit a human decision from, in
// priority order phone > bot > web, falling through on transport failure
// and denying (never hanging) if nothing can be reached.
func (i *Interceptor) dispatchHITL(ctx context.Context, entryID string, req Request, start time.Time, decision guardrails.Decision) (Decision, error) {
	channel := decision.Channel
	switch channel {
	case guardrails.ChannelPhone:
		if i.Phone != nil {
			if err := i.Phone.InitiateVerification(ctx, req.CallID, req.Tool, req.Arguments); err == nil {
				return i.awaitApproval(ctx, entryID, req, start, decision, guardrails.ChannelPhone)
			}
			i.logger().Warn("phone channel unreachable, falling through to bot", "call_id", req.CallID)
		}
		fallthrough
	case guardrails.ChannelBot:
		if i.Bot != nil {
			if err := i.Bot.NotifyApproval(ctx, req.PreferredChannel, req.CallID, req.Tool, req.Arguments); err == nil {
				return i.awaitApproval(ctx, entryID, req, start, decision, guardrails.ChannelBot)
			}
			i.logger().Warn("bot channel unreachable, falling through to web", "call_id", req.CallID)
		}
		fallthrough
	case guardrails.ChannelWeb:
		if i.Web != nil {
			if err := i.Web.NotifyApproval(ctx, req.SessionKey, req.CallID, req.Tool, req.Arguments); err == nil {
				return i.awaitApproval(ctx, entryID, req, start, decision, guardrails.ChannelWeb)
			}
		}
	}

	reason := "no approval channel reachable"
	i.complete(ctx, entryID, req, start, decision, audit.OutcomeDenied, reason, nil)
	return Decision{Allowed: false, Strategy: decision.Strategy, Channel: decision.Channel, Reason: reason}, nil
}

// awaitApproval registers the call_id with the broker and blocks until a
// human resolves it, the broker's timeout fires, or ctx is cancelled.
func (i *Interceptor) awaitApproval(ctx context.Context, entryID string, req Request, start time.Time, decision guardrails.Decision, resolvedChannel guardrails.Channel) (Decision, error) {
	wait, err := i.Broker.Register(ctx, req.CallID, req.Tool, req.PreferredChannel)
	if err != nil {
		if errors.Is(err, approval.ErrAlreadyPending) {
			reason := "duplicate call_id already awaiting approval"
			i.complete(ctx, entryID, req, start, decision, audit.OutcomeDenied, reason, nil)
			return Decision{Allowed: false, Strategy: decision.Strategy, Channel: resolvedChannel, Reason: reason}, nil
		}
		return Decision{}, err
	}

	approved, err := wait(ctx)
	if err != nil {
		i.complete(ctx, entryID, req, start, decision, audit.OutcomeTimedOut, "approval wait cancelled", nil)
		return Decision{Allowed: false, Strategy: decision.Strategy, Channel: resolvedChannel, Reason: "approval wait cancelled"}, nil
	}

	outcome := audit.OutcomeApproved
	reason := "approved by human"
	if !approved {
		outcome = audit.OutcomeRejected
		reason = "denied or timed out"
	}
	i.complete(ctx, entryID, req, start, decision, outcome, reason, nil)
	return Decision{Allowed: approved, Strategy: decision.Strategy, Channel: resolvedChannel, Reason: reason}, nil
}

func (i *Interceptor) recordStart(ctx context.Context, req Request, start time.Time) string {
	if i.Store == nil {
		return ""
	}
	entry := &audit.ToolActivityEntry{
		ID:               newID(),
		CallID:           req.CallID,
		Tool:             req.Tool,
		MCPServer:        req.MCPServer,
		Category:         category(req),
		Model:            req.Model,
		ExecutionContext: string(req.ExecutionContext),
		SessionKey:       req.SessionKey,
		UserID:           req.UserID,
		Arguments:        req.Arguments,
		ArgumentsHash:    audit.HashArguments(req.Arguments),
		StartedAt:        start,
	}
	entry.WithRisk()
	if err := i.Store.Append(ctx, entry); err != nil {
		i.logger().Warn("failed to record tool activity start", "error", err, "call_id", req.CallID)
	}
	return entry.ID
}

// updateShieldResult amends the pending entry for a clean shield probe (one
// that did not deny) so the result is still attached to the audit trail even
// though the invocation goes on to aitl/pitl/hitl dispatch before it has a
// terminal outcome to record via complete.
func (i *Interceptor) updateShieldResult(ctx context.Context, callID string, result shield.Result) {
	if i.Store == nil || callID == "" {
		return
	}
	if err := i.Store.UpdateShieldResult(ctx, callID, result.AttackDetected, result.Detail, result.ElapsedMs); err != nil {
		i.logger().Warn("failed to record shield probe result", "error", err, "call_id", callID)
	}
}

func (i *Interceptor) complete(ctx context.Context, entryID string, req Request, start time.Time, decision guardrails.Decision, outcome audit.Outcome, reason string, probe *shield.Result) {
	if i.Store == nil {
		return
	}
	entry := &audit.ToolActivityEntry{
		ID:               entryID,
		CallID:           req.CallID,
		Tool:             req.Tool,
		MCPServer:        req.MCPServer,
		Category:         category(req),
		Model:            req.Model,
		ExecutionContext: string(req.ExecutionContext),
		Channel:          string(decision.Channel),
		Strategy:         string(decision.Strategy),
		InteractionType:  interactionType(decision.Strategy),
		Outcome:          outcome,
		Arguments:        req.Arguments,
		ArgumentsHash:    audit.HashArguments(req.Arguments),
		Reason:           reason,
		SessionKey:       req.SessionKey,
		UserID:           req.UserID,
		StartedAt:        start,
		ResolvedAt:       time.Now(),
		DurationMs:       time.Since(start).Milliseconds(),
	}
	if probe != nil {
		entry.SetShieldResult(probe.AttackDetected, probe.Detail, probe.ElapsedMs)
	}
	entry.WithRisk()
	if entryID == "" {
		entry.ID = newID()
	}
	if err := i.Store.Append(ctx, entry); err != nil {
		i.logger().Warn("failed to record tool activity completion", "error", err, "call_id", req.CallID)
	}
}

// record is the single-step path for the always-approved shortcut, which
// bypasses resolution (and the shield) entirely and so has no separate
// start/complete phase.
func (i *Interceptor) record(ctx context.Context, req Request, start time.Time, strategy guardrails.Strategy, channel guardrails.Channel, outcome audit.Outcome, reason string) {
	if i.Store == nil {
		return
	}
	entry := &audit.ToolActivityEntry{
		ID:               newID(),
		CallID:           req.CallID,
		Tool:             req.Tool,
		MCPServer:        req.MCPServer,
		Category:         category(req),
		Model:            req.Model,
		ExecutionContext: string(req.ExecutionContext),
		Channel:          string(channel),
		Strategy:         string(strategy),
		InteractionType:  interactionType(strategy),
		Outcome:          outcome,
		Arguments:        req.Arguments,
		ArgumentsHash:    audit.HashArguments(req.Arguments),
		Reason:           reason,
		SessionKey:       req.SessionKey,
		UserID:           req.UserID,
		StartedAt:        start,
		ResolvedAt:       time.Now(),
		DurationMs:       time.Since(start).Milliseconds(),
	}
	entry.WithRisk()
	if err := i.Store.Append(ctx, entry); err != nil {
		i.logger().Warn("failed to record always-approved tool activity", "error", err, "call_id", req.CallID)
	}
}

func newID() string {
	var buf [12]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}
