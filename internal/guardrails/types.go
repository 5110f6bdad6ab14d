// Package guardrails resolves the strategy and channel that govern a single
// tool invocation, generalizing the allow/deny policy resolver used
// elsewhere in the tree into the runtime's full escalation ladder.
package guardrails

import "strings"

// Strategy is the disposition the gating pipeline applies to a tool
// invocation. Precedence (highest first) when multiple rules match the
// same invocation: Deny > Pitl > Aitl > Filter > Hitl > Allow.
type Strategy string

const (
	StrategyAllow  Strategy = "allow"
	StrategyDeny   Strategy = "deny"
	StrategyFilter Strategy = "filter"
	StrategyAITL   Strategy = "aitl"
	StrategyPITL   Strategy = "pitl"
	StrategyHITL   Strategy = "hitl"
)

// precedence assigns each strategy a rank; higher wins a tie between
// equally-specific rules.
var precedence = map[Strategy]int{
	StrategyDeny:   6,
	StrategyPITL:   5,
	StrategyAITL:   4,
	StrategyFilter: 3,
	StrategyHITL:   2,
	StrategyAllow:  1,
}

// Stricter reports whether a has strictly higher precedence than b.
func Stricter(a, b Strategy) bool {
	return precedence[a] > precedence[b]
}

// Channel selects the transport used to solicit a human decision once a
// strategy resolves to one that needs a human or phone verifier.
type Channel string

const (
	ChannelWeb   Channel = "web"
	ChannelBot   Channel = "bot"
	ChannelPhone Channel = "phone"
)

// ExecutionContext labels the originator of a tool call so rules can vary
// behavior by caller. The three named contexts are well-known; anything
// else is accepted as a custom label.
type ExecutionContext string

const (
	ExecutionContextInteractive  ExecutionContext = "interactive"
	ExecutionContextScheduler    ExecutionContext = "scheduler"
	ExecutionContextBotProcessor ExecutionContext = "bot_processor"
)

// wildcard is the sentinel meaning "matches anything" for an optional rule
// field. An empty string is treated identically to "*".
const wildcard = "*"

// Rule matches a subset of (tool, mcp_server, execution_context, model) and
// names the strategy/channel to apply when it matches. Each field is
// optional; a present, non-wildcard field must match exactly or the rule is
// discarded for that invocation.
type Rule struct {
	Tool             string   `json:"tool,omitempty" yaml:"tool,omitempty"`
	MCPServer        string   `json:"mcp_server,omitempty" yaml:"mcp_server,omitempty"`
	ExecutionContext string   `json:"execution_context,omitempty" yaml:"execution_context,omitempty"`
	Model            string   `json:"model,omitempty" yaml:"model,omitempty"`
	Strategy         Strategy `json:"strategy" yaml:"strategy"`
	Channel          Channel  `json:"channel,omitempty" yaml:"channel,omitempty"`
}

func isWildcard(v string) bool {
	return v == "" || v == wildcard
}

// specificity scores how well the rule matches the given invocation fields.
// ok is false if any non-wildcard field on the rule conflicts with the
// invocation (a mismatch, not an absence). score is the number of
// non-wildcard fields that matched exactly.
func (r Rule) specificity(tool, mcpServer, execCtx, model string) (score int, ok bool) {
	check := func(ruleField, value string) bool {
		if isWildcard(ruleField) {
			return true
		}
		if !strings.EqualFold(ruleField, value) {
			return false
		}
		score++
		return true
	}
	if !check(r.Tool, tool) {
		return 0, false
	}
	if !check(r.MCPServer, mcpServer) {
		return 0, false
	}
	if !check(r.ExecutionContext, execCtx) {
		return 0, false
	}
	if !check(r.Model, model) {
		return 0, false
	}
	return score, true
}

// Decision is the resolved outcome of evaluating the rule table against one
// invocation.
type Decision struct {
	Strategy    Strategy
	Channel     Channel
	MatchedRule *Rule // nil when the default applied
}
