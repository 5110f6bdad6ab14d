package audit

import (
	"strings"
	"time"
)

// RiskFactor names a suspicious pattern detected in a tool invocation's
// arguments or output. Patterns mirror the shell/SSRF hazard tables used
// elsewhere in the tree: substring matches against argument values, not a
// full parser, since the activity store only needs to flag for human
// review rather than block execution (that is the interceptor's job).
type RiskFactor string

const (
	RiskFactorDestructiveShell RiskFactor = "destructive_shell_pattern"
	RiskFactorCredentialAccess RiskFactor = "credential_access_pattern"
	RiskFactorNetworkEgress    RiskFactor = "network_egress_pattern"
	RiskFactorPrivilegedPath   RiskFactor = "privileged_path_pattern"
)

var riskSubstrings = map[RiskFactor][]string{
	RiskFactorDestructiveShell: {"rm -rf", "drop table", "truncate table", "mkfs", "dd if=", ":(){:|:&};:"},
	RiskFactorCredentialAccess: {"id_rsa", ".ssh/", "aws_secret", "authorization: bearer", ".env", "credentials.json"},
	RiskFactorNetworkEgress:    {"curl ", "wget ", "nc -", "ncat "},
	RiskFactorPrivilegedPath:   {"/etc/shadow", "/etc/passwd", "sudo ", "/root/"},
}

// DetectRiskFactors scans free-form text (arguments, output) for known
// suspicious substrings and returns the distinct factors found.
func DetectRiskFactors(text string) []RiskFactor {
	lower := strings.ToLower(text)
	var found []RiskFactor
	for factor, patterns := range riskSubstrings {
		for _, p := range patterns {
			if strings.Contains(lower, p) {
				found = append(found, factor)
				break
			}
		}
	}
	return found
}

// RiskScore maps a set of risk factors to a 0-100 severity score. Each
// distinct factor contributes 25 points, capped at 100.
func RiskScore(factors []RiskFactor) int {
	score := len(factors) * 25
	if score > 100 {
		score = 100
	}
	return score
}

// ToolCategory classifies where a tool invocation originated from, per the
// activity store's data model.
type ToolCategory string

const (
	CategorySDK    ToolCategory = "sdk"
	CategoryCustom ToolCategory = "custom"
	CategoryMCP    ToolCategory = "mcp"
	CategorySkill  ToolCategory = "skill"
)

// Outcome describes the terminal disposition of a gated tool invocation.
type Outcome string

const (
	OutcomeAllowed        Outcome = "allowed"
	OutcomeDenied         Outcome = "denied"
	OutcomeFiltered       Outcome = "filtered"
	OutcomeApproved       Outcome = "approved"
	OutcomeRejected       Outcome = "rejected"
	OutcomeTimedOut       Outcome = "timed_out"
	OutcomeErrored        Outcome = "errored"
)

// ToolActivityEntry is one append-only record of a gated tool invocation,
// from the moment the interceptor saw it through its terminal disposition.
// Entries are immutable once written except for the Flagged field, which a
// human reviewer can set after the fact via the query API.
type ToolActivityEntry struct {
	ID               string            `json:"id"`
	CallID           string            `json:"call_id"`
	Tool             string            `json:"tool"`
	MCPServer        string            `json:"mcp_server,omitempty"`
	Category         ToolCategory      `json:"category,omitempty"`
	Model            string            `json:"model,omitempty"`
	ExecutionContext string            `json:"execution_context"`
	Channel          string            `json:"channel,omitempty"`
	Strategy         string            `json:"strategy"`
	InteractionType  string            `json:"interaction_type,omitempty"`
	Outcome          Outcome           `json:"outcome"`
	Arguments        string            `json:"arguments,omitempty"`
	ArgumentsHash    string            `json:"arguments_hash,omitempty"`
	Output           string            `json:"output,omitempty"`
	OutputSize       int               `json:"output_size,omitempty"`
	Reason           string            `json:"reason,omitempty"`
	RiskFactors      []RiskFactor      `json:"risk_factors,omitempty"`
	RiskScore        int               `json:"risk_score"`
	Flagged          bool              `json:"flagged"`
	FlagReason       string            `json:"flag_reason,omitempty"`
	SessionKey       string            `json:"session_key,omitempty"`
	UserID           string            `json:"user_id,omitempty"`
	StartedAt        time.Time         `json:"started_at"`
	ResolvedAt       time.Time         `json:"resolved_at,omitempty"`
	DurationMs       int64             `json:"duration_ms,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`

	// ShieldChecked reports whether the content-safety probe ran for this
	// invocation at all; the three ShieldX fields are meaningless when it
	// is false (a filter-strategy call that short-circuited, a tool with
	// no shield configured).
	ShieldChecked   bool    `json:"shield_checked,omitempty"`
	ShieldResult    bool    `json:"shield_result,omitempty"`
	ShieldDetail    string  `json:"shield_detail,omitempty"`
	ShieldElapsedMs float64 `json:"shield_elapsed_ms,omitempty"`
}

// SetShieldResult attaches the content-safety probe's outcome to the entry.
// Per the store's invariant, this must happen before the tool executes, so
// callers set it on the audit entry passed to record_start's completion
// write, never after the fact.
func (e *ToolActivityEntry) SetShieldResult(attackDetected bool, detail string, elapsedMs float64) {
	e.ShieldChecked = true
	e.ShieldResult = attackDetected
	e.ShieldDetail = detail
	e.ShieldElapsedMs = elapsedMs
}

// WithRisk recomputes RiskFactors and RiskScore from the entry's arguments
// and output. RiskScore only ever increases across the life of an entry
// (invariant: once an invocation is flagged risky, a later low-risk update
// to the same id cannot launder it back down), so the caller must call this
// before the first write and MergeRisk for subsequent updates.
func (e *ToolActivityEntry) WithRisk() *ToolActivityEntry {
	factors := DetectRiskFactors(e.Arguments + " " + e.Output)
	e.RiskFactors = factors
	e.RiskScore = RiskScore(factors)
	return e
}

// MergeRisk folds newly observed risk factors into the entry without ever
// lowering RiskScore, preserving the store's monotonicity invariant.
func (e *ToolActivityEntry) MergeRisk(text string) {
	seen := make(map[RiskFactor]bool, len(e.RiskFactors))
	for _, f := range e.RiskFactors {
		seen[f] = true
	}
	for _, f := range DetectRiskFactors(text) {
		if !seen[f] {
			seen[f] = true
			e.RiskFactors = append(e.RiskFactors, f)
		}
	}
	if score := RiskScore(e.RiskFactors); score > e.RiskScore {
		e.RiskScore = score
	}
}
