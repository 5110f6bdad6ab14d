package guardrails

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveDefaultWhenNoRuleMatches(t *testing.T) {
	r := NewResolver(nil, nil)
	decision := r.Resolve("anything", "", "interactive", "")
	require.Equal(t, DefaultStrategy, decision.Strategy)
	require.Equal(t, DefaultChannel, decision.Channel)
	require.Nil(t, decision.MatchedRule)
}

func TestResolveMostSpecificWins(t *testing.T) {
	r := NewResolver([]Rule{
		{Tool: "shell", Strategy: StrategyHITL},
		{Tool: "shell", ExecutionContext: "scheduler", Strategy: StrategyDeny},
	}, nil)

	decision := r.Resolve("shell", "", "scheduler", "")
	require.Equal(t, StrategyDeny, decision.Strategy)

	decision = r.Resolve("shell", "", "interactive", "")
	require.Equal(t, StrategyHITL, decision.Strategy)
}

func TestResolveTieBreaksByPrecedence(t *testing.T) {
	r := NewResolver([]Rule{
		{Tool: "shell", Strategy: StrategyAllow},
		{Tool: "shell", Strategy: StrategyDeny},
	}, nil)

	decision := r.Resolve("shell", "", "interactive", "")
	require.Equal(t, StrategyDeny, decision.Strategy)
}

func TestResolveConflictingFieldDiscardsRule(t *testing.T) {
	r := NewResolver([]Rule{
		{Tool: "shell", MCPServer: "other-server", Strategy: StrategyDeny},
	}, nil)

	decision := r.Resolve("shell", "my-server", "interactive", "")
	require.Equal(t, DefaultStrategy, decision.Strategy)
}

func TestAlwaysApprovedBypassesResolution(t *testing.T) {
	r := NewResolver([]Rule{{Tool: "intent_report", Strategy: StrategyDeny}}, []string{"intent_report"})
	require.True(t, r.IsAlwaysApproved("intent_report"))
	require.False(t, r.IsAlwaysApproved("shell"))
}

func TestLoadSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	r := NewResolver([]Rule{{Tool: "shell", Strategy: StrategyHITL, Channel: ChannelWeb}}, []string{"intent_report"})
	r.path = path
	require.NoError(t, r.Save())

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, reloaded.Rules(), 1)
	require.True(t, reloaded.IsAlwaysApproved("intent_report"))
}

func TestLoadMissingFileYieldsEmptyTable(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	require.Empty(t, r.Rules())
}
