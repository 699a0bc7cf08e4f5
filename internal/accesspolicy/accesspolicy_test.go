package accesspolicy_test

import (
	"testing"

	"github.com/calvinalkan/agentfs/internal/accesspolicy"
)

func TestPolicy_Allowed_NoMatchingRuleFallsBackToDefault(t *testing.T) {
	t.Parallel()

	p := accesspolicy.New(nil, accesspolicy.Deny)

	if p.Allowed("/data/file.txt", accesspolicy.OpWrite) {
		t.Fatal("Allowed=true, want default deny")
	}
}

func TestPolicy_Allowed_MatchingRuleOverridesDefault(t *testing.T) {
	t.Parallel()

	rules := []accesspolicy.Rule{
		{PathPrefix: "/data/readonly", Operations: []accesspolicy.Operation{accesspolicy.OpWrite, accesspolicy.OpDelete}, Action: accesspolicy.Deny, Priority: 10},
	}
	p := accesspolicy.New(rules, accesspolicy.Allow)

	if p.Allowed("/data/readonly/secret.txt", accesspolicy.OpWrite) {
		t.Fatal("Allowed=true, want rule-denied write under /data/readonly")
	}

	if !p.Allowed("/data/other/file.txt", accesspolicy.OpWrite) {
		t.Fatal("Allowed=false, want default allow outside the rule's prefix")
	}
}

func TestPolicy_Allowed_HighestPriorityWins(t *testing.T) {
	t.Parallel()

	rules := []accesspolicy.Rule{
		{PathPrefix: "/data", Operations: []accesspolicy.Operation{accesspolicy.OpWildcard}, Action: accesspolicy.Deny, Priority: 1},
		{PathPrefix: "/data/allowed", Operations: []accesspolicy.Operation{accesspolicy.OpWildcard}, Action: accesspolicy.Allow, Priority: 5},
	}
	p := accesspolicy.New(rules, accesspolicy.Deny)

	if !p.Allowed("/data/allowed/file.txt", accesspolicy.OpDelete) {
		t.Fatal("Allowed=false, want the higher-priority allow rule to win")
	}

	if p.Allowed("/data/other/file.txt", accesspolicy.OpDelete) {
		t.Fatal("Allowed=true, want the lower-priority deny rule to apply")
	}
}

func TestPolicy_Allowed_TiesBrokenByListOrder(t *testing.T) {
	t.Parallel()

	rules := []accesspolicy.Rule{
		{PathPrefix: "/data", Operations: []accesspolicy.Operation{accesspolicy.OpWildcard}, Action: accesspolicy.Allow, Priority: 1},
		{PathPrefix: "/data", Operations: []accesspolicy.Operation{accesspolicy.OpWildcard}, Action: accesspolicy.Deny, Priority: 1},
	}
	p := accesspolicy.New(rules, accesspolicy.Allow)

	if !p.Allowed("/data/file.txt", accesspolicy.OpWrite) {
		t.Fatal("Allowed=false, want the first rule in list order to win on a priority tie")
	}
}

func TestPolicy_Allowed_OperationNotCoveredByRuleFallsThrough(t *testing.T) {
	t.Parallel()

	rules := []accesspolicy.Rule{
		{PathPrefix: "/data", Operations: []accesspolicy.Operation{accesspolicy.OpDelete}, Action: accesspolicy.Deny, Priority: 10},
	}
	p := accesspolicy.New(rules, accesspolicy.Allow)

	if !p.Allowed("/data/file.txt", accesspolicy.OpWrite) {
		t.Fatal("Allowed=false, want write to fall through to default since the rule only covers delete")
	}
}

func TestPolicy_Allowed_SiblingPrefixDoesNotMatch(t *testing.T) {
	t.Parallel()

	rules := []accesspolicy.Rule{
		{PathPrefix: "/data/foo", Operations: []accesspolicy.Operation{accesspolicy.OpWildcard}, Action: accesspolicy.Deny, Priority: 10},
	}
	p := accesspolicy.New(rules, accesspolicy.Allow)

	if !p.Allowed("/data/foobar/file.txt", accesspolicy.OpWrite) {
		t.Fatal("Allowed=false, want /data/foobar to not match the /data/foo prefix rule")
	}
}
