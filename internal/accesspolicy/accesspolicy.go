// Package accesspolicy gates mutating operations by path-prefix rule,
// independent of the confinement check [pathvalidate] already performed.
package accesspolicy

import (
	"sort"

	"github.com/calvinalkan/agentfs/internal/pathvalidate"
)

// Action is the outcome a matching rule applies.
type Action string

const (
	Allow Action = "allow"
	Deny  Action = "deny"
)

// Operation identifies a mutating Tool Operation an [AccessRule] can gate.
// Wildcard ("*") matches every operation.
type Operation string

const (
	OpWrite    Operation = "write"
	OpUpdate   Operation = "update"
	OpDelete   Operation = "delete"
	OpRename   Operation = "rename"
	OpWildcard Operation = "*"
)

// Rule is one configured access-control entry.
type Rule struct {
	PathPrefix string
	Operations []Operation
	Action     Action
	Priority   int
}

func (r Rule) matchesOperation(op Operation) bool {
	for _, o := range r.Operations {
		if o == op || o == OpWildcard {
			return true
		}
	}

	return false
}

// Policy evaluates a fixed, ordered set of rules against resolved paths.
// Construct with [New]; the zero value has no rules and denies nothing on
// its own (every call falls through to the default action).
type Policy struct {
	rules         []Rule // sorted by priority descending, ties preserving input order
	defaultAction Action
}

// New builds a Policy from rules, sorted by priority (highest first, ties
// broken by original list order) once at construction so evaluation never
// re-sorts. defaultAction applies when no rule matches a given path/operation
// pair.
func New(rules []Rule, defaultAction Action) *Policy {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	return &Policy{rules: sorted, defaultAction: defaultAction}
}

// Allowed reports whether op is permitted against resolvedPath. resolvedPath
// must already be canonicalized (e.g. via [pathvalidate.Validator.Validate])
// so prefix matching is meaningful.
func (p *Policy) Allowed(resolvedPath string, op Operation) bool {
	for _, r := range p.rules {
		if !pathvalidate.WithinPrefix(resolvedPath, r.PathPrefix) {
			continue
		}

		if !r.matchesOperation(op) {
			continue
		}

		return r.Action == Allow
	}

	return p.defaultAction == Allow
}
