// Package rewrite implements the strategic-programming rewrite engine:
// small pure rule functions composed by combinators, driven to a fixed
// point over a plan.Plan.
package rewrite

import (
	"github.com/pigletlang/core/pkg/operator"
	"github.com/pigletlang/core/pkg/plan"
)

// Rule is a pure rewrite attempt at a single node. It returns the rewritten
// plan and true on a match, or (p, false) if it does not apply. Rules never
// mutate p in place beyond what plan's own edit primitives do internally;
// a rule that matches is expected to call one of InsertAfter/InsertBetween/
// Remove/Replace/Swap and return the same *plan.Plan (the edit methods
// mutate the plan and recompute schemas via rebuild themselves).
type Rule func(p *plan.Plan, node operator.NodeID) (*plan.Plan, bool)

// Named pairs a Rule with the name rewrite tracing reports it under.
type Named struct {
	Name string
	Rule Rule
}

// Sequence runs rules in order, stopping at (and returning) the first match.
func Sequence(rules ...Rule) Rule {
	return func(p *plan.Plan, node operator.NodeID) (*plan.Plan, bool) {
		for _, r := range rules {
			if np, ok := r(p, node); ok {
				return np, true
			}
		}
		return p, false
	}
}

// Choice is an alias for Sequence: try each rule, take the first that
// matches. Kept distinct from Sequence so call sites can express intent
// (Sequence implies "these are steps of one transformation"; Choice implies
// "these are alternatives").
func Choice(rules ...Rule) Rule { return Sequence(rules...) }

// Everywhere applies rule to every node currently in the plan, returning
// true if it matched anywhere. Nodes inserted by a match are not visited in
// the same pass (the plan's node set is snapshotted before iterating).
func Everywhere(rule Rule) Rule {
	return func(p *plan.Plan, _ operator.NodeID) (*plan.Plan, bool) {
		matched := false
		for _, n := range p.Nodes() {
			if np, ok := rule(p, n.ID); ok {
				p = np
				matched = true
			}
		}
		return p, matched
	}
}

// Innermost applies rule bottom-up (in reverse topological order), so a
// rule that fires low in the graph cannot be shadowed by a higher match
// consuming the same node first. Used by predicate pushdown, which must
// reach the deepest commuting position.
func Innermost(rule Rule) Rule {
	return func(p *plan.Plan, _ operator.NodeID) (*plan.Plan, bool) {
		nodes := p.Nodes()
		matched := false
		for i := len(nodes) - 1; i >= 0; i-- {
			if np, ok := rule(p, nodes[i].ID); ok {
				p = np
				matched = true
			}
		}
		return p, matched
	}
}

// Fixpoint repeats rule until it stops matching anywhere, guarding against
// a runaway rewrite with maxIters (rules are required to be normal-form
// reducing; hitting the ceiling indicates a non-terminating rule, not a
// large plan).
func Fixpoint(rule Rule, maxIters int) Rule {
	return func(p *plan.Plan, node operator.NodeID) (*plan.Plan, bool) {
		matchedOnce := false
		for i := 0; i < maxIters; i++ {
			np, ok := rule(p, node)
			if !ok {
				return p, matchedOnce
			}
			p = np
			matchedOnce = true
		}
		return p, matchedOnce
	}
}
