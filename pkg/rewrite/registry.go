package rewrite

import (
	"github.com/pigletlang/core/pkg/operator"
	"github.com/pigletlang/core/pkg/plan"
)

// AppliedRule records one successful rewrite for --show-plan-style tooling.
type AppliedRule struct {
	Rule string
	Node operator.NodeID
}

// Registry holds the global rule set plus any backend-specific additions,
// and drives rewriting to a fixed point. Each built-in rule stops matching
// a node once it has fired there (filter merge and the window rewrite
// remove an operator, pushdown moves the filter past its producer, timing
// instrumentation skips pipes already wrapped), so iterating them to
// quiescence ends; maxPass bounds the passes for any rule that does not.
type Registry struct {
	global  []Named
	backend map[string][]Named
	order   []string
	trace   []AppliedRule
	maxPass int
}

// NewRegistry constructs an empty registry. maxPass bounds the number of
// full everywhere-passes the fixed-point driver runs before giving up,
// guarding against a misbehaving rule rather than any plan in practice.
func NewRegistry(maxPass int) *Registry {
	if maxPass <= 0 {
		maxPass = 64
	}
	return &Registry{backend: make(map[string][]Named), maxPass: maxPass}
}

// Register adds a global rule, run for every backend.
func (r *Registry) Register(name string, rule Rule) {
	r.global = append(r.global, Named{Name: name, Rule: rule})
}

// RegisterBackend adds rules that only run when rewriting for the named
// backend (e.g. the flinks window rewrite).
func (r *Registry) RegisterBackend(backend, name string, rule Rule) {
	r.backend[backend] = append(r.backend[backend], Named{Name: name, Rule: rule})
}

// SetOrder fixes the order rules are attempted in (by name); rules not
// named are appended afterward in registration order. Satisfies the
// "pluggable ordering" non-goal: rule order is configurable even though
// there is no cost-based reordering.
func (r *Registry) SetOrder(names []string) { r.order = append([]string(nil), names...) }

// Trace returns every rule application recorded by the most recent Rewrite
// call.
func (r *Registry) Trace() []AppliedRule { return append([]AppliedRule(nil), r.trace...) }

func (r *Registry) rulesFor(backend string) []Named {
	all := append([]Named(nil), r.global...)
	all = append(all, r.backend[backend]...)
	if len(r.order) == 0 {
		return all
	}
	byName := make(map[string]Named, len(all))
	for _, n := range all {
		byName[n.Name] = n
	}
	ordered := make([]Named, 0, len(all))
	seen := make(map[string]bool, len(all))
	for _, name := range r.order {
		if n, ok := byName[name]; ok {
			ordered = append(ordered, n)
			seen[name] = true
		}
	}
	for _, n := range all {
		if !seen[n.Name] {
			ordered = append(ordered, n)
		}
	}
	return ordered
}

// Rewrite drives every registered rule (global plus backend-specific) to a
// fixed point over p: each pass attempts every rule at every node, in
// registration (or SetOrder) order; passes repeat until none match or
// maxPass is reached.
func (r *Registry) Rewrite(p *plan.Plan, backend string) (*plan.Plan, error) {
	r.trace = nil
	rules := r.rulesFor(backend)

	for pass := 0; pass < r.maxPass; pass++ {
		matchedThisPass := false
		for _, named := range rules {
			for _, n := range p.Nodes() {
				np, ok := named.Rule(p, n.ID)
				if !ok {
					continue
				}
				p = np
				matchedThisPass = true
				r.trace = append(r.trace, AppliedRule{Rule: named.Name, Node: n.ID})
			}
		}
		if !matchedThisPass {
			return p, nil
		}
	}
	return p, plan.NewInvalidPlan("rewrite registry did not reach a fixed point within maxPass")
}
