package plan

import "github.com/pigletlang/core/pkg/operator"

// SinkNodes returns nodes with no output pipes (or whose output pipes have
// no consumers), i.e. STORE/DUMP/GENERATE terminals.
func (p *Plan) SinkNodes() []operator.NodeID {
	var out []operator.NodeID
	for _, id := range p.order {
		node := p.nodes[id]
		names := node.Op.Outputs()
		if len(names) == 0 {
			out = append(out, id)
			continue
		}
		hasConsumer := false
		for _, name := range names {
			if pipe, ok := p.pipes[name]; ok && len(pipe.Consumers) > 0 {
				hasConsumer = true
				break
			}
		}
		if !hasConsumer {
			out = append(out, id)
		}
	}
	return out
}

// SourceNodes returns nodes with no resolved inputs.
func (p *Plan) SourceNodes() []operator.NodeID {
	var out []operator.NodeID
	for _, id := range p.order {
		if len(p.nodes[id].Op.Inputs()) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// FindOperatorForAlias returns the node that produces the named pipe.
func (p *Plan) FindOperatorForAlias(alias string) (*Node, bool) {
	pipe, ok := p.pipes[alias]
	if !ok {
		return nil, false
	}
	return p.nodes[pipe.Producer], true
}

// Get returns the node whose lineage signature matches the given string.
func (p *Plan) Get(lineageSignature string) (*Node, bool) {
	for _, id := range p.order {
		if p.nodes[id].Signature == lineageSignature {
			return p.nodes[id], true
		}
	}
	return nil, false
}

// CheckConsistency verifies the operator list is weakly connected: treating
// every producer->consumer edge as undirected, there must be exactly one
// connected component.
func (p *Plan) CheckConsistency() error {
	if len(p.order) == 0 {
		return nil
	}
	parent := make(map[operator.NodeID]operator.NodeID, len(p.order))
	var find func(operator.NodeID) operator.NodeID
	find = func(x operator.NodeID) operator.NodeID {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b operator.NodeID) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for _, id := range p.order {
		parent[id] = id
	}
	for _, id := range p.order {
		for _, pid := range p.nodes[id].Op.Inputs() {
			union(id, pid)
		}
	}

	root := find(p.order[0])
	for _, id := range p.order {
		if find(id) != root {
			return NewInvalidPlan("operator graph is not weakly connected")
		}
	}
	return nil
}

// CheckSchemaConformance invokes every operator's conformance rule,
// collecting every failure into a single SchemaError rather than failing
// fast on the first one.
func (p *Plan) CheckSchemaConformance() error {
	result := &SchemaError{}
	for _, id := range p.order {
		node := p.nodes[id]
		if err := node.Op.CheckConformance(p.inputSchemas(node)); err != nil {
			result.Add(id, err)
		}
	}
	if result.Empty() {
		return nil
	}
	return result
}

// Clone deep-copies the plan's node/pipe bookkeeping (not the underlying
// Operator values, which are treated as immutable once emission begins).
// Needed to test rewritePlan's idempotence without aliasing a fixture
// across assertions.
func (p *Plan) Clone() *Plan {
	clone := &Plan{
		nodes:          make(map[operator.NodeID]*Node, len(p.nodes)),
		pipes:          make(map[string]*operator.Pipe, len(p.pipes)),
		order:          append([]operator.NodeID(nil), p.order...),
		nextID:         p.nextID,
		additionalJars: append([]string(nil), p.additionalJars...),
		depth:          p.depth,
	}
	for id, n := range p.nodes {
		cp := *n
		clone.nodes[id] = &cp
	}
	for name, pipe := range p.pipes {
		cp := *pipe
		cp.Consumers = append([]operator.NodeID(nil), pipe.Consumers...)
		clone.pipes[name] = &cp
	}
	return clone
}
