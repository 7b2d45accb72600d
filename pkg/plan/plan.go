package plan

import (
	"errors"
	"sort"

	"github.com/pigletlang/core/pkg/operator"
	"github.com/pigletlang/core/pkg/schema"
)

// MaxNestedDepth bounds Foreach recursion. depth 1 is a top-level plan;
// depth 2 is one level of nested Foreach; a nested Foreach inside a
// nested Foreach would be depth 3, which is rejected.
const MaxNestedDepth = 2

// Node is one entry in the plan's operator arena.
type Node struct {
	ID        operator.NodeID
	Op        operator.Operator
	Lineage   string
	Signature string
}

// Plan is the typed operator graph: an arena of Nodes connected by named
// Pipes, assembled once by New (or a structural edit) and mutated only
// through the exported edit methods thereafter.
type Plan struct {
	nodes          map[operator.NodeID]*Node
	order          []operator.NodeID // topological order, refreshed by rebuild
	pipes          map[string]*operator.Pipe
	nextID         operator.NodeID
	additionalJars []string
	depth          int
}

// AdditionalJars are the accumulated arguments of Register operators
// extracted during assembly.
func (p *Plan) AdditionalJars() []string { return append([]string(nil), p.additionalJars...) }

// Depth is this plan's nesting depth (1 for a top-level plan).
func (p *Plan) Depth() int { return p.depth }

// New assembles a top-level dataflow plan from a flat operator list:
// Register extraction, pipe-table construction, then input resolution and
// schema propagation in dependency order.
func New(ops []operator.Operator) (*Plan, error) {
	return newPlan(ops, 1, nil)
}

func newPlan(ops []operator.Operator, depth int, parentSchema *schema.TupleType) (*Plan, error) {
	p := &Plan{
		nodes: make(map[operator.NodeID]*Node),
		pipes: make(map[string]*operator.Pipe),
		depth: depth,
	}

	// Step 1: extract and remove Register operators, accumulating their
	// arguments as additionalJars.
	var kept []operator.Operator
	for _, op := range ops {
		if reg, ok := op.(*operator.Register); ok {
			p.additionalJars = append(p.additionalJars, reg.Args...)
			continue
		}
		kept = append(kept, op)
	}

	// Back-reference ConstructBag children to the parent schema, so nested
	// DerefTuple expressions can resolve against the enclosing tuple.
	for _, op := range kept {
		if cb, ok := op.(*operator.ConstructBag); ok {
			cb.ParentSchema = parentSchema
		}
	}

	// Assign NodeIDs in list order.
	for _, op := range kept {
		id := p.nextID
		p.nextID++
		p.nodes[id] = &Node{ID: id, Op: op}
	}
	ordered := make([]operator.NodeID, 0, len(kept))
	for id := operator.NodeID(0); id < p.nextID; id++ {
		ordered = append(ordered, id)
	}

	// Step 2: build the pipe table keyed by output pipe name.
	for _, id := range ordered {
		node := p.nodes[id]
		for _, name := range node.Op.Outputs() {
			if name == "" {
				continue
			}
			if _, exists := p.pipes[name]; exists {
				return nil, NewInvalidPlan("duplicate pipe: "+name, id)
			}
			p.pipes[name] = &operator.Pipe{Name: name, Producer: id}
		}
	}

	// Step 3: resolve input pipes by name, wire producer/consumer, then
	// preparePlan + constructSchema in dependency order.
	for _, id := range ordered {
		node := p.nodes[id]
		inputIDs := make([]operator.NodeID, 0, len(node.Op.InputNames()))
		for _, name := range node.Op.InputNames() {
			pipe, ok := p.pipes[name]
			if !ok {
				return nil, NewInvalidPlan("invalid pipe: "+name, id)
			}
			pipe.Consumers = append(pipe.Consumers, id)
			inputIDs = append(inputIDs, pipe.Producer)
		}
		node.Op.SetInputs(inputIDs)
	}

	topo, err := p.topoSort(ordered)
	if err != nil {
		return nil, err
	}
	p.order = topo

	if err := p.computeSchemas(topo, depth); err != nil {
		return nil, err
	}

	return p, nil
}

// computeSchemas runs preparePlan + constructSchema + lineage computation
// over order (must already be topologically sorted). It is shared by
// initial assembly and by rebuild() after a structural edit.
func (p *Plan) computeSchemas(order []operator.NodeID, depth int) error {
	for _, id := range order {
		node := p.nodes[id]
		inputSchemas := p.inputSchemas(node)

		if fe, ok := node.Op.(*operator.Foreach); ok {
			if rawOps, has := fe.RawNestedOps(); has {
				if depth+1 > MaxNestedDepth {
					return NewInvalidPlan("nested foreach depth exceeded", id)
				}
				var parentTup *schema.TupleType
				if len(inputSchemas) == 1 && inputSchemas[0] != nil {
					parentTup = inputSchemas[0].Inner
				}
				child, err := newPlan(rawOps, depth+1, parentTup)
				if err != nil {
					return err
				}
				final, ok := child.FinalOperator()
				if !ok || final.Tag() != operator.TagGenerate {
					return NewInvalidPlan("nested plan must end in GENERATE", id)
				}
				fe.SetSubPlan(child)
			}
		}

		out, err := node.Op.ConstructSchema(inputSchemas)
		if err != nil {
			var invalid *InvalidPlanError
			if errors.As(err, &invalid) {
				return err // already classified, e.g. by a nested sub-plan
			}
			var incompat *operator.IncompatibleSchemasError
			if errors.As(err, &incompat) {
				se := &SchemaError{}
				se.Add(id, err)
				return se
			}
			return wrapInvalidPlan(err, id)
		}
		node.Op.SetSchema(out)

		inputLineages := make([]string, 0, len(node.Op.Inputs()))
		for _, pid := range node.Op.Inputs() {
			inputLineages = append(inputLineages, p.nodes[pid].Lineage)
		}
		node.Lineage = operator.LineageString(node.Op, inputLineages)
		node.Signature = operator.Signature(node.Lineage)
	}
	return nil
}

// rebuild recomputes topological order, schemas, and lineage signatures
// after a structural edit has mutated nodes/pipes in place.
func (p *Plan) rebuild() error {
	ids := make([]operator.NodeID, 0, len(p.nodes))
	for id := range p.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	topo, err := p.topoSort(ids)
	if err != nil {
		return err
	}
	p.order = topo
	return p.computeSchemas(topo, p.depth)
}

func (p *Plan) inputSchemas(node *Node) []*schema.BagType {
	ids := node.Op.Inputs()
	out := make([]*schema.BagType, len(ids))
	for i, id := range ids {
		if n, ok := p.nodes[id]; ok {
			out[i] = n.Op.Schema()
		}
	}
	return out
}

// FinalOperator implements operator.NestedPlan: the sub-plan's terminal
// (sink) operator.
func (p *Plan) FinalOperator() (operator.Operator, bool) {
	sinks := p.SinkNodes()
	if len(sinks) != 1 {
		return nil, false
	}
	return p.nodes[sinks[0]].Op, true
}

// Node returns the node with the given ID.
func (p *Plan) Node(id operator.NodeID) (*Node, bool) {
	n, ok := p.nodes[id]
	return n, ok
}

// Nodes returns every node, in topological order.
func (p *Plan) Nodes() []*Node {
	out := make([]*Node, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.nodes[id])
	}
	return out
}

// Pipe looks up a pipe by name.
func (p *Plan) Pipe(name string) (*operator.Pipe, bool) {
	pipe, ok := p.pipes[name]
	return pipe, ok
}

var _ operator.NestedPlan = (*Plan)(nil)
