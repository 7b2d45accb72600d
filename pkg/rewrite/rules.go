package rewrite

import (
	"github.com/pigletlang/core/pkg/operator"
	"github.com/pigletlang/core/pkg/plan"
	"github.com/pigletlang/core/pkg/schema"
)

// FilterMerge collapses adjacent Filter(p1) / Filter(p2) pairs into one
// Filter over the conjoined predicate. node is the downstream filter; its
// producer must also be a Filter consumed by nothing else, or the merge
// would silently drop the upstream filter for other readers of its output.
func FilterMerge(p *plan.Plan, node operator.NodeID) (*plan.Plan, bool) {
	n, ok := p.Node(node)
	if !ok {
		return p, false
	}
	downstream, ok := n.Op.(*operator.Filter)
	if !ok || len(downstream.Inputs()) != 1 {
		return p, false
	}

	upstreamNode, ok := p.Node(downstream.Inputs()[0])
	if !ok {
		return p, false
	}
	upstream, ok := upstreamNode.Op.(*operator.Filter)
	if !ok {
		return p, false
	}

	outPipe, ok := p.Pipe(upstream.Alias())
	if !ok || len(outPipe.Consumers) != 1 {
		return p, false // upstream filter feeds something else too; can't merge it away
	}

	merged := operator.NewFilter("", upstream.InputNames()[0], operator.And(upstream.Predicate, downstream.Predicate))
	newID, err := p.Replace(node, merged)
	if err != nil {
		return p, false
	}
	if err := p.PruneOrphan(upstreamNode.ID); err != nil {
		return p, false
	}
	_ = newID
	return p, true
}

// PredicatePushdown pushes a Filter below a schema-preserving Foreach
// projection, or duplicates it across a Union's branches. Both
// rewrites are only safe when the predicate's referenced fields resolve
// against the operator being pushed past.
func PredicatePushdown(p *plan.Plan, node operator.NodeID) (*plan.Plan, bool) {
	n, ok := p.Node(node)
	if !ok {
		return p, false
	}
	filter, ok := n.Op.(*operator.Filter)
	if !ok || len(filter.Inputs()) != 1 {
		return p, false
	}

	producerNode, ok := p.Node(filter.Inputs()[0])
	if !ok {
		return p, false
	}

	switch producer := producerNode.Op.(type) {
	case *operator.Foreach:
		if len(producer.Inputs()) != 1 {
			return p, false
		}
		grandparentNode, ok := p.Node(producer.Inputs()[0])
		if !ok {
			return p, false
		}
		var grandparentTup *schema.TupleType
		if s := grandparentNode.Op.Schema(); s != nil {
			grandparentTup = s.Inner
		}
		if err := filter.Predicate.CheckFields(grandparentTup); err != nil {
			return p, false // predicate needs a column that doesn't exist upstream
		}
		if !foreachPreservesFields(producer, operator.ReferencedFields(filter.Predicate)) {
			return p, false // projection transforms a referenced column; commuting would filter pre-transform values
		}
		if err := p.Swap(node, producerNode.ID); err != nil {
			return p, false
		}
		return p, true

	case *operator.Union:
		// Duplicate the filter onto every relation feeding the union, then
		// splice the now-redundant filter out (the union's own output is
		// already restricted by its duplicated branches).
		for _, relName := range producer.Relations {
			relPipe, ok := p.Pipe(relName)
			if !ok {
				return p, false
			}
			relProducerNode, ok := p.Node(relPipe.Producer)
			if !ok {
				return p, false
			}
			var relTup *schema.TupleType
			if s := relProducerNode.Op.Schema(); s != nil {
				relTup = s.Inner
			}
			if err := filter.Predicate.CheckFields(relTup); err != nil {
				return p, false // predicate doesn't resolve against one of the union's branches
			}
			dup := operator.NewFilter(relName+"$pushed", relName, filter.Predicate)
			if _, err := p.InsertBetween(relPipe.Producer, producerNode.ID, dup); err != nil {
				return p, false
			}
		}
		if err := p.Remove(node, false); err != nil {
			return p, false
		}
		return p, true
	}

	return p, false
}

// foreachPreservesFields reports whether every field the predicate
// references comes out of the Foreach as an identity passthrough of the
// same input column. A generator like `a*2 AS a` reuses the input's field
// name for a transformed value, so a filter on `a` must stay above it;
// only a plain FieldRef projecting the column under its own name (or the
// same position, for positional references) is provably value-preserving.
func foreachPreservesFields(fe *operator.Foreach, refs []operator.FieldRef) bool {
	if len(fe.GeneratorList) == 0 {
		return false // nested form; nothing provable about its output columns
	}
	for _, ref := range refs {
		if ref.Name != "" {
			preserved := false
			for _, g := range fe.GeneratorList {
				if g.Alias != ref.Name {
					continue
				}
				fr, ok := g.Expr.(operator.FieldRef)
				preserved = ok && fr.Name == ref.Name
				break
			}
			if !preserved {
				return false
			}
			continue
		}
		if ref.Position < 0 || ref.Position >= len(fe.GeneratorList) {
			return false
		}
		fr, ok := fe.GeneratorList[ref.Position].Expr.(operator.FieldRef)
		if !ok || fr.Name != "" || fr.Position != ref.Position {
			return false
		}
	}
	return true
}

// WindowRewrite maps a Window(range, slide) followed by an operator onto
// that operator's windowed-stream form, for the flinks backend: the window
// hint is recorded on the consuming operator (readable through the Windowed
// interface) and the now-redundant Window node is spliced out of the plan.
// pkg/emit does not read the hint: the consumer is rendered the same way
// with or without it.
func WindowRewrite(p *plan.Plan, node operator.NodeID) (*plan.Plan, bool) {
	n, ok := p.Node(node)
	if !ok {
		return p, false
	}
	win, ok := n.Op.(*operator.Window)
	if !ok {
		return p, false
	}
	pipe, ok := p.Pipe(win.Alias())
	if !ok || len(pipe.Consumers) != 1 {
		return p, false
	}
	consumerNode, ok := p.Node(pipe.Consumers[0])
	if !ok {
		return p, false
	}
	w, ok := consumerNode.Op.(operator.Windowed)
	if !ok {
		return p, false
	}
	w.SetWindowHint(win.Range, win.Slide)
	if err := p.Remove(node, false); err != nil {
		return p, false
	}
	return p, true
}

// TimingInstrument wraps every non-sink operator's output pipe with a
// TimingOp, tagging emitted records with lineage and partition id. It is
// not registered by default; pkg/compiler adds it to the registry only
// when profiling is enabled.
func TimingInstrument(p *plan.Plan, node operator.NodeID) (*plan.Plan, bool) {
	n, ok := p.Node(node)
	if !ok {
		return p, false
	}
	if _, already := n.Op.(*operator.TimingOp); already {
		return p, false
	}
	outs := n.Op.Outputs()
	if len(outs) != 1 {
		return p, false
	}
	pipe, ok := p.Pipe(outs[0])
	if !ok {
		return p, false
	}
	for _, c := range pipe.Consumers {
		if cn, ok := p.Node(c); ok {
			if _, isTiming := cn.Op.(*operator.TimingOp); isTiming {
				return p, false // already instrumented
			}
		}
	}
	timingAlias := outs[0] + "$timing"
	timing := operator.NewTimingOp(timingAlias, "", n.Signature)
	if _, err := p.InsertAfter(node, timing); err != nil {
		return p, false
	}
	return p, true
}
