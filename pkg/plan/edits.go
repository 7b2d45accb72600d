package plan

import "github.com/pigletlang/core/pkg/operator"

// addNode allocates a fresh NodeID for op and registers it in the arena. It
// does not wire inputs or register op's own output pipe(s); callers finish
// the wiring before calling rebuild.
func (p *Plan) addNode(op operator.Operator) operator.NodeID {
	id := p.nextID
	p.nextID++
	p.nodes[id] = &Node{ID: id, Op: op}
	return id
}

// registerOutputs adds id's output pipes to the pipe table.
func (p *Plan) registerOutputs(id operator.NodeID) error {
	op := p.nodes[id].Op
	for _, name := range op.Outputs() {
		if name == "" {
			continue
		}
		if _, exists := p.pipes[name]; exists {
			return NewInvalidPlan("duplicate pipe: "+name, id)
		}
		p.pipes[name] = &operator.Pipe{Name: name, Producer: id}
	}
	return nil
}

// rewireConsumerInput finds the position in consumer's InputNames/Inputs
// that currently reads oldName and repoints it at newName/newProducer.
func rewireConsumerInput(consumer operator.Operator, oldName, newName string, newProducer operator.NodeID) {
	names := append([]string(nil), consumer.InputNames()...)
	ids := append([]operator.NodeID(nil), consumer.Inputs()...)
	for i, n := range names {
		if n == oldName {
			names[i] = newName
			ids[i] = newProducer
		}
	}
	if r, ok := consumer.(operator.Renamable); ok {
		r.SetInputNames(names)
	}
	consumer.SetInputs(ids)
}

// InsertAfter splices newOp onto old's single output pipe.
//
// If newOp produces an output (its alias is non-empty) it is inserted
// inline: old's former consumers are rerouted to read from newOp instead,
// and newOp becomes old's sole consumer. If newOp is a sink (empty alias,
// e.g. a branch Store) it is simply added as an additional consumer of
// old's pipe, leaving old's existing consumers untouched.
func (p *Plan) InsertAfter(old operator.NodeID, newOp operator.Operator) (operator.NodeID, error) {
	oldNode, ok := p.nodes[old]
	if !ok {
		return operator.InvalidNode, NewInvalidPlan("insertAfter: unknown node", old)
	}
	outs := oldNode.Op.Outputs()
	if len(outs) != 1 {
		return operator.InvalidNode, NewInvalidPlan("insertAfter: producer must have exactly one output pipe", old)
	}
	oldPipeName := outs[0]
	oldPipe := p.pipes[oldPipeName]

	newOp.SetInputs([]operator.NodeID{old})
	if r, ok := newOp.(operator.Renamable); ok {
		r.SetInputNames([]string{oldPipeName})
	}
	newID := p.addNode(newOp)

	newOuts := newOp.Outputs()
	if len(newOuts) == 0 {
		// Sink: additional branch consumer, nothing to reroute.
		oldPipe.Consumers = append(oldPipe.Consumers, newID)
		return newID, p.rebuild()
	}
	if len(newOuts) != 1 {
		return operator.InvalidNode, NewInvalidPlan("insertAfter: new operator must have at most one output", newID)
	}
	newPipeName := newOuts[0]
	if err := p.registerOutputs(newID); err != nil {
		return operator.InvalidNode, err
	}
	newPipe := p.pipes[newPipeName]

	formerConsumers := oldPipe.Consumers
	oldPipe.Consumers = []operator.NodeID{newID}
	for _, c := range formerConsumers {
		rewireConsumerInput(p.nodes[c].Op, oldPipeName, newPipeName, newID)
		newPipe.Consumers = append(newPipe.Consumers, c)
	}

	return newID, p.rebuild()
}

// pipeConnecting finds the pipe name through which producer feeds consumer.
func (p *Plan) pipeConnecting(producer, consumer operator.NodeID) (string, error) {
	consumerOp := p.nodes[consumer].Op
	producerOuts := make(map[string]bool)
	for _, name := range p.nodes[producer].Op.Outputs() {
		producerOuts[name] = true
	}
	for _, name := range consumerOp.InputNames() {
		if producerOuts[name] {
			return name, nil
		}
	}
	return "", NewInvalidPlan("insertBetween: no direct edge between producer and consumer", producer, consumer)
}

// InsertBetween places newOp on the single edge from producer to consumer,
// leaving producer's other consumers (if any) untouched.
func (p *Plan) InsertBetween(producer, consumer operator.NodeID, newOp operator.Operator) (operator.NodeID, error) {
	pipeName, err := p.pipeConnecting(producer, consumer)
	if err != nil {
		return operator.InvalidNode, err
	}
	newOuts := newOp.Outputs()
	if len(newOuts) != 1 {
		return operator.InvalidNode, NewInvalidPlan("insertBetween: new operator must produce exactly one output")
	}

	newOp.SetInputs([]operator.NodeID{producer})
	if r, ok := newOp.(operator.Renamable); ok {
		r.SetInputNames([]string{pipeName})
	}
	newID := p.addNode(newOp)
	if err := p.registerOutputs(newID); err != nil {
		return operator.InvalidNode, err
	}
	newPipeName := newOuts[0]

	oldPipe := p.pipes[pipeName]
	filtered := oldPipe.Consumers[:0:0]
	for _, c := range oldPipe.Consumers {
		if c == consumer {
			continue
		}
		filtered = append(filtered, c)
	}
	oldPipe.Consumers = append(filtered, newID)

	rewireConsumerInput(p.nodes[consumer].Op, pipeName, newPipeName, newID)
	p.pipes[newPipeName].Consumers = append(p.pipes[newPipeName].Consumers, consumer)

	return newID, p.rebuild()
}

// InsertBetweenAll inserts a freshly constructed operator (via make) on
// every edge leaving producer, one instance per consumer (a single operator
// cannot be wired to more than one producer, so each edge gets its own
// node). Used by rewrite rules that instrument every downstream edge of a
// multi-consumer (or multi-output, e.g. Split) producer identically.
func (p *Plan) InsertBetweenAll(producer operator.NodeID, newOp func() operator.Operator) ([]operator.NodeID, error) {
	var consumers []operator.NodeID
	for _, name := range p.nodes[producer].Op.Outputs() {
		pipe, ok := p.pipes[name]
		if !ok {
			continue
		}
		consumers = append(consumers, append([]operator.NodeID(nil), pipe.Consumers...)...)
	}
	var ids []operator.NodeID
	for _, c := range consumers {
		id, err := p.InsertBetween(producer, c, newOp())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// PruneOrphan deletes a single node that no longer has any consumer,
// without touching its ancestors (unlike Remove's removePredecessors=true
// cone deletion). Used after a Replace detaches a node from its former
// consumers, e.g. the filter-merge rule deleting the now-bypassed upstream
// Filter once the merged predicate reads past it.
func (p *Plan) PruneOrphan(id operator.NodeID) error {
	node, ok := p.nodes[id]
	if !ok {
		return NewInvalidPlan("pruneOrphan: unknown node", id)
	}
	for _, name := range node.Op.Outputs() {
		if pipe, ok := p.pipes[name]; ok && len(pipe.Consumers) > 0 {
			return NewInvalidPlan("pruneOrphan: operator has active consumers", id)
		}
	}
	for _, name := range node.Op.InputNames() {
		if pipe, ok := p.pipes[name]; ok {
			filtered := pipe.Consumers[:0:0]
			for _, c := range pipe.Consumers {
				if c != id {
					filtered = append(filtered, c)
				}
			}
			pipe.Consumers = filtered
		}
	}
	for _, name := range node.Op.Outputs() {
		delete(p.pipes, name)
	}
	delete(p.nodes, id)
	return p.rebuild()
}

// Remove deletes op. If removePredecessors is false, op must be unary: its
// single producer is spliced directly onto op's former consumers. If true,
// op's transitive ancestor cone is deleted along with it; op must have no
// remaining consumers (callers reroute them, typically via Replace, before
// pruning the cone this way).
func (p *Plan) Remove(op operator.NodeID, removePredecessors bool) error {
	node, ok := p.nodes[op]
	if !ok {
		return NewInvalidPlan("remove: unknown node", op)
	}

	if !removePredecessors {
		inputs := node.Op.Inputs()
		outs := node.Op.Outputs()
		if len(inputs) != 1 || len(outs) != 1 {
			return NewInvalidPlan("remove: bypass splice requires exactly one input and one output", op)
		}
		producerID := inputs[0]
		oldPipeName := outs[0]
		oldPipe := p.pipes[oldPipeName]
		producerOuts := p.nodes[producerID].Op.Outputs()
		if len(producerOuts) != 1 {
			return NewInvalidPlan("remove: producer must have exactly one output", producerID)
		}
		producerPipeName := producerOuts[0]
		producerPipe := p.pipes[producerPipeName]

		filtered := producerPipe.Consumers[:0:0]
		for _, c := range producerPipe.Consumers {
			if c != op {
				filtered = append(filtered, c)
			}
		}
		producerPipe.Consumers = filtered
		for _, c := range oldPipe.Consumers {
			rewireConsumerInput(p.nodes[c].Op, oldPipeName, producerPipeName, producerID)
			producerPipe.Consumers = append(producerPipe.Consumers, c)
		}

		delete(p.pipes, oldPipeName)
		delete(p.nodes, op)
		return p.rebuild()
	}

	for _, name := range node.Op.Outputs() {
		if pipe, ok := p.pipes[name]; ok && len(pipe.Consumers) > 0 {
			return NewInvalidPlan("remove: operator has active consumers, reroute first", op)
		}
	}

	var cone []operator.NodeID
	visited := map[operator.NodeID]bool{}
	var walk func(operator.NodeID)
	walk = func(id operator.NodeID) {
		if visited[id] {
			return
		}
		visited[id] = true
		n, ok := p.nodes[id]
		if !ok {
			return
		}
		for _, pid := range n.Op.Inputs() {
			walk(pid)
		}
		cone = append(cone, id)
	}
	walk(op)

	for _, id := range cone {
		n := p.nodes[id]
		for _, name := range n.Op.Outputs() {
			delete(p.pipes, name)
		}
		delete(p.nodes, id)
	}
	return p.rebuild()
}

// Replace substitutes repl for old in place: repl takes over old's output
// pipe name(s), so old's consumers require no rewiring. repl's own
// InputNames are resolved against the existing pipe table (repl may have a
// different input arity than old, e.g. a Load replacing a Join).
func (p *Plan) Replace(old operator.NodeID, repl operator.Operator) (operator.NodeID, error) {
	oldNode, ok := p.nodes[old]
	if !ok {
		return operator.InvalidNode, NewInvalidPlan("replace: unknown node", old)
	}
	oldOuts := oldNode.Op.Outputs()

	// A replacement built with alias "" (the caller's way of saying "take
	// over old's pipe name") must inherit it before arity is checked,
	// since Outputs() on an empty alias reports zero outputs and would
	// otherwise always mismatch a single-output old node.
	if r, ok := repl.(operator.Renamable); ok && len(oldOuts) == 1 && len(repl.Outputs()) == 0 {
		r.SetAlias(oldOuts[0])
	}
	replOuts := repl.Outputs()
	if len(oldOuts) != len(replOuts) {
		return operator.InvalidNode, NewInvalidPlan("replace: output arity mismatch", old)
	}

	for _, pid := range oldNode.Op.Inputs() {
		for _, name := range p.nodes[pid].Op.Outputs() {
			if pipe, ok := p.pipes[name]; ok {
				filtered := pipe.Consumers[:0:0]
				for _, c := range pipe.Consumers {
					if c != old {
						filtered = append(filtered, c)
					}
				}
				pipe.Consumers = filtered
			}
		}
	}

	newID := p.addNode(repl)

	inputIDs := make([]operator.NodeID, 0, len(repl.InputNames()))
	for _, name := range repl.InputNames() {
		pipe, ok := p.pipes[name]
		if !ok {
			return operator.InvalidNode, NewInvalidPlan("replace: invalid pipe: "+name, newID)
		}
		pipe.Consumers = append(pipe.Consumers, newID)
		inputIDs = append(inputIDs, pipe.Producer)
	}
	repl.SetInputs(inputIDs)

	for _, name := range oldOuts {
		pipe := p.pipes[name]
		pipe.Producer = newID
		for _, c := range pipe.Consumers {
			consumerOp := p.nodes[c].Op
			ids := append([]operator.NodeID(nil), consumerOp.Inputs()...)
			for i, n := range consumerOp.InputNames() {
				if n == name {
					ids[i] = newID
				}
			}
			consumerOp.SetInputs(ids)
		}
	}

	delete(p.nodes, old)
	return newID, p.rebuild()
}

// Swap exchanges the relative order of two directly adjacent unary
// operators (a commutativity-preserving rewrite, e.g. pushing a Filter
// below a schema-preserving Foreach). One of a/b must directly produce the
// other's sole input.
func (p *Plan) Swap(a, b operator.NodeID) error {
	aNode, aok := p.nodes[a]
	bNode, bok := p.nodes[b]
	if !aok || !bok {
		return NewInvalidPlan("swap: unknown node", a, b)
	}

	var up, down operator.NodeID
	var upNode, downNode *Node
	switch {
	case len(bNode.Op.Inputs()) == 1 && bNode.Op.Inputs()[0] == a:
		up, down = a, b
		upNode, downNode = aNode, bNode
	case len(aNode.Op.Inputs()) == 1 && aNode.Op.Inputs()[0] == b:
		up, down = b, a
		upNode, downNode = bNode, aNode
	default:
		return NewInvalidPlan("swap: operators are not directly adjacent", a, b)
	}

	upIns := upNode.Op.Inputs()
	upInNames := upNode.Op.InputNames()
	if len(upIns) != 1 || len(upInNames) != 1 {
		return NewInvalidPlan("swap: upstream operator must be unary", up)
	}
	grandParent := upIns[0]
	inName := upInNames[0]

	downOuts := downNode.Op.Outputs()
	upOuts := upNode.Op.Outputs()
	if len(downOuts) != 1 || len(upOuts) != 1 {
		return NewInvalidPlan("swap: both operators must produce exactly one output", up, down)
	}
	downOutName := downOuts[0]
	upOutName := upOuts[0]

	downstreamConsumers := append([]operator.NodeID(nil), p.pipes[downOutName].Consumers...)

	if r, ok := downNode.Op.(operator.Renamable); ok {
		r.SetInputNames([]string{inName})
	}
	downNode.Op.SetInputs([]operator.NodeID{grandParent})

	if r, ok := upNode.Op.(operator.Renamable); ok {
		r.SetInputNames([]string{downOutName})
	}
	upNode.Op.SetInputs([]operator.NodeID{down})

	inPipe := p.pipes[inName]
	filtered := inPipe.Consumers[:0:0]
	for _, c := range inPipe.Consumers {
		if c != up {
			filtered = append(filtered, c)
		}
	}
	inPipe.Consumers = append(filtered, down)

	p.pipes[downOutName].Consumers = []operator.NodeID{up}
	p.pipes[upOutName].Consumers = downstreamConsumers
	for _, c := range downstreamConsumers {
		rewireConsumerInput(p.nodes[c].Op, downOutName, upOutName, up)
	}

	return p.rebuild()
}
