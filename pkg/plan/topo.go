package plan

import "github.com/pigletlang/core/pkg/operator"

// topoSort orders ids via Kahn's algorithm over the already-resolved
// producer/consumer edges, so constructSchema and lineage computation can
// run in dependency order.
func (p *Plan) topoSort(ids []operator.NodeID) ([]operator.NodeID, error) {
	indegree := make(map[operator.NodeID]int, len(ids))
	for _, id := range ids {
		indegree[id] = len(p.nodes[id].Op.Inputs())
	}

	queue := make([]operator.NodeID, 0, len(ids))
	for _, id := range ids {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]operator.NodeID, 0, len(ids))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, name := range p.nodes[id].Op.Outputs() {
			pipe, ok := p.pipes[name]
			if !ok {
				continue
			}
			for _, consumer := range pipe.Consumers {
				indegree[consumer]--
				if indegree[consumer] == 0 {
					queue = append(queue, consumer)
				}
			}
		}
	}

	if len(order) != len(ids) {
		return nil, NewInvalidPlan("cycle detected in operator graph")
	}
	return order, nil
}
