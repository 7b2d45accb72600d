// Package plan implements the dataflow plan: graph assembly from an
// operator list, schema propagation, structural edits, and consistency
// checks.
package plan

import (
	"fmt"

	"github.com/pigletlang/core/pkg/operator"
)

// InvalidPlanError covers duplicate output pipes, missing input pipes,
// dangling sub-plans, a nested Foreach without a trailing Generate, a
// schema-construction rejection, and a disconnected graph.
type InvalidPlanError struct {
	Reason string
	Nodes  []operator.NodeID
	Err    error // the underlying rejection, when one exists
}

func (e *InvalidPlanError) Error() string {
	return fmt.Sprintf("invalid plan: %s", e.Reason)
}

func (e *InvalidPlanError) Unwrap() error { return e.Err }

func NewInvalidPlan(reason string, nodes ...operator.NodeID) *InvalidPlanError {
	return &InvalidPlanError{Reason: reason, Nodes: nodes}
}

// wrapInvalidPlan classifies an operator-level rejection (e.g. a
// ConstructSchema failure) as an InvalidPlanError while keeping the
// original error reachable through errors.Is/errors.As.
func wrapInvalidPlan(err error, nodes ...operator.NodeID) *InvalidPlanError {
	return &InvalidPlanError{Reason: err.Error(), Nodes: nodes, Err: err}
}

// SchemaError collects every operator whose conformance check failed into
// a single diagnostic, rather than stopping at the first.
type SchemaError struct {
	Failures map[operator.NodeID]error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: %d operator(s) failed conformance", len(e.Failures))
}

func (e *SchemaError) Add(id operator.NodeID, err error) {
	if e.Failures == nil {
		e.Failures = make(map[operator.NodeID]error)
	}
	e.Failures[id] = err
}

func (e *SchemaError) Empty() bool { return len(e.Failures) == 0 }
