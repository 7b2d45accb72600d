package emit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pigletlang/core/pkg/operator"
	"github.com/pigletlang/core/pkg/plan"
	"github.com/pigletlang/core/pkg/schema"
)

func loadFilterStorePlan(t *testing.T) *plan.Plan {
	t.Helper()
	sch := schema.NewBag(schema.NewTuple(
		schema.Field{Name: "x", Type: schema.Int},
		schema.Field{Name: "y", Type: schema.Int},
	))
	load := operator.NewLoad("a", "f", "PigStorage", -1, sch)
	filter := operator.NewFilter("b", "a", operator.BinaryExpr{
		Op: ">", Left: operator.FieldRef{Name: "x"}, Right: operator.Literal{Value: 0, Type: schema.Int},
	})
	store := operator.NewStore("b", "/out", "PigStorage")

	p, err := plan.New([]operator.Operator{load, filter, store})
	require.NoError(t, err)
	return p
}

func TestEmitLoadFilterStore(t *testing.T) {
	p := loadFilterStorePlan(t)
	out, err := NewEmitter().Emit(p, Options{Backend: "spark", Master: "local[*]"})
	require.NoError(t, err)
	require.Contains(t, out, "object CompiledJob")
	require.Contains(t, out, "val a = ctx.")
	require.Contains(t, out, "val b = a.filter(")
	require.Contains(t, out, ".store[PigStorage](\"/out\")")
}

func TestEmitSharesSchemaClassAcrossOperators(t *testing.T) {
	p := loadFilterStorePlan(t)
	out, err := NewEmitter().Emit(p, Options{Backend: "spark"})
	require.NoError(t, err)
	// Load and Filter share the same schema (Filter is a pass-through), so
	// exactly one case class should be declared for it.
	require.Equal(t, 1, countOccurrences(out, "case class Schema_"))
}

func TestEmitUnknownTagIsBackendError(t *testing.T) {
	classes := newSchemaClassSet()
	reg := operator.NewRegister("a.jar")
	// Register operators are dropped during plan assembly and should never
	// reach the emitter directly; exercise the dispatch failure path with a
	// bare Node built around one anyway.
	n := &plan.Node{ID: 0, Op: reg}
	_, err := renderOperator(nil, n, classes, "spark")
	require.Error(t, err)
	var berr *BackendError
	require.ErrorAs(t, err, &berr)
}

func countOccurrences(s, substr string) int {
	count := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			count++
		}
	}
	return count
}
