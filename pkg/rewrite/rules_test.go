package rewrite

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pigletlang/core/pkg/operator"
	"github.com/pigletlang/core/pkg/plan"
	"github.com/pigletlang/core/pkg/schema"
)

func fieldSchema() *schema.BagType {
	return schema.NewBag(schema.NewTuple(
		schema.Field{Name: "a", Type: schema.Int},
		schema.Field{Name: "b", Type: schema.CharArray},
	))
}

func countTag(t *testing.T, p *plan.Plan, tag operator.Tag) int {
	t.Helper()
	n := 0
	for _, node := range p.Nodes() {
		if node.Op.Tag() == tag {
			n++
		}
	}
	return n
}

func TestFilterMergeCombinesAdjacentFilters(t *testing.T) {
	load := operator.NewLoad("lines", "in.csv", "PigStorage", -1, fieldSchema())
	f1 := operator.NewFilter("f1", "lines", operator.FieldRef{Name: "a"})
	f2 := operator.NewFilter("f2", "f1", operator.FieldRef{Name: "b"})
	store := operator.NewStore("f2", "out", "PigStorage")
	p, err := plan.New([]operator.Operator{load, f1, f2, store})
	require.NoError(t, err)
	require.Equal(t, 2, countTag(t, p, operator.TagFilter))

	reg := NewRegistry(16)
	reg.Register("filter-merge", Everywhere(FilterMerge))
	out, err := reg.Rewrite(p, "")
	require.NoError(t, err)
	require.Equal(t, 1, countTag(t, out, operator.TagFilter))
	require.NoError(t, out.CheckConsistency())

	merged, ok := out.FindOperatorForAlias("f2")
	require.True(t, ok)
	filter := merged.Op.(*operator.Filter)
	require.Equal(t, "(a AND b)", filter.Predicate.String())
	require.Equal(t, []string{"lines"}, filter.InputNames())
}

func TestFilterMergeDoesNotMergeSharedUpstreamFilter(t *testing.T) {
	load := operator.NewLoad("lines", "in.csv", "PigStorage", -1, fieldSchema())
	f1 := operator.NewFilter("f1", "lines", operator.FieldRef{Name: "a"})
	f2 := operator.NewFilter("f2", "f1", operator.FieldRef{Name: "b"})
	store1 := operator.NewStore("f1", "out1", "PigStorage")
	store2 := operator.NewStore("f2", "out2", "PigStorage")
	p, err := plan.New([]operator.Operator{load, f1, f2, store1, store2})
	require.NoError(t, err)

	reg := NewRegistry(16)
	reg.Register("filter-merge", Everywhere(FilterMerge))
	out, err := reg.Rewrite(p, "")
	require.NoError(t, err)
	require.Equal(t, 2, countTag(t, out, operator.TagFilter)) // f1 still feeds store1 directly
}

func TestPredicatePushdownSwapsBelowProjectingForeach(t *testing.T) {
	load := operator.NewLoad("lines", "in.csv", "PigStorage", -1, fieldSchema())
	fe := operator.NewForeachList("projected", "lines", []operator.GeneratorExpr{
		{Alias: "a", Expr: operator.FieldRef{Name: "a"}},
		{Alias: "b", Expr: operator.FieldRef{Name: "b"}},
	})
	filter := operator.NewFilter("filtered", "projected", operator.FieldRef{Name: "a"})
	store := operator.NewStore("filtered", "out", "PigStorage")
	p, err := plan.New([]operator.Operator{load, fe, filter, store})
	require.NoError(t, err)

	reg := NewRegistry(16)
	reg.Register("predicate-pushdown", Everywhere(PredicatePushdown))
	out, err := reg.Rewrite(p, "")
	require.NoError(t, err)
	require.NoError(t, out.CheckConsistency())

	loadNode, ok := out.FindOperatorForAlias("lines")
	require.True(t, ok)
	pipe, ok := out.Pipe("lines")
	require.True(t, ok)
	require.Len(t, pipe.Consumers, 1)
	consumer, ok := out.Node(pipe.Consumers[0])
	require.True(t, ok)
	_, isFilter := consumer.Op.(*operator.Filter)
	require.True(t, isFilter, "filter should now read directly from the load")
	_ = loadNode
}

func TestPredicatePushdownRejectsTransformingForeach(t *testing.T) {
	load := operator.NewLoad("lines", "in.csv", "PigStorage", -1, fieldSchema())
	// GENERATE a*2 AS a: the output column reuses the input's field name
	// but carries a transformed value, so a filter on a must not commute.
	fe := operator.NewForeachList("projected", "lines", []operator.GeneratorExpr{
		{Alias: "a", Expr: operator.BinaryExpr{
			Op: "*", Left: operator.FieldRef{Name: "a"}, Right: operator.Literal{Value: 2, Type: schema.Int},
		}},
		{Alias: "b", Expr: operator.FieldRef{Name: "b"}},
	})
	filter := operator.NewFilter("filtered", "projected", operator.FieldRef{Name: "a"})
	store := operator.NewStore("filtered", "out", "PigStorage")
	p, err := plan.New([]operator.Operator{load, fe, filter, store})
	require.NoError(t, err)

	reg := NewRegistry(16)
	reg.Register("predicate-pushdown", Everywhere(PredicatePushdown))
	out, err := reg.Rewrite(p, "")
	require.NoError(t, err)

	filterNode, ok := out.FindOperatorForAlias("filtered")
	require.True(t, ok)
	require.Equal(t, []string{"projected"}, filterNode.Op.InputNames(), "filter must stay above the transform")
}

func TestPredicatePushdownRejectsRenamingForeach(t *testing.T) {
	load := operator.NewLoad("lines", "in.csv", "PigStorage", -1, fieldSchema())
	// GENERATE b AS a: the filtered column exists upstream, but the
	// projection rebinds the name to a different input column.
	fe := operator.NewForeachList("projected", "lines", []operator.GeneratorExpr{
		{Alias: "a", Expr: operator.FieldRef{Name: "b"}},
	})
	filter := operator.NewFilter("filtered", "projected", operator.FieldRef{Name: "a"})
	store := operator.NewStore("filtered", "out", "PigStorage")
	p, err := plan.New([]operator.Operator{load, fe, filter, store})
	require.NoError(t, err)

	reg := NewRegistry(16)
	reg.Register("predicate-pushdown", Everywhere(PredicatePushdown))
	out, err := reg.Rewrite(p, "")
	require.NoError(t, err)

	filterNode, ok := out.FindOperatorForAlias("filtered")
	require.True(t, ok)
	require.Equal(t, []string{"projected"}, filterNode.Op.InputNames())
}

func TestPredicatePushdownDuplicatesAcrossUnionBranches(t *testing.T) {
	left := operator.NewLoad("left", "l.csv", "PigStorage", -1, fieldSchema())
	right := operator.NewLoad("right", "r.csv", "PigStorage", -1, fieldSchema())
	union := operator.NewUnion("merged", []string{"left", "right"})
	filter := operator.NewFilter("filtered", "merged", operator.FieldRef{Name: "a"})
	store := operator.NewStore("filtered", "out", "PigStorage")
	p, err := plan.New([]operator.Operator{left, right, union, filter, store})
	require.NoError(t, err)

	reg := NewRegistry(16)
	reg.Register("predicate-pushdown", Everywhere(PredicatePushdown))
	out, err := reg.Rewrite(p, "")
	require.NoError(t, err)
	require.NoError(t, out.CheckConsistency())
	require.Equal(t, 2, countTag(t, out, operator.TagFilter)) // one per union branch, original filter gone

	unionNode, ok := out.FindOperatorForAlias("merged")
	require.True(t, ok)
	for _, name := range unionNode.Op.InputNames() {
		producerNode, ok := out.FindOperatorForAlias(name)
		require.True(t, ok)
		require.Equal(t, operator.TagFilter, producerNode.Op.Tag())
	}
}

func TestWindowRewriteRecordsHintOnConsumerAndDropsWindowNode(t *testing.T) {
	load := operator.NewLoad("lines", "in.csv", "PigStorage", -1, fieldSchema())
	win := operator.NewWindow("windowed", "lines", "10m", "1m")
	group := operator.NewGrouping("grouped", "windowed", []operator.Expr{operator.FieldRef{Name: "a"}})
	store := operator.NewStore("grouped", "out", "PigStorage")
	p, err := plan.New([]operator.Operator{load, win, group, store})
	require.NoError(t, err)
	require.Equal(t, 1, countTag(t, p, operator.TagWindow))

	reg := NewRegistry(16)
	reg.RegisterBackend("flinks", "window-rewrite", Everywhere(WindowRewrite))
	out, err := reg.Rewrite(p, "flinks")
	require.NoError(t, err)
	require.Equal(t, 0, countTag(t, out, operator.TagWindow))
	require.NoError(t, out.CheckConsistency())

	groupNode, ok := out.FindOperatorForAlias("grouped")
	require.True(t, ok)
	w, ok := groupNode.Op.(operator.Windowed)
	require.True(t, ok)
	rng, slide, has := w.WindowHint()
	require.True(t, has)
	require.Equal(t, "10m", rng)
	require.Equal(t, "1m", slide)
	require.Equal(t, []string{"lines"}, groupNode.Op.InputNames())
}

func TestWindowRewriteIsBackendScoped(t *testing.T) {
	load := operator.NewLoad("lines", "in.csv", "PigStorage", -1, fieldSchema())
	win := operator.NewWindow("windowed", "lines", "10m", "1m")
	group := operator.NewGrouping("grouped", "windowed", []operator.Expr{operator.FieldRef{Name: "a"}})
	store := operator.NewStore("grouped", "out", "PigStorage")
	p, err := plan.New([]operator.Operator{load, win, group, store})
	require.NoError(t, err)

	reg := NewRegistry(16)
	reg.RegisterBackend("flinks", "window-rewrite", Everywhere(WindowRewrite))
	out, err := reg.Rewrite(p, "some-other-backend")
	require.NoError(t, err)
	require.Equal(t, 1, countTag(t, out, operator.TagWindow)) // unregistered backend leaves it untouched
}

func TestTimingInstrumentWrapsEveryOperatorOnce(t *testing.T) {
	load := operator.NewLoad("lines", "in.csv", "PigStorage", -1, fieldSchema())
	filter := operator.NewFilter("filtered", "lines", operator.FieldRef{Name: "a"})
	store := operator.NewStore("filtered", "out", "PigStorage")
	p, err := plan.New([]operator.Operator{load, filter, store})
	require.NoError(t, err)

	reg := NewRegistry(16)
	reg.Register("timing", Everywhere(TimingInstrument))
	out, err := reg.Rewrite(p, "")
	require.NoError(t, err)
	require.NoError(t, out.CheckConsistency())
	require.Equal(t, 2, countTag(t, out, operator.TagTimingOp)) // one per non-sink operator (load, filter)

	// Re-running must not insert a second layer.
	out2, err := reg.Rewrite(out, "")
	require.NoError(t, err)
	require.Equal(t, 2, countTag(t, out2, operator.TagTimingOp))
}

func TestFixpointAndEverywhereCombinators(t *testing.T) {
	load := operator.NewLoad("lines", "in.csv", "PigStorage", -1, fieldSchema())
	f1 := operator.NewFilter("f1", "lines", operator.FieldRef{Name: "a"})
	f2 := operator.NewFilter("f2", "f1", operator.FieldRef{Name: "b"})
	f3 := operator.NewFilter("f3", "f2", operator.FieldRef{Name: "a"})
	store := operator.NewStore("f3", "out", "PigStorage")
	p, err := plan.New([]operator.Operator{load, f1, f2, f3, store})
	require.NoError(t, err)

	rule := Fixpoint(Everywhere(FilterMerge), 8)
	out, matched := rule(p, 0)
	require.True(t, matched)
	require.Equal(t, 1, countTag(t, out, operator.TagFilter))
}
