package plan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pigletlang/core/pkg/operator"
	"github.com/pigletlang/core/pkg/schema"
)

func fieldSchema() *schema.BagType {
	return schema.NewBag(schema.NewTuple(
		schema.Field{Name: "a", Type: schema.Int},
		schema.Field{Name: "b", Type: schema.CharArray},
	))
}

func loadFilterStore(t *testing.T) []operator.Operator {
	t.Helper()
	load := operator.NewLoad("lines", "in.csv", "PigStorage", -1, fieldSchema())
	filter := operator.NewFilter("filtered", "lines", operator.FieldRef{Name: "a"})
	store := operator.NewStore("filtered", "out", "PigStorage")
	return []operator.Operator{load, filter, store}
}

func TestNewAssemblesLinearPlan(t *testing.T) {
	p, err := New(loadFilterStore(t))
	require.NoError(t, err)
	require.Len(t, p.Nodes(), 3)
	require.NoError(t, p.CheckConsistency())
	require.NoError(t, p.CheckSchemaConformance())
}

func TestNewDuplicatePipeIsInvalid(t *testing.T) {
	load := operator.NewLoad("lines", "in.csv", "PigStorage", -1, fieldSchema())
	dup := operator.NewLoad("lines", "in2.csv", "PigStorage", -1, fieldSchema())
	_, err := New([]operator.Operator{load, dup})
	require.Error(t, err)
	var invalid *InvalidPlanError
	require.ErrorAs(t, err, &invalid)
}

func TestNewMissingPipeIsInvalid(t *testing.T) {
	filter := operator.NewFilter("filtered", "nonexistent", operator.FieldRef{Position: 0})
	_, err := New([]operator.Operator{filter})
	require.Error(t, err)
}

func TestNewExtractsRegisterArgsAsAdditionalJars(t *testing.T) {
	reg := operator.NewRegister("udfs.jar")
	load := operator.NewLoad("lines", "in.csv", "PigStorage", -1, fieldSchema())
	store := operator.NewStore("lines", "out", "PigStorage")
	p, err := New([]operator.Operator{reg, load, store})
	require.NoError(t, err)
	require.Equal(t, []string{"udfs.jar"}, p.AdditionalJars())
	require.Len(t, p.Nodes(), 2)
}

func TestForeachEmptyGeneratorListIsInvalid(t *testing.T) {
	load := operator.NewLoad("lines", "in.csv", "PigStorage", -1, fieldSchema())
	fe := operator.NewForeachList("projected", "lines", nil)
	_, err := New([]operator.Operator{load, fe})
	require.Error(t, err)
	var invalid *InvalidPlanError
	require.ErrorAs(t, err, &invalid)
}

func TestGroupAllSynthesizesCharArrayKey(t *testing.T) {
	load := operator.NewLoad("lines", "in.csv", "PigStorage", -1, fieldSchema())
	group := operator.NewGrouping("grouped", "lines", nil)
	p, err := New([]operator.Operator{load, group})
	require.NoError(t, err)
	node, ok := p.FindOperatorForAlias("grouped")
	require.True(t, ok)
	out := node.Op.Schema()
	require.NotNil(t, out)
	groupField, _, ok := out.Inner.FieldByName("group")
	require.True(t, ok)
	require.Equal(t, schema.CharArray, groupField.Type)
}

func TestUnionAcceptsFieldNameDifferences(t *testing.T) {
	left := operator.NewLoad("left", "a.csv", "PigStorage", -1, fieldSchema())
	right := operator.NewLoad("right", "b.csv", "PigStorage", -1, schema.NewBag(schema.NewTuple(
		schema.Field{Name: "x", Type: schema.Int},
		schema.Field{Name: "y", Type: schema.CharArray},
	)))
	union := operator.NewUnion("combined", []string{"left", "right"})
	p, err := New([]operator.Operator{left, right, union})
	require.NoError(t, err)
	require.NoError(t, p.CheckSchemaConformance())
}

func TestUnionRejectsIncompatibleTypes(t *testing.T) {
	left := operator.NewLoad("left", "a.csv", "PigStorage", -1, fieldSchema())
	right := operator.NewLoad("right", "b.csv", "PigStorage", -1, schema.NewBag(schema.NewTuple(
		schema.Field{Name: "a", Type: schema.NewTuple(schema.Field{Name: "n", Type: schema.Int})},
	)))
	union := operator.NewUnion("combined", []string{"left", "right"})
	_, err := New([]operator.Operator{left, right, union})
	require.Error(t, err)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
}

func TestCheckConsistencyRejectsDisconnectedGraph(t *testing.T) {
	a := operator.NewLoad("a", "a.csv", "PigStorage", -1, fieldSchema())
	storeA := operator.NewStore("a", "outA", "PigStorage")
	b := operator.NewLoad("b", "b.csv", "PigStorage", -1, fieldSchema())
	storeB := operator.NewStore("b", "outB", "PigStorage")
	p, err := New([]operator.Operator{a, storeA, b, storeB})
	require.NoError(t, err)
	require.Error(t, p.CheckConsistency())
}

func TestNestedForeachDepthBudget(t *testing.T) {
	gen := func() operator.GeneratorExpr { return operator.GeneratorExpr{Expr: operator.FieldRef{Position: 0}} }

	cbInner := operator.NewConstructBag("cbInner", []operator.Expr{operator.FieldRef{Position: 0}})
	genInner := operator.NewGenerate("cbInner", []operator.GeneratorExpr{gen()})

	cbMid := operator.NewConstructBag("cbMid", []operator.Expr{operator.FieldRef{Position: 0}})
	midForeach := operator.NewForeachNested("midForeach", "cbMid", []operator.Operator{cbInner, genInner})
	genMid := operator.NewGenerate("midForeach", []operator.GeneratorExpr{gen()})

	outerForeach := operator.NewForeachNested("outer", "lines", []operator.Operator{cbMid, midForeach, genMid})
	load := operator.NewLoad("lines", "in.csv", "PigStorage", -1, fieldSchema())

	_, err := New([]operator.Operator{load, outerForeach})
	require.Error(t, err)
	var invalid *InvalidPlanError
	require.ErrorAs(t, err, &invalid)
}

func TestInsertAfterReroutesConsumers(t *testing.T) {
	ops := loadFilterStore(t)
	p, err := New(ops)
	require.NoError(t, err)

	filterNode, ok := p.FindOperatorForAlias("filtered")
	require.True(t, ok)

	cache := operator.NewCache("cached", "", operator.CacheModeMemory)
	newID, err := p.InsertAfter(filterNode.ID, cache)
	require.NoError(t, err)

	cachedNode, ok := p.Node(newID)
	require.True(t, ok)
	require.Equal(t, []string{"filtered"}, cachedNode.Op.InputNames())

	var store *Node
	for _, n := range p.Nodes() {
		if n.Op.Tag() == operator.TagStore {
			store = n
		}
	}
	require.NotNil(t, store)
	require.Equal(t, []string{"cached"}, store.Op.InputNames())
	require.Equal(t, []operator.NodeID{newID}, store.Op.Inputs())

	pipe, ok := p.Pipe("filtered")
	require.True(t, ok)
	require.Equal(t, []operator.NodeID{newID}, pipe.Consumers)
}

func TestInsertAfterSinkBranchDoesNotReroute(t *testing.T) {
	ops := loadFilterStore(t)
	p, err := New(ops)
	require.NoError(t, err)

	filterNode, ok := p.FindOperatorForAlias("filtered")
	require.True(t, ok)

	branch := operator.NewDump("filtered")
	newID, err := p.InsertAfter(filterNode.ID, branch)
	require.NoError(t, err)

	pipe, ok := p.Pipe("filtered")
	require.True(t, ok)
	require.Contains(t, pipe.Consumers, newID)
	require.Len(t, pipe.Consumers, 2) // original store + the new dump branch
}

func TestReplacePreservesConsumers(t *testing.T) {
	ops := loadFilterStore(t)
	p, err := New(ops)
	require.NoError(t, err)

	loadNode, ok := p.FindOperatorForAlias("lines")
	require.True(t, ok)

	replacement := operator.NewLoad("lines", "cache/lines.seq", "SequenceFileLoader", -1, fieldSchema())
	newID, err := p.Replace(loadNode.ID, replacement)
	require.NoError(t, err)

	filterNode, ok := p.FindOperatorForAlias("filtered")
	require.True(t, ok)
	require.Equal(t, []operator.NodeID{newID}, filterNode.Op.Inputs())
	require.NoError(t, p.CheckConsistency())
}

func TestRemoveBypassesUnaryOperator(t *testing.T) {
	ops := loadFilterStore(t)
	p, err := New(ops)
	require.NoError(t, err)

	filterNode, ok := p.FindOperatorForAlias("filtered")
	require.True(t, ok)
	err = p.Remove(filterNode.ID, false)
	require.NoError(t, err)

	require.Len(t, p.Nodes(), 2)
	var store *Node
	for _, n := range p.Nodes() {
		if n.Op.Tag() == operator.TagStore {
			store = n
		}
	}
	require.NotNil(t, store)
	require.Equal(t, []string{"lines"}, store.Op.InputNames())
}

func TestRemovePredecessorConeRequiresNoConsumers(t *testing.T) {
	ops := loadFilterStore(t)
	p, err := New(ops)
	require.NoError(t, err)

	loadNode, ok := p.FindOperatorForAlias("lines")
	require.True(t, ok)
	err = p.Remove(loadNode.ID, true)
	require.Error(t, err) // load still feeds the filter
}

func TestSwapExchangesAdjacentUnaryOperators(t *testing.T) {
	load := operator.NewLoad("lines", "in.csv", "PigStorage", -1, fieldSchema())
	filter := operator.NewFilter("filtered", "lines", operator.FieldRef{Name: "a"})
	projected := operator.NewForeachList("projected", "filtered", []operator.GeneratorExpr{
		{Alias: "a", Expr: operator.FieldRef{Name: "a"}},
	})
	store := operator.NewStore("projected", "out", "PigStorage")
	p, err := New([]operator.Operator{load, filter, projected, store})
	require.NoError(t, err)

	filterNode, _ := p.FindOperatorForAlias("filtered")
	projectedNode, _ := p.FindOperatorForAlias("projected")

	err = p.Swap(filterNode.ID, projectedNode.ID)
	require.NoError(t, err)

	require.Equal(t, []string{"lines"}, projectedNode.Op.InputNames())
	require.Equal(t, []string{"projected"}, filterNode.Op.InputNames())

	var foundStore *Node
	for _, n := range p.Nodes() {
		if n.Op.Tag() == operator.TagStore {
			foundStore = n
		}
	}
	require.Equal(t, []string{"filtered"}, foundStore.Op.InputNames())
	require.NoError(t, p.CheckConsistency())
}

func TestSharedPrefixSignaturesMatchAcrossPlans(t *testing.T) {
	build := func(sinkPath string) *Plan {
		load := operator.NewLoad("lines", "f", "PigStorage", -1, fieldSchema())
		filter := operator.NewFilter("filtered", "lines", operator.FieldRef{Name: "a"})
		store := operator.NewStore("filtered", sinkPath, "PigStorage")
		p, err := New([]operator.Operator{load, filter, store})
		require.NoError(t, err)
		return p
	}

	p1 := build("out1")
	p2 := build("out2")

	f1, ok := p1.FindOperatorForAlias("filtered")
	require.True(t, ok)
	f2, ok := p2.FindOperatorForAlias("filtered")
	require.True(t, ok)
	require.Equal(t, f1.Signature, f2.Signature)

	s1 := p1.SinkNodes()
	s2 := p2.SinkNodes()
	require.Len(t, s1, 1)
	require.Len(t, s2, 1)
	sink1, _ := p1.Node(s1[0])
	sink2, _ := p2.Node(s2[0])
	require.NotEqual(t, sink1.Signature, sink2.Signature) // distinct store paths
}

func TestCloneIsIndependent(t *testing.T) {
	p, err := New(loadFilterStore(t))
	require.NoError(t, err)
	clone := p.Clone()

	filterNode, _ := p.FindOperatorForAlias("filtered")
	_, err = p.InsertAfter(filterNode.ID, operator.NewCache("cached", "", operator.CacheModeMemory))
	require.NoError(t, err)

	require.Len(t, clone.Nodes(), 3)
	require.Len(t, p.Nodes(), 4)
}
