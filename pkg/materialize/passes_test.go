package materialize

import (
	"testing"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"github.com/stretchr/testify/require"

	"github.com/pigletlang/core/pkg/markov"
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

func simplePlan(t *testing.T) *plan.Plan {
	t.Helper()
	load := operator.NewLoad("lines", "in.csv", "PigStorage", -1, fieldSchema())
	filter := operator.NewFilter("filtered", "lines", operator.FieldRef{Name: "a"})
	store := operator.NewStore("filtered", "out", "PigStorage")
	p, err := plan.New([]operator.Operator{load, filter, store})
	require.NoError(t, err)
	return p
}

func TestLoadAlreadyCachedReplacesConeWithLoad(t *testing.T) {
	p := simplePlan(t)
	filterNode, ok := p.FindOperatorForAlias("filtered")
	require.True(t, ok)

	cat := NewCatalogue(t.TempDir())
	cat.Put(filterNode.Signature, "s3://cache/filtered", metav1.Now())

	out, err := LoadAlreadyCached(p, cat)
	require.NoError(t, err)
	require.NoError(t, out.CheckConsistency())

	replaced, ok := out.FindOperatorForAlias("filtered")
	require.True(t, ok)
	load, isLoad := replaced.Op.(*operator.Load)
	require.True(t, isLoad, "filter's cone should be replaced by a Load")
	require.Equal(t, "s3://cache/filtered", load.File)
	require.Empty(t, load.Inputs())
}

func TestLoadAlreadyCachedSkipsSinks(t *testing.T) {
	p := simplePlan(t)

	sinkSig := ""
	for _, n := range p.Nodes() {
		if n.Op.Tag() == operator.TagStore {
			sinkSig = n.Signature
		}
	}
	require.NotEmpty(t, sinkSig)

	cat := NewCatalogue(t.TempDir())
	cat.Put(sinkSig, "s3://cache/sink", metav1.Now())

	out, err := LoadAlreadyCached(p, cat)
	require.NoError(t, err)
	require.Equal(t, 1, func() int {
		n := 0
		for _, node := range out.Nodes() {
			if node.Op.Tag() == operator.TagStore {
				n++
			}
		}
		return n
	}())
}

func TestLoadAlreadyCachedIsIdempotent(t *testing.T) {
	p := simplePlan(t)
	filterNode, ok := p.FindOperatorForAlias("filtered")
	require.True(t, ok)

	cat := NewCatalogue(t.TempDir())
	cat.Put(filterNode.Signature, "s3://cache/filtered", metav1.Now())

	once, err := LoadAlreadyCached(p, cat)
	require.NoError(t, err)
	twice, err := LoadAlreadyCached(once, cat)
	require.NoError(t, err)

	require.Equal(t, len(once.Nodes()), len(twice.Nodes()))
	for i := range once.Nodes() {
		require.Equal(t, once.Nodes()[i].Signature, twice.Nodes()[i].Signature)
	}
}

// With probThreshold=0.9 and minBenefit=1000ms: {prob=0.5,
// benefit=10000ms} is rejected on probability, {prob=1.0, benefit=500ms}
// is rejected on benefit, and {prob=1.0, benefit=5000ms} is accepted.
func TestBenefitThresholds(t *testing.T) {
	const probThreshold = 0.9
	const minBenefit = 1000.0

	cases := []struct {
		name     string
		prob     float64
		benefit  float64
		accepted bool
	}{
		{"low probability", 0.5, 10000, false},
		{"below min benefit", 1.0, 500, false},
		{"accepted", 1.0, 5000, true},
	}
	for _, c := range cases {
		accepted := c.benefit > 0 && c.benefit >= minBenefit && c.prob >= probThreshold
		require.Equal(t, c.accepted, accepted, c.name)
	}
}

func TestInsertNewMaterializationsSelectsGreatestBenefit(t *testing.T) {
	p := simplePlan(t)
	filterNode, ok := p.FindOperatorForAlias("filtered")
	require.True(t, ok)

	model := markov.NewModel()
	model.Add(markov.Start, filterNode.Signature)
	model.UpdateCost(filterNode.Signature, 5000)
	model.UpdateSize(filterNode.Signature, 1000, 100)

	dir := t.TempDir()
	cat := NewCatalogue(dir)
	cfg := Config{
		WriteThroughputMiBs: 100,
		ProbStrategy:        markov.ProbAvg,
		CostStrategy:        markov.CostMax,
		ProbThreshold:       0,
		MinBenefit:          0,
		Strategy:            GreatestBenefit,
		MatBaseDir:          dir,
	}

	out, err := InsertNewMaterializations(p, model, cat, cfg, metav1.Now())
	require.NoError(t, err)
	require.NoError(t, out.CheckConsistency())

	storesFromFilter := 0
	for _, n := range out.Nodes() {
		if n.Op.Tag() == operator.TagStore && len(n.Op.Inputs()) == 1 {
			if in, ok := out.Node(n.Op.Inputs()[0]); ok && in.ID == filterNode.ID {
				storesFromFilter++
			}
		}
	}
	require.Equal(t, 2, storesFromFilter, "the original sink plus a new materialization branch")
	require.Equal(t, 1, cat.Len())
}

func TestApplyMaterializeHintsForcesStoreAndRemovesMarker(t *testing.T) {
	load := operator.NewLoad("lines", "in.csv", "PigStorage", -1, fieldSchema())
	filter := operator.NewFilter("filtered", "lines", operator.FieldRef{Name: "a"})
	hint := operator.NewMaterialize("materialized", "filtered")
	store := operator.NewStore("materialized", "out", "PigStorage")
	p, err := plan.New([]operator.Operator{load, filter, hint, store})
	require.NoError(t, err)
	require.Equal(t, 1, func() int {
		n := 0
		for _, node := range p.Nodes() {
			if node.Op.Tag() == operator.TagMaterialize {
				n++
			}
		}
		return n
	}())

	dir := t.TempDir()
	cat := NewCatalogue(dir)
	out, err := ApplyMaterializeHints(p, cat, dir, metav1.Now())
	require.NoError(t, err)
	require.NoError(t, out.CheckConsistency())

	for _, n := range out.Nodes() {
		require.NotEqual(t, operator.TagMaterialize, n.Op.Tag(), "hint must be spliced out")
	}
	require.Equal(t, 1, cat.Len())

	// The original sink must still read straight from the filter.
	storeFound := false
	for _, n := range out.Nodes() {
		if n.Op.Tag() == operator.TagStore && n.Op.(*operator.Store).Path == "out" {
			require.Equal(t, []string{"filtered"}, n.Op.InputNames())
			storeFound = true
		}
	}
	require.True(t, storeFound)
}

func TestApplyMaterializeHintsIsIdempotent(t *testing.T) {
	load := operator.NewLoad("lines", "in.csv", "PigStorage", -1, fieldSchema())
	filter := operator.NewFilter("filtered", "lines", operator.FieldRef{Name: "a"})
	hint := operator.NewMaterialize("materialized", "filtered")
	store := operator.NewStore("materialized", "out", "PigStorage")
	p, err := plan.New([]operator.Operator{load, filter, hint, store})
	require.NoError(t, err)

	dir := t.TempDir()
	cat := NewCatalogue(dir)
	once, err := ApplyMaterializeHints(p, cat, dir, metav1.Now())
	require.NoError(t, err)
	twice, err := ApplyMaterializeHints(once, cat, dir, metav1.Now())
	require.NoError(t, err)
	require.Equal(t, len(once.Nodes()), len(twice.Nodes()))
}
