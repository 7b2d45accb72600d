package operator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineageStringDeterministic(t *testing.T) {
	load := NewLoad("A", "f", "PigStorage", -1, nil)
	loadLineage := LineageString(load, nil)

	filter := NewFilter("B", "A", FieldRef{Name: "x"})
	filterLineage := LineageString(filter, []string{loadLineage})

	assert.Equal(t, "LOAD%file=f;loader=PigStorage;lastModified=-1%", loadLineage)
	assert.Contains(t, filterLineage, loadLineage)
	assert.Equal(t, Signature(loadLineage), Signature(loadLineage))
}

func TestSignatureDistinctOnLiteralParams(t *testing.T) {
	a := NewLoad("A", "f1", "PigStorage", -1, nil)
	b := NewLoad("A", "f2", "PigStorage", -1, nil)

	sigA := Signature(LineageString(a, nil))
	sigB := Signature(LineageString(b, nil))
	assert.NotEqual(t, sigA, sigB)
}

func TestSignatureStableAcrossStructuralCopies(t *testing.T) {
	build := func() string {
		load := NewLoad("A", "f", "PigStorage", -1, nil)
		loadLineage := LineageString(load, nil)
		filter := NewFilter("B", "A", FieldRef{Name: "x"})
		filterLineage := LineageString(filter, []string{loadLineage})
		return Signature(filterLineage)
	}

	assert.Equal(t, build(), build())
}

func TestLineageChangesWithLastModified(t *testing.T) {
	a := NewLoad("A", "f", "PigStorage", 100, nil)
	b := NewLoad("A", "f", "PigStorage", 200, nil)

	sigA := Signature(LineageString(a, nil))
	sigB := Signature(LineageString(b, nil))
	assert.NotEqual(t, sigA, sigB)
}
