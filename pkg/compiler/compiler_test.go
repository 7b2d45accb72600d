package compiler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pigletlang/core/internal/log"
	"github.com/pigletlang/core/pkg/markov"
	"github.com/pigletlang/core/pkg/materialize"
	"github.com/pigletlang/core/pkg/operator"
	"github.com/pigletlang/core/pkg/plan"
	"github.com/pigletlang/core/pkg/schema"
)

type fakeFS struct {
	mtimes map[string]int64
}

func (f fakeFS) LastModified(path string) (int64, error) {
	if mt, ok := f.mtimes[path]; ok {
		return mt, nil
	}
	return 0, os.ErrNotExist
}

func (f fakeFS) Exists(string) bool  { return true }
func (f fakeFS) Delete(string) error { return nil }

func loadFilterStoreOps(outPath string) []operator.Operator {
	sch := schema.NewBag(schema.NewTuple(
		schema.Field{Name: "x", Type: schema.Int},
	))
	load := operator.NewLoad("a", "f", "PigStorage", -1, sch)
	filter := operator.NewFilter("b", "a", operator.BinaryExpr{
		Op: ">", Left: operator.FieldRef{Name: "x"}, Right: operator.Literal{Value: 0, Type: schema.Int},
	})
	store := operator.NewStore("b", outPath, "PigStorage")
	return []operator.Operator{load, filter, store}
}

func TestCompileEndToEnd(t *testing.T) {
	dir := t.TempDir()
	matDir := filepath.Join(dir, "mat")
	cat := materialize.NewCatalogue(matDir)
	model := markov.NewModel()

	cc := New(Config{
		Name:    "job-1",
		Backend: "spark",
		Master:  "local[*]",
		OutDir:  filepath.Join(dir, "out"),
		Materialize: materialize.Config{
			MatBaseDir: matDir,
		},
	}, model, cat, log.Default())

	artifact, err := cc.Compile(context.Background(), loadFilterStoreOps(filepath.Join(dir, "sink")))
	require.NoError(t, err)
	require.Equal(t, "job-1", artifact.Name)
	require.Equal(t, "CompiledArtifact", artifact.Kind)

	manifestPath := filepath.Join(dir, "out", "job-1.manifest.yaml")
	_, err = os.Stat(manifestPath)
	require.NoError(t, err)

	sourcePath := filepath.Join(dir, "out", "job-1.scala")
	data, err := os.ReadFile(sourcePath)
	require.NoError(t, err)
	require.Contains(t, string(data), "object CompiledJob")
}

// loadSignature stamps ops against a file with the given mtime and returns
// the Load's lineage signature, modeling two compilations of the same
// script with the input either unchanged or touched in between.
func loadSignature(t *testing.T, mtime int64) string {
	t.Helper()
	cc := New(Config{Name: "sig", Backend: "spark", Profiling: true}, nil, nil, log.Default())
	cc.FS = fakeFS{mtimes: map[string]int64{"f": mtime}}

	ops := loadFilterStoreOps("sink")
	cc.stampLoads(ops)

	p, err := plan.New(ops)
	require.NoError(t, err)
	node, ok := p.FindOperatorForAlias("a")
	require.True(t, ok)
	return node.Signature
}

func TestLoadSignatureStableUntilFileTouched(t *testing.T) {
	require.Equal(t, loadSignature(t, 100), loadSignature(t, 100))
	require.NotEqual(t, loadSignature(t, 100), loadSignature(t, 200))
}

func TestStampLoadsProfilingOffEncodesMinusOne(t *testing.T) {
	cc := New(Config{Name: "sig", Backend: "spark"}, nil, nil, log.Default())
	cc.FS = fakeFS{mtimes: map[string]int64{"f": 100}}

	ops := loadFilterStoreOps("sink")
	ops[0].(*operator.Load).LastModified = 100
	cc.stampLoads(ops)
	require.EqualValues(t, -1, ops[0].(*operator.Load).LastModified)
}

func TestCompileInvalidPlanAborts(t *testing.T) {
	dir := t.TempDir()
	cat := materialize.NewCatalogue(filepath.Join(dir, "mat"))
	model := markov.NewModel()

	cc := New(Config{Name: "bad", Backend: "spark", OutDir: dir}, model, cat, log.Default())

	filter := operator.NewFilter("b", "missing-parent", operator.BinaryExpr{
		Op: ">", Left: operator.FieldRef{Name: "x"}, Right: operator.Literal{Value: 0, Type: schema.Int},
	})
	_, err := cc.Compile(context.Background(), []operator.Operator{filter})
	require.Error(t, err)
}
