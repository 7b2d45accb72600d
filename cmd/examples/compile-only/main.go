// Command compile-only runs a load/filter/group/foreach/store plan
// through pkg/compiler without a profiling collector or notification
// webhook attached, the way a CLI's --compile-only flag would.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	pglog "github.com/pigletlang/core/internal/log"
	"github.com/pigletlang/core/pkg/compiler"
	"github.com/pigletlang/core/pkg/markov"
	"github.com/pigletlang/core/pkg/materialize"
	"github.com/pigletlang/core/pkg/operator"
	"github.com/pigletlang/core/pkg/schema"
)

func main() {
	dir, err := os.MkdirTemp("", "piglet-compile-only-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkdtemp: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(dir)

	sch := schema.NewBag(schema.NewTuple(
		schema.Field{Name: "user", Type: schema.CharArray},
		schema.Field{Name: "amount", Type: schema.Double},
	))

	ops := []operator.Operator{
		operator.NewLoad("events", "purchases.txt", "PigStorage", -1, sch),
		operator.NewFilter("positive", "events", operator.BinaryExpr{
			Op:    ">",
			Left:  operator.FieldRef{Name: "amount"},
			Right: operator.Literal{Value: 0.0, Type: schema.Double},
		}),
		operator.NewGrouping("grouped", "positive", []operator.Expr{
			operator.FieldRef{Name: "user"},
		}),
		operator.NewForeachList("totals", "grouped", []operator.GeneratorExpr{
			{Alias: "user", Expr: operator.FieldRef{Name: "group"}},
		}),
		operator.NewStore("totals", filepath.Join(dir, "sink"), "PigStorage"),
	}

	matDir := filepath.Join(dir, "mat")
	cc := compiler.New(compiler.Config{
		Name:    "compile-only-demo",
		Backend: "spark",
		Master:  "local[*]",
		OutDir:  filepath.Join(dir, "out"),
		Materialize: materialize.Config{
			MatBaseDir: matDir,
		},
	}, markov.NewModel(), materialize.NewCatalogue(matDir), pglog.Default())

	artifact, err := cc.Compile(context.Background(), ops)
	if err != nil {
		fmt.Fprintf(os.Stderr, "compile: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("compiled %q backend=%s -> %s\n", artifact.Name, artifact.Spec.Backend, artifact.Spec.OutDir)
}
