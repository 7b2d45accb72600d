package emit

import (
	"fmt"
	"strings"

	"github.com/pigletlang/core/pkg/operator"
	"github.com/pigletlang/core/pkg/plan"
)

// valName is the Scala identifier an operator's output is bound to: the
// pipe alias when present, else a synthesized name for sink operators
// (STORE/DUMP/GENERATE have no out-pipe, per the parser contract's
// initialOutPipeName == "" convention).
func valName(n *plan.Node) string {
	if a := n.Op.Alias(); a != "" {
		return a
	}
	return fmt.Sprintf("sink_%d", n.ID)
}

func inputVal(p *plan.Plan, id operator.NodeID) string {
	if n, ok := p.Node(id); ok {
		return valName(n)
	}
	return "_"
}

// snippet is one operator's rendered code plus any helper declaration it
// needs emitted once, alongside it (orderHelper/topHelper/cepHelper, named
// deterministically from the operator's own out-pipe name).
type snippet struct {
	body   string
	helper string
}

// renderOperator dispatches on the operator's Tag to its template, one
// emitter per operator variant. Unhandled tags (those
// consumed entirely by rewriting, e.g. Register and a post-rewrite Window)
// are a BackendError: no template exists for them because none should
// ever reach emission.
func renderOperator(p *plan.Plan, n *plan.Node, classes *schemaClassSet, backend string) (snippet, error) {
	out := valName(n)
	if n.Op.Schema() != nil {
		classes.register(n.Op.Schema())
	}

	switch op := n.Op.(type) {
	case *operator.Load:
		return snippet{body: fmt.Sprintf(
			"val %s = ctx.%s[%s](%q) // lineage=%s",
			out, loaderCall(op.Loader), classes.classFor(op.Schema()), op.File, n.Signature,
		)}, nil

	case *operator.Filter:
		return snippet{body: fmt.Sprintf(
			"val %s = %s.filter(r => %s)",
			out, inputVal(p, op.Inputs()[0]), op.Predicate.String(),
		)}, nil

	case *operator.Foreach:
		return snippet{body: renderForeach(p, n, op, classes, out)}, nil

	case *operator.Grouping:
		keys := "r => \"all\""
		if len(op.Keys) > 0 {
			keys = fmt.Sprintf("r => (%s)", joinExprs(op.Keys))
		}
		return snippet{body: fmt.Sprintf(
			"val %s = %s.groupBy(%s)", out, inputVal(p, op.Inputs()[0]), keys,
		)}, nil

	case *operator.Join:
		var ins []string
		for _, id := range op.Inputs() {
			ins = append(ins, inputVal(p, id))
		}
		var keys []string
		for _, k := range op.Keys {
			keys = append(keys, k.String())
		}
		return snippet{body: fmt.Sprintf(
			"val %s = Join(%s)(%s)", out, strings.Join(ins, ", "), strings.Join(keys, ", "),
		)}, nil

	case *operator.Distinct:
		return snippet{body: fmt.Sprintf("val %s = %s.distinct", out, inputVal(p, op.Inputs()[0]))}, nil

	case *operator.Limit:
		helperName := out + "Top"
		return snippet{
			body:   fmt.Sprintf("val %s = %s(%s, %d)", out, helperName, inputVal(p, op.Inputs()[0]), op.Count),
			helper: topHelper(helperName),
		}, nil

	case *operator.Union:
		var ins []string
		for _, id := range op.Inputs() {
			ins = append(ins, inputVal(p, id))
		}
		return snippet{body: fmt.Sprintf("val %s = %s", out, strings.Join(ins, " union "))}, nil

	case *operator.OrderBy:
		orderingName := out + "Ordering"
		dir := "ascending"
		if !op.Asc {
			dir = "descending"
		}
		return snippet{
			body:   fmt.Sprintf("val %s = %s.sorted(%s) // %s", out, inputVal(p, op.Inputs()[0]), orderingName, dir),
			helper: orderHelper(orderingName, op.Key.String(), op.Asc),
		}, nil

	case *operator.Split:
		var parts []string
		for i, name := range op.OutNames {
			parts = append(parts, fmt.Sprintf("val %s = %s.filter(r => %s)", name, inputVal(p, op.Inputs()[0]), op.Filters[i].String()))
		}
		return snippet{body: strings.Join(parts, "\n")}, nil

	case *operator.Store:
		return snippet{body: fmt.Sprintf(
			"%s.%s(%q)", inputVal(p, op.Inputs()[0]), storerCall(op.Storer), op.Path,
		)}, nil

	case *operator.Dump:
		return snippet{body: fmt.Sprintf("%s.foreach(println)", inputVal(p, op.Inputs()[0]))}, nil

	case *operator.Cache:
		return snippet{body: fmt.Sprintf(
			"val %s = %s.persist(StorageLevel.%s)", out, inputVal(p, op.Inputs()[0]), cacheStorageLevel(op.Mode),
		)}, nil

	case *operator.TimingOp:
		return snippet{body: fmt.Sprintf(
			"val %s = %s.map(r => { profiler.tag(%q, partitionOf(r), System.currentTimeMillis()); r })",
			out, inputVal(p, op.Inputs()[0]), op.TargetLineage,
		)}, nil

	case *operator.Matcher:
		controllerName := out + "Controller"
		return snippet{
			body:   fmt.Sprintf("val %s = %s.flatMap(%s.evaluate)", out, inputVal(p, op.Inputs()[0]), controllerName),
			helper: cepHelper(controllerName, op.Automaton, op.Selection),
		}, nil

	case *operator.Materialize:
		return snippet{}, newBackendError(backend, fmt.Sprintf(
			"MATERIALIZE operator %q reached emission unrewritten; the materialization manager should have consumed it", out))

	default:
		return snippet{}, newBackendError(backend, fmt.Sprintf("no emission template registered for operator tag %s", n.Op.Tag()))
	}
}

func joinExprs(keys []operator.Expr) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return strings.Join(parts, ", ")
}

func loaderCall(loader string) string {
	if loader == "" {
		return "textFile"
	}
	return "load[" + loader + "]"
}

func storerCall(storer string) string {
	if storer == "" {
		return "saveAsTextFile"
	}
	return "store[" + storer + "]"
}

func cacheStorageLevel(mode operator.CacheMode) string {
	if mode == operator.CacheModeDisk {
		return "DISK_ONLY"
	}
	return "MEMORY_ONLY"
}

// renderForeach handles both Foreach forms: a flat GeneratorList
// compiles to a single .map call; a nested sub-plan compiles to a .map
// whose body builds and runs the sub-plan's own operators against each
// input tuple, ending in the trailing Generate.
func renderForeach(p *plan.Plan, n *plan.Node, op *operator.Foreach, classes *schemaClassSet, out string) string {
	in := inputVal(p, op.Inputs()[0])
	if sub, ok := op.SubPlan(); ok {
		final, _ := sub.FinalOperator()
		gen, _ := final.(*operator.Generate)
		return fmt.Sprintf("val %s = %s.map(t => { %s }) // nested foreach, %s",
			out, in, renderGenerateBody(gen), classes.classFor(n.Op.Schema()))
	}
	var projections []string
	for _, g := range op.GeneratorList {
		projections = append(projections, g.Expr.String())
	}
	return fmt.Sprintf("val %s = %s.map(r => %s(%s))",
		out, in, classes.classFor(n.Op.Schema()), strings.Join(projections, ", "))
}

func renderGenerateBody(gen *operator.Generate) string {
	if gen == nil {
		return "t"
	}
	var projections []string
	for _, e := range gen.Exprs {
		projections = append(projections, e.Expr.String())
	}
	return "(" + strings.Join(projections, ", ") + ")"
}
