package emit

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pigletlang/core/pkg/operator"
)

// orderHelper, topHelper, and cepHelper are emitted once per referencing
// operator, named deterministically from the operator's own out-pipe name
// rather than hoisted into a shared library: two ORDER BY clauses over
// different keys need two distinct Orderings, so hoisting would just
// reintroduce the name collision the per-operator naming avoids.

// orderHelper renders the Ordering companion ORDER BY sorts with.
func orderHelper(name, key string, asc bool) string {
	cmp := "Ordering.by[Tuple, Any](r => " + key + ")"
	if !asc {
		cmp += ".reverse"
	}
	return fmt.Sprintf("implicit val %s: Ordering[Tuple] = %s", name, cmp)
}

// topHelper renders the bounded-collection helper LIMIT compiles to.
func topHelper(name string) string {
	return fmt.Sprintf(
		"def %s[T](rdd: RDD[T], n: Long): RDD[T] = ctx.parallelize(rdd.take(n.toInt))", name)
}

// cepHelper renders a Matcher's NFA as a controller object: its states,
// transitions, and one predicate closure per named guard.
func cepHelper(name string, nfa *operator.NFA, selection operator.MatchSelection) string {
	var b strings.Builder
	fmt.Fprintf(&b, "object %s {\n", name)
	fmt.Fprintf(&b, "  val selection = %q\n", string(selection))
	fmt.Fprintf(&b, "  val states = Seq(%s)\n", renderStates(nfa))
	fmt.Fprintf(&b, "  val transitions = Seq(%s)\n", renderTransitions(nfa))
	refs := make([]string, 0, len(nfa.Predicates))
	for ref := range nfa.Predicates {
		refs = append(refs, string(ref))
	}
	sort.Strings(refs)
	for _, ref := range refs {
		pred := nfa.Predicates[operator.PredicateRef(ref)]
		fmt.Fprintf(&b, "  val predicate_%s: Tuple => Boolean = r => %s\n", ref, pred.String())
	}
	fmt.Fprintf(&b, "  def evaluate(r: Tuple): Iterable[Tuple] = NFAEngine.run(states, transitions, r)\n")
	b.WriteString("}")
	return b.String()
}

func renderStates(nfa *operator.NFA) string {
	var parts []string
	for _, s := range nfa.States {
		parts = append(parts, fmt.Sprintf("State(%q, %v)", s.ID, s.Accepting))
	}
	return strings.Join(parts, ", ")
}

func renderTransitions(nfa *operator.NFA) string {
	var parts []string
	for _, t := range nfa.Transitions {
		parts = append(parts, fmt.Sprintf("Transition(%q, %q, predicate_%s)", t.From, t.To, t.On))
	}
	return strings.Join(parts, ", ")
}
