package operator

import (
	"fmt"
	"strings"

	"github.com/pigletlang/core/pkg/schema"
)

// StateID names one state in an NFA.
type StateID string

// PredicateRef names one entry in the NFA's predicate table.
type PredicateRef string

// State is one NFA state; Accepting marks a final/match state.
type State struct {
	ID        StateID
	Accepting bool
}

// Transition is one NFA edge, guarded by a named predicate.
type Transition struct {
	From, To StateID
	On       PredicateRef
}

// NFA is the CEP automaton description: states, transitions, and the named
// predicates that guard them (rendered at emission time as a controller
// object plus predicate closures).
type NFA struct {
	States      []State
	Transitions []Transition
	Predicates  map[PredicateRef]Expr
}

func (n *NFA) String() string {
	var b strings.Builder
	for _, s := range n.States {
		fmt.Fprintf(&b, "S(%s,%v)", s.ID, s.Accepting)
	}
	for _, t := range n.Transitions {
		fmt.Fprintf(&b, "T(%s->%s:%s)", t.From, t.To, t.On)
	}
	return b.String()
}

// MatchSelection picks which matches the operator emits downstream.
type MatchSelection string

const (
	SelectAll               MatchSelection = "ALL"
	SelectFirst             MatchSelection = "FIRST"
	SelectSkipTillNextMatch MatchSelection = "SKIP_TILL_NEXT_MATCH"
)

// Matcher is the CEP operator: an NFA over the input stream, a selection
// policy, and the projection applied to each accepted match.
type Matcher struct {
	Base
	Automaton *NFA
	Selection MatchSelection
	Output    []GeneratorExpr
}

func NewMatcher(alias, in string, nfa *NFA, selection MatchSelection, output []GeneratorExpr) *Matcher {
	m := &Matcher{Automaton: nfa, Selection: selection, Output: output}
	m.Base = NewBase(alias, in)
	return m
}

func (m *Matcher) Tag() Tag { return TagMatcher }

func (m *Matcher) ConstructSchema(inputs []*schema.BagType) (*schema.BagType, error) {
	var inTup *schema.TupleType
	if len(inputs) == 1 && inputs[0] != nil {
		inTup = inputs[0].Inner
	}
	fields := make([]schema.Field, len(m.Output))
	for i, o := range m.Output {
		name := o.Alias
		if name == "" {
			name = fmt.Sprintf("col_%d", i)
		}
		fields[i] = schema.Field{Name: name, Type: o.Expr.ResultType(inTup)}
	}
	return schema.NewBag(schema.NewTuple(fields...)), nil
}

func (m *Matcher) CheckConformance(inputs []*schema.BagType) error {
	var inTup *schema.TupleType
	if len(inputs) == 1 && inputs[0] != nil {
		inTup = inputs[0].Inner
	}
	for _, pred := range m.Automaton.Predicates {
		if err := pred.CheckFields(inTup); err != nil {
			return err
		}
	}
	for _, o := range m.Output {
		if err := o.Expr.CheckFields(inTup); err != nil {
			return err
		}
	}
	return nil
}

func (m *Matcher) LineageParams() string {
	return fmt.Sprintf("nfa=%s;selection=%s", m.Automaton.String(), m.Selection)
}
