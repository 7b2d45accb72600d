package operator

import "github.com/pigletlang/core/pkg/schema"

// Tag identifies an operator variant for dispatch in schema propagation,
// rewriting, and code emission (a tagged sum type, dispatched through
// exhaustive switches rather than subclassing).
type Tag string

const (
	TagLoad         Tag = "LOAD"
	TagFilter       Tag = "FILTER"
	TagForeach      Tag = "FOREACH"
	TagGrouping     Tag = "GROUP"
	TagJoin         Tag = "JOIN"
	TagDistinct     Tag = "DISTINCT"
	TagLimit        Tag = "LIMIT"
	TagUnion        Tag = "UNION"
	TagOrderBy      Tag = "ORDER"
	TagSplit        Tag = "SPLIT"
	TagStore        Tag = "STORE"
	TagDump         Tag = "DUMP"
	TagMaterialize  Tag = "MATERIALIZE"
	TagCache        Tag = "CACHE"
	TagGenerate     Tag = "GENERATE"
	TagConstructBag Tag = "CONSTRUCT_BAG"
	TagTimingOp     Tag = "TIMING"
	TagRegister     Tag = "REGISTER"
	TagMatcher      Tag = "MATCHER"
	TagWindow       Tag = "WINDOW"
)

// Operator is the common interface every variant satisfies. Schema
// propagation and lineage are driven entirely through this interface, never
// through type assertions on concrete structs (except where a rewrite rule
// needs variant-specific fields, in which case it type-switches on Tag()).
type Operator interface {
	Tag() Tag

	// Alias is this operator's output pipe name ("" for a sink operator,
	// i.e. initialOutPipeName == "" in the parser contract).
	Alias() string

	// InputNames are the pipe names this operator reads from, as produced
	// by the parser, before the plan resolves them to NodeIDs.
	InputNames() []string

	// Inputs are the resolved producer NodeIDs, set once during plan
	// assembly (or updated in place by structural edits).
	Inputs() []NodeID
	SetInputs([]NodeID)

	// Outputs lists the pipe names this operator produces. Every variant
	// but Split produces at most one.
	Outputs() []string

	Schema() *schema.BagType
	SetSchema(*schema.BagType)

	// ConstructSchema computes this operator's output schema given its
	// resolved input schemas (nil entries mean "schema unknown").
	ConstructSchema(inputs []*schema.BagType) (*schema.BagType, error)

	// CheckConformance validates expression/field references against the
	// (possibly unknown) input schemas: named references require a known
	// schema, positional references are always legal.
	CheckConformance(inputs []*schema.BagType) error

	// LineageParams is the literal-parameter portion of the canonical
	// lineage string (before input lineages are appended).
	LineageParams() string
}

// Preparer is an optional pre-schema preparation hook. No variant in this
// package implements it and pkg/plan does not call it; Foreach's nested
// sub-plan is built by pkg/plan from RawNestedOps.
type Preparer interface {
	Prepare(depth int) error
}

// Base is embedded by every variant and implements the plumbing shared by
// all of them (alias, resolved inputs, schema storage), leaving each
// variant to implement only Tag/ConstructSchema/CheckConformance/
// LineageParams.
type Base struct {
	alias       string
	inputNames  []string
	inputs      []NodeID
	outSchema   *schema.BagType
	windowRng   string
	windowSlide string
	windowed    bool
}

func NewBase(alias string, inputNames ...string) Base {
	return Base{alias: alias, inputNames: append([]string(nil), inputNames...)}
}

func (b *Base) Alias() string          { return b.alias }
func (b *Base) InputNames() []string   { return b.inputNames }
func (b *Base) Inputs() []NodeID       { return b.inputs }
func (b *Base) SetInputs(ids []NodeID) { b.inputs = append([]NodeID(nil), ids...) }

func (b *Base) Outputs() []string {
	if b.alias == "" {
		return nil
	}
	return []string{b.alias}
}

func (b *Base) Schema() *schema.BagType     { return b.outSchema }
func (b *Base) SetSchema(s *schema.BagType) { b.outSchema = s }

// SetAlias allows structural edits (insertAfter etc.) to rename the
// synthetic pipe an inserted operator produces.
func (b *Base) SetAlias(alias string) { b.alias = alias }

// SetInputNames allows structural edits to rewire which pipe names an
// operator reads before the next resolution pass.
func (b *Base) SetInputNames(names []string) { b.inputNames = append([]string(nil), names...) }

// Renamable is satisfied by every operator (through the embedded Base) and
// is the seam structural plan edits use to rewire pipe names and aliases
// without knowing the operator's concrete variant type.
type Renamable interface {
	SetAlias(string)
	SetInputNames([]string)
}

var _ Renamable = (*Base)(nil)

// Windowed is the seam the flinks-only window rewrite uses to record that an
// operator consumes a windowed stream, after folding the preceding Window
// operator away. Every variant satisfies it through the embedded Base.
type Windowed interface {
	SetWindowHint(rng, slide string)
	WindowHint() (rng, slide string, ok bool)
}

func (b *Base) SetWindowHint(rng, slide string) {
	b.windowRng, b.windowSlide, b.windowed = rng, slide, true
}

func (b *Base) WindowHint() (string, string, bool) { return b.windowRng, b.windowSlide, b.windowed }

var _ Windowed = (*Base)(nil)
