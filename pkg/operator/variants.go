package operator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pigletlang/core/pkg/schema"
)

// NestedPlan is the minimal surface a Foreach sub-plan must expose,
// declared here so that pkg/plan can implement it on *plan.Plan without
// operator importing plan.
type NestedPlan interface {
	// FinalOperator is the sub-plan's terminal operator; the nested-foreach
	// contract requires this to be a Generate operator.
	FinalOperator() (Operator, bool)
}

// ---- Load ----

type Load struct {
	Base
	File         string
	Loader       string
	LastModified int64 // -1 when profiling is off, per the lineage-stability rule
}

func NewLoad(alias, file, loader string, lastModified int64, sch *schema.BagType) *Load {
	l := &Load{File: file, Loader: loader, LastModified: lastModified}
	l.Base = NewBase(alias)
	l.SetSchema(sch)
	return l
}

func (l *Load) Tag() Tag { return TagLoad }

func (l *Load) ConstructSchema([]*schema.BagType) (*schema.BagType, error) {
	if l.Schema() != nil {
		return l.Schema(), nil // schema is authoritative if provided
	}
	return schema.NewBag(schema.NewTuple()), nil
}

func (l *Load) CheckConformance([]*schema.BagType) error { return nil }

func (l *Load) LineageParams() string {
	return fmt.Sprintf("file=%s;loader=%s;lastModified=%d", l.File, l.Loader, l.LastModified)
}

// ---- Filter ----

type Filter struct {
	Base
	Predicate Expr
}

func NewFilter(alias, in string, pred Expr) *Filter {
	f := &Filter{Predicate: pred}
	f.Base = NewBase(alias, in)
	return f
}

func (f *Filter) Tag() Tag { return TagFilter }

func (f *Filter) ConstructSchema(inputs []*schema.BagType) (*schema.BagType, error) {
	if len(inputs) != 1 || inputs[0] == nil {
		return nil, nil // pass-through; unknown until input resolves
	}
	return inputs[0], nil // schema pass-through
}

func (f *Filter) CheckConformance(inputs []*schema.BagType) error {
	var tup *schema.TupleType
	if len(inputs) == 1 && inputs[0] != nil {
		tup = inputs[0].Inner
	}
	return f.Predicate.CheckFields(tup)
}

func (f *Filter) LineageParams() string {
	return "pred=" + f.Predicate.String()
}

// ---- GeneratorExpr / Generator (Foreach internals) ----

// GeneratorExpr is one projected column of a FOREACH ... GENERATE.
type GeneratorExpr struct {
	Alias string // "" means synthesize a name from the expression
	Expr  Expr
	// DeclaredType is the alias's declared type, if any; honored when it is
	// stronger than bytearray, otherwise refined from Expr's inferred type.
	DeclaredType schema.Type
}

type Foreach struct {
	Base
	// Exactly one of GeneratorList or nested is populated.
	GeneratorList []GeneratorExpr
	subPlan       NestedPlan
	rawNestedOps  []Operator // ops to build the nested plan from, cleared by SetSubPlan
}

func NewForeachList(alias, in string, gens []GeneratorExpr) *Foreach {
	f := &Foreach{GeneratorList: gens}
	f.Base = NewBase(alias, in)
	return f
}

// NewForeachNested builds a Foreach whose body is itself a small dataflow
// plan (a nested Foreach). ops is the sub-plan's raw operator list, passed
// through to plan construction by pkg/plan during assembly.
func NewForeachNested(alias, in string, ops []Operator) *Foreach {
	f := &Foreach{rawNestedOps: ops}
	f.Base = NewBase(alias, in)
	return f
}

func (f *Foreach) Tag() Tag { return TagForeach }

// RawNestedOps returns the unconstructed operator list for a nested
// Foreach, consumed once by plan assembly.
func (f *Foreach) RawNestedOps() ([]Operator, bool) {
	return f.rawNestedOps, f.rawNestedOps != nil
}

// SetSubPlan installs the constructed nested plan (called by pkg/plan after
// recursively constructing it) and clears the raw operator list.
func (f *Foreach) SetSubPlan(p NestedPlan) {
	f.subPlan = p
	f.rawNestedOps = nil
}

func (f *Foreach) SubPlan() (NestedPlan, bool) { return f.subPlan, f.subPlan != nil }

func (f *Foreach) ConstructSchema(inputs []*schema.BagType) (*schema.BagType, error) {
	var inTup *schema.TupleType
	if len(inputs) == 1 && inputs[0] != nil {
		inTup = inputs[0].Inner
	}

	if f.subPlan != nil {
		final, ok := f.subPlan.FinalOperator()
		if !ok {
			return nil, fmt.Errorf("foreach %q: nested plan has no final operator", f.Alias())
		}
		if final.Tag() != TagGenerate {
			return nil, fmt.Errorf("foreach %q: nested plan must end in GENERATE, got %s", f.Alias(), final.Tag())
		}
		return final.Schema(), nil
	}

	if len(f.GeneratorList) == 0 {
		return nil, fmt.Errorf("foreach %q: empty generator list", f.Alias())
	}

	fields := make([]schema.Field, len(f.GeneratorList))
	for i, g := range f.GeneratorList {
		t := g.Expr.ResultType(inTup)
		if g.DeclaredType != nil && g.DeclaredType != schema.ByteArray {
			t = g.DeclaredType // stronger than bytearray: honored as-is
		}
		name := g.Alias
		if name == "" {
			name = fmt.Sprintf("col_%d", i) // synthesized from position
		}
		fields[i] = schema.Field{Name: name, Type: t}
	}
	return schema.NewBag(schema.NewTuple(fields...)), nil
}

func (f *Foreach) CheckConformance(inputs []*schema.BagType) error {
	var inTup *schema.TupleType
	if len(inputs) == 1 && inputs[0] != nil {
		inTup = inputs[0].Inner
	}
	for _, g := range f.GeneratorList {
		if err := g.Expr.CheckFields(inTup); err != nil {
			return err
		}
	}
	return nil
}

func (f *Foreach) LineageParams() string {
	if f.subPlan != nil {
		return "nested"
	}
	exprs := make([]Expr, len(f.GeneratorList))
	for i, g := range f.GeneratorList {
		exprs[i] = g.Expr
	}
	return "generate=" + RenderParams(exprs...)
}

// ---- Generate / ConstructBag (nested-foreach internals) ----

// Generate is the trailing statement of a nested Foreach's sub-plan: it
// projects the current tuple (possibly built via ConstructBag) into the
// sub-plan's output schema.
type Generate struct {
	Base
	Exprs []GeneratorExpr
}

func NewGenerate(in string, exprs []GeneratorExpr) *Generate {
	g := &Generate{Exprs: exprs}
	g.Base = NewBase("", in) // terminal; produces no named pipe of its own
	return g
}

func (g *Generate) Tag() Tag { return TagGenerate }

func (g *Generate) ConstructSchema(inputs []*schema.BagType) (*schema.BagType, error) {
	var inTup *schema.TupleType
	if len(inputs) == 1 && inputs[0] != nil {
		inTup = inputs[0].Inner
	}
	fields := make([]schema.Field, len(g.Exprs))
	for i, e := range g.Exprs {
		name := e.Alias
		if name == "" {
			name = fmt.Sprintf("col_%d", i)
		}
		t := e.Expr.ResultType(inTup)
		if e.DeclaredType != nil && e.DeclaredType != schema.ByteArray {
			t = e.DeclaredType
		}
		fields[i] = schema.Field{Name: name, Type: t}
	}
	return schema.NewBag(schema.NewTuple(fields...)), nil
}

func (g *Generate) CheckConformance(inputs []*schema.BagType) error {
	var inTup *schema.TupleType
	if len(inputs) == 1 && inputs[0] != nil {
		inTup = inputs[0].Inner
	}
	for _, e := range g.Exprs {
		if err := e.Expr.CheckFields(inTup); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generate) LineageParams() string {
	exprs := make([]Expr, len(g.Exprs))
	for i, e := range g.Exprs {
		exprs[i] = e.Expr
	}
	return "generate=" + RenderParams(exprs...)
}

// ConstructBag builds a bag literal inline within a nested Foreach's
// sub-plan, from expressions that may DerefTuple back into the parent
// (outer) tuple. ParentSchema is set by pkg/plan once the enclosing
// Foreach's input schema is known.
type ConstructBag struct {
	Base
	Exprs        []Expr
	ParentSchema *schema.TupleType
}

func NewConstructBag(alias string, exprs []Expr) *ConstructBag {
	c := &ConstructBag{Exprs: exprs}
	c.Base = NewBase(alias)
	return c
}

func (c *ConstructBag) Tag() Tag { return TagConstructBag }

func (c *ConstructBag) ConstructSchema([]*schema.BagType) (*schema.BagType, error) {
	fields := make([]schema.Field, len(c.Exprs))
	for i, e := range c.Exprs {
		fields[i] = schema.Field{Name: fmt.Sprintf("col_%d", i), Type: e.ResultType(c.ParentSchema)}
	}
	return schema.NewBag(schema.NewTuple(fields...)), nil
}

func (c *ConstructBag) CheckConformance([]*schema.BagType) error {
	for _, e := range c.Exprs {
		if err := e.CheckFields(c.ParentSchema); err != nil {
			return err
		}
	}
	return nil
}

func (c *ConstructBag) LineageParams() string {
	return "construct=" + RenderParams(c.Exprs...)
}

// ---- Grouping ----

type Grouping struct {
	Base
	Keys      []Expr   // empty means GROUP ALL
	InputName string   // the single input pipe's name, reused as the bag field name
}

func NewGrouping(alias, in string, keys []Expr) *Grouping {
	g := &Grouping{Keys: keys, InputName: in}
	g.Base = NewBase(alias, in)
	return g
}

func (g *Grouping) Tag() Tag { return TagGrouping }

func (g *Grouping) ConstructSchema(inputs []*schema.BagType) (*schema.BagType, error) {
	var inTup *schema.TupleType
	if len(inputs) == 1 && inputs[0] != nil {
		inTup = inputs[0].Inner
	}
	var keyType schema.Type = schema.CharArray // synthetic "all" key is a chararray
	if len(g.Keys) == 1 {
		keyType = g.Keys[0].ResultType(inTup)
	} else if len(g.Keys) > 1 {
		keyFields := make([]schema.Field, len(g.Keys))
		for i, k := range g.Keys {
			keyFields[i] = schema.Field{Name: fmt.Sprintf("key_%d", i), Type: k.ResultType(inTup)}
		}
		keyType = schema.NewTuple(keyFields...)
	}
	bagField := schema.Field{Name: g.InputName, Type: schema.NewBag(inTup)}
	return schema.NewBag(schema.NewTuple(schema.Field{Name: "group", Type: keyType}, bagField)), nil
}

func (g *Grouping) CheckConformance(inputs []*schema.BagType) error {
	var inTup *schema.TupleType
	if len(inputs) == 1 && inputs[0] != nil {
		inTup = inputs[0].Inner
	}
	for _, k := range g.Keys {
		if err := k.CheckFields(inTup); err != nil {
			return err
		}
	}
	return nil
}

func (g *Grouping) LineageParams() string {
	if len(g.Keys) == 0 {
		return "keys=all"
	}
	return "keys=" + RenderParams(g.Keys...)
}

// ---- Join ----

type Join struct {
	Base
	Relations []string // input pipe names, one per relation
	Keys      []Expr   // one key expression per relation, matched by position
}

func NewJoin(alias string, relations []string, keys []Expr) *Join {
	j := &Join{Relations: relations, Keys: keys}
	j.Base = NewBase(alias, relations...)
	return j
}

func (j *Join) Tag() Tag { return TagJoin }

func (j *Join) ConstructSchema(inputs []*schema.BagType) (*schema.BagType, error) {
	if len(inputs) != len(j.Keys) {
		return nil, fmt.Errorf("join %q: arity mismatch, %d relations but %d key expressions", j.Alias(), len(inputs), len(j.Keys))
	}
	var fields []schema.Field
	for _, in := range inputs {
		if in == nil || in.Inner == nil {
			continue
		}
		fields = append(fields, in.Inner.Fields...)
	}
	return schema.NewBag(schema.NewTuple(fields...)), nil
}

func (j *Join) CheckConformance(inputs []*schema.BagType) error {
	if len(inputs) != len(j.Keys) {
		return fmt.Errorf("join %q: arity mismatch", j.Alias())
	}
	for i, k := range j.Keys {
		var tup *schema.TupleType
		if inputs[i] != nil {
			tup = inputs[i].Inner
		}
		if err := k.CheckFields(tup); err != nil {
			return err
		}
	}
	return nil
}

func (j *Join) LineageParams() string {
	return "keys=" + RenderParams(j.Keys...)
}

// ---- Distinct / Limit / Union (schema pass-through) ----

type passthrough struct {
	Base
}

func (p *passthrough) ConstructSchema(inputs []*schema.BagType) (*schema.BagType, error) {
	if len(inputs) == 0 || inputs[0] == nil {
		return nil, nil
	}
	return inputs[0], nil
}

func (p *passthrough) CheckConformance([]*schema.BagType) error { return nil }

type Distinct struct{ passthrough }

func NewDistinct(alias, in string) *Distinct {
	d := &Distinct{}
	d.Base = NewBase(alias, in)
	return d
}
func (d *Distinct) Tag() Tag             { return TagDistinct }
func (d *Distinct) LineageParams() string { return "" }

type Limit struct {
	passthrough
	Count int64
}

func NewLimit(alias, in string, count int64) *Limit {
	l := &Limit{Count: count}
	l.Base = NewBase(alias, in)
	return l
}
func (l *Limit) Tag() Tag              { return TagLimit }
func (l *Limit) LineageParams() string { return "count=" + strconv.FormatInt(l.Count, 10) }

type Union struct {
	passthrough
	Relations []string
}

func NewUnion(alias string, relations []string) *Union {
	u := &Union{Relations: relations}
	u.Base = NewBase(alias, relations...)
	return u
}
func (u *Union) Tag() Tag { return TagUnion }

func (u *Union) ConstructSchema(inputs []*schema.BagType) (*schema.BagType, error) {
	var first *schema.BagType
	for _, in := range inputs {
		if in == nil {
			continue
		}
		if first == nil {
			first = in
			continue
		}
		if !schema.Compatible(first, in) && !schema.Compatible(in, first) {
			return nil, &IncompatibleSchemasError{Alias: u.Alias()}
		}
	}
	return first, nil
}

// IncompatibleSchemasError marks a type-level rejection (as opposed to a
// structural plan defect), so plan assembly can surface it as a schema
// error rather than an invalid plan.
type IncompatibleSchemasError struct {
	Alias string
}

func (e *IncompatibleSchemasError) Error() string {
	return fmt.Sprintf("union %q: incompatible input schemas", e.Alias)
}
func (u *Union) LineageParams() string { return "" }

// ---- OrderBy ----

type OrderBy struct {
	passthrough
	Key Expr
	Asc bool
}

func NewOrderBy(alias, in string, key Expr, asc bool) *OrderBy {
	o := &OrderBy{Key: key, Asc: asc}
	o.Base = NewBase(alias, in)
	return o
}
func (o *OrderBy) Tag() Tag { return TagOrderBy }
func (o *OrderBy) LineageParams() string {
	dir := "asc"
	if !o.Asc {
		dir = "desc"
	}
	return fmt.Sprintf("key=%s;dir=%s", o.Key.String(), dir)
}
func (o *OrderBy) CheckConformance(inputs []*schema.BagType) error {
	var tup *schema.TupleType
	if len(inputs) == 1 && inputs[0] != nil {
		tup = inputs[0].Inner
	}
	return o.Key.CheckFields(tup)
}

// ---- Split ----

// Split is the one variant that produces many output pipes.
type Split struct {
	Base
	OutNames []string
	Filters  []Expr // one predicate per output, same order as OutNames
}

func NewSplit(in string, outNames []string, filters []Expr) *Split {
	s := &Split{OutNames: outNames, Filters: filters}
	s.Base = NewBase("", in)
	return s
}
func (s *Split) Tag() Tag          { return TagSplit }
func (s *Split) Outputs() []string { return s.OutNames }
func (s *Split) ConstructSchema(inputs []*schema.BagType) (*schema.BagType, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	return inputs[0], nil
}
func (s *Split) CheckConformance(inputs []*schema.BagType) error {
	var tup *schema.TupleType
	if len(inputs) == 1 && inputs[0] != nil {
		tup = inputs[0].Inner
	}
	for _, f := range s.Filters {
		if err := f.CheckFields(tup); err != nil {
			return err
		}
	}
	return nil
}
func (s *Split) LineageParams() string {
	return "outputs=" + strings.Join(s.OutNames, ",") + ";filters=" + RenderParams(s.Filters...)
}

// ---- Store / Dump (sinks) ----

type Store struct {
	passthrough
	Path   string
	Storer string
}

func NewStore(in, path, storer string) *Store {
	s := &Store{Path: path, Storer: storer}
	s.Base = NewBase("", in)
	return s
}
func (s *Store) Tag() Tag              { return TagStore }
func (s *Store) LineageParams() string { return fmt.Sprintf("path=%s;storer=%s", s.Path, s.Storer) }

type Dump struct {
	passthrough
}

func NewDump(in string) *Dump {
	d := &Dump{}
	d.Base = NewBase("", in)
	return d
}
func (d *Dump) Tag() Tag              { return TagDump }
func (d *Dump) LineageParams() string { return "" }

// ---- Materialize (user hint, rewritten away) ----

type Materialize struct {
	passthrough
}

func NewMaterialize(alias, in string) *Materialize {
	m := &Materialize{}
	m.Base = NewBase(alias, in)
	return m
}
func (m *Materialize) Tag() Tag              { return TagMaterialize }
func (m *Materialize) LineageParams() string { return "" }

// ---- Cache (insertion-time pass-through) ----

type CacheMode string

const (
	CacheModeMemory CacheMode = "MEMORY"
	CacheModeDisk   CacheMode = "DISK"
)

type Cache struct {
	passthrough
	Mode CacheMode
}

func NewCache(alias, in string, mode CacheMode) *Cache {
	c := &Cache{Mode: mode}
	c.Base = NewBase(alias, in)
	return c
}
func (c *Cache) Tag() Tag              { return TagCache }
func (c *Cache) LineageParams() string { return "mode=" + string(c.Mode) }

// ---- TimingOp (profiling shim) ----

type TimingOp struct {
	passthrough
	TargetLineage string // the lineage signature being tagged
}

func NewTimingOp(alias, in, targetLineage string) *TimingOp {
	t := &TimingOp{TargetLineage: targetLineage}
	t.Base = NewBase(alias, in)
	return t
}
func (t *TimingOp) Tag() Tag              { return TagTimingOp }
func (t *TimingOp) LineageParams() string { return "target=" + t.TargetLineage }

// ---- Register (pre-rewrite auxiliary, dropped during plan assembly) ----

type Register struct {
	Base
	Args []string
}

func NewRegister(args ...string) *Register {
	r := &Register{Args: args}
	r.Base = NewBase("")
	return r
}
func (r *Register) Tag() Tag                                            { return TagRegister }
func (r *Register) ConstructSchema([]*schema.BagType) (*schema.BagType, error) { return nil, nil }
func (r *Register) CheckConformance([]*schema.BagType) error            { return nil }
func (r *Register) LineageParams() string                               { return strings.Join(r.Args, ",") }

// ---- Window (opt-in rewrite target for the flinks backend) ----

type Window struct {
	passthrough
	Range string
	Slide string
}

func NewWindow(alias, in, rng, slide string) *Window {
	w := &Window{Range: rng, Slide: slide}
	w.Base = NewBase(alias, in)
	return w
}
func (w *Window) Tag() Tag { return TagWindow }
func (w *Window) LineageParams() string {
	return fmt.Sprintf("range=%s;slide=%s", w.Range, w.Slide)
}
