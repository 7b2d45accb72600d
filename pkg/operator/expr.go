package operator

import (
	"fmt"
	"strings"

	"github.com/pigletlang/core/pkg/schema"
)

// Expr is the predicate/projection expression tree shared by Filter
// predicates and Foreach's GeneratorExpr. It is intentionally small: the
// host-language evaluator that actually runs these expressions at runtime
// is an external collaborator; the compiler only needs to render
// expressions into lineage parameters, check field references, and infer
// result types.
type Expr interface {
	fmt.Stringer

	// CheckFields validates named field references against schema. When
	// schema is nil (unknown), only positional references are legal.
	CheckFields(schema *schema.TupleType) error

	// ResultType infers this expression's result type against schema
	// (nil if the schema, and therefore the type, cannot be determined).
	ResultType(schema *schema.TupleType) schema.Type
}

// FieldRef references a tuple field either positionally or by name.
// Positional references are always legal; named references require a
// known schema to resolve.
type FieldRef struct {
	Name     string // "" for purely positional references
	Position int    // -1 when only Name is given
}

func (f FieldRef) String() string {
	if f.Name != "" {
		return f.Name
	}
	return fmt.Sprintf("$%d", f.Position)
}

func (f FieldRef) CheckFields(s *schema.TupleType) error {
	if f.Name == "" {
		return nil // purely positional, always legal
	}
	if s == nil {
		return fmt.Errorf("named field reference %q requires a known schema", f.Name)
	}
	if _, _, ok := s.FieldByName(f.Name); !ok {
		return fmt.Errorf("unresolved named field %q", f.Name)
	}
	return nil
}

func (f FieldRef) ResultType(s *schema.TupleType) schema.Type {
	if s == nil {
		return schema.ByteArray
	}
	if f.Name != "" {
		if fld, _, ok := s.FieldByName(f.Name); ok {
			return fld.Type
		}
		return schema.ByteArray
	}
	if fld, ok := s.Field(f.Position); ok {
		return fld.Type
	}
	return schema.ByteArray
}

// Literal is a constant value in an expression tree.
type Literal struct {
	Value interface{}
	Type  schema.Type
}

func (l Literal) String() string                              { return fmt.Sprintf("%v", l.Value) }
func (l Literal) CheckFields(*schema.TupleType) error          { return nil }
func (l Literal) ResultType(*schema.TupleType) schema.Type     { return l.Type }

// BinaryExpr is a binary operator application (comparisons, boolean
// connectives, arithmetic).
type BinaryExpr struct {
	Op          string
	Left, Right Expr
}

func (b BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

func (b BinaryExpr) CheckFields(s *schema.TupleType) error {
	if err := b.Left.CheckFields(s); err != nil {
		return err
	}
	return b.Right.CheckFields(s)
}

func (b BinaryExpr) ResultType(s *schema.TupleType) schema.Type {
	switch b.Op {
	case "AND", "OR", "NOT", "<", ">", "<=", ">=", "==", "!=":
		return schema.Int // boolean-as-int, matching the bytearray/int duality of the source language
	}
	lt, rt := b.Left.ResultType(s), b.Right.ResultType(s)
	if promoted, ok := schema.Promote(lt, rt); ok {
		return promoted
	}
	return schema.ByteArray
}

// And composes two predicates conjunctively; used by the filter-merge
// rewrite rule.
func And(a, b Expr) Expr { return BinaryExpr{Op: "AND", Left: a, Right: b} }

// DerefTuple resolves a field on a tuple produced elsewhere, used inside a
// nested Foreach's ConstructBag to reach back into the parent tuple.
type DerefTuple struct {
	Of    Expr
	Field FieldRef
}

func (d DerefTuple) String() string { return fmt.Sprintf("%s.%s", d.Of, d.Field) }

func (d DerefTuple) CheckFields(s *schema.TupleType) error {
	return d.Of.CheckFields(s)
}

func (d DerefTuple) ResultType(s *schema.TupleType) schema.Type {
	return d.Field.ResultType(s)
}

// ReferencedFields collects every FieldRef in e, in evaluation order.
// Rewrite rules use it to decide whether an operator they want to commute
// past actually preserves the columns a predicate reads.
func ReferencedFields(e Expr) []FieldRef {
	switch v := e.(type) {
	case FieldRef:
		return []FieldRef{v}
	case BinaryExpr:
		return append(ReferencedFields(v.Left), ReferencedFields(v.Right)...)
	case DerefTuple:
		return append(ReferencedFields(v.Of), v.Field)
	}
	return nil
}

// RenderParams renders an expression deterministically for inclusion in a
// lineage string: distinct literal parameters must produce distinct
// signatures, so this must be a faithful, order-preserving rendering.
func RenderParams(exprs ...Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, ",")
}
