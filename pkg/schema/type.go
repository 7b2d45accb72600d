// Package schema implements the nominal type lattice and the tuple/bag/map
// composite types that every operator's schema propagation is built on.
package schema

import "fmt"

// Kind distinguishes the primitive and composite members of the lattice.
type Kind int

const (
	KindByteArray Kind = iota
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindCharArray
	KindTuple
	KindBag
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindByteArray:
		return "bytearray"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindCharArray:
		return "chararray"
	case KindTuple:
		return "tuple"
	case KindBag:
		return "bag"
	case KindMap:
		return "map"
	}
	return "unknown"
}

// Type is implemented by both primitives and composites.
type Type interface {
	Kind() Kind
	String() string
}

// Primitive is every scalar member of the lattice.
type Primitive struct {
	kind Kind
}

func (p Primitive) Kind() Kind     { return p.kind }
func (p Primitive) String() string { return p.kind.String() }

var (
	ByteArray = Primitive{KindByteArray}
	Int       = Primitive{KindInt}
	Long      = Primitive{KindLong}
	Float     = Primitive{KindFloat}
	Double    = Primitive{KindDouble}
	CharArray = Primitive{KindCharArray}
)

// numericRank orders the numeric widening chain:
// ByteArray < Int < Long < Float < Double.
var numericRank = map[Kind]int{
	KindByteArray: 0,
	KindInt:       1,
	KindLong:      2,
	KindFloat:     3,
	KindDouble:    4,
}

// IsNumeric reports whether k participates in the Int/Long/Float/Double
// widening chain (ByteArray is the shared bottom of both chains).
func IsNumeric(k Kind) bool {
	_, ok := numericRank[k]
	return ok
}

// Widen reports whether b can be reached from a by widening, per the
// lattice rules in the data model: Int < Long < Float < Double, with
// ByteArray as the under-typed bottom shared by the numeric chain and the
// separate CharArray chain, promoted on first observation.
func Widen(a, b Type) bool {
	if a == nil || b == nil {
		return false
	}
	ak, bk := a.Kind(), b.Kind()
	if ak == bk {
		if isComposite(ak) {
			return widenComposite(a, b)
		}
		return true
	}
	if ak == KindByteArray {
		// The under-typed bottom promotes into either chain.
		return bk == KindCharArray || IsNumeric(bk)
	}
	if IsNumeric(ak) && IsNumeric(bk) {
		return numericRank[bk] >= numericRank[ak]
	}
	return false
}

func isComposite(k Kind) bool {
	return k == KindTuple || k == KindBag || k == KindMap
}

func widenComposite(a, b Type) bool {
	switch at := a.(type) {
	case *TupleType:
		bt, ok := b.(*TupleType)
		if !ok || len(at.Fields) != len(bt.Fields) {
			return false
		}
		for i := range at.Fields {
			if !Widen(at.Fields[i].Type, bt.Fields[i].Type) {
				return false
			}
		}
		return true
	case *BagType:
		bt, ok := b.(*BagType)
		if !ok {
			return false
		}
		return Widen(at.Inner, bt.Inner)
	case *MapType:
		bt, ok := b.(*MapType)
		if !ok {
			return false
		}
		return Widen(at.Value, bt.Value)
	}
	return false
}

// Compatible is typeCompatibility(a, b): b is reachable from a by widening.
// It is structural on composites (field order matters, names don't).
func Compatible(a, b Type) bool {
	return Widen(a, b)
}

// Promote returns the narrowest type that both a and b widen into, used
// when a field's declared type (often ByteArray, under-typed) is refined by
// a newly observed value's type.
func Promote(a, b Type) (Type, bool) {
	if a == nil {
		return b, b != nil
	}
	if b == nil {
		return a, true
	}
	if Widen(a, b) {
		return b, true
	}
	if Widen(b, a) {
		return a, true
	}
	return nil, false
}

// Field is a named, typed member of a TupleType.
type Field struct {
	Name string
	Type Type
}

func (f Field) String() string {
	if f.Name == "" {
		return f.Type.String()
	}
	return fmt.Sprintf("%s:%s", f.Name, f.Type)
}
