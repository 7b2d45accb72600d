package emit

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/pigletlang/core/pkg/schema"
)

// schemaClassSet synthesizes a stable case-class name per distinct schema,
// so that operators sharing a schema (e.g. a Filter passing its input
// through unchanged) share one emitted class instead of each minting its
// own. The name is a pure function of the schema's own structural
// signature, not of registration order, which is what makes it stable
// across runs and across operators.
type schemaClassSet struct {
	names   map[string]string          // schema signature -> class name
	schemas map[string]*schema.BagType // schema signature -> the schema itself
	order   []string                   // signatures in first-seen order, for deterministic declaration output
}

func newSchemaClassSet() *schemaClassSet {
	return &schemaClassSet{names: make(map[string]string), schemas: make(map[string]*schema.BagType)}
}

// schemaSignature hashes a schema's canonical string form, using the same
// MD5 mechanism as operator lineage signatures (pkg/operator/lineage.go)
// so both identity concepts behave alike.
func schemaSignature(s *schema.BagType) string {
	if s == nil || s.Inner == nil {
		return "empty"
	}
	sum := md5.Sum([]byte(s.Inner.String()))
	return hex.EncodeToString(sum[:])
}

// register ensures s has a class name, returning it. Calling it twice for
// structurally identical schemas returns the same name.
func (set *schemaClassSet) register(s *schema.BagType) string {
	sig := schemaSignature(s)
	if name, ok := set.names[sig]; ok {
		return name
	}
	name := fmt.Sprintf("Schema_%s", sig[:8])
	set.names[sig] = name
	set.schemas[sig] = s
	set.order = append(set.order, sig)
	return name
}

// classFor returns the class name for a schema, registering it first if it
// has not been seen yet, for renderers that need to reference a schema
// other than their own output (e.g. Grouping's bag-of-input-tuple field).
func (set *schemaClassSet) classFor(s *schema.BagType) string {
	return set.register(s)
}

// declarations renders one `case class` per distinct schema seen so far,
// in first-registration order (deterministic, independent of map
// iteration), for the emitted file's schema-class header section.
func (set *schemaClassSet) declarations() []string {
	var out []string
	for _, sig := range set.order {
		bag := set.schemas[sig]
		if bag == nil || bag.Inner == nil {
			continue
		}
		out = append(out, renderCaseClass(set.names[sig], bag.Inner))
	}
	return out
}

func renderCaseClass(name string, tup *schema.TupleType) string {
	fields := ""
	for i, f := range tup.Fields {
		if i > 0 {
			fields += ", "
		}
		fieldName := f.Name
		if fieldName == "" {
			fieldName = fmt.Sprintf("f%d", i)
		}
		fields += fieldName + ": " + scalaType(f.Type)
	}
	return fmt.Sprintf("case class %s(%s)", name, fields)
}

// scalaType maps a schema.Type onto the Scala type the default backend's
// templates reference.
func scalaType(t schema.Type) string {
	if t == nil {
		return "Array[Byte]"
	}
	switch t.Kind() {
	case schema.KindInt:
		return "Int"
	case schema.KindLong:
		return "Long"
	case schema.KindFloat:
		return "Float"
	case schema.KindDouble:
		return "Double"
	case schema.KindCharArray:
		return "String"
	case schema.KindByteArray:
		return "Array[Byte]"
	case schema.KindBag:
		bt := t.(*schema.BagType)
		if bt.Inner == nil {
			return "Iterable[Any]"
		}
		return "Iterable[(" + tupleTypeList(bt.Inner) + ")]"
	case schema.KindTuple:
		tt := t.(*schema.TupleType)
		return "(" + tupleTypeList(tt) + ")"
	case schema.KindMap:
		mt := t.(*schema.MapType)
		return "Map[String, " + scalaType(mt.Value) + "]"
	}
	return "Any"
}

func tupleTypeList(t *schema.TupleType) string {
	out := ""
	for i, f := range t.Fields {
		if i > 0 {
			out += ", "
		}
		out += scalaType(f.Type)
	}
	return out
}
