package operator

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// LineageString renders the canonical recursive description for op:
// OP_TAG%parameters%, followed by the concatenation of the input
// producers' lineage strings, joined by "%". inputLineages must already be
// in the same order as op.Inputs().
//
// The MD5 hex digest of this string is the lineage signature (Signature
// below). The digest keys the cost model and the materialization cache on
// disk across runs, so the algorithm cannot change without invalidating
// every existing cache entry.
func LineageString(op Operator, inputLineages []string) string {
	var b strings.Builder
	b.WriteString(string(op.Tag()))
	b.WriteByte('%')
	b.WriteString(op.LineageParams())
	b.WriteByte('%')
	for i, l := range inputLineages {
		if i > 0 {
			b.WriteByte('%')
		}
		b.WriteString(l)
	}
	return b.String()
}

// Signature is the MD5 hex digest of a lineage string: the identity used by
// the Markov model and the materialization cache catalogue.
func Signature(lineage string) string {
	sum := md5.Sum([]byte(lineage))
	return hex.EncodeToString(sum[:])
}
