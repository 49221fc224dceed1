// Package key implements the composite Key data model (§3) and the key
// extractor (C1, §4.1): given an ordered list of key-column indices and a
// field separator, pull the composite key out of one delimited record.
package key

import (
	"bytes"
	"fmt"

	"github.com/iancoleman/strcase"
)

// Key is an ordered sequence of byte-string components, one per key
// column, compared lexicographically component-by-component: the first
// non-equal component decides; an equal prefix with fewer components
// compares less; two zero-component keys compare equal.
type Key struct {
	parts [][]byte
}

// New builds a Key from already-extracted components. The caller's slices
// are not copied; use Clone if the caller intends to reuse the backing
// buffer.
func New(parts ...[]byte) Key {
	return Key{parts: parts}
}

// Empty reports whether the key has no components (the single-table,
// no-key case of §4.10).
func (k Key) Empty() bool { return len(k.parts) == 0 }

// Len returns the number of components.
func (k Key) Len() int { return len(k.parts) }

// Part returns the i-th component.
func (k Key) Part(i int) []byte { return k.parts[i] }

// ByteSize returns sizeof(Key) + sum(|component_i|), the per-record memory
// accounting unit used by C3 and C8's overhead() estimate.
func (k Key) ByteSize() int64 {
	const keyHeaderBytes = 24 // slice header + small fixed overhead, mirrors the source's sizeof(Key)
	n := int64(keyHeaderBytes)
	for _, p := range k.parts {
		n += int64(len(p))
	}
	return n
}

// Clone returns a deep copy, safe to retain after the source buffer is
// reused or freed. Ownership crossing a component boundary is a move by
// default (§9 "Ownership of key arrays"); Clone is used at the specific
// call sites that need their own copy (e.g. a sampler appending into its
// own accumulating slice while the reader's buffer keeps moving).
func (k Key) Clone() Key {
	parts := make([][]byte, len(k.parts))
	for i, p := range k.parts {
		cp := make([]byte, len(p))
		copy(cp, p)
		parts[i] = cp
	}
	return Key{parts: parts}
}

// Compare returns -1, 0, or 1 as k is less than, equal to, or greater than
// other, per the §3 lexicographic rule.
func (k Key) Compare(other Key) int {
	n := len(k.parts)
	if len(other.parts) < n {
		n = len(other.parts)
	}
	for i := 0; i < n; i++ {
		if c := bytes.Compare(k.parts[i], other.parts[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(k.parts) < len(other.parts):
		return -1
	case len(k.parts) > len(other.parts):
		return 1
	default:
		return 0
	}
}

// Less reports whether k sorts strictly before other.
func (k Key) Less(other Key) bool { return k.Compare(other) < 0 }

// Equal reports whether k and other compare equal.
func (k Key) Equal(other Key) bool { return k.Compare(other) == 0 }

// Project returns a new Key holding only the first width components,
// truncating or (if width exceeds Len) padding with empty components. This
// is how a secondary table's wider key is compared against a root table's
// narrower key sample (§4.10 "projected to the root's key width").
func (k Key) Project(width int) Key {
	parts := make([][]byte, width)
	for i := 0; i < width; i++ {
		if i < len(k.parts) {
			parts[i] = k.parts[i]
		} else {
			parts[i] = []byte{}
		}
	}
	return Key{parts: parts}
}

// String renders the key using the given field separator, for diagnostics
// only — never used as a sort or comparison key.
func (k Key) String(sep byte) string {
	var buf bytes.Buffer
	for i, p := range k.parts {
		if i > 0 {
			buf.WriteByte(sep)
		}
		buf.Write(p)
	}
	return buf.String()
}

// BuildDistinctObjectLabels renders a slice of keys into user-facing
// diagnostic labels ("the label for object #3 ('k00042') ...") for warning
// and error messages; it has no bearing on sort semantics. Field names are
// rendered in the "friendly" case strcase produces (e.g. CustomerID ->
// "Customer ID") since these strings only ever reach a human.
func BuildDistinctObjectLabels(fieldNames []string, keys []Key, sep byte) []string {
	labels := make([]string, len(keys))
	for i, k := range keys {
		var parts []string
		for j := 0; j < k.Len(); j++ {
			name := fmt.Sprintf("field%d", j)
			if j < len(fieldNames) {
				name = strcase.ToDelimited(fieldNames[j], ' ')
			}
			parts = append(parts, fmt.Sprintf("%s=%q", name, string(k.Part(j))))
		}
		labels[i] = fmt.Sprintf("record %d (%s)", i+1, joinComma(parts))
	}
	return labels
}

func joinComma(parts []string) string {
	var buf bytes.Buffer
	for i, p := range parts {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(p)
	}
	return buf.String()
}
