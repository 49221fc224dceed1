package key

import (
	"github.com/peak/ksort/internal/reader"
)

// Extractor implements C1 (§4.1): given an ordered list of key-column
// indices and a field separator, it extracts the composite key from one
// record.
type Extractor struct {
	KeyCols []int
	Sep     byte
}

// NewExtractor validates and returns an Extractor.
func NewExtractor(keyCols []int, sep byte) Extractor {
	cp := make([]int, len(keyCols))
	copy(cp, keyCols)
	return Extractor{KeyCols: cp, Sep: sep}
}

// ParseNext scans the record starting at offset start in buf and returns
// its composite key (components ordered as KeyCols, not file order), the
// record's [lineStart,lineEnd) byte range, and a status.
func (e Extractor) ParseNext(buf []byte, start int) (k Key, lineStart, lineEnd int, status reader.Status) {
	fields, end, st := reader.ScanLine(buf, start, e.Sep)
	if st == reader.LineTooLong {
		return Key{}, start, end, st
	}
	parts, fieldStatus := reader.ParseKeyFields(buf, fields, e.KeyCols)
	if fieldStatus == reader.FieldCountShort {
		st = reader.FieldCountShort
	}
	return New(parts...), start, end, st
}

// MaxKeyColumn returns the highest column index this extractor needs,
// i.e. max(key_cols)+1 is the minimum field count a non-short line needs.
func (e Extractor) MaxKeyColumn() int {
	max := -1
	for _, c := range e.KeyCols {
		if c > max {
			max = c
		}
	}
	return max
}
