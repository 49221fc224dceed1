// Package testutil generates synthetic delimited-text datasets with
// configurable key cardinality and duplication, in the spirit of the
// original's KWArtificialDataset generator. It backs the property tests
// (P2/P8 reproduction) and the `ksort testdata` debug subcommand.
package testutil

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
)

// record is one generated row: its composite key values plus raw filler
// column bytes.
type record struct {
	keys   []int
	filler []string
}

// DatasetSpec configures one synthetic file.
type DatasetSpec struct {
	Lines         int
	KeyCols       int     // number of key columns
	KeyCardinality int    // number of distinct values per key column; 0 means Lines (all unique)
	FillerCols    int     // number of non-key filler columns
	FillerBytes   int     // bytes per filler column
	Sep           byte
	Header        bool
	Sorted        bool // emit lines already sorted on the composite key
	Seed          int64
}

// Generate writes spec.Lines delimited records to w, returning the number
// of bytes written. Filler columns hold raw ASCII bytes only — the
// "computing on columns" non-goal still excludes generating anything
// structured there.
func Generate(w io.Writer, spec DatasetSpec) (int64, error) {
	bw := bufio.NewWriter(w)
	rng := rand.New(rand.NewSource(spec.Seed))

	cardinality := spec.KeyCardinality
	if cardinality <= 0 {
		cardinality = spec.Lines
	}

	records := make([]record, spec.Lines)
	for i := range records {
		keys := make([]int, spec.KeyCols)
		for k := range keys {
			if spec.Sorted {
				keys[k] = (i * cardinality / maxInt(spec.Lines, 1))
			} else {
				keys[k] = rng.Intn(cardinality)
			}
		}
		filler := make([]string, spec.FillerCols)
		for f := range filler {
			filler[f] = randomBytes(rng, spec.FillerBytes)
		}
		records[i] = record{keys, filler}
	}

	if spec.Sorted {
		sortRecords(records)
	}

	var n int64
	if spec.Header {
		line := headerLine(spec)
		written, err := bw.WriteString(line)
		n += int64(written)
		if err != nil {
			return n, err
		}
	}

	sep := spec.Sep
	if sep == 0 {
		sep = ';'
	}
	for _, r := range records {
		var line []byte
		for _, kv := range r.keys {
			line = appendField(line, sep, fmt.Sprintf("k%08d", kv))
		}
		for _, f := range r.filler {
			line = appendField(line, sep, f)
		}
		line = append(line, '\n')
		written, err := bw.Write(line)
		n += int64(written)
		if err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
}

func headerLine(spec DatasetSpec) string {
	var s string
	for k := 0; k < spec.KeyCols; k++ {
		if s != "" {
			s += string(spec.Sep)
		}
		s += fmt.Sprintf("key%d", k)
	}
	for f := 0; f < spec.FillerCols; f++ {
		if s != "" {
			s += string(spec.Sep)
		}
		s += fmt.Sprintf("field%d", f)
	}
	return s + "\n"
}

func appendField(line []byte, sep byte, field string) []byte {
	if len(line) > 0 {
		line = append(line, sep)
	}
	return append(line, field...)
}

func randomBytes(rng *rand.Rand, n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return string(b)
}

func sortRecords(records []record) {
	// insertion sort is fine here: datasets generated with Sorted:true are
	// meant for small property-test fixtures, not large benchmarks.
	for i := 1; i < len(records); i++ {
		for j := i; j > 0 && lessKeys(records[j].keys, records[j-1].keys); j-- {
			records[j], records[j-1] = records[j-1], records[j]
		}
	}
}

func lessKeys(a, b []int) bool {
	for i := range a {
		if i >= len(b) {
			return false
		}
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
