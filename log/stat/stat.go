// Package stat accumulates named anomaly counters across a job's worker
// goroutines and renders them as one end-of-job report, gated by a
// package-level on/off switch flipped by --stat. Adapted from the
// teacher's log/stat package: the same tabwriter table and JSON-lines
// rendering, driven by an errs.Collector's per-Kind counts instead of a
// path-keyed success/error map.
package stat

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/peak/ksort/internal/errs"
)

var enabled bool

// InitStat turns on statistics collection for the process. When disabled,
// Statistics always reports an empty table, and Collector callers should
// skip the bookkeeping entirely.
func InitStat() {
	enabled = true
}

// Enabled reports whether --stat turned counter collection on.
func Enabled() bool { return enabled }

// Entry is one named counter line in the end-of-job report.
type Entry struct {
	Kind  string `json:"kind"`
	Count int64  `json:"count"`
}

// Entries implements log.Message so a job's summary can be logged through
// the same Logger as every other message.
type Entries []Entry

func (s Entries) String() string {
	var b bytes.Buffer
	w := tabwriter.NewWriter(&b, 5, 0, 5, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "\n%s\t%s\t\n", "Kind", "Count")
	for _, e := range s {
		fmt.Fprintf(w, "%s\t%d\t\n", e.Kind, e.Count)
	}
	w.Flush()
	return b.String()
}

func (s Entries) JSON() string {
	var b strings.Builder
	for _, e := range s {
		fmt.Fprintf(&b, `{"kind":%q,"count":%d}`+"\n", e.Kind, e.Count)
	}
	return b.String()
}

// allKinds lists every errs.Kind the job-summary table reports, in a
// stable order, regardless of which ones were actually recorded.
var allKinds = []errs.Kind{
	errs.LineTooLong,
	errs.EncodingError,
	errs.UnsortedRecord,
	errs.InsufficientDisk,
	errs.InsufficientMemory,
	errs.IOError,
	errs.TaskFailure,
	errs.Interrupted,
}

// FromCollector turns one job's accumulated errs.Collector counts into an
// Entries report. Kinds with a zero count are omitted.
func FromCollector(c *errs.Collector) Entries {
	if c == nil || !enabled {
		return Entries{}
	}
	var out Entries
	for _, k := range allKinds {
		if n := c.Count(k); n > 0 {
			out = append(out, Entry{Kind: k.String(), Count: n})
		}
	}
	return out
}
