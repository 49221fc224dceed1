// Package progress implements the §6 "Progress sink" collaborator:
// begin/end task brackets, a label, a percent callback, and an
// interruption check polled by every worker's loop. Adapted from the
// teacher's progressbar package (same cheggaaa/pb/v3 dependency, same
// mutex-guarded counters), generalized from "objects copied" to
// "records/bytes processed by the current component".
package progress

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
)

// Sink is the interface every long-running loop in this module reports
// through and polls for interruption, matching §6/§5 exactly:
// begin_task/end_task/display_main_label/display_label/
// display_progression/is_interruption_requested/is_refresh_necessary.
type Sink interface {
	BeginTask(total int)
	EndTask()
	DisplayMainLabel(label string)
	DisplayLabel(label string)
	DisplayProgression(done, total int)
	RequestInterruption()
	IsInterruptionRequested() bool
	IsRefreshNecessary(counter int64) bool
}

// noop implements Sink with no side effects — used in tests and any
// headless invocation.
type noop struct {
	interrupted atomic.Bool
}

// Noop returns a Sink that does nothing but still honors
// RequestInterruption/IsInterruptionRequested, so tests can exercise the
// cancellation path without a real terminal.
func Noop() Sink { return &noop{} }

func (n *noop) BeginTask(int)                       {}
func (n *noop) EndTask()                            {}
func (n *noop) DisplayMainLabel(string)             {}
func (n *noop) DisplayLabel(string)                 {}
func (n *noop) DisplayProgression(int, int)         {}
func (n *noop) RequestInterruption()                { n.interrupted.Store(true) }
func (n *noop) IsInterruptionRequested() bool        { return n.interrupted.Load() }
func (n *noop) IsRefreshNecessary(counter int64) bool { return counter%4096 == 0 }

// Bar is a real terminal progress bar, used by the CLI (as opposed to the
// Noop sink used by library callers and tests).
type Bar struct {
	mu          sync.Mutex
	bar         *pb.ProgressBar
	mainLabel   string
	interrupted atomic.Bool
	refreshStep int64
}

const barTemplate = `{{ " " }}{{string . "label" | green}} {{bar . "[" "=" ">" "-" "]"}} {{percent .}} ({{string . "done"}}/{{string . "total"}})`

// NewBar returns a terminal Sink. refreshEvery controls how often
// IsRefreshNecessary returns true (every Nth call), mirroring the
// teacher's poll-throttling so workers don't hammer a shared counter.
func NewBar(refreshEvery int64) *Bar {
	if refreshEvery <= 0 {
		refreshEvery = 4096
	}
	return &Bar{refreshStep: refreshEvery}
}

func (b *Bar) BeginTask(total int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bar = pb.New(total)
	b.bar.SetTemplateString(barTemplate)
	b.bar.Set("label", b.mainLabel)
	b.bar.Set("done", "0")
	b.bar.Set("total", humanize.Comma(int64(total)))
	b.bar.Start()
}

func (b *Bar) EndTask() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		b.bar.Finish()
		b.bar = nil
	}
}

func (b *Bar) DisplayMainLabel(label string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mainLabel = label
	if b.bar != nil {
		b.bar.Set("label", label)
	}
}

func (b *Bar) DisplayLabel(label string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		b.bar.Set("label", fmt.Sprintf("%s: %s", b.mainLabel, label))
	}
}

func (b *Bar) DisplayProgression(done, total int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar == nil {
		return
	}
	b.bar.SetCurrent(int64(done))
	b.bar.Set("done", humanize.Comma(int64(done)))
	b.bar.Set("total", humanize.Comma(int64(total)))
}

func (b *Bar) RequestInterruption() { b.interrupted.Store(true) }

func (b *Bar) IsInterruptionRequested() bool { return b.interrupted.Load() }

func (b *Bar) IsRefreshNecessary(counter int64) bool {
	return counter%b.refreshStep == 0
}
