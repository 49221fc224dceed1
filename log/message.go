package log

import (
	"encoding/json"
	"fmt"

	"github.com/peak/ksort/internal/errs"
)

// Message is an interface to print structured logs.
type Message interface {
	fmt.Stringer
	JSON() string
}

func toJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(b)
}

// SortProgress is emitted once a sort job (C9) finishes successfully.
type SortProgress struct {
	Input      string `json:"input"`
	Output     string `json:"output"`
	Records    int64  `json:"records"`
	Rounds     int    `json:"rounds"`
	DurationMs int64  `json:"duration_ms"`
}

func (m SortProgress) String() string {
	return fmt.Sprintf("sorted %q -> %q: %d records in %d round(s), %dms",
		m.Input, m.Output, m.Records, m.Rounds, m.DurationMs)
}

func (m SortProgress) JSON() string { return toJSON(m) }

// ChunkReport is emitted once per table after a multi-table indexation
// (C10) finishes.
type ChunkReport struct {
	Table  string `json:"table"`
	Chunks int    `json:"chunks"`
}

func (m ChunkReport) String() string {
	return fmt.Sprintf("indexed %q: %d chunk(s)", m.Table, m.Chunks)
}

func (m ChunkReport) JSON() string { return toJSON(m) }

// Warning carries one non-fatal anomaly surfaced by an errs.Collector — a
// short or long line, an encoding error, a recursed bucket, ...
type Warning struct {
	Kind   string `json:"kind"`
	Stage  string `json:"stage"`
	Detail string `json:"detail"`
}

// WarningFrom builds a Warning from an errs.Kind and the detail string an
// errs.Collector decided to surface.
func WarningFrom(kind errs.Kind, stage, detail string) Warning {
	return Warning{Kind: kind.String(), Stage: stage, Detail: detail}
}

func (m Warning) String() string {
	return fmt.Sprintf("%s[%s]: %s", m.Kind, m.Stage, m.Detail)
}

func (m Warning) JSON() string { return toJSON(m) }

// ErrorMessage wraps a fatal error with the stage that raised it.
type ErrorMessage struct {
	Stage string `json:"stage,omitempty"`
	Err   string `json:"error"`
}

// ErrorFrom builds an ErrorMessage, unwrapping an *errs.Error's Stage when
// the caller didn't already know it.
func ErrorFrom(stage string, err error) ErrorMessage {
	if stage == "" {
		if ke, ok := err.(*errs.Error); ok {
			stage = ke.Stage
		}
	}
	return ErrorMessage{Stage: stage, Err: err.Error()}
}

func (m ErrorMessage) String() string {
	if m.Stage == "" {
		return m.Err
	}
	return fmt.Sprintf("%s: %s", m.Stage, m.Err)
}

func (m ErrorMessage) JSON() string { return toJSON(m) }

// Note carries one free-text informational line — --dry-run previews and
// other messages with no dedicated structured shape.
type Note struct {
	Stage string `json:"stage,omitempty"`
	Text  string `json:"text"`
}

func (m Note) String() string {
	if m.Stage == "" {
		return m.Text
	}
	return fmt.Sprintf("%s: %s", m.Stage, m.Text)
}

func (m Note) JSON() string { return toJSON(m) }
