package log

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	assert.NilError(t, err)
	os.Stdout = w

	outC := make(chan string)
	go func() {
		var buf bytes.Buffer
		io.Copy(&buf, r)
		outC <- buf.String()
	}()

	fn()

	w.Close()
	os.Stdout = old
	return <-outC
}

func TestLoggerTextLevelGate(t *testing.T) {
	out := captureStdout(t, func() {
		l := New(levelWarning, false)
		l.Info(SortProgress{Input: "a.csv", Output: "b.csv", Records: 10})
		l.Warning(Warning{Kind: "line_too_long", Stage: "reader", Detail: "line 4"})
		l.Close()
	})
	assert.Equal(t, strings.Contains(out, "sorted"), false)
	assert.Equal(t, strings.Contains(out, "line_too_long"), true)
}

func TestLoggerJSON(t *testing.T) {
	out := captureStdout(t, func() {
		l := New(levelDebug, true)
		l.Success(SortProgress{Input: "a.csv", Output: "b.csv", Records: 3, Rounds: 1})
		l.Close()
	})
	out = strings.TrimSpace(out)
	assert.Equal(t, out, `{"input":"a.csv","output":"b.csv","records":3,"rounds":1,"duration_ms":0}`)
}

func TestLevelFromString(t *testing.T) {
	assert.Equal(t, LevelFromString("debug"), levelDebug)
	assert.Equal(t, LevelFromString("error"), levelError)
	assert.Equal(t, LevelFromString("bogus"), levelInfo)
}
