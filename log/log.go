// Package log serializes structured job output to stdout through a single
// buffered channel, so worker goroutines never interleave their lines.
// Adapted from the teacher's log package: the same leveled Logger and
// Message interface, with `--json`/`--log-level` passed in explicitly by
// command/ instead of read from package-level flag vars.
package log

import (
	stdlog "log"
	"fmt"
	"os"
)

// Logger is the package-level instance command/ installs via Init.
var Logger *logger

type logLevel int

const (
	levelDebug logLevel = iota
	levelInfo
	levelWarning
	levelError
	levelSuccess
)

func (l logLevel) String() string {
	switch l {
	case levelSuccess:
		return "+"
	case levelError:
		return "ERROR"
	case levelWarning:
		return "WARNING"
	case levelInfo:
		return "#"
	case levelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// LevelFromString maps the --log flag value to a logLevel, defaulting to
// info on anything unrecognized.
func LevelFromString(s string) logLevel {
	switch s {
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warning":
		return levelWarning
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

type logger struct {
	stdoutCh chan string
	donech   chan struct{}
	impl     *stdlog.Logger
	level    logLevel
	json     bool
}

// Init installs the package-level Logger, gated at level and switched to
// JSON-lines output when json is set (the CLI's --json flag).
func Init(level logLevel, json bool) {
	Logger = New(level, json)
}

// New builds a standalone logger; Init is the usual entry point, but
// library callers that don't want a package-level singleton can call this
// directly. Each logger owns its own serializing channel, so a program
// (or a test) can create and Close() many loggers in sequence.
func New(level logLevel, json bool) *logger {
	l := &logger{
		stdoutCh: make(chan string, 10000),
		donech:   make(chan struct{}),
		impl:     stdlog.New(os.Stdout, "", 0),
		level:    level,
		json:     json,
	}
	go l.stdout()
	return l
}

func (l *logger) text(level logLevel, msg Message) string {
	switch level {
	case levelError, levelWarning:
		return fmt.Sprintf("%v %v", level, msg.String())
	default:
		return fmt.Sprintf("                   %v %v", level, msg.String())
	}
}

func (l *logger) printf(level logLevel, msg Message) {
	if level < l.level {
		return
	}
	if l.json {
		l.stdoutCh <- msg.JSON()
	} else {
		l.stdoutCh <- l.text(level, msg)
	}
}

func (l *logger) Debug(msg Message)   { l.printf(levelDebug, msg) }
func (l *logger) Info(msg Message)    { l.printf(levelInfo, msg) }
func (l *logger) Success(msg Message) { l.printf(levelSuccess, msg) }
func (l *logger) Warning(msg Message) { l.printf(levelWarning, msg) }
func (l *logger) Error(msg Message)   { l.printf(levelError, msg) }

// JSON emits msg unconditionally on the JSON stream, bypassing the level
// gate — used for the final job summary the --json flag always wants.
func (l *logger) JSON(msg Message) {
	if l.json {
		l.stdoutCh <- msg.JSON()
	}
}

func (l *logger) stdout() {
	defer close(l.donech)
	for msg := range l.stdoutCh {
		l.impl.Println(msg)
	}
}

// Close drains pending log lines and waits for the stdout goroutine to
// finish before returning, so a program can exit without truncating
// output.
func (l *logger) Close() {
	close(l.stdoutCh)
	<-l.donech
}
