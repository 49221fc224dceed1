package command

import (
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/peak/ksort/internal/errs"
	"github.com/peak/ksort/log"
)

// printError logs err through the package logger, unwrapping the engine's
// *errs.Error (for its Stage/Table) and *multierror.Error (the master's
// aggregated worker failures) the same way the teacher's printError
// unwrapped *parallel.Error and *multierror.Error.
func printError(stage string, err error) {
	if merr, ok := err.(*multierror.Error); ok {
		for _, sub := range merr.Errors {
			printError(stage, sub)
		}
		return
	}

	if kerr, ok := err.(*errs.Error); ok {
		table := kerr.Table
		msg := log.ErrorFrom(kerr.Stage, kerr)
		if table != "" {
			msg.Stage = kerr.Stage + "/" + table
		}
		msg.Err = cleanupError(kerr.Original)
		log.Logger.Error(msg)
		return
	}

	log.Logger.Error(log.ErrorFrom(stage, &flatError{cleanupError(err)}))
}

type flatError struct{ s string }

func (f *flatError) Error() string { return f.s }

// cleanupError collapses a multiline error message onto one line, since
// the text logger's output is one line per message.
func cleanupError(err error) string {
	s := strings.ReplaceAll(err.Error(), "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	s = strings.ReplaceAll(s, "  ", " ")
	return strings.TrimSpace(s)
}
