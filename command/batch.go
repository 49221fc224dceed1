package command

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/kballard/go-shellquote"
	"github.com/urfave/cli/v2"

	"github.com/peak/ksort/internal/parallel"
)

// NewBatchCommand builds the `ksort batch <file>` subcommand: a
// newline-delimited command file (à la the teacher's `run` subcommand),
// each line tokenized with go-shellquote so quoted paths survive, run
// concurrently through the same parallel pool the teacher used for its
// command-file mode.
func NewBatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "batch",
		Usage:     "run sort/index commands listed one per line in a file (or stdin)",
		ArgsUsage: "[FILE]",
		Flags:     resourceFlags(),
		Before: func(c *cli.Context) error {
			if c.Args().Len() > 1 {
				return fmt.Errorf("batch: expected at most one FILE argument")
			}
			return nil
		},
		Action: batchAction,
	}
}

func batchAction(c *cli.Context) error {
	reader := io.Reader(os.Stdin)
	if c.Args().Len() == 1 {
		f, err := os.Open(c.Args().First())
		if err != nil {
			return printAndReturn("batch", err)
		}
		defer f.Close()
		reader = f
	}

	sem := parallel.New(c.Int("workers"))
	defer sem.Close()

	lines := newLineReader(c.Context, reader)

	var (
		merr   error
		lineno int
	)

	type result struct{ err error }
	results := make(chan result)
	var pending int

	for line := range lines.Lines() {
		lineno++
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields, err := shellquote.Split(line)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("batch line %d: %w", lineno, err))
			continue
		}
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "batch" {
			merr = multierror.Append(merr, fmt.Errorf("batch line %d: %q is not permitted inside a batch file", lineno, fields[0]))
			continue
		}

		ln := lineno
		f := fields
		pending++
		go func() {
			sem.Acquire()
			defer sem.Release()
			results <- result{err: runBatchLine(c, ln, f)}
		}()
	}
	if err := lines.Err(); err != nil {
		merr = multierror.Append(merr, err)
	}

	for i := 0; i < pending; i++ {
		r := <-results
		if r.err != nil {
			merr = multierror.Append(merr, r.err)
		}
	}

	if me, ok := merr.(*multierror.Error); ok {
		return me.ErrorOrNil()
	}
	return merr
}

func runBatchLine(parent *cli.Context, lineno int, fields []string) error {
	subcmd := fields[0]
	cmd := AppCommand(subcmd)
	if cmd == nil {
		err := fmt.Errorf("batch line %d: %q command not found", lineno, subcmd)
		printError("batch", err)
		return err
	}

	flagset := flag.NewFlagSet(subcmd, flag.ContinueOnError)
	for _, fl := range cmd.Flags {
		if err := fl.Apply(flagset); err != nil {
			return fmt.Errorf("batch line %d: %w", lineno, err)
		}
	}
	if err := flagset.Parse(fields[1:]); err != nil {
		return fmt.Errorf("batch line %d: %w", lineno, err)
	}

	ctx := cli.NewContext(parent.App, flagset, parent)
	ctx.Command = *cmd
	if err := cmd.Run(ctx); err != nil {
		printError("batch", fmt.Errorf("line %d: %w", lineno, err))
		return err
	}
	return nil
}

// lineReader is a cancelable line-at-a-time reader over a command file,
// adapted from the teacher's run-command Reader.
type lineReader struct {
	r      *bufio.Reader
	ctx    context.Context
	linech chan string
	err    error
}

func newLineReader(ctx context.Context, r io.Reader) *lineReader {
	lr := &lineReader{ctx: ctx, r: bufio.NewReader(r), linech: make(chan string)}
	go lr.read()
	return lr
}

func (lr *lineReader) read() {
	defer close(lr.linech)
	for {
		select {
		case <-lr.ctx.Done():
			lr.err = lr.ctx.Err()
			return
		default:
			line, err := lr.r.ReadString('\n')
			if line != "" {
				lr.linech <- line
			}
			if err != nil {
				if err != io.EOF {
					lr.err = multierror.Append(lr.err, err)
				}
				return
			}
		}
	}
}

func (lr *lineReader) Lines() <-chan string { return lr.linech }
func (lr *lineReader) Err() error           { return lr.err }
