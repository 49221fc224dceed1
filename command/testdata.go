package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/peak/ksort/internal/testutil"
	"github.com/peak/ksort/log"
)

// NewTestdataCommand builds the `ksort testdata <out>` debug subcommand: a
// synthetic delimited-file generator, useful for reproducing a property
// test failure (P2/P8) locally without hand-crafting a fixture.
func NewTestdataCommand() *cli.Command {
	return &cli.Command{
		Name:      "testdata",
		Usage:     "generate a synthetic delimited file for local reproduction",
		ArgsUsage: "OUT",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "lines", Value: 1000, Usage: "number of records to generate"},
			&cli.IntFlag{Name: "key-cols", Value: 1, Usage: "number of key columns"},
			&cli.IntFlag{Name: "cardinality", Usage: "distinct values per key column; 0 means all unique"},
			&cli.IntFlag{Name: "filler-cols", Value: 2, Usage: "number of non-key filler columns"},
			&cli.IntFlag{Name: "filler-bytes", Value: 8, Usage: "bytes per filler column"},
			&cli.StringFlag{Name: "sep", Value: "\t", Usage: "field separator"},
			&cli.BoolFlag{Name: "header", Usage: "emit a header line"},
			&cli.BoolFlag{Name: "sorted", Usage: "emit records already in ascending key order"},
			&cli.Int64Flag{Name: "seed", Value: 1, Usage: "PRNG seed, for reproducible datasets"},
		},
		Action: testdataAction,
	}
}

func testdataAction(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return cli.Exit("testdata: expected an OUT argument", 1)
	}

	f, err := os.Create(c.Args().First())
	if err != nil {
		return printAndReturn("testdata", err)
	}
	defer f.Close()

	spec := testutil.DatasetSpec{
		Lines:          c.Int("lines"),
		KeyCols:        c.Int("key-cols"),
		KeyCardinality: c.Int("cardinality"),
		FillerCols:     c.Int("filler-cols"),
		FillerBytes:    c.Int("filler-bytes"),
		Sep:            separator(c.String("sep")),
		Header:         c.Bool("header"),
		Sorted:         c.Bool("sorted"),
		Seed:           c.Int64("seed"),
	}

	n, err := testutil.Generate(f, spec)
	if err != nil {
		return printAndReturn("testdata", err)
	}

	log.Logger.Success(log.Note{Stage: "testdata", Text: fmt.Sprintf("wrote %d bytes, %d records to %s", n, spec.Lines, c.Args().First())})
	return nil
}
