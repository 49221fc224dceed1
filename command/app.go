package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/peak/ksort/internal/errs"
	"github.com/peak/ksort/log"
	"github.com/peak/ksort/log/stat"
)

const appName = "ksort"

// globalErrs is the Collector whose counts the --stat summary (app.After)
// reports. No engine call records into it, so that summary has no rows.
var globalErrs = errs.NewCollector(5)

var app = &cli.App{
	Name:                 appName,
	Usage:                "disk-based parallel external sort and multi-table co-indexer",
	EnableBashCompletion: true,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "enable JSON-lines output",
		},
		&cli.GenericFlag{
			Name: "log",
			Value: &EnumValue{
				Enum:    []string{"debug", "info", "warning", "error"},
				Default: "info",
			},
			Usage: "log level: (debug, info, warning, error)",
		},
		&cli.BoolFlag{
			Name:  "stat",
			Usage: "collect anomaly counters and print a table at the end",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "YAML file describing table schemas (key columns, separators) for sort/index",
		},
	},
	Before: func(c *cli.Context) error {
		level := log.LevelFromString(c.String("log"))
		log.Init(level, c.Bool("json"))
		if c.Bool("stat") {
			stat.InitStat()
		}
		return nil
	},
	OnUsageError: func(c *cli.Context, err error, isSubcommand bool) error {
		fmt.Fprintf(c.App.ErrWriter, "Incorrect Usage: %s\n", err.Error())
		fmt.Fprintf(c.App.ErrWriter, "See 'ksort --help' for usage\n")
		return err
	},
	After: func(c *cli.Context) error {
		if c.Bool("stat") {
			if entries := stat.FromCollector(globalErrs); len(entries) > 0 {
				log.Logger.Success(entries)
			}
		}
		log.Logger.Close()
		return nil
	},
}

// Commands lists every top-level subcommand.
func Commands() []*cli.Command {
	return []*cli.Command{
		NewSortCommand(),
		NewIndexCommand(),
		NewBatchCommand(),
		NewTestdataCommand(),
	}
}

// AppCommand looks up one of Commands() by name — used by batch mode to
// dispatch a command-file line without re-running the whole cli.App.
func AppCommand(name string) *cli.Command {
	for _, cmd := range Commands() {
		if cmd.HasName(name) {
			return cmd
		}
	}
	return nil
}

// Main is the entrypoint cmd/ksort/main.go calls.
func Main(ctx context.Context, args []string) error {
	app.Commands = Commands()
	return app.RunContext(ctx, args)
}

// resolvedTableFlags is what a sort/index action actually uses to build a
// key.Extractor: key columns, separator and header flag, whichever of
// --key/--sep/--header or a --config TableSchema entry supplied them.
type resolvedTableFlags struct {
	Key    []int
	Sep    byte
	Header bool
}

// resolveTableFlags applies a --config TableSchema entry (keyed by table
// path) as the default for any of --key/--sep/--header the caller left
// unset, so a schema file can seed per-table settings once instead of
// repeating them on every invocation.
func resolveTableFlags(c *cli.Context, tablePath string) (resolvedTableFlags, error) {
	cols, err := parseKeyColumns(c.String("key"))
	if err != nil {
		return resolvedTableFlags{}, err
	}
	sepFlag := c.String("sep")
	header := c.Bool("header")

	if cfgPath := c.String("config"); cfgPath != "" {
		schemas, err := LoadConfig(cfgPath)
		if err != nil {
			return resolvedTableFlags{}, err
		}
		if schema, ok := schemas[tablePath]; ok {
			if len(cols) == 0 {
				cols = schema.Key
			}
			if sepFlag == "" && schema.Sep != "" {
				sepFlag = schema.Sep
			}
			if !c.IsSet("header") {
				header = schema.Header
			}
		}
	}

	return resolvedTableFlags{Key: cols, Sep: separator(sepFlag), Header: header}, nil
}

// parseKeyColumns parses a --key flag value ("0,2,3") into 0-based column
// indices. An empty string means no key (single-table, no-key mode, §4.10).
func parseKeyColumns(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	cols := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("--key: invalid column index %q: %w", p, err)
		}
		cols[i] = n
	}
	return cols, nil
}
