package command

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
)

// EnumValue restricts a string flag to a fixed set of values, used for
// --log's level name. Kept from the teacher's flag.go unchanged — this is
// generic cli.Generic plumbing with no domain coupling.
type EnumValue struct {
	Enum    []string
	Default string
	// ConditionFunction is used to check if the value passed to Set method
	// is valid or not. If ConditionFunction is not set, it defaults to
	// string '==' comparison.
	ConditionFunction func(str, target string) bool
	selected          string
}

func (e *EnumValue) Set(value string) error {
	if e.ConditionFunction == nil {
		e.ConditionFunction = func(str, target string) bool {
			return str == target
		}
	}
	for _, enum := range e.Enum {
		if e.ConditionFunction(enum, value) {
			e.selected = value
			return nil
		}
	}

	return fmt.Errorf("allowed values: [%s]", strings.Join(e.Enum, ", "))
}

func (e EnumValue) String() string {
	if e.selected == "" {
		return e.Default
	}
	return e.selected
}

func (e EnumValue) Get() interface{} {
	return e
}

const (
	defaultWorkerCount = 8
	defaultMemory      = int64(256 << 20)
)

// keyFlags is the set of flags every table-reading subcommand (sort,
// index) shares: which columns form the key, the field separators, and
// whether the first line is a header. §2.3 calls these out by name.
func keyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "key",
			Usage: "comma-separated 0-based key column indices, e.g. 0,2",
		},
		&cli.StringFlag{
			Name:  "sep",
			Value: "\t",
			Usage: "input field separator",
		},
		&cli.StringFlag{
			Name:  "out-sep",
			Usage: "output field separator, defaults to --sep",
		},
		&cli.BoolFlag{
			Name:  "header",
			Usage: "treat the first line as a header and pass it through unsorted",
		},
	}
}

// resourceFlags bounds how much parallelism and memory a subcommand may
// use, mirroring the teacher's global --numworkers flag generalized to
// this repo's (min,max,preferred) resource descriptors (§5).
func resourceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "workers",
			Value: defaultWorkerCount,
			Usage: "number of worker goroutines",
		},
		&cli.Int64Flag{
			Name:  "memory",
			Value: defaultMemory,
			Usage: "memory budget in bytes for this job",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "report what would be done without writing any output",
		},
	}
}

// separator picks a single byte out of a --sep/--out-sep flag value; "\t"
// is accepted literally since shells rarely let users type a raw tab.
func separator(s string) byte {
	switch s {
	case "", "\\t":
		return '\t'
	case "\\n":
		return '\n'
	default:
		return s[0]
	}
}
