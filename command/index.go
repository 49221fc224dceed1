package command

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/karrick/godirwalk"
	"github.com/urfave/cli/v2"

	"github.com/peak/ksort/internal/fsx"
	"github.com/peak/ksort/internal/key"
	"github.com/peak/ksort/internal/mtindex"
	"github.com/peak/ksort/internal/progress"
	"github.com/peak/ksort/internal/task"
	"github.com/peak/ksort/internal/xrand"
	"github.com/peak/ksort/log"
)

// NewIndexCommand builds the `ksort index <root> [secondary...]`
// subcommand (§4.10), emitting the resulting ChunkPlan as JSON.
func NewIndexCommand() *cli.Command {
	flags := append(keyFlags(), resourceFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:  "secondary-key",
			Usage: "comma-separated key columns for every secondary table (defaults to --key)",
		},
		&cli.StringFlag{
			Name:  "out",
			Usage: "write the ChunkPlan JSON here instead of stdout",
		},
		&cli.StringFlag{
			Name:  "secondary-dir",
			Usage: "discover secondary tables by walking this directory instead of listing them as arguments",
		},
		&cli.StringFlag{
			Name:  "secondary-ext",
			Value: ".csv",
			Usage: "file extension filter applied when --secondary-dir is set",
		},
	)
	return &cli.Command{
		Name:      "index",
		Usage:     "compute a synchronized multi-table chunk plan",
		ArgsUsage: "ROOT [SECONDARY...]",
		Flags:     flags,
		Action:    indexAction,
	}
}

func indexAction(c *cli.Context) error {
	if c.Args().Len() < 1 {
		return fmt.Errorf("index: expected a ROOT table argument")
	}
	rootPath := c.Args().Get(0)
	secondaryPaths := c.Args().Slice()[1:]

	if dir := c.String("secondary-dir"); dir != "" {
		if len(secondaryPaths) > 0 {
			return fmt.Errorf("index: --secondary-dir cannot be combined with explicit SECONDARY arguments")
		}
		discovered, err := discoverSecondaryTables(dir, c.String("secondary-ext"))
		if err != nil {
			return printAndReturn("index", err)
		}
		secondaryPaths = discovered
	}

	resolved, err := resolveTableFlags(c, rootPath)
	if err != nil {
		return err
	}
	rootCols, sep, header := resolved.Key, resolved.Sep, resolved.Header
	secCols := rootCols
	if s := c.String("secondary-key"); s != "" {
		secCols, err = parseKeyColumns(s)
		if err != nil {
			return err
		}
	}

	fs, err := fsx.NewLocal("", 1<<20)
	if err != nil {
		return printAndReturn("index", err)
	}
	defer fs.CleanupAll()

	rt := task.New(c.Int("workers"), progress.NewBar(4096))

	root := mtindex.Table{
		Path:      rootPath,
		Extractor: key.NewExtractor(rootCols, sep),
		Header:    header,
	}
	secondaries := make([]mtindex.Table, len(secondaryPaths))
	for i, p := range secondaryPaths {
		secondaries[i] = mtindex.Table{
			Path:      p,
			Extractor: key.NewExtractor(secCols, sep),
			Header:    header,
			Used:      true,
		}
	}

	opt := mtindex.Options{
		SlaveCount:          c.Int("workers"),
		MaxIndexationMemory: c.Int64("memory"),
		BufferSize:          1 << 20,
		Rand:                xrand.New(1),
	}

	plan, err := mtindex.ComputeIndexation(c.Context, rt, fs, root, secondaries, opt)
	if err != nil {
		return printAndReturn("index", err)
	}

	out := os.Stdout
	if path := c.String("out"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return printAndReturn("index", err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(planToJSON(plan, sep)); err != nil {
		return printAndReturn("index", err)
	}

	log.Logger.Success(log.ChunkReport{Table: rootPath, Chunks: len(plan.Tables[0].BeginPos)})
	for i, p := range secondaryPaths {
		log.Logger.Success(log.ChunkReport{Table: p, Chunks: len(plan.Tables[i+1].BeginPos)})
	}
	return nil
}

// discoverSecondaryTables walks dir and returns every regular file whose
// extension matches ext, sorted for a reproducible chunk plan across runs.
// Adapted from the teacher's walkDir (storage/fs.go), generalized from
// building *storage.Object values to collecting plain file paths.
func discoverSecondaryTables(dir, ext string) ([]string, error) {
	var paths []string
	err := godirwalk.Walk(dir, &godirwalk.Options{
		Callback: func(pathname string, dirent *godirwalk.Dirent) error {
			if dirent.IsDir() {
				return nil
			}
			if ext != "" && filepath.Ext(pathname) != ext {
				return nil
			}
			paths = append(paths, pathname)
			return nil
		},
		Unsorted: true,
	})
	if err != nil {
		return nil, fmt.Errorf("index: walk %s: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// planJSON is mtindex.ChunkPlan rendered for human/machine consumption:
// key.Key has no exported fields to marshal directly, so LastRootKey is
// rendered through Key.String(sep) instead.
type planJSON struct {
	LastRootKey []string              `json:"last_root_key"`
	Tables      []mtindex.TableChunks `json:"tables"`
}

func planToJSON(plan mtindex.ChunkPlan, sep byte) planJSON {
	keys := make([]string, len(plan.LastRootKey))
	for i, k := range plan.LastRootKey {
		keys[i] = k.String(sep)
	}
	return planJSON{LastRootKey: keys, Tables: plan.Tables}
}
