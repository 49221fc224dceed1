package command

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v2"
	"gotest.tools/v3/assert"

	"github.com/peak/ksort/internal/mtindex"
)

func TestParseKeyColumns(t *testing.T) {
	cases := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"", nil, false},
		{"  ", nil, false},
		{"0", []int{0}, false},
		{"0,2,3", []int{0, 2, 3}, false},
		{" 0 , 2 ", []int{0, 2}, false},
		{"a,b", nil, true},
	}
	for _, c := range cases {
		got, err := parseKeyColumns(c.in)
		if c.wantErr {
			assert.Assert(t, err != nil)
			continue
		}
		assert.NilError(t, err)
		assert.DeepEqual(t, got, c.want)
	}
}

func newTestContext(t *testing.T, fn func(fs *flag.FlagSet)) *cli.Context {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.String("key", "", "")
	fs.String("sep", "", "")
	fs.Bool("header", false, "")
	fs.String("config", "", "")
	fn(fs)
	return cli.NewContext(cli.NewApp(), fs, nil)
}

func TestResolveTableFlagsWithoutConfigUsesCLIFlags(t *testing.T) {
	c := newTestContext(t, func(fs *flag.FlagSet) {
		fs.Parse([]string{"--key=0,1", "--sep=,", "--header"})
	})
	resolved, err := resolveTableFlags(c, "orders.csv")
	assert.NilError(t, err)
	assert.DeepEqual(t, resolved.Key, []int{0, 1})
	assert.Equal(t, resolved.Sep, byte(','))
	assert.Assert(t, resolved.Header)
}

func TestResolveTableFlagsFallsBackToConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "schema.yaml")
	content := "orders.csv:\n  key: [1]\n  sep: \"|\"\n  header: true\n"
	assert.NilError(t, os.WriteFile(cfgPath, []byte(content), 0o644))

	c := newTestContext(t, func(fs *flag.FlagSet) {
		fs.Parse([]string{"--config=" + cfgPath})
	})
	resolved, err := resolveTableFlags(c, "orders.csv")
	assert.NilError(t, err)
	assert.DeepEqual(t, resolved.Key, []int{1})
	assert.Equal(t, resolved.Sep, byte('|'))
	assert.Assert(t, resolved.Header)
}

func TestPlanToJSONRendersLastRootKey(t *testing.T) {
	plan := mtindex.ChunkPlan{
		Tables: []mtindex.TableChunks{{BeginPos: []int64{0, 100}}},
	}
	out := planToJSON(plan, ';')
	assert.Equal(t, len(out.Tables), 1)
	assert.Equal(t, len(out.LastRootKey), 0)
}
