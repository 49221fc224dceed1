package command

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// TableSchema describes one table's key columns and separator — the
// minimal stand-in for the "surrounding dictionary/schema system" spec.md
// places out of scope. A --config file is a YAML map of table path (or
// logical name) to TableSchema.
type TableSchema struct {
	Path   string `json:"path"`
	Key    []int  `json:"key"`
	Sep    string `json:"sep"`
	Header bool   `json:"header"`
}

// LoadConfig reads a --config YAML file into a name-keyed set of
// TableSchema entries. sigs.k8s.io/yaml round-trips through the same JSON
// struct tags every other type in this repo already carries for --json
// output, so one tag set serves both encodings.
func LoadConfig(path string) (map[string]TableSchema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var schemas map[string]TableSchema
	if err := yaml.Unmarshal(b, &schemas); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return schemas, nil
}
