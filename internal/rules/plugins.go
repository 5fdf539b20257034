package rules

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaDocument []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("rules.schema.json", bytes.NewReader(schemaDocument)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = compiler.Compile("rules.schema.json")
	})
	return schema, schemaErr
}

// ValidateDocument checks raw JSON against the rule document schema.
func ValidateDocument(data []byte) error {
	sch, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("failed to compile rule schema: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("rule document schema validation failed: %w", err)
	}
	return nil
}

// LoadPlugin reads and validates one plugin document.
func LoadPlugin(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := ValidateDocument(data); err != nil {
		return nil, err
	}
	return Parse(data)
}

// LoadWithPlugins merges every *.json document in dir over a copy of base, in
// file name order. An unreadable directory or a broken plugin is logged and
// skipped; the base rules always survive.
func LoadWithPlugins(base *RuleSet, dir string, logger zerolog.Logger) *RuleSet {
	merged := base.Clone()
	if dir == "" {
		return merged
	}
	logger = logger.With().Str("component", "rules").Str("plugin_dir", dir).Logger()

	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn().Err(err).Msg("plugin directory unreadable, using base rules")
		return merged
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		plugin, err := LoadPlugin(filepath.Join(dir, name))
		if err != nil {
			logger.Warn().Err(err).Str("plugin", name).Msg("skipping rule plugin")
			continue
		}
		added := merged.Merge(plugin)
		logger.Info().Str("plugin", name).Int("rules_added", added).Msg("merged rule plugin")
	}
	return merged
}
