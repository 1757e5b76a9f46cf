package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FromFile loads board configuration from a YAML or JSON file, detected by
// extension (.yaml, .yml, .json).
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read board config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return Config{}, fmt.Errorf("board config %s: unsupported extension %q", path, ext)
	}
}

// FromYAML parses YAML board configuration.
func FromYAML(data []byte) (Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse board config yaml: %w", err)
	}
	return New(m), nil
}

// FromJSON parses JSON board configuration.
func FromJSON(data []byte) (Config, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse board config json: %w", err)
	}
	return New(m), nil
}

// OptionsFromFile loads a config file and converts it straight to validated
// Options. This is the construction path for wiring a board from a file:
//
//	opts, err := config.OptionsFromFile("board.yaml")
//	flow, err := board.FromOptions("graph-1", opts)
func OptionsFromFile(path string) (Options, error) {
	cfg, err := FromFile(path)
	if err != nil {
		return Options{}, err
	}
	opts := OptionsFrom(cfg)
	if err := opts.Validate(); err != nil {
		return Options{}, fmt.Errorf("board config %s: %w", path, err)
	}
	return opts, nil
}
