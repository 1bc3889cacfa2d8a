package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LocalConfig is the subset of settings read directly from
// constraints/local.yaml rather than through viper, for callers that
// need settings before viper is initialized.
// Grounded directly on beads' internal/config/local_config.go shape.
type LocalConfig struct {
	DefaultEngine  string `yaml:"default-engine"`
	DefaultMode    string `yaml:"default-mode"`
	BenchmarkAll   bool   `yaml:"benchmark-all"`
}

// LoadLocalConfig reads constraints/local.yaml directly from root.
// Returns an empty LocalConfig (not nil) if the file doesn't exist or
// can't be parsed, the same never-fail contract beads' version has.
func LoadLocalConfig(root string) *LocalConfig {
	path := filepath.Join(root, "constraints", "local.yaml")
	data, err := os.ReadFile(path) // #nosec G304 - path built from trusted root
	if err != nil {
		return &LocalConfig{}
	}

	var cfg LocalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return &LocalConfig{}
	}
	return &cfg
}
