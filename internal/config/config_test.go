package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 18000, cfg.PromptBudgetTokens)
	assert.Equal(t, 5, cfg.ParallelWorkers)
	assert.Equal(t, 1.10, cfg.TargetSpeedup)
}

func TestLoadReadsEnvVarsPerSpec(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("SAMPLE_DB", "sample.duckdb")
	t.Setenv("FULL_DB", "full.duckdb")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-test", cfg.AnthropicAPIKey)
	assert.Equal(t, "sample.duckdb", cfg.SampleDB)
	assert.Equal(t, "full.duckdb", cfg.FullDB)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadMissingConfigFileIsNotAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
}

func TestLoadLocalConfigMissingFileReturnsEmptyNotNil(t *testing.T) {
	cfg := LoadLocalConfig(t.TempDir())
	require.NotNil(t, cfg)
	assert.Equal(t, "", cfg.DefaultEngine)
}

func TestLoadLocalConfigParsesYAML(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "constraints"), 0o755))
	content := "default-engine: duckdb\ndefault-mode: parallel\nbenchmark-all: true\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "constraints", "local.yaml"), []byte(content), 0o644))

	cfg := LoadLocalConfig(root)
	assert.Equal(t, "duckdb", cfg.DefaultEngine)
	assert.Equal(t, "parallel", cfg.DefaultMode)
	assert.True(t, cfg.BenchmarkAll)
}
