// Package config is QueryTorque's layered configuration: viper-backed
// settings (defaults + config file + environment) for normal CLI operation,
// plus a direct-YAML LocalConfig bypass for reads that must happen before
// viper is initialized. Grounded directly on the
// pack's internal/config/local_config.go shape.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved, fully-layered runtime configuration.
type Config struct {
	AnthropicAPIKey string
	DeepseekAPIKey  string
	OpenAIAPIKey    string
	SampleDB        string
	FullDB          string
	LogLevel        string

	PromptBudgetTokens int
	ParallelWorkers    int
	RetryBudget        int
	WorkerTimeout      time.Duration
	TargetSpeedup      float64
}

var v *viper.Viper

// Load builds a Config from (in increasing precedence) defaults, an
// optional config file at configPath, and environment variables. Env
// vars follow: ANTHROPIC_API_KEY, DEEPSEEK_API_KEY,
// OPENAI_API_KEY, SAMPLE_DB, FULL_DB, LOG_LEVEL.
func Load(configPath string) (Config, error) {
	v = viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("prompt_budget_tokens", 18000)
	v.SetDefault("parallel_workers", 5)
	v.SetDefault("retry_budget", 2)
	v.SetDefault("worker_timeout", "30s")
	v.SetDefault("target_speedup", 1.10)
	v.SetDefault("log_level", "info")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, err
			}
		}
	}

	workerTimeout, err := time.ParseDuration(v.GetString("worker_timeout"))
	if err != nil {
		workerTimeout = 30 * time.Second
	}

	return Config{
		AnthropicAPIKey:    v.GetString("ANTHROPIC_API_KEY"),
		DeepseekAPIKey:     v.GetString("DEEPSEEK_API_KEY"),
		OpenAIAPIKey:       v.GetString("OPENAI_API_KEY"),
		SampleDB:           v.GetString("SAMPLE_DB"),
		FullDB:             v.GetString("FULL_DB"),
		LogLevel:           v.GetString("log_level"),
		PromptBudgetTokens: v.GetInt("prompt_budget_tokens"),
		ParallelWorkers:    v.GetInt("parallel_workers"),
		RetryBudget:        v.GetInt("retry_budget"),
		WorkerTimeout:      workerTimeout,
		TargetSpeedup:      v.GetFloat64("target_speedup"),
	}, nil
}
