package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/JKR8/querytorque-v8-sub011/internal/bench"
	"github.com/JKR8/querytorque-v8-sub011/internal/blackboard"
	"github.com/JKR8/querytorque-v8-sub011/internal/corpus"
	"github.com/JKR8/querytorque-v8-sub011/internal/dbcap"
	"github.com/JKR8/querytorque-v8-sub011/internal/driver"
	"github.com/JKR8/querytorque-v8-sub011/internal/llm"
	"github.com/JKR8/querytorque-v8-sub011/internal/profile"
	"github.com/JKR8/querytorque-v8-sub011/internal/querydag"
	"github.com/JKR8/querytorque-v8-sub011/internal/rules"
	"github.com/JKR8/querytorque-v8-sub011/internal/sqlfeatures"
	"github.com/JKR8/querytorque-v8-sub011/internal/types"
)

var (
	optMode          string
	optWorkers       int
	optRetries       int
	optRounds        int
	optTargetSpeedup float64
	optSampleDB      string
	optFullDB        string
	optProvider      string
	optBenchmarkAll  bool
	optProtocol      string
	optBenchmark     string
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize <query.sql>",
	Short: "Generate, validate, and benchmark rewrites for a single query",
	Args:  cobra.ExactArgs(1),
	RunE:  runOptimize,
}

func init() {
	optimizeCmd.Flags().StringVar(&optMode, "mode", "retry", "retry|parallel|evolutionary")
	optimizeCmd.Flags().IntVar(&optWorkers, "workers", 5, "parallel mode worker count")
	optimizeCmd.Flags().IntVar(&optRetries, "retries", 2, "retry budget per attempt/round")
	optimizeCmd.Flags().IntVar(&optRounds, "rounds", 5, "evolutionary mode round count")
	optimizeCmd.Flags().Float64Var(&optTargetSpeedup, "target-speedup", 1.10, "speedup threshold for WIN/success")
	optimizeCmd.Flags().StringVar(&optSampleDB, "sample-db", "", "sample store DSN (default: $SAMPLE_DB)")
	optimizeCmd.Flags().StringVar(&optFullDB, "full-db", "", "full store DSN (default: $FULL_DB)")
	optimizeCmd.Flags().StringVar(&optProvider, "provider", "anthropic", "LLM provider")
	optimizeCmd.Flags().BoolVar(&optBenchmarkAll, "benchmark-all", false, "parallel mode: benchmark every valid candidate, not just until target")
	optimizeCmd.Flags().StringVar(&optProtocol, "protocol", "trimmed_5", "three_run|trimmed_5|interleaved_1122 (default matches the full-store protocol decided in DESIGN.md)")
	optimizeCmd.Flags().StringVar(&optBenchmark, "benchmark", "default", "benchmark name, for blackboard file naming")
}

func runOptimize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	queryPath := args[0]
	sqlBytes, err := os.ReadFile(queryPath) // #nosec G304 - path supplied directly on the CLI
	if err != nil {
		return exitErr{code: 1, err: fmt.Errorf("reading %s: %w", queryPath, err)}
	}
	query := string(sqlBytes)

	if _, err := querydag.Build(query); err != nil {
		return exitErr{code: 1, err: fmt.Errorf("query DAG construction: %w", err)}
	}

	fv, err := sqlfeatures.Extract(query, dialect)
	if err != nil {
		return exitErr{code: 1, err: fmt.Errorf("feature extraction: %w", err)}
	}

	ruleDir := filepath.Join(rootDir, "constraints", "detection_rules", dialect)
	ruleSet, err := rules.LoadDir(ruleDir)
	if err != nil {
		return exitErr{code: 1, err: fmt.Errorf("loading detection rules: %w", err)}
	}

	profileMD, parsedProfile, err := profile.Load(rootDir, dialect)
	if err != nil {
		return exitErr{code: 1, err: fmt.Errorf("loading engine profile: %w", err)}
	}
	knownRuleIDs := make(map[string]struct{}, len(ruleSet))
	for _, r := range ruleSet {
		knownRuleIDs[r.ID] = struct{}{}
	}
	if errs := profile.Validate(parsedProfile, knownRuleIDs, map[string]struct{}{}); len(errs) > 0 {
		return exitErr{code: 1, err: fmt.Errorf("engine profile %s is invalid (%d issue(s)); refusing to run", dialect, len(errs))}
	}

	gaps, err := rules.Evaluate(ruleSet, fv)
	if err != nil {
		return exitErr{code: 1, err: fmt.Errorf("rule evaluation: %w", err)}
	}

	examplesDir := filepath.Join(rootDir, "examples", dialect)
	var goldExamples []types.GoldExample
	if _, statErr := os.Stat(examplesDir); statErr == nil {
		goldExamples, err = corpus.LoadDir(examplesDir)
		if err != nil {
			return exitErr{code: 1, err: fmt.Errorf("loading examples: %w", err)}
		}
	}
	scored := corpus.Score(fv, gaps, goldExamples, 12)

	sampleDSN := optSampleDB
	if sampleDSN == "" {
		sampleDSN = firstNonEmpty(cfg.SampleDB, ":memory:")
	}
	fullDSN := optFullDB
	if fullDSN == "" {
		fullDSN = firstNonEmpty(cfg.FullDB, ":memory:")
	}

	sampleHandle, err := openHandle(ctx, dialect, sampleDSN)
	if err != nil {
		return exitErr{code: 1, err: fmt.Errorf("connecting to sample store: %w", err)}
	}
	defer sampleHandle.Close()

	fullHandle, err := openHandle(ctx, dialect, fullDSN)
	if err != nil {
		return exitErr{code: 1, err: fmt.Errorf("connecting to full store: %w", err)}
	}
	defer fullHandle.Close()

	client, err := newLLMClient(optProvider)
	if err != nil {
		return exitErr{code: 1, err: fmt.Errorf("configuring LLM client: %w", err)}
	}

	blackboardPath := blackboard.Path(rootDir, dialect, optBenchmark)

	entries, err := driver.Run(ctx, driver.Request{
		QueryID:          filepath.Base(queryPath),
		Query:            query,
		Engine:           dialect,
		Benchmark:        optBenchmark,
		Features:         fv,
		Gaps:             gaps,
		Examples:         scored,
		ProfileMD:        profileMD,
		ProfileVersion:   parsedProfile.Version,
		Mode:             driver.Mode(optMode),
		Workers:          optWorkers,
		RetryBudget:      optRetries,
		Rounds:           optRounds,
		TargetSpeedup:    optTargetSpeedup,
		BenchmarkAll:     optBenchmarkAll,
		Protocol:         bench.Protocol(optProtocol),
		ValidateTimeout:  10 * time.Second,
		BenchmarkTimeout: 30 * time.Second,
		SampleHandle:     sampleHandle,
		FullHandle:       fullHandle,
		Client:           client,
		BlackboardPath:   blackboardPath,
	})
	if err != nil {
		return exitErr{code: 1, err: fmt.Errorf("driver: %w", err)}
	}
	if len(entries) == 0 {
		return exitErr{code: 2, err: fmt.Errorf("no candidates were recorded for %s", queryPath)}
	}

	best := entries[0]
	for _, e := range entries {
		if e.Outcome.Speedup > best.Outcome.Speedup {
			best = e
		}
	}
	fmt.Printf("recorded %d attempt(s); best: %s speedup=%.2fx status=%s\n",
		len(entries), best.ID, best.Outcome.Speedup, best.Outcome.Status)
	return nil
}

func openHandle(ctx context.Context, dialect, dsn string) (dbcap.Handle, error) {
	switch dialect {
	case "postgres", "postgresql":
		return dbcap.OpenPostgres(ctx, dsn)
	default:
		return dbcap.OpenDuckDB(dsn)
	}
}

func newLLMClient(provider string) (llm.Client, error) {
	switch provider {
	case "anthropic", "":
		return llm.NewAnthropicClient(cfg.AnthropicAPIKey)
	default:
		return nil, fmt.Errorf("unsupported provider %q (only anthropic is wired)", provider)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// exitErr carries a process exit code alongside the underlying error, so
// main can translate driver-level failures into the process's exit
// codes (1 for hard failure, 2 for "no valid candidates at all").
type exitErr struct {
	code int
	err  error
}

func (e exitErr) Error() string { return e.err.Error() }
func (e exitErr) Unwrap() error { return e.err }
