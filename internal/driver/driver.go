// Package driver implements the optimization driver: the three
// modes (retry, parallel, evolutionary) that each wire the shared
// assemble -> generate -> validate -> benchmark -> record phases
// together with a different fan-out/retry/termination policy.
// Mode dispatch on one shared request struct mirrors cmd/bd/main.go's
// root-command-selects-a-small-set-of-named-modes shape.
package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/JKR8/querytorque-v8-sub011/internal/bench"
	"github.com/JKR8/querytorque-v8-sub011/internal/blackboard"
	"github.com/JKR8/querytorque-v8-sub011/internal/candidate"
	"github.com/JKR8/querytorque-v8-sub011/internal/dbcap"
	"github.com/JKR8/querytorque-v8-sub011/internal/llm"
	"github.com/JKR8/querytorque-v8-sub011/internal/types"
	"github.com/JKR8/querytorque-v8-sub011/internal/validator"
)

// Mode re-exports candidate.Mode so callers need only import driver.
type Mode = candidate.Mode

const (
	ModeRetry        = candidate.ModeRetry
	ModeParallel     = candidate.ModeParallel
	ModeEvolutionary = candidate.ModeEvolutionary
)

// Request bundles everything one driver call needs across all three
// modes; fields unused by a given mode are ignored.
type Request struct {
	QueryID   string
	Query     string
	Engine    string
	Benchmark string
	Features  types.FeatureVector
	Gaps      []types.TriggeredGap
	Examples  []types.ScoredExample
	ProfileMD string
	ProfileVersion string

	Mode          Mode
	Workers       int           // parallel mode
	RetryBudget   int           // attempts beyond the first, per worker or round
	Rounds        int           // evolutionary mode
	Epsilon       float64       // evolutionary mode termination threshold
	TargetSpeedup float64
	BenchmarkAll  bool // parallel mode: benchmark every valid candidate, not just until target
	Protocol      bench.Protocol
	ValidateTimeout  time.Duration
	BenchmarkTimeout time.Duration

	SampleHandle dbcap.Handle
	FullHandle   dbcap.Handle
	Client       llm.Client
	BlackboardPath string
}

// Run executes req.Mode and returns the recorded BlackboardEntry values,
// which have already been appended to req.BlackboardPath as they were
// produced.
func Run(ctx context.Context, req Request) ([]types.BlackboardEntry, error) {
	switch req.Mode {
	case ModeRetry, "":
		return runRetry(ctx, req)
	case ModeParallel:
		return runParallel(ctx, req)
	case ModeEvolutionary:
		return runEvolutionary(ctx, req)
	default:
		return nil, fmt.Errorf("driver.Run: unknown mode %q", req.Mode)
	}
}

func validateTimeout(req Request) time.Duration {
	if req.ValidateTimeout > 0 {
		return req.ValidateTimeout
	}
	return validator.DefaultTimeout
}

// validateOnly wires candidate.ValidateFunc to just the validator's Validate step,
// used by parallel mode (which benchmarks separately, sequentially,
// after fan-out completes).
func validateOnly(req Request) candidate.ValidateFunc {
	return func(ctx context.Context, sql string) (*types.ValidationResult, error) {
		result := validator.Validate(ctx, req.SampleHandle, req.Query, sql, validateTimeout(req))
		return &result, nil
	}
}

// attemptRecord captures everything recordAttempt needs to build one
// BlackboardEntry.
type attemptRecord struct {
	workerID     string
	approach     string
	rewrittenSQL string
	validation   types.ValidationResult
	timing       *types.TimingResult
}

// validateAndBenchmark wires candidate.ValidateFunc to validate on the
// sample store, then (only if PASS) benchmark on the full store and
// decide "success" by whether measured speedup met the target — the
// retry/evolutionary composition: validation failures
// AND below-target speedups both drive the next retry-with-feedback
// attempt. Every attempt, pass or fail, is appended via onAttempt.
func validateAndBenchmark(req Request, approach string, onAttempt func(attemptRecord)) candidate.ValidateFunc {
	return func(ctx context.Context, sql string) (*types.ValidationResult, error) {
		result := validator.Validate(ctx, req.SampleHandle, req.Query, sql, validateTimeout(req))
		if result.Status != types.ValidationPass {
			onAttempt(attemptRecord{approach: approach, rewrittenSQL: sql, validation: result})
			return &result, nil
		}

		timing, err := bench.Benchmark(ctx, req.FullHandle, req.Query, sql, req.Protocol, benchmarkTimeout(req))
		if err != nil {
			failed := types.ValidationResult{Status: types.ValidationExecFail, Error: fmt.Sprintf("benchmark: %v", err)}
			onAttempt(attemptRecord{approach: approach, rewrittenSQL: sql, validation: failed})
			return &failed, nil
		}

		onAttempt(attemptRecord{approach: approach, rewrittenSQL: sql, validation: result, timing: &timing})

		if timing.Speedup < req.TargetSpeedup {
			// Below-target speedup is reported to candidate.Generate as a
			// validation failure so its retry-with-feedback loop continues.
			belowTarget := types.ValidationResult{
				Status: types.ValidationChecksumMismatch, // reuse as "rejected, try again" sentinel
				Error:  fmt.Sprintf("speedup %.2fx below target %.2fx", timing.Speedup, req.TargetSpeedup),
			}
			return &belowTarget, nil
		}
		return &result, nil
	}
}

func benchmarkTimeout(req Request) time.Duration {
	if req.BenchmarkTimeout > 0 {
		return req.BenchmarkTimeout
	}
	return 30 * time.Second
}

func buildEntry(req Request, workerID, approach, rewrittenSQL string, validation types.ValidationResult, timing *types.TimingResult, cancelled bool) types.BlackboardEntry {
	var outcome types.BenchOutcome
	if timing != nil {
		outcome = types.BenchOutcome{
			Status:      timing.Status,
			Speedup:     timing.Speedup,
			SpeedupType: timing.Protocol,
			OriginalMS:  timing.OriginalMeanMS,
			OptimizedMS: timing.RewriteMeanMS,
			Validation: types.Validation{
				Status:      string(validation.Status),
				RowsMatch:   validation.RowsMatch,
				ValuesMatch: validation.ValuesMatch,
			},
		}
	} else {
		outcome = types.BenchOutcome{
			Status: types.StatusError,
			Validation: types.Validation{
				Status:      string(validation.Status),
				RowsMatch:   validation.RowsMatch,
				ValuesMatch: validation.ValuesMatch,
			},
		}
	}
	if cancelled {
		// An outstanding worker signalled to stop mid-attempt (or, in
		// parallel mode, a valid candidate left unbenchmarked after an
		// earlier one met the target): keep whatever partial
		// validation/timing it already gathered, but mark the outcome
		// distinguishably rather than banding it as a normal result.
		outcome.Status = types.StatusCancelled
	}

	return types.BlackboardEntry{
		ID: fmt.Sprintf("%s-%s-%d", req.QueryID, workerID, time.Now().UnixNano()),
		Base: types.Base{
			QueryID:     req.QueryID,
			Engine:      req.Engine,
			Benchmark:   req.Benchmark,
			OriginalSQL: req.Query,
		},
		Opt: types.Opt{
			Approach:       approach,
			WorkerID:       workerID,
			OptimizedSQL:   rewrittenSQL,
			ProfileVersion: req.ProfileVersion,
		},
		Outcome:    outcome,
		Provenance: "driver." + approach,
		Version:    types.Version{SchemaVersion: types.SchemaVersion},
	}
}

func runRetry(ctx context.Context, req Request) ([]types.BlackboardEntry, error) {
	var entries []types.BlackboardEntry
	onAttempt := func(a attemptRecord) {
		entry := buildEntry(req, "worker-0", "retry", a.rewrittenSQL, a.validation, a.timing, false)
		entries = append(entries, entry)
		if req.BlackboardPath != "" {
			_ = blackboard.Append(req.BlackboardPath, entry)
		}
	}

	candidates, err := candidate.Generate(ctx, candidate.Request{
		Query:       req.Query,
		Features:    req.Features,
		Gaps:        req.Gaps,
		Examples:    req.Examples,
		ProfileMD:   req.ProfileMD,
		Mode:        candidate.ModeRetry,
		RetryBudget: req.RetryBudget,
		Client:      req.Client,
		Validate:    validateAndBenchmark(req, "retry", onAttempt),
	})
	if err != nil {
		return entries, err
	}

	// A worker that was signalled to stop mid-attempt returns before its
	// loop ever reaches Validate, so onAttempt never fires for it; record
	// its cancellation explicitly so the stopped worker is still visible.
	if len(candidates) == 1 && candidates[0].Cancelled {
		entry := buildEntry(req, "worker-0", "retry", candidates[0].RewrittenSQL, validationOrEmpty(candidates[0]), nil, true)
		entries = append(entries, entry)
		if req.BlackboardPath != "" {
			_ = blackboard.Append(req.BlackboardPath, entry)
		}
	}
	return entries, nil
}

func runParallel(ctx context.Context, req Request) ([]types.BlackboardEntry, error) {
	candidates, err := candidate.Generate(ctx, candidate.Request{
		Query:       req.Query,
		Features:    req.Features,
		Gaps:        req.Gaps,
		Examples:    req.Examples,
		ProfileMD:   req.ProfileMD,
		Mode:        candidate.ModeParallel,
		Workers:     req.Workers,
		RetryBudget: req.RetryBudget,
		Client:      req.Client,
		Validate:    validateOnly(req),
	})
	if err != nil {
		return nil, err
	}

	var entries []types.BlackboardEntry
	targetMet := false
	for _, c := range candidates {
		if c.Cancelled {
			entry := buildEntry(req, c.WorkerID, "parallel", c.RewrittenSQL, validationOrEmpty(c), nil, true)
			entries = append(entries, entry)
			if req.BlackboardPath != "" {
				_ = blackboard.Append(req.BlackboardPath, entry)
			}
			continue
		}
		if c.Validation == nil || c.Validation.Status != types.ValidationPass || c.RewrittenSQL == "" {
			entry := buildEntry(req, c.WorkerID, "parallel", c.RewrittenSQL, validationOrEmpty(c), nil, false)
			entries = append(entries, entry)
			if req.BlackboardPath != "" {
				_ = blackboard.Append(req.BlackboardPath, entry)
			}
			continue
		}

		if targetMet {
			// An earlier candidate already met the target: record this one
			// as cancelled, without benchmarking it.
			entry := buildEntry(req, c.WorkerID, "parallel", c.RewrittenSQL, *c.Validation, nil, true)
			entries = append(entries, entry)
			if req.BlackboardPath != "" {
				_ = blackboard.Append(req.BlackboardPath, entry)
			}
			continue
		}

		timing, err := bench.Benchmark(ctx, req.FullHandle, req.Query, c.RewrittenSQL, req.Protocol, benchmarkTimeout(req))
		var entry types.BlackboardEntry
		if err != nil {
			entry = buildEntry(req, c.WorkerID, "parallel", c.RewrittenSQL, *c.Validation, nil, false)
		} else {
			entry = buildEntry(req, c.WorkerID, "parallel", c.RewrittenSQL, *c.Validation, &timing, false)
		}
		entries = append(entries, entry)
		if req.BlackboardPath != "" {
			_ = blackboard.Append(req.BlackboardPath, entry)
		}

		if err == nil && timing.Speedup >= req.TargetSpeedup && !req.BenchmarkAll {
			targetMet = true
		}
	}
	return entries, nil
}

func validationOrEmpty(c types.Candidate) types.ValidationResult {
	if c.Validation != nil {
		return *c.Validation
	}
	return types.ValidationResult{Status: types.ValidationExecFail, Error: "no candidate produced"}
}

func runEvolutionary(ctx context.Context, req Request) ([]types.BlackboardEntry, error) {
	rounds := req.Rounds
	if rounds <= 0 {
		rounds = 1
	}
	epsilon := req.Epsilon

	var entries []types.BlackboardEntry
	currentQuery := req.Query
	var lastSpeedup float64

	for round := 0; round < rounds; round++ {
		if ctx.Err() != nil {
			break
		}
		workerID := fmt.Sprintf("round-%d", round)
		var roundTiming *types.TimingResult
		var roundSQL string

		var roundRecorded bool
		onAttempt := func(a attemptRecord) {
			entry := buildEntry(req, workerID, "evolutionary", a.rewrittenSQL, a.validation, a.timing, false)
			entries = append(entries, entry)
			roundRecorded = true
			if req.BlackboardPath != "" {
				_ = blackboard.Append(req.BlackboardPath, entry)
			}
			if a.timing != nil {
				roundTiming = a.timing
				roundSQL = a.rewrittenSQL
			}
		}

		roundCandidates, err := candidate.Generate(ctx, candidate.Request{
			Query:       currentQuery,
			Features:    req.Features,
			Gaps:        req.Gaps,
			Examples:    req.Examples,
			ProfileMD:   req.ProfileMD,
			Mode:        candidate.ModeRetry,
			RetryBudget: req.RetryBudget,
			Client:      req.Client,
			Validate:    validateAndBenchmark(req, "evolutionary", onAttempt),
		})
		if err != nil {
			return entries, err
		}

		// As in retry mode, a round stopped mid-attempt never reaches
		// Validate, so onAttempt never ran for it; record the cancellation
		// explicitly, then stop iterating further rounds.
		if len(roundCandidates) == 1 && roundCandidates[0].Cancelled && !roundRecorded {
			entry := buildEntry(req, workerID, "evolutionary", roundCandidates[0].RewrittenSQL, validationOrEmpty(roundCandidates[0]), nil, true)
			entries = append(entries, entry)
			if req.BlackboardPath != "" {
				_ = blackboard.Append(req.BlackboardPath, entry)
			}
			break
		}

		if roundTiming == nil {
			break // round produced no validated, benchmarked candidate
		}
		if round > 0 && (roundTiming.Speedup-lastSpeedup) < epsilon {
			break
		}
		lastSpeedup = roundTiming.Speedup
		currentQuery = roundSQL
	}
	return entries, nil
}
