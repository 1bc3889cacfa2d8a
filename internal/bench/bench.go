// Package bench implements the benchmark runner: runs a timing protocol for the original
// and rewritten query against the full target store and reports the
// speedup and its status banding.
package bench

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/JKR8/querytorque-v8-sub011/internal/dbcap"
	"github.com/JKR8/querytorque-v8-sub011/internal/types"
)

// Protocol selects one of the three timing procedures
type Protocol string

const (
	ProtocolThreeRun          Protocol = "three_run"
	ProtocolTrimmed5          Protocol = "trimmed_5"
	ProtocolInterleaved1122   Protocol = "interleaved_1122"
)

// Status banding thresholds.
const (
	winThreshold        = 1.10
	improvedThreshold   = 1.05
	neutralLowThreshold = 0.95
)

// Benchmark runs protocol against handle for both queries and returns the
// resulting TimingResult. Runs execute sequentially.
func Benchmark(ctx context.Context, handle dbcap.Handle, original, rewrite string, protocol Protocol, timeout time.Duration) (types.TimingResult, error) {
	switch protocol {
	case ProtocolThreeRun:
		return threeRun(ctx, handle, original, rewrite, timeout)
	case ProtocolTrimmed5:
		return trimmed5(ctx, handle, original, rewrite, timeout)
	case ProtocolInterleaved1122:
		return interleaved1122(ctx, handle, original, rewrite, timeout)
	default:
		return types.TimingResult{}, types.NewError(types.ErrBenchmarkError, "bench.Benchmark",
			fmt.Errorf("unknown protocol %q", protocol))
	}
}

func runOnce(ctx context.Context, handle dbcap.Handle, sql string, timeout time.Duration) (float64, error) {
	res, err := handle.Execute(ctx, sql, timeout)
	if err != nil {
		return 0, err
	}
	return res.TimingMS, nil
}

func mean(ms []float64) float64 {
	if len(ms) == 0 {
		return 0
	}
	var sum float64
	for _, v := range ms {
		sum += v
	}
	return sum / float64(len(ms))
}

func threeRun(ctx context.Context, handle dbcap.Handle, original, rewrite string, timeout time.Duration) (types.TimingResult, error) {
	if _, err := runOnce(ctx, handle, original, timeout); err != nil { // warmup, discarded
		return types.TimingResult{}, types.NewError(types.ErrBenchmarkError, "bench.threeRun", err)
	}
	if _, err := runOnce(ctx, handle, rewrite, timeout); err != nil { // warmup, discarded
		return types.TimingResult{}, types.NewError(types.ErrBenchmarkError, "bench.threeRun", err)
	}

	var origRuns, rewriteRuns []float64
	for i := 0; i < 2; i++ {
		ms, err := runOnce(ctx, handle, original, timeout)
		if err != nil {
			return types.TimingResult{}, types.NewError(types.ErrBenchmarkError, "bench.threeRun", err)
		}
		origRuns = append(origRuns, ms)
	}
	for i := 0; i < 2; i++ {
		ms, err := runOnce(ctx, handle, rewrite, timeout)
		if err != nil {
			return types.TimingResult{}, types.NewError(types.ErrBenchmarkError, "bench.threeRun", err)
		}
		rewriteRuns = append(rewriteRuns, ms)
	}

	return finalize(string(ProtocolThreeRun), mean(origRuns), mean(rewriteRuns)), nil
}

// trimmed5 executes 5 runs, discards the min and max, and averages the
// middle three. Rejects fewer than 3 usable runs — here
// that can only happen if an execution errors, since the protocol always
// attempts 5.
func trimmed5(ctx context.Context, handle dbcap.Handle, original, rewrite string, timeout time.Duration) (types.TimingResult, error) {
	origMean, err := trimmedMeanOf(ctx, handle, original, timeout)
	if err != nil {
		return types.TimingResult{}, types.NewError(types.ErrBenchmarkError, "bench.trimmed5", err)
	}
	rewriteMean, err := trimmedMeanOf(ctx, handle, rewrite, timeout)
	if err != nil {
		return types.TimingResult{}, types.NewError(types.ErrBenchmarkError, "bench.trimmed5", err)
	}
	return finalize(string(ProtocolTrimmed5), origMean, rewriteMean), nil
}

func trimmedMeanOf(ctx context.Context, handle dbcap.Handle, sql string, timeout time.Duration) (float64, error) {
	const runs = 5
	var times []float64
	for i := 0; i < runs; i++ {
		ms, err := runOnce(ctx, handle, sql, timeout)
		if err != nil {
			return 0, err
		}
		times = append(times, ms)
	}
	if len(times) < 3 {
		return 0, fmt.Errorf("trimmed_5 requires at least 3 successful runs, got %d", len(times))
	}
	sort.Float64s(times)
	middle := times[1 : len(times)-1]
	return mean(middle), nil
}

// interleaved1122 alternates warmups and measured runs to reduce cache-
// state drift between the two queries.
func interleaved1122(ctx context.Context, handle dbcap.Handle, original, rewrite string, timeout time.Duration) (types.TimingResult, error) {
	if _, err := runOnce(ctx, handle, original, timeout); err != nil { // warmup original
		return types.TimingResult{}, types.NewError(types.ErrBenchmarkError, "bench.interleaved1122", err)
	}
	if _, err := runOnce(ctx, handle, rewrite, timeout); err != nil { // warmup rewrite
		return types.TimingResult{}, types.NewError(types.ErrBenchmarkError, "bench.interleaved1122", err)
	}

	var origRuns, rewriteRuns []float64
	for i := 0; i < 2; i++ {
		ms, err := runOnce(ctx, handle, original, timeout)
		if err != nil {
			return types.TimingResult{}, types.NewError(types.ErrBenchmarkError, "bench.interleaved1122", err)
		}
		origRuns = append(origRuns, ms)
	}
	for i := 0; i < 2; i++ {
		ms, err := runOnce(ctx, handle, rewrite, timeout)
		if err != nil {
			return types.TimingResult{}, types.NewError(types.ErrBenchmarkError, "bench.interleaved1122", err)
		}
		rewriteRuns = append(rewriteRuns, ms)
	}

	return finalize(string(ProtocolInterleaved1122), mean(origRuns), mean(rewriteRuns)), nil
}

func finalize(protocol string, origMean, rewriteMean float64) types.TimingResult {
	speedup := speedupOf(origMean, rewriteMean)
	return types.TimingResult{
		Protocol:       protocol,
		OriginalMeanMS: origMean,
		RewriteMeanMS:  rewriteMean,
		Speedup:        speedup,
		Status:         types.StatusForSpeedup(speedup),
	}
}

// speedupOf computes original_mean / rewrite_mean, falling back to
// SpeedupCeiling when rewrite_mean is zero.
func speedupOf(origMean, rewriteMean float64) float64 {
	if rewriteMean == 0 {
		return types.SpeedupCeiling
	}
	return origMean / rewriteMean
}
