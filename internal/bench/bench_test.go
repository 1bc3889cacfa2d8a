package bench

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JKR8/querytorque-v8-sub011/internal/dbcap"
	"github.com/JKR8/querytorque-v8-sub011/internal/types"
)

// timedHandle is a dbcap.Handle whose Execute returns a fixed TimingMS per
// sql text, independent of FakeHandle's static-result map (bench only
// cares about timing, not row contents).
type timedHandle struct {
	*dbcap.FakeHandle
	timingMS map[string]float64
	calls    int
}

func newTimedHandle(timing map[string]float64) *timedHandle {
	return &timedHandle{FakeHandle: dbcap.NewFakeHandle(), timingMS: timing}
}

func (h *timedHandle) Execute(ctx context.Context, sql string, timeout time.Duration) (dbcap.ExecResult, error) {
	h.calls++
	return dbcap.ExecResult{TimingMS: h.timingMS[sql]}, nil
}

func TestThreeRunComputesSpeedupFromMeasuredRuns(t *testing.T) {
	h := newTimedHandle(map[string]float64{
		"SELECT slow": 100,
		"SELECT fast": 50,
	})
	result, err := Benchmark(context.Background(), h, "SELECT slow", "SELECT fast", ProtocolThreeRun, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 100.0, result.OriginalMeanMS)
	assert.Equal(t, 50.0, result.RewriteMeanMS)
	assert.InDelta(t, 2.0, result.Speedup, 1e-9)
	assert.Equal(t, types.StatusWin, result.Status)
	// 1 warmup + 2 measured per query = 6 total calls
	assert.Equal(t, 6, h.calls)
}

func TestTrimmed5DiscardsMinAndMax(t *testing.T) {
	// timingMS is constant per sql, so min/max/mid are all equal; this
	// exercises the trim path without needing per-call variance.
	h := newTimedHandle(map[string]float64{
		"SELECT slow": 100,
		"SELECT fast": 25,
	})
	result, err := Benchmark(context.Background(), h, "SELECT slow", "SELECT fast", ProtocolTrimmed5, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 100.0, result.OriginalMeanMS)
	assert.Equal(t, 25.0, result.RewriteMeanMS)
	assert.Equal(t, 10, h.calls) // 5 runs each
}

func TestInterleaved1122AlternatesWarmupAndMeasured(t *testing.T) {
	h := newTimedHandle(map[string]float64{
		"SELECT slow": 100,
		"SELECT fast": 80,
	})
	result, err := Benchmark(context.Background(), h, "SELECT slow", "SELECT fast", ProtocolInterleaved1122, time.Second)
	require.NoError(t, err)
	assert.Equal(t, string(ProtocolInterleaved1122), result.Protocol)
	assert.Equal(t, 6, h.calls) // 1 warmup + 2 measured per query
}

func TestSpeedupOfFallsBackToCeilingWhenRewriteMeanZero(t *testing.T) {
	assert.Equal(t, types.SpeedupCeiling, speedupOf(100, 0))
}

func TestStatusBandingThresholds(t *testing.T) {
	cases := []struct {
		speedup float64
		want    types.Status
	}{
		{1.50, types.StatusWin},
		{1.10, types.StatusWin},
		{1.07, types.StatusImproved},
		{1.00, types.StatusNeutral},
		{0.95, types.StatusNeutral},
		{0.80, types.StatusRegression},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, types.StatusForSpeedup(c.speedup), "speedup=%v", c.speedup)
	}
}

func TestBenchmarkUnknownProtocolErrors(t *testing.T) {
	h := newTimedHandle(nil)
	_, err := Benchmark(context.Background(), h, "a", "b", Protocol("bogus"), time.Second)
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrBenchmarkError, kind)
}
