package driver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JKR8/querytorque-v8-sub011/internal/bench"
	"github.com/JKR8/querytorque-v8-sub011/internal/dbcap"
	"github.com/JKR8/querytorque-v8-sub011/internal/llm"
	"github.com/JKR8/querytorque-v8-sub011/internal/types"
)

const origSQL = "SELECT a, b FROM t"

func matchingRows() []dbcap.Row {
	return []dbcap.Row{{1, "x"}, {2, "y"}}
}

func sampleHandleWith(t *testing.T, rewriteSQL string) *dbcap.FakeHandle {
	t.Helper()
	h := dbcap.NewFakeHandle()
	h.Results[origSQL] = dbcap.ExecResult{Rows: matchingRows(), RowCount: 2}
	h.Results[rewriteSQL] = dbcap.ExecResult{Rows: matchingRows(), RowCount: 2}
	return h
}

func fullHandleWithTimings(origMS, rewriteMS float64, rewriteSQL string) *dbcap.FakeHandle {
	h := dbcap.NewFakeHandle()
	h.Results[origSQL] = dbcap.ExecResult{RowCount: 2, TimingMS: origMS}
	h.Results[rewriteSQL] = dbcap.ExecResult{RowCount: 2, TimingMS: rewriteMS}
	return h
}

func sqlTurn(sql string) llm.FakeTurn {
	return llm.FakeTurn{Response: llm.Response{Text: "```sql\n" + sql + "\n```"}}
}

func TestRunRetrySucceedsOnFirstPassAboveTarget(t *testing.T) {
	rewrite := "SELECT a, b FROM t WHERE 1=1"
	client := llm.NewFakeClient(sqlTurn(rewrite))

	entries, err := Run(context.Background(), Request{
		QueryID:       "q1",
		Query:         origSQL,
		Mode:          ModeRetry,
		RetryBudget:   2,
		TargetSpeedup: 1.10,
		Protocol:      bench.ProtocolThreeRun,
		Client:        client,
		SampleHandle:  sampleHandleWith(t, rewrite),
		FullHandle:    fullHandleWithTimings(100, 50, rewrite),
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, types.StatusWin, entries[0].Outcome.Status)
}

func TestRunRetryKeepsOneEntryPerAttemptBelowTarget(t *testing.T) {
	rewrite := "SELECT a, b FROM t WHERE 1=1"
	client := llm.NewFakeClient(sqlTurn(rewrite), sqlTurn(rewrite), sqlTurn(rewrite))

	entries, err := Run(context.Background(), Request{
		QueryID:       "q1",
		Query:         origSQL,
		Mode:          ModeRetry,
		RetryBudget:   2, // 3 total attempts
		TargetSpeedup: 1.10,
		Protocol:      bench.ProtocolThreeRun,
		Client:        client,
		SampleHandle:  sampleHandleWith(t, rewrite),
		FullHandle:    fullHandleWithTimings(100, 98, rewrite), // ~1.02x, below target every time
	})
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	for _, e := range entries {
		assert.NotEqual(t, types.StatusWin, e.Outcome.Status)
	}
}

func TestRunRetryRecordsValidationFailureAttempt(t *testing.T) {
	client := llm.NewFakeClient(llm.FakeTurn{Response: llm.Response{Text: "not sql at all, no fence"}})

	h := dbcap.NewFakeHandle()
	h.Results[origSQL] = dbcap.ExecResult{Rows: matchingRows(), RowCount: 2}

	entries, err := Run(context.Background(), Request{
		QueryID:       "q1",
		Query:         origSQL,
		Mode:          ModeRetry,
		RetryBudget:   0,
		TargetSpeedup: 1.10,
		Protocol:      bench.ProtocolThreeRun,
		Client:        client,
		SampleHandle:  h,
		FullHandle:    dbcap.NewFakeHandle(),
	})
	require.NoError(t, err)
	assert.Empty(t, entries) // unparseable response never reaches Validate, so no attempt record
}

func TestRunParallelBenchmarksOnlyPassingCandidatesAndStopsAtTarget(t *testing.T) {
	rewriteA := "SELECT a, b FROM t WHERE 1=1"
	rewriteB := "SELECT a, b FROM t WHERE 2=2"
	client := llm.NewFakeClient(sqlTurn(rewriteA), sqlTurn(rewriteB))

	sample := dbcap.NewFakeHandle()
	sample.Results[origSQL] = dbcap.ExecResult{Rows: matchingRows(), RowCount: 2}
	sample.Results[rewriteA] = dbcap.ExecResult{Rows: matchingRows(), RowCount: 2}
	sample.Results[rewriteB] = dbcap.ExecResult{Rows: []dbcap.Row{{9, "z"}}, RowCount: 1} // fails validation

	full := dbcap.NewFakeHandle()
	full.Results[origSQL] = dbcap.ExecResult{RowCount: 2, TimingMS: 100}
	full.Results[rewriteA] = dbcap.ExecResult{RowCount: 2, TimingMS: 50}

	entries, err := Run(context.Background(), Request{
		QueryID:       "q1",
		Query:         origSQL,
		Mode:          ModeParallel,
		Workers:       2,
		TargetSpeedup: 1.10,
		Protocol:      bench.ProtocolThreeRun,
		Client:        client,
		SampleHandle:  sample,
		FullHandle:    full,
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var sawWin bool
	for _, e := range entries {
		if e.Outcome.Status == types.StatusWin {
			sawWin = true
		}
	}
	assert.True(t, sawWin)
}

func TestRunParallelBenchmarkAllDoesNotStopEarly(t *testing.T) {
	rewriteA := "SELECT a, b FROM t WHERE 1=1"
	rewriteB := "SELECT a, b FROM t WHERE 2=2"
	client := llm.NewFakeClient(sqlTurn(rewriteA), sqlTurn(rewriteB))

	sample := dbcap.NewFakeHandle()
	sample.Results[origSQL] = dbcap.ExecResult{Rows: matchingRows(), RowCount: 2}
	sample.Results[rewriteA] = dbcap.ExecResult{Rows: matchingRows(), RowCount: 2}
	sample.Results[rewriteB] = dbcap.ExecResult{Rows: matchingRows(), RowCount: 2}

	full := dbcap.NewFakeHandle()
	full.Results[origSQL] = dbcap.ExecResult{RowCount: 2, TimingMS: 100}
	full.Results[rewriteA] = dbcap.ExecResult{RowCount: 2, TimingMS: 50}
	full.Results[rewriteB] = dbcap.ExecResult{RowCount: 2, TimingMS: 40}

	entries, err := Run(context.Background(), Request{
		QueryID:       "q1",
		Query:         origSQL,
		Mode:          ModeParallel,
		Workers:       2,
		TargetSpeedup: 1.10,
		BenchmarkAll:  true,
		Protocol:      bench.ProtocolThreeRun,
		Client:        client,
		SampleHandle:  sample,
		FullHandle:    full,
	})
	require.NoError(t, err)
	assert.Len(t, entries, 2) // both workers benchmarked despite worker-0 already meeting target
}

func TestRunEvolutionaryStopsWhenImprovementBelowEpsilon(t *testing.T) {
	round0 := "SELECT a, b FROM t WHERE 1=1"
	round1 := "SELECT a, b FROM t WHERE 1=1 AND 2=2"
	client := llm.NewFakeClient(sqlTurn(round0), sqlTurn(round1), sqlTurn(round1))

	sample := dbcap.NewFakeHandle()
	sample.Results[origSQL] = dbcap.ExecResult{Rows: matchingRows(), RowCount: 2}
	sample.Results[round0] = dbcap.ExecResult{Rows: matchingRows(), RowCount: 2}
	sample.Results[round1] = dbcap.ExecResult{Rows: matchingRows(), RowCount: 2}

	full := dbcap.NewFakeHandle()
	full.Results[origSQL] = dbcap.ExecResult{RowCount: 2, TimingMS: 100}
	full.Results[round0] = dbcap.ExecResult{RowCount: 2, TimingMS: 50} // 2.0x
	full.Results[round1] = dbcap.ExecResult{RowCount: 2, TimingMS: 49} // ~2.04x, improvement < epsilon

	entries, err := Run(context.Background(), Request{
		QueryID:       "q1",
		Query:         origSQL,
		Mode:          ModeEvolutionary,
		Rounds:        5,
		Epsilon:       0.5,
		TargetSpeedup: 1.10,
		Protocol:      bench.ProtocolThreeRun,
		Client:        client,
		SampleHandle:  sample,
		FullHandle:    full,
	})
	require.NoError(t, err)
	assert.Len(t, entries, 2) // round 0 then round 1, stops before round 2
}

func TestRunUnknownModeErrors(t *testing.T) {
	_, err := Run(context.Background(), Request{Mode: "bogus"})
	assert.Error(t, err)
}

func TestRunRetryRecordsCancelledEntryWhenContextAlreadyDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := llm.NewFakeClient(sqlTurn("SELECT a, b FROM t WHERE 1=1"))

	entries, err := Run(ctx, Request{
		QueryID:       "q1",
		Query:         origSQL,
		Mode:          ModeRetry,
		RetryBudget:   2,
		TargetSpeedup: 1.10,
		Protocol:      bench.ProtocolThreeRun,
		Client:        client,
		SampleHandle:  dbcap.NewFakeHandle(),
		FullHandle:    dbcap.NewFakeHandle(),
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, types.StatusCancelled, entries[0].Outcome.Status)
}

func TestRunParallelRecordsCancelledEntriesWhenContextAlreadyDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := llm.NewFakeClient(sqlTurn("SELECT a, b FROM t WHERE 1=1"), sqlTurn("SELECT a, b FROM t WHERE 2=2"))

	entries, err := Run(ctx, Request{
		QueryID:       "q1",
		Query:         origSQL,
		Mode:          ModeParallel,
		Workers:       2,
		TargetSpeedup: 1.10,
		Protocol:      bench.ProtocolThreeRun,
		Client:        client,
		SampleHandle:  dbcap.NewFakeHandle(),
		FullHandle:    dbcap.NewFakeHandle(),
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, types.StatusCancelled, e.Outcome.Status)
	}
}
