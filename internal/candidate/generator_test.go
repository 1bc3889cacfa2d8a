package candidate

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JKR8/querytorque-v8-sub011/internal/llm"
	"github.com/JKR8/querytorque-v8-sub011/internal/types"
)

func passResponse(sql string) llm.FakeTurn {
	return llm.FakeTurn{Response: llm.Response{Text: "```sql\n" + sql + "\n```"}}
}

func someExamples(n int) []types.ScoredExample {
	var out []types.ScoredExample
	for i := 0; i < n; i++ {
		out = append(out, types.ScoredExample{
			Example: types.GoldExample{ID: fmt.Sprintf("ex%d", i)},
			Score:   float64(n - i),
		})
	}
	return out
}

func TestShardExamplesLastWorkerHasNone(t *testing.T) {
	shards := shardExamples(someExamples(12), 5)
	require.Len(t, shards, 5)
	for i := 0; i < 4; i++ {
		assert.NotEmpty(t, shards[i])
	}
	assert.Empty(t, shards[4])
}

func TestShardExamplesEmptyInput(t *testing.T) {
	shards := shardExamples(nil, 3)
	require.Len(t, shards, 3)
	for _, s := range shards {
		assert.Empty(t, s)
	}
}

func TestGenerateParallelReturnsOnePerWorker(t *testing.T) {
	client := llm.NewFakeClient(
		passResponse("SELECT a FROM t"),
		passResponse("SELECT b FROM t"),
		passResponse("SELECT c FROM t"),
	)
	req := Request{
		Query:     "SELECT * FROM t",
		ProfileMD: "# Engine Profile\n- Engine: duckdb\n",
		Mode:      ModeParallel,
		Workers:   3,
		Client:    client,
	}
	candidates, err := Generate(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	assert.Equal(t, "worker-2", candidates[2].WorkerID)
	for _, c := range candidates {
		assert.NotEmpty(t, c.RewrittenSQL)
	}
}

func TestGenerateParallelLastWorkerIsExploreMode(t *testing.T) {
	client := llm.NewFakeClient(
		passResponse("SELECT a FROM t"),
		passResponse("SELECT b FROM t"),
	)
	req := Request{
		Query:    "SELECT * FROM t",
		Mode:     ModeParallel,
		Workers:  2,
		Examples: someExamples(4),
		Client:   client,
	}
	candidates, err := Generate(context.Background(), req)
	require.NoError(t, err)
	calls := client.Calls()
	require.Len(t, calls, 2)
	require.Len(t, candidates, 2)
	assert.Contains(t, candidates[1].Prompt, "explore worker")
}

func TestGenerateRetryStopsOnFirstPass(t *testing.T) {
	client := llm.NewFakeClient(passResponse("SELECT a FROM t"))
	validateCalls := 0
	req := Request{
		Query:       "SELECT * FROM t",
		Mode:        ModeRetry,
		RetryBudget: 2,
		Client:      client,
		Validate: func(ctx context.Context, sql string) (*types.ValidationResult, error) {
			validateCalls++
			return &types.ValidationResult{Status: types.ValidationPass}, nil
		},
	}
	candidates, err := Generate(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, types.ValidationPass, candidates[0].Validation.Status)
	assert.Equal(t, 1, validateCalls)
}

func TestGenerateRetryRetriesWithFeedbackOnValidationFailure(t *testing.T) {
	client := llm.NewFakeClient(
		passResponse("SELECT bad FROM t"),
		passResponse("SELECT good FROM t"),
	)
	attempt := 0
	req := Request{
		Query:       "SELECT * FROM t",
		Mode:        ModeRetry,
		RetryBudget: 2,
		Client:      client,
		Validate: func(ctx context.Context, sql string) (*types.ValidationResult, error) {
			attempt++
			if attempt == 1 {
				return &types.ValidationResult{Status: types.ValidationRowCountMismatch, Error: "rows differ"}, nil
			}
			return &types.ValidationResult{Status: types.ValidationPass}, nil
		},
	}
	candidates, err := Generate(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, types.ValidationPass, candidates[0].Validation.Status)
	assert.Equal(t, "SELECT good FROM t", candidates[0].RewrittenSQL)

	calls := client.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].User, "Previous attempts failed")
	assert.Contains(t, calls[1].User, "rows differ")
}

func TestGenerateRetryExhaustsBudgetWithoutPass(t *testing.T) {
	client := llm.NewFakeClient(
		passResponse("SELECT a FROM t"),
		passResponse("SELECT b FROM t"),
	)
	req := Request{
		Query:       "SELECT * FROM t",
		Mode:        ModeRetry,
		RetryBudget: 1,
		Client:      client,
		Validate: func(ctx context.Context, sql string) (*types.ValidationResult, error) {
			return &types.ValidationResult{Status: types.ValidationChecksumMismatch, Error: "checksum"}, nil
		},
	}
	candidates, err := Generate(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, types.ValidationChecksumMismatch, candidates[0].Validation.Status)
	assert.Len(t, client.Calls(), 2)
}

func TestGenerateEvolutionaryStacksBestRewrite(t *testing.T) {
	client := llm.NewFakeClient(
		passResponse("SELECT r1 FROM t"),
		passResponse("SELECT r2 FROM t"),
	)
	req := Request{
		Query:  "SELECT * FROM t",
		Mode:   ModeEvolutionary,
		Rounds: 2,
		Client: client,
	}
	candidates, err := Generate(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "round-0", candidates[0].WorkerID)
	assert.Equal(t, "round-1", candidates[1].WorkerID)

	calls := client.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].User, "SELECT r1 FROM t")
}

func TestGenerateEvolutionaryStopsOnError(t *testing.T) {
	client := llm.NewFakeClient(
		llm.FakeTurn{Response: llm.Response{Text: "not recognized at all"}},
		passResponse("SELECT r2 FROM t"),
	)
	req := Request{
		Query:  "SELECT * FROM t",
		Mode:   ModeEvolutionary,
		Rounds: 3,
		Client: client,
	}
	candidates, err := Generate(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Empty(t, candidates[0].RewrittenSQL)
}

func TestParseResponseJSONForm(t *testing.T) {
	raw := `{"rewrite_sets":[{"id":"rs1","transform":"project_columns","nodes":{"default":"SELECT a FROM t"},"expected_speedup":1.5}],"explanation":"narrowed projection"}`
	resp, err := ParseResponse(raw)
	require.NoError(t, err)
	require.Len(t, resp.RewriteSets, 1)
	sql, ok := PrimarySQL(resp)
	require.True(t, ok)
	assert.Equal(t, "SELECT a FROM t", sql)
}

func TestParseResponseSQLFenceForm(t *testing.T) {
	raw := "Here is the rewrite:\n```sql\nSELECT a FROM t\n```\n"
	resp, err := ParseResponse(raw)
	require.NoError(t, err)
	sql, ok := PrimarySQL(resp)
	require.True(t, ok)
	assert.Equal(t, "SELECT a FROM t", sql)
}

func TestParseResponseUnrecognizedFormatErrors(t *testing.T) {
	_, err := ParseResponse("no structured content here")
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrLLMFormat, kind)
}
