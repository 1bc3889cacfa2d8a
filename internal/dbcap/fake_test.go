package dbcap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeHandleReturnsScriptedResult(t *testing.T) {
	h := NewFakeHandle()
	h.Results["SELECT 1"] = ExecResult{Rows: []Row{{int64(1)}}, RowCount: 1}

	res, err := h.Execute(context.Background(), "SELECT 1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowCount)
}

func TestFakeHandleReturnsScriptedError(t *testing.T) {
	h := NewFakeHandle()
	wantErr := errors.New("syntax error")
	h.Errors["BAD SQL"] = wantErr

	_, err := h.Execute(context.Background(), "BAD SQL", time.Second)
	assert.ErrorIs(t, err, wantErr)
}

func TestFakeHandleRecordsCalls(t *testing.T) {
	h := NewFakeHandle()
	_, _ = h.Execute(context.Background(), "SELECT 1", time.Second)
	_, _ = h.Execute(context.Background(), "SELECT 2", time.Second)
	assert.Equal(t, []string{"SELECT 1", "SELECT 2"}, h.Calls)
}

func TestFakeHandleCostAndExplainDefaultZeroValue(t *testing.T) {
	h := NewFakeHandle()
	cost, err := h.Cost(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, float64(0), cost)

	plan, err := h.Explain(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, "", plan)
}
