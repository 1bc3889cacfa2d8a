package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JKR8/querytorque-v8-sub011/internal/types"
)

func intFV(n int) types.FeatureVector {
	return types.FeatureVector{CorrelatedSubqueryCount: &n}
}

func TestEvaluateSimpleMatch(t *testing.T) {
	rule := types.DetectionRule{
		ID:       "CORRELATED_SUBQUERY_PARALYSIS",
		Priority: types.PriorityHigh,
		Detect: types.Detect{
			Match: &types.PredicateNode{Feature: "correlated_subquery_count", Op: types.OpGe, Value: float64(1)},
		},
	}
	gaps, err := Evaluate([]types.DetectionRule{rule}, intFV(2))
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	assert.Equal(t, "CORRELATED_SUBQUERY_PARALYSIS", gaps[0].GapID)
	assert.Equal(t, types.ConfidenceMedium, gaps[0].Confidence)
}

func TestEvaluateSkipAlwaysWins(t *testing.T) {
	rule := types.DetectionRule{
		ID: "X",
		Detect: types.Detect{
			Skip:  &types.PredicateNode{Feature: "table_count", Op: types.OpEq, Value: float64(1)},
			Match: &types.PredicateNode{Feature: "correlated_subquery_count", Op: types.OpGe, Value: float64(0)},
		},
	}
	one := 1
	zero := 0
	fv := types.FeatureVector{TableCount: &one, CorrelatedSubqueryCount: &zero}
	gaps, err := Evaluate([]types.DetectionRule{rule}, fv)
	require.NoError(t, err)
	assert.Empty(t, gaps)
}

func TestEvaluateConfidenceBands(t *testing.T) {
	rule := types.DetectionRule{
		ID: "X",
		Detect: types.Detect{
			Match: &types.PredicateNode{Feature: "correlated_subquery_count", Op: types.OpGe, Value: float64(1)},
			Confidence: &types.DetectConfidence{
				HighWhen: &types.PredicateNode{Feature: "correlated_with_aggregate", Op: types.OpGe, Value: float64(1)},
			},
		},
	}
	two, one := 2, 1
	fv := types.FeatureVector{CorrelatedSubqueryCount: &two, CorrelatedWithAggregate: &one}
	gaps, err := Evaluate([]types.DetectionRule{rule}, fv)
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	assert.Equal(t, types.ConfidenceHigh, gaps[0].Confidence)
}

func TestEvaluateUnknownFeatureIsFalse(t *testing.T) {
	rule := types.DetectionRule{
		ID: "X",
		Detect: types.Detect{
			Match: &types.PredicateNode{Feature: "correlated_subquery_count", Op: types.OpGe, Value: float64(0)},
		},
	}
	// Empty vector: correlated_subquery_count is absent, so the leaf is false.
	gaps, err := Evaluate([]types.DetectionRule{rule}, types.FeatureVector{})
	require.NoError(t, err)
	assert.Empty(t, gaps)
}

func TestEvaluateOrderIndependent(t *testing.T) {
	two := 2
	fv := types.FeatureVector{CorrelatedSubqueryCount: &two}
	a := types.PredicateNode{Feature: "correlated_subquery_count", Op: types.OpGe, Value: float64(1)}
	b := types.PredicateNode{Feature: "correlated_subquery_count", Op: types.OpLe, Value: float64(5)}

	forward := types.PredicateNode{All: []types.PredicateNode{a, b}}
	backward := types.PredicateNode{All: []types.PredicateNode{b, a}}

	r1, err1 := evalNode(forward, fv)
	r2, err2 := evalNode(backward, fv)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, r1, r2)
}

func TestValidateUnknownFeature(t *testing.T) {
	rule := types.DetectionRule{
		ID: "X",
		Detect: types.Detect{
			Match: &types.PredicateNode{Feature: "foo_feature", Op: types.OpEq, Value: "bar"},
		},
	}
	errs := Validate(rule)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), "foo_feature")
}

func TestValidateMissingMatch(t *testing.T) {
	rule := types.DetectionRule{ID: "X"}
	errs := Validate(rule)
	require.NotEmpty(t, errs)
}

func TestValidateBoolWrongOperator(t *testing.T) {
	rule := types.DetectionRule{
		ID: "X",
		Detect: types.Detect{
			Match: &types.PredicateNode{Feature: "has_having", Op: types.OpGe, Value: true},
		},
	}
	errs := Validate(rule)
	require.NotEmpty(t, errs)
}
