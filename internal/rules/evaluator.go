// Package rules implements the predicate evaluator: authored
// DetectionRule predicate trees evaluated against a query's
// FeatureVector to produce triggered gaps with confidence.
package rules

import (
	"fmt"

	"github.com/JKR8/querytorque-v8-sub011/internal/types"
)

// Evaluate runs every rule against fv and returns the gaps it triggers.
// Evaluation is deterministic and order-independent within ALL/ANY
// predicates: child order never changes the boolean result.
func Evaluate(ruleSet []types.DetectionRule, fv types.FeatureVector) ([]types.TriggeredGap, error) {
	var triggered []types.TriggeredGap
	for _, rule := range ruleSet {
		gap, ok, err := evaluateRule(rule, fv)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		if ok {
			triggered = append(triggered, gap)
		}
	}
	return triggered, nil
}

// evaluateRule implements the single-rule semantics: if
// skip matches, drop the rule; else match must hold; confidence is high
// if high_when matches, else low if low_when matches, else medium.
func evaluateRule(rule types.DetectionRule, fv types.FeatureVector) (types.TriggeredGap, bool, error) {
	if rule.Detect.Skip != nil {
		skip, err := evalNode(*rule.Detect.Skip, fv)
		if err != nil {
			return types.TriggeredGap{}, false, err
		}
		if skip {
			return types.TriggeredGap{}, false, nil
		}
	}

	if rule.Detect.Match == nil {
		// Load-time validation should have already rejected this, but
		// evaluate() stays defensive: a rule with no match block never
		// triggers.
		return types.TriggeredGap{}, false, nil
	}
	matched, err := evalNode(*rule.Detect.Match, fv)
	if err != nil {
		return types.TriggeredGap{}, false, err
	}
	if !matched {
		return types.TriggeredGap{}, false, nil
	}

	confidence := types.ConfidenceMedium
	if rule.Detect.Confidence != nil {
		if rule.Detect.Confidence.HighWhen != nil {
			high, err := evalNode(*rule.Detect.Confidence.HighWhen, fv)
			if err != nil {
				return types.TriggeredGap{}, false, err
			}
			if high {
				confidence = types.ConfidenceHigh
			}
		}
		if confidence == types.ConfidenceMedium && rule.Detect.Confidence.LowWhen != nil {
			low, err := evalNode(*rule.Detect.Confidence.LowWhen, fv)
			if err != nil {
				return types.TriggeredGap{}, false, err
			}
			if low {
				confidence = types.ConfidenceLow
			}
		}
	}

	return types.TriggeredGap{
		GapID:      rule.ID,
		Confidence: confidence,
		Priority:   rule.Priority,
	}, true, nil
}

// evalNode evaluates a predicate tree. ALL is AND, ANY is OR, a leaf is a
// single feature comparison. Unknown feature references evaluate false
// rather than erroring, so one missing runtime feature never aborts the
// whole rule set.
func evalNode(n types.PredicateNode, fv types.FeatureVector) (bool, error) {
	switch {
	case len(n.All) > 0:
		for _, child := range n.All {
			ok, err := evalNode(child, fv)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case len(n.Any) > 0:
		for _, child := range n.Any {
			ok, err := evalNode(child, fv)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return evalLeaf(n, fv)
	}
}

func evalLeaf(n types.PredicateNode, fv types.FeatureVector) (bool, error) {
	val, ok := fv.Get(n.Feature)
	if !ok {
		return false, nil
	}
	return compare(val, n.Op, n.Value)
}

func compare(actual any, op types.ComparisonOp, want any) (bool, error) {
	if op == types.OpIn {
		list, ok := want.([]any)
		if !ok {
			return false, fmt.Errorf("in operator requires a list value, got %T", want)
		}
		for _, item := range list {
			if eq, _ := compare(actual, types.OpEq, item); eq {
				return true, nil
			}
		}
		return false, nil
	}

	switch a := actual.(type) {
	case bool:
		b, ok := asBool(want)
		if !ok {
			return false, fmt.Errorf("cannot compare bool feature to %T", want)
		}
		switch op {
		case types.OpEq:
			return a == b, nil
		case types.OpNe:
			return a != b, nil
		default:
			return false, fmt.Errorf("operator %s not valid for bool feature", op)
		}
	case string:
		b, ok := want.(string)
		if !ok {
			return false, fmt.Errorf("cannot compare enum feature to %T", want)
		}
		switch op {
		case types.OpEq:
			return a == b, nil
		case types.OpNe:
			return a != b, nil
		default:
			return false, fmt.Errorf("operator %s not valid for enum feature", op)
		}
	case int:
		b, ok := asFloat(want)
		if !ok {
			return false, fmt.Errorf("cannot compare int feature to %T", want)
		}
		return numericCompare(float64(a), op, b)
	case float64:
		b, ok := asFloat(want)
		if !ok {
			return false, fmt.Errorf("cannot compare float feature to %T", want)
		}
		return numericCompare(a, op, b)
	default:
		return false, fmt.Errorf("unsupported feature value type %T", actual)
	}
}

func numericCompare(a float64, op types.ComparisonOp, b float64) (bool, error) {
	switch op {
	case types.OpEq:
		return a == b, nil
	case types.OpNe:
		return a != b, nil
	case types.OpGe:
		return a >= b, nil
	case types.OpLe:
		return a <= b, nil
	case types.OpGt:
		return a > b, nil
	case types.OpLt:
		return a < b, nil
	default:
		return false, fmt.Errorf("unsupported numeric operator %s", op)
	}
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
