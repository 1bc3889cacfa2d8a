package corpus

import (
	"fmt"
	"reflect"

	"github.com/JKR8/querytorque-v8-sub011/internal/rules"
	"github.com/JKR8/querytorque-v8-sub011/internal/sqlfeatures"
	"github.com/JKR8/querytorque-v8-sub011/internal/types"
)

// Index extracts features for a new gold example and runs the rule
// evaluator against the current engine profile's detection rules to
// populate demonstrates_gaps. At query time, scoring only ever touches
// the precomputed fields this produces.
func Index(e types.GoldExample, ruleSet []types.DetectionRule) (types.GoldExample, error) {
	fv, err := sqlfeatures.Extract(e.OriginalSQL, e.Dialect)
	if err != nil {
		return e, fmt.Errorf("corpus.Index: %w", err)
	}
	e.PrecomputedFeatures = fv

	gaps, err := rules.Evaluate(ruleSet, fv)
	if err != nil {
		return e, fmt.Errorf("corpus.Index: %w", err)
	}
	ids := make([]string, 0, len(gaps))
	for _, g := range gaps {
		ids = append(ids, g.GapID)
	}
	e.DemonstratesGaps = ids
	return e, nil
}

// Validate checks that demonstrates_gaps references only valid rule ids
// and that precomputed_features is present.
func Validate(e types.GoldExample, knownRuleIDs map[string]struct{}) []error {
	var errs []error
	if e.ID == "" {
		errs = append(errs, fmt.Errorf("example has no id"))
	}
	if e.OriginalSQL == "" || e.RewrittenSQL == "" {
		errs = append(errs, fmt.Errorf("example %s: original_sql and rewritten_sql are required", e.ID))
	}
	if e.Explanation.What == "" || e.Explanation.Why == "" || e.Explanation.When == "" || e.Explanation.WhenNot == "" {
		errs = append(errs, fmt.Errorf("example %s: explanation requires what/why/when/when_not", e.ID))
	}
	if reflect.DeepEqual(e.PrecomputedFeatures, types.FeatureVector{}) {
		errs = append(errs, fmt.Errorf("example %s: precomputed_features is required", e.ID))
	}
	for _, gap := range e.DemonstratesGaps {
		if _, ok := knownRuleIDs[gap]; !ok {
			errs = append(errs, fmt.Errorf("example %s: demonstrates_gaps references unknown rule %q", e.ID, gap))
		}
	}
	return errs
}
