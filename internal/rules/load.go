package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/JKR8/querytorque-v8-sub011/internal/types"
)

// LoadDir reads every {GAP_ID}.json file under
// constraints/detection_rules/{dialect}/
// and validates each against the feature vocabulary before returning.
func LoadDir(dir string) ([]types.DetectionRule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("rules.LoadDir: %w", err)
	}

	var out []types.DetectionRule
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path) // #nosec G304 - controlled path under rules dir
		if err != nil {
			return nil, fmt.Errorf("rules.LoadDir: read %s: %w", path, err)
		}
		var rule types.DetectionRule
		if err := json.Unmarshal(data, &rule); err != nil {
			return nil, fmt.Errorf("rules.LoadDir: parse %s: %w", path, err)
		}
		if errs := Validate(rule); len(errs) > 0 {
			return nil, types.NewError(types.ErrProfileInvalid, fmt.Sprintf("rule %s", rule.ID), errs[0])
		}
		out = append(out, rule)
	}
	return out, nil
}

// Validate statically checks a rule against the feature vocabulary: every
// leaf references a known feature name, with an operator compatible with
// that feature's type, and `match` is present.
func Validate(rule types.DetectionRule) []error {
	var errs []error
	if rule.ID == "" {
		errs = append(errs, fmt.Errorf("rule has no id"))
	}
	if rule.Detect.Match == nil {
		errs = append(errs, fmt.Errorf("rule %s: detect.match is required", rule.ID))
	} else {
		errs = append(errs, validateNode(rule.ID, "match", *rule.Detect.Match)...)
	}
	if rule.Detect.Skip != nil {
		errs = append(errs, validateNode(rule.ID, "skip", *rule.Detect.Skip)...)
	}
	if rule.Detect.Confidence != nil {
		if rule.Detect.Confidence.HighWhen != nil {
			errs = append(errs, validateNode(rule.ID, "confidence.high_when", *rule.Detect.Confidence.HighWhen)...)
		}
		if rule.Detect.Confidence.LowWhen != nil {
			errs = append(errs, validateNode(rule.ID, "confidence.low_when", *rule.Detect.Confidence.LowWhen)...)
		}
	}
	return errs
}

func validateNode(ruleID, path string, n types.PredicateNode) []error {
	var errs []error
	switch {
	case len(n.All) > 0:
		for i, child := range n.All {
			errs = append(errs, validateNode(ruleID, fmt.Sprintf("%s.ALL[%d]", path, i), child)...)
		}
	case len(n.Any) > 0:
		for i, child := range n.Any {
			errs = append(errs, validateNode(ruleID, fmt.Sprintf("%s.ANY[%d]", path, i), child)...)
		}
	default:
		errs = append(errs, validateLeaf(ruleID, path, n)...)
	}
	return errs
}

func validateLeaf(ruleID, path string, n types.PredicateNode) []error {
	var errs []error
	kind, known := types.Vocabulary[n.Feature]
	if !known {
		errs = append(errs, fmt.Errorf("rule %s: %s: unknown feature %q", ruleID, path, n.Feature))
		return errs
	}

	switch kind {
	case types.KindBool:
		if n.Op != types.OpEq && n.Op != types.OpNe {
			errs = append(errs, fmt.Errorf("rule %s: %s: operator %s not valid for bool feature %q", ruleID, path, n.Op, n.Feature))
		}
	case types.KindEnum:
		if n.Op != types.OpEq && n.Op != types.OpNe && n.Op != types.OpIn {
			errs = append(errs, fmt.Errorf("rule %s: %s: operator %s not valid for enum feature %q", ruleID, path, n.Op, n.Feature))
		}
		if n.Op != types.OpIn {
			if s, ok := n.Value.(string); ok {
				if !isValidEnumValue(n.Feature, s) {
					errs = append(errs, fmt.Errorf("rule %s: %s: %q is not a valid value for %q", ruleID, path, s, n.Feature))
				}
			}
		}
	case types.KindInt, types.KindFloat:
		if n.Op == types.OpIn {
			if _, ok := n.Value.([]any); !ok {
				errs = append(errs, fmt.Errorf("rule %s: %s: in operator requires a list value for %q", ruleID, path, n.Feature))
			}
		}
	}

	if n.Op == types.OpIn {
		if _, ok := n.Value.([]any); !ok {
			errs = append(errs, fmt.Errorf("rule %s: %s: in operator requires a list value", ruleID, path))
		}
	}

	return errs
}

func isValidEnumValue(feature, value string) bool {
	for _, v := range types.EnumValues[feature] {
		if v == value {
			return true
		}
	}
	return false
}
