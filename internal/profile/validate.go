package profile

import (
	"fmt"

	"github.com/JKR8/querytorque-v8-sub011/internal/types"
)

// Validate checks the structural invariants: header
// has engine, version, benchmark source; every gap block has
// What/Why/Hunt/Won/Lost/Rules; every gap has >=1 diagnostic rule and
// >=1 safety rule. knownRuleIDs is the set of DetectionRule ids loaded
// from disk for this dialect.
func Validate(p types.EngineProfile, knownRuleIDs map[string]struct{}, optedOut map[string]struct{}) []types.ValidationError {
	var errs []types.ValidationError

	if p.Engine == "" {
		errs = append(errs, types.ValidationError{Path: "header", Reason: "missing engine"})
	}
	if p.Version == "" {
		errs = append(errs, types.ValidationError{Path: "header", Reason: "missing version"})
	}
	if p.BenchmarkSource == "" {
		errs = append(errs, types.ValidationError{Path: "header", Reason: "missing benchmark source"})
	}

	for _, gap := range p.Gaps {
		path := fmt.Sprintf("gaps.%s", gap.ID)
		if gap.What == "" {
			errs = append(errs, types.ValidationError{Path: path, Reason: "missing What"})
		}
		if gap.Why == "" {
			errs = append(errs, types.ValidationError{Path: path, Reason: "missing Why"})
		}
		if gap.Hunt == "" {
			errs = append(errs, types.ValidationError{Path: path, Reason: "missing Hunt"})
		}
		if len(gap.Won) == 0 {
			errs = append(errs, types.ValidationError{Path: path, Reason: "missing Won"})
		}
		if len(gap.Lost) == 0 {
			errs = append(errs, types.ValidationError{Path: path, Reason: "missing Lost"})
		}
		if len(gap.Rules) == 0 {
			errs = append(errs, types.ValidationError{Path: path, Reason: "no Rules entry (every gap needs >=1 diagnostic and >=1 safety rule)"})
		} else if len(gap.Rules) < 2 {
			errs = append(errs, types.ValidationError{Path: path, Reason: "needs at least one diagnostic rule and one safety rule (>=2 Rules entries)"})
		}

		if _, optedOutOK := optedOut[gap.ID]; !optedOutOK {
			found := false
			for _, r := range gap.Rules {
				if _, ok := knownRuleIDs[r]; ok {
					found = true
					break
				}
			}
			if _, ok := knownRuleIDs[gap.ID]; ok {
				found = true
			}
			if !found {
				errs = append(errs, types.ValidationError{
					Path:   path,
					Reason: "gap id does not appear in any loaded DetectionRule file and is not explicitly opted out",
				})
			}
		}
	}

	for _, s := range p.Strengths {
		if s.Summary == "" {
			errs = append(errs, types.ValidationError{Path: fmt.Sprintf("strengths.%s", s.ID), Reason: "missing Summary"})
		}
	}

	return errs
}
