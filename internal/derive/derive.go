// Package derive implements profile-gap derivation: aggregates
// blackboard entries for one engine into a human-review report grouped
// by the gap each rewrite exploited, to guide (never automatically
// apply) profile edits. The group-then-reduce shape mirrors the
// predicate evaluator's own group-then-reduce structure, generalized
// from gap-triggering to outcome aggregation.
package derive

import (
	"sort"

	"github.com/JKR8/querytorque-v8-sub011/internal/types"
)

// TransformSummary is the median-speedup rollup for one transform type
// within a gap.
type TransformSummary struct {
	Transform     string
	Wins          int
	Neutrals      int
	Regressions   int
	MedianSpeedup float64
}

// GapSummary partitions every entry attributed to one gap into
// wins/neutrals/regressions and rolls each transform up separately.
type GapSummary struct {
	GapID       string
	Wins        []types.BlackboardEntry
	Neutrals    []types.BlackboardEntry
	Regressions []types.BlackboardEntry
	Transforms  map[string]TransformSummary
}

// DerivedSummary is Derive's output: one GapSummary per gap exploited,
// across every blackboard entry seen for engine.
type DerivedSummary struct {
	Engine string
	Gaps   map[string]GapSummary
}

// Derive aggregates entries (already filtered to one engine's blackboard
// files by the caller) into a DerivedSummary.
func Derive(engine string, entries []types.BlackboardEntry) DerivedSummary {
	byGap := map[string][]types.BlackboardEntry{}
	for _, e := range entries {
		gap := e.Principle.GapExploited
		if gap == "" {
			continue
		}
		byGap[gap] = append(byGap[gap], e)
	}

	gapSummaries := map[string]GapSummary{}
	for gap, gapEntries := range byGap {
		gapSummaries[gap] = summarizeGap(gap, gapEntries)
	}

	return DerivedSummary{Engine: engine, Gaps: gapSummaries}
}

func summarizeGap(gapID string, entries []types.BlackboardEntry) GapSummary {
	summary := GapSummary{GapID: gapID, Transforms: map[string]TransformSummary{}}
	byTransform := map[string][]types.BlackboardEntry{}

	for _, e := range entries {
		switch e.Outcome.Status {
		case types.StatusWin, types.StatusImproved:
			summary.Wins = append(summary.Wins, e)
		case types.StatusNeutral:
			summary.Neutrals = append(summary.Neutrals, e)
		case types.StatusRegression:
			summary.Regressions = append(summary.Regressions, e)
		}
		transform := e.Principle.TransformType
		byTransform[transform] = append(byTransform[transform], e)
	}

	for transform, group := range byTransform {
		summary.Transforms[transform] = summarizeTransform(transform, group)
	}
	return summary
}

func summarizeTransform(transform string, entries []types.BlackboardEntry) TransformSummary {
	ts := TransformSummary{Transform: transform}
	speedups := make([]float64, 0, len(entries))
	for _, e := range entries {
		switch e.Outcome.Status {
		case types.StatusWin, types.StatusImproved:
			ts.Wins++
		case types.StatusNeutral:
			ts.Neutrals++
		case types.StatusRegression:
			ts.Regressions++
		}
		speedups = append(speedups, e.Outcome.Speedup)
	}
	ts.MedianSpeedup = median(speedups)
	return ts
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
