// Package corpus implements the example corpus and scorer: ranks
// gold examples by detection-gap overlap plus archetype/size similarity.
package corpus

import (
	"sort"

	"github.com/JKR8/querytorque-v8-sub011/internal/types"
)

// DefaultTopK is the default number of examples returned by Score.
const DefaultTopK = 12

// Score ranks corpus against the query's triggered gaps and feature
// vector using the scoring function:
//
//	score = 5*|query_gaps ∩ example_gaps|
//	      + 1*[complexity match]
//	      + 1*[star-schema match]
//	      + max(0, 1 - 0.2*|Δtable_count|)
//
// Ties are broken by example id, lexicographically, so the result is
// fully deterministic.
func Score(fv types.FeatureVector, triggeredGaps []types.TriggeredGap, ex []types.GoldExample, topK int) []types.ScoredExample {
	if topK <= 0 {
		topK = DefaultTopK
	}

	gapSet := make(map[string]struct{}, len(triggeredGaps))
	for _, g := range triggeredGaps {
		gapSet[g.GapID] = struct{}{}
	}

	scored := make([]types.ScoredExample, 0, len(ex))
	for _, e := range ex {
		scored = append(scored, types.ScoredExample{
			Example: e,
			Score:   score(fv, gapSet, e),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Example.ID < scored[j].Example.ID
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

func score(fv types.FeatureVector, gapSet map[string]struct{}, e types.GoldExample) float64 {
	overlap := 0
	for _, gap := range e.DemonstratesGaps {
		if _, ok := gapSet[gap]; ok {
			overlap++
		}
	}
	s := 5 * float64(overlap)

	if fv.EstimatedComplexity != nil && e.Complexity == *fv.EstimatedComplexity {
		s += 1
	}

	if fv.IsStarSchema != nil {
		exampleStar := false
		if star, ok := e.PrecomputedFeatures.Get("is_star_schema"); ok {
			if b, ok := star.(bool); ok {
				exampleStar = b
			}
		}
		if exampleStar == *fv.IsStarSchema {
			s += 1
		}
	}

	if fv.TableCount != nil {
		if exTables, ok := e.PrecomputedFeatures.Get("table_count"); ok {
			delta := 0
			switch v := exTables.(type) {
			case int:
				delta = abs(*fv.TableCount - v)
			case float64:
				delta = abs(*fv.TableCount - int(v))
			}
			sizeTerm := 1 - 0.2*float64(delta)
			if sizeTerm > 0 {
				s += sizeTerm
			}
		}
	}

	return s
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
