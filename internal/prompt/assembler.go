// Package prompt implements the prompt assembler: composes role,
// engine profile, triggered-gap hazard flags, the query (plus optional
// plan summary), matched gold examples, and the output schema/constraints
// into one prompt text, in the fixed order required by
package prompt

import (
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/JKR8/querytorque-v8-sub011/internal/types"
)

// DefaultBudgetTokens is the default prompt token budget.
const DefaultBudgetTokens = 18000

// profileBudgetFraction is the max share of the budget the profile alone
// may occupy before PromptOverflow is raised.
const profileBudgetFraction = 0.60

// Constraints holds the output-schema/explore-mode knobs for assembly.
type Constraints struct {
	OutputSchemaHint string // appended verbatim as the final section
	ExploreMode      bool   // true for the worker that gets no examples
}

// Request bundles everything Assemble needs.
type Request struct {
	Query        string
	PlanSummary  string // optional; empty if unavailable
	Features     types.FeatureVector
	Gaps         []types.TriggeredGap
	Examples     []types.ScoredExample
	ProfileMD    string
	Constraints  Constraints
	BudgetTokens int // 0 means DefaultBudgetTokens
}

// estimateTokens approximates token count from rune length. A true
// tokenizer is out of scope/out of pack; only requires the
// budget to be enforced, not exact tokenization.
func estimateTokens(s string) int {
	return utf8.RuneCountInString(s) / 4
}

var sections = template.Must(template.New("sections").Parse(`{{.Profile}}

# Role

You are a SQL optimization engine for {{.Engine}}. You propose
semantically equivalent rewrites of the query below that execute faster.
Never change the result set; only change how it is computed.
{{if .ExploreMode}}
You are the explore worker: no matched examples were provided. Attempt a
rewrite strategy you judge promising from the profile and hazard flags
alone.
{{end}}
# Hazard flags

{{range .Hazards}}- {{.}}
{{end}}
# Query

` + "```sql\n{{.Query}}\n```" + `
{{if .PlanSummary}}
# Plan summary

{{.PlanSummary}}
{{end}}
{{range .Examples}}
# Example: {{.ID}}

Before:
` + "```sql\n{{.Before}}\n```" + `

After:
` + "```sql\n{{.After}}\n```" + `

{{.What}}
{{end}}
# Output schema

{{.OutputSchema}}
`))

type sectionData struct {
	Profile      string
	Engine       string
	ExploreMode  bool
	Hazards      []string
	Query        string
	PlanSummary  string
	Examples     []exampleView
	OutputSchema string
}

type exampleView struct {
	ID     string
	Before string
	After  string
	What   string
}

// DefaultOutputSchema is used when Constraints.OutputSchemaHint is empty;
// it documents both accepted forms.
const DefaultOutputSchema = `Return either:
(a) a JSON object {"rewrite_sets": [{"id", "transform", "nodes": {name: sql}, ` +
	`"invariants_kept": [...], "expected_speedup": number, "risk": string}], "explanation": string}
(b) a single fenced SQL block containing the rewritten query.`

// Assemble builds the final prompt text, shedding lowest-score examples
// from the tail when over budget, and failing with PromptOverflow if the
// profile alone exceeds 60% of the budget even with zero examples.
func Assemble(req Request) (string, error) {
	budget := req.BudgetTokens
	if budget <= 0 {
		budget = DefaultBudgetTokens
	}

	profileTokens := estimateTokens(req.ProfileMD)
	if float64(profileTokens) > profileBudgetFraction*float64(budget) {
		return "", types.NewError(types.ErrPromptOverflow, "prompt.Assemble",
			fmt.Errorf("engine profile alone (%d tokens) exceeds %.0f%% of budget (%d tokens)",
				profileTokens, profileBudgetFraction*100, budget))
	}

	examples := append([]types.ScoredExample(nil), req.Examples...)

	for {
		text, err := render(req, examples)
		if err != nil {
			return "", err
		}
		if estimateTokens(text) <= budget || len(examples) == 0 {
			if estimateTokens(text) > budget {
				return "", types.NewError(types.ErrPromptOverflow, "prompt.Assemble",
					fmt.Errorf("prompt exceeds budget (%d tokens) even with zero examples", budget))
			}
			return text, nil
		}
		examples = dropLowestScore(examples)
	}
}

// dropLowestScore removes the lowest-scored example from the tail,
// since examples are dropped lowest-score-first when trimming for budget.
func dropLowestScore(examples []types.ScoredExample) []types.ScoredExample {
	if len(examples) == 0 {
		return examples
	}
	lowestIdx := 0
	for i, e := range examples {
		if e.Score <= examples[lowestIdx].Score {
			lowestIdx = i
		}
	}
	out := make([]types.ScoredExample, 0, len(examples)-1)
	out = append(out, examples[:lowestIdx]...)
	out = append(out, examples[lowestIdx+1:]...)
	return out
}

func render(req Request, examples []types.ScoredExample) (string, error) {
	hazards := hazardFlags(req.Gaps)

	views := make([]exampleView, 0, len(examples))
	for _, e := range examples {
		views = append(views, exampleView{
			ID:     e.Example.ID,
			Before: e.Example.OriginalSQL,
			After:  e.Example.RewrittenSQL,
			What:   e.Example.Explanation.What,
		})
	}

	outputSchema := req.Constraints.OutputSchemaHint
	if outputSchema == "" {
		outputSchema = DefaultOutputSchema
	}

	data := sectionData{
		Profile:      req.ProfileMD,
		Engine:       engineFromGaps(req),
		ExploreMode:  req.Constraints.ExploreMode || len(examples) == 0,
		Hazards:      hazards,
		Query:        req.Query,
		PlanSummary:  req.PlanSummary,
		Examples:     views,
		OutputSchema: outputSchema,
	}

	var b strings.Builder
	if err := sections.Execute(&b, data); err != nil {
		return "", fmt.Errorf("prompt.Assemble: render: %w", err)
	}
	return b.String(), nil
}

func engineFromGaps(req Request) string {
	// The engine name lives in the profile header, not the gap list; the
	// assembler treats it as opaque prose and leaves identification to
	// the profile text itself, falling back to a generic label here.
	return "the target engine"
}

func hazardFlags(gaps []types.TriggeredGap) []string {
	out := make([]string, 0, len(gaps))
	for _, g := range gaps {
		out = append(out, fmt.Sprintf("%s triggered (confidence: %s, priority: %s)", g.GapID, g.Confidence, g.Priority))
	}
	return out
}

// RetryFeedbackSection builds the "Previous attempts failed" appendix
// described in, enumerating prior failure reasons.
func RetryFeedbackSection(reasons []string) string {
	var b strings.Builder
	b.WriteString("\n# Previous attempts failed\n\n")
	for i, r := range reasons {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r)
	}
	return b.String()
}
