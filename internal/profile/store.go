// Package profile implements the engine profile store: loads the
// human-authored markdown engine profile, and parses it back into a
// structured types.EngineProfile for CI validation and the corpus
// indexer's scoring pass. There is no translation layer — what the human
// writes in the markdown file is exactly what gets injected into the
// prompt; the parser here only extracts a parallel structural view for
// validation, never rewrites the source text.
package profile

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JKR8/querytorque-v8-sub011/internal/types"
)

var (
	headerEngineRe  = regexp.MustCompile(`(?i)^\s*-?\s*engine:\s*(.+)$`)
	headerVersionRe = regexp.MustCompile(`(?i)^\s*-?\s*version:\s*(.+)$`)
	headerBenchRe   = regexp.MustCompile(`(?i)^\s*-?\s*benchmark source:\s*(.+)$`)
	headerDateRe    = regexp.MustCompile(`(?i)^\s*-?\s*validation date:\s*(.+)$`)
	gapHeadingRe    = regexp.MustCompile(`(?i)^##+\s*Gap:\s*([A-Z0-9_]+)\s*(?:\((HIGH|MEDIUM|LOW)\))?`)
	strengthRe      = regexp.MustCompile(`(?i)^##+\s*Strength:\s*([A-Za-z0-9_]+)\s*$`)
	fieldRe         = regexp.MustCompile(`(?i)^\s*(What|Why|Hunt|Won|Lost|Rules|Summary|Note)\s*:\s*(.*)$`)
)

// Path returns the conventional profile path for a dialect.
func Path(root, dialect string) string {
	return filepath.Join(root, "constraints", fmt.Sprintf("engine_profile_%s.md", dialect))
}

// Load reads the markdown profile for dialect and returns both the raw
// text (injected verbatim into prompts) and its parsed structure (used
// by validators and the corpus indexer).
func Load(root, dialect string) (markdown string, parsed types.EngineProfile, err error) {
	path := Path(root, dialect)
	data, err := os.ReadFile(path) // #nosec G304 - path built from trusted root+dialect
	if err != nil {
		return "", types.EngineProfile{}, fmt.Errorf("profile.Load: %w", err)
	}
	markdown = string(data)
	parsed, err = Parse(markdown)
	return markdown, parsed, err
}

// Parse extracts a types.EngineProfile from markdown text. Parsing never fails on unexpected prose; missing required
// fields simply surface later in Validate's structural-invariant checks.
func Parse(markdown string) (types.EngineProfile, error) {
	var p types.EngineProfile
	scanner := bufio.NewScanner(strings.NewReader(markdown))
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var currentGap *types.Gap
	var currentStrength *types.Strength
	var currentField string

	flushGap := func() {
		if currentGap != nil {
			p.Gaps = append(p.Gaps, *currentGap)
			currentGap = nil
		}
	}
	flushStrength := func() {
		if currentStrength != nil {
			p.Strengths = append(p.Strengths, *currentStrength)
			currentStrength = nil
		}
	}

	for scanner.Scan() {
		line := scanner.Text()

		if m := headerEngineRe.FindStringSubmatch(line); m != nil && p.Engine == "" {
			p.Engine = strings.TrimSpace(m[1])
			continue
		}
		if m := headerVersionRe.FindStringSubmatch(line); m != nil && p.Version == "" {
			p.Version = strings.TrimSpace(m[1])
			continue
		}
		if m := headerBenchRe.FindStringSubmatch(line); m != nil {
			p.BenchmarkSource = strings.TrimSpace(m[1])
			continue
		}
		if m := headerDateRe.FindStringSubmatch(line); m != nil {
			p.ValidationDate = strings.TrimSpace(m[1])
			continue
		}

		if m := gapHeadingRe.FindStringSubmatch(line); m != nil {
			flushGap()
			flushStrength()
			currentGap = &types.Gap{ID: m[1]}
			if m[2] != "" {
				currentGap.Priority = types.Priority(strings.ToUpper(m[2]))
			}
			currentField = ""
			continue
		}
		if m := strengthRe.FindStringSubmatch(line); m != nil {
			flushGap()
			flushStrength()
			currentStrength = &types.Strength{ID: m[1]}
			currentField = ""
			continue
		}

		if m := fieldRe.FindStringSubmatch(line); m != nil {
			field := strings.ToLower(m[1])
			value := strings.TrimSpace(m[2])
			currentField = field
			applyField(currentGap, currentStrength, field, value)
			continue
		}

		// Continuation lines (list items under Won:/Lost:/Rules:) append
		// to whichever list field is currently open.
		if currentGap != nil && currentField != "" {
			if item, ok := parseListItem(line); ok {
				appendListItem(currentGap, currentField, item)
			}
		}
	}
	flushGap()
	flushStrength()

	if err := scanner.Err(); err != nil {
		return p, fmt.Errorf("profile.Parse: %w", err)
	}

	if cfg := extractConfigRulesBlock(markdown); cfg != nil {
		p.ConfigRules = cfg
	}

	return p, nil
}

func parseListItem(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "- ") {
		return strings.TrimSpace(strings.TrimPrefix(trimmed, "- ")), true
	}
	return "", false
}

func applyField(gap *types.Gap, strength *types.Strength, field, value string) {
	if gap != nil {
		switch field {
		case "what":
			gap.What = value
		case "why":
			gap.Why = value
		case "hunt":
			gap.Hunt = value
		case "won":
			if value != "" {
				gap.Won = append(gap.Won, value)
			}
		case "lost":
			if value != "" {
				gap.Lost = append(gap.Lost, value)
			}
		case "rules":
			if value != "" {
				gap.Rules = append(gap.Rules, splitCommaList(value)...)
			}
		}
		return
	}
	if strength != nil {
		switch field {
		case "summary":
			strength.Summary = value
		case "note":
			strength.Note = value
		}
	}
}

func appendListItem(gap *types.Gap, field, item string) {
	switch field {
	case "won":
		gap.Won = append(gap.Won, item)
	case "lost":
		gap.Lost = append(gap.Lost, item)
	case "rules":
		gap.Rules = append(gap.Rules, splitCommaList(item)...)
	}
}

func splitCommaList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// extractConfigRulesBlock pulls an optional fenced ```yaml config_rules```
// block out of the markdown"). Returns nil if no such block exists.
func extractConfigRulesBlock(markdown string) []types.ConfigRule {
	const fence = "```yaml config_rules"
	start := strings.Index(markdown, fence)
	if start == -1 {
		return nil
	}
	rest := markdown[start+len(fence):]
	end := strings.Index(rest, "```")
	if end == -1 {
		return nil
	}
	body := rest[:end]

	var rules []types.ConfigRule
	if err := yaml.Unmarshal([]byte(body), &rules); err != nil {
		return nil
	}
	return rules
}
