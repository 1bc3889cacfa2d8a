package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JKR8/querytorque-v8-sub011/internal/profile"
	"github.com/JKR8/querytorque-v8-sub011/internal/rules"
)

var validateProfileCmd = &cobra.Command{
	Use:   "validate-profile <dialect>",
	Short: "Check that an engine profile parses and satisfies structural invariants",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dialect := args[0]

		_, parsed, err := profile.Load(rootDir, dialect)
		if err != nil {
			return fmt.Errorf("profile did not parse: %w", err)
		}

		ruleDir := filepath.Join(rootDir, "constraints", "detection_rules", dialect)
		ruleSet, err := rules.LoadDir(ruleDir)
		if err != nil {
			return fmt.Errorf("loading detection rules for %s: %w", dialect, err)
		}
		knownRuleIDs := make(map[string]struct{}, len(ruleSet))
		for _, r := range ruleSet {
			knownRuleIDs[r.ID] = struct{}{}
		}

		if errs := profile.Validate(parsed, knownRuleIDs, map[string]struct{}{}); len(errs) > 0 {
			for _, e := range errs {
				fmt.Printf("%s: %s\n", e.Path, e.Reason)
			}
			return fmt.Errorf("profile %s failed %d structural invariant(s)", dialect, len(errs))
		}

		fmt.Printf("profile %s OK: %d gaps, %d strengths\n", dialect, len(parsed.Gaps), len(parsed.Strengths))
		return nil
	},
}
