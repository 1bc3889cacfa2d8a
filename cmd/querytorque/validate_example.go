package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JKR8/querytorque-v8-sub011/internal/corpus"
	"github.com/JKR8/querytorque-v8-sub011/internal/rules"
)

var validateExampleCmd = &cobra.Command{
	Use:   "validate-example <id>",
	Short: "Check that a gold example has all required fields and references valid gap ids",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		examplesRoot := filepath.Join(rootDir, "examples")

		ex, err := corpus.FindByID(examplesRoot, id)
		if err != nil {
			return err
		}

		ruleDir := filepath.Join(rootDir, "constraints", "detection_rules", ex.Dialect)
		ruleSet, err := rules.LoadDir(ruleDir)
		if err != nil {
			return fmt.Errorf("loading detection rules for %s: %w", ex.Dialect, err)
		}
		knownRuleIDs := make(map[string]struct{}, len(ruleSet))
		for _, r := range ruleSet {
			knownRuleIDs[r.ID] = struct{}{}
		}

		if errs := corpus.Validate(ex, knownRuleIDs); len(errs) > 0 {
			for _, e := range errs {
				fmt.Println(e)
			}
			return fmt.Errorf("example %s failed %d check(s)", id, len(errs))
		}

		fmt.Printf("example %s OK\n", id)
		return nil
	},
}
