package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JKR8/querytorque-v8-sub011/internal/rules"
)

var validateRulesCmd = &cobra.Command{
	Use:   "validate-rules <dialect>",
	Short: "Check that every detection rule references only valid features and operators",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dialect := args[0]
		dir := filepath.Join(rootDir, "constraints", "detection_rules", dialect)

		ruleSet, err := rules.LoadDir(dir)
		if err != nil {
			return fmt.Errorf("rules for %s: %w", dialect, err)
		}

		fmt.Printf("rules %s OK: %d rule(s) loaded\n", dialect, len(ruleSet))
		return nil
	},
}
