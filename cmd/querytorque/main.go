// Command querytorque is the CLI surface: optimize a
// single query file against an engine profile and example corpus, or
// validate the human-authored artifacts (engine profile, gold examples,
// detection rules) that back a dialect. Root-command-plus-named-
// subcommands wiring follows cmd/bd/main.go's shape: one rootCmd with
// persistent flags, each subcommand its own file, global state kept on
// package-level vars rather than threaded through every function.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JKR8/querytorque-v8-sub011/internal/config"
)

var (
	rootDir  string
	dialect  string
	cfg      config.Config
)

var rootCmd = &cobra.Command{
	Use:   "querytorque",
	Short: "querytorque - LLM-driven SQL query optimizer",
	Long: `querytorque synthesizes, validates, and benchmarks SQL rewrites
against a human-authored engine profile, recording every attempt to an
append-only blackboard for later profile derivation.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(os.Getenv("QUERYTORQUE_CONFIG"))
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", ".", "project root containing constraints/, examples/, blackboard/")
	rootCmd.PersistentFlags().StringVar(&dialect, "dialect", "duckdb", "SQL dialect / engine name")

	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(validateProfileCmd)
	rootCmd.AddCommand(validateExampleCmd)
	rootCmd.AddCommand(validateRulesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		code := 1
		var ee exitErr
		if errors.As(err, &ee) {
			code = ee.code
		}
		os.Exit(code)
	}
}
