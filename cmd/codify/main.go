package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/trialkit/codify/cmd/codify/commands"
	"github.com/trialkit/codify/logger"
)

var rootCmd = &cobra.Command{
	Use:   "codify",
	Short: "codify - Clinical trial eligibility codification",
	Long: `codify - Clinical trial eligibility codification.

codify fetches clinical trials from a registry, segments their
eligibility criteria into individual statements, and hands the text to
local NLP engines (cTAKES, MetaMap, a keyword tagger) that annotate it
with medical codes. Everything lands in a local SQLite store, and runs
are resumable: rerunning a search picks up stored results instead of
redoing them.

Available commands:
  run     - Execute a codification run against the registry
  trials  - Inspect stored trials and their codes
  engines - List and check configured NLP engines
  db      - Manage codify database operations
  config  - Manage codify configuration
  serve   - Start the codify HTTP server
  version - Show version information

Examples:
  codify run --condition asthma    # Codify trials for a condition
  codify run ls                    # List recorded runs
  codify trials show NCT01000001   # Show one stored trial
  codify engines check             # Verify engine manifests
  codify serve                     # Start the HTTP server`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize global logger before any command runs
		// Skip for commands whose stdout must stay parseable (like 'config show')
		if cmd.Name() != "show" {
			verbosity, _ := cmd.Flags().GetCount("verbose")
			if err := logger.InitializeAtLevel(false, logger.VerbosityToLevel(verbosity)); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
		}
		return nil
	},
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")

	// Add commands
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.TrialsCmd)
	rootCmd.AddCommand(commands.EnginesCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
