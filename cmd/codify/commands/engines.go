package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/trialkit/codify/config"
	"github.com/trialkit/codify/errors"
	"github.com/trialkit/codify/nlp"
	"github.com/trialkit/codify/nlp/engines"
)

// EnginesCmd manages NLP engine discovery
var EnginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "List and check configured NLP engines",
	Long: `List and check the NLP engines discovered from manifest files.

Engines are declared as TOML manifests in the configured manifest
directory (engines.d by default). Each manifest names the engine, its
adapter kind (ctakes, metamap, tagger), an optional working directory,
and the batch command for external engines.

Examples:
  codify engines ls      # Show discovered engine manifests
  codify engines check   # Verify manifests and prepare drop directories`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var enginesLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List discovered engine manifests",
	RunE:  runEnginesLs,
}

var enginesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check engine manifests and prepare drop directories",
	Long: `Check every enabled engine: the manifest parses, its requires
constraint matches this build's adapter protocol, its command splits
into an argument vector, and its input/output directories can be
created. Exits non-zero when any engine fails.`,
	RunE: runEnginesCheck,
}

func init() {
	EnginesCmd.AddCommand(enginesLsCmd)
	EnginesCmd.AddCommand(enginesCheckCmd)
}

func runEnginesLs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	manifests, err := nlp.LoadManifests(cfg.Engines.Dir)
	if err != nil {
		return err
	}
	if len(manifests) == 0 {
		fmt.Printf("No engine manifests in %s\n", cfg.Engines.Dir)
		return nil
	}

	fmt.Printf("Adapter protocol: %s\n\n", nlp.AdapterProtocol)
	fmt.Printf("%-12s %-9s %-12s %-15s %s\n", "NAME", "KIND", "REQUIRES", "STATE", "MANIFEST")
	fmt.Printf("%-12s %-9s %-12s %-15s %s\n", "----", "----", "--------", "-----", "--------")

	enabled := make(map[string]bool, len(cfg.Engines.Enabled))
	for _, name := range cfg.Engines.Enabled {
		enabled[name] = true
	}

	for _, m := range manifests {
		state := "enabled"
		if len(cfg.Engines.Enabled) > 0 && !enabled[m.Name] {
			state = "disabled"
		}
		if err := m.CheckRequires(); err != nil {
			state = pterm.Red("incompatible")
		}

		requires := m.Requires
		if requires == "" {
			requires = "any"
		}
		fmt.Printf("%-12s %-9s %-12s %-15s %s\n",
			m.Name, m.Kind, requires, state, m.Path())
	}

	fmt.Printf("\nTotal: %d manifest(s)\n", len(manifests))
	return nil
}

func runEnginesCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	manifests, err := nlp.LoadManifests(cfg.Engines.Dir)
	if err != nil {
		return err
	}
	if len(manifests) == 0 {
		pterm.Warning.Printf("No engine manifests in %s; runs will codify from stored results only\n", cfg.Engines.Dir)
		return nil
	}

	enabled := make(map[string]bool, len(cfg.Engines.Enabled))
	for _, name := range cfg.Engines.Enabled {
		enabled[name] = true
	}

	failed := 0
	for _, m := range manifests {
		if len(cfg.Engines.Enabled) > 0 && !enabled[m.Name] {
			pterm.Printf("%s %s\n", pterm.Gray(m.Name+":"), pterm.Gray("not enabled"))
			continue
		}

		e, err := engines.FromManifest(m, cfg.Run.Dir)
		if err != nil {
			pterm.Error.Printf("%s: %v\n", m.Name, err)
			failed++
			continue
		}
		if err := e.Prepare(); err != nil {
			pterm.Error.Printf("%s: %v\n", m.Name, err)
			failed++
			continue
		}
		pterm.Success.Printf("%s ready\n", m.Name)
	}

	if failed > 0 {
		return errors.Newf("%d engine(s) failed their checks", failed)
	}
	return nil
}
