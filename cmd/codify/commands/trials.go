package commands

import (
	"fmt"
	"os"
	"sort"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/trialkit/codify/docstore"
	"github.com/trialkit/codify/errors"
	"github.com/trialkit/codify/trial"
)

// TrialsCmd inspects stored trials
var TrialsCmd = &cobra.Command{
	Use:   "trials",
	Short: "Inspect stored trials",
	Long: `Inspect trials in the local store: what a run fetched, how their
eligibility criteria were segmented, and which codes the engines
reported for each statement.

Examples:
  codify trials ls                       # List stored trials
  codify trials show NCT01000001         # Show one trial with its codes
  codify trials filter exclusions.yaml   # Drop trials excluding on listed SNOMED codes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var trialsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored trials",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return runTrialsLs(limit)
	},
}

var trialsShowCmd = &cobra.Command{
	Use:   "show <nct-id>",
	Short: "Show one stored trial",
	Long: `Display one stored trial: title, eligibility criteria, and the
codes each engine recorded per criterion. Criteria still waiting on an
engine are marked as such.

Example:
  codify trials show NCT01000001`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrialsShow(args[0])
	},
}

var trialsFilterCmd = &cobra.Command{
	Use:   "filter <codes-file>",
	Short: "Filter stored trials by SNOMED exclusion codes",
	Long: `Partition stored trials against a YAML list of SNOMED codes. A trial
is dropped when one of its exclusion criteria carries a listed code,
ignoring negated mentions ("no history of X" does not drop on X).

The codes file is a YAML sequence:
  - "44054006"
  - "38341003"

Example:
  codify trials filter exclusions.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrialsFilter(args[0])
	},
}

func init() {
	trialsLsCmd.Flags().Int("limit", 0, "Maximum number of trials to display (0 = all)")

	TrialsCmd.AddCommand(trialsLsCmd)
	TrialsCmd.AddCommand(trialsShowCmd)
	TrialsCmd.AddCommand(trialsFilterCmd)
}

// openTrialStore opens the database and wraps the trials table.
func openTrialStore() (*docstore.Store, func() error, error) {
	database, err := openDatabase("")
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open database")
	}
	store, err := docstore.NewStore(database, "trials")
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	return store, database.Close, nil
}

func runTrialsLs(limit int) error {
	store, closeDB, err := openTrialStore()
	if err != nil {
		return err
	}
	defer closeDB()

	ids, err := store.IDs()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No trials stored")
		return nil
	}
	total := len(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	fmt.Printf("%-13s %-9s %s\n", "NCT", "CRITERIA", "TITLE")
	fmt.Printf("%-13s %-9s %s\n", "---", "--------", "-----")

	for _, nct := range ids {
		t, err := trial.FromStore(store, nct)
		if err != nil {
			pterm.Warning.Printf("Skipping %s: %v\n", nct, err)
			continue
		}
		criteria := 0
		if t.Eligibility != nil {
			criteria = len(t.Eligibility.Criteria)
		}
		fmt.Printf("%-13s %-9d %s\n", nct, criteria, truncate(t.Title(), 70))
	}

	fmt.Printf("\nTotal: %d trial(s)", total)
	if len(ids) < total {
		fmt.Printf(" (showing %d)", len(ids))
	}
	fmt.Println()
	return nil
}

func runTrialsShow(nct string) error {
	store, closeDB, err := openTrialStore()
	if err != nil {
		return err
	}
	defer closeDB()

	t, err := trial.FromStore(store, nct)
	if err != nil {
		return err
	}

	pterm.Printf("%s %s\n", pterm.LightCyan(t.NCT), t.Title())
	if t.Phase != "" {
		fmt.Printf("Phase: %s\n", t.Phase)
	}
	if t.OverallStatus != "" {
		fmt.Printf("Status: %s\n", t.OverallStatus)
	}
	if len(t.Conditions) > 0 {
		fmt.Printf("Conditions: %v\n", t.Conditions)
	}
	fmt.Println()

	fmt.Println(t.FormattedEligibility())

	if t.Eligibility == nil || len(t.Eligibility.Criteria) == 0 {
		return nil
	}

	fmt.Println()
	pterm.Printf("%s\n", pterm.LightCyan("Codes per criterion:"))
	for _, c := range t.Eligibility.Criteria {
		kind := "exclusion"
		if c.IsInclusion {
			kind = "inclusion"
		}
		fmt.Printf("\n[%s] %s\n", kind, truncate(c.Text, 90))

		if len(c.WaitingFor) > 0 {
			pterm.Printf("  %s\n", pterm.Gray(fmt.Sprintf("waiting on: %v", c.WaitingFor)))
		}
		printCodes(c)
	}
	return nil
}

// printCodes renders one criterion's recorded engine attempts, sorted
// so output is stable.
func printCodes(c *trial.Criterion) {
	engines := make([]string, 0, len(c.Codified))
	for name := range c.Codified {
		engines = append(engines, name)
	}
	sort.Strings(engines)

	for _, name := range engines {
		result := c.Codified[name]
		systems := make([]string, 0, len(result.Codes))
		for system := range result.Codes {
			systems = append(systems, system)
		}
		sort.Strings(systems)

		if len(systems) == 0 {
			fmt.Printf("  %s: no codes found\n", name)
			continue
		}
		for _, system := range systems {
			values := result.Codes.Values(system)
			if len(values) == 0 {
				continue
			}
			fmt.Printf("  %s %s: %v\n", name, system, values)
		}
	}
}

func runTrialsFilter(codesPath string) error {
	raw, err := os.ReadFile(codesPath)
	if err != nil {
		return errors.Wrapf(err, "cannot read codes file %s", codesPath)
	}
	var codes []string
	if err := yaml.Unmarshal(raw, &codes); err != nil {
		return errors.Wrapf(err, "cannot parse codes file %s", codesPath)
	}
	if len(codes) == 0 {
		return errors.Newf("codes file %s lists no codes", codesPath)
	}

	store, closeDB, err := openTrialStore()
	if err != nil {
		return err
	}
	defer closeDB()

	ids, err := store.IDs()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No trials stored")
		return nil
	}

	var kept, dropped int
	for _, nct := range ids {
		t, err := trial.FromStore(store, nct)
		if err != nil {
			pterm.Warning.Printf("Skipping %s: %v\n", nct, err)
			continue
		}
		if code, excluded := t.FilterSnomed(codes); excluded {
			dropped++
			pterm.Printf("%s %-13s excluded on %s\n", pterm.Red("-"), nct, code)
			continue
		}
		kept++
		pterm.Printf("%s %-13s %s\n", pterm.Green("+"), nct, truncate(t.Title(), 60))
	}

	fmt.Println()
	pterm.Info.Printf("%d kept, %d excluded of %d trials (%d filter codes)\n",
		kept, dropped, len(ids), len(codes))
	return nil
}
