package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/trialkit/codify/config"
	"github.com/trialkit/codify/docstore"
	"github.com/trialkit/codify/errors"
	"github.com/trialkit/codify/logger"
	"github.com/trialkit/codify/nlp/engines"
	"github.com/trialkit/codify/pmc"
	"github.com/trialkit/codify/registry"
	"github.com/trialkit/codify/runner"
)

// RunCmd executes and inspects codification runs
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a codification run",
	Long: `Execute a codification run: search the registry, segment
eligibility criteria, codify from stored results, and hand the rest to
the configured NLP engines.

Runs are resumable. Rerunning the same search picks up stored criteria
and codes instead of redoing them; use --force to discard stored
results and start fresh. Trials left waiting on engine output are
harvested by the next run that touches them.

Examples:
  codify run --condition asthma          # Codify trials for a condition
  codify run --term "insulin pump"       # Codify trials matching a term
  codify run --condition copd --limit 20 --strict
  codify run --condition asthma --background
  codify run ls                          # List recorded runs
  codify run status run_3kT9vX2p         # Show one recorded run`,
	RunE: runRun,
}

var (
	runCondition  string
	runTerm       string
	runLimit      int
	runKeypaths   []string
	runBackground bool
	runStrict     bool
	runForce      bool
)

var runLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recorded runs",
	Long: `List recorded runs, newest first.

Every run is recorded as it narrates progress, so runs started by the
server or another process show up here too.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return runRunLs(limit)
	},
}

var runStatusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show status of a recorded run",
	Long: `Display detailed status for a recorded run:
- Search target and run options
- Latest narration (done, or where it stopped)
- Trial counts, including trials still waiting on engine output
- Timestamps (created, updated, finished)

Example:
  codify run status run_3kT9vX2p`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRunStatus(args[0])
	},
}

func init() {
	RunCmd.Flags().StringVar(&runCondition, "condition", "", "Search the registry for a condition (e.g., asthma)")
	RunCmd.Flags().StringVar(&runTerm, "term", "", "Search the registry for a free-text term")
	RunCmd.Flags().IntVar(&runLimit, "limit", 0, "Maximum trials to process (0 = config default)")
	RunCmd.Flags().StringSliceVar(&runKeypaths, "keypath", nil, "Additional trial properties to codify (repeatable)")
	RunCmd.Flags().BoolVar(&runBackground, "background", false, "Run quietly, mirroring status to a file other processes can poll")
	RunCmd.Flags().BoolVar(&runStrict, "strict", false, "Abort the run on the first engine failure")
	RunCmd.Flags().BoolVar(&runForce, "force", false, "Discard stored criteria and codes, re-codify everything")

	runLsCmd.Flags().Int("limit", 20, "Maximum number of runs to display")

	RunCmd.AddCommand(runLsCmd)
	RunCmd.AddCommand(runStatusCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if runCondition == "" && runTerm == "" {
		return errors.New("a run needs --condition or --term")
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	database, err := openDatabase("")
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	trials, err := docstore.NewStore(database, "trials")
	if err != nil {
		return err
	}

	client, err := registry.NewClient(cfg.Registry, logger.Logger)
	if err != nil {
		return err
	}

	engs, err := engines.Build(cfg.Engines.Dir, cfg.Engines.Enabled, cfg.Run.Dir)
	if err != nil {
		return err
	}
	if len(engs) == 0 {
		pterm.Warning.Println("No engines configured; codes come from stored results only")
	}

	run := runner.New(runner.NewRunID(), cfg.Run.Dir, logger.Logger)
	run.Condition = runCondition
	run.Term = runTerm
	run.Limit = runLimit
	if run.Limit == 0 {
		run.Limit = cfg.Run.Limit
	}
	run.Keypaths = runKeypaths
	if len(run.Keypaths) == 0 {
		run.Keypaths = cfg.Run.Keypaths
	}
	run.Strict = runStrict || cfg.Run.Strict
	run.DiscardCached = runForce || cfg.Run.DiscardCached
	run.InBackground = runBackground
	run.Engines = engs
	run.Trials = trials
	run.Runs = runner.NewStore(database)
	run.Registry = client
	run.Vocab = cfg.Vocab

	if cfg.PMC.Enabled {
		finder, err := pmc.NewFinder(cfg.PMC, logger.Logger)
		if err != nil {
			return err
		}
		run.Finder = finder
	}

	// Ctrl+C cancels the run so engine batches stop at the next trial.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		pterm.Warning.Println("\nInterrupted, stopping run...")
		cancel()
	}()

	if runBackground {
		if err := run.Run(ctx); err != nil {
			return err
		}
		pterm.Info.Printf("Run %s started\n", run.ID)
		pterm.Printf("  status file: %s\n", filepath.Join(cfg.Run.Dir, run.ID+".status"))
		pterm.Printf("  check on it: codify run status %s\n", run.ID)
		run.Wait()
		return summarizeRun(run)
	}

	// Foreground runs render their own narration as it happens.
	pterm.Printf("Starting %s\n", pterm.LightCyan(run.Name()))
	updates, unsubscribe := run.Subscribe()
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		for status := range updates {
			renderStatus(status)
		}
	}()

	err = run.Run(ctx)
	unsubscribe()
	<-rendered
	if err != nil {
		return err
	}
	return summarizeRun(run)
}

// renderStatus prints one narration line. The runner publishes plain
// strings and knows nothing about terminals; rendering lives here.
func renderStatus(status string) {
	switch {
	case status == runner.StatusDone:
		pterm.Success.Println("Run complete")
	case strings.HasPrefix(status, "Error") || strings.Contains(status, "failed"):
		pterm.Error.Println(status)
	case strings.HasPrefix(status, "Fetching") || strings.HasPrefix(status, "Processing ("):
		// Progress ticks stay gray so stage changes stand out.
		pterm.Printf("  %s\n", pterm.Gray(status))
	default:
		pterm.Printf("%s %s\n", pterm.LightCyan("::"), status)
	}
}

// summarizeRun reports where the run left the store: how many trials it
// touched and how many still wait on engine output.
func summarizeRun(run *runner.Runner) error {
	if run.Runs == nil {
		return nil
	}
	rec, err := run.Runs.Get(run.ID)
	if err != nil {
		// The narration already told the story; the summary is extra.
		return nil
	}

	if !rec.Done() {
		pterm.Warning.Printf("Run ended without finishing: %s\n", rec.Status)
	}
	if rec.WaitingCount > 0 {
		pterm.Info.Printf("%d of %d trials are waiting on engine output; rerun the same search to harvest\n",
			rec.WaitingCount, rec.TrialCount)
	}
	return nil
}

func runRunLs(limit int) error {
	database, err := openDatabase("")
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	runs, err := runner.NewStore(database).List(limit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	// Print table header
	fmt.Printf("%-16s %-25s %-7s %-8s %-30s %s\n", "RUN ID", "TARGET", "TRIALS", "WAITING", "STATUS", "CREATED")
	fmt.Printf("%-16s %-25s %-7s %-8s %-30s %s\n", "------", "------", "------", "-------", "------", "-------")

	for _, r := range runs {
		fmt.Printf("%-16s %-25s %-7d %-8d %-30s %s\n",
			truncate(r.ID, 16),
			truncate(r.Target(), 25),
			r.TrialCount,
			r.WaitingCount,
			truncate(r.Status, 30),
			r.CreatedAt.Format("2006-01-02 15:04"))
	}

	fmt.Printf("\nTotal: %d run(s)\n", len(runs))
	return nil
}

func runRunStatus(runID string) error {
	database, err := openDatabase("")
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	rec, err := runner.NewStore(database).Get(runID)
	if err != nil {
		return err
	}

	fmt.Printf("Run ID: %s\n", rec.ID)
	if rec.Condition != "" {
		fmt.Printf("  Condition: %s\n", rec.Condition)
	}
	if rec.Term != "" {
		fmt.Printf("  Term: %s\n", rec.Term)
	}
	fmt.Printf("  Status: %s\n", rec.Status)
	if rec.Strict {
		fmt.Printf("  Strict: true\n")
	}
	fmt.Printf("\n")

	fmt.Printf("Trials: %d\n", rec.TrialCount)
	fmt.Printf("Waiting on engines: %d\n", rec.WaitingCount)
	fmt.Printf("\n")

	fmt.Printf("Created: %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated: %s\n", rec.UpdatedAt.Format("2006-01-02 15:04:05"))
	if rec.FinishedAt != nil {
		fmt.Printf("Finished: %s\n", rec.FinishedAt.Format("2006-01-02 15:04:05"))
	}

	return nil
}
