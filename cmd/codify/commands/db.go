package commands

import (
	"database/sql"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/trialkit/codify/config"
	"github.com/trialkit/codify/db"
	"github.com/trialkit/codify/docstore"
	"github.com/trialkit/codify/errors"
	"github.com/trialkit/codify/logger"
)

// DbCmd manages database operations
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage codify database operations",
	Long: `Manage the codify database: statistics and schema migrations.

Examples:
  codify db stats     # Show stored trial and run counts
  codify db migrate   # Apply pending schema migrations`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	Long:  "Display database statistics: stored trials, recorded runs, and runs still waiting on engine output",
	RunE:  runDbStats,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

func init() {
	DbCmd.AddCommand(dbStatsCmd)
	DbCmd.AddCommand(dbMigrateCmd)
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
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
	trialCount, err := trials.Count()
	if err != nil {
		return err
	}

	var runCount, waitingRuns, doneRuns int
	err = database.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(CASE WHEN waiting_count > 0 THEN 1 END),
			COUNT(CASE WHEN status = 'done' THEN 1 END)
		FROM runs
	`).Scan(&runCount, &waitingRuns, &doneRuns)
	if err != nil && err != sql.ErrNoRows {
		return errors.Wrap(err, "failed to query run stats")
	}

	fmt.Printf("Database Statistics\n")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Printf("Database Path:  %s\n", cfg.GetDatabasePath())
	fmt.Printf("Stored Trials:  %d\n", trialCount)
	fmt.Println()
	fmt.Printf("Recorded Runs:  %d\n", runCount)
	fmt.Printf("  Done:         %d\n", doneRuns)
	fmt.Printf("  Waiting on engine output: %d\n", waitingRuns)

	return nil
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := db.Open(cfg.GetDatabasePath(), logger.Logger)
	if err != nil {
		return errors.Wrapf(err, "failed to open database at %s", cfg.GetDatabasePath())
	}
	defer database.Close()

	if err := db.Migrate(database, logger.Logger); err != nil {
		return errors.Wrap(err, "migration failed")
	}

	pterm.Success.Printf("Database schema is up to date (%s)\n", cfg.GetDatabasePath())
	return nil
}
