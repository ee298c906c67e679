package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/docutag/scout/analysis"
	"github.com/docutag/scout/db"
	"github.com/docutag/scout/models"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [keyword]",
	Short: "List stored analyses for a keyword, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

var forgetCmd = &cobra.Command{
	Use:   "forget [keyword]",
	Short: "Delete stored analyses so the keyword is recomputed next time",
	Args:  cobra.ExactArgs(1),
	RunE:  runForget,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runMigrate,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which migrations are applied",
	RunE:  runMigrateStatus,
}

var migrateRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll back the most recent migration",
	RunE:  runMigrateRollback,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum records to list")

	migrateCmd.AddCommand(migrateStatusCmd, migrateRollbackCmd)
	rootCmd.AddCommand(historyCmd, forgetCmd, migrateCmd)
}

// openStore opens the database only; search credentials are not needed
func openStore() (*db.DB, *analysis.Service, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, nil, err
	}

	database, err := db.New(cfg.DBConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	svc := analysis.NewService(cfg.AnalysisConfig(), database, nil, nil, nil, cmdLogger())
	return database, svc, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	database, svc, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	records, err := svc.History(ctx, args[0], historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list analyses: %w", err)
	}

	return printJSON(cmd.OutOrStdout(), models.HistoryResponse{
		Keyword: args[0],
		Records: records,
	})
}

func runForget(cmd *cobra.Command, args []string) error {
	database, svc, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	deleted, err := svc.Forget(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to delete analyses: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d analyses for %q\n", deleted, args[0])
	return nil
}

// runMigrate relies on db.New applying pending migrations
func runMigrate(cmd *cobra.Command, args []string) error {
	database, _, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()

	return printMigrationStatus(cmd, database)
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	return runMigrate(cmd, args)
}

func runMigrateRollback(cmd *cobra.Command, args []string) error {
	database, _, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Rollback(); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	return printMigrationStatus(cmd, database)
}

func printMigrationStatus(cmd *cobra.Command, database *db.DB) error {
	status, err := database.MigrationStatus()
	if err != nil {
		return fmt.Errorf("failed to read migration status: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "DRIVER\t%s\n", database.Driver())
	fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
	for _, s := range status {
		fmt.Fprintf(w, "%d\t%s\t%t\n", s.Version, s.Name, s.Applied)
	}
	return w.Flush()
}
