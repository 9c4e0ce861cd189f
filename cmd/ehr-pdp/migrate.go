package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ParthasarathiMohanty986/healthcare-security/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the PostgreSQL schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrationRunner(func(mr *db.MigrationRunner) error {
			return mr.Up()
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back all migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrationRunner(func(mr *db.MigrationRunner) error {
			return mr.Down()
		})
	},
}

var migrateStepsCmd = &cobra.Command{
	Use:   "steps N",
	Short: "Apply N migrations, or roll back when N is negative",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid step count %q: %w", args[0], err)
		}
		return withMigrationRunner(func(mr *db.MigrationRunner) error {
			return mr.Steps(n)
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrationRunner(func(mr *db.MigrationRunner) error {
			version, dirty, err := mr.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
			return nil
		})
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStepsCmd, migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}

func withMigrationRunner(fn func(*db.MigrationRunner) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for migrations")
	}

	logger, err := initLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	conn, err := db.Open(cfg.Database.DSN, cfg.Database.Pool)
	if err != nil {
		return err
	}
	defer conn.Close()

	mr, err := db.NewMigrationRunner(conn, logger)
	if err != nil {
		return err
	}
	defer mr.Close()

	if err := fn(mr); err != nil {
		logger.Error("Migration failed", zap.Error(err))
		return err
	}
	return nil
}
