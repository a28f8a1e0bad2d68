package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/notifsync/pkg/log"
	"github.com/cuemby/notifsync/pkg/storage"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "notifsync-migrate --bolt PATH --sqlite PATH",
	Short: "Copy a notifsync BoltDB store into SQLite",
	Long: `Copy notifications, notification preferences and last-viewed markers
from a BoltDB store into a SQLite store.

The SQLite file is backed up before it is written to. Records are upserted,
so running the migration twice is safe.

Examples:
  # Inspect what would be copied
  notifsync-migrate --bolt /var/lib/notifsync/notifsync.db --sqlite notifsync.sqlite --dry-run

  # Migrate
  notifsync-migrate --bolt /var/lib/notifsync/notifsync.db --sqlite notifsync.sqlite`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runMigrate,
}

func init() {
	rootCmd.Flags().String("bolt", "", "Source BoltDB file (required)")
	rootCmd.Flags().String("sqlite", "", "Target SQLite file (required)")
	rootCmd.Flags().Bool("dry-run", false, "Show what would be migrated without making changes")
	rootCmd.Flags().String("backup", "", "Backup path for an existing target (default: <sqlite>.backup)")
	rootCmd.Flags().Bool("verbose", false, "Log every migrated record")
	_ = rootCmd.MarkFlagRequired("bolt")
	_ = rootCmd.MarkFlagRequired("sqlite")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	boltPath, _ := cmd.Flags().GetString("bolt")
	sqlitePath, _ := cmd.Flags().GetString("sqlite")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	backupPath, _ := cmd.Flags().GetString("backup")
	verbose, _ := cmd.Flags().GetBool("verbose")

	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	log.Init(log.Config{Level: level})
	logger := log.WithComponent("migrate")

	if _, err := os.Stat(boltPath); err != nil {
		return fmt.Errorf("source database not found at %s: %w", boltPath, err)
	}
	logger.Info().Str("source", boltPath).Str("target", sqlitePath).Bool("dry_run", dryRun).Msg("Starting migration")

	src, err := storage.OpenBoltStore(boltPath)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	if dryRun {
		stats, err := inspect(src)
		if err != nil {
			return err
		}
		logger.Info().
			Int("notifications", stats.Notifications).
			Int("preferences", stats.Preferences).
			Int("last_viewed", stats.LastViewed).
			Msg("Dry run completed, no changes made")
		return nil
	}

	if _, err := os.Stat(sqlitePath); err == nil {
		if backupPath == "" {
			backupPath = sqlitePath + ".backup"
		}
		if err := copyFile(sqlitePath, backupPath); err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
		logger.Info().Str("backup", backupPath).Msg("Backup created")
	}

	dst, err := storage.NewSQLStore(sqlitePath)
	if err != nil {
		return fmt.Errorf("failed to open target: %w", err)
	}
	defer dst.Close()

	stats, err := migrate(cmd.Context(), src, dst)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	logger.Info().
		Int("notifications", stats.Notifications).
		Int("skipped", stats.Skipped).
		Int("preferences", stats.Preferences).
		Int("last_viewed", stats.LastViewed).
		Msg("Migration completed")
	return nil
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0600)
}
