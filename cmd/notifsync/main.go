package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/notifsync/pkg/config"
	"github.com/cuemby/notifsync/pkg/log"
	"github.com/cuemby/notifsync/pkg/storage"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "notifsync",
	Short: "notifsync - notification count synchronization engine",
	Long: `notifsync keeps a per-user, per-hub view of unread messages, unseen
activity per feature and the unread activity feed total, combining live
change events with periodic authoritative refreshes.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), versionString())
	},
}

func versionString() string {
	return fmt.Sprintf("notifsync version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
}

func init() {
	rootCmd.SetVersionTemplate(versionString())
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(countsCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig reads --config and initializes logging from it
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
	return cfg, nil
}

// openStore opens the backing store selected by store.driver
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverBolt:
		return storage.NewBoltStore(cfg.Store.Path)
	case config.DriverSQLite:
		return storage.NewSQLStore(cfg.Store.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
