package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/notifsync/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration notifsync would run with, after the --config
file and NOTIFSYNC_* environment overrides are applied.

The output is itself a valid config file.

Examples:
  notifsync config -c /etc/notifsync/notifsync.yaml
  notifsync config --defaults > notifsync.yaml`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().Bool("defaults", false, "Print the built-in defaults, ignoring the file and environment")
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if defaults, _ := cmd.Flags().GetBool("defaults"); !defaults {
		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	return writeConfigYAML(cmd.OutOrStdout(), cfg)
}

func writeConfigYAML(w io.Writer, cfg *config.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return enc.Close()
}
