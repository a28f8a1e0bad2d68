package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/notifsync/pkg/log"
	"github.com/cuemby/notifsync/pkg/storage"
	"github.com/cuemby/notifsync/pkg/types"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load fixture notifications and preferences from a YAML file",
	Long: `Insert notifications and preference records from a YAML file into the
configured store.

Examples:
  # Seed the default SQLite store
  notifsync seed -f fixtures.yaml

  # Seed a BoltDB data directory
  NOTIFSYNC_STORE_DRIVER=bolt NOTIFSYNC_STORE_PATH=./data notifsync seed -f fixtures.yaml`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringP("file", "f", "", "YAML fixture file (required)")
	_ = seedCmd.MarkFlagRequired("file")
}

// Fixtures is the seed file layout
type Fixtures struct {
	Notifications []*types.ActivityNotification `yaml:"notifications"`
	Preferences   []PreferenceFixture           `yaml:"preferences"`
}

// PreferenceFixture is a partial preference record for one pair
type PreferenceFixture struct {
	UserID  string                 `yaml:"user_id"`
	HubID   string                 `yaml:"hub_id"`
	Enabled types.PreferenceUpdate `yaml:"enabled"`
}

// parseFixtures decodes and validates a fixture file. Missing ids and
// timestamps are filled in.
func parseFixtures(data []byte, now time.Time) (*Fixtures, error) {
	var fx Fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, n := range fx.Notifications {
		if n == nil {
			return nil, fmt.Errorf("notification %d is empty", i)
		}
		if n.ID == "" {
			n.ID = uuid.New().String()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		if err := n.Validate(); err != nil {
			return nil, fmt.Errorf("notification %d: %w", i, err)
		}
	}
	for i, p := range fx.Preferences {
		if p.UserID == "" || p.HubID == "" {
			return nil, fmt.Errorf("preferences %d: user_id and hub_id are required", i)
		}
		if err := p.Enabled.Validate(); err != nil {
			return nil, fmt.Errorf("preferences %d: %w", i, err)
		}
	}
	return &fx, nil
}

// applyFixtures writes every fixture to store and returns how many
// notifications were created. Notifications whose id already exists are skipped.
func applyFixtures(ctx context.Context, store storage.Store, fx *Fixtures, now time.Time) (int, error) {
	logger := log.WithComponent("seed")
	created := 0
	for _, n := range fx.Notifications {
		err := store.CreateNotification(ctx, n)
		if errors.Is(err, storage.ErrAlreadyExists) {
			logger.Warn().Str("id", n.ID).Msg("Notification exists, skipping")
			continue
		}
		if err != nil {
			return created, fmt.Errorf("failed to create notification %s: %w", n.ID, err)
		}
		created++
	}
	for _, p := range fx.Preferences {
		if _, err := store.UpsertPreferences(ctx, p.UserID, p.HubID, p.Enabled, now); err != nil {
			return created, fmt.Errorf("failed to store preferences for %s/%s: %w", p.UserID, p.HubID, err)
		}
	}
	return created, nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	filename, _ := cmd.Flags().GetString("file")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	now := time.Now().UTC()
	fx, err := parseFixtures(data, now)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	created, err := applyFixtures(cmd.Context(), store, fx, now)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Seeded %d notifications and %d preference records into %s\n",
		created, len(fx.Preferences), cfg.Store.Path)
	return nil
}
