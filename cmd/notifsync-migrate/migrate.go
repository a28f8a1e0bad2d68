package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/notifsync/pkg/log"
	"github.com/cuemby/notifsync/pkg/storage"
	"github.com/cuemby/notifsync/pkg/types"
)

// Source is the read side of a migration
type Source interface {
	ForEachNotification(fn func(n *types.ActivityNotification) error) error
	ForEachLastViewed(fn func(lv storage.LastViewed) error) error
	ForEachPreferences(fn func(p *types.UserNotificationPreferences) error) error
}

// Stats counts migrated records per kind. Skipped counts notifications
// already present in the target.
type Stats struct {
	Notifications int
	Skipped       int
	Preferences   int
	LastViewed    int
}

// inspect counts what a migration would copy
func inspect(src Source) (Stats, error) {
	var stats Stats
	if err := src.ForEachNotification(func(*types.ActivityNotification) error {
		stats.Notifications++
		return nil
	}); err != nil {
		return stats, fmt.Errorf("reading notifications: %w", err)
	}
	if err := src.ForEachPreferences(func(*types.UserNotificationPreferences) error {
		stats.Preferences++
		return nil
	}); err != nil {
		return stats, fmt.Errorf("reading preferences: %w", err)
	}
	if err := src.ForEachLastViewed(func(storage.LastViewed) error {
		stats.LastViewed++
		return nil
	}); err != nil {
		return stats, fmt.Errorf("reading last-viewed markers: %w", err)
	}
	return stats, nil
}

// migrate copies every record of src into dst
func migrate(ctx context.Context, src Source, dst storage.Store) (Stats, error) {
	logger := log.WithComponent("migrate")
	var stats Stats

	err := src.ForEachNotification(func(n *types.ActivityNotification) error {
		err := dst.CreateNotification(ctx, n)
		if errors.Is(err, storage.ErrAlreadyExists) {
			stats.Skipped++
			logger.Debug().Str("id", n.ID).Msg("Notification already migrated")
			return nil
		}
		if err != nil {
			return fmt.Errorf("notification %s: %w", n.ID, err)
		}
		stats.Notifications++
		logger.Debug().Str("id", n.ID).Msg("Migrated notification")
		return nil
	})
	if err != nil {
		return stats, err
	}

	err = src.ForEachPreferences(func(p *types.UserNotificationPreferences) error {
		if err := dst.PutPreferences(ctx, p); err != nil {
			return fmt.Errorf("preferences %s/%s: %w", p.UserID, p.HubID, err)
		}
		stats.Preferences++
		return nil
	})
	if err != nil {
		return stats, err
	}

	err = src.ForEachLastViewed(func(lv storage.LastViewed) error {
		if err := dst.UpsertLastViewed(ctx, lv.UserID, lv.HubID, lv.Feature, lv.ViewedAt); err != nil {
			return fmt.Errorf("last viewed %s/%s/%s: %w", lv.UserID, lv.HubID, lv.Feature, err)
		}
		stats.LastViewed++
		return nil
	})
	return stats, err
}
