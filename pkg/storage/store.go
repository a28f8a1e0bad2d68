package storage

import (
	"context"
	"errors"
	"time"

	"github.com/cuemby/notifsync/pkg/types"
)

var (
	// ErrNotFound is returned when a notification id is unknown or belongs to another user
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when creating a notification whose id is taken
	ErrAlreadyExists = errors.New("already exists")
)

// FeedQuery selects one page of a user's activity feed.
// Types nil means every feature; a non-nil empty Types matches nothing.
type FeedQuery struct {
	UserID string
	HubID  string
	Limit  int
	Offset int
	Types  []types.Feature
}

// LastViewed is the marker written when a user views a feature
type LastViewed struct {
	UserID   string        `json:"user_id"`
	HubID    string        `json:"hub_id"`
	Feature  types.Feature `json:"feature"`
	ViewedAt time.Time     `json:"viewed_at"`
}

// Store defines the interface for the notification source of truth.
// It is implemented by BoltStore and SQLStore.
type Store interface {
	// Aggregates
	AggregateCounts(ctx context.Context, userID, hubID string) (types.NotificationCounts, error)
	UnreadFeedTotal(ctx context.Context, userID, hubID string, allowed []types.Feature) (int, error)
	UnreadFeedByFeature(ctx context.Context, userID, hubID string, allowed []types.Feature) (types.FeedTally, error)

	// Feed
	ListFeed(ctx context.Context, q FeedQuery) ([]*types.ActivityNotification, error)
	CreateNotification(ctx context.Context, n *types.ActivityNotification) error
	// MarkRead returns the entry as stored after the write; changed is false
	// when it was already read.
	MarkRead(ctx context.Context, userID, id string) (entry *types.ActivityNotification, changed bool, err error)
	MarkAllRead(ctx context.Context, userID, hubID string) (int64, error)

	// Last-viewed markers
	UpsertLastViewed(ctx context.Context, userID, hubID string, f types.Feature, at time.Time) error
	GetLastViewed(ctx context.Context, userID, hubID string) (map[types.Feature]time.Time, error)

	// Preferences. GetPreferences returns nil, nil when the pair has no record.
	GetPreferences(ctx context.Context, userID, hubID string) (*types.UserNotificationPreferences, error)
	UpsertPreferences(ctx context.Context, userID, hubID string, update types.PreferenceUpdate, at time.Time) (*types.UserNotificationPreferences, error)
	PutPreferences(ctx context.Context, prefs *types.UserNotificationPreferences) error

	// Utility
	Ping(ctx context.Context) error
	Close() error
}

// allowedSet turns an allowed-feature list into a lookup; nil means no filter
func allowedSet(allowed []types.Feature) map[types.Feature]bool {
	if allowed == nil {
		return nil
	}
	set := make(map[types.Feature]bool, len(allowed))
	for _, f := range allowed {
		set[f] = true
	}
	return set
}

// countsFromTallies builds NotificationCounts from per-feature tallies.
// unread counts items not yet acknowledged, total counts every item after the marker.
func countsFromTallies(unread, total map[types.Feature]int) types.NotificationCounts {
	counts := types.NewNotificationCounts()
	for _, f := range types.AllFeatures {
		if f.IsNumeric() {
			counts.Messages = unread[f]
			continue
		}
		counts.Unseen[f] = total[f] > 0
	}
	return counts
}
