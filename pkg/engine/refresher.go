package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/notifsync/pkg/log"
	"github.com/cuemby/notifsync/pkg/metrics"
	"github.com/cuemby/notifsync/pkg/storage"
	"github.com/cuemby/notifsync/pkg/types"
)

// Refresher resynchronizes the CountCache from the store
type Refresher struct {
	store   storage.Store
	cache   *CountCache
	prefs   *PreferenceStore
	userID  string
	hubID   string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewRefresher creates a refresher for one pair
func NewRefresher(store storage.Store, cache *CountCache, prefs *PreferenceStore, userID, hubID string, timeout time.Duration) *Refresher {
	return &Refresher{
		store:   store,
		cache:   cache,
		prefs:   prefs,
		userID:  userID,
		hubID:   hubID,
		timeout: timeout,
		logger:  log.WithPair("refresher", userID, hubID),
	}
}

// Refresh fetches the aggregate counts and the unread feed total and
// overwrites the CountCache with them. On failure the cache is untouched.
// A result that arrives after the pair changed is discarded with ErrStaleRefresh.
func (r *Refresher) Refresh(ctx context.Context) (types.NotificationCounts, error) {
	epoch := r.cache.Epoch()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RefreshDuration)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	counts, err := r.store.AggregateCounts(ctx, r.userID, r.hubID)
	if err != nil {
		return types.NotificationCounts{}, r.fail(fmt.Errorf("aggregate counts: %w", err))
	}

	feed, err := r.store.UnreadFeedByFeature(ctx, r.userID, r.hubID, r.prefs.Get().EnabledFeatures())
	if err != nil {
		return types.NotificationCounts{}, r.fail(fmt.Errorf("unread feed total: %w", err))
	}

	if !r.cache.ApplyFull(epoch, counts, feed) {
		metrics.RefreshesTotal.WithLabelValues("stale").Inc()
		r.logger.Debug().Msg("Discarding refresh result for a previous pair")
		return types.NotificationCounts{}, ErrStaleRefresh
	}

	metrics.RefreshesTotal.WithLabelValues("success").Inc()
	metrics.UpdateComponent(metrics.ComponentRefresher, true, "")
	snap := r.cache.Snapshot()
	r.logger.Debug().
		Int("messages", snap.Counts.Messages).
		Int("feed_unread", snap.FeedUnread).
		Dur("duration", timer.Duration()).
		Msg("Counts refreshed")
	return snap.Counts, nil
}

func (r *Refresher) fail(err error) error {
	metrics.RefreshesTotal.WithLabelValues("error").Inc()
	metrics.UpdateComponent(metrics.ComponentRefresher, false, err.Error())
	r.logger.Warn().Err(err).Msg("Refresh failed, keeping cached counts")
	return err
}
