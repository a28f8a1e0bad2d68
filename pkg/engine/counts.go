package engine

import (
	"sync"

	"github.com/cuemby/notifsync/pkg/types"
)

// CacheSnapshot is a point-in-time copy of the CountCache
type CacheSnapshot struct {
	Epoch      uint64                   `json:"epoch"`
	Counts     types.NotificationCounts `json:"counts"`
	FeedUnread int                      `json:"feed_unread"`
}

// CountCache holds the per-feature unread signals and the unread feed entries
// of the active pair. A disabled feature always reads as zero/false and its
// feed entries are left out of the feed unread total.
type CountCache struct {
	mu      sync.Mutex
	epoch   uint64
	counts  types.NotificationCounts
	feed    types.FeedTally
	prefs   *types.UserNotificationPreferences
	changed chan struct{}
}

// NewCountCache creates a cache holding the all-zero defaults
func NewCountCache() *CountCache {
	return &CountCache{
		counts:  types.NewNotificationCounts(),
		feed:    types.FeedTally{},
		changed: make(chan struct{}),
	}
}

// notifyLocked wakes every Changed waiter; c.mu must be held
func (c *CountCache) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// filterLocked zeroes every disabled feature; c.mu must be held
func (c *CountCache) filterLocked() {
	for _, f := range types.AllFeatures {
		if !c.prefs.IsEnabled(f) {
			c.counts.Clear(f)
			delete(c.feed, f)
		}
	}
}

// Reset discards the current pair's state and starts a new epoch.
// Results computed for an older epoch are rejected by ApplyFull.
func (c *CountCache) Reset(prefs *types.UserNotificationPreferences) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	c.counts = types.NewNotificationCounts()
	c.feed = types.FeedTally{}
	c.prefs = prefs.Clone()
	c.notifyLocked()
	return c.epoch
}

// Epoch returns the current epoch
func (c *CountCache) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// ApplyFull overwrites the cache with an authoritative result, filtered by the
// current preferences. It returns false and changes nothing when epoch is stale.
func (c *CountCache) ApplyFull(epoch uint64, counts types.NotificationCounts, feed types.FeedTally) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch {
		return false
	}
	c.counts = counts.Clone()
	c.feed = feed.Clone()
	c.filterLocked()
	c.notifyLocked()
	return true
}

// ApplyDelta applies an incremental change to one feature. For the numeric
// feature increment is added; for boolean features any positive increment
// marks the feature unseen. A disabled feature is left untouched and false
// is returned.
func (c *CountCache) ApplyDelta(f types.Feature, increment int) bool {
	return c.update(func() bool { return c.applyDeltaLocked(f, increment) })
}

func (c *CountCache) applyDeltaLocked(f types.Feature, increment int) bool {
	if !f.Valid() || increment <= 0 || !c.prefs.IsEnabled(f) {
		return false
	}
	if f.IsNumeric() {
		c.counts.Messages += increment
	} else {
		c.counts.Unseen[f] = true
	}
	return true
}

// update runs fn under the lock and notifies waiters when it reports a change
func (c *CountCache) update(fn func() bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !fn() {
		return false
	}
	c.notifyLocked()
	return true
}

// updateAt is update restricted to epoch; a stale epoch changes nothing
func (c *CountCache) updateAt(epoch uint64, fn func() bool) bool {
	return c.update(func() bool {
		return epoch == c.epoch && fn()
	})
}

// ApplyEvent records one qualifying live event: the feature delta and the
// feed unread increment happen together or not at all.
func (c *CountCache) ApplyEvent(f types.Feature) bool {
	return c.update(func() bool { return c.applyEventLocked(f) })
}

// ApplyEventAt is ApplyEvent for the pair of epoch
func (c *CountCache) ApplyEventAt(epoch uint64, f types.Feature) bool {
	return c.updateAt(epoch, func() bool { return c.applyEventLocked(f) })
}

func (c *CountCache) applyEventLocked(f types.Feature) bool {
	if !c.applyDeltaLocked(f, 1) {
		return false
	}
	c.feed[f]++
	return true
}

// ClearFeature resets one feature to zero/false
func (c *CountCache) ClearFeature(f types.Feature) {
	c.update(func() bool { return c.clearLocked(f) })
}

// ClearFeatureAt is ClearFeature for the pair of epoch
func (c *CountCache) ClearFeatureAt(epoch uint64, f types.Feature) bool {
	return c.updateAt(epoch, func() bool { return c.clearLocked(f) })
}

func (c *CountCache) clearLocked(f types.Feature) bool {
	c.counts.Clear(f)
	return true
}

// ApplyEntryRead removes one read entry of feature f from the feed unread
// total, floored at zero. Entries of a disabled feature were never counted
// and change nothing; false is returned.
func (c *CountCache) ApplyEntryRead(f types.Feature) bool {
	return c.update(func() bool { return c.entryReadLocked(f) })
}

// ApplyEntryReadAt is ApplyEntryRead for the pair of epoch
func (c *CountCache) ApplyEntryReadAt(epoch uint64, f types.Feature) bool {
	return c.updateAt(epoch, func() bool { return c.entryReadLocked(f) })
}

func (c *CountCache) entryReadLocked(f types.Feature) bool {
	if !f.Valid() || !c.prefs.IsEnabled(f) {
		return false
	}
	if c.feed[f] > 1 {
		c.feed[f]--
	} else {
		delete(c.feed, f)
	}
	return true
}

// ResetFeedUnread sets the feed unread total to zero
func (c *CountCache) ResetFeedUnread() {
	c.update(c.resetFeedLocked)
}

// ResetFeedUnreadAt is ResetFeedUnread for the pair of epoch
func (c *CountCache) ResetFeedUnreadAt(epoch uint64) bool {
	return c.updateAt(epoch, c.resetFeedLocked)
}

func (c *CountCache) resetFeedLocked() bool {
	c.feed = types.FeedTally{}
	return true
}

// Refilter installs a new preference snapshot and zeroes every feature it
// disables, including its share of the feed unread total. Re-enabled features
// keep their suppressed zero until the next authoritative refresh or event.
// No I/O is performed.
func (c *CountCache) Refilter(prefs *types.UserNotificationPreferences) {
	c.update(func() bool { return c.refilterLocked(prefs) })
}

// RefilterAt is Refilter for the pair of epoch
func (c *CountCache) RefilterAt(epoch uint64, prefs *types.UserNotificationPreferences) bool {
	return c.updateAt(epoch, func() bool { return c.refilterLocked(prefs) })
}

func (c *CountCache) refilterLocked(prefs *types.UserNotificationPreferences) bool {
	c.prefs = prefs.Clone()
	c.filterLocked()
	return true
}

// Snapshot returns a copy of the current state
func (c *CountCache) Snapshot() CacheSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheSnapshot{
		Epoch:      c.epoch,
		Counts:     c.counts.Clone(),
		FeedUnread: c.feed.Total(),
	}
}

// Changed returns a channel that is closed on the next mutation
func (c *CountCache) Changed() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}
