package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/cuemby/notifsync/pkg/log"
	"github.com/cuemby/notifsync/pkg/metrics"
	"github.com/cuemby/notifsync/pkg/storage"
	"github.com/cuemby/notifsync/pkg/types"
)

// PreferenceStore holds the feature enable flags of the active pair.
// The in-memory snapshot governs filtering. Durable writes carry only the
// flags the user changed, so a fail-open snapshot never overwrites stored flags.
type PreferenceStore struct {
	store  storage.Store
	cache  *CountCache
	epoch  uint64
	clock  clockwork.Clock
	userID string
	hubID  string
	logger zerolog.Logger

	mu    sync.Mutex
	prefs *types.UserNotificationPreferences
	// pending holds changed flags not yet durably written
	pending types.PreferenceUpdate

	writeMu sync.Mutex
}

// NewPreferenceStore creates a store seeded with initial (nil = fail-open)
func NewPreferenceStore(store storage.Store, cache *CountCache, clk clockwork.Clock, userID, hubID string, initial *types.UserNotificationPreferences) *PreferenceStore {
	return &PreferenceStore{
		store:   store,
		cache:   cache,
		epoch:   cache.Epoch(),
		clock:   clk,
		userID:  userID,
		hubID:   hubID,
		logger:  log.WithPair("preferences", userID, hubID),
		prefs:   initial.Clone(),
		pending: make(types.PreferenceUpdate),
	}
}

// Get returns a copy of the current snapshot; nil means every feature is enabled
func (p *PreferenceStore) Get() *types.UserNotificationPreferences {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prefs.Clone()
}

// Set merges update into the snapshot, refilters the CountCache and then
// persists the changed flags. When the durable write fails the new snapshot
// stays in effect, the flags stay pending for the next write and the merged
// record is returned together with the error.
func (p *PreferenceStore) Set(ctx context.Context, update types.PreferenceUpdate) (*types.UserNotificationPreferences, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	merged := p.prefs.Merge(p.userID, p.hubID, update, p.clock.Now().UTC())
	p.prefs = merged
	for f, enabled := range update {
		p.pending[f] = enabled
	}
	p.cache.RefilterAt(p.epoch, merged)
	p.mu.Unlock()

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	write := p.pendingFlags()
	if len(write) == 0 {
		// A concurrent Set already wrote these flags
		metrics.PreferenceWritesTotal.WithLabelValues("success").Inc()
		return merged.Clone(), nil
	}
	if _, err := p.store.UpsertPreferences(ctx, p.userID, p.hubID, write, p.clock.Now().UTC()); err != nil {
		metrics.PreferenceWritesTotal.WithLabelValues("error").Inc()
		p.logger.Warn().Err(err).Int("pending", len(write)).Msg("Failed to persist notification preferences")
		return merged.Clone(), fmt.Errorf("persisting preferences: %w", err)
	}
	p.clearPending(write)

	metrics.PreferenceWritesTotal.WithLabelValues("success").Inc()
	p.logger.Debug().Interface("enabled", merged.Enabled).Msg("Preferences updated")
	return merged.Clone(), nil
}

func (p *PreferenceStore) pendingFlags() types.PreferenceUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(types.PreferenceUpdate, len(p.pending))
	for f, enabled := range p.pending {
		out[f] = enabled
	}
	return out
}

// clearPending drops written flags unless a later Set changed them again
func (p *PreferenceStore) clearPending(written types.PreferenceUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for f, enabled := range written {
		if p.pending[f] == enabled {
			delete(p.pending, f)
		}
	}
}
