package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/cuemby/notifsync/pkg/log"
	"github.com/cuemby/notifsync/pkg/metrics"
	"github.com/cuemby/notifsync/pkg/storage"
	"github.com/cuemby/notifsync/pkg/types"
)

// Acknowledgement kinds recorded in metrics
const (
	ackFeatureViewed = "feature_viewed"
	ackEntryRead     = "entry_read"
	ackAllRead       = "all_read"
)

// Acknowledger applies "viewed" and "read" acknowledgements for one pair:
// the CountCache first, then the store. Cache changes apply only while the
// cache still holds the pair it was created for.
type Acknowledger struct {
	store   storage.Store
	cache   *CountCache
	epoch   uint64
	clock   clockwork.Clock
	userID  string
	hubID   string
	timeout time.Duration
	logger  zerolog.Logger

	mu       sync.Mutex
	inFlight map[types.Feature]bool
}

// NewAcknowledger creates an acknowledger for one pair
func NewAcknowledger(store storage.Store, cache *CountCache, clk clockwork.Clock, userID, hubID string, timeout time.Duration) *Acknowledger {
	return &Acknowledger{
		store:    store,
		cache:    cache,
		epoch:    cache.Epoch(),
		clock:    clk,
		userID:   userID,
		hubID:    hubID,
		timeout:  timeout,
		logger:   log.WithPair("acknowledger", userID, hubID),
		inFlight: make(map[types.Feature]bool),
	}
}

func (a *Acknowledger) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

// acquire claims the in-flight slot of f; false means a call is outstanding
func (a *Acknowledger) acquire(f types.Feature) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inFlight[f] {
		return false
	}
	a.inFlight[f] = true
	return true
}

func (a *Acknowledger) release(f types.Feature) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inFlight, f)
}

// InFlight reports whether a MarkFeatureViewed call for f is outstanding
func (a *Acknowledger) InFlight(f types.Feature) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inFlight[f]
}

// MarkFeatureViewed clears f in the CountCache and records a last-viewed
// marker. While a call for f is outstanding further calls for f are dropped
// with ErrAcknowledgementInFlight. A failed write is not rolled back; the next
// refresh corrects the count.
func (a *Acknowledger) MarkFeatureViewed(ctx context.Context, f types.Feature) error {
	if !f.Valid() {
		return fmt.Errorf("%w: %q", types.ErrUnknownFeature, f)
	}
	if !a.acquire(f) {
		metrics.AcknowledgementsTotal.WithLabelValues(ackFeatureViewed, "dropped").Inc()
		a.logger.Debug().Str("feature", string(f)).Msg("Acknowledgement already in flight, dropping")
		return ErrAcknowledgementInFlight
	}
	defer a.release(f)

	a.cache.ClearFeatureAt(a.epoch, f)

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.AcknowledgementDuration, ackFeatureViewed)

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	if err := a.store.UpsertLastViewed(ctx, a.userID, a.hubID, f, a.clock.Now().UTC()); err != nil {
		return a.fail(ackFeatureViewed, fmt.Errorf("marking %s viewed: %w", f, err))
	}

	metrics.AcknowledgementsTotal.WithLabelValues(ackFeatureViewed, "success").Inc()
	return nil
}

// MarkEntryRead flips one entry to read and decrements the feed unread total
// when the entry was unread and counted there. Already-read, self-authored
// and disabled-feature entries leave the total unchanged.
func (a *Acknowledger) MarkEntryRead(ctx context.Context, id string) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.AcknowledgementDuration, ackEntryRead)

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	entry, changed, err := a.store.MarkRead(ctx, a.userID, id)
	if err != nil {
		return a.fail(ackEntryRead, fmt.Errorf("marking %s read: %w", id, err))
	}
	if changed && entry.ActorID != a.userID {
		a.cache.ApplyEntryReadAt(a.epoch, entry.Type)
	}

	metrics.AcknowledgementsTotal.WithLabelValues(ackEntryRead, "success").Inc()
	return nil
}

// MarkAllRead zeroes the feed unread total and flips every unread entry of
// the pair in one bulk write. A failed write is not rolled back.
func (a *Acknowledger) MarkAllRead(ctx context.Context) error {
	a.cache.ResetFeedUnreadAt(a.epoch)

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.AcknowledgementDuration, ackAllRead)

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	updated, err := a.store.MarkAllRead(ctx, a.userID, a.hubID)
	if err != nil {
		return a.fail(ackAllRead, fmt.Errorf("marking all read: %w", err))
	}

	metrics.AcknowledgementsTotal.WithLabelValues(ackAllRead, "success").Inc()
	a.logger.Debug().Int64("updated", updated).Msg("Marked all entries read")
	return nil
}

func (a *Acknowledger) fail(kind string, err error) error {
	metrics.AcknowledgementsTotal.WithLabelValues(kind, "error").Inc()
	a.logger.Warn().Err(err).Str("kind", kind).Msg("Acknowledgement write failed")
	return err
}
