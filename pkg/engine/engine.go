package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/cuemby/notifsync/pkg/events"
	"github.com/cuemby/notifsync/pkg/log"
	"github.com/cuemby/notifsync/pkg/metrics"
	"github.com/cuemby/notifsync/pkg/storage"
	"github.com/cuemby/notifsync/pkg/types"
)

var (
	// ErrNoActivePair is returned when an operation needs a (user, hub) pair and none is active
	ErrNoActivePair = errors.New("no active user/hub pair")

	// ErrAcknowledgementInFlight is returned when MarkFeatureViewed is dropped
	// because a call for the same feature is already in progress
	ErrAcknowledgementInFlight = errors.New("acknowledgement already in progress")

	// ErrStaleRefresh is returned when a refresh finished after its pair was replaced
	ErrStaleRefresh = errors.New("refresh result discarded: pair changed")

	// ErrInvalidPage is returned for out-of-range feed paging arguments
	ErrInvalidPage = errors.New("invalid feed page")

	// ErrClosed is returned after Close
	ErrClosed = errors.New("engine closed")
)

const (
	DefaultRefreshInterval = 60 * time.Second
	DefaultRequestTimeout  = 15 * time.Second
	DefaultFeedPageSize    = 20
	DefaultMaxFeedPageSize = 100
)

// Options tunes an Engine; zero values use the defaults
type Options struct {
	RefreshInterval time.Duration
	RequestTimeout  time.Duration
	FeedPageSize    int
	MaxFeedPageSize int
	Clock           clockwork.Clock
}

func (o Options) withDefaults() Options {
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = DefaultRefreshInterval
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.FeedPageSize <= 0 {
		o.FeedPageSize = DefaultFeedPageSize
	}
	if o.MaxFeedPageSize < o.FeedPageSize {
		o.MaxFeedPageSize = DefaultMaxFeedPageSize
		if o.MaxFeedPageSize < o.FeedPageSize {
			o.MaxFeedPageSize = o.FeedPageSize
		}
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}

// Snapshot is the consumer-facing view of the engine
type Snapshot struct {
	UserID     string                   `json:"user_id,omitempty"`
	HubID      string                   `json:"hub_id,omitempty"`
	Active     bool                     `json:"active"`
	Counts     types.NotificationCounts `json:"counts"`
	FeedUnread int                      `json:"feed_unread"`
	Epoch      uint64                   `json:"epoch"`
}

// session is the set of components bound to one (user, hub) pair
type session struct {
	userID string
	hubID  string

	prefs     *PreferenceStore
	refresher *Refresher
	ingester  *Ingester
	acks      *Acknowledger
	feed      *FeedService
	scheduler *Scheduler
	sub       events.Subscription
	cancel    context.CancelFunc
}

// Engine owns the CountCache and the components of the active pair.
// Consumers read snapshots and call the operations below; nothing else
// mutates engine state.
type Engine struct {
	store    storage.Store
	provider events.SubscriptionProvider
	opts     Options
	cache    *CountCache
	logger   zerolog.Logger

	// mu guards session and closed. Operations hold it only to pick up the
	// session; a session's cache writes are bound to its epoch.
	mu      sync.RWMutex
	session *session
	closed  bool
}

// New creates an engine. provider may be nil, in which case counts are
// kept current by polling alone.
func New(store storage.Store, provider events.SubscriptionProvider, opts Options) *Engine {
	e := &Engine{
		store:    store,
		provider: provider,
		opts:     opts.withDefaults(),
		cache:    NewCountCache(),
		logger:   log.WithComponent("engine"),
	}
	metrics.RegisterComponent(metrics.ComponentEngine, true, "")
	return e
}

// Activate binds the engine to (userID, hubID). Any previous pair is torn
// down first: its scheduler is stopped, its subscription closed and its
// cache state discarded. Preferences that fail to load are treated as
// "all enabled".
func (e *Engine) Activate(ctx context.Context, userID, hubID string, foreground bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	e.teardownLocked()

	logger := log.WithPair("engine", userID, hubID)

	loadCtx, cancelLoad := context.WithTimeout(ctx, e.opts.RequestTimeout)
	prefs, err := e.store.GetPreferences(loadCtx, userID, hubID)
	cancelLoad()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load preferences, treating every feature as enabled")
		prefs = nil
	}

	e.cache.Reset(prefs)

	// The session outlives the activating request
	sctx, cancel := context.WithCancel(context.Background())

	s := &session{userID: userID, hubID: hubID, cancel: cancel}
	s.prefs = NewPreferenceStore(e.store, e.cache, e.opts.Clock, userID, hubID, prefs)
	s.refresher = NewRefresher(e.store, e.cache, s.prefs, userID, hubID, e.opts.RequestTimeout)
	s.ingester = NewIngester(e.cache, userID, hubID)
	s.acks = NewAcknowledger(e.store, e.cache, e.opts.Clock, userID, hubID, e.opts.RequestTimeout)
	s.feed = NewFeedService(e.store, s.prefs, userID, hubID, e.opts.FeedPageSize, e.opts.MaxFeedPageSize, e.opts.RequestTimeout)

	if e.provider != nil {
		sub, err := e.provider.Subscribe(sctx, userID, hubID, s.ingester)
		if err != nil {
			// Polling alone keeps counts correct
			logger.Warn().Err(err).Msg("Live subscription failed, relying on polling")
			metrics.UpdateComponent(metrics.ComponentSubscription, false, err.Error())
		} else {
			s.sub = sub
			metrics.UpdateComponent(metrics.ComponentSubscription, true, "")
		}
	}

	refresher := s.refresher
	s.scheduler = NewScheduler(e.opts.Clock, e.opts.RefreshInterval, func(ctx context.Context) {
		_, _ = refresher.Refresh(ctx)
	}, foreground).WithLogger(log.WithPair("scheduler", userID, hubID))
	s.scheduler.Start(sctx)

	e.session = s
	logger.Info().Bool("foreground", foreground).Msg("Pair activated")
	return nil
}

// Deactivate tears down the active pair and resets the cache to defaults
func (e *Engine) Deactivate() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return
	}
	e.teardownLocked()
	e.cache.Reset(nil)
}

// teardownLocked stops the active session; e.mu must be held for writing
func (e *Engine) teardownLocked() {
	s := e.session
	if s == nil {
		return
	}
	s.cancel()
	s.scheduler.Stop()
	if s.sub != nil {
		s.sub.Close()
		metrics.UnregisterComponent(metrics.ComponentSubscription)
	}
	e.session = nil
	logger := log.WithPair("engine", s.userID, s.hubID)
	logger.Info().Msg("Pair deactivated")
}

// Close tears down the active pair; the engine cannot be reactivated
func (e *Engine) Close() {
	e.Deactivate()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	metrics.UpdateComponent(metrics.ComponentEngine, false, "closed")
}

// withSession runs fn with the active session. The lock is released before
// fn runs so store round trips never hold up snapshots or pair changes.
func (e *Engine) withSession(fn func(s *session) error) error {
	e.mu.RLock()
	s := e.session
	e.mu.RUnlock()

	if s == nil {
		return ErrNoActivePair
	}
	return fn(s)
}

// Pair returns the active pair
func (e *Engine) Pair() (userID, hubID string, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.session == nil {
		return "", "", false
	}
	return e.session.userID, e.session.hubID, true
}

// Snapshot returns the current counts. Without an active pair it returns
// the all-zero defaults.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cs := e.cache.Snapshot()
	snap := Snapshot{Counts: cs.Counts, FeedUnread: cs.FeedUnread, Epoch: cs.Epoch}
	if e.session != nil {
		snap.UserID = e.session.userID
		snap.HubID = e.session.hubID
		snap.Active = true
	}
	return snap
}

// Changed returns a channel closed on the next cache mutation
func (e *Engine) Changed() <-chan struct{} {
	return e.cache.Changed()
}

// CollectCounts implements metrics.CountsSource
func (e *Engine) CollectCounts() (types.NotificationCounts, int, bool) {
	snap := e.Snapshot()
	return snap.Counts, snap.FeedUnread, snap.Active
}

// Preferences returns the active pair's preferences; nil means all enabled
func (e *Engine) Preferences() (*types.UserNotificationPreferences, error) {
	var prefs *types.UserNotificationPreferences
	err := e.withSession(func(s *session) error {
		prefs = s.prefs.Get()
		return nil
	})
	return prefs, err
}

// SetPreferences merges update into the active pair's preferences
func (e *Engine) SetPreferences(ctx context.Context, update types.PreferenceUpdate) (*types.UserNotificationPreferences, error) {
	var prefs *types.UserNotificationPreferences
	err := e.withSession(func(s *session) error {
		var err error
		prefs, err = s.prefs.Set(ctx, update)
		return err
	})
	return prefs, err
}

// MarkFeatureViewed acknowledges every item of f for the active pair
func (e *Engine) MarkFeatureViewed(ctx context.Context, f types.Feature) error {
	return e.withSession(func(s *session) error {
		return s.acks.MarkFeatureViewed(ctx, f)
	})
}

// MarkEntryRead marks one feed entry read
func (e *Engine) MarkEntryRead(ctx context.Context, id string) error {
	return e.withSession(func(s *session) error {
		return s.acks.MarkEntryRead(ctx, id)
	})
}

// MarkAllRead marks every feed entry of the active pair read
func (e *Engine) MarkAllRead(ctx context.Context) error {
	return e.withSession(func(s *session) error {
		return s.acks.MarkAllRead(ctx)
	})
}

// FetchFeedPage reads one page of the active pair's feed
func (e *Engine) FetchFeedPage(ctx context.Context, limit, offset int) (*FeedPage, error) {
	var page *FeedPage
	err := e.withSession(func(s *session) error {
		var err error
		page, err = s.feed.FetchPage(ctx, limit, offset)
		return err
	})
	return page, err
}

// SetForeground forwards a client visibility change to the scheduler
func (e *Engine) SetForeground(foreground bool) error {
	return e.withSession(func(s *session) error {
		s.scheduler.SetForeground(foreground)
		return nil
	})
}

// SchedulerState returns the active pair's scheduler state
func (e *Engine) SchedulerState() (SchedulerState, error) {
	state := Suspended
	err := e.withSession(func(s *session) error {
		state = s.scheduler.State()
		return nil
	})
	return state, err
}
