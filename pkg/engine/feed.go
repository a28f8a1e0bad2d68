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

// FeedPage is one offset-based page of the activity feed
type FeedPage struct {
	Entries []*types.ActivityNotification `json:"entries"`
	Limit   int                           `json:"limit"`
	Offset  int                           `json:"offset"`
	// End is true when the page is shorter than Limit
	End bool `json:"end"`
}

// NextOffset returns the offset of the following page
func (p *FeedPage) NextOffset() int {
	return p.Offset + len(p.Entries)
}

// FeedService reads the activity feed of one pair, filtered by the
// preference snapshot taken at call time
type FeedService struct {
	store        storage.Store
	prefs        *PreferenceStore
	userID       string
	hubID        string
	defaultLimit int
	maxLimit     int
	timeout      time.Duration
	logger       zerolog.Logger
}

// NewFeedService creates a feed reader for one pair
func NewFeedService(store storage.Store, prefs *PreferenceStore, userID, hubID string, defaultLimit, maxLimit int, timeout time.Duration) *FeedService {
	if defaultLimit <= 0 {
		defaultLimit = DefaultFeedPageSize
	}
	if maxLimit < defaultLimit {
		maxLimit = defaultLimit
	}
	return &FeedService{
		store:        store,
		prefs:        prefs,
		userID:       userID,
		hubID:        hubID,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		timeout:      timeout,
		logger:       log.WithPair("feed", userID, hubID),
	}
}

// FetchPage returns up to limit entries newest first, starting at offset.
// limit <= 0 uses the default page size and larger limits are clamped.
// Only enabled features are returned; with none enabled the page is empty.
func (s *FeedService) FetchPage(ctx context.Context, limit, offset int) (*FeedPage, error) {
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset %d", ErrInvalidPage, offset)
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	page := &FeedPage{Limit: limit, Offset: offset}

	allowed := s.prefs.Get().EnabledFeatures()
	if allowed != nil && len(allowed) == 0 {
		metrics.FeedFetchesTotal.WithLabelValues("empty_filter").Inc()
		page.Entries = []*types.ActivityNotification{}
		page.End = true
		return page, nil
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.FeedFetchDuration)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	entries, err := s.store.ListFeed(ctx, storage.FeedQuery{
		UserID: s.userID,
		HubID:  s.hubID,
		Limit:  limit,
		Offset: offset,
		Types:  allowed,
	})
	if err != nil {
		metrics.FeedFetchesTotal.WithLabelValues("error").Inc()
		s.logger.Warn().Err(err).Int("offset", offset).Msg("Feed fetch failed")
		return nil, fmt.Errorf("fetching feed page: %w", err)
	}

	metrics.FeedFetchesTotal.WithLabelValues("success").Inc()
	if entries == nil {
		entries = []*types.ActivityNotification{}
	}
	page.Entries = entries
	page.End = len(entries) < limit
	return page, nil
}
