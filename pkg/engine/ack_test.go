package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/notifsync/pkg/storage"
	"github.com/cuemby/notifsync/pkg/types"
)

func TestAcknowledger_MarkFeatureViewedClearsAndPersists(t *testing.T) {
	p := newPair(t, nil)
	p.cache.ApplyFull(p.cache.Epoch(), rawCounts(5, types.FeatureSkills), nil)

	require.NoError(t, p.acks.MarkFeatureViewed(context.Background(), types.FeatureMessages))
	assert.Zero(t, p.cache.Snapshot().Counts.Messages)
	assert.True(t, p.cache.Snapshot().Counts.HasUnseen(types.FeatureSkills))

	markers, err := p.store.GetLastViewed(context.Background(), viewer, hubID)
	require.NoError(t, err)
	assert.True(t, markers[types.FeatureMessages].Equal(t0))
}

func TestAcknowledger_DuplicateCallsWriteOnce(t *testing.T) {
	p := newPair(t, nil)
	p.cache.ApplyFull(p.cache.Epoch(), rawCounts(5), nil)

	gate := make(chan struct{})
	p.store.set(func() { p.store.lastViewedGate = gate })

	first := make(chan error, 1)
	go func() {
		first <- p.acks.MarkFeatureViewed(context.Background(), types.FeatureMessages)
	}()
	require.Equal(t, "UpsertLastViewed", <-p.store.started)

	// Optimistic reset happened before the write completed
	assert.Zero(t, p.cache.Snapshot().Counts.Messages)
	assert.True(t, p.acks.InFlight(types.FeatureMessages))

	err := p.acks.MarkFeatureViewed(context.Background(), types.FeatureMessages)
	assert.ErrorIs(t, err, ErrAcknowledgementInFlight)

	close(gate)
	require.NoError(t, <-first)
	assert.Equal(t, 1, p.store.Calls("UpsertLastViewed"))
	assert.False(t, p.acks.InFlight(types.FeatureMessages))

	// Once the first call completed a new one goes through
	p.store.set(func() { p.store.lastViewedGate = nil })
	require.NoError(t, p.acks.MarkFeatureViewed(context.Background(), types.FeatureMessages))
	assert.Equal(t, 2, p.store.Calls("UpsertLastViewed"))
}

func TestAcknowledger_DifferentFeaturesRunConcurrently(t *testing.T) {
	p := newPair(t, nil)

	gate := make(chan struct{})
	p.store.set(func() { p.store.lastViewedGate = gate })

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, f := range []types.Feature{types.FeatureSkills, types.FeatureScores} {
		wg.Add(1)
		go func(f types.Feature) {
			defer wg.Done()
			errs <- p.acks.MarkFeatureViewed(context.Background(), f)
		}(f)
	}

	<-p.store.started
	<-p.store.started
	close(gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 2, p.store.Calls("UpsertLastViewed"))
}

func TestAcknowledger_FailedWriteIsNotRolledBack(t *testing.T) {
	p := newPair(t, nil)
	p.cache.ApplyFull(p.cache.Epoch(), rawCounts(0, types.FeatureMarketplace), nil)
	p.store.set(func() { p.store.lastViewedErr = errBackend })

	err := p.acks.MarkFeatureViewed(context.Background(), types.FeatureMarketplace)
	require.ErrorIs(t, err, errBackend)

	assert.False(t, p.cache.Snapshot().Counts.HasUnseen(types.FeatureMarketplace))
	assert.False(t, p.acks.InFlight(types.FeatureMarketplace), "guard released after failure")
}

func TestAcknowledger_LeavesNextPairAlone(t *testing.T) {
	p := newPair(t, nil)
	epoch := p.cache.Reset(nil)
	p.cache.ApplyFull(epoch, rawCounts(2, types.FeatureSkills), types.FeedTally{types.FeatureSkills: 2})

	require.NoError(t, p.acks.MarkFeatureViewed(context.Background(), types.FeatureSkills))
	require.NoError(t, p.acks.MarkAllRead(context.Background()))

	snap := p.cache.Snapshot()
	assert.True(t, snap.Counts.HasUnseen(types.FeatureSkills))
	assert.Equal(t, 2, snap.Counts.Messages)
	assert.Equal(t, 2, snap.FeedUnread)
}

func TestAcknowledger_UnknownFeature(t *testing.T) {
	p := newPair(t, nil)
	err := p.acks.MarkFeatureViewed(context.Background(), types.Feature("polls"))
	assert.ErrorIs(t, err, types.ErrUnknownFeature)
	assert.Zero(t, p.store.Calls("UpsertLastViewed"))
}

func TestAcknowledger_MarkEntryRead(t *testing.T) {
	p := newPair(t, nil)
	ctx := context.Background()
	addNotification(t, p.store, "a1", types.FeatureAssignments, author, t0)
	addNotification(t, p.store, "a2", types.FeatureAssignments, author, t0)

	_, err := p.refresher.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, p.cache.Snapshot().FeedUnread)

	require.NoError(t, p.acks.MarkEntryRead(ctx, "a1"))
	assert.Equal(t, 1, p.cache.Snapshot().FeedUnread)

	// Already read: idempotent, no second decrement
	require.NoError(t, p.acks.MarkEntryRead(ctx, "a1"))
	assert.Equal(t, 1, p.cache.Snapshot().FeedUnread)

	err = p.acks.MarkEntryRead(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 1, p.cache.Snapshot().FeedUnread)
}

func TestAcknowledger_MarkEntryReadSkipsUncountedEntries(t *testing.T) {
	p := newPair(t, disabled(types.FeatureCompetitions))
	ctx := context.Background()
	addNotification(t, p.store, "c1", types.FeatureCompetitions, author, t0)
	addNotification(t, p.store, "k1", types.FeatureSkills, author, t0)
	addNotification(t, p.store, "own", types.FeatureSkills, viewer, t0)

	_, err := p.refresher.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, p.cache.Snapshot().FeedUnread)

	require.NoError(t, p.acks.MarkEntryRead(ctx, "c1"))
	assert.Equal(t, 1, p.cache.Snapshot().FeedUnread, "disabled feature was never counted")

	require.NoError(t, p.acks.MarkEntryRead(ctx, "own"))
	assert.Equal(t, 1, p.cache.Snapshot().FeedUnread, "self-authored entry was never counted")

	require.NoError(t, p.acks.MarkEntryRead(ctx, "k1"))
	assert.Zero(t, p.cache.Snapshot().FeedUnread)
}

func TestAcknowledger_MarkEntryReadFloorsAtZero(t *testing.T) {
	p := newPair(t, nil)
	addNotification(t, p.store, "a1", types.FeatureAssignments, author, t0)

	require.NoError(t, p.acks.MarkEntryRead(context.Background(), "a1"))
	assert.Zero(t, p.cache.Snapshot().FeedUnread)
}

func TestAcknowledger_MarkAllReadThenFetch(t *testing.T) {
	p := newPair(t, nil)
	ctx := context.Background()
	for i := 0; i < 30; i++ {
		addNotification(t, p.store, fmt.Sprintf("n%02d", i), types.FeatureCompetitions, author, t0.Add(time.Duration(i)*time.Second))
	}
	_, err := p.refresher.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, 30, p.cache.Snapshot().FeedUnread)

	require.NoError(t, p.acks.MarkAllRead(ctx))
	assert.Zero(t, p.cache.Snapshot().FeedUnread)
	assert.Equal(t, 1, p.store.Calls("MarkAllRead"), "one bulk write")
	assert.Zero(t, p.store.Calls("MarkRead"))

	page, err := p.feed.FetchPage(ctx, 20, 0)
	require.NoError(t, err)
	require.Len(t, page.Entries, 20)
	for _, e := range page.Entries {
		assert.True(t, e.Read, e.ID)
	}
}
