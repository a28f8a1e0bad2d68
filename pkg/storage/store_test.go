package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/notifsync/pkg/types"
)

const (
	testUser  = "user-1"
	testHub   = "hub-1"
	otherUser = "user-2"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newStores(t *testing.T) map[string]Store {
	t.Helper()

	bolt, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bolt.Close() })

	sqlStore, err := NewSQLStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlStore.Close() })

	return map[string]Store{"bolt": bolt, "sqlite": sqlStore}
}

// forEachStore runs fn against every Store implementation
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) { fn(t, s) })
	}
}

func notification(id string, f types.Feature, actor string, at time.Time) *types.ActivityNotification {
	return &types.ActivityNotification{
		ID:         id,
		UserID:     testUser,
		HubID:      testHub,
		Type:       f,
		EntityType: string(f),
		EntityID:   "entity-" + id,
		Title:      "title " + id,
		ActorID:    actor,
		CreatedAt:  at,
	}
}

func seed(t *testing.T, s Store, entries ...*types.ActivityNotification) {
	t.Helper()
	for _, n := range entries {
		require.NoError(t, s.CreateNotification(context.Background(), n))
	}
}

func TestAggregateCounts(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seed(t, s,
			notification("m1", types.FeatureMessages, otherUser, base),
			notification("m2", types.FeatureMessages, otherUser, base.Add(time.Minute)),
			notification("m3", types.FeatureMessages, testUser, base.Add(2*time.Minute)),
			notification("a1", types.FeatureAssignments, otherUser, base),
			notification("s1", types.FeatureSkills, testUser, base),
		)

		counts, err := s.AggregateCounts(ctx, testUser, testHub)
		require.NoError(t, err)
		assert.Equal(t, 2, counts.Messages, "self-authored message excluded")
		assert.True(t, counts.HasUnseen(types.FeatureAssignments))
		assert.False(t, counts.HasUnseen(types.FeatureSkills), "self-authored item excluded")
		assert.Len(t, counts.Unseen, len(types.AllFeatures)-1)
	})
}

func TestAggregateCounts_LastViewedMarker(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seed(t, s,
			notification("m1", types.FeatureMessages, otherUser, base),
			notification("a1", types.FeatureAssignments, otherUser, base),
		)

		require.NoError(t, s.UpsertLastViewed(ctx, testUser, testHub, types.FeatureAssignments, base.Add(time.Second)))
		require.NoError(t, s.UpsertLastViewed(ctx, testUser, testHub, types.FeatureMessages, base.Add(time.Second)))

		counts, err := s.AggregateCounts(ctx, testUser, testHub)
		require.NoError(t, err)
		assert.Equal(t, 0, counts.Messages)
		assert.False(t, counts.HasUnseen(types.FeatureAssignments))

		seed(t, s, notification("a2", types.FeatureAssignments, otherUser, base.Add(time.Hour)))
		counts, err = s.AggregateCounts(ctx, testUser, testHub)
		require.NoError(t, err)
		assert.True(t, counts.HasUnseen(types.FeatureAssignments))
	})
}

func TestAggregateCounts_ReadMessagesNotCounted(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seed(t, s,
			notification("m1", types.FeatureMessages, otherUser, base),
			notification("m2", types.FeatureMessages, otherUser, base.Add(time.Minute)),
		)

		_, changed, err := s.MarkRead(ctx, testUser, "m1")
		require.NoError(t, err)
		assert.True(t, changed)

		counts, err := s.AggregateCounts(ctx, testUser, testHub)
		require.NoError(t, err)
		assert.Equal(t, 1, counts.Messages)
	})
}

func TestUpsertLastViewed_Replaces(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.UpsertLastViewed(ctx, testUser, testHub, types.FeatureSkills, base))
		require.NoError(t, s.UpsertLastViewed(ctx, testUser, testHub, types.FeatureSkills, base.Add(time.Hour)))

		markers, err := s.GetLastViewed(ctx, testUser, testHub)
		require.NoError(t, err)
		require.Len(t, markers, 1)
		assert.True(t, markers[types.FeatureSkills].Equal(base.Add(time.Hour)))

		assert.ErrorIs(t, s.UpsertLastViewed(ctx, testUser, testHub, types.Feature("bogus"), base), types.ErrUnknownFeature)
	})
}

func TestUnreadFeedTotal(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seed(t, s,
			notification("m1", types.FeatureMessages, otherUser, base),
			notification("a1", types.FeatureAssignments, otherUser, base),
			notification("a2", types.FeatureAssignments, otherUser, base),
			notification("own", types.FeatureAssignments, testUser, base),
		)

		total, err := s.UnreadFeedTotal(ctx, testUser, testHub, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, total)

		total, err = s.UnreadFeedTotal(ctx, testUser, testHub, []types.Feature{types.FeatureMessages})
		require.NoError(t, err)
		assert.Equal(t, 1, total)

		total, err = s.UnreadFeedTotal(ctx, testUser, testHub, []types.Feature{})
		require.NoError(t, err)
		assert.Equal(t, 0, total)
	})
}

func TestUnreadFeedByFeature(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seed(t, s,
			notification("m1", types.FeatureMessages, otherUser, base),
			notification("a1", types.FeatureAssignments, otherUser, base),
			notification("a2", types.FeatureAssignments, otherUser, base),
			notification("a3", types.FeatureAssignments, otherUser, base),
			notification("own", types.FeatureSkills, testUser, base),
		)
		_, _, err := s.MarkRead(ctx, testUser, "a3")
		require.NoError(t, err)

		tally, err := s.UnreadFeedByFeature(ctx, testUser, testHub, nil)
		require.NoError(t, err)
		assert.Equal(t, types.FeedTally{types.FeatureMessages: 1, types.FeatureAssignments: 2}, tally)

		tally, err = s.UnreadFeedByFeature(ctx, testUser, testHub, []types.Feature{types.FeatureAssignments})
		require.NoError(t, err)
		assert.Equal(t, types.FeedTally{types.FeatureAssignments: 2}, tally)

		tally, err = s.UnreadFeedByFeature(ctx, testUser, testHub, []types.Feature{})
		require.NoError(t, err)
		assert.Empty(t, tally)
	})
}

func TestListFeed_Pagination(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for i := 0; i < 25; i++ {
			seed(t, s, notification(fmt.Sprintf("n%02d", i), types.FeatureCompetitions, otherUser, base.Add(time.Duration(i)*time.Minute)))
		}

		page1, err := s.ListFeed(ctx, FeedQuery{UserID: testUser, HubID: testHub, Limit: 20})
		require.NoError(t, err)
		require.Len(t, page1, 20)
		assert.Equal(t, "n24", page1[0].ID, "newest first")

		page2, err := s.ListFeed(ctx, FeedQuery{UserID: testUser, HubID: testHub, Limit: 20, Offset: 20})
		require.NoError(t, err)
		require.Len(t, page2, 5)
		assert.Equal(t, "n00", page2[4].ID)

		past, err := s.ListFeed(ctx, FeedQuery{UserID: testUser, HubID: testHub, Limit: 20, Offset: 100})
		require.NoError(t, err)
		assert.Empty(t, past)
	})
}

func TestListFeed_TypeFilter(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seed(t, s,
			notification("m1", types.FeatureMessages, otherUser, base),
			notification("a1", types.FeatureAssignments, otherUser, base.Add(time.Minute)),
			notification("k1", types.FeatureSkills, otherUser, base.Add(2*time.Minute)),
		)

		entries, err := s.ListFeed(ctx, FeedQuery{
			UserID: testUser, HubID: testHub, Limit: 10,
			Types: []types.Feature{types.FeatureMessages, types.FeatureSkills},
		})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "k1", entries[0].ID)
		assert.Equal(t, "m1", entries[1].ID)

		entries, err = s.ListFeed(ctx, FeedQuery{UserID: testUser, HubID: testHub, Limit: 10, Types: []types.Feature{}})
		require.NoError(t, err)
		assert.Empty(t, entries, "empty allowed set must not fall back to unfiltered")
	})
}

func TestListFeed_ScopedToPair(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		other := notification("x1", types.FeatureMessages, otherUser, base)
		other.HubID = "hub-2"
		seed(t, s, notification("m1", types.FeatureMessages, otherUser, base), other)

		entries, err := s.ListFeed(ctx, FeedQuery{UserID: testUser, HubID: testHub, Limit: 10})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "m1", entries[0].ID)
		assert.Equal(t, "entity-m1", entries[0].EntityID)
		assert.True(t, entries[0].CreatedAt.Equal(base))
	})
}

func TestCreateNotification(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		n := &types.ActivityNotification{UserID: testUser, HubID: testHub, Type: types.FeatureMarketplace}
		require.NoError(t, s.CreateNotification(ctx, n))
		assert.NotEmpty(t, n.ID)
		assert.False(t, n.CreatedAt.IsZero())

		bad := &types.ActivityNotification{UserID: testUser, HubID: testHub, Type: "bogus"}
		assert.ErrorIs(t, s.CreateNotification(ctx, bad), types.ErrUnknownFeature)
	})
}

func TestCreateNotification_ExistingIDKeepsReadFlag(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seed(t, s, notification("n1", types.FeatureMessages, otherUser, base))
		_, _, err := s.MarkRead(ctx, testUser, "n1")
		require.NoError(t, err)

		again := notification("n1", types.FeatureMessages, otherUser, base.Add(time.Hour))
		again.Title = "replacement"
		assert.ErrorIs(t, s.CreateNotification(ctx, again), ErrAlreadyExists)

		entries, err := s.ListFeed(ctx, FeedQuery{UserID: testUser, HubID: testHub, Limit: 10})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.True(t, entries[0].Read, "read flag never flips back")
		assert.NotEqual(t, "replacement", entries[0].Title)

		counts, err := s.AggregateCounts(ctx, testUser, testHub)
		require.NoError(t, err)
		assert.Zero(t, counts.Messages)
	})
}

func TestMarkRead(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seed(t, s, notification("m1", types.FeatureMessages, otherUser, base))

		entry, changed, err := s.MarkRead(ctx, testUser, "m1")
		require.NoError(t, err)
		assert.True(t, changed)
		require.NotNil(t, entry)
		assert.Equal(t, types.FeatureMessages, entry.Type)
		assert.Equal(t, otherUser, entry.ActorID)
		assert.True(t, entry.Read)

		entry, changed, err = s.MarkRead(ctx, testUser, "m1")
		require.NoError(t, err)
		assert.False(t, changed, "second read is idempotent")
		assert.True(t, entry.Read)

		_, _, err = s.MarkRead(ctx, otherUser, "m1")
		assert.ErrorIs(t, err, ErrNotFound, "scoped to the owning user")

		_, _, err = s.MarkRead(ctx, testUser, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMarkAllRead(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seed(t, s,
			notification("m1", types.FeatureMessages, otherUser, base),
			notification("a1", types.FeatureAssignments, otherUser, base),
			notification("a2", types.FeatureAssignments, otherUser, base),
		)
		_, _, err := s.MarkRead(ctx, testUser, "a2")
		require.NoError(t, err)

		updated, err := s.MarkAllRead(ctx, testUser, testHub)
		require.NoError(t, err)
		assert.Equal(t, int64(2), updated)

		entries, err := s.ListFeed(ctx, FeedQuery{UserID: testUser, HubID: testHub, Limit: 10})
		require.NoError(t, err)
		for _, e := range entries {
			assert.True(t, e.Read, e.ID)
		}

		total, err := s.UnreadFeedTotal(ctx, testUser, testHub, nil)
		require.NoError(t, err)
		assert.Zero(t, total)
	})
}

func TestPreferences(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		prefs, err := s.GetPreferences(ctx, testUser, testHub)
		require.NoError(t, err)
		assert.Nil(t, prefs, "absent record")

		merged, err := s.UpsertPreferences(ctx, testUser, testHub, types.PreferenceUpdate{types.FeatureAssignments: false}, base)
		require.NoError(t, err)
		assert.False(t, merged.IsEnabled(types.FeatureAssignments))
		assert.True(t, merged.IsEnabled(types.FeatureMessages))

		merged, err = s.UpsertPreferences(ctx, testUser, testHub, types.PreferenceUpdate{types.FeatureSkills: false}, base.Add(time.Hour))
		require.NoError(t, err)
		assert.False(t, merged.IsEnabled(types.FeatureAssignments), "earlier flag kept by merge")
		assert.False(t, merged.IsEnabled(types.FeatureSkills))

		stored, err := s.GetPreferences(ctx, testUser, testHub)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, merged.Enabled, stored.Enabled)
		assert.True(t, stored.UpdatedAt.Equal(base.Add(time.Hour)))

		_, err = s.UpsertPreferences(ctx, testUser, testHub, types.PreferenceUpdate{"bogus": true}, base)
		assert.ErrorIs(t, err, types.ErrUnknownFeature)
	})
}

func TestPutPreferences(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		in := &types.UserNotificationPreferences{
			UserID:    testUser,
			HubID:     testHub,
			Enabled:   map[types.Feature]bool{types.FeatureScores: false},
			UpdatedAt: base,
		}
		require.NoError(t, s.PutPreferences(ctx, in))

		out, err := s.GetPreferences(ctx, testUser, testHub)
		require.NoError(t, err)
		require.NotNil(t, out)
		assert.False(t, out.IsEnabled(types.FeatureScores))
		assert.True(t, out.IsEnabled(types.FeatureMessages))
	})
}

func TestSQLStore_MigrationsIdempotent(t *testing.T) {
	path := t.TempDir() + "/notifsync.sqlite"

	s, err := NewSQLStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLStore(path)
	require.NoError(t, err)
	defer s.Close()

	version, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, migrations[len(migrations)-1].version, version)
}

func TestBoltStore_Exporters(t *testing.T) {
	s, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	seed(t, s, notification("m1", types.FeatureMessages, otherUser, base))
	require.NoError(t, s.UpsertLastViewed(ctx, testUser, testHub, types.FeatureSkills, base))
	_, err = s.UpsertPreferences(ctx, testUser, testHub, types.PreferenceUpdate{types.FeatureSkills: false}, base)
	require.NoError(t, err)

	var ids []string
	require.NoError(t, s.ForEachNotification(func(n *types.ActivityNotification) error {
		ids = append(ids, n.ID)
		return nil
	}))
	assert.Equal(t, []string{"m1"}, ids)

	var markers []LastViewed
	require.NoError(t, s.ForEachLastViewed(func(lv LastViewed) error {
		markers = append(markers, lv)
		return nil
	}))
	require.Len(t, markers, 1)
	assert.Equal(t, types.FeatureSkills, markers[0].Feature)

	prefsSeen := 0
	require.NoError(t, s.ForEachPreferences(func(p *types.UserNotificationPreferences) error {
		prefsSeen++
		assert.False(t, p.IsEnabled(types.FeatureSkills))
		return nil
	}))
	assert.Equal(t, 1, prefsSeen)
}

func TestPing(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		assert.NoError(t, s.Ping(context.Background()))
	})

	bs, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, bs.Close())
	assert.Error(t, bs.Ping(context.Background()))

	ss, err := NewSQLStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, ss.Close())
	assert.Error(t, ss.Ping(context.Background()))
}
