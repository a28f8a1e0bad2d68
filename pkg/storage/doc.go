/*
Package storage provides the notification source of truth for notifsync.

The Store interface covers every query and write the engine issues against
durable state: the per-pair aggregate counts, the unread feed total, feed
pages, read-flag writes, last-viewed markers and notification preferences.
Two implementations are provided and share one conformance test suite.

# Architecture

	┌──────────────────────── STORE ─────────────────────────────┐
	│                                                              │
	│   engine (refresher, acknowledger, feed, preferences)       │
	│                        │                                     │
	│                        ▼                                     │
	│                 storage.Store                                │
	│            ┌───────────┴────────────┐                        │
	│            ▼                        ▼                        │
	│      BoltStore                  SQLStore                     │
	│   <dataDir>/notifsync.db     sqlite (sqlx + modernc)         │
	│   ┌──────────────────┐       ┌─────────────────────────┐    │
	│   │ notifications    │       │ notifications           │    │
	│   │ last_viewed      │       │ last_viewed             │    │
	│   │ preferences      │       │ notification_preferences│    │
	│   └──────────────────┘       │ schema_version          │    │
	│   JSON values, scans         └─────────────────────────┘    │
	│                              indexed SQL, migrations         │
	└──────────────────────────────────────────────────────────────┘

# Aggregate Semantics

AggregateCounts is computed per (user, hub). Items authored by the user are
never counted. An item counts toward a feature only when it is newer than the
feature's last-viewed marker, or when no marker exists.

  - messages: number of qualifying items not yet read
  - every other feature: true when at least one qualifying item exists

UnreadFeedTotal counts unread, non-self-authored entries and
UnreadFeedByFeature returns the same count split per feature. Like ListFeed
they take an optional allowed-feature list: nil means all features, an empty
non-nil list matches nothing.

CreateNotification never overwrites: an existing id yields ErrAlreadyExists
and the stored entry, read flag included, is left as it was. MarkRead reports
whether the entry actually changed.

# Keys

BoltStore keys notifications by id. Markers and preferences use composite
keys joined by NUL bytes (user, hub[, feature]) so that a cursor seek on the
(user, hub) prefix returns every marker of the pair.

SQLStore stores timestamps as Unix nanoseconds to keep ordering exact, and
resolves upsert conflicts on the (user, hub[, feature]) primary key.

# Migration

BoltStore exposes ForEachNotification, ForEachLastViewed and
ForEachPreferences for the notifsync-migrate tool, which copies a BoltDB file
into a SQLite database.

# Usage

	store, err := storage.NewSQLStore("/var/lib/notifsync/notifsync.sqlite")
	if err != nil {
		return err
	}
	defer store.Close()

	counts, err := store.AggregateCounts(ctx, userID, hubID)
	entries, err := store.ListFeed(ctx, storage.FeedQuery{
		UserID: userID,
		HubID:  hubID,
		Limit:  20,
		Types:  prefs.EnabledFeatures(),
	})
*/
package storage
