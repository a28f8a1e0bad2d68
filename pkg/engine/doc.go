/*
Package engine implements the notification synchronization engine.

The engine keeps one user's per-feature unread signals and activity feed
counter consistent across three concurrent inputs: live change events,
periodic authoritative refreshes, and the user's own acknowledgements. It
owns all of this state; consumers get an *Engine handle and interact only
through snapshots and the operations it exposes.

# Architecture

	┌────────────────────────── ENGINE ───────────────────────────────┐
	│                                                                   │
	│  PreferenceStore ──Refilter (no I/O)──┐                           │
	│        │                               ▼                           │
	│        │ snapshot              ┌──────────────┐                    │
	│        ├──────────────────────►│  CountCache  │◄── ApplyEvent ─┐   │
	│        │                       │  epoch       │                │   │
	│        │                       │  counts      │                │   │
	│        ▼                       │  feed tally  │         Ingester   │
	│   FeedService                  └──────────────┘        (events.    │
	│   (filtered pages)               ▲         ▲          EventHandler)│
	│                         ApplyFull│         │Clear/EntryRead    ▲   │
	│                                  │         │                   │   │
	│                            Refresher   Acknowledger     Subscription
	│                                  ▲    (in-flight guard)         │
	│                                  │                              │
	│                             Scheduler                           │
	│                  Active ⇄ Suspended (clockwork ticker)          │
	└───────────────────────────────────────────────────────────────────┘
	                        │                      │
	                        ▼                      ▼
	                  storage.Store     events.SubscriptionProvider

# Core Components

CountCache:
  - Messages counter plus one "has unseen" flag per boolean feature
  - Always filtered: a disabled feature reads zero/false
  - Re-enabling a feature does not restore a suppressed value
  - Feed unread kept per feature, so disabling a feature drops its entries
  - Epoch bumped on every pair change; components capture it at construction
    and their writes against an older epoch are dropped
  - Changed() channel for consumers that stream snapshots

PreferenceStore:
  - Snapshot of the pair's enable flags, nil meaning all enabled
  - Set updates the snapshot and refilters the cache before persisting
  - Only flags changed locally are written; stored flags for other features stay
  - A failed write keeps the change pending; the next write retries it

Refresher:
  - One aggregate query plus one unread-feed query per call
  - Failure leaves the cache untouched

Ingester:
  - Implements events.EventHandler, one method per topic
  - Drops self-authored events, other hubs, other recipients and disabled features
  - Each qualifying event bumps its feature and the feed counter together

Acknowledger:
  - MarkFeatureViewed clears optimistically, then writes the last-viewed marker
  - A second call for the same feature while one is outstanding is dropped
  - MarkEntryRead writes first and decrements only when a counted entry changed
  - MarkAllRead zeroes the counter and issues one bulk write
  - Failed writes are not rolled back; the next refresh corrects

FeedService:
  - Offset pages, newest first, filtered to enabled features
  - An empty enabled set yields an empty page without querying

Scheduler:
  - Refreshes once when the pair is activated
  - Active runs the ticker; Suspended stops it
  - Regaining foreground refreshes once, then restarts the ticker
  - The only place refreshes are scheduled

# Concurrency

CountCache and PreferenceStore are mutex-protected and safe for concurrent
use. Engine operations hold the engine's read lock only long enough to pick up
the active pair, then run without it; Activate/Deactivate take it for writing.
An operation still running when the pair changes writes into a cache epoch
that has moved on, so its result is discarded.
Tearing down a pair cancels its context, waits for the scheduler loop to
exit and closes the live subscription synchronously before the next pair's
components are created.

# Usage

	eng := engine.New(store, broker, engine.Options{
		RefreshInterval: time.Minute,
		RequestTimeout:  15 * time.Second,
	})
	defer eng.Close()

	if err := eng.Activate(ctx, userID, hubID, true); err != nil {
		return err
	}

	snap := eng.Snapshot()
	fmt.Println(snap.Counts.Messages, snap.FeedUnread)

	err := eng.MarkFeatureViewed(ctx, types.FeatureMessages)
	if errors.Is(err, engine.ErrAcknowledgementInFlight) {
		// already being acknowledged
	}

	page, err := eng.FetchFeedPage(ctx, 20, 0)
	eng.SetForeground(false)
*/
package engine
