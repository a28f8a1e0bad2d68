/*
Package types defines the core data structures used throughout notifsync.

This package contains the domain model shared by the engine, the storage
backends, the event broker and the HTTP API: features, unread counts,
per-user preferences, feed entries, and live change events.

# Architecture

The types package is the foundation of the synchronization engine's data
model. It defines:

  - Feature: one notification category tracked for unread state
  - NotificationCounts: the unread signal of every feature
  - UserNotificationPreferences: per-(user, hub) enable flags
  - ActivityNotification: one entry of the paginated activity feed
  - FeedTally: unread feed entries per feature
  - Topic and ChangeEvent: the live-subscription vocabulary; a ChangeEvent
    with a RecipientID concerns that user only

All types are designed to be:
  - Serializable (JSON for the API and BoltDB, YAML for fixtures)
  - Complete (NotificationCounts always carries every feature)
  - Fail-open (a nil preference record enables everything)

# Features

Exactly one feature, messages, is numeric and accumulates a count. Every
other feature is a boolean "has unseen since last view" flag:

	messages          numeric
	calendar_events   boolean
	competitions      boolean
	scores            boolean
	skills            boolean
	assignments       boolean
	marketplace       boolean
	shared_resources  boolean
	staff_tasks       boolean

# Topics

Each topic carries row changes for one record category and fans into
exactly one feature:

	chat_messages         → messages
	calendar_events       → calendar_events
	competitions          → competitions
	competition_scores    → scores
	skills                → skills
	assignments           → assignments
	marketplace_listings  → marketplace
	shared_resources      → shared_resources
	staff_tasks           → staff_tasks

# Usage

Building counts and reading a signal:

	counts := types.NewNotificationCounts()
	counts.Messages = 3
	counts.Unseen[types.FeatureAssignments] = true

	counts.Value(types.FeatureMessages)    // 3
	counts.Value(types.FeatureAssignments) // 1

Preferences, including the fail-open rule:

	var prefs *types.UserNotificationPreferences // no record
	prefs.IsEnabled(types.FeatureScores)         // true

	prefs = prefs.Merge("user-1", "hub-1", types.PreferenceUpdate{
		types.FeatureScores: false,
	}, time.Now())
	prefs.IsEnabled(types.FeatureScores) // false
	prefs.EnabledFeatures()              // every feature except scores

Resolving a change event's feature:

	feature, err := types.TopicAssignments.Feature() // assignments
*/
package types
