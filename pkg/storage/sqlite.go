package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/cuemby/notifsync/pkg/types"
)

// SQLStore implements the Store interface using a SQLite database.
type SQLStore struct {
	db *sqlx.DB
}

// notificationRow is the column layout of the notifications table.
type notificationRow struct {
	ID         string `db:"id"`
	UserID     string `db:"user_id"`
	HubID      string `db:"hub_id"`
	Type       string `db:"type"`
	EntityType string `db:"entity_type"`
	EntityID   string `db:"entity_id"`
	Title      string `db:"title"`
	Body       string `db:"body"`
	ActorID    string `db:"actor_id"`
	Read       int    `db:"read"`
	CreatedAt  int64  `db:"created_at"`
}

func (r notificationRow) toNotification() *types.ActivityNotification {
	return &types.ActivityNotification{
		ID:         r.ID,
		UserID:     r.UserID,
		HubID:      r.HubID,
		Type:       types.Feature(r.Type),
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		Title:      r.Title,
		Body:       r.Body,
		ActorID:    r.ActorID,
		Read:       r.Read != 0,
		CreatedAt:  time.Unix(0, r.CreatedAt).UTC(),
	}
}

// preferencesRow is the column layout of the notification_preferences table.
type preferencesRow struct {
	UserID    string `db:"user_id"`
	HubID     string `db:"hub_id"`
	Enabled   string `db:"enabled"`
	UpdatedAt int64  `db:"updated_at"`
}

// NewSQLStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLStore(dbPath string) (*SQLStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// One connection so that ":memory:" databases are shared by every query.
	db.SetMaxOpenConns(1)

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	s := &SQLStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database still answers queries.
func (s *SQLStore) Ping(ctx context.Context) error {
	var one int
	return s.db.GetContext(ctx, &one, "SELECT 1")
}

// SchemaVersion returns the highest applied migration version.
func (s *SQLStore) SchemaVersion() (int, error) {
	var version int
	err := s.db.Get(&version, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
	return version, err
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		currentVersion, err = s.SchemaVersion()
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// AggregateCounts computes unread and unseen tallies per feature in one query.
func (s *SQLStore) AggregateCounts(ctx context.Context, userID, hubID string) (types.NotificationCounts, error) {
	const query = `
		SELECT n.type AS type,
		       COUNT(*) AS total,
		       SUM(CASE WHEN n.read = 0 THEN 1 ELSE 0 END) AS unread
		FROM notifications n
		LEFT JOIN last_viewed lv
		       ON lv.user_id = n.user_id AND lv.hub_id = n.hub_id AND lv.feature = n.type
		WHERE n.user_id = ? AND n.hub_id = ? AND n.actor_id <> ?
		  AND (lv.viewed_at IS NULL OR n.created_at > lv.viewed_at)
		GROUP BY n.type`

	var rows []struct {
		Type   string `db:"type"`
		Total  int    `db:"total"`
		Unread int    `db:"unread"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, userID, hubID, userID); err != nil {
		return types.NotificationCounts{}, fmt.Errorf("aggregating counts: %w", err)
	}

	unread := make(map[types.Feature]int, len(rows))
	total := make(map[types.Feature]int, len(rows))
	for _, r := range rows {
		unread[types.Feature(r.Type)] = r.Unread
		total[types.Feature(r.Type)] = r.Total
	}
	return countsFromTallies(unread, total), nil
}

// UnreadFeedTotal counts unread entries not authored by the user.
func (s *SQLStore) UnreadFeedTotal(ctx context.Context, userID, hubID string, allowed []types.Feature) (int, error) {
	tally, err := s.UnreadFeedByFeature(ctx, userID, hubID, allowed)
	if err != nil {
		return 0, err
	}
	return tally.Total(), nil
}

// UnreadFeedByFeature counts unread entries not authored by the user, per feature.
func (s *SQLStore) UnreadFeedByFeature(ctx context.Context, userID, hubID string, allowed []types.Feature) (types.FeedTally, error) {
	tally := types.FeedTally{}
	if allowed != nil && len(allowed) == 0 {
		return tally, nil
	}

	query := "SELECT type, COUNT(*) AS unread FROM notifications WHERE user_id = ? AND hub_id = ? AND read = 0 AND actor_id <> ?"
	args := []interface{}{userID, hubID, userID}

	if allowed != nil {
		in, inArgs, err := sqlx.In(" AND type IN (?)", featureStrings(allowed))
		if err != nil {
			return nil, fmt.Errorf("building type filter: %w", err)
		}
		query += in
		args = append(args, inArgs...)
	}
	query += " GROUP BY type"

	var rows []struct {
		Type   string `db:"type"`
		Unread int    `db:"unread"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("counting unread feed: %w", err)
	}
	for _, r := range rows {
		tally[types.Feature(r.Type)] = r.Unread
	}
	return tally, nil
}

// ListFeed returns one page of entries newest first.
func (s *SQLStore) ListFeed(ctx context.Context, q FeedQuery) ([]*types.ActivityNotification, error) {
	if q.Types != nil && len(q.Types) == 0 {
		return []*types.ActivityNotification{}, nil
	}

	query := "SELECT * FROM notifications WHERE user_id = ? AND hub_id = ?"
	args := []interface{}{q.UserID, q.HubID}

	if q.Types != nil {
		in, inArgs, err := sqlx.In(" AND type IN (?)", featureStrings(q.Types))
		if err != nil {
			return nil, fmt.Errorf("building type filter: %w", err)
		}
		query += in
		args = append(args, inArgs...)
	}

	query += " ORDER BY created_at DESC, id DESC"

	// SQLite requires a LIMIT before OFFSET; -1 means unbounded.
	limit := -1
	if q.Limit > 0 {
		limit = q.Limit
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, q.Offset)

	var rows []notificationRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("querying feed: %w", err)
	}

	entries := make([]*types.ActivityNotification, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.toNotification())
	}
	return entries, nil
}

// CreateNotification inserts a notification record. An existing id is never
// overwritten so a read flag cannot flip back to unread.
func (s *SQLStore) CreateNotification(ctx context.Context, n *types.ActivityNotification) error {
	if err := n.Validate(); err != nil {
		return err
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (
			id, user_id, hub_id, type, entity_type, entity_id,
			title, body, actor_id, read, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		n.ID, n.UserID, n.HubID, string(n.Type), n.EntityType, n.EntityID,
		n.Title, n.Body, n.ActorID, boolToInt(n.Read), n.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("notification %s: %w", n.ID, ErrAlreadyExists)
	}
	return nil
}

// MarkRead flips one entry to read. changed is false when it was already read.
func (s *SQLStore) MarkRead(ctx context.Context, userID, id string) (*types.ActivityNotification, bool, error) {
	var row notificationRow
	err := s.db.GetContext(ctx, &row,
		"SELECT * FROM notifications WHERE id = ? AND user_id = ?", id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading notification %s: %w", id, err)
	}
	n := row.toNotification()
	if n.Read {
		return n, false, nil
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE id = ? AND user_id = ? AND read = 0",
		id, userID,
	)
	if err != nil {
		return nil, false, fmt.Errorf("marking notification %s as read: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("checking rows affected: %w", err)
	}
	n.Read = true
	return n, affected > 0, nil
}

// MarkAllRead flips every unread entry of the pair in one statement.
func (s *SQLStore) MarkAllRead(ctx context.Context, userID, hubID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE user_id = ? AND hub_id = ? AND read = 0",
		userID, hubID,
	)
	if err != nil {
		return 0, fmt.Errorf("marking all notifications read: %w", err)
	}
	return result.RowsAffected()
}

// UpsertLastViewed replaces the marker for (user, hub, feature).
func (s *SQLStore) UpsertLastViewed(ctx context.Context, userID, hubID string, f types.Feature, at time.Time) error {
	if !f.Valid() {
		return fmt.Errorf("%w: %q", types.ErrUnknownFeature, f)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO last_viewed (user_id, hub_id, feature, viewed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, hub_id, feature) DO UPDATE SET viewed_at = excluded.viewed_at`,
		userID, hubID, string(f), at.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upserting last viewed %s: %w", f, err)
	}
	return nil
}

// GetLastViewed returns every marker of the pair.
func (s *SQLStore) GetLastViewed(ctx context.Context, userID, hubID string) (map[types.Feature]time.Time, error) {
	var rows []struct {
		Feature  string `db:"feature"`
		ViewedAt int64  `db:"viewed_at"`
	}
	err := s.db.SelectContext(ctx, &rows,
		"SELECT feature, viewed_at FROM last_viewed WHERE user_id = ? AND hub_id = ?",
		userID, hubID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying last viewed: %w", err)
	}

	markers := make(map[types.Feature]time.Time, len(rows))
	for _, r := range rows {
		markers[types.Feature(r.Feature)] = time.Unix(0, r.ViewedAt).UTC()
	}
	return markers, nil
}

// GetPreferences returns nil, nil when the pair has no record.
func (s *SQLStore) GetPreferences(ctx context.Context, userID, hubID string) (*types.UserNotificationPreferences, error) {
	return getPreferences(ctx, s.db, userID, hubID)
}

// UpsertPreferences merges update into the stored record inside one transaction.
func (s *SQLStore) UpsertPreferences(ctx context.Context, userID, hubID string, update types.PreferenceUpdate, at time.Time) (*types.UserNotificationPreferences, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := getPreferences(ctx, tx, userID, hubID)
	if err != nil {
		return nil, err
	}
	merged := current.Merge(userID, hubID, update, at.UTC())
	if err := putPreferences(ctx, tx, merged); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing preferences: %w", err)
	}
	return merged, nil
}

// PutPreferences stores a complete record as-is.
func (s *SQLStore) PutPreferences(ctx context.Context, prefs *types.UserNotificationPreferences) error {
	return putPreferences(ctx, s.db, prefs)
}

func getPreferences(ctx context.Context, q sqlx.QueryerContext, userID, hubID string) (*types.UserNotificationPreferences, error) {
	var row preferencesRow
	err := sqlx.GetContext(ctx, q, &row,
		"SELECT * FROM notification_preferences WHERE user_id = ? AND hub_id = ?",
		userID, hubID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting preferences: %w", err)
	}

	prefs := &types.UserNotificationPreferences{
		UserID:    row.UserID,
		HubID:     row.HubID,
		Enabled:   make(map[types.Feature]bool),
		UpdatedAt: time.Unix(0, row.UpdatedAt).UTC(),
	}
	if err := json.Unmarshal([]byte(row.Enabled), &prefs.Enabled); err != nil {
		return nil, fmt.Errorf("unmarshaling enabled flags: %w", err)
	}
	return prefs, nil
}

func putPreferences(ctx context.Context, e sqlx.ExecerContext, prefs *types.UserNotificationPreferences) error {
	enabled, err := json.Marshal(prefs.Enabled)
	if err != nil {
		return fmt.Errorf("marshaling enabled flags: %w", err)
	}
	_, err = e.ExecContext(ctx, `
		INSERT INTO notification_preferences (user_id, hub_id, enabled, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, hub_id) DO UPDATE SET
			enabled = excluded.enabled, updated_at = excluded.updated_at`,
		prefs.UserID, prefs.HubID, string(enabled), prefs.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upserting preferences: %w", err)
	}
	return nil
}

func featureStrings(fs []types.Feature) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = string(f)
	}
	return out
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
