package storage

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Versions are sequential starting from 1; timestamps are Unix nanoseconds.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	hub_id      TEXT NOT NULL,
	type        TEXT NOT NULL,
	entity_type TEXT NOT NULL DEFAULT '',
	entity_id   TEXT NOT NULL DEFAULT '',
	title       TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	actor_id    TEXT NOT NULL DEFAULT '',
	read        INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS last_viewed (
	user_id   TEXT NOT NULL,
	hub_id    TEXT NOT NULL,
	feature   TEXT NOT NULL,
	viewed_at INTEGER NOT NULL,
	PRIMARY KEY (user_id, hub_id, feature)
);

CREATE TABLE IF NOT EXISTS notification_preferences (
	user_id    TEXT NOT NULL,
	hub_id     TEXT NOT NULL,
	enabled    TEXT NOT NULL DEFAULT '{}',
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (user_id, hub_id)
);

CREATE INDEX IF NOT EXISTS idx_notifications_pair_created
	ON notifications(user_id, hub_id, created_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_notifications_pair_unread
	ON notifications(user_id, hub_id, read);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
