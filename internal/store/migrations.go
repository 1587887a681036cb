package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	login            TEXT NOT NULL UNIQUE,
	chat_id          INTEGER NOT NULL DEFAULT 0,
	thread_id        INTEGER NOT NULL DEFAULT 0,
	telegram_user_id INTEGER NOT NULL DEFAULT 0,
	is_admin         INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	issue_id   INTEGER NOT NULL,
	message_id INTEGER NOT NULL,
	chat_id    INTEGER NOT NULL,
	created_on DATETIME NOT NULL,
	updated_on DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_issue_id ON messages(issue_id);
CREATE INDEX IF NOT EXISTS idx_messages_message_id ON messages(message_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
