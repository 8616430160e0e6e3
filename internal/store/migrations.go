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

CREATE TABLE IF NOT EXISTS accounts (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	host              TEXT NOT NULL,
	port              INTEGER NOT NULL DEFAULT 0,
	username          TEXT NOT NULL,
	mailbox           TEXT NOT NULL DEFAULT '',
	tls               INTEGER NOT NULL DEFAULT 1,
	enabled           INTEGER NOT NULL DEFAULT 1,
	poll_interval_sec INTEGER NOT NULL DEFAULT 120,
	token_pattern     TEXT NOT NULL DEFAULT '',
	archive_folder    TEXT NOT NULL DEFAULT '',
	created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS watermarks (
	account_id TEXT PRIMARY KEY,
	last_uid   INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id               TEXT PRIMARY KEY,
	account_id       TEXT NOT NULL,
	uid              INTEGER NOT NULL,
	message_id       TEXT NOT NULL DEFAULT '',
	subject          TEXT NOT NULL DEFAULT '',
	from_address     TEXT NOT NULL DEFAULT '',
	from_display     TEXT NOT NULL DEFAULT '',
	token            TEXT NOT NULL DEFAULT '',
	date             DATETIME,
	unseen           INTEGER NOT NULL DEFAULT 0,
	attachment_count INTEGER NOT NULL DEFAULT 0,
	fetched_at       DATETIME NOT NULL,
	UNIQUE(account_id, uid)
);

CREATE INDEX IF NOT EXISTS idx_messages_account ON messages(account_id);
CREATE INDEX IF NOT EXISTS idx_messages_unseen ON messages(unseen);
CREATE INDEX IF NOT EXISTS idx_messages_token ON messages(token);
CREATE INDEX IF NOT EXISTS idx_messages_date ON messages(date);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_messages_account_unseen
	ON messages(account_id, unseen);

CREATE INDEX IF NOT EXISTS idx_messages_account_date
	ON messages(account_id, date);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
