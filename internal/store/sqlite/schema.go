package sqlite

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		suspended  INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS meetings (
		id                TEXT PRIMARY KEY,
		room_id           TEXT NOT NULL UNIQUE,
		title             TEXT NOT NULL,
		requires_approval INTEGER NOT NULL DEFAULT 0,
		created_at        TIMESTAMP NOT NULL,
		ended_at          TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS participants (
		user_id    TEXT NOT NULL,
		meeting_id TEXT NOT NULL REFERENCES meetings(id) ON DELETE CASCADE,
		is_host    INTEGER NOT NULL DEFAULT 0,
		joined_at  TIMESTAMP NOT NULL,
		left_at    TIMESTAMP,
		PRIMARY KEY (user_id, meeting_id)
	)`,
	`CREATE TABLE IF NOT EXISTS join_requests (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		user_name   TEXT NOT NULL,
		meeting_id  TEXT NOT NULL REFERENCES meetings(id) ON DELETE CASCADE,
		status      TEXT NOT NULL CHECK (status IN ('pending', 'approved', 'declined')),
		created_at  TIMESTAMP NOT NULL,
		resolved_at TIMESTAMP,
		resolved_by TEXT
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS join_requests_one_pending
		ON join_requests (user_id, meeting_id) WHERE status = 'pending'`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id         TEXT PRIMARY KEY,
		meeting_id TEXT NOT NULL REFERENCES meetings(id) ON DELETE CASCADE,
		user_id    TEXT NOT NULL,
		user_name  TEXT NOT NULL,
		message    TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS chat_messages_meeting ON chat_messages (meeting_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS admin_activity (
		id         TEXT PRIMARY KEY,
		admin_id   TEXT NOT NULL,
		action     TEXT NOT NULL,
		target     TEXT NOT NULL,
		detail     TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,
}
