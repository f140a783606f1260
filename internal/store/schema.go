package store

// schema matches the matrix-sdk-crypto.db persistence contract in spec §6:
// one accounts row per (user_id, device_id), sessions and inbound group
// sessions keyed by sender, devices with their algorithms and keys as child
// tables. Every child table cascades on account deletion.
const schema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS accounts (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id     TEXT NOT NULL,
	device_id   TEXT NOT NULL,
	pickle      TEXT NOT NULL,
	shared      INTEGER NOT NULL DEFAULT 0,
	UNIQUE(user_id, device_id)
);

CREATE TABLE IF NOT EXISTS sessions (
	session_id    TEXT PRIMARY KEY,
	account_id    INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	creation_time INTEGER NOT NULL,
	last_use_time INTEGER NOT NULL,
	sender_key    TEXT NOT NULL,
	pickle        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_sender_key ON sessions(account_id, sender_key);

CREATE TABLE IF NOT EXISTS inbound_group_sessions (
	session_id  TEXT NOT NULL,
	account_id  INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	sender_key  TEXT NOT NULL,
	signing_key TEXT NOT NULL,
	room_id     TEXT NOT NULL,
	pickle      TEXT NOT NULL,
	PRIMARY KEY (account_id, room_id, sender_key, session_id)
);

CREATE TABLE IF NOT EXISTS devices (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id   INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	user_id      TEXT NOT NULL,
	device_id    TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	trust_state  INTEGER NOT NULL DEFAULT 0,
	deleted      INTEGER NOT NULL DEFAULT 0,
	UNIQUE(account_id, user_id, device_id)
);

CREATE TABLE IF NOT EXISTS algorithms (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id INTEGER NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
	algorithm TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS device_keys (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id INTEGER NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
	algorithm TEXT NOT NULL,
	key       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tracked_users (
	account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL,
	PRIMARY KEY (account_id, user_id)
);
`
