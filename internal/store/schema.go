package store

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL DEFAULT 'New Chat',
	created_at     REAL NOT NULL,
	updated_at     REAL NOT NULL,
	model_override TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS turns (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	user_text  TEXT NOT NULL,
	created_at REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, created_at);

CREATE TABLE IF NOT EXISTS steps (
	id          TEXT PRIMARY KEY,
	turn_id     TEXT NOT NULL REFERENCES turns(id) ON DELETE CASCADE,
	idx         INTEGER NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	started_at  REAL NOT NULL,
	finished_at REAL
);
CREATE INDEX IF NOT EXISTS idx_steps_turn ON steps(turn_id, idx);

CREATE TABLE IF NOT EXISTS events (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id   TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	turn_id      TEXT NOT NULL DEFAULT '',
	step_id      TEXT NOT NULL DEFAULT '',
	seq          INTEGER NOT NULL,
	ts           REAL NOT NULL,
	type         TEXT NOT NULL,
	payload_json TEXT NOT NULL DEFAULT '{}',
	UNIQUE(session_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_events_session_id ON events(session_id, id);

CREATE TABLE IF NOT EXISTS file_changes (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	turn_id      TEXT NOT NULL,
	step_id      TEXT NOT NULL,
	path         TEXT NOT NULL,
	unified_diff TEXT NOT NULL,
	created_at   REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_file_changes_session ON file_changes(session_id, created_at);

CREATE TABLE IF NOT EXISTS file_versions (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	path       TEXT NOT NULL,
	idx        INTEGER NOT NULL,
	sha256     TEXT NOT NULL,
	content    TEXT NOT NULL,
	note       TEXT NOT NULL DEFAULT '',
	created_at REAL NOT NULL,
	turn_id    TEXT NOT NULL DEFAULT '',
	step_id    TEXT NOT NULL DEFAULT '',
	UNIQUE(session_id, path, idx)
);
CREATE INDEX IF NOT EXISTS idx_file_versions_latest ON file_versions(session_id, path, idx DESC);

CREATE TABLE IF NOT EXISTS terminal_chunks (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id   TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	turn_id      TEXT NOT NULL,
	step_id      TEXT NOT NULL,
	tool_call_id TEXT NOT NULL,
	stream       TEXT NOT NULL,
	text         TEXT NOT NULL,
	ts           REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_terminal_chunks_session ON terminal_chunks(session_id, id);

CREATE TABLE IF NOT EXISTS permission_requests (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	turn_id     TEXT NOT NULL,
	step_id     TEXT NOT NULL,
	tool_name   TEXT NOT NULL,
	input_json  TEXT NOT NULL DEFAULT '{}',
	status      TEXT NOT NULL DEFAULT 'pending',
	scope       TEXT NOT NULL DEFAULT 'once',
	created_at  REAL NOT NULL,
	resolved_at REAL
);
CREATE INDEX IF NOT EXISTS idx_permission_requests_session ON permission_requests(session_id, status);

CREATE TABLE IF NOT EXISTS context_items (
	id              TEXT PRIMARY KEY,
	session_id      TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	kind            TEXT NOT NULL,
	title           TEXT NOT NULL,
	content_ref     TEXT NOT NULL,
	pinned          INTEGER NOT NULL DEFAULT 0,
	created_at      REAL NOT NULL,
	summary         TEXT NOT NULL DEFAULT '',
	summary_sha256  TEXT NOT NULL DEFAULT '',
	UNIQUE(session_id, kind, content_ref)
);

CREATE TABLE IF NOT EXISTS tool_policies (
	tool_name TEXT PRIMARY KEY,
	policy    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS global_memory (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL DEFAULT '',
	updated_at REAL NOT NULL
);
`
