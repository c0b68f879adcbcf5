package store

import (
	"database/sql"
	"fmt"

	. "github.com/Wawtawsha/durandal-mcp/internal/logging"
)

// Current schema version
const schemaVersion = 1

// Migration represents a database migration
type Migration struct {
	Version int
	Up      string
}

// Migrations for the memory database
var migrations = []Migration{
	{
		Version: 1,
		Up: `
-- Memories: independent of the session graph, associated by metadata only
CREATE TABLE IF NOT EXISTS memories (
    id INTEGER PRIMARY KEY,
    content TEXT NOT NULL,
    metadata TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at DESC);

-- Projects, created lazily on first reference by name
CREATE TABLE IF NOT EXISTS projects (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    path TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

-- Conversation sessions
CREATE TABLE IF NOT EXISTS conversation_sessions (
    id INTEGER PRIMARY KEY,
    project_id INTEGER NOT NULL,
    session_name TEXT NOT NULL,
    created_at TEXT NOT NULL,
    last_message_at TEXT NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 1,
    FOREIGN KEY (project_id) REFERENCES projects(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_project_name
    ON conversation_sessions(project_id, session_name);

-- Conversation messages
CREATE TABLE IF NOT EXISTS conversation_messages (
    id INTEGER PRIMARY KEY,
    session_id INTEGER NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
    content TEXT NOT NULL,
    metadata TEXT NOT NULL DEFAULT '{}',
    timestamp TEXT NOT NULL,
    FOREIGN KEY (session_id) REFERENCES conversation_sessions(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_session_time
    ON conversation_messages(session_id, timestamp);

-- Extracted artifacts
CREATE TABLE IF NOT EXISTS extracted_artifacts (
    id INTEGER PRIMARY KEY,
    session_id INTEGER NOT NULL,
    artifact_type TEXT NOT NULL,
    title TEXT,
    content TEXT NOT NULL,
    metadata TEXT NOT NULL DEFAULT '{}',
    importance_score REAL NOT NULL DEFAULT 0.5,
    created_at TEXT NOT NULL,
    FOREIGN KEY (session_id) REFERENCES conversation_sessions(id)
);

CREATE INDEX IF NOT EXISTS idx_artifacts_session_importance
    ON extracted_artifacts(session_id, importance_score DESC);

-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}

// InitSchema initializes the database schema
func InitSchema(db *sql.DB) error {
	var currentVersion int
	err := db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&currentVersion)
	if err != nil {
		// Table doesn't exist yet
		currentVersion = 0
	}

	for _, m := range migrations {
		if m.Version > currentVersion {
			L_info("store: applying migration", "version", m.Version)
			_, err := db.Exec(m.Up)
			if err != nil {
				return fmt.Errorf("migration %d failed: %w", m.Version, err)
			}
			currentVersion = m.Version
		}
	}

	L_debug("store: schema initialized", "version", currentVersion)
	return nil
}
