package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Wawtawsha/durandal-mcp/internal/errdef"
	. "github.com/Wawtawsha/durandal-mcp/internal/logging"
)

// Projects and sessions are created lazily on first reference by name and
// are otherwise immutable from the core's perspective.

// EnsureProject returns the id of the named project, creating it if needed.
func (s *Store) EnsureProject(ctx context.Context, name, path string) (int64, error) {
	if name == "" {
		return 0, errdef.Validation("project", "project name must be non-empty")
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM projects WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, s.wrapErr(ctx, "lookup project", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (name, path, created_at) VALUES (?, ?, ?)
	`, name, path, formatTS(s.now()))
	if err != nil {
		// A concurrent creator may have won the unique-name race.
		if selErr := s.db.QueryRowContext(ctx, `SELECT id FROM projects WHERE name = ?`, name).Scan(&id); selErr == nil {
			return id, nil
		}
		return 0, s.wrapErr(ctx, "create project", err)
	}

	id, err = result.LastInsertId()
	if err != nil {
		return 0, errdef.Internal(fmt.Errorf("last insert id: %w", err))
	}
	L_debug("store: created project", "name", name, "id", id)
	return id, nil
}

// EnsureSession returns the id of the named session within a project,
// creating both lazily. An empty project name maps to "default".
func (s *Store) EnsureSession(ctx context.Context, project, sessionName string) (int64, error) {
	if sessionName == "" {
		return 0, errdef.Validation("session", "session name must be non-empty")
	}
	if project == "" {
		project = "default"
	}

	projectID, err := s.EnsureProject(ctx, project, "")
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		SELECT id FROM conversation_sessions WHERE project_id = ? AND session_name = ?
	`, projectID, sessionName).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, s.wrapErr(ctx, "lookup session", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := formatTS(s.now())
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_sessions (project_id, session_name, created_at, last_message_at, is_active)
		VALUES (?, ?, ?, ?, 1)
	`, projectID, sessionName, now, now)
	if err != nil {
		if selErr := s.db.QueryRowContext(ctx, `
			SELECT id FROM conversation_sessions WHERE project_id = ? AND session_name = ?
		`, projectID, sessionName).Scan(&id); selErr == nil {
			return id, nil
		}
		return 0, s.wrapErr(ctx, "create session", err)
	}

	id, err = result.LastInsertId()
	if err != nil {
		return 0, errdef.Internal(fmt.Errorf("last insert id: %w", err))
	}
	L_debug("store: created session", "project", project, "session", sessionName, "id", id)
	return id, nil
}

// LookupSessionByName finds a session id by name across all projects,
// returning (0, nil) when no session carries the name.
func (s *Store) LookupSessionByName(ctx context.Context, sessionName string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM conversation_sessions WHERE session_name = ? ORDER BY last_message_at DESC LIMIT 1
	`, sessionName).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, s.wrapErr(ctx, "lookup session", err)
	}
	return id, nil
}

// AddMessage appends a conversation row to a session. role must be one of
// user, assistant, system.
func (s *Store) AddMessage(ctx context.Context, sessionID int64, role, content string, metadata json.RawMessage) (int64, error) {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
	default:
		return 0, errdef.Validation("role", fmt.Sprintf("role %q is not one of user, assistant, system", role))
	}

	meta, err := normalizeMetadata(metadata)
	if err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := formatTS(s.now())
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_messages (session_id, role, content, metadata, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, role, content, string(meta), now)
	if err != nil {
		return 0, s.wrapErr(ctx, "insert message", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		UPDATE conversation_sessions SET last_message_at = ? WHERE id = ?
	`, now, sessionID); err != nil {
		L_warn("store: failed to bump last_message_at", "session", sessionID, "error", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, errdef.Internal(fmt.Errorf("last insert id: %w", err))
	}
	return id, nil
}

// GetSessionMessages returns the last limit messages of a session in
// chronological order (oldest first), as the analyzer expects.
func (s *Store) GetSessionMessages(ctx context.Context, sessionID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, metadata, timestamp
		FROM conversation_messages
		WHERE session_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, s.wrapErr(ctx, "session messages", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var metadata, ts string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &metadata, &ts); err != nil {
			return nil, errdef.Internal(fmt.Errorf("scan message: %w", err))
		}
		m.Metadata = repairMetadata(m.ID, metadata)
		m.Timestamp = parseTS(ts)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errdef.Internal(err)
	}

	// Flip newest-first fetch order into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// AddArtifact records a piece of extracted knowledge against a session.
func (s *Store) AddArtifact(ctx context.Context, a *Artifact) (int64, error) {
	if a.ArtifactType == "" {
		return 0, errdef.Validation("artifact_type", "artifact_type must be non-empty")
	}
	if a.Content == "" {
		return 0, errdef.Validation("content", "content must be non-empty")
	}

	meta, err := normalizeMetadata(a.Metadata)
	if err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO extracted_artifacts (session_id, artifact_type, title, content, metadata, importance_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.SessionID, a.ArtifactType, a.Title, a.Content, string(meta), clamp01(a.ImportanceScore), formatTS(s.now()))
	if err != nil {
		return 0, s.wrapErr(ctx, "insert artifact", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, errdef.Internal(fmt.Errorf("last insert id: %w", err))
	}
	return id, nil
}

// GetSessionArtifacts returns a session's artifacts, most important first.
func (s *Store) GetSessionArtifacts(ctx context.Context, sessionID int64, limit int) ([]Artifact, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, artifact_type, COALESCE(title, ''), content, metadata, importance_score, created_at
		FROM extracted_artifacts
		WHERE session_id = ?
		ORDER BY importance_score DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, s.wrapErr(ctx, "session artifacts", err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		var a Artifact
		var metadata, createdAt string
		if err := rows.Scan(&a.ID, &a.SessionID, &a.ArtifactType, &a.Title, &a.Content, &metadata, &a.ImportanceScore, &createdAt); err != nil {
			return nil, errdef.Internal(fmt.Errorf("scan artifact: %w", err))
		}
		a.Metadata = repairMetadata(a.ID, metadata)
		a.CreatedAt = parseTS(createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}
