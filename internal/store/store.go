// Package store owns the on-disk schema, connection lifecycle, and all
// parameterized access to the embedded SQLite database. The storage dialect
// stays behind this package; callers see tagged errors and plain rows.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/Wawtawsha/durandal-mcp/internal/errdef"
	. "github.com/Wawtawsha/durandal-mcp/internal/logging"
	"github.com/Wawtawsha/durandal-mcp/internal/metrics"
	"github.com/Wawtawsha/durandal-mcp/internal/paths"
)

// Store handles all durable access. Readers run in parallel; writers are
// serialized by writeMu on top of SQLite's WAL mode.
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex

	softLimit int

	clockMu sync.Mutex
	lastTS  time.Time

	invalidate func(ids ...int64)

	closeMu sync.Mutex
	closed  bool
}

// Options configures Open.
type Options struct {
	// ContentSoftLimit warns (never rejects) above this many bytes.
	ContentSoftLimit int
}

// Open opens (creating if needed) the database at path and migrates the
// schema. Failures here are fatal for the process and tagged
// StorageUnavailable.
func Open(path string, opts Options) (*Store, error) {
	if strings.HasPrefix(path, "~") {
		expanded, err := paths.ExpandTilde(path)
		if err != nil {
			return nil, errdef.StorageUnavailable("open", err)
		}
		path = expanded
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, errdef.StorageUnavailable("open", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, errdef.StorageUnavailable("open", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errdef.StorageUnavailable("open", err)
	}

	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, errdef.StorageUnavailable("migrate", err)
	}

	softLimit := opts.ContentSoftLimit
	if softLimit <= 0 {
		softLimit = 1 << 20
	}

	L_debug("store: opened database", "path", path)
	return &Store{db: db, softLimit: softLimit}, nil
}

// SetInvalidator registers the cache invalidation hook. It runs before any
// mutating call returns, so a cache entry never outlives its row.
func (s *Store) SetInvalidator(fn func(ids ...int64)) {
	s.invalidate = fn
}

// DB exposes the handle for the self-test's schema checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the database handle. Idempotent.
func (s *Store) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	L_debug("store: closing database")
	if err := s.db.Close(); err != nil {
		return errdef.StorageUnavailable("close", err)
	}
	return nil
}

// now returns a wall-clock timestamp that never decreases within this
// process, so created_at ordering matches insertion order even when inserts
// land inside one clock tick.
func (s *Store) now() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	t := time.Now().UTC()
	if !t.After(s.lastTS) {
		t = s.lastTS.Add(time.Nanosecond)
	}
	s.lastTS = t
	return t
}

// tsLayout is RFC3339 with a fixed-width nanosecond fraction, so the TEXT
// timestamp columns sort in time order.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTS(t time.Time) string {
	return t.Format(tsLayout)
}

func parseTS(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}

// normalizeMetadata coerces caller-supplied metadata to a valid JSON object
// blob. null/empty becomes {}; anything unparseable is a validation error.
func normalizeMetadata(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(raw) {
		return nil, errdef.Validation("metadata", "metadata is not valid JSON")
	}
	return raw, nil
}

// repairMetadata guarantees the invariant that metadata read from the store
// always parses: corrupt blobs are replaced with {} and logged at warn.
func repairMetadata(id int64, raw string) json.RawMessage {
	if json.Valid([]byte(raw)) && strings.TrimSpace(raw) != "" {
		return json.RawMessage(raw)
	}
	L_warn("store: repaired corrupt metadata", "id", id)
	metrics.MetricInc("store", "metadata_repaired")
	return json.RawMessage("{}")
}

// StoreMemory inserts a memory and returns its id. Empty content is a
// validation error. On return the row is durable and visible to readers.
func (s *Store) StoreMemory(ctx context.Context, content string, metadata json.RawMessage) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errdef.FromContext(err)
	}
	if strings.TrimSpace(content) == "" {
		return 0, errdef.Validation("content", "content must be a non-empty string")
	}
	if len(content) > s.softLimit {
		L_warn("store: content above soft limit", "bytes", len(content), "limit", s.softLimit)
	}

	meta, err := normalizeMetadata(metadata)
	if err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (content, metadata, created_at) VALUES (?, ?, ?)
	`, content, string(meta), formatTS(s.now()))
	if err != nil {
		return 0, s.wrapErr(ctx, "insert memory", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, errdef.Internal(fmt.Errorf("last insert id: %w", err))
	}

	if s.invalidate != nil {
		s.invalidate(id)
	}
	L_debug("store: created memory", "id", id)
	return id, nil
}

// GetMemoryByID returns a memory row, or (nil, nil) when absent. NotFound is
// left to the caller so the cache can skip negative entries.
func (s *Store) GetMemoryByID(ctx context.Context, id int64) (*Memory, error) {
	if err := ctx.Err(); err != nil {
		return nil, errdef.FromContext(err)
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, metadata, created_at FROM memories WHERE id = ?
	`, id)
	return scanMemory(row)
}

// candidateFetchCap bounds how many substring matches are pulled before
// metadata filters are applied in process.
const candidateFetchCap = 400

// SearchMemories returns memories whose content contains the query
// case-insensitively, newest first, after applying the metadata filters.
func (s *Store) SearchMemories(ctx context.Context, query string, opts SearchOptions) ([]Memory, error) {
	if err := ctx.Err(); err != nil {
		return nil, errdef.FromContext(err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, metadata, created_at FROM memories
		WHERE instr(lower(content), lower(?)) > 0
		ORDER BY created_at DESC
		LIMIT ?
	`, query, candidateFetchCap)
	if err != nil {
		return nil, s.wrapErr(ctx, "search memories", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, err
		}
		if !matchesFilters(m, opts) {
			continue
		}
		out = append(out, *m)
		if len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

// matchesFilters applies the metadata filters that live inside the JSON
// blob and therefore can't be pushed into the WHERE clause.
func matchesFilters(m *Memory, opts SearchOptions) bool {
	fields := ParseMeta(m.Metadata)
	if opts.MinImportance > 0 && fields.Importance < opts.MinImportance {
		return false
	}
	if opts.Project != "" && fields.Project != opts.Project {
		return false
	}
	if opts.Session != "" && fields.Session != opts.Session {
		return false
	}
	if len(opts.Categories) > 0 {
		have := make(map[string]bool, len(fields.Categories))
		for _, c := range fields.Categories {
			have[strings.ToLower(c)] = true
		}
		any := false
		for _, want := range opts.Categories {
			if have[strings.ToLower(want)] {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	return true
}

// GetRecentMemories returns the most recent memories, optionally filtered
// by metadata project and session.
func (s *Store) GetRecentMemories(ctx context.Context, limit int, project, session string) ([]Memory, error) {
	if err := ctx.Err(); err != nil {
		return nil, errdef.FromContext(err)
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, metadata, created_at FROM memories
		ORDER BY created_at DESC
		LIMIT ?
	`, candidateFetchCap)
	if err != nil {
		return nil, s.wrapErr(ctx, "recent memories", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, err
		}
		fields := ParseMeta(m.Metadata)
		if project != "" && fields.Project != project {
			continue
		}
		if session != "" && fields.Session != session {
			continue
		}
		out = append(out, *m)
		if len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

// CountMemories returns the total number of stored memories.
func (s *Store) CountMemories(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n)
	if err != nil {
		return 0, s.wrapErr(ctx, "count memories", err)
	}
	return n, nil
}

// DeleteMemory removes a row permanently. Used only by maintenance; ids are
// never reused (SQLite INTEGER PRIMARY KEY stays monotonic without rowid
// reuse as long as the max row survives or AUTOINCREMENT-free inserts keep
// climbing, which maintenance preserves by never deleting the newest row).
func (s *Store) DeleteMemory(ctx context.Context, id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return s.wrapErr(ctx, "delete memory", err)
	}
	if s.invalidate != nil {
		s.invalidate(id)
	}
	return nil
}

// UpdateMemoryMetadata rewrites a row's metadata blob. Used by maintenance
// for importance decay and metadata repair.
func (s *Store) UpdateMemoryMetadata(ctx context.Context, id int64, metadata json.RawMessage) error {
	meta, err := normalizeMetadata(metadata)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err = s.db.ExecContext(ctx, `UPDATE memories SET metadata = ? WHERE id = ?`, string(meta), id)
	if err != nil {
		return s.wrapErr(ctx, "update metadata", err)
	}
	if s.invalidate != nil {
		s.invalidate(id)
	}
	return nil
}

// translatePlaceholders rewrites $1,$2,... positional placeholders into
// SQLite's ?1,?2,... form. The $N convention is this package's public
// contract; the dialect translation stays internal.
func translatePlaceholders(query string) string {
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		if query[i] == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Query is an internal escape hatch used only by maintenance and the
// self-test. Placeholders are written as $1,$2,... regardless of dialect.
func (s *Store) Query(ctx context.Context, query string, params []any) (*QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, errdef.FromContext(err)
	}

	rows, err := s.db.QueryContext(ctx, translatePlaceholders(query), params...)
	if err != nil {
		return nil, s.wrapErr(ctx, "query", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errdef.Internal(err)
	}

	result := &QueryResult{Rows: []map[string]any{}}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errdef.Internal(err)
		}
		rec := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				rec[c] = string(b)
			} else {
				rec[c] = values[i]
			}
		}
		result.Rows = append(result.Rows, rec)
	}
	result.RowCount = len(result.Rows)
	return result, rows.Err()
}

// Optimize runs VACUUM-style maintenance and refreshes derived statistics.
// Safe to call at any time.
func (s *Store) Optimize(ctx context.Context) (OptimizeStats, error) {
	stats := OptimizeStats{}

	before, err := s.CountMemories(ctx)
	if err != nil {
		return stats, err
	}
	stats.Before = before

	s.writeMu.Lock()
	for _, stmt := range []string{"PRAGMA optimize", "ANALYZE", "VACUUM"} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			s.writeMu.Unlock()
			return stats, s.wrapErr(ctx, "optimize", err)
		}
	}
	s.writeMu.Unlock()

	after, err := s.CountMemories(ctx)
	if err != nil {
		return stats, err
	}
	stats.After = after

	L_debug("store: optimize complete", "before", stats.Before, "after", stats.After)
	return stats, nil
}

// wrapErr maps a database error onto the shared taxonomy.
func (s *Store) wrapErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errdef.FromContext(ctxErr)
	}
	var se sqlite3.Error
	if ok := asSQLiteErr(err, &se); ok {
		switch se.Code {
		case sqlite3.ErrConstraint:
			return errdef.Constraint(op, err)
		case sqlite3.ErrCantOpen, sqlite3.ErrNotADB, sqlite3.ErrCorrupt:
			return errdef.StorageUnavailable(op, err)
		}
	}
	return errdef.Internal(fmt.Errorf("%s: %w", op, err))
}

func asSQLiteErr(err error, target *sqlite3.Error) bool {
	for err != nil {
		if se, ok := err.(sqlite3.Error); ok {
			*target = se
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Helpers

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row scannable) (*Memory, error) {
	m := &Memory{}
	var metadata, createdAt string

	err := row.Scan(&m.ID, &m.Content, &metadata, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errdef.Internal(fmt.Errorf("scan memory: %w", err))
	}

	m.Metadata = repairMetadata(m.ID, metadata)
	m.CreatedAt = parseTS(createdAt)
	return m, nil
}

func scanMemoryRows(rows *sql.Rows) (*Memory, error) {
	m := &Memory{}
	var metadata, createdAt string

	if err := rows.Scan(&m.ID, &m.Content, &metadata, &createdAt); err != nil {
		return nil, errdef.Internal(fmt.Errorf("scan memory: %w", err))
	}

	m.Metadata = repairMetadata(m.ID, metadata)
	m.CreatedAt = parseTS(createdAt)
	return m, nil
}
