package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/Wawtawsha/durandal-mcp/internal/errdef"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "store_test.db"), Options{})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreMemoryRoundtrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	content := "User prefers dark mode — emoji \U0001F319, CJK 設定, \"quoted\"\nsecond line"
	metadata := json.RawMessage(`{"importance":0.8,"categories":["ui"],"keywords":["dark","mode"],"extra":{"nested":[1,2,3]}}`)

	id, err := s.StoreMemory(ctx, content, metadata)
	if err != nil {
		t.Fatalf("StoreMemory failed: %v", err)
	}
	if id == 0 {
		t.Error("expected non-zero id")
	}

	m, err := s.GetMemoryByID(ctx, id)
	if err != nil {
		t.Fatalf("GetMemoryByID failed: %v", err)
	}
	if m == nil {
		t.Fatal("expected memory to be found")
	}
	if m.Content != content {
		t.Errorf("content mismatch: got %q", m.Content)
	}

	var got, want map[string]any
	if err := json.Unmarshal(m.Metadata, &got); err != nil {
		t.Fatalf("metadata unparseable: %v", err)
	}
	if err := json.Unmarshal(metadata, &want); err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(got["extra"]) != fmt.Sprint(want["extra"]) {
		t.Errorf("unknown metadata field lost: got %v", got["extra"])
	}
	if got["importance"].(float64) != 0.8 {
		t.Errorf("importance mismatch: got %v", got["importance"])
	}
}

func TestStoreMemoryLargeContent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	content := make([]byte, 10*1024)
	for i := range content {
		content[i] = byte('a' + i%26)
	}

	id, err := s.StoreMemory(ctx, string(content), nil)
	if err != nil {
		t.Fatalf("StoreMemory failed: %v", err)
	}
	m, err := s.GetMemoryByID(ctx, id)
	if err != nil || m == nil {
		t.Fatalf("GetMemoryByID failed: %v", err)
	}
	if m.Content != string(content) {
		t.Error("10 KB content did not round-trip exactly")
	}
}

func TestStoreMemoryRejectsEmptyContent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, content := range []string{"", "   ", "\n"} {
		_, err := s.StoreMemory(ctx, content, nil)
		if !errdef.Is(err, errdef.CodeValidation) {
			t.Errorf("content %q: got %v, want ValidationError", content, err)
		}
	}
}

func TestStoreMemoryNullMetadataBecomesEmptyObject(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, raw := range []json.RawMessage{nil, json.RawMessage("null"), json.RawMessage("")} {
		id, err := s.StoreMemory(ctx, "metadata probe", raw)
		if err != nil {
			t.Fatalf("StoreMemory failed: %v", err)
		}
		m, err := s.GetMemoryByID(ctx, id)
		if err != nil || m == nil {
			t.Fatalf("GetMemoryByID failed: %v", err)
		}
		if string(m.Metadata) != "{}" {
			t.Errorf("metadata %q: got %s, want {}", raw, m.Metadata)
		}
	}
}

func TestGetMemoryByIDAbsent(t *testing.T) {
	s := setupTestStore(t)

	m, err := s.GetMemoryByID(context.Background(), 9999)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != nil {
		t.Error("expected nil for absent id")
	}
}

func TestSearchMemoriesSubstringAndFilters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	seed := []struct {
		content string
		meta    string
	}{
		{"Redis cache TTL is thirty minutes", `{"importance":0.9,"categories":["cache"],"project":"api"}`},
		{"redis cluster needs three masters", `{"importance":0.2,"categories":["infra"],"project":"api"}`},
		{"Postgres is the primary store", `{"importance":0.7,"categories":["database"],"project":"api"}`},
	}
	for _, row := range seed {
		if _, err := s.StoreMemory(ctx, row.content, json.RawMessage(row.meta)); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	rows, err := s.SearchMemories(ctx, "REDIS", SearchOptions{Limit: 10})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("case-insensitive search found %d, want 2", len(rows))
	}
	if !rows[0].CreatedAt.After(rows[1].CreatedAt) {
		t.Error("results not ordered newest first")
	}

	rows, err = s.SearchMemories(ctx, "redis", SearchOptions{Limit: 10, MinImportance: 0.5})
	if err != nil {
		t.Fatalf("filtered search failed: %v", err)
	}
	if len(rows) != 1 || ParseMeta(rows[0].Metadata).Importance != 0.9 {
		t.Errorf("minImportance filter returned %d rows", len(rows))
	}

	rows, err = s.SearchMemories(ctx, "redis", SearchOptions{Limit: 10, Categories: []string{"CACHE"}})
	if err != nil {
		t.Fatalf("category search failed: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("category filter returned %d rows, want 1", len(rows))
	}

	rows, err = s.SearchMemories(ctx, "store", SearchOptions{Limit: 10, Project: "api"})
	if err != nil {
		t.Fatalf("project search failed: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("project filter returned %d rows, want 1", len(rows))
	}
}

func TestGetRecentMemoriesOrdering(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 5; i++ {
		id, err := s.StoreMemory(ctx, fmt.Sprintf("recent %d", i), nil)
		if err != nil {
			t.Fatalf("seed failed: %v", err)
		}
		ids = append(ids, id)
	}

	rows, err := s.GetRecentMemories(ctx, 3, "", "")
	if err != nil {
		t.Fatalf("GetRecentMemories failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0].ID != ids[4] || rows[1].ID != ids[3] || rows[2].ID != ids[2] {
		t.Errorf("wrong order: %d, %d, %d", rows[0].ID, rows[1].ID, rows[2].ID)
	}
}

func TestCreatedAtMonotonic(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	var prev *Memory
	for i := 0; i < 50; i++ {
		id, err := s.StoreMemory(ctx, fmt.Sprintf("tick %d", i), nil)
		if err != nil {
			t.Fatal(err)
		}
		m, err := s.GetMemoryByID(ctx, id)
		if err != nil || m == nil {
			t.Fatal(err)
		}
		if prev != nil && !m.CreatedAt.After(prev.CreatedAt) {
			t.Fatalf("created_at not strictly increasing at insert %d", i)
		}
		prev = m
	}
}

func TestTranslatePlaceholders(t *testing.T) {
	cases := map[string]string{
		"SELECT * FROM memories WHERE id = $1":                "SELECT * FROM memories WHERE id = ?1",
		"INSERT INTO t (a, b) VALUES ($1, $2)":                "INSERT INTO t (a, b) VALUES (?1, ?2)",
		"SELECT $10 || '$' || $2":                             "SELECT ?10 || '$' || ?2",
		"SELECT 1":                                            "SELECT 1",
	}
	for in, want := range cases {
		if got := translatePlaceholders(in); got != want {
			t.Errorf("translatePlaceholders(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestQueryEscapeHatch(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id, err := s.StoreMemory(ctx, "escape hatch probe", nil)
	if err != nil {
		t.Fatal(err)
	}

	res, err := s.Query(ctx, "SELECT id, content FROM memories WHERE id = $1", []any{id})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if res.RowCount != 1 {
		t.Fatalf("got %d rows, want 1", res.RowCount)
	}
	if res.Rows[0]["content"] != "escape hatch probe" {
		t.Errorf("unexpected row: %v", res.Rows[0])
	}
}

func TestMetadataRepairOnRead(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id, err := s.StoreMemory(ctx, "corrupt metadata probe", nil)
	if err != nil {
		t.Fatal(err)
	}

	// Corrupt the blob behind the store's back.
	if _, err := s.db.Exec(`UPDATE memories SET metadata = '{broken' WHERE id = ?`, id); err != nil {
		t.Fatal(err)
	}

	m, err := s.GetMemoryByID(ctx, id)
	if err != nil || m == nil {
		t.Fatalf("GetMemoryByID failed: %v", err)
	}
	if string(m.Metadata) != "{}" {
		t.Errorf("corrupt metadata not repaired: %s", m.Metadata)
	}
}

func TestEnsureProjectAndSessionLazy(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	p1, err := s.EnsureProject(ctx, "durandal", "/work/durandal")
	if err != nil {
		t.Fatalf("EnsureProject failed: %v", err)
	}
	p2, err := s.EnsureProject(ctx, "durandal", "")
	if err != nil {
		t.Fatalf("EnsureProject (repeat) failed: %v", err)
	}
	if p1 != p2 {
		t.Errorf("project created twice: %d vs %d", p1, p2)
	}

	s1, err := s.EnsureSession(ctx, "durandal", "monday")
	if err != nil {
		t.Fatalf("EnsureSession failed: %v", err)
	}
	s2, err := s.EnsureSession(ctx, "durandal", "monday")
	if err != nil {
		t.Fatalf("EnsureSession (repeat) failed: %v", err)
	}
	if s1 != s2 {
		t.Errorf("session created twice: %d vs %d", s1, s2)
	}
}

func TestAddMessageRoleValidation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	sid, err := s.EnsureSession(ctx, "", "roles")
	if err != nil {
		t.Fatal(err)
	}

	for _, role := range []string{RoleUser, RoleAssistant, RoleSystem} {
		if _, err := s.AddMessage(ctx, sid, role, "hello", nil); err != nil {
			t.Errorf("role %s rejected: %v", role, err)
		}
	}

	_, err = s.AddMessage(ctx, sid, "moderator", "hello", nil)
	if !errdef.Is(err, errdef.CodeValidation) {
		t.Errorf("invalid role: got %v, want ValidationError", err)
	}
}

func TestGetSessionMessagesChronological(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	sid, err := s.EnsureSession(ctx, "", "chrono")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if _, err := s.AddMessage(ctx, sid, RoleUser, fmt.Sprintf("msg %d", i), nil); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := s.GetSessionMessages(ctx, sid, 3)
	if err != nil {
		t.Fatalf("GetSessionMessages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[0].Content != "msg 1" || msgs[2].Content != "msg 3" {
		t.Errorf("messages not chronological: %s .. %s", msgs[0].Content, msgs[2].Content)
	}
}

func TestArtifactsOrderedByImportance(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	sid, err := s.EnsureSession(ctx, "", "artifacts")
	if err != nil {
		t.Fatal(err)
	}
	for _, score := range []float64{0.3, 0.9, 0.6} {
		_, err := s.AddArtifact(ctx, &Artifact{
			SessionID:       sid,
			ArtifactType:    "decision",
			Content:         fmt.Sprintf("artifact %f", score),
			ImportanceScore: score,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	arts, err := s.GetSessionArtifacts(ctx, sid, 10)
	if err != nil {
		t.Fatalf("GetSessionArtifacts failed: %v", err)
	}
	if len(arts) != 3 || arts[0].ImportanceScore != 0.9 || arts[2].ImportanceScore != 0.3 {
		t.Errorf("artifacts not ordered by importance desc")
	}
}

func TestOptimizeIdempotentStats(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := s.StoreMemory(ctx, fmt.Sprintf("optimize probe %d", i), nil); err != nil {
			t.Fatal(err)
		}
	}

	first, err := s.Optimize(ctx)
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	second, err := s.Optimize(ctx)
	if err != nil {
		t.Fatalf("second Optimize failed: %v", err)
	}
	if first.After != second.After {
		t.Errorf("optimize not idempotent: %d vs %d", first.After, second.After)
	}
}

func TestAggressiveSweepDecays(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id, err := s.StoreMemory(ctx, "decay probe", json.RawMessage(`{"importance":0.5}`))
	if err != nil {
		t.Fatal(err)
	}

	// Age the row ten days.
	aged := formatTS(time.Now().UTC().Add(-10 * 24 * time.Hour))
	if _, err := s.db.Exec(`UPDATE memories SET created_at = ? WHERE id = ?`, aged, id); err != nil {
		t.Fatal(err)
	}

	report, err := s.AggressiveSweep(ctx)
	if err != nil {
		t.Fatalf("AggressiveSweep failed: %v", err)
	}
	if report.Decayed != 1 {
		t.Fatalf("decayed %d rows, want 1", report.Decayed)
	}

	m, err := s.GetMemoryByID(ctx, id)
	if err != nil || m == nil {
		t.Fatal(err)
	}
	imp := ParseMeta(m.Metadata).Importance
	if imp >= 0.5 || imp < 0.35 {
		t.Errorf("importance after 10-day decay = %f, want about 0.4", imp)
	}
}

func TestCloseIdempotent(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "close_test.db"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
