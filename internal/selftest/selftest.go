// Package selftest exercises the store, cache, analyzer, scorer, and
// dispatcher against a scratch database and reports pass/fail with
// timings. Run via the --test flag.
package selftest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Wawtawsha/durandal-mcp/internal/analyzer"
	"github.com/Wawtawsha/durandal-mcp/internal/cache"
	"github.com/Wawtawsha/durandal-mcp/internal/config"
	"github.com/Wawtawsha/durandal-mcp/internal/errdef"
	. "github.com/Wawtawsha/durandal-mcp/internal/logging"
	"github.com/Wawtawsha/durandal-mcp/internal/store"
	"github.com/Wawtawsha/durandal-mcp/internal/tools"
)

// minInsertsPerSecond is the cold-store performance floor.
const minInsertsPerSecond = 100

type check struct {
	name string
	fn   func(*harness) error
}

type harness struct {
	ctx        context.Context
	store      *store.Store
	cache      *cache.Cache
	dispatcher *tools.Dispatcher
}

type result struct {
	name     string
	err      error
	duration time.Duration
}

// Run executes every check and prints a summary to stderr. Returns 0 when
// everything passed, 1 otherwise.
func Run(cfg *config.Config) int {
	dir, err := os.MkdirTemp("", "durandal-selftest-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "self-test: cannot create scratch directory: %v\n", err)
		return 1
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "selftest.db"), store.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "self-test: cannot open scratch store: %v\n", err)
		return 1
	}
	defer st.Close()

	ca, err := cache.New(cfg.Cache.Capacity, cfg.Cache.SearchTTL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "self-test: cannot create cache: %v\n", err)
		return 1
	}

	h := &harness{
		ctx:        context.Background(),
		store:      st,
		cache:      ca,
		dispatcher: tools.NewDispatcher(st, ca, cfg),
	}

	checks := []check{
		{"connection", checkConnection},
		{"schema", checkSchema},
		{"store-retrieve roundtrip", checkRoundtrip},
		{"substring and filter search", checkSearch},
		{"recent ordering", checkRecentOrdering},
		{"cache hit and invalidation", checkCache},
		{"dispatcher tools", checkDispatcher},
		{"analyzer and scorer pipeline", checkPipeline},
		{"error propagation", checkErrors},
		{"insert throughput", checkThroughput},
	}

	var results []result
	failures := 0
	for _, c := range checks {
		start := time.Now()
		err := c.fn(h)
		results = append(results, result{name: c.name, err: err, duration: time.Since(start)})
		if err != nil {
			failures++
		}
	}

	fmt.Fprintln(os.Stderr, "\nself-test results:")
	for _, r := range results {
		status := "PASS"
		if r.err != nil {
			status = "FAIL"
		}
		fmt.Fprintf(os.Stderr, "  %-4s %-32s %v\n", status, r.name, r.duration.Round(time.Microsecond))
		if r.err != nil {
			fmt.Fprintf(os.Stderr, "       %v\n", r.err)
		}
	}
	fmt.Fprintf(os.Stderr, "\n%d/%d checks passed\n", len(results)-failures, len(results))

	if failures > 0 {
		return 1
	}
	return 0
}

func checkConnection(h *harness) error {
	return h.store.DB().Ping()
}

func checkSchema(h *harness) error {
	required := []string{
		"memories", "projects", "conversation_sessions",
		"conversation_messages", "extracted_artifacts",
	}
	for _, table := range required {
		var name string
		err := h.store.DB().QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		if err != nil {
			return fmt.Errorf("table %s missing: %w", table, err)
		}
	}

	var idx string
	err := h.store.DB().QueryRow(
		`SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'idx_memories_created'`,
	).Scan(&idx)
	if err != nil {
		return fmt.Errorf("index idx_memories_created missing: %w", err)
	}
	return nil
}

func checkRoundtrip(h *harness) error {
	content := "JWT refresh tokens expire after 7 days — emoji \U0001F512, CJK 記憶, \"quotes\"\nand a newline. " +
		strings.Repeat("padding ", 1300) // push past 10 KB
	metadata := json.RawMessage(`{"importance":0.8,"categories":["auth"],"keywords":["jwt","refresh"],"custom_field":{"nested":true}}`)

	id, err := h.store.StoreMemory(h.ctx, content, metadata)
	if err != nil {
		return err
	}

	m, err := h.store.GetMemoryByID(h.ctx, id)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("stored memory %d not found", id)
	}
	if m.Content != content {
		return fmt.Errorf("content mismatch after roundtrip")
	}

	var got, want map[string]any
	if err := json.Unmarshal(m.Metadata, &got); err != nil {
		return fmt.Errorf("metadata unparseable after roundtrip: %w", err)
	}
	if err := json.Unmarshal(metadata, &want); err != nil {
		return err
	}
	if fmt.Sprint(got["custom_field"]) != fmt.Sprint(want["custom_field"]) {
		return fmt.Errorf("unknown metadata field did not round-trip")
	}
	return nil
}

func checkSearch(h *harness) error {
	_, err := h.store.StoreMemory(h.ctx, "Postgres connection pooling uses pgbouncer",
		json.RawMessage(`{"importance":0.9,"categories":["database"]}`))
	if err != nil {
		return err
	}
	_, err = h.store.StoreMemory(h.ctx, "pgbouncer transaction mode breaks prepared statements",
		json.RawMessage(`{"importance":0.1,"categories":["database"]}`))
	if err != nil {
		return err
	}

	rows, err := h.store.SearchMemories(h.ctx, "PGBOUNCER", store.SearchOptions{Limit: 10})
	if err != nil {
		return err
	}
	if len(rows) < 2 {
		return fmt.Errorf("case-insensitive substring search found %d rows, want >= 2", len(rows))
	}

	rows, err = h.store.SearchMemories(h.ctx, "pgbouncer", store.SearchOptions{Limit: 10, MinImportance: 0.5})
	if err != nil {
		return err
	}
	for _, m := range rows {
		if store.ParseMeta(m.Metadata).Importance < 0.5 {
			return fmt.Errorf("minImportance filter leaked a low-importance row")
		}
	}
	if len(rows) == 0 {
		return fmt.Errorf("filter search found no rows")
	}
	return nil
}

func checkRecentOrdering(h *harness) error {
	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := h.store.StoreMemory(h.ctx, fmt.Sprintf("ordering probe %d", i), nil)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	rows, err := h.store.GetRecentMemories(h.ctx, 3, "", "")
	if err != nil {
		return err
	}
	if len(rows) != 3 {
		return fmt.Errorf("recent returned %d rows, want 3", len(rows))
	}
	if rows[0].ID != ids[2] {
		return fmt.Errorf("most recent row is %d, want %d", rows[0].ID, ids[2])
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].CreatedAt.After(rows[i-1].CreatedAt) {
			return fmt.Errorf("recent rows out of order")
		}
	}
	return nil
}

func checkCache(h *harness) error {
	id, err := h.store.StoreMemory(h.ctx, "cache probe", nil)
	if err != nil {
		return err
	}

	loads := 0
	load := func() (*store.Memory, error) {
		loads++
		return h.store.GetMemoryByID(h.ctx, id)
	}

	if _, err := h.cache.GetMemory(id, load); err != nil {
		return err
	}
	if _, err := h.cache.GetMemory(id, load); err != nil {
		return err
	}
	if loads != 1 {
		return fmt.Errorf("expected 1 load (miss then hit), got %d", loads)
	}

	// A write must invalidate before it returns.
	if _, err := h.store.StoreMemory(h.ctx, "cache invalidator", nil); err != nil {
		return err
	}
	if _, err := h.cache.GetSearch("probe-fingerprint", func() (any, error) { return "fresh", nil }); err != nil {
		return err
	}
	if _, err := h.store.StoreMemory(h.ctx, "cache invalidator 2", nil); err != nil {
		return err
	}
	v, err := h.cache.GetSearch("probe-fingerprint", func() (any, error) { return "reloaded", nil })
	if err != nil {
		return err
	}
	if v != "reloaded" {
		return fmt.Errorf("search cache survived a store mutation")
	}
	return nil
}

func checkDispatcher(h *harness) error {
	for _, name := range tools.Names {
		var args string
		switch name {
		case tools.ToolStoreMemory:
			args = `{"content":"dispatcher probe","metadata":{"importance":0.7}}`
		case tools.ToolSearchMemories:
			args = `{"query":"dispatcher probe","limit":5}`
		case tools.ToolGetContext:
			args = `{"limit":5}`
		case tools.ToolOptimizeMemory:
			args = `{"aggressive":false}`
		}
		if _, err := h.dispatcher.Dispatch(h.ctx, name, json.RawMessage(args)); err != nil {
			return fmt.Errorf("tool %s failed: %w", name, err)
		}
	}
	return nil
}

func checkPipeline(h *harness) error {
	_, err := h.dispatcher.Dispatch(h.ctx, tools.ToolStoreMemory,
		json.RawMessage(`{"content":"Fixed the authenticate method in user-service.js","metadata":{"importance":0.9,"categories":["code"]}}`))
	if err != nil {
		return err
	}

	a := analyzer.Analyze("Show me the database setup", nil)
	if a.QueryType != analyzer.TypeGeneral {
		return fmt.Errorf("ambiguous query classified as %s, want general", a.QueryType)
	}

	res, err := h.dispatcher.Dispatch(h.ctx, tools.ToolSearchMemories,
		json.RawMessage(`{"query":"authenticate user-service.js","limit":5}`))
	if err != nil {
		return err
	}
	sr, ok := res.(*tools.SearchMemoriesResult)
	if !ok || sr.Count == 0 {
		return fmt.Errorf("pipeline search found nothing")
	}
	if sr.Results[0].Score <= 0 {
		return fmt.Errorf("top result scored %f, want > 0", sr.Results[0].Score)
	}
	return nil
}

func checkErrors(h *harness) error {
	_, err := h.dispatcher.Dispatch(h.ctx, tools.ToolStoreMemory, json.RawMessage(`{"content":null}`))
	if !errdef.Is(err, errdef.CodeValidation) {
		return fmt.Errorf("null content returned %v, want ValidationError", err)
	}

	_, err = h.dispatcher.Dispatch(h.ctx, tools.ToolSearchMemories, json.RawMessage(`{"query":"x","limit":0}`))
	if !errdef.Is(err, errdef.CodeValidation) {
		return fmt.Errorf("limit=0 returned %v, want ValidationError", err)
	}

	_, err = h.dispatcher.Dispatch(h.ctx, tools.ToolSearchMemories, json.RawMessage(`{"query":"x","limit":101}`))
	if !errdef.Is(err, errdef.CodeValidation) {
		return fmt.Errorf("limit=101 returned %v, want ValidationError", err)
	}
	return nil
}

func checkThroughput(h *harness) error {
	const n = 200
	start := time.Now()
	for i := 0; i < n; i++ {
		if _, err := h.store.StoreMemory(h.ctx, fmt.Sprintf("throughput probe %d", i), nil); err != nil {
			return err
		}
	}
	elapsed := time.Since(start)

	perSecond := float64(n) / elapsed.Seconds()
	L_debug("selftest: insert throughput", "insertsPerSecond", int(perSecond))
	if perSecond < minInsertsPerSecond {
		return fmt.Errorf("insert throughput %.0f/s below floor %d/s", perSecond, minInsertsPerSecond)
	}
	return nil
}
