// Package tools maps the four named operations onto the store, cache,
// analyzer, and scorer. Inputs are validated; outputs are serializable
// records; errors are returned as tagged values, never raised across the
// protocol boundary.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Wawtawsha/durandal-mcp/internal/analyzer"
	"github.com/Wawtawsha/durandal-mcp/internal/cache"
	"github.com/Wawtawsha/durandal-mcp/internal/config"
	"github.com/Wawtawsha/durandal-mcp/internal/errdef"
	. "github.com/Wawtawsha/durandal-mcp/internal/logging"
	"github.com/Wawtawsha/durandal-mcp/internal/metrics"
	"github.com/Wawtawsha/durandal-mcp/internal/scorer"
	"github.com/Wawtawsha/durandal-mcp/internal/store"
)

// prefilterLimit is how many substring candidates feed the scorer.
const prefilterLimit = 100

// Dispatcher validates tool arguments, routes to components, and shapes
// responses. One instance serves all in-flight requests.
type Dispatcher struct {
	store    *store.Store
	cache    *cache.Cache
	cfg      *config.Config
	validate *validator.Validate
}

// NewDispatcher wires the dispatcher and registers the cache as the
// store's invalidation hook, so a mutation clears matching keys before the
// mutating call returns.
func NewDispatcher(st *store.Store, ca *cache.Cache, cfg *config.Config) *Dispatcher {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	st.SetInvalidator(ca.Invalidate)

	return &Dispatcher{store: st, cache: ca, cfg: cfg, validate: v}
}

// Dispatch routes a named tool call. The returned value is always a
// serializable record; the returned error is always a tagged *errdef.Error.
// Internal faults (including panics) are caught here so they never cross
// the protocol boundary.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args json.RawMessage) (result any, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			L_error("tools: panic recovered", "tool", name, "panic", r)
			result, err = nil, errdef.Internal(fmt.Errorf("panic in %s: %v", name, r))
		}
		metrics.MetricDuration("tools", name, time.Since(start))
		if err != nil {
			e := errdef.As(err)
			L_error("tools: call failed",
				"tool", name,
				"correlation", CorrelationID(ctx),
				"code", string(e.Code),
				"error", e.Message,
				"hint", e.Hint,
			)
		} else {
			L_info("tools: call completed",
				"tool", name,
				"correlation", CorrelationID(ctx),
				"duration", time.Since(start).String(),
			)
		}
	}()

	if d.cfg.Logging.LogToolCalls {
		L_info("tools: call arguments", "tool", name, "arguments", string(args))
	}

	switch name {
	case ToolStoreMemory:
		var in StoreMemoryInput
		if err := d.decode(args, &in); err != nil {
			return nil, err
		}
		return d.StoreMemory(ctx, &in)
	case ToolSearchMemories:
		var in SearchMemoriesInput
		if err := d.decode(args, &in); err != nil {
			return nil, err
		}
		return d.SearchMemories(ctx, &in)
	case ToolGetContext:
		var in GetContextInput
		if err := d.decode(args, &in); err != nil {
			return nil, err
		}
		return d.GetContext(ctx, &in)
	case ToolOptimizeMemory:
		var in OptimizeMemoryInput
		if err := d.decode(args, &in); err != nil {
			return nil, err
		}
		return d.OptimizeMemory(ctx, &in)
	}
	return nil, errdef.Protocol(fmt.Sprintf("unknown tool %q", name))
}

// decode unmarshals and validates an input struct. The first failing field
// is reported by its json path.
func (d *Dispatcher) decode(args json.RawMessage, in any) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, in); err != nil {
		return errdef.Validation("", fmt.Sprintf("arguments do not match the tool schema: %v", err))
	}
	if err := d.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok && len(verrs) > 0 {
			fe := verrs[0]
			field := fe.Namespace()
			if i := strings.Index(field, "."); i >= 0 {
				field = field[i+1:]
			}
			return errdef.Validation(field, fmt.Sprintf("field %s fails constraint %q", field, fe.Tag()))
		}
		return errdef.Validation("", err.Error())
	}
	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	if verrs, ok := err.(validator.ValidationErrors); ok {
		*target = verrs
		return true
	}
	return false
}

// StoreMemory persists a memory. The cache is invalidated by the store's
// mutation hook before this returns.
func (d *Dispatcher) StoreMemory(ctx context.Context, in *StoreMemoryInput) (*StoreMemoryResult, error) {
	if in.Content == nil || strings.TrimSpace(*in.Content) == "" {
		return nil, errdef.Validation("content", "content must be a non-empty string")
	}

	id, err := d.store.StoreMemory(ctx, *in.Content, in.Metadata)
	if err != nil {
		return nil, err
	}

	return &StoreMemoryResult{
		Success: true,
		ID:      id,
		Message: fmt.Sprintf("memory %d stored", id),
	}, nil
}

// SearchMemories analyzes the query, scores substring candidates, and
// returns the ranked top results. The assembled result set is cached under
// the search fingerprint.
func (d *Dispatcher) SearchMemories(ctx context.Context, in *SearchMemoriesInput) (*SearchMemoriesResult, error) {
	limit := 10
	if in.Limit != nil {
		limit = *in.Limit
	}

	opts := store.SearchOptions{Limit: prefilterLimit}
	if in.Filters != nil {
		if in.Filters.MinImportance != nil {
			opts.MinImportance = *in.Filters.MinImportance
		}
		opts.Categories = in.Filters.Categories
		opts.Project = in.Filters.Project
		opts.Session = in.Filters.Session
	}

	fingerprint := cache.Fingerprint(in.Query, opts, limit)
	v, err := d.cache.GetSearch(fingerprint, func() (any, error) {
		return d.runSearch(ctx, in.Query, opts, limit)
	})
	if err != nil {
		// Cache failures degrade to a direct read; tagged store errors
		// pass through untouched.
		if e := errdef.As(err); e.Code != errdef.CodeInternal {
			return nil, e
		}
		results, direct := d.runSearch(ctx, in.Query, opts, limit)
		if direct != nil {
			return nil, direct
		}
		v = results
	}

	results, ok := v.([]MemoryResult)
	if !ok {
		results = []MemoryResult{}
	}

	return &SearchMemoriesResult{
		Success: true,
		Results: results,
		Count:   len(results),
		Query:   in.Query,
	}, nil
}

// runSearch is the uncached search pipeline: prefilter, analyze, score.
func (d *Dispatcher) runSearch(ctx context.Context, query string, opts store.SearchOptions, limit int) ([]MemoryResult, error) {
	rows, err := d.prefilter(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	history, err := d.sessionHistory(ctx, opts.Session)
	if err != nil {
		L_warn("tools: session history unavailable", "session", opts.Session, "error", err)
	}

	analysis := analyzer.Analyze(query, history)

	items := make([]scorer.Item, 0, len(rows))
	byID := make(map[int64]*store.Memory, len(rows))
	for i := range rows {
		m := &rows[i]
		byID[m.ID] = m
		items = append(items, scorer.Item{ID: m.ID, Features: scorer.FeaturesFromMemory(m)})
	}

	scored := scorer.Score(&analysis, items, scorer.Options{
		MaxResults:    limit,
		MinImportance: int(opts.MinImportance * 10),
	})

	results := make([]MemoryResult, 0, len(scored))
	for _, s := range scored {
		m := byID[s.ID]
		if m == nil {
			continue
		}
		results = append(results, MemoryResult{
			ID:        m.ID,
			Content:   m.Content,
			Metadata:  m.Metadata,
			CreatedAt: m.CreatedAt,
			Score:     s.Total,
			Breakdown: s.Breakdown,
			Reasoning: s.Reasoning,
		})
	}
	return results, nil
}

// prefilter fetches substring candidates for scoring. The full query is
// tried first; when a multi-word query matches nothing as one phrase, the
// candidates become the union of per-keyword substring matches, newest
// first.
func (d *Dispatcher) prefilter(ctx context.Context, query string, opts store.SearchOptions) ([]store.Memory, error) {
	rows, err := d.store.SearchMemories(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		return rows, nil
	}

	keywords := analyzer.Tokens(query)
	if len(keywords) < 2 {
		return rows, nil
	}

	seen := make(map[int64]bool)
	for _, kw := range keywords {
		more, err := d.store.SearchMemories(ctx, kw, opts)
		if err != nil {
			return nil, err
		}
		for _, m := range more {
			if !seen[m.ID] {
				seen[m.ID] = true
				rows = append(rows, m)
			}
		}
		if len(rows) >= prefilterLimit {
			break
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	if len(rows) > prefilterLimit {
		rows = rows[:prefilterLimit]
	}
	return rows, nil
}

// sessionHistory loads the analyzer's conversation window when a search is
// scoped to a session.
func (d *Dispatcher) sessionHistory(ctx context.Context, session string) ([]analyzer.Message, error) {
	if session == "" {
		return nil, nil
	}
	sessionID, err := d.store.LookupSessionByName(ctx, session)
	if err != nil || sessionID == 0 {
		return nil, err
	}
	msgs, err := d.store.GetSessionMessages(ctx, sessionID, 10)
	if err != nil {
		return nil, err
	}
	out := make([]analyzer.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, analyzer.Message{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

// GetContext returns the most recent memories plus lightweight stats.
func (d *Dispatcher) GetContext(ctx context.Context, in *GetContextInput) (*GetContextResult, error) {
	limit := 10
	if in.Limit != nil {
		limit = *in.Limit
	}

	rows, err := d.store.GetRecentMemories(ctx, limit, in.Project, in.SessionID)
	if err != nil {
		return nil, err
	}
	total, err := d.store.CountMemories(ctx)
	if err != nil {
		return nil, err
	}

	if rows == nil {
		rows = []store.Memory{}
	}
	return &GetContextResult{
		Success:  true,
		Memories: rows,
		Stats: ContextStats{
			TotalMemories: total,
			RecentCount:   len(rows),
			SessionID:     in.SessionID,
		},
	}, nil
}

// OptimizeMemory runs maintenance. Aggressive mode additionally decays
// importance, prunes stale low-value rows, and rebuilds the hot tier.
func (d *Dispatcher) OptimizeMemory(ctx context.Context, in *OptimizeMemoryInput) (*OptimizeMemoryResult, error) {
	before, err := d.store.CountMemories(ctx)
	if err != nil {
		return nil, err
	}

	optimizations := []string{}

	if in.Aggressive {
		report, err := d.store.AggressiveSweep(ctx)
		if err != nil {
			return nil, err
		}
		optimizations = append(optimizations,
			fmt.Sprintf("decayed importance on %d memories", report.Decayed),
			fmt.Sprintf("pruned %d stale memories", report.Pruned),
		)
		if report.Repaired > 0 {
			optimizations = append(optimizations, fmt.Sprintf("repaired %d metadata blobs", report.Repaired))
		}

		d.cache.Purge()
		optimizations = append(optimizations, "rebuilt cache")
	}

	stats, err := d.store.Optimize(ctx)
	if err != nil {
		return nil, err
	}
	optimizations = append(optimizations, "compacted store (vacuum, analyze)")

	return &OptimizeMemoryResult{
		Success:       true,
		Optimizations: optimizations,
		Stats:         store.OptimizeStats{Before: before, After: stats.After},
	}, nil
}

// ErrorResponse shapes a tagged error into the structured failure record
// shared by all four tools.
func ErrorResponse(err error) *ErrorResult {
	return &ErrorResult{Success: false, Error: errdef.As(err)}
}
