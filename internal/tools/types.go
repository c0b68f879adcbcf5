package tools

import (
	"encoding/json"
	"time"

	"github.com/Wawtawsha/durandal-mcp/internal/errdef"
	"github.com/Wawtawsha/durandal-mcp/internal/scorer"
	"github.com/Wawtawsha/durandal-mcp/internal/store"
)

// Tool names. Exactly these four operations exist.
const (
	ToolStoreMemory    = "store_memory"
	ToolSearchMemories = "search_memories"
	ToolGetContext     = "get_context"
	ToolOptimizeMemory = "optimize_memory"
)

// Names lists the four tools in registration order.
var Names = []string{ToolStoreMemory, ToolSearchMemories, ToolGetContext, ToolOptimizeMemory}

// StoreMemoryInput is the store_memory argument shape. Content is a pointer
// so an explicit null is distinguishable from an absent field; both are
// validation errors.
type StoreMemoryInput struct {
	Content  *string         `json:"content" validate:"required"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// SearchFilters narrows a search.
type SearchFilters struct {
	MinImportance *float64 `json:"minImportance,omitempty" validate:"omitempty,gte=0,lte=1"`
	Categories    []string `json:"categories,omitempty"`
	Project       string   `json:"project,omitempty"`
	Session       string   `json:"session,omitempty"`
}

// SearchMemoriesInput is the search_memories argument shape.
type SearchMemoriesInput struct {
	Query   string         `json:"query" validate:"required"`
	Limit   *int           `json:"limit,omitempty" validate:"omitempty,gte=1,lte=100"`
	Filters *SearchFilters `json:"filters,omitempty"`
}

// GetContextInput is the get_context argument shape.
type GetContextInput struct {
	SessionID string `json:"session_id,omitempty"`
	Project   string `json:"project,omitempty"`
	Limit     *int   `json:"limit,omitempty" validate:"omitempty,gte=1,lte=100"`
}

// OptimizeMemoryInput is the optimize_memory argument shape.
type OptimizeMemoryInput struct {
	Aggressive bool `json:"aggressive,omitempty"`
}

// StoreMemoryResult confirms a stored memory.
type StoreMemoryResult struct {
	Success bool   `json:"success"`
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

// MemoryResult is one ranked search hit with its scoring explanation.
type MemoryResult struct {
	ID        int64            `json:"id"`
	Content   string           `json:"content"`
	Metadata  json.RawMessage  `json:"metadata"`
	CreatedAt time.Time        `json:"created_at"`
	Score     float64          `json:"score"`
	Breakdown scorer.Breakdown `json:"breakdown"`
	Reasoning string           `json:"reasoning"`
}

// SearchMemoriesResult is the search_memories response.
type SearchMemoriesResult struct {
	Success bool           `json:"success"`
	Results []MemoryResult `json:"results"`
	Count   int            `json:"count"`
	Query   string         `json:"query"`
}

// ContextStats is the lightweight stats block on get_context.
type ContextStats struct {
	TotalMemories int    `json:"total_memories"`
	RecentCount   int    `json:"recent_count"`
	SessionID     string `json:"session_id,omitempty"`
}

// GetContextResult is the get_context response.
type GetContextResult struct {
	Success  bool           `json:"success"`
	Memories []store.Memory `json:"memories"`
	Stats    ContextStats   `json:"stats"`
}

// OptimizeMemoryResult is the optimize_memory response.
type OptimizeMemoryResult struct {
	Success       bool                `json:"success"`
	Optimizations []string            `json:"optimizations"`
	Stats         store.OptimizeStats `json:"stats"`
}

// ErrorResult is the structured failure shape shared by all four tools.
type ErrorResult struct {
	Success bool          `json:"success"`
	Error   *errdef.Error `json:"error"`
}
