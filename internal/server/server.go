// Package server exposes the tool dispatcher over the Model Context
// Protocol on standard input/output. stdout carries protocol frames only;
// all logging goes to stderr or the file sink.
package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/semaphore"

	"github.com/Wawtawsha/durandal-mcp/internal/config"
	"github.com/Wawtawsha/durandal-mcp/internal/errdef"
	. "github.com/Wawtawsha/durandal-mcp/internal/logging"
	"github.com/Wawtawsha/durandal-mcp/internal/tools"
)

// ServerName identifies this server in the initialize handshake.
const ServerName = "durandal-mcp"

// serverInstructions is returned in the initialize response; clients may
// add it to their system prompt.
const serverInstructions = `Durandal provides persistent per-user memory across coding sessions. ` +
	`Use store_memory to save decisions, fixes, and context worth keeping; ` +
	`search_memories to recall past work by free-text query; get_context for ` +
	`the most recent memories; optimize_memory to compact and refresh the store.`

// Server wraps the MCP stdio server around the dispatcher, bounding
// in-flight requests and tagging each with a correlation id.
type Server struct {
	mcp        *mcpserver.MCPServer
	dispatcher *tools.Dispatcher
	cfg        *config.Config
	inflight   *semaphore.Weighted
	wg         sync.WaitGroup
}

// New builds the protocol server and registers the four tool descriptors.
func New(d *tools.Dispatcher, cfg *config.Config, version string) *Server {
	s := &Server{
		dispatcher: d,
		cfg:        cfg,
		inflight:   semaphore.NewWeighted(cfg.Server.MaxInFlight),
	}

	srv := mcpserver.NewMCPServer(
		ServerName,
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithInstructions(serverInstructions),
	)
	s.registerTools(srv)
	s.mcp = srv
	return s
}

func (s *Server) registerTools(srv *mcpserver.MCPServer) {
	srv.AddTool(
		mcp.NewTool(tools.ToolStoreMemory,
			mcp.WithDescription("Store a natural-language memory with structured metadata. Returns the assigned id."),
			mcp.WithTitleAnnotation("Store Memory"),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(false),
			mcp.WithOpenWorldHintAnnotation(false),
			mcp.WithString("content",
				mcp.Required(),
				mcp.Description("The memory text. Must be non-empty."),
			),
			mcp.WithObject("metadata",
				mcp.Description("Optional metadata. Recognized fields: importance (0-1), categories, keywords, project, session. Unknown fields round-trip unchanged."),
			),
		),
		s.handler(tools.ToolStoreMemory),
	)

	srv.AddTool(
		mcp.NewTool(tools.ToolSearchMemories,
			mcp.WithDescription("Search stored memories by free-text query. Results are ranked by relevance to the query and recent conversation."),
			mcp.WithTitleAnnotation("Search Memories"),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(true),
			mcp.WithOpenWorldHintAnnotation(false),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("Free-text search query"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Max results, 1-100 (default: 10)"),
			),
			mcp.WithObject("filters",
				mcp.Description("Optional filters"),
				mcp.Properties(map[string]any{
					"minImportance": map[string]any{
						"type":        "number",
						"description": "Minimum importance, 0-1",
					},
					"categories": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Match any of these categories",
					},
					"project": map[string]any{
						"type":        "string",
						"description": "Filter by project name",
					},
					"session": map[string]any{
						"type":        "string",
						"description": "Filter by session name; its recent messages also steer ranking",
					},
				}),
			),
		),
		s.handler(tools.ToolSearchMemories),
	)

	srv.AddTool(
		mcp.NewTool(tools.ToolGetContext,
			mcp.WithDescription("Get the most recent memories plus store statistics."),
			mcp.WithTitleAnnotation("Get Context"),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(true),
			mcp.WithOpenWorldHintAnnotation(false),
			mcp.WithString("session_id",
				mcp.Description("Restrict to memories tagged with this session"),
			),
			mcp.WithString("project",
				mcp.Description("Restrict to memories tagged with this project"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Number of memories to return (default: 10)"),
			),
		),
		s.handler(tools.ToolGetContext),
	)

	srv.AddTool(
		mcp.NewTool(tools.ToolOptimizeMemory,
			mcp.WithDescription("Run store maintenance. Aggressive mode also decays importance, prunes stale low-value memories, and rebuilds the cache."),
			mcp.WithTitleAnnotation("Optimize Memory"),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(true),
			mcp.WithIdempotentHintAnnotation(true),
			mcp.WithOpenWorldHintAnnotation(false),
			mcp.WithBoolean("aggressive",
				mcp.Description("Apply importance decay and pruning (default: false)"),
			),
		),
		s.handler(tools.ToolOptimizeMemory),
	)
}

// handler adapts one named tool onto the dispatcher: correlation id,
// in-flight bound, argument passthrough, structured error shaping.
func (s *Server) handler(name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx = WithCorrelationID(ctx, uuid.NewString())

		if err := s.inflight.Acquire(ctx, 1); err != nil {
			return errorResult(errdef.FromContext(err)), nil
		}
		s.wg.Add(1)
		defer func() {
			s.inflight.Release(1)
			s.wg.Done()
		}()

		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return errorResult(errdef.Protocol("arguments are not a JSON object")), nil
		}

		result, err := s.dispatcher.Dispatch(ctx, name, args)
		if err != nil {
			return errorResult(err), nil
		}

		body, err := json.Marshal(result)
		if err != nil {
			return errorResult(errdef.Internal(err)), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}

// errorResult shapes a tagged error into the {success:false, error:{...}}
// record. Recoverable errors are tool responses, not protocol errors.
func errorResult(err error) *mcp.CallToolResult {
	body, merr := json.Marshal(tools.ErrorResponse(err))
	if merr != nil {
		return mcp.NewToolResultError(errdef.As(err).Message)
	}
	return mcp.NewToolResultError(string(body))
}

// Serve blocks on the stdio loop until stdin EOF or SIGINT/SIGTERM, then
// lets in-flight operations finish within the shutdown grace period.
func (s *Server) Serve() error {
	L_info("server: listening on stdio", "maxInFlight", s.cfg.Server.MaxInFlight)

	err := mcpserver.ServeStdio(s.mcp)

	SetShuttingDown()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.Server.ShutdownGrace):
		L_warn("server: shutdown grace elapsed with requests in flight")
	}

	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}
