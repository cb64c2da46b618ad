// Package mcp provides the Model Context Protocol server for Glimpse.
//
// It exposes the engine's inbound operations (session lifecycle, capture
// submission, knowledge reads) as MCP tools over stdio. Handlers run on
// mcp-go's own goroutines; a slow classifier call therefore never stalls
// another user's request, and the store serializes aggregate writes per
// user on its own.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/glimpsehq/glimpse/internal/knowledge"
	"github.com/glimpsehq/glimpse/internal/session"
	"github.com/glimpsehq/glimpse/internal/store"
)

// ServerConfig holds dependencies for the MCP server.
type ServerConfig struct {
	Store    *store.Store
	Sessions *session.Manager
	Builder  *knowledge.Builder
	Version  string
}

// NewServer creates a configured MCP server with all Glimpse tools and
// resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"Glimpse",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerSessionStartTool(s, cfg.Sessions)
	registerCaptureTool(s, cfg.Sessions)
	registerSessionEndTool(s, cfg.Sessions)
	registerSessionsTool(s, cfg.Sessions)
	registerKnowledgeTool(s, cfg.Store)
	registerCombinedTool(s, cfg.Builder)
	registerTrendsTool(s, cfg.Store)
	registerFlagURLTool(s, cfg.Store)

	registerStatsResource(s, cfg.Store)
	registerCombinedResource(s, cfg.Builder)

	return s
}

func registerSessionStartTool(s *server.MCPServer, mgr *session.Manager) {
	tool := mcp.NewTool("glimpse_session_start",
		mcp.WithDescription("Start a monitoring session for a user. Fails if the user already has an active session."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("Identifier of the user being monitored"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcp.NewToolResultError("user_id is required"), nil
		}

		sess, err := mgr.Start(ctx, userID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("start session: %v", err)), nil
		}
		return jsonResult(sess)
	})
}

func registerCaptureTool(s *server.MCPServer, mgr *session.Manager) {
	tool := mcp.NewTool("glimpse_capture",
		mcp.WithDescription("Submit one OCR text capture to an active session. The capture is classified and merged into the user's knowledge; classification failures are soft and reported as a warning."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Active session id"),
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("OCR text of the screen capture (may be empty; empty captures are skipped)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError("session_id is required"), nil
		}
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError("text is required"), nil
		}

		result, err := mgr.RecordCapture(ctx, sessionID, text)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("record capture: %v", err)), nil
		}
		return jsonResult(result)
	})
}

func registerSessionEndTool(s *server.MCPServer, mgr *session.Manager) {
	tool := mcp.NewTool("glimpse_session_end",
		mcp.WithDescription("End an active session: the whole session's text is classified into a report which is stored on the session and merged into the user's knowledge."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Active session id"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError("session_id is required"), nil
		}

		result, err := mgr.End(ctx, sessionID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("end session: %v", err)), nil
		}
		return jsonResult(result)
	})
}

func registerSessionsTool(s *server.MCPServer, mgr *session.Manager) {
	tool := mcp.NewTool("glimpse_sessions",
		mcp.WithDescription("List a user's monitoring sessions, newest first, with their end-of-session reports."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("Identifier of the user"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcp.NewToolResultError("user_id is required"), nil
		}

		sessions, err := mgr.List(ctx, userID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list sessions: %v", err)), nil
		}
		return jsonResult(sessions)
	})
}

func registerKnowledgeTool(s *server.MCPServer, st *store.Store) {
	tool := mcp.NewTool("glimpse_knowledge",
		mcp.WithDescription("Read a user's learned knowledge aggregate: categories, keywords, and URLs with counts, recency, and safety ratings."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("Identifier of the user"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcp.NewToolResultError("user_id is required"), nil
		}

		agg, err := st.Aggregate(ctx, userID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("read aggregate: %v", err)), nil
		}
		return jsonResult(agg)
	})
}

func registerCombinedTool(s *server.MCPServer, builder *knowledge.Builder) {
	tool := mcp.NewTool("glimpse_combined",
		mcp.WithDescription("Read the combined knowledge view: seed catalog, learned aggregate, and session reports merged without duplicates."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("Identifier of the user"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcp.NewToolResultError("user_id is required"), nil
		}

		view, err := builder.Build(ctx, userID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("build combined view: %v", err)), nil
		}
		return jsonResult(view)
	})
}

func registerTrendsTool(s *server.MCPServer, st *store.Store) {
	tool := mcp.NewTool("glimpse_trends",
		mcp.WithDescription("Summarize a user's learning trends: top categories, importance-weighted keywords, and safe URLs."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("Identifier of the user"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcp.NewToolResultError("user_id is required"), nil
		}

		trends, err := knowledge.AnalyzeTrends(ctx, st, userID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("analyze trends: %v", err)), nil
		}
		return jsonResult(trends)
	})
}

func registerFlagURLTool(s *server.MCPServer, st *store.Store) {
	tool := mcp.NewTool("glimpse_flag_url",
		mcp.WithDescription("Explicitly override a learned URL's safety rating. This is the only way a flagged URL can be cleared."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("Identifier of the user"),
		),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("URL whose rating to change"),
		),
		mcp.WithString("rating",
			mcp.Required(),
			mcp.Description("New safety rating"),
			mcp.Enum(store.SafetySafe, store.SafetyUnknown, store.SafetyFlagged),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcp.NewToolResultError("user_id is required"), nil
		}
		rawURL, err := req.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		rating, err := req.RequireString("rating")
		if err != nil {
			return mcp.NewToolResultError("rating is required"), nil
		}

		if err := st.SetURLSafety(ctx, userID, rawURL, rating); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("set url safety: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("rating for %s set to %s", rawURL, rating)), nil
	})
}

func registerStatsResource(s *server.MCPServer, st *store.Store) {
	resource := mcp.NewResource(
		"glimpse://stats",
		"Store statistics",
		mcp.WithResourceDescription("Session, capture, and knowledge counts plus database size"),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		stats, err := st.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading stats: %w", err)
		}
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "glimpse://stats",
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

func registerCombinedResource(s *server.MCPServer, builder *knowledge.Builder) {
	template := mcp.NewResourceTemplate(
		"glimpse://combined/{user_id}",
		"Combined knowledge view",
		mcp.WithTemplateDescription("Seed catalog, learned aggregate, and session reports merged without duplicates"),
		mcp.WithTemplateMIMEType("application/json"),
	)

	s.AddResourceTemplate(template, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		userID := strings.TrimPrefix(req.Params.URI, "glimpse://combined/")
		if userID == "" || userID == req.Params.URI {
			return nil, fmt.Errorf("invalid combined view URI %q", req.Params.URI)
		}

		view, err := builder.Build(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("building combined view: %w", err)
		}
		data, err := json.MarshalIndent(view, "", "  ")
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
