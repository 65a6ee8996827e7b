// Package mcpserver exposes the routing pipeline as MCP tools so agent
// clients can call it directly.
package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/query-router/backend/internal/decomposer"
	"github.com/query-router/backend/internal/query"
	"github.com/query-router/backend/pkg/logger"
)

const (
	serverName = "query-router"
	version    = "1.0.0"
)

// Engine is satisfied by *query.Engine.
type Engine interface {
	Route(ctx context.Context, req query.Request) (*query.Response, error)
	ClassifyOnly(ctx context.Context, q string) (*query.ClassifyResult, error)
	DecomposeOnly(ctx context.Context, q string) (*decomposer.Result, error)
}

type Server struct {
	engine Engine
	mcp    *server.MCPServer
}

func New(engine Engine) *Server {
	s := &Server{
		engine: engine,
		mcp: server.NewMCPServer(serverName, version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}

	s.mcp.AddTool(mcp.NewTool("route_query",
		mcp.WithDescription("Answer a question by routing it to document search, the applicant database, or a direct answer. The exchange is logged."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The user's question")),
	), s.handleRoute)

	s.mcp.AddTool(mcp.NewTool("classify_intent",
		mcp.WithDescription("Report the keyword-rule and model classifications of a question without answering it"),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question to classify")),
	), s.handleClassify)

	s.mcp.AddTool(mcp.NewTool("decompose_query",
		mcp.WithDescription("Split a question into its document and database parts"),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question to decompose")),
	), s.handleDecompose)

	return s
}

// HTTPHandler serves the streamable HTTP transport at path.
func (s *Server) HTTPHandler(path string) http.Handler {
	return server.NewStreamableHTTPServer(s.mcp,
		server.WithEndpointPath(path),
		server.WithStateLess(true),
	)
}

func (s *Server) handleRoute(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, err := s.engine.Route(ctx, query.Request{Query: q})
	return toolResult("route_query", resp, err)
}

func (s *Server) handleClassify(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := s.engine.ClassifyOnly(ctx, q)
	return toolResult("classify_intent", res, err)
}

func (s *Server) handleDecompose(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := s.engine.DecomposeOnly(ctx, q)
	return toolResult("decompose_query", res, err)
}

// toolResult reports failures as tool errors rather than protocol errors so
// the calling agent sees the message.
func toolResult(tool string, v any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		logger.Warn("MCP tool failed", zap.String("tool", tool), zap.Error(err))
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
