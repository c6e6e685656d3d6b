// Package mcp exposes the ranking engine as MCP tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"techrank/internal/ranking"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

// Engine is the subset of *ranking.Engine the tools call.
type Engine interface {
	Ranking(ctx context.Context, f ranking.Filter) (*ranking.Ranking, error)
	TechnicianMetrics(ctx context.Context, id string, f ranking.Filter) (*ranking.TechnicianReport, error)
	StatusSummary(ctx context.Context, scope ranking.Scope, f ranking.Filter) (*ranking.Summary, error)
	ClearCache() int
	Location() *time.Location
}

// Server holds the state for the MCP server.
type Server struct {
	engine Engine
	server *mcp.Server
}

// NewServer creates an MCP server with every tool registered.
func NewServer(engine Engine, version string) *Server {
	s := &Server{
		engine: engine,
		server: mcp.NewServer(&mcp.Implementation{Name: "techrank", Version: version}, nil),
	}
	s.registerTools()
	return s
}

// Serve runs the server over stdin/stdout until the client disconnects or
// ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	log.Info().Msg("MCP server listening on stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Connect serves a single session over t. Used with in-memory transports.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}

func textResult(data any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("failed to encode result: %w", err))
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(out)}}}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}
