// Package mcp exposes the action protocol over the Model Context Protocol.
//
// Every registered action descriptor becomes one MCP tool, built dynamically
// from the engine's discovery surface: tool-calling agents see exactly the
// action set the registry declares, with the same parameter schemas.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/agora-sim/agora/internal/engine"
	"github.com/agora-sim/agora/internal/model"
)

// Server wraps the MCP server bound to one submitting agent.
type Server struct {
	mcpServer *mcpserver.MCPServer
	engine    *engine.Engine
	agentID   string
	logger    *slog.Logger
}

// New creates an MCP server whose tools submit actions as agentID.
func New(eng *engine.Engine, agentID string, logger *slog.Logger) (*Server, error) {
	s := &Server{
		engine:  eng,
		agentID: agentID,
		logger:  logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"agora",
		"0.1.0",
		mcpserver.WithToolCapabilities(true),
	)

	if err := s.registerTools(); err != nil {
		return nil, err
	}
	return s, nil
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// registerTools builds one tool per action descriptor. The parameter schema
// is marshaled as-is: registry.Schema is already the JSON Schema subset MCP
// clients expect.
func (s *Server) registerTools() error {
	for _, d := range s.engine.Descriptors() {
		schema, err := json.Marshal(d.Parameters)
		if err != nil {
			return fmt.Errorf("mcp: marshal schema for %q: %w", d.Name, err)
		}

		name := d.Name
		s.mcpServer.AddTool(
			mcplib.NewToolWithRawSchema(name, d.Description, schema),
			func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
				return s.callAction(ctx, name, request)
			},
		)
	}
	return nil
}

func (s *Server) callAction(ctx context.Context, name string, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	result, err := s.engine.Submit(ctx, s.agentID, model.ActionRequest{
		Name:       name,
		Parameters: request.GetArguments(),
	})
	if err != nil {
		// Rejections and faults both surface as tool errors; the MCP client
		// is the caller and owns any retry.
		s.logger.Warn("mcp tool call failed", "tool", name, "agent_id", s.agentID, "error", err)
		return mcplib.NewToolResultError(err.Error()), nil
	}

	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal result for %q: %w", name, err)
	}
	if result.IsError {
		return mcplib.NewToolResultError(string(payload)), nil
	}
	return mcplib.NewToolResultText(string(payload)), nil
}
