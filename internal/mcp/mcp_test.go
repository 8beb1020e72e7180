package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agora-sim/agora/internal/engine"
	"github.com/agora-sim/agora/internal/marketplace"
	"github.com/agora-sim/agora/internal/model"
	"github.com/agora-sim/agora/internal/registry"
	"github.com/agora-sim/agora/internal/store"
)

func newServer(t *testing.T) (*Server, store.Controller) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := store.OpenSQLite(context.Background(), ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(context.Background()) })

	reg, err := registry.New(marketplace.Descriptors()...)
	require.NoError(t, err)
	eng, err := engine.New(reg, marketplace.New(logger).Handlers(), db, logger)
	require.NoError(t, err)

	_, err = db.Agents().Create(context.Background(), store.Row[model.AgentProfile]{
		ID: "buyer-0", Data: model.AgentProfile{ID: "buyer-0"},
	})
	require.NoError(t, err)
	_, err = db.Agents().Create(context.Background(), store.Row[model.AgentProfile]{
		ID: "seller-0", Data: model.AgentProfile{ID: "seller-0"},
	})
	require.NoError(t, err)

	s, err := New(eng, "buyer-0", logger)
	require.NoError(t, err)
	return s, db
}

func callRequest(name string, args map[string]any) mcplib.CallToolRequest {
	req := mcplib.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func toolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no TextContent found in tool result")
	return ""
}

func TestCallActionSubmitsAsBoundAgent(t *testing.T) {
	s, db := newServer(t)
	ctx := context.Background()

	result, err := s.callAction(ctx, marketplace.ActionSendTextMessage,
		callRequest(marketplace.ActionSendTextMessage, map[string]any{
			"to_agent_id": "seller-0",
			"content":     "hello from mcp",
		}))
	require.NoError(t, err)
	require.False(t, result.IsError, toolText(t, result))

	var payload model.ActionResult
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &payload))
	assert.False(t, payload.IsError)

	rows, err := db.Actions().GetAll(ctx, store.Range{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "buyer-0", rows[0].Data.AgentID)
}

func TestCallActionDomainErrorIsToolError(t *testing.T) {
	s, _ := newServer(t)

	result, err := s.callAction(context.Background(), marketplace.ActionSendTextMessage,
		callRequest(marketplace.ActionSendTextMessage, map[string]any{
			"to_agent_id": "ghost",
			"content":     "anyone there?",
		}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestCallActionRejectionIsToolError(t *testing.T) {
	s, db := newServer(t)

	result, err := s.callAction(context.Background(), marketplace.ActionSendTextMessage,
		callRequest(marketplace.ActionSendTextMessage, map[string]any{
			"content": "missing recipient",
		}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	// Rejections never reach the durable log.
	n, err := db.Actions().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestToolsMatchDescriptors(t *testing.T) {
	s, _ := newServer(t)
	assert.Len(t, s.engine.Descriptors(), 5)
}
