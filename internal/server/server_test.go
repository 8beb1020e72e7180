package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agora-sim/agora/internal/auth"
	"github.com/agora-sim/agora/internal/engine"
	"github.com/agora-sim/agora/internal/idgen"
	"github.com/agora-sim/agora/internal/marketplace"
	"github.com/agora-sim/agora/internal/model"
	"github.com/agora-sim/agora/internal/registry"
	"github.com/agora-sim/agora/internal/server"
	"github.com/agora-sim/agora/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := store.OpenSQLite(context.Background(), ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(context.Background()) })

	reg, err := registry.New(marketplace.Descriptors()...)
	require.NoError(t, err)
	eng, err := engine.New(reg, marketplace.New(logger).Handlers(), db, logger)
	require.NoError(t, err)

	jwtMgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	srv := server.New(server.ServerConfig{
		DB:                  db,
		Engine:              eng,
		JWTMgr:              jwtMgr,
		IDGen:               idgen.New(),
		Logger:              logger,
		Port:                0,
		ReadTimeout:         5 * time.Second,
		WriteTimeout:        5 * time.Second,
		Version:             "test",
		MaxRequestBodyBytes: 1 << 20,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, body any, out any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func register(t *testing.T, ts *httptest.Server, baseID string, metadata map[string]any) model.AgentRegistrationResponse {
	t.Helper()
	var out model.AgentRegistrationResponse
	resp := doJSON(t, ts, http.MethodPost, "/agents/register", "", model.AgentRegistrationRequest{
		Agent: model.AgentProfile{ID: baseID, Metadata: metadata},
	}, &out)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return out
}

func TestRegisterAssignsSuffixedIDAndToken(t *testing.T) {
	ts := newTestServer(t)

	first := register(t, ts, "buyer", map[string]any{"name": "Alice"})
	assert.Equal(t, "buyer-0", first.Agent.ID)
	assert.NotEmpty(t, first.Token)
	assert.True(t, first.ExpiresAt.After(time.Now()))

	second := register(t, ts, "buyer", nil)
	assert.Equal(t, "buyer-1", second.Agent.ID)
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	ts := newTestServer(t)

	var apiErr model.APIError
	resp := doJSON(t, ts, http.MethodGet, "/agents", "", nil, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, model.ErrCodeUnauthorized, apiErr.Error.Code)
}

func TestListAndGetAgents(t *testing.T) {
	ts := newTestServer(t)

	reg := register(t, ts, "buyer", nil)
	register(t, ts, "seller", nil)

	var list model.AgentListResponse
	resp := doJSON(t, ts, http.MethodGet, "/agents?limit=1", reg.Token, nil, &list)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, list.Items, 1)
	assert.Equal(t, 2, list.Total)
	assert.True(t, list.HasMore)
	require.NotEmpty(t, list.Cursor)

	var rest model.AgentListResponse
	resp = doJSON(t, ts, http.MethodGet, "/agents?limit=5&after="+list.Cursor, reg.Token, nil, &rest)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, rest.Items, 1)
	assert.False(t, rest.HasMore)
	assert.NotEqual(t, list.Items[0].ID, rest.Items[0].ID)

	var got model.AgentGetResponse
	resp = doJSON(t, ts, http.MethodGet, "/agents/buyer-0", reg.Token, nil, &got)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "buyer-0", got.Agent.ID)

	var apiErr model.APIError
	resp = doJSON(t, ts, http.MethodGet, "/agents/ghost", reg.Token, nil, &apiErr)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, model.ErrCodeNotFound, apiErr.Error.Code)
}

func TestActionProtocolListsDescriptors(t *testing.T) {
	ts := newTestServer(t)
	reg := register(t, ts, "buyer", nil)

	var out struct {
		Actions []registry.Descriptor `json:"actions"`
	}
	resp := doJSON(t, ts, http.MethodGet, "/actions/protocol", reg.Token, nil, &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out.Actions, 5)

	names := make([]string, 0, len(out.Actions))
	for _, d := range out.Actions {
		names = append(names, d.Name)
	}
	assert.Contains(t, names, marketplace.ActionSendTextMessage)
	assert.Contains(t, names, marketplace.ActionSearch)
}

func TestExecuteAction(t *testing.T) {
	ts := newTestServer(t)
	buyer := register(t, ts, "buyer", nil)
	seller := register(t, ts, "seller", nil)

	var out model.ActionExecuteResponse
	resp := doJSON(t, ts, http.MethodPost, "/actions/execute", buyer.Token, model.ActionRequest{
		Name: marketplace.ActionSendTextMessage,
		Parameters: map[string]any{
			"to_agent_id": seller.Agent.ID,
			"content":     "hello",
		},
	}, &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, out.Result.IsError)
	assert.Equal(t, "sent", out.Result.Metadata["status"])
}

func TestExecuteActionRejectionIs400(t *testing.T) {
	ts := newTestServer(t)
	buyer := register(t, ts, "buyer", nil)

	var apiErr model.APIError
	resp := doJSON(t, ts, http.MethodPost, "/actions/execute", buyer.Token, model.ActionRequest{
		Name:       "no_such_action",
		Parameters: map[string]any{},
	}, &apiErr)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, model.ErrCodeRejected, apiErr.Error.Code)
}

func TestLogsRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	reg := register(t, ts, "buyer", nil)

	var created model.LogCreateResponse
	resp := doJSON(t, ts, http.MethodPost, "/logs", reg.Token, model.Log{
		Level:   model.LogInfo,
		Name:    "experiment",
		Message: "run started",
	}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, created.ID)

	var list model.LogListResponse
	resp = doJSON(t, ts, http.MethodGet, "/logs", reg.Token, nil, &list)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "run started", list.Items[0].Log.Message)
}

func TestHealthNeedsNoAuth(t *testing.T) {
	ts := newTestServer(t)

	var out map[string]any
	resp := doJSON(t, ts, http.MethodGet, "/health", "", nil, &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", out["status"])
}
