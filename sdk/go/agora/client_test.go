package agora

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	c, err := NewClient(Config{BaseURL: ts.URL})
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestRegisterStoresToken(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/agents/register", r.URL.Path)
		require.Empty(t, r.Header.Get("Authorization"))

		var body struct {
			Agent AgentProfile `json:"agent"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "buyer", body.Agent.ID)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"agent": AgentProfile{ID: "buyer-0"},
			"token": "tok-123",
		})
	})

	resp, err := c.Register(context.Background(), "buyer", nil)
	require.NoError(t, err)
	assert.Equal(t, "buyer-0", resp.Agent.ID)
	assert.Equal(t, "tok-123", c.token)
}

func TestExecuteSendsBearerToken(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/actions/execute", r.URL.Path)
		require.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": ActionResult{Content: "ok"},
		})
	})
	c.token = "tok-123"

	result, err := c.Execute(context.Background(), "send_text_message", map[string]any{
		"to_agent_id": "seller-0",
		"content":     "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Content)
	assert.False(t, result.IsError)
}

func TestErrorEnvelopeParsing(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code":    "action_rejected",
				"message": "missing required field \"content\"",
			},
		})
	})

	_, err := c.Execute(context.Background(), "send_text_message", nil)
	require.Error(t, err)
	assert.True(t, IsRejected(err))
	assert.False(t, IsFault(err))

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestAgentsPagination(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		assert.Equal(t, "cur-1", r.URL.Query().Get("after"))
		_ = json.NewEncoder(w).Encode(AgentsPage{
			Items:   []AgentProfile{{ID: "a-0"}},
			Total:   4,
			HasMore: true,
			Cursor:  "a-0",
		})
	})

	page, err := c.Agents(context.Background(), 3, "cur-1")
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	assert.Equal(t, "a-0", page.Cursor)
}

func TestNotFound(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": "not_found", "message": "agent not found"},
		})
	})

	_, err := c.Agent(context.Background(), "ghost")
	assert.True(t, IsNotFound(err))
}
