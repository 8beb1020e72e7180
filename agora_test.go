package agora_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agora-sim/agora"
)

func newApp(t *testing.T, opts ...agora.Option) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]agora.Option{
		agora.WithLogger(logger),
		agora.WithDatabaseURL(":memory:"),
		agora.WithVersion("test"),
	}, opts...)

	app, err := agora.New(opts...)
	require.NoError(t, err)

	ts := httptest.NewServer(app.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestNewWiresRegistrationAndHealth(t *testing.T) {
	ts := newApp(t)

	body, err := json.Marshal(map[string]any{"agent": map[string]any{"id": "buyer"}})
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/agents/register", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out struct {
		Agent struct {
			ID string `json:"id"`
		} `json:"agent"`
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "buyer-0", out.Agent.ID)
	assert.NotEmpty(t, out.Token)

	health, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestExtraRoutesAndMiddleware(t *testing.T) {
	var sawRequest bool
	ts := newApp(t,
		agora.WithExtraRoutes(func(mux *http.ServeMux) {
			mux.HandleFunc("GET /harness/ping", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
		}),
		agora.WithMiddleware(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				sawRequest = true
				next.ServeHTTP(w, r)
			})
		}),
	)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.True(t, sawRequest)

	// Extra routes sit behind the auth middleware like every other route.
	resp, err = http.Get(ts.URL + "/harness/ping")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
