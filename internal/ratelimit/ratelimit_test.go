package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agora-sim/agora/internal/model"
)

func TestMemoryLimiterBurstThenRefill(t *testing.T) {
	m := NewMemoryLimiter(10, 3)
	defer m.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := m.Allow(ctx, "agent:a")
		require.NoError(t, err)
		assert.True(t, ok, "request %d within burst", i)
	}

	ok, err := m.Allow(ctx, "agent:a")
	require.NoError(t, err)
	assert.False(t, ok, "burst exhausted")

	// 10 tokens/s: one token back well within 200ms.
	time.Sleep(200 * time.Millisecond)
	ok, err = m.Allow(ctx, "agent:a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	m := NewMemoryLimiter(1, 1)
	defer m.Close()
	ctx := context.Background()

	ok, _ := m.Allow(ctx, "agent:a")
	assert.True(t, ok)
	ok, _ = m.Allow(ctx, "agent:a")
	assert.False(t, ok)

	ok, _ = m.Allow(ctx, "agent:b")
	assert.True(t, ok, "a's exhaustion must not affect b")
}

func TestMemoryLimiterConcurrent(t *testing.T) {
	m := NewMemoryLimiter(1, 50)
	defer m.Close()

	allowed := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		go func() {
			ok, _ := m.Allow(context.Background(), "agent:a")
			allowed <- ok
		}()
	}

	var n int
	for i := 0; i < 100; i++ {
		if <-allowed {
			n++
		}
	}
	assert.Equal(t, 50, n, "exactly the burst capacity passes")
}

func TestMemoryLimiterSweepsIdleBuckets(t *testing.T) {
	m := NewMemoryLimiter(10, 5)
	ctx := context.Background()

	for i := 0; i < minSweepSize; i++ {
		_, err := m.Allow(ctx, fmt.Sprintf("agent:%d", i))
		require.NoError(t, err)
	}

	m.mu.Lock()
	require.Len(t, m.buckets, minSweepSize)
	stale := time.Now().Add(-idleEviction - time.Minute)
	for _, b := range m.buckets {
		b.refilled = stale
	}
	m.mu.Unlock()

	// The next unseen key crosses the watermark and triggers a sweep;
	// every idle bucket is gone and only the fresh one remains.
	ok, err := m.Allow(ctx, "agent:fresh")
	require.NoError(t, err)
	assert.True(t, ok)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Len(t, m.buckets, 1)
}

func TestMiddlewareRejectsWithEnvelope(t *testing.T) {
	m := NewMemoryLimiter(1, 1)
	defer m.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler = Middleware(m, func(*http.Request) string { return "agent:a" },
		func(*http.Request) string { return "req-1" }, logger)(handler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var apiErr model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, model.ErrCodeRateLimited, apiErr.Error.Code)
	assert.Equal(t, "req-1", apiErr.RequestID)
}

func TestMiddlewareSkipsEmptyKey(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	// Burst 0 would reject everything that is keyed.
	m := NewMemoryLimiter(1, 0)
	defer m.Close()
	handler = Middleware(m, func(*http.Request) string { return "" }, nil, logger)(handler)

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
}

func TestIPKeyFunc(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:54321"
	assert.Equal(t, "10.0.0.7", IPKeyFunc(r))
}
