package idgen_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agora-sim/agora/internal/idgen"
	"github.com/agora-sim/agora/internal/model"
	"github.com/agora-sim/agora/internal/store"
)

func newAgents(t *testing.T) store.Table[model.AgentProfile] {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := store.OpenSQLite(context.Background(), ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(context.Background()) })
	return db.Agents()
}

func TestUniqueAgentIDStartsAtZero(t *testing.T) {
	agents := newAgents(t)
	g := idgen.New()

	id, err := g.UniqueAgentID(context.Background(), "buyer", agents)
	require.NoError(t, err)
	assert.Equal(t, "buyer-0", id)
}

func TestUniqueAgentIDIncrements(t *testing.T) {
	agents := newAgents(t)
	g := idgen.New()
	ctx := context.Background()

	for i, want := range []string{"buyer-0", "buyer-1", "buyer-2"} {
		id, err := g.UniqueAgentID(ctx, "buyer", agents)
		require.NoError(t, err, "attempt %d", i)
		assert.Equal(t, want, id)

		_, err = agents.Create(ctx, store.Row[model.AgentProfile]{
			ID: id, Data: model.AgentProfile{ID: id},
		})
		require.NoError(t, err)
	}
}

func TestUniqueAgentIDPicksUpExternalRows(t *testing.T) {
	agents := newAgents(t)
	ctx := context.Background()

	// Rows created by someone else, including one that does not match the
	// suffix pattern.
	for _, id := range []string{"seller-0", "seller-7", "seller-extra"} {
		_, err := agents.Create(ctx, store.Row[model.AgentProfile]{
			ID: id, Data: model.AgentProfile{ID: id},
		})
		require.NoError(t, err)
	}

	id, err := idgen.New().UniqueAgentID(ctx, "seller", agents)
	require.NoError(t, err)
	assert.Equal(t, "seller-8", id)
}

func TestUniqueAgentIDBasesAreIndependent(t *testing.T) {
	agents := newAgents(t)
	g := idgen.New()
	ctx := context.Background()

	buyer, err := g.UniqueAgentID(ctx, "buyer", agents)
	require.NoError(t, err)
	seller, err := g.UniqueAgentID(ctx, "seller", agents)
	require.NoError(t, err)
	assert.Equal(t, "buyer-0", buyer)
	assert.Equal(t, "seller-0", seller)
}

func TestUniqueAgentIDConcurrent(t *testing.T) {
	agents := newAgents(t)
	g := idgen.New()
	ctx := context.Background()

	const n = 20
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := g.UniqueAgentID(ctx, "agent", agents)
			if err != nil {
				t.Errorf("generate: %v", err)
				return
			}
			if _, err := agents.Create(ctx, store.Row[model.AgentProfile]{
				ID: id, Data: model.AgentProfile{ID: id},
			}); err != nil {
				t.Errorf("create %s: %v", id, err)
				return
			}
			ids[i] = id
		}()
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, id := range ids {
		require.NotEmpty(t, id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
