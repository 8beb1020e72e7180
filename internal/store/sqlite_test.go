package store_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agora-sim/agora/internal/store"
	"github.com/agora-sim/agora/internal/store/storetest"
)

func TestSQLiteConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Controller {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		c, err := store.OpenSQLite(context.Background(), ":memory:", logger)
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close(context.Background()) })
		return c
	})
}

func TestOpenDispatchesOnDSN(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	c, err := store.Open(context.Background(), ":memory:", logger)
	require.NoError(t, err)
	defer c.Close(context.Background())

	_, ok := c.(*store.SQLite)
	require.True(t, ok)
}
