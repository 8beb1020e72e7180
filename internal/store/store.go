// Package store provides the typed table storage layer for Agora.
//
// A Table[T] is a generic CRUD contract over rows of one entity kind,
// filterable with the query predicate language and paginated by cursor over
// the (created_at, id) total order. A Controller aggregates the platform's
// tables (agents, actions, logs) behind one handle bound to one physical
// connection pool. Two backends implement the contract identically: Postgres
// (pgx, JSONB) and SQLite (modernc, JSON1); callers must not depend on
// backend-specific behavior — the storetest conformance suite enforces that.
package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/agora-sim/agora/internal/model"
	"github.com/agora-sim/agora/internal/query"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicateID is returned by Create when the row id already exists.
// With generator-assigned UUIDs this should be vanishingly rare; it is
// surfaced rather than silently ignored.
var ErrDuplicateID = errors.New("store: duplicate id")

// Row is a stored entity: a generator-assigned id, the assignment
// timestamp, and the entity payload serialized into the backend's JSON
// column. (created_at, id) is the total order used for pagination.
type Row[T any] struct {
	ID        string
	CreatedAt time.Time
	Data      T
}

// Range bounds a Find or GetAll call. After and Before are exclusive row-id
// cursors: the page starts strictly after the row named by After (in
// (created_at, id) order) and ends strictly before the row named by Before.
// A cursor taken from a previous page never skips or duplicates rows that
// existed at cursor time, regardless of concurrent inserts. Limit <= 0
// means no limit.
type Range struct {
	Limit  int
	After  string
	Before string
}

// Table is the generic contract over one entity table.
//
// Find returns rows matching q in ascending (created_at, id) order, bounded
// by r. A nil q matches every row, which makes GetAll a special case kept
// for readability at call sites.
type Table[T any] interface {
	Create(ctx context.Context, row Row[T]) (Row[T], error)
	GetByID(ctx context.Context, id string) (Row[T], error)
	GetAll(ctx context.Context, r Range) ([]Row[T], error)
	Find(ctx context.Context, q query.Query, r Range) ([]Row[T], error)
	Update(ctx context.Context, row Row[T]) (Row[T], error)
	Delete(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)
}

// Controller aggregates the platform tables behind one handle. It owns the
// backend connection pool: acquire on server start, Close on shutdown.
// Individual operations borrow a connection only for their own duration —
// nothing holds a connection across a handler invocation.
type Controller interface {
	Agents() Table[model.AgentProfile]
	Actions() Table[model.ActionData]
	Logs() Table[model.Log]

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Open creates a Controller for the given DSN. postgres:// and
// postgresql:// DSNs get the Postgres backend; anything else is treated as
// a SQLite database path (":memory:" included).
func Open(ctx context.Context, dsn string, logger *slog.Logger) (Controller, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return OpenPostgres(ctx, dsn, logger)
	}
	return OpenSQLite(ctx, dsn, logger)
}

// columnNames are the table columns addressable by bare (non-"$.") query
// paths. Everything else in a row lives inside the data document.
var columnNames = map[string]string{
	"id":         "id",
	"created_at": "created_at",
}
