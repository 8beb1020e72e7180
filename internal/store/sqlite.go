package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlite "modernc.org/sqlite"

	"github.com/agora-sim/agora/internal/model"
	"github.com/agora-sim/agora/internal/query"
)

// timeLayout is the fixed-width UTC timestamp format used for the SQLite
// created_at column. Fixed width keeps lexicographic order identical to
// chronological order, which the (created_at, id) cursor comparison
// depends on.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite is the SQLite-backed Controller. It runs everything over a single
// connection: SQLite serializes writers anyway, and a single connection
// also makes ":memory:" behave as one shared database.
type SQLite struct {
	db      *sql.DB
	agents  Table[model.AgentProfile]
	actions Table[model.ActionData]
	logs    Table[model.Log]
	logger  *slog.Logger
}

var sqliteSchema = []string{
	`PRAGMA journal_mode=WAL;`,
	`PRAGMA busy_timeout=10000;`,
	`CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		data TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_agents_created_at ON agents(created_at, id);`,
	`CREATE TABLE IF NOT EXISTS actions (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		data TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_actions_created_at ON actions(created_at, id);`,
	`CREATE TABLE IF NOT EXISTS logs (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		data TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_logs_created_at ON logs(created_at, id);`,
}

// OpenSQLite opens (or creates) a SQLite database at path and initializes
// the schema. Use ":memory:" for an ephemeral database.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: init sqlite schema: %w", err)
		}
	}

	logger.Info("store: sqlite ready", "path", path)
	return &SQLite{
		db:      db,
		agents:  &sqliteTable[model.AgentProfile]{db: db, table: "agents"},
		actions: &sqliteTable[model.ActionData]{db: db, table: "actions"},
		logs:    &sqliteTable[model.Log]{db: db, table: "logs"},
		logger:  logger,
	}, nil
}

func (s *SQLite) Agents() Table[model.AgentProfile] { return s.agents }
func (s *SQLite) Actions() Table[model.ActionData]  { return s.actions }
func (s *SQLite) Logs() Table[model.Log]            { return s.logs }

// Ping checks connectivity to the database.
func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close shuts down the database handle.
func (s *SQLite) Close(ctx context.Context) error { return s.db.Close() }

// sqliteTable implements Table[T] over one SQLite table with the
// (id, created_at, data) row shape.
type sqliteTable[T any] struct {
	db    *sql.DB
	table string
}

func (t *sqliteTable[T]) Create(ctx context.Context, row Row[T]) (Row[T], error) {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(row.Data)
	if err != nil {
		return Row[T]{}, fmt.Errorf("store: marshal %s row: %w", t.table, err)
	}

	_, err = t.db.ExecContext(ctx,
		`INSERT INTO `+t.table+` (id, created_at, data) VALUES (?, ?, ?)`,
		row.ID, row.CreatedAt.UTC().Format(timeLayout), string(data),
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return Row[T]{}, fmt.Errorf("store: create %s %s: %w", t.table, row.ID, ErrDuplicateID)
		}
		return Row[T]{}, fmt.Errorf("store: create %s: %w", t.table, err)
	}
	return row, nil
}

func (t *sqliteTable[T]) GetByID(ctx context.Context, id string) (Row[T], error) {
	var (
		row       Row[T]
		createdAt string
		data      []byte
	)
	err := t.db.QueryRowContext(ctx,
		`SELECT id, created_at, data FROM `+t.table+` WHERE id = ?`, id,
	).Scan(&row.ID, &createdAt, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Row[T]{}, fmt.Errorf("store: %s %s: %w", t.table, id, ErrNotFound)
		}
		return Row[T]{}, fmt.Errorf("store: get %s: %w", t.table, err)
	}
	return t.scanInto(row, createdAt, data)
}

func (t *sqliteTable[T]) GetAll(ctx context.Context, r Range) ([]Row[T], error) {
	return t.Find(ctx, nil, r)
}

func (t *sqliteTable[T]) Find(ctx context.Context, q query.Query, r Range) ([]Row[T], error) {
	where, args, err := sqliteWhere(q, t.table, r)
	if err != nil {
		return nil, fmt.Errorf("store: find %s: %w", t.table, err)
	}

	rows, err := t.db.QueryContext(ctx,
		`SELECT id, created_at, data FROM `+t.table+where, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("store: find %s: %w", t.table, err)
	}
	defer rows.Close()

	var out []Row[T]
	for rows.Next() {
		var (
			row       Row[T]
			createdAt string
			data      []byte
		)
		if err := rows.Scan(&row.ID, &createdAt, &data); err != nil {
			return nil, fmt.Errorf("store: scan %s row: %w", t.table, err)
		}
		row, err = t.scanInto(row, createdAt, data)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (t *sqliteTable[T]) Update(ctx context.Context, row Row[T]) (Row[T], error) {
	data, err := json.Marshal(row.Data)
	if err != nil {
		return Row[T]{}, fmt.Errorf("store: marshal %s row: %w", t.table, err)
	}

	// Full payload replace; id and created_at are immutable.
	var createdAt string
	err = t.db.QueryRowContext(ctx,
		`UPDATE `+t.table+` SET data = ? WHERE id = ? RETURNING created_at`,
		string(data), row.ID,
	).Scan(&createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Row[T]{}, fmt.Errorf("store: %s %s: %w", t.table, row.ID, ErrNotFound)
		}
		return Row[T]{}, fmt.Errorf("store: update %s: %w", t.table, err)
	}
	row.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return Row[T]{}, fmt.Errorf("store: parse %s created_at: %w", t.table, err)
	}
	return row, nil
}

func (t *sqliteTable[T]) Delete(ctx context.Context, id string) (bool, error) {
	res, err := t.db.ExecContext(ctx, `DELETE FROM `+t.table+` WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("store: delete %s: %w", t.table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: delete %s: %w", t.table, err)
	}
	return n > 0, nil
}

func (t *sqliteTable[T]) Count(ctx context.Context) (int, error) {
	var n int
	if err := t.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+t.table).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count %s: %w", t.table, err)
	}
	return n, nil
}

func (t *sqliteTable[T]) scanInto(row Row[T], createdAt string, data []byte) (Row[T], error) {
	ts, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return Row[T]{}, fmt.Errorf("store: parse %s created_at: %w", t.table, err)
	}
	row.CreatedAt = ts
	if err := json.Unmarshal(data, &row.Data); err != nil {
		return Row[T]{}, fmt.Errorf("store: unmarshal %s row: %w", t.table, err)
	}
	return row, nil
}

// sqliteWhere translates a query tree plus range bounds into a WHERE /
// ORDER BY / LIMIT clause. JSON paths go through json_extract; bare paths
// address whitelisted columns.
func sqliteWhere(q query.Query, table string, r Range) (string, []any, error) {
	var (
		conds []string
		args  []any
	)

	if q != nil {
		for _, f := range query.Fields(q) {
			cond, condArgs, err := sqliteCond(f)
			if err != nil {
				return "", nil, err
			}
			conds = append(conds, cond)
			args = append(args, condArgs...)
		}
	}

	if r.After != "" {
		conds = append(conds,
			`(created_at, id) > (SELECT created_at, id FROM `+table+` WHERE id = ?)`)
		args = append(args, r.After)
	}
	if r.Before != "" {
		conds = append(conds,
			`(created_at, id) < (SELECT created_at, id FROM `+table+` WHERE id = ?)`)
		args = append(args, r.Before)
	}

	var sb strings.Builder
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY created_at ASC, id ASC")
	if r.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, r.Limit)
	}
	return sb.String(), args, nil
}

func sqliteCond(f query.Field) (string, []any, error) {
	if !f.Op.Valid() {
		return "", nil, fmt.Errorf("invalid operator %q", f.Op)
	}

	if strings.HasPrefix(f.Path, "$.") {
		if f.Value == nil {
			switch f.Op {
			case query.Eq:
				return `json_extract(data, ?) IS NULL`, []any{f.Path}, nil
			case query.Ne:
				return `json_extract(data, ?) IS NOT NULL`, []any{f.Path}, nil
			default:
				return "", nil, fmt.Errorf("operator %q does not accept a nil value", f.Op)
			}
		}
		if _, ok := f.Value.(time.Time); ok {
			// encoding/json writes times as RFC 3339 with trailing zeros
			// trimmed, so text comparison against the fixed-width storage
			// layout misorders equal instants. Time predicates belong on
			// the created_at column.
			return "", nil, fmt.Errorf("time predicates are not supported on JSON path %q; use the created_at column", f.Path)
		}
		return `json_extract(data, ?) ` + string(f.Op) + ` ?`,
			[]any{f.Path, sqliteValue(f.Value)}, nil
	}

	col, ok := columnNames[f.Path]
	if !ok {
		return "", nil, fmt.Errorf("unknown column path %q", f.Path)
	}
	if f.Value == nil {
		return "", nil, fmt.Errorf("column %q does not accept a nil value", col)
	}
	return col + ` ` + string(f.Op) + ` ?`, []any{sqliteValue(f.Value)}, nil
}

// sqliteValue normalizes bind values: timestamps use the storage layout so
// string comparison matches chronological order, and booleans become 0/1 to
// match what json_extract yields for JSON booleans.
func sqliteValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(timeLayout)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	default:
		return v
	}
}

func isSQLiteUnique(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	// 1555 = SQLITE_CONSTRAINT_PRIMARYKEY, 2067 = SQLITE_CONSTRAINT_UNIQUE.
	return serr.Code() == 1555 || serr.Code() == 2067
}
