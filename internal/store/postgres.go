package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agora-sim/agora/internal/model"
	"github.com/agora-sim/agora/internal/query"
	"github.com/agora-sim/agora/migrations"
)

// Postgres is the pgx-backed Controller. Data documents live in JSONB
// columns; query predicates translate to jsonb_path_query_first filters.
type Postgres struct {
	pool    *pgxpool.Pool
	agents  Table[model.AgentProfile]
	actions Table[model.ActionData]
	logs    Table[model.Log]
	logger  *slog.Logger
}

// OpenPostgres connects a pool to the given DSN, runs embedded migrations,
// and returns a ready Controller.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse postgres DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping pool: %w", err)
	}

	p := &Postgres{
		pool:    pool,
		agents:  &pgTable[model.AgentProfile]{pool: pool, table: "agents"},
		actions: &pgTable[model.ActionData]{pool: pool, table: "actions"},
		logs:    &pgTable[model.Log]{pool: pool, table: "logs"},
		logger:  logger,
	}

	if err := p.RunMigrations(ctx, migrations.FS); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("store: postgres ready")
	return p, nil
}

func (p *Postgres) Agents() Table[model.AgentProfile] { return p.agents }
func (p *Postgres) Actions() Table[model.ActionData]  { return p.actions }
func (p *Postgres) Logs() Table[model.Log]            { return p.logs }

// Pool returns the underlying connection pool for use by other packages.
func (p *Postgres) Pool() *pgxpool.Pool { return p.pool }

// Ping checks connectivity to the database.
func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

// Close shuts down the connection pool.
func (p *Postgres) Close(ctx context.Context) error {
	p.pool.Close()
	return nil
}

// pgTable implements Table[T] over one Postgres table with the
// (id, created_at, data) row shape.
type pgTable[T any] struct {
	pool  *pgxpool.Pool
	table string
}

func (t *pgTable[T]) Create(ctx context.Context, row Row[T]) (Row[T], error) {
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

	_, err = t.pool.Exec(ctx,
		`INSERT INTO `+t.table+` (id, created_at, data) VALUES ($1, $2, $3)`,
		row.ID, row.CreatedAt.UTC(), string(data),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Row[T]{}, fmt.Errorf("store: create %s %s: %w", t.table, row.ID, ErrDuplicateID)
		}
		return Row[T]{}, fmt.Errorf("store: create %s: %w", t.table, err)
	}
	return row, nil
}

func (t *pgTable[T]) GetByID(ctx context.Context, id string) (Row[T], error) {
	var (
		row  Row[T]
		data []byte
	)
	err := t.pool.QueryRow(ctx,
		`SELECT id, created_at, data FROM `+t.table+` WHERE id = $1`, id,
	).Scan(&row.ID, &row.CreatedAt, &data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Row[T]{}, fmt.Errorf("store: %s %s: %w", t.table, id, ErrNotFound)
		}
		return Row[T]{}, fmt.Errorf("store: get %s: %w", t.table, err)
	}
	if err := json.Unmarshal(data, &row.Data); err != nil {
		return Row[T]{}, fmt.Errorf("store: unmarshal %s row: %w", t.table, err)
	}
	return row, nil
}

func (t *pgTable[T]) GetAll(ctx context.Context, r Range) ([]Row[T], error) {
	return t.Find(ctx, nil, r)
}

func (t *pgTable[T]) Find(ctx context.Context, q query.Query, r Range) ([]Row[T], error) {
	where, args, err := pgWhere(q, t.table, r)
	if err != nil {
		return nil, fmt.Errorf("store: find %s: %w", t.table, err)
	}

	rows, err := t.pool.Query(ctx,
		`SELECT id, created_at, data FROM `+t.table+where, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("store: find %s: %w", t.table, err)
	}
	defer rows.Close()

	var out []Row[T]
	for rows.Next() {
		var (
			row  Row[T]
			data []byte
		)
		if err := rows.Scan(&row.ID, &row.CreatedAt, &data); err != nil {
			return nil, fmt.Errorf("store: scan %s row: %w", t.table, err)
		}
		if err := json.Unmarshal(data, &row.Data); err != nil {
			return nil, fmt.Errorf("store: unmarshal %s row: %w", t.table, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (t *pgTable[T]) Update(ctx context.Context, row Row[T]) (Row[T], error) {
	data, err := json.Marshal(row.Data)
	if err != nil {
		return Row[T]{}, fmt.Errorf("store: marshal %s row: %w", t.table, err)
	}

	// Full payload replace; id and created_at are immutable.
	err = t.pool.QueryRow(ctx,
		`UPDATE `+t.table+` SET data = $1 WHERE id = $2 RETURNING created_at`,
		string(data), row.ID,
	).Scan(&row.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Row[T]{}, fmt.Errorf("store: %s %s: %w", t.table, row.ID, ErrNotFound)
		}
		return Row[T]{}, fmt.Errorf("store: update %s: %w", t.table, err)
	}
	return row, nil
}

func (t *pgTable[T]) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := t.pool.Exec(ctx, `DELETE FROM `+t.table+` WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("store: delete %s: %w", t.table, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *pgTable[T]) Count(ctx context.Context) (int, error) {
	var n int
	if err := t.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+t.table).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count %s: %w", t.table, err)
	}
	return n, nil
}

// pgWhere translates a query tree plus range bounds into a WHERE /
// ORDER BY / LIMIT clause with $n placeholders.
func pgWhere(q query.Query, table string, r Range) (string, []any, error) {
	var (
		conds []string
		args  []any
	)

	if q != nil {
		for _, f := range query.Fields(q) {
			cond, condArgs, err := pgCond(f, len(args))
			if err != nil {
				return "", nil, err
			}
			conds = append(conds, cond)
			args = append(args, condArgs...)
		}
	}

	if r.After != "" {
		args = append(args, r.After)
		conds = append(conds, fmt.Sprintf(
			`(created_at, id) > (SELECT created_at, id FROM %s WHERE id = $%d)`, table, len(args)))
	}
	if r.Before != "" {
		args = append(args, r.Before)
		conds = append(conds, fmt.Sprintf(
			`(created_at, id) < (SELECT created_at, id FROM %s WHERE id = $%d)`, table, len(args)))
	}

	var sb strings.Builder
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY created_at ASC, id ASC")
	if r.Limit > 0 {
		args = append(args, r.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	return sb.String(), args, nil
}

// pgCond translates one field predicate. offset is the number of
// placeholders already consumed. The JSON extraction is typed by the bind
// value so that numeric and boolean comparisons match SQLite's
// json_extract semantics: a row whose field is absent or of a different
// JSON type simply does not match — it never errors the query.
func pgCond(f query.Field, offset int) (string, []any, error) {
	if !f.Op.Valid() {
		return "", nil, fmt.Errorf("invalid operator %q", f.Op)
	}
	op := string(f.Op)
	if f.Op == query.Like {
		// SQLite LIKE is case-insensitive for ASCII; ILIKE keeps the
		// backends in agreement.
		op = "ILIKE"
	}

	if strings.HasPrefix(f.Path, "$.") {
		jsonPath, err := pgJSONPath(f.Path)
		if err != nil {
			return "", nil, err
		}
		pathArg := fmt.Sprintf("$%d::jsonpath", offset+1)
		extract := fmt.Sprintf("jsonb_path_query_first(data, %s)", pathArg)

		if f.Value == nil {
			switch f.Op {
			case query.Eq:
				return fmt.Sprintf("(%s #>> '{}') IS NULL", extract), []any{jsonPath}, nil
			case query.Ne:
				return fmt.Sprintf("(%s #>> '{}') IS NOT NULL", extract), []any{jsonPath}, nil
			default:
				return "", nil, fmt.Errorf("operator %q does not accept a nil value", f.Op)
			}
		}

		valArg := fmt.Sprintf("$%d", offset+2)
		switch v := f.Value.(type) {
		case bool:
			cond := fmt.Sprintf(
				`(CASE WHEN jsonb_typeof(%s) = 'boolean' THEN (%s #>> '{}')::boolean END) %s %s`,
				extract, extract, op, valArg)
			return cond, []any{jsonPath, v}, nil
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			cond := fmt.Sprintf(
				`(CASE WHEN jsonb_typeof(%s) = 'number' THEN (%s #>> '{}')::numeric END) %s %s`,
				extract, extract, op, valArg)
			return cond, []any{jsonPath, v}, nil
		case time.Time:
			// JSON documents carry times as strings in whatever layout the
			// writer marshaled, so a typed comparison cannot be made
			// error-free here and text comparison misorders across layouts.
			// Time predicates belong on the created_at column.
			return "", nil, fmt.Errorf("time predicates are not supported on JSON path %q; use the created_at column", f.Path)
		default:
			cond := fmt.Sprintf(`(%s #>> '{}') %s %s`, extract, op, valArg)
			return cond, []any{jsonPath, f.Value}, nil
		}
	}

	col, ok := columnNames[f.Path]
	if !ok {
		return "", nil, fmt.Errorf("unknown column path %q", f.Path)
	}
	if f.Value == nil {
		return "", nil, fmt.Errorf("column %q does not accept a nil value", col)
	}
	val := f.Value
	if ts, ok := val.(time.Time); ok {
		val = ts.UTC()
	}
	return fmt.Sprintf("%s %s $%d", col, op, offset+1), []any{val}, nil
}

// pgJSONPath converts a "$.a.b.c" dot path into a quoted SQL/JSON path
// expression ($."a"."b"."c"). Array subscripts are not supported — the
// predicate language addresses named fields only.
func pgJSONPath(path string) (string, error) {
	trimmed := strings.TrimPrefix(path, "$.")
	if trimmed == "" || trimmed == path {
		return "", fmt.Errorf("invalid JSON path %q", path)
	}
	parts := strings.Split(trimmed, ".")
	for i, p := range parts {
		if p == "" || strings.ContainsAny(p, `"[]`) {
			return "", fmt.Errorf("invalid JSON path segment %q in %q", p, path)
		}
		parts[i] = `"` + p + `"`
	}
	return "$." + strings.Join(parts, "."), nil
}
