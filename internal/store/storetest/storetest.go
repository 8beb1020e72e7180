// Package storetest is the shared conformance suite for store.Controller
// implementations. Both backends must pass the same suite: callers of the
// store never get to care which backend is underneath.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/agora-sim/agora/internal/model"
	"github.com/agora-sim/agora/internal/query"
	"github.com/agora-sim/agora/internal/store"
)

// Factory returns a Controller backed by an empty database. The suite calls
// it once per subtest; implementations may reuse a server as long as every
// call starts from empty tables.
type Factory func(t *testing.T) store.Controller

// Run executes the conformance suite against the given factory.
func Run(t *testing.T, open Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, open(t)) })
	t.Run("CreateAssignsIDAndTimestamp", func(t *testing.T) { testCreateAssigns(t, open(t)) })
	t.Run("CreateDuplicateID", func(t *testing.T) { testCreateDuplicate(t, open(t)) })
	t.Run("GetByIDNotFound", func(t *testing.T) { testGetNotFound(t, open(t)) })
	t.Run("Update", func(t *testing.T) { testUpdate(t, open(t)) })
	t.Run("UpdateNotFound", func(t *testing.T) { testUpdateNotFound(t, open(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, open(t)) })
	t.Run("Count", func(t *testing.T) { testCount(t, open(t)) })
	t.Run("FindByJSONField", func(t *testing.T) { testFindByJSONField(t, open(t)) })
	t.Run("FindNumericComparison", func(t *testing.T) { testFindNumeric(t, open(t)) })
	t.Run("FindBooleanField", func(t *testing.T) { testFindBoolean(t, open(t)) })
	t.Run("FindMissingField", func(t *testing.T) { testFindMissingField(t, open(t)) })
	t.Run("FindLike", func(t *testing.T) { testFindLike(t, open(t)) })
	t.Run("FindColumnPath", func(t *testing.T) { testFindColumnPath(t, open(t)) })
	t.Run("FindTimeOnJSONPathRejected", func(t *testing.T) { testFindTimeOnJSONPath(t, open(t)) })
	t.Run("ConjunctionOrderIrrelevant", func(t *testing.T) { testConjunction(t, open(t)) })
	t.Run("OrderingByCreation", func(t *testing.T) { testOrdering(t, open(t)) })
	t.Run("CursorPagination", func(t *testing.T) { testCursorPagination(t, open(t)) })
	t.Run("CursorStableUnderInserts", func(t *testing.T) { testCursorStability(t, open(t)) })
	t.Run("ConcurrentCreates", func(t *testing.T) { testConcurrentCreates(t, open(t)) })
}

func action(agentID, name string, params map[string]any) model.ActionData {
	return model.ActionData{
		AgentID: agentID,
		Request: model.ActionRequest{Name: name, Parameters: params},
	}
}

func testCreateAndGet(t *testing.T, c store.Controller) {
	ctx := context.Background()

	created, err := c.Agents().Create(ctx, store.Row[model.AgentProfile]{
		ID:   "buyer_1",
		Data: model.AgentProfile{ID: "buyer_1", Metadata: map[string]any{"role": "buyer"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "buyer_1", created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := c.Agents().GetByID(ctx, "buyer_1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "buyer", got.Data.Metadata["role"])
	assert.WithinDuration(t, created.CreatedAt, got.CreatedAt, time.Millisecond)
}

func testCreateAssigns(t *testing.T, c store.Controller) {
	ctx := context.Background()

	row, err := c.Actions().Create(ctx, store.Row[model.ActionData]{
		Data: action("a1", "search", map[string]any{"query": "pizza"}),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, row.ID)
	assert.False(t, row.CreatedAt.IsZero())
	assert.True(t, row.CreatedAt.Before(time.Now().Add(time.Minute)))
}

func testCreateDuplicate(t *testing.T, c store.Controller) {
	ctx := context.Background()

	_, err := c.Agents().Create(ctx, store.Row[model.AgentProfile]{
		ID: "dup", Data: model.AgentProfile{ID: "dup"},
	})
	require.NoError(t, err)

	_, err = c.Agents().Create(ctx, store.Row[model.AgentProfile]{
		ID: "dup", Data: model.AgentProfile{ID: "dup"},
	})
	require.ErrorIs(t, err, store.ErrDuplicateID)
}

func testGetNotFound(t *testing.T, c store.Controller) {
	_, err := c.Actions().GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testUpdate(t *testing.T, c store.Controller) {
	ctx := context.Background()

	row, err := c.Actions().Create(ctx, store.Row[model.ActionData]{
		Data: action("a1", "send_payment", map[string]any{"amount": 10.0}),
	})
	require.NoError(t, err)

	row.Data = row.Data.WithResult(model.ActionResult{Content: "ok", IsError: false})
	updated, err := c.Actions().Update(ctx, row)
	require.NoError(t, err)
	assert.Equal(t, row.ID, updated.ID)
	assert.WithinDuration(t, row.CreatedAt, updated.CreatedAt, time.Millisecond)

	got, err := c.Actions().GetByID(ctx, row.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Data.Result)
	assert.Equal(t, "ok", got.Data.Result.Content)
	assert.False(t, got.Data.Result.IsError)
}

func testUpdateNotFound(t *testing.T, c store.Controller) {
	_, err := c.Actions().Update(context.Background(), store.Row[model.ActionData]{
		ID:   "missing",
		Data: action("a1", "search", nil),
	})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testDelete(t *testing.T, c store.Controller) {
	ctx := context.Background()

	row, err := c.Logs().Create(ctx, store.Row[model.Log]{
		Data: model.Log{Level: model.LogInfo, Name: "test", Message: "hello"},
	})
	require.NoError(t, err)

	deleted, err := c.Logs().Delete(ctx, row.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = c.Logs().Delete(ctx, row.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = c.Logs().GetByID(ctx, row.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testCount(t *testing.T, c store.Controller) {
	ctx := context.Background()

	n, err := c.Agents().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	for i := range 3 {
		_, err := c.Agents().Create(ctx, store.Row[model.AgentProfile]{
			Data: model.AgentProfile{ID: fmt.Sprintf("agent_%d", i)},
		})
		require.NoError(t, err)
	}

	n, err = c.Agents().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func testFindByJSONField(t *testing.T, c store.Controller) {
	ctx := context.Background()

	for _, name := range []string{"search", "send_payment", "search"} {
		_, err := c.Actions().Create(ctx, store.Row[model.ActionData]{
			Data: action("a1", name, nil),
		})
		require.NoError(t, err)
	}

	rows, err := c.Actions().Find(ctx, query.RequestName("search"), store.Range{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, "search", r.Data.Request.Name)
	}
}

func testFindNumeric(t *testing.T, c store.Controller) {
	ctx := context.Background()

	for _, price := range []float64{5, 9.5, 20, 100} {
		_, err := c.Actions().Create(ctx, store.Row[model.ActionData]{
			Data: action("a1", "send_payment", map[string]any{"amount": price}),
		})
		require.NoError(t, err)
	}

	rows, err := c.Actions().Find(ctx,
		query.RequestParameter("amount", query.Gt, 9.5), store.Range{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// 100 > 9.5 numerically but not as a string; the comparison must be
	// numeric on both backends.
	rows, err = c.Actions().Find(ctx,
		query.RequestParameter("amount", query.Gte, 100), store.Range{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func testFindBoolean(t *testing.T, c store.Controller) {
	ctx := context.Background()

	for _, isErr := range []bool{true, false, false} {
		data := action("a1", "search", nil)
		data = data.WithResult(model.ActionResult{Content: "x", IsError: isErr})
		_, err := c.Actions().Create(ctx, store.Row[model.ActionData]{Data: data})
		require.NoError(t, err)
	}

	rows, err := c.Actions().Find(ctx, query.ResultIsError(false), store.Range{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = c.Actions().Find(ctx, query.ResultIsError(true), store.Range{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func testFindMissingField(t *testing.T, c store.Controller) {
	ctx := context.Background()

	// One resolved action, one still pending (result absent).
	resolved := action("a1", "search", nil).WithResult(model.ActionResult{Content: "x"})
	_, err := c.Actions().Create(ctx, store.Row[model.ActionData]{Data: resolved})
	require.NoError(t, err)
	pending, err := c.Actions().Create(ctx, store.Row[model.ActionData]{
		Data: action("a1", "search", nil),
	})
	require.NoError(t, err)

	rows, err := c.Actions().Find(ctx,
		query.FieldEquals("$.result", nil), store.Range{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, pending.ID, rows[0].ID)

	rows, err = c.Actions().Find(ctx,
		query.FieldCompare("$.result", query.Ne, nil), store.Range{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.NotEqual(t, pending.ID, rows[0].ID)

	// A comparison against a missing field matches nothing rather than
	// erroring.
	rows, err = c.Actions().Find(ctx,
		query.RequestParameter("no_such_field", query.Gt, 5), store.Range{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func testFindLike(t *testing.T, c store.Controller) {
	ctx := context.Background()

	for _, q := range []string{"Fresh Pizza", "sushi", "pizza oven"} {
		_, err := c.Actions().Create(ctx, store.Row[model.ActionData]{
			Data: action("a1", "search", map[string]any{"query": q}),
		})
		require.NoError(t, err)
	}

	rows, err := c.Actions().Find(ctx,
		query.RequestParameter("query", query.Like, "%pizza%"), store.Range{})
	require.NoError(t, err)
	assert.Len(t, rows, 2, "LIKE must be case-insensitive on every backend")
}

func testFindColumnPath(t *testing.T, c store.Controller) {
	ctx := context.Background()

	first, err := c.Logs().Create(ctx, store.Row[model.Log]{
		Data: model.Log{Level: model.LogInfo, Name: "a", Message: "first"},
	})
	require.NoError(t, err)
	_, err = c.Logs().Create(ctx, store.Row[model.Log]{
		Data: model.Log{Level: model.LogInfo, Name: "b", Message: "second"},
	})
	require.NoError(t, err)

	rows, err := c.Logs().Find(ctx,
		query.FieldEquals("id", first.ID), store.Range{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, first.ID, rows[0].ID)

	rows, err = c.Logs().Find(ctx,
		query.FieldCompare("created_at", query.Gt, first.CreatedAt), store.Range{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "second", rows[0].Data.Message)

	// Unknown column paths are rejected, not passed through to SQL.
	_, err = c.Logs().Find(ctx,
		query.FieldEquals("data", "x"), store.Range{})
	require.Error(t, err)
}

func testFindTimeOnJSONPath(t *testing.T, c store.Controller) {
	ctx := context.Background()

	_, err := c.Actions().Create(ctx, store.Row[model.ActionData]{
		Data: action("a1", "send_payment", map[string]any{
			"deadline": time.Now().Format(time.RFC3339Nano),
		}),
	})
	require.NoError(t, err)

	// Times inside JSON documents are strings in whatever layout the writer
	// chose; a typed comparison against them has no portable meaning. Both
	// backends reject the predicate instead of guessing.
	_, err = c.Actions().Find(ctx,
		query.FieldCompare("$.request.parameters.deadline", query.Gt, time.Now().Add(-time.Hour)),
		store.Range{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "created_at")

	_, err = c.Actions().Find(ctx,
		query.FieldEquals("$.request.parameters.deadline", time.Now()),
		store.Range{})
	require.Error(t, err)
}

func testConjunction(t *testing.T, c store.Controller) {
	ctx := context.Background()

	seed := []model.ActionData{
		action("a1", "send_text_message", map[string]any{"to_agent_id": "b1"}),
		action("a1", "send_text_message", map[string]any{"to_agent_id": "b2"}),
		action("a2", "send_text_message", map[string]any{"to_agent_id": "b1"}),
		action("a1", "search", map[string]any{"to_agent_id": "b1"}),
	}
	for _, d := range seed {
		_, err := c.Actions().Create(ctx, store.Row[model.ActionData]{Data: d})
		require.NoError(t, err)
	}

	sender := query.AgentID("a1")
	name := query.RequestName("send_text_message")
	recipient := query.RequestParameter("to_agent_id", query.Eq, "b1")

	ids := func(q query.Query) []string {
		rows, err := c.Actions().Find(ctx, q, store.Range{})
		require.NoError(t, err)
		out := make([]string, len(rows))
		for i, r := range rows {
			out[i] = r.ID
		}
		return out
	}

	want := ids(sender.And(name).And(recipient))
	require.Len(t, want, 1)

	// Grouping and operand order must not change the matched set.
	assert.Equal(t, want, ids(sender.And(name.And(recipient))))
	assert.Equal(t, want, ids(recipient.And(sender).And(name)))
	assert.Equal(t, want, ids(query.And(name, query.And(recipient, sender))))
}

func testOrdering(t *testing.T, c store.Controller) {
	ctx := context.Background()

	var created []string
	for i := range 5 {
		row, err := c.Logs().Create(ctx, store.Row[model.Log]{
			Data: model.Log{Level: model.LogInfo, Name: "seq", Message: fmt.Sprintf("%d", i)},
		})
		require.NoError(t, err)
		created = append(created, row.ID)
	}

	rows, err := c.Logs().GetAll(ctx, store.Range{})
	require.NoError(t, err)
	require.Len(t, rows, 5)
	for i, r := range rows {
		assert.Equal(t, created[i], r.ID)
	}
}

func testCursorPagination(t *testing.T, c store.Controller) {
	ctx := context.Background()

	var created []string
	for i := range 7 {
		row, err := c.Actions().Create(ctx, store.Row[model.ActionData]{
			Data: action("a1", "search", map[string]any{"n": i}),
		})
		require.NoError(t, err)
		created = append(created, row.ID)
	}

	var paged []string
	after := ""
	for {
		rows, err := c.Actions().GetAll(ctx, store.Range{Limit: 3, After: after})
		require.NoError(t, err)
		if len(rows) == 0 {
			break
		}
		for _, r := range rows {
			paged = append(paged, r.ID)
		}
		after = rows[len(rows)-1].ID
	}
	assert.Equal(t, created, paged)

	// Before bounds the page from the other side.
	rows, err := c.Actions().GetAll(ctx, store.Range{Before: created[2]})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, created[:2], []string{rows[0].ID, rows[1].ID})
}

func testCursorStability(t *testing.T, c store.Controller) {
	ctx := context.Background()

	var created []string
	for i := range 4 {
		row, err := c.Actions().Create(ctx, store.Row[model.ActionData]{
			Data: action("a1", "search", map[string]any{"n": i}),
		})
		require.NoError(t, err)
		created = append(created, row.ID)
	}

	first, err := c.Actions().GetAll(ctx, store.Range{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)

	// Rows created after the cursor was taken appear at the end of the
	// order, so the next page still starts exactly where the first ended.
	late, err := c.Actions().Create(ctx, store.Row[model.ActionData]{
		Data: action("a1", "search", map[string]any{"n": 99}),
	})
	require.NoError(t, err)

	second, err := c.Actions().GetAll(ctx, store.Range{Limit: 10, After: first[1].ID})
	require.NoError(t, err)
	require.Len(t, second, 3)
	assert.Equal(t, created[2], second[0].ID)
	assert.Equal(t, created[3], second[1].ID)
	assert.Equal(t, late.ID, second[2].ID)
}

func testConcurrentCreates(t *testing.T, c store.Controller) {
	ctx := context.Background()

	const n = 50
	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			_, err := c.Actions().Create(ctx, store.Row[model.ActionData]{
				Data: action(fmt.Sprintf("agent_%d", i%5), "search", map[string]any{"n": i}),
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	count, err := c.Actions().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, count)

	rows, err := c.Actions().GetAll(ctx, store.Range{})
	require.NoError(t, err)
	require.Len(t, rows, n)
	seen := make(map[string]bool, n)
	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1], rows[i]
		ordered := prev.CreatedAt.Before(cur.CreatedAt) ||
			(prev.CreatedAt.Equal(cur.CreatedAt) && prev.ID < cur.ID)
		assert.True(t, ordered, "rows %d and %d out of order", i-1, i)
	}
	for _, r := range rows {
		assert.False(t, seen[r.ID], "duplicate id %s", r.ID)
		seen[r.ID] = true
	}
}
