package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agora-sim/agora/internal/query"
)

func TestOpValid(t *testing.T) {
	for _, op := range []query.Op{query.Eq, query.Ne, query.Gt, query.Gte, query.Lt, query.Lte, query.Like} {
		assert.True(t, op.Valid(), "%q", op)
	}
	assert.False(t, query.Op("IN").Valid())
	assert.False(t, query.Op("").Valid())
}

func TestFieldsFlattensLeftToRight(t *testing.T) {
	a := query.FieldEquals("$.agent_id", "a1")
	b := query.RequestName("search")
	c := query.FieldCompare("created_at", query.Gt, 0)

	fields := query.Fields(a.And(b).And(c))
	require.Len(t, fields, 3)
	assert.Equal(t, "$.agent_id", fields[0].Path)
	assert.Equal(t, "$.request.name", fields[1].Path)
	assert.Equal(t, "created_at", fields[2].Path)

	// Grouping changes the tree shape, not the leaf order.
	fields = query.Fields(a.And(b.And(c)))
	require.Len(t, fields, 3)
	assert.Equal(t, "$.agent_id", fields[0].Path)
	assert.Equal(t, "created_at", fields[2].Path)
}

func TestFieldsSingleLeaf(t *testing.T) {
	fields := query.Fields(query.AgentID("a1"))
	require.Len(t, fields, 1)
	assert.Equal(t, query.Field{Path: "$.agent_id", Op: query.Eq, Value: "a1"}, fields[0])
}

func TestActionPathHelpers(t *testing.T) {
	f := query.RequestParameter("to_agent_id", query.Eq, "b1")
	assert.Equal(t, "$.request.parameters.to_agent_id", f.Path)

	f = query.ResultContent("order_id", query.Eq, "o1")
	assert.Equal(t, "$.result.content.order_id", f.Path)

	f = query.ResultIsError(true)
	assert.Equal(t, "$.result.is_error", f.Path)
	assert.Equal(t, true, f.Value)
}
