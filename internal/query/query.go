// Package query is the backend-independent filter expression language for
// the typed table store. A query is an immutable expression tree of field
// predicates joined by conjunction; each store backend translates the same
// tree to its native filter syntax (json_extract for SQLite,
// jsonb_path_query_first for Postgres) without changing matching semantics.
//
// Paths starting with "$." address a field inside the row's JSON data
// document ("$.request.name", "$.agent_id"); bare names address table
// columns ("id", "created_at").
//
// Conjunctions chain infix-style:
//
//	q := query.FieldEquals("$.request.name", "send_text_message").
//	    And(query.FieldEquals("$.request.parameters.to_agent_id", agentID))
//
// And is associative and commutative over the matched row set; there is
// deliberately no disjunction or negation combinator — that keeps backend
// translation trivial to verify.
package query

// Op is a comparison operator in a field predicate.
type Op string

const (
	Eq   Op = "="
	Ne   Op = "!="
	Gt   Op = ">"
	Gte  Op = ">="
	Lt   Op = "<"
	Lte  Op = "<="
	Like Op = "LIKE"
)

// Valid reports whether op is one of the defined operators.
func (op Op) Valid() bool {
	switch op {
	case Eq, Ne, Gt, Gte, Lt, Lte, Like:
		return true
	}
	return false
}

// Query is a filter expression: either a Field leaf or an And node.
// Implementations are values — build once, pass around freely.
type Query interface {
	// And returns the conjunction of q and other.
	And(other Query) Query

	node()
}

// Field is a leaf predicate comparing the value at Path against Value.
type Field struct {
	Path  string
	Op    Op
	Value any
}

// FieldEquals builds an equality predicate on path.
func FieldEquals(path string, value any) Field {
	return Field{Path: path, Op: Eq, Value: value}
}

// FieldCompare builds a predicate on path with an explicit operator.
func FieldCompare(path string, op Op, value any) Field {
	return Field{Path: path, Op: op, Value: value}
}

// And implements Query.
func (f Field) And(other Query) Query { return AndNode{Left: f, Right: other} }

func (f Field) node() {}

// AndNode matches rows that satisfy both Left and Right.
type AndNode struct {
	Left, Right Query
}

// And implements Query.
func (a AndNode) And(other Query) Query { return AndNode{Left: a, Right: other} }

func (a AndNode) node() {}

// And is the function form of the conjunction combinator.
func And(left, right Query) AndNode { return AndNode{Left: left, Right: right} }

// Fields returns the leaves of q in left-to-right order. Backends use this
// when they need the flat predicate list rather than the tree.
func Fields(q Query) []Field {
	switch n := q.(type) {
	case Field:
		return []Field{n}
	case AndNode:
		return append(Fields(n.Left), Fields(n.Right)...)
	}
	return nil
}
