package store

import (
	"fmt"
	"time"
)

// CondOp is a filter predicate operator.
type CondOp string

const (
	CondEq  CondOp = "=="
	CondIn  CondOp = "in"
	CondGT  CondOp = ">"
	CondGTE CondOp = ">="
	CondLT  CondOp = "<"
	CondLTE CondOp = "<="
)

// Condition is one predicate of a query filter.
//
// Equality and inclusion predicates are server-pushable: adapters are
// expected to evaluate them inside the backend's query engine. Range
// predicates (>, >=, <, <=, typically over dates) are NOT required to be
// pushed; adapters may fetch on the pushable subset and re-filter in memory.
// Query.Split makes that division explicit rather than leaving it implicit
// in each adapter.
type Condition struct {
	Field string
	Op    CondOp
	Value interface{}
}

// Matches evaluates the condition against a document in memory.
func (c Condition) Matches(doc Document) bool {
	got, ok := doc[c.Field]
	if !ok {
		return false
	}

	switch c.Op {
	case CondEq:
		return equalValues(got, c.Value)
	case CondIn:
		candidates, ok := c.Value.([]interface{})
		if !ok {
			return false
		}
		for _, cand := range candidates {
			if equalValues(got, cand) {
				return true
			}
		}
		return false
	case CondGT, CondGTE, CondLT, CondLTE:
		cmp, ok := compareValues(got, c.Value)
		if !ok {
			return false
		}
		switch c.Op {
		case CondGT:
			return cmp > 0
		case CondGTE:
			return cmp >= 0
		case CondLT:
			return cmp < 0
		default:
			return cmp <= 0
		}
	default:
		return false
	}
}

// Query describes a live-query filter: predicates, ordering, and a result
// cap. Collection feeds default to a cap of 50 documents; single-document
// watches use a cap of 1.
type Query struct {
	Conditions []Condition
	OrderBy    string
	Descending bool
	Limit      int
}

// DefaultFeedLimit caps collection feeds.
const DefaultFeedLimit = 50

// Where builds a query from conditions, applying the default feed limit.
func Where(conds ...Condition) Query {
	return Query{Conditions: conds, Limit: DefaultFeedLimit}
}

// DocumentWatch builds a single-document watch query on the given id field.
func DocumentWatch(idField, id string) Query {
	return Query{
		Conditions: []Condition{{Field: idField, Op: CondEq, Value: id}},
		Limit:      1,
	}
}

// Eq builds an equality condition.
func Eq(field string, value interface{}) Condition {
	return Condition{Field: field, Op: CondEq, Value: value}
}

// In builds an inclusion condition.
func In(field string, values ...interface{}) Condition {
	return Condition{Field: field, Op: CondIn, Value: values}
}

// Range builds a range condition.
func Range(field string, op CondOp, value interface{}) Condition {
	return Condition{Field: field, Op: op, Value: value}
}

// Split divides the query into the server-pushable part and the conditions
// an adapter must re-apply in memory after fetch.
func (q Query) Split() (pushable Query, post []Condition) {
	pushable = Query{OrderBy: q.OrderBy, Descending: q.Descending, Limit: q.Limit}
	for _, c := range q.Conditions {
		switch c.Op {
		case CondEq, CondIn:
			pushable.Conditions = append(pushable.Conditions, c)
		default:
			post = append(post, c)
		}
	}
	return pushable, post
}

// Matches reports whether the document satisfies every condition of the
// query, pushable or not.
func (q Query) Matches(doc Document) bool {
	for _, c := range q.Conditions {
		if !c.Matches(doc) {
			return false
		}
	}
	return true
}

// Less orders two documents per OrderBy and Descending. Missing or
// incomparable order fields fall back to the document ids, so a capped
// feed is deterministic regardless of backend iteration order.
func (q Query) Less(a, b Document, aID, bID string) bool {
	if q.OrderBy != "" {
		if cmp, ok := compareValues(a[q.OrderBy], b[q.OrderBy]); ok && cmp != 0 {
			if q.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
	}
	return aID < bID
}

func equalValues(a, b interface{}) bool {
	if cmp, ok := compareValues(a, b); ok {
		return cmp == 0
	}
	return a == b
}

// compareValues orders two scalar values of compatible types. The bool
// result is false when the pair is not comparable.
func compareValues(a, b interface{}) (int, bool) {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		default:
			return 0, true
		}
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		switch {
		case av.Before(bv):
			return -1, true
		case av.After(bv):
			return 1, true
		default:
			return 0, true
		}
	case int, int64, float64:
		af, aok := toFloat(a)
		bf, bok := toFloat(b)
		if !aok || !bok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if av == bv {
			return 0, true
		}
		return 0, false
	default:
		return 0, false
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// String renders the query for logs.
func (q Query) String() string {
	return fmt.Sprintf("query{conds=%d order=%s desc=%t limit=%d}", len(q.Conditions), q.OrderBy, q.Descending, q.Limit)
}
