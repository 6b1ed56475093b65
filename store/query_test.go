package store

import (
	"testing"
	"time"
)

func TestConditionMatches(t *testing.T) {
	doc := Document{
		"patientId": "p1",
		"status":    "issued",
		"quantity":  int64(12),
		"date":      time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"eq match", Eq("patientId", "p1"), true},
		{"eq mismatch", Eq("patientId", "p2"), false},
		{"eq missing field", Eq("nope", "x"), false},
		{"in match", In("status", "draft", "issued"), true},
		{"in mismatch", In("status", "draft", "dispensed"), false},
		{"gt numeric", Range("quantity", CondGT, 10), true},
		{"gte boundary", Range("quantity", CondGTE, int64(12)), true},
		{"lt numeric", Range("quantity", CondLT, 5), false},
		{"date range", Range("date", CondGTE, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)), true},
		{"date out of range", Range("date", CondLT, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)), false},
		{"incomparable types", Range("status", CondGT, 5), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cond.Matches(doc); got != tt.want {
				t.Errorf("Matches = %t, want %t", got, tt.want)
			}
		})
	}
}

func TestQuerySplit(t *testing.T) {
	q := Where(
		Eq("patientId", "p1"),
		In("status", "issued", "dispensed"),
		Range("date", CondGTE, time.Now().Add(-24*time.Hour)),
	)

	pushable, post := q.Split()

	if len(pushable.Conditions) != 2 {
		t.Errorf("pushable conditions = %d, want 2", len(pushable.Conditions))
	}
	if len(post) != 1 {
		t.Fatalf("post conditions = %d, want 1", len(post))
	}
	if post[0].Field != "date" {
		t.Errorf("post condition field = %s, want date", post[0].Field)
	}
	if pushable.Limit != DefaultFeedLimit {
		t.Errorf("Limit = %d, want %d", pushable.Limit, DefaultFeedLimit)
	}
}

func TestQueryLess(t *testing.T) {
	a := Document{"qty": 2}
	b := Document{"qty": 5}

	asc := Query{OrderBy: "qty"}
	if !asc.Less(a, b, "x", "y") {
		t.Error("ascending: smaller qty should sort first")
	}

	desc := Query{OrderBy: "qty", Descending: true}
	if !desc.Less(b, a, "y", "x") {
		t.Error("descending: larger qty should sort first")
	}

	// Equal or missing order fields fall back to ids.
	tie := Query{OrderBy: "qty"}
	if !tie.Less(Document{"qty": 3}, Document{"qty": 3}, "a", "b") {
		t.Error("equal values: smaller id should sort first")
	}
	none := Query{}
	if !none.Less(a, b, "a", "b") {
		t.Error("no OrderBy: ids decide")
	}
}

func TestDocumentWatch(t *testing.T) {
	q := DocumentWatch("id", "A1")
	if q.Limit != 1 {
		t.Errorf("Limit = %d, want 1", q.Limit)
	}
	if !q.Matches(Document{"id": "A1"}) {
		t.Error("watch query should match its own document")
	}
	if q.Matches(Document{"id": "A2"}) {
		t.Error("watch query must not match other documents")
	}
}

func TestDocumentVersion(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
		want int64
	}{
		{"int64", Document{"version": int64(4)}, 4},
		{"int", Document{"version": 2}, 2},
		{"float64 from json", Document{"version": float64(7)}, 7},
		{"missing", Document{}, 0},
		{"malformed", Document{"version": "three"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.doc.Version(); got != tt.want {
				t.Errorf("Version() = %d, want %d", got, tt.want)
			}
		})
	}
}
