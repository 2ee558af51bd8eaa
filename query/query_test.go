package query_test

import (
	"testing"

	"github.com/jacentio/tether/query"
)

func TestNew_IsEmpty(t *testing.T) {
	q := query.New()
	if !q.IsEmpty() {
		t.Error("expected new query to be empty")
	}
	if q.String() != "<all>" {
		t.Errorf("expected '<all>', got %q", q.String())
	}
	if q.Page() != 1 {
		t.Errorf("expected default page 1, got %d", q.Page())
	}
	if q.PageSize() != 0 {
		t.Errorf("expected default page size 0, got %d", q.PageSize())
	}
}

func TestQuery_BuilderIsImmutable(t *testing.T) {
	base := query.Where("first_ref", query.Equal, "user#1")
	narrowed := base.And("second_ref", query.BeginLike, "role#")
	sorted := base.OrderBy("created_at", true)
	paged := base.Paginate(3, 10)

	if len(base.Conditions()) != 1 {
		t.Fatalf("expected base to keep 1 condition, got %d", len(base.Conditions()))
	}
	if len(narrowed.Conditions()) != 2 {
		t.Errorf("expected narrowed to have 2 conditions, got %d", len(narrowed.Conditions()))
	}
	if len(base.Sorts()) != 0 {
		t.Errorf("expected base to have no sorts, got %d", len(base.Sorts()))
	}
	if len(sorted.Sorts()) != 1 || !sorted.Sorts()[0].Desc {
		t.Errorf("expected one descending sort, got %+v", sorted.Sorts())
	}
	if base.Page() != 1 || paged.Page() != 3 || paged.PageSize() != 10 {
		t.Errorf("unexpected paging: base=%d paged=%d/%d", base.Page(), paged.Page(), paged.PageSize())
	}
}

func TestQuery_ConditionsReturnsCopy(t *testing.T) {
	q := query.Where("a", query.Equal, 1).AndQuery(query.Where("b", query.Equal, 2).Or("c", query.Equal, 3))

	conds := q.Conditions()
	conds[0].Field = "mutated"
	conds[1].Group[0].Field = "mutated"

	again := q.Conditions()
	if again[0].Field != "a" {
		t.Errorf("expected top-level field 'a', got %q", again[0].Field)
	}
	if again[1].Group[0].Field != "b" {
		t.Errorf("expected group field 'b', got %q", again[1].Group[0].Field)
	}
}

func TestQuery_AndQuery(t *testing.T) {
	tests := []struct {
		name     string
		left     query.Query
		right    query.Query
		expected string
	}{
		{
			name:     "both populated",
			left:     query.Where("a", query.Equal, 1),
			right:    query.Where("b", query.Equal, 2).Or("c", query.Equal, 3),
			expected: "a = 1 AND (b = 2 OR c = 3)",
		},
		{
			name:     "empty right",
			left:     query.Where("a", query.Equal, 1),
			right:    query.New(),
			expected: "a = 1",
		},
		{
			name:     "empty left",
			left:     query.New(),
			right:    query.Where("b", query.In, []string{"x", "y"}),
			expected: "b IN [x y]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.left.AndQuery(tt.right).String()
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestQuery_OrQuery(t *testing.T) {
	q := query.Where("a", query.Equal, 1).OrQuery(query.Where("b", query.GreaterThan, 2))
	if q.String() != "a = 1 OR (b > 2)" {
		t.Errorf("unexpected rendering %q", q.String())
	}
	conds := q.Conditions()
	if !conds[1].IsGroup() || conds[1].Connector != query.Or {
		t.Errorf("expected OR group, got %+v", conds[1])
	}
}

func TestQuery_AndQueryIgnoresOtherSortAndPaging(t *testing.T) {
	other := query.Where("b", query.Equal, 2).OrderBy("b", false).Paginate(4, 5)
	q := query.Where("a", query.Equal, 1).AndQuery(other)
	if len(q.Sorts()) != 0 {
		t.Errorf("expected no sorts, got %+v", q.Sorts())
	}
	if q.Page() != 1 || q.PageSize() != 0 {
		t.Errorf("expected default paging, got %d/%d", q.Page(), q.PageSize())
	}
}

func TestQuery_Limit(t *testing.T) {
	q := query.New().Limit(5)
	if q.MaxResults() != 5 {
		t.Errorf("expected limit 5, got %d", q.MaxResults())
	}
}

func TestOperator_String(t *testing.T) {
	tests := []struct {
		op       query.Operator
		expected string
	}{
		{query.Equal, "="},
		{query.NotEqual, "<>"},
		{query.LessThanOrEqual, "<="},
		{query.GreaterThanOrEqual, ">="},
		{query.NotIn, "NOT IN"},
		{query.EndLike, "END LIKE"},
		{query.Operator(99), "Operator(99)"},
	}

	for _, tt := range tests {
		if got := tt.op.String(); got != tt.expected {
			t.Errorf("expected %q, got %q", tt.expected, got)
		}
	}
}
