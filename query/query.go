// Package query provides an immutable, backend-neutral condition builder.
//
// A Query is a value: every builder method returns a new Query and leaves the
// receiver untouched, so a Query can be shared between goroutines and handed to
// a storage backend without defensive copies.
//
//	q := query.Where("first_ref", query.In, refs).
//	    And("role", query.NotEqual, "guest").
//	    OrderBy("created_at", true).
//	    Paginate(1, 20)
package query

import (
	"fmt"
	"slices"
	"strings"
)

// Operator is a comparison applied to a single field.
type Operator int

const (
	Equal Operator = iota
	NotEqual
	LessThanOrEqual
	LessThan
	GreaterThan
	GreaterThanOrEqual
	In
	NotIn
	// Like matches values containing the operand.
	Like
	// BeginLike matches values starting with the operand.
	BeginLike
	// EndLike matches values ending with the operand.
	EndLike
)

var operatorNames = [...]string{
	Equal:              "=",
	NotEqual:           "<>",
	LessThanOrEqual:    "<=",
	LessThan:           "<",
	GreaterThan:        ">",
	GreaterThanOrEqual: ">=",
	In:                 "IN",
	NotIn:              "NOT IN",
	Like:               "LIKE",
	BeginLike:          "BEGIN LIKE",
	EndLike:            "END LIKE",
}

func (o Operator) String() string {
	if o < 0 || int(o) >= len(operatorNames) {
		return fmt.Sprintf("Operator(%d)", int(o))
	}
	return operatorNames[o]
}

// Connector joins a condition to the ones before it.
type Connector int

const (
	And Connector = iota
	Or
)

func (c Connector) String() string {
	if c == Or {
		return "OR"
	}
	return "AND"
}

// Condition is either a field comparison or, when Group is non-empty, a
// parenthesized list of conditions. The Connector of the first condition in a
// list is ignored.
type Condition struct {
	Connector Connector
	Field     string
	Operator  Operator
	Value     any
	Group     []Condition
}

// IsGroup reports whether the condition is a nested group.
func (c Condition) IsGroup() bool {
	return len(c.Group) > 0
}

// Sort orders results by a field.
type Sort struct {
	Field string
	Desc  bool
}

// Query is an immutable filter, sort and paging description.
type Query struct {
	conditions []Condition
	sorts      []Sort
	page       int
	pageSize   int
	limit      int
}

// New returns an empty query that matches everything.
func New() Query {
	return Query{}
}

// Where returns a query with a single condition.
func Where(field string, op Operator, value any) Query {
	return New().And(field, op, value)
}

// And appends a condition joined with AND.
func (q Query) And(field string, op Operator, value any) Query {
	return q.with(Condition{Connector: And, Field: field, Operator: op, Value: value})
}

// Or appends a condition joined with OR.
func (q Query) Or(field string, op Operator, value any) Query {
	return q.with(Condition{Connector: Or, Field: field, Operator: op, Value: value})
}

// AndQuery appends the conditions of other as one group joined with AND.
// Sorting and paging of other are ignored. An empty other leaves q unchanged.
func (q Query) AndQuery(other Query) Query {
	return q.group(And, other)
}

// OrQuery appends the conditions of other as one group joined with OR.
func (q Query) OrQuery(other Query) Query {
	return q.group(Or, other)
}

// OrderBy appends a sort key.
func (q Query) OrderBy(field string, desc bool) Query {
	out := q.clone()
	out.sorts = append(out.sorts, Sort{Field: field, Desc: desc})
	return out
}

// Paginate sets a 1-based page number and page size.
func (q Query) Paginate(page, size int) Query {
	out := q.clone()
	out.page = page
	out.pageSize = size
	return out
}

// Limit caps the number of results of a list read. Zero means no limit.
func (q Query) Limit(n int) Query {
	out := q.clone()
	out.limit = n
	return out
}

// Conditions returns a copy of the top-level conditions.
func (q Query) Conditions() []Condition {
	return cloneConditions(q.conditions)
}

// Sorts returns a copy of the sort keys.
func (q Query) Sorts() []Sort {
	return slices.Clone(q.sorts)
}

// Page returns the requested page, or 1 if none was set.
func (q Query) Page() int {
	if q.page < 1 {
		return 1
	}
	return q.page
}

// PageSize returns the requested page size, or 0 if none was set.
func (q Query) PageSize() int {
	return q.pageSize
}

// MaxResults returns the limit set with Limit.
func (q Query) MaxResults() int {
	return q.limit
}

// IsEmpty reports whether the query has no conditions.
func (q Query) IsEmpty() bool {
	return len(q.conditions) == 0
}

// String renders the conditions in a SQL-like form for logs and errors.
func (q Query) String() string {
	if q.IsEmpty() {
		return "<all>"
	}
	var b strings.Builder
	writeConditions(&b, q.conditions)
	return b.String()
}

func (q Query) with(c Condition) Query {
	out := q.clone()
	out.conditions = append(out.conditions, c)
	return out
}

func (q Query) group(conn Connector, other Query) Query {
	if other.IsEmpty() {
		return q
	}
	if q.IsEmpty() {
		out := q.clone()
		out.conditions = cloneConditions(other.conditions)
		return out
	}
	return q.with(Condition{Connector: conn, Group: cloneConditions(other.conditions)})
}

func (q Query) clone() Query {
	out := q
	out.conditions = cloneConditions(q.conditions)
	out.sorts = slices.Clone(q.sorts)
	return out
}

func cloneConditions(in []Condition) []Condition {
	if in == nil {
		return nil
	}
	out := make([]Condition, len(in))
	for i, c := range in {
		c.Group = cloneConditions(c.Group)
		out[i] = c
	}
	return out
}

func writeConditions(b *strings.Builder, conds []Condition) {
	for i, c := range conds {
		if i > 0 {
			b.WriteString(" ")
			b.WriteString(c.Connector.String())
			b.WriteString(" ")
		}
		if c.IsGroup() {
			b.WriteString("(")
			writeConditions(b, c.Group)
			b.WriteString(")")
			continue
		}
		fmt.Fprintf(b, "%s %s %v", c.Field, c.Operator, c.Value)
	}
}
