package store

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/tether/query"
)

// maxInOperands is the DynamoDB limit for the operands of one IN comparison.
const maxInOperands = 100

// compiledQuery is a query translated into DynamoDB expressions for one table.
type compiledQuery struct {
	// indexName is set when the key condition targets a secondary index.
	indexName string

	// keyCondition is empty when the query needs a Scan.
	keyCondition string

	filter string
	names  map[string]string
	values map[string]types.AttributeValue
}

// keySchema is the key of a table or of one of its indexes.
type keySchema struct {
	index        string
	partitionKey string
	sortKey      string
}

func (t TableSpec) schemas() []keySchema {
	out := []keySchema{{partitionKey: t.PartitionKey, sortKey: t.SortKey}}
	for _, idx := range t.Indexes {
		out = append(out, keySchema{index: idx.Name, partitionKey: idx.PartitionKey, sortKey: idx.SortKey})
	}
	return out
}

// compileQuery translates q for the table described by spec.
//
// When q is a plain AND list containing an Equal condition on the partition
// key of the table or of one of its indexes, that condition (and a usable
// condition on the matching sort key) becomes the key condition and the rest
// becomes the filter. Otherwise the whole query is a Scan filter.
func compileQuery(spec TableSpec, q query.Query) (compiledQuery, error) {
	b := newExprBuilder()
	conds := q.Conditions()
	var out compiledQuery

	if andOnly(conds) {
		for _, schema := range spec.schemas() {
			pk := findCondition(conds, schema.partitionKey, isPartitionCondition)
			if pk < 0 {
				continue
			}
			keyExpr, err := b.keyCondition(conds[pk])
			if err != nil {
				return compiledQuery{}, err
			}
			used := []int{pk}
			if sk := findCondition(conds, schema.sortKey, isSortCondition); schema.sortKey != "" && sk >= 0 {
				skExpr, err := b.keyCondition(conds[sk])
				if err != nil {
					return compiledQuery{}, err
				}
				keyExpr += " AND " + skExpr
				used = append(used, sk)
			}
			out.indexName = schema.index
			out.keyCondition = keyExpr
			conds = without(conds, used)
			break
		}
	}

	filter, err := b.conditions(conds)
	if err != nil {
		return compiledQuery{}, err
	}
	out.filter = filter
	out.names = b.names
	out.values = b.values
	return out, nil
}

func andOnly(conds []query.Condition) bool {
	for i, c := range conds {
		if i > 0 && c.Connector != query.And {
			return false
		}
	}
	return true
}

func findCondition(conds []query.Condition, field string, ok func(query.Condition) bool) int {
	if field == "" {
		return -1
	}
	for i, c := range conds {
		if !c.IsGroup() && c.Field == field && ok(c) {
			return i
		}
	}
	return -1
}

func isPartitionCondition(c query.Condition) bool {
	return c.Operator == query.Equal && !isList(c.Value)
}

func isSortCondition(c query.Condition) bool {
	switch c.Operator {
	case query.Equal, query.LessThan, query.LessThanOrEqual,
		query.GreaterThan, query.GreaterThanOrEqual, query.BeginLike:
		return !isList(c.Value)
	}
	return false
}

func without(conds []query.Condition, drop []int) []query.Condition {
	out := make([]query.Condition, 0, len(conds))
	for i, c := range conds {
		if !slices.Contains(drop, i) {
			out = append(out, c)
		}
	}
	return out
}

// exprBuilder allocates expression attribute placeholders.
type exprBuilder struct {
	names  map[string]string
	fields map[string]string
	values map[string]types.AttributeValue
}

func newExprBuilder() *exprBuilder {
	return &exprBuilder{
		names:  make(map[string]string),
		fields: make(map[string]string),
		values: make(map[string]types.AttributeValue),
	}
}

func (b *exprBuilder) name(field string) string {
	if p, ok := b.fields[field]; ok {
		return p
	}
	p := fmt.Sprintf("#f%d", len(b.fields))
	b.fields[field] = p
	b.names[p] = field
	return p
}

func (b *exprBuilder) value(v any) (string, error) {
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: marshal value %v: %v", ErrInvalidQuery, v, err)
	}
	if av == nil {
		return "", fmt.Errorf("%w: cannot encode %T", ErrInvalidQuery, v)
	}
	p := fmt.Sprintf(":v%d", len(b.values))
	b.values[p] = av
	return p, nil
}

func (b *exprBuilder) keyCondition(c query.Condition) (string, error) {
	if c.Operator == query.BeginLike {
		return b.condition(c)
	}
	return b.compare(c)
}

func (b *exprBuilder) conditions(conds []query.Condition) (string, error) {
	var sb strings.Builder
	for i, c := range conds {
		if i > 0 {
			sb.WriteString(" ")
			sb.WriteString(c.Connector.String())
			sb.WriteString(" ")
		}
		if c.IsGroup() {
			inner, err := b.conditions(c.Group)
			if err != nil {
				return "", err
			}
			sb.WriteString("(")
			sb.WriteString(inner)
			sb.WriteString(")")
			continue
		}
		expr, err := b.condition(c)
		if err != nil {
			return "", err
		}
		sb.WriteString(expr)
	}
	return sb.String(), nil
}

func (b *exprBuilder) condition(c query.Condition) (string, error) {
	switch c.Operator {
	case query.Equal, query.NotEqual, query.LessThan, query.LessThanOrEqual,
		query.GreaterThan, query.GreaterThanOrEqual:
		return b.compare(c)
	case query.In:
		return b.in(c)
	case query.NotIn:
		expr, err := b.in(c)
		if err != nil {
			return "", err
		}
		return "NOT (" + expr + ")", nil
	case query.Like:
		return b.function("contains", c)
	case query.BeginLike:
		return b.function("begins_with", c)
	default:
		return "", fmt.Errorf("%w: %s on %q", ErrUnsupportedOperator, c.Operator, c.Field)
	}
}

func (b *exprBuilder) compare(c query.Condition) (string, error) {
	v, err := b.value(c.Value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s", b.name(c.Field), c.Operator, v), nil
}

func (b *exprBuilder) function(fn string, c query.Condition) (string, error) {
	v, err := b.value(c.Value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s(%s, %s)", fn, b.name(c.Field), v), nil
}

func (b *exprBuilder) in(c query.Condition) (string, error) {
	operands := expand(c.Value)
	if len(operands) == 0 {
		return "", fmt.Errorf("%w: %s on %q needs at least one value", ErrInvalidQuery, c.Operator, c.Field)
	}
	name := b.name(c.Field)
	var groups []string
	for chunk := range slices.Chunk(operands, maxInOperands) {
		placeholders := make([]string, 0, len(chunk))
		for _, operand := range chunk {
			v, err := b.value(operand)
			if err != nil {
				return "", err
			}
			placeholders = append(placeholders, v)
		}
		groups = append(groups, fmt.Sprintf("%s IN (%s)", name, strings.Join(placeholders, ", ")))
	}
	if len(groups) == 1 {
		return groups[0], nil
	}
	return "(" + strings.Join(groups, " OR ") + ")", nil
}

// isList reports whether v is a slice or array other than a byte slice.
func isList(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Type().Elem().Kind() != reflect.Uint8
	}
	return false
}

// expand returns the elements of a list value, or v itself for scalars.
func expand(v any) []any {
	if v == nil {
		return nil
	}
	if !isList(v) {
		return []any{v}
	}
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// sortItems orders items by the query sort keys. Missing attributes sort first.
func sortItems(items []map[string]types.AttributeValue, sorts []query.Sort) {
	if len(sorts) == 0 {
		return
	}
	slices.SortStableFunc(items, func(a, b map[string]types.AttributeValue) int {
		for _, s := range sorts {
			c := compareAttr(a[s.Field], b[s.Field])
			if s.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

func compareAttr(a, b types.AttributeValue) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		if bv, ok := b.(*types.AttributeValueMemberS); ok {
			return strings.Compare(av.Value, bv.Value)
		}
	case *types.AttributeValueMemberN:
		if bv, ok := b.(*types.AttributeValueMemberN); ok {
			x, _ := strconv.ParseFloat(av.Value, 64)
			y, _ := strconv.ParseFloat(bv.Value, 64)
			return cmp.Compare(x, y)
		}
	case *types.AttributeValueMemberBOOL:
		if bv, ok := b.(*types.AttributeValueMemberBOOL); ok {
			switch {
			case av.Value == bv.Value:
				return 0
			case bv.Value:
				return -1
			default:
				return 1
			}
		}
	}
	return 0
}
