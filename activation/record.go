// Package activation defines the pending-mutation records produced by storage
// operations and applied later by a unit of work.
package activation

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/tether/query"
)

// Operation is the kind of mutation a record describes.
type Operation string

const (
	OperationSave          Operation = "save"
	OperationRemove        Operation = "remove"
	OperationRemoveByQuery Operation = "remove_by_query"
)

// Target identifies the single entity a record mutates.
type Target struct {
	Table      string
	EntityType string
	EntityRef  string
	Key        map[string]types.AttributeValue
}

// Check is an existence condition that must hold when the record is applied.
type Check struct {
	Table string
	Key   map[string]types.AttributeValue

	// ConditionExpr is an optional custom condition expression. The executor
	// supplies its default when empty.
	ConditionExpr string
}

// Record is an immutable description of one pending mutation.
type Record struct {
	id        uuid.UUID
	operation Operation
	target    Target
	item      map[string]types.AttributeValue
	query     query.Query
	checks    []Check
	createdAt time.Time
}

// Save returns a record that upserts item into the target's table.
func Save(target Target, item map[string]types.AttributeValue, checks ...Check) *Record {
	r := newRecord(OperationSave, target)
	r.item = maps.Clone(item)
	r.checks = cloneChecks(checks)
	return r
}

// Remove returns a record that deletes the target entity.
func Remove(target Target) *Record {
	return newRecord(OperationRemove, target)
}

// RemoveByQuery returns a record that deletes every row of table matching q.
func RemoveByQuery(table string, q query.Query) *Record {
	r := newRecord(OperationRemoveByQuery, Target{Table: table})
	r.query = q
	return r
}

func newRecord(op Operation, target Target) *Record {
	target.Key = maps.Clone(target.Key)
	return &Record{
		id:        uuid.New(),
		operation: op,
		target:    target,
		createdAt: time.Now().UTC(),
	}
}

// ID returns the record's unique identifier.
func (r *Record) ID() uuid.UUID { return r.id }

// Operation returns the mutation the record applies.
func (r *Record) Operation() Operation { return r.operation }

// Query returns the match query of a query removal, or the empty query.
func (r *Record) Query() query.Query { return r.query }

// CreatedAt returns when the record was built, in UTC.
func (r *Record) CreatedAt() time.Time { return r.createdAt }

// Table returns the name of the table the record mutates.
func (r *Record) Table() string { return r.target.Table }

// EntityRef returns the reference of the mutated entity, if any.
func (r *Record) EntityRef() string { return r.target.EntityRef }

// EntityType returns the type of the mutated entity, if any.
func (r *Record) EntityType() string { return r.target.EntityType }

// Target returns a copy of the record's target.
func (r *Record) Target() Target {
	t := r.target
	t.Key = maps.Clone(r.target.Key)
	return t
}

// Item returns a copy of the post-mutation item of a save record.
func (r *Record) Item() map[string]types.AttributeValue {
	return maps.Clone(r.item)
}

// Checks returns a copy of the existence checks of a save record.
func (r *Record) Checks() []Check {
	return cloneChecks(r.checks)
}

func (r *Record) String() string {
	if r.operation == OperationRemoveByQuery {
		return fmt.Sprintf("%s %s where %s", r.operation, r.target.Table, r.query)
	}
	return fmt.Sprintf("%s %s %s", r.operation, r.target.Table, r.target.EntityRef)
}

func cloneChecks(in []Check) []Check {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	for i := range out {
		out[i].Key = maps.Clone(out[i].Key)
	}
	return out
}
