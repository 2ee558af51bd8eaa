package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"github.com/jacentio/tether/activation"
	"github.com/jacentio/tether/paging"
	"github.com/jacentio/tether/query"
)

// Warehouse serves entities of type E stored in one DynamoDB table.
//
// Mutations perform no I/O: they return activation records that Store.Execute
// applies when the unit of work commits. Reads go to DynamoDB directly and
// never return deleted rows.
type Warehouse[E Entity] struct {
	store *Store
	spec  TableSpec
}

// NewWarehouse registers spec with s and returns a warehouse for its table.
func NewWarehouse[E Entity](s *Store, spec TableSpec) (*Warehouse[E], error) {
	if err := s.RegisterTable(spec); err != nil {
		return nil, err
	}
	return &Warehouse[E]{store: s, spec: spec}, nil
}

// Table returns the key schema the warehouse was created with.
func (w *Warehouse[E]) Table() TableSpec {
	return w.spec
}

// Save returns a record that upserts entity. Entities implementing Referencer
// add their existence checks to the record.
func (w *Warehouse[E]) Save(_ context.Context, entity E) (*activation.Record, error) {
	target, err := w.target(entity)
	if err != nil {
		return nil, err
	}
	item, err := attributevalue.MarshalMap(entity)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", entity.EntityRef(), err)
	}

	var checks []activation.Check
	if ref, ok := any(entity).(Referencer); ok {
		for _, c := range ref.References() {
			checks = append(checks, activation.Check{
				Table:         c.TableName,
				Key:           c.Key,
				ConditionExpr: c.ConditionExpr,
			})
		}
	}
	return activation.Save(target, item, checks...), nil
}

// Remove returns a record that soft deletes entity.
func (w *Warehouse[E]) Remove(_ context.Context, entity E) (*activation.Record, error) {
	target, err := w.target(entity)
	if err != nil {
		return nil, err
	}
	return activation.Remove(target), nil
}

// RemoveByQuery returns a record that soft deletes every row matching q at
// commit time. It fails early if q cannot be compiled for the table.
func (w *Warehouse[E]) RemoveByQuery(_ context.Context, q query.Query) (*activation.Record, error) {
	if _, err := compileQuery(w.spec, q); err != nil {
		return nil, err
	}
	return activation.RemoveByQuery(w.spec.Name, q), nil
}

// Get returns the first entity matching q.
func (w *Warehouse[E]) Get(ctx context.Context, q query.Query) (E, bool, error) {
	list, err := w.GetList(ctx, q.Limit(1))
	if err != nil || len(list) == 0 {
		var zero E
		return zero, false, err
	}
	return list[0], true, nil
}

// GetList returns every entity matching q, honoring its sort keys and limit.
func (w *Warehouse[E]) GetList(ctx context.Context, q query.Query) ([]E, error) {
	items, err := w.store.find(ctx, w.spec, q)
	if err != nil {
		return nil, err
	}
	if n := q.MaxResults(); n > 0 && len(items) > n {
		items = items[:n]
	}

	out := make([]E, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &out); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", w.spec.Name, err)
	}
	return out, nil
}

// GetPaging returns one page of entities matching q. The page size defaults
// to Config.DefaultPageSize and is capped at Config.MaxPageSize.
func (w *Warehouse[E]) GetPaging(ctx context.Context, q query.Query) (paging.Paging[E], error) {
	items, err := w.store.find(ctx, w.spec, q)
	if err != nil {
		return paging.Empty[E](), err
	}

	cfg := w.store.config
	size := q.PageSize()
	if size < 1 {
		size = cfg.DefaultPageSize
	}
	size = min(size, cfg.MaxPageSize)

	page := q.Page()
	// Pages past the last one are empty; clamping before multiplying avoids overflow.
	start := len(items)
	if page-1 < len(items)/size+1 {
		start = min((page-1)*size, len(items))
	}
	end := min(start+size, len(items))

	out := make([]E, 0, end-start)
	if err := attributevalue.UnmarshalListOfMaps(items[start:end], &out); err != nil {
		return paging.Empty[E](), fmt.Errorf("unmarshal %s: %w", w.spec.Name, err)
	}
	return paging.New(page, size, int64(len(items)), out), nil
}

func (w *Warehouse[E]) target(entity E) (activation.Target, error) {
	if table := entity.TableName(); table != w.spec.Name {
		return activation.Target{}, fmt.Errorf("%w: %s is stored in %s, not %s", ErrUnknownTable, entity.EntityRef(), table, w.spec.Name)
	}
	return activation.Target{
		Table:      w.spec.Name,
		EntityType: entity.EntityType(),
		EntityRef:  entity.EntityRef(),
		Key:        entity.GetKey(),
	}, nil
}
