package relation

import (
	"context"

	"github.com/jacentio/tether/activation"
	"github.com/jacentio/tether/event"
	"github.com/jacentio/tether/paging"
	"github.com/jacentio/tether/query"
)

// Repository orchestrates persistence of Pair[F, S] relations stored as
// entities of type E. It holds no mutable state and is safe to share.
type Repository[F, S, E any] struct {
	mapper    Mapper[F, S, E]
	warehouse Warehouse[E]
	publisher event.Publisher
	ledger    Ledger
}

// New creates a repository. Events are tagged with the runtime type of mapper.
// A nil publisher discards events.
func New[F, S, E any](mapper Mapper[F, S, E], warehouse Warehouse[E], publisher event.Publisher, ledger Ledger) *Repository[F, S, E] {
	if publisher == nil {
		publisher = event.Discard
	}
	return &Repository[F, S, E]{
		mapper:    mapper,
		warehouse: warehouse,
		publisher: publisher,
		ledger:    ledger,
	}
}

// Save persists pairs.
func (r *Repository[F, S, E]) Save(ctx context.Context, pairs []Pair[F, S]) error {
	records, err := mutateEach(ctx, pairs, r.entityByRelation, r.warehouse.Save)
	if err != nil || len(records) == 0 {
		return err
	}
	if err := r.ledgerReady(ctx); err != nil {
		return err
	}
	event.PublishSave[Pair[F, S]](ctx, r.publisher, r.mapper, pairs)
	return r.ledger.RegisterActivationRecord(ctx, records...)
}

// SaveByFirst persists one relation entity per First value.
func (r *Repository[F, S, E]) SaveByFirst(ctx context.Context, firsts []F) error {
	records, err := mutateEach(ctx, firsts, r.mapper.CreateEntityByFirst, r.warehouse.Save)
	if err != nil || len(records) == 0 {
		return err
	}
	if err := r.ledgerReady(ctx); err != nil {
		return err
	}
	event.PublishSave[F](ctx, r.publisher, r.mapper, firsts)
	return r.ledger.RegisterActivationRecord(ctx, records...)
}

// SaveBySecond persists one relation entity per Second value.
func (r *Repository[F, S, E]) SaveBySecond(ctx context.Context, seconds []S) error {
	records, err := mutateEach(ctx, seconds, r.mapper.CreateEntityBySecond, r.warehouse.Save)
	if err != nil || len(records) == 0 {
		return err
	}
	if err := r.ledgerReady(ctx); err != nil {
		return err
	}
	event.PublishSave[S](ctx, r.publisher, r.mapper, seconds)
	return r.ledger.RegisterActivationRecord(ctx, records...)
}

// Remove deletes pairs, one entity removal per pair.
func (r *Repository[F, S, E]) Remove(ctx context.Context, pairs []Pair[F, S]) error {
	records, err := mutateEach(ctx, pairs, r.entityByRelation, r.warehouse.Remove)
	if err != nil || len(records) == 0 {
		return err
	}
	if err := r.ledgerReady(ctx); err != nil {
		return err
	}
	event.PublishRemove[Pair[F, S]](ctx, r.publisher, r.mapper, pairs)
	return r.ledger.RegisterActivationRecord(ctx, records...)
}

// RemoveByQuery deletes every relation entity matching q as one mutation.
func (r *Repository[F, S, E]) RemoveByQuery(ctx context.Context, q query.Query) error {
	record, err := r.warehouse.RemoveByQuery(ctx, q)
	if err != nil || record == nil {
		return err
	}
	if err := r.ledgerReady(ctx); err != nil {
		return err
	}
	event.PublishRemove[Pair[F, S]](ctx, r.publisher, r.mapper, q)
	return r.ledger.RegisterActivationRecord(ctx, record)
}

// RemoveByFirst deletes every relation touching any of firsts.
func (r *Repository[F, S, E]) RemoveByFirst(ctx context.Context, firsts []F) error {
	if len(firsts) == 0 {
		return nil
	}
	record, err := r.warehouse.RemoveByQuery(ctx, r.mapper.CreateQueryByFirst(firsts))
	if err != nil || record == nil {
		return err
	}
	if err := r.ledgerReady(ctx); err != nil {
		return err
	}
	event.PublishRemove[F](ctx, r.publisher, r.mapper, firsts)
	return r.ledger.RegisterActivationRecord(ctx, record)
}

// RemoveByFirstQuery narrows q to the First side and removes the matches.
func (r *Repository[F, S, E]) RemoveByFirstQuery(ctx context.Context, q query.Query) error {
	return r.RemoveByQuery(ctx, r.mapper.CreateQueryByFirstQuery(q))
}

// RemoveBySecond deletes every relation touching any of seconds.
func (r *Repository[F, S, E]) RemoveBySecond(ctx context.Context, seconds []S) error {
	if len(seconds) == 0 {
		return nil
	}
	record, err := r.warehouse.RemoveByQuery(ctx, r.mapper.CreateQueryBySecond(seconds))
	if err != nil || record == nil {
		return err
	}
	if err := r.ledgerReady(ctx); err != nil {
		return err
	}
	event.PublishRemove[S](ctx, r.publisher, r.mapper, seconds)
	return r.ledger.RegisterActivationRecord(ctx, record)
}

// RemoveBySecondQuery narrows q to the Second side and removes the matches.
func (r *Repository[F, S, E]) RemoveBySecondQuery(ctx context.Context, q query.Query) error {
	return r.RemoveByQuery(ctx, r.mapper.CreateQueryBySecondQuery(q))
}

// Get returns the first relation matching q.
func (r *Repository[F, S, E]) Get(ctx context.Context, q query.Query) (Pair[F, S], bool, error) {
	entity, found, err := r.warehouse.Get(ctx, q)
	if err != nil || !found {
		return Pair[F, S]{}, false, err
	}
	return r.mapper.CreateRelationByEntity(entity), true, nil
}

// GetList returns every relation matching q. The result is never nil.
func (r *Repository[F, S, E]) GetList(ctx context.Context, q query.Query) ([]Pair[F, S], error) {
	entities, err := r.warehouse.GetList(ctx, q)
	if err != nil {
		return nil, err
	}
	return project(entities, r.mapper.CreateRelationByEntity), nil
}

// GetPaging returns one page of relations matching q.
func (r *Repository[F, S, E]) GetPaging(ctx context.Context, q query.Query) (paging.Paging[Pair[F, S]], error) {
	page, err := r.warehouse.GetPaging(ctx, q)
	if err != nil {
		return paging.Empty[Pair[F, S]](), err
	}
	return paging.Map(page, r.mapper.CreateRelationByEntity), nil
}

// GetFirstListBySecond returns the First side of every relation touching seconds.
func (r *Repository[F, S, E]) GetFirstListBySecond(ctx context.Context, seconds []S) ([]F, error) {
	if len(seconds) == 0 {
		return []F{}, nil
	}
	entities, err := r.warehouse.GetList(ctx, r.mapper.CreateQueryBySecond(seconds))
	if err != nil {
		return nil, err
	}
	return project(entities, func(e E) F { return r.mapper.CreateRelationByEntity(e).First }), nil
}

// GetSecondListByFirst returns the Second side of every relation touching firsts.
func (r *Repository[F, S, E]) GetSecondListByFirst(ctx context.Context, firsts []F) ([]S, error) {
	if len(firsts) == 0 {
		return []S{}, nil
	}
	entities, err := r.warehouse.GetList(ctx, r.mapper.CreateQueryByFirst(firsts))
	if err != nil {
		return nil, err
	}
	return project(entities, func(e E) S { return r.mapper.CreateRelationByEntity(e).Second }), nil
}

// ledgerReady reports a registration the ledger is known to refuse.
func (r *Repository[F, S, E]) ledgerReady(ctx context.Context) error {
	if l, ok := r.ledger.(ReadyLedger); ok {
		return l.Ready(ctx)
	}
	return nil
}

func (r *Repository[F, S, E]) entityByRelation(p Pair[F, S]) (E, error) {
	return r.mapper.CreateEntityByRelation(p), nil
}

// mutateEach maps every item to an entity before the first mutation, then
// applies op to each entity in order. Records produced before a failure are
// dropped.
func mutateEach[T, E any](
	ctx context.Context,
	items []T,
	create func(T) (E, error),
	op func(context.Context, E) (*activation.Record, error),
) ([]*activation.Record, error) {
	if len(items) == 0 {
		return nil, nil
	}
	entities := make([]E, 0, len(items))
	for _, item := range items {
		entity, err := create(item)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	records := make([]*activation.Record, 0, len(entities))
	for _, entity := range entities {
		record, err := op(ctx, entity)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func project[E, T any](entities []E, fn func(E) T) []T {
	out := make([]T, 0, len(entities))
	for _, e := range entities {
		out = append(out, fn(e))
	}
	return out
}
