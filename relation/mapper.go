package relation

import (
	"context"
	"errors"

	"github.com/jacentio/tether/activation"
	"github.com/jacentio/tether/paging"
	"github.com/jacentio/tether/query"
)

// ErrNotImplemented is returned by mapping operations a relation type does not support.
var ErrNotImplemented = errors.New("tether: relation mapping not implemented")

// Pair is an ordered association between a First and a Second aggregate.
type Pair[F, S any] struct {
	First  F
	Second S
}

// NewPair returns the pair (first, second).
func NewPair[F, S any](first F, second S) Pair[F, S] {
	return Pair[F, S]{First: first, Second: second}
}

// Mapper converts between relation pairs and their storage entity E.
//
// CreateRelationByEntity must invert CreateEntityByRelation: for every valid
// pair p, CreateRelationByEntity(CreateEntityByRelation(p)) identifies the same
// First and Second as p. Mapping methods must not perform I/O.
type Mapper[F, S, E any] interface {
	CreateEntityByRelation(p Pair[F, S]) E
	CreateEntityByFirst(first F) (E, error)
	CreateEntityBySecond(second S) (E, error)
	CreateRelationByEntity(e E) Pair[F, S]

	// CreateQueryByFirst returns a query matching entities that touch any of firsts.
	CreateQueryByFirst(firsts []F) query.Query
	// CreateQueryByFirstQuery narrows q to entities that touch First values.
	CreateQueryByFirstQuery(q query.Query) query.Query
	CreateQueryBySecond(seconds []S) query.Query
	CreateQueryBySecondQuery(q query.Query) query.Query
}

// SideUnsupported provides the single-side entity constructors for relation
// types that can only be built from a full pair.
type SideUnsupported[F, S, E any] struct{}

// CreateEntityByFirst returns ErrNotImplemented.
func (SideUnsupported[F, S, E]) CreateEntityByFirst(F) (E, error) {
	var zero E
	return zero, ErrNotImplemented
}

// CreateEntityBySecond returns ErrNotImplemented.
func (SideUnsupported[F, S, E]) CreateEntityBySecond(S) (E, error) {
	var zero E
	return zero, ErrNotImplemented
}

// Warehouse executes entity-level operations. Mutations return the activation
// record describing them; they are applied when the ledger commits.
type Warehouse[E any] interface {
	Save(ctx context.Context, entity E) (*activation.Record, error)
	Remove(ctx context.Context, entity E) (*activation.Record, error)
	RemoveByQuery(ctx context.Context, q query.Query) (*activation.Record, error)
	Get(ctx context.Context, q query.Query) (E, bool, error)
	GetList(ctx context.Context, q query.Query) ([]E, error)
	GetPaging(ctx context.Context, q query.Query) (paging.Paging[E], error)
}

// Ledger accepts activation records for a later commit. Registering the same
// record twice is not idempotent.
type Ledger interface {
	RegisterActivationRecord(ctx context.Context, records ...*activation.Record) error
}

// ReadyLedger is implemented by ledgers that can tell ahead of registration
// whether it would be refused. The repository calls Ready after the warehouse
// mutations and before publishing, so a refused batch is never announced.
type ReadyLedger interface {
	Ledger
	Ready(ctx context.Context) error
}
