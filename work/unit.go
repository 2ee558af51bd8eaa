// Package work provides the unit of work that collects activation records and
// applies them in one commit.
//
// Repositories register records while a business operation runs; nothing is
// written until Commit hands the records, in registration order, to an
// Executor. Rollback discards them.
//
//	err := work.Run(ctx, store, func(ctx context.Context) error {
//	    return userRoles.Save(ctx, pairs)
//	})
package work

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/jacentio/tether/activation"
)

var (
	// ErrCompleted is returned when a committed or rolled back unit is used again.
	ErrCompleted = errors.New("tether: unit of work already completed")

	// ErrNoUnit is returned by ContextLedger when the context carries no unit.
	ErrNoUnit = errors.New("tether: no unit of work in context")
)

// Executor applies activation records to a backing store.
type Executor interface {
	Execute(ctx context.Context, records []*activation.Record) error
}

// State is the lifecycle stage of a unit.
type State int

const (
	StateActive State = iota
	StateCommitted
	StateRolledBack
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Unit accumulates activation records until Commit or Rollback.
// It is safe for concurrent use.
type Unit struct {
	id       uuid.UUID
	executor Executor
	logger   *slog.Logger

	mu      sync.Mutex
	records []*activation.Record
	state   State
}

// NewUnit creates an active unit that commits through executor.
// A nil logger uses slog.Default().
func NewUnit(executor Executor, logger *slog.Logger) *Unit {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New()
	return &Unit{
		id:       id,
		executor: executor,
		logger:   logger.With("unit", id.String()),
	}
}

// ID returns the unit's identity.
func (u *Unit) ID() uuid.UUID { return u.id }

// RegisterActivationRecord appends records in order. Nil records are skipped.
// Registering the same record twice applies it twice.
func (u *Unit) RegisterActivationRecord(_ context.Context, records ...*activation.Record) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state != StateActive {
		return ErrCompleted
	}
	for _, r := range records {
		if r != nil {
			u.records = append(u.records, r)
		}
	}
	return nil
}

// Ready reports whether the unit still accepts records.
func (u *Unit) Ready(context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state != StateActive {
		return ErrCompleted
	}
	return nil
}

// Records returns the pending records in registration order.
func (u *Unit) Records() []*activation.Record {
	u.mu.Lock()
	defer u.mu.Unlock()
	return slices.Clone(u.records)
}

// Len returns the number of pending records.
func (u *Unit) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.records)
}

// State returns the unit's lifecycle stage.
func (u *Unit) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Commit applies all pending records. A unit with no records commits without
// calling the executor. On failure the unit moves to StateFailed and keeps its
// records for inspection.
func (u *Unit) Commit(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state != StateActive {
		return ErrCompleted
	}
	if len(u.records) == 0 {
		u.state = StateCommitted
		return nil
	}

	u.logger.Debug("committing unit of work", "records", len(u.records))
	if err := u.executor.Execute(ctx, u.records); err != nil {
		u.state = StateFailed
		u.logger.Warn("unit of work commit failed", "records", len(u.records), "error", err)
		return fmt.Errorf("commit unit %s: %w", u.id, err)
	}

	u.state = StateCommitted
	u.records = nil
	return nil
}

// Rollback discards all pending records.
func (u *Unit) Rollback() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state == StateCommitted || u.state == StateRolledBack {
		return ErrCompleted
	}
	u.logger.Debug("rolling back unit of work", "records", len(u.records))
	u.records = nil
	u.state = StateRolledBack
	return nil
}

type unitKey struct{}

// WithUnit returns a context carrying u.
func WithUnit(ctx context.Context, u *Unit) context.Context {
	return context.WithValue(ctx, unitKey{}, u)
}

// FromContext returns the unit carried by ctx.
func FromContext(ctx context.Context) (*Unit, bool) {
	u, ok := ctx.Value(unitKey{}).(*Unit)
	return u, ok && u != nil
}

// ContextLedger registers records with the unit carried by the call's context.
type ContextLedger struct{}

// RegisterActivationRecord registers records with the unit in ctx.
func (ContextLedger) RegisterActivationRecord(ctx context.Context, records ...*activation.Record) error {
	u, ok := FromContext(ctx)
	if !ok {
		return ErrNoUnit
	}
	return u.RegisterActivationRecord(ctx, records...)
}

// Ready reports whether ctx carries a unit that still accepts records.
func (ContextLedger) Ready(ctx context.Context) error {
	u, ok := FromContext(ctx)
	if !ok {
		return ErrNoUnit
	}
	return u.Ready(ctx)
}

// Run executes fn inside a new unit carried by its context. The unit commits
// when fn succeeds and rolls back when fn fails.
func Run(ctx context.Context, executor Executor, fn func(ctx context.Context) error) error {
	u := NewUnit(executor, nil)
	if err := fn(WithUnit(ctx, u)); err != nil {
		_ = u.Rollback()
		return err
	}
	return u.Commit(ctx)
}
