// Package event carries repository save and remove notifications to
// subscribers.
//
// Events are keyed by operation and payload type. Publishing never fails and
// never blocks on asynchronous subscribers: handler errors and panics are
// logged by the Bus and do not reach the publisher.
package event

import (
	"context"
	"fmt"
	"reflect"
	"time"
)

// Operation is the kind of repository mutation an event announces.
type Operation int

const (
	Save Operation = iota + 1
	Remove
)

func (o Operation) String() string {
	switch o {
	case Save:
		return "save"
	case Remove:
		return "remove"
	default:
		return fmt.Sprintf("Operation(%d)", int(o))
	}
}

// Event is a published repository notification.
type Event struct {
	Operation Operation

	// Repository is the runtime type of the repository that published the event.
	Repository reflect.Type

	// PayloadType is the element type the payload describes, e.g. the relation
	// pair type or one side's aggregate type.
	PayloadType reflect.Type

	// Payload is the original input of the operation: a slice of PayloadType
	// values, or a query.Query for condition removals.
	Payload any

	OccurredAt time.Time
}

// Publisher accepts events. Implementations must not block the caller on
// subscriber work and must not panic.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// PublishSave publishes a save event whose payload describes values of type T.
func PublishSave[T any](ctx context.Context, p Publisher, repository any, payload any) {
	publish[T](ctx, p, Save, repository, payload)
}

// PublishRemove publishes a remove event whose payload describes values of type T.
func PublishRemove[T any](ctx context.Context, p Publisher, repository any, payload any) {
	publish[T](ctx, p, Remove, repository, payload)
}

func publish[T any](ctx context.Context, p Publisher, op Operation, repository any, payload any) {
	if p == nil {
		return
	}
	p.Publish(ctx, Event{
		Operation:   op,
		Repository:  reflect.TypeOf(repository),
		PayloadType: reflect.TypeFor[T](),
		Payload:     payload,
		OccurredAt:  time.Now().UTC(),
	})
}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, Event) {}
