package relation

import (
	"context"

	"github.com/jacentio/tether/paging"
	"github.com/jacentio/tether/query"
)

// Future is the pending result of an asynchronous repository call.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Go runs fn on a new goroutine and returns its future result.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.value, f.err = fn(ctx)
	}()
	return f
}

// Done is closed when the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the result is available or ctx is done. Abandoning the
// wait does not stop the running call.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Found is the result of an asynchronous Get.
type Found[T any] struct {
	Value T
	OK    bool
}

// SaveAsync runs Save on a new goroutine.
func (r *Repository[F, S, E]) SaveAsync(ctx context.Context, pairs []Pair[F, S]) *Future[struct{}] {
	return goErr(ctx, func(ctx context.Context) error { return r.Save(ctx, pairs) })
}

// SaveByFirstAsync runs SaveByFirst on a new goroutine.
func (r *Repository[F, S, E]) SaveByFirstAsync(ctx context.Context, firsts []F) *Future[struct{}] {
	return goErr(ctx, func(ctx context.Context) error { return r.SaveByFirst(ctx, firsts) })
}

// SaveBySecondAsync runs SaveBySecond on a new goroutine.
func (r *Repository[F, S, E]) SaveBySecondAsync(ctx context.Context, seconds []S) *Future[struct{}] {
	return goErr(ctx, func(ctx context.Context) error { return r.SaveBySecond(ctx, seconds) })
}

// RemoveAsync runs Remove on a new goroutine.
func (r *Repository[F, S, E]) RemoveAsync(ctx context.Context, pairs []Pair[F, S]) *Future[struct{}] {
	return goErr(ctx, func(ctx context.Context) error { return r.Remove(ctx, pairs) })
}

// RemoveByQueryAsync runs RemoveByQuery on a new goroutine.
func (r *Repository[F, S, E]) RemoveByQueryAsync(ctx context.Context, q query.Query) *Future[struct{}] {
	return goErr(ctx, func(ctx context.Context) error { return r.RemoveByQuery(ctx, q) })
}

// RemoveByFirstAsync runs RemoveByFirst on a new goroutine.
func (r *Repository[F, S, E]) RemoveByFirstAsync(ctx context.Context, firsts []F) *Future[struct{}] {
	return goErr(ctx, func(ctx context.Context) error { return r.RemoveByFirst(ctx, firsts) })
}

// RemoveByFirstQueryAsync runs RemoveByFirstQuery on a new goroutine.
func (r *Repository[F, S, E]) RemoveByFirstQueryAsync(ctx context.Context, q query.Query) *Future[struct{}] {
	return goErr(ctx, func(ctx context.Context) error { return r.RemoveByFirstQuery(ctx, q) })
}

// RemoveBySecondAsync runs RemoveBySecond on a new goroutine.
func (r *Repository[F, S, E]) RemoveBySecondAsync(ctx context.Context, seconds []S) *Future[struct{}] {
	return goErr(ctx, func(ctx context.Context) error { return r.RemoveBySecond(ctx, seconds) })
}

// RemoveBySecondQueryAsync runs RemoveBySecondQuery on a new goroutine.
func (r *Repository[F, S, E]) RemoveBySecondQueryAsync(ctx context.Context, q query.Query) *Future[struct{}] {
	return goErr(ctx, func(ctx context.Context) error { return r.RemoveBySecondQuery(ctx, q) })
}

// GetAsync runs Get on a new goroutine.
func (r *Repository[F, S, E]) GetAsync(ctx context.Context, q query.Query) *Future[Found[Pair[F, S]]] {
	return Go(ctx, func(ctx context.Context) (Found[Pair[F, S]], error) {
		p, ok, err := r.Get(ctx, q)
		return Found[Pair[F, S]]{Value: p, OK: ok}, err
	})
}

// GetListAsync runs GetList on a new goroutine.
func (r *Repository[F, S, E]) GetListAsync(ctx context.Context, q query.Query) *Future[[]Pair[F, S]] {
	return Go(ctx, func(ctx context.Context) ([]Pair[F, S], error) { return r.GetList(ctx, q) })
}

// GetPagingAsync runs GetPaging on a new goroutine.
func (r *Repository[F, S, E]) GetPagingAsync(ctx context.Context, q query.Query) *Future[paging.Paging[Pair[F, S]]] {
	return Go(ctx, func(ctx context.Context) (paging.Paging[Pair[F, S]], error) { return r.GetPaging(ctx, q) })
}

// GetFirstListBySecondAsync runs GetFirstListBySecond on a new goroutine.
func (r *Repository[F, S, E]) GetFirstListBySecondAsync(ctx context.Context, seconds []S) *Future[[]F] {
	return Go(ctx, func(ctx context.Context) ([]F, error) { return r.GetFirstListBySecond(ctx, seconds) })
}

// GetSecondListByFirstAsync runs GetSecondListByFirst on a new goroutine.
func (r *Repository[F, S, E]) GetSecondListByFirstAsync(ctx context.Context, firsts []F) *Future[[]S] {
	return Go(ctx, func(ctx context.Context) ([]S, error) { return r.GetSecondListByFirst(ctx, firsts) })
}

func goErr(ctx context.Context, fn func(context.Context) error) *Future[struct{}] {
	return Go(ctx, func(ctx context.Context) (struct{}, error) { return struct{}{}, fn(ctx) })
}
