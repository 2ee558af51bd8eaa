// Package paging provides an immutable page-of-results snapshot.
package paging

import "slices"

// Paging is one page of a larger result set.
type Paging[T any] struct {
	page       int
	pageSize   int
	totalCount int64
	items      []T
}

// New creates a page snapshot. A nil items slice is stored as empty.
func New[T any](page, pageSize int, totalCount int64, items []T) Paging[T] {
	if items == nil {
		items = []T{}
	} else {
		items = slices.Clone(items)
	}
	return Paging[T]{
		page:       page,
		pageSize:   pageSize,
		totalCount: totalCount,
		items:      items,
	}
}

// Empty returns the first page of an empty result set.
func Empty[T any]() Paging[T] {
	return New[T](1, 0, 0, nil)
}

// Map converts the items of p with fn, keeping page, page size and total count.
func Map[T, U any](p Paging[T], fn func(T) U) Paging[U] {
	out := make([]U, 0, len(p.items))
	for _, item := range p.items {
		out = append(out, fn(item))
	}
	return Paging[U]{
		page:       p.page,
		pageSize:   p.pageSize,
		totalCount: p.totalCount,
		items:      out,
	}
}

// Page returns the 1-based page number.
func (p Paging[T]) Page() int { return p.page }

// PageSize returns the maximum number of items per page.
func (p Paging[T]) PageSize() int { return p.pageSize }

// TotalCount returns the number of matches across all pages.
func (p Paging[T]) TotalCount() int64 { return p.totalCount }

// Items returns a copy of the page items. It is never nil.
func (p Paging[T]) Items() []T {
	if p.items == nil {
		return []T{}
	}
	return slices.Clone(p.items)
}

// Len returns the number of items on this page.
func (p Paging[T]) Len() int {
	return len(p.items)
}

// PageCount returns the number of pages needed for the total count.
func (p Paging[T]) PageCount() int64 {
	if p.pageSize <= 0 || p.totalCount <= 0 {
		return 0
	}
	size := int64(p.pageSize)
	return (p.totalCount + size - 1) / size
}

// IsEmpty reports whether the page holds no items.
func (p Paging[T]) IsEmpty() bool {
	return len(p.items) == 0
}
