package store

import "errors"

var (
	// ErrNotFound is returned when an entity doesn't exist or is deleted (has TTL <= now).
	ErrNotFound = errors.New("tether: entity not found")

	// ErrReferenceNotFound is returned when a referenced entity doesn't exist or is deleted.
	ErrReferenceNotFound = errors.New("tether: referenced entity not found")

	// ErrConcurrentModification is returned when a concurrent transaction touched the same items.
	ErrConcurrentModification = errors.New("tether: entity was modified concurrently")

	// ErrUnknownTable is returned for tables no Warehouse has registered.
	ErrUnknownTable = errors.New("tether: unknown table")

	// ErrInvalidQuery is returned when a query cannot be expressed against a table.
	ErrInvalidQuery = errors.New("tether: invalid query")

	// ErrUnsupportedOperator is returned for query operators DynamoDB cannot evaluate.
	ErrUnsupportedOperator = errors.New("tether: unsupported query operator")
)
