package persistence

import "errors"

var (
	// ErrEntityNotFound is returned when a lookup matches nothing.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrDuplicateKey is returned when a write violates a unique index.
	ErrDuplicateKey = errors.New("duplicate key")
)
