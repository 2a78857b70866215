package shared

import "errors"

var (
	// ErrNotFound indicates resource not found. Lookups scoped to another company
	// report this error as well.
	ErrNotFound = errors.New("not found")
	// ErrIdempotencyConflict indicates a duplicate idempotency key.
	ErrIdempotencyConflict = errors.New("idempotent request already processed")
)
