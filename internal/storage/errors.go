package storage

import "errors"

// Sentinels returned by every backend. Callers match them with errors.Is;
// backends may wrap them with the offending key.
var (
	// ErrNotFound means no offer or progress row exists for the key.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey means an execution with the same signature and event
	// index is already stored. Executions are never overwritten.
	ErrDuplicateKey = errors.New("duplicate execution")

	// ErrInvalidInput means a record failed validation before reaching the backend.
	ErrInvalidInput = errors.New("invalid input")
)
