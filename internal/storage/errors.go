package storage

import "errors"

// Storage errors for the append-mostly audit stores.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidTransition is returned when attempting to mutate a record
	// that already reached a terminal state. Terminal rows are immutable.
	ErrInvalidTransition = errors.New("record is terminal and cannot transition")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
