package store

import "errors"

var (
	// ErrAccountUnset is returned by operations that require a loaded
	// account before any account row has been saved.
	ErrAccountUnset = errors.New("store: account unset")

	// ErrCorrupt is returned when stored data cannot be decoded or
	// decrypted. A Corrupt database is fatal: callers should refuse further
	// operation on it per spec §7.
	ErrCorrupt = errors.New("store: corrupt data")

	// ErrTimeout is returned when an operation exceeds its configured
	// deadline.
	ErrTimeout = errors.New("store: operation timed out")

	// ErrNotFound is returned when a lookup finds no matching row.
	ErrNotFound = errors.New("store: not found")
)
