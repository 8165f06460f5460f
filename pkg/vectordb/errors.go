package vectordb

import "errors"

// Package-level sentinel errors.
var (
	// ErrClosed is returned by any operation on a DB after Close has run.
	ErrClosed = errors.New("vectordb: database is closed")

	// ErrDimensionMismatch is returned when a vector's length does not
	// equal the database's configured dimension.
	ErrDimensionMismatch = errors.New("vectordb: vector length does not match database dimension")

	// ErrCompactionInProgress is returned by Compact when a compaction is
	// already running; callers should treat it as a no-op, not a failure.
	ErrCompactionInProgress = errors.New("vectordb: compaction already in progress")
)
