package store

import "errors"

var (
	// ErrStoreUnavailable means the catalog directory could not be
	// opened or created.
	ErrStoreUnavailable = errors.New("catalog store unavailable")

	// ErrStoreBusy means the catalog write lock could not be acquired
	// within the configured timeout.
	ErrStoreBusy = errors.New("catalog store busy")

	// ErrSchemaMismatch means an existing catalog carries an
	// incompatible schema version. The store refuses to migrate
	// silently.
	ErrSchemaMismatch = errors.New("catalog schema mismatch")

	// ErrConstraintViolation covers duplicate sequences and foreign-key
	// breaches.
	ErrConstraintViolation = errors.New("catalog constraint violation")

	// ErrNotFound is returned for lookups of absent rows.
	ErrNotFound = errors.New("not found")
)
