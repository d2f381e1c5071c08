package ports

import "errors"

// Boundary errors shared by adapters and services. State-machine validation
// errors live on the booking entity; these cover the persistence and
// position-source contracts.
var (
	// ErrNotFound means the booking or mechanic id is unknown to the store.
	ErrNotFound = errors.New("not found")

	// ErrConcurrentModification means the optimistic-concurrency guard
	// tripped: the row changed between read and conditional write. The
	// caller decides whether to retry with fresh state.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrPersistenceUnavailable wraps storage/transport failures that are
	// not a validation outcome.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")

	// Position-source failures.
	ErrPermissionDenied    = errors.New("position permission denied")
	ErrPositionTimeout     = errors.New("position sample timed out")
	ErrPositionUnavailable = errors.New("position source unavailable")
)
