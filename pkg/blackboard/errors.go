package blackboard

import "errors"

// Store-level contract violations. These are the only blackboard failures
// surfaced to callers as hard errors; everything else a worker does wrong
// is converted into findings by the coordinator.
var (
	// ErrUnknownArea is returned for reads or writes against a knowledge
	// area that was not declared when the store was created.
	ErrUnknownArea = errors.New("unknown knowledge area")

	// ErrDuplicateInvestigation is returned when creating an investigation
	// whose ID is already tracked by the manager.
	ErrDuplicateInvestigation = errors.New("investigation already exists")

	// ErrStoreClosed is returned for writes against a closed store.
	ErrStoreClosed = errors.New("knowledge store is closed")

	// ErrNotFound is returned when an investigation is not tracked.
	ErrNotFound = errors.New("investigation not found")
)

// IsUnknownArea returns true if the error is an unknown-area violation.
func IsUnknownArea(err error) bool {
	return errors.Is(err, ErrUnknownArea)
}

// IsNotFound returns true if the error indicates a missing investigation.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
