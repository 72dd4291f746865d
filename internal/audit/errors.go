package audit

import "errors"

var (
	// ErrValidation indicates a new entry is missing required fields or carries invalid values.
	ErrValidation = errors.New("audit: validation failed")
	// ErrInvalidFilter indicates a query filter or paging value that cannot be used.
	ErrInvalidFilter = errors.New("audit: invalid filter")
	// ErrDuplicate indicates an entry with the same id is already stored.
	ErrDuplicate = errors.New("audit: duplicate entry")
	// ErrNotFound indicates no entry matches the requested id.
	ErrNotFound = errors.New("audit: entry not found")
	// ErrStoreUnavailable wraps transport or storage failures; callers may retry.
	ErrStoreUnavailable = errors.New("audit: store unavailable")
)
