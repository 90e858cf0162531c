package rate

import "errors"

var (
	// ErrInvalidLimit is returned for a non-positive window or request budget.
	ErrInvalidLimit = errors.New("rate: window and max requests must be positive")
	// ErrMissingIdentifier is returned when the identifier is empty.
	ErrMissingIdentifier = errors.New("rate: missing identifier")
	// ErrStoreUnavailable wraps backend failures. Check never returns it; it is
	// swallowed by the fail-open policy.
	ErrStoreUnavailable = errors.New("rate: store unavailable")
)
