package checks

import "errors"

// Sentinel validation errors, comparable with errors.Is, so CommandLoop can
// log-and-ACK a bad command without inspecting error strings.
var (
	// ErrInvalidCheck marks a Check that failed Validate.
	ErrInvalidCheck = errors.New("checks: invalid check")

	// ErrUnknownCommand marks a Command whose Kind is neither Add nor Remove.
	ErrUnknownCommand = errors.New("checks: unknown command kind")

	// ErrDuplicateCheck marks an Add for a check_id already present in the
	// reverse index. Adds must be rejected, not silently replaced.
	ErrDuplicateCheck = errors.New("checks: duplicate check id")
)
