package blind

import "errors"

// Domain errors for the blind package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, blind.ErrNotConfigured) {
//	    // controller is degraded until Configure succeeds
//	}
var (
	// ErrInvalidLevel is returned when an explicit level is empty, NaN,
	// out of range or not a multiple of the increment.
	ErrInvalidLevel = errors.New("blind: invalid level")

	// ErrInvalidConfig is returned when a blind configuration fails validation.
	ErrInvalidConfig = errors.New("blind: invalid config")

	// ErrNotConfigured is returned for every event while a required
	// collaborator is missing.
	ErrNotConfigured = errors.New("blind: not configured")

	// ErrInternal is returned when processing an event panicked. The
	// controller state is rolled back to the last committed event.
	ErrInternal = errors.New("blind: internal error")

	// ErrResolution is logged when a property or time gate cannot be resolved.
	ErrResolution = errors.New("blind: resolution failed")
)
