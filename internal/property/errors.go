package property

import "errors"

// Domain errors for the property package.
var (
	// ErrNoValue is returned when a value has type none or is empty.
	ErrNoValue = errors.New("property: no value")

	// ErrNotFound is returned when a message path, context key or
	// environment variable does not exist.
	ErrNotFound = errors.New("property: not found")

	// ErrNotNumeric is returned when a numeric value was required.
	ErrNotNumeric = errors.New("property: not numeric")

	// ErrUnknownType is returned for an unsupported value type.
	ErrUnknownType = errors.New("property: unknown type")

	// ErrUnknownOperator is returned for an unsupported comparison operator.
	ErrUnknownOperator = errors.New("property: unknown operator")

	// ErrInvalidTime is returned when a time specification cannot be resolved.
	ErrInvalidTime = errors.New("property: invalid time")
)
