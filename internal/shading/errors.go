package shading

import "errors"

// Domain errors for the shading package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, shading.ErrUnknownBlind) {
//	    // respond 404
//	}
var (
	// ErrUnknownBlind is returned when an event names a blind that is not
	// configured.
	ErrUnknownBlind = errors.New("shading: unknown blind")

	// ErrQueueFull is returned when a blind's event queue has no room.
	// The event is dropped.
	ErrQueueFull = errors.New("shading: event queue full")

	// ErrStopped is returned for events submitted after Stop.
	ErrStopped = errors.New("shading: stopped")
)
