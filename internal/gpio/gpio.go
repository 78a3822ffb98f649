// Package gpio turns wall buttons wired to GPIO lines into blind commands.
//
// A Reader samples every configured line; the Watcher polls it, debounces
// each line over a number of consecutive samples and reports presses
// (released→pressed transitions) to a callback.
//
//	lines ──► Reader.Read ──► debounce ──► onPress(button)
//
// The real reader uses the Linux GPIO character device; other platforms get
// a stub that always fails, and tests use FakeReader.
package gpio

import "errors"

// ErrUnsupported is returned by NewRealReader off Linux.
var ErrUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Reader samples GPIO input lines.
type Reader interface {
	// Read returns one logical sample per line, in the order the lines were
	// requested. true means pressed.
	Read() ([]bool, error)

	// Close releases the lines.
	Close() error
}
