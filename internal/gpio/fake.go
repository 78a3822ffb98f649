package gpio

import (
	"errors"
	"sync"
)

// FakeReader replays scripted samples. Once the script runs out the last
// sample repeats.
type FakeReader struct {
	mu      sync.Mutex
	samples [][]bool
	index   int

	// Closed is set by Close.
	Closed bool

	// ReadError, when set, is returned by Read.
	ReadError error
}

// NewFakeReader creates a FakeReader over samples.
func NewFakeReader(samples ...[]bool) *FakeReader {
	return &FakeReader{samples: samples}
}

// Read returns the next scripted sample.
func (f *FakeReader) Read() ([]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReadError != nil {
		return nil, f.ReadError
	}
	if len(f.samples) == 0 {
		return nil, errors.New("gpio: no samples configured")
	}

	s := f.samples[f.index]
	if f.index < len(f.samples)-1 {
		f.index++
	}
	return append([]bool(nil), s...), nil
}

// Close marks the reader closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Append adds samples to the end of the script.
func (f *FakeReader) Append(samples ...[]bool) {
	f.mu.Lock()
	f.samples = append(f.samples, samples...)
	f.mu.Unlock()
}
