//go:build !linux

package gpio

// RealReader is not available on non-Linux platforms.
type RealReader struct{}

// NewRealReader always fails with ErrUnsupported off Linux.
func NewRealReader(_ string, _ []int) (*RealReader, error) {
	return nil, ErrUnsupported
}

// Read always fails with ErrUnsupported.
func (r *RealReader) Read() ([]bool, error) {
	return nil, ErrUnsupported
}

// Close is a no-op.
func (r *RealReader) Close() error {
	return nil
}
