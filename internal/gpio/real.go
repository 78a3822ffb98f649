//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads buttons through the Linux GPIO character device.
// Buttons pull the line high; lines are requested with pull-down so an
// open contact reads released.
type RealReader struct {
	chip  *gpiocdev.Chip
	lines []*gpiocdev.Line
}

// NewRealReader requests each offset on chip (e.g. "gpiochip0") as an input.
func NewRealReader(chip string, offsets []int) (*RealReader, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chip, err)
	}

	r := &RealReader{chip: c}
	for _, offset := range offsets {
		line, err := c.RequestLine(offset, gpiocdev.AsInput, gpiocdev.WithPullDown)
		if err != nil {
			r.Close() //nolint:errcheck // already failing
			return nil, fmt.Errorf("request line %d: %w", offset, err)
		}
		r.lines = append(r.lines, line)
	}
	return r, nil
}

// Read samples every line.
func (r *RealReader) Read() ([]bool, error) {
	out := make([]bool, len(r.lines))
	for i, line := range r.lines {
		v, err := line.Value()
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line.Offset(), err)
		}
		out[i] = v == 1
	}
	return out, nil
}

// Close returns the lines to input with pull-down and releases them.
func (r *RealReader) Close() error {
	var errs []error
	for _, line := range r.lines {
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure line %d: %w", line.Offset(), err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %d: %w", line.Offset(), err))
		}
	}
	r.lines = nil
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		r.chip = nil
	}
	return errors.Join(errs...)
}
