package blind

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Scale maps blind levels between absolute values, percentages and the
// inverted scale. Bottom is always below Top; a configuration with top <
// bottom is swapped and Reverse is set.
type Scale struct {
	Top       float64 `json:"levelTop"`
	Bottom    float64 `json:"levelBottom"`
	Increment float64 `json:"increment"`
	Reverse   bool    `json:"levelReverse"`

	decimals int
}

// NewScale builds a Scale. An increment <= 0 is treated as 1.
func NewScale(top, bottom, increment float64) Scale {
	s := Scale{Top: top, Bottom: bottom, Increment: increment}
	if s.Increment <= 0 || math.IsNaN(s.Increment) {
		s.Increment = 1
	}
	if s.Top < s.Bottom {
		s.Top, s.Bottom = s.Bottom, s.Top
		s.Reverse = true
	}
	s.decimals = countDecimals(s.Increment)
	return s
}

// ToAbsolute converts a percentage (0..1) to a rounded, clamped level.
func (s Scale) ToAbsolute(percent float64) float64 {
	return s.Round((s.Top-s.Bottom)*percent + s.Bottom)
}

// ToPercent converts a level to a percentage (0..1). The result is not clamped.
func (s Scale) ToPercent(level float64) float64 {
	if s.Top == s.Bottom {
		return 0
	}
	return (level - s.Bottom) / (s.Top - s.Bottom)
}

// Invert mirrors level about the middle of the scale.
func (s Scale) Invert(level float64) float64 {
	if math.IsNaN(level) {
		return math.NaN()
	}
	return s.ToAbsolute(1 - s.ToPercent(level))
}

// Round rounds half-up to the nearest increment and clamps to the scale.
// The result carries no more decimals than the increment.
func (s Scale) Round(level float64) float64 {
	if math.IsNaN(level) {
		return level
	}
	inc := s.Increment
	if inc <= 0 {
		inc = 1
	}
	v := math.Floor(level/inc+0.5) * inc
	v = roundTo(v, s.decimals)
	return s.Clamp(v)
}

// Clamp limits level to [Bottom, Top]. NaN passes through.
func (s Scale) Clamp(level float64) float64 {
	if level > s.Top {
		return s.Top
	}
	if level < s.Bottom {
		return s.Bottom
	}
	return level
}

// CheckPosition validates an explicit level.
//
// A level fails when it is NaN, outside [Bottom, Top], or, with top, bottom
// and increment all whole numbers, not a multiple of the increment. With
// allowRounding only the range is checked.
//
// Returns:
//   - error: nil when valid, otherwise wraps ErrInvalidLevel
func (s Scale) CheckPosition(level float64, allowRounding bool) error {
	if math.IsNaN(level) || math.IsInf(level, 0) {
		return fmt.Errorf("%w: %v is not a number", ErrInvalidLevel, level)
	}
	if level < s.Bottom {
		return fmt.Errorf("%w: %v below %s level %v", ErrInvalidLevel, level, s.bottomName(), s.Bottom)
	}
	if level > s.Top {
		return fmt.Errorf("%w: %v above %s level %v", ErrInvalidLevel, level, s.topName(), s.Top)
	}
	if allowRounding {
		return nil
	}
	if isWhole(s.Top) && isWhole(s.Bottom) && isWhole(s.Increment) {
		if !isWhole(level) || math.Mod(level, s.Increment) != 0 {
			return fmt.Errorf("%w: %v does not fit increment %v", ErrInvalidLevel, level, s.Increment)
		}
		return nil
	}
	steps := roundTo(level/s.Increment, s.decimals+2)
	if !isWhole(steps) {
		return fmt.Errorf("%w: %v does not fit increment %v", ErrInvalidLevel, level, s.Increment)
	}
	return nil
}

// IsValidPosition reports whether CheckPosition accepts level.
func (s Scale) IsValidPosition(level float64, allowRounding bool) bool {
	return s.CheckPosition(level, allowRounding) == nil
}

// Real returns the level as seen on the configured (possibly reversed) scale.
func (s Scale) Real(level, inverse float64) float64 {
	if s.Reverse {
		return inverse
	}
	return level
}

func (s Scale) bottomName() string {
	if s.Reverse {
		return "open"
	}
	return "closed"
}

func (s Scale) topName() string {
	if s.Reverse {
		return "closed"
	}
	return "open"
}

func isWhole(v float64) bool {
	return v == math.Trunc(v) && !math.IsInf(v, 0)
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}

func countDecimals(v float64) int {
	if isWhole(v) {
		return 0
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}
