package property

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Additional types valid for TimeSpec.Type.
const (
	// TypeEntered is a clock time entered as text, HH:MM or HH:MM:SS.
	TypeEntered Type = "entered"

	// TypeSunTime is a named sun event such as sunrise or goldenHour.
	TypeSunTime Type = "sun"
)

// Offset multipliers with calendar meaning. Positive multipliers scale the
// offset to milliseconds.
const (
	MultiplierMonths = -1
	MultiplierYears  = -2
)

// TimeSpec describes a point in time with an optional offset.
type TimeSpec struct {
	Type       Type    `yaml:"type" json:"type"`
	Value      string  `yaml:"value" json:"value"`
	OffsetType Type    `yaml:"offset_type,omitempty" json:"offsetType,omitempty"`
	Offset     string  `yaml:"offset,omitempty" json:"offset,omitempty"`
	Multiplier float64 `yaml:"multiplier,omitempty" json:"multiplier,omitempty"`
}

// IsEmpty reports whether no time is configured.
func (s TimeSpec) IsEmpty() bool {
	return s.Type == "" || s.Type == TypeNone
}

// SunTimesProvider returns named sun events for a day.
type SunTimesProvider interface {
	SunTimes(day time.Time) map[string]time.Time
}

// TimeResolver resolves TimeSpecs for an observer location and time zone.
type TimeResolver struct {
	values *Resolver
	sun    SunTimesProvider
	loc    *time.Location
}

// NewTimeResolver creates a TimeResolver. A nil loc means time.Local.
func NewTimeResolver(values *Resolver, sun SunTimesProvider, loc *time.Location) *TimeResolver {
	if loc == nil {
		loc = time.Local
	}
	return &TimeResolver{values: values, sun: sun, loc: loc}
}

// ResolveTime returns the instant described by spec on the day of now.
func (r *TimeResolver) ResolveTime(spec TimeSpec, msg Message, now time.Time) (time.Time, error) {
	t, err := r.base(spec, msg, now)
	if err != nil {
		return time.Time{}, err
	}
	if spec.OffsetType == "" || spec.OffsetType == TypeNone {
		return t, nil
	}
	offset, err := r.values.ResolveFloat(Value{Type: spec.OffsetType, Value: spec.Offset}, msg)
	if err != nil {
		return time.Time{}, fmt.Errorf("resolving time offset: %w", err)
	}
	return AddOffset(t, offset, spec.Multiplier), nil
}

func (r *TimeResolver) base(spec TimeSpec, msg Message, now time.Time) (time.Time, error) {
	local := now.In(r.loc)
	switch spec.Type {
	case "", TypeNone:
		return time.Time{}, ErrNoValue
	case TypeEntered:
		return ParseClock(spec.Value, local)
	case TypeSunTime:
		if r.sun == nil {
			return time.Time{}, fmt.Errorf("%w: no ephemeris for %q", ErrInvalidTime, spec.Value)
		}
		noon := time.Date(local.Year(), local.Month(), local.Day(), 12, 0, 0, 0, r.loc)
		t, ok := r.sun.SunTimes(noon)[spec.Value]
		if !ok {
			return time.Time{}, fmt.Errorf("%w: sun event %q not available", ErrInvalidTime, spec.Value)
		}
		return t, nil
	case TypeNum:
		ms, err := strconv.ParseFloat(strings.TrimSpace(spec.Value), 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, spec.Value)
		}
		return time.UnixMilli(int64(ms)), nil
	default:
		v, err := r.values.Resolve(Value{Type: spec.Type, Value: spec.Value}, msg)
		if err != nil {
			return time.Time{}, err
		}
		return toTime(v, local)
	}
}

func toTime(v any, local time.Time) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		if parsed, err := ParseClock(t, local); err == nil {
			return parsed, nil
		}
		if parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(t)); err == nil {
			return parsed, nil
		}
	}
	if ms, ok := ToFloat(v); ok {
		return time.UnixMilli(int64(ms)), nil
	}
	return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidTime, v)
}

var clockPattern = regexp.MustCompile(`^\s*(\d{1,2}):(\d{1,2})(?::(\d{1,2}))?\s*$`)

// ParseClock parses HH:MM or HH:MM:SS and returns that time on the day of
// base, in base's location.
func ParseClock(text string, base time.Time) (time.Time, error) {
	m := clockPattern.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a clock time", ErrInvalidTime, text)
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	s := 0
	if m[3] != "" {
		s, _ = strconv.Atoi(m[3])
	}
	if h > 23 || mi > 59 || s > 59 {
		return time.Time{}, fmt.Errorf("%w: %q out of range", ErrInvalidTime, text)
	}
	return time.Date(base.Year(), base.Month(), base.Day(), h, mi, s, 0, base.Location()), nil
}

// AddOffset shifts t by offset. A positive multiplier scales the offset to
// milliseconds, MultiplierMonths and MultiplierYears shift by calendar units,
// anything else treats the offset as milliseconds.
func AddOffset(t time.Time, offset, multiplier float64) time.Time {
	if offset == 0 || math.IsNaN(offset) {
		return t
	}
	switch {
	case multiplier > 0:
		return t.Add(time.Duration(offset * multiplier * float64(time.Millisecond)))
	case multiplier == MultiplierMonths:
		return t.AddDate(0, int(offset), 0)
	case multiplier == MultiplierYears:
		return t.AddDate(int(offset), 0, 0)
	default:
		return t.Add(time.Duration(offset * float64(time.Millisecond)))
	}
}
