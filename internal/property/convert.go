package property

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	trueWords  = []string{"true", "yes", "on", "ja"}
	falseWords = []string{"false", "no", "off", "nein"}
)

// ToFloat converts numbers, numeric strings and booleans to float64.
// Empty strings and NaN are not numbers.
func ToFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// IsTrue reports whether v reads as a true boolean: true/yes/on/ja or a
// number greater than zero.
func IsTrue(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	s := strings.ToLower(strings.TrimSpace(toString(v)))
	for _, w := range trueWords {
		if s == w {
			return true
		}
	}
	f, ok := ToFloat(s)
	return ok && f > 0
}

// IsFalse reports whether v reads as a false boolean: false/no/off/nein or a
// number less than or equal to zero.
func IsFalse(v any) bool {
	if b, ok := v.(bool); ok {
		return !b
	}
	s := strings.ToLower(strings.TrimSpace(toString(v)))
	for _, w := range falseWords {
		if s == w {
			return true
		}
	}
	f, ok := ToFloat(s)
	return ok && f <= 0
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case fmt.Stringer:
		return s.String()
	}
	return fmt.Sprint(v)
}
