package blind

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// ExpandTopic replaces ${key} placeholders (case-insensitive) with attrs.
// Missing keys and NaN numbers become empty strings.
func ExpandTopic(template string, attrs map[string]any) string {
	if !strings.Contains(template, "${") {
		return template
	}
	lower := make(map[string]any, len(attrs))
	for k, v := range attrs {
		lower[strings.ToLower(k)] = v
	}
	return placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		key := strings.ToLower(placeholderPattern.FindStringSubmatch(m)[1])
		return attrString(lower[key])
	})
}

func attrString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if math.IsNaN(t) {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	case fmt.Stringer:
		return t.String()
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
	return fmt.Sprint(v)
}
