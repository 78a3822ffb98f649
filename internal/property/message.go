package property

import (
	"strconv"
	"strings"
)

// Message is the payload-carrying event object. Well-known fields are
// "topic" and "payload"; anything else is passed through untouched.
type Message map[string]any

// Topic returns the message topic or "".
func (m Message) Topic() string {
	s, _ := m["topic"].(string)
	return s
}

// Payload returns the message payload or nil.
func (m Message) Payload() any {
	return m["payload"]
}

// Get walks a dotted path such as "payload.sensor.value" or "data.0.level".
func (m Message) Get(path string) (any, bool) {
	path = strings.TrimPrefix(strings.TrimSpace(path), "msg.")
	if path == "" {
		return nil, false
	}
	var cur any = map[string]any(m)
	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = v
		case Message:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// field returns payload[id] when the payload is an object and the entry is
// set, else msg[id].
func (m Message) field(id string) (any, bool) {
	if obj, ok := asObject(m.Payload()); ok {
		if v, ok := obj[id]; ok && !isBlank(v) {
			return v, true
		}
	}
	if v, ok := m[id]; ok && !isBlank(v) {
		return v, true
	}
	return nil, false
}

// topicHas reports whether any keyword is part of the topic.
func (m Message) topicHas(keywords []string) bool {
	topic := m.Topic()
	if topic == "" {
		return false
	}
	for _, k := range keywords {
		if k != "" && strings.Contains(topic, k) {
			return true
		}
	}
	return false
}

// Number looks for a numeric field.
//
// Each id is tried on the payload object first, then on the message. When
// none matches and the topic contains one of the keywords, a numeric
// payload is returned instead.
func (m Message) Number(ids, keywords []string) (float64, bool) {
	for _, id := range ids {
		if v, ok := m.field(id); ok {
			if f, ok := ToFloat(v); ok {
				return f, true
			}
		}
	}
	if m.topicHas(keywords) {
		if f, ok := ToFloat(m.Payload()); ok {
			return f, true
		}
	}
	return 0, false
}

// Bool looks for a boolean field the same way Number does. A matching topic
// keyword counts as true regardless of the payload.
func (m Message) Bool(ids, keywords []string) (value, found bool) {
	for _, id := range ids {
		if v, ok := m.field(id); ok {
			return IsTrue(v), true
		}
	}
	if m.topicHas(keywords) {
		return true, true
	}
	return false, false
}

// Clone returns a shallow copy.
func (m Message) Clone() Message {
	out := make(Message, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func asObject(v any) (map[string]any, bool) {
	switch o := v.(type) {
	case map[string]any:
		return o, true
	case Message:
		return o, true
	}
	return nil, false
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
