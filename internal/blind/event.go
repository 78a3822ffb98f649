package blind

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-shading/internal/property"
)

// EventKind distinguishes external input from timer-generated events.
type EventKind int

// Event kinds.
const (
	EventInput EventKind = iota
	EventOverrideExpired
)

// ExpiredTopic is the message topic of the re-evaluation after an override
// expired.
const ExpiredTopic = "internal-trigger-overrideExpired"

// Field names and topic keywords recognised in input messages.
var (
	levelFields     = []string{"blindPosition", "position", "level", "blindLevel"}
	levelKeywords   = []string{"manual", "levelOverwrite"}
	prioFields      = []string{"prio", "priority"}
	prioKeywords    = []string{"prio", "alarm"}
	expireFields    = []string{"expire"}
	resetFields     = []string{"reset"}
	resetKeywords   = []string{"resetOverwrite"}
	triggerFields   = []string{"trigger", "noOverwrite"}
	triggerKeywords = []string{"triggerOnly", "noOverwrite"}
	modeFields      = []string{"mode"}
	modeKeywords    = []string{"setMode"}
	sameFields      = []string{"ignoreSameValue"}
)

// Event is one input to the controller.
type Event struct {
	Kind       EventKind
	Generation uint64
	Message    property.Message

	// Timestamp is the event-carried time in epoch milliseconds.
	Timestamp *float64

	Mode            *int
	Priority        *int
	Level           *float64
	Expire          *time.Duration
	Reset           bool
	TriggerOnly     bool
	IgnoreSameValue bool
	AllowRounding   bool
}

// Topic returns the message topic.
func (e Event) Topic() string { return e.Message.Topic() }

// ParseEvent extracts the control fields of an input message. Fields are
// looked up on the payload object first, then on the message, then via
// topic keywords carrying the payload as value.
func ParseEvent(msg property.Message) Event {
	if msg == nil {
		msg = property.Message{}
	}
	ev := Event{Kind: EventInput, Message: msg}

	for _, key := range []string{"time", "ts"} {
		if v, ok := jsonNumber(msg[key]); ok {
			ev.Timestamp = &v
			break
		}
	}

	if v, ok := msg.Number(modeFields, modeKeywords); ok && v == math.Trunc(v) {
		m := int(v)
		ev.Mode = &m
	}
	if v, ok := msg.Number(prioFields, prioKeywords); ok {
		p := int(v)
		ev.Priority = &p
	}
	if v, ok := msg.Number(levelFields, levelKeywords); ok {
		ev.Level = &v
	}
	if v, ok := msg.Number(expireFields, expireFields); ok {
		if d, finite := expireDuration(v); finite {
			ev.Expire = &d
		}
	}
	ev.Reset, _ = msg.Bool(resetFields, resetKeywords)
	ev.TriggerOnly, _ = msg.Bool(triggerFields, triggerKeywords)
	ev.IgnoreSameValue, _ = msg.Bool(sameFields, nil)
	ev.AllowRounding = strings.Contains(msg.Topic(), "roundLevel")

	return ev
}

// maxExpireMs is the longest expire in milliseconds that fits a Duration.
const maxExpireMs = float64(math.MaxInt64 / int64(time.Millisecond))

// expireDuration converts an expire in milliseconds. Only finite values
// count as an explicit expire; values beyond the Duration range are capped.
func expireDuration(ms float64) (time.Duration, bool) {
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		return 0, false
	}
	if ms > maxExpireMs {
		return time.Duration(math.MaxInt64), true
	}
	if ms < -maxExpireMs {
		ms = -maxExpireMs
	}
	return time.Duration(ms * float64(time.Millisecond)), true
}

// jsonNumber accepts numeric types only; numeric strings do not count.
func jsonNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// maxTimestampMs is the largest instant representable by a JavaScript-style
// millisecond timestamp (±8.64e15 ms).
const maxTimestampMs = 8.64e15

// resolveNow picks the event time, falling back to the clock when the
// carried timestamp is unusable.
func (c *Controller) resolveNow(ev Event) time.Time {
	if ev.Timestamp == nil {
		return c.deps.Clock.Now()
	}
	ms := *ev.Timestamp
	if math.IsNaN(ms) || math.IsInf(ms, 0) || math.Abs(ms) > maxTimestampMs {
		c.log.Error("invalid event timestamp, using current time", "blind", c.name, "timestamp", ms)
		return c.deps.Clock.Now()
	}
	return time.UnixMilli(int64(ms))
}
