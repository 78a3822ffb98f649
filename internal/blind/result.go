package blind

import (
	"time"

	"github.com/nerrad567/gray-logic-shading/internal/property"
)

// Result is what a controller emits for one event.
type Result struct {
	// Primary is the level command. Nil when nothing changed.
	Primary *Command

	// Secondary carries the decision summary; only set for blinds
	// configured with two outputs, and then on every event.
	Secondary *Output

	Status  Status
	Control BlindCtrl
	Changed bool

	// Stale is set when a superseded expiry timer fired.
	Stale bool

	// Rejected holds the validation error of an explicit override level.
	// The rest of the event was still evaluated.
	Rejected error
}

// Command is the level to drive the blind to.
type Command struct {
	// Topic is the expanded topic template, empty if none is configured.
	Topic   string
	Level   float64
	Message property.Message
}

// Output is the secondary decision summary.
type Output struct {
	Topic   string
	Payload BlindCtrl
}

// BlindCtrl is the structured summary of a decision.
type BlindCtrl struct {
	Name         string        `json:"name"`
	Level        *float64      `json:"level"`
	LevelInverse *float64      `json:"levelInverse"`
	Reason       Reason        `json:"reason"`
	Mode         SunMode       `json:"mode"`
	Override     OverrideState `json:"override"`
	Rule         *RuleResult   `json:"rule,omitempty"`
	Sun          *SunResult    `json:"sun,omitempty"`
	Blind        BlindInfo     `json:"blind"`
	Time         time.Time     `json:"time"`
}

// BlindInfo describes the blind's scale and resolved operating levels.
type BlindInfo struct {
	Scale   Scale   `json:"scale"`
	Default float64 `json:"levelDefault"`
	Min     float64 `json:"levelMin"`
	Max     float64 `json:"levelMax"`
}
