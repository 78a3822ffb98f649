package blind

import (
	"math"
	"strconv"
)

// ReasonCode identifies why the blind is at its current level.
type ReasonCode int

// Reason codes.
const (
	ReasonNone              ReasonCode = 0
	ReasonDefault           ReasonCode = 1
	ReasonOverrideNoExpire  ReasonCode = 2
	ReasonOverrideExpire    ReasonCode = 3
	ReasonRule              ReasonCode = 4
	ReasonSunMinClamp       ReasonCode = 5
	ReasonSunMaxClamp       ReasonCode = 6
	ReasonSunMinAltitude    ReasonCode = 7
	ReasonSunNotInWindow    ReasonCode = 8
	ReasonSunControl        ReasonCode = 9
	ReasonOversteer         ReasonCode = 10
	ReasonSmoothing         ReasonCode = 11
	ReasonSunInWindowMax    ReasonCode = 12
	ReasonSunNotInWindowMin ReasonCode = 13
	ReasonSunMinDelta       ReasonCode = 14
	ReasonRuleMinClamp      ReasonCode = 15
	ReasonRuleMaxClamp      ReasonCode = 16
	ReasonBottomClamp       ReasonCode = 17
	ReasonTopClamp          ReasonCode = 18
)

// Reason is the code plus short and long localised texts.
type Reason struct {
	Code        ReasonCode `json:"code"`
	State       string     `json:"state"`
	Description string     `json:"description"`
}

// Translation key prefixes.
const (
	stateKeyPrefix  = "blind.states."
	reasonKeyPrefix = "blind.reasons."
)

// setReason sets the reason from translation keys.
func (c *Controller) setReason(code ReasonCode, name string, stateParams, descParams map[string]any) {
	c.s.Reason = Reason{
		Code:        code,
		State:       c.deps.Translator.T(stateKeyPrefix+name, stateParams),
		Description: c.deps.Translator.T(reasonKeyPrefix+name, descParams),
	}
}

// Status is the compact indicator shown for a blind.
type Status struct {
	Fill  string `json:"fill"`
	Shape string `json:"shape"`
	Text  string `json:"text"`
}

// Status colours.
const (
	FillBlue   = "blue"
	FillGrey   = "grey"
	FillGreen  = "green"
	FillYellow = "yellow"
	FillRed    = "red"
)

// status derives the indicator from the committed reason. A smoothing hold
// keeps the colour of the previous reason.
func (c *Controller) status() Status {
	code := c.s.Reason.Code
	if code == ReasonSmoothing {
		code = c.s.Previous.ReasonCode
	}

	st := Status{Fill: FillYellow, Shape: "ring"}
	if c.s.Level == c.scale.Top {
		st.Shape = "dot"
	}
	switch {
	case code == ReasonOverrideNoExpire || code == ReasonOverrideExpire:
		st.Fill = FillBlue
	case code == ReasonRule || code == ReasonRuleMinClamp || code == ReasonRuleMaxClamp:
		st.Fill = FillGrey
	case code == ReasonDefault || code == ReasonSunNotInWindow:
		st.Fill = FillGreen
	}

	if math.IsNaN(c.s.Level) {
		st.Text = c.s.Reason.State
	} else {
		st.Text = formatLevel(c.scale.Real(c.s.Level, c.s.LevelInverse)) + " - " + c.s.Reason.State
	}
	return st
}

func formatLevel(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func errorStatus(text string) Status {
	return Status{Fill: FillRed, Shape: "ring", Text: text}
}
