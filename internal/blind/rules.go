package blind

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-shading/internal/property"
)

// TimeOp says how a rule's time gate is compared with now.
type TimeOp int

// Time operators. TimeNone is assigned to rules without a time gate.
const (
	TimeUntil TimeOp = 0
	TimeFrom  TimeOp = 1
	TimeNone  TimeOp = -1
)

func (o TimeOp) String() string {
	switch o {
	case TimeUntil:
		return "until"
	case TimeFrom:
		return "from"
	default:
		return "none"
	}
}

// UnmarshalText accepts "until", "from" or the numeric operator.
func (o *TimeOp) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "", "until", "0":
		*o = TimeUntil
	case "from", "1":
		*o = TimeFrom
	default:
		return fmt.Errorf("%w: unknown time_op %q", ErrInvalidConfig, b)
	}
	return nil
}

// MarshalText renders the operator name.
func (o TimeOp) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// LevelOp says what a matching rule does with its level.
type LevelOp int

// Level operators.
const (
	LevelAbsolute LevelOp = iota
	LevelSetMin
	LevelSetMax
	LevelClearMin
	LevelClearMax
)

var levelOpNames = []string{"absolute", "min", "max", "clear_min", "clear_max"}

func (o LevelOp) String() string {
	if o >= 0 && int(o) < len(levelOpNames) {
		return levelOpNames[o]
	}
	return fmt.Sprintf("levelOp(%d)", int(o))
}

// UnmarshalText accepts the operator name or its number.
func (o *LevelOp) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	if s == "" {
		*o = LevelAbsolute
		return nil
	}
	for i, name := range levelOpNames {
		if s == name || s == fmt.Sprint(i) {
			*o = LevelOp(i)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown level_op %q", ErrInvalidConfig, s)
}

// MarshalText renders the operator name.
func (o LevelOp) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// Condition gates a rule or oversteer on a property comparison.
type Condition struct {
	Operand   property.Value
	Operator  property.Operator
	Threshold property.Value
}

// Text renders the condition for status texts, e.g. "flow.lux > 25000".
func (c Condition) Text(threshold any) string {
	s := operandName(c.Operand) + " " + string(c.Operator)
	if property.NeedsThreshold(c.Operator) && threshold != nil {
		s += " " + fmt.Sprint(threshold)
	}
	return s
}

func operandName(v property.Value) string {
	switch v.Type {
	case property.TypeNum:
		return v.Value
	case property.TypeStr, property.TypeBool:
		return `"` + v.Value + `"`
	}
	return string(v.Type) + "." + v.Value
}

// Rule is one immutable entry of the rule table.
type Rule struct {
	ID        int
	Name      string
	TimeOp    TimeOp
	LevelOp   LevelOp
	Level     property.Value
	Condition *Condition
	Time      *property.TimeSpec
}

// Conditional reports whether the rule has a condition.
func (r *Rule) Conditional() bool { return r.Condition != nil }

// TimeLimited reports whether the rule has a time gate.
func (r *Rule) TimeLimited() bool { return r.Time != nil }

// RuleSet is the compiled rule table.
type RuleSet struct {
	rules     []Rule
	lastUntil int
	firstFrom int
}

// NewRuleSet compiles rule configuration. IDs are 1-based positions.
func NewRuleSet(cfgs []RuleConfig) RuleSet {
	rs := RuleSet{rules: make([]Rule, 0, len(cfgs))}
	rs.lastUntil = len(cfgs) - 1
	rs.firstFrom = len(cfgs)
	foundUntil := false

	for i, rc := range cfgs {
		r := Rule{
			ID:      i + 1,
			Name:    rc.Name,
			TimeOp:  rc.TimeOp,
			LevelOp: rc.LevelOp,
			Level:   rc.Level,
		}
		if rc.Condition != nil && !rc.Condition.Operand.IsEmpty() {
			r.Condition = &Condition{
				Operand:   rc.Condition.Operand,
				Operator:  rc.Condition.Operator,
				Threshold: rc.Condition.Threshold,
			}
		}
		if rc.Time != nil && !rc.Time.IsEmpty() {
			spec := *rc.Time
			r.Time = &spec
		} else {
			r.TimeOp = TimeNone
		}

		switch r.TimeOp {
		case TimeUntil:
			if !foundUntil || i > rs.lastUntil {
				rs.lastUntil = i
			}
			foundUntil = true
		case TimeFrom:
			if i < rs.firstFrom {
				rs.firstFrom = i
			}
		}
		rs.rules = append(rs.rules, r)
	}
	return rs
}

// Len returns the number of rules.
func (rs RuleSet) Len() int { return len(rs.rules) }

// Rules returns the rules in table order.
func (rs RuleSet) Rules() []Rule { return rs.rules }

// backwardStop is the lowest index the backward pass visits: the first From
// rule, or the start of the table when there is none.
func (rs RuleSet) backwardStop() int {
	if rs.firstFrom < len(rs.rules) {
		return rs.firstFrom
	}
	return 0
}

// bounds carries the pending min/max rules through both scans.
type bounds struct {
	min *Rule
	max *Rule
}

func (b bounds) apply(r *Rule) bounds {
	switch r.LevelOp {
	case LevelSetMin:
		b.min = r
	case LevelSetMax:
		b.max = r
	case LevelClearMin:
		b.min = nil
	case LevelClearMax:
		b.max = nil
	}
	return b
}

// scanResult is the outcome of one scan direction.
type scanResult struct {
	matched *Rule
	bounds  bounds
}

// matchFunc reports whether a rule matches; cmp compares the rule's
// resolved time with now.
type matchFunc func(r *Rule, cmp func(t time.Time) bool) bool

// scanForward visits rules 0..lastUntil, skipping From rules, and stops at
// the first absolute rule whose time is still pending.
func scanForward(rs RuleSet, now time.Time, match matchFunc, carry bounds) scanResult {
	pending := func(t time.Time) bool { return !t.Before(now) }
	res := scanResult{bounds: carry}
	for i := 0; i <= rs.lastUntil && i < len(rs.rules); i++ {
		r := &rs.rules[i]
		if r.TimeOp == TimeFrom || !match(r, pending) {
			continue
		}
		if r.LevelOp != LevelAbsolute {
			res.bounds = res.bounds.apply(r)
			continue
		}
		res.matched = r
		break
	}
	return res
}

// scanBackward visits rules from the last down to backwardStop, skipping
// Until rules, and stops at the first absolute rule that has started.
func scanBackward(rs RuleSet, now time.Time, match matchFunc, carry bounds) scanResult {
	started := func(t time.Time) bool { return !t.After(now) }
	res := scanResult{bounds: carry}
	for i := len(rs.rules) - 1; i >= rs.backwardStop(); i-- {
		r := &rs.rules[i]
		if r.TimeOp == TimeUntil || !match(r, started) {
			continue
		}
		if r.LevelOp != LevelAbsolute {
			res.bounds = res.bounds.apply(r)
			continue
		}
		res.matched = r
		break
	}
	return res
}

// RuleBound is a min or max level set by a rule.
type RuleBound struct {
	ID          int     `json:"id"`
	Level       float64 `json:"level"`
	Conditional bool    `json:"conditional"`
	TimeLimited bool    `json:"timeLimited"`
}

// RuleResult is the rule engine's decision for one event.
type RuleResult struct {
	Active      bool       `json:"active"`
	ID          int        `json:"id"`
	Level       float64    `json:"level"`
	Conditional bool       `json:"conditional"`
	TimeLimited bool       `json:"timeLimited"`
	Condition   string     `json:"condition,omitempty"`
	Time        *time.Time `json:"time,omitempty"`
	Minimum     *RuleBound `json:"minimum,omitempty"`
	Maximum     *RuleBound `json:"maximum,omitempty"`
}

// ruleScratch holds the per-event evaluation of one rule.
type ruleScratch struct {
	condResult bool
	threshold  any
	timeDone   bool
	time       time.Time
	timeOK     bool
}

// prepareConditions evaluates every rule condition once per event.
func (c *Controller) prepareConditions(msg property.Message) {
	for i := range c.rules.rules {
		r := &c.rules.rules[i]
		if !r.Conditional() {
			continue
		}
		sc := c.scratch(r.ID)
		sc.condResult, sc.threshold = c.evalCondition(*r.Condition, msg)
	}
}

func (c *Controller) scratch(id int) *ruleScratch {
	sc, ok := c.ev.rules[id]
	if !ok {
		sc = &ruleScratch{}
		c.ev.rules[id] = sc
	}
	return sc
}

// matchRule is the matchFunc used for both scans; condition results come
// from the pre-pass and resolved times are cached per event.
func (c *Controller) matchRule(msg property.Message, now time.Time) matchFunc {
	return func(r *Rule, cmp func(time.Time) bool) bool {
		sc := c.scratch(r.ID)
		if r.Conditional() && !sc.condResult {
			return false
		}
		if !r.TimeLimited() {
			return true
		}
		if !sc.timeDone {
			sc.timeDone = true
			t, err := c.deps.Times.ResolveTime(*r.Time, msg, now)
			if err != nil {
				c.warnOnce(fmt.Sprintf("rule.%d.time", r.ID), "rule time not resolvable",
					"rule", r.ID, "error", fmt.Errorf("%w: %w", ErrResolution, err))
			} else {
				sc.time, sc.timeOK = t, true
			}
		}
		return sc.timeOK && cmp(sc.time)
	}
}

// evaluateRules runs the condition pre-pass and both scans, and sets the
// working level and reason.
func (c *Controller) evaluateRules(msg property.Message, now time.Time) RuleResult {
	c.prepareConditions(msg)
	match := c.matchRule(msg, now)

	res := scanForward(c.rules, now, match, bounds{})
	if res.matched == nil {
		res = scanBackward(c.rules, now, match, res.bounds)
	}

	out := RuleResult{ID: -1, Level: c.levels.def}
	if b := res.bounds.min; b != nil {
		out.Minimum = &RuleBound{ID: b.ID, Level: c.levelFromValue(b.Level, msg, c.levels.def), Conditional: b.Conditional(), TimeLimited: b.TimeLimited()}
	}
	if b := res.bounds.max; b != nil {
		out.Maximum = &RuleBound{ID: b.ID, Level: c.levelFromValue(b.Level, msg, c.levels.def), Conditional: b.Conditional(), TimeLimited: b.TimeLimited()}
	}

	r := res.matched
	if r == nil {
		c.setLevel(c.levels.def)
		c.setReason(ReasonDefault, "default", nil, nil)
		return out
	}

	out.Active = true
	out.ID = r.ID
	out.Level = c.levelFromValue(r.Level, msg, c.levels.def)
	out.Conditional = r.Conditional()
	out.TimeLimited = r.TimeLimited()
	c.setLevel(out.Level)

	params := map[string]any{"number": r.ID, "name": r.Name}
	name := "rule"
	if r.Conditional() {
		sc := c.scratch(r.ID)
		out.Condition = r.Condition.Text(sc.threshold)
		params["text"] = out.Condition
		params["operator"] = string(r.Condition.Operator)
		name = "ruleCond"
	}
	if r.TimeLimited() {
		t := c.scratch(r.ID).time.In(c.loc)
		out.Time = &t
		params["timeOp"] = r.TimeOp.String()
		params["timeLocal"] = t.Format("15:04:05")
		params["time"] = t.UTC().Format(time.RFC3339)
		if r.Conditional() {
			name = "ruleTimeCond"
		} else {
			name = "ruleTime"
		}
	}
	c.setReason(ReasonRule, name, params, params)
	return out
}

// levelFromValue resolves a configured level. Fixed levels map open/close
// and percentages onto the scale; other values are inverted on a reversed
// scale. Resolution failures fall back to def.
func (c *Controller) levelFromValue(v property.Value, msg property.Message, def float64) float64 {
	if v.IsEmpty() {
		return def
	}
	if v.Type == TypeLevelFixed {
		lv, err := c.fixedLevel(v.Value)
		if err != nil {
			c.log.Error("invalid fixed level", "blind", c.name, "value", v.Value, "error", err)
			return def
		}
		return lv
	}
	raw, err := c.deps.Resolver.Resolve(v, msg)
	if err != nil {
		c.log.Error("blind level not resolvable", "blind", c.name, "value", v.String(), "error", err)
		return def
	}
	f, ok := property.ToFloat(raw)
	if !ok {
		c.log.Error("blind level not numeric", "blind", c.name, "value", v.String(), "got", raw)
		return def
	}
	if c.scale.Reverse {
		return c.scale.Invert(f)
	}
	return f
}

func (c *Controller) fixedLevel(text string) (float64, error) {
	if f, ok := property.ToFloat(text); ok {
		switch {
		case f < 1:
			return c.scale.Bottom, nil
		case f > 99:
			return c.scale.Top, nil
		}
		return c.scale.ToAbsolute(f / 100), nil
	}
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "close"):
		return c.scale.Bottom, nil
	case strings.Contains(lower, "open"):
		return c.scale.Top, nil
	}
	return math.NaN(), fmt.Errorf("%w: unknown fixed level %q", ErrInvalidConfig, text)
}
