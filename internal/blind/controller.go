package blind

import (
	"fmt"
	"maps"
	"math"
	"runtime/debug"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-shading/internal/property"
)

// Session is the mutable state of one controller between events.
type Session struct {
	Level         float64
	LevelInverse  float64
	Override      OverrideState
	Previous      Previous
	SunMode       SunMode
	ChangeAgainAt time.Time
	Reason        Reason

	// lastKnown caches the last successful read of each property.
	lastKnown map[string]any
}

func (s Session) clone() Session {
	s.lastKnown = maps.Clone(s.lastKnown)
	return s
}

// Previous is the result of the prior event, used for change detection
// and hysteresis.
type Previous struct {
	Level             float64
	LevelInverse      float64
	ReasonCode        ReasonCode
	ReasonState       string
	ReasonDescription string
	RuleID            int
}

// eventScratch is reset at the start of every event.
type eventScratch struct {
	memo             map[string]any
	warned           map[string]bool
	rules            map[int]*ruleScratch
	oversteerChecked bool
}

func newEventScratch() eventScratch {
	return eventScratch{
		memo:   make(map[string]any),
		warned: make(map[string]bool),
		rules:  make(map[int]*ruleScratch),
	}
}

// levelSet holds the soft operating levels resolved at configuration time.
type levelSet struct {
	def, min, max float64
}

// Controller is the decision engine of one blind.
//
// It is not safe for concurrent use: the owner must feed it one event at a
// time from a single goroutine. The only asynchronous element is the
// override expiry timer, which hands its event back through Deps.Enqueue.
type Controller struct {
	name       string
	cfg        Config
	scale      Scale
	levels     levelSet
	rules      RuleSet
	oversteers []oversteer
	modeMax    SunMode

	deps       Deps
	log        Logger
	loc        *time.Location
	configured bool
	configErr  error

	s     Session
	ev    eventScratch
	timer Timer
	gen   uint64
}

// New creates a controller from a blind configuration. The controller is
// degraded until Configure succeeds.
//
// Returns:
//   - *Controller: the controller
//   - error: wraps ErrInvalidConfig when the configuration is invalid
func New(cfg Config) (*Controller, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		name:    cfg.Name,
		cfg:     cfg,
		scale:   NewScale(*cfg.Level.Top, *cfg.Level.Bottom, *cfg.Level.Increment),
		rules:   NewRuleSet(cfg.Rules),
		modeMax: cfg.Sun.Mode,
		log:     noopLogger{},
		loc:     time.Local,
		s: Session{
			Level:        math.NaN(),
			LevelInverse: math.NaN(),
			Override:     OverrideState{ExpireDuration: cfg.Override.Expire},
			Previous: Previous{
				Level:        math.NaN(),
				LevelInverse: math.NaN(),
				ReasonCode:   -1,
				RuleID:       -1,
			},
			SunMode:   cfg.Sun.Mode,
			lastKnown: make(map[string]any),
		},
		ev:        newEventScratch(),
		configErr: fmt.Errorf("%w: collaborators not set", ErrNotConfigured),
	}
	return c, nil
}

// Configure wires the collaborators and resolves the configured levels.
// On failure the controller stays degraded and rejects every event.
func (c *Controller) Configure(deps Deps) error {
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if deps.Translator == nil {
		deps.Translator = keyTranslator{}
	}
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}

	var missing []string
	if deps.Resolver == nil {
		missing = append(missing, "resolver")
	}
	if deps.Comparator == nil {
		missing = append(missing, "comparator")
	}
	if deps.Enqueue == nil {
		missing = append(missing, "enqueue")
	}
	if deps.Ephemeris == nil && c.cfg.Sun.Mode != SunOff {
		missing = append(missing, "ephemeris")
	}
	if deps.Times == nil && c.hasTimeRules() {
		missing = append(missing, "time resolver")
	}

	c.deps = deps
	c.log = deps.Logger
	c.loc = deps.Location

	if len(missing) > 0 {
		c.configured = false
		c.configErr = fmt.Errorf("%w: missing %s", ErrNotConfigured, strings.Join(missing, ", "))
		c.log.Error("blind controller degraded", "blind", c.name, "error", c.configErr)
		return c.configErr
	}

	c.levels = levelSet{
		def: c.levelFromValue(c.cfg.Level.Default, nil, c.scale.Top),
		min: c.levelFromValue(c.cfg.Level.Min, nil, c.scale.Bottom),
		max: c.levelFromValue(c.cfg.Level.Max, nil, c.scale.Top),
	}
	c.oversteers = c.oversteers[:0]
	for _, o := range c.cfg.Oversteer {
		c.oversteers = append(c.oversteers, oversteer{
			condition: Condition{Operand: o.Value, Operator: o.Operator, Threshold: o.Threshold},
			level:     c.levelFromValue(o.Level, nil, c.scale.Top),
		})
	}

	c.configured = true
	c.configErr = nil
	return nil
}

func (c *Controller) hasTimeRules() bool {
	for i := range c.rules.rules {
		if c.rules.rules[i].TimeLimited() {
			return true
		}
	}
	return false
}

// Name returns the blind name.
func (c *Controller) Name() string { return c.name }

// Config returns the blind configuration with defaults applied.
func (c *Controller) Config() Config { return c.cfg }

// Scale returns the level scale.
func (c *Controller) Scale() Scale { return c.scale }

// Session returns a copy of the current state.
func (c *Controller) Session() Session { return c.s.clone() }

// Close cancels the expiry timer.
func (c *Controller) Close() {
	c.stopTimer()
}

// Process handles one event and returns what should be emitted.
//
// Returns:
//   - Result: outputs, status and decision summary
//   - error: ErrNotConfigured while degraded, ErrInternal when the event
//     panicked (state is rolled back); validation problems with an explicit
//     level are reported in Result.Rejected instead
func (c *Controller) Process(ev Event) (res Result, err error) {
	if !c.configured {
		return Result{Status: errorStatus("not configured")}, c.configErr
	}

	if ev.Kind == EventOverrideExpired {
		if ev.Generation != c.gen {
			c.log.Debug("stale override expiry ignored", "blind", c.name)
			return Result{Stale: true, Status: c.status()}, nil
		}
		c.timer = nil
		c.log.Info("override expired", "blind", c.name)
		c.resetOverride()
		ev = Event{
			Kind:    EventOverrideExpired,
			Message: property.Message{"topic": ExpiredTopic, "payload": -1.0},
		}
	}

	snapshot := c.s.clone()
	defer func() {
		if r := recover(); r != nil {
			c.s = snapshot
			c.rearmFromState()
			c.log.Error("panic while processing blind event", "blind", c.name, "panic", r, "stack", string(debug.Stack()))
			res = Result{Status: errorStatus("internal error")}
			err = fmt.Errorf("%w: %v", ErrInternal, r)
		}
	}()

	return c.evaluate(ev), nil
}

// evaluate runs override, rules, sun and clamps for one event.
func (c *Controller) evaluate(ev Event) Result {
	msg := ev.Message
	if msg == nil {
		msg = property.Message{}
	}

	c.s.Previous = Previous{
		Level:             c.s.Level,
		LevelInverse:      c.s.LevelInverse,
		ReasonCode:        c.s.Reason.Code,
		ReasonState:       c.s.Reason.State,
		ReasonDescription: c.s.Reason.Description,
		RuleID:            c.s.Previous.RuleID,
	}
	prev := c.s.Previous
	c.ev = newEventScratch()
	c.s.Reason = Reason{}

	now := c.resolveNow(ev)

	if ev.Mode != nil && *ev.Mode >= 0 && SunMode(*ev.Mode) <= c.modeMax {
		c.s.SunMode = SunMode(*ev.Mode)
	}

	ctrl := BlindCtrl{Name: c.name, Time: now}
	ruleID := -1

	inForce, rejected := c.requestOverride(ev, now)
	if !inForce {
		rr := c.evaluateRules(msg, now)
		ruleID = rr.ID
		ctrl.Rule = &rr
		if !rr.Active && c.s.SunMode != SunOff {
			ctrl.Sun = c.computeSun(msg, now)
		}
		c.applyRuleBounds(rr)
		c.applyScaleBounds()
	}

	c.refreshOversteer(msg)

	level, inverse := c.s.Level, c.s.LevelInverse
	if c.scale.Reverse {
		level, inverse = inverse, level
	}
	ctrl.Level = optionalLevel(level)
	ctrl.LevelInverse = optionalLevel(inverse)
	ctrl.Reason = c.s.Reason
	ctrl.Mode = c.s.SunMode
	ctrl.Override = c.s.Override
	ctrl.Blind = BlindInfo{
		Scale:   c.scale,
		Default: c.levels.def,
		Min:     c.levels.min,
		Max:     c.levels.max,
	}

	res := Result{
		Control:  ctrl,
		Status:   c.status(),
		Rejected: rejected,
	}

	topic := ExpandTopic(c.cfg.Topic, map[string]any{
		"name":         c.name,
		"level":        level,
		"levelInverse": inverse,
		"code":         int(c.s.Reason.Code),
		"state":        c.s.Reason.State,
		"rule":         ruleID,
		"mode":         int(c.s.SunMode),
		"topic":        msg.Topic(),
		"payload":      msg.Payload(),
	})

	res.Changed = !math.IsNaN(c.s.Level) &&
		(c.s.Level != prev.Level || c.s.Reason.Code != prev.ReasonCode || ruleID != prev.RuleID)

	if res.Changed {
		out := msg.Clone()
		out["payload"] = level
		if c.cfg.Outputs == 1 {
			if topic != "" {
				out["topic"] = topic
			}
			out["blindCtrl"] = ctrl
		}
		res.Primary = &Command{Topic: topic, Level: level, Message: out}
	}
	if c.cfg.Outputs > 1 {
		res.Secondary = &Output{Topic: topic, Payload: ctrl}
	}

	c.s.Previous.RuleID = ruleID
	return res
}

// applyRuleBounds clamps to the rule minimum/maximum.
func (c *Controller) applyRuleBounds(rr RuleResult) {
	real := formatLevel(c.scale.Real(c.s.Level, c.s.LevelInverse))
	org := c.s.Reason
	switch {
	case rr.Minimum != nil && c.s.Level < rr.Minimum.Level:
		c.setReason(ReasonRuleMinClamp, "ruleMin",
			map[string]any{"org": org.State, "number": rr.Minimum.ID},
			map[string]any{"org": org.Description, "level": real, "number": rr.Minimum.ID})
		c.setLevel(rr.Minimum.Level)
	case rr.Maximum != nil && c.s.Level > rr.Maximum.Level:
		c.setReason(ReasonRuleMaxClamp, "ruleMax",
			map[string]any{"org": org.State, "number": rr.Maximum.ID},
			map[string]any{"org": org.Description, "level": real, "number": rr.Maximum.ID})
		c.setLevel(rr.Maximum.Level)
	}
}

// applyScaleBounds clamps to the physical scale.
func (c *Controller) applyScaleBounds() {
	org := c.s.Reason
	if c.s.Level < c.scale.Bottom {
		c.setReason(ReasonBottomClamp, "levelBottom",
			map[string]any{"org": org.State},
			map[string]any{"org": org.Description, "level": formatLevel(c.s.Level)})
		c.s.Level, c.s.LevelInverse = c.scale.Bottom, c.scale.Top
	}
	if c.s.Level > c.scale.Top {
		c.setReason(ReasonTopClamp, "levelTop",
			map[string]any{"org": org.State},
			map[string]any{"org": org.Description, "level": formatLevel(c.s.Level)})
		c.s.Level, c.s.LevelInverse = c.scale.Top, c.scale.Bottom
	}
}

// setLevel sets the working level and its mirror.
func (c *Controller) setLevel(level float64) {
	c.s.Level = level
	c.s.LevelInverse = c.scale.Invert(level)
}

// setRealLevel stores a level given on the configured scale, so that a
// reversed blind reports exactly the commanded value.
func (c *Controller) setRealLevel(level float64) {
	if c.scale.Reverse {
		c.setLevel(c.scale.Invert(level))
		return
	}
	c.setLevel(level)
}

// readProperty resolves a property once per event. Failed reads fall back
// to the last successful value; without one a warning is logged once per
// event and nil is returned.
func (c *Controller) readProperty(v property.Value, msg property.Message) any {
	key := v.String()
	if val, ok := c.ev.memo[key]; ok {
		return val
	}

	val, err := c.deps.Resolver.Resolve(v, msg)
	if err == nil && val != nil {
		c.s.lastKnown[key] = val
		c.ev.memo[key] = val
		return val
	}
	if last, ok := c.s.lastKnown[key]; ok {
		c.log.Info("using last known property value", "blind", c.name, "property", key, "value", last)
		c.ev.memo[key] = last
		return last
	}
	c.warnOnce(key, "property not resolvable", "property", key, "error", err)
	c.ev.memo[key] = nil
	return nil
}

// evalCondition compares operand and threshold. Comparison errors count as
// false.
func (c *Controller) evalCondition(cond Condition, msg property.Message) (bool, any) {
	operand := c.readProperty(cond.Operand, msg)
	var threshold any
	if property.NeedsThreshold(cond.Operator) {
		threshold = c.readProperty(cond.Threshold, msg)
	}
	ok, err := c.deps.Comparator.Compare(operand, cond.Operator, threshold)
	if err != nil {
		c.warnOnce("cmp."+cond.Operand.String(), "condition not evaluable",
			"operand", cond.Operand.String(), "error", fmt.Errorf("%w: %w", ErrResolution, err))
		return false, threshold
	}
	return ok, threshold
}

func (c *Controller) warnOnce(key, msg string, args ...any) {
	if c.ev.warned[key] {
		return
	}
	c.ev.warned[key] = true
	c.log.Warn(msg, append([]any{"blind", c.name}, args...)...)
}

func optionalLevel(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
