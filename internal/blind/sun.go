package blind

import (
	"math"
	"time"

	"github.com/nerrad567/gray-logic-shading/internal/astro"
	"github.com/nerrad567/gray-logic-shading/internal/property"
)

// oversteer is a compiled oversteer entry.
type oversteer struct {
	condition Condition
	level     float64
}

// OversteerMatch reports which oversteer forced the level.
type OversteerMatch struct {
	Index     int     `json:"index"`
	Condition string  `json:"condition"`
	Level     float64 `json:"level"`
}

// SunResult is the sun engine's view for one event.
type SunResult struct {
	Position  astro.SunPosition `json:"position"`
	InWindow  bool              `json:"inWindow"`
	Oversteer *OversteerMatch   `json:"oversteer,omitempty"`
}

// computeSun runs the sun engine. It only changes the working level when
// the sun decides; otherwise the rule engine's level stands.
func (c *Controller) computeSun(msg property.Message, now time.Time) *SunResult {
	pos := c.deps.Ephemeris.SunPosition(now)
	win := c.cfg.Sun.Window
	res := &SunResult{
		Position: pos,
		InWindow: pos.AzimuthDegrees >= win.AzimuthStart && pos.AzimuthDegrees <= win.AzimuthEnd,
	}
	mode := c.s.SunMode

	if !res.InWindow {
		if mode == SunWinter {
			c.setLevel(c.levels.min)
			c.setReason(ReasonSunNotInWindowMin, "sunNotInWinMin", nil, nil)
		} else {
			c.setReason(ReasonSunNotInWindow, "sunNotInWin", nil, nil)
		}
		return res
	}

	if mode == SunSummer && c.cfg.Sun.MinAltitude != 0 && pos.AltitudeDegrees < c.cfg.Sun.MinAltitude {
		c.setReason(ReasonSunMinAltitude, "sunMinAltitude", nil, nil)
		return res
	}

	if m := c.checkOversteer(msg); m != nil {
		c.setLevel(m.Level)
		c.setReason(ReasonOversteer, "oversteer", map[string]any{"text": m.Condition}, map[string]any{"text": m.Condition})
		res.Oversteer = m
		return res
	}

	if mode == SunWinter {
		c.setLevel(c.levels.max)
		c.setReason(ReasonSunInWindowMax, "sunInWinMax", nil, nil)
		return res
	}

	height := math.Tan(pos.AltitudeRadians) * c.cfg.Sun.FloorLength
	switch {
	case height <= win.Bottom:
		c.s.Level, c.s.LevelInverse = c.scale.Bottom, c.scale.Top
	case height >= win.Top:
		c.s.Level, c.s.LevelInverse = c.scale.Top, c.scale.Bottom
	default:
		c.setLevel(c.scale.ToAbsolute((height - win.Bottom) / (win.Top - win.Bottom)))
	}

	prev := c.s.Previous
	delta := math.Abs(prev.Level - c.s.Level)
	smooth := c.cfg.Sun.SmoothTime

	switch {
	case smooth > 0 && c.s.ChangeAgainAt.After(now):
		params := map[string]any{"pos": formatLevel(c.scale.Real(prev.Level, prev.LevelInverse))}
		c.s.Level, c.s.LevelInverse = prev.Level, prev.LevelInverse
		c.setReason(ReasonSmoothing, "smooth", params, params)
	case c.cfg.Sun.MinDelta > 0 && delta < c.cfg.Sun.MinDelta &&
		c.s.Level > c.scale.Bottom && c.s.Level < c.scale.Top:
		params := map[string]any{"pos": formatLevel(c.scale.Real(prev.Level, prev.LevelInverse))}
		c.s.Level, c.s.LevelInverse = prev.Level, prev.LevelInverse
		c.setReason(ReasonSunMinDelta, "sunMinDelta", params, params)
	default:
		c.setReason(ReasonSunControl, "sunCtrl", nil, nil)
		c.s.ChangeAgainAt = now.Add(smooth)
	}

	switch {
	case c.s.Level < c.levels.min:
		org := c.s.Reason
		c.setReason(ReasonSunMinClamp, "sunCtrlMin",
			map[string]any{"org": org.State},
			map[string]any{"org": org.Description, "level": formatLevel(c.s.Level)})
		c.setLevel(c.levels.min)
	case c.s.Level > c.levels.max:
		org := c.s.Reason
		c.setReason(ReasonSunMaxClamp, "sunCtrlMax",
			map[string]any{"org": org.State},
			map[string]any{"org": org.Description, "level": formatLevel(c.s.Level)})
		c.setLevel(c.levels.max)
	}
	return res
}

// checkOversteer returns the first oversteer whose condition holds.
func (c *Controller) checkOversteer(msg property.Message) *OversteerMatch {
	c.ev.oversteerChecked = true
	for i, o := range c.oversteers {
		ok, threshold := c.evalCondition(o.condition, msg)
		if ok {
			return &OversteerMatch{Index: i + 1, Condition: o.condition.Text(threshold), Level: o.level}
		}
	}
	return nil
}

// refreshOversteer reads oversteer sources that were not consulted this
// event so the last-known cache stays current.
func (c *Controller) refreshOversteer(msg property.Message) {
	if len(c.oversteers) == 0 || c.ev.oversteerChecked {
		return
	}
	for _, o := range c.oversteers {
		c.readProperty(o.condition.Operand, msg)
	}
}
