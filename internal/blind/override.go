package blind

import (
	"math"
	"time"
)

// OverrideState is the manual override of a blind.
//
// Expiry is nil unless the override has a deadline; there are no zero-valued
// placeholder fields for an override that never expires.
type OverrideState struct {
	Active         bool            `json:"active"`
	Priority       int             `json:"priority"`
	ExpireDuration time.Duration   `json:"expireDuration"`
	Expiry         *OverrideExpiry `json:"expiry,omitempty"`
}

// Expires reports whether the override has a deadline.
func (o OverrideState) Expires() bool { return o.Expiry != nil }

// OverrideExpiry is the override deadline and its renderings.
type OverrideExpiry struct {
	At        time.Time `json:"at"`
	ISO       string    `json:"iso"`
	UTC       string    `json:"utc"`
	DateLocal string    `json:"dateLocal"`
	TimeLocal string    `json:"timeLocal"`
}

func newExpiry(at time.Time, loc *time.Location) *OverrideExpiry {
	local := at.In(loc)
	return &OverrideExpiry{
		At:        at,
		ISO:       at.UTC().Format("2006-01-02T15:04:05.000Z"),
		UTC:       at.UTC().Format(time.RFC1123),
		DateLocal: local.Format("2006-01-02"),
		TimeLocal: local.Format("15:04:05"),
	}
}

// requestOverride applies the override part of an event.
//
// Returns:
//   - bool: true when the override is in force and rules and sun are skipped
//   - error: wraps ErrInvalidLevel when an explicit level was rejected; the
//     request is abandoned and the previous override state stays
func (c *Controller) requestOverride(ev Event, now time.Time) (bool, error) {
	ov := &c.s.Override

	prio := 0
	if ev.Priority != nil {
		prio = *ev.Priority
	}

	if ov.Expiry != nil && ov.Expiry.At.Before(now) {
		c.resetOverride()
	}
	if ev.Reset && (prio == 0 || ov.Priority <= prio) {
		c.resetOverride()
	}

	if ov.Active && ov.Priority > 0 && ov.Priority > prio {
		c.setOverrideReason()
		return true, nil
	}

	if !ev.TriggerOnly && ov.Active && ev.Level == nil {
		if ev.Expire != nil {
			c.setExpiring(now, ev.Expire)
		}
		if prio > 0 {
			ov.Priority = prio
		}
		c.setOverrideReason()
		return true, nil
	}

	if !ev.TriggerOnly && ev.Level != nil {
		level := *ev.Level
		if level == -1 {
			c.s.Level = math.NaN()
			c.s.LevelInverse = math.NaN()
		} else {
			if err := c.scale.CheckPosition(level, ev.AllowRounding); err != nil {
				c.log.Warn("override level rejected", "blind", c.name, "level", level, "error", err)
				if ov.Active {
					c.setOverrideReason()
				}
				return ov.Active, err
			}
			if ev.AllowRounding {
				level = c.scale.Round(level)
			}
			prev := c.s.Previous
			if ev.IgnoreSameValue && c.scale.Real(prev.Level, prev.LevelInverse) == level {
				c.setOverrideReason()
				return true, nil
			}
			c.setRealLevel(level)
		}

		switch {
		case ev.Expire != nil || prio <= 0:
			c.setExpiring(now, ev.Expire)
		case prio > ov.Priority || ov.Expiry == nil:
			never := time.Duration(-1)
			c.setExpiring(now, &never)
		}
		if prio > 0 {
			ov.Priority = prio
		}
		ov.Active = true
	}

	if ov.Active {
		c.setOverrideReason()
		return true, nil
	}
	return false, nil
}

// setExpiring (re)arms the expiry timer. A nil expire uses the configured
// default; a non-positive duration removes the deadline.
func (c *Controller) setExpiring(now time.Time, expire *time.Duration) {
	c.stopTimer()

	d := c.s.Override.ExpireDuration
	if expire != nil {
		d = *expire
	}
	if d <= 0 {
		c.s.Override.Expiry = nil
		return
	}

	c.s.Override.Expiry = newExpiry(now.Add(d), c.loc)
	c.log.Debug("override expires", "blind", c.name, "in", d, "at", c.s.Override.Expiry.ISO)
	c.armTimer(d)
}

// resetOverride clears the override and cancels its timer. Idempotent.
func (c *Controller) resetOverride() {
	c.s.Override.Active = false
	c.s.Override.Priority = 0
	c.s.Override.Expiry = nil
	c.stopTimer()
}

func (c *Controller) setOverrideReason() {
	ov := c.s.Override
	if ov.Expiry != nil {
		params := map[string]any{
			"prio":      ov.Priority,
			"timeLocal": ov.Expiry.TimeLocal,
			"dateLocal": ov.Expiry.DateLocal,
			"dateISO":   ov.Expiry.ISO,
			"dateUTC":   ov.Expiry.UTC,
		}
		c.setReason(ReasonOverrideExpire, "overrideExpire", params, params)
		return
	}
	params := map[string]any{"prio": ov.Priority}
	c.setReason(ReasonOverrideNoExpire, "overrideNoExpire", params, params)
}

// armTimer schedules an OverrideExpired event. The generation lets the
// controller ignore an event from a timer that was replaced after it fired.
func (c *Controller) armTimer(d time.Duration) {
	c.gen++
	gen := c.gen
	enqueue := c.deps.Enqueue
	c.timer = c.deps.Clock.AfterFunc(d, func() {
		enqueue(Event{Kind: EventOverrideExpired, Generation: gen})
	})
}

func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

// rearmFromState restores the timer after a rollback.
func (c *Controller) rearmFromState() {
	c.stopTimer()
	if !c.s.Override.Active || c.s.Override.Expiry == nil {
		return
	}
	d := c.s.Override.Expiry.At.Sub(c.deps.Clock.Now())
	if d < 0 {
		d = 0
	}
	c.armTimer(d)
}
