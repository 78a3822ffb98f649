// Package blind is the decision engine for one roller blind or shade.
//
// Each event (a manual level, a trigger, a mode switch or an expired
// override) runs through a fixed pipeline and yields the level the blind
// should be at, together with a reason and a status summary.
//
// Architecture:
//
//	┌───────────────────────────────────────────────────────┐
//	│             Controller.Process (controller.go)         │
//	│  1. Snapshot previous level/reason/rule                │
//	│  2. Resolve event time, apply mode switch              │
//	│  3. Override manager (override.go)  ── in force? ──┐   │
//	│  4. Rule engine (rules.go)                         │   │
//	│  5. Sun engine (sun.go), only without active rule  │   │
//	│  6. Rule min/max clamp, scale bottom/top clamp     │   │
//	│  7. Status, topic expansion, change detection  ◀───┘   │
//	└───────────────────────────────────────────────────────┘
//	          │ Primary (level command, on change)
//	          │ Secondary (decision summary, every event)
//	          ▼
//	       host (internal/shading)
//
// # Key Types
//
//   - Config: static blind definition loaded from YAML
//   - Controller: per-blind engine holding the Session
//   - Event: one parsed input; ParseEvent builds it from a message
//   - Result: primary command, secondary summary, status
//   - Scale: level arithmetic (percent, invert, round, validate)
//   - RuleSet: immutable ordered rule table
//
// # Thread Safety
//
// A Controller is not safe for concurrent use. The host feeds it from one
// goroutine; the override expiry timer hands its event back through
// Deps.Enqueue so it is processed on that same goroutine. A timer that was
// replaced after it fired is recognised by its generation and ignored.
//
// # Usage
//
//	ctrl, err := blind.New(cfg)
//	if err != nil {
//	    return err
//	}
//	if err := ctrl.Configure(blind.Deps{
//	    Ephemeris:  astro.New(lat, lon),
//	    Resolver:   resolver,
//	    Comparator: property.Comparator{},
//	    Times:      times,
//	    Enqueue:    queue.Push,
//	}); err != nil {
//	    return err
//	}
//	res, err := ctrl.Process(blind.ParseEvent(msg))
package blind
