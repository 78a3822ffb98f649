package blind

import (
	"time"

	"github.com/nerrad567/gray-logic-shading/internal/astro"
	"github.com/nerrad567/gray-logic-shading/internal/property"
)

// Ephemeris provides the sun position for the observer location.
type Ephemeris interface {
	SunPosition(t time.Time) astro.SunPosition
}

// Resolver turns typed configuration values into Go values.
type Resolver interface {
	Resolve(v property.Value, msg property.Message) (any, error)
}

// Comparator evaluates a condition operator.
type Comparator interface {
	Compare(a any, op property.Operator, b any) (bool, error)
}

// TimeResolver resolves a rule time gate to an instant.
type TimeResolver interface {
	ResolveTime(spec property.TimeSpec, msg property.Message, now time.Time) (time.Time, error)
}

// Translator renders localised state and reason texts.
type Translator interface {
	T(key string, params map[string]any) string
}

// Logger is the logging interface used by the controller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// keyTranslator returns the key itself; used when no catalogue is wired.
type keyTranslator struct{}

func (keyTranslator) T(key string, _ map[string]any) string { return key }

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

// Clock abstracts wall time so expiry can be tested deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// Deps are the collaborators a Controller needs.
//
// Resolver, Comparator and Enqueue are always required. Ephemeris is
// required when sun control is configured, Times when any rule has a time
// gate. Translator, Clock, Location and Logger have defaults.
type Deps struct {
	Ephemeris  Ephemeris
	Resolver   Resolver
	Comparator Comparator
	Times      TimeResolver
	Translator Translator
	Clock      Clock
	Location   *time.Location
	Logger     Logger

	// Enqueue delivers timer-generated events back onto the owner's serial
	// queue. It is called from the timer goroutine.
	Enqueue func(Event)
}
