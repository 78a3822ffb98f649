package blind

import (
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-shading/internal/property"
)

// TypeLevelFixed is a level value written as "open", "close" or a
// percentage of the scale.
const TypeLevelFixed property.Type = "levelFixed"

// MaxOversteers is the maximum number of oversteer conditions per blind.
const MaxOversteers = 3

// maxSmoothTime is the largest smoothing window accepted (2^31-1 ms).
const maxSmoothTime = time.Duration(0x7FFFFFFF) * time.Millisecond

// SunMode selects how the sun engine drives the blind.
type SunMode int

// Sun modes.
const (
	SunOff SunMode = iota
	SunWinter
	SunSummer
)

var sunModeNames = map[SunMode]string{SunOff: "off", SunWinter: "winter", SunSummer: "summer"}

func (m SunMode) String() string {
	if s, ok := sunModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// UnmarshalText accepts "off", "winter", "summer" or the numeric mode.
func (m *SunMode) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	for mode, name := range sunModeNames {
		if s == name || s == fmt.Sprint(int(mode)) {
			*m = mode
			return nil
		}
	}
	return fmt.Errorf("%w: unknown sun mode %q", ErrInvalidConfig, s)
}

// MarshalText renders the mode name.
func (m SunMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Config is the static configuration of one blind.
type Config struct {
	Name    string `yaml:"name"`
	Topic   string `yaml:"topic"`
	Outputs int    `yaml:"outputs"`

	Level     LevelConfig       `yaml:"level"`
	Override  OverrideConfig    `yaml:"override"`
	Sun       SunConfig         `yaml:"sun"`
	Oversteer []OversteerConfig `yaml:"oversteer"`
	Rules     []RuleConfig      `yaml:"rules"`
}

// LevelConfig holds the scale and the soft operating levels.
type LevelConfig struct {
	Top       *float64       `yaml:"top"`
	Bottom    *float64       `yaml:"bottom"`
	Increment *float64       `yaml:"increment"`
	Default   property.Value `yaml:"default"`
	Min       property.Value `yaml:"min"`
	Max       property.Value `yaml:"max"`
}

// OverrideConfig holds override defaults.
type OverrideConfig struct {
	// Expire is the default override lifetime; 0 means overrides without an
	// explicit expire never expire.
	Expire time.Duration `yaml:"expire"`
}

// SunConfig configures the sun engine.
type SunConfig struct {
	Mode        SunMode       `yaml:"mode"`
	FloorLength float64       `yaml:"floor_length"`
	MinAltitude float64       `yaml:"min_altitude"`
	MinDelta    float64       `yaml:"min_delta"`
	SmoothTime  time.Duration `yaml:"smooth_time"`
	Window      WindowConfig  `yaml:"window"`
}

// WindowConfig describes the window geometry. Azimuths are degrees clockwise
// from north; Top and Bottom are heights in the same unit as FloorLength.
type WindowConfig struct {
	AzimuthStart float64 `yaml:"azimuth_start" json:"azimuthStart"`
	AzimuthEnd   float64 `yaml:"azimuth_end" json:"azimuthEnd"`
	Top          float64 `yaml:"top" json:"top"`
	Bottom       float64 `yaml:"bottom" json:"bottom"`
}

// OversteerConfig forces a level while its condition holds.
type OversteerConfig struct {
	Value     property.Value    `yaml:"value"`
	Operator  property.Operator `yaml:"operator"`
	Threshold property.Value    `yaml:"threshold"`
	Level     property.Value    `yaml:"level"`
}

// RuleConfig is one entry of the rule table as written in configuration.
type RuleConfig struct {
	Name      string             `yaml:"name"`
	TimeOp    TimeOp             `yaml:"time_op"`
	LevelOp   LevelOp            `yaml:"level_op"`
	Level     property.Value     `yaml:"level"`
	Condition *ConditionConfig   `yaml:"condition"`
	Time      *property.TimeSpec `yaml:"time"`
}

// ConditionConfig compares an operand with a threshold.
type ConditionConfig struct {
	Operand   property.Value    `yaml:"operand"`
	Operator  property.Operator `yaml:"operator"`
	Threshold property.Value    `yaml:"threshold"`
}

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

var knownOperators = map[property.Operator]bool{
	property.OpTrue: true, property.OpFalse: true, property.OpNull: true, property.OpNotNull: true,
	property.OpEmpty: true, property.OpNEmpty: true, property.OpEqual: true, property.OpNEqual: true,
	property.OpLess: true, property.OpLessEq: true, property.OpGreater: true, property.OpGreatEq: true,
	property.OpBetween: true, property.OpOutside: true, property.OpContain: true,
}

// ApplyDefaults fills unset fields: open level 100, closed level 0,
// increment 1, one output.
func (c *Config) ApplyDefaults() {
	if c.Level.Top == nil {
		c.Level.Top = ptr(100.0)
	}
	if c.Level.Bottom == nil {
		c.Level.Bottom = ptr(0.0)
	}
	if c.Level.Increment == nil {
		c.Level.Increment = ptr(1.0)
	}
	if c.Outputs == 0 {
		c.Outputs = 1
	}
	c.Sun.Window.AzimuthStart = normalizeAngle(c.Sun.Window.AzimuthStart)
	c.Sun.Window.AzimuthEnd = normalizeAngle(c.Sun.Window.AzimuthEnd)
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if !namePattern.MatchString(c.Name) {
		errs = append(errs, fmt.Sprintf("name %q must be lowercase letters, digits, '-' or '_'", c.Name))
	}
	if c.Outputs < 1 || c.Outputs > 2 {
		errs = append(errs, "outputs must be 1 or 2")
	}
	if c.Level.Top != nil && c.Level.Bottom != nil && *c.Level.Top == *c.Level.Bottom {
		errs = append(errs, "level.top and level.bottom must differ")
	}
	if c.Level.Increment != nil && (*c.Level.Increment <= 0 || math.IsNaN(*c.Level.Increment)) {
		errs = append(errs, "level.increment must be positive")
	}
	if c.Override.Expire < 0 {
		errs = append(errs, "override.expire must not be negative")
	}

	if c.Sun.Mode < SunOff || c.Sun.Mode > SunSummer {
		errs = append(errs, "sun.mode must be off, winter or summer")
	}
	if c.Sun.SmoothTime < 0 || c.Sun.SmoothTime >= maxSmoothTime {
		errs = append(errs, "sun.smooth_time must be between 0 and 24 days")
	}
	if c.Sun.Mode != SunOff && c.Sun.Window.Top <= c.Sun.Window.Bottom {
		errs = append(errs, "sun.window.top must be above sun.window.bottom")
	}

	if len(c.Oversteer) > MaxOversteers {
		errs = append(errs, fmt.Sprintf("at most %d oversteer entries allowed", MaxOversteers))
	}
	for i, o := range c.Oversteer {
		if o.Value.IsEmpty() {
			errs = append(errs, fmt.Sprintf("oversteer[%d].value is required", i))
		}
		if err := checkOperator(o.Operator, o.Threshold); err != "" {
			errs = append(errs, fmt.Sprintf("oversteer[%d]: %s", i, err))
		}
	}

	for i, r := range c.Rules {
		if r.LevelOp < LevelAbsolute || r.LevelOp > LevelClearMax {
			errs = append(errs, fmt.Sprintf("rules[%d].level_op is invalid", i))
		}
		if r.Condition != nil && !r.Condition.Operand.IsEmpty() {
			if err := checkOperator(r.Condition.Operator, r.Condition.Threshold); err != "" {
				errs = append(errs, fmt.Sprintf("rules[%d].condition: %s", i, err))
			}
		}
		if r.Time != nil && !r.Time.IsEmpty() && r.Time.Value == "" {
			errs = append(errs, fmt.Sprintf("rules[%d].time.value is required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

func checkOperator(op property.Operator, threshold property.Value) string {
	if !knownOperators[op.Canonical()] {
		return fmt.Sprintf("unknown operator %q", op)
	}
	if property.NeedsThreshold(op) && threshold.IsEmpty() {
		return fmt.Sprintf("operator %q needs a threshold", op)
	}
	return ""
}

// FileConfig is the layout of a blinds YAML file.
type FileConfig struct {
	Blinds []Config `yaml:"blinds"`
}

// LoadConfigFile reads blind definitions from a YAML file, applies defaults
// and validates every entry.
//
// Returns:
//   - []Config: the blinds in file order
//   - error: wraps ErrInvalidConfig for validation problems
func LoadConfigFile(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading blinds file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig is LoadConfigFile for in-memory YAML.
func ParseConfig(data []byte) ([]Config, error) {
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parsing blinds file: %w", err)
	}

	seen := make(map[string]bool, len(fc.Blinds))
	var errs []error
	for i := range fc.Blinds {
		c := &fc.Blinds[i]
		c.ApplyDefaults()
		if err := c.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("blind %q: %w", c.Name, err))
			continue
		}
		if seen[c.Name] {
			errs = append(errs, fmt.Errorf("%w: duplicate blind name %q", ErrInvalidConfig, c.Name))
		}
		seen[c.Name] = true
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return fc.Blinds, nil
}

// normalizeAngle maps an angle into [0, 360].
func normalizeAngle(a float64) float64 {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return 0
	}
	for a < 0 {
		a += 360
	}
	for a > 360 {
		a -= 360
	}
	return a
}

func ptr[T any](v T) *T { return &v }
