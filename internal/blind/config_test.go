package blind

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-shading/internal/property"
)

const blindsYAML = `
blinds:
  - name: living-room
    topic: "home/${name}/level"
    outputs: 2
    level:
      top: 100
      bottom: 0
      increment: 5
      default: {type: num, value: "100"}
      min: {type: levelFixed, value: "close"}
    override:
      expire: 2h
    sun:
      mode: summer
      floor_length: 150
      min_altitude: 5
      min_delta: 10
      smooth_time: 15m
      window:
        azimuth_start: -90
        azimuth_end: 270
        top: 200
        bottom: 0
    oversteer:
      - value: {type: flow, value: wind}
        operator: ">"
        threshold: {type: num, value: "12"}
        level: {type: levelFixed, value: "open"}
    rules:
      - name: night
        time_op: until
        time: {type: entered, value: "06:30"}
        level: {type: levelFixed, value: "close"}
      - name: heat
        level_op: max
        condition:
          operand: {type: global, value: outsideTemp}
          operator: gte
          threshold: {type: num, value: "30"}
        level: {type: num, value: "40"}
      - name: evening
        time_op: from
        time: {type: sun, value: sunset, offset_type: num, offset: "-30", multiplier: 60000}
        level: {type: levelFixed, value: "close"}
`

func TestParseConfig(t *testing.T) {
	cfgs, err := ParseConfig([]byte(blindsYAML))
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	if len(cfgs) != 1 {
		t.Fatalf("len(cfgs) = %d, want 1", len(cfgs))
	}
	c := cfgs[0]

	if c.Outputs != 2 {
		t.Errorf("Outputs = %d, want 2", c.Outputs)
	}
	if *c.Level.Increment != 5 {
		t.Errorf("Increment = %v, want 5", *c.Level.Increment)
	}
	if c.Level.Min.Type != TypeLevelFixed {
		t.Errorf("Level.Min.Type = %q, want levelFixed", c.Level.Min.Type)
	}
	if c.Override.Expire != 2*time.Hour {
		t.Errorf("Override.Expire = %v, want 2h", c.Override.Expire)
	}
	if c.Sun.Mode != SunSummer {
		t.Errorf("Sun.Mode = %v, want summer", c.Sun.Mode)
	}
	if c.Sun.SmoothTime != 15*time.Minute {
		t.Errorf("Sun.SmoothTime = %v, want 15m", c.Sun.SmoothTime)
	}
	if c.Sun.Window.AzimuthStart != 270 {
		t.Errorf("AzimuthStart = %v, want 270 after normalisation", c.Sun.Window.AzimuthStart)
	}
	if len(c.Rules) != 3 {
		t.Fatalf("len(Rules) = %d, want 3", len(c.Rules))
	}
	if c.Rules[1].LevelOp != LevelSetMax {
		t.Errorf("Rules[1].LevelOp = %v, want max", c.Rules[1].LevelOp)
	}
	if c.Rules[1].Condition.Operator.Canonical() != property.OpGreatEq {
		t.Errorf("Rules[1] operator = %q, want >=", c.Rules[1].Condition.Operator)
	}
	if c.Rules[2].TimeOp != TimeFrom {
		t.Errorf("Rules[2].TimeOp = %v, want from", c.Rules[2].TimeOp)
	}
	if c.Rules[2].Time.Multiplier != 60000 {
		t.Errorf("Rules[2].Time.Multiplier = %v, want 60000", c.Rules[2].Time.Multiplier)
	}
}

func TestParseConfigDefaults(t *testing.T) {
	cfgs, err := ParseConfig([]byte("blinds:\n  - name: hall\n"))
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	c := cfgs[0]
	if *c.Level.Top != 100 || *c.Level.Bottom != 0 || *c.Level.Increment != 1 {
		t.Errorf("levels = %v/%v/%v, want 100/0/1", *c.Level.Top, *c.Level.Bottom, *c.Level.Increment)
	}
	if c.Outputs != 1 {
		t.Errorf("Outputs = %d, want 1", c.Outputs)
	}
	if c.Sun.Mode != SunOff {
		t.Errorf("Sun.Mode = %v, want off", c.Sun.Mode)
	}
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{
			name:    "bad name",
			yaml:    "blinds:\n  - name: Living Room\n",
			wantMsg: "name",
		},
		{
			name:    "duplicate",
			yaml:    "blinds:\n  - name: hall\n  - name: hall\n",
			wantMsg: "duplicate",
		},
		{
			name:    "equal top and bottom",
			yaml:    "blinds:\n  - name: hall\n    level: {top: 10, bottom: 10}\n",
			wantMsg: "must differ",
		},
		{
			name:    "sun without window",
			yaml:    "blinds:\n  - name: hall\n    sun: {mode: winter}\n",
			wantMsg: "window.top",
		},
		{
			name: "too many oversteers",
			yaml: `blinds:
  - name: hall
    oversteer:
      - {value: {type: flow, value: a}, operator: "true"}
      - {value: {type: flow, value: b}, operator: "true"}
      - {value: {type: flow, value: c}, operator: "true"}
      - {value: {type: flow, value: d}, operator: "true"}
`,
			wantMsg: "at most 3",
		},
		{
			name: "missing threshold",
			yaml: `blinds:
  - name: hall
    rules:
      - condition: {operand: {type: flow, value: lux}, operator: ">"}
`,
			wantMsg: "needs a threshold",
		},
		{
			name: "unknown operator",
			yaml: `blinds:
  - name: hall
    oversteer:
      - {value: {type: flow, value: a}, operator: "~", threshold: {type: num, value: "1"}}
`,
			wantMsg: "unknown operator",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("ParseConfig() error = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestParseConfigUnknownMode(t *testing.T) {
	_, err := ParseConfig([]byte("blinds:\n  - name: hall\n    sun: {mode: autumn}\n"))
	if err == nil {
		t.Fatal("ParseConfig() error = nil, want error for unknown mode")
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blinds.yaml")
	if err := os.WriteFile(path, []byte(blindsYAML), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	cfgs, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error = %v", err)
	}
	if cfgs[0].Name != "living-room" {
		t.Errorf("Name = %q, want living-room", cfgs[0].Name)
	}

	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadConfigFile() on missing file error = nil, want error")
	}
}
