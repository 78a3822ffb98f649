package influxdb

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-shading/internal/infrastructure/config"
)

type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (w *fakeWriter) WritePoint(p *write.Point) {
	w.mu.Lock()
	w.points = append(w.points, p)
	w.mu.Unlock()
}

func (w *fakeWriter) Flush() {
	w.mu.Lock()
	w.flushes++
	w.mu.Unlock()
}

func connectedClient() (*Client, *fakeWriter) {
	w := &fakeWriter{}
	c := &Client{writer: w}
	c.connected.Store(true)
	return c, w
}

func lineOf(p *write.Point) string {
	return write.PointToLineProtocol(p, time.Nanosecond)
}

func ptr[T any](v T) *T { return &v }

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(context.Background(), config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Connect(ctx, config.InfluxDBConfig{
		Enabled: true,
		URL:     "http://127.0.0.1:59999",
		Org:     "graylogic",
		Bucket:  "shading",
	})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestDecisionPoint(t *testing.T) {
	at := time.Date(2024, 6, 21, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		d       Decision
		want    []string
		notWant []string
	}{
		{
			name: "sun decision",
			d: Decision{
				Blind: "office", Level: 0.4, LevelInverse: 0.6, ReasonCode: 8, RuleID: -1,
				Mode: 2, Changed: true, SunAltitude: ptr(45.0), SunAzimuth: ptr(180.0),
				InWindow: ptr(true), Time: at,
			},
			want: []string{
				"blind_decision,blind=office,mode=summer ",
				"level=0.4", "level_inverse=0.6", "reason_code=8i", "rule_id=-1i",
				"sun_altitude=45", "sun_azimuth=180", "in_window=true", "changed=true",
				"override=false", " 1718964000000000000",
			},
		},
		{
			name:    "no level",
			d:       Decision{Blind: "hall", Level: math.NaN(), ReasonCode: 0, Mode: 0, Time: at},
			want:    []string{"mode=off", "reason_code=0i"},
			notWant: []string{"level=", "level_inverse=", "sun_altitude"},
		},
		{
			name: "override",
			d:    Decision{Blind: "hall", Level: 1, ReasonCode: 1, Override: true, Mode: 7, Time: at},
			want: []string{"mode=unknown", "override=true", "level=1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := lineOf(decisionPoint(tt.d))
			for _, w := range tt.want {
				if !strings.Contains(line, w) {
					t.Errorf("line %q missing %q", line, w)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(line, w) {
					t.Errorf("line %q contains %q", line, w)
				}
			}
		})
	}
}

func TestSunPoint(t *testing.T) {
	line := lineOf(sunPoint("home", -3.5, 310, time.Unix(0, 0)))
	for _, w := range []string{"sun_position,site=home ", "altitude=-3.5", "azimuth=310", "up=false"} {
		if !strings.Contains(line, w) {
			t.Errorf("line %q missing %q", line, w)
		}
	}
}

func TestClient_Writes(t *testing.T) {
	c, w := connectedClient()

	c.WriteDecision(Decision{Blind: "office", Level: 0.5})
	c.WriteSunPosition("home", 10, 120, time.Now())
	c.Flush()

	if len(w.points) != 2 {
		t.Fatalf("points = %d, want 2", len(w.points))
	}
	if w.points[0].Name() != MeasurementDecision || w.points[1].Name() != MeasurementSun {
		t.Errorf("measurements = %s, %s", w.points[0].Name(), w.points[1].Name())
	}
	if w.flushes != 1 {
		t.Errorf("flushes = %d, want 1", w.flushes)
	}
}

func TestClient_DisconnectedDropsWrites(t *testing.T) {
	c, w := connectedClient()
	c.connected.Store(false)

	c.WriteDecision(Decision{Blind: "office", Level: 0.5})
	c.WriteSunPosition("home", 10, 120, time.Now())
	c.Flush()

	if len(w.points) != 0 || w.flushes != 0 {
		t.Errorf("points=%d flushes=%d, want nothing written", len(w.points), w.flushes)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}

	var nilClient *Client
	if nilClient.IsConnected() {
		t.Error("nil client reports connected")
	}
	nilClient.WriteDecision(Decision{})
}

func TestClose_NeverConnected(t *testing.T) {
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestWriteOptions(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.InfluxDBConfig
		wantBatch uint
		wantFlush uint
	}{
		{"defaults", config.InfluxDBConfig{}, defaultBatchSize, defaultFlushInterval * millisecondsPerSecond},
		{"configured", config.InfluxDBConfig{BatchSize: 20, FlushInterval: 2}, 20, 2000},
		{"negative", config.InfluxDBConfig{BatchSize: -1, FlushInterval: -5}, defaultBatchSize, defaultFlushInterval * millisecondsPerSecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := writeOptions(tt.cfg)
			if opts.BatchSize() != tt.wantBatch || opts.FlushInterval() != tt.wantFlush {
				t.Errorf("batch=%d flush=%d, want %d/%d", opts.BatchSize(), opts.FlushInterval(), tt.wantBatch, tt.wantFlush)
			}
		})
	}
}
