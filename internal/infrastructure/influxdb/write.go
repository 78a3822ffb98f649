package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementDecision = "blind_decision"
	MeasurementSun      = "sun_position"
)

// Decision is one evaluated blind event as stored in InfluxDB.
//
// Tags are low-cardinality (blind, reason code, mode); everything else is a
// field. Level is NaN when the event produced no level, in which case the
// level fields are omitted.
type Decision struct {
	Blind        string
	Level        float64
	LevelInverse float64
	ReasonCode   int
	RuleID       int
	Mode         int
	Override     bool
	Changed      bool
	SunAltitude  *float64
	SunAzimuth   *float64
	InWindow     *bool
	Time         time.Time
}

// WriteDecision queues a decision point. Non-blocking; dropped when not connected.
func (c *Client) WriteDecision(d Decision) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(decisionPoint(d))
}

// WriteSunPosition queues a sun position sample for the site.
//
// Parameters:
//   - site: Site identifier (tag)
//   - altitude, azimuth: Degrees
//   - at: Sample time
func (c *Client) WriteSunPosition(site string, altitude, azimuth float64, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(sunPoint(site, altitude, azimuth, at))
}

func decisionPoint(d Decision) *write.Point {
	tags := map[string]string{
		"blind": d.Blind,
		"mode":  modeTag(d.Mode),
	}
	fields := map[string]any{
		"reason_code": d.ReasonCode,
		"rule_id":     d.RuleID,
		"override":    d.Override,
		"changed":     d.Changed,
	}
	// NaN is not representable in line protocol.
	if d.Level == d.Level {
		fields["level"] = d.Level
		fields["level_inverse"] = d.LevelInverse
	}
	if d.SunAltitude != nil {
		fields["sun_altitude"] = *d.SunAltitude
	}
	if d.SunAzimuth != nil {
		fields["sun_azimuth"] = *d.SunAzimuth
	}
	if d.InWindow != nil {
		fields["in_window"] = *d.InWindow
	}

	at := d.Time
	if at.IsZero() {
		at = time.Now()
	}
	return write.NewPoint(MeasurementDecision, tags, fields, at)
}

func sunPoint(site string, altitude, azimuth float64, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementSun,
		map[string]string{"site": site},
		map[string]any{
			"altitude": altitude,
			"azimuth":  azimuth,
			"up":       altitude > 0,
		},
		at,
	)
}

func modeTag(mode int) string {
	switch mode {
	case 0:
		return "off"
	case 1:
		return "restrict"
	case 2:
		return "summer"
	default:
		return "unknown"
	}
}
