// Package influxdb writes the shading history to InfluxDB v2.
//
// Every evaluated blind event becomes a blind_decision point (blind and mode
// tags; level, reason code, rule and sun fields). A periodic sun_position
// series lets dashboards overlay blind movement on the sun's path.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // history is optional
//	}
//	defer client.Close()
//
//	client.WriteDecision(influxdb.Decision{Blind: "office", Level: 0.4, ReasonCode: 3})
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are batched according to
// batch_size and flush_interval; failures arrive on the SetOnError callback.
package influxdb
