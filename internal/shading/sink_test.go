package shading

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-shading/internal/astro"
	"github.com/nerrad567/gray-logic-shading/internal/blind"
	"github.com/nerrad567/gray-logic-shading/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-shading/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-shading/internal/journal"
	"github.com/nerrad567/gray-logic-shading/internal/property"
)

type published struct {
	topic    string
	payload  []byte
	retained bool
}

// mockPublisher captures publishes instead of sending them.
type mockPublisher struct {
	msgs []published
	err  error
}

func (m *mockPublisher) Publish(topic string, payload []byte, _ byte, retained bool) error {
	m.msgs = append(m.msgs, published{topic: topic, payload: payload, retained: retained})
	return m.err
}

func (m *mockPublisher) PublishJSON(topic string, v any, retained bool) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return m.Publish(topic, b, 1, retained)
}

type mockHub struct {
	channel string
	payload any
	calls   int
}

func (h *mockHub) Broadcast(channel string, payload any) {
	h.channel, h.payload = channel, payload
	h.calls++
}

type mockWriter struct {
	points []influxdb.Decision
}

func (w *mockWriter) WriteDecision(d influxdb.Decision) { w.points = append(w.points, d) }

type mockRepo struct {
	entries []*journal.Entry
	err     error
}

func (r *mockRepo) Record(_ context.Context, e *journal.Entry) error {
	r.entries = append(r.entries, e)
	return r.err
}

func (r *mockRepo) List(context.Context, journal.Filter) (*journal.ListResult, error) {
	return &journal.ListResult{}, nil
}

func (r *mockRepo) Prune(context.Context, time.Time) (int64, error) { return 0, nil }

type mockObserver struct {
	blind    string
	code     int
	level    float64
	override bool
	rejected int
}

func (o *mockObserver) ObserveDecision(b string, code int, level float64, override bool, _ time.Duration) {
	o.blind, o.code, o.level, o.override = b, code, level, override
}

func (o *mockObserver) Rejected(string) { o.rejected++ }

func ptrTo[T any](v T) *T { return &v }

// decision builds a changed decision at level 40 for blind "office".
func decision() Decision {
	ctrl := blind.BlindCtrl{
		Name:         "office",
		Level:        ptrTo(40.0),
		LevelInverse: ptrTo(60.0),
		Reason:       blind.Reason{Code: blind.ReasonRule, State: "rule 2", Description: "rule 2 active"},
		Mode:         blind.SunWinter,
		Override:     blind.OverrideState{},
		Rule:         &blind.RuleResult{Active: true, ID: 2, Level: 40},
		Time:         time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC),
	}
	return Decision{
		Blind:  "office",
		Source: SourceMQTT,
		Topic:  "graylogic/shading/office/set",
		Result: blind.Result{
			Primary: &blind.Command{
				Level: 40,
				Message: property.Message{
					"topic":     "graylogic/shading/office/set",
					"payload":   40.0,
					"blindCtrl": ctrl,
				},
			},
			Status:  blind.Status{Fill: blind.FillGrey, Shape: "ring", Text: "40 - rule 2"},
			Control: ctrl,
			Changed: true,
		},
		Took: time.Millisecond,
	}
}

func TestMQTTSink_SingleOutput(t *testing.T) {
	pub := &mockPublisher{}
	sink := NewMQTTSink(pub, mqtt.NewTopics("graylogic/shading"), 1, nil)

	sink.Deliver(decision())

	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.msgs))
	}
	got := pub.msgs[0]
	if got.topic != "graylogic/shading/office/command" || got.retained {
		t.Errorf("published to %q retained=%v", got.topic, got.retained)
	}

	var body map[string]any
	if err := json.Unmarshal(got.payload, &body); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if _, ok := body["topic"]; ok {
		t.Error("command payload still carries the input topic")
	}
	if body["payload"] != 40.0 {
		t.Errorf("payload = %v, want 40", body["payload"])
	}
	if _, ok := body["blindCtrl"]; !ok {
		t.Error("command payload lacks blindCtrl")
	}
}

func TestMQTTSink_TwoOutputs(t *testing.T) {
	pub := &mockPublisher{}
	sink := NewMQTTSink(pub, mqtt.NewTopics("graylogic/shading"), 1, nil)

	d := decision()
	d.Result.Primary.Topic = "knx/office/position"
	d.Result.Secondary = &blind.Output{Payload: d.Result.Control}
	sink.Deliver(d)

	if len(pub.msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(pub.msgs))
	}
	if pub.msgs[0].topic != "knx/office/position" || string(pub.msgs[0].payload) != "40" {
		t.Errorf("command = %s %q, want knx/office/position \"40\"", pub.msgs[0].topic, pub.msgs[0].payload)
	}
	status := pub.msgs[1]
	if status.topic != "graylogic/shading/office/status" || !status.retained {
		t.Errorf("status published to %q retained=%v", status.topic, status.retained)
	}
	var ctrl blind.BlindCtrl
	if err := json.Unmarshal(status.payload, &ctrl); err != nil {
		t.Fatalf("status payload: %v", err)
	}
	if ctrl.Name != "office" || ctrl.Reason.Code != blind.ReasonRule {
		t.Errorf("status = %+v", ctrl)
	}
}

func TestMQTTSink_UnchangedPublishesNothing(t *testing.T) {
	pub := &mockPublisher{}
	sink := NewMQTTSink(pub, mqtt.NewTopics(""), 1, nil)

	d := decision()
	d.Result.Primary = nil
	d.Result.Changed = false
	sink.Deliver(d)

	if len(pub.msgs) != 0 {
		t.Errorf("published %d messages for an unchanged single-output blind", len(pub.msgs))
	}
}

func TestMQTTSink_PublishErrorIsLogged(t *testing.T) {
	pub := &mockPublisher{err: errors.New("mqtt: not connected")}
	log := &recordingLogger{}
	sink := NewMQTTSink(pub, mqtt.NewTopics(""), 1, log)

	sink.Deliver(decision())

	if len(log.warns) != 1 {
		t.Errorf("warnings = %v, want one", log.warns)
	}
}

func TestHubSink(t *testing.T) {
	hub := &mockHub{}
	NewHubSink(hub).Deliver(decision())

	if hub.calls != 1 || hub.channel != ChannelDecision {
		t.Fatalf("broadcast %d times on %q", hub.calls, hub.channel)
	}
	ev, ok := hub.payload.(DecisionEvent)
	if !ok {
		t.Fatalf("payload type %T, want DecisionEvent", hub.payload)
	}
	if ev.Blind != "office" || !ev.Changed || ev.Status.Fill != blind.FillGrey {
		t.Errorf("event = %+v", ev)
	}
}

func TestInfluxSink(t *testing.T) {
	w := &mockWriter{}
	sink := NewInfluxSink(w)

	d := decision()
	d.Result.Control.Sun = &blind.SunResult{
		Position: astro.SunPosition{AltitudeDegrees: 35, AzimuthDegrees: 190},
		InWindow: true,
	}
	sink.Deliver(d)

	if len(w.points) != 1 {
		t.Fatalf("wrote %d points, want 1", len(w.points))
	}
	p := w.points[0]
	if p.Blind != "office" || p.Level != 40 || p.LevelInverse != 60 || p.RuleID != 2 || p.Mode != int(blind.SunWinter) {
		t.Errorf("point = %+v", p)
	}
	if p.SunAltitude == nil || *p.SunAltitude != 35 || p.InWindow == nil || !*p.InWindow {
		t.Errorf("sun fields = %v %v", p.SunAltitude, p.InWindow)
	}

	d = decision()
	d.Result.Control.Level, d.Result.Control.LevelInverse, d.Result.Control.Rule = nil, nil, nil
	sink.Deliver(d)
	p = w.points[1]
	if !math.IsNaN(p.Level) || !math.IsNaN(p.LevelInverse) || p.RuleID != -1 || p.SunAltitude != nil {
		t.Errorf("point without level = %+v", p)
	}
}

func TestJournalSink(t *testing.T) {
	repo := &mockRepo{}
	NewJournalSink(repo, nil).Deliver(decision())

	if len(repo.entries) != 1 {
		t.Fatalf("recorded %d entries, want 1", len(repo.entries))
	}
	e := repo.entries[0]
	if e.Blind != "office" || e.Source != SourceMQTT || e.RuleID != 2 || !e.Changed {
		t.Errorf("entry = %+v", e)
	}
	if e.Level == nil || *e.Level != 40 || e.ReasonState != "rule 2" {
		t.Errorf("entry level/reason = %v %q", e.Level, e.ReasonState)
	}
	var ctrl blind.BlindCtrl
	if err := json.Unmarshal(e.Control, &ctrl); err != nil || ctrl.Name != "office" {
		t.Errorf("control blob = %s (%v)", e.Control, err)
	}
	if !e.CreatedAt.Equal(decision().Result.Control.Time) {
		t.Errorf("CreatedAt = %v, want decision time", e.CreatedAt)
	}
}

func TestJournalSink_RecordErrorIsLogged(t *testing.T) {
	repo := &mockRepo{err: errors.New("database is locked")}
	log := &recordingLogger{}
	NewJournalSink(repo, log).Deliver(decision())

	if len(log.warns) != 1 {
		t.Errorf("warnings = %v, want one", log.warns)
	}
}

func TestMetricsSink(t *testing.T) {
	obs := &mockObserver{}
	sink := NewMetricsSink(obs)

	d := decision()
	d.Result.Rejected = blind.ErrInvalidLevel
	sink.Deliver(d)

	if obs.blind != "office" || obs.code != int(blind.ReasonRule) || obs.level != 40 || obs.override {
		t.Errorf("observed = %+v", obs)
	}
	if obs.rejected != 1 {
		t.Errorf("rejected = %d, want 1", obs.rejected)
	}
}

func TestSinks_FanOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	Sinks{a, b}.Deliver(decision())
	Sinks(nil).Deliver(decision())

	if len(a.all()) != 1 || len(b.all()) != 1 {
		t.Errorf("fan-out delivered %d and %d, want 1 each", len(a.all()), len(b.all()))
	}
}

// recordingLogger keeps warnings for assertions.
type recordingLogger struct {
	warns []string
}

func (l *recordingLogger) Debug(string, ...any)       {}
func (l *recordingLogger) Info(string, ...any)        {}
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.warns = append(l.warns, msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.warns = append(l.warns, msg) }
