package shading

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-shading/internal/blind"
	"github.com/nerrad567/gray-logic-shading/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-shading/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-shading/internal/journal"
)

// Decision is one processed event of one blind, as handed to sinks.
type Decision struct {
	Blind  string
	Source string

	// Topic is the topic of the input message.
	Topic  string
	Result blind.Result
	Took   time.Duration
}

// Level returns the decided level or NaN.
func (d Decision) Level() float64 {
	if d.Result.Control.Level == nil {
		return math.NaN()
	}
	return *d.Result.Control.Level
}

// Sink receives decisions. Deliver runs on the blind's goroutine and must
// not block for long; failures are logged by the sink itself.
type Sink interface {
	Deliver(d Decision)
}

// Sinks fans a decision out to every sink in order.
type Sinks []Sink

// Deliver implements Sink.
func (s Sinks) Deliver(d Decision) {
	for _, sink := range s {
		sink.Deliver(d)
	}
}

// Publisher is the subset of the MQTT client used for blind outputs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishJSON(topic string, v any, retained bool) error
}

// MQTTSink publishes blind commands and the retained decision summary.
//
// The primary output goes to the blind's topic template, or to
// {prefix}/{blind}/command without one. A single-output blind gets the whole
// message as JSON (level in "payload", summary in "blindCtrl"); a blind with
// two outputs gets the bare level on the command topic and the summary,
// retained, on {prefix}/{blind}/status.
type MQTTSink struct {
	pub    Publisher
	topics mqtt.Topics
	qos    byte
	log    Logger
}

// NewMQTTSink creates an MQTT sink.
func NewMQTTSink(pub Publisher, topics mqtt.Topics, qos byte, log Logger) *MQTTSink {
	if log == nil {
		log = noopLogger{}
	}
	return &MQTTSink{pub: pub, topics: topics, qos: qos, log: log}
}

// Deliver implements Sink.
func (s *MQTTSink) Deliver(d Decision) {
	if cmd := d.Result.Primary; cmd != nil {
		topic := cmd.Topic
		if topic == "" {
			topic = s.topics.Command(d.Blind)
		}
		if err := s.publishCommand(topic, cmd, d.Result.Secondary == nil); err != nil {
			s.log.Warn("publishing blind command failed", "blind", d.Blind, "topic", topic, "error", err)
		}
	}

	if out := d.Result.Secondary; out != nil {
		topic := s.topics.Status(d.Blind)
		if err := s.pub.PublishJSON(topic, out.Payload, true); err != nil {
			s.log.Warn("publishing blind status failed", "blind", d.Blind, "topic", topic, "error", err)
		}
	}
}

func (s *MQTTSink) publishCommand(topic string, cmd *blind.Command, whole bool) error {
	if !whole {
		return s.pub.Publish(topic, []byte(strconv.FormatFloat(cmd.Level, 'f', -1, 64)), s.qos, false)
	}
	msg := cmd.Message.Clone()
	delete(msg, "topic")
	return s.pub.PublishJSON(topic, msg, false)
}

// Broadcaster pushes events to WebSocket clients.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// ChannelDecision is the WebSocket channel blind decisions are pushed on.
const ChannelDecision = "blind.decision"

// DecisionEvent is the WebSocket payload of one decision.
type DecisionEvent struct {
	Blind   string          `json:"blind"`
	Source  string          `json:"source"`
	Changed bool            `json:"changed"`
	Status  blind.Status    `json:"status"`
	Control blind.BlindCtrl `json:"control"`
}

// BlindName lets WebSocket clients filter decisions by blind.
func (e DecisionEvent) BlindName() string { return e.Blind }

// HubSink pushes decisions to WebSocket subscribers of ChannelDecision.
type HubSink struct {
	hub Broadcaster
}

// NewHubSink creates a WebSocket sink.
func NewHubSink(hub Broadcaster) *HubSink {
	return &HubSink{hub: hub}
}

// Deliver implements Sink.
func (s *HubSink) Deliver(d Decision) {
	s.hub.Broadcast(ChannelDecision, DecisionEvent{
		Blind:   d.Blind,
		Source:  d.Source,
		Changed: d.Result.Changed,
		Status:  d.Result.Status,
		Control: d.Result.Control,
	})
}

// DecisionWriter is the time-series export of decisions.
type DecisionWriter interface {
	WriteDecision(d influxdb.Decision)
}

// InfluxSink writes every decision as a time-series point.
type InfluxSink struct {
	w DecisionWriter
}

// NewInfluxSink creates a time-series sink.
func NewInfluxSink(w DecisionWriter) *InfluxSink {
	return &InfluxSink{w: w}
}

// Deliver implements Sink.
func (s *InfluxSink) Deliver(d Decision) {
	ctrl := d.Result.Control
	p := influxdb.Decision{
		Blind:        d.Blind,
		Level:        d.Level(),
		LevelInverse: math.NaN(),
		ReasonCode:   int(ctrl.Reason.Code),
		RuleID:       -1,
		Mode:         int(ctrl.Mode),
		Override:     ctrl.Override.Active,
		Changed:      d.Result.Changed,
		Time:         ctrl.Time,
	}
	if ctrl.LevelInverse != nil {
		p.LevelInverse = *ctrl.LevelInverse
	}
	if ctrl.Rule != nil {
		p.RuleID = ctrl.Rule.ID
	}
	if ctrl.Sun != nil {
		alt, az, in := ctrl.Sun.Position.AltitudeDegrees, ctrl.Sun.Position.AzimuthDegrees, ctrl.Sun.InWindow
		p.SunAltitude, p.SunAzimuth, p.InWindow = &alt, &az, &in
	}
	s.w.WriteDecision(p)
}

// JournalSink records decisions in the decision journal.
type JournalSink struct {
	repo    journal.Repository
	timeout time.Duration
	log     Logger
}

// defaultJournalTimeout bounds one journal insert.
const defaultJournalTimeout = 2 * time.Second

// NewJournalSink creates a journal sink.
func NewJournalSink(repo journal.Repository, log Logger) *JournalSink {
	if log == nil {
		log = noopLogger{}
	}
	return &JournalSink{repo: repo, timeout: defaultJournalTimeout, log: log}
}

// Deliver implements Sink.
func (s *JournalSink) Deliver(d Decision) {
	entry := journalEntry(d)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.repo.Record(ctx, entry); err != nil {
		s.log.Warn("recording decision failed", "blind", d.Blind, "error", err)
	}
}

func journalEntry(d Decision) *journal.Entry {
	ctrl := d.Result.Control
	e := &journal.Entry{
		Blind:             d.Blind,
		Source:            d.Source,
		Topic:             d.Topic,
		Level:             ctrl.Level,
		LevelInverse:      ctrl.LevelInverse,
		ReasonCode:        int(ctrl.Reason.Code),
		ReasonState:       ctrl.Reason.State,
		ReasonDescription: ctrl.Reason.Description,
		RuleID:            -1,
		Mode:              int(ctrl.Mode),
		OverrideActive:    ctrl.Override.Active,
		OverridePriority:  ctrl.Override.Priority,
		Changed:           d.Result.Changed,
		CreatedAt:         ctrl.Time,
	}
	if ctrl.Rule != nil {
		e.RuleID = ctrl.Rule.ID
	}
	// BlindCtrl holds plain data only; a marshal failure just drops the blob.
	if b, err := json.Marshal(ctrl); err == nil {
		e.Control = b
	}
	return e
}

// DecisionObserver records decision metrics.
type DecisionObserver interface {
	ObserveDecision(blind string, reasonCode int, level float64, overrideActive bool, took time.Duration)
	Rejected(blind string)
}

// MetricsSink feeds decision counters and gauges.
type MetricsSink struct {
	m DecisionObserver
}

// NewMetricsSink creates a metrics sink.
func NewMetricsSink(m DecisionObserver) *MetricsSink {
	return &MetricsSink{m: m}
}

// Deliver implements Sink.
func (s *MetricsSink) Deliver(d Decision) {
	ctrl := d.Result.Control
	s.m.ObserveDecision(d.Blind, int(ctrl.Reason.Code), d.Level(), ctrl.Override.Active, d.Took)
	if d.Result.Rejected != nil {
		s.m.Rejected(d.Blind)
	}
}
