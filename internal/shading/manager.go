package shading

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-shading/internal/astro"
	"github.com/nerrad567/gray-logic-shading/internal/blind"
	"github.com/nerrad567/gray-logic-shading/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-shading/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-shading/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-shading/internal/property"
)

// defaultSunInterval is how often the sun position is sampled for metrics
// and the time-series store.
const defaultSunInterval = time.Minute

// Subscriber is the subset of the MQTT client the manager subscribes with.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// SunRecorder receives periodic sun position samples.
type SunRecorder interface {
	WriteSunPosition(site string, altitude, azimuth float64, at time.Time)
}

// SunGauge exposes the current sun position as metrics.
type SunGauge interface {
	SetSun(altitude, azimuth float64)
}

// Options configures a Manager.
type Options struct {
	Shading  config.ShadingConfig
	Site     config.SiteConfig
	Location *time.Location
	Blinds   []blind.Config

	// Sink receives every decision of every blind.
	Sink Sink

	// Drops counts events lost to full queues. Optional.
	Drops DropCounter

	// SunGauge and SunRecorder receive the periodic sun sample. Optional.
	SunGauge    SunGauge
	SunRecorder SunRecorder
	SunInterval time.Duration

	// Translator renders reason texts; defaults to the translation keys.
	Translator blind.Translator

	// Clock overrides the wall clock of the controllers (tests).
	Clock blind.Clock

	Logger *logging.Logger
}

// Manager owns every blind node and the shared collaborators: ephemeris,
// context store and resolvers. It turns MQTT messages, API calls and button
// presses into events for the right node.
type Manager struct {
	opts   Options
	topics mqtt.Topics
	loc    *time.Location
	eph    *astro.Ephemeris
	store  *property.MemoryStore
	log    *logging.Logger

	nodes map[string]*Node
	names []string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager builds a node per blind.
//
// A blind whose collaborators cannot be wired stays degraded: its node
// exists and reports "not configured" for every event, and the error is
// logged. Only an invalid blind configuration fails construction.
//
// Returns:
//   - *Manager: Ready to Start
//   - error: wraps blind.ErrInvalidConfig
func NewManager(opts Options) (*Manager, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.SunInterval <= 0 {
		opts.SunInterval = defaultSunInterval
	}
	if opts.Sink == nil {
		opts.Sink = Sinks(nil)
	}

	m := &Manager{
		opts:   opts,
		topics: mqtt.NewTopics(opts.Shading.TopicPrefix),
		loc:    opts.Location,
		eph:    astro.New(opts.Site.Location.Latitude, opts.Site.Location.Longitude),
		store:  property.NewMemoryStore(),
		log:    opts.Logger.Component("shading"),
		nodes:  make(map[string]*Node, len(opts.Blinds)),
	}

	resolver := property.NewResolver(m.store)
	times := property.NewTimeResolver(resolver, m.eph, m.loc)

	for _, cfg := range opts.Blinds {
		if _, dup := m.nodes[cfg.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate blind name %q", blind.ErrInvalidConfig, cfg.Name)
		}
		ctrl, err := blind.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("blind %q: %w", cfg.Name, err)
		}

		log := opts.Logger.Component("blind").With("blind", cfg.Name)
		node := NewNode(ctrl, opts.Shading.QueueSize, opts.Sink, opts.Drops, log)

		err = ctrl.Configure(blind.Deps{
			Ephemeris:  m.eph,
			Resolver:   resolver,
			Comparator: property.Comparator{},
			Times:      times,
			Translator: opts.Translator,
			Clock:      opts.Clock,
			Location:   m.loc,
			Logger:     log,
			Enqueue:    node.TimerEnqueue,
		})
		if err != nil {
			m.log.Error("blind degraded", "blind", cfg.Name, "error", err)
		}

		m.nodes[cfg.Name] = node
		m.names = append(m.names, cfg.Name)
	}
	sort.Strings(m.names)

	return m, nil
}

// Start launches every node and the sun sampler.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	for _, name := range m.names {
		m.nodes[name].Start()
	}

	if m.opts.SunGauge != nil || m.opts.SunRecorder != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.sampleSunLoop(ctx)
		}()
	}

	m.log.Info("shading started", "blinds", len(m.names), "prefix", m.topics.Prefix())
}

// Stop ends the sun sampler and every node. Pending override timers are
// cancelled.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	for _, name := range m.names {
		m.nodes[name].Stop()
	}
	m.log.Info("shading stopped")
}

// Subscribe registers the blind input topics and the context feeds.
//
// Parameters:
//   - sub: The MQTT client
//   - qos: Subscription QoS
//
// Returns:
//   - error: The first subscription failure
func (m *Manager) Subscribe(sub Subscriber, qos byte) error {
	for _, topic := range []string{m.topics.AllSets(), m.topics.AllSetKeywords()} {
		if err := sub.Subscribe(topic, qos, m.HandleSet); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}
	for _, feed := range m.opts.Shading.Context {
		if err := sub.Subscribe(feed.Topic, qos, m.contextHandler(feed)); err != nil {
			return fmt.Errorf("subscribing to context feed %s: %w", feed.Topic, err)
		}
	}
	return nil
}

// HandleSet turns an inbound set message into an event for its blind.
// The payload is decoded as JSON when possible and taken as text otherwise.
func (m *Manager) HandleSet(topic string, payload []byte) error {
	name, _, ok := m.topics.ParseSet(topic)
	if !ok {
		return fmt.Errorf("%w: topic %s", ErrUnknownBlind, topic)
	}
	node, err := m.node(name)
	if err != nil {
		return err
	}
	msg := property.Message{"topic": topic, "payload": decodePayload(payload)}
	return node.Enqueue(blind.ParseEvent(msg), SourceMQTT)
}

// contextHandler mirrors a context feed topic into the property store.
func (m *Manager) contextHandler(feed config.ContextFeedConfig) mqtt.MessageHandler {
	scope := property.Scope(feed.Scope)
	return func(topic string, payload []byte) error {
		v := decodePayload(payload)
		if feed.Path != "" {
			msg := property.Message{"topic": topic, "payload": v}
			found, ok := msg.Get(feed.Path)
			if !ok {
				m.log.Warn("context feed path not found", "topic", topic, "path", feed.Path)
				return nil
			}
			v = found
		}
		m.store.Set(scope, feed.Key, v)
		m.log.Debug("context value updated", "scope", feed.Scope, "key", feed.Key)
		return nil
	}
}

// Press converts a wall button press into an override event. A button
// without a level resets the override.
func (m *Manager) Press(b config.ButtonConfig) {
	node, err := m.node(b.Blind)
	if err != nil {
		m.log.Warn("button bound to unknown blind", "button", b.Name, "blind", b.Blind)
		return
	}
	if err := node.Enqueue(blind.ParseEvent(ButtonMessage(b)), SourceButton); err != nil {
		m.log.Warn("button event not queued", "button", b.Name, "error", err)
	}
}

// ButtonMessage is the input message a button press produces.
func ButtonMessage(b config.ButtonConfig) property.Message {
	payload := map[string]any{}
	if b.Level == nil {
		payload["reset"] = true
	} else {
		payload["level"] = *b.Level
		if b.Priority > 0 {
			payload["priority"] = float64(b.Priority)
		}
		if b.Expire > 0 {
			payload["expire"] = float64(b.Expire.Milliseconds())
		}
	}
	return property.Message{"topic": "button/" + b.Name, "payload": payload}
}

// Submit processes msg on the named blind and waits for the result.
func (m *Manager) Submit(ctx context.Context, name string, msg property.Message, source string) (blind.Result, error) {
	node, err := m.node(name)
	if err != nil {
		return blind.Result{}, err
	}
	return node.Submit(ctx, blind.ParseEvent(msg), source)
}

// Blind returns the snapshot of one blind.
func (m *Manager) Blind(name string) (Snapshot, error) {
	node, err := m.node(name)
	if err != nil {
		return Snapshot{}, err
	}
	return node.Snapshot(), nil
}

// BlindConfig returns the configuration of one blind with defaults applied.
func (m *Manager) BlindConfig(name string) (blind.Config, error) {
	node, err := m.node(name)
	if err != nil {
		return blind.Config{}, err
	}
	return node.Config(), nil
}

// Blinds returns every blind's snapshot, sorted by name.
func (m *Manager) Blinds() []Snapshot {
	out := make([]Snapshot, 0, len(m.names))
	for _, name := range m.names {
		out = append(out, m.nodes[name].Snapshot())
	}
	return out
}

// Ephemeris returns the site ephemeris.
func (m *Manager) Ephemeris() *astro.Ephemeris { return m.eph }

// Location returns the site time zone.
func (m *Manager) Location() *time.Location { return m.loc }

// Store returns the context store fed by MQTT context feeds.
func (m *Manager) Store() *property.MemoryStore { return m.store }

// Topics returns the topic builders in use.
func (m *Manager) Topics() mqtt.Topics { return m.topics }

func (m *Manager) node(name string) (*Node, error) {
	node, ok := m.nodes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBlind, name)
	}
	return node, nil
}

func (m *Manager) sampleSunLoop(ctx context.Context) {
	m.sampleSun(time.Now())
	ticker := time.NewTicker(m.opts.SunInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.sampleSun(now)
		}
	}
}

func (m *Manager) sampleSun(now time.Time) {
	pos := m.eph.SunPosition(now)
	if m.opts.SunGauge != nil {
		m.opts.SunGauge.SetSun(pos.AltitudeDegrees, pos.AzimuthDegrees)
	}
	if m.opts.SunRecorder != nil {
		m.opts.SunRecorder.WriteSunPosition(m.opts.Site.ID, pos.AltitudeDegrees, pos.AzimuthDegrees, now)
	}
}

// decodePayload returns the JSON value of b, or b as text when it is not
// JSON. An empty payload decodes to "".
func decodePayload(b []byte) any {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return string(b)
	}
	return v
}
