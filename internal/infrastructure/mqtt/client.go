package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-shading/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang for the shading service.
//
// Besides the broker link it keeps two pieces of state paho does not: the
// subscription set, replayed after every reconnect because the broker session
// is not persistent, and the retained service status under
// graylogic/system/status (online on connect, offline on Close, LWT on crash).
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig

	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connected atomic.Bool

	hooks   hooks
	hooksMu sync.RWMutex
}

// hooks are the caller-supplied observers of connection events.
type hooks struct {
	logger       Logger
	onConnect    func()
	onDisconnect func(err error)
}

// Logger is the subset of logging.Logger the client uses.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is called for each message on a subscribed pattern. topic
// has wildcards expanded. A returned error is logged and does not affect
// acknowledgment.
//
// With ordered delivery enabled, handlers run on paho's router goroutine one
// at a time. They must hand work off rather than block: the shading manager
// only enqueues onto the blind's queue.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker and waits for the first CONNACK.
//
// The LWT is registered on the system status topic and auto-reconnect is on,
// so after a successful Connect the client heals itself; callers only watch
// the OnConnect/OnDisconnect hooks.
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: ErrConnectionFailed if the broker is unreachable within the timeout
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:           cfg,
		options:       buildClientOptions(cfg),
		subscriptions: make(map[string]subscription),
	}
	configureLWT(c.options, cfg.Broker.ClientID)

	c.options.SetOnConnectHandler(func(pahomqtt.Client) { c.onLinkUp() })
	c.options.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.onLinkDown(err) })
	c.options.SetReconnectingHandler(func(_ pahomqtt.Client, o *pahomqtt.ClientOptions) {
		c.log().Info("MQTT reconnecting", "client_id", o.ClientID)
	})

	c.client = pahomqtt.NewClient(c.options)
	if err := await(c.client.Connect(), defaultConnectTimeout); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// onLinkUp runs asynchronously; callers may subscribe before it fires.
	c.connected.Store(true)
	return c, nil
}

// errTimeout marks a token that did not complete in time.
var errTimeout = errors.New("timed out")

// await waits up to d for tok and returns its error.
func await(tok pahomqtt.Token, d time.Duration) error {
	if !tok.WaitTimeout(d) {
		return fmt.Errorf("%w after %v", errTimeout, d)
	}
	return tok.Error()
}

// onLinkUp runs on the initial connect and on every reconnect.
func (c *Client) onLinkUp() {
	c.connected.Store(true)
	c.resubscribe()
	c.publishStatus(StatusOnline, "")

	if h := c.snapshotHooks(); h.onConnect != nil {
		h.onConnect()
	}
}

func (c *Client) onLinkDown(err error) {
	c.connected.Store(false)

	h := c.snapshotHooks()
	c.log().Warn("MQTT connection lost", "error", err)
	if h.onDisconnect != nil {
		h.onDisconnect(err)
	}
}

// resubscribe replays the subscription set after a reconnect.
func (c *Client) resubscribe() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	failed := 0
	for _, sub := range c.subscriptions {
		tok := c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
		if err := await(tok, defaultPublishTimeout); err != nil {
			failed++
			c.log().Warn("MQTT resubscribe failed", "topic", sub.topic, "error", err)
		}
	}
	if failed > 0 {
		c.log().Error("MQTT subscriptions missing after reconnect", "failed", failed, "total", len(c.subscriptions))
	}
}

// publishStatus publishes the retained service status without waiting.
func (c *Client) publishStatus(status, reason string) pahomqtt.Token {
	payload := buildStatusPayload(statusPayload{
		Status:   status,
		ClientID: c.cfg.Broker.ClientID,
		Reason:   reason,
	}, time.Now())
	return c.client.Publish(Topics{}.SystemStatus(), c.qos(), true, payload)
}

// qos is the configured QoS, falling back to 1 when out of range.
func (c *Client) qos() byte {
	if c.cfg.QoS < 0 || c.cfg.QoS > maxQoS {
		return 1
	}
	return byte(c.cfg.QoS)
}

// Close announces a graceful offline status and disconnects. A client that
// never connected closes without error.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() {
		c.publishStatus(StatusOffline, "graceful_shutdown").WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether both our view and paho's say the link is up.
func (c *Client) IsConnected() bool {
	if c == nil || c.client == nil {
		return false
	}
	return c.connected.Load() && c.client.IsConnected()
}

// SetOnConnect sets a callback invoked on connect and on every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.hooksMu.Lock()
	c.hooks.onConnect = callback
	c.hooksMu.Unlock()
}

// SetOnDisconnect sets a callback invoked when the connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.hooksMu.Lock()
	c.hooks.onDisconnect = callback
	c.hooksMu.Unlock()
}

// SetLogger sets the logger for connection events and handler failures.
// Without one they are dropped.
func (c *Client) SetLogger(logger Logger) {
	c.hooksMu.Lock()
	c.hooks.logger = logger
	c.hooksMu.Unlock()
}

func (c *Client) snapshotHooks() hooks {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()
	return c.hooks
}

func (c *Client) log() Logger {
	if l := c.snapshotHooks().logger; l != nil {
		return l
	}
	return nopLogger{}
}

// wrapHandler adapts a MessageHandler to paho. A panicking handler is logged
// and does not take down paho's router goroutine.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		topic := msg.Topic()
		defer func() {
			if r := recover(); r != nil {
				c.log().Error("MQTT handler panic recovered", "topic", topic, "panic", r)
			}
		}()
		if err := handler(topic, msg.Payload()); err != nil {
			c.log().Warn("MQTT handler returned error", "topic", topic, "error", err)
		}
	}
}
