package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-shading/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "graylogic-shading-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// disconnected returns a client that never reached the broker.
func disconnected() *Client {
	return &Client{cfg: testConfig(), subscriptions: make(map[string]subscription)}
}

func TestTopics(t *testing.T) {
	topics := NewTopics("graylogic/shading/")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"Set", topics.Set("office"), "graylogic/shading/office/set"},
		{"SetKeyword", topics.SetKeyword("office", "resetOverwrite"), "graylogic/shading/office/set/resetOverwrite"},
		{"Command", topics.Command("office"), "graylogic/shading/office/command"},
		{"Status", topics.Status("office"), "graylogic/shading/office/status"},
		{"AllSets", topics.AllSets(), "graylogic/shading/+/set"},
		{"AllSetKeywords", topics.AllSetKeywords(), "graylogic/shading/+/set/+"},
		{"SystemStatus", topics.SystemStatus(), "graylogic/system/status"},
		{"zero value prefix", Topics{}.Command("x"), "graylogic/shading/x/command"},
		{"custom prefix", NewTopics("home/blinds").Status("x"), "home/blinds/x/status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestTopics_ParseSet(t *testing.T) {
	topics := NewTopics("graylogic/shading")

	tests := []struct {
		topic       string
		wantBlind   string
		wantKeyword string
		wantOK      bool
	}{
		{"graylogic/shading/office/set", "office", "", true},
		{"graylogic/shading/office/set/resetOverwrite", "office", "resetOverwrite", true},
		{"graylogic/shading/office/command", "", "", false},
		{"graylogic/shading/office/status", "", "", false},
		{"graylogic/shading//set", "", "", false},
		{"graylogic/shading/office/set/", "", "", false},
		{"graylogic/shading/office/set/a/b", "", "", false},
		{"other/office/set", "", "", false},
		{"graylogic/shadingx/office/set", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			blind, keyword, ok := topics.ParseSet(tt.topic)
			if blind != tt.wantBlind || keyword != tt.wantKeyword || ok != tt.wantOK {
				t.Errorf("ParseSet(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.topic, blind, keyword, ok, tt.wantBlind, tt.wantKeyword, tt.wantOK)
			}
		})
	}
}

func TestHasWildcard(t *testing.T) {
	for topic, want := range map[string]bool{
		"a/b/c": false,
		"a/+/c": true,
		"a/#":   true,
		"":      false,
	} {
		if got := HasWildcard(topic); got != want {
			t.Errorf("HasWildcard(%q) = %v, want %v", topic, got, want)
		}
	}
}

func TestBuildStatusPayload(t *testing.T) {
	now := time.Date(2024, 6, 21, 10, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	raw := buildStatusPayload(statusPayload{Status: StatusOffline, ClientID: "c1", Reason: "graceful_shutdown"}, now)

	var got map[string]string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	want := map[string]string{
		"status":    "offline",
		"client_id": "c1",
		"reason":    "graceful_shutdown",
		"timestamp": "2024-06-21T08:00:00Z",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}

	online := buildStatusPayload(statusPayload{Status: StatusOnline, ClientID: "c1"}, now)
	if err := json.Unmarshal(online, &got); err != nil {
		t.Fatal(err)
	}
	if _, ok := got["reason"]; ok {
		t.Error("online payload carries a reason")
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Auth = config.MQTTAuthConfig{Username: "shade", Password: "pw"}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want ssl://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != cfg.Broker.ClientID {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "shade" || opts.Password != "pw" {
		t.Error("credentials not applied")
	}
	if !opts.CleanSession || !opts.AutoReconnect || !opts.Order {
		t.Errorf("CleanSession=%v AutoReconnect=%v Order=%v, want all true",
			opts.CleanSession, opts.AutoReconnect, opts.Order)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config missing or below minimum version")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, "c1")

	if !opts.WillEnabled || !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will enabled=%v retained=%v qos=%d", opts.WillEnabled, opts.WillRetained, opts.WillQos)
	}
	if opts.WillTopic != "graylogic/system/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	var p statusPayload
	if err := json.Unmarshal(opts.WillPayload, &p); err != nil {
		t.Fatal(err)
	}
	if p.Status != StatusOffline || p.Reason != "unexpected_disconnect" {
		t.Errorf("will payload = %+v", p)
	}
}

func TestClient_Disconnected(t *testing.T) {
	c := disconnected()
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"publish", c.Publish("a/b", []byte("1"), 1, false), ErrNotConnected},
		{"publish empty topic", c.Publish("", nil, 1, false), ErrInvalidTopic},
		{"publish wildcard", c.Publish("a/+/b", nil, 1, false), ErrInvalidTopic},
		{"publish bad qos", c.Publish("a/b", nil, 3, false), ErrInvalidQoS},
		{"publish too large", c.Publish("a/b", make([]byte, maxPayloadSize+1), 0, false), ErrPublishFailed},
		{"publish json", c.PublishJSON("a/b", map[string]int{"level": 1}, false), ErrNotConnected},
		{"publish json unencodable", c.PublishJSON("a/b", make(chan int), false), ErrPublishFailed},
		{"retained", c.PublishRetained("a/b", []byte("x")), ErrNotConnected},
		{"subscribe", c.Subscribe("a/#", 1, noop), ErrNotConnected},
		{"subscribe empty", c.Subscribe("", 1, noop), ErrInvalidTopic},
		{"subscribe bad qos", c.Subscribe("a", 5, noop), ErrInvalidQoS},
		{"subscribe nil handler", c.Subscribe("a", 1, nil), ErrSubscribeFailed},
		{"unsubscribe", c.Unsubscribe("a"), ErrNotConnected},
		{"unsubscribe empty", c.Unsubscribe(""), ErrInvalidTopic},
		{"health", c.HealthCheck(context.Background()), ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.wantErr) {
				t.Errorf("error = %v, want %v", tt.err, tt.wantErr)
			}
		})
	}

	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client = %v", err)
	}
}

func TestHealthCheck_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := disconnected().HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() = %v, want context.Canceled", err)
	}
}

type recordingLogger struct {
	warns, errs []string
}

func (l *recordingLogger) Info(string, ...any)        {}
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.warns = append(l.warns, msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.errs = append(l.errs, msg) }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestWrapHandler(t *testing.T) {
	c := disconnected()
	log := &recordingLogger{}
	c.SetLogger(log)

	var got string
	c.wrapHandler(func(topic string, payload []byte) error {
		got = topic + "=" + string(payload)
		return nil
	})(nil, fakeMessage{topic: "t/1", payload: []byte("40")})
	if got != "t/1=40" {
		t.Errorf("handler saw %q", got)
	}

	c.wrapHandler(func(string, []byte) error { return errors.New("bad payload") })(nil, fakeMessage{topic: "t"})
	if len(log.warns) != 1 {
		t.Errorf("warns = %v, want one handler error", log.warns)
	}

	c.wrapHandler(func(string, []byte) error { panic("boom") })(nil, fakeMessage{topic: "t"})
	if len(log.errs) != 1 {
		t.Errorf("errors = %v, want one recovered panic", log.errs)
	}
}

type fakeToken struct {
	done bool
	err  error
}

func (t fakeToken) Wait() bool                     { return t.done }
func (t fakeToken) WaitTimeout(time.Duration) bool { return t.done }
func (t fakeToken) Done() <-chan struct{}          { return nil }
func (t fakeToken) Error() error                   { return t.err }

func TestAwait(t *testing.T) {
	broker := errors.New("not authorised")

	if err := await(fakeToken{done: true}, time.Second); err != nil {
		t.Errorf("completed token: %v", err)
	}
	if err := await(fakeToken{done: true, err: broker}, time.Second); !errors.Is(err, broker) {
		t.Errorf("failed token: %v, want %v", err, broker)
	}
	if err := await(fakeToken{}, time.Second); !errors.Is(err, errTimeout) {
		t.Errorf("pending token: %v, want errTimeout", err)
	}
}

func TestClient_NoLogger(t *testing.T) {
	c := disconnected()
	// Handler failures without a logger are dropped silently.
	c.wrapHandler(func(string, []byte) error { panic("boom") })(nil, fakeMessage{topic: "t"})
	c.onLinkDown(errors.New("eof"))
	if c.IsConnected() {
		t.Error("IsConnected() after link down")
	}
}
