package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-shading/internal/auth"
	"github.com/nerrad567/gray-logic-shading/internal/blind"
	"github.com/nerrad567/gray-logic-shading/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-shading/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-shading/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-shading/internal/journal"
	"github.com/nerrad567/gray-logic-shading/internal/shading"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// memJournal is an in-memory journal.Repository.
type memJournal struct {
	entries []journal.Entry
	filter  journal.Filter
	before  time.Time
}

func (j *memJournal) Record(_ context.Context, e *journal.Entry) error {
	j.entries = append(j.entries, *e)
	return nil
}

func (j *memJournal) List(_ context.Context, f journal.Filter) (*journal.ListResult, error) {
	j.filter = f
	return &journal.ListResult{Entries: j.entries, Total: len(j.entries), Limit: f.Limit, Offset: f.Offset}, nil
}

func (j *memJournal) Prune(_ context.Context, before time.Time) (int64, error) {
	j.before = before
	return 3, nil
}

type fakeBroker struct{ connected bool }

func (b fakeBroker) IsConnected() bool { return b.connected }

// testServer creates a Server over a running shading manager with the
// blinds "office" (winter mode) and "kitchen".
func testServer(t *testing.T) (*Server, *memJournal) {
	t.Helper()

	log := logging.Discard()
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, log)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	mgr, err := shading.NewManager(shading.Options{
		Shading:  config.ShadingConfig{QueueSize: 8, TopicPrefix: "graylogic/shading"},
		Site:     config.SiteConfig{ID: "site-test", Location: config.LocationConfig{Latitude: 51.5, Longitude: -0.1}},
		Location: time.UTC,
		Blinds: []blind.Config{
			{Name: "office", Sun: blind.SunConfig{
				Mode:   blind.SunWinter,
				Window: blind.WindowConfig{AzimuthStart: 90, AzimuthEnd: 270, Top: 2, Bottom: 0},
			}},
			{Name: "kitchen"},
		},
		Sink:   shading.NewHubSink(hub),
		Logger: log,
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	mgr.Start(context.Background())
	t.Cleanup(mgr.Stop)

	j := &memJournal{}
	srv, err := New(Deps{
		Config: config.APIConfig{Host: "127.0.0.1", Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5}},
		WS:     config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: testSecret, AccessTokenTTL: 15},
		},
		Metrics:     config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Logger:      log,
		Shading:     mgr,
		Journal:     j,
		MQTT:        fakeBroker{connected: true},
		Stats:       metrics.New(),
		ExternalHub: hub,
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, j
}

func token(t *testing.T, role auth.Role) string {
	t.Helper()
	tok, err := auth.GenerateAccessToken("tester", role, testSecret, 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	return tok
}

// do sends a request through the full router.
func do(t *testing.T, srv *Server, method, path, body string, role auth.Role) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, role))
	}
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %s: %v", rec.Body.String(), err)
	}
	return v
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("New() without shading manager should fail")
	}
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	rec := do(t, srv, http.MethodGet, "/api/v1/health", "", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "ok" || body["blinds"] != 2.0 || body["version"] != "test" {
		t.Errorf("health = %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestAuth(t *testing.T) {
	srv, _ := testServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		role   auth.Role
		header string
		want   int
	}{
		{name: "no token", method: http.MethodGet, path: "/api/v1/blinds", want: http.StatusUnauthorized},
		{name: "garbage token", method: http.MethodGet, path: "/api/v1/blinds", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "basic scheme", method: http.MethodGet, path: "/api/v1/blinds", header: "Basic YWRtaW46YWRtaW4=", want: http.StatusUnauthorized},
		{name: "viewer reads", method: http.MethodGet, path: "/api/v1/blinds", role: auth.RoleViewer, want: http.StatusOK},
		{name: "viewer cannot operate", method: http.MethodPut, path: "/api/v1/blinds/kitchen/override", body: `{"level":40}`, role: auth.RoleViewer, want: http.StatusForbidden},
		{name: "operator cannot prune", method: http.MethodPost, path: "/api/v1/journal/prune", body: `{"older_than":"24h"}`, role: auth.RoleOperator, want: http.StatusForbidden},
		{name: "operator reads journal", method: http.MethodGet, path: "/api/v1/journal", role: auth.RoleOperator, want: http.StatusOK},
		{name: "admin system", method: http.MethodGet, path: "/api/v1/system", role: auth.RoleAdmin, want: http.StatusOK},
		{name: "viewer system", method: http.MethodGet, path: "/api/v1/system", role: auth.RoleViewer, want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			switch {
			case tt.header != "":
				req.Header.Set("Authorization", tt.header)
			case tt.role != "":
				req.Header.Set("Authorization", "Bearer "+token(t, tt.role))
			}
			rec := httptest.NewRecorder()
			srv.buildRouter().ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestListAndGetBlinds(t *testing.T) {
	srv, _ := testServer(t)

	rec := do(t, srv, http.MethodGet, "/api/v1/blinds", "", auth.RoleViewer)
	list := decode[struct {
		Blinds []shading.Snapshot `json:"blinds"`
		Count  int                `json:"count"`
	}](t, rec)
	if list.Count != 2 || list.Blinds[0].Name != "kitchen" || list.Blinds[1].Name != "office" {
		t.Errorf("blinds = %+v", list)
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/blinds/office", "", auth.RoleViewer)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET office status = %d", rec.Code)
	}
	if snap := decode[shading.Snapshot](t, rec); snap.Name != "office" {
		t.Errorf("snapshot name = %q", snap.Name)
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/blinds/garage", "", auth.RoleViewer)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown blind status = %d, want 404", rec.Code)
	}
}

func TestGetBlindConfig(t *testing.T) {
	srv, _ := testServer(t)

	rec := do(t, srv, http.MethodGet, "/api/v1/blinds/office/config", "", auth.RoleViewer)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	body := decode[map[string]any](t, rec)
	if body["name"] != "office" || body["sunMode"] != "winter" {
		t.Errorf("config = %v", body)
	}
}

func TestSetAndResetOverride(t *testing.T) {
	srv, _ := testServer(t)

	rec := do(t, srv, http.MethodPut, "/api/v1/blinds/kitchen/override", `{"level":40,"priority":2,"expire":"30m"}`, auth.RoleOperator)
	if rec.Code != http.StatusOK {
		t.Fatalf("override status = %d (%s)", rec.Code, rec.Body.String())
	}
	resp := decode[decisionResponse](t, rec)
	if resp.Control.Level == nil || *resp.Control.Level != 40 {
		t.Fatalf("level = %v, want 40", resp.Control.Level)
	}
	if !resp.Control.Override.Active || resp.Control.Override.Priority != 2 {
		t.Errorf("override = %+v", resp.Control.Override)
	}
	if resp.Status.Fill != blind.FillBlue {
		t.Errorf("status fill = %q, want blue", resp.Status.Fill)
	}

	// Priority 1 does not clear a priority 2 override.
	rec = do(t, srv, http.MethodDelete, "/api/v1/blinds/kitchen/override?priority=1", "", auth.RoleOperator)
	if resp := decode[decisionResponse](t, rec); !resp.Control.Override.Active {
		t.Error("low-priority reset cleared the override")
	}

	rec = do(t, srv, http.MethodDelete, "/api/v1/blinds/kitchen/override", "", auth.RoleOperator)
	resp = decode[decisionResponse](t, rec)
	if resp.Control.Override.Active || *resp.Control.Level != 100 {
		t.Errorf("after reset override = %+v level = %v", resp.Control.Override, *resp.Control.Level)
	}
}

func TestSetOverride_Invalid(t *testing.T) {
	srv, _ := testServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing level", `{"priority":1}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
		{"bad expire", `{"level":10,"expire":"soon"}`, http.StatusBadRequest},
		{"level out of range", `{"level":150}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPut, "/api/v1/blinds/kitchen/override", tt.body, auth.RoleOperator)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestPostEvent(t *testing.T) {
	srv, _ := testServer(t)

	tests := []struct {
		name string
		body string
		want float64
	}{
		{"full message", `{"topic":"levelOverwrite","payload":30}`, 30},
		{"bare payload object", `{"level":25}`, 25},
		{"reset", `{"payload":{"reset":true}}`, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/v1/blinds/kitchen/events", tt.body, auth.RoleOperator)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
			}
			resp := decode[decisionResponse](t, rec)
			if resp.Control.Level == nil || *resp.Control.Level != tt.want {
				t.Errorf("level = %v, want %v", resp.Control.Level, tt.want)
			}
		})
	}

	// A rejected level is reported, not failed.
	rec := do(t, srv, http.MethodPost, "/api/v1/blinds/kitchen/events", `{"level":-5}`, auth.RoleOperator)
	if resp := decode[decisionResponse](t, rec); rec.Code != http.StatusOK || resp.Rejected == "" {
		t.Errorf("rejected event = %d %+v", rec.Code, resp)
	}
}

func TestSetMode(t *testing.T) {
	srv, _ := testServer(t)

	rec := do(t, srv, http.MethodPut, "/api/v1/blinds/office/mode", `{"mode":"off"}`, auth.RoleOperator)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	if resp := decode[decisionResponse](t, rec); resp.Control.Mode != blind.SunOff {
		t.Errorf("mode = %v, want off", resp.Control.Mode)
	}

	rec = do(t, srv, http.MethodPut, "/api/v1/blinds/office/mode", `{"mode":"summer"}`, auth.RoleOperator)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("mode above maximum status = %d, want 422", rec.Code)
	}

	rec = do(t, srv, http.MethodPut, "/api/v1/blinds/office/mode", `{"mode":"spring"}`, auth.RoleOperator)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown mode status = %d, want 400", rec.Code)
	}
}

func TestJournal(t *testing.T) {
	srv, j := testServer(t)
	j.entries = []journal.Entry{{ID: "a", Blind: "office", Changed: true}}

	rec := do(t, srv, http.MethodGet, "/api/v1/journal?blind=office&changed=true&limit=10&since=2024-06-21T00:00:00Z", "", auth.RoleViewer)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	if j.filter.Blind != "office" || !j.filter.ChangedOnly || j.filter.Limit != 10 || j.filter.Since.IsZero() {
		t.Errorf("filter = %+v", j.filter)
	}
	if res := decode[journal.ListResult](t, rec); res.Total != 1 || res.Entries[0].ID != "a" {
		t.Errorf("result = %+v", res)
	}

	for _, q := range []string{"since=yesterday", "changed=maybe", "limit=-1"} {
		rec = do(t, srv, http.MethodGet, "/api/v1/journal?"+q, "", auth.RoleViewer)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", q, rec.Code)
		}
	}
}

func TestPruneJournal(t *testing.T) {
	srv, j := testServer(t)

	rec := do(t, srv, http.MethodPost, "/api/v1/journal/prune", `{"before":"2024-01-01T00:00:00Z"}`, auth.RoleAdmin)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	if !j.before.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("pruned before %v", j.before)
	}
	if body := decode[map[string]any](t, rec); body["deleted"] != 3.0 {
		t.Errorf("body = %v", body)
	}

	for _, body := range []string{`{}`, `{"older_than":"-1h"}`, `{"before":"2024-01-01T00:00:00Z","older_than":"1h"}`} {
		rec = do(t, srv, http.MethodPost, "/api/v1/journal/prune", body, auth.RoleAdmin)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", body, rec.Code)
		}
	}
}

func TestAstro(t *testing.T) {
	srv, _ := testServer(t)

	rec := do(t, srv, http.MethodGet, "/api/v1/astro/sun?at=2024-06-21T12:00:00Z", "", auth.RoleViewer)
	sun := decode[map[string]any](t, rec)
	if alt, _ := sun["altitudeDegrees"].(float64); alt < 55 || alt > 65 {
		t.Errorf("midsummer noon altitude in London = %v", sun["altitudeDegrees"])
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/astro/times?date=2024-06-21", "", auth.RoleViewer)
	times := decode[struct {
		Date   string     `json:"date"`
		Events []sunEvent `json:"events"`
	}](t, rec)
	if times.Date != "2024-06-21" || len(times.Events) == 0 {
		t.Fatalf("times = %+v", times)
	}
	for i := 1; i < len(times.Events); i++ {
		if times.Events[i].Time.Before(times.Events[i-1].Time) {
			t.Errorf("events not ordered: %v before %v", times.Events[i], times.Events[i-1])
		}
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/astro/moon", "", auth.RoleViewer)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "illumination") {
		t.Errorf("moon = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/astro/sun?at=noon", "", auth.RoleViewer)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad at status = %d, want 400", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := testServer(t)
	do(t, srv, http.MethodGet, "/api/v1/health", "", "")

	rec := do(t, srv, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `route="/health"`) {
		t.Error("request metrics missing the health route")
	}
}

func TestSystemStatus(t *testing.T) {
	srv, _ := testServer(t)

	rec := do(t, srv, http.MethodGet, "/api/v1/system", "", auth.RoleAdmin)
	status := decode[SystemStatus](t, rec)
	if status.Blinds.Total != 2 || !status.MQTT.Connected || status.Runtime.Goroutines == 0 {
		t.Errorf("status = %+v", status)
	}
}

func TestHealthCheck(t *testing.T) {
	srv, _ := testServer(t)
	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() before Start = %v", err)
	}
}
