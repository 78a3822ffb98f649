package metrics

import (
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestMetrics_Exposition(t *testing.T) {
	m := New()

	m.ObserveDecision("office", 8, 40, false, 200*time.Microsecond)
	m.ObserveDecision("office", 1, math.NaN(), true, time.Millisecond)
	m.Rejected("office")
	m.Dropped("hall")
	m.SetSun(35.5, 181)
	m.ButtonPressed("office-up")

	out := scrape(t, m)
	for _, want := range []string{
		`graylogic_shading_decisions_total{blind="office",reason="8"} 1`,
		`graylogic_shading_decisions_total{blind="office",reason="1"} 1`,
		`graylogic_shading_level{blind="office"} 40`,
		`graylogic_shading_override_active{blind="office"} 1`,
		`graylogic_shading_rejected_total{blind="office"} 1`,
		`graylogic_shading_events_dropped_total{blind="hall"} 1`,
		`graylogic_shading_sun_altitude_degrees 35.5`,
		`graylogic_shading_sun_azimuth_degrees 181`,
		`graylogic_shading_button_presses_total{button="office-up"} 1`,
		`graylogic_shading_evaluation_duration_seconds_count 2`,
		`go_goroutines`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestMetrics_WrapHandler(t *testing.T) {
	m := New()
	h := m.WrapHandler("/api/v1/blinds/{name}", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/blinds/attic", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}

	out := scrape(t, m)
	want := `graylogic_shading_http_requests_total{route="/api/v1/blinds/{name}",status="404"} 1`
	if !strings.Contains(out, want) {
		t.Errorf("exposition missing %q", want)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveDecision("office", 0, 1, false, 0)
	m.Rejected("office")
	m.Dropped("office")
	m.SetSun(1, 2)
	m.ButtonPressed("b")

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	rec := httptest.NewRecorder()
	m.WrapHandler("/x", next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("wrapped status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("nil Handler status = %d, want 404", rec.Code)
	}
}

func TestNew_Independent(t *testing.T) {
	a, b := New(), New()
	a.Rejected("office")
	if strings.Contains(scrape(t, b), `rejected_total{blind="office"}`) {
		t.Error("registries share state")
	}
}
