package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/nerrad567/gray-logic-shading/internal/astro"
)

// sunEvent is one named sun event of a day.
type sunEvent struct {
	Name string    `json:"name"`
	Time time.Time `json:"time"`
}

// handleSun returns the sun position at ?at= (RFC 3339), default now.
func (s *Server) handleSun(w http.ResponseWriter, r *http.Request) {
	at, ok := queryTime(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.shading.Ephemeris().SunPosition(at))
}

// handleSunTimes returns the sun events of ?date= (YYYY-MM-DD in the site
// time zone), default today, ordered by time.
func (s *Server) handleSunTimes(w http.ResponseWriter, r *http.Request) {
	loc := s.shading.Location()
	day := time.Now().In(loc)
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := time.ParseInLocation(time.DateOnly, v, loc)
		if err != nil {
			writeBadRequest(w, "date must be YYYY-MM-DD")
			return
		}
		// Noon keeps the solar day on the requested date.
		day = d.Add(12 * time.Hour)
	}

	times := s.shading.Ephemeris().SunTimes(day)
	events := make([]sunEvent, 0, len(times))
	for name, t := range times {
		events = append(events, sunEvent{Name: name, Time: t.In(loc)})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Time.Before(events[j].Time) })

	writeJSON(w, http.StatusOK, map[string]any{
		"date":     day.Format(time.DateOnly),
		"timezone": loc.String(),
		"events":   events,
	})
}

// handleMoon returns the moon position and illumination at ?at=.
func (s *Server) handleMoon(w http.ResponseWriter, r *http.Request) {
	at, ok := queryTime(w, r)
	if !ok {
		return
	}
	eph := s.shading.Ephemeris()
	writeJSON(w, http.StatusOK, struct {
		Position     astro.MoonPosition     `json:"position"`
		Illumination astro.MoonIllumination `json:"illumination"`
	}{
		Position:     eph.MoonPosition(at),
		Illumination: eph.MoonIllumination(at),
	})
}

// queryTime reads ?at=, writing a 400 when it is malformed.
func queryTime(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	v := r.URL.Query().Get("at")
	if v == "" {
		return time.Now(), true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		writeBadRequest(w, "at must be an RFC 3339 timestamp")
		return time.Time{}, false
	}
	return t, true
}
