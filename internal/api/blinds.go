package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-shading/internal/blind"
	"github.com/nerrad567/gray-logic-shading/internal/property"
	"github.com/nerrad567/gray-logic-shading/internal/shading"
)

// apiTopic is the input topic of API events that carry none.
const apiTopic = "api"

// decisionResponse is the response body of every write endpoint.
type decisionResponse struct {
	Blind    string          `json:"blind"`
	Changed  bool            `json:"changed"`
	Status   blind.Status    `json:"status"`
	Control  blind.BlindCtrl `json:"control"`
	Rejected string          `json:"rejected,omitempty"`
}

// blindConfigResponse is the read-only view of one blind's configuration.
type blindConfigResponse struct {
	Name           string             `json:"name"`
	Topic          string             `json:"topic,omitempty"`
	Outputs        int                `json:"outputs"`
	Top            *float64           `json:"levelTop"`
	Bottom         *float64           `json:"levelBottom"`
	Increment      *float64           `json:"increment"`
	OverrideExpire string             `json:"overrideExpire,omitempty"`
	SunMode        blind.SunMode      `json:"sunMode"`
	Window         blind.WindowConfig `json:"window"`
	Oversteers     int                `json:"oversteers"`
	Rules          []ruleSummary      `json:"rules"`
}

type ruleSummary struct {
	Name    string        `json:"name,omitempty"`
	TimeOp  blind.TimeOp  `json:"timeOp"`
	LevelOp blind.LevelOp `json:"levelOp"`
	Timed   bool          `json:"timed"`
	Guarded bool          `json:"conditional"`
}

// overrideRequest is the body of PUT /blinds/{name}/override.
type overrideRequest struct {
	Level    *float64 `json:"level"`
	Priority int      `json:"priority,omitempty"`
	// Expire is a Go duration ("30m"); "0" keeps the override until reset.
	Expire string `json:"expire,omitempty"`
}

// modeRequest is the body of PUT /blinds/{name}/mode.
type modeRequest struct {
	Mode blind.SunMode `json:"mode"`
}

// handleListBlinds returns the last known state of every blind.
func (s *Server) handleListBlinds(w http.ResponseWriter, _ *http.Request) {
	blinds := s.shading.Blinds()
	writeJSON(w, http.StatusOK, map[string]any{
		"blinds": blinds,
		"count":  len(blinds),
	})
}

// handleGetBlind returns the last known state of one blind.
func (s *Server) handleGetBlind(w http.ResponseWriter, r *http.Request) {
	snap, err := s.shading.Blind(chi.URLParam(r, "name"))
	if err != nil {
		writeShadingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleGetBlindConfig returns a summary of the blind's configuration.
func (s *Server) handleGetBlindConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.shading.BlindConfig(chi.URLParam(r, "name"))
	if err != nil {
		writeShadingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configResponse(cfg))
}

func configResponse(cfg blind.Config) blindConfigResponse {
	resp := blindConfigResponse{
		Name:       cfg.Name,
		Topic:      cfg.Topic,
		Outputs:    cfg.Outputs,
		Top:        cfg.Level.Top,
		Bottom:     cfg.Level.Bottom,
		Increment:  cfg.Level.Increment,
		SunMode:    cfg.Sun.Mode,
		Window:     cfg.Sun.Window,
		Oversteers: len(cfg.Oversteer),
		Rules:      make([]ruleSummary, 0, len(cfg.Rules)),
	}
	if cfg.Override.Expire > 0 {
		resp.OverrideExpire = cfg.Override.Expire.String()
	}
	for _, rule := range cfg.Rules {
		resp.Rules = append(resp.Rules, ruleSummary{
			Name:    rule.Name,
			TimeOp:  rule.TimeOp,
			LevelOp: rule.LevelOp,
			Timed:   rule.Time != nil,
			Guarded: rule.Condition != nil,
		})
	}
	return resp
}

// handlePostEvent feeds a raw input message to a blind.
//
// The body is the message object as it would arrive over MQTT, for example
// {"topic": "levelOverwrite", "payload": 40}. A body without "topic" is
// given the topic "api"; a body without "payload" is wrapped as the payload.
func (s *Server) handlePostEvent(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	msg := property.Message(body)
	if _, ok := body["payload"]; !ok {
		msg = property.Message{"payload": body}
		if t, ok := body["topic"]; ok {
			msg["topic"] = t
		}
	}
	if _, ok := msg["topic"]; !ok {
		msg["topic"] = apiTopic
	}

	s.submit(w, r, msg, false)
}

// handleSetOverride sets a manual override.
func (s *Server) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Level == nil {
		writeBadRequest(w, "level is required")
		return
	}

	payload := map[string]any{"level": *req.Level}
	if req.Priority != 0 {
		payload["priority"] = float64(req.Priority)
	}
	if req.Expire != "" {
		d, err := time.ParseDuration(req.Expire)
		if err != nil || d < 0 {
			writeBadRequest(w, "expire must be a non-negative duration such as 30m")
			return
		}
		payload["expire"] = float64(d.Milliseconds())
	}

	s.submit(w, r, property.Message{"topic": apiTopic + "/override", "payload": payload}, true)
}

// handleResetOverride clears the override. An optional ?priority= only
// clears overrides up to that priority.
func (s *Server) handleResetOverride(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{"reset": true}
	if p := r.URL.Query().Get("priority"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			writeBadRequest(w, "priority must be a non-negative integer")
			return
		}
		payload["priority"] = float64(n)
	}

	s.submit(w, r, property.Message{"topic": apiTopic + "/reset", "payload": payload}, false)
}

// handleSetMode switches the sun mode.
func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "mode must be off, winter or summer")
		return
	}

	name := chi.URLParam(r, "name")
	cfg, err := s.shading.BlindConfig(name)
	if err != nil {
		writeShadingError(w, err)
		return
	}
	if req.Mode > cfg.Sun.Mode {
		writeValidationError(w, "mode "+req.Mode.String()+" exceeds the configured maximum "+cfg.Sun.Mode.String())
		return
	}

	s.submit(w, r, property.Message{"topic": apiTopic + "/mode", "payload": map[string]any{"mode": float64(req.Mode)}}, false)
}

// submit runs msg on the blind in the URL and writes the decision. With
// strict set, a rejected level is answered with 422.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, msg property.Message, strict bool) {
	name := chi.URLParam(r, "name")
	res, err := s.shading.Submit(r.Context(), name, msg, shading.SourceAPI)
	if err != nil {
		s.logger.Warn("api event failed", "blind", name, "error", err)
		writeShadingError(w, err)
		return
	}

	if res.Rejected != nil && strict {
		writeValidationError(w, res.Rejected.Error())
		return
	}

	resp := decisionResponse{
		Blind:   name,
		Changed: res.Changed,
		Status:  res.Status,
		Control: res.Control,
	}
	if res.Rejected != nil {
		resp.Rejected = res.Rejected.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
