package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-shading/internal/journal"
)

// pruneRequest is the body of POST /journal/prune. Exactly one field is set.
type pruneRequest struct {
	Before    *time.Time `json:"before,omitempty"`
	OlderThan string     `json:"older_than,omitempty"`
}

// handleListJournal returns one page of recorded decisions, newest first.
//
// Query parameters: blind, since, until (RFC 3339), changed (bool),
// limit, offset.
func (s *Server) handleListJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "decision journal is not available")
		return
	}

	f, msg := parseJournalFilter(r)
	if msg != "" {
		writeBadRequest(w, msg)
		return
	}

	result, err := s.journal.List(r.Context(), f)
	if err != nil {
		s.logger.Error("listing journal failed", "error", err)
		writeInternalError(w, "failed to list journal")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// parseJournalFilter reads the query string. A non-empty message describes
// the first invalid parameter.
func parseJournalFilter(r *http.Request) (journal.Filter, string) {
	q := r.URL.Query()
	f := journal.Filter{Blind: q.Get("blind")}

	for _, p := range []struct {
		key string
		dst *time.Time
	}{{"since", &f.Since}, {"until", &f.Until}} {
		if v := q.Get(p.key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return f, p.key + " must be an RFC 3339 timestamp"
			}
			*p.dst = t
		}
	}

	if v := q.Get("changed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, "changed must be true or false"
		}
		f.ChangedOnly = b
	}

	for _, p := range []struct {
		key string
		dst *int
	}{{"limit", &f.Limit}, {"offset", &f.Offset}} {
		if v := q.Get(p.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return f, p.key + " must be a non-negative integer"
			}
			*p.dst = n
		}
	}

	return f, ""
}

// handlePruneJournal deletes entries older than a timestamp or an age.
func (s *Server) handlePruneJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "decision journal is not available")
		return
	}

	var req pruneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	var before time.Time
	switch {
	case req.Before != nil && req.OlderThan != "":
		writeBadRequest(w, "set either before or older_than, not both")
		return
	case req.Before != nil:
		before = *req.Before
	case req.OlderThan != "":
		age, err := time.ParseDuration(req.OlderThan)
		if err != nil || age <= 0 {
			writeBadRequest(w, "older_than must be a positive duration such as 720h")
			return
		}
		before = time.Now().Add(-age)
	default:
		writeBadRequest(w, "before or older_than is required")
		return
	}

	deleted, err := s.journal.Prune(r.Context(), before)
	if err != nil {
		s.logger.Error("pruning journal failed", "error", err)
		writeInternalError(w, "failed to prune journal")
		return
	}

	s.logger.Info("journal pruned", "before", before, "deleted", deleted, "by", claimsFromContext(r.Context()).Subject)
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted": deleted,
		"before":  before.UTC().Format(time.RFC3339),
	})
}
