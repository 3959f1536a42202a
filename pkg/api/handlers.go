package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/psaab/panpol/pkg/logging"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Response{Success: false, Error: msg})
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, map[string]string{"status": "ok"})
}

func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Uptime: time.Since(s.startTime).Truncate(time.Second).String(),
	}
	resp.Compiles, resp.Failures = s.store.Counts()
	if res := s.store.Latest(); res != nil {
		resp.LastHash = res.Hash
		resp.LastCompiledAt = res.CompiledAt.Format(time.RFC3339)
		resp.LastDuration = res.Duration.Truncate(time.Microsecond).String()
		resp.LastError = res.Err
		resp.Stats = res.Stats
	}
	writeOK(w, resp)
}

func (s *Server) historyHandler(w http.ResponseWriter, _ *http.Request) {
	results := s.store.History()
	entries := make([]HistoryEntry, len(results))
	for i, res := range results {
		entries[i] = HistoryEntry{
			Index:     i,
			Hash:      res.Hash,
			Timestamp: res.CompiledAt.Format(time.RFC3339),
			Error:     res.Err,
			Rules:     res.Stats.Rules,
			Stats:     res.Stats,
		}
	}
	writeOK(w, entries)
}

// historyDiffHandler diffs two history entries. ?a= and ?b= are history
// indexes (0 = latest); the default compares the previous run against
// the latest.
func (s *Server) historyDiffHandler(w http.ResponseWriter, r *http.Request) {
	a, err := queryInt(r, "a", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, err := queryInt(r, "b", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	diff, err := s.store.Diff(a, b)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeOK(w, TextResponse{Output: diff})
}

// eventsHandler returns recent compile events, newest first.
// Supports ?limit=, ?level= and ?term= filters.
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	if s.eventBuf == nil {
		writeError(w, http.StatusServiceUnavailable, "event buffer not available")
		return
	}

	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := logging.EventFilter{
		Level: r.URL.Query().Get("level"),
		Term:  r.URL.Query().Get("term"),
	}

	var events []logging.Event
	if filter.IsEmpty() {
		events = s.eventBuf.Latest(limit)
	} else {
		events = s.eventBuf.LatestFiltered(limit, filter)
	}
	if events == nil {
		events = []logging.Event{}
	}
	writeOK(w, events)
}

// configHandler serves the most recent successfully rendered document
// as raw XML, suitable for piping straight to a device loader.
func (s *Server) configHandler(w http.ResponseWriter, _ *http.Request) {
	res := s.store.LastGood()
	if res == nil {
		writeError(w, http.StatusNotFound, "no successful compile yet")
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(res.Document))
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
