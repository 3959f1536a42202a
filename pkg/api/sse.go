package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/psaab/panpol/pkg/logging"
)

// setSSEHeaders configures the response for Server-Sent Events streaming.
func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// writeSSEEvent writes a single SSE event to the response.
func writeSSEEvent(w http.ResponseWriter, id string, event string, data string) {
	fmt.Fprintf(w, "id: %s\n", id)
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// eventStreamHandler streams compile events via SSE.
// Supports ?level= and ?term= filters and ?replay=N to resend the most
// recent N buffered events before live ones.
func (s *Server) eventStreamHandler(w http.ResponseWriter, r *http.Request) {
	if s.eventBuf == nil {
		writeError(w, http.StatusServiceUnavailable, "event buffer not available")
		return
	}

	filter := logging.EventFilter{
		Level: r.URL.Query().Get("level"),
		Term:  r.URL.Query().Get("term"),
	}
	replay, err := queryInt(r, "replay", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	setSSEHeaders(w)

	sub := s.eventBuf.Subscribe(128)
	defer sub.Close()

	// Replay is newest-first in the buffer; send oldest first so the
	// client sees increasing sequence numbers.
	var lastSeq uint64
	if replay > 0 {
		past := s.eventBuf.LatestFiltered(replay, filter)
		for i := len(past) - 1; i >= 0; i-- {
			sendSSEEvent(w, past[i])
			lastSeq = past[i].Seq
		}
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub.C:
			if ev.Seq <= lastSeq {
				continue
			}
			if !filter.Matches(&ev) {
				continue
			}
			sendSSEEvent(w, ev)
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, ev logging.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	writeSSEEvent(w, strconv.FormatUint(ev.Seq, 10), "compile", string(data))
}
