package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"pkt.systems/tabkeeper/internal/logx"
	"pkt.systems/tabkeeper/schema"
)

// StreamEvent is sent to SSE clients.
type StreamEvent struct {
	Seq       uint64                `json:"seq"`
	Event     schema.HierarchyEvent `json:"event"`
	Timestamp time.Time             `json:"timestamp"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	if s.bus == nil {
		writeError(w, http.StatusNotImplemented, errors.New("event stream not configured"))
		return
	}
	win := schema.WindowID(trimmed(r.URL.Query().Get("window")))
	log := logx.WithWindow(r.Context(), win)

	ch, unsubscribe := s.bus.Subscribe(win)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var seq uint64
	log.Info("http stream opened")
	for {
		select {
		case <-r.Context().Done():
			log.Info("http stream closed", "sent", seq)
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			seq++
			if err := writeSSEvent(w, StreamEvent{Seq: seq, Event: event, Timestamp: time.Now()}); err != nil {
				log.Warn("http stream write failed", "err", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEvent(w http.ResponseWriter, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.Seq, event.Event.Type, data); err != nil {
		return err
	}
	return nil
}
