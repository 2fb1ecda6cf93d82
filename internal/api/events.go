package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// heartbeatInterval keeps idle event connections from being reaped by
// proxies. Var so tests can shorten it.
var heartbeatInterval = 15 * time.Second

// handleEvents relays every published event to the client as server-sent
// events until the client goes away or the hub shuts down.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	ch, unsub := s.engine.Hub().Subscribe()
	defer unsub()

	live := liveConnections.WithLabelValues("sse")
	live.Inc()
	defer live.Dec()

	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				// Evicted or shutting down.
				return
			}
			if err := writeSSEData(w, string(msg)); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// writeSSEData writes one SSE data event. Multi-line payloads are split so
// that each segment gets its own "data:" prefix.
func writeSSEData(w http.ResponseWriter, data string) error {
	for seg := range strings.SplitSeq(data, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", seg); err != nil {
			return err
		}
	}
	_, err := fmt.Fprint(w, "\n")
	return err
}
