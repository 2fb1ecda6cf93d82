package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/seantiz/backtest/internal/store"
)

const healthProbeTimeout = 2 * time.Second

// healthProbeID is a well-formed result id that is never issued, so a
// healthy store always answers ErrNotFound for it.
const healthProbeID = "healthz"

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
	defer cancel()

	_, err := s.store.GetResult(ctx, healthProbeID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("store health probe", "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Store: "unavailable"})
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Store: "ok"})
}
