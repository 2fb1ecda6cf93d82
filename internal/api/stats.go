package api

import (
	"net/http"

	"github.com/seantiz/backtest/internal/store"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Results       int `json:"results"`
	Subscribers   int `json:"subscribers"`
	ActiveStreams int `json:"active_streams"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	n, err := store.Count(r.Context(), s.store)
	if err != nil {
		s.logger.Error("count results", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Results:       n,
		Subscribers:   s.engine.Hub().Len(),
		ActiveStreams: s.engine.ActiveStreams(),
	})
}
