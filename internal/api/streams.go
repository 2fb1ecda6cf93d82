package api

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"

	"github.com/seantiz/backtest/internal/engine"
	"github.com/seantiz/backtest/internal/model"
)

// startStreamRequest is the JSON body for POST /v1/streams. Params values
// may be numbers or numeric strings; omitted ones take their defaults.
type startStreamRequest struct {
	Dataset string                     `json:"dataset"`
	Params  map[string]json.RawMessage `json:"params"`
}

type startStreamResponse struct {
	Status string `json:"status"`
	RunID  string `json:"run_id"`
}

type datasetsResponse struct {
	Datasets []string `json:"datasets"`
}

func (s *Server) handleStartStream(w http.ResponseWriter, r *http.Request) {
	var req startStreamRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Dataset == "" {
		s.writeError(w, http.StatusBadRequest, "dataset is required")
		return
	}

	values, err := model.DecodeValues(req.Params)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runID, err := s.engine.StartStream(r.Context(), engine.StreamRequest{Dataset: req.Dataset, Params: values})
	switch {
	case errors.Is(err, model.ErrMalformedInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, engine.ErrDatasetNotFound):
		s.writeError(w, http.StatusNotFound, "dataset not found")
		return
	case err != nil:
		s.logger.Error("start stream", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to start stream")
		return
	}

	s.writeJSON(w, http.StatusAccepted, startStreamResponse{Status: "streaming initiated", RunID: runID})
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	names, err := s.engine.Datasets()
	if errors.Is(err, fs.ErrNotExist) {
		names = nil
	} else if err != nil {
		s.logger.Error("list datasets", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list datasets")
		return
	}
	if names == nil {
		names = []string{}
	}
	s.writeJSON(w, http.StatusOK, datasetsResponse{Datasets: names})
}
