package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/backtest/internal/engine"
	"github.com/seantiz/backtest/internal/model"
	"github.com/seantiz/backtest/internal/runner"
	"github.com/seantiz/backtest/internal/store"
)

const (
	// Multipart field names.
	fieldData   = "data"
	fieldConfig = "config"

	maxConfigSize = 64 << 10
	maxBodySize   = 1 << 20
)

var uploadExtRe = regexp.MustCompile(`^\.[A-Za-z0-9]{1,8}$`)

// batchErrorResponse is the 500 body for a run whose output was unusable.
type batchErrorResponse struct {
	Error    string `json:"error"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// errBadUpload marks request problems that map to 400.
var errBadUpload = errors.New("bad upload")

func (s *Server) handleCreateBacktest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	path, rawConfig, err := s.receiveUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			s.writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
		case errors.Is(err, errBadUpload):
			s.writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("receive upload", "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to receive upload")
		}
		return
	}

	params, err := s.decodeBatchParams(rawConfig)
	if err != nil {
		os.Remove(path)
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The run can take longer than the server's write timeout.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("lift write deadline for batch run", "error", err)
	}

	out, err := s.engine.RunBatch(r.Context(), engine.BatchRequest{DatasetPath: path, Params: params})
	if err != nil {
		var parseErr *engine.OutputParseError
		var launchErr *runner.LaunchError
		switch {
		case errors.As(err, &parseErr):
			s.writeJSON(w, http.StatusInternalServerError, batchErrorResponse{
				Error:    "computation output could not be parsed",
				Stdout:   string(parseErr.Stdout),
				Stderr:   string(parseErr.Stderr),
				ExitCode: parseErr.ExitCode,
			})
		case errors.As(err, &launchErr):
			s.writeError(w, http.StatusInternalServerError, "failed to launch computation: "+launchErr.Error())
		default:
			s.logger.Error("run batch", "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to store result")
		}
		return
	}

	s.writeJSON(w, http.StatusOK, withBacktestID(out.Document, out.ID))
}

// receiveUpload streams the dataset part to a file in the upload directory
// and returns its path along with the raw config field. The file is removed
// again if the request turns out to be unusable.
func (s *Server) receiveUpload(r *http.Request) (path string, config []byte, err error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return "", nil, fmt.Errorf("%w: expected multipart/form-data", errBadUpload)
	}
	defer func() {
		if err != nil && path != "" {
			os.Remove(path)
			path = ""
		}
	}()

	for {
		part, perr := mr.NextPart()
		if perr == io.EOF {
			break
		}
		if perr != nil {
			return path, nil, fmt.Errorf("read multipart: %w", perr)
		}

		switch part.FormName() {
		case fieldData:
			if path != "" {
				return path, nil, fmt.Errorf("%w: more than one %q file", errBadUpload, fieldData)
			}
			path, err = s.saveUpload(part)
			if err != nil {
				return path, nil, err
			}
		case fieldConfig:
			config, err = io.ReadAll(io.LimitReader(part, maxConfigSize))
			if err != nil {
				return path, nil, fmt.Errorf("read config field: %w", err)
			}
		}
		part.Close()
	}

	if path == "" {
		return "", nil, fmt.Errorf("%w: missing %q file", errBadUpload, fieldData)
	}
	return path, config, nil
}

func (s *Server) saveUpload(part *multipart.Part) (string, error) {
	ext := filepath.Ext(part.FileName())
	if !uploadExtRe.MatchString(ext) {
		ext = ""
	}
	f, err := os.CreateTemp(s.opts.UploadDir, "upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(f, part); err != nil {
		f.Close()
		return f.Name(), fmt.Errorf("write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		return f.Name(), fmt.Errorf("write upload: %w", err)
	}
	return f.Name(), nil
}

// decodeBatchParams parses the config field. Batch runs require every
// configured parameter.
func (s *Server) decodeBatchParams(raw []byte) (model.Params, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: missing %q field", model.ErrMalformedInput, fieldConfig)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("%w: %q must be a JSON object", model.ErrMalformedInput, fieldConfig)
	}
	values, err := model.DecodeValues(fields)
	if err != nil {
		return nil, err
	}
	return model.ResolveParams(s.engine.Params(), values, false)
}

// withBacktestID adds the identifier to an object document. Documents that
// are not objects are wrapped.
func withBacktestID(doc json.RawMessage, id string) any {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil || fields == nil {
		return map[string]any{"result": doc, "backtestId": id}
	}
	idJSON, _ := json.Marshal(id)
	fields["backtestId"] = idJSON
	return fields
}

func (s *Server) handleListBacktests(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", 0)

	summaries := []model.Summary{}
	for sum, err := range store.Summaries(r.Context(), s.store, s.logger) {
		if err != nil {
			s.logger.Error("list results", "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to list backtests")
			return
		}
		summaries = append(summaries, sum)
		if limit > 0 && len(summaries) == limit {
			break
		}
	}

	s.writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetBacktest(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.lookupResult(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}

func (s *Server) handleDownloadBacktest(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.lookupResult(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".json"))
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}

// lookupResult fetches the result named in the URL, writing the error
// response itself when it cannot.
func (s *Server) lookupResult(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	id := chi.URLParam(r, "id")

	doc, err := s.store.GetResult(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "backtest not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("get result", "backtest_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get backtest")
		return nil, false
	}
	return doc, true
}
