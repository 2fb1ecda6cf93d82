package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func postStream(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/v1/streams", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /v1/streams: %v", err)
	}
	return resp
}

func TestStartStream(t *testing.T) {
	dataDir := t.TempDir()
	writeFile(t, dataDir, "prices.csv", "a,b\n")
	srv := newTestServer(t, `echo '{"type":"price_update"}'`, withDataDir(dataDir))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postStream(t, ts, `{"dataset": "prices.csv", "params": {"rr_target": "2.5"}}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var body startStreamResponse
	decodeBody(t, resp, &body)
	if body.Status != "streaming initiated" {
		t.Errorf("status = %q", body.Status)
	}
	if body.RunID == "" {
		t.Error("missing run_id")
	}

	srv.engine.Wait()
	if _, err := os.Stat(filepath.Join(dataDir, "prices.csv")); err != nil {
		t.Errorf("named dataset must survive a stream run: %v", err)
	}
}

func TestStartStreamErrors(t *testing.T) {
	dataDir := t.TempDir()
	writeFile(t, dataDir, "prices.csv", "a,b\n")
	if err := os.Mkdir(filepath.Join(dataDir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{"dataset":`, http.StatusBadRequest},
		{"missing dataset", `{"params": {}}`, http.StatusBadRequest},
		{"traversal", `{"dataset": "../prices.csv"}`, http.StatusBadRequest},
		{"absolute", `{"dataset": "/etc/passwd"}`, http.StatusBadRequest},
		{"directory", `{"dataset": "nested"}`, http.StatusBadRequest},
		{"bad param", `{"dataset": "prices.csv", "params": {"rr_target": "high"}}`, http.StatusBadRequest},
		{"unknown dataset", `{"dataset": "missing.csv"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, `echo '{}'`, withDataDir(dataDir))
			ts := httptest.NewServer(srv.Router())
			defer ts.Close()

			resp := postStream(t, ts, tt.body)
			defer resp.Body.Close()

			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if n := srv.engine.ActiveStreams(); n != 0 {
				t.Errorf("ActiveStreams = %d, want 0", n)
			}
		})
	}
}

func TestListDatasets(t *testing.T) {
	dataDir := t.TempDir()
	writeFile(t, dataDir, "b.csv", "")
	writeFile(t, dataDir, "a.csv", "")
	writeFile(t, dataDir, ".hidden", "")
	if err := os.Mkdir(filepath.Join(dataDir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}

	srv := newTestServer(t, "exit 0", withDataDir(dataDir))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/datasets")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var body datasetsResponse
	decodeBody(t, resp, &body)
	if want := []string{"a.csv", "b.csv"}; !slices.Equal(body.Datasets, want) {
		t.Errorf("datasets = %v, want %v", body.Datasets, want)
	}
}

func TestListDatasetsMissingDir(t *testing.T) {
	srv := newTestServer(t, "exit 0", withDataDir(filepath.Join(t.TempDir(), "absent")))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/datasets")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var raw map[string]json.RawMessage
	decodeBody(t, resp, &raw)
	if string(raw["datasets"]) != "[]" {
		t.Errorf("datasets = %s, want []", raw["datasets"])
	}
}
