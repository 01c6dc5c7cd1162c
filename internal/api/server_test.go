package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/janovincze/commentsync/internal/api/models"
	"github.com/janovincze/commentsync/internal/config"
	"github.com/janovincze/commentsync/internal/ingest"
	"github.com/janovincze/commentsync/internal/ingest/checkpoint"
	"github.com/janovincze/commentsync/internal/ingest/health"
	"github.com/janovincze/commentsync/internal/ingest/run"
	"github.com/janovincze/commentsync/internal/ingest/sink"
	"github.com/janovincze/commentsync/internal/ingest/source"
)

type testEnv struct {
	server *Server
	store  *checkpoint.MemoryStore
	sink   *sink.Memory
	runner *run.Runner
}

func newTestServer(t *testing.T, src source.Source) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	cfg := &config.Config{
		Version:     "0.1.0-test",
		Environment: "test",
		API: config.APIConfig{
			ListenAddr:   ":0",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		Metrics: config.MetricsConfig{Enabled: true},
	}

	store := checkpoint.NewMemoryStore()
	manager := checkpoint.NewManager(store, checkpoint.DefaultKeys(), logger)
	snk := sink.NewMemory(sink.Limits{MaxRecords: 100})
	runner := run.NewRunner(run.NewController(src, manager, snk, run.Config{}, logger), logger)

	hm := health.NewManager(time.Second, logger)
	hm.Register(health.NewPingChecker("checkpoint_store", manager.Ping))
	hm.Register(health.NewRunChecker(runner))

	serverCfg := DefaultServerConfig(cfg, logger)
	serverCfg.Runs = runner
	serverCfg.Checkpoints = manager
	serverCfg.HealthManager = hm
	serverCfg.Gatherer = prometheus.NewRegistry()

	s := NewServer(serverCfg)
	t.Cleanup(func() { s.cancel() })

	return &testEnv{server: s, store: store, sink: snk, runner: runner}
}

func (e *testEnv) do(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	e.server.Router().ServeHTTP(w, req)
	return w
}

func TestServer_HealthEndpoints(t *testing.T) {
	env := newTestServer(t, source.NewScripted())

	tests := []struct {
		path   string
		status string
	}{
		{path: "/health", status: "healthy"},
		{path: "/health/live", status: "alive"},
		{path: "/health/ready", status: "ready"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := env.do(http.MethodGet, tt.path)
			if w.Code != http.StatusOK {
				t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
			}

			var response struct {
				Status string `json:"status"`
			}
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if response.Status != tt.status {
				t.Errorf("expected status '%s', got '%s'", tt.status, response.Status)
			}
		})
	}
}

func TestServer_VersionEndpoint(t *testing.T) {
	env := newTestServer(t, source.NewScripted())

	w := env.do(http.MethodGet, "/api/v1/version")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response models.VersionResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Version != "0.1.0-test" {
		t.Errorf("expected version '0.1.0-test', got '%s'", response.Version)
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	env := newTestServer(t, source.NewScripted())

	w := env.do(http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
}

func TestServer_TriggerRunNoVideos(t *testing.T) {
	env := newTestServer(t, source.NewScripted())

	w := env.do(http.MethodPost, "/api/v1/runs")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var response models.RunResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Message != run.MessageNoVideos {
		t.Errorf("expected message '%s', got '%s'", run.MessageNoVideos, response.Message)
	}
	if writes := env.store.Writes(); len(writes) != 0 {
		t.Errorf("expected no checkpoint writes, got %v", writes)
	}
	if calls := env.sink.Calls(); calls != 0 {
		t.Errorf("expected no sink calls, got %d", calls)
	}
}

func TestServer_TriggerRunThenInspect(t *testing.T) {
	src := source.NewScripted("vidA", "vidB").
		AddPage("vidA", "", ingest.Page{
			Comments:   []ingest.Comment{{ID: "a1", VideoID: "vidA", Payload: json.RawMessage(`{"id":"a1"}`)}},
			NextCursor: "tokA2",
		}).
		AddPage("vidB", "", ingest.Page{
			Comments: []ingest.Comment{{ID: "b1", VideoID: "vidB", Payload: json.RawMessage(`{"id":"b1"}`)}},
		})
	env := newTestServer(t, src)

	w := env.do(http.MethodPost, "/api/v1/runs")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	var runResp models.RunResponse
	if err := json.NewDecoder(w.Body).Decode(&runResp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if runResp.Message != "Fetched and processed comments from 2 videos" {
		t.Errorf("unexpected message '%s'", runResp.Message)
	}

	w = env.do(http.MethodGet, "/api/v1/checkpoints")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var cp models.CheckpointsResponse
	if err := json.NewDecoder(w.Body).Decode(&cp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if cp.Progress.Cursor("vidA") != "tokA2" || cp.Pending != 1 {
		t.Errorf("unexpected progress %v", cp.Progress)
	}
	if !strings.HasSuffix(cp.LastFetched, "Z") {
		t.Errorf("expected UTC watermark, got '%s'", cp.LastFetched)
	}

	w = env.do(http.MethodGet, "/api/v1/runs/last")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
}

func TestServer_TriggerRunFailure(t *testing.T) {
	src := source.NewScripted().FailList(context.DeadlineExceeded)
	env := newTestServer(t, src)

	w := env.do(http.MethodPost, "/api/v1/runs")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}

	var pd models.ProblemDetails
	if err := json.NewDecoder(w.Body).Decode(&pd); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if pd.Type != models.ErrorTypeRunFailed || pd.RunID == "" {
		t.Errorf("unexpected problem %+v", pd)
	}

	// The failed run degrades health but the store is still reachable.
	w = env.do(http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var hr models.HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&hr); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if hr.Status != "degraded" {
		t.Errorf("expected status 'degraded', got '%s'", hr.Status)
	}
}

func TestServer_NotFound(t *testing.T) {
	env := newTestServer(t, source.NewScripted())

	if w := env.do(http.MethodGet, "/api/v1/nonexistent"); w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestServer_RequestIDHeader(t *testing.T) {
	env := newTestServer(t, source.NewScripted())

	w := env.do(http.MethodGet, "/health")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}
