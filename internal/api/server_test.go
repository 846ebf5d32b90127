package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/statforge/statscrape/internal/chaos"
	"github.com/statforge/statscrape/internal/checkpoint"
	"github.com/statforge/statscrape/internal/health"
	"github.com/statforge/statscrape/internal/resilience"
)

func newTestServer(t *testing.T) (*Server, *health.Metrics, *checkpoint.Checkpoint) {
	t.Helper()
	metrics := health.NewMetrics()
	ckpt := checkpoint.New(filepath.Join(t.TempDir(), "checkpoint.json"))
	breaker := resilience.New(5, time.Minute)
	srv := NewServer("run-1", metrics, ckpt, breaker, chaos.NewExperiment(), zap.NewNop())
	return srv, metrics, ckpt
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestStatusReportsRunState(t *testing.T) {
	srv, metrics, ckpt := newTestServer(t)
	metrics.RecordRequest(true, 120*time.Millisecond)
	metrics.RecordRequest(false, 0)
	ckpt.MarkCompleted("https://stats.example.com/a", "a.html")
	ckpt.MarkFailed("https://stats.example.com/b", "b.html", "http_500")
	ckpt.MarkSkipped("https://stats.example.com/c", "c.html", "exists")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "run-1", resp.RunID)
	require.Equal(t, "closed", resp.BreakerState)
	require.Equal(t, int64(2), resp.Health.TotalRequests)
	require.Equal(t, checkpoint.Counts{Completed: 1, Failed: 1, Skipped: 1}, resp.Checkpoint)
	require.Empty(t, resp.Experiment, "no chaos experiment active")
}

func TestMetricsEndpointServesPrometheusText(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}
