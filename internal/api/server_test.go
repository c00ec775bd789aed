package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/toll-telemetry/ingester/internal/db"
	"github.com/toll-telemetry/ingester/internal/ingest"
)

type staticStatus ingest.Status

func (s staticStatus) Status() ingest.Status { return ingest.Status(s) }

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func newTestRouter(t *testing.T, status ingest.Status, store Pinger) (http.Handler, *db.DB) {
	t.Helper()
	database, err := db.Connect(filepath.Join(t.TempDir(), "toll.db"), zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.EnsureSchema(context.Background()))

	if store == nil {
		store = database.Conn()
	}
	return NewRouter(staticStatus(status), database, store, []string{"http://localhost:5173"}, zap.NewNop().Sugar()), database
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetStatus(t *testing.T) {
	h, _ := newTestRouter(t, ingest.Status{
		Mode:            ingest.ModeContinuous,
		Day:             "2018-01-02",
		State:           ingest.StateSleeping,
		Cursor:          42,
		BufferedWindows: 5,
		Cycles:          3,
	}, nil)

	rec := get(t, h, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "continuous", body["mode"])
	assert.Equal(t, "sleeping", body["state"])
	assert.Equal(t, float64(42), body["cursor"])
	assert.Equal(t, float64(5), body["bufferedWindows"])
}

func TestGetHealth(t *testing.T) {
	h, _ := newTestRouter(t, ingest.Status{}, nil)
	rec := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"connected"`)

	down, _ := newTestRouter(t, ingest.Status{}, pingFunc(func(context.Context) error { return errors.New("locked") }))
	rec = get(t, down, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "locked")
}

func TestGetRuns(t *testing.T) {
	h, database := newTestRouter(t, ingest.Status{}, nil)
	ctx := context.Background()

	runID, err := database.StartRun(ctx, "2018-01-01", "batch", time.Date(2018, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, database.CommitCursor(ctx, runID, 8))

	rec := get(t, h, "/api/runs/2018-01-01")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []db.Run
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].RunID)
	assert.Equal(t, int64(8), runs[0].LastCursor)
	assert.Equal(t, db.RunRunning, runs[0].Status)

	rec = get(t, h, "/api/runs/2018-01-05")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = get(t, h, "/api/runs/yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestRouter(t, ingest.Status{}, nil)
	rec := get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestCORS(t *testing.T) {
	h, _ := newTestRouter(t, ingest.Status{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewServer("127.0.0.1:0", http.NotFoundHandler(), zap.NewNop().Sugar())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
