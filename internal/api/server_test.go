// internal/api/server_test.go
package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/poolwatch/internal/detector"
	"github.com/FairForge/poolwatch/internal/logparse"
	"github.com/FairForge/poolwatch/internal/policy"
	"github.com/FairForge/poolwatch/internal/watcher"
	"github.com/FairForge/poolwatch/internal/window"
)

func testServer(t *testing.T) (*Server, *watcher.Monitor) {
	t.Helper()

	agg, err := window.NewAggregator(10)
	require.NoError(t, err)

	engine, err := policy.NewEngine(&policy.Config{
		ErrorRateThreshold: 2.0,
		Cooldown:           time.Minute,
		MinSamples:         10,
		WindowSize:         10,
	}, nil)
	require.NoError(t, err)

	monitor, err := watcher.New(watcher.Options{
		Parser:     logparse.NewParser(nil),
		Aggregator: agg,
		Detector:   detector.NewDetector(),
		Engine:     engine,
	})
	require.NoError(t, err)

	return NewServer(":0", monitor, nil, nil), monitor
}

func TestServer_healthz(t *testing.T) {
	srv, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestServer_status(t *testing.T) {
	srv, monitor := testServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var st watcher.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, logparse.PoolUnknown, st.Pool)
	assert.False(t, st.Maintenance)
	_ = monitor
}

func TestServer_maintenance(t *testing.T) {
	srv, monitor := testServer(t)

	t.Run("enables maintenance", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/api/v1/maintenance", strings.NewReader(`{"enabled":true}`))
		srv.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, monitor.Maintenance())
	})

	t.Run("disables maintenance", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/api/v1/maintenance", strings.NewReader(`{"enabled":false}`))
		srv.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, monitor.Maintenance())
	})

	t.Run("rejects invalid body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/api/v1/maintenance", strings.NewReader(`{`))
		srv.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_alertsWithoutStore(t *testing.T) {
	srv, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_metrics(t *testing.T) {
	srv, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "poolwatch_")
}
