package adminhttp_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webitel/fsmrun/internal/adminhttp"
	"github.com/webitel/fsmrun/internal/batchsystem"
	"github.com/webitel/fsmrun/internal/fsm"
	"github.com/webitel/fsmrun/internal/mpsc"
)

type demoFsm struct{ fsm.BaseFsm }

func (demoFsm) IsStopped() bool { return false }

type demoControl struct{ fsm.BaseFsm }

func (demoControl) IsStopped() bool { return false }

func TestHealthzReportsHealthyByDefault(t *testing.T) {
	var stateCnt atomic.Int64
	sender, _ := mpsc.LooseBounded[string](1)
	r, _ := batchsystem.CreateSystem[demoFsm, string, demoControl, string](batchsystem.DefaultConfig(), sender, &demoControl{}, &stateCnt)

	srv := adminhttp.New(r, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthzReportsUnhealthyAfterSetHealthy(t *testing.T) {
	var stateCnt atomic.Int64
	sender, _ := mpsc.LooseBounded[string](1)
	r, _ := batchsystem.CreateSystem[demoFsm, string, demoControl, string](batchsystem.DefaultConfig(), sender, &demoControl{}, &stateCnt)

	srv := adminhttp.New(r, nil)
	srv.SetHealthy(false)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTraceReflectsRouterState(t *testing.T) {
	var stateCnt atomic.Int64
	sender, _ := mpsc.LooseBounded[string](1)
	r, _ := batchsystem.CreateSystem[demoFsm, string, demoControl, string](batchsystem.DefaultConfig(), sender, &demoControl{}, &stateCnt)

	srv := adminhttp.New(r, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/trace", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, float64(0), body["alive"])
	require.Equal(t, false, body["shutdown"])
}

func TestMetricsUsesSuppliedSnapshot(t *testing.T) {
	var stateCnt atomic.Int64
	sender, _ := mpsc.LooseBounded[string](1)
	r, _ := batchsystem.CreateSystem[demoFsm, string, demoControl, string](batchsystem.DefaultConfig(), sender, &demoControl{}, &stateCnt)

	srv := adminhttp.New(r, func() map[string]any { return map[string]any{"batches": 3} })
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, float64(3), body["batches"])
}
