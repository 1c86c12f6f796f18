// Package adminhttp exposes a small chi-routed operator surface over the
// running FSM runtime: a liveness probe, a Router.Trace snapshot and a
// metrics summary, grounded on the teacher's go-chi handler shape
// (internal/handler/lp/delivery.go).
package adminhttp

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"

	"github.com/webitel/fsmrun/internal/router"
)

// Tracer is the subset of router.Router's API the admin surface needs,
// satisfied structurally by any *router.Router[N, M, C, CM] instantiation
// without adminhttp itself taking on the runtime's type parameters.
type Tracer interface {
	Trace() router.Trace
	IsShutdown() bool
}

// MetricsSnapshot reports whatever summary the caller wants exposed under
// /metrics; nil means an empty object is served.
type MetricsSnapshot func() map[string]any

// Server is the admin HTTP surface: /healthz, /trace, /metrics.
type Server struct {
	mux     chi.Router
	tracer  Tracer
	metrics MetricsSnapshot
	healthy atomic.Bool
}

// New builds a Server routed over tracer's Trace()/IsShutdown(). metrics may
// be nil.
func New(tracer Tracer, metrics MetricsSnapshot) *Server {
	s := &Server{mux: chi.NewRouter(), tracer: tracer, metrics: metrics}
	s.healthy.Store(true)

	s.mux.Get("/healthz", s.handleHealthz)
	s.mux.Get("/trace", s.handleTrace)
	s.mux.Get("/metrics", s.handleMetrics)

	return s
}

// ServeHTTP satisfies http.Handler so Server can be handed directly to
// http.Server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// SetHealthy flips the /healthz verdict, e.g. while a graceful shutdown is
// draining in-flight FSMs.
func (s *Server) SetHealthy(ok bool) { s.healthy.Store(ok) }

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	if !s.healthy.Load() {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleTrace(w http.ResponseWriter, _ *http.Request) {
	trace := s.tracer.Trace()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"alive":    trace.Alive,
		"leak":     trace.Leak,
		"shutdown": s.tracer.IsShutdown(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	snapshot := map[string]any{}
	if s.metrics != nil {
		snapshot = s.metrics()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snapshot)
}
