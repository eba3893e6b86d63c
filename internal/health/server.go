// Package health exposes the pipeline's liveness, readiness, Prometheus
// metrics, and debug endpoints over HTTP, for embedding applications that
// want a sidecar-style status surface next to the library.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	agenterrors "github.com/luxardolabs/luxanalytics-go/internal/errors"
	"github.com/luxardolabs/luxanalytics-go/internal/observability"
	"github.com/luxardolabs/luxanalytics-go/pkg/model"
)

// ReadinessChecker reports whether the Pipeline is initialized and able to
// accept track()/flush() calls.
type ReadinessChecker interface {
	IsReady() bool
}

// StatsProvider exposes a point-in-time EventQueue snapshot for debugging.
type StatsProvider interface {
	Stats() model.QueueStats
}

// DiagnosticsProvider exposes the pipeline's currently active, swallowed
// diagnostics (see internal/errors.Collector).
type DiagnosticsProvider interface {
	Active() []agenterrors.Diagnostic
}

// Server exposes health, readiness, metrics, and debug endpoints.
type Server struct {
	httpServer  *http.Server
	metrics     *observability.Metrics
	readiness   ReadinessChecker
	stats       StatsProvider
	diagnostics DiagnosticsProvider
	listener    net.Listener
}

// NewServer creates a new health server on the given port. Pass port=0 to
// let the OS pick a free port (useful for tests). When enableDebug is true,
// pprof and debug endpoints are registered.
func NewServer(port int, metrics *observability.Metrics, readiness ReadinessChecker, stats StatsProvider, diagnostics DiagnosticsProvider, enableDebug bool) *Server {
	s := &Server{
		metrics:     metrics,
		readiness:   readiness,
		stats:       stats,
		diagnostics: diagnostics,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	if enableDebug {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

		mux.HandleFunc("/debug/queue", s.handleDebugQueue)
		mux.HandleFunc("/debug/diagnostics", s.handleDebugDiagnostics)
	}

	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf(":%d", port),
		Handler:        mux,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	return s
}

// Start begins listening and serving HTTP in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("health server listen: %w", err)
	}
	s.listener = ln
	s.httpServer.Addr = ln.Addr().String()

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			_ = err
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ready := s.readiness.IsReady()
	if ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]bool{"ready": ready})
}

func (s *Server) handleDebugQueue(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(s.stats.Stats())
}

func (s *Server) handleDebugDiagnostics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(s.diagnostics.Active())
}
