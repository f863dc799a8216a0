package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skobkin/rtsstop-web/internal/config"
	"github.com/skobkin/rtsstop-web/internal/monitor"
	"github.com/skobkin/rtsstop-web/internal/selector"
	"github.com/skobkin/rtsstop-web/internal/version"
)

const readHeaderTimeout = 5 * time.Second

// Server exposes the monitor over HTTP and WebSocket.
type Server struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	monitor    *monitor.Monitor

	ws         wsCounters
	requestIDs atomic.Uint64
}

// New assembles a Server with its handlers. mon may be nil, in which case
// state endpoints report the service as unavailable.
func New(cfg config.Config, logger *slog.Logger, mon *monitor.Monitor) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		monitor: mon,
	}
	if cfg.WS.MaxClients > 0 {
		s.ws.limit = int64(cfg.WS.MaxClients)
	}

	mux := http.NewServeMux()
	for _, prefix := range []string{"", "/api"} {
		mux.HandleFunc(prefix+"/healthz", s.handleHealthz)
		mux.HandleFunc(prefix+"/readyz", s.handleReadyz)
		mux.HandleFunc(prefix+"/version", s.handleVersion)
	}
	mux.HandleFunc("/api", s.handleAPIDocs)
	mux.HandleFunc("/api/", s.handleAPIDocs)
	mux.HandleFunc("/api/state", s.monitorJSON(func(m *monitor.Monitor) any {
		return m.Latest()
	}))
	mux.HandleFunc("/api/candidates", s.monitorJSON(func(m *monitor.Monitor) any {
		if candidates := m.Candidates(); candidates != nil {
			return candidates
		}
		return []selector.Candidate{}
	}))
	mux.HandleFunc("/api/stats", s.monitorJSON(func(m *monitor.Monitor) any {
		return m.Stats()
	}))
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/", s.staticHandler())

	if cfg.EnablePrometheus {
		s.registerPrometheus(mux)
	}
	if cfg.EnablePprof {
		registerPprof(mux)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.withRequestLogging(mux),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return s
}

// Start begins serving HTTP until shutdown is requested.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("listener stopped")
	return nil
}

// Shutdown attempts a graceful shutdown within the supplied context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	info := s.readiness()
	statusCode := http.StatusOK
	if info.Status != "ok" {
		statusCode = http.StatusServiceUnavailable
	}
	s.writeJSON(w, r, statusCode, info)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	s.writeJSON(w, r, http.StatusOK, version.Current())
}

func (s *Server) handleAPIDocs(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	if r.URL.Path != "/api" && r.URL.Path != "/api/" {
		http.NotFound(w, r)
		return
	}

	logger := s.loggerFromContext(r.Context())
	data, err := embeddedAssets.ReadFile("assets/api.html")
	if err != nil {
		logger.Error("failed to read api docs asset", "err", err)
		http.Error(w, "missing api docs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(data); err != nil {
		logger.Warn("failed to write api docs response", "err", err)
	}
}

// monitorJSON serves a live view of the monitor. Responses are never cached
// since overlays poll them at frame-rate cadence.
func (s *Server) monitorJSON(view func(*monitor.Monitor) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		if s.monitor == nil {
			http.Error(w, "monitor unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		s.writeJSON(w, r, http.StatusOK, view(s.monitor))
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.loggerFromContext(r.Context()).Error("failed to encode response", "err", err)
	}
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet {
		return true
	}
	w.Header().Set("Allow", http.MethodGet)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func (s *Server) registerPrometheus(mux *http.ServeMux) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(s.ws.collectors()...)
	if c := newMonitorCollector(s.monitor); c != nil {
		registry.MustRegister(c)
	}

	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}

func registerPprof(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}

type readyResponse struct {
	Status     string `json:"status"`
	Region     string `json:"region,omitempty"`
	Monitoring bool   `json:"monitoring"`
	Reason     string `json:"reason,omitempty"`
}

func (s *Server) readiness() readyResponse {
	switch {
	case s.monitor == nil:
		return readyResponse{Status: "degraded", Reason: "monitor_not_configured"}
	case !s.monitor.Ready():
		return readyResponse{Status: "initializing", Reason: "waiting_for_first_tick"}
	}

	return readyResponse{
		Status:     "ok",
		Region:     s.monitor.Stats().Region,
		Monitoring: s.monitor.Latest().IsMonitoring,
	}
}
