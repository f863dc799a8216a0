package httpserver

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

type contextKey string

const requestLoggerKey contextKey = "httpserver.request.logger"

// statusRecorder captures the response status and size for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rec *statusRecorder) WriteHeader(status int) {
	if rec.status == 0 {
		rec.status = status
	}
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += int64(n)
	return n, err
}

func (rec *statusRecorder) code() int {
	if rec.status == 0 {
		return http.StatusOK
	}
	return rec.status
}

// Hijack is needed by the WebSocket upgrade.
func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("httpserver: response writer does not support hijacking")
	}
	rec.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (rec *statusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// quietPaths are polled by overlays and probes; their completions log at
// debug level so a 60 Hz poller does not drown the log.
var quietPaths = []string{"/healthz", "/readyz", "/metrics", "/api/state", "/api/healthz", "/api/readyz"}

func requestLogLevel(path string, status int) slog.Level {
	if status >= http.StatusInternalServerError {
		return slog.LevelWarn
	}
	for _, quiet := range quietPaths {
		if path == quiet || strings.HasPrefix(path, quiet+"/") {
			return slog.LevelDebug
		}
	}
	return slog.LevelInfo
}

func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attrs := []any{
			"req_id", s.requestIDs.Add(1),
			"method", r.Method,
			"path", r.URL.Path,
		}
		if r.RemoteAddr != "" {
			attrs = append(attrs, "remote_addr", r.RemoteAddr)
		}
		logger := s.logger.With(attrs...)

		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestLoggerKey, logger)))

		logger.Log(r.Context(), requestLogLevel(r.URL.Path, rec.code()), "request complete",
			"status", rec.code(),
			"duration", time.Since(start),
			"bytes", rec.bytes,
		)
	})
}

func (s *Server) loggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return s.logger
	}
	if logger, ok := ctx.Value(requestLoggerKey).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return s.logger
}
