// Package server hosts the two HTTP surfaces: the exporter's metrics
// endpoint and the load-balancer agent-check endpoint with its operator
// mark controls.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dirsrv-monitor/pkg/logger"
)

const httpShutdownTimeout = 5 * time.Second

// statusWriter wraps http.ResponseWriter to capture the response status code
// for the request log.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func logRequest(r *http.Request, msg string, statusCode int, start time.Time) {
	logger.Info(msg,
		zap.String("method", r.Method),
		zap.String("url", r.URL.String()),
		zap.String("remote", r.RemoteAddr),
		zap.Int("status", statusCode),
		zap.Duration("duration", time.Since(start)),
	)
}

// logged wraps a handler with status capture and request logging.
func logged(msg string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		logRequest(r, msg, ww.status, start)
	})
}

// HTTPServer wraps an http.Server with non-blocking start and bounded
// graceful shutdown.
type HTTPServer struct {
	addr   string
	server *http.Server
}

func newHTTPServer(addr string, mux *http.ServeMux) *HTTPServer {
	return &HTTPServer{
		addr: addr,
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  15 * time.Second,
		},
	}
}

// NewMetricsServer serves /metrics from the given registry and a trivial
// /health endpoint.
func NewMetricsServer(addr string, registry *prometheus.Registry) *HTTPServer {
	mux := http.NewServeMux()

	mux.Handle("/metrics", logged("metrics request received",
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{
			ErrorLog: zap.NewStdLog(logger.L()),
		})))

	mux.Handle("/health", logged("health check received",
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
		})))

	return newHTTPServer(addr, mux)
}

// Start begins listening without blocking. A bind failure is fatal: a
// monitoring surface that silently fails to listen is worse than a crashed
// daemon.
func (s *HTTPServer) Start() {
	logger.Info("starting HTTP server",
		zap.String("listen_addr", s.addr),
		zap.Duration("read_timeout", s.server.ReadTimeout),
		zap.Duration("write_timeout", s.server.WriteTimeout),
	)

	go func() {
		if err := s.server.ListenAndServe(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal("HTTP server failed to listen",
					zap.Error(err), zap.String("listen_addr", s.addr))
			}
			logger.Info("HTTP server stopped listening", zap.String("listen_addr", s.addr))
		}
	}()
}

// Shutdown stops accepting requests and waits out in-flight ones, bounded by
// httpShutdownTimeout.
func (s *HTTPServer) Shutdown() error {
	logger.Info("starting graceful shutdown of HTTP server", zap.String("listen_addr", s.addr))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
			return nil
		}
		logger.Error("HTTP server shutdown failed", zap.Error(err), zap.String("listen_addr", s.addr))
		return err
	}
	logger.Info("HTTP server shutdown successfully", zap.String("listen_addr", s.addr))
	return nil
}
