// Package httpserver exposes the processor's Prometheus metrics over
// HTTP, reusing the teacher's logging + panic-recovery middleware
// pattern on top of promhttp's handler.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server serves /metrics; port 0 binds an ephemeral port, discoverable
// via Addr() after Start.
type Server struct {
	mux *http.ServeMux

	mu       sync.Mutex
	listener net.Listener
	srv      *http.Server
}

// New builds a metrics server with logging and panic-recovery
// middleware wrapping the registered routes.
func New() *Server {
	mux := http.NewServeMux()
	s := &Server{mux: mux}
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return s
}

// Start binds port (0 for ephemeral) and serves in the background until
// ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context, port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("httpserver: listen: %w", err)
	}

	handler := s.recoveryMiddleware(s.loggingMiddleware(s.mux))
	srv := &http.Server{Handler: handler}

	s.mu.Lock()
	s.listener = ln
	s.srv = srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	logrus.WithField("addr", ln.Addr().String()).Info("httpserver: metrics listening")
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Error("httpserver: serve failed")
		}
	}()

	return nil
}

// Addr returns the bound listen address; empty until Start succeeds.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logrus.WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).Debug("httpserver: request")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logrus.WithField("panic", rec).Error("httpserver: panic recovered")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
