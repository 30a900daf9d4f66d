package observability

import (
	"context"
	"net/http"
	"time"
)

// Server exposes the engine's operational HTTP surface: health probes and
// the Prometheus scrape endpoint.
type Server struct {
	httpServer *http.Server
	addr       string
}

// NewServer creates a server that will listen on addr, e.g. ":9090".
func NewServer(addr string) *Server {
	return &Server{
		addr: addr,
	}
}

// Start listens and serves until Shutdown is called. It blocks, so callers
// typically run it in its own goroutine and treat http.ErrServerClosed as a
// clean exit.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", HealthHandler())
	mux.HandleFunc("/health/live", LivenessHandler())
	mux.HandleFunc("/health/ready", ReadinessHandler())

	mux.Handle("/metrics", MetricsHandler())

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
