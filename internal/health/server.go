// Package health exposes liveness and Prometheus endpoints over HTTP and
// keeps hosted deployments awake by pinging a public URL.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/whisper/spamguard/internal/metrics"
)

// Status is the body served on /health.
type Status struct {
	Status         string `json:"status"`
	Uptime         string `json:"uptime"`
	Keywords       int    `json:"keywords"`
	PendingNotices int    `json:"pending_notices"`
}

// Probe reports live component state for the health body.
type Probe interface {
	KeywordCount() int
	PendingNotices() int
}

// Server serves /health and /metrics.
type Server struct {
	addr      string
	probe     Probe
	logger    *logrus.Entry
	startedAt time.Time

	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates a server bound to addr once Listen is called.
func NewServer(addr string, probe Probe, logger *logrus.Logger) *Server {
	s := &Server{
		addr:      addr,
		probe:     probe,
		logger:    logger.WithField("component", "health"),
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Listen binds the listening socket so address errors surface at startup.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("health: listen %s: %w", s.addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Serve blocks until Shutdown. Listen must have been called.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("health: serve before listen")
	}
	s.logger.WithField("addr", s.Addr()).Info("health server listening")
	if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health: serve: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("health: shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := Status{
		Status: "ok",
		Uptime: time.Since(s.startedAt).Round(time.Second).String(),
	}
	if s.probe != nil {
		resp.Keywords = s.probe.KeywordCount()
		resp.PendingNotices = s.probe.PendingNotices()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
