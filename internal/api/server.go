package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/genricoloni/hificlock/internal/domain"
	"github.com/genricoloni/hificlock/internal/engine"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultAddr keeps the surface local to the kiosk
const DefaultAddr = "127.0.0.1:8765"

// Server runs the HTTP surface and keeps the SSE broker fed
type Server struct {
	logger *zap.Logger
	addr   string
	broker *Broker
	http   *http.Server

	mu    sync.Mutex
	group *errgroup.Group
	ln    net.Listener
}

// NewServer builds the server
func NewServer(logger *zap.Logger, addr string, ui UI, broker *Broker, metricsHandler http.Handler) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Server{
		logger: logger,
		addr:   addr,
		broker: broker,
		http: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(logger, ui, broker, metricsHandler),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Attach streams the engine's track and screen changes through broker
func Attach(broker *Broker, e *engine.Engine) {
	e.OnScreenChange(func(d domain.ScreenDecision) {
		broker.Publish(Event{Type: EventScreenChanged, Data: d})
	})
	e.OnTrackChange(func(rec domain.TrackRecord) {
		broker.Publish(Event{Type: EventTrackChanged, Data: rec})
	})
}

// Addr returns the bound address once started, else the configured one
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Start binds the listener and serves in the background
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	g := new(errgroup.Group)
	g.Go(func() error {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	s.mu.Lock()
	s.ln = ln
	s.group = g
	s.mu.Unlock()

	s.logger.Info("HTTP server started", zap.String("address", ln.Addr().String()))
	return nil
}

// Stop closes SSE streams, shuts the server down and waits for Serve
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	g := s.group
	s.mu.Unlock()

	// Streams hold their requests open; end them before Shutdown waits on them
	s.broker.Close()

	if g == nil {
		return nil
	}
	err := s.http.Shutdown(ctx)
	return multierr.Append(err, g.Wait())
}
