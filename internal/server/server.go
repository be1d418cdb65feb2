package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/Tyrowin/tcprelay/internal/logging"
	"github.com/Tyrowin/tcprelay/internal/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Server is a configured relay with its listeners already bound.
type Server struct {
	cfg      Config
	log      *logrus.Logger
	metrics  *metrics.Metrics
	hub      *Hub
	listener *Listener

	httpServer   *http.Server
	httpListener net.Listener
}

// New binds the relay listener and, when enabled, the HTTP listener. Any bind
// failure is returned.
func New(cfg Config, logger *logrus.Logger) (*Server, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	m := metrics.New()
	hub := NewHub(cfg, logging.Component(logger, "hub"), m)

	listener, err := Listen(cfg.ListenAddr, m, logging.Component(logger, "listener"))
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		log:      logger,
		metrics:  m,
		hub:      hub,
		listener: listener,
	}

	if cfg.HTTPEnabled() {
		ln, err := net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			_ = listener.Close()
			return nil, fmt.Errorf("unable to bind HTTP server on %s: %w", cfg.HTTPAddr, err)
		}
		mux := SetupRoutes(cfg, hub, m, logging.Component(logger, "http"))
		s.httpServer = CreateServer(cfg.HTTPAddr, mux)
		s.httpListener = ln
	}

	return s, nil
}

// Addr returns the relay's TCP address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// HTTPAddr returns the HTTP address, or nil when HTTP is disabled.
func (s *Server) HTTPAddr() net.Addr {
	if s.httpListener == nil {
		return nil
	}
	return s.httpListener.Addr()
}

// Hub returns the relay hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Metrics returns the relay metrics.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Run serves until ctx is cancelled or a component fails, then shuts
// everything down. It returns ErrEventsClosed if the hub lost its event
// channel.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(s.hub.Run)
	g.Go(func() error {
		return s.listener.Serve(s.hub)
	})
	if s.httpServer != nil {
		g.Go(func() error {
			return StartServer(s.httpServer, s.httpListener, logging.Component(s.log, "http"))
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	err := g.Wait()
	if errors.Is(err, context.DeadlineExceeded) {
		s.log.Warn("Shutdown did not complete in time")
		return nil
	}
	return err
}

// shutdown stops the HTTP server, the accept loop and the hub in that order.
func (s *Server) shutdown() error {
	if s.httpServer != nil {
		_ = ShutdownServer(s.httpServer, s.cfg.ShutdownTimeout, logging.Component(s.log, "http"))
	}
	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.Errorf("Error closing relay listener: %v", err)
	}
	return s.hub.Shutdown(s.cfg.ShutdownTimeout)
}
