package server

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"offline_sync_worker/internal/limits"
)

const (
	defaultDrain           = 2 * time.Second
	defaultGracefulTimeout = 5 * time.Second
)

type ShutdownConfig struct {
	Drain           time.Duration
	GracefulTimeout time.Duration
}

func ApplyShutdownDefaults(cfg ShutdownConfig) ShutdownConfig {
	if cfg.Drain <= 0 {
		cfg.Drain = defaultDrain
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	return cfg
}

type Server struct {
	Addr string

	httpServer   *http.Server
	ln           net.Listener
	shutdown     ShutdownConfig
	stoppers     []func()
	shutdownOnce sync.Once
	shutdownErr  error
}

type Options struct {
	Limits   limits.Limits
	Shutdown ShutdownConfig
	// Stoppers run before the HTTP server drains: background loops, the
	// notification hub, store closers.
	Stoppers []func()
}

func Start(handler http.Handler, addr string, options Options) (*Server, error) {
	if handler == nil {
		return nil, errors.New("handler is nil")
	}

	limitConfig := options.Limits
	if limitConfig.MaxHeaderBytes == 0 {
		limitConfig = limits.Default()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	httpSrv := &http.Server{
		Handler:           handler,
		MaxHeaderBytes:    limitConfig.MaxHeaderBytes,
		ReadHeaderTimeout: limitConfig.ReadHeaderTimeout,
		IdleTimeout:       limitConfig.IdleTimeout,
	}
	go serve(httpSrv, ln)

	return &Server{
		Addr:       ln.Addr().String(),
		httpServer: httpSrv,
		ln:         ln,
		shutdown:   ApplyShutdownDefaults(options.Shutdown),
		stoppers:   options.Stoppers,
	}, nil
}

func serve(server *http.Server, ln net.Listener) {
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("server error: %v", err)
	}
}

func (s *Server) Close() error {
	return s.Shutdown()
}

func (s *Server) Shutdown() error {
	if s == nil {
		return nil
	}
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdownSequence()
	})
	return s.shutdownErr
}

func (s *Server) shutdownSequence() error {
	for _, stop := range s.stoppers {
		if stop != nil {
			stop()
		}
	}

	if s.shutdown.Drain > 0 {
		time.Sleep(s.shutdown.Drain)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdown.GracefulTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return s.httpServer.Close()
	}
	return nil
}
