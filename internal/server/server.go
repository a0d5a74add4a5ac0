// internal/server/server.go
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/simonvetter/modbus"
)

// Config is the listener configuration.
type Config struct {
	URL        string // tcp://host:port
	Timeout    time.Duration
	MaxClients uint
}

// Server is the Modbus TCP face of the register map.
type Server struct {
	cfg Config
	srv *modbus.ModbusServer
	log zerolog.Logger
}

// New binds nothing yet; Run starts listening.
func New(cfg Config, h *Handler, logger zerolog.Logger) (*Server, error) {
	srv, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        cfg.URL,
		Timeout:    cfg.Timeout,
		MaxClients: cfg.MaxClients,
	}, h)
	if err != nil {
		return nil, fmt.Errorf("tcp server: %w", err)
	}

	return &Server{
		cfg: cfg,
		srv: srv,
		log: logger.With().Str("component", "tcp-server").Logger(),
	}, nil
}

// Run listens until ctx is cancelled. A bind failure is returned at once.
func (s *Server) Run(ctx context.Context) error {
	if err := s.srv.Start(); err != nil {
		return fmt.Errorf("tcp server: start %s: %w", s.cfg.URL, err)
	}
	s.log.Info().
		Str("url", s.cfg.URL).
		Uint("max_clients", s.cfg.MaxClients).
		Msg("modbus TCP server running")

	<-ctx.Done()

	if err := s.srv.Stop(); err != nil {
		s.log.Warn().Err(err).Msg("modbus TCP server stop failed")
	}
	s.log.Info().Msg("modbus TCP server stopped")
	return nil
}
