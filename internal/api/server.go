// Package api exposes clip generation, the liveness probe and the clip
// history over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/clipforge/clipgen/internal/clip"
	"github.com/clipforge/clipgen/internal/history"
	"github.com/clipforge/clipgen/internal/logging"
	"github.com/clipforge/clipgen/internal/transcode"
)

// ClipGenerator is satisfied by *clip.Generator.
type ClipGenerator interface {
	Generate(ctx context.Context, raw clip.RawRequest) clip.Result
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Addr         string
	FFmpegPath   string
	ProbeTimeout time.Duration
	Runner       transcode.Runner
	Generator    ClipGenerator
	// Pool bounds concurrent generations; nil runs them on the request
	// goroutine.
	Pool *Pool
	// History is nil when the ledger is disabled.
	History history.Repository
	Logger  *slog.Logger
}

func NewServer(cfg ServerConfig) *Server {
	cfg.Logger = logging.OrDiscard(cfg.Logger)
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      0,
			IdleTimeout:       60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
