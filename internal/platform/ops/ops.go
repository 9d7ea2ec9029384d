package ops

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/apexhealth/claims/internal/platform/db"
	"github.com/apexhealth/claims/internal/platform/metrics"
	"github.com/apexhealth/claims/internal/platform/middleware"
)

// Server is the worker's operational listener: /health and /metrics.
type Server struct {
	addr   string
	echo   *echo.Echo
	logger zerolog.Logger
}

func NewServer(addr string, health db.Pinger, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "ops").Logger()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestID())
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.Logger(logger, "/health", "/metrics"))

	e.GET("/health", db.HealthHandler(health))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	return &Server{addr: addr, echo: e, logger: logger}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("ops listener started")
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("ops listener stopped")
	return nil
}
