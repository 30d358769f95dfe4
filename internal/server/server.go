// File: internal/server/server.go
// HTTP transport: the SSE chat endpoint plus health. Everything
// interesting happens in the engine; this layer handles identity, framing
// and connection lifecycle.
package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/shoptalk-labs/shoptalk/internal/config"
	"github.com/shoptalk-labs/shoptalk/internal/engine"
	"github.com/shoptalk-labs/shoptalk/internal/ratelimit"
)

// Server hosts the conversational API.
type Server struct {
	cfg     config.ServerConfig
	echo    *echo.Echo
	engine  *engine.Engine
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

// New builds the server and registers its routes.
func New(cfg config.ServerConfig, eng *engine.Engine, limiter *ratelimit.Limiter, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		cfg:     cfg,
		echo:    e,
		engine:  eng,
		limiter: limiter,
		logger:  logger.Named("server"),
	}

	e.GET("/healthz", s.handleHealth)
	e.POST("/api/chat/stream", s.handleChatStream, s.identityMiddleware)
	return s
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", zap.String("address", s.cfg.Address))
	srv := &http.Server{
		Addr:              s.cfg.Address,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}
	err := s.echo.StartServer(srv)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":             "ok",
		"sessions":           s.engine.Sessions(),
		"tracked_identities": s.limiter.Len(),
	})
}
