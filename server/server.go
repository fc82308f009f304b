// Package server is the HTTP shell of the control panel API. Every request passes
// the host/port guard and the CORS policy; every API response must be JSON.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/skycode/skypanel/config"
	"github.com/skycode/skypanel/guard"
	"github.com/skycode/skypanel/types"
)

const (
	MetricsPath     = "/metrics"
	healthPath      = "/health"
	shutdownTimeout = 10 * time.Second
)

type Server struct {
	cfg      config.Config
	guard    *guard.Guard
	logger   *zap.SugaredLogger
	gatherer prometheus.Gatherer
	version  string

	once   sync.Once
	engine *gin.Engine
}

func New(cfg config.Config, g *guard.Guard) *Server {
	return &Server{
		cfg:    cfg,
		guard:  g,
		logger: zap.NewNop().Sugar(),
	}
}

func (s *Server) WithLogger(l *zap.SugaredLogger) *Server {
	if l != nil {
		s.logger = l
	}
	return s
}

// WithGatherer exposes the given registry on /metrics.
func (s *Server) WithGatherer(g prometheus.Gatherer) *Server {
	s.gatherer = g
	return s
}

func (s *Server) WithVersion(version string) *Server {
	s.version = version
	return s
}

// Handler returns the router. It is built once, on first use.
func (s *Server) Handler() http.Handler {
	s.once.Do(func() {
		s.engine = s.routes()
	})
	return s.engine
}

func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.ListenHost, strconv.Itoa(s.cfg.Port))
}

// Run listens on the locked port until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if err := s.guard.EnsurePort(s.cfg.Port); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("listening", "addr", srv.Addr, "base_path", s.cfg.APIBasePath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.logger.Infow("shutting down", "addr", srv.Addr)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) routes() *gin.Engine {
	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	engine.Use(
		RequestID(),
		AccessLog(s.logger),
		Recovery(s.logger),
		EnforceHostAndPort(s.guard, s.cfg.AllowedHost),
		CORS(s.cfg.AllowedOrigin),
	)

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, types.ErrorResponse{Error: errNotFound})
	})
	engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, types.ErrorResponse{Error: http.StatusText(http.StatusMethodNotAllowed)})
	})

	api := engine.Group(s.cfg.APIBasePath, JSONOnly())
	api.GET(healthPath, s.health)

	if s.gatherer != nil {
		engine.GET(MetricsPath, gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	return engine
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, types.HealthResponse{Status: "ok", Version: s.version})
}
