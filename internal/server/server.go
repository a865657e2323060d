// Package server exposes the resolver over HTTP alongside health, version
// and metrics endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/cartolens/cartolens/internal/config"
	"github.com/cartolens/cartolens/internal/core/resolver"
	apperrors "github.com/cartolens/cartolens/internal/errors"
	"github.com/cartolens/cartolens/internal/observability"
	"github.com/cartolens/cartolens/internal/server/handlers"
	servermw "github.com/cartolens/cartolens/internal/server/middleware"
)

// Options configures a Server.
type Options struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// AdminToken enables POST /admin/signal when set.
	AdminToken string

	// DisableHealth leaves the /health routes unregistered.
	DisableHealth bool

	Resolver *resolver.Resolver
	Health   *handlers.HealthManager
}

// OptionsFromConfig copies listener settings from the server config section.
func OptionsFromConfig(cfg config.ServerConfig) Options {
	return Options{
		Host:         cfg.Host,
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		AdminToken:   cfg.AdminToken,
	}
}

// Server represents the HTTP server
type Server struct {
	router  *chi.Mux
	server  *http.Server
	opts    Options
	resolve *handlers.ResolveHandler
}

// New creates a new HTTP server instance
func New(opts Options) *Server {
	if opts.Health == nil {
		opts.Health = handlers.NewHealthManager(handlers.AppVersion)
	}

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	// Order: request ID for correlation, metrics around everything, recovery innermost.
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	s := &Server{
		router: r,
		opts:   opts,
	}

	handlers.SetHTTPErrorResponder(HandleError)
	s.registerRoutes()

	return s
}

// SetResolver replaces the resolver behind /v1/resolve without restarting
// the listener and returns the previous one.
func (s *Server) SetResolver(res *resolver.Resolver) *resolver.Resolver {
	return s.resolve.SetResolver(res)
}

// Resolver returns the resolver currently serving /v1/resolve.
func (s *Server) Resolver() *resolver.Resolver {
	return s.resolve.Resolver()
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.opts.Host, fmt.Sprintf("%d", s.opts.Port))
}

// Start listens and serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  durationOr(s.opts.ReadTimeout, 30*time.Second),
		WriteTimeout: durationOr(s.opts.WriteTimeout, 30*time.Second),
		IdleTimeout:  durationOr(s.opts.IdleTimeout, 120*time.Second),
	}

	if logger := observability.ServerLogger; logger != nil {
		logger.Info("Starting HTTP server",
			zap.String("host", s.opts.Host),
			zap.Int("port", s.opts.Port),
			zap.String("addr", s.server.Addr))
	}

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if logger := observability.ServerLogger; logger != nil {
		logger.Info("Shutting down HTTP server")
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.opts.Port
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}
