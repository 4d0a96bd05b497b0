package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gmsas95/dosewise/internal/config"
	apperrors "github.com/gmsas95/dosewise/internal/errors"
	"github.com/gmsas95/dosewise/internal/health"
	"github.com/gmsas95/dosewise/internal/metrics"
	"github.com/gmsas95/dosewise/internal/prefs"
	"github.com/gmsas95/dosewise/internal/tracker"
)

// Server handles the HTTP API
type Server struct {
	app     *fiber.App
	config  *config.Config
	store   *health.Store
	tracker *tracker.Tracker
	prefs   *prefs.Store
	metrics *metrics.Metrics
	logger  *zap.Logger
	limiter *userLimiter
	version string
}

// Deps are the collaborators the API is built on.
type Deps struct {
	Config  *config.Config
	Store   *health.Store
	Tracker *tracker.Tracker
	Prefs   *prefs.Store
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	Version string
}

// New creates a new API server
func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Default()
	}
	if d.Version == "" {
		d.Version = "dev"
	}

	s := &Server{
		config:  d.Config,
		store:   d.Store,
		tracker: d.Tracker,
		prefs:   d.Prefs,
		metrics: d.Metrics,
		logger:  d.Logger,
		limiter: newUserLimiter(d.Config.RateLimit.PerMinute, d.Config.RateLimit.Burst),
		version: d.Version,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "dosewise",
		ReadTimeout:           time.Duration(d.Config.Server.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(d.Config.Server.WriteTimeout) * time.Second,
		IdleTimeout:           120 * time.Second,
		ErrorHandler:          s.errorHandler,
		DisableStartupMessage: true,
	})

	s.setupRoutes()
	return s
}

// App exposes the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	if err := s.checkExposure(); err != nil {
		return err
	}
	s.logger.Info("HTTP server listening", zap.String("addr", s.config.Addr()))
	return s.app.Listen(s.config.Addr())
}

// checkExposure refuses to serve other hosts while login accepts any password.
func (s *Server) checkExposure() error {
	if s.config.Security.AdminPassword != "" || s.config.LoopbackOnly() {
		return nil
	}
	return apperrors.New(apperrors.ErrConfigInvalid.Code,
		fmt.Sprintf("security.admin_password is required to listen on %q", s.config.Server.Address))
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}
