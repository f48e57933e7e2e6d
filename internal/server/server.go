package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	api "github.com/GriffinCanCode/kothrunner/internal/api/http"
	"github.com/GriffinCanCode/kothrunner/internal/api/middleware"
	"github.com/GriffinCanCode/kothrunner/internal/domain/tournament"
	"github.com/GriffinCanCode/kothrunner/internal/game"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/config"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/logging"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/kothrunner/internal/ingest"
	"github.com/GriffinCanCode/kothrunner/internal/modules"
	"github.com/GriffinCanCode/kothrunner/internal/store"
	"github.com/GriffinCanCode/kothrunner/internal/ws"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router          *gin.Engine
	http            *http.Server
	manager         *tournament.Manager
	store           *store.Store
	logger          *logging.Logger
	config          *config.Config
	metrics         *monitoring.Metrics
	shutdownTracing func(context.Context) error
}

// NewServer creates a new server instance
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	logger.Info("Initializing tournament server",
		zap.String("port", cfg.Server.Port),
		zap.String("db", cfg.Storage.Path),
		zap.String("modules_dir", cfg.Modules.Dir),
		zap.String("modules_url", cfg.Modules.URL),
	)

	metrics := monitoring.NewMetrics()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, logger.Component("tracing"))
	if err != nil {
		return nil, err
	}
	tracer := tracing.New("kothrunner")

	db, err := store.Open(ctx, cfg.Storage.Path, logger.Component("store"))
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, err
	}
	if n, err := db.MarkInterrupted(ctx); err != nil {
		logger.Warn("Failed to mark interrupted runs", zap.Error(err))
	} else if n > 0 {
		logger.Info("Marked interrupted runs as failed", zap.Int("runs", n))
	}

	modulesClient := httpclient.New(httpclient.Options{
		Name:      "modules-http",
		Timeout:   cfg.Modules.Timeout,
		RetryMax:  cfg.Modules.RetryMax,
		UserAgent: httpclient.DefaultOptions().UserAgent,
	})
	entriesClient := httpclient.New(httpclient.Options{
		Name:      "entries-http",
		Timeout:   cfg.Modules.Timeout,
		RetryMax:  cfg.Modules.RetryMax,
		UserAgent: httpclient.DefaultOptions().UserAgent,
		RateLimit: 1,
	})

	source, err := modules.FromConfig(cfg.Modules, modulesClient)
	if err != nil {
		_ = db.Close()
		_ = shutdownTracing(ctx)
		return nil, err
	}

	factory := game.NewHandlerFactory(
		game.WithSandboxConfig(game.SandboxConfig(cfg.Sandbox)),
		game.WithSource(source),
		game.WithLogger(logger.Component("runner")),
		game.WithMetrics(metrics),
		game.WithTracer(tracer),
	)
	manager := tournament.NewManager(factory, cfg.Scheduler.Concurrency(), logger.Component("tournament")).
		WithMetrics(metrics).
		WithTracer(tracer).
		WithStore(db).
		WithRetention(cfg.Scheduler.RetainedRuns).
		WithBroadcaster(tournament.NewBroadcaster(cfg.Scheduler.ProgressHz))

	resolver := ingest.NewResolver(cfg.Entries, entriesClient, logger.Component("ingest"))

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig().WithOrigins(cfg.Server.AllowOrigins)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limits := middleware.DefaultRateLimitConfig()
		limits.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limits.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(limits))
	}

	handlers := api.NewHandlers(manager, resolver, api.NewHandlerMetrics(metrics), logger.Component("api"))
	handlers.Register(router)

	wsHandler := ws.NewHandler(manager, metrics, logger.Component("ws"))
	router.GET("/tournaments/:id/stream", wsHandler.HandleStream)

	aggregator := api.NewMetricsAggregator(metrics, modulesClient.Breaker, entriesClient.Breaker)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/metrics/json", aggregator.GetAggregatedMetrics)

	logger.Info("Server initialized successfully",
		zap.Int("max_concurrency", cfg.Scheduler.Concurrency()))

	return &Server{
		router:  router,
		manager: manager,
		store:   db,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
		http: &http.Server{
			Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
		shutdownTracing: shutdownTracing,
	}, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Manager returns the tournament manager.
func (s *Server) Manager() *tournament.Manager {
	return s.manager
}

// Run starts the HTTP server and blocks until it stops. It returns nil after
// Shutdown.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, cancels running tournaments, waits
// for them to record their final state and closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.manager.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tournament shutdown: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if err := s.shutdownTracing(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("Shutdown finished with errors", zap.Error(err))
		return err
	}
	s.logger.Info("Server stopped")
	_ = s.logger.Sync()
	return nil
}
