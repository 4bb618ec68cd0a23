// Package app wires configuration, telemetry, services and the HTTP router
// into a runnable server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"cdacli/internal/config"
	apierrors "cdacli/internal/errors"
	"cdacli/internal/cvm"
	"cdacli/internal/exporter"
	"cdacli/internal/infrastructure"
	customMiddleware "cdacli/internal/middleware"
	"cdacli/internal/scanner"
	"cdacli/internal/search"
	"cdacli/internal/services"
	handlers "cdacli/internal/transport/http"
	"cdacli/pkg/contracts"
)

const AppName = "CDA Holdings Search"

// Version mirrors the build-level version constant.
var Version = contracts.Version

// Application is the assembled server.
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders

	SearchService *services.SearchService
	HealthService *services.HealthService
}

// NewApplication loads configuration and wires every component.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("application starting",
		slog.String("name", AppName),
		slog.String("version", Version))

	providers, err := infrastructure.InitializeOTel(nil, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	var metrics *infrastructure.SearchMetrics
	if providers.Meter != nil {
		metrics, err = infrastructure.CreateSearchMetrics(providers.Meter)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics: %w", err)
		}
	}

	client := cvm.NewClient(cfg.CVM, logger)
	engine := search.NewEngine(client, scanner.New(cfg.Search.MaxFieldBytes, logger), cfg.Search, logger, metrics)

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: providers,
		SearchService: services.NewSearchService(engine, exporter.NewExcelWriter(logger), logger),
		HealthService: services.NewHealthService(client, Version, logger),
	}

	app.Router = app.setupRouter()
	app.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      app.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return app, nil
}

// setupRouter builds the middleware chain and mounts all routes.
func (app *Application) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	errorHandler := apierrors.NewErrorHandler(app.Logger, false)

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.StructuredLogger(app.Logger))
	r.Use(customMiddleware.Recoverer(app.Logger))
	r.Use(customMiddleware.SecurityHeaders)
	r.Use(customMiddleware.Compress(5))

	if app.Config.Security.EnableCORS {
		r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
			AllowedOrigins: app.Config.Security.AllowedOrigins,
			Logger:         app.Logger,
		}))
	}

	if app.Config.Security.RateLimit.Enabled {
		limiter := customMiddleware.NewRateLimiter(
			app.Config.Security.RateLimit.RPS,
			app.Config.Security.RateLimit.Burst,
			app.Logger,
		)
		r.Use(limiter.Handler)
	}

	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	searchHandler := handlers.NewSearchHandler(app.SearchService, app.Logger, errorHandler)
	healthHandler := handlers.NewHealthHandler(app.HealthService, app.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Mount("/search", searchHandler.Routes())
		r.Mount("/health", healthHandler.Routes())
		r.Get("/version", healthHandler.Version)
	})

	if app.OTelProviders != nil && app.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", app.OTelProviders.PrometheusHTTP)
	}

	return r
}

// Run starts the server and blocks until shutdown completes.
func (app *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		app.Logger.Info("server listening", slog.String("addr", app.Server.Addr))
		if err := app.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	app.Logger.Info("shutting down")
	return app.Shutdown()
}

// Shutdown drains in-flight requests and stops telemetry.
func (app *Application) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := app.Server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if app.OTelProviders != nil {
		if err := app.OTelProviders.Shutdown(ctx); err != nil {
			app.Logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}

	infrastructure.CloseLogFile()

	app.Logger.Info("shutdown complete")
	return nil
}
