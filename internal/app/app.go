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

	"taskdeck/internal/auth"
	"taskdeck/internal/config"
	apierrors "taskdeck/internal/errors"
	"taskdeck/internal/infrastructure"
	"taskdeck/internal/license"
	authmw "taskdeck/internal/middleware"
	"taskdeck/internal/security"
	"taskdeck/internal/store"
	handlers "taskdeck/internal/transport/http"
)

const (
	Version = "1.0.0"
	AppName = "TaskDeck"
)

// Application is the dependency-injected container for the gating
// subsystem: config, storage, crypto, services, and the HTTP server.
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	Router        *chi.Mux
	Server        *http.Server
	Store         *store.Store
	Engine        *security.Engine
	Codec         *auth.Codec
	AuthService   *auth.Service
	License       *license.Service
	Gate          *authmw.Gate
	OTelProviders *infrastructure.OTelProviders
}

// NewApplication loads configuration and wires every component
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewApplicationWithConfig(cfg)
}

// NewApplicationWithConfig wires the application from an already-built
// configuration. Tests use this to inject temp paths.
func NewApplicationWithConfig(cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("application starting",
		slog.String("name", AppName),
		slog.String("version", Version))

	if cfg.UsingInsecureSecret() {
		logger.Warn("signing secret not configured, using insecure default",
			slog.String("action", "set TASKDECK_SECURITY_SIGNING_SECRET before exposing this instance"))
	}

	otelProviders, err := infrastructure.InitializeOTel(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
	}

	if err := app.initializeServices(); err != nil {
		return nil, err
	}

	app.setupRouter()
	app.createServer()
	return app, nil
}

// initializeServices opens storage and builds the service graph
func (a *Application) initializeServices() error {
	if err := config.EnsureParentDir(a.Config.Storage.DatabasePath); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	st, err := store.Open(store.Config{
		Path:     a.Config.Storage.DatabasePath,
		PoolSize: a.Config.Storage.PoolSize,
		Logger:   a.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	a.Store = st

	engine, err := security.NewEngineFromFile(a.Config.Security.PrivateKeyFile)
	if err != nil {
		return fmt.Errorf("failed to load unlock key: %w", err)
	}
	a.Engine = engine

	a.Codec = auth.NewCodec(a.Config.Security.SigningSecret)
	a.AuthService = auth.NewService(a.Codec, st.Users(), a.Logger)

	clock := license.SystemClock{}
	trial := license.NewTrialClock(st, clock, a.Logger)
	a.License = license.NewService(engine, st, trial, clock, a.Logger)

	a.Gate = authmw.NewGate(a.Codec, a.License, a.Config.Security.SessionCookie, a.Logger)
	if metrics, err := authmw.NewGateMetrics(a.OTelProviders.Meter); err != nil {
		a.Logger.Error("failed to register gate metrics", slog.String("error", err.Error()))
	} else {
		a.Gate.SetMetrics(metrics)
	}

	return nil
}

// setupRouter assembles the middleware chain and the API routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(authmw.RequestID)
	r.Use(authmw.RequestLogger(a.Logger))
	r.Use(authmw.Recovery(a.Logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		p := apierrors.ProblemFromStatus(http.StatusNotFound, "no route for "+r.URL.Path,
			infrastructure.GetTraceID(r.Context()))
		p.Render(w, r)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		p := apierrors.ProblemFromStatus(http.StatusMethodNotAllowed, "",
			infrastructure.GetTraceID(r.Context()))
		p.Render(w, r)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		authHandler := handlers.NewAuthHandler(a.AuthService, a.Config.Security.SessionCookie, a.Logger)
		unlockHandler := handlers.NewUnlockHandler(a.License, a.Logger)
		healthHandler := handlers.NewHealthHandler(a.Store, a.Engine, Version, a.Logger)

		r.Get("/health", healthHandler.Health)

		// Login is rate limited but not gated: before a credential
		// exists there is nothing to gate.
		r.Group(func(r chi.Router) {
			if a.Config.Security.RateLimit.Enabled {
				r.Use(authmw.RateLimiter(a.Config.Security.RateLimit))
			}
			r.Mount("/auth", authHandler.Routes())
		})

		// The unlock path and the status read run through the gate for
		// credential verification only. Both are exempt from the access
		// check: /decrypt is how a locked account unlocks itself, and
		// status is read-only.
		r.Group(func(r chi.Router) {
			r.Use(authmw.ExemptFromGate)
			r.Use(a.Gate.Handler)
			if a.Config.Security.RateLimit.Enabled {
				r.With(authmw.RateLimiter(a.Config.Security.RateLimit)).
					Post("/decrypt", unlockHandler.Decrypt)
			} else {
				r.Post("/decrypt", unlockHandler.Decrypt)
			}
			r.Get("/unlock-status", unlockHandler.Status)
		})
	})

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

// MountCollaborator mounts a collaborator router (task, folder, tag,
// and message CRUD live outside this subsystem) under pattern, behind
// the gate with the declared operation kind.
func (a *Application) MountCollaborator(pattern string, op authmw.Operation, router chi.Router) {
	a.Router.Route(pattern, func(r chi.Router) {
		r.Use(authmw.WithOperation(op))
		r.Use(a.Gate.Handler)
		r.Mount("/", router)
	})
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start begins serving. Returns once the listener is running; a
// listener failure cancels the supplied context.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "server starting",
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level))

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	return nil
}

// Stop gracefully stops the server, the metrics provider, and the store
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "error shutting down metrics", slog.String("error", err.Error()))
		}
	}

	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.ErrorContext(ctx, "error closing store", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "shutdown complete")
	infrastructure.CloseLogFile()
	return nil
}

// Run serves until interrupted, then shuts down gracefully
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "received interrupt signal")
	case <-ctx.Done():
	}

	return a.Stop(context.Background())
}
