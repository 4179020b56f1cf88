// Package app wires the hub's components from configuration and runs them
// behind one HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"eduhub/internal/api"
	"eduhub/internal/config"
	"eduhub/internal/database"
	"eduhub/internal/hub"
	"eduhub/internal/identity"
	"eduhub/internal/logger"
	"eduhub/internal/presence"
	"eduhub/internal/router"
	"eduhub/internal/signaling"
	"eduhub/internal/support"
	"eduhub/internal/websocket"
	dbconfig "eduhub/pkg/database"
)

// Application owns every component and their lifecycle.
type Application struct {
	config     *config.Config
	db         *database.Manager
	registry   *websocket.Registry
	hub        *hub.Hub
	wsHandler  *websocket.Handler
	apiServer  *api.Server
	httpServer *http.Server
	log        *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	serveErr chan error
}

// DatabaseConfig maps the database section onto the store settings.
func DatabaseConfig(cfg *config.Config) *dbconfig.Config {
	c := dbconfig.DefaultConfig()
	c.DatabasePath = cfg.Database.Path
	c.MaxConnections = cfg.Database.MaxConnections
	return c
}

// NewApplication builds the components in dependency order:
// store, registry, identity, router, presence, relay, support, hub,
// transport, API.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log := logger.Component("app")

	db, err := database.NewManager(DatabaseConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	var verifier *identity.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier, err = identity.NewTokenVerifier(cfg.Auth.JWTSecret)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize token verifier: %w", err)
		}
	}

	registry := websocket.NewRegistry()

	engine, err := support.NewEngine(db, registry, support.SettingsFromConfig(cfg.Support))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize support engine: %w", err)
	}

	h := hub.New(hub.Components{
		Store:    db,
		Registry: registry,
		Limiter:  router.NewRateLimiter(cfg.RateLimit.Window.Std(), cfg.RateLimit.MaxMessages),
		Resolver: identity.NewResolver(db, verifier),
		Router:   router.NewRouter(db, registry),
		Presence: presence.NewTracker(db, registry),
		Relay:    signaling.NewRelay(registry),
		Support:  engine,
	}, hub.Config{
		PersistTimeout:      cfg.Hub.PersistTimeout.Std(),
		MaintenanceSchedule: cfg.Hub.MaintenanceSchedule,
	})

	wsHandler := websocket.NewHandler(h, websocket.HandlerConfig{
		PingInterval:      cfg.WebSocket.PingInterval.Std(),
		ReadTimeout:       cfg.WebSocket.ReadTimeout.Std(),
		WriteTimeout:      cfg.WebSocket.WriteTimeout.Std(),
		BufferSize:        cfg.WebSocket.BufferSize,
		MaxMessageSize:    cfg.WebSocket.MaxMessageSize,
		AllowedOrigins:    cfg.WebSocket.AllowedOrigins,
		UpgradesPerSecond: cfg.WebSocket.UpgradesPerSecond,
		UpgradeBurst:      cfg.WebSocket.UpgradeBurst,
	})
	h.AddSweeper(wsHandler)

	apiServer := api.NewServer(db, registry, engine, api.Options{
		AdminToken:    cfg.Auth.AdminToken,
		WebSocketPath: cfg.WebSocket.Path,
		WebSocket:     wsHandler,
	})

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout.Std(),
		WriteTimeout: cfg.HTTP.WriteTimeout.Std(),
		IdleTimeout:  2 * time.Minute,
	}

	if verifier == nil {
		log.Warn("auth.jwt_secret is empty; auth frames carry trusted external IDs")
	}
	if cfg.Auth.AdminToken == "" {
		log.Warn("auth.admin_token is empty; PUT /api/support/settings accepts unauthenticated requests")
	}

	return &Application{
		config:     cfg,
		db:         db,
		registry:   registry,
		hub:        h,
		wsHandler:  wsHandler,
		apiServer:  apiServer,
		httpServer: httpServer,
		log:        log,
	}, nil
}

// Start restores hub state, binds the listen address and serves in the
// background. Errors after a successful bind are reported by Wait.
func (app *Application) Start(ctx context.Context) error {
	app.log.Info("starting eduhub", slog.String("addr", app.httpServer.Addr))

	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.hub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}

	serveErr := make(chan error, 1)
	app.mu.Lock()
	app.listener = ln
	app.serveErr = serveErr
	app.mu.Unlock()

	go func() {
		if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(serveErr)
	}()

	app.log.Info("eduhub started",
		slog.String("addr", ln.Addr().String()),
		slog.String("websocket_path", app.config.WebSocket.Path))
	return nil
}

// Wait blocks until the server stops. It returns the serve error, if any.
func (app *Application) Wait() error {
	app.mu.Lock()
	serveErr := app.serveErr
	app.mu.Unlock()
	if serveErr == nil {
		return nil
	}
	return <-serveErr
}

// Stop shuts down in reverse dependency order: stop accepting, close the
// websockets so presence goes offline, stop the hub, close the store.
func (app *Application) Stop(ctx context.Context) error {
	app.log.Info("shutting down eduhub")
	var errs []error

	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
	}
	if err := app.wsHandler.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("websocket shutdown: %w", err))
	}
	app.registry.CloseAll()

	if err := app.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}
	if err := app.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database shutdown: %w", err))
	}

	for _, err := range errs {
		app.log.Error("shutdown error", slog.Any("error", err))
	}
	app.log.Info("eduhub shutdown complete")
	return errors.Join(errs...)
}

// Addr is the bound listen address once started, else the configured one.
func (app *Application) Addr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Store exposes the database for commands that run beside the server.
func (app *Application) Store() *database.Manager {
	return app.db
}
