package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"presencerelay/internal/api"
	"presencerelay/internal/config"
	"presencerelay/internal/database"
	"presencerelay/internal/hub"
	"presencerelay/internal/mirror"
	"presencerelay/internal/presence"
	"presencerelay/internal/reaper"
	"presencerelay/internal/router"
	"presencerelay/internal/session"
	"presencerelay/internal/websocket"
	dbconfig "presencerelay/pkg/database"
	"presencerelay/pkg/interfaces"
)

const redisDialTimeout = 5 * time.Second

// Application coordinates all system components
// Component initialization follows strict dependency order:
// Journal/Mirror → Registry → Pool → Broadcaster → Router → Hub → Reaper → API → HTTP
type Application struct {
	config      *config.Config
	log         *zap.Logger
	journal     *database.Journal
	mirror      *mirror.Mirror
	registry    *session.Registry
	pool        *websocket.Pool
	router      *router.Router
	hub         *hub.Hub
	reaper      *reaper.Reaper
	wsHandler   *websocket.Handler
	apiServer   *api.Server
	httpServer  *http.Server
	listener    net.Listener
	serverErrCh chan error
}

type Option func(*Application)

// WithListener serves on an existing listener instead of HTTP.Host:HTTP.Port.
func WithListener(ln net.Listener) Option {
	return func(app *Application) { app.listener = ln }
}

// NewApplication creates a new application instance with all components initialized
func NewApplication(cfg *config.Config, log *zap.Logger, opts ...Option) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &Application{config: cfg, log: log, serverErrCh: make(chan error, 1)}
	for _, opt := range opts {
		opt(app)
	}

	// STEP 1: optional observers
	var observers []interfaces.PresenceObserver
	var journal interfaces.Journal
	if cfg.Journal.Path != "" {
		j, err := database.Open(dbconfig.DefaultConfig(cfg.Journal.Path), cfg.Journal.QueueSize, cfg.Journal.Timeout, log.Named("journal"))
		if err != nil {
			return nil, fmt.Errorf("failed to open presence journal: %w", err)
		}
		app.journal = j
		journal = j
		observers = append(observers, j)
	}
	if cfg.Redis.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
		m, err := mirror.Dial(ctx, cfg.Redis.URL, cfg.Redis.ChannelPrefix, cfg.Redis.QueueSize, log.Named("mirror"))
		cancel()
		if err != nil {
			app.closeObservers()
			return nil, fmt.Errorf("failed to start presence mirror: %w", err)
		}
		app.mirror = m
		observers = append(observers, m)
	}

	// STEP 2: presence core
	app.registry = session.NewRegistry(session.WithLogger(log.Named("registry")))
	app.pool = websocket.NewPool(log.Named("pool"))
	broadcaster := presence.NewBroadcaster(app.pool, app.registry, log.Named("presence"), observers...)
	app.router = router.NewRouter(app.registry, broadcaster, app.pool, router.Options{
		MaxMediaBytes: cfg.Presence.MaxMediaBytes,
		RateLimit:     cfg.RateLimit.MessagesPerMinute,
		RateWindow:    cfg.RateLimit.Window,
	}, log.Named("router"))

	// STEP 3: event loop and its periodic work
	app.hub = hub.NewHub(app.router, cfg.Presence.EventBuffer, log.Named("hub"))
	app.reaper = reaper.New(app.registry, broadcaster, app.pool, app.hub,
		cfg.Presence.ReaperInterval, cfg.Presence.StaleThreshold, log.Named("reaper"),
		reaper.WithSweepHook(app.router.Cleanup))

	// STEP 4: HTTP surface
	app.wsHandler = websocket.NewHandler(app.pool, app.hub, cfg.WebSocket, log.Named("websocket"))
	apiOpts := []api.Option{api.WithWebSocket(http.HandlerFunc(app.wsHandler.HandleWebSocket))}
	if journal != nil {
		apiOpts = append(apiOpts, api.WithJournal(journal))
	}
	app.apiServer = api.NewServer(app.registry, app.pool, log.Named("api"), apiOpts...)

	app.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      app.apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return app, nil
}

// Start begins application execution
// Hub starts first to handle events, then the reaper, then HTTP accepts connections
func (app *Application) Start(ctx context.Context) error {
	if app.listener == nil {
		ln, err := net.Listen("tcp", app.httpServer.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
		}
		app.listener = ln
	}

	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event hub: %w", err)
	}
	app.reaper.Start(ctx)

	go func() {
		if err := app.httpServer.Serve(app.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(app.serverErrCh)
	}()

	app.log.Info("presence relay started",
		zap.String("addr", app.Addr()),
		zap.Bool("journal", app.journal != nil),
		zap.Bool("mirror", app.mirror != nil))
	return nil
}

// Errors reports a fatal HTTP server error; it is closed once the server stops.
func (app *Application) Errors() <-chan error {
	return app.serverErrCh
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → connections → Reaper → Hub → observers
// The hub drains after every read loop has dispatched its disconnect
func (app *Application) Stop(ctx context.Context) error {
	app.log.Info("shutting down presence relay")

	var errs []error
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	// hijacked websocket connections are not tracked by http.Server
	app.pool.CloseAll()
	if err := app.wsHandler.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("waiting for connections: %w", err))
	}

	app.reaper.Stop()
	if err := app.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("hub stop: %w", err))
	}

	if err := app.closeObservers(); err != nil {
		errs = append(errs, err)
	}

	app.log.Info("presence relay shutdown complete")
	return errors.Join(errs...)
}

func (app *Application) closeObservers() error {
	var errs []error
	if app.mirror != nil {
		if err := app.mirror.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mirror close: %w", err))
		}
	}
	if app.journal != nil {
		if err := app.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("journal close: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Addr returns the address the server listens on.
func (app *Application) Addr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

