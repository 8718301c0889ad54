package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"roomsync/internal/api"
	"roomsync/internal/config"
	"roomsync/internal/hub"
	"roomsync/internal/identity"
	"roomsync/internal/journal"
	"roomsync/internal/pause"
	"roomsync/internal/presence"
	"roomsync/internal/reaction"
	"roomsync/internal/router"
	"roomsync/internal/warning"
	"roomsync/internal/websocket"
	"roomsync/pkg/interfaces"
)

// ErrAlreadyRunning is returned by Run on an application that already ran.
var ErrAlreadyRunning = errors.New("application already started")

// Application owns every component of the sync core. It is constructed once
// and torn down once.
type Application struct {
	config     *config.Config
	logger     *slog.Logger
	instanceID string

	page      *identity.Page
	identity  interfaces.IdentityProvider
	client    *websocket.Client
	router    *router.Router
	hub       *hub.Hub
	journal   *journal.Store
	notifier  *Notifier
	presence  *presence.Tracker
	reactions *reaction.Store
	emojis    *reaction.EmojiSet
	pause     *pause.Coordinator
	warnings  *warning.Coordinator

	apiServer  *api.Server
	httpServer *http.Server

	// components are torn down in this order after the client and hub
	components []interfaces.Component

	mu          sync.Mutex
	started     bool
	cleanupOnce sync.Once
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Identity → Journal → Transport → Router → Hub → Feature modules → API
func NewApplication(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		config:     cfg,
		instanceID: uuid.NewString(),
	}
	app.logger = logger.With("instance_id", app.instanceID)

	// STEP 1: Identity is read from the page the overlay pushes to the API
	app.page = &identity.Page{}
	app.identity = identity.NewPageResolver(app.page)

	// STEP 2: Journal (optional foundation layer)
	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal, app.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		app.journal = j
	}

	// STEP 3: Relay transport
	client, err := websocket.NewClient(cfg.Relay, app.identity, app.logger)
	if err != nil {
		app.closeJournal()
		return nil, fmt.Errorf("failed to create relay client: %w", err)
	}
	app.client = client

	// STEP 4: Router and hub
	app.router = router.NewRouter(client, app.logger)
	app.hub = hub.NewHub(client.Inbound(), app.router, app.logger)
	if app.journal != nil {
		app.hub.WithJournal(app.journal, app.instanceID)
		app.router.WithJournal(app.journal, app.instanceID)
	}

	// STEP 5: Feature modules subscribe in a fixed order so dispatch order is deterministic
	app.notifier = NewNotifier(defaultEventBacklog, app.logger)
	app.presence = presence.NewTracker(cfg.Presence, app.router, app.identity, app.logger)
	app.reactions = reaction.NewStore(app.router, app.identity, app.logger)
	app.emojis = reaction.NewEmojiSet(cfg.Reactions.EmojiFile, app.logger)
	app.pause = pause.NewCoordinator(cfg.Pause, app.router, app.identity, app.page, app.notifier, app.logger)
	app.warnings = warning.NewCoordinator(cfg.Warning, app.router, app.identity, app.page, app.notifier, app.logger)

	registrations := []struct {
		name     string
		register func(interfaces.Subscriber) error
	}{
		{presence.ModuleID, app.presence.Register},
		{reaction.ModuleID, app.reactions.Register},
		{pause.ModuleID, app.pause.Register},
		{warning.ModuleID, app.warnings.Register},
	}
	for _, reg := range registrations {
		if err := reg.register(app.router); err != nil {
			app.closeJournal()
			return nil, fmt.Errorf("failed to register %s: %w", reg.name, err)
		}
	}

	// STEP 6: Snapshots are requested on every (re)connect; liveness replies refresh presence
	client.OnOpen(func() {
		if err := app.presence.RequestRefresh(); err != nil {
			app.logger.Warn("initial user list request failed", "error", err)
		}
		if err := app.reactions.RequestSnapshot(); err != nil {
			app.logger.Warn("initial reactions request failed", "error", err)
		}
	})
	app.router.OnLiveness(func() {
		if err := app.presence.RequestRefresh(); err != nil {
			app.logger.Debug("presence refresh after pong failed", "error", err)
		}
	})

	app.components = []interfaces.Component{
		app.presence,
		app.reactions,
		app.pause,
		app.warnings,
		app.notifier,
		app.router,
	}

	// STEP 7: Loopback API for the overlay
	deps := api.Deps{
		Transport: client,
		Identity:  app.identity,
		Moderator: app.page,
		Page:      app.page,
		Presence:  app.presence,
		Reactions: app.reactions,
		Emojis:    app.emojis,
		Pause:     app.pause,
		Warnings:  app.warnings,
		Events:    app.notifier,
	}
	if app.journal != nil {
		deps.Journal = app.journal
	}
	app.apiServer = api.NewServer(deps, app.logger)

	if cfg.API.Enabled {
		app.httpServer = &http.Server{
			Addr:         net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port)),
			Handler:      app.apiServer,
			ReadTimeout:  cfg.API.ReadTimeout,
			WriteTimeout: cfg.API.WriteTimeout,
		}
	}

	return app, nil
}

// Run connects to the relay and serves until ctx is cancelled or a component
// fails, then cleans everything up as a final departure.
func (app *Application) Run(ctx context.Context) error {
	app.mu.Lock()
	if app.started {
		app.mu.Unlock()
		return ErrAlreadyRunning
	}
	app.started = true
	app.mu.Unlock()

	app.logger.Info("starting roomsync", "relay", app.config.Relay.URL, "api", app.GetAddr())

	// STEP 1: Start message hub before the first frame can arrive
	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start message hub: %w", err)
	}

	// STEP 2: Dial the relay; reconnects are handled by the client
	app.client.Connect()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.presence.Run(gctx)
	})

	if app.config.Reactions.Watch {
		g.Go(func() error {
			return app.emojis.Watch(gctx)
		})
	}

	if app.httpServer != nil {
		g.Go(func() error {
			if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return app.httpServer.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	app.Cleanup(false)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Cleanup tears the core down once. isRefresh tells the relay whether the
// page is reloading or the participant left. The relay client goes first so
// unregister is sent while the socket is still up.
func (app *Application) Cleanup(isRefresh bool) {
	app.cleanupOnce.Do(func() {
		app.logger.Info("shutting down roomsync", "refresh", isRefresh)

		app.client.Cleanup(isRefresh)

		if app.hub.Running() {
			if err := app.hub.Stop(); err != nil {
				app.logger.Warn("message hub shutdown error", "error", err)
			}
		}

		for _, c := range app.components {
			c.Cleanup(isRefresh)
		}

		app.closeJournal()
		app.logger.Info("roomsync shutdown complete")
	})
}

func (app *Application) closeJournal() {
	if app.journal == nil {
		return
	}
	if err := app.journal.Close(); err != nil {
		app.logger.Warn("journal shutdown error", "error", err)
	}
}

// Page is where identity and moderator state are fed in.
func (app *Application) Page() *identity.Page { return app.page }

// Handler exposes the API for embedding or tests.
func (app *Application) Handler() http.Handler { return app.apiServer }

// InstanceID identifies this process in the journal and logs.
func (app *Application) InstanceID() string { return app.instanceID }

// GetAddr returns the API listen address, or "" when the API is disabled.
func (app *Application) GetAddr() string {
	if app.httpServer == nil {
		return ""
	}
	return app.httpServer.Addr
}
