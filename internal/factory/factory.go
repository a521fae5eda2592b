package factory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/matchsync/internal/api"
	"github.com/mcoot/matchsync/internal/config"
	"github.com/mcoot/matchsync/internal/dependencies/clock"
	"github.com/mcoot/matchsync/internal/dependencies/random"
	"github.com/mcoot/matchsync/internal/feed"
	"github.com/mcoot/matchsync/internal/feed/redisbus"
	"github.com/mcoot/matchsync/internal/services/auth"
	"github.com/mcoot/matchsync/internal/services/importer"
	"github.com/mcoot/matchsync/internal/services/match"
	"github.com/mcoot/matchsync/internal/services/roster"
	"github.com/mcoot/matchsync/internal/services/scoring"
	"github.com/mcoot/matchsync/internal/services/timer"
	"github.com/mcoot/matchsync/internal/storage"
	"github.com/mcoot/matchsync/internal/storage/memory"
	"github.com/mcoot/matchsync/internal/storage/postgres"
	"github.com/mcoot/matchsync/internal/storage/realtime"
	redisstorage "github.com/mcoot/matchsync/internal/storage/redis"
)

// App contains all wired application components
type App struct {
	// Storage publishes every committed write to the change feed.
	// Backend is the same store without the feed.
	Storage storage.Storage
	Backend storage.Storage

	// External dependencies
	Clock  clock.Clock
	Random random.Random
	Logger *slog.Logger

	// Change feed. Bus is nil unless events are relayed through Redis.
	Hubs *feed.HubManager
	Bus  *redisbus.Bus

	// Services
	ScoringService   *scoring.Service
	MatchController  *match.Controller
	RosterController *roster.Controller
	TimerController  *timer.Controller
	AuthService      *auth.Service
	Importer         importer.Importer

	closers []func() error
}

// Services holds the service settings shared by New and the test app
type Services struct {
	Match    match.Config
	Auth     auth.Config
	Importer importer.Importer
}

// New builds the application described by cfg
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := clock.New()
	rnd := random.New()

	var (
		backend     storage.Storage
		redisClient *redis.Client
		closers     []func() error
	)

	switch cfg.Storage {
	case config.StorageMemory, "":
		backend = memory.New(clk)
	case config.StorageRedis:
		store, err := redisstorage.New(cfg.Redis, clk)
		if err != nil {
			return nil, fmt.Errorf("redis storage: %w", err)
		}
		backend = store
		redisClient = store.Client()
		closers = append(closers, store.Close)
	case config.StoragePostgres:
		db, err := postgres.Open(cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("postgres storage: %w", err)
		}
		if err := postgres.RunMigrations(db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		store := postgres.New(db, clk)
		backend = store
		closers = append(closers, store.Close)
	default:
		return nil, errors.New("invalid storage: must be 'memory', 'redis' or 'postgres'")
	}

	hubs := feed.NewHubManager(logger)
	var (
		publisher realtime.Publisher = hubs
		bus       *redisbus.Bus
	)
	if cfg.RedisFeed {
		if redisClient == nil {
			opts, err := redis.ParseURL(cfg.Redis.URL)
			if err != nil {
				closeAll(closers)
				return nil, fmt.Errorf("redis feed: %w", err)
			}
			redisClient = redis.NewClient(opts)
			closers = append(closers, redisClient.Close)
		}
		nodeID := cfg.NodeID
		if nodeID == "" {
			nodeID = rnd.ID()
		}
		bus = redisbus.New(redisClient, hubs, nodeID, logger)
		publisher = bus
	}

	svc := Services{
		Match:    cfg.Match,
		Auth:     cfg.Auth,
		Importer: importer.New(cfg.Importer, logger),
	}
	app := newWithDependencies(backend, publisher, hubs, clk, rnd, svc, logger)
	app.Bus = bus
	app.closers = closers
	return app, nil
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	backend storage.Storage,
	publisher realtime.Publisher,
	hubs *feed.HubManager,
	clk clock.Clock,
	rnd random.Random,
	svc Services,
	logger *slog.Logger,
) *App {
	store := realtime.New(backend, publisher, clk, logger)

	scoringService := scoring.New(store, logger)
	matchController := match.NewController(store, scoringService, clk, rnd, logger, svc.Match)
	rosterController := roster.NewController(store, scoringService, svc.Importer, clk, rnd, logger)
	timerController := timer.NewController(store, clk, logger)
	authService := auth.New(store, clk, rnd, svc.Auth)

	return &App{
		Storage:          store,
		Backend:          backend,
		Clock:            clk,
		Random:           rnd,
		Logger:           logger,
		Hubs:             hubs,
		ScoringService:   scoringService,
		MatchController:  matchController,
		RosterController: rosterController,
		TimerController:  timerController,
		AuthService:      authService,
		Importer:         svc.Importer,
	}
}

// Router builds the HTTP API over the app's services
func (a *App) Router() http.Handler {
	return api.NewRouter(api.RouterConfig{
		Logger:           a.Logger,
		Clock:            a.Clock,
		AuthService:      a.AuthService,
		MatchController:  a.MatchController,
		RosterController: a.RosterController,
		TimerController:  a.TimerController,
		Feed:             a.Hubs,
	})
}

// Background lists the long-running tasks the server must run next to HTTP
func (a *App) Background(hubCleanup, sessionCleanup time.Duration) []func(context.Context) error {
	tasks := []func(context.Context) error{
		func(ctx context.Context) error { return a.Hubs.RunCleanup(ctx, hubCleanup) },
		func(ctx context.Context) error { return a.AuthService.RunCleanup(ctx, sessionCleanup) },
	}
	if a.Bus != nil {
		tasks = append(tasks, a.Bus.Run)
	}
	return tasks
}

// Close stops the feed and releases storage connections
func (a *App) Close() error {
	a.Hubs.Close()
	return closeAll(a.closers)
}

func closeAll(closers []func() error) error {
	var errs []error
	for _, c := range closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
