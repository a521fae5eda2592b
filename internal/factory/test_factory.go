package factory

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/matchsync/internal/dependencies/mocks"
	"github.com/mcoot/matchsync/internal/feed"
	"github.com/mcoot/matchsync/internal/feed/redisbus"
	"github.com/mcoot/matchsync/internal/services/auth"
	"github.com/mcoot/matchsync/internal/services/importer"
	"github.com/mcoot/matchsync/internal/services/match"
	"github.com/mcoot/matchsync/internal/storage"
	"github.com/mcoot/matchsync/internal/storage/memory"
	redisstorage "github.com/mcoot/matchsync/internal/storage/redis"
	"github.com/mcoot/matchsync/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
}

// TestOption adjusts the services of a test app
type TestOption func(*Services)

// WithImporter replaces the team importer
func WithImporter(imp importer.Importer) TestOption {
	return func(s *Services) { s.Importer = imp }
}

// WithVacatePolicy sets what happens to a slot its participant leaves
func WithVacatePolicy(policy match.VacatePolicy) TestOption {
	return func(s *Services) { s.Match.VacatePolicy = policy }
}

// NewTestApp creates an App over memory storage with mocked dependencies
func NewTestApp(opts ...TestOption) *TestApp {
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	return newTestApp(memory.New(mockClock), mockClock, nil, opts)
}

// NewRedisTestApp creates an App over a shared Redis whose change feed is
// relayed between nodes. Several apps on one client behave like a cluster.
func NewRedisTestApp(client *redis.Client, nodeID string, opts ...TestOption) *TestApp {
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	store := redisstorage.NewWithClient(client, redisstorage.DefaultConfig(), mockClock)
	return newTestApp(store, mockClock, func(hubs *feed.HubManager) *redisbus.Bus {
		return redisbus.New(client, hubs, nodeID, testutil.NopLogger())
	}, opts)
}

func newTestApp(backend storage.Storage, mockClock *mocks.MockClock, busFor func(*feed.HubManager) *redisbus.Bus, opts []TestOption) *TestApp {
	logger := testutil.NopLogger()
	mockRandom := mocks.NewMockRandom()

	svc := Services{
		Match:    match.DefaultConfig(),
		Auth:     auth.DefaultConfig(),
		Importer: importer.New(importer.DefaultConfig(), logger),
	}
	for _, opt := range opts {
		opt(&svc)
	}

	hubs := feed.NewHubManager(logger)
	var bus *redisbus.Bus
	var app *App
	if busFor != nil {
		bus = busFor(hubs)
		app = newWithDependencies(backend, bus, hubs, mockClock, mockRandom, svc, logger)
		app.Bus = bus
	} else {
		app = newWithDependencies(backend, hubs, hubs, mockClock, mockRandom, svc, logger)
	}

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
	}
}
