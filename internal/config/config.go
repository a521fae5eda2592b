package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/mcoot/matchsync/internal/services/auth"
	"github.com/mcoot/matchsync/internal/services/importer"
	"github.com/mcoot/matchsync/internal/services/match"
	"github.com/mcoot/matchsync/internal/storage/postgres"
	redisstorage "github.com/mcoot/matchsync/internal/storage/redis"
)

// Prefix is prepended to every environment key
const Prefix = "MATCHSYNC_"

// Storage backends
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Config is the server configuration
type Config struct {
	Addr     string     `env:"ADDR" envDefault:":8080"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	NodeID   string     `env:"NODE_ID"`

	Storage  string              `env:"STORAGE" envDefault:"memory"`
	Redis    redisstorage.Config `envPrefix:"REDIS_"`
	Postgres postgres.Config     `envPrefix:"PG_"`

	// RedisFeed relays change events between server nodes through Redis
	RedisFeed bool `env:"REDIS_FEED" envDefault:"false"`

	Match    match.Config
	Auth     auth.Config
	Importer importer.Config `envPrefix:"IMPORT_"`

	HubCleanupInterval     time.Duration `env:"HUB_CLEANUP_INTERVAL" envDefault:"1m"`
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"10m"`
}

// Load reads a .env file if present, then the environment
func Load() (Config, error) {
	_ = godotenv.Load()
	return parse(env.Options{Prefix: Prefix})
}

// FromMap parses configuration from vars instead of the process environment.
// Keys carry the prefix.
func FromMap(vars map[string]string) (Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks combinations the tags cannot express and normalizes
// enumerated values
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory, StorageRedis, StoragePostgres:
	default:
		return fmt.Errorf("invalid %sSTORAGE %q: must be memory, redis or postgres", Prefix, c.Storage)
	}
	if c.RedisFeed && c.Redis.URL == "" {
		return fmt.Errorf("%sREDIS_FEED requires %sREDIS_URL", Prefix, Prefix)
	}
	policy, err := match.ParseVacatePolicy(string(c.Match.VacatePolicy))
	if err != nil {
		return err
	}
	c.Match.VacatePolicy = policy
	if c.Match.TimerSeconds <= 0 {
		return fmt.Errorf("%sTIMER_SECONDS must be positive", Prefix)
	}
	return nil
}
