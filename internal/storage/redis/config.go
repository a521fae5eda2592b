package redis

import "time"

// Config holds Redis connection and behavior settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string `env:"URL" envDefault:"redis://localhost:6379"`

	// Pool settings
	PoolSize     int `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int `env:"MIN_IDLE_CONNS" envDefault:"2"`

	// TTL settings. A match and every row it owns expire together.
	ParticipantTTL time.Duration `env:"PARTICIPANT_TTL" envDefault:"24h"`
	MatchTTL       time.Duration `env:"MATCH_TTL" envDefault:"168h"`

	// MaxTxRetries bounds optimistic transaction retries under contention
	MaxTxRetries int `env:"MAX_TX_RETRIES" envDefault:"16"`
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		URL:            "redis://localhost:6379",
		PoolSize:       10,
		MinIdleConns:   2,
		ParticipantTTL: 24 * time.Hour,
		MatchTTL:       7 * 24 * time.Hour,
		MaxTxRetries:   16,
	}
}
