package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr        string `env:"ADDR" envDefault:":8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	CORSOrigin  string `env:"CORS_ORIGIN" envDefault:"*"`

	RoundTimeout      time.Duration `env:"ROUND_TIMEOUT" envDefault:"15s"`
	BetweenRounds     time.Duration `env:"BETWEEN_ROUNDS_DELAY" envDefault:"3s"`
	RematchStartDelay time.Duration `env:"REMATCH_START_DELAY" envDefault:"1s"`
	CompletedGrace    time.Duration `env:"COMPLETED_GRACE" envDefault:"5m"`
}

// Load reads .env if present, then the process environment. An empty
// DATABASE_URL runs the server on the in-memory store.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
