package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port          string        `env:"PORT" envDefault:"8080"`
	RedisURL      string        `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	AuthIssuerURL string        `env:"AUTH_ISSUER_URL"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	ReconnectWait time.Duration `env:"RECONNECT_WAIT" envDefault:"3s"`
	MaxReconnects int           `env:"MAX_RECONNECTS" envDefault:"5"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}
