package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string `env:"PORT" envDefault:"8080"`
	AllowedOrigin         string `env:"ALLOWED_ORIGIN" envDefault:"http://localhost:5173"`
	DatabaseURL           string `env:"DATABASE_URL"`
	RedisAddr             string `env:"REDIS_ADDR"`
	RedisPassword         string `env:"REDIS_PASSWORD"`
	RedisDB               int    `env:"REDIS_DB" envDefault:"0"`
	StoreTimezone         string `env:"STORE_TIMEZONE" envDefault:"America/Sao_Paulo"`
	AuthSecret            string `env:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `env:"ACCESS_TOKEN_TTL_MINUTES" envDefault:"480"`
	CartTTLMinutes        int    `env:"CART_TTL_MINUTES" envDefault:"240"`
	LogLevel              string `env:"LOG_LEVEL" envDefault:"info"`
	OwnerPasswordSeed     string `env:"OWNER_PASSWORD_SEED"`
	SellerPasswordSeed    string `env:"SELLER_PASSWORD_SEED"`
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.AccessTokenTTLMinutes <= 0 {
		return Config{}, fmt.Errorf("ACCESS_TOKEN_TTL_MINUTES must be positive, got %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.CartTTLMinutes <= 0 {
		return Config{}, fmt.Errorf("CART_TTL_MINUTES must be positive, got %d", cfg.CartTTLMinutes)
	}
	return cfg, nil
}

func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// Location resolves STORE_TIMEZONE. Closure days are cut in this zone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.StoreTimezone)
	if err != nil {
		return nil, fmt.Errorf("STORE_TIMEZONE %q: %w", c.StoreTimezone, err)
	}
	return loc, nil
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) CartTTL() time.Duration {
	return time.Duration(c.CartTTLMinutes) * time.Minute
}
