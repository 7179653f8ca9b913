package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`
	AppOrigin         string        `envconfig:"APP_ORIGIN" default:"portal"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	StoreDriver string `envconfig:"STORE_DRIVER" default:"memory"`
	RedisAddr   string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPrefix string `envconfig:"REDIS_PREFIX" default:"portal:"`

	RoleTablePath    string `envconfig:"ROLE_TABLE_PATH"`
	SeedDefaultUsers bool   `envconfig:"SEED_DEFAULT_USERS" default:"true"`

	RealtimeURL            string        `envconfig:"REALTIME_URL" default:"ws://127.0.0.1:8090/ws"`
	RealtimeConnectTimeout time.Duration `envconfig:"REALTIME_CONNECT_TIMEOUT" default:"5s"`
	RealtimeBaseDelay      time.Duration `envconfig:"REALTIME_BASE_DELAY" default:"2s"`
	RealtimeMaxDelay       time.Duration `envconfig:"REALTIME_MAX_DELAY" default:"30s"`
	RealtimeMaxAttempts    int           `envconfig:"REALTIME_MAX_ATTEMPTS" default:"10"`
	RealtimeMaxQueue       int           `envconfig:"REALTIME_MAX_QUEUE" default:"0"`

	HubAddr           string   `envconfig:"HUB_ADDR" default:":8090"`
	HubAllowedOrigins []string `envconfig:"HUB_ALLOWED_ORIGINS"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	switch c.StoreDriver {
	case StoreMemory, StoreRedis:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	if c.StoreDriver == StoreRedis && c.RedisAddr == "" {
		return errors.New("REDIS_ADDR must be provided for the redis store")
	}
	if c.RealtimeMaxAttempts < 0 || c.RealtimeMaxQueue < 0 {
		return errors.New("realtime limits must not be negative")
	}
	if c.RealtimeBaseDelay > c.RealtimeMaxDelay {
		return errors.New("REALTIME_BASE_DELAY exceeds REALTIME_MAX_DELAY")
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
