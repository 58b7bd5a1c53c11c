package config

import (
	"fmt"
	"strings"
	"time"

	pkgconfig "github.com/kaenova/prompty/pkg/config"
)

// EnvPrefix is the environment variable prefix for every setting.
const EnvPrefix = "PROMPTY_"

// App holds the service configuration
type App struct {
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
	Log         struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Store struct {
		Driver  string        `mapstructure:"driver"` // memory, sqlite, postgres
		DSN     string        `mapstructure:"dsn"`    // sqlite file path
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"store"`
	Database Database `mapstructure:"database"`
	JWT      struct {
		Secret string        `mapstructure:"secret"`
		TTL    time.Duration `mapstructure:"ttl"`
	} `mapstructure:"jwt"`
	Invite struct {
		TTL time.Duration `mapstructure:"ttl"`
	} `mapstructure:"invite"`
	NATS struct {
		URL     string `mapstructure:"url"`
		Subject string `mapstructure:"subject"`
	} `mapstructure:"nats"`
	CORS struct {
		Origin string `mapstructure:"origin"`
	} `mapstructure:"cors"`
	RateLimit struct {
		PerMinute int `mapstructure:"perminute"`
		Burst     int `mapstructure:"burst"`
	} `mapstructure:"ratelimit"`
}

// Database holds Postgres connection settings
type Database struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	Name           string `mapstructure:"name"`
	SSLMode        string `mapstructure:"sslmode"`
	MigrationsPath string `mapstructure:"migrationspath"` // empty: use embedded migrations
}

// Defaults returns the default value for every key.
func Defaults() map[string]any {
	return map[string]any{
		"port":                3000,
		"environment":         "development",
		"log.level":           "INFO",
		"log.format":          "json",
		"store.driver":        "sqlite",
		"store.dsn":           "./data/prompty.db",
		"store.timeout":       "5s",
		"database.host":       "localhost",
		"database.port":       5432,
		"database.user":       "prompty",
		"database.name":       "prompty",
		"database.sslmode":    "disable",
		"jwt.ttl":             "24h",
		"invite.ttl":          "168h",
		"nats.subject":        "prompty",
		"cors.origin":         "http://localhost:5173",
		"ratelimit.perminute": 30,
		"ratelimit.burst":     15,
	}
}

// Load reads configuration from file (optional) and PROMPTY_* variables.
func Load(file string) (*App, error) {
	var cfg App
	if err := pkgconfig.Load(EnvPrefix, &cfg, pkgconfig.Options{File: file, Defaults: Defaults()}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *App) Validate() error {
	switch strings.ToLower(c.Store.Driver) {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("store.timeout must be positive")
	}
	if c.JWT.Secret == "" {
		if c.IsProduction() {
			return fmt.Errorf("jwt.secret is required in production")
		}
		c.JWT.Secret = "prompty-dev-secret-key"
	}
	if c.Invite.TTL <= 0 {
		return fmt.Errorf("invite.ttl must be positive")
	}
	return nil
}

// IsProduction reports whether the instance runs in production mode.
func (c *App) IsProduction() bool {
	return c.Environment == "production"
}
