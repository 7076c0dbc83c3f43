// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage drivers.
const (
	DriverJSON     = "json"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultJWTSecret is the development fallback secret. Servers started with it
// log a warning.
const DefaultJWTSecret = "your-secret-key"

// DefaultFrontendURLs are the local Vite dev server origins.
var DefaultFrontendURLs = []string{
	"http://localhost:5173",
	"http://localhost:8080",
	"http://localhost:8081",
	"http://localhost:8082",
	"http://localhost:8083",
	"http://localhost:8084",
}

// Postgres holds the connection settings for the postgres driver.
type Postgres struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     string `env:"PORT" envDefault:"5432"`
	User     string `env:"USER"`
	Password string `env:"PASSWORD"`
	Name     string `env:"NAME"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`
}

// Config is the complete server configuration.
type Config struct {
	Port          int           `env:"PORT" envDefault:"3001"`
	Environment   string        `env:"APP_ENV" envDefault:"development"`
	DataDir       string        `env:"DATA_DIR" envDefault:"data"`
	StorageDriver string        `env:"STORAGE_DRIVER" envDefault:"json"`
	SQLitePath    string        `env:"SQLITE_PATH"`
	Postgres      Postgres      `envPrefix:"DB_"`
	JWTSecret     string        `env:"JWT_SECRET" envDefault:"your-secret-key"`
	TokenTTL      time.Duration `env:"TOKEN_TTL" envDefault:"168h"`
	FrontendURLs  []string      `env:"FRONTEND_URL" envSeparator:","`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	SeedFile      string        `env:"SEED_FILE"`
}

// Load parses the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Normalize trims values and fills derived defaults. It is safe to call again
// after flags override fields.
func (c *Config) Normalize() {
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	c.DataDir = strings.TrimSpace(c.DataDir)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if strings.TrimSpace(c.SQLitePath) == "" {
		c.SQLitePath = filepath.Join(c.DataDir, "twoguys.db")
	}
	origins := make([]string, 0, len(c.FrontendURLs))
	for _, o := range c.FrontendURLs {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = append(origins, DefaultFrontendURLs...)
	}
	c.FrontendURLs = origins
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	switch c.StorageDriver {
	case DriverJSON:
		if c.DataDir == "" {
			return fmt.Errorf("DATA_DIR is required for the json driver")
		}
	case DriverSQLite:
	case DriverPostgres:
		if c.Postgres.User == "" || c.Postgres.Password == "" || c.Postgres.Name == "" {
			return fmt.Errorf("DB_USER, DB_PASSWORD and DB_NAME are required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q (want json, sqlite or postgres)", c.StorageDriver)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	return nil
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return net.JoinHostPort("", strconv.Itoa(c.Port))
}

// UsesDefaultSecret reports whether tokens are signed with the development secret.
func (c Config) UsesDefaultSecret() bool {
	return c.JWTSecret == DefaultJWTSecret
}

// IsProduction reports whether APP_ENV is production.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
