package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Session store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// Config holds every runtime setting of the service, parsed from the
// environment in one place and validated before anything starts.
type Config struct {
	AppName     string `env:"APP_NAME" envDefault:"Colino Auth"`
	Env         string `env:"ENV" envDefault:"DEV"`
	Port        string `env:"PORT" envDefault:"8080"`
	MetricsPort string `env:"METRICS_PORT" envDefault:"9100"` // empty disables the metrics listener

	GoogleClientID     string   `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string   `env:"GOOGLE_CLIENT_SECRET"`
	RedirectURL        string   `env:"OAUTH_REDIRECT_URL"`
	GoogleIssuer       string   `env:"GOOGLE_ISSUER"` // optional; switches endpoint resolution to OIDC discovery
	Scopes             []string `env:"OAUTH_SCOPES" envSeparator:"," envDefault:"https://www.googleapis.com/auth/youtube.readonly,https://www.googleapis.com/auth/youtube.force-ssl"`

	SessionStore string        `env:"SESSION_STORE" envDefault:"memory"`
	RedisURL     string        `env:"REDIS_URL"`
	SQLitePath   string        `env:"SQLITE_PATH"`
	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"10m"`

	Origins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	allowedOrigins AllowedOrigins
}

// Load parses the configuration from the environment and validates it.
// Any problem is fatal: a half-configured service must not come up.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("[config Load] failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required settings and normalizes derived ones.
func (c *Config) Validate() error {
	if c.GoogleClientID == "" {
		return ErrMissingClientID
	}
	if c.GoogleClientSecret == "" {
		return ErrMissingClientSecret
	}
	if c.RedirectURL == "" {
		return ErrMissingRedirectURL
	}
	if u, err := url.Parse(c.RedirectURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidRedirectURL
	}

	switch c.SessionStore {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return ErrMissingRedisURL
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return ErrMissingSQLitePath
		}
	default:
		return fmt.Errorf("%w, got %q", ErrUnknownSessionStore, c.SessionStore)
	}

	if c.SessionTTL <= 0 {
		return ErrInvalidSessionTTL
	}

	c.allowedOrigins = make(AllowedOrigins, len(c.Origins))
	for _, origin := range c.Origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		c.allowedOrigins[origin] = struct{}{}
	}
	return nil
}

// Addr returns the listen address for the API server.
func (c *Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// MetricsAddr returns the listen address for the metrics server, or
// empty when metrics are disabled.
func (c *Config) MetricsAddr() string {
	if c.MetricsPort == "" {
		return ""
	}
	if strings.HasPrefix(c.MetricsPort, ":") {
		return c.MetricsPort
	}
	return ":" + c.MetricsPort
}

func (c *Config) IsDev() bool {
	return c.Env == "DEV"
}
