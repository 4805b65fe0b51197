// Package config loads drinks.fyi configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/drinks-fyi/pkg/logging"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Cache    CacheConfig    `yaml:"cache"`
	CDN      CDNConfig      `yaml:"cdn"`
	Auth     AuthConfig     `yaml:"auth"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Images   ImagesConfig   `yaml:"images"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	BaseURL         string        `yaml:"base_url"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// Path of the SQLite database file. ":memory:" is accepted for tests.
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type CacheConfig struct {
	// TTL of primed loader payloads.
	TTL time.Duration `yaml:"ttl"`

	// PrimeWorkers bounds the number of routes loaded in parallel while priming.
	PrimeWorkers int `yaml:"prime_workers"`

	// BrowserMaxAge and EdgeMaxAge drive the Cache-Control header of pages.
	BrowserMaxAge time.Duration `yaml:"browser_max_age"`
	EdgeMaxAge    time.Duration `yaml:"edge_max_age"`
}

// CDNConfig configures the Fastly purge API. Purging is skipped when disabled.
type CDNConfig struct {
	Enabled   bool   `yaml:"enabled"`
	APIURL    string `yaml:"api_url"`
	ServiceID string `yaml:"service_id"`
	Token     string `yaml:"token"`
	// SoftPurge marks content stale instead of evicting it.
	SoftPurge bool `yaml:"soft_purge"`
}

type AuthConfig struct {
	JWTSecret    string        `yaml:"jwt_secret"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	CookieName   string        `yaml:"cookie_name"`
	SecureCookie bool          `yaml:"secure_cookie"`
}

type WebhookConfig struct {
	Secret string `yaml:"secret"`
}

type ImagesConfig struct {
	// BaseURL is an ImageKit-style endpoint that understands tr: transformations.
	BaseURL string `yaml:"base_url"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns a configuration usable for local development.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			BaseURL:         "http://localhost:8080",
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{Path: "drinks.db"},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Cache: CacheConfig{
			TTL:           24 * time.Hour,
			PrimeWorkers:  8,
			BrowserMaxAge: 5 * time.Minute,
			EdgeMaxAge:    24 * time.Hour,
		},
		CDN: CDNConfig{APIURL: "https://api.fastly.com"},
		Auth: AuthConfig{
			SessionTTL: 12 * time.Hour,
			CookieName: "drinks_session",
		},
		Images:  ImagesConfig{BaseURL: "https://ik.imagekit.io/drinks"},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the YAML file at path on top of Default and applies environment
// overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// ApplyEnv overrides fields from DRINKS_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = b
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := lookup(name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = d
		}
	}

	str("DRINKS_ADDR", &c.Server.Addr)
	str("DRINKS_BASE_URL", &c.Server.BaseURL)
	str("DRINKS_DB_PATH", &c.Database.Path)
	str("DRINKS_REDIS_ADDR", &c.Redis.Addr)
	str("DRINKS_REDIS_PASSWORD", &c.Redis.Password)
	integer("DRINKS_REDIS_DB", &c.Redis.DB)
	duration("DRINKS_CACHE_TTL", &c.Cache.TTL)
	integer("DRINKS_PRIME_WORKERS", &c.Cache.PrimeWorkers)
	boolean("DRINKS_CDN_ENABLED", &c.CDN.Enabled)
	str("DRINKS_FASTLY_API_URL", &c.CDN.APIURL)
	str("DRINKS_FASTLY_SERVICE_ID", &c.CDN.ServiceID)
	str("DRINKS_FASTLY_TOKEN", &c.CDN.Token)
	str("DRINKS_JWT_SECRET", &c.Auth.JWTSecret)
	duration("DRINKS_SESSION_TTL", &c.Auth.SessionTTL)
	boolean("DRINKS_SECURE_COOKIE", &c.Auth.SecureCookie)
	str("DRINKS_WEBHOOK_SECRET", &c.Webhook.Secret)
	str("DRINKS_IMAGES_BASE_URL", &c.Images.BaseURL)
	str("DRINKS_LOG_LEVEL", &c.Logging.Level)
	boolean("DRINKS_LOG_PRETTY", &c.Logging.Pretty)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Validate reports every problem in the configuration at once.
func (c Config) Validate() error {
	var problems []string

	if c.Server.Addr == "" {
		problems = append(problems, "server.addr is required")
	}
	if c.Database.Path == "" {
		problems = append(problems, "database.path is required")
	}
	if c.Redis.Addr == "" {
		problems = append(problems, "redis.addr is required")
	}
	if c.Cache.TTL <= 0 {
		problems = append(problems, "cache.ttl must be positive")
	}
	if c.Cache.PrimeWorkers < 1 {
		problems = append(problems, "cache.prime_workers must be >= 1")
	}
	if c.CDN.Enabled {
		if c.CDN.ServiceID == "" {
			problems = append(problems, "cdn.service_id is required when cdn is enabled")
		}
		if c.CDN.Token == "" {
			problems = append(problems, "cdn.token is required when cdn is enabled")
		}
	}
	if len(c.Auth.JWTSecret) < 32 {
		problems = append(problems, "auth.jwt_secret must be at least 32 bytes")
	}
	if c.Auth.SessionTTL <= 0 {
		problems = append(problems, "auth.session_ttl must be positive")
	}
	if c.Auth.CookieName == "" {
		problems = append(problems, "auth.cookie_name is required")
	}
	if c.Webhook.Secret == "" {
		problems = append(problems, "webhook.secret is required")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		problems = append(problems, "logging.level: "+err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
