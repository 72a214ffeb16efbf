package config

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvAccessSecret  = "JWT_ACCESS_TOKEN_SECRET"
	EnvRefreshSecret = "JWT_REFRESH_TOKEN_SECRET"
	EnvAccessTTL     = "JWT_ACCESS_TOKEN_EXPIRES_IN"
	EnvRefreshTTL    = "JWT_REFRESH_TOKEN_EXPIRES_IN"
)

type Config struct {
	Env        string
	ServerPort int
	LogLevel   string

	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ClockSkew     time.Duration
	Issuer        string

	CheckRevocation bool
	RotateRefresh   bool
	StoreTimeout    time.Duration

	StoreBackend string
	DatabaseURL  string
	RedisAddr    string

	KafkaBrokers []string
	KafkaTopic   string

	ESURL      string
	ESUser     string
	ESPassword string
	ESIndex    string

	SeedDemoUsers bool
}

// ConfigurationError lists every problem found while loading. It is only
// ever returned at startup.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + strings.Join(e.Problems, "; ")
}

func (c *Config) SecureCookies() bool {
	return c.Env != "development"
}

func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}
	return FromEnv(os.Getenv)
}

func FromEnv(getenv func(string) string) (*Config, error) {
	r := reader{getenv: getenv}

	cfg := &Config{
		Env:        r.str("APP_ENV", "production"),
		ServerPort: r.integer("SERVER_PORT", 8080),
		LogLevel:   r.str("LOG_LEVEL", "info"),

		AccessSecret:  []byte(r.required(EnvAccessSecret)),
		RefreshSecret: []byte(r.required(EnvRefreshSecret)),
		AccessTTL:     r.requiredDuration(EnvAccessTTL),
		RefreshTTL:    r.requiredDuration(EnvRefreshTTL),
		ClockSkew:     r.duration("JWT_CLOCK_SKEW", 0),
		Issuer:        r.str("JWT_ISSUER", ""),

		CheckRevocation: r.boolean("REFRESH_REVOCATION_CHECK", true),
		RotateRefresh:   r.boolean("REFRESH_ROTATION", false),
		StoreTimeout:    r.duration("STORE_TIMEOUT", 2*time.Second),

		StoreBackend: strings.ToLower(r.str("STORE_BACKEND", "memory")),
		DatabaseURL:  r.str("DATABASE_URL", ""),
		RedisAddr:    r.str("REDIS_ADDR", ""),

		KafkaBrokers: CSV(r.str("KAFKA_BROKERS", "")),
		KafkaTopic:   r.str("KAFKA_TOPIC", "session_events"),

		ESURL:      r.str("ES_URL", ""),
		ESUser:     r.str("ES_USER", ""),
		ESPassword: r.str("ES_PASSWORD", ""),
		ESIndex:    r.str("ES_INDEX", "session_events"),

		SeedDemoUsers: r.boolean("SEED_DEMO_USERS", true),
	}

	if len(cfg.AccessSecret) > 0 && bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		r.fail("%s and %s must differ", EnvAccessSecret, EnvRefreshSecret)
	}
	if cfg.ClockSkew < 0 {
		r.fail("JWT_CLOCK_SKEW must not be negative")
	}
	if cfg.StoreTimeout <= 0 {
		r.fail("STORE_TIMEOUT must be positive")
	}
	switch cfg.StoreBackend {
	case "memory":
	case "postgres", "sqlite":
		if cfg.DatabaseURL == "" {
			r.fail("DATABASE_URL is required for STORE_BACKEND=%s", cfg.StoreBackend)
		}
	default:
		r.fail("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	if len(r.problems) > 0 {
		return nil, &ConfigurationError{Problems: r.problems}
	}
	return cfg, nil
}

type reader struct {
	getenv   func(string) string
	problems []string
}

func (r *reader) fail(format string, args ...any) {
	r.problems = append(r.problems, fmt.Sprintf(format, args...))
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) required(key string) string {
	v := r.getenv(key)
	if v == "" {
		r.fail("missing required env %s", key)
	}
	return v
}

func (r *reader) requiredDuration(key string) time.Duration {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		r.fail("missing required env %s", key)
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail("%s: %v", key, err)
		return 0
	}
	if d <= 0 {
		r.fail("%s must be positive", key)
	}
	return d
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail("%s: %v", key, err)
		return def
	}
	return d
}

func (r *reader) integer(key string, def int) int {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail("%s: %v", key, err)
		return def
	}
	return n
}

func (r *reader) boolean(key string, def bool) bool {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail("%s: %v", key, err)
		return def
	}
	return b
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
