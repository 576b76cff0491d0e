package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Debug     bool     `env:"DEBUG" envDefault:"false"`
	LogLevel  string   `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr  string   `env:"HTTP_ADDR" envDefault:":8080"`
	APIPrefix string   `env:"API_PREFIX" envDefault:"/api/v1"`
	CORS      []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	Postgres PostgresConfig
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Auth     AuthConfig
	Admin    AdminConfig `envPrefix:"ADMIN_"`
}

type PostgresConfig struct {
	DatabaseURL string `env:"DATABASE_URL"`
	Host        string `env:"PGHOST" envDefault:"localhost"`
	Port        string `env:"PGPORT" envDefault:"5432"`
	User        string `env:"PGUSER"`
	Password    string `env:"PGPASSWORD"`
	Database    string `env:"PGDATABASE"`
	SSLMode     string `env:"PGSSLMODE" envDefault:"disable"`
}

type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

type AuthConfig struct {
	AccessSecret  string        `env:"JWT_ACCESS_SECRET_KEY"`
	RefreshSecret string        `env:"JWT_REFRESH_SECRET_KEY"`
	AccessTTL     time.Duration `env:"JWT_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL    time.Duration `env:"JWT_REFRESH_TTL" envDefault:"720h"`

	CookiePath        string `env:"AUTH_COOKIE_PATH" envDefault:"/"`
	CookieDomain      string `env:"AUTH_COOKIE_DOMAIN"`
	SessionCookiePath string `env:"AUTH_SESSION_COOKIE_PATH"`
	// Empty means "secure unless DEBUG".
	CookieSecure string `env:"AUTH_COOKIE_SECURE"`

	StoreTimeout     time.Duration `env:"AUTH_STORE_TIMEOUT" envDefault:"2s"`
	SessionKeyPrefix string        `env:"SESSION_KEY_PREFIX" envDefault:"session:"`
}

type AdminConfig struct {
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	Email    string `env:"EMAIL"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// SecureCookies reports whether cookies carry the Secure attribute.
func (c Config) SecureCookies() bool {
	secure, err := strconv.ParseBool(strings.TrimSpace(c.Auth.CookieSecure))
	if err != nil {
		return !c.Debug
	}
	return secure
}

// SessionCookiePath defaults to "/" in debug mode and "/api" behind the production proxy.
func (c Config) SessionCookiePath() string {
	if c.Auth.SessionCookiePath != "" {
		return c.Auth.SessionCookiePath
	}
	if c.Debug {
		return "/"
	}
	return "/api"
}
