package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is read once at startup and never mutated afterwards.
type Config struct {
	Host string
	Port string

	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	DBAcquireTimeout  time.Duration
	RunMigrations     bool

	SecretKey string
	JWTSecret string
	TokenTTL  time.Duration

	ClientID         string
	ClientSecret     string
	AuthURI          string
	TokenURI         string
	RedirectURI      string
	APIURI           string
	AccountID        string
	UpstreamTimeout  time.Duration
	UpstreamMaxBytes int64

	LoginRateLimitMax    int
	LoginRateLimitWindow time.Duration
	// TrustProxy makes X-Forwarded-For the client address. Enable only
	// behind a proxy that sets the header itself.
	TrustProxy    bool
	SnowflakeNode int64

	SentryDSN   string
	Environment string
	LogLevel    string
	LogDev      bool
	LogFile     string
}

const maxTokenTTL = time.Hour

// Load reads the process environment. When loadDotEnv is set an optional
// .env file in the working directory is applied first.
func Load(loadDotEnv bool) (Config, error) {
	if loadDotEnv {
		_ = godotenv.Load()
	}

	var missing []string
	required := func(name string) string {
		value, err := mustEnv(name)
		if err != nil {
			missing = append(missing, name)
		}
		return value
	}

	cfg := Config{
		Host: envOrDefault("HOST", "0.0.0.0"),
		Port: envOrDefault("PORT", "8080"),

		DatabaseURL:       required("DATABASE_URL"),
		DBMaxOpenConns:    envIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:    envIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		DBConnMaxIdleTime: envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),
		DBAcquireTimeout:  envSecondsOrDefault("DB_ACQUIRE_TIMEOUT_SECONDS", 30),
		RunMigrations:     EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", true),

		SecretKey: required("SECRET_KEY"),
		JWTSecret: required("JWT_SECRET"),
		TokenTTL:  envMinutesOrDefault("TOKEN_TTL_MINUTES", 60),

		ClientID:         required("CLIENT_ID"),
		ClientSecret:     required("CLIENT_SECRET"),
		AuthURI:          required("AUTH_URI"),
		TokenURI:         required("TOKEN_URI"),
		RedirectURI:      required("REDIRECT_URI"),
		APIURI:           required("API_URI"),
		AccountID:        envOrDefault("ACCOUNT_ID", ""),
		UpstreamTimeout:  envSecondsOrDefault("UPSTREAM_TIMEOUT_SECONDS", 30),
		UpstreamMaxBytes: int64(envIntOrDefault("UPSTREAM_MAX_RESPONSE_MB", 32)) << 20,

		LoginRateLimitMax:    envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		LoginRateLimitWindow: envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),
		TrustProxy:           EnvBoolOrDefault("TRUST_PROXY", false),

		SentryDSN:   envOrDefault("SENTRY_DSN", ""),
		Environment: envOrDefault("APP_ENV", "development"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		LogDev:      EnvBoolOrDefault("LOG_DEV", false),
		LogFile:     envOrDefault("LOG_FILE", ""),
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required env: %s", strings.Join(missing, ", "))
	}
	if cfg.TokenTTL > maxTokenTTL {
		return Config{}, errors.New("TOKEN_TTL_MINUTES must not exceed 60")
	}
	node, err := envInt64InRange("SNOWFLAKE_NODE", 1, 0, 1023)
	if err != nil {
		return Config{}, err
	}
	cfg.SnowflakeNode = node

	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// envInt64InRange rejects out-of-range or unparsable values instead of
// falling back, since zero is a valid setting.
func envInt64InRange(name string, fallback, min, max int64) (int64, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil || parsed < min || parsed > max {
		return 0, fmt.Errorf("%s must be between %d and %d", name, min, max)
	}
	return parsed, nil
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
