package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jmoiron/sqlx"

	"openbank-cache/internal/auth"
	"openbank-cache/internal/config"
	"openbank-cache/internal/db"
	"openbank-cache/internal/oauth"
	"openbank-cache/internal/observability"
	"openbank-cache/internal/provider"
	"openbank-cache/internal/transactions"
)

type Options struct {
	LoadDotEnv bool
	// RunMigrations overrides RUN_MIGRATIONS_ON_STARTUP when non-nil.
	RunMigrations *bool
}

type Runtime struct {
	Config  config.Config
	Logger  *observability.Logger
	Handler http.Handler
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	cfg, err := config.Load(options.LoadDotEnv)
	if err != nil {
		return nil, err
	}

	logger, err := observability.NewLogger(observability.LoggerConfig{
		Level: cfg.LogLevel,
		Dev:   cfg.LogDev,
		File:  cfg.LogFile,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if err := observability.InitSentry(cfg.SentryDSN, cfg.Environment); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := db.Open(context.Background(), db.Options{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		ConnectTimeout:  cfg.DBAcquireTimeout,
	})
	if err != nil {
		return nil, err
	}

	runMigrations := cfg.RunMigrations
	if options.RunMigrations != nil {
		runMigrations = *options.RunMigrations
	}
	if runMigrations {
		if err := db.RunMigrations(context.Background(), database.DB); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("migrations_applied", nil)
	}

	handler, err := NewHandler(cfg, database, logger)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	return &Runtime{
		Config:  cfg,
		Logger:  logger,
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			_ = logger.Sync()
			return database.Close()
		},
	}, nil
}

// NewHandler wires every component over an open database and returns the
// fully wrapped router.
func NewHandler(cfg config.Config, database *sqlx.DB, logger *observability.Logger) (http.Handler, error) {
	ids, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		return nil, fmt.Errorf("init snowflake node: %w", err)
	}

	bank := provider.NewClient(provider.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		AuthURI:      cfg.AuthURI,
		TokenURI:     cfg.TokenURI,
		RedirectURI:  cfg.RedirectURI,
		APIURI:       cfg.APIURI,
		AccountID:    cfg.AccountID,
		MaxDataBytes: cfg.UpstreamMaxBytes,
		HTTPClient:   &http.Client{Timeout: cfg.UpstreamTimeout},
	})

	users := auth.NewRepository(database, cfg.DBAcquireTimeout)
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	hasher := auth.NewHasher(cfg.SecretKey, auth.DefaultHashParams())
	authHandler := auth.NewHandler(auth.NewService(users, hasher, tokens, bank), logger)
	gate := auth.NewGate(tokens, users, logger)
	loginLimiter := auth.NewLoginRateLimiter(cfg.LoginRateLimitMax, cfg.LoginRateLimitWindow).
		WithTrustedProxy(cfg.TrustProxy)

	callbackHandler := oauth.NewHandler(oauth.NewService(tokens, users, bank, logger), logger)

	cache := transactions.NewRepository(database, cfg.DBAcquireTimeout)
	txHandler := transactions.NewHandler(transactions.NewService(cache, users, bank, ids, logger), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /health", healthHandler(database))
	mux.HandleFunc("POST /signup", authHandler.Signup)
	mux.Handle("POST /auth", loginLimiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.Handle("GET /me", gate.RequireUser(http.HandlerFunc(authHandler.Me)))
	mux.HandleFunc("GET /callback", callbackHandler.Callback)
	txHandler.Routes(mux, gate.RequireUser)

	return observability.RequestIDMiddleware(
		observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux)),
	), nil
}

type pinger interface {
	PingContext(ctx context.Context) error
}

func healthHandler(database pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
