package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"filmlog/internal/auth"
	"filmlog/internal/db"
	"filmlog/internal/movie"
	"filmlog/internal/observability"
	"filmlog/internal/web"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

// Config is read from the environment exactly once at startup and passed
// explicitly to the components that need it.
type Config struct {
	DatabaseURL    string
	JWTSecret      string
	AccessTokenTTL time.Duration
	Environment    string
	SentryDSN      string
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

func LoadConfig() (Config, error) {
	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return Config{}, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return Config{}, err
	}

	return Config{
		DatabaseURL:    databaseURL,
		JWTSecret:      jwtSecret,
		AccessTokenTTL: envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 15),
		Environment:    envOrDefault("APP_ENV", "development"),
		SentryDSN:      os.Getenv("SENTRY_DSN"),
	}, nil
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	config, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(config.SentryDSN, config.Environment); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))
	database.SetConnMaxIdleTime(envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	authRepo := auth.NewRepository(database)
	tokenCodec := auth.NewTokenCodec(config.JWTSecret, config.AccessTokenTTL)
	authService := auth.NewService(authRepo, tokenCodec, logger)
	authHandler := auth.NewHandler(authService)

	movieRepo := movie.NewRepository(database)
	movieHandler := movie.NewHandler(movieRepo)

	webHandler, err := web.NewHandler(authService, movieRepo, logger, config.Environment != "development")
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init web handler: %w", err)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/users", authHandler.Register)
	mux.HandleFunc("POST /api/token", authHandler.IssueToken)
	mux.Handle("GET /api/users/me", auth.Middleware(authService, http.HandlerFunc(authHandler.Me)))
	mux.HandleFunc("GET /health", healthHandler(database))

	mux.HandleFunc("GET /api/movies", movieHandler.ListMovies)
	mux.Handle("POST /api/movies", auth.Middleware(authService, http.HandlerFunc(movieHandler.CreateMovie)))
	mux.Handle("GET /api/movies/{id}", auth.Middleware(authService, http.HandlerFunc(movieHandler.GetMovie)))
	mux.Handle("PUT /api/movies/{id}", auth.Middleware(authService, http.HandlerFunc(movieHandler.UpdateMovie)))
	mux.Handle("DELETE /api/movies/{id}", auth.Middleware(authService, http.HandlerFunc(movieHandler.DeleteMovie)))

	mux.Handle("GET /static/", web.StaticHandler())
	mux.HandleFunc("GET /{$}", webHandler.Home)
	mux.HandleFunc("GET /login", webHandler.LoginPage)
	mux.HandleFunc("POST /auth", webHandler.Login)
	mux.Handle("POST /add-film", auth.WebMiddleware(authService, http.HandlerFunc(webHandler.AddFilm)))
	mux.Handle("GET /movie/{id}", auth.WebMiddleware(authService, http.HandlerFunc(webHandler.MovieRow)))
	mux.Handle("GET /movie/{id}/edit", auth.WebMiddleware(authService, http.HandlerFunc(webHandler.EditRow)))
	mux.Handle("PUT /movie/{id}", auth.WebMiddleware(authService, http.HandlerFunc(webHandler.UpdateRow)))
	mux.Handle("DELETE /movie/{id}/delete", auth.WebMiddleware(authService, http.HandlerFunc(webHandler.DeleteRow)))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
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

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
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
