package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/linkly/admin/internal/handler"
	"github.com/linkly/admin/internal/logger"
	"github.com/linkly/admin/internal/metrics"
	"github.com/linkly/admin/internal/registry"
	"github.com/linkly/admin/internal/store"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

type Config struct {
	Host             string
	Port             string
	StoreBackend     string
	DBPath           string
	RedisAddr        string
	StoreTimeout     time.Duration
	LogLevel         string
	Debug            bool
	ReconcileOnStart bool
}

func newConfigFromEnv() (Config, error) {
	cfg := Config{
		Host:             cmp.Or(os.Getenv("HOST"), "localhost"),
		Port:             cmp.Or(os.Getenv("PORT"), "8080"),
		StoreBackend:     cmp.Or(os.Getenv("STORE_BACKEND"), "sqlite"),
		DBPath:           cmp.Or(os.Getenv("DB_PATH"), "linkly.db"),
		RedisAddr:        cmp.Or(os.Getenv("REDIS_ADDR"), "localhost:6379"),
		LogLevel:         cmp.Or(os.Getenv("LOG_LEVEL"), "info"),
		Debug:            os.Getenv("DEBUG") == "1",
		ReconcileOnStart: os.Getenv("RECONCILE_ON_START") != "0",
	}

	timeout, err := time.ParseDuration(cmp.Or(os.Getenv("STORE_TIMEOUT"), "3s"))
	if err != nil {
		return cfg, fmt.Errorf("invalid STORE_TIMEOUT: %w", err)
	}
	cfg.StoreTimeout = timeout

	return cfg, nil
}

func main() {
	_ = godotenv.Load()

	cfg, err := newConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse configuration from environment")
	}

	if err := logger.Setup(cfg.LogLevel, cfg.Debug); err != nil {
		log.Fatal().Err(err).Str("level", cfg.LogLevel).Msg("failed to parse log level")
	}

	log.Info().Interface("config", cfg).Msg("current configuration")

	ctx := context.Background()
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("application error")
	}
}

func newStore(ctx context.Context, cfg Config) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case "memory":
		return store.NewMemory(), func() {}, nil
	case "sqlite":
		s, err := store.NewSQLite(ctx, cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "redis":
		s, err := store.NewRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func run(ctx context.Context, cfg Config) error {
	log.Info().
		Str("version", version).
		Str("build_time", buildTime).
		Msg("starting application")

	st, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize %s store: %w", cfg.StoreBackend, err)
	}
	defer closeStore()

	reg := registry.NewRegistry(st, cfg.StoreTimeout)
	agg := metrics.NewAggregator(reg, st, cfg.StoreTimeout)

	if cfg.ReconcileOnStart {
		removed, err := reg.ReconcileAliases(ctx)
		if err != nil {
			log.Error().Err(err).Msg("alias reconciliation failed")
		} else if removed > 0 {
			log.Warn().Int("removed", removed).Msg("removed orphan aliases at startup")
		}
	}

	e := echo.New()
	defer e.Close()

	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = customErrorHandler

	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	linkHandler := handler.NewLinkHandler(reg, agg)

	api := e.Group("/api")
	api.POST("/links", linkHandler.CreateLink)
	api.GET("/links", linkHandler.ListLinks)
	api.GET("/links/:id", linkHandler.GetLink)
	api.DELETE("/links/:id", linkHandler.DeleteLink)
	api.GET("/links/:id/metrics", linkHandler.GetLinkMetrics)
	api.GET("/slugs/:slug", linkHandler.ResolveSlug)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	log.Info().Str("address", cfg.Host+":"+cfg.Port).Msg("server starting")

	runServer(ctx, e, cfg.Port)

	return nil
}

func runServer(ctx context.Context, e *echo.Echo, port string) {
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- e.Start(":" + port)
	}()

	<-ctx.Done()

	log.Info().Msg("shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during graceful shutdown")
	}

	if err := <-serverErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server error")
	}

	log.Info().Msg("server stopped")
}

func customErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	message := "internal server error"

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		code = httpErr.Code
		if msg, ok := httpErr.Message.(string); ok {
			message = msg
		}
	}

	log.Error().
		Int("code", code).
		Str("method", c.Request().Method).
		Str("path", c.Request().URL.Path).
		Err(err).
		Msg("http error")

	if c.Response().Committed {
		return
	}

	c.JSON(code, map[string]any{
		"error": message,
	})
}
