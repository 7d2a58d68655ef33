package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"arafims/backend/internal/cache"
	"arafims/backend/internal/config"
	"arafims/backend/internal/httpapi"
	"arafims/backend/internal/service"
	"arafims/backend/internal/store"
	"arafims/backend/internal/store/memory"
	pgstore "arafims/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("invalid security configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal("postgres unavailable and DATABASE_URL is set, refusing in-memory fallback", zap.Error(err))
		}
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal("migrate schema", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository ready", zap.String("backend", "postgres"))
	} else {
		repo = memory.NewSeeded(logger)
		logger.Info("repository ready", zap.String("backend", "memory"))
	}

	catalogCache := cache.CatalogCache(cache.NoopCatalogCache{})
	var loginLimiter, orderLimiter cache.AttemptLimiter
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		redisCache := cache.NewRedisCatalogCache(client)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using noop cache and local limiters", zap.Error(err))
			_ = client.Close()
		} else {
			catalogCache = redisCache
			loginLimiter = cache.NewRedisAttemptLimiter(client, "arafims:login", 5, time.Minute)
			orderLimiter = cache.NewRedisAttemptLimiter(client, "arafims:orders", 20, time.Minute)
			closers = append(closers, redisCache.Close)
			logger.Info("cache ready", zap.String("backend", "redis"))
		}
	} else {
		logger.Info("cache ready", zap.String("backend", "noop"))
	}

	svc := service.New(
		repo,
		catalogCache,
		time.Duration(cfg.CatalogCacheTTLSeconds)*time.Second,
		time.Duration(cfg.OrderTokenTTLMinutes)*time.Minute,
		logger,
	)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AdminTokenTTLMinutes)*time.Minute, repo, logger.Named("auth"))
	if cfg.AdminPassword != "" {
		if err := auth.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
			logger.Fatal("ensure admin account", zap.Error(err))
		}
	} else if cfg.DatabaseURL != "" {
		logger.Warn("ADMIN_PASSWORD is not set, no admin account will be created")
	}

	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		CookieSecure:  cfg.CookieSecure,
		LoginLimiter:  loginLimiter,
		OrderLimiter:  orderLimiter,
		Logger:        logger.Named("http"),
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("arafims backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.Development() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AdminPassword != "" {
		if err := validatePasswordStrength(cfg.AdminPassword); err != nil {
			return fmt.Errorf("ADMIN_PASSWORD is too weak: %w", err)
		}
	}
	return nil
}

// validatePasswordStrength rejects short passwords, single repeated
// characters and a handful of well-known choices.
func validatePasswordStrength(password string) error {
	if len(password) < 10 {
		return fmt.Errorf("must be at least 10 characters")
	}

	known := map[string]bool{
		"password123": true, "admin12345": true, "1234567890": true,
		"qwertyuiop": true, "password1234": true, "administrator": true,
	}
	if known[strings.ToLower(password)] {
		return fmt.Errorf("common password not allowed")
	}

	allSame := true
	for i := 1; i < len(password); i++ {
		if password[i] != password[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("single repeated character not allowed")
	}

	return nil
}
