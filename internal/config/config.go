package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port                   string `yaml:"port"`
	AllowedOrigin          string `yaml:"allowed_origin"`
	DatabaseURL            string `yaml:"database_url"`
	RedisAddr              string `yaml:"redis_addr"`
	RedisPassword          string `yaml:"redis_password"`
	RedisDB                int    `yaml:"redis_db"`
	CatalogCacheTTLSeconds int    `yaml:"catalog_cache_ttl_seconds"`
	AuthSecret             string `yaml:"auth_secret"`
	AdminTokenTTLMinutes   int    `yaml:"admin_token_ttl_minutes"`
	OrderTokenTTLMinutes   int    `yaml:"order_token_ttl_minutes"`
	AdminUsername          string `yaml:"admin_username"`
	AdminPassword          string `yaml:"admin_password"`
	AppEnv                 string `yaml:"app_env"`
	CookieSecure           bool   `yaml:"cookie_secure"`
}

func defaults() Config {
	return Config{
		Port:                   "8080",
		AllowedOrigin:          "http://127.0.0.1:3000",
		CatalogCacheTTLSeconds: 30,
		AdminTokenTTLMinutes:   480,
		OrderTokenTTLMinutes:   60,
		AdminUsername:          "admin",
		AppEnv:                 "production",
		CookieSecure:           true,
	}
}

// Load reads .env when present, then the YAML file named by CONFIG_FILE,
// then the process environment. Later sources win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	envString("PORT", &cfg.Port)
	envString("ALLOWED_ORIGIN", &cfg.AllowedOrigin)
	envString("DATABASE_URL", &cfg.DatabaseURL)
	envString("REDIS_ADDR", &cfg.RedisAddr)
	envString("REDIS_PASSWORD", &cfg.RedisPassword)
	envString("AUTH_SECRET", &cfg.AuthSecret)
	envString("ADMIN_USERNAME", &cfg.AdminUsername)
	envString("ADMIN_PASSWORD", &cfg.AdminPassword)
	envString("APP_ENV", &cfg.AppEnv)
	if raw := strings.TrimSpace(os.Getenv("REDIS_DB")); raw != "" {
		if db, err := strconv.Atoi(raw); err == nil && db >= 0 {
			cfg.RedisDB = db
		}
	}
	envPositiveInt("CATALOG_CACHE_TTL_SECONDS", &cfg.CatalogCacheTTLSeconds)
	envPositiveInt("ADMIN_TOKEN_TTL_MINUTES", &cfg.AdminTokenTTLMinutes)
	envPositiveInt("ORDER_TOKEN_TTL_MINUTES", &cfg.OrderTokenTTLMinutes)
	if raw := strings.TrimSpace(os.Getenv("COOKIE_SECURE")); raw != "" {
		if secure, err := strconv.ParseBool(raw); err == nil {
			cfg.CookieSecure = secure
		}
	}

	if cfg.CatalogCacheTTLSeconds < 1 {
		cfg.CatalogCacheTTLSeconds = 30
	}
	if cfg.AdminTokenTTLMinutes < 1 {
		cfg.AdminTokenTTLMinutes = 480
	}
	if cfg.OrderTokenTTLMinutes < 1 {
		cfg.OrderTokenTTLMinutes = 60
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) Development() bool {
	return strings.EqualFold(c.AppEnv, "development")
}

func envString(key string, dst *string) {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		*dst = val
	}
}

func envPositiveInt(key string, dst *int) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		*dst = n
	}
}
