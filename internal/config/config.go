// Package config содержит логику чтения конфигурации сервиса печати.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const defaultRunAddress = "localhost:8080"

// Config содержит параметры конфигурации сервиса печати.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	AuthSecret  string `env:"AUTH_SECRET"`

	RedisAddress  string `env:"REDIS_ADDRESS"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	KafkaBrokers  string `env:"KAFKA_BROKERS"`

	CloudinaryURL string `env:"CLOUDINARY_URL"`
	StorageDir    string `env:"STORAGE_DIR" envDefault:"./data/files"`
	// PublicURL задаёт внешний адрес сервиса, от него строятся ссылки на локальные файлы.
	PublicURL string `env:"PUBLIC_URL"`

	ResolveRetryAttempts int           `env:"RESOLVE_RETRY_ATTEMPTS" envDefault:"3"`
	ResolveRetryDelay    time.Duration `env:"RESOLVE_RETRY_DELAY" envDefault:"200ms"`
	ReconcileInterval    time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1m"`
	SessionIdleTimeout   time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`
}

// Parse считывает конфигурацию из .env, переменных окружения и флагов командной строки.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envAuthSecret := cfg.AuthSecret

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret for signing auth tokens")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = "http://" + cfg.RunAddress
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")

	if cfg.ResolveRetryAttempts < 1 {
		return nil, fmt.Errorf("RESOLVE_RETRY_ATTEMPTS must be positive, got %d", cfg.ResolveRetryAttempts)
	}
	if cfg.ReconcileInterval <= 0 {
		return nil, fmt.Errorf("RECONCILE_INTERVAL must be positive, got %s", cfg.ReconcileInterval)
	}

	return cfg, nil
}

// FilesURL возвращает адрес, по которому раздаются файлы локального хранилища.
func (c *Config) FilesURL() string {
	return c.PublicURL + "/files"
}
