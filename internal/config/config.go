package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	BuildModeDevelopment = "development"
	BuildModeProduction  = "production"
)

// Config struct for environment variables.
type Config struct {
	BuildMode       string        `envconfig:"BUILD_MODE" default:"production"`
	DownloadDir     string        `envconfig:"DOWNLOAD_DIR" default:"downloads"`
	TrackerInterval time.Duration `envconfig:"TRACKER_INTERVAL" default:"30s"`
	TrackerParallel int           `envconfig:"TRACKER_PARALLEL" default:"5"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"INFO"`
	DBPath          string        `envconfig:"DB_PATH" default:"downloads.db"`

	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`

	Aria2 struct {
		RPCURL  string        `envconfig:"RPC_URL" default:"http://localhost:6800/jsonrpc"`
		Secret  string        `envconfig:"SECRET"`
		Timeout time.Duration `envconfig:"TIMEOUT" default:"10s"`
	}

	API struct {
		Username string `split_words:"true"`
		Password string `split_words:"true"`
	}

	Telemetry struct {
		Enabled      bool   `envconfig:"ENABLED" default:"true"`
		ServiceName  string `envconfig:"SERVICE_NAME" default:"aria2_downloader"`
		OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:9092"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads the optional .env files and then the environment into a Config.
// Variables already present in the environment take precedence over .env,
// .env.local overrides both.
func LoadConfig() (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadEnvFiles() error {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("failed to load .env: %w", err)
		}
	}

	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Overload(".env.local"); err != nil {
			return fmt.Errorf("failed to load .env.local: %w", err)
		}
	}

	return nil
}

// Validate checks values envconfig cannot express as tags.
func (c *Config) Validate() error {
	switch strings.ToLower(c.BuildMode) {
	case BuildModeDevelopment, BuildModeProduction:
	default:
		return fmt.Errorf("invalid build mode %q: must be %s or %s", c.BuildMode, BuildModeDevelopment, BuildModeProduction)
	}

	if c.TrackerParallel < 1 {
		return fmt.Errorf("tracker parallelism must be at least 1, got %d", c.TrackerParallel)
	}

	if c.API.Username != "" && c.API.Password == "" {
		return fmt.Errorf("API_PASSWORD is required when API_USERNAME is set")
	}

	return nil
}

// IsDevelopment reports whether the process runs with the development build mode.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.BuildMode, BuildModeDevelopment)
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
