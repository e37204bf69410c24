// Package config provides configuration loading for the filings extractor.
// Supports YAML files, environment variables and a local .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the extractor.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Remote        RemoteConfig        `yaml:"remote"`
	Local         LocalConfig         `yaml:"local"`
	Localizer     LocalizerConfig     `yaml:"localizer"`
	Storage       StorageConfig       `yaml:"storage"`
	Cache         CacheConfig         `yaml:"cache"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// RemoteConfig holds settings for the third-party extraction job API.
type RemoteConfig struct {
	APIKey         string        `yaml:"api_key"`
	TriggerURL     string        `yaml:"trigger_url"`
	ResultURL      string        `yaml:"result_url"`
	UsageURL       string        `yaml:"usage_url"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MinCredits     int           `yaml:"min_credits"`
}

// LocalConfig holds settings for the local detection/extraction services.
type LocalConfig struct {
	DetectorURL   string        `yaml:"detector_url"`
	ExtractorURL  string        `yaml:"extractor_url"`
	RenderDPI     float64       `yaml:"render_dpi"`
	PaddingFactor float64       `yaml:"padding_factor"`
	Timeout       time.Duration `yaml:"timeout"`
}

// LocalizerConfig holds settings for the page localization service.
type LocalizerConfig struct {
	URL      string        `yaml:"url"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// StorageConfig holds artifact and catalog settings.
type StorageConfig struct {
	RootDir  string         `yaml:"root_dir"`
	Database DatabaseConfig `yaml:"database"`
}

// DatabaseConfig holds catalog database settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// CacheConfig holds cache and lock settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	MaxEntries int           `yaml:"max_entries"`
	LockTTL    time.Duration `yaml:"lock_ttl"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment overrides.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8090,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     10 * time.Minute,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
		},
		Remote: RemoteConfig{
			TriggerURL:     "https://trigger.extracttable.com",
			ResultURL:      "https://getresult.extracttable.com",
			UsageURL:       "https://validator.extracttable.com",
			PollInterval:   time.Second,
			RequestTimeout: 2 * time.Minute,
			MinCredits:     1,
		},
		Local: LocalConfig{
			DetectorURL:   "https://extraction-cs.lab.sspcloud.fr/detect",
			ExtractorURL:  "https://extraction-cs.lab.sspcloud.fr/extract",
			RenderDPI:     200,
			PaddingFactor: 1.02,
			Timeout:       2 * time.Minute,
		},
		Localizer: LocalizerConfig{
			URL:      "https://extraction-cs.lab.sspcloud.fr/select_page",
			Timeout:  time.Minute,
			CacheTTL: 30 * 24 * time.Hour,
		},
		Storage: StorageConfig{
			RootDir: "./data/extractions",
			Database: DatabaseConfig{
				Driver: "sqlite",
				SQLite: SQLiteConfig{
					Path:         "./data/extractions.db",
					MaxOpenConns: 1,
				},
				Postgres: PostgresConfig{
					MaxOpenConns:    10,
					MaxIdleConns:    2,
					ConnMaxLifetime: 5 * time.Minute,
				},
			},
		},
		Cache: CacheConfig{
			Driver:     "memory",
			MaxEntries: 10000,
			LockTTL:    15 * time.Minute,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				Prefix:   "fx:",
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "filings-extractor",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Storage.Database.Driver != "sqlite" && c.Storage.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Storage.Database.Driver)
	}

	if c.Storage.Database.Driver == "postgres" && c.Storage.Database.Postgres.DSN == "" {
		return fmt.Errorf("postgres driver requires a dsn")
	}

	if c.Storage.RootDir == "" {
		return fmt.Errorf("storage root_dir is required")
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Remote.PollInterval <= 0 {
		return fmt.Errorf("remote poll_interval must be positive")
	}

	if c.Local.PaddingFactor < 1 {
		return fmt.Errorf("local padding_factor must be >= 1, got %v", c.Local.PaddingFactor)
	}

	return nil
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Storage.Database.Driver == "sqlite" {
		return c.Storage.Database.SQLite.Path
	}
	return c.Storage.Database.Postgres.DSN
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("EXTRACTTABLE_API_KEY"); v != "" {
		cfg.Remote.APIKey = v
	}

	if v := os.Getenv("EXTRACTTABLE_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Remote.PollInterval = d
		}
	}

	if v := os.Getenv("DETECTOR_URL"); v != "" {
		cfg.Local.DetectorURL = v
	}

	if v := os.Getenv("EXTRACTOR_URL"); v != "" {
		cfg.Local.ExtractorURL = v
	}

	if v := os.Getenv("LOCALIZER_URL"); v != "" {
		cfg.Localizer.URL = v
	}

	if v := os.Getenv("STORAGE_ROOT"); v != "" {
		cfg.Storage.RootDir = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Storage.Database.Driver = "sqlite"
			cfg.Storage.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Storage.Database.Driver = "postgres"
			cfg.Storage.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
