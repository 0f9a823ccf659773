package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"barberbook/internal/availability"
	"barberbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Authority  AuthorityConfig  `yaml:"authority"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Sweep      SweepConfig      `yaml:"sweep"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// AuthorityConfig points at the remote booking backend.
type AuthorityConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Token    string        `yaml:"token"`
	Timeout  time.Duration `yaml:"timeout"`
	RPS      float64       `yaml:"rps"`
	Burst    int           `yaml:"burst"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	// ViewTTL bounds how long a last-known actor view is kept.
	ViewTTL time.Duration `yaml:"view_ttl"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// SweepConfig drives the periodic expiration sweep and the reconcile worker.
type SweepConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	Interval      time.Duration `yaml:"interval"`
	Retry         RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

type ScheduleConfig struct {
	Timezone  string                          `yaml:"timezone"`
	Default   availability.Schedule           `yaml:"default"`
	Shops     map[int64]availability.Schedule `yaml:"shops"`
	ShopsFile string                          `yaml:"shops_file"`
}

// Location resolves Timezone, falling back to UTC when it is empty.
func (s ScheduleConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

// Schedules returns the calculator view of the configured grids.
func (s ScheduleConfig) Schedules() availability.Schedules {
	return availability.Schedules{Default: s.Default, Shops: s.Shops}
}

func Load(configPath string) (*Config, error) {
	// .env необязателен
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Authority.BaseURL == "" {
		return errors.New("authority base_url is required")
	}
	if !strings.HasPrefix(c.Authority.BaseURL, "http://") && !strings.HasPrefix(c.Authority.BaseURL, "https://") {
		return fmt.Errorf("authority base_url must be http(s): %s", c.Authority.BaseURL)
	}

	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if _, err := c.Schedule.Location(); err != nil {
		return fmt.Errorf("schedule timezone: %w", err)
	}

	return ValidateSchedules(c.Schedule.Default, c.Schedule.Shops)
}

// ValidateSchedules checks the default grid and every per-shop grid.
func ValidateSchedules(def availability.Schedule, shops map[int64]availability.Schedule) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("default schedule: %w", err)
	}
	for id, sch := range shops {
		if id <= 0 {
			return fmt.Errorf("shop schedule has invalid ID %d", id)
		}
		if err := sch.Validate(); err != nil {
			return fmt.Errorf("shop %d schedule: %w", id, err)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "barberbook"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	// auth enabled by default when API is enabled
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}

	if c.Authority.Timeout == 0 {
		c.Authority.Timeout = 10 * time.Second
	}
	if c.Authority.CacheTTL == 0 {
		c.Authority.CacheTTL = time.Minute
	}
	if c.Redis.ViewTTL == 0 {
		c.Redis.ViewTTL = 24 * time.Hour
	}

	if c.Sweep.MaxConcurrent == 0 {
		c.Sweep.MaxConcurrent = models.DefaultSweepConcurrency
	}
	if c.Sweep.Interval == 0 {
		c.Sweep.Interval = 5 * time.Minute
	}

	c.Schedule.Default = c.Schedule.Default.WithDefaults()
}
