package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"barberbook/internal/availability"
	"barberbook/internal/models"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("BARBERBOOK_TOKEN", "secret")

	yamlContent := `
authority:
  base_url: "http://localhost:8081"
  token: "${BARBERBOOK_TOKEN}"
  timeout: 3s
database:
  path: "test.db"
sweep:
  interval: 1m
  retry:
    max_retries: 3
schedule:
  timezone: "Europe/Moscow"
  shops:
    7:
      open: "10:00"
      close: "18:00"
      step_minutes: 60
      closed_weekdays: ["sunday"]
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Authority.Token != "secret" {
		t.Errorf("expected token from env, got %q", cfg.Authority.Token)
	}
	if cfg.Authority.Timeout != 3*time.Second {
		t.Errorf("expected timeout 3s, got %s", cfg.Authority.Timeout)
	}
	if cfg.Sweep.Interval != time.Minute || cfg.Sweep.Retry.MaxRetries != 3 {
		t.Errorf("unexpected sweep config: %+v", cfg.Sweep)
	}
	shop, ok := cfg.Schedule.Shops[7]
	if !ok || shop.StepMinutes != 60 || shop.Open != "10:00" {
		t.Errorf("expected shop 7 schedule, got %+v", cfg.Schedule.Shops)
	}
	if cfg.Schedule.Default.Open != models.DefaultOpenTime {
		t.Errorf("expected default open %s, got %s", models.DefaultOpenTime, cfg.Schedule.Default.Open)
	}
	loc, err := cfg.Schedule.Location()
	if err != nil || loc.String() != "Europe/Moscow" {
		t.Errorf("unexpected location %v (%v)", loc, err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		return Config{
			Authority: AuthorityConfig{BaseURL: "https://api.example.com"},
			Database:  DatabaseConfig{Path: "path"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing base url", mutate: func(c *Config) { c.Authority.BaseURL = "" }, wantErr: true},
		{name: "non http base url", mutate: func(c *Config) { c.Authority.BaseURL = "ftp://x" }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "bad timezone", mutate: func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }, wantErr: true},
		{
			name: "bad shop schedule",
			mutate: func(c *Config) {
				c.Schedule.Shops = map[int64]availability.Schedule{1: {Open: "19:00", Close: "08:00"}}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.API.HTTP.Port != 8080 {
		t.Errorf("expected default HTTP port 8080, got %d", cfg.API.HTTP.Port)
	}
	if cfg.API.Auth.HeaderAPIKey != "x-api-key" {
		t.Errorf("expected default api key header, got %s", cfg.API.Auth.HeaderAPIKey)
	}
	if cfg.Sweep.MaxConcurrent != models.DefaultSweepConcurrency {
		t.Errorf("expected default sweep concurrency %d, got %d", models.DefaultSweepConcurrency, cfg.Sweep.MaxConcurrent)
	}
	if cfg.Authority.Timeout != 10*time.Second {
		t.Errorf("expected default authority timeout 10s, got %s", cfg.Authority.Timeout)
	}
	if cfg.Schedule.Default.StepMinutes != models.DefaultSlotStepMinutes {
		t.Errorf("expected default step %d, got %d", models.DefaultSlotStepMinutes, cfg.Schedule.Default.StepMinutes)
	}
}

func TestValidateSchedules(t *testing.T) {
	tests := []struct {
		name    string
		shops   map[int64]availability.Schedule
		wantErr bool
	}{
		{name: "Valid shops", shops: map[int64]availability.Schedule{1: {}, 2: {Slots: []string{"09:00", "12:30"}}}},
		{name: "ID 0", shops: map[int64]availability.Schedule{0: {}}, wantErr: true},
		{name: "Bad slot", shops: map[int64]availability.Schedule{3: {Slots: []string{"25:00"}}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchedules(availability.DefaultSchedule(), tt.shops)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSchedules() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
