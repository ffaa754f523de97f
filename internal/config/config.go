package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"tischplan/internal/schedule"
)

type Config struct {
	Server struct {
		ListenAddr     string  `yaml:"listen_addr"`
		RatePerSecond  float64 `yaml:"rate_per_second"`
		RateBurst      int     `yaml:"rate_burst"`
		RequestTimeout int     `yaml:"request_timeout_seconds"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Backup BackupConfig `yaml:"backup"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Seating struct {
		Windows                []schedule.ServiceWindow `yaml:"windows"`
		SlotMinutes            int                      `yaml:"slot_minutes"`
		DefaultDurationMinutes int                      `yaml:"default_duration_minutes"`
		BufferMinutes          int                      `yaml:"buffer_minutes"`
		SearchLimit            int                      `yaml:"search_limit"`
		IdempotencyTTLHours    int                      `yaml:"idempotency_ttl_hours"`
	} `yaml:"seating"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	StoragePath   string `yaml:"storage_path"`
	IntervalHours int    `yaml:"interval_hours"`
	RetentionDays int    `yaml:"retention_days"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/tischplan.db"
	}
	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}

	return &cfg, nil
}

// Timetable returns the configured service windows and slot granularity,
// falling back to the house defaults (lunch 11:30-14:00, dinner 17:00-22:30,
// 15 minute grid) when the config leaves them out.
func (c *Config) Timetable() schedule.Timetable {
	windows := c.Seating.Windows
	if len(windows) == 0 {
		windows = []schedule.ServiceWindow{
			{Name: "Mittag", Start: "11:30", End: "14:00"},
			{Name: "Abend", Start: "17:00", End: "22:30"},
		}
	}
	slotMinutes := c.Seating.SlotMinutes
	if slotMinutes <= 0 {
		slotMinutes = 15
	}
	return schedule.Timetable{Windows: windows, SlotMinutes: slotMinutes}
}

func (c *Config) DefaultDuration() int {
	if c.Seating.DefaultDurationMinutes <= 0 {
		return 120
	}
	return c.Seating.DefaultDurationMinutes
}

func (c *Config) Buffer() int {
	if c.Seating.BufferMinutes <= 0 {
		return 15
	}
	return c.Seating.BufferMinutes
}

func (c *Config) SearchLimit() int {
	if c.Seating.SearchLimit <= 0 {
		return 50
	}
	return c.Seating.SearchLimit
}
