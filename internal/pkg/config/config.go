package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Tracker       TrackerConfig       `mapstructure:"tracker"`
	Dataset       DatasetConfig       `mapstructure:"dataset"`
	HomeAssistant HomeAssistantConfig `mapstructure:"homeassistant"`
	Database      DatabaseConfig      `mapstructure:"database"`
	NATS          NATSConfig          `mapstructure:"nats"`
	Valkey        ValkeyConfig        `mapstructure:"valkey"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

// TrackerConfig tunes the evaluation engine.
type TrackerConfig struct {
	EntityID               string  `mapstructure:"entity_id"`
	HysteresisThreshold    int     `mapstructure:"hysteresis_threshold"`
	MinIntervalSeconds     int     `mapstructure:"min_interval_seconds"`
	MaxIntervalSeconds     int     `mapstructure:"max_interval_seconds"`
	SearchRadiusMiles      float64 `mapstructure:"search_radius_miles"`
	UnresolvedRetrySeconds int     `mapstructure:"unresolved_retry_seconds"`
	PendingProbeSeconds    int     `mapstructure:"pending_probe_seconds"`
}

// DatasetConfig locates the timezone boundary dataset.
type DatasetConfig struct {
	Path                  string  `mapstructure:"path"`
	URL                   string  `mapstructure:"url"`
	Region                string  `mapstructure:"region"`
	RefreshDays           int     `mapstructure:"refresh_days"`
	AdjacencyToleranceDeg float64 `mapstructure:"adjacency_tolerance_deg"`
}

// HomeAssistantConfig points at the home automation instance that supplies
// positions and receives zone changes.
type HomeAssistantConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Token          string `mapstructure:"token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	Poll           bool   `mapstructure:"poll"`
	FireEvents     bool   `mapstructure:"fire_events"`
	EventType      string `mapstructure:"event_type"`
	ApplyService   string `mapstructure:"apply_service"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

var validRegions = map[string]bool{
	"us":            true,
	"us_canada":     true,
	"north_america": true,
	"americas":      true,
	"europe":        true,
	"all":           true,
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("tracker.entity_id", "device_tracker.vehicle")
	v.SetDefault("tracker.hysteresis_threshold", 2)
	v.SetDefault("tracker.min_interval_seconds", 30)
	v.SetDefault("tracker.max_interval_seconds", 3600)
	v.SetDefault("tracker.search_radius_miles", 100)
	v.SetDefault("tracker.unresolved_retry_seconds", 300)
	v.SetDefault("tracker.pending_probe_seconds", 30)
	v.SetDefault("dataset.path", "data/timezones-now.geojson")
	v.SetDefault("dataset.url", "https://github.com/evansiroky/timezone-boundary-builder/releases/latest/download/timezones-now.geojson.zip")
	v.SetDefault("dataset.region", "north_america")
	v.SetDefault("dataset.refresh_days", 30)
	v.SetDefault("dataset.adjacency_tolerance_deg", 0.05)
	v.SetDefault("homeassistant.base_url", "http://homeassistant.local:8123")
	v.SetDefault("homeassistant.token", "")
	v.SetDefault("homeassistant.timeout_seconds", 10)
	v.SetDefault("homeassistant.poll", true)
	v.SetDefault("homeassistant.fire_events", true)
	v.SetDefault("homeassistant.event_type", "timezone_tracker.zone_changed")
	v.SetDefault("homeassistant.apply_service", "")
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "tztracker")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "tztracker")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: TZTRACKER_DATASET_PATH → dataset.path
	v.SetEnvPrefix("TZTRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Tracker.HysteresisThreshold < 1 {
		errs = append(errs, fmt.Sprintf("tracker.hysteresis_threshold must be at least 1, got %d", c.Tracker.HysteresisThreshold))
	}
	if c.Tracker.MinIntervalSeconds <= 0 {
		errs = append(errs, "tracker.min_interval_seconds must be positive")
	}
	if c.Tracker.MaxIntervalSeconds < c.Tracker.MinIntervalSeconds {
		errs = append(errs, fmt.Sprintf("tracker.max_interval_seconds must be at least min_interval_seconds, got %d < %d",
			c.Tracker.MaxIntervalSeconds, c.Tracker.MinIntervalSeconds))
	}
	if c.Tracker.SearchRadiusMiles <= 0 {
		errs = append(errs, "tracker.search_radius_miles must be positive")
	}
	if c.Tracker.UnresolvedRetrySeconds <= 0 {
		errs = append(errs, "tracker.unresolved_retry_seconds must be positive")
	}
	if c.Tracker.PendingProbeSeconds <= 0 {
		errs = append(errs, "tracker.pending_probe_seconds must be positive")
	}
	if c.Dataset.Path == "" {
		errs = append(errs, "dataset.path is required")
	}
	if !validRegions[c.Dataset.Region] {
		errs = append(errs, fmt.Sprintf("dataset.region must be one of us, us_canada, north_america, americas, europe, all; got %q", c.Dataset.Region))
	}
	if c.Dataset.RefreshDays < 0 {
		errs = append(errs, "dataset.refresh_days must not be negative")
	}
	if c.Dataset.AdjacencyToleranceDeg < 0 {
		errs = append(errs, "dataset.adjacency_tolerance_deg must not be negative")
	}
	if c.HomeAssistant.Poll {
		if c.HomeAssistant.BaseURL == "" {
			errs = append(errs, "homeassistant.base_url is required when polling is enabled")
		}
		if c.Tracker.EntityID == "" {
			errs = append(errs, "tracker.entity_id is required when polling is enabled")
		}
		if c.HomeAssistant.TimeoutSeconds <= 0 {
			errs = append(errs, "homeassistant.timeout_seconds must be positive")
		}
	}
	if c.Database.Enabled {
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
