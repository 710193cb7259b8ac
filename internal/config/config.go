package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// In a container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	// Allow override via environment
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the session record store connection settings
type DatabaseConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// RedisConfig holds the realtime metrics mirror settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

// TrackingConfig holds session tracker settings
type TrackingConfig struct {
	IdleTimeoutMinutes   int `yaml:"idle_timeout_minutes"`
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes"`
}

// IdleTimeout returns the idle timeout as a duration
func (c TrackingConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMinutes) * time.Minute
}

// SweepInterval returns the idle sweep interval as a duration
func (c TrackingConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

// AnalyticsConfig holds the analysis engine thresholds
type AnalyticsConfig struct {
	MinSampleSize         int     `yaml:"min_sample_size"`
	ConfidenceThreshold   float64 `yaml:"confidence_threshold"`
	ConfidenceLevel       float64 `yaml:"confidence_level"`
	SignificanceThreshold float64 `yaml:"significance_threshold"`
	EffectSizeThreshold   float64 `yaml:"effect_size_threshold"`
	PairViabilityFloor    float64 `yaml:"pair_viability_floor"`
	AnalysisWindowDays    int     `yaml:"analysis_window_days"`
}

// AnalysisWindow returns the analysis lookback as a duration
func (c AnalyticsConfig) AnalysisWindow() time.Duration {
	return time.Duration(c.AnalysisWindowDays) * 24 * time.Hour
}

// RealtimeConfig holds event buffer and alerting settings
type RealtimeConfig struct {
	BufferMaxSize        int `yaml:"buffer_max_size"`
	FlushIntervalSeconds int `yaml:"flush_interval_seconds"`
}

// FlushInterval returns the buffer flush interval as a duration
func (c RealtimeConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSeconds) * time.Second
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Tracking.IdleTimeoutMinutes == 0 {
		cfg.Tracking.IdleTimeoutMinutes = 30
	}
	if cfg.Tracking.SweepIntervalMinutes == 0 {
		cfg.Tracking.SweepIntervalMinutes = 5
	}
	if cfg.Analytics.MinSampleSize == 0 {
		cfg.Analytics.MinSampleSize = 5
	}
	if cfg.Analytics.ConfidenceThreshold == 0 {
		cfg.Analytics.ConfidenceThreshold = 0.7
	}
	if cfg.Analytics.ConfidenceLevel == 0 {
		cfg.Analytics.ConfidenceLevel = 0.95
	}
	if cfg.Analytics.SignificanceThreshold == 0 {
		cfg.Analytics.SignificanceThreshold = 0.05
	}
	if cfg.Analytics.EffectSizeThreshold == 0 {
		cfg.Analytics.EffectSizeThreshold = 0.3
	}
	if cfg.Analytics.PairViabilityFloor == 0 {
		cfg.Analytics.PairViabilityFloor = 0.6
	}
	if cfg.Analytics.AnalysisWindowDays == 0 {
		cfg.Analytics.AnalysisWindowDays = 7
	}
	if cfg.Realtime.BufferMaxSize == 0 {
		cfg.Realtime.BufferMaxSize = 50
	}
	if cfg.Realtime.FlushIntervalSeconds == 0 {
		cfg.Realtime.FlushIntervalSeconds = 5
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Database override (deployments keep local defaults in config.yaml)
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
		if !cfg.Database.Enabled {
			cfg.Database.Enabled = true
		}
	}

	// Redis overrides
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
		if !cfg.Redis.Enabled {
			cfg.Redis.Enabled = true
		}
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}

	return cfg, nil
}
