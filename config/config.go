package config

import (
	"fmt"
	"log"
	"os"
	"time"
	_ "time/tzdata" // timezone lookups must not depend on the host's zoneinfo

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Attendance AttendanceConfig `yaml:"attendance"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Log        LogConfig        `yaml:"log"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	// AdminToken guards the /api/admin routes. Empty disables them.
	AdminToken string `yaml:"admin_token"`
	// AllowedOrigins lists the front-end origins allowed by CORS. Empty allows all.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres or sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	EnforceConstraints     bool   `yaml:"enforce_constraints"`
}

// AttendanceConfig holds the anti-cheat and lifecycle thresholds.
type AttendanceConfig struct {
	MaxLocationAgeSeconds  int     `yaml:"max_location_age_seconds"`
	ClockSkewSeconds       int     `yaml:"clock_skew_seconds"`
	RateLimitAttempts      int     `yaml:"rate_limit_attempts"`
	RateLimitWindowSeconds int     `yaml:"rate_limit_window_seconds"`
	MinDwellMinutes        int     `yaml:"min_dwell_minutes"`
	DefaultRadiusMeters    float64 `yaml:"default_radius_meters"`
	Timezone               string  `yaml:"timezone"`

	MaxLocationAge  time.Duration  `yaml:"-"`
	ClockSkew       time.Duration  `yaml:"-"`
	RateLimitWindow time.Duration  `yaml:"-"`
	MinDwell        time.Duration  `yaml:"-"`
	Location        *time.Location `yaml:"-"`
}

// ScoringConfig holds the ledger thresholds.
type ScoringConfig struct {
	LowScoreThreshold int `yaml:"low_score_threshold"`
	NoShowPenalty     int `yaml:"no_show_penalty"`
}

// SchedulerConfig controls the periodic maintenance loop.
type SchedulerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"` // Ignored by YAML parser
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn or error
	Format string `yaml:"format"` // text or json
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}

	if cfg.Database.Driver == "" {
		log.Printf("database.driver is not set; defaulting to postgres")
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.MaxOpenConns <= 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns <= 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes <= 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 30
	}

	a := &cfg.Attendance
	if a.MaxLocationAgeSeconds <= 0 {
		a.MaxLocationAgeSeconds = 60
	}
	if a.ClockSkewSeconds <= 0 {
		a.ClockSkewSeconds = 5
	}
	if a.RateLimitAttempts <= 0 {
		a.RateLimitAttempts = 3
	}
	if a.RateLimitWindowSeconds <= 0 {
		a.RateLimitWindowSeconds = 60
	}
	if a.MinDwellMinutes <= 0 {
		a.MinDwellMinutes = 30
	}
	if a.DefaultRadiusMeters <= 0 {
		a.DefaultRadiusMeters = 50
	}
	if a.Timezone == "" {
		log.Printf("attendance.timezone is not set; defaulting to Asia/Ho_Chi_Minh")
		a.Timezone = "Asia/Ho_Chi_Minh"
	}
	a.MaxLocationAge = time.Duration(a.MaxLocationAgeSeconds) * time.Second
	a.ClockSkew = time.Duration(a.ClockSkewSeconds) * time.Second
	a.RateLimitWindow = time.Duration(a.RateLimitWindowSeconds) * time.Second
	a.MinDwell = time.Duration(a.MinDwellMinutes) * time.Minute

	if cfg.Scoring.LowScoreThreshold <= 0 {
		cfg.Scoring.LowScoreThreshold = 15
	}
	if cfg.Scoring.NoShowPenalty <= 0 {
		cfg.Scoring.NoShowPenalty = 5
	}

	if cfg.Scheduler.IntervalSeconds <= 0 {
		cfg.Scheduler.IntervalSeconds = 300
	}
	cfg.Scheduler.Interval = time.Duration(cfg.Scheduler.IntervalSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Validate checks values that have no sensible default.
func (cfg *Config) Validate() error {
	switch cfg.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver %q is not supported", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	loc, err := time.LoadLocation(cfg.Attendance.Timezone)
	if err != nil {
		return fmt.Errorf("attendance.timezone: %w", err)
	}
	cfg.Attendance.Location = loc

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not supported", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q is not supported", cfg.Log.Format)
	}
	return nil
}
