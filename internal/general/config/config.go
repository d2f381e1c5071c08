package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database struct {
		Host     string
		Port     int
		User     string
		Password string
		Name     string // YAML key: "database"
	}
	Redis struct {
		Host     string
		Port     int
		Password string
		DB       int
	}
	RabbitMQ struct {
		Host     string
		Port     int
		User     string
		Password string
	}
	Services struct {
		BookingServicePort  int
		TrackingServicePort int
		AdminServicePort    int
	}
	JWT struct {
		SecretKey string
	}
	Tracking struct {
		SampleIntervalSeconds  int     // location publisher cadence
		ETARefreshSeconds      int     // ETA engine fallback refresh cadence
		PositionTimeoutSeconds int     // per-sample position read deadline
		AvgSpeedKmh            float64 // assumed travel speed for ETA estimates
	}
}

// SampleInterval returns the publisher cadence as a duration.
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.Tracking.SampleIntervalSeconds) * time.Second
}

// ETARefreshInterval returns the ETA fallback refresh cadence as a duration.
func (c *Config) ETARefreshInterval() time.Duration {
	return time.Duration(c.Tracking.ETARefreshSeconds) * time.Second
}

// PositionTimeout returns the bounded per-sample read deadline.
func (c *Config) PositionTimeout() time.Duration {
	return time.Duration(c.Tracking.PositionTimeoutSeconds) * time.Second
}

// LoadFromFile loads config from a YAML file to a Config struct, applies defaults, and validates required fields.
// A .env file next to the binary is loaded first (best effort) so ${VAR}
// scalars in the YAML can be resolved from it.
func LoadFromFile(path string) (*Config, error) {
	_ = godotenv.Load()

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := parseYAML(file, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets safe defaults for some fields.
func applyDefaults(cfg *Config) {
	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}

	// Redis
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}

	// Services
	if cfg.Services.BookingServicePort == 0 {
		cfg.Services.BookingServicePort = 3000
	}
	if cfg.Services.TrackingServicePort == 0 {
		cfg.Services.TrackingServicePort = 3001
	}
	if cfg.Services.AdminServicePort == 0 {
		cfg.Services.AdminServicePort = 3004
	}

	// Tracking cadences (documented defaults: 10s samples, 15s ETA refresh)
	if cfg.Tracking.SampleIntervalSeconds == 0 {
		cfg.Tracking.SampleIntervalSeconds = 10
	}
	if cfg.Tracking.ETARefreshSeconds == 0 {
		cfg.Tracking.ETARefreshSeconds = 15
	}
	if cfg.Tracking.PositionTimeoutSeconds == 0 {
		cfg.Tracking.PositionTimeoutSeconds = 5
	}
	if cfg.Tracking.AvgSpeedKmh == 0 {
		cfg.Tracking.AvgSpeedKmh = 40
	}

	if cfg.JWT.SecretKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// fallback: time-based bytes
			key = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		cfg.JWT.SecretKey = base64.StdEncoding.EncodeToString(key)
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	// DB
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "database.port must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "database.password is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.name is required")
	}

	// Redis
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		problems = append(problems, "redis.port must be in 1..65535")
	}
	if c.Redis.DB < 0 {
		problems = append(problems, "redis.db cannot be negative")
	}

	// RabbitMQ
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "rabbitmq.port must be in 1..65535")
	}
	if c.RabbitMQ.User == "" {
		problems = append(problems, "rabbitmq.user is required")
	}
	if c.RabbitMQ.Password == "" {
		problems = append(problems, "rabbitmq.password is required")
	}

	// Services
	if c.Services.BookingServicePort <= 0 || c.Services.BookingServicePort > 65535 {
		problems = append(problems, "services.booking_service must be in 1..65535")
	}
	if c.Services.TrackingServicePort <= 0 || c.Services.TrackingServicePort > 65535 {
		problems = append(problems, "services.tracking_service must be in 1..65535")
	}
	if c.Services.AdminServicePort <= 0 || c.Services.AdminServicePort > 65535 {
		problems = append(problems, "services.admin_service must be in 1..65535")
	}

	// Tracking
	if c.Tracking.SampleIntervalSeconds < 1 {
		problems = append(problems, "tracking.sample_interval_seconds must be >= 1")
	}
	if c.Tracking.ETARefreshSeconds < 1 {
		problems = append(problems, "tracking.eta_refresh_seconds must be >= 1")
	}
	if c.Tracking.PositionTimeoutSeconds < 1 {
		problems = append(problems, "tracking.position_timeout_seconds must be >= 1")
	}
	if c.Tracking.AvgSpeedKmh <= 0 {
		problems = append(problems, "tracking.avg_speed_kmh must be > 0")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
