// Package config loads service configuration from code defaults, an optional
// YAML file and LENS_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"time"

	"lens-backend/pkg/utils"
)

// Environment represents different deployment environments
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
	Test        Environment = "test"
)

// Store drivers.
const (
	DriverSupabase = "supabase"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	Environment Environment `yaml:"environment" envconfig:"ENVIRONMENT" validate:"oneof=development staging production test"`

	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Supabase  SupabaseConfig  `yaml:"supabase" envconfig:"SUPABASE"`
	Store     StoreConfig     `yaml:"store" envconfig:"STORE"`
	Feed      FeedConfig      `yaml:"feed" envconfig:"FEED"`
	Media     MediaConfig     `yaml:"media" envconfig:"MEDIA"`
	Profile   ProfileConfig   `yaml:"profile" envconfig:"PROFILE"`
	Locations LocationsConfig `yaml:"locations" envconfig:"LOCATIONS"`
	Breaker   BreakerConfig   `yaml:"breaker" envconfig:"BREAKER"`
	RateLimit RateLimitConfig `yaml:"rateLimit" envconfig:"RATE_LIMIT"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Tracing   TracingConfig   `yaml:"tracing" envconfig:"TRACING"`
	Metrics   MetricsConfig   `yaml:"metrics" envconfig:"METRICS"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"HOST"`
	Port            int           `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"readTimeout" envconfig:"READ_TIMEOUT" validate:"min=0"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" envconfig:"WRITE_TIMEOUT" validate:"min=0"`
	IdleTimeout     time.Duration `yaml:"idleTimeout" envconfig:"IDLE_TIMEOUT" validate:"min=0"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"min=0"`
	AllowedOrigins  []string      `yaml:"allowedOrigins" envconfig:"ALLOWED_ORIGINS"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SupabaseConfig points at the hosted backend.
type SupabaseConfig struct {
	URL       string `yaml:"url" envconfig:"URL" validate:"omitempty,url"`
	AnonKey   string `yaml:"anonKey" envconfig:"ANON_KEY"`
	JWTSecret string `yaml:"jwtSecret" envconfig:"JWT_SECRET"`
	Bucket    string `yaml:"bucket" envconfig:"BUCKET" validate:"required"`
	Schema    string `yaml:"schema" envconfig:"SCHEMA" validate:"required"`

	RealtimeHeartbeat  time.Duration `yaml:"realtimeHeartbeat" envconfig:"REALTIME_HEARTBEAT" validate:"min=0"`
	RealtimeMaxBackoff time.Duration `yaml:"realtimeMaxBackoff" envconfig:"REALTIME_MAX_BACKOFF" validate:"min=0"`
}

// StoreConfig selects where memory and profile rows live. Identity and
// object storage always go through Supabase.
type StoreConfig struct {
	Driver      string `yaml:"driver" envconfig:"DRIVER" validate:"oneof=supabase postgres memory"`
	PostgresDSN string `yaml:"postgresDSN" envconfig:"POSTGRES_DSN"`
	MaxConns    int32  `yaml:"maxConns" envconfig:"MAX_CONNS" validate:"min=1"`
}

// FeedConfig tunes the synchronized feed.
type FeedConfig struct {
	Window       int           `yaml:"window" envconfig:"WINDOW" validate:"min=1"`
	FetchTimeout time.Duration `yaml:"fetchTimeout" envconfig:"FETCH_TIMEOUT" validate:"min=0"`
}

// MediaConfig bounds uploads.
type MediaConfig struct {
	MaxFiles             int    `yaml:"maxFiles" envconfig:"MAX_FILES" validate:"min=1"`
	MaxFileBytes         int64  `yaml:"maxFileBytes" envconfig:"MAX_FILE_BYTES" validate:"min=1"`
	MaxConcurrentUploads int    `yaml:"maxConcurrentUploads" envconfig:"MAX_CONCURRENT_UPLOADS" validate:"min=1"`
	JPEGQuality          int    `yaml:"jpegQuality" envconfig:"JPEG_QUALITY" validate:"min=1,max=100"`
	CacheControl         string `yaml:"cacheControl" envconfig:"CACHE_CONTROL"`
}

// ProfileConfig tunes the profile cache.
type ProfileConfig struct {
	CacheTTL time.Duration `yaml:"cacheTTL" envconfig:"CACHE_TTL" validate:"min=0"`
}

// LocationsConfig holds the suggested locations offered to the composer.
type LocationsConfig struct {
	File     string   `yaml:"file" envconfig:"FILE"`
	Defaults []string `yaml:"defaults" envconfig:"DEFAULTS"`
}

// BreakerConfig configures the store circuit breaker.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled" envconfig:"ENABLED"`
	MaxRequests      uint32        `yaml:"maxRequests" envconfig:"MAX_REQUESTS"`
	Interval         time.Duration `yaml:"interval" envconfig:"INTERVAL" validate:"min=0"`
	Timeout          time.Duration `yaml:"timeout" envconfig:"TIMEOUT" validate:"min=0"`
	FailureThreshold uint32        `yaml:"failureThreshold" envconfig:"FAILURE_THRESHOLD" validate:"min=1"`
	FailureRatio     float64       `yaml:"failureRatio" envconfig:"FAILURE_RATIO" validate:"min=0,max=1"`
}

// RateLimitConfig configures per-IP and per-user limits.
type RateLimitConfig struct {
	Enabled       bool `yaml:"enabled" envconfig:"ENABLED"`
	IPPerMinute   int  `yaml:"ipPerMinute" envconfig:"IP_PER_MINUTE" validate:"min=1"`
	UserPerMinute int  `yaml:"userPerMinute" envconfig:"USER_PER_MINUTE" validate:"min=1"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" envconfig:"ENABLED"`
	Endpoint    string  `yaml:"endpoint" envconfig:"ENDPOINT"`
	ServiceName string  `yaml:"serviceName" envconfig:"SERVICE_NAME"`
	SampleRate  float64 `yaml:"sampleRate" envconfig:"SAMPLE_RATE" validate:"min=0,max=1"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"ENABLED"`
	Path    string `yaml:"path" envconfig:"PATH"`
}

// DefaultLocations are the suggested locations shipped with the service.
var DefaultLocations = []string{"The Cafe", "Co-working", "Gym", "Poolside", "Beach", "Dorms"}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Environment: Development,
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Supabase: SupabaseConfig{
			Bucket:             "memories",
			Schema:             "public",
			RealtimeHeartbeat:  25 * time.Second,
			RealtimeMaxBackoff: 30 * time.Second,
		},
		Store: StoreConfig{
			Driver:   DriverSupabase,
			MaxConns: 10,
		},
		Feed: FeedConfig{
			Window:       50,
			FetchTimeout: 10 * time.Second,
		},
		Media: MediaConfig{
			MaxFiles:             10,
			MaxFileBytes:         50 << 20,
			MaxConcurrentUploads: 4,
			JPEGQuality:          80,
			CacheControl:         "3600",
		},
		Profile: ProfileConfig{
			CacheTTL: 5 * time.Minute,
		},
		Locations: LocationsConfig{
			Defaults: append([]string(nil), DefaultLocations...),
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			MaxRequests:      1,
			Interval:         60 * time.Second,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
			FailureRatio:     0.6,
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			IPPerMinute:   100,
			UserPerMinute: 200,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Tracing: TracingConfig{
			ServiceName: "lensd",
			SampleRate:  0.1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate checks field constraints and the rules that span sections.
func (c *Config) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var errs []error
	if c.Supabase.URL == "" {
		errs = append(errs, errors.New("supabase.url is required"))
	}
	if c.Supabase.AnonKey == "" {
		errs = append(errs, errors.New("supabase.anonKey is required"))
	}
	if c.Store.Driver == DriverPostgres && c.Store.PostgresDSN == "" {
		errs = append(errs, errors.New("store.postgresDSN is required for the postgres driver"))
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		errs = append(errs, errors.New("tracing.endpoint is required when tracing is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// IsProduction returns true if running in production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsDevelopment returns true if running in development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}
