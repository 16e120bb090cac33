// Package config handles loading and validation of application configuration
// from environment variables and potentially configuration files.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/LedgerLens/ledgerlens-backend/logger"
	"github.com/spf13/viper"
)

// Environment represents the application's running environment (development or production).
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Environment    Environment `mapstructure:"ENVIRONMENT" yaml:"environment"`
	Port           string      `mapstructure:"PORT" yaml:"port"`
	AllowedOrigins []string    `mapstructure:"ALLOWED_ORIGINS" yaml:"allowed_origins"`
	Version        string      `mapstructure:"VERSION" yaml:"version"`
}

// QueueConfig holds the upload queue limits and acceptance policy.
type QueueConfig struct {
	// MaxItems caps the number of items held in the queue at once.
	MaxItems int `mapstructure:"MAX_ITEMS" yaml:"max_items"`
	// MaxSizeBytes is the per-item payload cap, enforced before transfer.
	MaxSizeBytes int64 `mapstructure:"MAX_SIZE_BYTES" yaml:"max_size_bytes"`
	// CompressionThresholdBytes is the raster payload size above which
	// adaptive re-encoding kicks in. Must not exceed MaxSizeBytes.
	CompressionThresholdBytes int64 `mapstructure:"COMPRESSION_THRESHOLD_BYTES" yaml:"compression_threshold_bytes"`
	// AllowedTypes is the set of acceptable MIME types, matched against the
	// server-side sniffed type, never the client-declared one.
	AllowedTypes []string `mapstructure:"ALLOWED_TYPES" yaml:"allowed_types"`
}

// ExtractionConfig holds tunables for the field extraction validator.
type ExtractionConfig struct {
	// ConfidenceThreshold is the per-field confidence below which validation
	// flags a low-confidence issue.
	ConfidenceThreshold float64 `mapstructure:"CONFIDENCE_THRESHOLD" yaml:"confidence_threshold"`
}

// RecognitionConfig holds connection details for the external recognition service.
type RecognitionConfig struct {
	Endpoint       string `mapstructure:"ENDPOINT" yaml:"endpoint"`
	APIKey         string `mapstructure:"API_KEY" yaml:"api_key"`
	TimeoutSeconds int    `mapstructure:"TIMEOUT_SECONDS" yaml:"timeout_seconds"`
}

// ObjectStoreConfig holds credentials for the S3-compatible transfer target.
type ObjectStoreConfig struct {
	Endpoint        string `mapstructure:"ENDPOINT" yaml:"endpoint"`
	Bucket          string `mapstructure:"BUCKET" yaml:"bucket"`
	AccessKeyID     string `mapstructure:"ACCESS_KEY_ID" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"SECRET_ACCESS_KEY" yaml:"secret_access_key"`
}

// Config aggregates all application configuration sections.
type Config struct {
	Server      ServerConfig      `mapstructure:"SERVER" yaml:"server"`
	Queue       QueueConfig       `mapstructure:"QUEUE" yaml:"queue"`
	Extraction  ExtractionConfig  `mapstructure:"EXTRACTION" yaml:"extraction"`
	Recognition RecognitionConfig `mapstructure:"RECOGNITION" yaml:"recognition"`
	ObjectStore ObjectStoreConfig `mapstructure:"OBJECT_STORE" yaml:"object_store"`
}

// IsDevelopment returns true if the application is running in development environment.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == EnvDevelopment
}

// IsProduction returns true if the application is running in production environment.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}

// bindEnvVars binds multiple environment variables to config keys.
// Format: []{configKey, envVar}
func bindEnvVars(v *viper.Viper, bindings [][2]string) error {
	for _, b := range bindings {
		if err := v.BindEnv(b[0], b[1]); err != nil {
			return fmt.Errorf("failed to bind %s: %w", b[0], err)
		}
	}
	return nil
}

// LoadConfig loads configuration from environment variables using Viper,
// sets default values, binds environment variables to config struct fields,
// unmarshals the configuration, and validates it.
func LoadConfig() (*Config, error) {
	v := viper.New()
	log := logger.GetLogger()

	v.SetDefault("SERVER.ENVIRONMENT", EnvDevelopment)
	v.SetDefault("SERVER.PORT", "8080")
	v.SetDefault("SERVER.ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("QUEUE.MAX_ITEMS", 5)
	v.SetDefault("QUEUE.MAX_SIZE_BYTES", int64(10*1024*1024))
	v.SetDefault("QUEUE.COMPRESSION_THRESHOLD_BYTES", int64(2*1024*1024))
	v.SetDefault("QUEUE.ALLOWED_TYPES", []string{
		"image/jpeg",
		"image/png",
		"image/webp",
		"image/heic",
		"application/pdf",
	})
	v.SetDefault("EXTRACTION.CONFIDENCE_THRESHOLD", 0.80)
	v.SetDefault("RECOGNITION.TIMEOUT_SECONDS", 30)
	v.SetDefault("LOG_LEVEL", "info")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Bind environment variables
	envBindings := [][2]string{
		// Server config
		{"SERVER.ENVIRONMENT", "SERVER_ENVIRONMENT"},
		{"SERVER.PORT", "PORT"},
		{"SERVER.ALLOWED_ORIGINS", "ALLOWED_ORIGINS"},
		// Queue config
		{"QUEUE.MAX_ITEMS", "QUEUE_MAX_ITEMS"},
		{"QUEUE.MAX_SIZE_BYTES", "QUEUE_MAX_SIZE_BYTES"},
		{"QUEUE.COMPRESSION_THRESHOLD_BYTES", "QUEUE_COMPRESSION_THRESHOLD_BYTES"},
		{"QUEUE.ALLOWED_TYPES", "QUEUE_ALLOWED_TYPES"},
		// Extraction config
		{"EXTRACTION.CONFIDENCE_THRESHOLD", "EXTRACTION_CONFIDENCE_THRESHOLD"},
		// Recognition config
		{"RECOGNITION.ENDPOINT", "RECOGNITION_ENDPOINT"},
		{"RECOGNITION.API_KEY", "RECOGNITION_API_KEY"},
		{"RECOGNITION.TIMEOUT_SECONDS", "RECOGNITION_TIMEOUT_SECONDS"},
		// Object store config
		{"OBJECT_STORE.ENDPOINT", "OBJECT_STORE_ENDPOINT"},
		{"OBJECT_STORE.BUCKET", "OBJECT_STORE_BUCKET"},
		{"OBJECT_STORE.ACCESS_KEY_ID", "OBJECT_STORE_ACCESS_KEY_ID"},
		{"OBJECT_STORE.SECRET_ACCESS_KEY", "OBJECT_STORE_SECRET_ACCESS_KEY"},
	}

	if err := bindEnvVars(v, envBindings); err != nil {
		return nil, err
	}

	log.Infow("Configuration loaded",
		"environment", v.GetString("SERVER.ENVIRONMENT"),
		"server_port", v.GetString("SERVER.PORT"),
		"queue_max_items", v.GetInt("QUEUE.MAX_ITEMS"),
		"queue_max_size_bytes", v.GetInt64("QUEUE.MAX_SIZE_BYTES"),
		"recognition_endpoint", v.GetString("RECOGNITION.ENDPOINT"),
		"recognition_api_key", logger.MaskSensitiveString(v.GetString("RECOGNITION.API_KEY"), 3, 2),
	)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal failed: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	log.Info("Configuration validated successfully")
	return &cfg, nil
}

// validateConfig checks if the loaded configuration values are valid.
// Malformed configuration is a programmer-error-class failure: the process
// must not start with it.
func validateConfig(cfg *Config) error {
	log := logger.GetLogger()

	// Validate Server Config
	if cfg.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if !containsWildcard(cfg.Server.AllowedOrigins) {
		for _, origin := range cfg.Server.AllowedOrigins {
			if _, err := url.ParseRequestURI(origin); err != nil {
				return fmt.Errorf("invalid allowed origin '%s': %w", origin, err)
			}
		}
	}

	// Validate Queue Config
	if cfg.Queue.MaxItems <= 0 {
		return fmt.Errorf("queue max items must be positive")
	}
	if cfg.Queue.MaxSizeBytes <= 0 {
		return fmt.Errorf("queue max size bytes must be positive")
	}
	if cfg.Queue.CompressionThresholdBytes <= 0 {
		return fmt.Errorf("queue compression threshold must be positive")
	}
	if cfg.Queue.CompressionThresholdBytes > cfg.Queue.MaxSizeBytes {
		return fmt.Errorf("queue compression threshold cannot exceed max size bytes")
	}
	if len(cfg.Queue.AllowedTypes) == 0 {
		return fmt.Errorf("queue allowed types must not be empty")
	}

	// Validate Extraction Config
	if cfg.Extraction.ConfidenceThreshold <= 0 || cfg.Extraction.ConfidenceThreshold > 1 {
		return fmt.Errorf("extraction confidence threshold must be in (0, 1]")
	}

	// Validate Recognition Config
	if cfg.Recognition.Endpoint != "" {
		if _, err := url.ParseRequestURI(cfg.Recognition.Endpoint); err != nil {
			return fmt.Errorf("invalid recognition endpoint: %w", err)
		}
	}
	if cfg.Recognition.TimeoutSeconds <= 0 {
		return fmt.Errorf("recognition timeout must be positive")
	}

	// Validate Object Store Config
	if cfg.ObjectStore.Bucket != "" {
		if cfg.ObjectStore.AccessKeyID == "" || cfg.ObjectStore.SecretAccessKey == "" {
			return fmt.Errorf("object store credentials are required when a bucket is configured")
		}
	} else {
		log.Warn("Object store bucket is not set; uploads will use the local filesystem target")
	}

	return nil
}

// containsWildcard checks if the list of allowed origins contains the wildcard "*".
func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}
