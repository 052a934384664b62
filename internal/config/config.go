// Package config provides unified configuration loading for the catalog
// pipeline. Supports YAML files, environment variables, and flag overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Worker pool bounds and defaults.
const (
	MinFolderWorkers = 1
	MaxFolderWorkers = 50
	MinImageWorkers  = 1
	MaxImageWorkers  = 20

	DefaultFolderWorkers = 10
	DefaultImageWorkers  = 5
)

// Config holds all configuration for the catalog pipeline.
type Config struct {
	Cloudinary    CloudinaryConfig    `yaml:"cloudinary"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Convert       ConvertConfig       `yaml:"convert"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// CloudinaryConfig holds upload API settings. Credentials come from the
// environment, never from the YAML file.
type CloudinaryConfig struct {
	CloudName    string        `yaml:"-"`
	APIKey       string        `yaml:"-"`
	APISecret    string        `yaml:"-"`
	UploadFolder string        `yaml:"upload_folder"`
	BaseURL      string        `yaml:"base_url"`
	Timeout      time.Duration `yaml:"timeout"` // per upload attempt
	MaxAttempts  int           `yaml:"max_attempts"`
	Backoff      time.Duration `yaml:"backoff"`
	MaxBackoff   time.Duration `yaml:"max_backoff"`
}

// PipelineConfig holds worker pool and eligibility settings.
type PipelineConfig struct {
	FolderWorkers int           `yaml:"folder_workers"`
	ImageWorkers  int           `yaml:"image_workers"`
	SkipTrailing  int           `yaml:"skip_trailing"` // sorted images dropped from the end
	MaxMedia      int           `yaml:"max_media"`     // media columns in the catalog
	StatsInterval time.Duration `yaml:"stats_interval"`
	ParserCache   int           `yaml:"parser_cache"`
}

// ConvertConfig holds PDF conversion settings.
type ConvertConfig struct {
	Format      string `yaml:"format"` // png or jpg
	DPI         int    `yaml:"dpi"`
	JPEGQuality int    `yaml:"jpeg_quality"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
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

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Cloudinary: CloudinaryConfig{
			UploadFolder: "product_images",
			BaseURL:      "https://api.cloudinary.com",
			Timeout:      30 * time.Second,
			MaxAttempts:  3,
			Backoff:      1 * time.Second,
			MaxBackoff:   30 * time.Second,
		},
		Pipeline: PipelineConfig{
			FolderWorkers: DefaultFolderWorkers,
			ImageWorkers:  DefaultImageWorkers,
			SkipTrailing:  2,
			MaxMedia:      8,
			StatsInterval: 30 * time.Second,
			ParserCache:   256,
		},
		Convert: ConvertConfig{
			Format:      "png",
			DPI:         200,
			JPEGQuality: 90,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Pipeline.FolderWorkers < MinFolderWorkers || c.Pipeline.FolderWorkers > MaxFolderWorkers {
		return fmt.Errorf("folder_workers must be between %d and %d, got %d",
			MinFolderWorkers, MaxFolderWorkers, c.Pipeline.FolderWorkers)
	}

	if c.Pipeline.ImageWorkers < MinImageWorkers || c.Pipeline.ImageWorkers > MaxImageWorkers {
		return fmt.Errorf("image_workers must be between %d and %d, got %d",
			MinImageWorkers, MaxImageWorkers, c.Pipeline.ImageWorkers)
	}

	if c.Pipeline.SkipTrailing < 0 {
		return fmt.Errorf("skip_trailing must not be negative, got %d", c.Pipeline.SkipTrailing)
	}

	// The catalog CSV has eight media columns.
	if c.Pipeline.MaxMedia < 1 || c.Pipeline.MaxMedia > 8 {
		return fmt.Errorf("max_media must be between 1 and 8, got %d", c.Pipeline.MaxMedia)
	}

	if c.Pipeline.StatsInterval <= 0 {
		return fmt.Errorf("stats_interval must be positive, got %s", c.Pipeline.StatsInterval)
	}

	if c.Pipeline.ParserCache < 1 {
		return fmt.Errorf("parser_cache must be at least 1, got %d", c.Pipeline.ParserCache)
	}

	if c.Cloudinary.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.Cloudinary.MaxAttempts)
	}

	if c.Cloudinary.Timeout <= 0 {
		return fmt.Errorf("upload timeout must be positive, got %s", c.Cloudinary.Timeout)
	}

	if c.Convert.Format != "png" && c.Convert.Format != "jpg" {
		return fmt.Errorf("invalid convert format: %s (png or jpg)", c.Convert.Format)
	}

	if c.Convert.DPI < 72 || c.Convert.DPI > 600 {
		return fmt.Errorf("dpi must be between 72 and 600, got %d", c.Convert.DPI)
	}

	if c.Convert.JPEGQuality < 1 || c.Convert.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", c.Convert.JPEGQuality)
	}

	return nil
}

// ValidateCredentials checks that all required Cloudinary variables are set.
// Called before the upload pipeline runs; PDF conversion does not need them.
func (c *Config) ValidateCredentials() error {
	var missing []string
	if c.Cloudinary.CloudName == "" {
		missing = append(missing, "CLOUDINARY_CLOUD_NAME")
	}
	if c.Cloudinary.APIKey == "" {
		missing = append(missing, "CLOUDINARY_API_KEY")
	}
	if c.Cloudinary.APISecret == "" {
		missing = append(missing, "CLOUDINARY_API_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CLOUDINARY_CLOUD_NAME"); v != "" {
		cfg.Cloudinary.CloudName = v
	}

	if v := os.Getenv("CLOUDINARY_API_KEY"); v != "" {
		cfg.Cloudinary.APIKey = v
	}

	if v := os.Getenv("CLOUDINARY_API_SECRET"); v != "" {
		cfg.Cloudinary.APISecret = v
	}

	if v := os.Getenv("CLOUDINARY_UPLOAD_FOLDER"); v != "" {
		cfg.Cloudinary.UploadFolder = v
	}

	if v := os.Getenv("CLOUDINARY_BASE_URL"); v != "" {
		cfg.Cloudinary.BaseURL = v
	}

	if v := os.Getenv("PIPELINE_FOLDER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.FolderWorkers = n
		}
	}

	if v := os.Getenv("PIPELINE_IMAGE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.ImageWorkers = n
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
