package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// EnvPrefix prefixes every environment variable read by WithEnv.
const EnvPrefix = "ASSETSTORE_"

// overlay mirrors ServerConfig for cleanenv. Unset values stay zero and
// leave the current configuration untouched.
//
// Environment variables:
//
//	ASSETSTORE_PORT               - HTTP port (default "8080")
//	ASSETSTORE_ENVIRONMENT        - development, production, testing
//	ASSETSTORE_PROJECT_DIR        - project root (default ".")
//	ASSETSTORE_PROJECT_NAME       - display name (default: base of PROJECT_DIR)
//	ASSETSTORE_HASH_ALGORITHM     - "sha256" or "blake3"
//	ASSETSTORE_SHARD_LENGTH       - shard prefix length, 1-4
//	ASSETSTORE_THUMBNAIL_SIZE     - thumbnail bounding box in pixels
//	ASSETSTORE_STORAGE_URL        - "file://", "memory://", or "s3://bucket?region=..."
//	ASSETSTORE_REFERENCE_DB_URL   - "sqlite:///path/app.db" or "postgres://..."
//	ASSETSTORE_REFERENCE_QUERY    - single-column query returning live digests
//	ASSETSTORE_CLEANUP_GRACE      - minimum orphan age, e.g. "24h"
//	ASSETSTORE_IMPORT_CONCURRENCY - parallel batch import workers
//	ASSETSTORE_MAX_UPLOAD_BYTES   - HTTP request body limit
//	ASSETSTORE_LOG_LEVEL          - debug, info, warn, error
//	ASSETSTORE_LOG_FORMAT         - text, json
//	ASSETSTORE_EVENT_LOGGING      - log asset lifecycle events (default true)
type overlay struct {
	Port              string        `yaml:"port" json:"port" env:"ASSETSTORE_PORT"`
	Environment       string        `yaml:"environment" json:"environment" env:"ASSETSTORE_ENVIRONMENT"`
	ProjectDir        string        `yaml:"project_dir" json:"project_dir" env:"ASSETSTORE_PROJECT_DIR"`
	ProjectName       string        `yaml:"project_name" json:"project_name" env:"ASSETSTORE_PROJECT_NAME"`
	HashAlgorithm     string        `yaml:"hash_algorithm" json:"hash_algorithm" env:"ASSETSTORE_HASH_ALGORITHM"`
	ShardLength       int           `yaml:"shard_length" json:"shard_length" env:"ASSETSTORE_SHARD_LENGTH"`
	ThumbnailSize     int           `yaml:"thumbnail_size" json:"thumbnail_size" env:"ASSETSTORE_THUMBNAIL_SIZE"`
	StorageURL        string        `yaml:"storage_url" json:"storage_url" env:"ASSETSTORE_STORAGE_URL"`
	ReferenceDBURL    string        `yaml:"reference_db_url" json:"reference_db_url" env:"ASSETSTORE_REFERENCE_DB_URL"`
	ReferenceQuery    string        `yaml:"reference_query" json:"reference_query" env:"ASSETSTORE_REFERENCE_QUERY"`
	CleanupGrace      time.Duration `yaml:"cleanup_grace" json:"cleanup_grace" env:"ASSETSTORE_CLEANUP_GRACE"`
	ImportConcurrency int           `yaml:"import_concurrency" json:"import_concurrency" env:"ASSETSTORE_IMPORT_CONCURRENCY"`
	MaxUploadBytes    int64         `yaml:"max_upload_bytes" json:"max_upload_bytes" env:"ASSETSTORE_MAX_UPLOAD_BYTES"`
	LogLevel          string        `yaml:"log_level" json:"log_level" env:"ASSETSTORE_LOG_LEVEL"`
	LogFormat         string        `yaml:"log_format" json:"log_format" env:"ASSETSTORE_LOG_FORMAT"`
	EventLogging      string        `yaml:"event_logging" json:"event_logging" env:"ASSETSTORE_EVENT_LOGGING"`
}

// WithEnv applies ASSETSTORE_* environment variable overrides.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		var o overlay
		if err := cleanenv.ReadEnv(&o); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return o.apply(c)
	}
}

// WithFile applies a YAML, JSON or .env configuration file. Environment
// variables take precedence over values from the file.
func WithFile(path string) Option {
	return func(c *ServerConfig) error {
		if path == "" {
			return nil
		}
		var o overlay
		if err := cleanenv.ReadConfig(path, &o); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		return o.apply(c)
	}
}

func (o overlay) apply(c *ServerConfig) error {
	setString(&c.Port, o.Port)
	setString(&c.Environment, o.Environment)
	setString(&c.ProjectDir, o.ProjectDir)
	setString(&c.ProjectName, o.ProjectName)
	setString(&c.HashAlgorithm, o.HashAlgorithm)
	setString(&c.StorageURL, o.StorageURL)
	setString(&c.ReferenceDBURL, o.ReferenceDBURL)
	setString(&c.ReferenceQuery, o.ReferenceQuery)
	setString(&c.LogLevel, o.LogLevel)
	setString(&c.LogFormat, o.LogFormat)

	if o.ShardLength != 0 {
		c.ShardLength = o.ShardLength
	}
	if o.ThumbnailSize != 0 {
		c.ThumbnailSize = o.ThumbnailSize
	}
	if o.ImportConcurrency != 0 {
		c.ImportConcurrency = o.ImportConcurrency
	}
	if o.MaxUploadBytes != 0 {
		c.MaxUploadBytes = o.MaxUploadBytes
	}
	if o.CleanupGrace != 0 {
		c.CleanupGrace = o.CleanupGrace
	}
	if o.EventLogging != "" {
		enabled, err := strconv.ParseBool(o.EventLogging)
		if err != nil {
			return fmt.Errorf("invalid boolean for %sEVENT_LOGGING: %w", EnvPrefix, err)
		}
		c.EnableEventLogging = enabled
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
