package config

import (
	"fmt"
	"time"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithProject sets the project root and, optionally, its display name
func WithProject(dir, name string) Option {
	return func(c *ServerConfig) error {
		if dir == "" {
			return fmt.Errorf("project directory cannot be empty")
		}
		c.ProjectDir = dir
		if name != "" {
			c.ProjectName = name
		}
		return nil
	}
}

// WithHashAlgorithm selects the content hash ("sha256" or "blake3")
func WithHashAlgorithm(name string) Option {
	return func(c *ServerConfig) error {
		c.HashAlgorithm = name
		return nil
	}
}

// WithShardLength sets the shard prefix length
func WithShardLength(n int) Option {
	return func(c *ServerConfig) error {
		c.ShardLength = n
		return nil
	}
}

// WithThumbnailSize sets the default thumbnail bounding box
func WithThumbnailSize(size int) Option {
	return func(c *ServerConfig) error {
		c.ThumbnailSize = size
		return nil
	}
}

// WithStorageURL selects the asset repository
func WithStorageURL(storageURL string) Option {
	return func(c *ServerConfig) error {
		c.StorageURL = storageURL
		return nil
	}
}

// WithReferenceDB configures the record store consulted by cleanup. An empty
// query keeps the default.
func WithReferenceDB(dbURL, query string) Option {
	return func(c *ServerConfig) error {
		c.ReferenceDBURL = dbURL
		if query != "" {
			c.ReferenceQuery = query
		}
		return nil
	}
}

// WithCleanupGrace sets the minimum age of collectable assets
func WithCleanupGrace(d time.Duration) Option {
	return func(c *ServerConfig) error {
		c.CleanupGrace = d
		return nil
	}
}

// WithImportConcurrency sets the number of parallel import workers
func WithImportConcurrency(n int) Option {
	return func(c *ServerConfig) error {
		c.ImportConcurrency = n
		return nil
	}
}

// WithLogging sets the log level and format
func WithLogging(level, format string) Option {
	return func(c *ServerConfig) error {
		if level != "" {
			c.LogLevel = level
		}
		if format != "" {
			c.LogFormat = format
		}
		return nil
	}
}

// WithEventLogging enables or disables lifecycle event logging
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}
