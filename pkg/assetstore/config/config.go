package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/assetstore/pkg/assetstore"
	"github.com/tendant/assetstore/pkg/assetstore/digest"
	"github.com/tendant/assetstore/pkg/assetstore/layout"
	"github.com/tendant/assetstore/pkg/assetstore/refsource"
	"github.com/tendant/assetstore/pkg/assetstore/refsource/postgres"
	"github.com/tendant/assetstore/pkg/assetstore/refsource/sqlite"
	fsstorage "github.com/tendant/assetstore/pkg/assetstore/storage/fs"
	memorystorage "github.com/tendant/assetstore/pkg/assetstore/storage/memory"
	s3storage "github.com/tendant/assetstore/pkg/assetstore/storage/s3"
	"github.com/tendant/assetstore/pkg/assetstore/thumbnail"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:               "8080",
		Environment:        "development",
		ProjectDir:         ".",
		HashAlgorithm:      digest.AlgorithmSHA256,
		ShardLength:        layout.DefaultShardLength,
		ThumbnailSize:      assetstore.DefaultThumbnailSize,
		StorageURL:         "file://",
		ImportConcurrency:  assetstore.DefaultImportConcurrency,
		MaxUploadBytes:     256 << 20,
		LogLevel:           "info",
		LogFormat:          "text",
		EnableEventLogging: true,
	}
}

// ServerConfig represents configuration for an asset store and its HTTP server
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Project scope
	ProjectDir  string
	ProjectName string

	// Store layout
	HashAlgorithm string // "sha256", "blake3"
	ShardLength   int
	ThumbnailSize int

	// StorageURL selects the asset repository: "file://" stores assets under
	// the project directory, "memory://" keeps them in memory, and
	// "s3://bucket?region=..&endpoint=..&path_style=true&prefix=.." uses a bucket.
	StorageURL string

	// ReferenceDBURL points at the record store consulted by cleanup:
	// "sqlite:///path/to/app.db" or "postgres://...". Empty disables cleanup.
	ReferenceDBURL string
	ReferenceQuery string

	CleanupGrace      time.Duration
	ImportConcurrency int
	MaxUploadBytes    int64

	LogLevel           string // debug, info, warn, error
	LogFormat          string // text, json
	EnableEventLogging bool
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.ProjectDir == "" {
		return errors.New("project_dir is required")
	}
	if _, err := digest.ForAlgorithm(c.HashAlgorithm); err != nil {
		return err
	}
	if c.ShardLength < 1 || c.ShardLength > layout.MaxShardLength {
		return fmt.Errorf("shard_length must be between 1 and %d", layout.MaxShardLength)
	}
	if c.ThumbnailSize <= 0 {
		return errors.New("thumbnail_size must be positive")
	}
	if c.ImportConcurrency <= 0 {
		return errors.New("import_concurrency must be positive")
	}
	if c.CleanupGrace < 0 {
		return errors.New("cleanup_grace must not be negative")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be 'text' or 'json', got: %s", c.LogFormat)
	}
	if _, err := storageKind(c.StorageURL); err != nil {
		return err
	}
	if c.ReferenceDBURL != "" {
		if _, err := referenceKind(c.ReferenceDBURL); err != nil {
			return err
		}
	}
	return nil
}

// Runtime holds a built Service together with the resources it owns.
type Runtime struct {
	Service    assetstore.Service
	Project    *assetstore.Project
	Repository assetstore.Repository
	Logger     *slog.Logger

	closers []func() error
}

// Close releases the reference source connection and closes the project.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BuildService opens the project and wires the repository, thumbnail
// deriver, reference source and event sink into a Service.
func (c *ServerConfig) BuildService(ctx context.Context) (*Runtime, error) {
	logger := c.NewLogger(os.Stderr)
	hasher, err := digest.ForAlgorithm(c.HashAlgorithm)
	if err != nil {
		return nil, err
	}

	project, err := assetstore.OpenProject(c.ProjectDir, c.ProjectName, assetstore.WithShardLength(c.ShardLength))
	if err != nil {
		return nil, fmt.Errorf("failed to open project: %w", err)
	}
	rt := &Runtime{Project: project, Logger: logger}
	rt.closers = append(rt.closers, project.Close)

	repo, err := c.buildRepository(ctx, project, hasher, logger)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	rt.Repository = repo

	options := []assetstore.Option{
		assetstore.WithProject(project),
		assetstore.WithRepository(repo),
		assetstore.WithDeriver(thumbnail.New(repo)),
		assetstore.WithThumbnailSize(c.ThumbnailSize),
		assetstore.WithImportConcurrency(c.ImportConcurrency),
		assetstore.WithCleanupGrace(c.CleanupGrace),
		assetstore.WithLogger(logger),
	}

	if c.ReferenceDBURL != "" {
		src, closer, err := c.buildReferenceSource(ctx, logger)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to open reference source: %w", err)
		}
		rt.closers = append(rt.closers, closer)
		options = append(options, assetstore.WithReferenceSource(src))
	}

	if c.EnableEventLogging {
		options = append(options, assetstore.WithEventSink(assetstore.NewLogEventSink(logger)))
	}

	svc, err := assetstore.New(options...)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Service = svc
	return rt, nil
}

// buildRepository creates a Repository based on the storage URL
func (c *ServerConfig) buildRepository(ctx context.Context, project *assetstore.Project, hasher digest.Hasher, logger *slog.Logger) (assetstore.Repository, error) {
	kind, err := storageKind(c.StorageURL)
	if err != nil {
		return nil, err
	}

	switch kind {
	case "memory":
		return memorystorage.New(memorystorage.WithHasher(hasher)), nil
	case "fs":
		return fsstorage.New(fsstorage.Config{
			BaseDir:     project.AssetRoot(),
			ShardLength: c.ShardLength,
			Hasher:      hasher,
			Logger:      logger,
		})
	case "s3":
		s3cfg, err := c.s3Config()
		if err != nil {
			return nil, err
		}
		s3cfg.Hasher = hasher
		s3cfg.Logger = logger
		return s3storage.New(ctx, s3cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", kind)
	}
}

// s3Config parses s3://bucket?region=..&endpoint=..&path_style=true&prefix=..
// Credentials come from the standard AWS environment variables.
func (c *ServerConfig) s3Config() (s3storage.Config, error) {
	u, err := url.Parse(c.StorageURL)
	if err != nil {
		return s3storage.Config{}, fmt.Errorf("invalid STORAGE_URL: %w", err)
	}
	if u.Host == "" {
		return s3storage.Config{}, errors.New("S3 bucket name cannot be empty in STORAGE_URL")
	}
	q := u.Query()
	cfg := s3storage.Config{
		Bucket:                 u.Host,
		Region:                 q.Get("region"),
		Endpoint:               q.Get("endpoint"),
		Prefix:                 strings.Trim(q.Get("prefix"), "/"),
		ShardLength:            c.ShardLength,
		CreateBucketIfNotExist: q.Get("create_bucket") == "true",
		AccessKeyID:            os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey:        os.Getenv("AWS_SECRET_ACCESS_KEY"),
	}
	if cfg.Region == "" {
		cfg.Region = os.Getenv("AWS_REGION")
	}
	if v := q.Get("path_style"); v != "" {
		cfg.UsePathStyle, err = strconv.ParseBool(v)
		if err != nil {
			return s3storage.Config{}, fmt.Errorf("invalid path_style in STORAGE_URL: %w", err)
		}
	}
	return cfg, nil
}

// buildReferenceSource opens the record store named by ReferenceDBURL.
func (c *ServerConfig) buildReferenceSource(ctx context.Context, logger *slog.Logger) (assetstore.ReferenceSource, func() error, error) {
	kind, err := referenceKind(c.ReferenceDBURL)
	if err != nil {
		return nil, nil, err
	}
	opts := []refsource.Option{refsource.WithLogger(logger)}
	if c.ReferenceQuery != "" {
		opts = append(opts, refsource.WithQuery(c.ReferenceQuery))
	}

	switch kind {
	case "sqlite":
		src, err := sqlite.Open(ctx, c.ReferenceDBURL, opts...)
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil
	case "postgres":
		src, err := postgres.Open(ctx, c.ReferenceDBURL, opts...)
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported reference database: %s", kind)
	}
}

func storageKind(storageURL string) (string, error) {
	switch {
	case storageURL == "" || storageURL == "file://":
		return "fs", nil
	case storageURL == "memory" || storageURL == "memory://":
		return "memory", nil
	case strings.HasPrefix(storageURL, "s3://"):
		return "s3", nil
	}
	return "", fmt.Errorf("unsupported STORAGE_URL format: %s (use 'file://', 'memory://', or 's3://...')", storageURL)
}

func referenceKind(dbURL string) (string, error) {
	switch {
	case strings.HasPrefix(dbURL, "sqlite://"), strings.HasSuffix(dbURL, ".db"):
		return "sqlite", nil
	case strings.HasPrefix(dbURL, "postgres://"), strings.HasPrefix(dbURL, "postgresql://"):
		return "postgres", nil
	}
	return "", fmt.Errorf("unsupported REFERENCE_DB_URL format: %s (use 'sqlite://...' or 'postgres://...')", dbURL)
}
