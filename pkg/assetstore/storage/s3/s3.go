package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/tendant/assetstore/pkg/assetstore"
	"github.com/tendant/assetstore/pkg/assetstore/digest"
	"github.com/tendant/assetstore/pkg/assetstore/layout"
)

const backendName = "s3"

// User metadata keys stored on each object.
const (
	metaKind        = "kind"
	metaDerivedFrom = "derived-from"
	metaVariant     = "variant"
	metaAlgorithm   = "algorithm"
	metaCreatedAt   = "created-at"
)

// Client is the subset of the S3 API the backend uses.
type Client interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	Prefix          string // Optional key prefix for every asset
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)
	ShardLength     int    // Digest prefix length per key segment (default 2)

	// MinIO/S3-compatible service options
	CreateBucketIfNotExist bool // Create bucket if it doesn't exist

	Hasher digest.Hasher
	Logger *slog.Logger
}

// Backend is an S3-compatible implementation of assetstore.Repository.
// Objects are keyed prefix/<shard>/<suffix>, mirroring the on-disk layout.
type Backend struct {
	client Client
	bucket string
	prefix string
	layout layout.Layout
	hasher digest.Hasher
	logger *slog.Logger
	now    func() time.Time
	config Config
}

// New creates a new S3-compatible storage backend
func New(ctx context.Context, config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	if config.Region == "" {
		config.Region = "us-east-1"
	}

	// Set up AWS config
	var awsCfg aws.Config
	var err error

	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		// Use provided credentials
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(config.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				config.AccessKeyID,
				config.SecretAccessKey,
				"",
			)),
		)
	} else {
		// Use default credential chain
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(config.Region),
		)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)

	// Custom endpoint for S3-compatible services (MinIO, etc.)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	return NewWithClient(ctx, s3.NewFromConfig(awsCfg, s3Options...), config)
}

// NewWithClient creates a backend over an existing client.
func NewWithClient(ctx context.Context, client Client, config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if client == nil {
		return nil, errors.New("s3 client is required")
	}
	l, err := layout.New("s3://"+config.Bucket, config.ShardLength)
	if err != nil {
		return nil, err
	}
	hasher := config.Hasher
	if hasher == nil {
		hasher = digest.SHA256()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	backend := &Backend{
		client: client,
		bucket: config.Bucket,
		prefix: strings.Trim(config.Prefix, "/"),
		layout: l,
		hasher: hasher,
		logger: logger,
		now:    time.Now,
		config: config,
	}

	// Create bucket if requested
	if config.CreateBucketIfNotExist {
		if err := backend.createBucketIfNotExists(ctx); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return backend, nil
}

// createBucketIfNotExists creates the bucket if it doesn't exist
func (b *Backend) createBucketIfNotExists(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	createInput := &s3.CreateBucketInput{
		Bucket: aws.String(b.bucket),
	}

	// Add location constraint for regions other than us-east-1
	if b.config.Region != "" && b.config.Region != "us-east-1" {
		createInput.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.config.Region),
		}
	}

	_, err = b.client.CreateBucket(ctx, createInput)
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
				return nil
			}
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// isNotFound classifies missing-object and missing-bucket errors, including
// the bare codes some S3-compatible services return.
func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) || errors.As(err, &noSuchBucket) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket", "404":
			return true
		}
	}
	return false
}

func (b *Backend) key(d digest.Digest) string {
	return b.layout.Key(b.prefix, d)
}

// Hasher returns the content hasher.
func (b *Backend) Hasher() digest.Hasher {
	return b.hasher
}

// Put uploads data unless an object with the same digest already exists,
// then downloads it again to verify the stored bytes. A mismatching object
// is deleted.
func (b *Backend) Put(ctx context.Context, data []byte, opts assetstore.PutOptions) (digest.Digest, error) {
	d := b.hasher.Sum(data)
	key := b.key(d)

	if b.Exists(ctx, d) {
		return d, nil
	}

	kind := opts.Kind
	if kind == "" {
		kind = assetstore.KindPrimary
	}
	mimeType := opts.MimeType
	if mimeType == "" {
		mimeType = assetstore.DefaultMimeType
	}
	metadata := map[string]string{
		metaKind:      string(kind),
		metaAlgorithm: b.hasher.Algorithm(),
		metaCreatedAt: b.now().UTC().Format(time.RFC3339),
	}
	if !opts.DerivedFrom.IsZero() {
		metadata[metaDerivedFrom] = opts.DerivedFrom.String()
	}
	if opts.Variant != "" {
		metadata[metaVariant] = opts.Variant
	}

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(mimeType),
		Metadata:      metadata,
	})
	if err != nil {
		return "", b.ioError(d, "put", err)
	}

	if err := b.verify(ctx, d); err != nil {
		return "", err
	}
	b.logger.Debug("Stored asset", "backend", backendName, "digest", d.Short(), "size", len(data))
	return d, nil
}

func (b *Backend) verify(ctx context.Context, d digest.Digest) error {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(d)),
	})
	if err != nil {
		return b.ioError(d, "verify", err)
	}
	defer out.Body.Close()

	got, err := b.hasher.SumReader(out.Body)
	if err != nil {
		return b.ioError(d, "verify", err)
	}
	if got == d {
		return nil
	}

	b.logger.Error("Failed to verify written asset", "backend", backendName, "expected", d.Short(), "actual", got.Short())
	if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(d)),
	}); err != nil {
		b.logger.Error("Failed to remove corrupt object", "digest", d.Short(), "error", err)
	}
	return fmt.Errorf("%w: expected %s, stored object hashes to %s", assetstore.ErrCorruptWrite, d.Short(), got.Short())
}

// Get returns the stored bytes and metadata.
func (b *Backend) Get(ctx context.Context, d digest.Digest) ([]byte, *assetstore.AssetMeta, error) {
	rc, meta, err := b.Open(ctx, d)
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, nil, b.ioError(d, "read", err)
	}
	meta.Size = int64(len(data))
	return data, meta, nil
}

// Open streams the stored bytes.
func (b *Backend) Open(ctx context.Context, d digest.Digest) (io.ReadCloser, *assetstore.AssetMeta, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(d)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil, fmt.Errorf("%w: %s", assetstore.ErrNotFound, d.Short())
		}
		return nil, nil, b.ioError(d, "get", err)
	}
	return out.Body, b.meta(d, out.ContentType, out.ContentLength, out.Metadata), nil
}

func (b *Backend) meta(d digest.Digest, contentType *string, length *int64, metadata map[string]string) *assetstore.AssetMeta {
	meta := &assetstore.AssetMeta{
		Digest:    d,
		MimeType:  aws.ToString(contentType),
		Size:      aws.ToInt64(length),
		Kind:      assetstore.KindPrimary,
		Algorithm: b.hasher.Algorithm(),
	}
	if meta.MimeType == "" {
		meta.MimeType = assetstore.DefaultMimeType
	}
	if v := metadata[metaKind]; v != "" {
		meta.Kind = assetstore.Kind(v)
	}
	if v, err := digest.Parse(metadata[metaDerivedFrom]); err == nil {
		meta.DerivedFrom = v
	}
	meta.Variant = metadata[metaVariant]
	if v := metadata[metaAlgorithm]; v != "" {
		meta.Algorithm = v
	}
	if t, err := time.Parse(time.RFC3339, metadata[metaCreatedAt]); err == nil {
		meta.CreatedAt = t
	}
	return meta
}

// Exists reports whether d is stored. Errors are reported as false.
func (b *Backend) Exists(ctx context.Context, d digest.Digest) bool {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(d)),
	})
	if err != nil && !isNotFound(err) {
		b.logger.Warn("Failed to check object", "digest", d.Short(), "error", err)
	}
	return err == nil
}

// Delete removes d. S3 deletes are idempotent, so existence is checked first
// to report whether anything was removed.
func (b *Backend) Delete(ctx context.Context, d digest.Digest) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(d)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, b.ioError(d, "delete", err)
	}

	if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(d)),
	}); err != nil {
		return false, b.ioError(d, "delete", err)
	}
	return true, nil
}

// Walk lists every asset under the prefix. Keys that are not digest-shaped
// are skipped.
func (b *Backend) Walk(ctx context.Context, fn func(assetstore.AssetInfo) error) error {
	listPrefix := ""
	if b.prefix != "" {
		listPrefix = b.prefix + "/"
	}
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(listPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return b.ioError("", "walk", err)
		}
		for _, obj := range page.Contents {
			d, ok := b.layout.ParseKey(b.prefix, aws.ToString(obj.Key))
			if !ok {
				continue
			}
			info := assetstore.AssetInfo{
				Digest:  d,
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			}
			if err := fn(info); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Backend) ioError(d digest.Digest, op string, err error) error {
	return &assetstore.StorageError{Backend: backendName, Digest: d, Op: op, Err: err}
}

var _ assetstore.Repository = (*Backend)(nil)
