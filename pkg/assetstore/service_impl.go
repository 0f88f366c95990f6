package assetstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/tendant/assetstore/pkg/assetstore/digest"
)

// service implements the Service interface
type service struct {
	repository        Repository
	project           *Project
	deriver           Deriver
	references        ReferenceSource
	eventSink         EventSink
	logger            *slog.Logger
	thumbnailSize     int
	importConcurrency int
	cleanupGrace      time.Duration

	importer  *Importer
	collector *Collector
	now       func() time.Time
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithProject binds the service to a project scope
func WithProject(p *Project) Option {
	return func(s *service) {
		s.project = p
	}
}

// WithDeriver sets the thumbnail deriver
func WithDeriver(d Deriver) Option {
	return func(s *service) {
		s.deriver = d
	}
}

// WithReferenceSource sets where cleanup and statistics read live references from
func WithReferenceSource(src ReferenceSource) Option {
	return func(s *service) {
		s.references = src
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithThumbnailSize sets the default thumbnail bounding box in pixels
func WithThumbnailSize(size int) Option {
	return func(s *service) {
		s.thumbnailSize = size
	}
}

// WithImportConcurrency bounds parallel stores during batch import
func WithImportConcurrency(n int) Option {
	return func(s *service) {
		s.importConcurrency = n
	}
}

// WithCleanupGrace sets the minimum age an unreferenced asset must reach
// before cleanup may delete it. Requests with a smaller OlderThan are raised
// to the grace period.
func WithCleanupGrace(d time.Duration) Option {
	return func(s *service) {
		s.cleanupGrace = d
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		thumbnailSize:     DefaultThumbnailSize,
		importConcurrency: DefaultImportConcurrency,
		now:               time.Now,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.project == nil {
		return nil, fmt.Errorf("project is required")
	}
	if s.thumbnailSize <= 0 {
		return nil, fmt.Errorf("thumbnail size must be positive, got %d", s.thumbnailSize)
	}
	if s.cleanupGrace < 0 {
		return nil, fmt.Errorf("cleanup grace must not be negative")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.eventSink == nil {
		s.eventSink = NewNoopEventSink()
	}

	s.importer = NewImporter(s.repository,
		WithImporterDeriver(s.deriver),
		WithConcurrency(s.importConcurrency),
		WithImporterThumbnailSize(s.thumbnailSize),
		WithImporterLogger(s.logger),
	)
	s.collector = NewCollector(s.repository, s.logger)

	return s, nil
}

func (s *service) Project() *Project {
	return s.project
}

func (s *service) checkProject() error {
	if !s.project.Active() {
		return ErrNoActiveProject
	}
	return nil
}

// token validation always precedes the project check
func (s *service) scoped(token string) (digest.Digest, error) {
	d, err := ParseToken(token)
	if err != nil {
		return "", err
	}
	if err := s.checkProject(); err != nil {
		return "", err
	}
	return d, nil
}

// Upload operations

func (s *service) UploadAsset(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if err := s.checkProject(); err != nil {
		return nil, err
	}

	mimeType := InferMimeType(req.MimeType, req.Filename, req.Data)
	if err := ValidatePayload(req.Data, mimeType); err != nil {
		return nil, err
	}

	d, err := s.repository.Put(ctx, req.Data, PutOptions{MimeType: mimeType, Kind: KindPrimary})
	if err != nil {
		return nil, err
	}
	result := &UploadResult{
		Digest:   d,
		MimeType: mimeType,
		Size:     int64(len(req.Data)),
	}
	s.fireStored(ctx, AssetMeta{Digest: d, MimeType: mimeType, Size: result.Size, Kind: KindPrimary})

	if !req.GenerateThumbnail {
		return result, nil
	}
	if !IsImage(mimeType) {
		s.logger.DebugContext(ctx, "Skipping thumbnail for non-image asset", "digest", d.Short(), "mime_type", mimeType)
		return result, nil
	}
	if s.deriver == nil {
		s.logger.WarnContext(ctx, "Thumbnail requested but no deriver configured", "digest", d.Short())
		return result, nil
	}

	size := req.ThumbnailSize
	if size <= 0 {
		size = s.thumbnailSize
	}
	td, err := s.deriver.Derive(ctx, req.Data, size)
	if err != nil {
		// the primary is stored; report it alongside the failure
		return result, &AssetError{Digest: d, Op: "derive thumbnail", Err: err}
	}
	result.ThumbnailDigest = td
	s.fireStored(ctx, AssetMeta{Digest: td, MimeType: "image/jpeg", Kind: KindThumbnail, DerivedFrom: d, Variant: ThumbnailVariant(size)})
	return result, nil
}

func (s *service) ImportBatch(ctx context.Context, items []BatchItem, opts ImportOptions) ([]ItemResult, error) {
	if err := s.checkProject(); err != nil {
		return nil, err
	}
	results := s.importer.ImportBatch(ctx, items, opts)
	for _, r := range results {
		if r.OK() {
			s.fireStored(ctx, AssetMeta{Digest: r.Digest, MimeType: r.MimeType, Size: r.Size, Kind: KindPrimary})
		}
	}
	return results, nil
}

// Retrieval operations

func (s *service) FetchAssetPath(ctx context.Context, token string) (string, error) {
	if _, ok := s.repository.(LocalRepository); !ok {
		if _, err := s.scoped(token); err != nil {
			return "", err
		}
		return "", ErrPathUnavailable
	}
	return Resolve(token, s.project)
}

func (s *service) OpenAsset(ctx context.Context, token string) (io.ReadCloser, *AssetMeta, error) {
	if _, ok := s.repository.(LocalRepository); ok {
		if _, err := Resolve(token, s.project); err != nil {
			return nil, nil, err
		}
	}
	d, err := s.scoped(token)
	if err != nil {
		return nil, nil, err
	}
	return s.repository.Open(ctx, d)
}

func (s *service) AssetExists(ctx context.Context, token string) (bool, error) {
	d, err := s.scoped(token)
	if err != nil {
		return false, err
	}
	return s.repository.Exists(ctx, d), nil
}

// Deletion and maintenance

func (s *service) DeleteAsset(ctx context.Context, token string) (bool, error) {
	d, err := s.scoped(token)
	if err != nil {
		return false, err
	}
	existed, err := s.repository.Delete(ctx, d)
	if err != nil {
		return false, &AssetError{Digest: d, Op: "delete", Err: err}
	}
	if existed {
		if err := s.eventSink.AssetDeleted(ctx, d); err != nil {
			s.logger.WarnContext(ctx, "Event sink failed", "event", "asset_deleted", "error", err)
		}
	}
	return existed, nil
}

func (s *service) Cleanup(ctx context.Context, opts CleanupOptions) (*CollectReport, error) {
	if err := s.checkProject(); err != nil {
		return nil, err
	}
	live, err := s.liveSet(ctx, opts.Live)
	if err != nil {
		return nil, err
	}

	olderThan := opts.OlderThan
	if olderThan < s.cleanupGrace {
		olderThan = s.cleanupGrace
	}
	report, err := s.collector.Collect(ctx, live, CollectOptions{DryRun: opts.DryRun, OlderThan: olderThan})
	if report != nil && !opts.DryRun {
		if serr := s.eventSink.AssetsCollected(ctx, report); serr != nil {
			s.logger.WarnContext(ctx, "Event sink failed", "event", "assets_collected", "error", serr)
		}
	}
	return report, err
}

func (s *service) Statistics(ctx context.Context) (*Statistics, error) {
	if err := s.checkProject(); err != nil {
		return nil, err
	}

	stats := &Statistics{}
	var live digest.Set
	if s.references != nil {
		var err error
		if live, err = s.references.LiveDigests(ctx); err != nil {
			return nil, fmt.Errorf("failed to load live references: %w", err)
		}
		stats.ReferencesAvailable = true
	}

	var cutoff time.Time
	if s.cleanupGrace > 0 {
		cutoff = s.now().Add(-s.cleanupGrace)
	}
	err := s.repository.Walk(ctx, func(info AssetInfo) error {
		stats.AssetCount++
		stats.TotalBytes += info.Size
		if stats.ReferencesAvailable && !live.Has(info.Digest) && (cutoff.IsZero() || !info.ModTime.After(cutoff)) {
			stats.OrphanCandidateCount++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate assets: %w", err)
	}
	return stats, nil
}

func (s *service) liveSet(ctx context.Context, explicit digest.Set) (digest.Set, error) {
	if explicit != nil {
		return explicit, nil
	}
	if s.references == nil {
		return nil, ErrNoReferenceSource
	}
	live, err := s.references.LiveDigests(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load live references: %w", err)
	}
	return live, nil
}

func (s *service) fireStored(ctx context.Context, meta AssetMeta) {
	if err := s.eventSink.AssetStored(ctx, meta); err != nil {
		s.logger.WarnContext(ctx, "Event sink failed", "event", "asset_stored", "digest", meta.Digest.Short(), "error", err)
	}
}
