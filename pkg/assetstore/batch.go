package assetstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultImportConcurrency bounds the number of items stored at once.
const DefaultImportConcurrency = 4

// Importer stores batches of independent payloads. A batch is not a
// transaction: each item is validated and stored on its own and its outcome
// is reported in the result at the same index.
type Importer struct {
	repo          Repository
	deriver       Deriver
	concurrency   int
	thumbnailSize int
	logger        *slog.Logger
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithImporterDeriver enables thumbnail generation for batches that ask for it.
func WithImporterDeriver(d Deriver) ImporterOption {
	return func(im *Importer) {
		im.deriver = d
	}
}

// WithConcurrency sets how many items are stored in parallel.
func WithConcurrency(n int) ImporterOption {
	return func(im *Importer) {
		if n > 0 {
			im.concurrency = n
		}
	}
}

// WithImporterThumbnailSize sets the default thumbnail bounding box.
func WithImporterThumbnailSize(size int) ImporterOption {
	return func(im *Importer) {
		if size > 0 {
			im.thumbnailSize = size
		}
	}
}

// WithImporterLogger sets the logger.
func WithImporterLogger(logger *slog.Logger) ImporterOption {
	return func(im *Importer) {
		if logger != nil {
			im.logger = logger
		}
	}
}

// NewImporter creates an importer writing to repo.
func NewImporter(repo Repository, opts ...ImporterOption) *Importer {
	im := &Importer{
		repo:          repo,
		concurrency:   DefaultImportConcurrency,
		thumbnailSize: DefaultThumbnailSize,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// ImportBatch stores every item and returns one result per item in input
// order. A failing item never affects its siblings. Items not yet started
// when ctx is cancelled report the context error.
func (im *Importer) ImportBatch(ctx context.Context, items []BatchItem, opts ImportOptions) []ItemResult {
	results := make([]ItemResult, len(items))
	if len(items) == 0 {
		return results
	}

	batchID := uuid.New()
	logger := im.logger.With("batch_id", batchID.String())

	size := opts.ThumbnailSize
	if size <= 0 {
		size = im.thumbnailSize
	}

	var g errgroup.Group
	g.SetLimit(im.concurrency)
	for i := range items {
		i := i
		g.Go(func() error {
			results[i] = im.importItem(ctx, i, items[i], opts.GenerateThumbnails, size, logger)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	logger.InfoContext(ctx, "Batch import finished", "items", len(items), "failed", failed)
	return results
}

func (im *Importer) importItem(ctx context.Context, index int, item BatchItem, thumb bool, size int, logger *slog.Logger) ItemResult {
	res := ItemResult{Index: index, Filename: item.Filename}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	mimeType := InferMimeType(item.MimeType, item.Filename, item.Data)
	if err := ValidatePayload(item.Data, mimeType); err != nil {
		res.Err = fmt.Errorf("%s: %w", item.Filename, err)
		logger.WarnContext(ctx, "Rejected batch item", "index", index, "filename", item.Filename, "error", err)
		return res
	}

	d, err := im.repo.Put(ctx, item.Data, PutOptions{MimeType: mimeType, Kind: KindPrimary})
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", item.Filename, err)
		logger.ErrorContext(ctx, "Failed to store batch item", "index", index, "filename", item.Filename, "error", err)
		return res
	}
	res.Digest = d
	res.MimeType = mimeType
	res.Size = int64(len(item.Data))

	if thumb && im.deriver != nil && IsImage(mimeType) {
		td, err := im.deriver.Derive(ctx, item.Data, size)
		if err != nil {
			logger.WarnContext(ctx, "Failed to derive thumbnail", "index", index, "digest", d.Short(), "error", err)
		} else {
			res.ThumbnailDigest = td
		}
	}
	return res
}
