// Package scan walks a repository and runs a processor over every stored
// asset. The Verifier processor re-hashes stored bytes to detect corruption.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tendant/assetstore/pkg/assetstore"
	"github.com/tendant/assetstore/pkg/assetstore/digest"
)

// Processor processes individual assets.
type Processor interface {
	// Process is called for each stored asset. Returning an error marks the
	// asset as failed; the scan continues with the next asset.
	Process(ctx context.Context, info assetstore.AssetInfo) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, info assetstore.AssetInfo) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, info assetstore.AssetInfo) error {
	return f(ctx, info)
}

// Scanner enumerates a repository and processes each asset.
type Scanner struct {
	repo   assetstore.Repository
	logger *slog.Logger
}

// New creates a new Scanner instance.
func New(repo assetstore.Repository, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{repo: repo, logger: logger}
}

// Options configures the scan operation.
type Options struct {
	// Processor defines the processing logic (required unless DryRun is true)
	Processor Processor

	// DryRun counts assets without processing them
	DryRun bool

	// OnProgress is called after each asset (optional)
	OnProgress func(processed int64)
}

// Result contains statistics about the scan operation.
type Result struct {
	TotalFound     int64                    `json:"total_found"`
	TotalProcessed int64                    `json:"total_processed"`
	TotalFailed    int64                    `json:"total_failed"`
	TotalBytes     int64                    `json:"total_bytes"`
	Failed         map[digest.Digest]string `json:"failed,omitempty"`
}

// Scan walks the repository and processes each asset with the configured
// processor. Processor failures are recorded; a walk failure aborts the scan
// and is returned alongside the partial result.
func (s *Scanner) Scan(ctx context.Context, opts Options) (*Result, error) {
	result := &Result{Failed: map[digest.Digest]string{}}

	if !opts.DryRun && opts.Processor == nil {
		return result, fmt.Errorf("processor is required when DryRun is false")
	}

	err := s.repo.Walk(ctx, func(info assetstore.AssetInfo) error {
		result.TotalFound++
		result.TotalBytes += info.Size

		if !opts.DryRun {
			if err := opts.Processor.Process(ctx, info); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				result.TotalFailed++
				result.Failed[info.Digest] = err.Error()
				s.logger.WarnContext(ctx, "Failed to process asset", "digest", info.Digest.Short(), "error", err)
				return nil
			}
		}
		result.TotalProcessed++

		if opts.OnProgress != nil {
			opts.OnProgress(result.TotalProcessed + result.TotalFailed)
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("failed to walk assets: %w", err)
	}
	return result, nil
}

// ForEach processes each asset with fn.
func (s *Scanner) ForEach(ctx context.Context, fn func(context.Context, assetstore.AssetInfo) error) (*Result, error) {
	return s.Scan(ctx, Options{Processor: ProcessorFunc(fn)})
}
