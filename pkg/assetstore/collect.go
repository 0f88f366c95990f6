package assetstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/tendant/assetstore/pkg/assetstore/digest"
)

// DefaultTempMaxAge is how old an in-flight temp file must be before a
// sweep treats it as abandoned.
const DefaultTempMaxAge = time.Hour

// Collector deletes stored assets that no live record references.
//
// The live set is a snapshot taken by the caller. Assets written after the
// snapshot are unreferenced from the collector's point of view, so callers
// should pass an OlderThan that covers the time between storing an asset and
// persisting its reference.
type Collector struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewCollector creates a collector over repo. A nil logger uses slog.Default().
func NewCollector(repo Repository, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{repo: repo, logger: logger, now: time.Now}
}

type candidate struct {
	digest digest.Digest
	size   int64
}

// Collect enumerates the store, selects every asset absent from live and
// old enough per opts, and deletes the selection unless opts.DryRun is set.
// A dry run reports exactly the candidates a real run with the same inputs
// would delete. Individual delete failures are recorded in the report and
// joined into the returned error; the sweep continues past them.
func (c *Collector) Collect(ctx context.Context, live digest.Set, opts CollectOptions) (*CollectReport, error) {
	report := &CollectReport{
		DryRun:     opts.DryRun,
		Candidates: []digest.Digest{},
		Deleted:    []digest.Digest{},
	}

	var cutoff time.Time
	if opts.OlderThan > 0 {
		cutoff = c.now().Add(-opts.OlderThan)
	}

	var candidates []candidate
	err := c.repo.Walk(ctx, func(info AssetInfo) error {
		report.Scanned++
		if live.Has(info.Digest) {
			return nil
		}
		if !cutoff.IsZero() && info.ModTime.After(cutoff) {
			return nil
		}
		candidates = append(candidates, candidate{digest: info.Digest, size: info.Size})
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("failed to enumerate assets: %w", err)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].digest < candidates[j].digest })
	for _, cand := range candidates {
		report.Candidates = append(report.Candidates, cand.digest)
	}

	if opts.DryRun {
		c.logger.InfoContext(ctx, "Cleanup dry run", "scanned", report.Scanned, "candidates", len(report.Candidates))
		return report, nil
	}

	var errs []error
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		existed, err := c.repo.Delete(ctx, cand.digest)
		if err != nil {
			if report.Failed == nil {
				report.Failed = make(map[digest.Digest]string)
			}
			report.Failed[cand.digest] = err.Error()
			errs = append(errs, &AssetError{Digest: cand.digest, Op: "collect", Err: err})
			c.logger.ErrorContext(ctx, "Failed to delete orphan asset", "digest", cand.digest.Short(), "error", err)
			continue
		}
		if !existed {
			report.Missing = append(report.Missing, cand.digest)
			continue
		}
		report.Deleted = append(report.Deleted, cand.digest)
		report.ReclaimedBytes += cand.size
	}

	if purger, ok := c.repo.(TempPurger); ok {
		n, err := purger.PurgeTemp(DefaultTempMaxAge)
		if err != nil {
			c.logger.WarnContext(ctx, "Failed to purge temp files", "error", err)
		}
		report.TempPurged = n
	}

	c.logger.InfoContext(ctx, "Cleanup finished",
		"scanned", report.Scanned,
		"candidates", len(report.Candidates),
		"deleted", len(report.Deleted),
		"missing", len(report.Missing),
		"failed", len(report.Failed),
	)
	return report, errors.Join(errs...)
}
