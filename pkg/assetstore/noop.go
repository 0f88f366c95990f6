package assetstore

import (
	"context"
	"log/slog"

	"github.com/tendant/assetstore/pkg/assetstore/digest"
)

// NoopEventSink is a no-operation implementation of EventSink
// Useful for production when you don't need event handling or for testing
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// AssetStored does nothing and returns nil
func (n *NoopEventSink) AssetStored(ctx context.Context, meta AssetMeta) error {
	return nil
}

// AssetDeleted does nothing and returns nil
func (n *NoopEventSink) AssetDeleted(ctx context.Context, d digest.Digest) error {
	return nil
}

// AssetsCollected does nothing and returns nil
func (n *NoopEventSink) AssetsCollected(ctx context.Context, report *CollectReport) error {
	return nil
}

// LogEventSink writes lifecycle events to a structured logger.
type LogEventSink struct {
	logger *slog.Logger
}

// NewLogEventSink creates an event sink logging at info level. A nil logger
// uses slog.Default().
func NewLogEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEventSink{logger: logger}
}

func (l *LogEventSink) AssetStored(ctx context.Context, meta AssetMeta) error {
	l.logger.InfoContext(ctx, "Asset stored",
		"digest", meta.Digest.String(),
		"kind", meta.Kind,
		"mime_type", meta.MimeType,
		"size", meta.Size,
	)
	return nil
}

func (l *LogEventSink) AssetDeleted(ctx context.Context, d digest.Digest) error {
	l.logger.InfoContext(ctx, "Asset deleted", "digest", d.String())
	return nil
}

func (l *LogEventSink) AssetsCollected(ctx context.Context, report *CollectReport) error {
	l.logger.InfoContext(ctx, "Assets collected",
		"candidates", len(report.Candidates),
		"deleted", len(report.Deleted),
		"missing", len(report.Missing),
		"failed", len(report.Failed),
		"reclaimed_bytes", report.ReclaimedBytes,
	)
	return nil
}
