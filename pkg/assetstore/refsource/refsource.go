// Package refsource holds what the database-backed reference sources share:
// the default query, options, and the rule for turning column values into a
// live digest set.
package refsource

import (
	"log/slog"
	"strings"

	"github.com/tendant/assetstore/pkg/assetstore/digest"
)

// DefaultQuery selects every digest referenced by a live record. Any
// single-column query works, e.g. a UNION over image and thumbnail columns.
const DefaultQuery = "SELECT digest FROM asset_references"

// Options configures a reference source.
type Options struct {
	Query  string
	Logger *slog.Logger
}

// Option configures Options.
type Option func(*Options)

// WithQuery overrides the reference query.
func WithQuery(q string) Option {
	return func(o *Options) {
		if strings.TrimSpace(q) != "" {
			o.Query = q
		}
	}
}

// WithLogger sets the logger used to report skipped values.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// Apply returns Options with defaults filled in.
func Apply(opts ...Option) Options {
	o := Options{Query: DefaultQuery, Logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Builder accumulates column values into a digest set.
type Builder struct {
	set     digest.Set
	skipped int
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{set: digest.NewSet()}
}

// Add records v. NULLs (nil) are ignored. Values that are not exact digests
// are counted as skipped; they can never name a stored asset.
func (b *Builder) Add(v *string) {
	if v == nil {
		return
	}
	d, err := digest.Parse(strings.TrimSpace(*v))
	if err != nil {
		b.skipped++
		return
	}
	b.set.Add(d)
}

// Skipped returns the number of malformed values seen.
func (b *Builder) Skipped() int {
	return b.skipped
}

// Set returns the accumulated digests.
func (b *Builder) Set() digest.Set {
	return b.set
}

// Finish logs skipped values and returns the set.
func (b *Builder) Finish(logger *slog.Logger, source string) digest.Set {
	if b.skipped > 0 {
		logger.Warn("Skipped malformed reference values", "source", source, "count", b.skipped)
	}
	return b.set
}
