package assetstore

import (
	"context"
	"io"
	"time"

	"github.com/tendant/assetstore/pkg/assetstore/digest"
)

// Repository defines the content-addressed storage contract. Implementations
// hold no authoritative in-memory state; every call consults the backing store.
type Repository interface {
	// Put stores data and returns its digest. Storing bytes that already
	// exist is a no-op returning the existing digest.
	Put(ctx context.Context, data []byte, opts PutOptions) (digest.Digest, error)

	// Get returns the stored bytes and metadata, or ErrNotFound.
	Get(ctx context.Context, d digest.Digest) ([]byte, *AssetMeta, error)

	// Open streams the stored bytes, or returns ErrNotFound.
	Open(ctx context.Context, d digest.Digest) (io.ReadCloser, *AssetMeta, error)

	// Exists reports whether d is stored. It never fails; backend errors
	// are reported as false.
	Exists(ctx context.Context, d digest.Digest) bool

	// Delete removes d unconditionally and reports whether anything existed.
	Delete(ctx context.Context, d digest.Digest) (bool, error)

	// Walk calls fn for every stored asset. Returning an error from fn stops the walk.
	Walk(ctx context.Context, fn func(AssetInfo) error) error

	// Hasher returns the content hasher the repository uses for identity.
	Hasher() digest.Hasher
}

// LocalRepository is a Repository whose assets live on the local filesystem.
type LocalRepository interface {
	Repository

	// Path returns the file path of d without checking existence.
	Path(d digest.Digest) string
}

// TempPurger is implemented by repositories that can remove abandoned
// in-flight writes.
type TempPurger interface {
	PurgeTemp(olderThan time.Duration) (int, error)
}

// Deriver produces derived raster assets.
type Deriver interface {
	// Derive writes a thumbnail of primary bounded by size pixels and returns
	// its digest. Identical input and size always yield the same digest.
	Derive(ctx context.Context, primary []byte, size int) (digest.Digest, error)
}

// ReferenceSource supplies the snapshot of digests referenced by live records.
type ReferenceSource interface {
	LiveDigests(ctx context.Context) (digest.Set, error)
}

// ReferenceFunc adapts a function to ReferenceSource.
type ReferenceFunc func(ctx context.Context) (digest.Set, error)

// LiveDigests calls f.
func (f ReferenceFunc) LiveDigests(ctx context.Context) (digest.Set, error) {
	return f(ctx)
}

// StaticReferences is a fixed reference snapshot.
type StaticReferences digest.Set

// LiveDigests returns a copy of the snapshot.
func (s StaticReferences) LiveDigests(ctx context.Context) (digest.Set, error) {
	out := make(digest.Set, len(s))
	for d := range s {
		out.Add(d)
	}
	return out, nil
}

// EventSink receives asset lifecycle notifications. Errors are logged by
// the service and never fail the operation.
type EventSink interface {
	// AssetStored is fired after an upload or import stores (or deduplicates) an asset.
	AssetStored(ctx context.Context, meta AssetMeta) error

	// AssetDeleted is fired after an explicit delete.
	AssetDeleted(ctx context.Context, d digest.Digest) error

	// AssetsCollected is fired after a non-dry-run cleanup.
	AssetsCollected(ctx context.Context, report *CollectReport) error
}
