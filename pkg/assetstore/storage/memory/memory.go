package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/tendant/assetstore/pkg/assetstore"
	"github.com/tendant/assetstore/pkg/assetstore/digest"
)

type object struct {
	data []byte
	meta assetstore.AssetMeta
}

// Backend is an in-memory implementation of the assetstore.Repository interface.
// Useful for tests and for ephemeral stores that never touch disk.
type Backend struct {
	mu      sync.RWMutex
	objects map[digest.Digest]object
	hasher  digest.Hasher
	now     func() time.Time
}

// Option configures the in-memory backend
type Option func(*Backend)

// WithHasher sets the content hasher (default SHA-256)
func WithHasher(h digest.Hasher) Option {
	return func(b *Backend) {
		if h != nil {
			b.hasher = h
		}
	}
}

// WithClock sets the clock used to stamp stored assets
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		if now != nil {
			b.now = now
		}
	}
}

// New creates a new in-memory storage backend
func New(opts ...Option) *Backend {
	b := &Backend{
		objects: make(map[digest.Digest]object),
		hasher:  digest.SHA256(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Hasher returns the content hasher
func (b *Backend) Hasher() digest.Hasher {
	return b.hasher
}

// Put stores a copy of data unless its digest is already present
func (b *Backend) Put(ctx context.Context, data []byte, opts assetstore.PutOptions) (digest.Digest, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d := b.hasher.Sum(data)

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[d]; exists {
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
	b.objects[d] = object{
		data: bytes.Clone(data),
		meta: assetstore.AssetMeta{
			Digest:      d,
			MimeType:    mimeType,
			Size:        int64(len(data)),
			Kind:        kind,
			DerivedFrom: opts.DerivedFrom,
			Variant:     opts.Variant,
			Algorithm:   b.hasher.Algorithm(),
			CreatedAt:   b.now(),
		},
	}
	return d, nil
}

// Get returns a copy of the stored bytes
func (b *Backend) Get(ctx context.Context, d digest.Digest) ([]byte, *assetstore.AssetMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[d]
	if !exists {
		return nil, nil, fmt.Errorf("%w: %s", assetstore.ErrNotFound, d.Short())
	}
	meta := obj.meta
	return bytes.Clone(obj.data), &meta, nil
}

// Open streams the stored bytes
func (b *Backend) Open(ctx context.Context, d digest.Digest) (io.ReadCloser, *assetstore.AssetMeta, error) {
	data, meta, err := b.Get(ctx, d)
	if err != nil {
		return nil, nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), meta, nil
}

// Exists reports whether d is stored
func (b *Backend) Exists(ctx context.Context, d digest.Digest) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, exists := b.objects[d]
	return exists
}

// Delete removes d and reports whether it existed
func (b *Backend) Delete(ctx context.Context, d digest.Digest) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, exists := b.objects[d]
	delete(b.objects, d)
	return exists, nil
}

// Walk visits assets in digest order over a snapshot taken at call time
func (b *Backend) Walk(ctx context.Context, fn func(assetstore.AssetInfo) error) error {
	b.mu.RLock()
	infos := make([]assetstore.AssetInfo, 0, len(b.objects))
	for d, obj := range b.objects {
		infos = append(infos, assetstore.AssetInfo{Digest: d, Size: obj.meta.Size, ModTime: obj.meta.CreatedAt})
	}
	b.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Digest < infos[j].Digest })
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(info); err != nil {
			return err
		}
	}
	return nil
}

var _ assetstore.Repository = (*Backend)(nil)
