package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/tendant/assetstore/pkg/assetstore"
	"github.com/tendant/assetstore/pkg/assetstore/digest"
	"github.com/tendant/assetstore/pkg/assetstore/layout"
)

const backendName = "fs"

// markerVersion is bumped when the on-disk format changes incompatibly.
const markerVersion = 1

// encMode produces Core Deterministic CBOR: identical metadata always
// encodes to identical bytes.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("fs: CBOR encoder initialization failed: " + err.Error())
	}
}

// Backend is a filesystem implementation of assetstore.LocalRepository.
// It keeps no in-memory index; every call consults the directory tree, so
// several Backends (or processes) may share a root.
type Backend struct {
	layout layout.Layout
	hasher digest.Hasher
	logger *slog.Logger
	now    func() time.Time

	// beforeVerify runs on the temp file between write and verification.
	beforeVerify func(tmpPath string) error
}

// Config options for the filesystem backend
type Config struct {
	BaseDir     string        // Root of the sharded tree
	ShardLength int           // Digest prefix length per shard directory (default 2)
	Hasher      digest.Hasher // Content hasher (default SHA-256)
	Logger      *slog.Logger
}

type marker struct {
	Version     int    `cbor:"version"`
	Algorithm   string `cbor:"algorithm"`
	ShardLength int    `cbor:"shard_length"`
}

type sidecar struct {
	MimeType    string    `cbor:"mime_type"`
	Size        int64     `cbor:"size"`
	Kind        string    `cbor:"kind"`
	DerivedFrom string    `cbor:"derived_from,omitempty"`
	Variant     string    `cbor:"variant,omitempty"`
	Algorithm   string    `cbor:"algorithm"`
	CreatedAt   time.Time `cbor:"created_at"`
}

// New opens the store at config.BaseDir, creating it if it doesn't exist.
// An existing store created with a different hash algorithm or shard length
// is rejected with assetstore.ErrLayoutMismatch.
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	l, err := layout.New(config.BaseDir, config.ShardLength)
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

	if err := os.MkdirAll(l.TempDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	b := &Backend{
		layout: l,
		hasher: hasher,
		logger: logger,
		now:    time.Now,
	}
	if err := b.checkMarker(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Backend) checkMarker() error {
	want := marker{Version: markerVersion, Algorithm: b.hasher.Algorithm(), ShardLength: b.layout.ShardLength}

	raw, err := os.ReadFile(b.layout.MarkerPath())
	if os.IsNotExist(err) {
		data, err := encMode.Marshal(want)
		if err != nil {
			return fmt.Errorf("failed to encode store marker: %w", err)
		}
		return b.writeAtomic(b.layout.MarkerPath(), data)
	} else if err != nil {
		return fmt.Errorf("failed to read store marker: %w", err)
	}

	var got marker
	if err := cbor.Unmarshal(raw, &got); err != nil {
		return fmt.Errorf("failed to decode store marker: %w", err)
	}
	if got != want {
		return fmt.Errorf("%w: store has %s/shard %d (v%d), opened with %s/shard %d",
			assetstore.ErrLayoutMismatch, got.Algorithm, got.ShardLength, got.Version, want.Algorithm, want.ShardLength)
	}
	return nil
}

// Hasher returns the content hasher.
func (b *Backend) Hasher() digest.Hasher {
	return b.hasher
}

// Root returns the store root directory.
func (b *Backend) Root() string {
	return b.layout.Root
}

// Path returns the file path of d. It does not check existence.
func (b *Backend) Path(d digest.Digest) string {
	return b.layout.Path(d)
}

// Put stores data under its digest. If the digest is already present the
// call returns immediately without writing. Otherwise the bytes go to a temp
// file, are re-read and re-hashed, and only then renamed into place, so the
// final path only ever holds complete, verified content.
func (b *Backend) Put(ctx context.Context, data []byte, opts assetstore.PutOptions) (digest.Digest, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d := b.hasher.Sum(data)
	finalPath := b.layout.Path(d)

	if isRegular(finalPath) {
		b.repairSidecar(d, opts)
		return d, nil
	}

	tmpFile, err := os.CreateTemp(b.layout.TempDir(), "put-*.tmp")
	if err != nil {
		return "", b.ioError(d, "create temp", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up the temp file on any error path.
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return "", b.ioError(d, "write", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return "", b.ioError(d, "sync", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", b.ioError(d, "close", err)
	}

	if b.beforeVerify != nil {
		if err := b.beforeVerify(tmpPath); err != nil {
			return "", b.ioError(d, "write", err)
		}
	}
	size, err := b.verify(tmpPath, d)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(b.layout.ShardDir(d), 0755); err != nil {
		return "", b.ioError(d, "create shard", err)
	}

	// A concurrent writer may have won; its bytes are identical by construction.
	if isRegular(finalPath) {
		os.Remove(tmpPath)
		success = true
		b.repairSidecar(d, opts)
		return d, nil
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		// A concurrent Delete may have pruned the empty shard directory.
		if !os.IsNotExist(err) {
			return "", b.ioError(d, "rename", err)
		}
		if err := os.MkdirAll(b.layout.ShardDir(d), 0755); err != nil {
			return "", b.ioError(d, "create shard", err)
		}
		if err := os.Rename(tmpPath, finalPath); err != nil {
			return "", b.ioError(d, "rename", err)
		}
	}
	success = true

	if err := b.writeSidecar(d, size, opts); err != nil {
		return "", b.ioError(d, "write sidecar", err)
	}

	b.logger.Debug("Stored asset", "digest", d.Short(), "size", size, "kind", opts.Kind)
	return d, nil
}

// verify re-hashes the file at path and returns its size.
func (b *Backend) verify(path string, want digest.Digest) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, b.ioError(want, "verify", err)
	}
	defer f.Close()

	cr := &countingReader{r: f}
	got, err := b.hasher.SumReader(cr)
	if err != nil {
		return 0, b.ioError(want, "verify", err)
	}
	if got != want {
		b.logger.Error("Failed to verify written asset", "expected", want.Short(), "actual", got.Short())
		return 0, fmt.Errorf("%w: expected %s, persisted bytes hash to %s", assetstore.ErrCorruptWrite, want.Short(), got.Short())
	}
	return cr.n, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (b *Backend) writeSidecar(d digest.Digest, size int64, opts assetstore.PutOptions) error {
	kind := opts.Kind
	if kind == "" {
		kind = assetstore.KindPrimary
	}
	mimeType := opts.MimeType
	if mimeType == "" {
		mimeType = assetstore.DefaultMimeType
	}
	data, err := encMode.Marshal(sidecar{
		MimeType:    mimeType,
		Size:        size,
		Kind:        string(kind),
		DerivedFrom: opts.DerivedFrom.String(),
		Variant:     opts.Variant,
		Algorithm:   b.hasher.Algorithm(),
		CreatedAt:   b.now().UTC().Truncate(time.Second),
	})
	if err != nil {
		return fmt.Errorf("failed to encode sidecar: %w", err)
	}
	return b.writeAtomic(b.layout.SidecarPath(d), data)
}

// repairSidecar restores metadata lost to a crash between rename and
// sidecar write.
func (b *Backend) repairSidecar(d digest.Digest, opts assetstore.PutOptions) {
	if _, err := os.Stat(b.layout.SidecarPath(d)); !os.IsNotExist(err) {
		return
	}
	info, err := os.Stat(b.layout.Path(d))
	if err != nil {
		return
	}
	if err := b.writeSidecar(d, info.Size(), opts); err != nil {
		b.logger.Warn("Failed to repair sidecar", "digest", d.Short(), "error", err)
		return
	}
	b.logger.Info("Repaired missing sidecar", "digest", d.Short())
}

// writeAtomic writes data to path via a temp file and rename.
func (b *Backend) writeAtomic(path string, data []byte) error {
	tmpFile, err := os.CreateTemp(b.layout.TempDir(), "meta-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Get returns the stored bytes and metadata.
func (b *Backend) Get(ctx context.Context, d digest.Digest) ([]byte, *assetstore.AssetMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(b.layout.Path(d))
	if os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("%w: %s", assetstore.ErrNotFound, d.Short())
	} else if err != nil {
		return nil, nil, b.ioError(d, "read", err)
	}
	return data, b.readMeta(d, int64(len(data)), data), nil
}

// Open streams the stored bytes.
func (b *Backend) Open(ctx context.Context, d digest.Digest) (io.ReadCloser, *assetstore.AssetMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	file, err := os.Open(b.layout.Path(d))
	if os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("%w: %s", assetstore.ErrNotFound, d.Short())
	} else if err != nil {
		return nil, nil, b.ioError(d, "open", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, b.ioError(d, "stat", err)
	}

	var head []byte
	if _, serr := os.Stat(b.layout.SidecarPath(d)); serr != nil {
		buffer := make([]byte, 512)
		n, _ := io.ReadFull(file, buffer)
		head = buffer[:n]
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			file.Close()
			return nil, nil, b.ioError(d, "seek", err)
		}
	}
	return file, b.readMeta(d, info.Size(), head), nil
}

// readMeta loads the sidecar, falling back to content sniffing when it is
// missing or unreadable. Size always reflects the stored bytes.
func (b *Backend) readMeta(d digest.Digest, size int64, head []byte) *assetstore.AssetMeta {
	meta := &assetstore.AssetMeta{
		Digest:    d,
		Size:      size,
		Kind:      assetstore.KindPrimary,
		Algorithm: b.hasher.Algorithm(),
	}

	raw, err := os.ReadFile(b.layout.SidecarPath(d))
	if err == nil {
		var sc sidecar
		if err := cbor.Unmarshal(raw, &sc); err == nil {
			meta.MimeType = sc.MimeType
			meta.Kind = assetstore.Kind(sc.Kind)
			meta.DerivedFrom = digest.Digest(sc.DerivedFrom)
			meta.Variant = sc.Variant
			meta.CreatedAt = sc.CreatedAt
			if sc.Algorithm != "" {
				meta.Algorithm = sc.Algorithm
			}
			return meta
		}
		b.logger.Warn("Failed to decode sidecar", "digest", d.Short(), "error", err)
	}

	meta.MimeType = assetstore.DefaultMimeType
	if len(head) > 0 {
		meta.MimeType = http.DetectContentType(head)
	} else if f, err := os.Open(b.layout.Path(d)); err == nil {
		buffer := make([]byte, 512)
		n, _ := io.ReadFull(f, buffer)
		f.Close()
		if n > 0 {
			meta.MimeType = http.DetectContentType(buffer[:n])
		}
	}
	return meta
}

// Exists reports whether d is stored. It never fails.
func (b *Backend) Exists(ctx context.Context, d digest.Digest) bool {
	return isRegular(b.layout.Path(d))
}

// Delete removes d and its sidecar. Deleting an absent digest returns false.
func (b *Backend) Delete(ctx context.Context, d digest.Digest) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	filePath := b.layout.Path(d)

	existed := true
	if err := os.Remove(filePath); os.IsNotExist(err) {
		existed = false
	} else if err != nil {
		return false, b.ioError(d, "delete", err)
	}
	if err := os.Remove(b.layout.SidecarPath(d)); err != nil && !os.IsNotExist(err) {
		b.logger.Warn("Failed to remove sidecar", "digest", d.Short(), "error", err)
	}

	// Clean up empty directories
	b.cleanupEmptyDirectories(filepath.Dir(filePath))

	return existed, nil
}

// cleanupEmptyDirectories removes an empty shard directory
func (b *Backend) cleanupEmptyDirectories(dir string) {
	// Don't remove the base directory
	if dir == b.layout.Root {
		return
	}

	// Check if directory is empty
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		os.Remove(dir)
	}
}

// Walk calls fn for every stored asset in digest order. Sidecars, temp
// files and stray names are skipped.
func (b *Backend) Walk(ctx context.Context, fn func(assetstore.AssetInfo) error) error {
	shards, err := os.ReadDir(b.layout.Root)
	if err != nil {
		return b.ioError("", "walk", err)
	}
	for _, shard := range shards {
		if !shard.IsDir() || !b.layout.IsShard(shard.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		entries, err := os.ReadDir(filepath.Join(b.layout.Root, shard.Name()))
		if os.IsNotExist(err) {
			continue
		} else if err != nil {
			return b.ioError("", "walk", err)
		}
		for _, entry := range entries {
			if !entry.Type().IsRegular() {
				continue
			}
			d, ok := b.layout.ParseEntry(shard.Name(), entry.Name())
			if !ok {
				continue
			}
			info, err := entry.Info()
			if os.IsNotExist(err) {
				continue
			} else if err != nil {
				return b.ioError(d, "walk", err)
			}
			if err := fn(assetstore.AssetInfo{Digest: d, Size: info.Size(), ModTime: info.ModTime()}); err != nil {
				return err
			}
		}
	}
	return nil
}

// PurgeTemp removes in-flight files older than olderThan, which can only be
// leftovers of writers that crashed.
func (b *Backend) PurgeTemp(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(b.layout.TempDir())
	if os.IsNotExist(err) {
		return 0, nil
	} else if err != nil {
		return 0, b.ioError("", "purge temp", err)
	}
	cutoff := b.now().Add(-olderThan)
	purged := 0
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(b.layout.TempDir(), entry.Name())); err == nil {
			purged++
		}
	}
	if purged > 0 {
		b.logger.Info("Purged abandoned temp files", "count", purged)
	}
	return purged, nil
}

func (b *Backend) ioError(d digest.Digest, op string, err error) error {
	return &assetstore.StorageError{Backend: backendName, Digest: d, Op: op, Err: err}
}

func isRegular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

var _ assetstore.LocalRepository = (*Backend)(nil)
var _ assetstore.TempPurger = (*Backend)(nil)
