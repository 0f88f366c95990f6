package assetstore_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tendant/assetstore/pkg/assetstore"
	"github.com/tendant/assetstore/pkg/assetstore/digest"
	"github.com/tendant/assetstore/pkg/assetstore/storage/fs"
)

func gradient(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, gradient(w, h)))
	return buf.Bytes()
}

// jpegBytes encodes a w x h JPEG and pads it to size bytes when size is
// larger. Decoders stop at the end-of-image marker, so padding keeps the
// payload a valid JPEG.
func jpegBytes(t *testing.T, w, h, size int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, gradient(w, h), &jpeg.Options{Quality: 90}))
	out := buf.Bytes()
	if len(out) < size {
		out = append(out, make([]byte, size-len(out))...)
	}
	return out
}

func openProject(t *testing.T) (*assetstore.Project, *fs.Backend) {
	t.Helper()
	project, err := assetstore.OpenProject(t.TempDir(), "test")
	require.NoError(t, err)
	repo, err := fs.New(fs.Config{BaseDir: project.AssetRoot(), ShardLength: project.Layout().ShardLength})
	require.NoError(t, err)
	return project, repo
}

func countAssets(t *testing.T, repo assetstore.Repository) (int, int64) {
	t.Helper()
	n, total := 0, int64(0)
	require.NoError(t, repo.Walk(context.Background(), func(info assetstore.AssetInfo) error {
		n++
		total += info.Size
		return nil
	}))
	return n, total
}

// recordingSink captures lifecycle events.
type recordingSink struct {
	mu        sync.Mutex
	stored    []assetstore.AssetMeta
	deleted   []digest.Digest
	collected []*assetstore.CollectReport
}

func (r *recordingSink) AssetStored(ctx context.Context, meta assetstore.AssetMeta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stored = append(r.stored, meta)
	return nil
}

func (r *recordingSink) AssetDeleted(ctx context.Context, d digest.Digest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, d)
	return nil
}

func (r *recordingSink) AssetsCollected(ctx context.Context, report *assetstore.CollectReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collected = append(r.collected, report)
	return nil
}
