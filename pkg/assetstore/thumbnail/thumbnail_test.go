package thumbnail_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/assetstore/pkg/assetstore"
	"github.com/tendant/assetstore/pkg/assetstore/digest"
	"github.com/tendant/assetstore/pkg/assetstore/storage/fs"
	"github.com/tendant/assetstore/pkg/assetstore/thumbnail"
)

func samplePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: uint8(x ^ y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func countAssets(t *testing.T, repo assetstore.Repository) int {
	t.Helper()
	n := 0
	require.NoError(t, repo.Walk(context.Background(), func(assetstore.AssetInfo) error {
		n++
		return nil
	}))
	return n
}

func TestDerive_Idempotent(t *testing.T) {
	repo, err := fs.New(fs.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	deriver := thumbnail.New(repo)
	ctx := context.Background()
	primary := samplePNG(t, 512, 512)

	d1, err := deriver.Derive(ctx, primary, 128)
	require.NoError(t, err)
	d2, err := deriver.Derive(ctx, primary, 128)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.Equal(t, 1, countAssets(t, repo))

	d3, err := deriver.Derive(ctx, primary, 256)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)
	assert.Equal(t, 2, countAssets(t, repo))
}

func TestDerive_Metadata(t *testing.T) {
	repo, err := fs.New(fs.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	deriver := thumbnail.New(repo)
	ctx := context.Background()
	primary := samplePNG(t, 400, 200)

	d, err := deriver.Derive(ctx, primary, 100)
	require.NoError(t, err)

	data, meta, err := repo.Get(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, thumbnail.MimeType, meta.MimeType)
	assert.Equal(t, assetstore.KindThumbnail, meta.Kind)
	assert.Equal(t, digest.SHA256().Sum(primary), meta.DerivedFrom)
	assert.Equal(t, "thumbnail_100", meta.Variant)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 50, cfg.Height)
}

func TestRender_NoUpscale(t *testing.T) {
	deriver := thumbnail.New(nil)
	data, err := deriver.Render(samplePNG(t, 64, 32), 256)
	require.NoError(t, err)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Width)
	assert.Equal(t, 32, cfg.Height)
}

// primaries smaller than both boxes are not scaled, yet each size is its own asset
func TestDerive_SmallPrimary(t *testing.T) {
	repo, err := fs.New(fs.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	deriver := thumbnail.New(repo)
	ctx := context.Background()
	primary := samplePNG(t, 100, 80)

	small, err := deriver.Derive(ctx, primary, 128)
	require.NoError(t, err)
	large, err := deriver.Derive(ctx, primary, 256)
	require.NoError(t, err)
	assert.NotEqual(t, small, large)
	assert.Equal(t, 2, countAssets(t, repo))

	again, err := deriver.Derive(ctx, primary, 256)
	require.NoError(t, err)
	assert.Equal(t, large, again)

	for d, variant := range map[digest.Digest]string{small: "thumbnail_128", large: "thumbnail_256"} {
		data, meta, err := repo.Get(ctx, d)
		require.NoError(t, err)
		assert.Equal(t, variant, meta.Variant)

		img, format, err := image.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)
		assert.Equal(t, 100, img.Bounds().Dx())
		assert.Equal(t, 80, img.Bounds().Dy())
	}
}

func TestDerive_UnsupportedFormat(t *testing.T) {
	repo, err := fs.New(fs.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	deriver := thumbnail.New(repo)

	_, err = deriver.Derive(context.Background(), []byte("definitely not an image"), 128)
	assert.ErrorIs(t, err, assetstore.ErrUnsupportedFormat)
	assert.Equal(t, 0, countAssets(t, repo))
}

func TestRender_InvalidSize(t *testing.T) {
	deriver := thumbnail.New(nil)
	_, err := deriver.Render(samplePNG(t, 8, 8), 0)
	assert.Error(t, err)
}

func TestWithQuality(t *testing.T) {
	primary := samplePNG(t, 300, 300)
	low, err := thumbnail.New(nil, thumbnail.WithQuality(10)).Render(primary, 128)
	require.NoError(t, err)
	high, err := thumbnail.New(nil, thumbnail.WithQuality(95)).Render(primary, 128)
	require.NoError(t, err)
	assert.NotEqual(t, low, high)
}
