// Package thumbnail derives reduced-resolution JPEG assets from stored images.
package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	"github.com/tendant/assetstore/pkg/assetstore"
	"github.com/tendant/assetstore/pkg/assetstore/digest"
)

// DefaultQuality is the JPEG quality of derived thumbnails.
const DefaultQuality = 85

// MimeType is the content type of every derived thumbnail.
const MimeType = "image/jpeg"

// Deriver implements assetstore.Deriver on top of a repository.
type Deriver struct {
	repo    assetstore.Repository
	quality int
}

// Option configures a Deriver.
type Option func(*Deriver)

// WithQuality sets the JPEG quality (1-100).
func WithQuality(q int) Option {
	return func(d *Deriver) {
		if q >= 1 && q <= 100 {
			d.quality = q
		}
	}
}

// New creates a Deriver that stores thumbnails in repo.
func New(repo assetstore.Repository, opts ...Option) *Deriver {
	d := &Deriver{repo: repo, quality: DefaultQuality}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Render returns the thumbnail bytes for primary bounded by size pixels on
// each side. Aspect ratio is preserved and images already within bounds are
// not enlarged. Output depends only on primary, size and quality, and is
// distinct per size even when no scaling happens: the variant name is
// carried in a JPEG comment segment.
func (d *Deriver) Render(primary []byte, size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("thumbnail size must be positive, got %d", size)
	}
	img, _, err := image.Decode(bytes.NewReader(primary))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", assetstore.ErrUnsupportedFormat, err)
	}

	thumb := resize.Thumbnail(uint(size), uint(size), img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: d.quality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return withComment(buf.Bytes(), assetstore.ThumbnailVariant(size)), nil
}

// withComment inserts a COM segment right after the SOI marker. Decoders
// skip COM segments, so pixels are unaffected.
func withComment(encoded []byte, comment string) []byte {
	if len(encoded) < 2 || encoded[0] != 0xff || encoded[1] != 0xd8 {
		return encoded
	}
	n := len(comment) + 2
	out := make([]byte, 0, len(encoded)+n+2)
	out = append(out, encoded[:2]...)
	out = append(out, 0xff, 0xfe, byte(n>>8), byte(n))
	out = append(out, comment...)
	return append(out, encoded[2:]...)
}

// Derive renders the thumbnail and stores it as its own asset with a
// back-reference to the primary digest. Nothing is written when primary
// cannot be decoded.
func (d *Deriver) Derive(ctx context.Context, primary []byte, size int) (digest.Digest, error) {
	data, err := d.Render(primary, size)
	if err != nil {
		return "", err
	}
	return d.repo.Put(ctx, data, assetstore.PutOptions{
		MimeType:    MimeType,
		Kind:        assetstore.KindThumbnail,
		DerivedFrom: d.repo.Hasher().Sum(primary),
		Variant:     assetstore.ThumbnailVariant(size),
	})
}

var _ assetstore.Deriver = (*Deriver)(nil)
