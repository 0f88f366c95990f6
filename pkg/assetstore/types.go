package assetstore

import (
	"fmt"
	"time"

	"github.com/tendant/assetstore/pkg/assetstore/digest"
)

// Kind distinguishes original uploads from derived assets.
type Kind string

const (
	KindPrimary   Kind = "primary"
	KindThumbnail Kind = "thumbnail"
)

// DefaultMimeType is recorded when the caller declares no type.
const DefaultMimeType = "application/octet-stream"

// DefaultThumbnailSize is the bounding box, in pixels, for derived thumbnails.
const DefaultThumbnailSize = 256

// PutOptions describes the metadata recorded alongside a stored payload.
type PutOptions struct {
	MimeType    string
	Kind        Kind
	DerivedFrom digest.Digest
	Variant     string
}

// AssetMeta is the sidecar metadata of a stored asset. Size is always the
// length of the persisted bytes, never a caller-supplied value.
type AssetMeta struct {
	Digest      digest.Digest `json:"digest"`
	MimeType    string        `json:"mime_type"`
	Size        int64         `json:"size"`
	Kind        Kind          `json:"kind"`
	DerivedFrom digest.Digest `json:"derived_from,omitempty"`
	Variant     string        `json:"variant,omitempty"`
	Algorithm   string        `json:"algorithm,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// AssetInfo is what enumeration reports for each stored asset.
type AssetInfo struct {
	Digest  digest.Digest
	Size    int64
	ModTime time.Time
}

// ThumbnailVariant names the variant recorded for a thumbnail of size px.
func ThumbnailVariant(size int) string {
	return fmt.Sprintf("thumbnail_%d", size)
}

// UploadRequest contains parameters for a single upload.
type UploadRequest struct {
	Data              []byte
	Filename          string
	MimeType          string
	GenerateThumbnail bool
	// ThumbnailSize overrides the service default when positive.
	ThumbnailSize int
}

// UploadResult reports the stored digest and, when requested, the thumbnail digest.
type UploadResult struct {
	Digest          digest.Digest `json:"digest"`
	ThumbnailDigest digest.Digest `json:"thumbnail_digest,omitempty"`
	MimeType        string        `json:"mime_type"`
	Size            int64         `json:"size"`
}

// BatchItem is one payload in an import batch.
type BatchItem struct {
	Data     []byte
	Filename string
	// MimeType is optional; it is inferred from Filename or content when empty.
	MimeType string
}

// ItemResult is the outcome for one batch item, in input order.
// Exactly one of Digest and Err is set.
type ItemResult struct {
	Index           int           `json:"index"`
	Filename        string        `json:"filename"`
	Digest          digest.Digest `json:"digest,omitempty"`
	ThumbnailDigest digest.Digest `json:"thumbnail_digest,omitempty"`
	MimeType        string        `json:"mime_type,omitempty"`
	Size            int64         `json:"size,omitempty"`
	Err             error         `json:"-"`
}

// OK reports whether the item was stored.
func (r ItemResult) OK() bool {
	return r.Err == nil
}

// CollectOptions configures a garbage collection sweep.
type CollectOptions struct {
	// DryRun reports candidates without deleting anything.
	DryRun bool
	// OlderThan, when positive, only considers assets whose last write is
	// at least this old.
	OlderThan time.Duration
}

// CollectReport lists the candidates of a sweep and what was removed.
type CollectReport struct {
	DryRun     bool            `json:"dry_run"`
	Scanned    int             `json:"scanned"`
	Candidates []digest.Digest `json:"candidates"`
	Deleted    []digest.Digest `json:"deleted"`
	// Missing lists candidates that disappeared before they could be deleted.
	Missing []digest.Digest `json:"missing,omitempty"`
	// Failed maps candidates whose deletion failed to the error message.
	Failed         map[digest.Digest]string `json:"failed,omitempty"`
	ReclaimedBytes int64                    `json:"reclaimed_bytes"`
	TempPurged     int                      `json:"temp_purged,omitempty"`
}

// CleanupOptions configures Service.Cleanup.
type CleanupOptions struct {
	DryRun    bool
	OlderThan time.Duration
	// Live, when non-nil, is used instead of the configured reference source.
	Live digest.Set
}

// Statistics summarizes the store.
type Statistics struct {
	AssetCount           int   `json:"asset_count"`
	TotalBytes           int64 `json:"total_bytes"`
	OrphanCandidateCount int   `json:"orphan_candidate_count"`
	// ReferencesAvailable is false when no reference source is configured,
	// in which case OrphanCandidateCount is zero.
	ReferencesAvailable bool `json:"references_available"`
}

// ImportOptions configures a batch import.
type ImportOptions struct {
	// GenerateThumbnails derives a thumbnail for every stored image item.
	GenerateThumbnails bool
	// ThumbnailSize overrides the default bounding box when positive.
	ThumbnailSize int
}
