package assetstore

import (
	"errors"
	"fmt"

	"github.com/tendant/assetstore/pkg/assetstore/digest"
)

// Error types
var (
	// ErrInvalidToken indicates a lookup token that is not an exact digest.
	// It is always returned before any filesystem access.
	ErrInvalidToken = errors.New("invalid asset token")

	// ErrNotFound indicates a well-formed digest with no stored asset.
	ErrNotFound = errors.New("asset not found")

	// ErrNoActiveProject indicates the project scope is closed or missing.
	ErrNoActiveProject = errors.New("no active project")

	// ErrIO indicates a read or write failure at the storage layer.
	ErrIO = errors.New("asset storage i/o failure")

	// ErrCorruptWrite indicates the persisted bytes did not hash to the
	// expected digest. The artifact has been removed; the caller may retry.
	ErrCorruptWrite = errors.New("corrupt write: digest verification failed")

	// ErrUnsupportedFormat indicates bytes that cannot be decoded as a
	// supported raster image.
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrEmptyPayload indicates an upload with no bytes.
	ErrEmptyPayload = errors.New("empty payload")

	// ErrNoReferenceSource indicates a cleanup requested without any
	// source of live references.
	ErrNoReferenceSource = errors.New("no reference source configured")

	// ErrPathUnavailable indicates the repository does not keep assets on
	// the local filesystem.
	ErrPathUnavailable = errors.New("asset path unavailable for this repository")

	// ErrLayoutMismatch indicates an existing store created with a different
	// hash algorithm or shard length.
	ErrLayoutMismatch = errors.New("store layout mismatch")
)

// StorageError represents a failure of a storage backend operation.
// It always matches ErrIO in addition to its wrapped cause.
type StorageError struct {
	Backend string
	Digest  digest.Digest
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Digest.IsZero() {
		return fmt.Sprintf("storage operation %s failed on backend %s: %v", e.Op, e.Backend, e.Err)
	}
	return fmt.Sprintf("storage operation %s failed for asset %s on backend %s: %v", e.Op, e.Digest.Short(), e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is makes every StorageError an ErrIO.
func (e *StorageError) Is(target error) bool {
	return target == ErrIO
}

// AssetError represents an error related to a service operation on one asset.
type AssetError struct {
	Digest digest.Digest
	Op     string
	Err    error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("asset operation %s failed for asset %s: %v", e.Op, e.Digest.Short(), e.Err)
}

func (e *AssetError) Unwrap() error {
	return e.Err
}
