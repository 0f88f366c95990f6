package assetstore

import (
	"context"
	"io"
)

// Service defines the operation surface exposed to the rest of the application
type Service interface {
	// Upload operations
	UploadAsset(ctx context.Context, req UploadRequest) (*UploadResult, error)
	ImportBatch(ctx context.Context, items []BatchItem, opts ImportOptions) ([]ItemResult, error)

	// Retrieval operations
	FetchAssetPath(ctx context.Context, token string) (string, error)
	OpenAsset(ctx context.Context, token string) (io.ReadCloser, *AssetMeta, error)
	AssetExists(ctx context.Context, token string) (bool, error)

	// Deletion and maintenance
	DeleteAsset(ctx context.Context, token string) (bool, error)
	Cleanup(ctx context.Context, opts CleanupOptions) (*CollectReport, error)
	Statistics(ctx context.Context) (*Statistics, error)

	// Project returns the scope the service is bound to.
	Project() *Project
}
