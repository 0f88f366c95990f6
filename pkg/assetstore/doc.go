// Package assetstore provides a content-addressed binary asset store scoped
// to an open project.
//
// Every payload is stored once under the hex digest of its bytes. Lookups
// go through a Repository (the local filesystem backend lives in
// storage/fs, an S3 backend in storage/s3); thumbnails are derived by a
// Deriver and stored as ordinary assets; unreferenced assets are removed
// by a Collector that reconciles the store against a ReferenceSource
// snapshot.
//
// The Service interface bundles these into the operation surface the rest
// of an application uses: upload, fetch, delete, batch import, cleanup and
// statistics. Resolve is the standalone validation gate for tokens that
// arrive over the asset:// retrieval channel. A token is rejected before
// any filesystem access unless it is exactly a lowercase hex digest.
package assetstore
