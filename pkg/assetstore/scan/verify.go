package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/tendant/assetstore/pkg/assetstore"
)

// ErrDigestMismatch reports stored bytes that no longer hash to their name.
var ErrDigestMismatch = errors.New("stored bytes do not match digest")

// Verifier re-hashes stored assets.
type Verifier struct {
	repo assetstore.Repository
}

// NewVerifier creates a Verifier for repo.
func NewVerifier(repo assetstore.Repository) *Verifier {
	return &Verifier{repo: repo}
}

// Process streams the asset through the repository's hasher.
func (v *Verifier) Process(ctx context.Context, info assetstore.AssetInfo) error {
	rc, _, err := v.repo.Open(ctx, info.Digest)
	if err != nil {
		return err
	}
	defer rc.Close()

	got, err := v.repo.Hasher().SumReader(rc)
	if err != nil {
		return &assetstore.AssetError{Digest: info.Digest, Op: "verify", Err: err}
	}
	if got != info.Digest {
		return fmt.Errorf("%w: content hashes to %s", ErrDigestMismatch, got.Short())
	}
	return nil
}

// Verify re-hashes every asset in the scanned repository.
func (s *Scanner) Verify(ctx context.Context) (*Result, error) {
	return s.Scan(ctx, Options{Processor: NewVerifier(s.repo)})
}
