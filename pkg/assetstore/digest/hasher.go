package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/zeebo/blake3"
)

// Supported algorithm names.
const (
	AlgorithmSHA256 = "sha256"
	AlgorithmBLAKE3 = "blake3"
)

// Hasher computes digests. Implementations are stateless and safe for
// concurrent use.
type Hasher interface {
	// Algorithm returns the algorithm name recorded in store metadata.
	Algorithm() string

	// Sum returns the digest of data.
	Sum(data []byte) Digest

	// SumReader returns the digest of everything read from r.
	SumReader(r io.Reader) (Digest, error)
}

type hasher struct {
	name    string
	newHash func() hash.Hash
}

func (h hasher) Algorithm() string {
	return h.name
}

func (h hasher) Sum(data []byte) Digest {
	w := h.newHash()
	w.Write(data)
	return Digest(hex.EncodeToString(w.Sum(nil)))
}

func (h hasher) SumReader(r io.Reader) (Digest, error) {
	w := h.newHash()
	if _, err := io.Copy(w, r); err != nil {
		return "", fmt.Errorf("hashing content: %w", err)
	}
	return Digest(hex.EncodeToString(w.Sum(nil))), nil
}

// SHA256 returns the default hasher.
func SHA256() Hasher {
	return hasher{name: AlgorithmSHA256, newHash: sha256.New}
}

// BLAKE3 returns a hasher producing 256-bit BLAKE3 digests.
func BLAKE3() Hasher {
	return hasher{name: AlgorithmBLAKE3, newHash: func() hash.Hash { return blake3.New() }}
}

// ForAlgorithm returns the hasher registered under name. An empty name
// selects SHA-256.
func ForAlgorithm(name string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", AlgorithmSHA256, "sha-256":
		return SHA256(), nil
	case AlgorithmBLAKE3:
		return BLAKE3(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", name)
	}
}
