package assetstore

import (
	"fmt"
	"os"
	"strings"

	"github.com/tendant/assetstore/pkg/assetstore/digest"
)

// DefaultScheme is the URI scheme the display layer uses to address assets.
const DefaultScheme = "asset"

// ParseToken validates a lookup token. It touches nothing but the string.
func ParseToken(token string) (digest.Digest, error) {
	d, err := digest.Parse(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return d, nil
}

// ParseAssetURI extracts the token from scheme://<digest>. Trailing slashes
// are stripped; the digest must be the entire remainder.
func ParseAssetURI(uri, scheme string) (string, error) {
	if scheme == "" {
		scheme = DefaultScheme
	}
	prefix := scheme + "://"
	if len(uri) < len(prefix) || !strings.EqualFold(uri[:len(prefix)], prefix) {
		return "", fmt.Errorf("%w: expected %s URI", ErrInvalidToken, prefix)
	}
	token := strings.TrimRight(uri[len(prefix):], "/")
	if _, err := ParseToken(token); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve maps token to the path of a stored asset in project. Validation
// happens in a fixed order: token syntax (ErrInvalidToken, before any
// filesystem access), project scope (ErrNoActiveProject), then existence
// (ErrNotFound). Resolve keeps no state and is safe for concurrent use.
func Resolve(token string, project *Project) (string, error) {
	d, err := ParseToken(token)
	if err != nil {
		return "", err
	}
	if !project.Active() {
		return "", ErrNoActiveProject
	}

	path := project.Layout().Path(d)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, d.Short())
		}
		return "", &StorageError{Backend: "fs", Digest: d, Op: "resolve", Err: err}
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, d.Short())
	}
	return path, nil
}
