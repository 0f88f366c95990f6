// Package digest provides the content identity used by the asset store:
// a fixed-length lowercase hexadecimal encoding of a 256-bit hash of the
// exact payload bytes.
package digest

import (
	"errors"
	"fmt"
	"sort"
)

// Length is the number of hex characters in a Digest (256 bits).
const Length = 64

// ErrMalformed indicates a string that is not exactly Length lowercase hex characters.
var ErrMalformed = errors.New("malformed digest")

// Digest identifies stored content. The zero value is not a valid digest.
type Digest string

// Parse validates s and returns it as a Digest. Only the canonical
// lowercase form is accepted so that each digest maps to exactly one path.
func Parse(s string) (Digest, error) {
	if len(s) != Length {
		return "", fmt.Errorf("%w: expected %d characters, got %d", ErrMalformed, Length, len(s))
	}
	for i := 0; i < len(s); i++ {
		if !isLowerHex(s[i]) {
			return "", fmt.Errorf("%w: invalid character at offset %d", ErrMalformed, i)
		}
	}
	return Digest(s), nil
}

// Valid reports whether s has exact digest syntax.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

func isLowerHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f')
}

// String returns the hex form.
func (d Digest) String() string {
	return string(d)
}

// Short returns an abbreviated form for log lines.
func (d Digest) Short() string {
	if len(d) <= 12 {
		return string(d)
	}
	return string(d[:12])
}

// IsZero reports whether d is empty.
func (d Digest) IsZero() bool {
	return d == ""
}

// Set is a set of digests, typically the live reference snapshot.
type Set map[Digest]struct{}

// NewSet builds a Set from the given digests.
func NewSet(digests ...Digest) Set {
	s := make(Set, len(digests))
	for _, d := range digests {
		s[d] = struct{}{}
	}
	return s
}

// Add inserts d.
func (s Set) Add(d Digest) {
	s[d] = struct{}{}
}

// Has reports whether d is in the set. A nil set contains nothing.
func (s Set) Has(d Digest) bool {
	_, ok := s[d]
	return ok
}

// Len returns the number of digests.
func (s Set) Len() int {
	return len(s)
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []Digest {
	out := make([]Digest, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
