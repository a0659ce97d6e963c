// Package hash provides the content digests used to name blobs.
package hash

import (
	"crypto/md5" // #nosec G501 -- content addressing, not security.
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	gohash "hash"
	"strings"
)

// Supported algorithm names.
const (
	MD5    = "md5"
	SHA256 = "sha256"
)

// Hasher implements crawler.Hasher over one digest algorithm.
type Hasher struct {
	name    string
	newHash func() gohash.Hash
}

// New returns a hasher for algorithm. An empty name selects md5.
func New(algorithm string) (*Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "", MD5:
		return &Hasher{name: MD5, newHash: md5.New}, nil
	case SHA256:
		return &Hasher{name: SHA256, newHash: sha256.New}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
}

// Name reports the algorithm in use.
func (h *Hasher) Name() string {
	return h.name
}

// Hash hashes the input and returns a lowercase hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	d := h.newHash()
	if _, err := d.Write(data); err != nil {
		return "", fmt.Errorf("hash %s: %w", h.name, err)
	}
	return hex.EncodeToString(d.Sum(nil)), nil
}
