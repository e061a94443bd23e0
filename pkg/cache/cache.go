// Package cache stores rendered artifacts keyed by content hash.
//
// The render runner in pkg/pipeline consults a [Cache] before painting a
// snapshot: identical inputs (both snapshots, theme, mode, scale and format)
// always produce identical bytes, so a hit can be served without decoding or
// laying anything out.
//
// Two implementations are provided:
//   - [FileCache]: one JSON file per entry under a directory, for the CLI
//   - [NullCache]: never stores anything, for --no-cache and tests
//
// Keys are built by a [Keyer]; [DefaultKeyer] hashes the options that affect
// the output so that unrelated settings never share an entry.
package cache

import (
	"context"
	"strings"
	"time"
)

// TTLArtifact is how long a rendered artifact stays valid.
const TTLArtifact = 7 * 24 * time.Hour

// Cache is a byte store with per-entry expiry.
type Cache interface {
	// Get returns the entry for key. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the cache.
	Close() error
}

// =============================================================================
// Keys
// =============================================================================

// Keyer builds cache keys.
type Keyer interface {
	// ArtifactKey returns the key of one rendered format for the given input.
	ArtifactKey(inputHash string, opts ArtifactKeyOpts) string
}

// ArtifactKeyOpts are the render settings that change an artifact's bytes.
type ArtifactKeyOpts struct {
	Format string  `json:"format"`
	Mode   string  `json:"mode"`
	Scale  float64 `json:"scale"`
	Theme  string  `json:"theme,omitempty"` // hash of the theme
}

// DefaultKeyer produces keys of the form "artifact:<sha256>".
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// ArtifactKey hashes inputHash together with opts.
func (DefaultKeyer) ArtifactKey(inputHash string, opts ArtifactKeyOpts) string {
	return hashKey("artifact", inputHash, opts)
}

// keyType is the prefix of a key, reported to cache hooks.
func keyType(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "unknown"
}
