// Package cachekey derives stable, filesystem-safe identifiers for source
// URLs.
//
// A key is the hex sha256 digest of the URL string. Its shard path nests
// one directory per character of the first 8 hex digits so no single
// directory accumulates an unbounded number of entries:
//
//	{root}/d/e/a/d/b/e/e/f/deadbeef... etc
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/resizr/resizr/internal/imgerr"
)

// ShardDepth is the number of leading key characters used as directory
// levels. Part of the on-disk layout; changing it orphans existing entries.
const ShardDepth = 8

// Key identifies one source URL in the cache.
type Key string

// Derive validates rawURL and returns its cache key.
// The URL must be absolute; anything unparseable is an invalid argument.
func Derive(rawURL string) (Key, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", imgerr.ErrInvalidArgument, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("%w: url must be absolute: %q", imgerr.ErrInvalidArgument, rawURL)
	}
	sum := sha256.Sum256([]byte(rawURL))
	return Key(hex.EncodeToString(sum[:])), nil
}

// Dir returns the key's leaf directory relative to the cache root:
// the shard levels followed by the full key.
func (k Key) Dir() string {
	parts := make([]string, 0, ShardDepth+1)
	for _, c := range string(k)[:ShardDepth] {
		parts = append(parts, string(c))
	}
	parts = append(parts, string(k))
	return filepath.Join(parts...)
}

func (k Key) String() string {
	return string(k)
}
