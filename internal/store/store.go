// Package store owns the on-disk representation of the image cache.
//
// Layout under the root: one directory per cache key at the key's shard
// path, holding a single `original.{ext}` plus zero or more
// `{width}x{height}.{ext}` variants. Files are immutable once written;
// every write lands in a temporary file first and is renamed into place,
// so readers in this or any other process sharing the cache root never
// observe partial content.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/resizr/resizr/internal/cachekey"
	"github.com/resizr/resizr/internal/eviction"
	"github.com/resizr/resizr/internal/imageproc"
)

const originalPrefix = "original."

// Store is a filesystem-backed variant store. The zero value is not
// usable; construct with New.
type Store struct {
	Root     string
	eviction *eviction.Manager
}

// New returns a store rooted at root. The root is cleaned so that
// Delete's directory pruning can compare paths against it.
func New(root string, eviction *eviction.Manager) *Store {
	return &Store{Root: filepath.Clean(root), eviction: eviction}
}

func (s *Store) keyDir(key cachekey.Key) string {
	return filepath.Join(s.Root, key.Dir())
}

func variantName(width, height int, format imageproc.Format) string {
	return fmt.Sprintf("%dx%d.%s", width, height, format.Ext())
}

// parseVariant extracts (width, height, format) from a variant filename.
func parseVariant(name string) (int, int, imageproc.Format, bool) {
	ext := filepath.Ext(name)
	if ext == "" {
		return 0, 0, "", false
	}
	format, ok := imageproc.ParseExt(ext[1:])
	if !ok {
		return 0, 0, "", false
	}
	dims := strings.SplitN(strings.TrimSuffix(name, ext), "x", 2)
	if len(dims) != 2 {
		return 0, 0, "", false
	}
	w, err := strconv.Atoi(dims[0])
	if err != nil || w <= 0 {
		return 0, 0, "", false
	}
	h, err := strconv.Atoi(dims[1])
	if err != nil || h <= 0 {
		return 0, 0, "", false
	}
	return w, h, format, true
}

// FindExact returns the cached variant with exactly the requested shape
// and format, or ok=false if none exists.
func (s *Store) FindExact(key cachekey.Key, width, height int, format imageproc.Format) ([]byte, bool, error) {
	return s.read(key, variantName(width, height, format))
}

// FindBestFit scans the key's directory for the tightest variant that is
// at least as large as the requested shape in both dimensions and has the
// requested format: smallest width wins, ties broken by smallest height.
// Downscaling such a variant is assumed equivalent in quality to resizing
// the original and skips a network fetch.
func (s *Store) FindBestFit(key cachekey.Key, width, height int, format imageproc.Format) ([]byte, int, int, bool, error) {
	entries, err := os.ReadDir(s.keyDir(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, 0, false, nil
		}
		return nil, 0, 0, false, fmt.Errorf("failed to scan variants: %w", err)
	}

	bestW, bestH := 0, 0
	bestName := ""
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		w, h, f, ok := parseVariant(e.Name())
		if !ok || f != format || w < width || h < height {
			continue
		}
		if bestName == "" || w < bestW || (w == bestW && h < bestH) {
			bestW, bestH, bestName = w, h, e.Name()
		}
	}
	if bestName == "" {
		return nil, 0, 0, false, nil
	}

	data, ok, err := s.read(key, bestName)
	if err != nil || !ok {
		// The candidate can vanish between the scan and the read if an
		// eviction ran; treat it as no match.
		return nil, 0, 0, false, err
	}
	return data, bestW, bestH, true, nil
}

// ReadOriginal returns the cached original asset and its sniffed-at-write
// format, or ok=false if the key has no original yet.
func (s *Store) ReadOriginal(key cachekey.Key) ([]byte, imageproc.Format, bool, error) {
	entries, err := os.ReadDir(s.keyDir(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", false, nil
		}
		return nil, "", false, fmt.Errorf("failed to scan for original: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), originalPrefix) {
			continue
		}
		format, ok := imageproc.ParseExt(strings.TrimPrefix(e.Name(), originalPrefix))
		if !ok {
			continue
		}
		data, ok, err := s.read(key, e.Name())
		if err != nil || !ok {
			return nil, "", false, err
		}
		return data, format, true, nil
	}
	return nil, "", false, nil
}

// WriteOriginal persists the fetched original asset for the key. Originals
// are written once; a concurrent writer losing the rename race simply
// overwrites with identical content.
func (s *Store) WriteOriginal(key cachekey.Key, format imageproc.Format, data []byte) error {
	return s.write(key, originalPrefix+format.Ext(), data)
}

// WriteVariant persists a resized variant.
func (s *Store) WriteVariant(key cachekey.Key, width, height int, format imageproc.Format, data []byte) error {
	return s.write(key, variantName(width, height, format), data)
}

func (s *Store) read(key cachekey.Key, name string) ([]byte, bool, error) {
	data, err := os.ReadFile(filepath.Join(s.keyDir(key), name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if s.eviction != nil {
		s.eviction.Touch(filepath.Join(key.Dir(), name))
	}
	return data, true, nil
}

// write stores data under the key's directory via a temporary file and an
// atomic rename, creating shard directories as needed. The temp file is
// created in the destination directory so the rename never crosses a
// filesystem boundary.
func (s *Store) write(key cachekey.Key, name string, data []byte) error {
	dir := s.keyDir(key)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("failed to rename into place: %w", err)
	}

	if s.eviction != nil {
		s.eviction.Add(filepath.Join(key.Dir(), name), int64(len(data)))
	}
	return nil
}

// Walk visits every cached file under the root with its cache-relative
// path and size. Temp files left by crashed writers are skipped. Used by
// the eviction manager to load initial state.
func (s *Store) Walk(fn func(relPath string, size int64) error) error {
	return filepath.Walk(s.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.Root, path)
		if err != nil {
			return err
		}
		return fn(rel, info.Size())
	})
}

// Delete removes one cached file by its cache-relative path and prunes
// any directories it leaves empty. Idempotent: a missing file is not an
// error.
func (s *Store) Delete(relPath string) error {
	path := filepath.Join(s.Root, relPath)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	// Prune empty shard/key directories back up to the root.
	for dir := filepath.Dir(path); strings.HasPrefix(dir, s.Root) && dir != s.Root; dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			break
		}
	}
	return nil
}
