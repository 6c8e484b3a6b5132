// Package eviction keeps the image cache within its configured capacity.
//
// A background Manager periodically asks its capacity policies how many
// bytes must be freed and lets the configured Strategy pick victim files.
// Entries are identified by their cache-relative path (shard levels, key
// directory, filename), the same keys the variant store reports from its
// Walk.
package eviction

// Victim is a file selected for eviction.
type Victim struct {
	Key  string
	Size int64
}

// Store is the slice of the variant store the manager needs: enumerate
// cached files and delete them.
type Store interface {
	Walk(fn func(relPath string, size int64) error) error
	Delete(relPath string) error
}

// Strategy orders cache entries for eviction.
type Strategy interface {
	// OnAdd is called when a file is written. Returns the change in total
	// bytes tracked by the strategy (full size for a new key, the
	// difference for a re-added one).
	OnAdd(key string, size int64) int64

	// OnAccess is called when a file is read.
	OnAccess(key string)

	// GetVictims returns files to evict to bring currentSize down to
	// targetSize.
	GetVictims(currentSize int64, targetSize int64) []Victim

	// Remove forgets a key (e.g. deleted externally).
	Remove(key string)
}

// Observer receives eviction events. Implemented by the metrics adapter.
type Observer interface {
	Evicted(key string, size int64)
}
