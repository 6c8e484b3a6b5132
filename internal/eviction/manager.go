package eviction

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/resizr/resizr/internal/eviction/policy"
)

// Manager runs cache eviction for one cache root.
type Manager struct {
	store        Store
	policies     []policy.Policy
	strategy     Strategy
	observer     Observer
	currentBytes atomic.Int64
	interval     time.Duration
}

// NewManager creates a Manager. The store is attached separately with
// SetStore because the variant store and the manager reference each other.
func NewManager(policies []policy.Policy, interval time.Duration, strategy Strategy) *Manager {
	return &Manager{
		policies: policies,
		interval: interval,
		strategy: strategy,
	}
}

// SetStore attaches the underlying storage.
func (m *Manager) SetStore(store Store) {
	m.store = store
}

// SetObserver attaches an eviction event sink (metrics).
func (m *Manager) SetObserver(obs Observer) {
	m.observer = obs
}

// LoadInitialState scans the cache tree and seeds the strategy, so files
// written by previous runs (or by other processes sharing the root)
// participate in eviction.
func (m *Manager) LoadInitialState() error {
	if m.store == nil {
		return fmt.Errorf("store not initialized")
	}

	var totalSize int64
	var count int

	err := m.store.Walk(func(relPath string, size int64) error {
		totalSize += size
		count++
		m.strategy.OnAdd(relPath, size)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk cache: %w", err)
	}

	m.currentBytes.Store(totalSize)
	slog.Info("Initial cache state loaded", "files", count, "size", totalSize)
	return nil
}

// Start runs the background eviction loop until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunEviction()
		}
	}
}

// Add records a newly written file.
func (m *Manager) Add(key string, size int64) {
	diff := m.strategy.OnAdd(key, size)
	m.currentBytes.Add(diff)
}

// Touch records a read.
func (m *Manager) Touch(key string) {
	m.strategy.OnAccess(key)
}

// RunEviction checks every capacity policy and deletes victims if any
// policy wants bytes freed. The most demanding policy wins.
func (m *Manager) RunEviction() {
	if m.store == nil {
		slog.Error("Store not initialized")
		return
	}

	current := m.currentBytes.Load()
	var maxToFree int64

	for _, p := range m.policies {
		toFree, err := p.BytesToFree(current)
		if err != nil {
			slog.Error("Failed to check capacity policy", "error", err)
			continue
		}
		if toFree > maxToFree {
			maxToFree = toFree
		}
	}

	if maxToFree <= 0 {
		return
	}

	targetSize := current - maxToFree
	if targetSize < 0 {
		targetSize = 0
	}

	victims := m.strategy.GetVictims(current, targetSize)
	if len(victims) == 0 {
		return
	}

	slog.Info("Evicting cached images", "count", len(victims), "current_size", current, "to_free", maxToFree)

	for _, victim := range victims {
		if err := m.store.Delete(victim.Key); err != nil {
			// Delete is idempotent; a real error here means the file will
			// be picked up again next cycle.
			slog.Error("Failed to evict file", "key", victim.Key, "error", err)
		}
		m.strategy.Remove(victim.Key)
		m.currentBytes.Add(-victim.Size)
		if m.observer != nil {
			m.observer.Evicted(victim.Key, victim.Size)
		}
	}
}
