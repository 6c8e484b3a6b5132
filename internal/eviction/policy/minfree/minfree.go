// Package minfree keeps a minimum amount of free space on the disk
// holding the image cache.
package minfree

import (
	"fmt"
	"log/slog"
	"syscall"
)

// Policy triggers eviction when disk free space is below a threshold.
type Policy struct {
	Path         string
	MinFreeBytes int64
}

func (m *Policy) BytesToFree(currentSize int64) (int64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(m.Path, &stat); err != nil {
		return 0, fmt.Errorf("failed to check disk space: %w", err)
	}

	freeSpace := int64(stat.Bavail) * int64(stat.Bsize)

	slog.Debug("Disk space check", "path", m.Path, "free_bytes", freeSpace, "min_required", m.MinFreeBytes)

	if freeSpace < m.MinFreeBytes {
		return m.MinFreeBytes - freeSpace, nil
	}
	return 0, nil
}
