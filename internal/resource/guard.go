// Package resource checks whether the system can sustain an active
// recording: free space on the recording destination and available memory
// against configured minimums.
package resource

import (
	"context"
	"log/slog"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// Snapshot is the result of one resource check.
type Snapshot struct {
	FreeDiskBytes   uint64 `json:"free_disk_bytes"`
	FreeMemoryBytes uint64 `json:"free_memory_bytes"`
	// DiskKnown and MemoryKnown are false when the underlying query
	// failed; an unknown value never counts against the thresholds.
	DiskKnown   bool `json:"disk_known"`
	MemoryKnown bool `json:"memory_known"`
	Sufficient  bool `json:"sufficient"`
}

// Guard evaluates system resources against minimum thresholds. A failed
// query reports sufficient: a flaky statistics source must not stop a
// recording that is otherwise healthy.
type Guard struct {
	path      string
	minDisk   uint64
	minMemory uint64
	logger    *slog.Logger

	diskUsage  func(ctx context.Context, path string) (*disk.UsageStat, error)
	virtualMem func(ctx context.Context) (*mem.VirtualMemoryStat, error)
}

// NewGuard creates a Guard for the given recording destination. A nil
// logger falls back to slog.Default.
func NewGuard(path string, minDisk, minMemory uint64, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		path:       path,
		minDisk:    minDisk,
		minMemory:  minMemory,
		logger:     logger,
		diskUsage:  disk.UsageWithContext,
		virtualMem: mem.VirtualMemoryWithContext,
	}
}

// Check queries free disk and available memory once. The destination may
// not exist yet before the first recording; that counts as a failed query,
// not as insufficient space.
func (g *Guard) Check(ctx context.Context) Snapshot {
	snap := Snapshot{Sufficient: true}

	if usage, err := g.diskUsage(ctx, g.path); err == nil {
		snap.FreeDiskBytes = usage.Free
		snap.DiskKnown = true
		if usage.Free < g.minDisk {
			snap.Sufficient = false
			g.logger.Warn("free disk space below minimum",
				"path", g.path, "free_bytes", usage.Free, "min_bytes", g.minDisk)
		}
	} else {
		g.logger.Debug("disk usage query failed, proceeding",
			"path", g.path, "error", err)
	}

	if vm, err := g.virtualMem(ctx); err == nil {
		snap.FreeMemoryBytes = vm.Available
		snap.MemoryKnown = true
		if vm.Available < g.minMemory {
			snap.Sufficient = false
			g.logger.Warn("available memory below minimum",
				"available_bytes", vm.Available, "min_bytes", g.minMemory)
		}
	} else {
		g.logger.Debug("memory query failed, proceeding", "error", err)
	}

	return snap
}
