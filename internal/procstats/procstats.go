// Package procstats samples resource usage of the running step daemon.
package procstats

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/process"
)

// Stats is a point-in-time resource snapshot.
type Stats struct {
	PID           int32   `json:"pid"`
	CPUPercent    float64 `json:"cpu_percent"`
	RSSBytes      uint64  `json:"rss_bytes"`
	NumThreads    int32   `json:"num_threads"`
	DataFreeBytes uint64  `json:"data_free_bytes,omitempty"`
}

// Sample reads the daemon's CPU, memory and thread counts. When dataDir is set the free
// space of its filesystem is included (builds and bed samples live there).
func Sample(ctx context.Context, pid int, dataDir string) (Stats, error) {
	st := Stats{PID: int32(pid)}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return st, fmt.Errorf("inspect process %d: %w", pid, err)
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		st.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		st.RSSBytes = mem.RSS
	}
	if n, err := p.NumThreadsWithContext(ctx); err == nil {
		st.NumThreads = n
	}
	if dataDir != "" {
		if usage, err := disk.UsageWithContext(ctx, dataDir); err == nil {
			st.DataFreeBytes = usage.Free
		}
	}
	return st, nil
}
