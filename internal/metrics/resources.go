package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// DefaultSampleInterval is how often the resource sampler refreshes gauges.
const DefaultSampleInterval = 15 * time.Second

// ResourceSampler periodically samples CPU and RSS of running service
// processes into the cpu_percent and memory_rss_bytes gauges.
type ResourceSampler struct {
	// PIDs returns name -> pid for currently running services.
	PIDs     func() map[string]int
	Interval time.Duration
	Log      *slog.Logger
}

// Run blocks until ctx is canceled.
func (r *ResourceSampler) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	log := r.Log
	if log == nil {
		log = slog.Default()
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.sampleOnce(ctx, log)
		}
	}
}

func (r *ResourceSampler) sampleOnce(ctx context.Context, log *slog.Logger) {
	for name, pid := range r.PIDs() {
		p, err := process.NewProcessWithContext(ctx, int32(pid))
		if err != nil {
			continue // raced with an exit; next tick catches up
		}
		cpu, err := p.CPUPercentWithContext(ctx)
		if err != nil {
			log.Debug("cpu sample failed", "service", name, "error", err)
			continue
		}
		var rss uint64
		if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
			rss = mem.RSS
		}
		SetResources(name, cpu, rss)
	}
}
