package health

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
	"go.uber.org/zap"
)

// Sampler periodically feeds process memory and output-disk usage into a
// Metrics instance so degradation checks reflect real resource pressure.
type Sampler struct {
	metrics  *Metrics
	diskPath string
	interval time.Duration
	logger   *zap.Logger
}

// NewSampler builds a Sampler that watches the filesystem containing
// diskPath. A zero interval defaults to 30s.
func NewSampler(metrics *Metrics, diskPath string, interval time.Duration, logger *zap.Logger) *Sampler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sampler{
		metrics:  metrics,
		diskPath: diskPath,
		interval: interval,
		logger:   logger,
	}
}

// Run samples until the context is canceled. It takes one sample immediately
// so a short-lived batch still gets resource inputs.
func (s *Sampler) Run(ctx context.Context) {
	s.sample()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *Sampler) sample() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	memoryMB := float64(memStats.Alloc) / (1024 * 1024)

	diskUsed := 0.0
	if s.diskPath != "" {
		usage, err := disk.Usage(s.diskPath)
		if err != nil {
			s.logger.Warn("disk usage sample failed",
				zap.String("path", s.diskPath), zap.Error(err))
		} else {
			diskUsed = usage.UsedPercent
		}
	}

	s.metrics.SetResourceUsage(memoryMB, diskUsed)
}
