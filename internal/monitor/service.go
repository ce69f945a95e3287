// Package monitor reports runtime stats for the server process.
package monitor

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/process"
)

const monitorCacheTTL = 2 * time.Second

// Snapshot is the JSON body of GET /health/runtime.
type Snapshot struct {
	PID           int32     `json:"pid"`
	Platform      string    `json:"platform"`
	Arch          string    `json:"arch"`
	GoVersion     string    `json:"go_version"`
	Goroutines    int       `json:"goroutines"`
	Threads       int32     `json:"threads"`
	RSSBytes      uint64    `json:"rss_bytes"`
	CPUPercent    float64   `json:"cpu_percent"`
	HostCPUUsage  float64   `json:"host_cpu_usage"`
	HostCPUCores  int       `json:"host_cpu_cores"`
	LoadAverage   []float64 `json:"load_average,omitempty"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	TimestampMs   int64     `json:"timestamp_ms"`
}

type Service struct {
	log     *slog.Logger
	started time.Time
	collect func(ctx context.Context) Snapshot

	mu          sync.Mutex
	hasSnap     bool
	snap        Snapshot
	collectedAt time.Time
}

func NewService(log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{log: log, started: time.Now()}
	s.collect = s.collectSnapshot
	return s
}

// Snapshot returns cached stats, refreshing them at most every two seconds.
func (s *Service) Snapshot(ctx context.Context) Snapshot {
	now := time.Now()

	s.mu.Lock()
	if s.hasSnap && now.Sub(s.collectedAt) < monitorCacheTTL {
		out := s.snap
		s.mu.Unlock()
		return out
	}
	s.mu.Unlock()

	snap := s.collect(ctx)

	s.mu.Lock()
	s.snap = snap
	s.collectedAt = now
	s.hasSnap = true
	s.mu.Unlock()

	return snap
}

func (s *Service) collectSnapshot(ctx context.Context) Snapshot {
	now := time.Now()
	snap := Snapshot{
		PID:           int32(os.Getpid()),
		Platform:      runtime.GOOS,
		Arch:          runtime.GOARCH,
		GoVersion:     runtime.Version(),
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: now.Sub(s.started).Seconds(),
		TimestampMs:   now.UnixMilli(),
	}

	if p, err := process.NewProcessWithContext(ctx, snap.PID); err == nil {
		if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
			snap.RSSBytes = mem.RSS
		} else if err != nil {
			s.log.Warn("runtime_stats: get rss failed", "error", err)
		}
		if pct, err := p.CPUPercentWithContext(ctx); err == nil {
			snap.CPUPercent = pct
		}
		if n, err := p.NumThreadsWithContext(ctx); err == nil {
			snap.Threads = n
		}
	} else {
		s.log.Warn("runtime_stats: open self process failed", "error", err)
	}

	// Non-blocking: the first call after start compares against boot time.
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		snap.HostCPUUsage = pct[0]
	} else if err != nil {
		s.log.Warn("runtime_stats: get cpu percent failed", "error", err)
	}
	if cores, err := cpu.CountsWithContext(ctx, true); err == nil {
		snap.HostCPUCores = cores
	}
	if avg, err := load.AvgWithContext(ctx); err == nil && avg != nil {
		snap.LoadAverage = []float64{avg.Load1, avg.Load5, avg.Load15}
	}
	return snap
}
