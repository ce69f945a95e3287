package monitor

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"testing"
	"time"
)

func Test_Snapshot_cachesWithinTTL(t *testing.T) {
	t.Parallel()

	s := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)))
	calls := 0
	s.collect = func(context.Context) Snapshot {
		calls++
		return Snapshot{Goroutines: calls}
	}

	first := s.Snapshot(context.Background())
	second := s.Snapshot(context.Background())
	if calls != 1 {
		t.Fatalf("collect calls = %d, want 1", calls)
	}
	if first.Goroutines != second.Goroutines {
		t.Fatalf("cached snapshot changed: %d vs %d", first.Goroutines, second.Goroutines)
	}

	s.mu.Lock()
	s.collectedAt = time.Now().Add(-monitorCacheTTL)
	s.mu.Unlock()

	if got := s.Snapshot(context.Background()); got.Goroutines != 2 || calls != 2 {
		t.Fatalf("after expiry goroutines=%d calls=%d, want 2/2", got.Goroutines, calls)
	}
}

func Test_collectSnapshot_describesSelf(t *testing.T) {
	t.Parallel()

	s := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)))
	snap := s.collectSnapshot(context.Background())
	if snap.PID != int32(os.Getpid()) {
		t.Fatalf("pid = %d, want %d", snap.PID, os.Getpid())
	}
	if snap.Platform != runtime.GOOS || snap.GoVersion != runtime.Version() {
		t.Fatalf("platform = %q go = %q", snap.Platform, snap.GoVersion)
	}
	if snap.Goroutines <= 0 {
		t.Fatalf("goroutines = %d, want > 0", snap.Goroutines)
	}
	if snap.UptimeSeconds < 0 || snap.TimestampMs <= 0 {
		t.Fatalf("uptime = %v timestamp = %d", snap.UptimeSeconds, snap.TimestampMs)
	}
}
