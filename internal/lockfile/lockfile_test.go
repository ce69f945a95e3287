//go:build !windows

package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestAcquireDir_ExclusiveUntilReleased(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "data")
	first, err := AcquireDir(dir)
	if err != nil {
		t.Fatalf("AcquireDir: %v", err)
	}
	if got, want := first.Path(), filepath.Join(dir, FileName); got != want {
		t.Fatalf("Path=%q, want %q", got, want)
	}

	b, err := os.ReadFile(first.Path())
	if err != nil {
		t.Fatalf("read lock: %v", err)
	}
	if pid, _ := strconv.Atoi(strings.TrimSpace(string(b))); pid != os.Getpid() {
		t.Fatalf("pid=%d, want %d", pid, os.Getpid())
	}

	// flock locks belong to the open file description, so a second open in the same
	// process conflicts like another process would.
	if _, err := AcquireDir(dir); !errors.Is(err, ErrAlreadyLocked) {
		t.Fatalf("second AcquireDir err=%v, want ErrAlreadyLocked", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}

	again, err := AcquireDir(dir)
	if err != nil {
		t.Fatalf("AcquireDir after release: %v", err)
	}
	_ = again.Release()
}

func TestAcquireDir_Empty(t *testing.T) {
	t.Parallel()

	if _, err := AcquireDir("  "); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}
