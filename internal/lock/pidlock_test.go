package lock

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestAcquireWritesPID(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "run", "milestone-hook.pid")
	l, err := Acquire(lockPath)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(func() { _ = l.Release() })

	b, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.TrimSpace(string(b)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("lock file = %q, want current pid", b)
	}
}

func TestAcquireTwiceFails(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "milestone-hook.pid")
	l, err := Acquire(lockPath)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer l.Release()

	if _, err := Acquire(lockPath); !errors.Is(err, ErrLocked) {
		t.Fatalf("second Acquire err = %v, want ErrLocked", err)
	}
}

func TestHolder(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "milestone-hook.pid")

	pid, held, err := Holder(lockPath)
	if err != nil || held || pid != 0 {
		t.Fatalf("Holder(missing) = %d, %v, %v", pid, held, err)
	}

	l, err := Acquire(lockPath)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	pid, held, err = Holder(lockPath)
	if err != nil {
		t.Fatalf("Holder: %v", err)
	}
	if !held || pid != os.Getpid() {
		t.Fatalf("Holder(held) = %d, %v", pid, held)
	}

	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	pid, held, err = Holder(lockPath)
	if err != nil {
		t.Fatalf("Holder: %v", err)
	}
	if held || pid != os.Getpid() {
		t.Fatalf("Holder(stale) = %d, %v, want recorded pid and not held", pid, held)
	}
}

func TestHolderGarbage(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "milestone-hook.pid")
	if err := os.WriteFile(lockPath, []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Holder(lockPath); err == nil {
		t.Fatal("expected error for non-numeric lock file")
	}
}
