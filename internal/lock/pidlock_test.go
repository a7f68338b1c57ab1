package lock

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestAcquireWritesPID(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "run", "blockbridge.lock")
	l, err := Acquire(lockPath)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(func() { _ = l.Release() })

	pid, ok := Holder(lockPath)
	if !ok || pid != os.Getpid() {
		t.Fatalf("Holder = %d, %v; want %d", pid, ok, os.Getpid())
	}
	if l.Path() != lockPath {
		t.Fatalf("Path = %q", l.Path())
	}
}

func TestAcquireTwiceFails(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "blockbridge.lock")
	first, err := Acquire(lockPath)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	// flock locks belong to the open file description, so a second open in the
	// same process conflicts too.
	if _, err := Acquire(lockPath); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}

	again, err := Acquire(lockPath)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	_ = again.Release()
}

func TestAcquireOverwritesStalePID(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "blockbridge.lock")
	if err := os.WriteFile(lockPath, []byte("999999999\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	l, err := Acquire(lockPath)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer l.Release()

	b, _ := os.ReadFile(lockPath)
	if string(b) != strconv.Itoa(os.Getpid())+"\n" {
		t.Fatalf("lock file = %q", b)
	}
}

func TestHolderMissingOrGarbage(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if _, ok := Holder(filepath.Join(dir, "none")); ok {
		t.Fatal("expected no holder for missing file")
	}
	garbage := filepath.Join(dir, "garbage")
	_ = os.WriteFile(garbage, []byte("abc"), 0o644)
	if _, ok := Holder(garbage); ok {
		t.Fatal("expected no holder for garbage")
	}
}

func TestAcquireEmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := Acquire(""); err == nil {
		t.Fatal("expected error")
	}
}
