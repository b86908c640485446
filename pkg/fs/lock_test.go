package fs_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/kvsystems/slackbase/pkg/fs"
)

func TestLocker_LockExcludesSecondLocker(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "db.lock")
	locker := fs.NewLocker(fs.NewReal())

	lk, err := locker.Lock(path)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer lk.Close()

	_, err = locker.TryLock(path)
	if err == nil {
		t.Fatalf("TryLock: expected error while first lock is held")
	}
}

func TestLocker_CloseReleasesLock(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "db.lock")
	locker := fs.NewLocker(fs.NewReal())

	lk, err := locker.Lock(path)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	if err := lk.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lk2, err := locker.TryLock(path)
	if err != nil {
		t.Fatalf("TryLock after release: %v", err)
	}
	defer lk2.Close()
}

func TestLocker_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "db.lock")
	locker := fs.NewLocker(fs.NewReal())

	lk, err := locker.Lock(path)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	if err := lk.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}

	if err := lk.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestLocker_LockWithTimeoutExpires(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "db.lock")
	locker := fs.NewLocker(fs.NewReal())

	held, err := locker.Lock(path)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer held.Close()

	start := time.Now()

	_, err = locker.LockWithTimeout(path, 30*time.Millisecond)
	if err == nil {
		t.Fatalf("LockWithTimeout: expected timeout error")
	}

	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("LockWithTimeout returned too early: %s", elapsed)
	}
}

func TestLocker_LockWithTimeoutRejectsNonPositive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "db.lock")
	locker := fs.NewLocker(fs.NewReal())

	_, err := locker.LockWithTimeout(path, 0)
	if err == nil {
		t.Fatalf("LockWithTimeout: expected error for zero timeout")
	}
}

func TestLocker_RLockAllowsMultipleReaders(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "db.lock")
	locker := fs.NewLocker(fs.NewReal())

	lk1, err := locker.RLock(path)
	if err != nil {
		t.Fatalf("RLock 1: %v", err)
	}
	defer lk1.Close()

	lk2, err := locker.RLock(path)
	if err != nil {
		t.Fatalf("RLock 2: %v", err)
	}
	defer lk2.Close()
}

func TestLocker_CreatesParentDirectories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deeper", "db.lock")
	locker := fs.NewLocker(fs.NewReal())

	lk, err := locker.Lock(path)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer lk.Close()
}
