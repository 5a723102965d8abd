package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLockAcquisition(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Release()

	content, err := os.ReadFile(filepath.Join(dir, LockFileName))
	if err != nil {
		t.Fatalf("Failed to read lock file: %v", err)
	}
	if !strings.HasPrefix(string(content), fmt.Sprintf("pid=%d\n", os.Getpid())) {
		t.Errorf("Lock file should start with our PID, got %q", content)
	}
	if owner := parseRecord(string(content)); owner.Started == "" {
		t.Errorf("Lock file should record a start time, got %q", content)
	}
}

func TestLockConflict(t *testing.T) {
	dir := t.TempDir()

	lock1, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer lock1.Release()

	lock2, err := AcquireLock(dir)
	if err == nil {
		lock2.Release()
		t.Fatal("Second lock acquisition should have failed")
	}

	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("Expected LockError, got: %T", err)
	}
	if lockErr.Owner.PID != os.Getpid() || !lockErr.Owner.Running {
		t.Errorf("Expected owner to be this running process, got %+v", lockErr.Owner)
	}
	if !strings.Contains(err.Error(), "another MeetingAssistant instance") || !strings.Contains(err.Error(), dir) {
		t.Errorf("Error message should name the conflict and lock path: %s", err)
	}
}

func TestLockReleaseAndReacquire(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, LockFileName)

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("Failed to release lock: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Errorf("Lock file should be removed after release: %s", lockPath)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("Second release should be a no-op: %v", err)
	}

	again, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to reacquire lock after release: %v", err)
	}
	again.Release()
}

func TestAcquireLockCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Should create directory and acquire lock: %v", err)
	}
	defer lock.Release()

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("Directory should have been created: %s", dir)
	}
}

func TestParseRecord(t *testing.T) {
	tests := []struct {
		name    string
		content string
		pid     int
		started string
	}{
		{"full record", "pid=12345\nstarted=2026-01-02T03:04:05Z\n", 12345, "2026-01-02T03:04:05Z"},
		{"pid only", "pid=67890\n", 67890, ""},
		{"no pid", "other=info", 0, ""},
		{"empty", "", 0, ""},
		{"invalid pid", "pid=abc", 0, ""},
		{"no equals", "pid12345", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner := parseRecord(tt.content)
			if owner.PID != tt.pid || owner.Started != tt.started {
				t.Errorf("parseRecord(%q) = %+v, want pid %d started %q", tt.content, owner, tt.pid, tt.started)
			}
		})
	}
}

func TestOwnerString(t *testing.T) {
	if got := (Owner{}).String(); got != "unknown process" {
		t.Errorf("unexpected zero owner string %q", got)
	}
	if got := (Owner{PID: 42, Running: false}).String(); !strings.Contains(got, "stale") {
		t.Errorf("expected stale marker, got %q", got)
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !isProcessRunning(os.Getpid()) {
		t.Error("Our own process should be detected as running")
	}
}
