package lock

import (
	"os"
	"path/filepath"
	"testing"
)

// fakeProber reports a fixed set of pids as alive
type fakeProber struct {
	alive map[int]bool
}

func (f fakeProber) Alive(pid int) bool { return f.alive[pid] }

func TestManager_AcquireAndRelease(t *testing.T) {
	m := NewManager(t.TempDir())

	acquired, err := m.Acquire("claude")
	if err != nil {
		t.Fatal(err)
	}
	if !acquired {
		t.Fatal("first acquire should succeed")
	}

	info, err := m.Info()
	if err != nil {
		t.Fatal(err)
	}
	if info.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", info.PID, os.Getpid())
	}
	if info.Tool != "claude" {
		t.Errorf("Tool = %q, want claude", info.Tool)
	}

	if err := m.Release(); err != nil {
		t.Fatal(err)
	}

	// Acquire after a clean release always succeeds.
	acquired, err = m.Acquire("claude")
	if err != nil {
		t.Fatal(err)
	}
	if !acquired {
		t.Error("acquire after release should succeed")
	}
}

func TestManager_ReleaseIdempotent(t *testing.T) {
	m := NewManager(t.TempDir())

	if err := m.Release(); err != nil {
		t.Errorf("releasing a never-acquired lock should not error: %v", err)
	}
	if _, err := m.Acquire("claude"); err != nil {
		t.Fatal(err)
	}
	if err := m.Release(); err != nil {
		t.Fatal(err)
	}
	if err := m.Release(); err != nil {
		t.Errorf("double release should not error: %v", err)
	}
}

func TestManager_ContentionIsNotAnError(t *testing.T) {
	dir := t.TempDir()

	first := NewManager(dir)
	if _, err := first.Acquire("claude"); err != nil {
		t.Fatal(err)
	}

	// A second driver sees the holder as alive.
	second := NewManagerWithProber(dir, fakeProber{alive: map[int]bool{os.Getpid(): true}})
	acquired, err := second.Acquire("claude")
	if err != nil {
		t.Fatalf("contention must not be an error: %v", err)
	}
	if acquired {
		t.Error("second acquire should report not acquired")
	}
}

func TestManager_StaleLockReclaimed(t *testing.T) {
	dir := t.TempDir()

	m := NewManagerWithProber(dir, fakeProber{alive: map[int]bool{}})

	// A lock file from a process that no longer exists.
	stale := `{"pid": 999999, "startedAt": "2026-01-01T00:00:00Z", "tool": "claude"}`
	if err := os.WriteFile(filepath.Join(dir, "ralph.lock"), []byte(stale), 0644); err != nil {
		t.Fatal(err)
	}

	acquired, err := m.Acquire("claude")
	if err != nil {
		t.Fatal(err)
	}
	if !acquired {
		t.Fatal("stale lock should be reclaimed")
	}

	info, err := m.Info()
	if err != nil {
		t.Fatal(err)
	}
	if info.PID != os.Getpid() {
		t.Errorf("PID = %d, want current process after reclamation", info.PID)
	}
}

func TestManager_UnreadableLockTreatedAsHeld(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ralph.lock"), []byte("{garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	m := NewManager(dir)
	acquired, err := m.Acquire("claude")
	if err != nil {
		t.Fatal(err)
	}
	if acquired {
		t.Error("an unreadable lock must not be stolen, it may be mid-update")
	}
	if _, err := os.Stat(filepath.Join(dir, "ralph.lock")); err != nil {
		t.Errorf("lock file should be left in place: %v", err)
	}
}

func TestManager_UpdateProgressKeepsLockReadable(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	if _, err := m.Acquire("claude"); err != nil {
		t.Fatal(err)
	}

	m.UpdateProgress(7, "task-7")

	// The update must go through a temp file and rename, leaving no
	// intermediate files behind and the lock always parseable.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "ralph.lock" {
		t.Errorf("unexpected files in lock dir: %v", entries)
	}
	info, err := m.Info()
	if err != nil {
		t.Fatal(err)
	}
	if info.Iteration != 7 {
		t.Errorf("Iteration = %d, want 7", info.Iteration)
	}
}

func TestManager_UpdateProgress(t *testing.T) {
	m := NewManager(t.TempDir())
	if _, err := m.Acquire("claude"); err != nil {
		t.Fatal(err)
	}

	m.UpdateProgress(4, "task-42")

	info, err := m.Info()
	if err != nil {
		t.Fatal(err)
	}
	if info.Iteration != 4 {
		t.Errorf("Iteration = %d, want 4", info.Iteration)
	}
	if info.CurrentTask != "task-42" {
		t.Errorf("CurrentTask = %q, want task-42", info.CurrentTask)
	}
}

func TestManager_UpdateProgressWithoutLockIsSwallowed(t *testing.T) {
	m := NewManager(t.TempDir())
	// Must not panic or create the file.
	m.UpdateProgress(1, "task")
	if _, err := m.Info(); !os.IsNotExist(err) {
		t.Errorf("lock file should not exist, got err = %v", err)
	}
}

func TestManager_IsRunning(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	if m.IsRunning() {
		t.Error("IsRunning should be false before acquire")
	}

	if _, err := m.Acquire("claude"); err != nil {
		t.Fatal(err)
	}
	if !m.IsRunning() {
		t.Error("IsRunning should be true while held by a live process")
	}

	// Same file, dead holder.
	dead := NewManagerWithProber(dir, fakeProber{alive: map[int]bool{}})
	if dead.IsRunning() {
		t.Error("IsRunning should be false when the holder is dead")
	}
}
