// Package lock enforces at most one live loop driver per project via a
// PID-stamped lock file. It is a cooperative advisory lock for one machine,
// not a kernel-level exclusive lock.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/ralphlabs/ralph/internal/domain"
)

const lockFileName = "ralph.lock"

// Manager owns the lock file of one project directory
type Manager struct {
	path   string
	prober Prober
}

// NewManager creates a lock manager for the given project directory
func NewManager(dir string) *Manager {
	return &Manager{
		path:   filepath.Join(dir, lockFileName),
		prober: SignalProber{},
	}
}

// NewManagerWithProber creates a lock manager with a custom liveness probe,
// used by tests to simulate dead or foreign processes.
func NewManagerWithProber(dir string, p Prober) *Manager {
	m := NewManager(dir)
	m.prober = p
	return m
}

// Acquire attempts to take the lock for the given tool. Contention is an
// expected outcome and is reported as acquired=false, not an error. A lock
// held by a dead process is stale: it is removed and acquisition retried
// once. An unreadable lock file counts as held; it may be mid-update.
func (m *Manager) Acquire(tool string) (bool, error) {
	if ok, err := m.create(tool); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}

	info, err := m.Info()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Holder released between our create attempt and the read.
			return m.create(tool)
		}
		// Unreadable lock file: assume a live holder rather than stealing
		// the lock from a process we cannot identify.
		log.Printf("warning: lock file unreadable, treating as held: %v", err)
		return false, nil
	}

	if m.prober.Alive(info.PID) {
		return false, nil
	}

	// Stale lock from a dead process.
	if err := m.Release(); err != nil {
		return false, err
	}
	return m.create(tool)
}

// create writes a fresh lock file with O_EXCL semantics. Returns false
// without error when the file already exists.
func (m *Manager) create(tool string) (bool, error) {
	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("creating lock file: %w", err)
	}

	info := domain.LockInfo{
		PID:       os.Getpid(),
		StartedAt: time.Now(),
		Tool:      tool,
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	writeErr := enc.Encode(info)
	closeErr := f.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(m.path)
		if writeErr != nil {
			return false, fmt.Errorf("writing lock file: %w", writeErr)
		}
		return false, fmt.Errorf("writing lock file: %w", closeErr)
	}
	return true, nil
}

// Release removes the lock file. Releasing an already-released lock is a
// no-op.
func (m *Manager) Release() error {
	err := os.Remove(m.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing lock file: %w", err)
	}
	return nil
}

// UpdateProgress overwrites the lock file's progress fields. This is
// telemetry: any failure (for instance the file being removed concurrently)
// is logged and swallowed.
func (m *Manager) UpdateProgress(iteration int, currentTask string) {
	info, err := m.Info()
	if err != nil {
		log.Printf("warning: lock progress update skipped: %v", err)
		return
	}
	info.Iteration = iteration
	info.CurrentTask = currentTask

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		log.Printf("warning: lock progress update skipped: %v", err)
		return
	}
	// Write-then-rename: a concurrent reader must never see a truncated
	// lock file, or it could mistake a live lock for a stale one.
	tmp := fmt.Sprintf("%s.tmp.%d", m.path, os.Getpid())
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Printf("warning: lock progress update skipped: %v", err)
		return
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		log.Printf("warning: lock progress update skipped: %v", err)
	}
}

// IsRunning reports whether the lock file exists and its process is alive
func (m *Manager) IsRunning() bool {
	info, err := m.Info()
	if err != nil {
		return false
	}
	return m.prober.Alive(info.PID)
}

// Info reads the current lock file
func (m *Manager) Info() (*domain.LockInfo, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	var info domain.LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parsing lock file: %w", err)
	}
	return &info, nil
}
