// Package loop tracks the autonomous iteration loop: iteration count,
// pause/resume state and completion counters, persisted to state.json so a
// restarted driver resumes where the previous one stopped.
package loop

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/ralphlabs/ralph/internal/domain"
	"github.com/ralphlabs/ralph/internal/record"
)

const stateFileName = "state.json"

// StorySource supplies the authoritative story set used to derive the
// completion counters. Counters are recomputed from it on every update;
// accumulated counts are never trusted.
type StorySource interface {
	Stories() ([]*domain.Story, error)
}

// Machine is the per-project loop state machine
type Machine struct {
	dir      string
	state    domain.LoopState
	stories  StorySource
	recorder *record.Recorder
}

// Open loads the loop state for a project. A missing state file means the
// loop is uninitialized; a malformed one is reset with a warning.
func Open(dir string, stories StorySource, recorder *record.Recorder) (*Machine, error) {
	m := &Machine{dir: dir, stories: stories, recorder: recorder}

	data, err := os.ReadFile(filepath.Join(dir, stateFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return m, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &m.state); err != nil {
		log.Printf("warning: %s is malformed, resetting loop state: %v", stateFileName, err)
		m.state = domain.LoopState{}
	}
	return m, nil
}

// State returns a copy of the current loop state
func (m *Machine) State() domain.LoopState {
	return m.state
}

// Initialized reports whether Initialize has ever run for this project
func (m *Machine) Initialized() bool {
	return !m.state.StartedAt.IsZero()
}

// Initialize resets all counters and starts a fresh loop. TotalTasks is
// derived from the story set when one is reachable.
func (m *Machine) Initialize(maxIterations int, tool string) error {
	now := time.Now()
	m.state = domain.LoopState{
		MaxIterations: maxIterations,
		StartedAt:     now,
		LastUpdated:   now,
		Tool:          tool,
	}
	m.deriveCounters(nil)
	return m.save()
}

// adoptExternalPause folds in a pause persisted by another process, so a
// `pause` issued while a driver runs takes effect at the next iteration
// boundary instead of being overwritten by the driver's own saves.
func (m *Machine) adoptExternalPause() {
	if m.dir == "" || m.state.Paused {
		return
	}
	data, err := os.ReadFile(filepath.Join(m.dir, stateFileName))
	if err != nil {
		return
	}
	var persisted domain.LoopState
	if err := json.Unmarshal(data, &persisted); err != nil {
		return
	}
	if persisted.Paused {
		m.state.Paused = true
		m.state.PausedAt = persisted.PausedAt
	}
}

// CanContinue is the sole gate a driver consults before starting another
// iteration: the loop proceeds only while it is not paused, under its
// iteration ceiling, and has stories left to complete.
func (m *Machine) CanContinue() bool {
	m.adoptExternalPause()
	if m.state.Paused {
		return false
	}
	if m.state.CurrentIteration >= m.state.MaxIterations {
		return false
	}
	return m.state.CompletedTasks < m.state.TotalTasks
}

// Pause suspends the loop at the next iteration boundary
func (m *Machine) Pause() error {
	if !m.Initialized() {
		return errors.New("loop is not initialized")
	}
	now := time.Now()
	m.state.Paused = true
	m.state.PausedAt = &now
	m.state.LastUpdated = now
	return m.save()
}

// Resume clears a pause
func (m *Machine) Resume() error {
	if !m.Initialized() {
		return errors.New("loop is not initialized")
	}
	m.state.Paused = false
	m.state.PausedAt = nil
	m.state.LastUpdated = time.Now()
	return m.save()
}

// RecordIteration applies one iteration result: the iteration counter moves
// to the caller-supplied number (monotonic, so retried or resumed drivers
// can replay), counters are re-derived from the story set, the audit record
// and progress trail are written, and the state is persisted. Audit-side
// failures are isolated and logged; they never fail the caller.
func (m *Machine) RecordIteration(rec *domain.IterationRecord) error {
	m.adoptExternalPause()
	if rec.Iteration > m.state.CurrentIteration {
		m.state.CurrentIteration = rec.Iteration
	}
	m.deriveCounters(rec)
	m.state.LastUpdated = time.Now()

	if m.recorder != nil {
		if err := m.recorder.Record(rec); err != nil {
			log.Printf("warning: iteration audit record failed: %v", err)
		}
	}

	return m.save()
}

// deriveCounters recomputes completed/total from the authoritative story
// set. When no story set is reachable it falls back to an optimistic
// increment on success. Best-effort only, and a known source of drift if
// the story set is intermittently unavailable.
func (m *Machine) deriveCounters(rec *domain.IterationRecord) {
	if m.stories != nil {
		stories, err := m.stories.Stories()
		if err == nil {
			m.state.CompletedTasks = domain.CountPasses(stories)
			m.state.TotalTasks = len(stories)
			return
		}
		log.Printf("warning: story set unreachable, keeping optimistic counters: %v", err)
	}
	if rec != nil && rec.Status == domain.IterationSuccess {
		m.state.CompletedTasks++
	}
}

// save persists state.json with write-then-rename so a crash cannot leave a
// half-written state file.
func (m *Machine) save() error {
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling loop state: %w", err)
	}

	path := filepath.Join(m.dir, stateFileName)
	tmp := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing loop state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing loop state: %w", err)
	}
	return nil
}
