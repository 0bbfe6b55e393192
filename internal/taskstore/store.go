// Package taskstore persists the task graph as three JSON documents under a
// project directory: tasks.json (active tasks), current.json (current-task
// pointer) and history.json (completed tasks, append-only). It also reads
// the story set from prd.json, which is produced by an external PRD
// extractor.
package taskstore

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

const (
	tasksFileName   = "tasks.json"
	currentFileName = "current.json"
	historyFileName = "history.json"
	prdFileName     = "prd.json"
)

// Store owns an in-memory snapshot of the task graph and persists every
// mutation. Concurrent external edits to the files are not detected; last
// writer wins. Cross-process exclusion belongs to the lock manager.
type Store struct {
	dir       string
	tasks     []*domain.Task
	history   []*domain.Task
	currentID string
}

type currentDoc struct {
	TaskID string `json:"taskId"`
}

type prdDoc struct {
	UserStories []*domain.Story `json:"userStories"`
}

// Open loads the task graph from dir, creating the directory on first use.
// A document that fails to parse is reset to a safe default with a warning;
// a malformed store is never a fatal condition.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating project dir: %w", err)
	}

	s := &Store{dir: dir}

	var tasks []*domain.Task
	if err := readDoc(filepath.Join(dir, tasksFileName), &tasks); err != nil {
		log.Printf("warning: %s is malformed, resetting to empty: %v", tasksFileName, err)
		tasks = nil
	}
	s.tasks = validTasks(tasks, tasksFileName)

	var history []*domain.Task
	if err := readDoc(filepath.Join(dir, historyFileName), &history); err != nil {
		log.Printf("warning: %s is malformed, resetting to empty: %v", historyFileName, err)
		history = nil
	}
	s.history = history

	var current currentDoc
	if err := readDoc(filepath.Join(dir, currentFileName), &current); err != nil {
		log.Printf("warning: %s is malformed, clearing current task: %v", currentFileName, err)
		current = currentDoc{}
	}
	s.currentID = current.TaskID

	return s, nil
}

// validTasks quarantines tasks that fail boundary validation instead of
// letting malformed records propagate inward.
func validTasks(tasks []*domain.Task, source string) []*domain.Task {
	valid := tasks[:0]
	for _, t := range tasks {
		if err := t.Validate(); err != nil {
			log.Printf("warning: dropping invalid task from %s: %v", source, err)
			continue
		}
		valid = append(valid, t)
	}
	return valid
}

// Dir returns the project directory the store persists into
func (s *Store) Dir() string {
	return s.dir
}

// Tasks returns the active (not yet completed) tasks
func (s *Store) Tasks() []*domain.Task {
	return s.tasks
}

// History returns the completed tasks, oldest first
func (s *Store) History() []*domain.Task {
	return s.history
}

// All returns active and completed tasks as one snapshot. Graph computations
// need the combined set so completed dependencies resolve.
func (s *Store) All() []*domain.Task {
	all := make([]*domain.Task, 0, len(s.tasks)+len(s.history))
	all = append(all, s.tasks...)
	all = append(all, s.history...)
	return all
}

// Get returns the active task with the given id
func (s *Store) Get(id string) (*domain.Task, error) {
	for _, t := range s.tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
}

// Current returns the current task, or nil if none is set
func (s *Store) Current() *domain.Task {
	if s.currentID == "" {
		return nil
	}
	t, err := s.Get(s.currentID)
	if err != nil {
		return nil
	}
	return t
}

// AddTask validates and appends a task to the active list
func (s *Store) AddTask(t *domain.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.tasks = append(s.tasks, t)
	return s.Save()
}

// AddTasks appends several tasks at once, persisting a single time
func (s *Store) AddTasks(tasks []*domain.Task) error {
	for _, t := range tasks {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	s.tasks = append(s.tasks, tasks...)
	return s.Save()
}

// SetCurrentTask points the current-task pointer at an active task
func (s *Store) SetCurrentTask(id string) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	s.currentID = id
	return s.Save()
}

// UpdateTaskStatus applies a status transition and its side effects: a task
// transitioning to completed moves out of the active list into history and
// clears the current pointer if it referenced this task; a task
// transitioning to in-progress becomes the current task.
func (s *Store) UpdateTaskStatus(id string, status domain.Status) error {
	task, err := s.Get(id)
	if err != nil {
		return err
	}

	task.Status = status
	task.UpdatedAt = time.Now()

	switch status {
	case domain.StatusCompleted:
		now := time.Now()
		task.CompletedAt = &now
		s.removeActive(id)
		s.history = append(s.history, task)
		if s.currentID == id {
			s.currentID = ""
		}
	case domain.StatusInProgress:
		s.currentID = id
	}

	return s.Save()
}

// RequeueFailed resets a failed task to pending for another attempt,
// incrementing its attempt counter.
func (s *Store) RequeueFailed(id string) error {
	task, err := s.Get(id)
	if err != nil {
		return err
	}
	if task.Status != domain.StatusFailed {
		return fmt.Errorf("task %s is %s, not failed", id, task.Status)
	}
	task.Status = domain.StatusPending
	task.Attempts++
	task.UpdatedAt = time.Now()
	return s.Save()
}

func (s *Store) removeActive(id string) {
	for i, t := range s.tasks {
		if t.ID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return
		}
	}
}

// Stories reads the story set from prd.json. The document is re-read on
// every call so counters can always be derived from the freshest snapshot.
func (s *Store) Stories() ([]*domain.Story, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, prdFileName))
	if err != nil {
		return nil, err
	}
	var doc prdDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", prdFileName, err)
	}
	return doc.UserStories, nil
}

// SetStoryPassed marks a story as passing and writes prd.json back,
// preserving the document shape. Passing is atomic and never un-set here.
func (s *Store) SetStoryPassed(storyID string) error {
	stories, err := s.Stories()
	if err != nil {
		return err
	}
	found := false
	for _, story := range stories {
		if story.ID == storyID {
			story.Passes = true
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("story %s: %w", storyID, domain.ErrNotFound)
	}
	return writeJSON(filepath.Join(s.dir, prdFileName), prdDoc{UserStories: stories})
}

// Save persists the full snapshot. Each document is written to a temp file
// and renamed into place so a crash mid-write leaves the previous valid
// document intact.
func (s *Store) Save() error {
	if err := writeJSON(filepath.Join(s.dir, tasksFileName), s.tasks); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(s.dir, historyFileName), s.history); err != nil {
		return err
	}
	return writeJSON(filepath.Join(s.dir, currentFileName), currentDoc{TaskID: s.currentID})
}

func readDoc(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}

	tmp := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}
