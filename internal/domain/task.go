package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a referenced task or story id does not exist
var ErrNotFound = errors.New("task not found")

// Task represents a unit of work in the dependency graph.
// Lower Priority values run first.
type Task struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Priority     int        `json:"priority"`
	Status       Status     `json:"status"`
	Dependencies []string   `json:"dependencies,omitempty"`
	Attempts     int        `json:"attempts,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// NewTask creates a pending task with a generated id
func NewTask(title, description string, priority int) *Task {
	now := time.Now()
	return &Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Priority:    priority,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Validate checks the structural invariants of a task loaded from disk.
// A self-dependency is a 1-node cycle and is rejected here.
func (t *Task) Validate() error {
	if t.ID == "" {
		return errors.New("task id must not be empty")
	}
	if !t.Status.Valid() {
		return fmt.Errorf("task %s: unknown status %q", t.ID, t.Status)
	}
	for _, dep := range t.Dependencies {
		if dep == t.ID {
			return fmt.Errorf("task %s: depends on itself", t.ID)
		}
	}
	return nil
}

// DependsOn reports whether the task lists id as a dependency
func (t *Task) DependsOn(id string) bool {
	for _, dep := range t.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}
