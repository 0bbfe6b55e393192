package domain

// Status represents the lifecycle state of a task
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// Valid reports whether s is a known task status
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// IterationStatus represents the outcome of a single loop iteration
type IterationStatus string

const (
	IterationSuccess IterationStatus = "success"
	IterationFailure IterationStatus = "failure"
	IterationSkipped IterationStatus = "skipped"
)
