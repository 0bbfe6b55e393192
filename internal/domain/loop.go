package domain

import "time"

// LoopState is the singleton per-project state of the autonomous loop.
// CompletedTasks and TotalTasks are derived values; they are recomputed from
// the story set on every update rather than trusted as accumulated state.
type LoopState struct {
	CurrentIteration int        `json:"currentIteration"`
	MaxIterations    int        `json:"maxIterations"`
	CompletedTasks   int        `json:"completedTasks"`
	TotalTasks       int        `json:"totalTasks"`
	Paused           bool       `json:"paused"`
	PausedAt         *time.Time `json:"pausedAt,omitempty"`
	StartedAt        time.Time  `json:"startedAt"`
	LastUpdated      time.Time  `json:"lastUpdated"`
	Tool             string     `json:"tool,omitempty"`
}

// LockInfo is the content of the advisory lock file. A lock whose PID is no
// longer a live process is stale and may be reclaimed.
type LockInfo struct {
	PID         int       `json:"pid"`
	StartedAt   time.Time `json:"startedAt"`
	Tool        string    `json:"tool"`
	CurrentTask string    `json:"currentTask,omitempty"`
	Iteration   int       `json:"iteration,omitempty"`
}

// IterationRecord is the immutable audit record of one loop iteration
type IterationRecord struct {
	Iteration     int             `json:"iteration"`
	StartedAt     time.Time       `json:"startedAt"`
	CompletedAt   time.Time       `json:"completedAt"`
	TaskID        string          `json:"taskId"`
	TaskTitle     string          `json:"taskTitle"`
	DurationMs    int64           `json:"durationMs"`
	Status        IterationStatus `json:"status"`
	QualityChecks map[string]bool `json:"qualityChecks,omitempty"`
	CommitRef     string          `json:"commitRef,omitempty"`
	Summary       string          `json:"summary,omitempty"`
	Errors        []string        `json:"errors,omitempty"`
	Learnings     []string        `json:"learnings,omitempty"`
}
