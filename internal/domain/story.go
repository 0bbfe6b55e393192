package domain

// Story is the execution unit consumed by the autonomous loop. It has the
// same shape as a Task plus acceptance criteria and a pass flag. Passes is
// the sole authoritative completion signal: counters are always re-derived
// from the story list, never accumulated independently.
type Story struct {
	Task
	Passes             bool     `json:"passes"`
	AcceptanceCriteria []string `json:"acceptanceCriteria,omitempty"`
	SourceTaskID       string   `json:"sourceTaskId,omitempty"`
}

// CountPasses returns how many stories have passed
func CountPasses(stories []*Story) int {
	n := 0
	for _, s := range stories {
		if s.Passes {
			n++
		}
	}
	return n
}

// StoryForTask returns the story linked to the given task id, if any
func StoryForTask(stories []*Story, taskID string) *Story {
	for _, s := range stories {
		if s.SourceTaskID == taskID || s.ID == taskID {
			return s
		}
	}
	return nil
}
