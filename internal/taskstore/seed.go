package taskstore

import "github.com/ralphlabs/ralph/internal/domain"

// Seed populates an empty store with a small starter task set so a fresh
// project has something to iterate on. It is a no-op once any task exists.
func (s *Store) Seed() error {
	if len(s.tasks) > 0 || len(s.history) > 0 {
		return nil
	}

	review := domain.NewTask("Review project requirements",
		"Read the PRD and confirm the user stories cover the intended scope.", 1)
	gates := domain.NewTask("Configure quality gates",
		"Decide which checks (tests, lint, build) every iteration must pass.", 2)
	first := domain.NewTask("Run the first iteration",
		"Start the autonomous loop against the highest-priority story.", 3)
	first.Dependencies = []string{review.ID, gates.ID}

	return s.AddTasks([]*domain.Task{review, gates, first})
}
