// Package graph implements pure scheduling computations over the task
// dependency graph: priority ordering, dependency satisfaction, cycle
// detection and parallel batch leveling. It never mutates tasks and never
// touches disk.
package graph

import (
	"sort"

	"github.com/ralphlabs/ralph/internal/domain"
)

// PendingByPriority returns the pending tasks sorted ascending by priority.
// The sort is stable: ties keep their input order.
func PendingByPriority(tasks []*domain.Task) []*domain.Task {
	var pending []*domain.Task
	for _, t := range tasks {
		if t.Status == domain.StatusPending {
			pending = append(pending, t)
		}
	}

	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Priority < pending[j].Priority
	})

	return pending
}

// DependenciesOf returns the tasks that id's Dependencies reference.
// Dangling ids are simply absent from the result.
func DependenciesOf(tasks []*domain.Task, id string) []*domain.Task {
	byID := indexByID(tasks)
	task, ok := byID[id]
	if !ok {
		return nil
	}

	var deps []*domain.Task
	for _, depID := range task.Dependencies {
		if dep, ok := byID[depID]; ok {
			deps = append(deps, dep)
		}
	}
	return deps
}

// IsSatisfied reports whether every dependency of id is completed. A task
// with no dependencies is trivially satisfied. A dependency id that matches
// no task in the set is never satisfied.
func IsSatisfied(tasks []*domain.Task, id string) bool {
	byID := indexByID(tasks)
	task, ok := byID[id]
	if !ok {
		return false
	}

	for _, depID := range task.Dependencies {
		dep, ok := byID[depID]
		if !ok || dep.Status != domain.StatusCompleted {
			return false
		}
	}
	return true
}

// NextEligibleTask walks the pending tasks in priority order and returns the
// first whose dependencies are all completed. It returns nil when no pending
// task is eligible; pending tasks may still exist in that case (the graph is
// blocked), which is a legitimate state and not an error.
func NextEligibleTask(tasks []*domain.Task) *domain.Task {
	for _, t := range PendingByPriority(tasks) {
		if IsSatisfied(tasks, t.ID) {
			return t
		}
	}
	return nil
}

func indexByID(tasks []*domain.Task) map[string]*domain.Task {
	byID := make(map[string]*domain.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	return byID
}
