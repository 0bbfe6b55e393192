package graph

import (
	"sort"

	"github.com/ralphlabs/ralph/internal/domain"
)

// ParallelBatches levels the task graph Kahn-style: each batch contains only
// pending tasks whose dependencies are all already placed (or already
// completed), so the tasks within one batch have no dependency edges among
// them and may be executed concurrently by the caller. Only pending tasks
// are schedulable: skipped, failed and in-flight tasks are excluded from the
// output, and since they are not completed their dependents stay blocked.
//
// maxWorkers > 0 caps the size of each batch; overflow spills into the next
// batch rather than being dropped. Ties within a batch are broken by
// priority, then input order. Tasks that never become eligible (members of
// a cycle, or holders of dangling dependency ids) are excluded from the
// output rather than looping forever; validate cycles separately with
// DetectCycles before scheduling.
func ParallelBatches(tasks []*domain.Task, maxWorkers int) [][]*domain.Task {
	byID := indexByID(tasks)

	placed := make(map[string]bool, len(tasks))
	var remaining []*domain.Task
	for _, t := range tasks {
		switch t.Status {
		case domain.StatusCompleted:
			placed[t.ID] = true // already done, satisfies dependents
		case domain.StatusPending:
			remaining = append(remaining, t)
		}
	}

	var batches [][]*domain.Task
	for len(remaining) > 0 {
		var eligible []*domain.Task
		for _, t := range remaining {
			ready := true
			for _, depID := range t.Dependencies {
				if _, ok := byID[depID]; !ok {
					ready = false // dangling: permanently deferred
					break
				}
				if !placed[depID] {
					ready = false
					break
				}
			}
			if ready {
				eligible = append(eligible, t)
			}
		}

		if len(eligible) == 0 {
			break // cyclic or dangling remainder
		}

		sort.SliceStable(eligible, func(i, j int) bool {
			return eligible[i].Priority < eligible[j].Priority
		})

		if maxWorkers > 0 && len(eligible) > maxWorkers {
			eligible = eligible[:maxWorkers]
		}

		inBatch := make(map[string]bool, len(eligible))
		for _, t := range eligible {
			placed[t.ID] = true
			inBatch[t.ID] = true
		}

		next := remaining[:0]
		for _, t := range remaining {
			if !inBatch[t.ID] {
				next = append(next, t)
			}
		}
		remaining = next

		batches = append(batches, eligible)
	}

	return batches
}
