package graph

import "github.com/ralphlabs/ralph/internal/domain"

// DFS colors. Gray means "on the current traversal stack"; reaching a gray
// node again closes a cycle.
const (
	white = iota
	gray
	black
)

// DetectCycles finds every dependency cycle in the task set using an
// iterative depth-first traversal with an explicit stack, so arbitrarily
// deep graphs cannot overflow the call stack. Each cycle is reported as the
// slice of task ids from the re-visited node to the current node, inclusive.
// A self-dependency is reported as a cycle of length one. Dangling
// dependency ids are dead ends, not cycles. An acyclic graph yields nil.
func DetectCycles(tasks []*domain.Task) [][]string {
	byID := indexByID(tasks)
	color := make(map[string]int, len(tasks))

	var cycles [][]string

	type frame struct {
		id   string
		next int // index of the next dependency to visit
	}

	for _, root := range tasks {
		if color[root.ID] != white {
			continue
		}

		stack := []frame{{id: root.ID}}
		path := []string{root.ID}
		pathIndex := map[string]int{root.ID: 0}
		color[root.ID] = gray

		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			deps := byID[f.id].Dependencies

			if f.next < len(deps) {
				depID := deps[f.next]
				f.next++

				if _, ok := byID[depID]; !ok {
					continue // dangling reference
				}

				switch color[depID] {
				case white:
					color[depID] = gray
					pathIndex[depID] = len(path)
					path = append(path, depID)
					stack = append(stack, frame{id: depID})
				case gray:
					start := pathIndex[depID]
					cycle := make([]string, len(path)-start)
					copy(cycle, path[start:])
					cycles = append(cycles, cycle)
				}
				continue
			}

			color[f.id] = black
			delete(pathIndex, f.id)
			path = path[:len(path)-1]
			stack = stack[:len(stack)-1]
		}
	}

	return cycles
}
