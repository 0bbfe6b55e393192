package taskstore

import (
	"fmt"

	"github.com/ralphlabs/ralph/internal/domain"
	"gopkg.in/yaml.v3"
)

// importDoc is the YAML shape accepted by `ralph import`. It carries task
// records only (id, title, priority, dependencies); extracting tasks from
// prose documents is an external collaborator's job.
type importDoc struct {
	Tasks []importTask `yaml:"tasks"`
}

type importTask struct {
	ID          string   `yaml:"id"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Priority    int      `yaml:"priority"`
	DependsOn   []string `yaml:"depends_on"`
}

// ParseTaskList decodes a YAML task list into tasks ready for AddTasks.
// Records without an id get one generated; records without a title are
// rejected. Dependency ids are kept as written; a reference to a task that
// never materializes is tolerated as a never-satisfied dependency.
func ParseTaskList(data []byte) ([]*domain.Task, error) {
	var doc importDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing task list: %w", err)
	}

	tasks := make([]*domain.Task, 0, len(doc.Tasks))
	for i, rec := range doc.Tasks {
		if rec.Title == "" {
			return nil, fmt.Errorf("task list entry %d: title is required", i)
		}
		task := domain.NewTask(rec.Title, rec.Description, rec.Priority)
		if rec.ID != "" {
			task.ID = rec.ID
		}
		task.Dependencies = append(task.Dependencies, rec.DependsOn...)
		if err := task.Validate(); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}
