package domain

import "testing"

func TestNewTask(t *testing.T) {
	task := NewTask("Setup", "initial scaffolding", 1)

	if task.ID == "" {
		t.Error("ID should be generated")
	}
	if task.Status != StatusPending {
		t.Errorf("Status = %q, want %q", task.Status, StatusPending)
	}
	if task.CreatedAt.IsZero() || task.UpdatedAt.IsZero() {
		t.Error("timestamps should be stamped")
	}
}

func TestTask_Validate(t *testing.T) {
	tests := []struct {
		name    string
		task    Task
		wantErr bool
	}{
		{
			name: "valid task",
			task: Task{ID: "a", Status: StatusPending, Dependencies: []string{"b"}},
		},
		{
			name:    "empty id",
			task:    Task{Status: StatusPending},
			wantErr: true,
		},
		{
			name:    "self dependency",
			task:    Task{ID: "a", Status: StatusPending, Dependencies: []string{"a"}},
			wantErr: true,
		},
		{
			name:    "unknown status",
			task:    Task{ID: "a", Status: "done"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCountPasses(t *testing.T) {
	stories := []*Story{
		{Task: Task{ID: "s1"}, Passes: true},
		{Task: Task{ID: "s2"}},
		{Task: Task{ID: "s3"}, Passes: true},
	}

	if got := CountPasses(stories); got != 2 {
		t.Errorf("CountPasses = %d, want 2", got)
	}
}

func TestStoryForTask(t *testing.T) {
	stories := []*Story{
		{Task: Task{ID: "s1"}, SourceTaskID: "t1"},
		{Task: Task{ID: "s2"}},
	}

	if got := StoryForTask(stories, "t1"); got == nil || got.ID != "s1" {
		t.Errorf("StoryForTask(t1) = %v, want s1", got)
	}
	if got := StoryForTask(stories, "s2"); got == nil || got.ID != "s2" {
		t.Errorf("StoryForTask(s2) = %v, want s2", got)
	}
	if got := StoryForTask(stories, "missing"); got != nil {
		t.Errorf("StoryForTask(missing) = %v, want nil", got)
	}
}
