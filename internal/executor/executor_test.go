package executor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ralphlabs/ralph/internal/domain"
)

func testStory() *domain.Story {
	return &domain.Story{
		Task:               domain.Task{ID: "s1", Title: "Add login", Description: "Users can sign in"},
		AcceptanceCriteria: []string{"valid credentials succeed", "invalid credentials fail"},
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt(testStory())

	if !strings.Contains(prompt, "Add login") {
		t.Error("prompt should contain the story title")
	}
	if !strings.Contains(prompt, "Users can sign in") {
		t.Error("prompt should contain the description")
	}
	if !strings.Contains(prompt, "- valid credentials succeed") {
		t.Error("prompt should list acceptance criteria")
	}
}

func TestBuildPrompt_NoCriteria(t *testing.T) {
	story := &domain.Story{Task: domain.Task{ID: "s1", Title: "Bare story"}}
	prompt := BuildPrompt(story)

	if !strings.Contains(prompt, "(none given)") {
		t.Error("prompt should note missing criteria")
	}
}

func TestCLI_SessionIDIsDeterministic(t *testing.T) {
	c := &CLI{Command: "claude"}
	story := testStory()

	first := c.SessionID(story)
	second := c.SessionID(story)
	if first != second {
		t.Errorf("session ids differ: %s vs %s", first, second)
	}

	other := &domain.Story{Task: domain.Task{ID: "s2"}}
	if c.SessionID(other) == first {
		t.Error("different stories should get different session ids")
	}
}

func TestCLI_ExecuteSuccess(t *testing.T) {
	dir := t.TempDir()
	c := &CLI{
		Command: "true",
		LogDir:  dir,
		Gates: []Gate{
			{Name: "always", Command: "true"},
		},
	}

	result, err := c.Execute(context.Background(), testStory())
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != domain.IterationSuccess {
		t.Errorf("Status = %q, want success", result.Status)
	}
	if !result.QualityChecks["always"] {
		t.Error("gate should pass")
	}
	if _, err := os.Stat(filepath.Join(dir, "story-s1.log")); err != nil {
		t.Errorf("log file missing: %v", err)
	}
}

func TestCLI_ExecuteToolFailure(t *testing.T) {
	c := &CLI{Command: "false"}

	result, err := c.Execute(context.Background(), testStory())
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != domain.IterationFailure {
		t.Errorf("Status = %q, want failure", result.Status)
	}
	if len(result.Errors) == 0 {
		t.Error("failure should carry an error message")
	}
}

func TestCLI_FailedGateFailsIteration(t *testing.T) {
	c := &CLI{
		Command: "true",
		Gates: []Gate{
			{Name: "tests", Command: "true"},
			{Name: "lint", Command: "false"},
		},
	}

	result, err := c.Execute(context.Background(), testStory())
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != domain.IterationFailure {
		t.Errorf("Status = %q, want failure when a gate fails", result.Status)
	}
	if !result.QualityChecks["tests"] || result.QualityChecks["lint"] {
		t.Errorf("QualityChecks = %v, want tests pass, lint fail", result.QualityChecks)
	}
}

func TestScript_ExposesStoryInEnvironment(t *testing.T) {
	s := &Script{Command: `[ "$RALPH_STORY_ID" = "s1" ]`}

	result, err := s.Execute(context.Background(), testStory())
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != domain.IterationSuccess {
		t.Errorf("Status = %q, want success when the env check passes", result.Status)
	}
}

func TestScript_FailureAndGates(t *testing.T) {
	s := &Script{
		Command: "false",
		Gates: []Gate{
			{Name: "tests", Command: "true"},
		},
	}

	result, err := s.Execute(context.Background(), testStory())
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != domain.IterationFailure {
		t.Errorf("Status = %q, want failure", result.Status)
	}
	if !result.QualityChecks["tests"] {
		t.Error("gates should still run after a script failure")
	}
}
