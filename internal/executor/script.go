package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/ralphlabs/ralph/internal/domain"
)

// Script runs an arbitrary shell command once per story, with the story
// exposed through environment variables instead of a prompt. Useful for
// wiring non-interactive tools or test doubles into the loop.
type Script struct {
	Command string
	Timeout time.Duration
	RepoDir string
	Gates   []Gate
}

func (s *Script) Execute(ctx context.Context, story *domain.Story) (*Result, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	result := &Result{Status: domain.IterationSuccess}

	cmd := exec.CommandContext(ctx, "sh", "-c", s.Command)
	cmd.Dir = s.RepoDir
	cmd.Env = append(os.Environ(),
		"RALPH_STORY_ID="+story.ID,
		"RALPH_STORY_TITLE="+story.Title,
		"RALPH_STORY_DESCRIPTION="+story.Description,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		result.Status = domain.IterationFailure
		result.Errors = append(result.Errors, fmt.Sprintf("script: %v", err))
	}

	gates := &CLI{RepoDir: s.RepoDir, Gates: s.Gates}
	result.QualityChecks = gates.runGates(ctx)
	for name, passed := range result.QualityChecks {
		if !passed {
			result.Status = domain.IterationFailure
			result.Errors = append(result.Errors, fmt.Sprintf("gate %s failed", name))
		}
	}

	if ref := gates.headCommit(ctx); ref != "" {
		result.CommitRef = ref
	}

	return result, nil
}
