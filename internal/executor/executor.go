// Package executor invokes the external tool that actually performs a
// story's work. The loop core never decides how work is executed; it hands
// a story to an Executor and consumes the result.
package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ralphlabs/ralph/internal/domain"
)

// executorNamespace is a fixed UUID namespace for deriving deterministic
// session IDs, so the same story resumes the same tool session.
var executorNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// Result is what an executor reports back for one iteration
type Result struct {
	Status        domain.IterationStatus
	QualityChecks map[string]bool
	CommitRef     string
	Summary       string
	Errors        []string
	Learnings     []string
}

// Executor runs one story and reports the outcome
type Executor interface {
	Execute(ctx context.Context, story *domain.Story) (*Result, error)
}

// Gate is one quality check run after the tool finishes
type Gate struct {
	Name    string
	Command string
}

// CLI invokes an AI coding CLI (claude, opencode, ...) once per story
type CLI struct {
	Command string
	Args    []string
	Timeout time.Duration
	LogDir  string
	RepoDir string // where gates run and commits are read; empty = cwd
	Gates   []Gate
}

// SessionID returns the deterministic session id for a story
func (c *CLI) SessionID(story *domain.Story) string {
	return uuid.NewSHA1(executorNamespace, []byte(story.ID)).String()
}

// Execute runs the tool with a prompt built from the story, streams its
// output to a per-story log file, then runs the quality gates. The
// iteration fails if the tool exits non-zero or any gate fails.
func (c *CLI) Execute(ctx context.Context, story *domain.Story) (*Result, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	result := &Result{Status: domain.IterationSuccess}

	args := append(append([]string{}, c.Args...), BuildPrompt(story))
	cmd := exec.CommandContext(ctx, c.Command, args...)
	cmd.Dir = c.RepoDir
	cmd.Env = append(os.Environ(), "RALPH_SESSION_ID="+c.SessionID(story))

	logFile, err := c.openLog(story)
	if err != nil {
		return nil, err
	}
	if logFile != nil {
		defer logFile.Close()
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	if err := cmd.Run(); err != nil {
		result.Status = domain.IterationFailure
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", c.Command, err))
	}

	result.QualityChecks = c.runGates(ctx)
	for name, passed := range result.QualityChecks {
		if !passed {
			result.Status = domain.IterationFailure
			result.Errors = append(result.Errors, fmt.Sprintf("gate %s failed", name))
		}
	}

	if ref := c.headCommit(ctx); ref != "" {
		result.CommitRef = ref
	}

	return result, nil
}

// runGates executes each configured gate command through the shell and maps
// its name to pass/fail.
func (c *CLI) runGates(ctx context.Context) map[string]bool {
	if len(c.Gates) == 0 {
		return nil
	}
	checks := make(map[string]bool, len(c.Gates))
	for _, gate := range c.Gates {
		cmd := exec.CommandContext(ctx, "sh", "-c", gate.Command)
		cmd.Dir = c.RepoDir
		checks[gate.Name] = cmd.Run() == nil
	}
	return checks
}

// headCommit reads the current HEAD, best-effort
func (c *CLI) headCommit(ctx context.Context) string {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--short", "HEAD")
	cmd.Dir = c.RepoDir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func (c *CLI) openLog(story *domain.Story) (*os.File, error) {
	if c.LogDir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(c.LogDir, 0755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}
	path := filepath.Join(c.LogDir, fmt.Sprintf("story-%s.log", story.ID))
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}
