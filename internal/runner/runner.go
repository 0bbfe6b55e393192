// Package runner drives the autonomous loop: it acquires the project lock,
// consults the loop state machine, picks the next eligible task from the
// dependency graph, hands it to the executor and records the outcome. One
// Runner owns all state mutation for the duration of a locked session.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ralphlabs/ralph/internal/checkpoint"
	"github.com/ralphlabs/ralph/internal/domain"
	"github.com/ralphlabs/ralph/internal/executor"
	"github.com/ralphlabs/ralph/internal/graph"
	"github.com/ralphlabs/ralph/internal/lock"
	"github.com/ralphlabs/ralph/internal/loop"
	"github.com/ralphlabs/ralph/internal/notify"
	"github.com/ralphlabs/ralph/internal/taskstore"
)

// ErrLocked is returned when another loop driver already holds the project
// lock. Contention is expected; callers present it as a warning.
var ErrLocked = errors.New("another loop driver is already running")

// ErrCycles is returned when the task graph contains dependency cycles
var ErrCycles = errors.New("task graph contains dependency cycles")

// Options tunes one run
type Options struct {
	Tool        string
	MaxAttempts int // retries per task before it stays failed
	MaxWorkers  int // batch cap for parallel runs
}

// Runner executes loop iterations against one project
type Runner struct {
	store    *taskstore.Store
	machine  *loop.Machine
	lock     *lock.Manager
	exec     executor.Executor
	gate     *checkpoint.Gate
	notifier notify.Notifier
	opts     Options
}

// New assembles a runner. gate and notifier may be nil.
func New(store *taskstore.Store, machine *loop.Machine, lockMgr *lock.Manager,
	exec executor.Executor, gate *checkpoint.Gate, notifier notify.Notifier, opts Options) *Runner {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &Runner{
		store:    store,
		machine:  machine,
		lock:     lockMgr,
		exec:     exec,
		gate:     gate,
		notifier: notifier,
		opts:     opts,
	}
}

// Source derives the authoritative story set for counter derivation. It
// prefers prd.json and falls back to synthesizing stories from the task
// graph when no PRD exists, so task-only projects still get real counters.
type Source struct {
	Store *taskstore.Store
}

// Stories implements loop.StorySource
func (s *Source) Stories() ([]*domain.Story, error) {
	stories, err := s.Store.Stories()
	if err == nil {
		return stories, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	var out []*domain.Story
	for _, t := range s.Store.All() {
		out = append(out, &domain.Story{
			Task:         *t,
			Passes:       t.Status == domain.StatusCompleted,
			SourceTaskID: t.ID,
		})
	}
	return out, nil
}

// Run executes iterations sequentially until the loop state machine says
// stop, the graph blocks, or the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if cycles := graph.DetectCycles(r.store.All()); len(cycles) > 0 {
		return fmt.Errorf("%w: %v", ErrCycles, cycles)
	}

	acquired, err := r.lock.Acquire(r.opts.Tool)
	if err != nil {
		return err
	}
	if !acquired {
		return ErrLocked
	}
	defer func() {
		if err := r.lock.Release(); err != nil {
			log.Printf("warning: releasing lock: %v", err)
		}
	}()

	for r.machine.CanContinue() {
		if ctx.Err() != nil {
			break
		}

		n := r.machine.State().CurrentIteration + 1
		task := graph.NextEligibleTask(r.store.All())
		if task == nil {
			log.Printf("no eligible task (blocked graph or nothing pending), stopping")
			break
		}

		story := r.storyFor(task)
		if r.gate != nil {
			decision := r.gate.Decide(ctx, story, n)
			if !decision.Proceed {
				log.Printf("checkpoint rejected %s (%s), pausing loop", task.Title, decision.Feedback)
				if err := r.machine.Pause(); err != nil {
					return err
				}
				break
			}
		}

		if err := r.runOne(ctx, n, task, story); err != nil {
			return err
		}
	}

	r.sendNotification(notify.RunFinished(r.machine.State()))
	return nil
}

// runOne executes a single iteration for the given task
func (r *Runner) runOne(ctx context.Context, n int, task *domain.Task, story *domain.Story) error {
	if err := r.store.UpdateTaskStatus(task.ID, domain.StatusInProgress); err != nil {
		return err
	}
	r.lock.UpdateProgress(n, task.ID)

	started := time.Now()
	result, err := r.exec.Execute(ctx, story)
	if err != nil {
		result = &executor.Result{
			Status: domain.IterationFailure,
			Errors: []string{err.Error()},
		}
	}
	completed := time.Now()

	rec := buildRecord(n, task, started, completed, result)
	if err := r.applyOutcome(task, story, rec); err != nil {
		return err
	}

	if err := r.machine.RecordIteration(rec); err != nil {
		return err
	}

	if rec.Status == domain.IterationFailure {
		r.sendNotification(notify.IterationFailed(rec))
	}
	return nil
}

// applyOutcome closes the cycle back into the task store
func (r *Runner) applyOutcome(task *domain.Task, story *domain.Story, rec *domain.IterationRecord) error {
	switch rec.Status {
	case domain.IterationSuccess:
		if err := r.store.UpdateTaskStatus(task.ID, domain.StatusCompleted); err != nil {
			return err
		}
		// Persist the pass mark when the story lives in prd.json. A project
		// without a PRD has nothing to mark.
		if err := r.store.SetStoryPassed(story.ID); err != nil {
			if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, domain.ErrNotFound) {
				log.Printf("warning: marking story %s passed: %v", story.ID, err)
			}
		}
	case domain.IterationFailure:
		if err := r.store.UpdateTaskStatus(task.ID, domain.StatusFailed); err != nil {
			return err
		}
		if task.Attempts < r.opts.MaxAttempts-1 {
			if err := r.store.RequeueFailed(task.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// storyFor finds the prd.json story backing a task, or synthesizes one
func (r *Runner) storyFor(task *domain.Task) *domain.Story {
	if stories, err := r.store.Stories(); err == nil {
		if story := domain.StoryForTask(stories, task.ID); story != nil {
			return story
		}
	}
	return &domain.Story{Task: *task, SourceTaskID: task.ID}
}

func (r *Runner) sendNotification(n notify.Notification) {
	if err := r.notifier.Send(n); err != nil {
		log.Printf("warning: notification failed: %v", err)
	}
}

func buildRecord(n int, task *domain.Task, started, completed time.Time, result *executor.Result) *domain.IterationRecord {
	return &domain.IterationRecord{
		Iteration:     n,
		StartedAt:     started,
		CompletedAt:   completed,
		TaskID:        task.ID,
		TaskTitle:     task.Title,
		DurationMs:    completed.Sub(started).Milliseconds(),
		Status:        result.Status,
		QualityChecks: result.QualityChecks,
		CommitRef:     result.CommitRef,
		Summary:       result.Summary,
		Errors:        result.Errors,
		Learnings:     result.Learnings,
	}
}
