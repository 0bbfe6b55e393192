package runner

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ralphlabs/ralph/internal/domain"
	"github.com/ralphlabs/ralph/internal/executor"
	"github.com/ralphlabs/ralph/internal/graph"
	"github.com/ralphlabs/ralph/internal/notify"
)

// outcome pairs one batch member with its execution result
type outcome struct {
	task      *domain.Task
	story     *domain.Story
	started   time.Time
	completed time.Time
	result    *executor.Result
}

// RunParallel executes the loop level by level: each round takes the first
// eligible batch from the dependency graph, runs its members concurrently
// bounded by MaxWorkers, then applies all outcomes sequentially. State
// mutation stays single-threaded; only executor invocations run in parallel.
func (r *Runner) RunParallel(ctx context.Context) error {
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

		batch := r.nextBatch()
		if len(batch) == 0 {
			log.Printf("no eligible batch (blocked graph or nothing pending), stopping")
			break
		}

		paused, err := r.runBatch(ctx, batch)
		if err != nil {
			return err
		}
		if paused {
			break
		}
	}

	r.sendNotification(notify.RunFinished(r.machine.State()))
	return nil
}

// nextBatch returns the first dependency level, trimmed to the remaining
// iteration headroom so a batch never overruns MaxIterations.
func (r *Runner) nextBatch() []*domain.Task {
	batches := graph.ParallelBatches(r.store.All(), r.opts.MaxWorkers)
	if len(batches) == 0 || len(batches[0]) == 0 {
		return nil
	}

	batch := batches[0]
	state := r.machine.State()
	headroom := state.MaxIterations - state.CurrentIteration
	if headroom < len(batch) {
		batch = batch[:headroom]
	}
	return batch
}

// runBatch gates, executes and records one batch. It reports paused=true
// when a checkpoint rejection suspended the loop.
func (r *Runner) runBatch(ctx context.Context, batch []*domain.Task) (paused bool, err error) {
	outcomes := make([]*outcome, 0, len(batch))
	base := r.machine.State().CurrentIteration

	for i, task := range batch {
		story := r.storyFor(task)
		if r.gate != nil {
			decision := r.gate.Decide(ctx, story, base+i+1)
			if !decision.Proceed {
				log.Printf("checkpoint rejected %s (%s), pausing loop", task.Title, decision.Feedback)
				if err := r.machine.Pause(); err != nil {
					return false, err
				}
				return true, nil
			}
		}
		outcomes = append(outcomes, &outcome{task: task, story: story})
	}

	for _, o := range outcomes {
		if err := r.store.UpdateTaskStatus(o.task.ID, domain.StatusInProgress); err != nil {
			return false, err
		}
	}
	r.lock.UpdateProgress(base+1, outcomes[0].task.ID)

	g, gctx := errgroup.WithContext(ctx)
	// SetLimit(0) would block every Go call forever; 0 means uncapped here,
	// matching how ParallelBatches reads it.
	limit := r.opts.MaxWorkers
	if limit <= 0 {
		limit = -1
	}
	g.SetLimit(limit)
	for _, o := range outcomes {
		o := o
		g.Go(func() error {
			o.started = time.Now()
			result, err := r.exec.Execute(gctx, o.story)
			if err != nil {
				result = &executor.Result{
					Status: domain.IterationFailure,
					Errors: []string{err.Error()},
				}
			}
			o.completed = time.Now()
			o.result = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	// Apply outcomes in batch order so iteration numbers stay deterministic.
	for i, o := range outcomes {
		rec := buildRecord(base+i+1, o.task, o.started, o.completed, o.result)
		if err := r.applyOutcome(o.task, o.story, rec); err != nil {
			return false, err
		}
		if err := r.machine.RecordIteration(rec); err != nil {
			return false, err
		}
		if rec.Status == domain.IterationFailure {
			r.sendNotification(notify.IterationFailed(rec))
		}
	}
	return false, nil
}
