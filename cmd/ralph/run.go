package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ralphlabs/ralph/internal/checkpoint"
	"github.com/ralphlabs/ralph/internal/config"
	"github.com/ralphlabs/ralph/internal/domain"
	"github.com/ralphlabs/ralph/internal/executor"
	"github.com/ralphlabs/ralph/internal/learning"
	"github.com/ralphlabs/ralph/internal/lock"
	"github.com/ralphlabs/ralph/internal/loop"
	"github.com/ralphlabs/ralph/internal/notify"
	"github.com/ralphlabs/ralph/internal/record"
	"github.com/ralphlabs/ralph/internal/runner"
	"github.com/ralphlabs/ralph/internal/schedule"
	"github.com/ralphlabs/ralph/internal/taskstore"
	"github.com/ralphlabs/ralph/internal/watch"
)

var (
	runParallel      bool
	runWatch         bool
	runFresh         bool
	runMaxIterations int
	runCron          string
)

func init() {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the autonomous loop",
		RunE:  runLoop,
	}
	runCmd.Flags().BoolVar(&runParallel, "parallel", false, "execute independent tasks concurrently")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "keep running, restarting when task documents change")
	runCmd.Flags().BoolVar(&runFresh, "fresh", false, "reset loop state before running")
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "iteration budget, defaults to max_iterations")
	runCmd.Flags().StringVar(&runCron, "cron", "", "wait for this cron window before starting")
	rootCmd.AddCommand(runCmd)
}

func runnerLock(cfg *config.Config) *lock.Manager {
	return lock.NewManager(cfg.General.ProjectDir)
}

func runLoop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronExpr := runCron
	if cronExpr == "" {
		cronExpr = cfg.Schedule.Cron
	}
	if cronExpr != "" {
		window, err := schedule.Parse(cronExpr)
		if err != nil {
			return err
		}
		fmt.Printf("Waiting for run window %q, next at %s\n",
			window, window.Next(time.Now()).Format(time.RFC3339))
		if err := window.Wait(ctx); err != nil {
			return err
		}
	}

	for {
		if err := runOnce(ctx, cfg); err != nil {
			if errors.Is(err, runner.ErrLocked) {
				fmt.Println("Another driver is already running, nothing to do")
				return nil
			}
			return err
		}
		if !runWatch || ctx.Err() != nil {
			return nil
		}
		if err := waitForStoreChange(ctx, cfg.General.ProjectDir); err != nil {
			return nil
		}
		fmt.Println("Task documents changed, running again")
		runFresh = false
	}
}

// runOnce builds a fully wired runner against a fresh store snapshot and
// drives the loop to its next stopping point.
func runOnce(ctx context.Context, cfg *config.Config) error {
	store, err := taskstore.Open(cfg.General.ProjectDir)
	if err != nil {
		return err
	}

	recorder := record.NewRecorder(cfg.General.ProjectDir, cfg.General.Tool)
	if cfg.General.LearningDB != "" {
		sink, err := learning.Open(cfg.General.LearningDB)
		if err != nil {
			log.Printf("warning: learning index unavailable: %v", err)
		} else {
			defer sink.Close()
			recorder.SetSink(sink)
		}
	}

	machine, err := loop.Open(cfg.General.ProjectDir, &runner.Source{Store: store}, recorder)
	if err != nil {
		return err
	}

	maxIterations := runMaxIterations
	if maxIterations <= 0 {
		maxIterations = cfg.General.MaxIterations
	}
	if runFresh || !machine.Initialized() {
		if err := machine.Initialize(maxIterations, cfg.General.Tool); err != nil {
			return err
		}
	}

	r := runner.New(store, machine, runnerLock(cfg),
		buildExecutor(cfg), buildGate(cfg), buildNotifier(cfg),
		runner.Options{
			Tool:        cfg.General.Tool,
			MaxAttempts: cfg.General.MaxAttempts,
			MaxWorkers:  cfg.General.MaxWorkers,
		})

	if runParallel {
		return r.RunParallel(ctx)
	}
	return r.Run(ctx)
}

func buildExecutor(cfg *config.Config) executor.Executor {
	gates := make([]executor.Gate, 0, len(cfg.Executor.Gates))
	for _, g := range cfg.Executor.Gates {
		gates = append(gates, executor.Gate{Name: g.Name, Command: g.Command})
	}
	if cfg.Executor.Mode == "script" {
		return &executor.Script{
			Command: cfg.Executor.Command,
			Timeout: time.Duration(cfg.Executor.TimeoutMinutes) * time.Minute,
			RepoDir: ".",
			Gates:   gates,
		}
	}
	return &executor.CLI{
		Command: cfg.Executor.Command,
		Args:    cfg.Executor.Args,
		Timeout: time.Duration(cfg.Executor.TimeoutMinutes) * time.Minute,
		LogDir:  filepath.Join(cfg.General.ProjectDir, "logs"),
		RepoDir: ".",
		Gates:   gates,
	}
}

func buildGate(cfg *config.Config) *checkpoint.Gate {
	if !cfg.Checkpoint.Enabled {
		return nil
	}
	policy := checkpoint.Policy{
		Enabled:         true,
		EveryN:          cfg.Checkpoint.EveryN,
		ApprovalTimeout: time.Duration(cfg.Checkpoint.ApprovalTimeoutSeconds) * time.Second,
	}
	return checkpoint.New(policy, storyPlan{}, terminalApprover{}, cfg.General.Tool)
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	var notifiers []notify.Notifier
	if cfg.Notifications.Desktop {
		notifiers = append(notifiers, notify.NewDesktopNotifier(true))
	}
	if cfg.Notifications.SlackWebhook != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.Notifications.SlackWebhook))
	}
	if len(notifiers) == 0 {
		return notify.NoopNotifier{}
	}
	return notify.NewMultiNotifier(notifiers...)
}

// waitForStoreChange blocks until tasks.json or prd.json changes on disk
func waitForStoreChange(ctx context.Context, dir string) error {
	changed := make(chan struct{}, 1)
	w, err := watch.New(dir, func([]string) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer w.Stop()
	w.Start(ctx)

	fmt.Println("Watching for task document changes (ctrl-c to stop)")
	select {
	case <-changed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// storyPlan derives a checkpoint plan from the story itself
type storyPlan struct{}

func (storyPlan) Plan(ctx context.Context, story *domain.Story, tool string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Next up: %s (priority %d, via %s)\n", story.Title, story.Priority, tool)
	if story.Description != "" {
		fmt.Fprintf(&b, "%s\n", story.Description)
	}
	for _, c := range story.AcceptanceCriteria {
		fmt.Fprintf(&b, "  - %s\n", c)
	}
	return b.String(), nil
}

// terminalApprover asks for confirmation on stdin. A single background
// reader owns stdin so a timed-out prompt does not leave a read behind that
// would swallow the answer to the next one.
type terminalApprover struct{}

var (
	stdinOnce  sync.Once
	stdinLines chan string
)

func stdinAnswers() <-chan string {
	stdinOnce.Do(func() {
		stdinLines = make(chan string, 1)
		go func() {
			reader := bufio.NewReader(os.Stdin)
			for {
				line, err := reader.ReadString('\n')
				if err != nil {
					close(stdinLines)
					return
				}
				stdinLines <- line
			}
		}()
	})
	return stdinLines
}

func (terminalApprover) Approve(ctx context.Context, story *domain.Story, plan string) (checkpoint.Decision, error) {
	answers := stdinAnswers()

	// Drop anything typed after a previous prompt timed out.
	select {
	case <-answers:
	default:
	}

	fmt.Println(styleHeading.Render("Checkpoint"))
	fmt.Print(plan)
	fmt.Print("Proceed? [Y/n] ")

	select {
	case line, ok := <-answers:
		if !ok {
			return checkpoint.Decision{}, io.EOF
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		if answer == "" || answer == "y" || answer == "yes" {
			return checkpoint.Decision{Proceed: true}, nil
		}
		return checkpoint.Decision{Proceed: false, Feedback: strings.TrimSpace(line)}, nil
	case <-ctx.Done():
		return checkpoint.Decision{}, ctx.Err()
	}
}
