package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ralphlabs/ralph/internal/config"
	"github.com/ralphlabs/ralph/internal/domain"
	"github.com/ralphlabs/ralph/internal/graph"
	"github.com/ralphlabs/ralph/internal/learning"
	"github.com/ralphlabs/ralph/internal/loop"
	"github.com/ralphlabs/ralph/internal/record"
	"github.com/ralphlabs/ralph/internal/runner"
	"github.com/ralphlabs/ralph/internal/taskstore"
)

var (
	addPriority    int
	addDescription string
	addDeps        []string
	listStatus     string
	batchWorkers   int
	historyLimit   int
	learnTask      string
	learnKind      string
	learnLimit     int
)

var (
	styleHeading = lipgloss.NewStyle().Bold(true)
	styleDone    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	styleActive  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleMuted   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func init() {
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a project with starter tasks",
		RunE:  runInit,
	}
	rootCmd.AddCommand(initCmd)

	addCmd := &cobra.Command{
		Use:   "add TITLE",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAdd,
	}
	addCmd.Flags().IntVar(&addPriority, "priority", 3, "priority, lower runs first")
	addCmd.Flags().StringVar(&addDescription, "desc", "", "task description")
	addCmd.Flags().StringSliceVar(&addDeps, "deps", nil, "dependency task ids")
	rootCmd.AddCommand(addCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE:  runList,
	}
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	rootCmd.AddCommand(listCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show loop and task status",
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	nextCmd := &cobra.Command{
		Use:   "next",
		Short: "Show the next eligible task",
		RunE:  runNext,
	}
	rootCmd.AddCommand(nextCmd)

	completeCmd := &cobra.Command{
		Use:   "complete TASK",
		Short: "Mark a task completed",
		Args:  cobra.ExactArgs(1),
		RunE:  runComplete,
	}
	rootCmd.AddCommand(completeCmd)

	pauseCmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause the loop at the next iteration boundary",
		RunE:  runPause,
	}
	rootCmd.AddCommand(pauseCmd)

	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused loop",
		RunE:  runResume,
	}
	rootCmd.AddCommand(resumeCmd)

	cyclesCmd := &cobra.Command{
		Use:   "cycles",
		Short: "Check the task graph for dependency cycles",
		RunE:  runCycles,
	}
	rootCmd.AddCommand(cyclesCmd)

	batchesCmd := &cobra.Command{
		Use:   "batches",
		Short: "Show the parallel execution plan",
		RunE:  runBatches,
	}
	batchesCmd.Flags().IntVar(&batchWorkers, "workers", 0, "batch size cap, defaults to max_workers")
	rootCmd.AddCommand(batchesCmd)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show past iterations, most recent first",
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "number of iterations to show")
	rootCmd.AddCommand(historyCmd)

	learningsCmd := &cobra.Command{
		Use:   "learnings",
		Short: "Query the learning index",
		RunE:  runLearnings,
	}
	learningsCmd.Flags().StringVar(&learnTask, "task", "", "filter by task id")
	learningsCmd.Flags().StringVar(&learnKind, "kind", "", "filter by kind (completion|failure|learning|error)")
	learningsCmd.Flags().IntVar(&learnLimit, "limit", 20, "number of entries to show")
	rootCmd.AddCommand(learningsCmd)

	importCmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import tasks from a YAML task list",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
	rootCmd.AddCommand(importCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func openStore(cfg *config.Config) (*taskstore.Store, error) {
	return taskstore.Open(cfg.General.ProjectDir)
}

func openMachine(cfg *config.Config, store *taskstore.Store) (*loop.Machine, error) {
	dir := cfg.General.ProjectDir
	return loop.Open(dir, &runner.Source{Store: store}, record.NewRecorder(dir, cfg.General.Tool))
}

func renderStatus(s domain.Status) string {
	switch s {
	case domain.StatusCompleted:
		return styleDone.Render(string(s))
	case domain.StatusFailed:
		return styleFailed.Render(string(s))
	case domain.StatusInProgress:
		return styleActive.Render(string(s))
	case domain.StatusSkipped:
		return styleMuted.Render(string(s))
	default:
		return string(s)
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	if err := store.Seed(); err != nil {
		return err
	}
	fmt.Printf("Initialized %s with %d tasks\n", cfg.General.ProjectDir, len(store.Tasks()))
	return nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	task := domain.NewTask(strings.Join(args, " "), addDescription, addPriority)
	task.Dependencies = addDeps
	if err := store.AddTask(task); err != nil {
		return err
	}

	fmt.Printf("Added %s: %s (priority %d)\n", task.ID, task.Title, task.Priority)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	tasks := store.All()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tPRIORITY\tDEPS\tUPDATED")
	for _, t := range tasks {
		if listStatus != "" && string(t.Status) != listStatus {
			continue
		}
		deps := "-"
		if len(t.Dependencies) > 0 {
			deps = fmt.Sprintf("%d", len(t.Dependencies))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			shortID(t.ID), t.Title, renderStatus(t.Status), t.Priority, deps,
			humanize.Time(t.UpdatedAt))
	}
	return w.Flush()
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	machine, err := openMachine(cfg, store)
	if err != nil {
		return err
	}

	state := machine.State()
	fmt.Println(styleHeading.Render("Loop"))
	if !machine.Initialized() {
		fmt.Println("  not initialized, run `ralph run` to start")
	} else {
		fmt.Printf("  iteration %d/%d, %d/%d stories done, started %s\n",
			state.CurrentIteration, state.MaxIterations,
			state.CompletedTasks, state.TotalTasks,
			humanize.Time(state.StartedAt))
		if state.Paused {
			fmt.Println("  " + styleActive.Render("paused"))
		}
	}

	lockMgr := runnerLock(cfg)
	if info, err := lockMgr.Info(); err == nil && info != nil {
		fmt.Println(styleHeading.Render("Driver"))
		fmt.Printf("  pid %d running %s, iteration %d, started %s\n",
			info.PID, info.Tool, info.Iteration, humanize.Time(info.StartedAt))
	}

	var pendingCount, failedCount int
	for _, t := range store.Tasks() {
		switch t.Status {
		case domain.StatusPending:
			pendingCount++
		case domain.StatusFailed:
			failedCount++
		}
	}
	fmt.Println(styleHeading.Render("Tasks"))
	fmt.Printf("  %d pending | %d failed | %d completed\n",
		pendingCount, failedCount, len(store.History()))
	if current := store.Current(); current != nil {
		fmt.Printf("  current: %s (%s)\n", current.Title, shortID(current.ID))
	}
	return nil
}

func runNext(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	task := graph.NextEligibleTask(store.All())
	if task == nil {
		fmt.Println("No eligible task: everything is done, blocked or in flight")
		return nil
	}
	fmt.Printf("%s: %s (priority %d)\n", shortID(task.ID), task.Title, task.Priority)
	if task.Description != "" {
		fmt.Println("  " + task.Description)
	}
	return nil
}

func runComplete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	id, err := resolveTaskID(store, args[0])
	if err != nil {
		return err
	}
	if err := store.UpdateTaskStatus(id, domain.StatusCompleted); err != nil {
		return err
	}
	fmt.Printf("Completed %s\n", shortID(id))
	return nil
}

func runPause(cmd *cobra.Command, args []string) error {
	return togglePause(true)
}

func runResume(cmd *cobra.Command, args []string) error {
	return togglePause(false)
}

func togglePause(pause bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	machine, err := openMachine(cfg, store)
	if err != nil {
		return err
	}

	if pause {
		if err := machine.Pause(); err != nil {
			return err
		}
		fmt.Println("Loop paused; a running driver stops at the next iteration boundary")
	} else {
		if err := machine.Resume(); err != nil {
			return err
		}
		fmt.Println("Loop resumed")
	}
	return nil
}

func runCycles(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	cycles := graph.DetectCycles(store.All())
	if len(cycles) == 0 {
		fmt.Println(styleDone.Render("No dependency cycles"))
		return nil
	}

	fmt.Println(styleFailed.Render(fmt.Sprintf("%d dependency cycle(s):", len(cycles))))
	for _, cycle := range cycles {
		names := make([]string, len(cycle))
		for i, id := range cycle {
			names[i] = shortID(id)
		}
		fmt.Printf("  %s\n", strings.Join(names, " -> "))
	}
	return fmt.Errorf("task graph is not schedulable")
}

func runBatches(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	workers := batchWorkers
	if workers <= 0 {
		workers = cfg.General.MaxWorkers
	}

	batches := graph.ParallelBatches(store.All(), workers)
	if len(batches) == 0 {
		fmt.Println("Nothing to schedule")
		return nil
	}

	for i, batch := range batches {
		fmt.Println(styleHeading.Render(fmt.Sprintf("Batch %d", i+1)))
		for _, t := range batch {
			fmt.Printf("  %s: %s (priority %d)\n", shortID(t.ID), t.Title, t.Priority)
		}
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	recorder := record.NewRecorder(cfg.General.ProjectDir, cfg.General.Tool)
	records, err := recorder.History()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No iterations recorded yet")
		return nil
	}
	if historyLimit > 0 && len(records) > historyLimit {
		records = records[:historyLimit]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ITER\tTASK\tSTATUS\tDURATION\tWHEN")
	for _, rec := range records {
		status := string(rec.Status)
		switch rec.Status {
		case domain.IterationSuccess:
			status = styleDone.Render(status)
		case domain.IterationFailure:
			status = styleFailed.Render(status)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			rec.Iteration, rec.TaskTitle, status,
			(time.Duration(rec.DurationMs) * time.Millisecond).String(),
			humanize.Time(rec.StartedAt))
	}
	return w.Flush()
}

func runLearnings(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := learning.Open(cfg.General.LearningDB)
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := db.List(learning.ListOptions{
		TaskID: learnTask,
		Kind:   learnKind,
		Limit:  learnLimit,
	})
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No learnings indexed yet")
		return nil
	}

	for _, e := range entries {
		kind := e.Kind
		switch e.Kind {
		case learning.KindFailure, learning.KindError:
			kind = styleFailed.Render(kind)
		case learning.KindCompletion:
			kind = styleDone.Render(kind)
		}
		fmt.Printf("[%s] iter %d %s: %s\n", kind, e.Iteration, e.TaskTitle, e.Detail)
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	tasks, err := taskstore.ParseTaskList(data)
	if err != nil {
		return err
	}
	if err := store.AddTasks(tasks); err != nil {
		return err
	}

	fmt.Printf("Imported %d tasks from %s\n", len(tasks), args[0])
	return nil
}

// resolveTaskID accepts a full id or an unambiguous prefix
func resolveTaskID(store *taskstore.Store, ref string) (string, error) {
	if _, err := store.Get(ref); err == nil {
		return ref, nil
	}

	var matches []string
	for _, t := range store.Tasks() {
		if strings.HasPrefix(t.ID, ref) {
			matches = append(matches, t.ID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("no task matches %q", ref)
	default:
		return "", fmt.Errorf("%q is ambiguous (%d matches)", ref, len(matches))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
