package record

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ralphlabs/ralph/internal/domain"
)

func sampleRecord(iteration int) *domain.IterationRecord {
	started := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	return &domain.IterationRecord{
		Iteration:   iteration,
		StartedAt:   started,
		CompletedAt: started.Add(90 * time.Second),
		TaskID:      "task-1",
		TaskTitle:   "Implement validators",
		DurationMs:  90000,
		Status:      domain.IterationSuccess,
		QualityChecks: map[string]bool{
			"tests": true,
			"lint":  false,
		},
		CommitRef: "abc1234",
		Learnings: []string{"validator order matters"},
	}
}

func TestRecorder_RecordAndHistory(t *testing.T) {
	r := NewRecorder(t.TempDir(), "claude")

	if err := r.Record(sampleRecord(1)); err != nil {
		t.Fatal(err)
	}
	if err := r.Record(sampleRecord(2)); err != nil {
		t.Fatal(err)
	}

	history, err := r.History()
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history count = %d, want 2", len(history))
	}
	// Most recent first.
	if history[0].Iteration != 2 || history[1].Iteration != 1 {
		t.Errorf("order = [%d %d], want [2 1]", history[0].Iteration, history[1].Iteration)
	}

	// Fields round-trip exactly.
	got := history[1]
	want := sampleRecord(1)
	if got.TaskID != want.TaskID || got.TaskTitle != want.TaskTitle {
		t.Errorf("task fields = %q/%q, want %q/%q", got.TaskID, got.TaskTitle, want.TaskID, want.TaskTitle)
	}
	if got.DurationMs != want.DurationMs {
		t.Errorf("DurationMs = %d, want %d", got.DurationMs, want.DurationMs)
	}
	if !got.StartedAt.Equal(want.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, want.StartedAt)
	}
	if got.QualityChecks["tests"] != true || got.QualityChecks["lint"] != false {
		t.Errorf("QualityChecks = %v, want tests pass, lint fail", got.QualityChecks)
	}
	if len(got.Learnings) != 1 || got.Learnings[0] != want.Learnings[0] {
		t.Errorf("Learnings = %v, want %v", got.Learnings, want.Learnings)
	}
}

func TestRecorder_RecordsAreImmutable(t *testing.T) {
	r := NewRecorder(t.TempDir(), "claude")

	if err := r.Record(sampleRecord(1)); err != nil {
		t.Fatal(err)
	}
	if err := r.Record(sampleRecord(1)); err == nil {
		t.Error("re-recording an iteration should be refused")
	}

	history, err := r.History()
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Errorf("history count = %d, want 1", len(history))
	}
}

func TestRecorder_ProgressTrailAppends(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir, "claude")

	if err := r.Record(sampleRecord(1)); err != nil {
		t.Fatal(err)
	}
	if err := r.Record(sampleRecord(2)); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "progress.txt"))
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)

	if strings.Count(text, "Iteration 1") != 1 || strings.Count(text, "Iteration 2") != 1 {
		t.Errorf("progress trail should contain both iterations:\n%s", text)
	}
	if !strings.Contains(text, "Tool: claude") {
		t.Error("progress block should name the tool")
	}
	if !strings.Contains(text, "lint=fail") || !strings.Contains(text, "tests=pass") {
		t.Error("progress block should list per-gate verdicts")
	}
	if !strings.Contains(text, "Commit: abc1234") {
		t.Error("progress block should include the commit ref")
	}
}

type failingSink struct{}

func (failingSink) Record(rec *domain.IterationRecord) error {
	return errors.New("sink exploded")
}

type capturingSink struct {
	records []*domain.IterationRecord
}

func (c *capturingSink) Record(rec *domain.IterationRecord) error {
	c.records = append(c.records, rec)
	return nil
}

func TestRecorder_SinkFailureIsIsolated(t *testing.T) {
	r := NewRecorder(t.TempDir(), "claude")
	r.SetSink(failingSink{})

	if err := r.Record(sampleRecord(1)); err != nil {
		t.Errorf("sink failure must not fail the record: %v", err)
	}

	history, err := r.History()
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Errorf("record should exist despite sink failure")
	}
}

func TestRecorder_SinkReceivesInterestingRecords(t *testing.T) {
	r := NewRecorder(t.TempDir(), "claude")
	sink := &capturingSink{}
	r.SetSink(sink)

	if err := r.Record(sampleRecord(1)); err != nil {
		t.Fatal(err)
	}

	skipped := sampleRecord(2)
	skipped.Status = domain.IterationSkipped
	skipped.Learnings = nil
	skipped.Errors = nil
	skipped.QualityChecks = nil
	if err := r.Record(skipped); err != nil {
		t.Fatal(err)
	}

	if len(sink.records) != 1 {
		t.Fatalf("sink received %d records, want 1 (plain skip is not interesting)", len(sink.records))
	}
	if sink.records[0].Iteration != 1 {
		t.Errorf("sink record iteration = %d, want 1", sink.records[0].Iteration)
	}
}

func TestRecorder_HistoryEmptyProject(t *testing.T) {
	r := NewRecorder(t.TempDir(), "claude")
	history, err := r.History()
	if err != nil {
		t.Fatal(err)
	}
	if history != nil {
		t.Errorf("history = %v, want nil", history)
	}
}
