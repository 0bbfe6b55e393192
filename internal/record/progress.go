package record

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ralphlabs/ralph/internal/domain"
)

// AppendProgress appends one formatted block for the iteration to
// progress.txt. Prior blocks are never rewritten.
func (r *Recorder) AppendProgress(rec *domain.IterationRecord) error {
	f, err := os.OpenFile(filepath.Join(r.dir, progressFileName),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteString(r.formatBlock(rec))
	return err
}

func (r *Recorder) formatBlock(rec *domain.IterationRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Iteration %d — %s\n", rec.Iteration, rec.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Task: %s (%s)\n", rec.TaskTitle, rec.TaskID)
	fmt.Fprintf(&b, "Status: %s\n", rec.Status)
	fmt.Fprintf(&b, "Tool: %s\n", r.tool)
	fmt.Fprintf(&b, "Duration: %d ms\n", rec.DurationMs)

	if len(rec.QualityChecks) > 0 {
		names := make([]string, 0, len(rec.QualityChecks))
		for name := range rec.QualityChecks {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("Gates:")
		for _, name := range names {
			verdict := "fail"
			if rec.QualityChecks[name] {
				verdict = "pass"
			}
			fmt.Fprintf(&b, " %s=%s", name, verdict)
		}
		b.WriteString("\n")
	}

	if rec.CommitRef != "" {
		fmt.Fprintf(&b, "Commit: %s\n", rec.CommitRef)
	}
	if rec.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", rec.Summary)
	}
	for _, learning := range rec.Learnings {
		fmt.Fprintf(&b, "Learning: %s\n", learning)
	}
	for _, errMsg := range rec.Errors {
		fmt.Fprintf(&b, "Error: %s\n", errMsg)
	}

	b.WriteString(strings.Repeat("-", 60) + "\n")
	return b.String()
}
