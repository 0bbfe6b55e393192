// Package record keeps the audit trail of the autonomous loop: one
// immutable JSON file per iteration under history/, plus an append-only
// human-readable progress trail.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/ralphlabs/ralph/internal/domain"
)

const (
	historyDirName   = "history"
	progressFileName = "progress.txt"
)

// LearningSink receives a copy of interesting iteration facts (failures,
// learnings, completions) for later retrieval. Sinks are strictly
// best-effort: their failures never affect the primary record.
type LearningSink interface {
	Record(rec *domain.IterationRecord) error
}

// Recorder writes iteration records for one project
type Recorder struct {
	dir  string
	tool string
	sink LearningSink
}

// NewRecorder creates a recorder rooted at the project directory
func NewRecorder(dir, tool string) *Recorder {
	return &Recorder{dir: dir, tool: tool}
}

// SetSink attaches a learning sink. Passing nil detaches it.
func (r *Recorder) SetSink(sink LearningSink) {
	r.sink = sink
}

// Record writes history/iteration-<n>.json and appends a block to the
// progress trail. Records are immutable: an iteration number that was
// already recorded is refused.
func (r *Recorder) Record(rec *domain.IterationRecord) error {
	histDir := filepath.Join(r.dir, historyDirName)
	if err := os.MkdirAll(histDir, 0755); err != nil {
		return fmt.Errorf("creating history dir: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling iteration record: %w", err)
	}

	path := filepath.Join(histDir, fmt.Sprintf("iteration-%d.json", rec.Iteration))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("iteration %d is already recorded", rec.Iteration)
		}
		return fmt.Errorf("creating iteration record: %w", err)
	}
	_, writeErr := f.Write(data)
	closeErr := f.Close()
	if writeErr != nil {
		return fmt.Errorf("writing iteration record: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("writing iteration record: %w", closeErr)
	}

	if err := r.AppendProgress(rec); err != nil {
		// The JSON record is the primary artifact; the trail is best-effort.
		log.Printf("warning: progress trail append failed: %v", err)
	}

	r.feedSink(rec)
	return nil
}

// feedSink forwards interesting facts to the learning sink, suppressing any
// sink error.
func (r *Recorder) feedSink(rec *domain.IterationRecord) {
	if r.sink == nil {
		return
	}
	interesting := rec.Status == domain.IterationFailure ||
		rec.Status == domain.IterationSuccess ||
		len(rec.Learnings) > 0 || len(rec.Errors) > 0
	if !interesting {
		return
	}
	if err := r.sink.Record(rec); err != nil {
		log.Printf("warning: learning sink failed: %v", err)
	}
}

// History returns all recorded iterations, most recent first. Malformed
// record files are skipped with a warning rather than failing the read.
func (r *Recorder) History() ([]*domain.IterationRecord, error) {
	histDir := filepath.Join(r.dir, historyDirName)
	entries, err := os.ReadDir(histDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var records []*domain.IterationRecord
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(histDir, entry.Name()))
		if err != nil {
			log.Printf("warning: skipping unreadable record %s: %v", entry.Name(), err)
			continue
		}
		var rec domain.IterationRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			log.Printf("warning: skipping malformed record %s: %v", entry.Name(), err)
			continue
		}
		records = append(records, &rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Iteration > records[j].Iteration
	})
	return records, nil
}
