// Package learning is the SQLite-backed learning sink: it indexes the
// interesting facts of each iteration (completions, failures, learnings) so
// they can be queried later without replaying the whole audit trail. The
// sink is best-effort by contract; callers suppress its errors.
package learning

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ralphlabs/ralph/internal/domain"
	_ "modernc.org/sqlite"
)

// Entry kinds stored in the index.
const (
	KindCompletion = "completion"
	KindFailure    = "failure"
	KindLearning   = "learning"
	KindError      = "error"
)

// Store indexes iteration facts in a SQLite database
type Store struct {
	db *sql.DB
}

// Entry is one indexed fact
type Entry struct {
	Iteration int
	TaskID    string
	TaskTitle string
	Kind      string
	Detail    string
	CreatedAt time.Time
}

// Open opens (and migrates) the learning database at the given path
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Record implements record.LearningSink: it fans one iteration record out
// into indexed entries.
func (s *Store) Record(rec *domain.IterationRecord) error {
	var entries []Entry

	switch rec.Status {
	case domain.IterationSuccess:
		detail := rec.Summary
		if detail == "" {
			detail = "iteration completed"
		}
		entries = append(entries, Entry{Kind: KindCompletion, Detail: detail})
	case domain.IterationFailure:
		detail := rec.Summary
		if detail == "" {
			detail = "iteration failed"
		}
		entries = append(entries, Entry{Kind: KindFailure, Detail: detail})
	}
	for _, l := range rec.Learnings {
		entries = append(entries, Entry{Kind: KindLearning, Detail: l})
	}
	for _, e := range rec.Errors {
		entries = append(entries, Entry{Kind: KindError, Detail: e})
	}

	for _, entry := range entries {
		_, err := s.db.Exec(`
			INSERT INTO entries (iteration, task_id, task_title, kind, detail, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, rec.Iteration, rec.TaskID, rec.TaskTitle, entry.Kind, entry.Detail, time.Now())
		if err != nil {
			return err
		}
	}
	return nil
}

// ListOptions filters a learning query
type ListOptions struct {
	TaskID string
	Kind   string
	Limit  int
}

// List returns indexed entries, newest first
func (s *Store) List(opts ListOptions) ([]*Entry, error) {
	query := `SELECT iteration, task_id, task_title, kind, detail, created_at FROM entries WHERE 1=1`
	var args []interface{}

	if opts.TaskID != "" {
		query += " AND task_id = ?"
		args = append(args, opts.TaskID)
	}
	if opts.Kind != "" {
		query += " AND kind = ?"
		args = append(args, opts.Kind)
	}

	query += " ORDER BY id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var title sql.NullString
		if err := rows.Scan(&e.Iteration, &e.TaskID, &title, &e.Kind, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		if title.Valid {
			e.TaskTitle = title.String
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
