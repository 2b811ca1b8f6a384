// Package storage persists per-experiment state: the registered student set
// and the append-only call log. Three backends implement Store: SQLite (one
// database file per experiment), Postgres (experiment-scoped rows in shared
// tables) and an in-memory store used by tests.
package storage

import (
	"context"
	"time"
)

// Student is a registered identity within one experiment.
type Student struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
}

// Entry is one audit log record. ID is assigned by Append, strictly
// increasing per experiment and never reused. Entries are immutable; the
// only removal path is the student cascade delete.
type Entry struct {
	ID         int64     `json:"id"`
	TS         time.Time `json:"ts"`
	StudentID  string    `json:"student_id"`
	Experiment string    `json:"experiment"`
	Trial      *string   `json:"trial"`
	FuncName   string    `json:"func_name"`
	Args       []any     `json:"args"`
	Result     any       `json:"result"`
	Error      *string   `json:"error"`
}

// FilterOptions describes the distinct filter values present in the log,
// for building query UIs.
type FilterOptions struct {
	Students []string `json:"students"`
	Trials   []string `json:"trials"`
	LogCount int64    `json:"log_count"`
}

// Store is the per-experiment persistence contract.
type Store interface {
	// AddStudent registers a student. Fails with a conflict error when the
	// id already exists.
	AddStudent(ctx context.Context, s *Student) error
	// ListStudents returns all students ordered by id.
	ListStudents(ctx context.Context) ([]*Student, error)
	// DeleteStudent removes the student and every log entry they produced
	// in one atomic step. Fails with a not-found error for an unknown
	// student, leaving everything in place for a retry.
	DeleteStudent(ctx context.Context, studentID string) error
	// IsRegistered reports membership in the student set.
	IsRegistered(ctx context.Context, studentID string) (bool, error)
	// CountStudents returns the size of the student set.
	CountStudents(ctx context.Context) (int64, error)

	// Append assigns the next id for the experiment and persists the entry,
	// setting e.ID. Concurrent appends serialize id allocation; a failed
	// write never burns an id.
	Append(ctx context.Context, e *Entry) error
	// Query returns entries matching the filter, ordered and truncated per
	// the filter's order, limit and cursor.
	Query(ctx context.Context, f Filter) ([]*Entry, error)
	// Options returns distinct students with log activity, distinct trials,
	// and the total entry count.
	Options(ctx context.Context) (*FilterOptions, error)

	Close() error
}
