package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/NeveIsa/LEAP2/pkg/apperr"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// SQLiteStore persists one experiment in a single SQLite database file.
type SQLiteStore struct {
	db         *sql.DB
	experiment string

	// appendMu serializes id allocation and the insert for this
	// experiment; unrelated experiments live in separate files and are
	// never blocked.
	appendMu sync.Mutex
	nextID   int64
}

// NewSQLiteStore opens (creating if needed) the experiment database and
// runs schema migrations.
func NewSQLiteStore(experiment, dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := runSQLiteMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := &SQLiteStore{db: db, experiment: experiment}

	// log_seq holds the high-water mark independently of the rows, so ids
	// freed by a cascade delete are never handed out again after a restart.
	var maxLog, lastSeq int64
	err = db.QueryRow(`SELECT COALESCE((SELECT MAX(id) FROM logs), 0),
	                          COALESCE((SELECT last_id FROM log_seq WHERE id = 1), 0)`).Scan(&maxLog, &lastSeq)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read log sequence: %w", err)
	}
	s.nextID = max(maxLog, lastSeq)

	return s, nil
}

func runSQLiteMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations/sqlite")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// AddStudent implements Store.
func (s *SQLiteStore) AddStudent(ctx context.Context, st *Student) error {
	var existing string
	err := s.db.QueryRowContext(ctx, "SELECT student_id FROM students WHERE student_id = ?", st.StudentID).Scan(&existing)
	if err == nil {
		return apperr.Conflict("Student '%s' already exists", st.StudentID)
	}
	if err != sql.ErrNoRows {
		return apperr.Store("failed to check existing student", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO students (student_id, name, email) VALUES (?, ?, ?)",
		st.StudentID, st.Name, nullable(st.Email),
	)
	if err != nil {
		return apperr.Store("failed to add student", err)
	}
	return nil
}

// ListStudents implements Store.
func (s *SQLiteStore) ListStudents(ctx context.Context) ([]*Student, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT student_id, name, email FROM students ORDER BY student_id")
	if err != nil {
		return nil, apperr.Store("failed to list students", err)
	}
	defer rows.Close()

	var students []*Student
	for rows.Next() {
		var st Student
		var email sql.NullString
		if err := rows.Scan(&st.StudentID, &st.Name, &email); err != nil {
			return nil, apperr.Store("failed to scan student", err)
		}
		st.Email = email.String
		students = append(students, &st)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("failed to list students", err)
	}
	return students, nil
}

// DeleteStudent implements Store. The student row and the student's log
// entries go in one transaction, so the cascade either fully succeeds or
// leaves everything in place for a retry.
func (s *SQLiteStore) DeleteStudent(ctx context.Context, studentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Store("failed to begin transaction", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, "SELECT student_id FROM students WHERE student_id = ?", studentID).Scan(&existing)
	if err == sql.ErrNoRows {
		return apperr.NotFound("Student '%s' not found", studentID)
	}
	if err != nil {
		return apperr.Store("failed to check student", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM logs WHERE student_id = ?", studentID); err != nil {
		return apperr.Store("failed to delete student logs", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM students WHERE student_id = ?", studentID); err != nil {
		return apperr.Store("failed to delete student", err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.Store("failed to commit student delete", err)
	}
	return nil
}

// IsRegistered implements Store.
func (s *SQLiteStore) IsRegistered(ctx context.Context, studentID string) (bool, error) {
	var existing string
	err := s.db.QueryRowContext(ctx, "SELECT student_id FROM students WHERE student_id = ?", studentID).Scan(&existing)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, apperr.Store("failed to check registration", err)
	}
	return true, nil
}

// CountStudents implements Store.
func (s *SQLiteStore) CountStudents(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM students").Scan(&n); err != nil {
		return 0, apperr.Store("failed to count students", err)
	}
	return n, nil
}

// Append implements Store. The id is allocated under appendMu and only
// advanced after the insert succeeds, so a failed write retries with the
// same id and successful writes are gap-free. The log_seq high-water mark
// commits with the row, surviving deletes of the newest entries.
func (s *SQLiteStore) Append(ctx context.Context, e *Entry) error {
	argsJSON, resultJSON, err := encodePayload(e)
	if err != nil {
		return err
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Store("failed to begin transaction", err)
	}
	defer tx.Rollback()

	id := s.nextID + 1
	_, err = tx.ExecContext(ctx,
		`INSERT INTO logs (id, ts, student_id, experiment, trial, func_name, args_json, result_json, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, e.TS.UnixMicro(), e.StudentID, s.experiment,
		nullablePtr(e.Trial), e.FuncName, argsJSON, resultJSON, nullablePtr(e.Error),
	)
	if err != nil {
		return apperr.Store("failed to append log entry", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO log_seq (id, last_id) VALUES (1, ?) ON CONFLICT (id) DO UPDATE SET last_id = excluded.last_id",
		id,
	); err != nil {
		return apperr.Store("failed to advance log sequence", err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.Store("failed to append log entry", err)
	}
	s.nextID = id
	e.ID = id
	e.Experiment = s.experiment
	return nil
}

// Query implements Store.
func (s *SQLiteStore) Query(ctx context.Context, f Filter) ([]*Entry, error) {
	f.normalize()

	var conds []string
	var args []any
	if f.StudentID != "" {
		conds = append(conds, "student_id = ?")
		args = append(args, f.StudentID)
	}
	if f.Trial != "" {
		conds = append(conds, "trial = ?")
		args = append(args, f.Trial)
	}
	if f.FuncName != "" {
		conds = append(conds, "func_name = ?")
		args = append(args, f.FuncName)
	}
	if !f.StartTime.IsZero() {
		conds = append(conds, "ts >= ?")
		args = append(args, f.StartTime.UnixMicro())
	}
	if !f.EndTime.IsZero() {
		conds = append(conds, "ts <= ?")
		args = append(args, f.EndTime.UnixMicro())
	}

	order := "id DESC"
	if f.Order == OrderEarliest {
		order = "id ASC"
		if f.AfterID > 0 {
			conds = append(conds, "id > ?")
			args = append(args, f.AfterID)
		}
	} else if f.AfterID > 0 {
		conds = append(conds, "id < ?")
		args = append(args, f.AfterID)
	}

	query := "SELECT id, ts, student_id, experiment, trial, func_name, args_json, result_json, error FROM logs"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY " + order + " LIMIT ?"
	args = append(args, f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Store("failed to query logs", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var ts int64
		var trial, resultJSON, errMsg sql.NullString
		var argsJSON string
		if err := rows.Scan(&e.ID, &ts, &e.StudentID, &e.Experiment, &trial, &e.FuncName, &argsJSON, &resultJSON, &errMsg); err != nil {
			return nil, apperr.Store("failed to scan log entry", err)
		}
		e.TS = time.UnixMicro(ts).UTC()
		decodePayload(&e, trial, argsJSON, resultJSON, errMsg)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("failed to query logs", err)
	}
	return entries, nil
}

// Options implements Store.
func (s *SQLiteStore) Options(ctx context.Context) (*FilterOptions, error) {
	opts := &FilterOptions{Students: []string{}, Trials: []string{}}

	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT student_id FROM logs ORDER BY student_id")
	if err != nil {
		return nil, apperr.Store("failed to query log students", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Store("failed to scan student id", err)
		}
		opts.Students = append(opts.Students, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("failed to query log students", err)
	}

	trows, err := s.db.QueryContext(ctx, "SELECT DISTINCT trial FROM logs WHERE trial IS NOT NULL ORDER BY trial")
	if err != nil {
		return nil, apperr.Store("failed to query trials", err)
	}
	defer trows.Close()
	for trows.Next() {
		var trial string
		if err := trows.Scan(&trial); err != nil {
			return nil, apperr.Store("failed to scan trial", err)
		}
		opts.Trials = append(opts.Trials, trial)
	}
	if err := trows.Err(); err != nil {
		return nil, apperr.Store("failed to query trials", err)
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM logs").Scan(&opts.LogCount); err != nil {
		return nil, apperr.Store("failed to count logs", err)
	}
	return opts, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// encodePayload serializes args and result to their stored JSON form.
func encodePayload(e *Entry) (argsJSON string, resultJSON sql.NullString, err error) {
	args := e.Args
	if args == nil {
		args = []any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "", sql.NullString{}, apperr.Store("failed to encode args", err)
	}
	argsJSON = string(raw)

	if e.Result != nil {
		raw, err := json.Marshal(e.Result)
		if err != nil {
			return "", sql.NullString{}, apperr.Store("failed to encode result", err)
		}
		resultJSON = sql.NullString{String: string(raw), Valid: true}
	}
	return argsJSON, resultJSON, nil
}

// decodePayload reconstructs structured args/result values from their
// stored JSON. Undecodable payloads degrade to the raw string rather than
// failing the whole query.
func decodePayload(e *Entry, trial sql.NullString, argsJSON string, resultJSON, errMsg sql.NullString) {
	if trial.Valid {
		e.Trial = &trial.String
	}
	if errMsg.Valid {
		e.Error = &errMsg.String
	}

	var args []any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		e.Args = []any{argsJSON}
	} else {
		e.Args = args
	}

	if resultJSON.Valid {
		var result any
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			e.Result = resultJSON.String
		} else {
			e.Result = result
		}
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullablePtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

var _ Store = (*SQLiteStore)(nil)
