package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NeveIsa/LEAP2/pkg/apperr"
)

// NewPostgresPool connects to Postgres, runs migrations, and returns the
// shared pool. All experiments share one database; rows are scoped by the
// experiment column.
func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(pingCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runPostgresMigrations(dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return pool, nil
}

func runPostgresMigrations(dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations/postgres")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	// migrate's pgx driver registers the pgx5 scheme.
	url := "pgx5://" + strings.TrimPrefix(strings.TrimPrefix(dsn, "postgres://"), "postgresql://")
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// PostgresStore persists one experiment in shared Postgres tables.
type PostgresStore struct {
	pool       *pgxpool.Pool
	experiment string

	// appendMu serializes id allocation per experiment; other experiments
	// hold their own store instance and mutex.
	appendMu sync.Mutex
	nextID   int64
}

// NewPostgresStore binds a store to one experiment on the shared pool.
func NewPostgresStore(ctx context.Context, experiment string, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool, experiment: experiment}
	// log_seq holds the high-water mark independently of the rows, so ids
	// freed by a cascade delete are never handed out again after a restart.
	err := pool.QueryRow(ctx,
		`SELECT GREATEST(
		    COALESCE((SELECT MAX(id) FROM logs WHERE experiment = $1), 0),
		    COALESCE((SELECT last_id FROM log_seq WHERE experiment = $1), 0))`,
		experiment,
	).Scan(&s.nextID)
	if err != nil {
		return nil, fmt.Errorf("failed to read log sequence: %w", err)
	}
	return s, nil
}

// AddStudent implements Store.
func (s *PostgresStore) AddStudent(ctx context.Context, st *Student) error {
	var existing string
	err := s.pool.QueryRow(ctx,
		"SELECT student_id FROM students WHERE experiment = $1 AND student_id = $2",
		s.experiment, st.StudentID,
	).Scan(&existing)
	if err == nil {
		return apperr.Conflict("Student '%s' already exists", st.StudentID)
	}
	if err != pgx.ErrNoRows {
		return apperr.Store("failed to check existing student", err)
	}

	_, err = s.pool.Exec(ctx,
		"INSERT INTO students (experiment, student_id, name, email) VALUES ($1, $2, $3, $4)",
		s.experiment, st.StudentID, st.Name, nullable(st.Email),
	)
	if err != nil {
		return apperr.Store("failed to add student", err)
	}
	return nil
}

// ListStudents implements Store.
func (s *PostgresStore) ListStudents(ctx context.Context) ([]*Student, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT student_id, name, email FROM students WHERE experiment = $1 ORDER BY student_id",
		s.experiment,
	)
	if err != nil {
		return nil, apperr.Store("failed to list students", err)
	}
	defer rows.Close()

	var students []*Student
	for rows.Next() {
		var st Student
		var email *string
		if err := rows.Scan(&st.StudentID, &st.Name, &email); err != nil {
			return nil, apperr.Store("failed to scan student", err)
		}
		if email != nil {
			st.Email = *email
		}
		students = append(students, &st)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("failed to list students", err)
	}
	return students, nil
}

// DeleteStudent implements Store.
func (s *PostgresStore) DeleteStudent(ctx context.Context, studentID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Store("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	var existing string
	err = tx.QueryRow(ctx,
		"SELECT student_id FROM students WHERE experiment = $1 AND student_id = $2",
		s.experiment, studentID,
	).Scan(&existing)
	if err == pgx.ErrNoRows {
		return apperr.NotFound("Student '%s' not found", studentID)
	}
	if err != nil {
		return apperr.Store("failed to check student", err)
	}

	if _, err := tx.Exec(ctx,
		"DELETE FROM logs WHERE experiment = $1 AND student_id = $2",
		s.experiment, studentID,
	); err != nil {
		return apperr.Store("failed to delete student logs", err)
	}
	if _, err := tx.Exec(ctx,
		"DELETE FROM students WHERE experiment = $1 AND student_id = $2",
		s.experiment, studentID,
	); err != nil {
		return apperr.Store("failed to delete student", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Store("failed to commit student delete", err)
	}
	return nil
}

// IsRegistered implements Store.
func (s *PostgresStore) IsRegistered(ctx context.Context, studentID string) (bool, error) {
	var existing string
	err := s.pool.QueryRow(ctx,
		"SELECT student_id FROM students WHERE experiment = $1 AND student_id = $2",
		s.experiment, studentID,
	).Scan(&existing)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, apperr.Store("failed to check registration", err)
	}
	return true, nil
}

// CountStudents implements Store.
func (s *PostgresStore) CountStudents(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM students WHERE experiment = $1", s.experiment,
	).Scan(&n)
	if err != nil {
		return 0, apperr.Store("failed to count students", err)
	}
	return n, nil
}

// Append implements Store. Same id discipline as the SQLite store: the
// log_seq high-water mark commits with the row.
func (s *PostgresStore) Append(ctx context.Context, e *Entry) error {
	argsJSON, resultJSON, err := encodePayload(e)
	if err != nil {
		return err
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Store("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	id := s.nextID + 1
	_, err = tx.Exec(ctx,
		`INSERT INTO logs (experiment, id, ts, student_id, trial, func_name, args_json, result_json, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.experiment, id, e.TS, e.StudentID,
		nullablePtr(e.Trial), e.FuncName, argsJSON, nullableNullString(resultJSON), nullablePtr(e.Error),
	)
	if err != nil {
		return apperr.Store("failed to append log entry", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO log_seq (experiment, last_id) VALUES ($1, $2)
		 ON CONFLICT (experiment) DO UPDATE SET last_id = excluded.last_id`,
		s.experiment, id,
	); err != nil {
		return apperr.Store("failed to advance log sequence", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Store("failed to append log entry", err)
	}
	s.nextID = id
	e.ID = id
	e.Experiment = s.experiment
	return nil
}

// Query implements Store.
func (s *PostgresStore) Query(ctx context.Context, f Filter) ([]*Entry, error) {
	f.normalize()

	conds := []string{"experiment = $1"}
	args := []any{s.experiment}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.StudentID != "" {
		conds = append(conds, "student_id = "+arg(f.StudentID))
	}
	if f.Trial != "" {
		conds = append(conds, "trial = "+arg(f.Trial))
	}
	if f.FuncName != "" {
		conds = append(conds, "func_name = "+arg(f.FuncName))
	}
	if !f.StartTime.IsZero() {
		conds = append(conds, "ts >= "+arg(f.StartTime))
	}
	if !f.EndTime.IsZero() {
		conds = append(conds, "ts <= "+arg(f.EndTime))
	}

	order := "id DESC"
	if f.Order == OrderEarliest {
		order = "id ASC"
		if f.AfterID > 0 {
			conds = append(conds, "id > "+arg(f.AfterID))
		}
	} else if f.AfterID > 0 {
		conds = append(conds, "id < "+arg(f.AfterID))
	}

	query := "SELECT id, ts, student_id, trial, func_name, args_json, result_json, error FROM logs WHERE " +
		strings.Join(conds, " AND ") + " ORDER BY " + order + " LIMIT " + arg(f.Limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Store("failed to query logs", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var trial, resultJSON, errMsg *string
		var argsJSON string
		if err := rows.Scan(&e.ID, &e.TS, &e.StudentID, &trial, &e.FuncName, &argsJSON, &resultJSON, &errMsg); err != nil {
			return nil, apperr.Store("failed to scan log entry", err)
		}
		e.TS = e.TS.UTC()
		e.Experiment = s.experiment
		decodePayload(&e, toNullString(trial), argsJSON, toNullString(resultJSON), toNullString(errMsg))
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("failed to query logs", err)
	}
	return entries, nil
}

// Options implements Store.
func (s *PostgresStore) Options(ctx context.Context) (*FilterOptions, error) {
	opts := &FilterOptions{Students: []string{}, Trials: []string{}}

	rows, err := s.pool.Query(ctx,
		"SELECT DISTINCT student_id FROM logs WHERE experiment = $1 ORDER BY student_id", s.experiment,
	)
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

	trows, err := s.pool.Query(ctx,
		"SELECT DISTINCT trial FROM logs WHERE experiment = $1 AND trial IS NOT NULL ORDER BY trial", s.experiment,
	)
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

	err = s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM logs WHERE experiment = $1", s.experiment,
	).Scan(&opts.LogCount)
	if err != nil {
		return nil, apperr.Store("failed to count logs", err)
	}
	return opts, nil
}

// Close implements Store. The pool is shared; owning it is the caller's job.
func (s *PostgresStore) Close() error {
	return nil
}

func toNullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullableNullString(ns sql.NullString) any {
	if !ns.Valid {
		return nil
	}
	return ns.String
}

var _ Store = (*PostgresStore)(nil)
