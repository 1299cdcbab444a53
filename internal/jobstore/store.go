// Package jobstore is the SQLite-backed job queue and per-job log list
// shared by the API server and the workers.
package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Job states
const (
	StateWaiting   = "waiting"
	StateActive    = "active"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// DefaultLogTTL is how long a job log survives its last append
const DefaultLogTTL = 24 * time.Hour

// ErrJobNotFound is returned for unknown job ids
var ErrJobNotFound = errors.New("job not found")

// Job is one queued unit of work
type Job struct {
	ID           string
	Name         string
	Data         json.RawMessage
	State        string
	Attempts     int
	ReturnValue  json.RawMessage
	FailedReason string
	CreatedAt    time.Time
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Store provides SQLite-backed queue and log persistence
type Store struct {
	db     *sql.DB
	logTTL time.Duration
	now    func() time.Time
}

// New creates a new Store with the given database path. ":memory:" gives
// a private in-process database.
func New(dbPath string, logTTL time.Duration) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection: keeps :memory: databases intact and serializes
	// writers inside this process.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	if logTTL <= 0 {
		logTTL = DefaultLogTTL
	}
	return &Store{db: db, logTTL: logTTL, now: time.Now}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// NewJobID returns a fresh job id for EnqueueWithID
func NewJobID() string {
	return uuid.NewString()
}

// Enqueue adds a waiting job and returns its id
func (s *Store) Enqueue(ctx context.Context, name string, data any) (string, error) {
	return s.EnqueueWithID(ctx, NewJobID(), name, data)
}

// EnqueueWithID adds a waiting job under a caller chosen id, so the id can
// be recorded elsewhere before the job becomes claimable.
func (s *Store) EnqueueWithID(ctx context.Context, id, name string, data any) (string, error) {
	if id == "" {
		return "", errors.New("enqueue: empty job id")
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encoding job data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, name, data, state, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, name, string(encoded), StateWaiting, s.now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", name, err)
	}
	return id, nil
}

const jobColumns = `id, name, data, state, attempts, return_value, failed_reason, created_at, started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var (
		j                   Job
		data                string
		returnValue, reason sql.NullString
		created             int64
		started, finished   sql.NullInt64
	)
	if err := row.Scan(&j.ID, &j.Name, &data, &j.State, &j.Attempts, &returnValue, &reason, &created, &started, &finished); err != nil {
		return nil, err
	}
	j.Data = json.RawMessage(data)
	if returnValue.Valid {
		j.ReturnValue = json.RawMessage(returnValue.String)
	}
	j.FailedReason = reason.String
	j.CreatedAt = time.UnixMilli(created)
	if started.Valid {
		j.StartedAt = time.UnixMilli(started.Int64)
	}
	if finished.Valid {
		j.FinishedAt = time.UnixMilli(finished.Int64)
	}
	return &j, nil
}

// Claim moves the oldest waiting job to active and returns it. It returns
// (nil, nil) when the queue is empty. Safe across processes sharing the
// database file.
func (s *Store) Claim(ctx context.Context) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE jobs
		SET state = ?, started_at = ?, attempts = attempts + 1
		WHERE seq = (SELECT seq FROM jobs WHERE state = ? ORDER BY seq LIMIT 1)
		RETURNING `+jobColumns,
		StateActive, s.now().UnixMilli(), StateWaiting)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claiming job: %w", err)
	}
	return job, nil
}

// Complete marks an active job completed with its return value
func (s *Store) Complete(ctx context.Context, id string, returnValue any) error {
	encoded, err := json.Marshal(returnValue)
	if err != nil {
		return fmt.Errorf("encoding return value: %w", err)
	}
	return s.finish(ctx, id, StateCompleted, sql.NullString{String: string(encoded), Valid: true}, sql.NullString{})
}

// Fail marks an active job failed
func (s *Store) Fail(ctx context.Context, id string, reason string) error {
	return s.finish(ctx, id, StateFailed, sql.NullString{}, sql.NullString{String: reason, Valid: true})
}

func (s *Store) finish(ctx context.Context, id, state string, returnValue, reason sql.NullString) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, return_value = ?, failed_reason = ?, finished_at = ?
		WHERE id = ?
	`, state, returnValue, reason, s.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("finishing job %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return nil
}

// GetJob retrieves a job by id
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobs returns jobs in the given state (all states when empty), newest first
func (s *Store) ListJobs(ctx context.Context, state string, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := []any{}
	if state != "" {
		query += ` WHERE state = ?`
		args = append(args, state)
	}
	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// RequeueStale moves jobs that have been active for longer than olderThan
// back to waiting. Workers sharing the database bound every job by their
// timeout, so an active job older than that was left behind by a crashed
// worker. Younger active jobs may still be running elsewhere and are kept.
func (s *Store) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("requeue: olderThan must be positive")
	}
	cutoff := s.now().Add(-olderThan).UnixMilli()
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, started_at = NULL
		WHERE state = ? AND started_at < ?
	`, StateWaiting, StateActive, cutoff)
	if err != nil {
		return 0, fmt.Errorf("requeueing stalled jobs: %w", err)
	}
	return res.RowsAffected()
}
