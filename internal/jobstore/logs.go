package jobstore

import (
	"context"
	"fmt"
	"time"

	"github.com/hochfrequenz/vibe-builder/internal/domain"
)

// AppendLog adds a line to the job's log and pushes its expiry out to
// now + TTL.
func (s *Store) AppendLog(ctx context.Context, jobID, line string) error {
	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO job_logs (job_id, t, line) VALUES (?, ?, ?)
	`, jobID, now.UnixMilli(), line); err != nil {
		return fmt.Errorf("appending log: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO job_log_expiry (job_id, expires_at) VALUES (?, ?)
		ON CONFLICT(job_id) DO UPDATE SET expires_at = excluded.expires_at
	`, jobID, now.Add(s.logTTL).UnixMilli()); err != nil {
		return fmt.Errorf("refreshing log expiry: %w", err)
	}
	return tx.Commit()
}

// LogLen returns the number of live log entries for a job
func (s *Store) LogLen(ctx context.Context, jobID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM job_logs l
		JOIN job_log_expiry e ON e.job_id = l.job_id
		WHERE l.job_id = ? AND e.expires_at > ?
	`, jobID, s.now().UnixMilli()).Scan(&n)
	return n, err
}

// ReadLogs returns entries start..end inclusive. Negative indexes count
// from the end, so (0, -1) is the whole log and (-10, -1) the last ten.
// Out of range indexes are clamped; an expired log reads as empty.
func (s *Store) ReadLogs(ctx context.Context, jobID string, start, end int64) ([]domain.LogEntry, error) {
	n, err := s.LogLen(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("counting log entries: %w", err)
	}

	if start < 0 {
		start += n
	}
	if end < 0 {
		end += n
	}
	if start < 0 {
		start = 0
	}
	if end >= n {
		end = n - 1
	}
	entries := []domain.LogEntry{}
	if n == 0 || start > end {
		return entries, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT t, line FROM job_logs WHERE job_id = ?
		ORDER BY id LIMIT ? OFFSET ?
	`, jobID, end-start+1, start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var e domain.LogEntry
		if err := rows.Scan(&e.T, &e.Line); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// TailLogs returns the last n entries
func (s *Store) TailLogs(ctx context.Context, jobID string, n int64) ([]domain.LogEntry, error) {
	if n <= 0 {
		return []domain.LogEntry{}, nil
	}
	return s.ReadLogs(ctx, jobID, -n, -1)
}

// ExpireLogs deletes every log whose expiry is at or before now and
// returns the number of entries removed.
func (s *Store) ExpireLogs(ctx context.Context, now time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	cutoff := now.UnixMilli()
	res, err := tx.ExecContext(ctx, `
		DELETE FROM job_logs WHERE job_id IN (
			SELECT job_id FROM job_log_expiry WHERE expires_at <= ?
		)
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting expired logs: %w", err)
	}
	removed, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, `DELETE FROM job_log_expiry WHERE expires_at <= ?`, cutoff); err != nil {
		return 0, fmt.Errorf("deleting expiry rows: %w", err)
	}
	return removed, tx.Commit()
}
