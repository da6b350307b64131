package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Claim atomically selects the highest-priority, most recently touched job
// matching (stage, status), marks it in_progress, and returns it. The select
// and update are one statement, so two workers racing on the same stage can
// never claim the same row: PostgreSQL skips rows locked by in-flight claims
// via FOR UPDATE SKIP LOCKED, and SQLite serializes the writers. A nil job
// means the queue is empty for now, not a fault.
func (s *Store) Claim(ctx context.Context, stage Stage, status Status) (*Job, error) {
	if _, ok := stageSet[stage]; !ok {
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
	if _, ok := statusSet[status]; !ok {
		return nil, fmt.Errorf("unknown status %q", status)
	}

	lockClause := ""
	if s.driver == DriverPostgres {
		lockClause = " FOR UPDATE SKIP LOCKED"
	}
	query := s.driver.rebind(fmt.Sprintf(
		`UPDATE %[1]s
         SET status = ?, updated_at = ?, last_heartbeat = ?
         WHERE id = (
             SELECT id FROM %[1]s
             WHERE stage = ? AND status = ?
             ORDER BY priority DESC, updated_at DESC
             LIMIT 1%[2]s
         )
         RETURNING `+jobColumns,
		s.table, lockClause,
	))

	now := s.driver.timeValue(time.Now().UTC())
	row := s.db.QueryRowContext(ctx, query, StatusInProgress, now, now, stage, status)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// Advance moves a job to its next stage in one atomic update, setting stage,
// status, updated_at, and any caller-supplied extra fields together. It never
// touches other jobs.
func (s *Store) Advance(ctx context.Context, id int64, nextStage Stage, nextStatus Status, fields Fields) error {
	if _, ok := stageSet[nextStage]; !ok {
		return fmt.Errorf("unknown stage %q", nextStage)
	}
	if nextStatus == "" {
		nextStatus = StatusPending
	}
	if _, ok := statusSet[nextStatus]; !ok {
		return fmt.Errorf("unknown status %q", nextStatus)
	}

	setSQL, fieldArgs, err := fields.setClauses()
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET stage = ?, status = ?, updated_at = ?, last_heartbeat = NULL`, s.table)
	if setSQL != "" {
		query += ", " + setSQL
	}
	query += ` WHERE id = ?`

	args := make([]any, 0, len(fieldArgs)+4)
	args = append(args, nextStage, nextStatus, s.driver.timeValue(time.Now().UTC()))
	args = append(args, fieldArgs...)
	args = append(args, id)

	if err := s.execOne(ctx, s.driver.rebind(query), args...); err != nil {
		return fmt.Errorf("advance job %d: %w", id, err)
	}
	return nil
}

// MarkDone records successful completion, leaving the stage untouched.
func (s *Store) MarkDone(ctx context.Context, id int64, fields Fields) error {
	if err := s.setStatus(ctx, id, StatusDone, fields); err != nil {
		return fmt.Errorf("mark job %d done: %w", id, err)
	}
	return nil
}

// MarkFailed records a failure at the job's current stage. The stage never
// moves on failure; the row sits failed until an operator retries it or a
// worker configured to claim failed jobs picks it back up.
func (s *Store) MarkFailed(ctx context.Context, id int64, fields Fields) error {
	if err := s.setStatus(ctx, id, StatusFailed, fields); err != nil {
		return fmt.Errorf("mark job %d failed: %w", id, err)
	}
	return nil
}

func (s *Store) setStatus(ctx context.Context, id int64, status Status, fields Fields) error {
	setSQL, fieldArgs, err := fields.setClauses()
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET status = ?, updated_at = ?, last_heartbeat = NULL`, s.table)
	if setSQL != "" {
		query += ", " + setSQL
	}
	query += ` WHERE id = ?`

	args := make([]any, 0, len(fieldArgs)+3)
	args = append(args, status, s.driver.timeValue(time.Now().UTC()))
	args = append(args, fieldArgs...)
	args = append(args, id)

	return s.execOne(ctx, s.driver.rebind(query), args...)
}

// RetryFailed moves failed jobs back to pending at their current stage. With
// no ids it retries every failed job.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	now := s.driver.timeValue(time.Now().UTC())

	if len(ids) == 0 {
		res, err := s.db.ExecContext(ctx,
			s.driver.rebind(fmt.Sprintf(
				`UPDATE %s SET status = ?, updated_at = ? WHERE status = ?`, s.table,
			)),
			StatusPending, now, StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed jobs: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusPending, now, StatusFailed)
	for _, id := range ids {
		args = append(args, id)
	}
	query := s.driver.rebind(fmt.Sprintf(
		`UPDATE %s SET status = ?, updated_at = ? WHERE status = ? AND id IN (%s)`,
		s.table, placeholders,
	))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected jobs: %w", err)
	}
	return res.RowsAffected()
}

// UpdateHeartbeat refreshes the lease timestamp on an in-flight job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := s.driver.timeValue(time.Now().UTC())
	_, err := s.db.ExecContext(ctx,
		s.driver.rebind(fmt.Sprintf(
			`UPDATE %s SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`, s.table,
		)),
		now, now, id, StatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStale re-pends in_progress jobs whose heartbeat expired before the
// cutoff, recovering work orphaned by crashed workers. The stage is left
// unchanged so the job re-runs from the start of its current stage.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		s.driver.rebind(fmt.Sprintf(
			`UPDATE %s
             SET status = ?, last_heartbeat = NULL, updated_at = ?
             WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
			s.table,
		)),
		StatusPending,
		s.driver.timeValue(time.Now().UTC()),
		StatusInProgress,
		s.driver.timeValue(cutoff.UTC()),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// ErrNoSuchJob indicates a transition referenced a job id that does not exist.
var ErrNoSuchJob = errors.New("no such job")

func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNoSuchJob
	}
	return nil
}
