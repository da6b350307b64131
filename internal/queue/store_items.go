package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertJobs performs the batch ingestion upsert: new external keys are
// inserted at their submitted stage with status pending, while keys already
// present only have their priority refreshed. Stage, status, and config of
// in-flight or completed jobs are never overwritten. The whole batch commits
// in one transaction.
func (s *Store) UpsertJobs(ctx context.Context, jobs []NewJob) (int64, error) {
	if len(jobs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := s.driver.rebind(fmt.Sprintf(
		`INSERT INTO %s (stage, priority, external_key, filename, config, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (external_key) DO UPDATE SET priority = excluded.priority`,
		s.table,
	))
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := s.driver.timeValue(time.Now().UTC())
	var affected int64
	for _, job := range jobs {
		if _, ok := stageSet[job.Stage]; !ok {
			return 0, fmt.Errorf("unknown stage %q for key %q", job.Stage, job.ExternalKey)
		}
		if job.ExternalKey == "" {
			return 0, fmt.Errorf("job %q has no external key", job.Filename)
		}
		res, err := stmt.ExecContext(ctx,
			job.Stage,
			job.Priority,
			job.ExternalKey,
			job.Filename,
			job.ConfigJSON,
			StatusPending,
			now,
			now,
		)
		if err != nil {
			return 0, fmt.Errorf("upsert key %q: %w", job.ExternalKey, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		affected += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	return affected, nil
}

// GetByID fetches a job by identifier; nil when no such row exists.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		s.driver.rebind(fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, jobColumns, s.table)),
		id,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// GetByExternalKey fetches a job by its unique source identifier.
func (s *Store) GetByExternalKey(ctx context.Context, key string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		s.driver.rebind(fmt.Sprintf(`SELECT %s FROM %s WHERE external_key = ?`, jobColumns, s.table)),
		key,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job by key: %w", err)
	}
	return job, nil
}

// ExternalKeys returns the set of source identifiers already known to the
// store. Ingestion dedupes new inventories against it.
func (s *Store) ExternalKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT external_key FROM %s WHERE external_key IS NOT NULL`, s.table),
	)
	if err != nil {
		return nil, fmt.Errorf("query external keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys[key] = struct{}{}
	}
	return keys, rows.Err()
}

// List returns jobs filtered by status set (or all jobs when no status is
// provided), ordered by priority then recency.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := fmt.Sprintf(`SELECT %s FROM %s`, jobColumns, s.table)
	orderClause := ` ORDER BY priority DESC, updated_at DESC`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := s.driver.rebind(baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause)
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
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

// Stats returns a count of jobs grouped by stage and status.
func (s *Store) Stats(ctx context.Context) (map[Stage]map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT stage, status, COUNT(1) FROM %s GROUP BY stage, status`, s.table),
	)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Stage]map[Status]int)
	for rows.Next() {
		var stage Stage
		var status Status
		var count int
		if err := rows.Scan(&stage, &status, &count); err != nil {
			return nil, err
		}
		if stats[stage] == nil {
			stats[stage] = make(map[Status]int)
		}
		stats[stage][status] = count
	}
	return stats, rows.Err()
}

// Remove deletes a job by identifier. Jobs are normally retained forever;
// this exists for operator cleanup only.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		s.driver.rebind(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.table)),
		id,
	)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearDone removes only completed jobs.
func (s *Store) ClearDone(ctx context.Context) (int64, error) {
	return s.clearStatus(ctx, StatusDone)
}

// ClearFailed removes only failed jobs.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	return s.clearStatus(ctx, StatusFailed)
}

func (s *Store) clearStatus(ctx context.Context, status Status) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		s.driver.rebind(fmt.Sprintf(`DELETE FROM %s WHERE status = ?`, s.table)),
		status,
	)
	if err != nil {
		return 0, fmt.Errorf("clear %s jobs: %w", status, err)
	}
	return res.RowsAffected()
}
