package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnqueueRetry queues a retry for an asset. A pending task already queued
// for the asset wins and nothing changes; a running task is replaced by a
// fresh pending one. It reports whether a new task was written.
func (d *Database) EnqueueRetry(ctx context.Context, assetID int64, attempt int, dueAt time.Time) (bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("enqueue_retry", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	queued := false
	err = d.withTx(ctx, func(tx *sql.Tx) error {
		var state string
		err := tx.QueryRowContext(ctx, `SELECT state FROM retry_tasks WHERE asset_id = ?`, assetID).Scan(&state)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return err
		case state == TaskPending:
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO retry_tasks (id, asset_id, attempt, due_at, state, leased_at)
			VALUES (?, ?, ?, ?, 'pending', 0)
			ON CONFLICT(asset_id) DO UPDATE SET
				id = excluded.id,
				attempt = excluded.attempt,
				due_at = excluded.due_at,
				state = 'pending',
				leased_at = 0,
				created_at = strftime('%s', 'now')
		`, uuid.NewString(), assetID, attempt, dueAt.Unix())
		if err != nil {
			return err
		}
		queued = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to enqueue retry for asset %d: %w", assetID, err)
	}
	return queued, nil
}

// CancelRetry removes the pending task for an asset. A running task is left
// alone so its worker can finish; it reports whether a row was removed.
func (d *Database) CancelRetry(ctx context.Context, assetID int64) (bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("cancel_retry", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `
		DELETE FROM retry_tasks WHERE asset_id = ? AND state = 'pending'
	`, assetID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetRetryTask returns the queued task for an asset or ErrNotFound.
func (d *Database) GetRetryTask(ctx context.Context, assetID int64) (RetryTask, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_retry_task", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, `
		SELECT id, asset_id, attempt, due_at, state, leased_at, created_at
		FROM retry_tasks WHERE asset_id = ?
	`, assetID)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = fmt.Errorf("retry task for asset %d: %w", assetID, ErrNotFound)
	}
	return task, err
}

// ClaimDueRetries marks up to limit pending tasks due at or before now as
// running and returns them, oldest due first.
func (d *Database) ClaimDueRetries(ctx context.Context, now time.Time, limit int) ([]RetryTask, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("claim_due_retries", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var tasks []RetryTask
	err = d.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, asset_id, attempt, due_at, state, leased_at, created_at
			FROM retry_tasks
			WHERE state = 'pending' AND due_at <= ?
			ORDER BY due_at, asset_id
			LIMIT ?
		`, now.Unix(), limit)
		if err != nil {
			return err
		}
		for rows.Next() {
			task, err := scanTask(rows)
			if err != nil {
				rows.Close()
				return err
			}
			tasks = append(tasks, task)
		}
		if err := errors.Join(rows.Err(), rows.Close()); err != nil {
			return err
		}

		for i := range tasks {
			if _, err := tx.ExecContext(ctx, `
				UPDATE retry_tasks SET state = 'running', leased_at = ? WHERE id = ?
			`, now.Unix(), tasks[i].ID); err != nil {
				return err
			}
			tasks[i].State = TaskRunning
			tasks[i].LeasedAt = time.Unix(now.Unix(), 0)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim retries: %w", err)
	}
	return tasks, nil
}

// CompleteRetry deletes a task by id. If the task was replaced while it ran,
// the replacement has a new id and survives.
func (d *Database) CompleteRetry(ctx context.Context, taskID string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("complete_retry", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `DELETE FROM retry_tasks WHERE id = ?`, taskID)
	return err
}

// RecoverStaleRetries returns running tasks leased before cutoff to the
// pending state so they run again.
func (d *Database) RecoverStaleRetries(ctx context.Context, cutoff time.Time) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("recover_stale_retries", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `
		UPDATE retry_tasks SET state = 'pending', leased_at = 0
		WHERE state = 'running' AND leased_at < ?
	`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountRetries returns the number of queued tasks by state.
func (d *Database) CountRetries(ctx context.Context) (map[string]int, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("count_retries", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM retry_tasks GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{TaskPending: 0, TaskRunning: 0}
	for rows.Next() {
		var state string
		var n int
		if err = rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[state] = n
	}
	err = rows.Err()
	return counts, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (RetryTask, error) {
	var t RetryTask
	var due, leased, created int64
	if err := row.Scan(&t.ID, &t.AssetID, &t.Attempt, &due, &t.State, &leased, &created); err != nil {
		return RetryTask{}, err
	}
	t.DueAt = time.Unix(due, 0)
	if leased > 0 {
		t.LeasedAt = time.Unix(leased, 0)
	}
	t.CreatedAt = time.Unix(created, 0)
	return t, nil
}
