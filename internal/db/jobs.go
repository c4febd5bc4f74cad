package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"escalation-service/internal/queue"
)

// The jobs table is the durable backing of the queue. Delays live in run_at,
// not in process memory, so scheduled step advances survive restarts.

// Enqueue inserts a pending job.
func (d *DB) Enqueue(ctx context.Context, job *queue.Job) error {
	query := `
	INSERT INTO jobs (
		id, lane, kind, payload, priority, run_at,
		attempts, max_attempts, last_error, status, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := d.Pool.Exec(ctx, query,
		job.ID, string(job.Lane), job.Kind, []byte(job.Payload), job.Priority, job.RunAt,
		job.Attempts, job.MaxAttempts, job.LastError, job.Status, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Claim atomically takes the highest-priority due job in a lane. SKIP LOCKED
// keeps concurrent workers from claiming the same row.
func (d *DB) Claim(ctx context.Context, lane queue.Lane, now time.Time) (*queue.Job, error) {
	query := `
	UPDATE jobs SET status = 'running'
	WHERE id = (
		SELECT id FROM jobs
		WHERE lane = $1 AND status = 'pending' AND run_at <= $2
		ORDER BY priority, run_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	)
	RETURNING id, lane, kind, payload, priority, run_at,
	          attempts, max_attempts, last_error, status, created_at`

	var j queue.Job
	var laneStr string
	err := d.Pool.QueryRow(ctx, query, string(lane), now).Scan(
		&j.ID, &laneStr, &j.Kind, &j.Payload, &j.Priority, &j.RunAt,
		&j.Attempts, &j.MaxAttempts, &j.LastError, &j.Status, &j.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim job on lane %s: %w", lane, err)
	}
	j.Lane = queue.Lane(laneStr)
	return &j, nil
}

// MarkDone finishes a job.
func (d *DB) MarkDone(ctx context.Context, id string) error {
	_, err := d.Pool.Exec(ctx, `UPDATE jobs SET status = 'done' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark job %s done: %w", id, err)
	}
	return nil
}

// Reschedule returns a failed job to pending with a new run time.
func (d *DB) Reschedule(ctx context.Context, id string, runAt time.Time, attempts int, lastError string) error {
	query := `
	UPDATE jobs
	SET status = 'pending', run_at = $2, attempts = $3, last_error = $4
	WHERE id = $1`
	_, err := d.Pool.Exec(ctx, query, id, runAt, attempts, lastError)
	if err != nil {
		return fmt.Errorf("failed to reschedule job %s: %w", id, err)
	}
	return nil
}

// MarkDead dead-letters a job that exhausted its attempts.
func (d *DB) MarkDead(ctx context.Context, id string, lastError string) error {
	_, err := d.Pool.Exec(ctx, `UPDATE jobs SET status = 'dead', last_error = $2 WHERE id = $1`, id, lastError)
	if err != nil {
		return fmt.Errorf("failed to dead-letter job %s: %w", id, err)
	}
	return nil
}

// Stats counts jobs per lane and status.
func (d *DB) Stats(ctx context.Context) (map[queue.Lane]queue.LaneStats, error) {
	rows, err := d.Pool.Query(ctx, `SELECT lane, status, COUNT(*) FROM jobs GROUP BY lane, status`)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}
	defer rows.Close()

	out := map[queue.Lane]queue.LaneStats{queue.LaneIndividual: {}, queue.LaneBulk: {}}
	for rows.Next() {
		var lane, status string
		var count int
		if err := rows.Scan(&lane, &status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan queue stats: %w", err)
		}
		s := out[queue.Lane(lane)]
		switch status {
		case queue.StatusPending:
			s.Waiting = count
		case queue.StatusRunning:
			s.Active = count
		case queue.StatusDone:
			s.Completed = count
		case queue.StatusDead:
			s.Dead = count
		}
		out[queue.Lane(lane)] = s
	}
	return out, nil
}

// RecoverStale requeues jobs left in running state by a crashed worker.
// Called once at boot before the workers start.
func (d *DB) RecoverStale(ctx context.Context, olderThan time.Time) (int, error) {
	query := `
	UPDATE jobs SET status = 'pending'
	WHERE status = 'running' AND created_at < $1`
	tag, err := d.Pool.Exec(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to recover stale jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
