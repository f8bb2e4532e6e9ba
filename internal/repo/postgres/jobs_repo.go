package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/evanio/evanio/internal/domain/job"
	"github.com/evanio/evanio/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrJobNotFailed = errors.New("job is not failed")

const jobColumns = `id, type, payload, status,
       attempts, max_attempts,
       run_at, locked_at, locked_by,
       last_error, idempotency_key, user_id, created_at, updated_at`

type JobsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewJobsRepo(pool *pgxpool.Pool, prom *observability.Prom) *JobsRepo {
	return &JobsRepo{pool: pool, prom: prom}
}

func (r *JobsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *JobsRepo) Create(ctx context.Context, req job.CreateRequest) (job.Job, error) {
	j := job.New(req)
	op := "jobs.create"

	err := r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
		INSERT INTO jobs (
			id, type, payload, status,
			attempts, max_attempts, run_at,
			locked_at, locked_by, last_error,
			idempotency_key, user_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10,
			$11, $12, $13, $14
		)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, j.ID, j.Type, j.Payload, string(j.Status),
			j.Attempts, j.MaxAttempts, j.RunAt,
			j.LockedAt, j.LockedBy, j.LastError,
			j.IdempotencyKey, j.UserID, j.CreatedAt, j.UpdatedAt)

		return err
	})

	if err != nil {
		return job.Job{}, err
	}

	return j, nil
}

// ClaimNext claims one runnable job with a single SKIP LOCKED
// statement so concurrent workers never pick the same row.
func (r *JobsRepo) ClaimNext(ctx context.Context, workerID string) (job.Job, error) {
	var j job.Job
	var status string

	op := "jobs.claim_next"

	err := r.observe(op, func() error {
		return r.pool.QueryRow(ctx, `
		WITH next AS (
			SELECT id
			FROM jobs
			WHERE status = 'pending'
			  AND run_at <= NOW()
			  AND attempts < max_attempts
			ORDER BY run_at ASC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE jobs
		SET status = 'processing',
		    locked_at = NOW(),
		    locked_by = $1,
		    updated_at = NOW()
		WHERE id = (SELECT id FROM next)
		RETURNING `+jobColumns+`
	`, workerID).Scan(
			&j.ID, &j.Type, &j.Payload, &status,
			&j.Attempts, &j.MaxAttempts,
			&j.RunAt, &j.LockedAt, &j.LockedBy,
			&j.LastError, &j.IdempotencyKey, &j.UserID, &j.CreatedAt, &j.UpdatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return job.Job{}, job.ErrJobNotFound // no job available
		}
		return job.Job{}, err
	}

	j.Status = job.Status(status)
	return j, nil
}

func (r *JobsRepo) MarkDone(ctx context.Context, id string) error {
	return r.mutateOne(ctx, "jobs.mark_done", `
		UPDATE jobs
		SET status = 'done',
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`, id)
}

func (r *JobsRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	return r.mutateOne(ctx, "jobs.mark_failed", `
		UPDATE jobs
		SET status = 'failed',
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = $2,
		    updated_at = NOW()
		WHERE id = $1
	`, id, errMsg)
}

// Reschedule requeues a job for a retry with backoff.
func (r *JobsRepo) Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	return r.mutateOne(ctx, "jobs.reschedule", `
		UPDATE jobs
		SET status = 'pending',
		    attempts = attempts + 1,
		    run_at = $2,
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = $3,
		    updated_at = NOW()
		WHERE id = $1
	`, id, runAt, errMsg)
}

// Retry moves a failed job back to pending with a fresh attempt budget.
func (r *JobsRepo) Retry(ctx context.Context, id string) error {
	var tag pgconn.CommandTag
	var err error

	op := "jobs.retry"

	err = r.observe(op, func() error {
		tag, err = r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'pending',
		    attempts = 0,
		    run_at = NOW(),
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = NULL,
		    updated_at = NOW()
		WHERE id = $1
		  AND status = 'failed'
	`, id)
		return err
	})

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		// distinguish missing from not-failed so the admin API can 404 vs 409
		var exists bool
		if scanErr := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, id,
		).Scan(&exists); scanErr != nil {
			return scanErr
		}

		if !exists {
			return job.ErrJobNotFound
		}
		return ErrJobNotFailed
	}

	return nil
}

// List returns recent jobs, optionally filtered by status.
func (r *JobsRepo) List(ctx context.Context, status *string, limit int) ([]job.Job, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	op := "jobs.list"

	err = r.observe(op, func() error {
		if status != nil {
			rows, err = r.pool.Query(ctx, `
			SELECT `+jobColumns+`
			FROM jobs
			WHERE status = $1
			ORDER BY updated_at DESC
			LIMIT $2
		`, *status, limit)
		} else {
			rows, err = r.pool.Query(ctx, `
			SELECT `+jobColumns+`
			FROM jobs
			ORDER BY updated_at DESC
			LIMIT $1
		`, limit)
		}
		return err
	})

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []job.Job

	for rows.Next() {
		var j job.Job
		var st string

		err = rows.Scan(
			&j.ID, &j.Type, &j.Payload, &st,
			&j.Attempts, &j.MaxAttempts,
			&j.RunAt, &j.LockedAt, &j.LockedBy,
			&j.LastError, &j.IdempotencyKey, &j.UserID, &j.CreatedAt, &j.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		j.Status = job.Status(st)
		out = append(out, j)
	}

	return out, rows.Err()
}

// RequeueStaleProcessing unlocks jobs whose worker disappeared mid-run.
func (r *JobsRepo) RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error) {
	var tag pgconn.CommandTag
	var err error

	op := "jobs.requeue_stale"

	err = r.observe(op, func() error {
		tag, err = r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'pending',
		    locked_at = NULL,
		    locked_by = NULL,
		    updated_at = NOW()
		WHERE status = 'processing'
		  AND locked_at < NOW() - $1::interval
	`, lockTTL.String())
		return err
	})

	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

func (r *JobsRepo) mutateOne(ctx context.Context, op, query string, args ...any) error {
	var tag pgconn.CommandTag
	var err error

	err = r.observe(op, func() error {
		tag, err = r.pool.Exec(ctx, query, args...)
		return err
	})

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return job.ErrJobNotFound
	}
	return nil
}
