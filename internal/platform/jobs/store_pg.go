package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/apexhealth/claims/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// DefaultMaxAttempts applies when neither the store nor the enqueue sets one.
const DefaultMaxAttempts = 3

// DefaultLease is how long a claimed job stays reserved without a heartbeat.
const DefaultLease = time.Minute

type storePG struct {
	pool        *pgxpool.Pool
	maxAttempts int
	lease       time.Duration
}

// StoreOption customizes NewStorePG.
type StoreOption func(*storePG)

// WithLease sets how long a claimed job stays reserved. A worker that dies
// mid-job releases it once the lease runs out.
func WithLease(d time.Duration) StoreOption {
	return func(s *storePG) {
		if d > 0 {
			s.lease = d
		}
	}
}

// NewStorePG returns a Store over the claim_jobs table.
func NewStorePG(pool *pgxpool.Pool, maxAttempts int, opts ...StoreOption) Store {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	s := &storePG{pool: pool, maxAttempts: maxAttempts, lease: DefaultLease}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *storePG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

const jobCols = `id, kind, payload, status, priority, attempts, max_attempts,
	run_at, locked_until, progress, result, last_error, created_at, updated_at`

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.Kind, &j.Payload, &j.Status, &j.Priority, &j.Attempts, &j.MaxAttempts,
		&j.RunAt, &j.LockedUntil, &j.Progress, &j.Result, &j.LastError, &j.CreatedAt, &j.UpdatedAt)
	return &j, err
}

func (s *storePG) Enqueue(ctx context.Context, kind string, payload any, opts EnqueueOptions) (uuid.UUID, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = s.maxAttempts
	}

	id := uuid.New()
	_, err = s.conn(ctx).Exec(ctx, `
		INSERT INTO claim_jobs (id, kind, payload, status, priority, max_attempts, run_at)
		VALUES ($1, $2, $3, 'queued', $4, $5, NOW() + make_interval(secs => $6))`,
		id, kind, body, opts.Priority, maxAttempts, opts.Delay.Seconds())
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueue %s: %w", kind, err)
	}
	return id, nil
}

func (s *storePG) ClaimNext(ctx context.Context) (*Job, error) {
	// Abandoned jobs that already used their last attempt fail here.
	_, err := s.conn(ctx).Exec(ctx, `
		UPDATE claim_jobs
		SET status = 'failed', locked_until = NULL, updated_at = NOW(),
			last_error = COALESCE(last_error || '; ', '') || 'lease expired on final attempt'
		WHERE status = 'running' AND locked_until < NOW() AND attempts >= max_attempts`)
	if err != nil {
		return nil, fmt.Errorf("expire abandoned jobs: %w", err)
	}

	j, err := scanJob(s.conn(ctx).QueryRow(ctx, `
		UPDATE claim_jobs
		SET status = 'running', attempts = attempts + 1,
			locked_until = NOW() + make_interval(secs => $1), updated_at = NOW()
		WHERE id = (
			SELECT id FROM claim_jobs
			WHERE (status = 'queued' AND run_at <= NOW())
			   OR (status = 'running' AND locked_until < NOW() AND attempts < max_attempts)
			ORDER BY priority, run_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobCols, s.lease.Seconds()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return j, nil
}

func (s *storePG) Complete(ctx context.Context, id uuid.UUID, result any) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode job result: %w", err)
	}
	_, err = s.conn(ctx).Exec(ctx, `
		UPDATE claim_jobs SET status = 'completed', progress = 100, result = $2, last_error = NULL,
			locked_until = NULL, updated_at = NOW()
		WHERE id = $1`, id, body)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	return nil
}

func (s *storePG) Fail(ctx context.Context, id uuid.UUID, errMsg string, retryAt *time.Time) error {
	var err error
	if retryAt == nil {
		_, err = s.conn(ctx).Exec(ctx, `
			UPDATE claim_jobs SET status = 'failed', last_error = $2, locked_until = NULL, updated_at = NOW()
			WHERE id = $1`, id, errMsg)
	} else {
		_, err = s.conn(ctx).Exec(ctx, `
			UPDATE claim_jobs SET status = 'queued', last_error = $2, run_at = $3, locked_until = NULL, updated_at = NOW()
			WHERE id = $1`, id, errMsg, *retryAt)
	}
	if err != nil {
		return fmt.Errorf("fail job %s: %w", id, err)
	}
	return nil
}

func (s *storePG) Heartbeat(ctx context.Context, id uuid.UUID) error {
	_, err := s.conn(ctx).Exec(ctx, `
		UPDATE claim_jobs SET locked_until = NOW() + make_interval(secs => $2), updated_at = NOW()
		WHERE id = $1 AND status = 'running'`, id, s.lease.Seconds())
	if err != nil {
		return fmt.Errorf("heartbeat job %s: %w", id, err)
	}
	return nil
}

func (s *storePG) SetProgress(ctx context.Context, id uuid.UUID, pct int) error {
	// GREATEST keeps progress monotonic if updates arrive out of order.
	_, err := s.conn(ctx).Exec(ctx, `
		UPDATE claim_jobs SET progress = GREATEST(progress, $2), updated_at = NOW()
		WHERE id = $1`, id, pct)
	if err != nil {
		return fmt.Errorf("set progress on job %s: %w", id, err)
	}
	return nil
}
