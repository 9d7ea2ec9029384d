package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job maps to the claim_jobs table.
type Job struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	Kind        string          `db:"kind" json:"kind"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	Status      Status          `db:"status" json:"status"`
	Priority    int             `db:"priority" json:"priority"`
	Attempts    int             `db:"attempts" json:"attempts"`
	MaxAttempts int             `db:"max_attempts" json:"max_attempts"`
	RunAt       time.Time       `db:"run_at" json:"run_at"`
	LockedUntil *time.Time      `db:"locked_until" json:"locked_until,omitempty"`
	Progress    int             `db:"progress" json:"progress"`
	Result      json.RawMessage `db:"result" json:"result,omitempty"`
	LastError   *string         `db:"last_error" json:"last_error,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// EnqueueOptions tune a single enqueue. MaxAttempts of zero uses the store
// default.
type EnqueueOptions struct {
	Delay time.Duration
	// Priority orders runnable jobs ascending: 1 runs before 2, and the
	// default 0 runs before both.
	Priority    int
	MaxAttempts int
}

// Store is the durable queue.
type Store interface {
	Enqueue(ctx context.Context, kind string, payload any, opts EnqueueOptions) (uuid.UUID, error)
	// ClaimNext locks the next runnable job, marks it running under a lease
	// and increments its attempt count. A running job whose lease has expired
	// is runnable again while it has attempts left. It returns nil, nil when
	// nothing is runnable.
	ClaimNext(ctx context.Context) (*Job, error)
	// Heartbeat extends the lease of a running job.
	Heartbeat(ctx context.Context, id uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID, result any) error
	// Fail records errMsg. A nil retryAt fails the job for good; otherwise it
	// is requeued to run at retryAt.
	Fail(ctx context.Context, id uuid.UUID, errMsg string, retryAt *time.Time) error
	SetProgress(ctx context.Context, id uuid.UUID, pct int) error
}

// Handler processes one job. progress reports a percentage in [0,100].
// Returning an error wrapped with Permanent skips the remaining retries.
type Handler func(ctx context.Context, job *Job, progress func(pct int)) (any, error)

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}

// DecodePayload unmarshals a job payload. A malformed payload is permanent.
func DecodePayload[T any](j *Job) (T, error) {
	var v T
	if err := json.Unmarshal(j.Payload, &v); err != nil {
		return v, Permanent(fmt.Errorf("decode %s payload: %w", j.Kind, err))
	}
	return v, nil
}
