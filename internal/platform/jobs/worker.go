package jobs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/apexhealth/claims/internal/platform/metrics"
)

// WorkerConfig controls polling and retry behaviour.
type WorkerConfig struct {
	PollInterval time.Duration
	// RateLimit caps job claims per second. Zero means unlimited.
	RateLimit      float64
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration
	// HeartbeatInterval is how often a running job's lease is extended. Keep
	// it well under the store lease.
	HeartbeatInterval time.Duration
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval:      time.Second,
		RateLimit:         50,
		BaseRetryDelay:    2 * time.Second,
		MaxRetryDelay:     5 * time.Minute,
		HeartbeatInterval: DefaultLease / 3,
	}
}

// Worker polls a Store and dispatches jobs to handlers by kind.
type Worker struct {
	store    Store
	handlers map[string]Handler
	cfg      WorkerConfig
	limiter  *rate.Limiter
	now      func() time.Time
	logger   zerolog.Logger
}

func NewWorker(store Store, cfg WorkerConfig, logger zerolog.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BaseRetryDelay <= 0 {
		cfg.BaseRetryDelay = 2 * time.Second
	}
	if cfg.MaxRetryDelay < cfg.BaseRetryDelay {
		cfg.MaxRetryDelay = cfg.BaseRetryDelay
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultLease / 3
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	return &Worker{
		store:    store,
		handlers: map[string]Handler{},
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, 1),
		now:      time.Now,
		logger:   logger.With().Str("component", "jobs").Logger(),
	}
}

// Handle registers h for kind, replacing any earlier registration.
func (w *Worker) Handle(kind string, h Handler) {
	w.handlers[kind] = h
}

// Kinds lists registered job kinds in sorted order.
func (w *Worker) Kinds() []string {
	out := make([]string, 0, len(w.handlers))
	for k := range w.handlers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Strs("kinds", w.Kinds()).Dur("poll_interval", w.cfg.PollInterval).Msg("job worker started")
	defer w.logger.Info().Msg("job worker stopped")

	for {
		if err := w.limiter.Wait(ctx); err != nil {
			return nil
		}
		processed, err := w.ProcessNext(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("job poll failed")
		}
		if processed && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// RetryDelay is the exponential backoff before attempt+1, given that attempt
// attempts have already run.
func (w *Worker) RetryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.BaseRetryDelay
	b.MaxInterval = w.cfg.MaxRetryDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// ProcessNext claims and runs at most one job. It reports whether a job was
// claimed; the error covers store failures only, never handler failures.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNext(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	// Bookkeeping outlives shutdown so an interrupted job is requeued.
	bctx := context.WithoutCancel(ctx)
	start := w.now()
	log := w.logger.With().Str("job_id", job.ID.String()).Str("kind", job.Kind).Int("attempt", job.Attempts).Logger()

	h, ok := w.handlers[job.Kind]
	if !ok {
		msg := fmt.Sprintf("no handler registered for job kind %q", job.Kind)
		log.Error().Msg(msg)
		metrics.RecordJob(job.Kind, "failed", 0)
		return true, w.store.Fail(bctx, job.ID, msg, nil)
	}

	progress := func(pct int) {
		if err := w.store.SetProgress(bctx, job.ID, pct); err != nil {
			log.Warn().Err(err).Int("progress", pct).Msg("record job progress failed")
		}
	}

	stop := w.heartbeat(bctx, job.ID, log)
	result, herr := w.invoke(ctx, h, job, progress)
	stop()
	elapsed := w.now().Sub(start)
	if herr == nil {
		metrics.RecordJob(job.Kind, "completed", elapsed)
		log.Info().Dur("elapsed", elapsed).Msg("job completed")
		return true, w.store.Complete(bctx, job.ID, result)
	}

	maxAttempts := job.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	if IsPermanent(herr) || job.Attempts >= maxAttempts {
		metrics.RecordJob(job.Kind, "failed", elapsed)
		log.Error().Err(herr).Bool("permanent", IsPermanent(herr)).Msg("job failed")
		return true, w.store.Fail(bctx, job.ID, herr.Error(), nil)
	}

	retryAt := w.now().Add(w.RetryDelay(job.Attempts))
	metrics.RecordJob(job.Kind, "retried", elapsed)
	log.Error().Err(herr).Time("retry_at", retryAt).Msg("job failed; will retry")
	return true, w.store.Fail(bctx, job.ID, herr.Error(), &retryAt)
}

// heartbeat keeps the job's lease alive until the returned stop is called.
func (w *Worker) heartbeat(ctx context.Context, id uuid.UUID, log zerolog.Logger) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(w.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := w.store.Heartbeat(ctx, id); err != nil {
					log.Warn().Err(err).Msg("extend job lease failed")
				}
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

func (w *Worker) invoke(ctx context.Context, h Handler, job *Job, progress func(int)) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordPanic("job:" + job.Kind)
			err = Permanent(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return h(ctx, job, progress)
}
