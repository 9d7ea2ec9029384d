package claims

import (
	"context"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/apexhealth/claims/internal/platform/metrics"
)

// ProgressFunc receives a completion percentage in [0,100].
type ProgressFunc func(pct int)

func percent(done, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(100 * float64(done) / float64(total)))
}

// Adjudicator is the single-claim operation the batch runner drives.
type Adjudicator interface {
	Adjudicate(ctx context.Context, orgID, id uuid.UUID) (*Claim, error)
}

// BatchItemResult is the outcome for one claim id. Status is the claim's new
// status, or "error" with Error set.
type BatchItemResult struct {
	ClaimID uuid.UUID `json:"claimId"`
	Status  string    `json:"status"`
	Error   string    `json:"error,omitempty"`
}

// BatchResult has one entry per input id, in input order.
type BatchResult struct {
	Processed int               `json:"processed"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Results   []BatchItemResult `json:"results"`
}

// BatchRunner adjudicates lists of claims, isolating per-item failures. It
// never retries.
type BatchRunner struct {
	adj     Adjudicator
	workers int
	logger  zerolog.Logger
}

func NewBatchRunner(adj Adjudicator, workers int, logger zerolog.Logger) *BatchRunner {
	if workers < 1 {
		workers = 1
	}
	return &BatchRunner{adj: adj, workers: workers, logger: logger.With().Str("component", "batch").Logger()}
}

// Run adjudicates ids. Cancelling ctx stops new items from starting; items
// already running finish their write, and items never started are reported
// with the context error.
func (b *BatchRunner) Run(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID, progress ProgressFunc) BatchResult {
	results := make([]BatchItemResult, len(ids))
	started := make([]bool, len(ids))

	var (
		mu   sync.Mutex
		done int
	)
	finish := func() {
		mu.Lock()
		defer mu.Unlock()
		done++
		if progress != nil {
			progress(percent(done, len(ids)))
		}
	}

	runOne := func(i int) {
		// A claim write is never interrupted by batch cancellation.
		c, err := b.adj.Adjudicate(context.WithoutCancel(ctx), orgID, ids[i])
		if err != nil {
			results[i] = BatchItemResult{ClaimID: ids[i], Status: "error", Error: err.Error()}
			b.logger.Warn().Err(err).Str("claim_id", ids[i].String()).Msg("batch adjudication failed for claim")
		} else {
			results[i] = BatchItemResult{ClaimID: ids[i], Status: string(c.Status)}
		}
		finish()
	}

	if b.workers == 1 {
		for i := range ids {
			if ctx.Err() != nil {
				break
			}
			started[i] = true
			runOne(i)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(b.workers)
		for i := range ids {
			if ctx.Err() != nil {
				break
			}
			started[i] = true
			g.Go(func() error {
				runOne(i)
				return nil
			})
		}
		_ = g.Wait()
	}

	res := BatchResult{Processed: len(ids), Results: results}
	for i := range results {
		if !started[i] {
			results[i] = BatchItemResult{ClaimID: ids[i], Status: "error", Error: context.Cause(ctx).Error()}
		}
		if results[i].Status == "error" {
			res.Failed++
			metrics.RecordBatchItem("failed")
		} else {
			res.Succeeded++
			metrics.RecordBatchItem("succeeded")
		}
	}

	b.logger.Info().
		Int("processed", res.Processed).
		Int("succeeded", res.Succeeded).
		Int("failed", res.Failed).
		Msg("batch adjudication complete")
	return res
}
