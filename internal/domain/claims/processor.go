package claims

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/apexhealth/claims/internal/platform/jobs"
)

// BatchAdjudicatePayload is the body of a batch-adjudicate job.
type BatchAdjudicatePayload struct {
	ClaimIDs       []uuid.UUID `json:"claimIds"`
	OrganizationID uuid.UUID   `json:"organizationId"`
	InitiatedBy    string      `json:"initiatedBy,omitempty"`
}

// PaymentBatchPayload is the body of a payment-batch job. CheckDate is
// YYYY-MM-DD.
type PaymentBatchPayload struct {
	ClaimIDs       []uuid.UUID `json:"claimIds"`
	OrganizationID uuid.UUID   `json:"organizationId"`
	CheckDate      string      `json:"checkDate"`
	InitiatedBy    string      `json:"initiatedBy,omitempty"`
}

// Processor adapts the service and batch runner to queue handlers.
type Processor struct {
	svc   *Service
	batch *BatchRunner
}

func NewProcessor(svc *Service, batch *BatchRunner) *Processor {
	return &Processor{svc: svc, batch: batch}
}

// Register installs a handler for every claims job kind.
func (p *Processor) Register(w *jobs.Worker) {
	w.Handle(JobValidateClaim, p.handleValidate)
	w.Handle(JobBatchAdjudicate, p.handleBatchAdjudicate)
	w.Handle(JobPaymentBatch, p.handlePaymentBatch)
}

// retryable reports whether a failed claim operation could succeed on a
// later attempt. Only storage failures qualify.
func retryable(err error) error {
	if errors.Is(err, ErrPersistence) {
		return err
	}
	return jobs.Permanent(err)
}

func (p *Processor) handleValidate(ctx context.Context, j *jobs.Job, progress func(int)) (any, error) {
	payload, err := jobs.DecodePayload[ValidateClaimPayload](j)
	if err != nil {
		return nil, err
	}
	c, err := p.svc.Validate(ctx, payload.OrganizationID, payload.ClaimID)
	if errors.Is(err, ErrInvalidTransition) {
		// Already adjudicated or decided by hand before the job ran.
		progress(100)
		return map[string]any{"claimId": payload.ClaimID, "skipped": true}, nil
	}
	if err != nil {
		return nil, retryable(err)
	}
	progress(100)
	return map[string]any{"claimId": c.ID, "status": c.Status}, nil
}

func (p *Processor) handleBatchAdjudicate(ctx context.Context, j *jobs.Job, progress func(int)) (any, error) {
	payload, err := jobs.DecodePayload[BatchAdjudicatePayload](j)
	if err != nil {
		return nil, err
	}
	if len(payload.ClaimIDs) == 0 {
		return nil, jobs.Permanent(errors.New("batch-adjudicate job has no claim ids"))
	}
	res := p.batch.Run(ctx, payload.OrganizationID, payload.ClaimIDs, ProgressFunc(progress))
	return res, nil
}

func (p *Processor) handlePaymentBatch(ctx context.Context, j *jobs.Job, progress func(int)) (any, error) {
	payload, err := jobs.DecodePayload[PaymentBatchPayload](j)
	if err != nil {
		return nil, err
	}
	checkDate, err := time.Parse(dateLayout, payload.CheckDate)
	if err != nil {
		return nil, jobs.Permanent(fmt.Errorf("invalid checkDate %q: %w", payload.CheckDate, err))
	}
	return p.svc.RunPaymentBatch(ctx, payload.OrganizationID, payload.ClaimIDs, checkDate, payload.InitiatedBy, ProgressFunc(progress))
}
