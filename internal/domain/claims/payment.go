package claims

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var paymentActor = Actor{UserID: "system", Name: "Payment Processor"}

// Pay marks an approved claim as paid under the given check.
func (s *Service) Pay(ctx context.Context, orgID, id uuid.UUID, checkDate time.Time, checkNumber string, actor Actor) (*Claim, error) {
	checkNumber = strings.TrimSpace(checkNumber)
	if checkNumber == "" {
		return nil, &ValidationError{Reasons: []string{"check number is required"}}
	}

	c, err := s.load(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(OpPay, c); err != nil {
		return nil, err
	}

	paid := DateOf(checkDate)
	c.Status = StatusPaid
	c.PaidDate = &paid
	c.CheckNumber = &checkNumber
	c.Notes = c.Notes.Append(s.newNote(actor, NoteSystem,
		fmt.Sprintf("Payment issued. Check #%s, amount: $%.2f", checkNumber, c.TotalPaidAmount)))

	if err := s.save(ctx, OpPay, c); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("claim_number", c.ClaimNumber).
		Str("check_number", checkNumber).
		Float64("amount", c.TotalPaidAmount).
		Msg("claim paid")
	return c, nil
}

// FormatCheckNumber renders CHK-<yyyymmdd>-<5-digit sequence>.
func FormatCheckNumber(checkDate time.Time, seq int) string {
	return fmt.Sprintf("CHK-%s-%05d", checkDate.Format("20060102"), seq)
}

// NextCheckNumber allocates a check number that has never been issued for the
// organization on checkDate.
func (s *Service) NextCheckNumber(ctx context.Context, orgID uuid.UUID, checkDate time.Time) (string, error) {
	number, err := s.numbers.NextCheckNumber(ctx, orgID, checkDate)
	if err != nil {
		return "", persistenceErr("allocate check number", err)
	}
	return number, nil
}

// PaymentBatchResult summarizes a payment run.
type PaymentBatchResult struct {
	Processed    int               `json:"processed"`
	TotalPaid    float64           `json:"totalPaid"`
	CheckNumbers []string          `json:"checkNumbers"`
	Skipped      int               `json:"skipped"`
	Failures     []BatchItemResult `json:"failures,omitempty"`
}

// RunPaymentBatch pays every approved claim among ids in order. Claims in any
// other status are skipped. Check numbers are allocated only for approved
// claims and continue the organization's sequence for checkDate, so a rerun
// after an interrupted batch never reissues a number.
func (s *Service) RunPaymentBatch(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID, checkDate time.Time, initiatedBy string, progress ProgressFunc) (*PaymentBatchResult, error) {
	res := &PaymentBatchResult{CheckNumbers: []string{}}
	actor := paymentActor
	if initiatedBy != "" {
		actor.UserID = initiatedBy
	}

	s.logger.Info().Int("claims", len(ids)).Time("check_date", checkDate).Msg("payment batch started")
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		c, err := s.load(ctx, orgID, id)
		switch {
		case err != nil:
			res.Failures = append(res.Failures, BatchItemResult{ClaimID: id, Status: "error", Error: err.Error()})
		case c.Status != StatusApproved:
			res.Skipped++
		default:
			checkNumber, err := s.NextCheckNumber(ctx, orgID, checkDate)
			if err != nil {
				res.Failures = append(res.Failures, BatchItemResult{ClaimID: id, Status: "error", Error: err.Error()})
				break
			}
			paid, err := s.Pay(ctx, orgID, id, checkDate, checkNumber, actor)
			if err != nil {
				s.logger.Error().Err(err).Str("claim_number", c.ClaimNumber).Msg("payment failed")
				res.Failures = append(res.Failures, BatchItemResult{ClaimID: id, Status: "error", Error: err.Error()})
				break
			}
			res.Processed++
			res.TotalPaid = round2(res.TotalPaid + paid.TotalPaidAmount)
			res.CheckNumbers = append(res.CheckNumbers, checkNumber)
		}

		if progress != nil {
			progress(percent(i+1, len(ids)))
		}
	}

	s.logger.Info().
		Int("processed", res.Processed).
		Float64("total_paid", res.TotalPaid).
		Msg("payment batch complete")
	return res, nil
}
