package claims

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository persists claims together with their service lines.
type Repository interface {
	DuplicateFinder
	// Create inserts a new claim and its lines in one transaction.
	Create(ctx context.Context, c *Claim) error
	// GetByID loads a claim scoped to an organization. Returns ErrNotFound
	// when no row matches.
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*Claim, error)
	// Save writes the claim and every line in one transaction. It fails with
	// ErrConcurrentModification when c.VersionID is stale and increments
	// c.VersionID on success.
	Save(ctx context.Context, c *Claim) error
}

// ClaimNumberGenerator hands out the next claim number for an organization
// and year. Implementations must serialize concurrent callers.
type ClaimNumberGenerator interface {
	NextClaimNumber(ctx context.Context, orgID uuid.UUID, year int) (string, error)
}

// CheckNumberGenerator hands out the next check number for an organization
// and check date. A number once returned is never handed out again, even when
// the payment it was meant for fails.
type CheckNumberGenerator interface {
	NextCheckNumber(ctx context.Context, orgID uuid.UUID, checkDate time.Time) (string, error)
}

// NumberGenerator allocates both claim and check numbers.
type NumberGenerator interface {
	ClaimNumberGenerator
	CheckNumberGenerator
}

// FormatClaimNumber renders CLM-<year>-<6-digit sequence>.
func FormatClaimNumber(year int, seq int64) string {
	return fmt.Sprintf("CLM-%d-%06d", year, seq)
}

// ParseClaimNumber splits a claim number into its year and sequence.
func ParseClaimNumber(s string) (year int, seq int64, err error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 || parts[0] != "CLM" || len(parts[2]) < 6 {
		return 0, 0, fmt.Errorf("malformed claim number %q", s)
	}
	if year, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, fmt.Errorf("malformed claim number year %q: %w", s, err)
	}
	if seq, err = strconv.ParseInt(parts[2], 10, 64); err != nil {
		return 0, 0, fmt.Errorf("malformed claim number sequence %q: %w", s, err)
	}
	return year, seq, nil
}
