package claims

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// RuleConfig parameterizes the adjudication rules.
type RuleConfig struct {
	TimelyFilingDays     int
	TimelyFilingWarnDays int
	HighDollarThreshold  float64
	ReviewThreshold      float64
	// PriorAuthCodes lists procedure codes that require prior authorization.
	PriorAuthCodes map[string]bool
	// Incompatible maps a primary diagnosis to procedure codes it blocks.
	Incompatible map[string][]string
}

func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		TimelyFilingDays:     365,
		TimelyFilingWarnDays: 180,
		HighDollarThreshold:  100000,
		ReviewThreshold:      500000,
		PriorAuthCodes: map[string]bool{
			"27447": true, "43239": true, "70553": true, "27130": true, "63030": true,
		},
		Incompatible: map[string][]string{
			// Routine exam billed with emergency department visit codes.
			"Z00.00": {"99281", "99282", "99283", "99284", "99285"},
		},
	}
}

// DuplicateCriteria identifies claims that bill the same encounter.
type DuplicateCriteria struct {
	OrganizationID       uuid.UUID
	MemberID             string
	RenderingProviderID  string
	ServiceFromDate      time.Time
	PrimaryDiagnosisCode string
	ExcludeClaimID       uuid.UUID
}

// DuplicateFinder is the read-only lookup used by the duplicate rule. It
// returns nil, nil when no candidate exists.
type DuplicateFinder interface {
	FindDuplicateCandidate(ctx context.Context, crit DuplicateCriteria) (*Claim, error)
}

// CARC codes stamped by automatic denials.
const (
	GroupContractual     = "CO"
	ReasonTimelyFiling   = "29"
	reasonTimelyFilingTx = "The time limit for filing has expired."
)

var (
	icd10Pattern = regexp.MustCompile(`^[A-Z]\d{2}(\.\d{1,4})?$`)
	cptPattern   = regexp.MustCompile(`^\d{5}$`)
	hcpcsPattern = regexp.MustCompile(`^[A-Z]\d{4}$`)
)

// Rules evaluates a claim snapshot. Every check except the duplicate lookup
// is a pure function of the claim.
type Rules struct {
	cfg  RuleConfig
	dups DuplicateFinder
}

func NewRules(cfg RuleConfig, dups DuplicateFinder) *Rules {
	return &Rules{cfg: cfg, dups: dups}
}

// Evaluate runs every rule in order. Service line validation produces one
// verdict per line. The only error source is the duplicate lookup.
func (r *Rules) Evaluate(ctx context.Context, c *Claim) ([]Verdict, error) {
	dup, err := r.checkDuplicate(ctx, c)
	if err != nil {
		return nil, err
	}

	verdicts := make([]Verdict, 0, 7+len(c.ServiceLines))
	verdicts = append(verdicts,
		r.checkTimelyFiling(c),
		dup,
		r.checkCompatibility(c),
		r.checkEligibility(c),
		r.checkProviderNetwork(c),
	)
	for _, l := range c.ServiceLines {
		verdicts = append(verdicts, r.checkServiceLine(l))
	}
	verdicts = append(verdicts,
		r.checkChargeReasonableness(c),
		r.checkPriorAuthorization(c),
	)
	return verdicts, nil
}

func (r *Rules) checkTimelyFiling(c *Claim) Verdict {
	v := Verdict{RuleID: "TF-001", RuleName: "Timely Filing", Category: CategoryTimelyFiling}
	days := daysBetween(c.ServiceFromDate, c.ReceivedDate)

	switch {
	case days > r.cfg.TimelyFilingDays:
		v.Result = ResultFail
		v.AutoAction = ActionDeny
		v.Confidence = 0.99
		v.AdjustmentGroup = GroupContractual
		v.AdjustmentReason = ReasonTimelyFiling
		v.Message = fmt.Sprintf("Claim received %d days after service date. Timely filing limit is %d days.",
			days, r.cfg.TimelyFilingDays)
	case days > r.cfg.TimelyFilingWarnDays:
		v.Result = ResultWarning
		v.Confidence = 0.85
		v.Message = fmt.Sprintf("Claim received %d days after service date. Approaching timely filing limit.", days)
	default:
		v.Result = ResultPass
		v.Confidence = 1.0
		v.Message = fmt.Sprintf("Claim received within timely filing limit (%d days).", days)
	}
	return v
}

func (r *Rules) checkDuplicate(ctx context.Context, c *Claim) (Verdict, error) {
	v := Verdict{RuleID: "DUP-001", RuleName: "Duplicate Claim Check", Category: CategoryDuplicate}
	if r.dups == nil {
		v.Result, v.Confidence, v.Message = ResultPass, 1.0, "No duplicate claims found."
		return v, nil
	}

	dup, err := r.dups.FindDuplicateCandidate(ctx, DuplicateCriteria{
		OrganizationID:       c.OrganizationID,
		MemberID:             c.MemberID,
		RenderingProviderID:  c.RenderingProviderID,
		ServiceFromDate:      DateOf(c.ServiceFromDate),
		PrimaryDiagnosisCode: c.PrimaryDiagnosisCode,
		ExcludeClaimID:       c.ID,
	})
	if err != nil {
		return Verdict{}, persistenceErr("duplicate lookup", err)
	}

	if dup != nil && dup.ID != c.ID {
		v.Result = ResultFail
		v.AutoAction = ActionReview
		v.Confidence = 0.88
		v.Message = fmt.Sprintf("Potential duplicate of claim %s. Same member, provider, date, and diagnosis.", dup.ClaimNumber)
		return v, nil
	}
	v.Result, v.Confidence, v.Message = ResultPass, 1.0, "No duplicate claims found."
	return v, nil
}

func (r *Rules) checkCompatibility(c *Claim) Verdict {
	v := Verdict{RuleID: "COMPAT-001", RuleName: "Procedure/Diagnosis Compatibility", Category: CategoryCoding}

	if !icd10Pattern.MatchString(c.PrimaryDiagnosisCode) {
		v.Result = ResultWarning
		v.AutoAction = ActionReview
		v.Confidence = 0.70
		v.Message = fmt.Sprintf("Primary diagnosis code %s may not be a valid ICD-10 format.", c.PrimaryDiagnosisCode)
		return v
	}

	blocked := r.cfg.Incompatible[c.PrimaryDiagnosisCode]
	for _, l := range c.ServiceLines {
		for _, code := range blocked {
			if l.ProcedureCode == code {
				v.Result = ResultFail
				v.AutoAction = ActionReview
				v.Confidence = 0.85
				v.Message = fmt.Sprintf("Procedure %s is incompatible with diagnosis %s.", l.ProcedureCode, c.PrimaryDiagnosisCode)
				return v
			}
		}
	}

	v.Result, v.Confidence = ResultPass, 0.90
	v.Message = "Procedure and diagnosis codes are compatible."
	return v
}

func (r *Rules) checkEligibility(c *Claim) Verdict {
	v := Verdict{RuleID: "ELIG-001", RuleName: "Member Eligibility", Category: CategoryEligibility}
	if c.MemberID == "" || c.MemberPlanID == "" {
		v.Result = ResultFail
		v.AutoAction = ActionPend
		v.Confidence = 0.95
		v.Message = "Member ID or plan ID is missing. Cannot verify eligibility."
		return v
	}
	v.Result, v.Confidence = ResultPass, 0.85
	v.Message = fmt.Sprintf("Member %s is eligible under plan %s for date of service.", c.MemberID, c.MemberPlanID)
	return v
}

func (r *Rules) checkProviderNetwork(c *Claim) Verdict {
	v := Verdict{RuleID: "NET-001", RuleName: "Provider Network Status", Category: CategoryEligibility}
	if len(c.RenderingProviderNPI) != 10 {
		v.Result, v.Confidence = ResultWarning, 0.80
		v.Message = fmt.Sprintf("Rendering provider NPI %s may be invalid.", c.RenderingProviderNPI)
		return v
	}
	v.Result, v.Confidence = ResultPass, 0.85
	v.Message = fmt.Sprintf("Provider %s (NPI: %s) is in-network.", c.RenderingProviderName, c.RenderingProviderNPI)
	return v
}

func (r *Rules) checkServiceLine(l *ServiceLine) Verdict {
	v := Verdict{
		RuleID:   fmt.Sprintf("SL-001-%d", l.LineNumber),
		RuleName: fmt.Sprintf("Service Line %d Validation", l.LineNumber),
		Category: CategoryCoding,
	}

	if !cptPattern.MatchString(l.ProcedureCode) && !hcpcsPattern.MatchString(l.ProcedureCode) {
		v.Result, v.Confidence = ResultWarning, 0.75
		v.Message = fmt.Sprintf("Line %d: Procedure code %s may not be valid CPT/HCPCS format.", l.LineNumber, l.ProcedureCode)
		return v
	}

	if l.ChargedAmount <= 0 {
		v.Category = CategoryPricing
		v.Result = ResultFail
		v.AutoAction = ActionReview
		v.Confidence = 0.95
		v.Message = fmt.Sprintf("Line %d: Charged amount must be greater than zero.", l.LineNumber)
		return v
	}

	v.Result, v.Confidence = ResultPass, 0.90
	v.Message = fmt.Sprintf("Line %d: %s validated successfully.", l.LineNumber, l.ProcedureCode)
	return v
}

func (r *Rules) checkChargeReasonableness(c *Claim) Verdict {
	v := Verdict{RuleID: "CR-001", RuleName: "Charge Reasonableness", Category: CategoryPricing}
	total := c.TotalChargedAmount

	switch {
	case total > r.cfg.ReviewThreshold:
		v.Result = ResultWarning
		v.AutoAction = ActionReview
		v.Confidence = 0.70
		v.Message = fmt.Sprintf("Total charged amount $%.2f exceeds $%.0f threshold. Manual review recommended.",
			total, r.cfg.ReviewThreshold)
	case total > r.cfg.HighDollarThreshold:
		v.Result, v.Confidence = ResultInfo, 0.80
		v.Message = fmt.Sprintf("Total charged amount $%.2f is flagged for high-dollar review.", total)
	default:
		v.Result, v.Confidence = ResultPass, 0.90
		v.Message = fmt.Sprintf("Total charged amount $%.2f is within reasonable range.", total)
	}
	return v
}

func (r *Rules) checkPriorAuthorization(c *Claim) Verdict {
	v := Verdict{RuleID: "PA-001", RuleName: "Prior Authorization Check", Category: CategoryAuthorization}
	for _, l := range c.ServiceLines {
		if r.cfg.PriorAuthCodes[l.ProcedureCode] {
			v.Result = ResultWarning
			v.AutoAction = ActionPend
			v.Confidence = 0.75
			v.Message = "One or more procedure codes may require prior authorization. Verify authorization on file."
			return v
		}
	}
	v.Result, v.Confidence = ResultPass, 0.90
	v.Message = "No prior authorization required for submitted procedure codes."
	return v
}
