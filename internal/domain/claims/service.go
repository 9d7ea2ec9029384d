package claims

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/apexhealth/claims/internal/platform/jobs"
	"github.com/apexhealth/claims/internal/platform/metrics"
)

// Job kinds handled by the claims processor.
const (
	JobValidateClaim   = "validate-claim"
	JobBatchAdjudicate = "batch-adjudicate"
	JobPaymentBatch    = "payment-batch"
)

// Enqueuer schedules background work. jobs.Store satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind string, payload any, opts jobs.EnqueueOptions) (uuid.UUID, error)
}

// Config bundles the tunables the engine is built from.
type Config struct {
	FeeSchedule FeeSchedule
	Pricing     PricingConfig
	Rules       RuleConfig
}

func DefaultConfig() Config {
	return Config{
		FeeSchedule: DefaultFeeSchedule(),
		Pricing:     DefaultPricingConfig(),
		Rules:       DefaultRuleConfig(),
	}
}

// Service is the adjudication orchestrator. Every state-changing call loads
// the claim, checks the transition table, mutates a private copy, appends one
// note and saves once.
type Service struct {
	repo     Repository
	numbers  NumberGenerator
	rules    *Rules
	pricer   *Pricer
	scorer   *Scorer
	clock    Clock
	enqueuer Enqueuer
	logger   zerolog.Logger
}

func NewService(repo Repository, numbers NumberGenerator, cfg Config, logger zerolog.Logger) *Service {
	if cfg.FeeSchedule == nil {
		cfg.FeeSchedule = DefaultFeeSchedule()
	}
	return &Service{
		repo:    repo,
		numbers: numbers,
		rules:   NewRules(cfg.Rules, repo),
		pricer:  NewPricer(cfg.FeeSchedule, cfg.Pricing),
		scorer:  NewScorer(cfg.FeeSchedule, cfg.Rules.HighDollarThreshold),
		clock:   SystemClock(),
		logger:  logger.With().Str("component", "claims").Logger(),
	}
}

// SetClock replaces the wall clock.
func (s *Service) SetClock(c Clock) {
	s.clock = c
}

// SetEnqueuer attaches the queue used to schedule validation after submission.
func (s *Service) SetEnqueuer(e Enqueuer) {
	s.enqueuer = e
}

func (s *Service) today() time.Time {
	return DateOf(s.clock.Now())
}

func (s *Service) newNote(a Actor, t NoteType, content string) Note {
	return Note{
		ID:        uuid.New(),
		UserID:    a.UserID,
		UserName:  a.Name,
		NoteType:  t,
		Content:   content,
		CreatedAt: s.clock.Now().UTC(),
	}
}

func (s *Service) load(ctx context.Context, orgID, id uuid.UUID) (*Claim, error) {
	c, err := s.repo.GetByID(ctx, orgID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &NotFoundError{ClaimID: id, OrganizationID: orgID}
		}
		return nil, persistenceErr("load claim", err)
	}
	return c, nil
}

func (s *Service) save(ctx context.Context, op Operation, c *Claim) error {
	c.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.Save(ctx, c); err != nil {
		return persistenceErr("save claim", err)
	}
	metrics.RecordTransition(string(op), string(c.Status))
	return nil
}

// Get returns a claim scoped to an organization.
func (s *Service) Get(ctx context.Context, orgID, id uuid.UUID) (*Claim, error) {
	return s.load(ctx, orgID, id)
}

// -- Submission --

// SubmitLineInput is one billed procedure at submission time.
type SubmitLineInput struct {
	LineNumber           int      `json:"line_number"`
	ProcedureCode        string   `json:"procedure_code"`
	ProcedureDescription string   `json:"procedure_description,omitempty"`
	Modifiers            []string `json:"modifiers,omitempty"`
	RevenueCode          *string  `json:"revenue_code,omitempty"`
	PlaceOfServiceCode   string   `json:"place_of_service_code,omitempty"`
	ServiceDate          string   `json:"service_date,omitempty"`
	Units                int      `json:"units"`
	ChargedAmount        float64  `json:"charged_amount"`
}

// SubmitClaimInput is the untyped-at-the-edge claim payload. Dates are
// YYYY-MM-DD strings and are parsed during validation.
type SubmitClaimInput struct {
	Type                        ClaimType         `json:"type"`
	Source                      Source            `json:"source,omitempty"`
	MemberID                    string            `json:"member_id"`
	SubscriberID                string            `json:"subscriber_id,omitempty"`
	PatientFirstName            string            `json:"patient_first_name,omitempty"`
	PatientLastName             string            `json:"patient_last_name,omitempty"`
	PatientDOB                  string            `json:"patient_dob,omitempty"`
	PatientGender               string            `json:"patient_gender,omitempty"`
	MemberPlanID                string            `json:"member_plan_id,omitempty"`
	RenderingProviderID         string            `json:"rendering_provider_id"`
	RenderingProviderNPI        string            `json:"rendering_provider_npi,omitempty"`
	RenderingProviderName       string            `json:"rendering_provider_name,omitempty"`
	BillingProviderID           *string           `json:"billing_provider_id,omitempty"`
	BillingProviderNPI          *string           `json:"billing_provider_npi,omitempty"`
	BillingProviderName         *string           `json:"billing_provider_name,omitempty"`
	FacilityID                  *string           `json:"facility_id,omitempty"`
	FacilityName                *string           `json:"facility_name,omitempty"`
	PlaceOfServiceCode          string            `json:"place_of_service_code,omitempty"`
	ServiceFromDate             string            `json:"service_from_date"`
	ServiceToDate               string            `json:"service_to_date,omitempty"`
	PrimaryDiagnosisCode        string            `json:"primary_diagnosis_code"`
	PrimaryDiagnosisDescription string            `json:"primary_diagnosis_description,omitempty"`
	AdditionalDiagnosisCodes    []DiagnosisCode   `json:"additional_diagnosis_codes,omitempty"`
	EDIReferenceNumber          *string           `json:"edi_reference_number,omitempty"`
	ServiceLines                []SubmitLineInput `json:"service_lines"`
}

const dateLayout = "2006-01-02"

func parseDate(field, s string, reasons *[]string) *time.Time {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		*reasons = append(*reasons, fmt.Sprintf("%s must be a YYYY-MM-DD date, got %q", field, s))
		return nil
	}
	return &t
}

// buildClaim validates in and converts it to a claim. Every problem found is
// reported, not just the first.
func buildClaim(in SubmitClaimInput) (*Claim, error) {
	var reasons []string

	if in.Source == "" {
		in.Source = SourceAPI
	}
	if !validClaimTypes[in.Type] {
		reasons = append(reasons, fmt.Sprintf("invalid claim type: %q", in.Type))
	}
	if !validSources[in.Source] {
		reasons = append(reasons, fmt.Sprintf("invalid claim source: %q", in.Source))
	}
	if strings.TrimSpace(in.MemberID) == "" {
		reasons = append(reasons, "member_id is required")
	}
	if strings.TrimSpace(in.RenderingProviderID) == "" {
		reasons = append(reasons, "rendering_provider_id is required")
	}
	if strings.TrimSpace(in.PrimaryDiagnosisCode) == "" {
		reasons = append(reasons, "primary_diagnosis_code is required")
	}

	from := parseDate("service_from_date", in.ServiceFromDate, &reasons)
	if from == nil && strings.TrimSpace(in.ServiceFromDate) == "" {
		reasons = append(reasons, "service_from_date is required")
	}
	to := parseDate("service_to_date", in.ServiceToDate, &reasons)
	if from != nil && to != nil && to.Before(*from) {
		reasons = append(reasons, "service_to_date must not be before service_from_date")
	}
	dob := parseDate("patient_dob", in.PatientDOB, &reasons)

	if len(in.ServiceLines) == 0 {
		reasons = append(reasons, "at least one service line is required")
	}
	seen := make(map[int]bool, len(in.ServiceLines))
	lines := make([]*ServiceLine, 0, len(in.ServiceLines))
	for i, li := range in.ServiceLines {
		label := fmt.Sprintf("service_lines[%d]", i)
		switch {
		case li.LineNumber < 1:
			reasons = append(reasons, fmt.Sprintf("%s: line_number must be >= 1", label))
		case seen[li.LineNumber]:
			reasons = append(reasons, fmt.Sprintf("%s: duplicate line_number %d", label, li.LineNumber))
		}
		seen[li.LineNumber] = true
		if strings.TrimSpace(li.ProcedureCode) == "" {
			reasons = append(reasons, fmt.Sprintf("%s: procedure_code is required", label))
		}
		if li.Units < 1 {
			reasons = append(reasons, fmt.Sprintf("%s: units must be >= 1", label))
		}
		if li.ChargedAmount <= 0 {
			reasons = append(reasons, fmt.Sprintf("%s: charged_amount must be > 0", label))
		}
		modifiers := li.Modifiers
		if modifiers == nil {
			modifiers = []string{}
		}
		lines = append(lines, &ServiceLine{
			LineNumber:           li.LineNumber,
			ProcedureCode:        strings.ToUpper(strings.TrimSpace(li.ProcedureCode)),
			ProcedureDescription: li.ProcedureDescription,
			Modifiers:            modifiers,
			RevenueCode:          li.RevenueCode,
			PlaceOfServiceCode:   li.PlaceOfServiceCode,
			ServiceDate:          parseDate(label+".service_date", li.ServiceDate, &reasons),
			Units:                li.Units,
			ChargedAmount:        li.ChargedAmount,
			Status:               LinePending,
		})
	}

	if len(reasons) > 0 {
		return nil, &ValidationError{Reasons: reasons}
	}

	additional := in.AdditionalDiagnosisCodes
	if additional == nil {
		additional = []DiagnosisCode{}
	}
	return &Claim{
		Type:                        in.Type,
		Status:                      StatusReceived,
		Source:                      in.Source,
		MemberID:                    strings.TrimSpace(in.MemberID),
		SubscriberID:                in.SubscriberID,
		PatientFirstName:            in.PatientFirstName,
		PatientLastName:             in.PatientLastName,
		PatientDOB:                  dob,
		PatientGender:               in.PatientGender,
		MemberPlanID:                strings.TrimSpace(in.MemberPlanID),
		RenderingProviderID:         strings.TrimSpace(in.RenderingProviderID),
		RenderingProviderNPI:        strings.TrimSpace(in.RenderingProviderNPI),
		RenderingProviderName:       in.RenderingProviderName,
		BillingProviderID:           in.BillingProviderID,
		BillingProviderNPI:          in.BillingProviderNPI,
		BillingProviderName:         in.BillingProviderName,
		FacilityID:                  in.FacilityID,
		FacilityName:                in.FacilityName,
		PlaceOfServiceCode:          in.PlaceOfServiceCode,
		ServiceFromDate:             *from,
		ServiceToDate:               to,
		PrimaryDiagnosisCode:        strings.ToUpper(strings.TrimSpace(in.PrimaryDiagnosisCode)),
		PrimaryDiagnosisDescription: in.PrimaryDiagnosisDescription,
		AdditionalDiagnosisCodes:    additional,
		ServiceLines:                lines,
		TotalChargedAmount:          chargedTotal(lines),
		AdjudicationRules:           []Verdict{},
		Notes:                       Notes{},
		AdjustmentCodes:             AdjustmentCodes{},
		EDIReferenceNumber:          in.EDIReferenceNumber,
	}, nil
}

// ValidateClaimPayload is the payload of a validate-claim job.
type ValidateClaimPayload struct {
	ClaimID        uuid.UUID `json:"claimId"`
	OrganizationID uuid.UUID `json:"organizationId"`
}

// Submit creates a claim in status received and schedules its structural
// validation.
func (s *Service) Submit(ctx context.Context, orgID uuid.UUID, in SubmitClaimInput, actor Actor) (*Claim, error) {
	c, err := buildClaim(in)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	number, err := s.numbers.NextClaimNumber(ctx, orgID, now.Year())
	if err != nil {
		return nil, persistenceErr("generate claim number", err)
	}

	c.ID = uuid.New()
	c.OrganizationID = orgID
	c.ClaimNumber = number
	c.ReceivedDate = DateOf(now)
	for _, l := range c.ServiceLines {
		l.ID = uuid.New()
		l.ClaimID = c.ID
	}
	author := systemActor
	if actor.UserID != "" {
		author = actor
		if author.Name == "" {
			author.Name = actor.UserID
		}
	}
	c.Notes = c.Notes.Append(s.newNote(author, NoteSystem,
		fmt.Sprintf("Claim received via %s. Total charged: $%.2f", c.Source, c.TotalChargedAmount)))
	c.VersionID = 1
	c.CreatedAt = now.UTC()
	c.UpdatedAt = c.CreatedAt

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, persistenceErr("create claim", err)
	}
	metrics.RecordTransition("submit", string(c.Status))

	s.logger.Info().
		Str("claim_number", c.ClaimNumber).
		Str("member_id", c.MemberID).
		Str("organization_id", orgID.String()).
		Float64("charged", c.TotalChargedAmount).
		Msg("claim created")

	if s.enqueuer != nil {
		_, err := s.enqueuer.Enqueue(ctx, JobValidateClaim,
			ValidateClaimPayload{ClaimID: c.ID, OrganizationID: orgID},
			jobs.EnqueueOptions{Delay: time.Second, Priority: 2})
		if err != nil {
			s.logger.Error().Err(err).Str("claim_number", c.ClaimNumber).Msg("enqueue validation failed")
		}
	}
	return c, nil
}

// -- Structural validation --

func structuralErrors(c *Claim) []string {
	var errs []string
	if c.MemberID == "" {
		errs = append(errs, "Missing member ID")
	}
	if c.RenderingProviderNPI == "" {
		errs = append(errs, "Missing rendering provider NPI")
	}
	if c.PrimaryDiagnosisCode == "" {
		errs = append(errs, "Missing primary diagnosis code")
	}
	if len(c.ServiceLines) == 0 {
		errs = append(errs, "No service lines present")
	}
	if c.ServiceFromDate.IsZero() {
		errs = append(errs, "Missing service from date")
	}
	if c.TotalChargedAmount <= 0 {
		errs = append(errs, "Total charged amount must be > 0")
	}
	for _, l := range c.ServiceLines {
		if l.ProcedureCode == "" {
			errs = append(errs, fmt.Sprintf("Line %d: Missing procedure code", l.LineNumber))
		}
		if l.ChargedAmount <= 0 {
			errs = append(errs, fmt.Sprintf("Line %d: Charged amount must be > 0", l.LineNumber))
		}
	}
	return errs
}

// Validate moves a received claim to validated, or to suspended when it is
// structurally incomplete. A failed validation is an outcome, not an error.
func (s *Service) Validate(ctx context.Context, orgID, id uuid.UUID) (*Claim, error) {
	c, err := s.load(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(OpValidate, c); err != nil {
		return nil, err
	}

	errs := structuralErrors(c)
	if len(errs) > 0 {
		c.Status = StatusSuspended
		c.Notes = c.Notes.Append(s.newNote(validatorActor, NoteSystem,
			fmt.Sprintf("Validation failed with %d error(s): %s", len(errs), strings.Join(errs, "; "))))
	} else {
		c.Status = StatusValidated
		c.Notes = c.Notes.Append(s.newNote(validatorActor, NoteSystem,
			"Claim passed structural validation. Ready for adjudication."))
	}

	if err := s.save(ctx, OpValidate, c); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("claim_number", c.ClaimNumber).
		Str("status", string(c.Status)).
		Int("errors", len(errs)).
		Msg("claim validated")
	return c, nil
}

// -- Adjudication --

var carcDescriptions = map[string]string{
	ReasonTimelyFiling: reasonTimelyFilingTx,
}

// Adjudicate runs the rules pipeline and records the outcome.
func (s *Service) Adjudicate(ctx context.Context, orgID, id uuid.UUID) (*Claim, error) {
	start := time.Now()
	c, err := s.load(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(OpAdjudicate, c); err != nil {
		return nil, err
	}

	verdicts, err := s.rules.Evaluate(ctx, c)
	if err != nil {
		return nil, err
	}
	d := Aggregate(verdicts)

	switch d.Recommendation {
	case ActionApprove:
		s.pricer.Apply(c)
	case ActionDeny:
		s.autoDeny(c, d.DenyVerdict)
	}

	rec := d.Recommendation
	conf := d.Confidence
	today := s.today()
	c.Status = d.Status
	c.AdjudicationRules = verdicts
	c.AIRecommendation = &rec
	c.AIConfidenceScore = &conf
	c.AIAnalysis = s.scorer.Analyze(c, verdicts, d)
	c.ProcessedDate = &today
	c.Notes = c.Notes.Append(s.newNote(adjudicatorActor, NoteAdjudication,
		fmt.Sprintf("Auto-adjudication complete. %d rules evaluated: %d passed, %d failed, %d warnings. "+
			"Recommendation: %s (confidence: %.1f%%)",
			len(verdicts), d.Passed, d.Failed, d.Warnings, rec, conf*100)))

	if err := s.save(ctx, OpAdjudicate, c); err != nil {
		return nil, err
	}
	metrics.ObserveAdjudication(string(rec), time.Since(start))

	s.logger.Info().
		Str("claim_number", c.ClaimNumber).
		Str("status", string(c.Status)).
		Str("recommendation", string(rec)).
		Float64("confidence", conf).
		Msg("adjudication complete")
	return c, nil
}

// autoDeny denies every pending line with the failing rule's adjustment
// reason and records one adjustment for the full charge.
func (s *Service) autoDeny(c *Claim, v *Verdict) {
	group := v.AdjustmentGroup
	if group == "" {
		group = GroupContractual
	}
	code := v.AdjustmentReason
	if code == "" {
		code = v.RuleID
	}
	desc, ok := carcDescriptions[code]
	if !ok {
		desc = v.Message
	}
	denyLines(c, code, desc)
	c.AdjustmentCodes = c.AdjustmentCodes.Append(AdjustmentCode{
		GroupCode: group, ReasonCode: code, Description: desc, Amount: c.TotalChargedAmount,
	})
}

// denyLines denies pending lines, zeroes their pricing and recomputes totals.
func denyLines(c *Claim, code, desc string) {
	for _, l := range c.ServiceLines {
		if l.Status != LinePending {
			continue
		}
		code, desc := code, desc
		l.Status = LineDenied
		l.DenialReasonCode = &code
		l.DenialReasonDescription = &desc
		l.AllowedAmount, l.PaidAmount = 0, 0
		l.CopayAmount, l.CoinsuranceAmount, l.DeductibleAmount = 0, 0, 0
	}
	applyTotals(c)
}

// -- Manual decisions --

// Approve manually approves a claim, pricing it first if it was never priced.
func (s *Service) Approve(ctx context.Context, orgID, id uuid.UUID, actor Actor) (*Claim, error) {
	c, err := s.load(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(OpApprove, c); err != nil {
		return nil, err
	}

	if !c.Priced() {
		s.pricer.Apply(c)
	}
	c.Status = StatusApproved
	if c.ProcessedDate == nil {
		today := s.today()
		c.ProcessedDate = &today
	}
	for _, l := range c.ServiceLines {
		if l.Status == LinePending {
			l.Status = LineApproved
		}
	}
	c.Notes = c.Notes.Append(s.newNote(actor, NoteAdjudication,
		fmt.Sprintf("Claim manually approved by %s", actor.Name)))

	if err := s.save(ctx, OpApprove, c); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("claim_number", c.ClaimNumber).
		Str("user_id", actor.UserID).
		Float64("paid", c.TotalPaidAmount).
		Msg("claim manually approved")
	return c, nil
}

// DenyInput carries the CARC reason for a manual denial.
type DenyInput struct {
	ReasonCode        string `json:"denial_reason_code"`
	ReasonDescription string `json:"denial_reason_description"`
	Notes             string `json:"notes,omitempty"`
}

// Deny manually denies a claim. Pending lines are denied with the given
// reason and one CO adjustment for the full charge is appended.
func (s *Service) Deny(ctx context.Context, orgID, id uuid.UUID, in DenyInput, actor Actor) (*Claim, error) {
	in.ReasonCode = strings.TrimSpace(in.ReasonCode)
	in.ReasonDescription = strings.TrimSpace(in.ReasonDescription)
	if in.ReasonCode == "" || in.ReasonDescription == "" {
		return nil, ErrDenialRequiresReason
	}

	c, err := s.load(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(OpDeny, c); err != nil {
		return nil, err
	}

	c.Status = StatusDenied
	if c.ProcessedDate == nil {
		today := s.today()
		c.ProcessedDate = &today
	}
	denyLines(c, in.ReasonCode, in.ReasonDescription)
	c.AdjustmentCodes = c.AdjustmentCodes.Append(AdjustmentCode{
		GroupCode:   GroupContractual,
		ReasonCode:  in.ReasonCode,
		Description: in.ReasonDescription,
		Amount:      c.TotalChargedAmount,
	})

	content := fmt.Sprintf("Claim denied by %s. Reason: [%s] %s", actor.Name, in.ReasonCode, in.ReasonDescription)
	if in.Notes != "" {
		content += ". Notes: " + in.Notes
	}
	c.Notes = c.Notes.Append(s.newNote(actor, NoteAdjudication, content))

	if err := s.save(ctx, OpDeny, c); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("claim_number", c.ClaimNumber).
		Str("user_id", actor.UserID).
		Str("reason_code", in.ReasonCode).
		Msg("claim manually denied")
	return c, nil
}

// PendInput explains why a claim is waiting on more information.
type PendInput struct {
	Reason               string `json:"reason"`
	InformationRequested string `json:"information_requested,omitempty"`
}

// Pend moves a claim to pending_info.
func (s *Service) Pend(ctx context.Context, orgID, id uuid.UUID, in PendInput, actor Actor) (*Claim, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return nil, &ValidationError{Reasons: []string{"pend reason is required"}}
	}

	c, err := s.load(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(OpPend, c); err != nil {
		return nil, err
	}

	c.Status = StatusPendingInfo
	content := fmt.Sprintf("Claim pended by %s. Reason: %s", actor.Name, in.Reason)
	if in.InformationRequested != "" {
		content += ". Information requested: " + in.InformationRequested
	}
	c.Notes = c.Notes.Append(s.newNote(actor, NoteInternal, content))

	if err := s.save(ctx, OpPend, c); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("claim_number", c.ClaimNumber).
		Str("user_id", actor.UserID).
		Str("reason", in.Reason).
		Msg("claim pended")
	return c, nil
}

// AssignProcessor records who is working the claim. Status is unchanged.
func (s *Service) AssignProcessor(ctx context.Context, orgID, id uuid.UUID, processorID, processorName string, actor Actor) (*Claim, error) {
	if strings.TrimSpace(processorID) == "" || strings.TrimSpace(processorName) == "" {
		return nil, &ValidationError{Reasons: []string{"processor id and name are required"}}
	}

	c, err := s.load(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(OpAssign, c); err != nil {
		return nil, err
	}

	content := fmt.Sprintf("Claim assigned to %s by %s", processorName, actor.Name)
	if c.AssignedProcessorName != nil && *c.AssignedProcessorName != "" {
		content = fmt.Sprintf("Claim reassigned from %s to %s by %s", *c.AssignedProcessorName, processorName, actor.Name)
	}
	c.AssignedProcessorID = &processorID
	c.AssignedProcessorName = &processorName
	c.Notes = c.Notes.Append(s.newNote(actor, NoteSystem, content))

	if err := s.save(ctx, OpAssign, c); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("claim_number", c.ClaimNumber).
		Str("processor", processorName).
		Str("user_id", actor.UserID).
		Msg("claim assigned")
	return c, nil
}

var validNoteTypes = map[NoteType]bool{
	NoteSystem: true, NoteAdjudication: true, NoteInternal: true, NoteExternal: true,
}

// AddNote appends a free-text note. noteType defaults to internal.
func (s *Service) AddNote(ctx context.Context, orgID, id uuid.UUID, noteType NoteType, content string, actor Actor) (*Claim, error) {
	if noteType == "" {
		noteType = NoteInternal
	}
	var reasons []string
	if !validNoteTypes[noteType] {
		reasons = append(reasons, fmt.Sprintf("invalid note type: %q", noteType))
	}
	if strings.TrimSpace(content) == "" {
		reasons = append(reasons, "note content is required")
	}
	if len(reasons) > 0 {
		return nil, &ValidationError{Reasons: reasons}
	}

	c, err := s.load(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(OpNote, c); err != nil {
		return nil, err
	}

	c.Notes = c.Notes.Append(s.newNote(actor, noteType, content))
	if err := s.save(ctx, OpNote, c); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("claim_number", c.ClaimNumber).
		Str("user_id", actor.UserID).
		Msg("note added")
	return c, nil
}
