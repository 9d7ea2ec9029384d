package claims

import (
	"time"

	"github.com/google/uuid"
)

type ClaimType string

const (
	TypeProfessional  ClaimType = "professional"
	TypeInstitutional ClaimType = "institutional"
	TypeDental        ClaimType = "dental"
	TypePharmacy      ClaimType = "pharmacy"
	TypeVision        ClaimType = "vision"
)

var validClaimTypes = map[ClaimType]bool{
	TypeProfessional: true, TypeInstitutional: true, TypeDental: true, TypePharmacy: true, TypeVision: true,
}

type Source string

const (
	SourceEDI837 Source = "edi_837"
	SourcePortal Source = "portal"
	SourceFHIR   Source = "fhir"
	SourcePaper  Source = "paper"
	SourceAPI    Source = "api"
)

var validSources = map[Source]bool{
	SourceEDI837: true, SourcePortal: true, SourceFHIR: true, SourcePaper: true, SourceAPI: true,
}

// Status is the claim lifecycle state. See lifecycle.go for legal transitions.
type Status string

const (
	StatusReceived          Status = "received"
	StatusValidated         Status = "validated"
	StatusPendingInfo       Status = "pending_info"
	StatusInReview          Status = "in_review"
	StatusPriced            Status = "priced"
	StatusAdjudicated       Status = "adjudicated"
	StatusApproved          Status = "approved"
	StatusDenied            Status = "denied"
	StatusPartiallyApproved Status = "partially_approved"
	StatusAppealed          Status = "appealed"
	StatusPaid              Status = "paid"
	StatusVoided            Status = "voided"
	StatusSuspended         Status = "suspended"
)

type LineStatus string

const (
	LinePending  LineStatus = "pending"
	LineApproved LineStatus = "approved"
	LineDenied   LineStatus = "denied"
	LineAdjusted LineStatus = "adjusted"
)

// Action is both the automatic action a rule may request and the overall
// recommendation produced by adjudication.
type Action string

const (
	ActionApprove Action = "approve"
	ActionDeny    Action = "deny"
	ActionPend    Action = "pend"
	ActionReview  Action = "review"
)

type RuleResult string

const (
	ResultPass    RuleResult = "pass"
	ResultFail    RuleResult = "fail"
	ResultWarning RuleResult = "warning"
	ResultInfo    RuleResult = "info"
)

type Category string

const (
	CategoryTimelyFiling  Category = "timely_filing"
	CategoryDuplicate     Category = "duplicate"
	CategoryCoding        Category = "coding"
	CategoryEligibility   Category = "eligibility"
	CategoryPricing       Category = "pricing"
	CategoryAuthorization Category = "authorization"
)

type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

type NoteType string

const (
	NoteSystem       NoteType = "system"
	NoteAdjudication NoteType = "adjudication"
	NoteInternal     NoteType = "internal"
	NoteExternal     NoteType = "external"
)

// DiagnosisCode is an additional (non-primary) diagnosis on the claim.
type DiagnosisCode struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Type        string `json:"type,omitempty"`
	Qualifier   string `json:"qualifier,omitempty"`
}

// ServiceLine maps to the claim_service_lines table.
type ServiceLine struct {
	ID                      uuid.UUID  `db:"id" json:"id"`
	ClaimID                 uuid.UUID  `db:"claim_id" json:"claim_id"`
	LineNumber              int        `db:"line_number" json:"line_number"`
	ProcedureCode           string     `db:"procedure_code" json:"procedure_code"`
	ProcedureDescription    string     `db:"procedure_description" json:"procedure_description,omitempty"`
	Modifiers               []string   `db:"modifiers" json:"modifiers"`
	RevenueCode             *string    `db:"revenue_code" json:"revenue_code,omitempty"`
	PlaceOfServiceCode      string     `db:"place_of_service_code" json:"place_of_service_code,omitempty"`
	ServiceDate             *time.Time `db:"service_date" json:"service_date,omitempty"`
	Units                   int        `db:"units" json:"units"`
	ChargedAmount           float64    `db:"charged_amount" json:"charged_amount"`
	AllowedAmount           float64    `db:"allowed_amount" json:"allowed_amount"`
	PaidAmount              float64    `db:"paid_amount" json:"paid_amount"`
	CopayAmount             float64    `db:"copay_amount" json:"copay_amount"`
	CoinsuranceAmount       float64    `db:"coinsurance_amount" json:"coinsurance_amount"`
	DeductibleAmount        float64    `db:"deductible_amount" json:"deductible_amount"`
	Status                  LineStatus `db:"status" json:"status"`
	DenialReasonCode        *string    `db:"denial_reason_code" json:"denial_reason_code,omitempty"`
	DenialReasonDescription *string    `db:"denial_reason_description" json:"denial_reason_description,omitempty"`
}

// Note is an immutable audit entry on a claim.
type Note struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	NoteType  NoteType  `json:"noteType"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Notes is an append-only log. Existing entries are never rewritten.
type Notes []Note

// Append returns a log with n added. The receiver's backing array is never
// shared with the result, so earlier snapshots stay intact.
func (ns Notes) Append(n Note) Notes {
	out := make(Notes, len(ns), len(ns)+1)
	copy(out, ns)
	return append(out, n)
}

// AdjustmentCode is a CARC-style adjustment recorded against the claim.
type AdjustmentCode struct {
	GroupCode   string  `json:"groupCode"`
	ReasonCode  string  `json:"reasonCode"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// AdjustmentCodes is append-only, like Notes.
type AdjustmentCodes []AdjustmentCode

func (as AdjustmentCodes) Append(a AdjustmentCode) AdjustmentCodes {
	out := make(AdjustmentCodes, len(as), len(as)+1)
	copy(out, as)
	return append(out, a)
}

// Verdict is the outcome of a single adjudication rule.
type Verdict struct {
	RuleID           string     `json:"ruleId"`
	RuleName         string     `json:"ruleName"`
	Category         Category   `json:"category"`
	Result           RuleResult `json:"result"`
	Message          string     `json:"message"`
	AutoAction       Action     `json:"autoAction,omitempty"`
	Confidence       float64    `json:"confidence"`
	AdjustmentGroup  string     `json:"adjustmentGroup,omitempty"`
	AdjustmentReason string     `json:"adjustmentReason,omitempty"`
}

type AIAnalysis struct {
	OverallRisk         RiskTier `json:"overallRisk"`
	FraudScore          int      `json:"fraudScore"`
	CodingAccuracy      int      `json:"codingAccuracy"`
	PriceReasonableness int      `json:"priceReasonableness"`
	Recommendations     []string `json:"recommendations"`
	Flags               []string `json:"flags"`
}

// Claim maps to the claims table. Dates without a time component are stored
// as UTC midnight.
type Claim struct {
	ID             uuid.UUID `db:"id" json:"id"`
	OrganizationID uuid.UUID `db:"organization_id" json:"organization_id"`
	ClaimNumber    string    `db:"claim_number" json:"claim_number"`
	Type           ClaimType `db:"type" json:"type"`
	Status         Status    `db:"status" json:"status"`
	Source         Source    `db:"source" json:"source"`

	MemberID         string     `db:"member_id" json:"member_id"`
	SubscriberID     string     `db:"subscriber_id" json:"subscriber_id,omitempty"`
	PatientFirstName string     `db:"patient_first_name" json:"patient_first_name,omitempty"`
	PatientLastName  string     `db:"patient_last_name" json:"patient_last_name,omitempty"`
	PatientDOB       *time.Time `db:"patient_dob" json:"patient_dob,omitempty"`
	PatientGender    string     `db:"patient_gender" json:"patient_gender,omitempty"`
	MemberPlanID     string     `db:"member_plan_id" json:"member_plan_id"`

	RenderingProviderID   string  `db:"rendering_provider_id" json:"rendering_provider_id"`
	RenderingProviderNPI  string  `db:"rendering_provider_npi" json:"rendering_provider_npi"`
	RenderingProviderName string  `db:"rendering_provider_name" json:"rendering_provider_name,omitempty"`
	BillingProviderID     *string `db:"billing_provider_id" json:"billing_provider_id,omitempty"`
	BillingProviderNPI    *string `db:"billing_provider_npi" json:"billing_provider_npi,omitempty"`
	BillingProviderName   *string `db:"billing_provider_name" json:"billing_provider_name,omitempty"`
	FacilityID            *string `db:"facility_id" json:"facility_id,omitempty"`
	FacilityName          *string `db:"facility_name" json:"facility_name,omitempty"`
	PlaceOfServiceCode    string  `db:"place_of_service_code" json:"place_of_service_code,omitempty"`

	ServiceFromDate time.Time  `db:"service_from_date" json:"service_from_date"`
	ServiceToDate   *time.Time `db:"service_to_date" json:"service_to_date,omitempty"`
	ReceivedDate    time.Time  `db:"received_date" json:"received_date"`
	ProcessedDate   *time.Time `db:"processed_date" json:"processed_date,omitempty"`
	PaidDate        *time.Time `db:"paid_date" json:"paid_date,omitempty"`

	PrimaryDiagnosisCode        string          `db:"primary_diagnosis_code" json:"primary_diagnosis_code"`
	PrimaryDiagnosisDescription string          `db:"primary_diagnosis_description" json:"primary_diagnosis_description,omitempty"`
	AdditionalDiagnosisCodes    []DiagnosisCode `db:"additional_diagnosis_codes" json:"additional_diagnosis_codes"`

	ServiceLines []*ServiceLine `json:"service_lines"`

	TotalChargedAmount        float64 `db:"total_charged_amount" json:"total_charged_amount"`
	TotalAllowedAmount        float64 `db:"total_allowed_amount" json:"total_allowed_amount"`
	TotalPaidAmount           float64 `db:"total_paid_amount" json:"total_paid_amount"`
	TotalMemberResponsibility float64 `db:"total_member_responsibility" json:"total_member_responsibility"`
	TotalDeductible           float64 `db:"total_deductible" json:"total_deductible"`
	TotalCopay                float64 `db:"total_copay" json:"total_copay"`
	TotalCoinsurance          float64 `db:"total_coinsurance" json:"total_coinsurance"`

	AdjudicationRules     []Verdict   `db:"adjudication_rules" json:"adjudication_rules,omitempty"`
	AIRecommendation      *Action     `db:"ai_recommendation" json:"ai_recommendation,omitempty"`
	AIConfidenceScore     *float64    `db:"ai_confidence_score" json:"ai_confidence_score,omitempty"`
	AIAnalysis            *AIAnalysis `db:"ai_analysis" json:"ai_analysis,omitempty"`
	AssignedProcessorID   *string     `db:"assigned_processor_id" json:"assigned_processor_id,omitempty"`
	AssignedProcessorName *string     `db:"assigned_processor_name" json:"assigned_processor_name,omitempty"`

	Notes              Notes           `db:"notes" json:"notes"`
	AdjustmentCodes    AdjustmentCodes `db:"adjustment_codes" json:"adjustment_codes"`
	EDIReferenceNumber *string         `db:"edi_reference_number" json:"edi_reference_number,omitempty"`
	CheckNumber        *string         `db:"check_number" json:"check_number,omitempty"`

	VersionID int       `db:"version_id" json:"version_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// GetVersionID returns the optimistic-lock version.
func (c *Claim) GetVersionID() int { return c.VersionID }

// SetVersionID sets the optimistic-lock version.
func (c *Claim) SetVersionID(v int) { c.VersionID = v }

// PatientFullName joins the patient's first and last name.
func (c *Claim) PatientFullName() string {
	switch {
	case c.PatientFirstName == "":
		return c.PatientLastName
	case c.PatientLastName == "":
		return c.PatientFirstName
	}
	return c.PatientFirstName + " " + c.PatientLastName
}

// Priced reports whether pricing has been applied at least once.
func (c *Claim) Priced() bool { return c.TotalAllowedAmount != 0 }

// Clone returns a deep copy so callers can mutate without touching the
// stored snapshot.
func (c *Claim) Clone() *Claim {
	if c == nil {
		return nil
	}
	out := *c
	out.AdditionalDiagnosisCodes = append([]DiagnosisCode(nil), c.AdditionalDiagnosisCodes...)
	out.AdjudicationRules = append([]Verdict(nil), c.AdjudicationRules...)
	out.Notes = append(Notes(nil), c.Notes...)
	out.AdjustmentCodes = append(AdjustmentCodes(nil), c.AdjustmentCodes...)
	if c.AIAnalysis != nil {
		a := *c.AIAnalysis
		a.Recommendations = append([]string(nil), c.AIAnalysis.Recommendations...)
		a.Flags = append([]string(nil), c.AIAnalysis.Flags...)
		out.AIAnalysis = &a
	}
	out.ServiceLines = make([]*ServiceLine, len(c.ServiceLines))
	for i, l := range c.ServiceLines {
		cp := *l
		cp.Modifiers = append([]string(nil), l.Modifiers...)
		out.ServiceLines[i] = &cp
	}
	return &out
}

// Actor identifies who performed an operation; it is stamped on every note.
type Actor struct {
	UserID string `json:"userId"`
	Name   string `json:"userName"`
}

var (
	systemActor      = Actor{UserID: "system", Name: "System"}
	adjudicatorActor = Actor{UserID: "system", Name: "Auto-Adjudication Engine"}
	validatorActor   = Actor{UserID: "system", Name: "Validation Engine"}
)
