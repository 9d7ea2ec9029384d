package claims

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

// =========== Claim Repository ===========

type claimRepoPG struct{ pool *pgxpool.Pool }

func NewClaimRepoPG(pool *pgxpool.Pool) Repository { return &claimRepoPG{pool: pool} }

func (r *claimRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const claimCols = `id, organization_id, claim_number, type, status, source,
	member_id, subscriber_id, patient_first_name, patient_last_name, patient_dob, patient_gender, member_plan_id,
	rendering_provider_id, rendering_provider_npi, rendering_provider_name,
	billing_provider_id, billing_provider_npi, billing_provider_name, facility_id, facility_name, place_of_service_code,
	service_from_date, service_to_date, received_date, processed_date, paid_date,
	primary_diagnosis_code, primary_diagnosis_description, additional_diagnosis_codes,
	total_charged_amount, total_allowed_amount, total_paid_amount, total_member_responsibility,
	total_deductible, total_copay, total_coinsurance,
	adjudication_rules, ai_recommendation, ai_confidence_score, ai_analysis,
	assigned_processor_id, assigned_processor_name,
	notes, adjustment_codes, edi_reference_number, check_number,
	version_id, created_at, updated_at`

const lineCols = `id, claim_id, line_number, procedure_code, procedure_description, modifiers,
	revenue_code, place_of_service_code, service_date, units,
	charged_amount, allowed_amount, paid_amount, copay_amount, coinsurance_amount, deductible_amount,
	status, denial_reason_code, denial_reason_description`

func scanClaim(row pgx.Row) (*Claim, error) {
	var (
		c                                               Claim
		diagJSON, rulesJSON, aiJSON, notesJSON, adjJSON []byte
		recommendation                                  *string
	)
	err := row.Scan(&c.ID, &c.OrganizationID, &c.ClaimNumber, &c.Type, &c.Status, &c.Source,
		&c.MemberID, &c.SubscriberID, &c.PatientFirstName, &c.PatientLastName, &c.PatientDOB, &c.PatientGender, &c.MemberPlanID,
		&c.RenderingProviderID, &c.RenderingProviderNPI, &c.RenderingProviderName,
		&c.BillingProviderID, &c.BillingProviderNPI, &c.BillingProviderName, &c.FacilityID, &c.FacilityName, &c.PlaceOfServiceCode,
		&c.ServiceFromDate, &c.ServiceToDate, &c.ReceivedDate, &c.ProcessedDate, &c.PaidDate,
		&c.PrimaryDiagnosisCode, &c.PrimaryDiagnosisDescription, &diagJSON,
		&c.TotalChargedAmount, &c.TotalAllowedAmount, &c.TotalPaidAmount, &c.TotalMemberResponsibility,
		&c.TotalDeductible, &c.TotalCopay, &c.TotalCoinsurance,
		&rulesJSON, &recommendation, &c.AIConfidenceScore, &aiJSON,
		&c.AssignedProcessorID, &c.AssignedProcessorName,
		&notesJSON, &adjJSON, &c.EDIReferenceNumber, &c.CheckNumber,
		&c.VersionID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if recommendation != nil {
		a := Action(*recommendation)
		c.AIRecommendation = &a
	}
	if err := unmarshalJSONB(diagJSON, &c.AdditionalDiagnosisCodes); err != nil {
		return nil, fmt.Errorf("decode additional_diagnosis_codes: %w", err)
	}
	if err := unmarshalJSONB(rulesJSON, &c.AdjudicationRules); err != nil {
		return nil, fmt.Errorf("decode adjudication_rules: %w", err)
	}
	if len(aiJSON) > 0 {
		c.AIAnalysis = &AIAnalysis{}
		if err := json.Unmarshal(aiJSON, c.AIAnalysis); err != nil {
			return nil, fmt.Errorf("decode ai_analysis: %w", err)
		}
	}
	if err := unmarshalJSONB(notesJSON, &c.Notes); err != nil {
		return nil, fmt.Errorf("decode notes: %w", err)
	}
	if err := unmarshalJSONB(adjJSON, &c.AdjustmentCodes); err != nil {
		return nil, fmt.Errorf("decode adjustment_codes: %w", err)
	}
	return &c, nil
}

func scanLine(row pgx.Row) (*ServiceLine, error) {
	var l ServiceLine
	err := row.Scan(&l.ID, &l.ClaimID, &l.LineNumber, &l.ProcedureCode, &l.ProcedureDescription, &l.Modifiers,
		&l.RevenueCode, &l.PlaceOfServiceCode, &l.ServiceDate, &l.Units,
		&l.ChargedAmount, &l.AllowedAmount, &l.PaidAmount, &l.CopayAmount, &l.CoinsuranceAmount, &l.DeductibleAmount,
		&l.Status, &l.DenialReasonCode, &l.DenialReasonDescription)
	return &l, err
}

func unmarshalJSONB(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// jsonArray encodes a slice column, writing [] rather than null for nil.
func jsonArray[T any](v []T) ([]byte, error) {
	if v == nil {
		v = []T{}
	}
	return json.Marshal(v)
}

type claimJSON struct {
	diag, rules, ai, notes, adj []byte
}

func encodeClaimJSON(c *Claim) (claimJSON, error) {
	var (
		out claimJSON
		err error
	)
	if out.diag, err = jsonArray(c.AdditionalDiagnosisCodes); err != nil {
		return out, err
	}
	if c.AdjudicationRules != nil {
		if out.rules, err = json.Marshal(c.AdjudicationRules); err != nil {
			return out, err
		}
	}
	if c.AIAnalysis != nil {
		if out.ai, err = json.Marshal(c.AIAnalysis); err != nil {
			return out, err
		}
	}
	if out.notes, err = jsonArray(c.Notes); err != nil {
		return out, err
	}
	if out.adj, err = jsonArray(c.AdjustmentCodes); err != nil {
		return out, err
	}
	return out, nil
}

func recommendationArg(a *Action) *string {
	if a == nil {
		return nil
	}
	s := string(*a)
	return &s
}

func (r *claimRepoPG) Create(ctx context.Context, c *Claim) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.VersionID == 0 {
		c.VersionID = 1
	}
	js, err := encodeClaimJSON(c)
	if err != nil {
		return fmt.Errorf("encode claim %s: %w", c.ClaimNumber, err)
	}

	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO claims (id, organization_id, claim_number, type, status, source,
				member_id, subscriber_id, patient_first_name, patient_last_name, patient_dob, patient_gender, member_plan_id,
				rendering_provider_id, rendering_provider_npi, rendering_provider_name,
				billing_provider_id, billing_provider_npi, billing_provider_name, facility_id, facility_name, place_of_service_code,
				service_from_date, service_to_date, received_date, processed_date, paid_date,
				primary_diagnosis_code, primary_diagnosis_description, additional_diagnosis_codes,
				total_charged_amount, total_allowed_amount, total_paid_amount, total_member_responsibility,
				total_deductible, total_copay, total_coinsurance,
				adjudication_rules, ai_recommendation, ai_confidence_score, ai_analysis,
				assigned_processor_id, assigned_processor_name,
				notes, adjustment_codes, edi_reference_number, check_number,
				version_id, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,
				$26,$27,$28,$29,$30,$31,$32,$33,$34,$35,$36,$37,$38,$39,$40,$41,$42,$43,$44,$45,$46,$47,$48,$49,$50)`,
			c.ID, c.OrganizationID, c.ClaimNumber, string(c.Type), string(c.Status), string(c.Source),
			c.MemberID, c.SubscriberID, c.PatientFirstName, c.PatientLastName, c.PatientDOB, c.PatientGender, c.MemberPlanID,
			c.RenderingProviderID, c.RenderingProviderNPI, c.RenderingProviderName,
			c.BillingProviderID, c.BillingProviderNPI, c.BillingProviderName, c.FacilityID, c.FacilityName, c.PlaceOfServiceCode,
			c.ServiceFromDate, c.ServiceToDate, c.ReceivedDate, c.ProcessedDate, c.PaidDate,
			c.PrimaryDiagnosisCode, c.PrimaryDiagnosisDescription, js.diag,
			c.TotalChargedAmount, c.TotalAllowedAmount, c.TotalPaidAmount, c.TotalMemberResponsibility,
			c.TotalDeductible, c.TotalCopay, c.TotalCoinsurance,
			js.rules, recommendationArg(c.AIRecommendation), c.AIConfidenceScore, js.ai,
			c.AssignedProcessorID, c.AssignedProcessorName,
			js.notes, js.adj, c.EDIReferenceNumber, c.CheckNumber,
			c.VersionID, c.CreatedAt, c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert claim %s: %w", c.ClaimNumber, err)
		}
		for _, l := range c.ServiceLines {
			if l.ID == uuid.Nil {
				l.ID = uuid.New()
			}
			l.ClaimID = c.ID
			if err := r.insertLine(ctx, l); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *claimRepoPG) insertLine(ctx context.Context, l *ServiceLine) error {
	modifiers := l.Modifiers
	if modifiers == nil {
		modifiers = []string{}
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO claim_service_lines (`+lineCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		l.ID, l.ClaimID, l.LineNumber, l.ProcedureCode, l.ProcedureDescription, modifiers,
		l.RevenueCode, l.PlaceOfServiceCode, l.ServiceDate, l.Units,
		l.ChargedAmount, l.AllowedAmount, l.PaidAmount, l.CopayAmount, l.CoinsuranceAmount, l.DeductibleAmount,
		string(l.Status), l.DenialReasonCode, l.DenialReasonDescription)
	if err != nil {
		return fmt.Errorf("insert service line %d: %w", l.LineNumber, err)
	}
	return nil
}

func (r *claimRepoPG) GetByID(ctx context.Context, orgID, id uuid.UUID) (*Claim, error) {
	c, err := scanClaim(r.conn(ctx).QueryRow(ctx,
		`SELECT `+claimCols+` FROM claims WHERE id = $1 AND organization_id = $2`, id, orgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if c.ServiceLines, err = r.linesFor(ctx, c.ID); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *claimRepoPG) linesFor(ctx context.Context, claimID uuid.UUID) ([]*ServiceLine, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+lineCols+` FROM claim_service_lines WHERE claim_id = $1 ORDER BY line_number`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []*ServiceLine{}
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *claimRepoPG) Save(ctx context.Context, c *Claim) error {
	js, err := encodeClaimJSON(c)
	if err != nil {
		return fmt.Errorf("encode claim %s: %w", c.ClaimNumber, err)
	}

	err = db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		tag, err := r.conn(ctx).Exec(ctx, `
			UPDATE claims SET status=$4, processed_date=$5, paid_date=$6,
				total_charged_amount=$7, total_allowed_amount=$8, total_paid_amount=$9,
				total_member_responsibility=$10, total_deductible=$11, total_copay=$12, total_coinsurance=$13,
				adjudication_rules=$14, ai_recommendation=$15, ai_confidence_score=$16, ai_analysis=$17,
				assigned_processor_id=$18, assigned_processor_name=$19,
				notes=$20, adjustment_codes=$21, check_number=$22,
				updated_at=$23, version_id = version_id + 1
			WHERE id = $1 AND organization_id = $2 AND version_id = $3`,
			c.ID, c.OrganizationID, c.VersionID,
			string(c.Status), c.ProcessedDate, c.PaidDate,
			c.TotalChargedAmount, c.TotalAllowedAmount, c.TotalPaidAmount,
			c.TotalMemberResponsibility, c.TotalDeductible, c.TotalCopay, c.TotalCoinsurance,
			js.rules, recommendationArg(c.AIRecommendation), c.AIConfidenceScore, js.ai,
			c.AssignedProcessorID, c.AssignedProcessorName,
			js.notes, js.adj, c.CheckNumber,
			c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update claim %s: %w", c.ClaimNumber, err)
		}
		if tag.RowsAffected() == 0 {
			return ErrConcurrentModification
		}
		for _, l := range c.ServiceLines {
			_, err := r.conn(ctx).Exec(ctx, `
				UPDATE claim_service_lines SET allowed_amount=$3, paid_amount=$4, copay_amount=$5,
					coinsurance_amount=$6, deductible_amount=$7, status=$8,
					denial_reason_code=$9, denial_reason_description=$10
				WHERE id = $1 AND claim_id = $2`,
				l.ID, c.ID, l.AllowedAmount, l.PaidAmount, l.CopayAmount,
				l.CoinsuranceAmount, l.DeductibleAmount, string(l.Status),
				l.DenialReasonCode, l.DenialReasonDescription)
			if err != nil {
				return fmt.Errorf("update service line %d: %w", l.LineNumber, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.VersionID++
	return nil
}

func (r *claimRepoPG) FindDuplicateCandidate(ctx context.Context, crit DuplicateCriteria) (*Claim, error) {
	c, err := scanClaim(r.conn(ctx).QueryRow(ctx, `
		SELECT `+claimCols+` FROM claims
		WHERE organization_id = $1 AND member_id = $2 AND rendering_provider_id = $3
			AND service_from_date = $4 AND primary_diagnosis_code = $5 AND id <> $6
		ORDER BY created_at
		LIMIT 1`,
		crit.OrganizationID, crit.MemberID, crit.RenderingProviderID,
		crit.ServiceFromDate, crit.PrimaryDiagnosisCode, crit.ExcludeClaimID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find duplicate claim: %w", err)
	}
	return c, nil
}

// =========== Number Generator ===========

type numberGeneratorPG struct{ pool *pgxpool.Pool }

// NewNumberGeneratorPG serializes sequence allocation through row locks on
// claim_number_counters and check_number_counters.
func NewNumberGeneratorPG(pool *pgxpool.Pool) NumberGenerator {
	return &numberGeneratorPG{pool: pool}
}

func (g *numberGeneratorPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return g.pool
}

func (g *numberGeneratorPG) NextClaimNumber(ctx context.Context, orgID uuid.UUID, year int) (string, error) {
	var seq int64
	err := g.conn(ctx).QueryRow(ctx, `
		INSERT INTO claim_number_counters (organization_id, year, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (organization_id, year)
		DO UPDATE SET last_value = claim_number_counters.last_value + 1
		RETURNING last_value`, orgID, year).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("allocate claim number: %w", err)
	}
	return FormatClaimNumber(year, seq), nil
}

func (g *numberGeneratorPG) NextCheckNumber(ctx context.Context, orgID uuid.UUID, checkDate time.Time) (string, error) {
	day := DateOf(checkDate)
	var seq int
	err := g.conn(ctx).QueryRow(ctx, `
		INSERT INTO check_number_counters (organization_id, check_date, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (organization_id, check_date)
		DO UPDATE SET last_value = check_number_counters.last_value + 1
		RETURNING last_value`, orgID, day).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("allocate check number: %w", err)
	}
	return FormatCheckNumber(day, seq), nil
}
