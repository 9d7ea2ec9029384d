package claims

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

type stubFinder struct {
	dup  *Claim
	err  error
	crit DuplicateCriteria
}

func (s *stubFinder) FindDuplicateCandidate(_ context.Context, crit DuplicateCriteria) (*Claim, error) {
	s.crit = crit
	return s.dup, s.err
}

func ruleClaim() *Claim {
	received := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return &Claim{
		ID:                    uuid.New(),
		OrganizationID:        testOrg,
		ClaimNumber:           "CLM-2026-000010",
		MemberID:              "MBR-1",
		MemberPlanID:          "PLAN-1",
		RenderingProviderID:   "PRV-1",
		RenderingProviderNPI:  "1234567890",
		RenderingProviderName: "Dr. Osei",
		ServiceFromDate:       received.AddDate(0, 0, -30),
		ReceivedDate:          received,
		PrimaryDiagnosisCode:  "J06.9",
		TotalChargedAmount:    150,
		ServiceLines: []*ServiceLine{
			{LineNumber: 1, ProcedureCode: "99213", Units: 1, ChargedAmount: 150, Status: LinePending},
		},
	}
}

func verdictByID(t *testing.T, vs []Verdict, id string) Verdict {
	t.Helper()
	for _, v := range vs {
		if v.RuleID == id {
			return v
		}
	}
	t.Fatalf("verdict %s not found", id)
	return Verdict{}
}

func evaluate(t *testing.T, c *Claim) []Verdict {
	t.Helper()
	vs, err := NewRules(DefaultRuleConfig(), &stubFinder{}).Evaluate(context.Background(), c)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	return vs
}

func TestEvaluate_OrderAndCount(t *testing.T) {
	c := ruleClaim()
	c.ServiceLines = append(c.ServiceLines, &ServiceLine{LineNumber: 2, ProcedureCode: "71046", Units: 1, ChargedAmount: 60})

	vs := evaluate(t, c)
	want := []string{"TF-001", "DUP-001", "COMPAT-001", "ELIG-001", "NET-001", "SL-001-1", "SL-001-2", "CR-001", "PA-001"}
	if len(vs) != len(want) {
		t.Fatalf("expected %d verdicts, got %d", len(want), len(vs))
	}
	for i, id := range want {
		if vs[i].RuleID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, vs[i].RuleID)
		}
		if vs[i].Result != ResultPass {
			t.Errorf("%s: expected pass, got %s (%s)", id, vs[i].Result, vs[i].Message)
		}
	}
}

func TestTimelyFiling(t *testing.T) {
	tests := []struct {
		days   int
		want   RuleResult
		action Action
	}{
		{0, ResultPass, ""},
		{180, ResultPass, ""},
		{181, ResultWarning, ""},
		{365, ResultWarning, ""},
		{366, ResultFail, ActionDeny},
		{400, ResultFail, ActionDeny},
	}
	for _, tt := range tests {
		c := ruleClaim()
		c.ServiceFromDate = c.ReceivedDate.AddDate(0, 0, -tt.days)
		v := verdictByID(t, evaluate(t, c), "TF-001")
		if v.Result != tt.want || v.AutoAction != tt.action {
			t.Errorf("%d days: expected %s/%q, got %s/%q", tt.days, tt.want, tt.action, v.Result, v.AutoAction)
		}
		if tt.want == ResultFail && (v.AdjustmentGroup != "CO" || v.AdjustmentReason != "29" || v.Confidence != 0.99) {
			t.Errorf("%d days: unexpected denial metadata %+v", tt.days, v)
		}
	}
}

func TestDuplicateCheck(t *testing.T) {
	c := ruleClaim()
	finder := &stubFinder{dup: &Claim{ID: uuid.New(), ClaimNumber: "CLM-2026-000003"}}
	vs, err := NewRules(DefaultRuleConfig(), finder).Evaluate(context.Background(), c)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	v := verdictByID(t, vs, "DUP-001")
	if v.Result != ResultFail || v.AutoAction != ActionReview || !strings.Contains(v.Message, "CLM-2026-000003") {
		t.Errorf("unexpected duplicate verdict: %+v", v)
	}
	if finder.crit.ExcludeClaimID != c.ID || finder.crit.MemberID != "MBR-1" || !finder.crit.ServiceFromDate.Equal(DateOf(c.ServiceFromDate)) {
		t.Errorf("unexpected criteria: %+v", finder.crit)
	}

	finder.dup = c
	vs, _ = NewRules(DefaultRuleConfig(), finder).Evaluate(context.Background(), c)
	if v := verdictByID(t, vs, "DUP-001"); v.Result != ResultPass {
		t.Error("a claim must never be its own duplicate")
	}

	finder.err = errors.New("timeout")
	if _, err := NewRules(DefaultRuleConfig(), finder).Evaluate(context.Background(), c); !errors.Is(err, ErrPersistence) {
		t.Errorf("expected persistence failure, got %v", err)
	}
}

func TestCompatibility(t *testing.T) {
	c := ruleClaim()
	c.PrimaryDiagnosisCode = "Z00.00"
	c.ServiceLines[0].ProcedureCode = "99283"
	v := verdictByID(t, evaluate(t, c), "COMPAT-001")
	if v.Result != ResultFail || v.AutoAction != ActionReview {
		t.Errorf("expected incompatible fail, got %+v", v)
	}

	for _, code := range []string{"j06.9", "J6", "123.4", "J06.12345"} {
		c := ruleClaim()
		c.PrimaryDiagnosisCode = code
		if v := verdictByID(t, evaluate(t, c), "COMPAT-001"); v.Result != ResultWarning {
			t.Errorf("%s: expected format warning, got %s", code, v.Result)
		}
	}
	for _, code := range []string{"J06", "E11.65", "S72.0011"} {
		c := ruleClaim()
		c.PrimaryDiagnosisCode = code
		if v := verdictByID(t, evaluate(t, c), "COMPAT-001"); v.Result != ResultPass {
			t.Errorf("%s: expected pass, got %s", code, v.Result)
		}
	}
}

func TestEligibilityAndNetwork(t *testing.T) {
	c := ruleClaim()
	c.MemberPlanID = ""
	c.RenderingProviderNPI = "12345"
	vs := evaluate(t, c)

	if v := verdictByID(t, vs, "ELIG-001"); v.Result != ResultFail || v.AutoAction != ActionPend {
		t.Errorf("expected eligibility fail/pend, got %+v", v)
	}
	if v := verdictByID(t, vs, "NET-001"); v.Result != ResultWarning {
		t.Errorf("expected NPI warning, got %+v", v)
	}
}

func TestServiceLineValidation(t *testing.T) {
	tests := []struct {
		code    string
		charged float64
		want    RuleResult
	}{
		{"99213", 100, ResultPass},
		{"G0008", 25, ResultPass},
		{"9921", 100, ResultWarning},
		{"ABCDE", 100, ResultWarning},
		{"99213", 0, ResultFail},
	}
	for _, tt := range tests {
		c := ruleClaim()
		c.ServiceLines[0].ProcedureCode = tt.code
		c.ServiceLines[0].ChargedAmount = tt.charged
		v := verdictByID(t, evaluate(t, c), "SL-001-1")
		if v.Result != tt.want {
			t.Errorf("%s/%v: expected %s, got %s", tt.code, tt.charged, tt.want, v.Result)
		}
		if tt.want == ResultFail && v.Category != CategoryPricing {
			t.Errorf("zero charge should be a pricing failure, got %s", v.Category)
		}
	}
}

func TestChargeReasonableness(t *testing.T) {
	tests := []struct {
		total float64
		want  RuleResult
	}{
		{100000, ResultPass},
		{100000.01, ResultInfo},
		{500000, ResultInfo},
		{500000.01, ResultWarning},
	}
	for _, tt := range tests {
		c := ruleClaim()
		c.TotalChargedAmount = tt.total
		if v := verdictByID(t, evaluate(t, c), "CR-001"); v.Result != tt.want {
			t.Errorf("$%.2f: expected %s, got %s", tt.total, tt.want, v.Result)
		}
	}
}

func TestPriorAuthorization(t *testing.T) {
	c := ruleClaim()
	c.ServiceLines = append(c.ServiceLines, &ServiceLine{LineNumber: 2, ProcedureCode: "27447", Units: 1, ChargedAmount: 2000})
	v := verdictByID(t, evaluate(t, c), "PA-001")
	if v.Result != ResultWarning || v.AutoAction != ActionPend {
		t.Errorf("expected prior auth warning, got %+v", v)
	}
}

func TestEvaluate_DoesNotMutateClaim(t *testing.T) {
	c := ruleClaim()
	before := c.Clone()
	evaluate(t, c)
	if c.Status != before.Status || len(c.Notes) != len(before.Notes) || c.TotalAllowedAmount != before.TotalAllowedAmount {
		t.Error("rule evaluation must not change the claim")
	}
}
