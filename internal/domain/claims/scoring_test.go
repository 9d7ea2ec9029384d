package claims

import "testing"

func mkVerdict(id string, cat Category, res RuleResult, action Action) Verdict {
	return Verdict{RuleID: id, RuleName: id, Category: cat, Result: res, AutoAction: action, Message: id + " message"}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		verdicts []Verdict
		rec      Action
		conf     float64
		status   Status
		risk     RiskTier
	}{
		{
			"all pass",
			[]Verdict{mkVerdict("A", CategoryCoding, ResultPass, ""), mkVerdict("B", CategoryPricing, ResultInfo, "")},
			ActionApprove, 0.92, StatusAdjudicated, RiskLow,
		},
		{
			"warning pends",
			[]Verdict{mkVerdict("A", CategoryCoding, ResultPass, ""), mkVerdict("B", CategoryPricing, ResultWarning, ActionReview)},
			ActionPend, 0.75, StatusInReview, RiskMedium,
		},
		{
			"failure reviews",
			[]Verdict{mkVerdict("A", CategoryDuplicate, ResultFail, ActionReview), mkVerdict("B", CategoryPricing, ResultWarning, "")},
			ActionReview, 0.60, StatusInReview, RiskHigh,
		},
		{
			"auto deny wins",
			[]Verdict{mkVerdict("A", CategoryDuplicate, ResultFail, ActionReview), mkVerdict("TF", CategoryTimelyFiling, ResultFail, ActionDeny)},
			ActionDeny, 0.95, StatusDenied, RiskHigh,
		},
		{
			"empty approves",
			nil,
			ActionApprove, 0.92, StatusAdjudicated, RiskLow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Aggregate(tt.verdicts)
			if d.Recommendation != tt.rec || d.Confidence != tt.conf || d.Status != tt.status || d.Risk != tt.risk {
				t.Errorf("got %s/%v/%s/%s, want %s/%v/%s/%s",
					d.Recommendation, d.Confidence, d.Status, d.Risk, tt.rec, tt.conf, tt.status, tt.risk)
			}
		})
	}
}

func TestAggregate_CountsAndDenyVerdict(t *testing.T) {
	vs := []Verdict{
		mkVerdict("A", CategoryCoding, ResultPass, ""),
		mkVerdict("B", CategoryCoding, ResultWarning, ""),
		mkVerdict("C", CategoryTimelyFiling, ResultFail, ActionDeny),
		mkVerdict("D", CategoryEligibility, ResultFail, ActionDeny),
		mkVerdict("E", CategoryPricing, ResultInfo, ""),
	}
	d := Aggregate(vs)
	if d.Passed != 1 || d.Warnings != 1 || d.Failed != 2 {
		t.Errorf("unexpected counts: %d/%d/%d", d.Passed, d.Warnings, d.Failed)
	}
	if d.DenyVerdict == nil || d.DenyVerdict.RuleID != "C" {
		t.Errorf("expected first deny verdict C, got %+v", d.DenyVerdict)
	}
}

func TestFraudScore(t *testing.T) {
	s := NewScorer(DefaultFeeSchedule(), 100000)
	c := &Claim{TotalChargedAmount: 500}

	if got := s.FraudScore(c, []Verdict{mkVerdict("A", CategoryCoding, ResultPass, "")}); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
	got := s.FraudScore(c, []Verdict{
		mkVerdict("A", CategoryCoding, ResultFail, ""),
		mkVerdict("B", CategoryCoding, ResultWarning, ""),
		mkVerdict("C", CategoryPricing, ResultInfo, ""),
	})
	if got != 35 {
		t.Errorf("expected 35, got %d", got)
	}

	c.TotalChargedAmount = 150000
	if got := s.FraudScore(c, []Verdict{mkVerdict("DUP", CategoryDuplicate, ResultFail, ActionReview)}); got != 70 {
		t.Errorf("expected 25+30+15=70, got %d", got)
	}

	many := []Verdict{
		mkVerdict("A", CategoryDuplicate, ResultFail, ""), mkVerdict("B", CategoryCoding, ResultFail, ""),
		mkVerdict("C", CategoryCoding, ResultFail, ""), mkVerdict("D", CategoryEligibility, ResultFail, ""),
	}
	if got := s.FraudScore(c, many); got != 100 {
		t.Errorf("expected cap at 100, got %d", got)
	}
}

func TestCodingAccuracy(t *testing.T) {
	if got := CodingAccuracy(nil); got != 100 {
		t.Errorf("expected 100 with no coding verdicts, got %d", got)
	}
	got := CodingAccuracy([]Verdict{
		mkVerdict("A", CategoryCoding, ResultPass, ""),
		mkVerdict("B", CategoryCoding, ResultPass, ""),
		mkVerdict("C", CategoryCoding, ResultWarning, ""),
		mkVerdict("D", CategoryPricing, ResultFail, ""),
	})
	if got != 67 {
		t.Errorf("expected 67, got %d", got)
	}
}

func TestPriceReasonableness(t *testing.T) {
	s := NewScorer(FeeSchedule{"99213": 100}, 100000)
	tests := []struct {
		charged float64
		want    int
	}{
		{0, 0},
		{100, 95},
		{150, 80},
		{200, 60},
		{300, 40},
		{301, 20},
	}
	for _, tt := range tests {
		c := &Claim{
			TotalChargedAmount: tt.charged,
			ServiceLines:       []*ServiceLine{{ProcedureCode: "99213", Units: 1, ChargedAmount: tt.charged}},
		}
		if got := s.PriceReasonableness(c); got != tt.want {
			t.Errorf("charged %v: expected %d, got %d", tt.charged, tt.want, got)
		}
	}

	unscheduled := &Claim{
		TotalChargedAmount: 400,
		ServiceLines:       []*ServiceLine{{ProcedureCode: "A0425", Units: 2, ChargedAmount: 200}},
	}
	if got := s.PriceReasonableness(unscheduled); got != 95 {
		t.Errorf("unscheduled codes are expected at charge, got %d", got)
	}
}

func TestAnalyze(t *testing.T) {
	s := NewScorer(DefaultFeeSchedule(), 100000)
	vs := []Verdict{
		mkVerdict("A", CategoryCoding, ResultPass, ""),
		mkVerdict("B", CategoryEligibility, ResultWarning, ""),
		mkVerdict("C", CategoryDuplicate, ResultFail, ActionReview),
	}
	c := &Claim{TotalChargedAmount: 125, ServiceLines: []*ServiceLine{{ProcedureCode: "99213", Units: 1, ChargedAmount: 125}}}
	a := s.Analyze(c, vs, Aggregate(vs))

	if a.OverallRisk != RiskHigh || a.FraudScore != 65 || a.CodingAccuracy != 100 || a.PriceReasonableness != 95 {
		t.Errorf("unexpected analysis: %+v", a)
	}
	if len(a.Recommendations) != 2 || len(a.Flags) != 1 || a.Flags[0] != "C" {
		t.Errorf("unexpected recommendations/flags: %v / %v", a.Recommendations, a.Flags)
	}
}
