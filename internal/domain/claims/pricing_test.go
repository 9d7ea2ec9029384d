package claims

import (
	"math"
	"testing"
)

func TestPriceLine(t *testing.T) {
	p := NewPricer(DefaultFeeSchedule(), DefaultPricingConfig())
	tests := []struct {
		name    string
		line    ServiceLine
		allowed float64
		copay   float64
		coins   float64
		paid    float64
	}{
		{"scheduled office visit", ServiceLine{ProcedureCode: "99213", Units: 1, ChargedAmount: 150}, 125, 25, 20, 80},
		{"charge below fee", ServiceLine{ProcedureCode: "99214", Units: 1, ChargedAmount: 150}, 150, 25, 25, 100},
		{"multiple units", ServiceLine{ProcedureCode: "99213", Units: 3, ChargedAmount: 100}, 300, 25, 55, 220},
		{"unscheduled code", ServiceLine{ProcedureCode: "A0425", Units: 2, ChargedAmount: 100}, 160, 25, 27, 108},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lp := p.PriceLine(&tt.line)
			if lp.Allowed != tt.allowed || lp.Copay != tt.copay || lp.Coinsurance != tt.coins || lp.Paid != tt.paid {
				t.Errorf("got allowed=%v copay=%v coins=%v paid=%v", lp.Allowed, lp.Copay, lp.Coinsurance, lp.Paid)
			}
			if lp.Deductible != 0 {
				t.Errorf("expected no deductible, got %v", lp.Deductible)
			}
		})
	}
}

func TestPriceLine_AllowedBelowCopay(t *testing.T) {
	p := NewPricer(FeeSchedule{"36415": 10}, DefaultPricingConfig())
	lp := p.PriceLine(&ServiceLine{ProcedureCode: "36415", Units: 1, ChargedAmount: 30})
	if lp.Allowed != 10 || lp.Copay != 10 || lp.Coinsurance != 0 || lp.Paid != 0 {
		t.Errorf("copay must be capped at allowed: %+v", lp)
	}
}

func TestPriceLine_AmountsBalance(t *testing.T) {
	p := NewPricer(DefaultFeeSchedule(), PricingConfig{Copay: 17.35, CoinsuranceRate: 0.137, DefaultAllowanceRate: 0.713})
	for _, charged := range []float64{0.01, 9.99, 33.33, 125.125, 1999.95, 48213.07} {
		for _, code := range []string{"99213", "70553", "J3490"} {
			lp := p.PriceLine(&ServiceLine{ProcedureCode: code, Units: 1, ChargedAmount: charged})
			if lp.Paid < 0 {
				t.Errorf("%s $%v: negative paid %v", code, charged, lp.Paid)
			}
			if math.Abs(lp.Copay+lp.Coinsurance+lp.Paid-lp.Allowed) > 0.005 {
				t.Errorf("%s $%v: %v + %v + %v != %v", code, charged, lp.Copay, lp.Coinsurance, lp.Paid, lp.Allowed)
			}
		}
	}
}

func TestApply_TotalsAndIdempotence(t *testing.T) {
	p := NewPricer(DefaultFeeSchedule(), DefaultPricingConfig())
	c := &Claim{ServiceLines: []*ServiceLine{
		{LineNumber: 1, ProcedureCode: "99213", Units: 1, ChargedAmount: 150},
		{LineNumber: 2, ProcedureCode: "71046", Units: 1, ChargedAmount: 90},
	}}
	p.Apply(c)

	if c.TotalAllowedAmount != 190 || c.TotalCopay != 50 || c.TotalCoinsurance != 28 || c.TotalPaidAmount != 112 {
		t.Errorf("unexpected totals: allowed=%v copay=%v coins=%v paid=%v",
			c.TotalAllowedAmount, c.TotalCopay, c.TotalCoinsurance, c.TotalPaidAmount)
	}
	if c.TotalMemberResponsibility != 78 {
		t.Errorf("expected member responsibility 78, got %v", c.TotalMemberResponsibility)
	}
	if !c.Priced() {
		t.Error("expected claim to report priced")
	}

	first := c.Clone()
	p.Apply(c)
	for i, l := range c.ServiceLines {
		prev := first.ServiceLines[i]
		if l.AllowedAmount != prev.AllowedAmount || l.CopayAmount != prev.CopayAmount ||
			l.CoinsuranceAmount != prev.CoinsuranceAmount || l.PaidAmount != prev.PaidAmount {
			t.Errorf("line %d changed on second pricing", l.LineNumber)
		}
	}
	if c.TotalPaidAmount != first.TotalPaidAmount || c.TotalAllowedAmount != first.TotalAllowedAmount {
		t.Error("pricing twice must not change totals")
	}
}

func TestRound2(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{1.005, 1.01},
		{2.675, 2.68},
		{1.004, 1.00},
		{-1.005, -1.01},
		{0.1 + 0.2, 0.30},
		{80, 80},
	}
	for _, tt := range tests {
		if got := round2(tt.in); got != tt.want {
			t.Errorf("round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestChargedTotal(t *testing.T) {
	lines := []*ServiceLine{
		{Units: 2, ChargedAmount: 40.125},
		{Units: 1, ChargedAmount: 0.1},
		{Units: 1, ChargedAmount: 0.2},
	}
	if got := chargedTotal(lines); got != 80.55 {
		t.Errorf("expected 80.55, got %v", got)
	}
}
