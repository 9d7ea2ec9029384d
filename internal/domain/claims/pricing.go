package claims

import "math"

// PricingConfig holds the member cost-sharing parameters.
type PricingConfig struct {
	Copay                float64
	CoinsuranceRate      float64
	DefaultAllowanceRate float64
}

// DefaultPricingConfig is a $25 copay, 20% coinsurance, and 80% of charges
// allowed for codes missing from the fee schedule.
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{Copay: 25.00, CoinsuranceRate: 0.20, DefaultAllowanceRate: 0.80}
}

// LinePrice is the priced breakdown of one service line.
type LinePrice struct {
	Allowed     float64
	Copay       float64
	Coinsurance float64
	Deductible  float64
	Paid        float64
}

// Totals are the claim-level sums of line prices.
type Totals struct {
	Allowed           float64
	Paid              float64
	Copay             float64
	Coinsurance       float64
	Deductible        float64
	MemberResponsible float64
}

// Pricer computes allowed, paid and member responsibility amounts.
type Pricer struct {
	schedule FeeSchedule
	cfg      PricingConfig
}

func NewPricer(schedule FeeSchedule, cfg PricingConfig) *Pricer {
	return &Pricer{schedule: schedule, cfg: cfg}
}

// PriceLine prices a single line without mutating it. Amounts are rounded to
// cents and always satisfy Allowed == Copay + Coinsurance + Paid.
func (p *Pricer) PriceLine(l *ServiceLine) LinePrice {
	units := float64(l.Units)
	charged := l.ChargedAmount * units

	var allowed float64
	if fee, ok := p.schedule.Lookup(l.ProcedureCode); ok {
		allowed = math.Min(fee*units, charged)
	} else {
		allowed = charged * p.cfg.DefaultAllowanceRate
	}
	allowed = round2(math.Max(allowed, 0))

	copay := math.Min(p.cfg.Copay, allowed)
	afterCopay := math.Max(allowed-copay, 0)
	coinsurance := round2(afterCopay * p.cfg.CoinsuranceRate)

	return LinePrice{
		Allowed:     allowed,
		Copay:       round2(copay),
		Coinsurance: coinsurance,
		// Deductible accumulators are not tracked; see DESIGN.md.
		Deductible: 0,
		Paid:       round2(afterCopay - coinsurance),
	}
}

// Apply prices every line and recomputes the claim totals in place. Running
// it twice on an unchanged claim yields identical amounts.
func (p *Pricer) Apply(c *Claim) {
	for _, l := range c.ServiceLines {
		lp := p.PriceLine(l)
		l.AllowedAmount = lp.Allowed
		l.CopayAmount = lp.Copay
		l.CoinsuranceAmount = lp.Coinsurance
		l.DeductibleAmount = lp.Deductible
		l.PaidAmount = lp.Paid
	}
	applyTotals(c)
}

// SumLines totals the priced fields of the given lines.
func SumLines(lines []*ServiceLine) Totals {
	var t Totals
	for _, l := range lines {
		t.Allowed += l.AllowedAmount
		t.Paid += l.PaidAmount
		t.Copay += l.CopayAmount
		t.Coinsurance += l.CoinsuranceAmount
		t.Deductible += l.DeductibleAmount
	}
	t.Allowed = round2(t.Allowed)
	t.Paid = round2(t.Paid)
	t.Copay = round2(t.Copay)
	t.Coinsurance = round2(t.Coinsurance)
	t.Deductible = round2(t.Deductible)
	t.MemberResponsible = round2(t.Deductible + t.Copay + t.Coinsurance)
	return t
}

func applyTotals(c *Claim) {
	t := SumLines(c.ServiceLines)
	c.TotalAllowedAmount = t.Allowed
	c.TotalPaidAmount = t.Paid
	c.TotalCopay = t.Copay
	c.TotalCoinsurance = t.Coinsurance
	c.TotalDeductible = t.Deductible
	c.TotalMemberResponsibility = t.MemberResponsible
}

// chargedTotal is Σ charged × units, rounded to cents.
func chargedTotal(lines []*ServiceLine) float64 {
	var total float64
	for _, l := range lines {
		total += l.ChargedAmount * float64(l.Units)
	}
	return round2(total)
}

// round2 rounds half away from zero to cents. The value is first snapped to
// 1e-6 so binary noise (1.005 stored as 1.00499...) does not flip the half.
func round2(v float64) float64 {
	return math.Round(math.Round(v*1e6)/1e4) / 100
}
