package claims

import "math"

// Decision is the aggregated outcome of a rule run.
type Decision struct {
	Recommendation Action
	Confidence     float64
	Status         Status
	Risk           RiskTier
	Passed         int
	Failed         int
	Warnings       int
	// DenyVerdict is the first failure that requested an automatic denial.
	DenyVerdict *Verdict
}

// Aggregate applies the tie-break policy: any auto-deny failure denies, any
// other failure goes to review, any warning pends, otherwise approve.
func Aggregate(verdicts []Verdict) Decision {
	var d Decision
	for i := range verdicts {
		switch verdicts[i].Result {
		case ResultPass:
			d.Passed++
		case ResultFail:
			d.Failed++
			if verdicts[i].AutoAction == ActionDeny && d.DenyVerdict == nil {
				d.DenyVerdict = &verdicts[i]
			}
		case ResultWarning:
			d.Warnings++
		}
	}

	switch {
	case d.DenyVerdict != nil:
		d.Recommendation, d.Confidence, d.Status = ActionDeny, 0.95, StatusDenied
	case d.Failed > 0:
		d.Recommendation, d.Confidence, d.Status = ActionReview, 0.60, StatusInReview
	case d.Warnings > 0:
		d.Recommendation, d.Confidence, d.Status = ActionPend, 0.75, StatusInReview
	default:
		d.Recommendation, d.Confidence, d.Status = ActionApprove, 0.92, StatusAdjudicated
	}

	switch {
	case d.Failed > 0:
		d.Risk = RiskHigh
	case d.Warnings > 0:
		d.Risk = RiskMedium
	default:
		d.Risk = RiskLow
	}
	return d
}

// Scorer derives the heuristic analysis scores.
type Scorer struct {
	schedule            FeeSchedule
	highDollarThreshold float64
}

func NewScorer(schedule FeeSchedule, highDollarThreshold float64) *Scorer {
	return &Scorer{schedule: schedule, highDollarThreshold: highDollarThreshold}
}

// Analyze builds the AI analysis block for a claim and its verdicts.
func (s *Scorer) Analyze(c *Claim, verdicts []Verdict, d Decision) *AIAnalysis {
	a := &AIAnalysis{
		OverallRisk:         d.Risk,
		FraudScore:          s.FraudScore(c, verdicts),
		CodingAccuracy:      CodingAccuracy(verdicts),
		PriceReasonableness: s.PriceReasonableness(c),
		Recommendations:     []string{},
		Flags:               []string{},
	}
	for _, v := range verdicts {
		if v.Result != ResultPass {
			a.Recommendations = append(a.Recommendations, v.Message)
		}
		if v.Result == ResultFail {
			a.Flags = append(a.Flags, v.RuleName)
		}
	}
	return a
}

// FraudScore is 25 per failure plus 10 per warning, +15 for high-dollar
// claims, +30 when the duplicate rule failed, capped at 100.
func (s *Scorer) FraudScore(c *Claim, verdicts []Verdict) int {
	score := 0
	dupFailed := false
	for _, v := range verdicts {
		switch v.Result {
		case ResultFail:
			score += 25
			if v.Category == CategoryDuplicate {
				dupFailed = true
			}
		case ResultWarning:
			score += 10
		}
	}
	if c.TotalChargedAmount > s.highDollarThreshold {
		score += 15
	}
	if dupFailed {
		score += 30
	}
	if score > 100 {
		return 100
	}
	return score
}

// CodingAccuracy is the pass percentage of coding verdicts, 100 when none.
func CodingAccuracy(verdicts []Verdict) int {
	total, passed := 0, 0
	for _, v := range verdicts {
		if v.Category != CategoryCoding {
			continue
		}
		total++
		if v.Result == ResultPass {
			passed++
		}
	}
	if total == 0 {
		return 100
	}
	return int(math.Round(100 * float64(passed) / float64(total)))
}

// PriceReasonableness compares total charges with the fee-schedule
// expectation. Unscheduled codes are expected at their billed charge.
func (s *Scorer) PriceReasonableness(c *Claim) int {
	charged := c.TotalChargedAmount
	if charged <= 0 {
		return 0
	}

	var expected float64
	for _, l := range c.ServiceLines {
		units := float64(l.Units)
		if fee, ok := s.schedule.Lookup(l.ProcedureCode); ok {
			expected += fee * units
		} else {
			expected += l.ChargedAmount * units
		}
	}
	if expected == 0 {
		return 50
	}

	ratio := charged / expected
	switch {
	case ratio <= 1.0:
		return 95
	case ratio <= 1.5:
		return 80
	case ratio <= 2.0:
		return 60
	case ratio <= 3.0:
		return 40
	}
	return 20
}
