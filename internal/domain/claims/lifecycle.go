package claims

import "sort"

// Operation names a state-changing (or note-appending) call on a claim.
type Operation string

const (
	OpValidate   Operation = "validate"
	OpAdjudicate Operation = "adjudicate"
	OpApprove    Operation = "approve"
	OpDeny       Operation = "deny"
	OpPend       Operation = "pend"
	OpAssign     Operation = "assign"
	OpNote       Operation = "note"
	OpPay        Operation = "pay"
)

var allStatuses = []Status{
	StatusReceived, StatusValidated, StatusPendingInfo, StatusInReview, StatusPriced,
	StatusAdjudicated, StatusApproved, StatusDenied, StatusPartiallyApproved,
	StatusAppealed, StatusPaid, StatusVoided, StatusSuspended,
}

type statusSet map[Status]bool

func setOf(ss ...Status) statusSet {
	m := make(statusSet, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}

func allExcept(ss ...Status) statusSet {
	skip := setOf(ss...)
	m := statusSet{}
	for _, s := range allStatuses {
		if !skip[s] {
			m[s] = true
		}
	}
	return m
}

var manualDecisionFrom = setOf(
	StatusReceived, StatusValidated, StatusInReview, StatusAdjudicated, StatusPriced, StatusPendingInfo,
)

var transitions = map[Operation]statusSet{
	OpValidate:   setOf(StatusReceived),
	OpAdjudicate: setOf(StatusReceived, StatusValidated),
	OpApprove:    manualDecisionFrom,
	OpDeny:       manualDecisionFrom,
	OpPend:       allExcept(StatusPaid, StatusVoided, StatusDenied),
	OpAssign:     allExcept(),
	OpNote:       allExcept(),
	OpPay:        setOf(StatusApproved),
}

// IsValidStatus reports whether s is a known lifecycle state.
func IsValidStatus(s Status) bool {
	for _, st := range allStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// CanPerform reports whether op is legal from status from.
func CanPerform(op Operation, from Status) bool {
	return transitions[op][from]
}

// AllowedFrom lists the statuses op may be invoked from, in lifecycle order.
func AllowedFrom(op Operation) []Status {
	set := transitions[op]
	out := make([]Status, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	order := make(map[Status]int, len(allStatuses))
	for i, s := range allStatuses {
		order[s] = i
	}
	sort.Slice(out, func(i, j int) bool { return order[out[i]] < order[out[j]] })
	return out
}

// checkTransition returns an InvalidStateTransitionError when op is not
// legal for the claim's current status.
func checkTransition(op Operation, c *Claim) error {
	if CanPerform(op, c.Status) {
		return nil
	}
	return &InvalidStateTransitionError{
		Operation:   op,
		ClaimNumber: c.ClaimNumber,
		Current:     c.Status,
		Allowed:     AllowedFrom(op),
	}
}
