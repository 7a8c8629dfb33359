package referral

// Status is a referral lifecycle state.
type Status string

const (
	StatusNew       Status = "new"
	StatusNeedsInfo Status = "needs_info"
	StatusApproved  Status = "approved"
	StatusScheduled Status = "scheduled"
	StatusOngoing   Status = "ongoing"
	StatusClosed    Status = "closed"
	StatusRejected  Status = "rejected"
)

// transitions is the directed status graph. Closed and Rejected are terminal.
var transitions = map[Status][]Status{
	StatusNew:       {StatusNeedsInfo, StatusApproved, StatusRejected},
	StatusNeedsInfo: {StatusNew, StatusApproved, StatusRejected},
	StatusApproved:  {StatusScheduled, StatusRejected},
	StatusScheduled: {StatusOngoing, StatusClosed},
	StatusOngoing:   {StatusClosed},
	StatusClosed:    {},
	StatusRejected:  {},
}

// ValidStatus reports whether s is a known status.
func ValidStatus(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether a referral in from may move to to. A
// self-transition of a known status is always allowed.
func CanTransition(from, to Status) bool {
	if !ValidStatus(from) || !ValidStatus(to) {
		return false
	}
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AllowedTransitions lists the statuses reachable from from in one step. The
// result is never nil and may be modified by the caller.
func AllowedTransitions(from Status) []Status {
	next := transitions[from]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// Terminal reports whether no further transition is possible from s.
func Terminal(s Status) bool {
	return ValidStatus(s) && len(transitions[s]) == 0
}
