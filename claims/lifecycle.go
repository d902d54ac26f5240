package claims

import "github.com/warp/ticket-cover/generic"

// allowedTransitions lists forward moves only. paid and denied have none.
var allowedTransitions = map[Status][]Status{
	StatusSubmitted:   {StatusUnderReview, StatusApproved, StatusDenied},
	StatusUnderReview: {StatusApproved, StatusDenied},
	StatusApproved:    {StatusPaid},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// transition moves the claim to status, stamping UpdatedAt, or returns a
// StateError naming the action.
func (c *Claim) transition(to Status, action string, at generic.TimePoint) error {
	if !CanTransition(c.Status, to) {
		return &StateError{ClaimID: c.ID, From: c.Status, Action: action}
	}
	c.Status = to
	c.UpdatedAt = at
	return nil
}
