package claims

import (
	"strings"

	"github.com/warp/ticket-cover/generic"
	"github.com/warp/ticket-cover/policy"
)

// ValidateSubmission turns a raw payload into a candidate claim. It checks
// shape only: a well-formed claim can still be ineligible.
func ValidateSubmission(userID generic.EntityID, p SubmissionPayload, submittedAt generic.TimePoint) (Claim, error) {
	number := NormalizeTicketNumber(p.TicketNumber)
	if number == "" {
		return Claim{}, &InvalidInputError{Field: "ticket_number", Reason: "required"}
	}

	if strings.TrimSpace(p.TicketDate) == "" {
		return Claim{}, &InvalidInputError{Field: "ticket_date", Reason: "required"}
	}
	ticketDate, err := generic.ParseDate(strings.TrimSpace(p.TicketDate))
	if err != nil {
		return Claim{}, &InvalidInputError{Field: "ticket_date", Reason: "not an ISO date"}
	}
	if ticketDate.After(submittedAt) {
		return Claim{}, &InvalidInputError{Field: "ticket_date", Reason: "in the future"}
	}

	amount, err := generic.ParseMoney(strings.TrimSpace(p.Amount))
	if err != nil {
		return Claim{}, &InvalidInputError{Field: "amount", Reason: "not a decimal number"}
	}
	if !amount.IsPositive() {
		return Claim{}, &InvalidInputError{Field: "amount", Reason: "must be positive"}
	}

	violation := policy.NormalizeViolation(p.ViolationType)
	if violation == "" {
		return Claim{}, &InvalidInputError{Field: "violation_type", Reason: "required"}
	}

	return Claim{
		UserID:       userID,
		TicketNumber: number,
		TicketDate:   ticketDate,
		City:         strings.TrimSpace(p.City),
		State:        policy.NormalizeState(p.State),
		Violation:    violation,
		Amount:       amount,
		SubmittedAt:  submittedAt,
		UpdatedAt:    submittedAt,
	}, nil
}

// NormalizeTicketNumber trims and upper-cases a citation number so
// "ab-123 " and "AB-123" are the same ticket.
func NormalizeTicketNumber(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
