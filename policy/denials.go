package policy

// DenialCode is a machine-readable rejection reason.
type DenialCode struct {
	Code       string
	Reason     string
	Appealable bool
}

// Eligibility denial codes, produced by the evaluator.
const (
	DenialNoActiveMembership  = "NO_ACTIVE_MEMBERSHIP"
	DenialWaitingPeriod       = "WAITING_PERIOD"
	DenialLateSubmission      = "LATE_SUBMISSION"
	DenialExcludedViolation   = "EXCLUDED_VIOLATION"
	DenialDuplicateClaim      = "DUPLICATE_CLAIM"
	DenialCapExceeded         = "CAP_EXCEEDED"
	DenialTicketLimitExceeded = "TICKET_LIMIT_EXCEEDED"
)

// Reviewer denial codes, chosen when a submitted claim is denied.
const (
	DenialInsufficientDocs = "INSUFFICIENT_DOCUMENTATION"
	DenialIllegibleTicket  = "ILLEGIBLE_TICKET"
	DenialOutsideCoverage  = "OUTSIDE_COVERAGE_AREA"
	DenialNotWorkRelated   = "NOT_WORK_RELATED"
	DenialTicketDismissed  = "TICKET_DISMISSED"
	DenialSuspectedFraud   = "SUSPECTED_FRAUD"
	DenialUnspecified      = "UNSPECIFIED"
)

// DefaultDenialCodes is the built-in denial catalog.
func DefaultDenialCodes() []DenialCode {
	return []DenialCode{
		{Code: DenialNoActiveMembership, Reason: "No active membership on the ticket date", Appealable: false},
		{Code: DenialWaitingPeriod, Reason: "Ticket issued during the new-member waiting period", Appealable: false},
		{Code: DenialLateSubmission, Reason: "Claim submitted more than 5 days after the ticket was issued", Appealable: true},
		{Code: DenialExcludedViolation, Reason: "Violation type is not covered", Appealable: false},
		{Code: DenialDuplicateClaim, Reason: "A claim for this ticket number already exists", Appealable: false},
		{Code: DenialCapExceeded, Reason: "Annual coverage cap has been reached", Appealable: false},
		{Code: DenialTicketLimitExceeded, Reason: "Annual ticket limit has been reached", Appealable: false},
		{Code: DenialInsufficientDocs, Reason: "Ticket photo or details are incomplete", Appealable: true},
		{Code: DenialIllegibleTicket, Reason: "Ticket image could not be read", Appealable: true},
		{Code: DenialOutsideCoverage, Reason: "Ticket issued outside the member's operating area", Appealable: true},
		{Code: DenialNotWorkRelated, Reason: "Ticket not incurred while driving for a gig platform", Appealable: true},
		{Code: DenialTicketDismissed, Reason: "Ticket was dismissed or not owed", Appealable: false},
		{Code: DenialSuspectedFraud, Reason: "Claim failed verification", Appealable: false},
	}
}

// Unspecified is the fallback for codes missing from the catalog.
var Unspecified = DenialCode{
	Code:       DenialUnspecified,
	Reason:     "Claim denied",
	Appealable: false,
}
