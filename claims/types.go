/*
Package claims is the claims policy engine: eligibility, payout, cancellation
and the claim lifecycle, plus the Service that runs them against storage.

PURPOSE:
  Decides whether a parking-ticket claim is payable, how much to pay, and
  whether a member may cancel. The policy functions (Engine.Evaluate,
  Engine.CalculatePayout, CheckCancellation) are pure: every input is an
  explicit parameter and nothing is read from or written to storage.
  Service wraps them with persistence and per-member serialization.

CLAIM LIFECYCLE:
  submitted -> under_review -> approved -> paid
          \          \
           \          +-> denied
            +-> approved / denied

  Status only moves forward. paid and denied are absorbing: any further
  decision on them is a StateError.

ERROR MODEL:
  Business-rule rejections come back as EligibilityResult with a denial
  code. Malformed input is *InvalidInputError, impossible transitions are
  *StateError. Both wrap the generic sentinels.

SEE ALSO:
  - eligibility.go: Ordered eligibility checks
  - payout.go: Reimbursement calculation
  - service.go: Persistence and locking
*/
package claims

import (
	"github.com/warp/ticket-cover/generic"
	"github.com/warp/ticket-cover/policy"
)

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusSubmitted   Status = "submitted"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusPaid        Status = "paid"
	StatusDenied      Status = "denied"
)

// IsTerminal reports whether the status is absorbing.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusDenied
}

// =============================================================================
// CLAIM
// =============================================================================

// Claim is a reimbursement request for one parking ticket.
type Claim struct {
	ID           string
	UserID       generic.EntityID
	TicketNumber string
	TicketDate   generic.TimePoint
	City         string
	State        string
	Violation    policy.ViolationType
	Amount       generic.Amount
	Status       Status
	SubmittedAt  generic.TimePoint
	UpdatedAt    generic.TimePoint

	PayoutAmount  *generic.Amount
	PayoutDate    *generic.TimePoint
	DenialReason  string
	DecisionNotes string

	// Reviewer-facing notes from the evaluator (jurisdiction).
	Warnings []string

	// Plan rules in force when the claim was submitted. Payout uses this
	// snapshot so a later plan change does not alter the deductible.
	Plan policy.PlanConfig
}

// =============================================================================
// USER
// =============================================================================

// User is the subset of a member record the policy engine reads.
type User struct {
	ID                    generic.EntityID
	Name                  string
	MembershipStartedAt   generic.TimePoint
	CurrentPlan           policy.Tier
	HasActiveSubscription bool

	// Two-letter registered operating state.
	State string

	LastClaimPayoutDate *generic.TimePoint
}

// =============================================================================
// SUBMISSION
// =============================================================================

// SubmissionPayload is the raw claim as received from the app or the
// ticket scanner. Fields are strings so validation can report which one
// is malformed.
type SubmissionPayload struct {
	TicketNumber  string
	TicketDate    string // ISO date
	City          string
	State         string
	ViolationType string
	Amount        string // positive decimal
}

// EligibilityResult is the evaluator's verdict.
type EligibilityResult struct {
	Eligible   bool
	Reason     string
	DenialCode string
	Appealable bool
	Warnings   []string
}

// SubmissionResult is what Service.SubmitClaim returns: the verdict and,
// when eligible, the persisted claim and the ledger after the ticket was
// consumed.
type SubmissionResult struct {
	Eligibility EligibilityResult
	Claim       *Claim
	Ledger      LedgerView
}

// LedgerView is a read-only summary of a coverage ledger.
type LedgerView struct {
	PlanID           policy.Tier
	AnnualCap        generic.Amount
	UsedAmount       generic.Amount
	RemainingAmount  generic.Amount
	TicketsUsed      int
	MaxTickets       int
	TicketsRemaining int
	Period           generic.Period
}

// CancellationResult is the cancellation checker's verdict.
type CancellationResult struct {
	CanCancel     bool
	Reason        string
	DaysRemaining int
}
