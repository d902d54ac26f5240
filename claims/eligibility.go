package claims

import (
	"github.com/warp/ticket-cover/coverage"
	"github.com/warp/ticket-cover/generic"
	"github.com/warp/ticket-cover/policy"
)

// SubmissionWindowDays is how many calendar days after the ticket date a
// claim may still be submitted, inclusive.
const SubmissionWindowDays = 5

// Engine holds the policy functions over a catalog.
type Engine struct {
	Catalog *policy.Catalog
}

// NewEngine returns an engine over catalog, or the built-in catalog if nil.
func NewEngine(catalog *policy.Catalog) *Engine {
	if catalog == nil {
		catalog = policy.DefaultCatalog()
	}
	return &Engine{Catalog: catalog}
}

// Evaluate runs the eligibility checks in order; the first failure wins.
//
//  1. active membership       NO_ACTIVE_MEMBERSHIP
//  2. waiting period          WAITING_PERIOD
//  3. submission window       LATE_SUBMISSION
//  4. violation covered       EXCLUDED_VIOLATION
//  5. ticket number unused    DUPLICATE_CLAIM
//  6. tickets, then cap left  TICKET_LIMIT_EXCEEDED, CAP_EXCEEDED
//  7. jurisdiction            warning only
//
// Pure: nothing is persisted and ledger is not modified.
func (e *Engine) Evaluate(user User, ledger *coverage.Ledger, candidate Claim, history []Claim) EligibilityResult {
	if !user.HasActiveSubscription || ledger == nil {
		return e.reject(policy.DenialNoActiveMembership)
	}

	waitingDays := e.waitingPeriodDays(ledger.PlanID)
	eligibleFrom := user.MembershipStartedAt.AddDays(waitingDays)
	if candidate.TicketDate.Before(eligibleFrom) {
		return e.reject(policy.DenialWaitingPeriod)
	}

	if generic.DaysBetween(candidate.TicketDate, candidate.SubmittedAt) > SubmissionWindowDays {
		return e.reject(policy.DenialLateSubmission)
	}

	if !e.Catalog.IsViolationCovered(candidate.Violation) {
		return e.reject(policy.DenialExcludedViolation)
	}

	number := NormalizeTicketNumber(candidate.TicketNumber)
	for _, prior := range history {
		if prior.UserID == user.ID && NormalizeTicketNumber(prior.TicketNumber) == number {
			return e.reject(policy.DenialDuplicateClaim)
		}
	}

	if ledger.TicketsUsed >= ledger.MaxTickets {
		return e.reject(policy.DenialTicketLimitExceeded)
	}
	if !ledger.Remaining().IsPositive() {
		return e.reject(policy.DenialCapExceeded)
	}

	return EligibilityResult{
		Eligible: true,
		Warnings: e.jurisdictionWarnings(user, candidate),
	}
}

func (e *Engine) reject(code string) EligibilityResult {
	d := e.Catalog.DenialCodeOrUnspecified(code)
	return EligibilityResult{
		Eligible:   false,
		Reason:     d.Reason,
		DenialCode: code,
		Appealable: d.Appealable,
	}
}

func (e *Engine) waitingPeriodDays(tier policy.Tier) int {
	plan, err := e.Catalog.PlanConfig(tier)
	if err != nil {
		return 0
	}
	return plan.WaitingPeriodDays
}

func (e *Engine) jurisdictionWarnings(user User, candidate Claim) []string {
	switch {
	case user.State == "":
		return []string{"member has no registered operating state"}
	case candidate.State == "":
		return []string{"ticket has no state"}
	case !e.Catalog.AllowsJurisdiction(user.State, candidate.State):
		return []string{"ticket issued in " + policy.NormalizeState(candidate.State) +
			", outside operating area of " + policy.NormalizeState(user.State)}
	}
	return nil
}
