/*
Package coverage holds the mutable per-member coverage ledger.

PURPOSE:
  One Ledger per active membership tracks how much of the annual cap has
  been paid out and how many ticket slots have been used in the current
  period. It is the state the eligibility checks read and the state claim
  submission and approval write.

STATE MACHINE:
  submission (eligible)  TicketsUsed += 1, clamped to MaxTickets
  approval               UsedAmount += payout, clamped to AnnualCap
  denial                 nothing; the ticket slot stays consumed
  plan change            new caps, usage carried over (or reset, see UsagePolicy)
  rollover               usage zeroed, period advances by 365 days

INVARIANTS (checked by CheckInvariants after every mutation):
  0 <= UsedAmount <= AnnualCap
  0 <= TicketsUsed <= MaxTickets

SEE ALSO:
  - claims/service.go: Applies these mutations inside a per-member transaction
  - generic/ledger.go: Transaction log the mutations are mirrored to
*/
package coverage

import (
	"fmt"
	"strconv"

	"github.com/warp/ticket-cover/generic"
	"github.com/warp/ticket-cover/policy"
)

// =============================================================================
// USAGE POLICY - What a plan change does to consumption
// =============================================================================

// UsagePolicy decides what happens to consumption when the plan changes.
type UsagePolicy string

const (
	// CarryOverUsage keeps the period and consumption; only the caps change.
	CarryOverUsage UsagePolicy = "carry_over"

	// ResetUsage starts a fresh period at the change date with zero usage.
	ResetUsage UsagePolicy = "reset"
)

// ParseUsagePolicy accepts "carry_over" or "reset". Empty means carry over.
func ParseUsagePolicy(s string) (UsagePolicy, error) {
	switch UsagePolicy(s) {
	case "", CarryOverUsage:
		return CarryOverUsage, nil
	case ResetUsage:
		return ResetUsage, nil
	}
	return "", fmt.Errorf("%w: plan change usage policy %q", generic.ErrInvalidInput, s)
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger is one member's coverage consumption for the current period.
type Ledger struct {
	UserID      generic.EntityID
	PlanID      policy.Tier
	AnnualCap   generic.Amount
	UsedAmount  generic.Amount
	TicketsUsed int
	MaxTickets  int
	Period      generic.Period
}

// New opens a ledger for plan with a default-length period starting at start.
func New(userID generic.EntityID, plan policy.PlanConfig, start generic.TimePoint) *Ledger {
	return &Ledger{
		UserID:     userID,
		PlanID:     plan.ID,
		AnnualCap:  plan.AnnualCap,
		UsedAmount: generic.NewAmountFromInt(0, generic.UnitUSD),
		MaxTickets: plan.MaxTicketsPerYear,
		Period:     generic.PeriodStarting(start),
	}
}

// Remaining is AnnualCap - UsedAmount, never negative.
func (l *Ledger) Remaining() generic.Amount {
	return l.AnnualCap.Sub(l.UsedAmount).NonNegative()
}

// TicketsRemaining is MaxTickets - TicketsUsed, never negative.
func (l *Ledger) TicketsRemaining() int {
	if l.TicketsUsed >= l.MaxTickets {
		return 0
	}
	return l.MaxTickets - l.TicketsUsed
}

// Clone returns an independent copy.
func (l *Ledger) Clone() *Ledger {
	c := *l
	return &c
}

// ConsumeTicket records an accepted submission. Returns false when the
// ledger was already at MaxTickets and the count was clamped.
func (l *Ledger) ConsumeTicket() bool {
	if l.TicketsUsed >= l.MaxTickets {
		l.TicketsUsed = l.MaxTickets
		return false
	}
	l.TicketsUsed++
	return true
}

// ApplyPayout adds an approved payout to UsedAmount, clamped to the cap.
// Returns the amount actually applied.
func (l *Ledger) ApplyPayout(amount generic.Amount) generic.Amount {
	applied := amount.NonNegative().Min(l.Remaining())
	l.UsedAmount = l.UsedAmount.Add(applied)
	return applied
}

// ChangePlan returns the ledger for the new plan. The receiver is left as is.
//
// CarryOverUsage keeps the period and carries consumption, clamped to the
// new caps. ResetUsage opens a fresh period at the change date.
func (l *Ledger) ChangePlan(plan policy.PlanConfig, at generic.TimePoint, usage UsagePolicy) *Ledger {
	if usage == ResetUsage {
		return New(l.UserID, plan, at)
	}

	next := &Ledger{
		UserID:      l.UserID,
		PlanID:      plan.ID,
		AnnualCap:   plan.AnnualCap,
		UsedAmount:  l.UsedAmount.Min(plan.AnnualCap).NonNegative(),
		TicketsUsed: l.TicketsUsed,
		MaxTickets:  plan.MaxTicketsPerYear,
		Period:      l.Period,
	}
	if next.TicketsUsed > next.MaxTickets {
		next.TicketsUsed = next.MaxTickets
	}
	return next
}

// NeedsRollover reports whether the period has ended as of asOf.
func (l *Ledger) NeedsRollover(asOf generic.TimePoint) bool {
	return l.Period.Ended(asOf)
}

// Rollover advances the period until it contains asOf, zeroing usage.
// Returns how many periods were skipped (0 when nothing was due).
func (l *Ledger) Rollover(asOf generic.TimePoint) int {
	n := 0
	for l.Period.Ended(asOf) {
		l.Period = l.Period.NextPeriod()
		n++
	}
	if n > 0 {
		l.UsedAmount = l.UsedAmount.Zero()
		l.TicketsUsed = 0
	}
	return n
}

// CheckInvariants verifies 0 <= used <= cap and 0 <= tickets <= max.
func (l *Ledger) CheckInvariants() error {
	if l.UsedAmount.IsNegative() || l.UsedAmount.GreaterThan(l.AnnualCap) {
		return &generic.InvariantError{
			EntityID: l.UserID,
			Field:    "used_amount",
			Value:    l.UsedAmount.String(),
			Bound:    "[0, " + l.AnnualCap.String() + "]",
		}
	}
	if l.TicketsUsed < 0 || l.TicketsUsed > l.MaxTickets {
		return &generic.InvariantError{
			EntityID: l.UserID,
			Field:    "tickets_used",
			Value:    strconv.Itoa(l.TicketsUsed),
			Bound:    "[0, " + strconv.Itoa(l.MaxTickets) + "]",
		}
	}
	return l.Period.Validate()
}

// Usage returns the ledger's consumption in transaction-log terms, for
// comparison with generic.Ledger.Replay.
func (l *Ledger) Usage() generic.Usage {
	return generic.Usage{Paid: l.UsedAmount, Tickets: l.TicketsUsed}
}
