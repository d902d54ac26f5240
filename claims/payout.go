package claims

import (
	"github.com/warp/ticket-cover/coverage"
	"github.com/warp/ticket-cover/generic"
	"github.com/warp/ticket-cover/policy"
)

// CalculatePayout computes the reimbursement for an eligible claim:
//
//	round2(min(min(amount * (1 - deductible), perClaimCap), remaining))
//
// plan is the snapshot taken at submission; remaining comes from the live
// ledger. The result is never negative and never exceeds the face value or
// the remaining cap. Excluded violations pay nothing.
func (e *Engine) CalculatePayout(amount generic.Amount, violation policy.ViolationType, plan policy.PlanConfig, ledger *coverage.Ledger) generic.Amount {
	zero := generic.NewAmountFromInt(0, generic.UnitUSD)
	if ledger == nil || !amount.IsPositive() || !e.Catalog.IsViolationCovered(violation) {
		return zero
	}

	payout := amount.Mul(plan.ReimbursementRate())
	if plan.MaxCoveragePerClaim != nil {
		payout = payout.Min(*plan.MaxCoveragePerClaim)
	}
	payout = payout.Min(ledger.Remaining())

	return payout.Round2().NonNegative()
}
