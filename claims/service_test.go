package claims_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ticket-cover/claims"
	"github.com/warp/ticket-cover/coverage"
	"github.com/warp/ticket-cover/generic"
	"github.com/warp/ticket-cover/policy"
	"github.com/warp/ticket-cover/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// serviceToday is the default service clock; every test date is on or before it.
var serviceToday = date(2026, time.June, 30)

func clockAt(d generic.TimePoint) claims.Option {
	return claims.WithClock(func() generic.TimePoint { return d })
}

func newTestService(t *testing.T, opts ...claims.Option) *claims.Service {
	t.Helper()
	return claims.NewService(memory.New(), nil, append([]claims.Option{clockAt(serviceToday)}, opts...)...)
}

// storedLedger reads the persisted ledger through the audit, which never
// rolls anything over.
func storedLedger(t *testing.T, svc *claims.Service, user string) claims.LedgerView {
	t.Helper()
	report, err := svc.Audit(context.Background(), generic.EntityID(user))
	require.NoError(t, err)
	return report.Ledger
}

func hasTxType(txs []generic.Transaction, typ generic.TransactionType) bool {
	for _, tx := range txs {
		if tx.Type == typ {
			return true
		}
	}
	return false
}

func register(t *testing.T, svc *claims.Service, id string, tier policy.Tier) {
	t.Helper()
	_, err := svc.RegisterUser(context.Background(), claims.User{
		ID:                    generic.EntityID(id),
		MembershipStartedAt:   memberSince,
		CurrentPlan:           tier,
		HasActiveSubscription: true,
		State:                 "CA",
	}, memberSince)
	require.NoError(t, err)
}

func payload(number, ticketDate, amount string) claims.SubmissionPayload {
	return claims.SubmissionPayload{
		TicketNumber:  number,
		TicketDate:    ticketDate,
		City:          "Oakland",
		State:         "CA",
		ViolationType: "expired_meter",
		Amount:        amount,
	}
}

func submit(t *testing.T, svc *claims.Service, user, number, amount string, at generic.TimePoint) *claims.SubmissionResult {
	t.Helper()
	res, err := svc.SubmitClaim(context.Background(), generic.EntityID(user), payload(number, at.String(), amount), at)
	require.NoError(t, err)
	return res
}

// =============================================================================
// SUBMISSION
// =============================================================================

func TestService_SubmitEligibleConsumesTicket(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	register(t, svc, "u1", policy.TierBasic)

	res := submit(t, svc, "u1", "T-1", "85", date(2025, time.March, 10))

	require.True(t, res.Eligibility.Eligible)
	require.NotNil(t, res.Claim)
	assert.Equal(t, claims.StatusSubmitted, res.Claim.Status)
	assert.Equal(t, policy.TierBasic, res.Claim.Plan.ID)
	assert.Equal(t, 1, res.Ledger.TicketsUsed)

	txs, err := svc.Transactions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, generic.TxTicket, txs[0].Type)
	assert.Equal(t, res.Claim.ID, txs[0].ReferenceID)
}

func TestService_SubmitIneligibleWritesNothing(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	register(t, svc, "u1", policy.TierBasic)

	res, err := svc.SubmitClaim(ctx, "u1", claims.SubmissionPayload{
		TicketNumber:  "T-1",
		TicketDate:    "2025-03-10",
		State:         "CA",
		ViolationType: "Fire Hydrant",
		Amount:        "120",
	}, date(2025, time.March, 10))
	require.NoError(t, err)

	assert.False(t, res.Eligibility.Eligible)
	assert.Equal(t, policy.DenialExcludedViolation, res.Eligibility.DenialCode)
	assert.Nil(t, res.Claim)

	history, err := svc.Claims(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, history)

	view, err := svc.Coverage(ctx, "u1", date(2025, time.March, 10))
	require.NoError(t, err)
	assert.Equal(t, 0, view.TicketsUsed)
}

func TestService_SubmitInvalidInput(t *testing.T) {
	svc := newTestService(t)
	register(t, svc, "u1", policy.TierBasic)

	_, err := svc.SubmitClaim(context.Background(), "u1", payload("T-1", "2025-03-10", "0"), date(2025, time.March, 10))
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

func TestService_SubmitUnknownUser(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.SubmitClaim(context.Background(), "ghost", payload("T-1", "2025-03-10", "50"), date(2025, time.March, 10))
	assert.ErrorIs(t, err, generic.ErrUserNotFound)
}

func TestService_DuplicateAfterDenial(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	register(t, svc, "u1", policy.TierPro)
	day := date(2025, time.March, 10)

	first := submit(t, svc, "u1", "T-1", "50", day)
	_, err := svc.DenyClaim(ctx, first.Claim.ID, policy.DenialIllegibleTicket, "blurry", day)
	require.NoError(t, err)

	again := submit(t, svc, "u1", "t-1", "50", day)
	assert.False(t, again.Eligibility.Eligible)
	assert.Equal(t, policy.DenialDuplicateClaim, again.Eligibility.DenialCode)
}

// =============================================================================
// APPROVAL
// =============================================================================

func TestService_ApproveBasicScenario(t *testing.T) {
	// GIVEN: Basic member, $85 expired-meter claim
	// WHEN: approved
	// THEN: paid $68.00, remaining $32.00, payout date recorded on user
	svc := newTestService(t)
	ctx := context.Background()
	register(t, svc, "u1", policy.TierBasic)
	day := date(2025, time.March, 10)

	sub := submit(t, svc, "u1", "T-1", "85", day)
	res, err := svc.ApproveClaim(ctx, sub.Claim.ID, "looks good", day.AddDays(2))
	require.NoError(t, err)

	assert.Equal(t, claims.StatusPaid, res.Claim.Status)
	require.NotNil(t, res.Claim.PayoutAmount)
	assert.Equal(t, "68.00", res.Claim.PayoutAmount.String())
	assert.Equal(t, "32.00", res.Ledger.RemainingAmount.String())
	assert.Equal(t, day.AddDays(2), *res.Claim.PayoutDate)
	assert.Equal(t, "looks good", res.Claim.DecisionNotes)

	user, err := svc.User(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, user.LastClaimPayoutDate)
	assert.Equal(t, day.AddDays(2), *user.LastClaimPayoutDate)
}

func TestService_ApproveTwiceIsRejected(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	register(t, svc, "u1", policy.TierBasic)
	day := date(2025, time.March, 10)

	sub := submit(t, svc, "u1", "T-1", "85", day)
	_, err := svc.ApproveClaim(ctx, sub.Claim.ID, "", day)
	require.NoError(t, err)

	_, err = svc.ApproveClaim(ctx, sub.Claim.ID, "", day)
	assert.ErrorIs(t, err, generic.ErrStateInconsistency)
	var se *claims.StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, claims.StatusPaid, se.From)

	view, err := svc.Coverage(ctx, "u1", day)
	require.NoError(t, err)
	assert.Equal(t, "68.00", view.UsedAmount.String(), "no double pay")
}

func TestService_ProThreeClaimsClampToCap(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	register(t, svc, "u1", policy.TierPro)
	day := date(2025, time.March, 10)

	want := []string{"170.00", "170.00", "10.00"}
	for i, w := range want {
		sub := submit(t, svc, "u1", fmt.Sprintf("T-%d", i), "200", day)
		require.True(t, sub.Eligibility.Eligible, "claim %d: %s", i+1, sub.Eligibility.DenialCode)
		res, err := svc.ApproveClaim(ctx, sub.Claim.ID, "", day)
		require.NoError(t, err)
		assert.Equal(t, w, res.Claim.PayoutAmount.String(), "claim %d", i+1)
	}

	// Cap exhausted: a fourth submission is rejected.
	fourth := submit(t, svc, "u1", "T-9", "200", day)
	assert.Equal(t, policy.DenialCapExceeded, fourth.Eligibility.DenialCode)
}

func TestService_ZeroPayoutDoesNotLockCancellation(t *testing.T) {
	// Two claims submitted while $10 remains; the first uses it up.
	svc := newTestService(t)
	ctx := context.Background()
	register(t, svc, "u1", policy.TierPro)
	day := date(2025, time.March, 10)

	for i := 0; i < 2; i++ {
		sub := submit(t, svc, "u1", fmt.Sprintf("T-%d", i), "200", day)
		_, err := svc.ApproveClaim(ctx, sub.Claim.ID, "", day)
		require.NoError(t, err)
	}
	a := submit(t, svc, "u1", "A", "200", day)
	b := submit(t, svc, "u1", "B", "200", day.AddDays(1))
	_, err := svc.ApproveClaim(ctx, a.Claim.ID, "", day)
	require.NoError(t, err)

	res, err := svc.ApproveClaim(ctx, b.Claim.ID, "", day.AddDays(1))
	require.NoError(t, err)
	assert.True(t, res.Claim.PayoutAmount.IsZero())

	user, err := svc.User(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, day, *user.LastClaimPayoutDate)
}

// =============================================================================
// DENIAL AND REVIEW
// =============================================================================

func TestService_DenyKeepsTicketConsumed(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	register(t, svc, "u1", policy.TierBasic)
	day := date(2025, time.March, 10)

	sub := submit(t, svc, "u1", "T-1", "85", day)
	_, err := svc.StartReview(ctx, sub.Claim.ID, day)
	require.NoError(t, err)

	res, err := svc.DenyClaim(ctx, sub.Claim.ID, policy.DenialInsufficientDocs, "no photo", day)
	require.NoError(t, err)
	assert.Equal(t, claims.StatusDenied, res.Claim.Status)
	assert.Equal(t, policy.DenialInsufficientDocs, res.Claim.DenialReason)
	assert.True(t, res.Denial.Appealable)

	view, err := svc.Coverage(ctx, "u1", day)
	require.NoError(t, err)
	assert.Equal(t, 1, view.TicketsUsed)
	assert.True(t, view.UsedAmount.IsZero())

	// Paid and denied are absorbing.
	_, err = svc.ApproveClaim(ctx, sub.Claim.ID, "", day)
	assert.ErrorIs(t, err, generic.ErrStateInconsistency)
	_, err = svc.DenyClaim(ctx, sub.Claim.ID, policy.DenialSuspectedFraud, "", day)
	assert.ErrorIs(t, err, generic.ErrStateInconsistency)
}

func TestService_DenyPaidClaimFails(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	register(t, svc, "u1", policy.TierBasic)
	day := date(2025, time.March, 10)

	sub := submit(t, svc, "u1", "T-1", "85", day)
	_, err := svc.ApproveClaim(ctx, sub.Claim.ID, "", day)
	require.NoError(t, err)

	_, err = svc.DenyClaim(ctx, sub.Claim.ID, policy.DenialTicketDismissed, "", day)
	assert.ErrorIs(t, err, generic.ErrStateInconsistency)
}

func TestService_DenyUnknownCodeIsUnspecified(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	register(t, svc, "u1", policy.TierBasic)
	day := date(2025, time.March, 10)

	sub := submit(t, svc, "u1", "T-1", "85", day)
	res, err := svc.DenyClaim(ctx, sub.Claim.ID, "made_up", "", day)
	require.NoError(t, err)

	assert.Equal(t, "MADE_UP", res.Claim.DenialReason)
	assert.False(t, res.Denial.Appealable)
	assert.Equal(t, policy.Unspecified.Reason, res.Denial.Reason)

	_, err = svc.DenyClaim(ctx, sub.Claim.ID, " ", "", day)
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

func TestService_ReviewTwiceFails(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	register(t, svc, "u1", policy.TierBasic)
	day := date(2025, time.March, 10)

	sub := submit(t, svc, "u1", "T-1", "85", day)
	_, err := svc.StartReview(ctx, sub.Claim.ID, day)
	require.NoError(t, err)
	_, err = svc.StartReview(ctx, sub.Claim.ID, day)
	assert.ErrorIs(t, err, generic.ErrStateInconsistency)

	_, err = svc.StartReview(ctx, "missing", day)
	assert.ErrorIs(t, err, generic.ErrClaimNotFound)
}

// =============================================================================
// PLAN CHANGES
// =============================================================================

func TestService_ChangePlanCarriesUsage(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	register(t, svc, "u1", policy.TierBasic)
	day := date(2025, time.March, 10)

	sub := submit(t, svc, "u1", "T-1", "85", day)
	_, err := svc.ApproveClaim(ctx, sub.Claim.ID, "", day)
	require.NoError(t, err)

	res, err := svc.ChangePlan(ctx, "u1", "pro", day.AddDays(5))
	require.NoError(t, err)
	assert.False(t, res.Activated)
	assert.Equal(t, policy.TierPro, res.User.CurrentPlan)
	assert.Equal(t, "68.00", res.Ledger.UsedAmount.String())
	assert.Equal(t, "282.00", res.Ledger.RemainingAmount.String())
	assert.Equal(t, 1, res.Ledger.TicketsUsed)
	assert.Equal(t, memberSince, res.User.MembershipStartedAt)

	report, err := svc.Audit(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, report.Consistent)
}

func TestService_ChangePlanReset(t *testing.T) {
	svc := newTestService(t, claims.WithUsagePolicy(coverage.ResetUsage))
	ctx := context.Background()
	register(t, svc, "u1", policy.TierBasic)
	day := date(2025, time.March, 10)
	submit(t, svc, "u1", "T-1", "85", day)

	res, err := svc.ChangePlan(ctx, "u1", "pro", day)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Ledger.TicketsUsed)
	assert.Equal(t, day, res.Ledger.Period.Start)

	report, err := svc.Audit(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, report.Consistent)
}

func TestService_ChangePlanUnknownTier(t *testing.T) {
	svc := newTestService(t)
	register(t, svc, "u1", policy.TierBasic)

	_, err := svc.ChangePlan(context.Background(), "u1", "platinum", memberSince)
	assert.ErrorIs(t, err, generic.ErrUnknownPlan)
}

func TestService_ActivationFromFreeRestartsMembership(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	register(t, svc, "u1", policy.TierFree)

	user, err := svc.User(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, user.HasActiveSubscription)

	// Free member cannot claim.
	denied := submit(t, svc, "u1", "T-0", "50", date(2025, time.February, 10))
	assert.Equal(t, policy.DenialNoActiveMembership, denied.Eligibility.DenialCode)

	activatedAt := date(2025, time.March, 1)
	res, err := svc.ChangePlan(ctx, "u1", "basic", activatedAt)
	require.NoError(t, err)
	assert.True(t, res.Activated)
	assert.True(t, res.User.HasActiveSubscription)
	assert.Equal(t, activatedAt, res.User.MembershipStartedAt)

	// Waiting period counts from activation.
	early := submit(t, svc, "u1", "T-1", "50", activatedAt.AddDays(10))
	assert.Equal(t, policy.DenialWaitingPeriod, early.Eligibility.DenialCode)
	ok := submit(t, svc, "u1", "T-2", "50", activatedAt.AddDays(30))
	assert.True(t, ok.Eligibility.Eligible)
}

func TestService_DowngradeToFreeEndsSubscription(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	register(t, svc, "u1", policy.TierBasic)
	submit(t, svc, "u1", "T-1", "50", date(2025, time.February, 10))

	res, err := svc.ChangePlan(ctx, "u1", "free", date(2025, time.March, 1))
	require.NoError(t, err)
	assert.False(t, res.User.HasActiveSubscription)
	assert.Equal(t, policy.TierFree, res.User.CurrentPlan)
	assert.Equal(t, policy.TierBasic, res.Ledger.PlanID, "ledger keeps the last paid plan")
	assert.Equal(t, 1, res.Ledger.TicketsUsed)

	blocked := submit(t, svc, "u1", "T-2", "50", date(2025, time.March, 2))
	assert.Equal(t, policy.DenialNoActiveMembership, blocked.Eligibility.DenialCode)

	report, err := svc.Audit(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, report.Consistent)
}

func TestService_DowngradeToFreeRespectsCancellationLock(t *testing.T) {
	// GIVEN: A Basic member paid out on March 10
	// WHEN: They move to free 30 days later, then 90 days later
	// THEN: The first move is a conflict and changes nothing; the second succeeds
	svc := newTestService(t)
	ctx := context.Background()
	register(t, svc, "u1", policy.TierBasic)
	day := date(2025, time.March, 10)

	sub := submit(t, svc, "u1", "T-1", "85", day)
	_, err := svc.ApproveClaim(ctx, sub.Claim.ID, "", day)
	require.NoError(t, err)

	_, err = svc.ChangePlan(ctx, "u1", "free", day.AddDays(30))
	assert.ErrorIs(t, err, generic.ErrStateInconsistency)

	user, err := svc.User(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, user.HasActiveSubscription)
	assert.Equal(t, policy.TierBasic, user.CurrentPlan)

	txs, err := svc.Transactions(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, hasTxType(txs, generic.TxPlanChange))

	res, err := svc.ChangePlan(ctx, "u1", "free", day.AddDays(90))
	require.NoError(t, err)
	assert.False(t, res.User.HasActiveSubscription)
}

func TestService_FreeRoundTripKeepsUsage(t *testing.T) {
	// GIVEN: A Basic member who has used both tickets and $68 of the cap
	// WHEN: They drop to free and come back to Basic in the same period
	// THEN: The ledger still shows both tickets and the $68, so no third claim
	svc := newTestService(t)
	ctx := context.Background()
	register(t, svc, "u1", policy.TierBasic)
	day := date(2025, time.March, 10)

	first := submit(t, svc, "u1", "T-1", "85", day)
	_, err := svc.ApproveClaim(ctx, first.Claim.ID, "", day)
	require.NoError(t, err)
	second := submit(t, svc, "u1", "T-2", "40", day.AddDays(1))
	require.True(t, second.Eligibility.Eligible)

	_, err = svc.ChangePlan(ctx, "u1", "free", day.AddDays(90))
	require.NoError(t, err)

	back := day.AddDays(100)
	res, err := svc.ChangePlan(ctx, "u1", "basic", back)
	require.NoError(t, err)
	assert.True(t, res.Activated)
	assert.Equal(t, back, res.User.MembershipStartedAt)
	assert.Equal(t, memberSince, res.Ledger.Period.Start)
	assert.Equal(t, 2, res.Ledger.TicketsUsed)
	assert.Equal(t, "68.00", res.Ledger.UsedAmount.String())

	again := submit(t, svc, "u1", "T-3", "40", back.AddDays(40))
	assert.Equal(t, policy.DenialTicketLimitExceeded, again.Eligibility.DenialCode)

	report, err := svc.Audit(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Equal(t, 2, report.Replayed.Tickets)
}

// =============================================================================
// SUBSCRIPTION
// =============================================================================

func TestService_CancellationLockedAfterPayout(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	register(t, svc, "u1", policy.TierBasic)
	day := date(2025, time.March, 10)

	sub := submit(t, svc, "u1", "T-1", "85", day)
	_, err := svc.ApproveClaim(ctx, sub.Claim.ID, "", day)
	require.NoError(t, err)

	check, err := svc.CheckCancellation(ctx, "u1", day.AddDays(45))
	require.NoError(t, err)
	assert.False(t, check.CanCancel)
	assert.Equal(t, 45, check.DaysRemaining)

	result, err := svc.CancelSubscription(ctx, "u1", day.AddDays(45))
	assert.ErrorIs(t, err, generic.ErrStateInconsistency)
	assert.False(t, result.CanCancel)

	result, err = svc.CancelSubscription(ctx, "u1", day.AddDays(90))
	require.NoError(t, err)
	assert.True(t, result.CanCancel)

	user, err := svc.User(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, user.HasActiveSubscription)

	// Lapsed members cannot claim until reactivated.
	lapsed := submit(t, svc, "u1", "T-2", "50", day.AddDays(91))
	assert.Equal(t, policy.DenialNoActiveMembership, lapsed.Eligibility.DenialCode)

	reactivated, err := svc.ReactivateSubscription(ctx, "u1", day.AddDays(91))
	require.NoError(t, err)
	assert.True(t, reactivated.HasActiveSubscription)
	assert.Equal(t, day.AddDays(91), reactivated.MembershipStartedAt)

	_, err = svc.ReactivateSubscription(ctx, "u1", day.AddDays(92))
	assert.ErrorIs(t, err, generic.ErrStateInconsistency)
}

// =============================================================================
// ROLLOVER AND AUDIT
// =============================================================================

func TestService_CoverageLookAheadDoesNotPersist(t *testing.T) {
	// GIVEN: A Basic member who used both tickets today
	// WHEN: Coverage is read for a date two years ahead
	// THEN: The view shows the future period but the stored ledger is untouched
	// AND: The member is still out of tickets today
	day := date(2025, time.March, 10)
	svc := newTestService(t, clockAt(day))
	ctx := context.Background()
	register(t, svc, "u1", policy.TierBasic)
	submit(t, svc, "u1", "T-1", "50", day)
	submit(t, svc, "u1", "T-2", "50", day)
	blocked := submit(t, svc, "u1", "T-3", "50", day)
	require.Equal(t, policy.DenialTicketLimitExceeded, blocked.Eligibility.DenialCode)

	view, err := svc.Coverage(ctx, "u1", date(2027, time.January, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, view.TicketsUsed)
	assert.Equal(t, date(2027, time.January, 1), view.Period.Start)

	stored := storedLedger(t, svc, "u1")
	assert.Equal(t, memberSince, stored.Period.Start)
	assert.Equal(t, 2, stored.TicketsUsed)

	txs, err := svc.Transactions(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, hasTxType(txs, generic.TxRollover))

	again := submit(t, svc, "u1", "T-4", "50", day)
	assert.Equal(t, policy.DenialTicketLimitExceeded, again.Eligibility.DenialCode)
}

func TestService_FutureDatesAreRejected(t *testing.T) {
	// GIVEN: The service clock on March 10, 2025
	// WHEN: Mutations are dated after it
	// THEN: Each is InvalidInput and the stored ledger stays in its period
	day := date(2025, time.March, 10)
	svc := newTestService(t, clockAt(day))
	ctx := context.Background()
	register(t, svc, "u1", policy.TierBasic)
	sub := submit(t, svc, "u1", "T-1", "50", day)
	future := date(2027, time.January, 1)

	_, err := svc.SubmitClaim(ctx, "u1", payload("T-2", future.String(), "50"), future)
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
	_, err = svc.ApproveClaim(ctx, sub.Claim.ID, "", future)
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
	_, err = svc.ChangePlan(ctx, "u1", "pro", future)
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
	_, err = svc.CancelSubscription(ctx, "u1", future)
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
	_, err = svc.RolloverDue(ctx, future)
	assert.ErrorIs(t, err, generic.ErrInvalidInput)

	stored := storedLedger(t, svc, "u1")
	assert.Equal(t, memberSince, stored.Period.Start)
	assert.Equal(t, 1, stored.TicketsUsed)
}

func TestService_RejectedSubmissionDoesNotRollOver(t *testing.T) {
	// GIVEN: A Basic member who used both tickets in 2025
	// WHEN: An excluded violation is submitted in January 2026
	// THEN: It is rejected and the stored ledger stays in the 2025 period
	svc := newTestService(t)
	ctx := context.Background()
	register(t, svc, "u1", policy.TierBasic)
	submit(t, svc, "u1", "T-1", "50", date(2025, time.March, 10))
	submit(t, svc, "u1", "T-2", "50", date(2025, time.April, 10))

	jan := date(2026, time.January, 5)
	res, err := svc.SubmitClaim(ctx, "u1", claims.SubmissionPayload{
		TicketNumber:  "T-3",
		TicketDate:    jan.String(),
		State:         "CA",
		ViolationType: "Fire Hydrant",
		Amount:        "120",
	}, jan)
	require.NoError(t, err)
	assert.Equal(t, policy.DenialExcludedViolation, res.Eligibility.DenialCode)

	stored := storedLedger(t, svc, "u1")
	assert.Equal(t, memberSince, stored.Period.Start)
	assert.Equal(t, 2, stored.TicketsUsed)
	txs, err := svc.Transactions(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, hasTxType(txs, generic.TxRollover))

	// An eligible claim the same day rolls the period over with it.
	ok := submit(t, svc, "u1", "T-4", "50", jan)
	require.True(t, ok.Eligibility.Eligible)
	stored = storedLedger(t, svc, "u1")
	assert.Equal(t, date(2026, time.January, 1), stored.Period.Start)
	assert.Equal(t, 1, stored.TicketsUsed)
	txs, err = svc.Transactions(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, hasTxType(txs, generic.TxRollover))
}

func TestService_SubmissionBeforeCurrentPeriodIsInvalid(t *testing.T) {
	// GIVEN: A Basic member whose ledger was rolled into the 2026 period
	// WHEN: A claim dated in the closed 2025 period comes in
	// THEN: It is InvalidInput instead of being charged to 2026
	svc := newTestService(t)
	ctx := context.Background()
	register(t, svc, "u1", policy.TierBasic)
	submit(t, svc, "u1", "T-1", "50", date(2025, time.March, 10))
	submit(t, svc, "u1", "T-2", "50", date(2025, time.April, 10))

	n, err := svc.RolloverDue(ctx, date(2026, time.January, 1))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	late := date(2025, time.May, 10)
	_, err = svc.SubmitClaim(ctx, "u1", payload("T-3", late.String(), "50"), late)
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
	assert.Equal(t, 0, storedLedger(t, svc, "u1").TicketsUsed)
}

func TestService_RolloverResetsUsage(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	register(t, svc, "u1", policy.TierBasic)
	register(t, svc, "u2", policy.TierPro)
	day := date(2025, time.March, 10)

	sub := submit(t, svc, "u1", "T-1", "85", day)
	_, err := svc.ApproveClaim(ctx, sub.Claim.ID, "", day)
	require.NoError(t, err)

	n, err := svc.RolloverDue(ctx, date(2025, time.December, 31))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = svc.RolloverDue(ctx, date(2026, time.January, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	view, err := svc.Coverage(ctx, "u1", date(2026, time.January, 1))
	require.NoError(t, err)
	assert.True(t, view.UsedAmount.IsZero())
	assert.Equal(t, 0, view.TicketsUsed)
	assert.Equal(t, date(2026, time.January, 1), view.Period.Start)

	report, err := svc.Audit(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, report.Consistent)
}

func TestService_SubmissionRollsOverLazily(t *testing.T) {
	svc := newTestService(t)
	register(t, svc, "u1", policy.TierBasic)

	submit(t, svc, "u1", "T-1", "50", date(2025, time.March, 10))
	submit(t, svc, "u1", "T-2", "50", date(2025, time.April, 10))
	blocked := submit(t, svc, "u1", "T-3", "50", date(2025, time.May, 10))
	assert.Equal(t, policy.DenialTicketLimitExceeded, blocked.Eligibility.DenialCode)

	fresh := submit(t, svc, "u1", "T-4", "50", date(2026, time.January, 5))
	assert.True(t, fresh.Eligibility.Eligible)
	assert.Equal(t, 1, fresh.Ledger.TicketsUsed)
}

func TestService_AuditAfterMixedOperations(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	register(t, svc, "u1", policy.TierPro)
	day := date(2025, time.March, 10)

	a := submit(t, svc, "u1", "A", "120", day)
	b := submit(t, svc, "u1", "B", "60", day)
	_, err := svc.ApproveClaim(ctx, a.Claim.ID, "", day)
	require.NoError(t, err)
	_, err = svc.DenyClaim(ctx, b.Claim.ID, policy.DenialNotWorkRelated, "", day)
	require.NoError(t, err)
	_, err = svc.ChangePlan(ctx, "u1", "basic", day.AddDays(1))
	require.NoError(t, err)

	report, err := svc.Audit(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Equal(t, 2, report.Replayed.Tickets)
	assert.Equal(t, "100.00", report.Replayed.Paid.String(), "carried usage clamped to the Basic cap")
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestService_ConcurrentApprovalsNeverOverdrawCap(t *testing.T) {
	// GIVEN: Professional member with six submitted $400 claims
	// WHEN: all are approved concurrently
	// THEN: total paid never exceeds the $600 cap
	svc := newTestService(t)
	ctx := context.Background()
	register(t, svc, "u1", policy.TierProfessional)
	day := date(2025, time.March, 10)

	var ids []string
	for i := 0; i < 6; i++ {
		sub := submit(t, svc, "u1", fmt.Sprintf("T-%d", i), "400", day)
		require.True(t, sub.Eligibility.Eligible)
		ids = append(ids, sub.Claim.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = svc.ApproveClaim(ctx, id, "", day)
		}(id)
	}
	wg.Wait()

	view, err := svc.Coverage(ctx, "u1", day)
	require.NoError(t, err)
	assert.Equal(t, "600.00", view.UsedAmount.String())

	report, err := svc.Audit(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, report.Consistent)
}

func TestService_ConcurrentSubmissionsRespectTicketLimit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	register(t, svc, "u1", policy.TierBasic)
	day := date(2025, time.March, 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	eligible := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.SubmitClaim(ctx, "u1", payload(fmt.Sprintf("T-%d", i), day.String(), "30"), day)
			if err == nil && res.Eligibility.Eligible {
				mu.Lock()
				eligible++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 2, eligible)
	view, err := svc.Coverage(ctx, "u1", day)
	require.NoError(t, err)
	assert.Equal(t, 2, view.TicketsUsed)
}

func TestService_RegisterTwiceConflicts(t *testing.T) {
	svc := newTestService(t)
	register(t, svc, "u1", policy.TierBasic)

	_, err := svc.RegisterUser(context.Background(), claims.User{ID: "u1"}, memberSince)
	assert.ErrorIs(t, err, generic.ErrStateInconsistency)

	_, err = svc.RegisterUser(context.Background(), claims.User{ID: " "}, memberSince)
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}
