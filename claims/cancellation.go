package claims

import (
	"fmt"

	"github.com/warp/ticket-cover/generic"
)

// CancellationLockDays is how long after a payout a subscription stays
// locked in.
const CancellationLockDays = 90

// CheckCancellation decides whether the member may cancel as of now. Only
// the last payout date matters; the ledger is not consulted.
func CheckCancellation(user User, now generic.TimePoint) CancellationResult {
	if user.LastClaimPayoutDate == nil {
		return CancellationResult{CanCancel: true}
	}

	elapsed := generic.DaysBetween(*user.LastClaimPayoutDate, now)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= CancellationLockDays {
		return CancellationResult{CanCancel: true}
	}

	remaining := CancellationLockDays - elapsed
	return CancellationResult{
		CanCancel:     false,
		Reason:        fmt.Sprintf("a claim was paid on %s; cancellation is available in %d days", user.LastClaimPayoutDate, remaining),
		DaysRemaining: remaining,
	}
}
