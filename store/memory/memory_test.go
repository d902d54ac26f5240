package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ticket-cover/claims"
	"github.com/warp/ticket-cover/coverage"
	"github.com/warp/ticket-cover/generic"
	"github.com/warp/ticket-cover/policy"
)

var day = generic.NewTimePoint(2025, time.March, 10)

func basicLedger(t *testing.T, user generic.EntityID) *coverage.Ledger {
	t.Helper()
	plan, err := policy.DefaultCatalog().PlanConfig(policy.TierBasic)
	require.NoError(t, err)
	return coverage.New(user, plan, generic.NewTimePoint(2025, time.January, 1))
}

func TestRepository_NotFound(t *testing.T) {
	r := New()
	ctx := context.Background()

	_, err := r.GetUser(ctx, "nobody")
	assert.ErrorIs(t, err, generic.ErrUserNotFound)
	_, err = r.GetLedger(ctx, "nobody")
	assert.ErrorIs(t, err, generic.ErrLedgerNotFound)
	_, err = r.GetClaim(ctx, "nothing")
	assert.ErrorIs(t, err, generic.ErrClaimNotFound)
}

func TestRepository_ReturnsCopies(t *testing.T) {
	r := New()
	ctx := context.Background()
	require.NoError(t, r.SaveLedger(ctx, basicLedger(t, "u1")))

	l, err := r.GetLedger(ctx, "u1")
	require.NoError(t, err)
	l.ConsumeTicket()

	stored, err := r.GetLedger(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.TicketsUsed, "mutating a read must not touch the store")
}

func TestRepository_ClaimsBySubmissionOrder(t *testing.T) {
	r := New()
	ctx := context.Background()

	for _, id := range []string{"c-9", "c-1", "c-5"} {
		require.NoError(t, r.SaveClaim(ctx, claims.Claim{ID: id, UserID: "u1", TicketDate: day}))
	}
	require.NoError(t, r.SaveClaim(ctx, claims.Claim{ID: "other", UserID: "u2"}))

	// Re-saving keeps the original position.
	require.NoError(t, r.SaveClaim(ctx, claims.Claim{ID: "c-9", UserID: "u1", Status: claims.StatusPaid}))

	got, err := r.ClaimsByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "c-9", got[0].ID)
	assert.Equal(t, claims.StatusPaid, got[0].Status)
	assert.Equal(t, "c-1", got[1].ID)
	assert.Equal(t, "c-5", got[2].ID)
}

func TestRepository_WithTxRollsBackOnError(t *testing.T) {
	r := New()
	ctx := context.Background()
	require.NoError(t, r.SaveUser(ctx, claims.User{ID: "u1", CurrentPlan: policy.TierBasic}))

	boom := errors.New("boom")
	err := r.WithTx(ctx, func(repo claims.Repository) error {
		require.NoError(t, repo.SaveUser(ctx, claims.User{ID: "u1", CurrentPlan: policy.TierPro}))
		require.NoError(t, repo.SaveClaim(ctx, claims.Claim{ID: "c-1", UserID: "u1"}))
		require.NoError(t, repo.Append(ctx, generic.Transaction{
			ID:             "tx-1",
			EntityID:       "u1",
			EffectiveAt:    day,
			Delta:          generic.NewAmountFromInt(1, generic.UnitTickets),
			Type:           generic.TxTicket,
			IdempotencyKey: "ticket:c-1",
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	u, err := r.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, policy.TierBasic, u.CurrentPlan)

	_, err = r.GetClaim(ctx, "c-1")
	assert.ErrorIs(t, err, generic.ErrClaimNotFound)

	exists, err := r.Exists(ctx, "ticket:c-1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRepository_WithTxCommits(t *testing.T) {
	r := New()
	ctx := context.Background()

	err := r.WithTx(ctx, func(repo claims.Repository) error {
		return repo.SaveLedger(ctx, basicLedger(t, "u1"))
	})
	require.NoError(t, err)

	ledgers, err := r.ListLedgers(ctx)
	require.NoError(t, err)
	require.Len(t, ledgers, 1)
	assert.Equal(t, generic.EntityID("u1"), ledgers[0].UserID)
}

func TestRepository_DuplicateIdempotencyKey(t *testing.T) {
	r := New()
	ctx := context.Background()
	log := generic.NewLedger(r)
	tx := generic.Transaction{
		ID:             "tx-1",
		EntityID:       "u1",
		EffectiveAt:    day,
		Delta:          generic.NewMoney(68),
		Type:           generic.TxPayout,
		IdempotencyKey: "payout:c-1",
	}

	require.NoError(t, log.Append(ctx, tx))
	assert.ErrorIs(t, log.Append(ctx, tx), generic.ErrDuplicateIdempotencyKey)
}

func TestRepository_Reset(t *testing.T) {
	r := New()
	ctx := context.Background()
	require.NoError(t, r.SaveUser(ctx, claims.User{ID: "u1"}))
	require.NoError(t, r.Append(ctx, generic.Transaction{ID: "tx", EntityID: "u1", EffectiveAt: day, IdempotencyKey: "k"}))

	require.NoError(t, r.Reset(ctx))

	users, err := r.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
	txs, err := r.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, txs)
}
