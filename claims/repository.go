package claims

import (
	"context"

	"github.com/warp/ticket-cover/coverage"
	"github.com/warp/ticket-cover/generic"
)

// Repository persists members, their coverage ledgers and claims, plus the
// append-only coverage transaction log (generic.Store).
//
// Get methods return generic.ErrUserNotFound, ErrLedgerNotFound or
// ErrClaimNotFound (possibly wrapped) when the record does not exist.
type Repository interface {
	generic.Store

	SaveUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id generic.EntityID) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)

	SaveLedger(ctx context.Context, l *coverage.Ledger) error
	GetLedger(ctx context.Context, userID generic.EntityID) (*coverage.Ledger, error)
	ListLedgers(ctx context.Context) ([]*coverage.Ledger, error)

	SaveClaim(ctx context.Context, c Claim) error
	GetClaim(ctx context.Context, id string) (*Claim, error)
	ClaimsByUser(ctx context.Context, userID generic.EntityID) ([]Claim, error)
}

// TxRepository runs a read-modify-write atomically. If fn returns an
// error nothing it wrote is kept.
type TxRepository interface {
	Repository
	WithTx(ctx context.Context, fn func(Repository) error) error
}
