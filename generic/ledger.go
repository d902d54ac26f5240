/*
ledger.go - Append-only coverage transaction log

PURPOSE:
  Every mutation of a member's coverage ledger (ticket consumed, payout,
  annual rollover, plan change) is also written here. The mutable ledger
  row is the fast path; this log is the audit trail that explains how the
  row got to its current state and lets us replay and verify it.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, transactions cannot be modified
  3. IDEMPOTENT: Same idempotency key = same transaction (no duplicates)

EXAMPLE FLOW (Basic plan, $100 cap):
  1. Claim submitted:  TxTicket   +1 ticket
  2. Claim paid:       TxPayout   +$68.00
  3. Year ends:        TxRollover (usage reset)

  Replay of the current period: used=$68.00, tickets=1
*/
package generic

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Ledger is the source of truth for coverage history.
type Ledger interface {
	// Append adds a transaction. Fails if idempotency key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch adds multiple transactions atomically.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Transactions returns all transactions for the entity, chronologically.
	Transactions(ctx context.Context, entityID EntityID) ([]Transaction, error)

	// Replay sums usage for the entity within a period.
	Replay(ctx context.Context, entityID EntityID, period Period) (Usage, error)
}

// Usage is the consumption derived by replaying transactions.
type Usage struct {
	Paid    Amount
	Tickets int
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store Store
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

func (l *DefaultLedger) Append(ctx context.Context, tx Transaction) error {
	if tx.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.Append(ctx, tx)
}

func (l *DefaultLedger) AppendBatch(ctx context.Context, txs []Transaction) error {
	for _, tx := range txs {
		if tx.IdempotencyKey != "" {
			exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicateIdempotencyKey
			}
		}
	}
	return l.Store.AppendBatch(ctx, txs)
}

func (l *DefaultLedger) Transactions(ctx context.Context, entityID EntityID) ([]Transaction, error) {
	return l.Store.Load(ctx, entityID)
}

// Replay rebuilds usage from the log. A plan change carries its usage in
// Metadata ("carried_used", "carried_tickets") and replaces what came before
// it in the same period; a rollover starts the period fresh.
func (l *DefaultLedger) Replay(ctx context.Context, entityID EntityID, period Period) (Usage, error) {
	txs, err := l.Store.LoadRange(ctx, entityID, period.Start, period.End)
	if err != nil {
		return Usage{}, err
	}

	usage := Usage{Paid: NewAmountFromInt(0, UnitUSD)}
	for _, tx := range txs {
		switch tx.Type {
		case TxTicket:
			usage.Tickets += int(tx.Delta.Value.IntPart())
		case TxPayout:
			usage.Paid = usage.Paid.Add(tx.Delta)
		case TxRollover:
			usage = Usage{Paid: NewAmountFromInt(0, UnitUSD)}
		case TxPlanChange:
			paid, err := decimal.NewFromString(tx.Metadata["carried_used"])
			if err != nil {
				return Usage{}, fmt.Errorf("transaction %s: carried_used: %w", tx.ID, err)
			}
			tickets, err := strconv.Atoi(tx.Metadata["carried_tickets"])
			if err != nil {
				return Usage{}, fmt.Errorf("transaction %s: carried_tickets: %w", tx.ID, err)
			}
			usage.Paid = Amount{Value: paid, Unit: UnitUSD}
			usage.Tickets = tickets
		}
	}
	return usage, nil
}
