/*
store.go - Persistence interface for coverage transactions

PURPOSE:
  Defines the interface between the coverage engine and the database for
  the transaction log. The Store maintains append-only semantics; the
  mutable member records (users, ledgers, claims) live behind the claims
  repository instead.

APPEND-ONLY CONTRACT:
  - Append(): Single transaction write
  - AppendBatch(): Atomic multi-transaction write
  - NO Update() or Delete() methods exist

IDEMPOTENCY:
  Every payout carries an idempotency key ("payout:<claimID>"). If the key
  already exists the write is rejected, so a retried approval can never
  pay the same claim twice.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - generic/store/memory.go: In-memory for testing
*/
package generic

import "context"

// Store handles persistence of transactions.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete. Ever.
type Store interface {
	// Append persists a transaction. Returns error if idempotency key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch persists multiple transactions atomically.
	// Either all succeed or none do.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Load returns all transactions for entity, ordered by EffectiveAt.
	Load(ctx context.Context, entityID EntityID) ([]Transaction, error)

	// LoadRange returns transactions with EffectiveAt in [from, to).
	LoadRange(ctx context.Context, entityID EntityID, from, to TimePoint) ([]Transaction, error)

	// Exists checks if idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}
