/*
Package generic provides the core value types shared by the coverage engine.

PURPOSE:
  Domain-agnostic building blocks for the claims engine: money amounts with
  exact decimal arithmetic, calendar dates, coverage periods, and the
  append-only transaction log that records every change to a member's
  coverage ledger.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (e.g., $68.00, 1 ticket)
  - Transaction: An immutable log entry recording a coverage change
  - Entity/Policy IDs: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified, only appended
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing user/plan IDs
  4. Auditability: Every transaction has reason, reference, and idempotency key

USAGE:
  payout := generic.NewMoney(68)
  tx := generic.Transaction{
      EntityID: "user-123",
      PolicyID: "basic",
      Delta:    payout,
      Type:     generic.TxPayout,
  }

SEE ALSO:
  - period.go: Coverage period boundaries
  - ledger.go: Transaction log interface
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitUSD     Unit = "usd"
	UnitTickets Unit = "tickets"
)

// CurrencyPlaces is the number of decimal places money is rounded to.
const CurrencyPlaces = 2

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewAmountFromInt(value int, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(int64(value)), Unit: unit}
}

// NewMoney returns a USD amount.
func NewMoney(value float64) Amount { return NewAmount(value, UnitUSD) }

// ParseMoney parses a decimal string ("85", "85.50") into a USD amount.
func ParseMoney(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Value: d, Unit: UnitUSD}, nil
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Unit: a.Unit} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }

func (a Amount) Min(b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

func (a Amount) Max(b Amount) Amount {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Round2 rounds to cents, half away from zero (half-up for positive money).
func (a Amount) Round2() Amount {
	return Amount{Value: a.Value.Round(CurrencyPlaces), Unit: a.Unit}
}

// NonNegative clamps negative amounts to zero.
func (a Amount) NonNegative() Amount {
	if a.IsNegative() {
		return a.Zero()
	}
	return a
}

// String formats with two decimals, e.g. "68.00".
func (a Amount) String() string { return a.Value.StringFixed(CurrencyPlaces) }

// Float64 is for display surfaces (JSON, metrics) only.
func (a Amount) Float64() float64 { return a.Value.InexactFloat64() }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EntityID string
type PolicyID string
type TransactionID string

// =============================================================================
// TRANSACTION - Atomic change to a coverage ledger
// =============================================================================

type TransactionType string

const (
	TxTicket     TransactionType = "ticket"      // Ticket slot consumed by an accepted submission
	TxPayout     TransactionType = "payout"      // Reimbursement paid against the annual cap
	TxRollover   TransactionType = "rollover"    // Annual period reset
	TxPlanChange TransactionType = "plan_change" // New caps after a plan switch
)

type Transaction struct {
	ID             TransactionID
	EntityID       EntityID
	PolicyID       PolicyID
	EffectiveAt    TimePoint
	Delta          Amount
	Type           TransactionType
	ReferenceID    string
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string

	CreatedBy string // "member", "reviewer", "system"
	CreatedAt TimePoint
}
