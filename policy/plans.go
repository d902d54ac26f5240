/*
Package policy is the static rulebook of the coverage product.

PURPOSE:
  Read-only tables the claims engine consults: plan tiers (caps, ticket
  limits, deductible rates, waiting periods), which parking violations are
  reimbursable, the denial-code catalog, and the state adjacency table used
  for jurisdiction warnings. Nothing in this package mutates after
  construction.

AVAILABLE TIERS:
  free:          no coverage, no waiting period
  basic:         $100/yr, 2 tickets, 20% co-pay, 30-day wait
  pro:           $350/yr, 4 tickets, 15% co-pay, 30-day wait
  professional:  $600/yr, 6 tickets, 10% co-pay, 30-day wait, $200 per claim

CUSTOMIZATION:
  DefaultCatalog() returns the built-in tables. factory.ParseCatalog builds a
  Catalog from JSON so prices and caps can change without a release.

SEE ALSO:
  - violations.go: Covered and excluded violation types
  - denials.go: Denial code catalog
  - factory/catalog.go: JSON plan catalog
*/
package policy

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/ticket-cover/generic"
)

// =============================================================================
// PLAN TIERS
// =============================================================================

// Tier identifies a membership plan.
type Tier string

const (
	TierFree         Tier = "free"
	TierBasic        Tier = "basic"
	TierPro          Tier = "pro"
	TierProfessional Tier = "professional"
)

// Tiers lists every tier in upgrade order.
var Tiers = []Tier{TierFree, TierBasic, TierPro, TierProfessional}

// IsPaid reports whether the tier is a paid subscription.
func (t Tier) IsPaid() bool { return t != TierFree }

// NormalizeTier maps unknown or empty tier names to free.
func NormalizeTier(s string) Tier {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Tiers {
		if t == known {
			return t
		}
	}
	return TierFree
}

// DefaultWaitingPeriodDays applies to every paid tier.
const DefaultWaitingPeriodDays = 30

// =============================================================================
// PLAN CONFIG
// =============================================================================

// PlanConfig is the immutable rule set for one tier.
type PlanConfig struct {
	ID                Tier
	Name              string
	MonthlyPrice      generic.Amount
	AnnualCap         generic.Amount
	MaxTicketsPerYear int

	// Fraction of each claim the member bears, 0 to 1.
	DeductibleRate decimal.Decimal

	WaitingPeriodDays int

	// Optional per-claim ceiling applied before the remaining-cap clamp.
	MaxCoveragePerClaim *generic.Amount
}

// ReimbursementRate is 1 - DeductibleRate.
func (p PlanConfig) ReimbursementRate() decimal.Decimal {
	return decimal.NewFromInt(1).Sub(p.DeductibleRate)
}

func money(s string) generic.Amount {
	return generic.Amount{Value: decimal.RequireFromString(s), Unit: generic.UnitUSD}
}

func moneyPtr(s string) *generic.Amount {
	m := money(s)
	return &m
}

// DefaultPlans returns the built-in plan table.
func DefaultPlans() []PlanConfig {
	return []PlanConfig{
		{
			ID:                TierFree,
			Name:              "Free",
			MonthlyPrice:      money("0"),
			AnnualCap:         money("0"),
			MaxTicketsPerYear: 0,
			DeductibleRate:    decimal.NewFromInt(1),
			WaitingPeriodDays: 0,
		},
		{
			ID:                TierBasic,
			Name:              "Basic",
			MonthlyPrice:      money("9.99"),
			AnnualCap:         money("100"),
			MaxTicketsPerYear: 2,
			DeductibleRate:    decimal.RequireFromString("0.20"),
			WaitingPeriodDays: DefaultWaitingPeriodDays,
		},
		{
			ID:                TierPro,
			Name:              "Pro",
			MonthlyPrice:      money("19.99"),
			AnnualCap:         money("350"),
			MaxTicketsPerYear: 4,
			DeductibleRate:    decimal.RequireFromString("0.15"),
			WaitingPeriodDays: DefaultWaitingPeriodDays,
		},
		{
			ID:                  TierProfessional,
			Name:                "Professional",
			MonthlyPrice:        money("29.99"),
			AnnualCap:           money("600"),
			MaxTicketsPerYear:   6,
			DeductibleRate:      decimal.RequireFromString("0.10"),
			WaitingPeriodDays:   DefaultWaitingPeriodDays,
			MaxCoveragePerClaim: moneyPtr("200"),
		},
	}
}
