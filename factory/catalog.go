/*
Package factory provides JSON to Go plan catalog conversion.

PURPOSE:
  Converts a JSON plan catalog into a validated *policy.Catalog. Prices,
  caps, ticket limits and the denial catalog can then change through a
  config file instead of a release.

JSON SCHEMA:
  {
    "plans": [
      {
        "id": "basic",
        "name": "Basic",
        "monthly_price": "9.99",
        "annual_cap": "100",
        "max_tickets_per_year": 2,
        "deductible_rate": "0.20",
        "waiting_period_days": 30
      },
      {
        "id": "professional",
        ...
        "max_coverage_per_claim": "200"
      }
    ],
    "covered_violations": ["expired_meter", "street_cleaning"],
    "excluded_violations": ["fire_hydrant"],
    "denial_codes": [
      {"code": "LATE_SUBMISSION", "reason": "...", "appealable": true}
    ],
    "adjacent_states": {"CA": ["NV", "AZ", "OR"]}
  }

  Omitted sections fall back to the built-in tables. Money accepts JSON
  numbers or strings; strings are preferred for exact cents.

KEY FEATURES:
  - Rejects unknown tiers, rates outside [0, 1], negative caps
  - Requires all four tiers
  - Missing waiting_period_days defaults to 30 for paid tiers, 0 for free
  - The absolute exclusions always apply

USAGE:
  catalog, err := factory.LoadCatalogFile("plans.json")
  plan, err := catalog.PlanConfig(policy.TierPro)

SEE ALSO:
  - policy/catalog.go: Catalog type definition
  - policy/plans.go: Built-in plan table
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/warp/ticket-cover/generic"
	"github.com/warp/ticket-cover/policy"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// CatalogJSON is the JSON representation of the plan catalog.
type CatalogJSON struct {
	Plans              []PlanJSON          `json:"plans"`
	CoveredViolations  []string            `json:"covered_violations,omitempty"`
	ExcludedViolations []string            `json:"excluded_violations,omitempty"`
	DenialCodes        []DenialCodeJSON    `json:"denial_codes,omitempty"`
	AdjacentStates     map[string][]string `json:"adjacent_states,omitempty"`
}

// PlanJSON represents one tier.
type PlanJSON struct {
	ID                  string           `json:"id"`
	Name                string           `json:"name"`
	MonthlyPrice        decimal.Decimal  `json:"monthly_price"`
	AnnualCap           decimal.Decimal  `json:"annual_cap"`
	MaxTicketsPerYear   int              `json:"max_tickets_per_year"`
	DeductibleRate      decimal.Decimal  `json:"deductible_rate"`
	WaitingPeriodDays   *int             `json:"waiting_period_days,omitempty"`
	MaxCoveragePerClaim *decimal.Decimal `json:"max_coverage_per_claim,omitempty"`
}

// DenialCodeJSON represents a denial catalog entry.
type DenialCodeJSON struct {
	Code       string `json:"code"`
	Reason     string `json:"reason"`
	Appealable bool   `json:"appealable"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseCatalog parses a JSON string into a validated catalog.
func ParseCatalog(jsonStr string) (*policy.Catalog, error) {
	var cj CatalogJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return nil, fmt.Errorf("failed to parse catalog JSON: %w", err)
	}
	return FromJSON(cj)
}

// LoadCatalogFile reads and parses a catalog file.
func LoadCatalogFile(path string) (*policy.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalog(string(data))
}

// FromJSON converts CatalogJSON to a policy.Catalog.
func FromJSON(cj CatalogJSON) (*policy.Catalog, error) {
	tables := policy.DefaultTables()

	if len(cj.Plans) == 0 {
		return nil, fmt.Errorf("%w: catalog has no plans", generic.ErrInvalidInput)
	}
	tables.Plans = make([]policy.PlanConfig, 0, len(cj.Plans))
	for _, pj := range cj.Plans {
		plan, err := parsePlan(pj)
		if err != nil {
			return nil, err
		}
		tables.Plans = append(tables.Plans, plan)
	}

	if len(cj.CoveredViolations) > 0 {
		tables.Covered = parseViolations(cj.CoveredViolations)
	}
	if len(cj.ExcludedViolations) > 0 {
		tables.Excluded = parseViolations(cj.ExcludedViolations)
	}
	if len(cj.DenialCodes) > 0 {
		tables.DenialCodes = make([]policy.DenialCode, 0, len(cj.DenialCodes))
		for _, dj := range cj.DenialCodes {
			if dj.Code == "" {
				return nil, fmt.Errorf("%w: denial code without code", generic.ErrInvalidInput)
			}
			tables.DenialCodes = append(tables.DenialCodes, policy.DenialCode(dj))
		}
	}
	if cj.AdjacentStates != nil {
		tables.AdjacentStates = cj.AdjacentStates
	}

	catalog, err := policy.NewCatalog(tables)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return catalog, nil
}

func parsePlan(pj PlanJSON) (policy.PlanConfig, error) {
	tier := policy.Tier(pj.ID)
	if policy.NormalizeTier(pj.ID) != tier {
		return policy.PlanConfig{}, fmt.Errorf("%w: %q", generic.ErrUnknownPlan, pj.ID)
	}

	plan := policy.PlanConfig{
		ID:                tier,
		Name:              pj.Name,
		MonthlyPrice:      usd(pj.MonthlyPrice),
		AnnualCap:         usd(pj.AnnualCap),
		MaxTicketsPerYear: pj.MaxTicketsPerYear,
		DeductibleRate:    pj.DeductibleRate,
	}
	if plan.Name == "" {
		plan.Name = string(tier)
	}

	// Paid tiers wait 30 days unless the file says otherwise.
	if pj.WaitingPeriodDays != nil {
		plan.WaitingPeriodDays = *pj.WaitingPeriodDays
	} else if tier.IsPaid() {
		plan.WaitingPeriodDays = policy.DefaultWaitingPeriodDays
	}

	if pj.MaxCoveragePerClaim != nil {
		limit := usd(*pj.MaxCoveragePerClaim)
		plan.MaxCoveragePerClaim = &limit
	}
	return plan, nil
}

func parseViolations(names []string) []policy.ViolationType {
	out := make([]policy.ViolationType, 0, len(names))
	for _, n := range names {
		out = append(out, policy.NormalizeViolation(n))
	}
	return out
}

func usd(d decimal.Decimal) generic.Amount {
	return generic.Amount{Value: d, Unit: generic.UnitUSD}
}

// =============================================================================
// EXPORT
// =============================================================================

// ToJSON converts a catalog back to its JSON representation.
func ToJSON(c *policy.Catalog) CatalogJSON {
	cj := CatalogJSON{AdjacentStates: c.AdjacentStates()}

	for _, p := range c.Plans() {
		cj.Plans = append(cj.Plans, PlanToJSON(p))
	}
	for _, v := range c.CoveredViolations() {
		cj.CoveredViolations = append(cj.CoveredViolations, string(v))
	}
	for _, v := range c.ExcludedViolations() {
		cj.ExcludedViolations = append(cj.ExcludedViolations, string(v))
	}
	for _, d := range c.DenialCodes() {
		cj.DenialCodes = append(cj.DenialCodes, DenialCodeJSON(d))
	}
	return cj
}

// PlanToJSON converts one plan to its JSON representation.
func PlanToJSON(p policy.PlanConfig) PlanJSON {
	waiting := p.WaitingPeriodDays
	pj := PlanJSON{
		ID:                string(p.ID),
		Name:              p.Name,
		MonthlyPrice:      p.MonthlyPrice.Value,
		AnnualCap:         p.AnnualCap.Value,
		MaxTicketsPerYear: p.MaxTicketsPerYear,
		DeductibleRate:    p.DeductibleRate,
		WaitingPeriodDays: &waiting,
	}
	if p.MaxCoveragePerClaim != nil {
		limit := p.MaxCoveragePerClaim.Value
		pj.MaxCoveragePerClaim = &limit
	}
	return pj
}

// DefaultCatalogJSON renders the built-in catalog, indented.
func DefaultCatalogJSON() string {
	data, err := json.MarshalIndent(ToJSON(policy.DefaultCatalog()), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
