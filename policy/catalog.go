package policy

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/ticket-cover/generic"
)

// =============================================================================
// CATALOG - Read-only lookup over plans, violations and denial codes
// =============================================================================

// Catalog bundles the product rule tables. Build once, share freely:
// nothing mutates after NewCatalog returns.
type Catalog struct {
	plans     map[Tier]PlanConfig
	covered   map[ViolationType]bool
	excluded  map[ViolationType]bool
	denials   map[string]DenialCode
	adjacency Adjacency
}

// CatalogTables are the raw inputs to NewCatalog.
type CatalogTables struct {
	Plans          []PlanConfig
	Covered        []ViolationType
	Excluded       []ViolationType
	DenialCodes    []DenialCode
	AdjacentStates map[string][]string
}

// DefaultTables returns the built-in tables.
func DefaultTables() CatalogTables {
	return CatalogTables{
		Plans:          DefaultPlans(),
		Covered:        DefaultCoveredViolations,
		Excluded:       AbsoluteExclusions,
		DenialCodes:    DefaultDenialCodes(),
		AdjacentStates: DefaultAdjacentStates,
	}
}

// DefaultCatalog returns the catalog built from the built-in tables.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultTables())
	if err != nil {
		panic(fmt.Sprintf("policy: built-in catalog invalid: %v", err))
	}
	return c
}

// NewCatalog validates the tables and builds lookups.
// Every tier must be present exactly once. The absolute exclusions always
// apply, even if a table omits them.
func NewCatalog(t CatalogTables) (*Catalog, error) {
	c := &Catalog{
		plans:     make(map[Tier]PlanConfig, len(t.Plans)),
		covered:   make(map[ViolationType]bool),
		excluded:  make(map[ViolationType]bool),
		denials:   make(map[string]DenialCode),
		adjacency: NewAdjacency(t.AdjacentStates),
	}

	for _, p := range t.Plans {
		if _, dup := c.plans[p.ID]; dup {
			return nil, fmt.Errorf("duplicate plan %q", p.ID)
		}
		if err := validatePlan(p); err != nil {
			return nil, err
		}
		c.plans[p.ID] = p
	}
	for _, tier := range Tiers {
		if _, ok := c.plans[tier]; !ok {
			return nil, fmt.Errorf("missing plan %q: %w", tier, generic.ErrUnknownPlan)
		}
	}

	for _, v := range t.Covered {
		c.covered[NormalizeViolation(string(v))] = true
	}
	for _, v := range AbsoluteExclusions {
		c.excluded[v] = true
	}
	for _, v := range t.Excluded {
		c.excluded[NormalizeViolation(string(v))] = true
	}

	for _, d := range t.DenialCodes {
		c.denials[d.Code] = d
	}
	return c, nil
}

func validatePlan(p PlanConfig) error {
	switch {
	case p.DeductibleRate.IsNegative() || p.DeductibleRate.GreaterThan(decimal.NewFromInt(1)):
		return fmt.Errorf("plan %q: deductible rate %s outside [0, 1]", p.ID, p.DeductibleRate)
	case p.AnnualCap.IsNegative():
		return fmt.Errorf("plan %q: negative annual cap", p.ID)
	case p.MaxTicketsPerYear < 0:
		return fmt.Errorf("plan %q: negative ticket limit", p.ID)
	case p.WaitingPeriodDays < 0:
		return fmt.Errorf("plan %q: negative waiting period", p.ID)
	case p.MaxCoveragePerClaim != nil && p.MaxCoveragePerClaim.IsNegative():
		return fmt.Errorf("plan %q: negative per-claim cap", p.ID)
	}
	return nil
}

// PlanConfig looks up a tier. Callers normalize unknown/empty names to free
// with NormalizeTier before calling.
func (c *Catalog) PlanConfig(tier Tier) (PlanConfig, error) {
	p, ok := c.plans[tier]
	if !ok {
		return PlanConfig{}, fmt.Errorf("%w: %q", generic.ErrUnknownPlan, tier)
	}
	return p, nil
}

// Plans returns every plan in upgrade order.
func (c *Catalog) Plans() []PlanConfig {
	out := make([]PlanConfig, 0, len(Tiers))
	for _, t := range Tiers {
		out = append(out, c.plans[t])
	}
	return out
}

// IsViolationCovered reports whether a violation is reimbursable: in the
// covered set and not in the exclusion set.
func (c *Catalog) IsViolationCovered(v ViolationType) bool {
	v = NormalizeViolation(string(v))
	return c.covered[v] && !c.excluded[v]
}

// IsExcluded reports whether a violation is in the absolute exclusion set.
func (c *Catalog) IsExcluded(v ViolationType) bool {
	return c.excluded[NormalizeViolation(string(v))]
}

// CoveredViolations returns the covered set, sorted.
func (c *Catalog) CoveredViolations() []ViolationType {
	return sortedKeys(c.covered)
}

// ExcludedViolations returns the exclusion set, sorted.
func (c *Catalog) ExcludedViolations() []ViolationType {
	return sortedKeys(c.excluded)
}

// DenialCode looks up a code. A missing code is ErrUnknownDenialCode; the
// caller treats it as a non-appealable unspecified denial.
func (c *Catalog) DenialCode(code string) (DenialCode, error) {
	d, ok := c.denials[code]
	if !ok {
		return DenialCode{}, fmt.Errorf("%w: %q", generic.ErrUnknownDenialCode, code)
	}
	return d, nil
}

// DenialCodeOrUnspecified never fails: unknown codes come back as
// Unspecified, keeping the original code string for display.
func (c *Catalog) DenialCodeOrUnspecified(code string) DenialCode {
	d, err := c.DenialCode(code)
	if err != nil {
		fallback := Unspecified
		if code != "" {
			fallback.Code = code
		}
		return fallback
	}
	return d
}

// DenialCodes returns the catalog sorted by code.
func (c *Catalog) DenialCodes() []DenialCode {
	out := make([]DenialCode, 0, len(c.denials))
	for _, d := range c.denials {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// AllowsJurisdiction reports whether claimState is the member's home state
// or an approved neighbour.
func (c *Catalog) AllowsJurisdiction(homeState, claimState string) bool {
	return c.adjacency.Allows(homeState, claimState)
}

// AdjacentStates returns the symmetric adjacency table.
func (c *Catalog) AdjacentStates() map[string][]string {
	out := make(map[string][]string, len(c.adjacency))
	for state, neighbours := range c.adjacency {
		for n := range neighbours {
			out[state] = append(out[state], n)
		}
		sort.Strings(out[state])
	}
	return out
}

func sortedKeys(m map[ViolationType]bool) []ViolationType {
	out := make([]ViolationType, 0, len(m))
	for v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
