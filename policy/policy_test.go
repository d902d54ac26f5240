package policy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ticket-cover/generic"
	"github.com/warp/ticket-cover/policy"
)

// =============================================================================
// PLAN LOOKUP
// =============================================================================

func TestCatalog_PlanConfig(t *testing.T) {
	c := policy.DefaultCatalog()

	basic, err := c.PlanConfig(policy.TierBasic)
	require.NoError(t, err)
	assert.Equal(t, "100.00", basic.AnnualCap.String())
	assert.Equal(t, 2, basic.MaxTicketsPerYear)
	assert.Equal(t, "0.8", basic.ReimbursementRate().String())
	assert.Equal(t, 30, basic.WaitingPeriodDays)
	assert.Nil(t, basic.MaxCoveragePerClaim)

	free, err := c.PlanConfig(policy.TierFree)
	require.NoError(t, err)
	assert.Equal(t, 0, free.WaitingPeriodDays)
	assert.True(t, free.AnnualCap.IsZero())

	pro, err := c.PlanConfig(policy.TierProfessional)
	require.NoError(t, err)
	require.NotNil(t, pro.MaxCoveragePerClaim)
	assert.Equal(t, "200.00", pro.MaxCoveragePerClaim.String())
}

func TestCatalog_UnknownPlan(t *testing.T) {
	_, err := policy.DefaultCatalog().PlanConfig("platinum")
	assert.ErrorIs(t, err, generic.ErrUnknownPlan)
}

func TestNormalizeTier(t *testing.T) {
	assert.Equal(t, policy.TierPro, policy.NormalizeTier(" PRO "))
	assert.Equal(t, policy.TierFree, policy.NormalizeTier(""))
	assert.Equal(t, policy.TierFree, policy.NormalizeTier("platinum"))
}

func TestCatalog_PlansInUpgradeOrder(t *testing.T) {
	plans := policy.DefaultCatalog().Plans()
	require.Len(t, plans, 4)
	for i, tier := range policy.Tiers {
		assert.Equal(t, tier, plans[i].ID)
	}
}

func TestNewCatalog_RequiresEveryTier(t *testing.T) {
	tables := policy.DefaultTables()
	tables.Plans = tables.Plans[:3]
	_, err := policy.NewCatalog(tables)
	assert.ErrorIs(t, err, generic.ErrUnknownPlan)
}

func TestNewCatalog_RejectsBadDeductible(t *testing.T) {
	tables := policy.DefaultTables()
	tables.Plans[1].DeductibleRate = generic.MustParseDecimal("1.5")
	_, err := policy.NewCatalog(tables)
	assert.Error(t, err)
}

// =============================================================================
// VIOLATIONS
// =============================================================================

func TestCatalog_ViolationCoverage(t *testing.T) {
	c := policy.DefaultCatalog()

	tests := []struct {
		input   string
		covered bool
	}{
		{"expired_meter", true},
		{"Street Cleaning", true},
		{"parking-meter", true},
		{"Fire Hydrant", false},
		{"FIRE_HYDRANT", false},
		{"hydrant", false},
		{"handicap zone", false},
		{"double_parking", false},
		{"blocking intersection", false},
		{"criminal", false},
		{"speeding", false},
		{"something_new", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.covered, c.IsViolationCovered(policy.ViolationType(tt.input)))
		})
	}
}

func TestCatalog_ExclusionWinsOverCovered(t *testing.T) {
	// GIVEN: a table that wrongly lists fire_hydrant as covered
	tables := policy.DefaultTables()
	tables.Covered = append(tables.Covered, policy.ViolationFireHydrant)
	tables.Excluded = nil

	c, err := policy.NewCatalog(tables)
	require.NoError(t, err)

	// THEN: the absolute exclusion still applies
	assert.False(t, c.IsViolationCovered(policy.ViolationFireHydrant))
	assert.True(t, c.IsExcluded("Fire Hydrant"))
}

func TestNormalizeViolation(t *testing.T) {
	assert.Equal(t, policy.ViolationFireHydrant, policy.NormalizeViolation("Fire  Hydrant"))
	assert.Equal(t, policy.ViolationTimeLimit, policy.NormalizeViolation("overtime parking"))
	assert.Equal(t, policy.ViolationType("bus_stop"), policy.NormalizeViolation("Bus-Stop"))
}

// =============================================================================
// DENIAL CODES
// =============================================================================

func TestCatalog_DenialCode(t *testing.T) {
	c := policy.DefaultCatalog()

	late, err := c.DenialCode(policy.DenialLateSubmission)
	require.NoError(t, err)
	assert.True(t, late.Appealable)

	fraud, err := c.DenialCode(policy.DenialSuspectedFraud)
	require.NoError(t, err)
	assert.False(t, fraud.Appealable)

	_, err = c.DenialCode("NOPE")
	assert.ErrorIs(t, err, generic.ErrUnknownDenialCode)
}

func TestCatalog_DenialCodeOrUnspecified(t *testing.T) {
	c := policy.DefaultCatalog()

	d := c.DenialCodeOrUnspecified("NOPE")
	assert.Equal(t, "NOPE", d.Code)
	assert.False(t, d.Appealable)
	assert.Equal(t, policy.Unspecified.Reason, d.Reason)

	d = c.DenialCodeOrUnspecified("")
	assert.Equal(t, policy.DenialUnspecified, d.Code)
}

func TestCatalog_DenialCodesSorted(t *testing.T) {
	codes := policy.DefaultCatalog().DenialCodes()
	require.NotEmpty(t, codes)
	for i := 1; i < len(codes); i++ {
		assert.Less(t, codes[i-1].Code, codes[i].Code)
	}
}

// =============================================================================
// JURISDICTION
// =============================================================================

func TestCatalog_AllowsJurisdiction(t *testing.T) {
	c := policy.DefaultCatalog()

	assert.True(t, c.AllowsJurisdiction("CA", "ca"))
	assert.True(t, c.AllowsJurisdiction("CA", "NV"))
	assert.True(t, c.AllowsJurisdiction("NV", "CA"), "adjacency is symmetric")
	assert.False(t, c.AllowsJurisdiction("CA", "NY"))
	assert.False(t, c.AllowsJurisdiction("", "NY"))
}

func TestCatalog_AdjacentStatesSymmetric(t *testing.T) {
	adj := policy.DefaultCatalog().AdjacentStates()
	assert.Contains(t, adj["NV"], "CA")
	assert.Contains(t, adj["CA"], "NV")
}
