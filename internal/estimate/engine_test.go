package estimate

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/diligence-engine/internal/benchmark"
	"github.com/sells-group/diligence-engine/internal/model"
)

func testEngine() *Engine {
	return NewEngine(benchmark.DefaultLibrary())
}

func TestCalculateResourceUnknownWorkstream(t *testing.T) {
	t.Parallel()

	_, err := testEngine().CalculateResource("underwater_basket_weaving", nil, DefaultFactors())
	require.Error(t, err)

	var nf *benchmark.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestCalculateResourceEmptyInventory(t *testing.T) {
	t.Parallel()

	node, err := testEngine().CalculateResource("application_migration", nil, DefaultFactors())
	require.NoError(t, err)

	assert.InDelta(t, 0.0, node.TotalEffortPM(), 1e-9)
	assert.InDelta(t, 0.0, node.Resource.Confidence, 1e-9)
	assert.NotEmpty(t, node.Resource.Assumptions)
	assert.Contains(t, node.Resource.Assumptions[0], "no inventory items")
}

func TestClassifyItem(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		item InventoryItem
		want benchmark.Tier
	}{
		{"explicit tag wins", InventoryItem{Complexity: benchmark.TierVeryComplex, UserCount: 5}, benchmark.TierVeryComplex},
		{"small user count", InventoryItem{UserCount: 50}, benchmark.TierSimple},
		{"boundary simple", InventoryItem{UserCount: 100}, benchmark.TierSimple},
		{"medium user count", InventoryItem{UserCount: 500}, benchmark.TierModerate},
		{"large user count", InventoryItem{UserCount: 4000}, benchmark.TierComplex},
		{"very large user count", InventoryItem{UserCount: 20000}, benchmark.TierVeryComplex},
		{"no signal defaults moderate", InventoryItem{Name: "mystery app"}, benchmark.TierModerate},
		{"bogus tag ignored", InventoryItem{Complexity: benchmark.Tier("weird"), UserCount: 50}, benchmark.TierSimple},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, classifyItem(tt.item))
		})
	}
}

func TestFactorsMultiplierGeometricMean(t *testing.T) {
	t.Parallel()

	f := DefaultFactors()
	assert.InDelta(t, 1.0, f.Multiplier(), 1e-9)

	// One extreme factor must not dominate: geometric mean of
	// {8,1,1,1,1,1} is 8^(1/6) ~ 1.414, far below the raw product.
	f.RegulatoryConstraints = 8.0
	assert.InDelta(t, math.Pow(8, 1.0/6.0), f.Multiplier(), 1e-9)

	f = Factors{
		TechnologyAge:         1.2,
		IntegrationDensity:    1.5,
		DocumentationQuality:  0.8,
		TeamExperience:        0.9,
		TimelinePressure:      1.1,
		RegulatoryConstraints: 1.3,
	}
	want := math.Pow(1.2*1.5*0.8*0.9*1.1*1.3, 1.0/6.0)
	assert.InDelta(t, want, f.Multiplier(), 1e-9)
}

func TestFactorsValidate(t *testing.T) {
	t.Parallel()

	f := DefaultFactors()
	require.NoError(t, f.Validate())

	f.TeamExperience = 0
	assert.Error(t, f.Validate())

	f = DefaultFactors()
	f.TechnologyAge = -1
	assert.Error(t, f.Validate())
}

func TestCalculateResourceEffortAndDuration(t *testing.T) {
	t.Parallel()

	// 10 moderate applications at 1.5 PM each = 15 PM base, neutral
	// factors. Duration = 15/3 = 5 months within clamp bounds.
	items := make([]InventoryItem, 10)
	for i := range items {
		items[i] = InventoryItem{Name: fmt.Sprintf("app-%d", i), UserCount: 500}
	}

	node, err := testEngine().CalculateResource("application_migration", items, DefaultFactors())
	require.NoError(t, err)

	assert.InDelta(t, 5.0, node.Resource.Duration.Low, 1e-9)

	// Role FTEs are rounded to 2 decimals and sub-0.1 allocations dropped,
	// so total effort tracks 15 PM within rounding.
	assert.InDelta(t, 15.0, node.TotalEffortPM(), 0.5)

	for _, r := range node.Resource.Roles {
		assert.GreaterOrEqual(t, r.FTE, 0.1)
		assert.Equal(t, model.SourcingMixed, r.Sourcing)
	}
}

func TestCalculateResourceDurationClamped(t *testing.T) {
	t.Parallel()

	// One simple app: 0.5 PM, duration 0.17 months clamps to 4.
	small, err := testEngine().CalculateResource("application_migration",
		[]InventoryItem{{Name: "tiny", UserCount: 10}}, DefaultFactors())
	require.NoError(t, err)
	assert.InDelta(t, 4.0, small.Resource.Duration.Low, 1e-9)

	// 20 very complex apps: 180 PM, duration 60 months clamps to 12.
	items := make([]InventoryItem, 20)
	for i := range items {
		items[i] = InventoryItem{Name: fmt.Sprintf("big-%d", i), Complexity: benchmark.TierVeryComplex}
	}
	large, err := testEngine().CalculateResource("application_migration", items, DefaultFactors())
	require.NoError(t, err)
	assert.InDelta(t, 12.0, large.Resource.Duration.High, 1e-9)
}

func TestSourcingMixShiftsForSpecializedPlatforms(t *testing.T) {
	t.Parallel()

	plain, err := testEngine().CalculateResource("application_migration",
		[]InventoryItem{{Name: "crm", Technology: "Postgres"}, {Name: "web", Technology: "React"}, {Name: "api"}},
		DefaultFactors())
	require.NoError(t, err)
	assert.InDelta(t, 0.70, plain.Resource.SourcingMix[model.SourcingInternal], 1e-9)
	assert.InDelta(t, 0.05, plain.Resource.SourcingMix[model.SourcingVendor], 1e-9)

	erp, err := testEngine().CalculateResource("erp_consolidation",
		[]InventoryItem{{Name: "finance", Technology: "SAP S/4HANA"}, {Name: "hr"}, {Name: "scm"}},
		DefaultFactors())
	require.NoError(t, err)
	assert.InDelta(t, 0.50, erp.Resource.SourcingMix[model.SourcingInternal], 1e-9)
	assert.InDelta(t, 0.40, erp.Resource.SourcingMix[model.SourcingContractor], 1e-9)

	found := false
	for _, a := range erp.Resource.Assumptions {
		if strings.Contains(a, "SAP") {
			found = true
		}
	}
	assert.True(t, found, "expected a specialized-platform assumption note")
}

func TestConfidenceLadder(t *testing.T) {
	t.Parallel()

	eng := testEngine()

	// application_migration is a high-confidence benchmark: 0.5 + 0.2,
	// plus 0.1 for >= 10 items.
	many := make([]InventoryItem, 12)
	for i := range many {
		many[i] = InventoryItem{Name: fmt.Sprintf("a%d", i), UserCount: 200}
	}
	node, err := eng.CalculateResource("application_migration", many, DefaultFactors())
	require.NoError(t, err)
	assert.InDelta(t, 0.8, node.Resource.Confidence, 1e-9)

	// Two items: 0.5 + 0.2 - 0.2 (sparse inventory).
	sparse, err := eng.CalculateResource("application_migration",
		[]InventoryItem{{Name: "a"}, {Name: "b"}}, DefaultFactors())
	require.NoError(t, err)
	assert.InDelta(t, 0.5, sparse.Resource.Confidence, 1e-9)
}

func TestSkillsUnionAndAssignment(t *testing.T) {
	t.Parallel()

	node, err := testEngine().CalculateResource("application_migration",
		[]InventoryItem{
			{Name: "billing", Technology: "Java"},
			{Name: "portal", Technology: "React"},
			{Name: "legacy"},
		}, DefaultFactors())
	require.NoError(t, err)

	assert.Subset(t, node.Resource.Skills, []string{"Java", "React", "application migration"})

	for _, r := range node.Resource.Roles {
		if r.Role == "Migration Engineer" {
			assert.Subset(t, r.Skills, []string{"Java", "React"})
		}
		if r.Role == "Project Manager" {
			assert.NotContains(t, r.Skills, "Java")
		}
	}
}
