package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/diligence-engine/internal/benchmark"
	"github.com/sells-group/diligence-engine/internal/model"
)

// testLibrary pins rates so blended math is easy to assert against.
func testLibrary() *benchmark.Library {
	return benchmark.NewLibrary(nil, benchmark.RateTable{
		Base: map[model.Seniority]map[model.Sourcing]float64{
			model.SeniorityMid: {
				model.SourcingInternal:   16_000,
				model.SourcingContractor: 20_000,
				model.SourcingVendor:     18_000,
			},
			model.SenioritySenior: {
				model.SourcingInternal:   20_000,
				model.SourcingContractor: 28_000,
				model.SourcingVendor:     24_000,
			},
		},
		GeoMultipliers: map[string]float64{"us": 1.0, "india": 0.4},
	})
}

func resourceNode(t *testing.T, details model.ResourceDetails) *model.EstimateNode {
	t.Helper()
	n, err := model.NewResourceNode("application_migration", "Application Migration", details)
	require.NoError(t, err)
	return n
}

func TestDeriveCostBlendedRate(t *testing.T) {
	t.Parallel()

	// 2 FTE x 6 months = 12 PM at a 50/50 internal/contractor blend of
	// 16k/20k = 18k per PM. Expect labor centered on $216,000.
	res := resourceNode(t, model.ResourceDetails{
		Duration: model.Range{Low: 6, High: 6},
		Roles: []model.RoleRequirement{
			{Role: "Migration Engineer", FTE: 2, DurationMonths: 6, Seniority: model.SeniorityMid, Sourcing: model.SourcingMixed},
		},
		SourcingMix: map[model.Sourcing]float64{
			model.SourcingInternal:   0.5,
			model.SourcingContractor: 0.5,
		},
		Confidence: 0.7,
	})

	node, err := NewDeriver(testLibrary()).DeriveCost(res, "us", nil)
	require.NoError(t, err)

	require.NotNil(t, node.Cost.Labor)
	assert.InDelta(t, 216_000.0, node.Cost.Labor.Mid(), 0.01)
	assert.InDelta(t, 216_000*0.9, node.Cost.Labor.Low, 0.01)
	assert.InDelta(t, 216_000*1.1, node.Cost.Labor.High, 0.01)

	require.NotNil(t, node.Cost.BlendedRate)
	assert.InDelta(t, 18_000.0, node.Cost.BlendedRate.Mid(), 0.01)

	assert.True(t, node.Cost.DerivedFromResource)
	assert.Equal(t, res.ID, node.Cost.SourceResourceID)
	assert.Equal(t, model.StatusConsistent, node.Cost.ConsistencyStatus)
	assert.InDelta(t, res.Resource.Confidence, node.Cost.Confidence, 1e-9)
}

func TestDeriveCostExplicitSourcingIsPointValue(t *testing.T) {
	t.Parallel()

	res := resourceNode(t, model.ResourceDetails{
		Duration: model.Range{Low: 4, High: 4},
		Roles: []model.RoleRequirement{
			{Role: "Security Engineer", FTE: 1, DurationMonths: 4, Seniority: model.SenioritySenior, Sourcing: model.SourcingContractor},
		},
		Confidence: 0.6,
	})

	node, err := NewDeriver(testLibrary()).DeriveCost(res, "us", nil)
	require.NoError(t, err)

	// 4 PM x 28,000 = 112,000 with no spread.
	assert.InDelta(t, 112_000.0, node.Cost.Labor.Low, 0.01)
	assert.InDelta(t, 112_000.0, node.Cost.Labor.High, 0.01)
}

func TestDeriveCostGeographyMultiplier(t *testing.T) {
	t.Parallel()

	res := resourceNode(t, model.ResourceDetails{
		Duration: model.Range{Low: 6, High: 6},
		Roles: []model.RoleRequirement{
			{Role: "Engineer", FTE: 1, DurationMonths: 6, Seniority: model.SeniorityMid, Sourcing: model.SourcingInternal},
		},
		Confidence: 0.5,
	})

	node, err := NewDeriver(testLibrary()).DeriveCost(res, "india", nil)
	require.NoError(t, err)

	assert.InDelta(t, 6*16_000*0.4, node.Cost.Labor.Low, 0.01)
}

func TestDeriveCostAddsNonLabor(t *testing.T) {
	t.Parallel()

	res := resourceNode(t, model.ResourceDetails{
		Duration: model.Range{Low: 4, High: 4},
		Roles: []model.RoleRequirement{
			{Role: "Engineer", FTE: 1, DurationMonths: 4, Seniority: model.SeniorityMid, Sourcing: model.SourcingInternal},
		},
		Confidence: 0.5,
	})

	nonLabor := model.Range{Low: 10_000, High: 25_000}
	node, err := NewDeriver(testLibrary()).DeriveCost(res, "us", &nonLabor)
	require.NoError(t, err)

	labor := 4 * 16_000.0
	assert.InDelta(t, labor+10_000, node.Cost.Total.Low, 0.01)
	assert.InDelta(t, labor+25_000, node.Cost.Total.High, 0.01)
	require.NotNil(t, node.Cost.NonLabor)
}

func TestDeriveCostEmptyRoles(t *testing.T) {
	t.Parallel()

	res := resourceNode(t, model.ResourceDetails{
		Duration:   model.Range{},
		Confidence: 0,
	})

	node, err := NewDeriver(testLibrary()).DeriveCost(res, "us", nil)
	require.NoError(t, err)

	assert.InDelta(t, 0.0, node.Cost.Total.High, 1e-9)
	assert.Nil(t, node.Cost.BlendedRate)
}

func TestDeriveCostRejectsNonResourceNode(t *testing.T) {
	t.Parallel()

	costNode, err := model.NewCostNode("x", "x", model.CostDetails{
		Total:      model.Range{Low: 1, High: 2},
		Confidence: 0.5,
	})
	require.NoError(t, err)

	_, err = NewDeriver(testLibrary()).DeriveCost(costNode, "us", nil)
	assert.Error(t, err)

	_, err = NewDeriver(testLibrary()).DeriveCost(nil, "us", nil)
	assert.Error(t, err)
}

func TestDeriveCostUnknownSeniority(t *testing.T) {
	t.Parallel()

	res := resourceNode(t, model.ResourceDetails{
		Duration: model.Range{Low: 4, High: 4},
		Roles: []model.RoleRequirement{
			{Role: "Engineer", FTE: 1, DurationMonths: 4, Seniority: model.Seniority("intern"), Sourcing: model.SourcingInternal},
		},
		Confidence: 0.5,
	})

	_, err := NewDeriver(testLibrary()).DeriveCost(res, "us", nil)
	assert.Error(t, err)
}
