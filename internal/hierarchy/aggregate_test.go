package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/diligence-engine/internal/model"
)

func aggregateParent(t *testing.T, id string, kind model.NodeKind) *model.EstimateNode {
	t.Helper()
	var n *model.EstimateNode
	var err error
	switch kind {
	case model.KindResource:
		n, err = model.NewResourceNode("application_migration", "App migration", model.ResourceDetails{
			Confidence: 0.5,
		})
	case model.KindCost:
		n, err = model.NewCostNode("application_migration", "App migration", model.CostDetails{
			Confidence: 0.5,
		})
	}
	require.NoError(t, err)
	n.ID = id
	n.IsAggregate = true
	return n
}

func TestAggregateEffortRollup(t *testing.T) {
	t.Parallel()

	parent := aggregateParent(t, "parent", model.KindResource)
	c1 := leafResource(t, "c1", "parent", 0,
		model.RoleRequirement{Role: "Engineer", FTE: 2, DurationMonths: 6})
	c2 := leafResource(t, "c2", "parent", 1,
		model.RoleRequirement{Role: "Analyst", FTE: 1, DurationMonths: 6})

	tree := Build([]*model.EstimateNode{parent, c1, c2})
	Aggregate(tree)

	assert.InDelta(t, 18.0, parent.TotalEffortPM(), 1e-9)
	assert.InDelta(t, 3.0, parent.PeakHeadcount(), 1e-9)

	// No-drift: bump a child's FTE and re-aggregate; the parent total
	// must move by exactly the child's delta.
	c1.Resource.Roles[0].FTE = 3
	Aggregate(tree)
	assert.InDelta(t, 24.0, parent.TotalEffortPM(), 1e-9)
}

func TestAggregateIdempotent(t *testing.T) {
	t.Parallel()

	parent := aggregateParent(t, "parent", model.KindResource)
	c1 := leafResource(t, "c1", "parent", 0,
		model.RoleRequirement{Role: "Engineer", FTE: 2, DurationMonths: 5})

	tree := Build([]*model.EstimateNode{parent, c1})
	Aggregate(tree)
	first := parent.TotalEffortPM()
	firstPeak := parent.PeakHeadcount()

	Aggregate(tree)
	assert.InDelta(t, first, parent.TotalEffortPM(), 1e-9)
	assert.InDelta(t, firstPeak, parent.PeakHeadcount(), 1e-9)
}

func TestAggregatePhaseAwarePeak(t *testing.T) {
	t.Parallel()

	parent := aggregateParent(t, "parent", model.KindResource)
	planning := leafResource(t, "c1", "parent", 0,
		model.RoleRequirement{Role: "Planner", FTE: 2, DurationMonths: 6,
			PhaseAllocation: map[string]float64{"planning": 1.0, "execution": 0.0}})
	execution := leafResource(t, "c2", "parent", 1,
		model.RoleRequirement{Role: "Builder", FTE: 3, DurationMonths: 6,
			PhaseAllocation: map[string]float64{"planning": 0.0, "execution": 1.0}})

	tree := Build([]*model.EstimateNode{parent, planning, execution})
	Aggregate(tree)

	// Sequential phases must not stack: peak is 3, not 5.
	assert.InDelta(t, 3.0, parent.PeakHeadcount(), 1e-9)

	// An unphased child overlaps both phases and stacks onto each.
	always := leafResource(t, "c3", "parent", 2,
		model.RoleRequirement{Role: "Lead", FTE: 1, DurationMonths: 6})
	tree = Build([]*model.EstimateNode{parent, planning, execution, always})
	Aggregate(tree)
	assert.InDelta(t, 4.0, parent.PeakHeadcount(), 1e-9)
}

func TestAggregateDurationAndSkills(t *testing.T) {
	t.Parallel()

	parent := aggregateParent(t, "parent", model.KindResource)
	c1 := leafResource(t, "c1", "parent", 0,
		model.RoleRequirement{Role: "Engineer", FTE: 1, DurationMonths: 4})
	c1.Resource.Duration = model.Range{Low: 3, High: 8}
	c1.Resource.Skills = []string{"ETL", "testing"}
	c2 := leafResource(t, "c2", "parent", 1,
		model.RoleRequirement{Role: "Analyst", FTE: 1, DurationMonths: 6})
	c2.Resource.Duration = model.Range{Low: 5, High: 6}
	c2.Resource.Skills = []string{"testing", "cutover planning"}

	tree := Build([]*model.EstimateNode{parent, c1, c2})
	Aggregate(tree)

	assert.Equal(t, model.Range{Low: 5, High: 8}, parent.Resource.Duration)
	assert.Equal(t, []string{"ETL", "cutover planning", "testing"}, parent.Resource.Skills)
}

func TestAggregateCostRollup(t *testing.T) {
	t.Parallel()

	parent := aggregateParent(t, "parent", model.KindCost)

	mkCost := func(id string, order int, labor, nonLabor model.Range) *model.EstimateNode {
		n, err := model.NewCostNode("application_migration", "App migration", model.CostDetails{
			Total:      labor.Add(nonLabor),
			Labor:      &labor,
			NonLabor:   &nonLabor,
			Confidence: 0.5,
		})
		require.NoError(t, err)
		n.ID = id
		n.ParentID = "parent"
		n.DisplayOrder = order
		n.Level = 2
		return n
	}

	c1 := mkCost("c1", 0, model.Range{Low: 100, High: 150}, model.Range{Low: 10, High: 20})
	c2 := mkCost("c2", 1, model.Range{Low: 200, High: 250}, model.Range{Low: 30, High: 40})

	tree := Build([]*model.EstimateNode{parent, c1, c2})
	Aggregate(tree)

	assert.Equal(t, model.Range{Low: 340, High: 460}, parent.Cost.Total)
	require.NotNil(t, parent.Cost.Labor)
	assert.Equal(t, model.Range{Low: 300, High: 400}, *parent.Cost.Labor)
	require.NotNil(t, parent.Cost.NonLabor)
	assert.Equal(t, model.Range{Low: 40, High: 60}, *parent.Cost.NonLabor)

	// The rolled-up node still satisfies the total = labor + non-labor
	// invariant.
	require.NoError(t, parent.Validate())
}

func TestAggregateCostPartialSubSplit(t *testing.T) {
	t.Parallel()

	parent := aggregateParent(t, "parent", model.KindCost)

	labor := model.Range{Low: 100, High: 150}
	withSplit, err := model.NewCostNode("application_migration", "App migration", model.CostDetails{
		Total:      labor,
		Labor:      &labor,
		Confidence: 0.5,
	})
	require.NoError(t, err)
	withSplit.ID = "c1"
	withSplit.ParentID = "parent"
	withSplit.Level = 2

	withoutSplit, err := model.NewCostNode("application_migration", "App migration", model.CostDetails{
		Total:      model.Range{Low: 50, High: 60},
		Confidence: 0.5,
	})
	require.NoError(t, err)
	withoutSplit.ID = "c2"
	withoutSplit.ParentID = "parent"
	withoutSplit.Level = 2
	withoutSplit.DisplayOrder = 1

	tree := Build([]*model.EstimateNode{parent, withSplit, withoutSplit})
	Aggregate(tree)

	assert.Equal(t, model.Range{Low: 150, High: 210}, parent.Cost.Total)
	assert.Nil(t, parent.Cost.Labor, "partial labor coverage must not produce a misleading sub-split")
}
