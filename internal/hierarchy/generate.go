package hierarchy

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/diligence-engine/internal/model"
)

// TemplateTask is one entry of a decomposition template: a task key, a
// display name, and the low/high fraction of parent effort it receives.
type TemplateTask struct {
	Key      string  `yaml:"key"`
	Name     string  `yaml:"name"`
	FracLow  float64 `yaml:"frac_low"`
	FracHigh float64 `yaml:"frac_high"`
}

func (t TemplateTask) fracMid() float64 { return (t.FracLow + t.FracHigh) / 2 }

// genericTemplate applies when no workstream-specific template exists.
var genericTemplate = []TemplateTask{
	{Key: "planning", Name: "Planning & Design", FracLow: 0.15, FracHigh: 0.20},
	{Key: "execution", Name: "Execution", FracLow: 0.60, FracHigh: 0.65},
	{Key: "validation", Name: "Validation & Cutover", FracLow: 0.15, FracHigh: 0.20},
}

// workstreamTemplates holds per-workstream task breakdowns.
var workstreamTemplates = map[string][]TemplateTask{
	"application_migration": {
		{Key: "discovery", Name: "Application Discovery & Assessment", FracLow: 0.10, FracHigh: 0.14},
		{Key: "remediation", Name: "Remediation & Compatibility", FracLow: 0.18, FracHigh: 0.22},
		{Key: "migration", Name: "Migration Execution", FracLow: 0.40, FracHigh: 0.46},
		{Key: "testing", Name: "Testing & Validation", FracLow: 0.13, FracHigh: 0.17},
		{Key: "cutover", Name: "Cutover & Hypercare", FracLow: 0.08, FracHigh: 0.12},
	},
	"data_migration": {
		{Key: "profiling", Name: "Data Profiling & Mapping", FracLow: 0.16, FracHigh: 0.20},
		{Key: "pipeline", Name: "Pipeline Build", FracLow: 0.36, FracHigh: 0.42},
		{Key: "reconciliation", Name: "Reconciliation & Quality", FracLow: 0.26, FracHigh: 0.30},
		{Key: "cutover", Name: "Cutover", FracLow: 0.13, FracHigh: 0.17},
	},
	"identity_separation": {
		{Key: "design", Name: "Directory & Access Design", FracLow: 0.15, FracHigh: 0.19},
		{Key: "provisioning", Name: "Account Provisioning", FracLow: 0.40, FracHigh: 0.44},
		{Key: "applications", Name: "Application Rebinding", FracLow: 0.24, FracHigh: 0.28},
		{Key: "decommission", Name: "Legacy Decommission", FracLow: 0.13, FracHigh: 0.17},
	},
	"erp_consolidation": {
		{Key: "blueprint", Name: "Process Blueprint", FracLow: 0.15, FracHigh: 0.19},
		{Key: "configuration", Name: "Configuration & Build", FracLow: 0.30, FracHigh: 0.34},
		{Key: "data", Name: "Data Conversion", FracLow: 0.15, FracHigh: 0.19},
		{Key: "integration", Name: "Integration & Interfaces", FracLow: 0.17, FracHigh: 0.21},
		{Key: "deployment", Name: "Testing & Deployment", FracLow: 0.13, FracHigh: 0.17},
	},
}

// TemplateFor returns the decomposition template for a workstream, falling
// back to the generic planning/execution/validation split.
func TemplateFor(workstream string) []TemplateTask {
	if tmpl, ok := workstreamTemplates[workstream]; ok {
		return tmpl
	}
	return genericTemplate
}

// GenerateChildren decomposes a leaf node into one child per template task.
// The parent is mutated in place: flipped to aggregate form, its explicit
// values handed down to the children, its rollups populated immediately so
// it is never observed aggregate-but-stale. Pass a nil template to use the
// workstream's registered one.
func GenerateChildren(parent *model.EstimateNode, tmpl []TemplateTask) ([]*model.EstimateNode, error) {
	if parent == nil {
		return nil, eris.New("hierarchy: generate requires a node")
	}
	if parent.IsAggregate || len(parent.ChildrenIDs) > 0 {
		return nil, eris.Errorf("hierarchy: node %s already has children", parent.ID)
	}
	if tmpl == nil {
		tmpl = TemplateFor(parent.Workstream)
	}
	if len(tmpl) == 0 {
		return nil, eris.New("hierarchy: empty template")
	}

	children := make([]*model.EstimateNode, 0, len(tmpl))
	now := time.Now().UTC()
	for i, task := range tmpl {
		child := &model.EstimateNode{
			ID:           uuid.New().String(),
			Kind:         parent.Kind,
			Workstream:   parent.Workstream,
			DisplayName:  task.Name,
			ParentID:     parent.ID,
			Level:        parent.Level + 1,
			Path:         parent.Path + "." + task.Key,
			DisplayOrder: i,
			Version:      1,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		switch parent.Kind {
		case model.KindResource:
			child.Resource = scaleResource(parent.Resource, task)
		case model.KindCost:
			child.Cost = scaleCost(parent.Cost, task)
		default:
			return nil, eris.Errorf("hierarchy: unknown node kind %q", parent.Kind)
		}

		if err := child.Validate(); err != nil {
			return nil, eris.Wrapf(err, "hierarchy: child %s", task.Key)
		}
		children = append(children, child)
	}

	// Flip the parent to aggregate form; its explicit values now live on
	// the children and its totals come from the rollup below.
	parent.IsAggregate = true
	parent.ChildrenIDs = make([]string, len(children))
	for i, c := range children {
		parent.ChildrenIDs[i] = c.ID
	}
	if parent.Resource != nil {
		parent.Resource.Roles = nil
	}
	if parent.Cost != nil {
		parent.Cost.Components = nil
	}
	parent.Touch()

	flat := append([]*model.EstimateNode{parent}, children...)
	Aggregate(Build(flat))

	zap.L().Info("hierarchy: node decomposed",
		zap.String("id", parent.ID),
		zap.String("workstream", parent.Workstream),
		zap.Int("children", len(children)),
	)
	return children, nil
}

// scaleResource scales role duration by the fraction midpoint and keeps FTE,
// so child effort equals parent effort times the fraction and a template
// whose midpoints sum to 1 conserves total effort.
func scaleResource(d *model.ResourceDetails, task TemplateTask) *model.ResourceDetails {
	if d == nil {
		return nil
	}
	mid := task.fracMid()

	roles := make([]model.RoleRequirement, len(d.Roles))
	for i, r := range d.Roles {
		scaled := r
		scaled.DurationMonths = r.DurationMonths * mid
		scaled.Skills = append([]string{}, r.Skills...)
		if r.PhaseAllocation != nil {
			scaled.PhaseAllocation = make(map[string]float64, len(r.PhaseAllocation))
			for k, v := range r.PhaseAllocation {
				scaled.PhaseAllocation[k] = v
			}
		}
		roles[i] = scaled
	}

	mix := make(map[model.Sourcing]float64, len(d.SourcingMix))
	for k, v := range d.SourcingMix {
		mix[k] = v
	}
	if len(mix) == 0 {
		mix = nil
	}

	return &model.ResourceDetails{
		Duration:    model.Range{Low: d.Duration.Low * task.FracLow, High: d.Duration.High * task.FracHigh},
		Roles:       roles,
		Skills:      append([]string{}, d.Skills...),
		SourcingMix: mix,
		Assumptions: []string{fmt.Sprintf("decomposed from parent at %.0f%%-%.0f%% of effort", task.FracLow*100, task.FracHigh*100)},
		Confidence:  d.Confidence,
	}
}

func scaleCost(d *model.CostDetails, task TemplateTask) *model.CostDetails {
	if d == nil {
		return nil
	}
	mid := task.fracMid()

	components := make([]model.CostComponent, len(d.Components))
	for i, c := range d.Components {
		scaled := c
		scaled.Amount = c.Amount.Scale(mid)
		scaled.Quantity = c.Quantity * mid
		components[i] = scaled
	}

	out := &model.CostDetails{
		Total:       d.Total.Scale(mid),
		Components:  components,
		Assumptions: []string{fmt.Sprintf("decomposed from parent at %.0f%%-%.0f%% of cost", task.FracLow*100, task.FracHigh*100)},
		Confidence:  d.Confidence,

		DerivedFromResource: d.DerivedFromResource,
		SourceResourceID:    d.SourceResourceID,
		ConsistencyStatus:   d.ConsistencyStatus,
	}
	if d.Labor != nil {
		labor := d.Labor.Scale(mid)
		out.Labor = &labor
	}
	if d.NonLabor != nil {
		nonLabor := d.NonLabor.Scale(mid)
		out.NonLabor = &nonLabor
	}
	if d.BlendedRate != nil {
		rate := *d.BlendedRate
		out.BlendedRate = &rate
	}
	return out
}
