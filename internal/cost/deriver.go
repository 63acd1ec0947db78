// Package cost derives dollar estimates from resource estimates using
// blended labor rates.
package cost

import (
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/diligence-engine/internal/benchmark"
	"github.com/sells-group/diligence-engine/internal/model"
)

// mixedRateSpread is the ± fraction applied around a blended rate when a
// role's sourcing is not pinned to a single type.
const mixedRateSpread = 0.10

// defaultSourcingMix is used for blending when the resource node carries no
// explicit mix.
var defaultSourcingMix = map[model.Sourcing]float64{
	model.SourcingInternal:   0.7,
	model.SourcingContractor: 0.25,
	model.SourcingVendor:     0.05,
}

// Deriver converts resource estimate nodes into cost estimate nodes.
type Deriver struct {
	lib *benchmark.Library
}

// NewDeriver creates a Deriver over the given benchmark library.
func NewDeriver(lib *benchmark.Library) *Deriver {
	return &Deriver{lib: lib}
}

// DeriveCost computes the labor cost of every role on the resource node,
// adds the optional non-labor range, and returns a validated cost node
// marked as derived from the source resource node.
func (d *Deriver) DeriveCost(res *model.EstimateNode, geography string, nonLabor *model.Range) (*model.EstimateNode, error) {
	if res == nil || res.Kind != model.KindResource || res.Resource == nil {
		return nil, eris.New("cost: derive requires a resource node")
	}

	mix := res.Resource.SourcingMix
	if len(mix) == 0 {
		mix = defaultSourcingMix
	}

	var labor model.Range
	var totalEffort float64
	components := make([]model.CostComponent, 0, len(res.Resource.Roles))

	for _, role := range res.Resource.Roles {
		effort := role.EffortPM()
		if effort == 0 {
			continue
		}
		amount, err := d.roleCost(role, effort, mix, geography)
		if err != nil {
			return nil, eris.Wrapf(err, "cost: role %s", role.Role)
		}
		components = append(components, model.CostComponent{
			Label:    role.Role,
			Amount:   amount,
			Quantity: effort,
			Unit:     "person-month",
		})
		labor = labor.Add(amount)
		totalEffort += effort
	}

	total := labor
	if nonLabor != nil {
		total = labor.Add(*nonLabor)
	}

	var blended *model.Range
	if totalEffort > 0 {
		blended = &model.Range{Low: labor.Low / totalEffort, High: labor.High / totalEffort}
	}

	assumptions := []string{
		fmt.Sprintf("labor rates for geography %q from rate table", geography),
		fmt.Sprintf("mixed-sourcing roles priced at blended rate with ±%.0f%% spread", mixedRateSpread*100),
	}
	if nonLabor != nil {
		assumptions = append(assumptions,
			fmt.Sprintf("non-labor costs of [$%.0f, $%.0f] supplied by caller", nonLabor.Low, nonLabor.High))
	}

	details := model.CostDetails{
		Total:               total,
		Components:          components,
		Labor:               &labor,
		NonLabor:            nonLabor,
		BlendedRate:         blended,
		Assumptions:         assumptions,
		Confidence:          res.Resource.Confidence,
		DerivedFromResource: true,
		SourceResourceID:    res.ID,
		ConsistencyStatus:   model.StatusConsistent,
	}

	node, err := model.NewCostNode(res.Workstream, res.DisplayName, details)
	if err != nil {
		return nil, eris.Wrapf(err, "cost: build node for %s", res.Workstream)
	}

	zap.L().Info("cost: labor cost derived",
		zap.String("workstream", res.Workstream),
		zap.String("source_resource_id", res.ID),
		zap.Float64("effort_pm", totalEffort),
		zap.Float64("labor_low", labor.Low),
		zap.Float64("labor_high", labor.High),
		zap.String("geography", geography),
	)
	return node, nil
}

// roleCost prices one role: a point value for an explicit sourcing type, a
// blended ±spread range for mixed sourcing.
func (d *Deriver) roleCost(role model.RoleRequirement, effort float64, mix map[model.Sourcing]float64, geography string) (model.Range, error) {
	if role.Sourcing != model.SourcingMixed && role.Sourcing != "" {
		rate, err := d.lib.Rate(role.Seniority, role.Sourcing, geography)
		if err != nil {
			return model.Range{}, err
		}
		cost := effort * rate
		return model.Range{Low: cost, High: cost}, nil
	}

	var blended float64
	for sourcing, frac := range mix {
		rate, err := d.lib.Rate(role.Seniority, sourcing, geography)
		if err != nil {
			return model.Range{}, err
		}
		blended += frac * rate
	}
	cost := effort * blended
	return model.Range{Low: cost * (1 - mixedRateSpread), High: cost * (1 + mixedRateSpread)}, nil
}
