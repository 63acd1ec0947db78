// Package consistency reconciles independently authored cost nodes against
// their resource-derived expectation.
package consistency

import (
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/diligence-engine/internal/cost"
	"github.com/sells-group/diligence-engine/internal/model"
)

// Classification thresholds, in percent.
const (
	consistentMaxPct  = 10.0
	needsReviewMaxPct = 25.0
)

// Result is the outcome of a resource/cost comparison. Notes carry the full
// audit trail and are attached verbatim.
type Result struct {
	Status      model.ConsistencyStatus `json:"status"`
	VariancePct float64                 `json:"variance_pct"`
	Notes       []string                `json:"notes"`
}

// Validator compares cost nodes against the labor cost the deriver would
// produce from the linked resource node.
type Validator struct {
	deriver *cost.Deriver
}

// NewValidator creates a Validator using the given deriver for expectations.
func NewValidator(d *cost.Deriver) *Validator {
	return &Validator{deriver: d}
}

// Validate classifies how well costNode's labor figures match the
// expectation derived from res. A cost node that was itself derived from
// this resource node short-circuits to consistent; a cost node without a
// labor sub-split cannot be compared and reports not_validated rather than a
// false pass.
func (v *Validator) Validate(res, costNode *model.EstimateNode, geography string) (Result, error) {
	if res == nil || res.Kind != model.KindResource || res.Resource == nil {
		return Result{}, eris.New("consistency: first argument must be a resource node")
	}
	if costNode == nil || costNode.Kind != model.KindCost || costNode.Cost == nil {
		return Result{}, eris.New("consistency: second argument must be a cost node")
	}

	if costNode.Cost.DerivedFromResource && costNode.Cost.SourceResourceID == res.ID {
		return Result{
			Status:      model.StatusConsistent,
			VariancePct: 0,
			Notes:       []string{fmt.Sprintf("cost node %s was derived from resource node %s; no independent comparison needed", costNode.ID, res.ID)},
		}, nil
	}

	if costNode.Cost.Labor == nil {
		return Result{
			Status: model.StatusNotValidated,
			Notes:  []string{"cost node has no labor/non-labor sub-split; labor comparison is not possible"},
		}, nil
	}

	expected, err := v.deriver.DeriveCost(res, geography, nil)
	if err != nil {
		return Result{}, eris.Wrap(err, "consistency: derive expected labor cost")
	}
	expLabor := *expected.Cost.Labor
	actLabor := *costNode.Cost.Labor

	variance := 100 * maxRelativeDeviation(expLabor, actLabor)

	var status model.ConsistencyStatus
	switch {
	case variance < consistentMaxPct:
		status = model.StatusConsistent
	case variance <= needsReviewMaxPct:
		status = model.StatusNeedsReview
	default:
		status = model.StatusConflicting
	}

	notes := []string{
		fmt.Sprintf("expected labor cost [$%.0f, $%.0f] derived from resource node %s", expLabor.Low, expLabor.High, res.ID),
		fmt.Sprintf("actual labor cost [$%.0f, $%.0f] on cost node %s", actLabor.Low, actLabor.High, costNode.ID),
		fmt.Sprintf("maximum relative variance %.1f%% classified as %s", variance, status),
	}

	return Result{Status: status, VariancePct: variance, Notes: notes}, nil
}

// maxRelativeDeviation returns the larger of the low-bound and high-bound
// relative deviations. A zero expected bound with a non-zero actual counts
// as full (100%) deviation.
func maxRelativeDeviation(expected, actual model.Range) float64 {
	dev := func(exp, act float64) float64 {
		if exp == 0 {
			if act == 0 {
				return 0
			}
			return 1
		}
		d := (act - exp) / exp
		if d < 0 {
			d = -d
		}
		return d
	}

	low := dev(expected.Low, actual.Low)
	high := dev(expected.High, actual.High)
	if low > high {
		return low
	}
	return high
}
