package model

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
)

// MixtureTolerance is the absolute tolerance for fractional-mixture sums.
const MixtureTolerance = 1e-2

// rangeTolerance covers float accumulation when checking labor + non-labor
// against the stored total.
const rangeTolerance = 1e-6

// ValidationError reports a structurally invalid node or role. It is distinct
// from lookup and concurrency errors so callers can treat it as bad input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("model: invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks every structural invariant on the node. It is called at
// construction and again before every persisted mutation, so a caller can
// never hold a valid-looking node built from bad data.
func (n *EstimateNode) Validate() error {
	if n.ID == "" {
		return invalid("id", "must not be empty")
	}
	if n.Workstream == "" {
		return invalid("workstream", "must not be empty")
	}
	if n.Level < 1 {
		return invalid("level", "must be >= 1, got %d", n.Level)
	}
	if n.Version < 0 {
		return invalid("version", "must not be negative, got %d", n.Version)
	}

	switch n.Kind {
	case KindResource:
		if n.Resource == nil {
			return invalid("resource", "resource node missing resource payload")
		}
		if n.Cost != nil {
			return invalid("cost", "resource node must not carry a cost payload")
		}
		if err := n.Resource.validate(); err != nil {
			return err
		}
	case KindCost:
		if n.Cost == nil {
			return invalid("cost", "cost node missing cost payload")
		}
		if n.Resource != nil {
			return invalid("resource", "cost node must not carry a resource payload")
		}
		if err := n.Cost.validate(); err != nil {
			return err
		}
	default:
		return invalid("kind", "unknown kind %q", n.Kind)
	}

	return nil
}

func (d *ResourceDetails) validate() error {
	if err := validRange("duration_months", d.Duration); err != nil {
		return err
	}
	if err := validConfidence("confidence", d.Confidence); err != nil {
		return err
	}
	if len(d.SourcingMix) > 0 {
		mix := make(map[string]float64, len(d.SourcingMix))
		for k, v := range d.SourcingMix {
			mix[string(k)] = v
		}
		if err := validMixture("sourcing_mix", mix); err != nil {
			return err
		}
	}
	for i, r := range d.Roles {
		if err := r.Validate(); err != nil {
			return eris.Wrapf(err, "model: role %d (%s)", i, r.Role)
		}
	}
	return nil
}

func (d *CostDetails) validate() error {
	if err := validRange("total", d.Total); err != nil {
		return err
	}
	if err := validConfidence("confidence", d.Confidence); err != nil {
		return err
	}
	if d.Labor != nil {
		if err := validRange("labor", *d.Labor); err != nil {
			return err
		}
	}
	if d.NonLabor != nil {
		if err := validRange("non_labor", *d.NonLabor); err != nil {
			return err
		}
	}
	if d.BlendedRate != nil {
		if err := validRange("blended_rate", *d.BlendedRate); err != nil {
			return err
		}
	}
	for i, c := range d.Components {
		if c.Label == "" {
			return invalid("components", "component %d missing label", i)
		}
		if err := validRange(fmt.Sprintf("components[%d].amount", i), c.Amount); err != nil {
			return err
		}
	}

	// With both sub-splits present the total must be exactly their sum.
	if d.Labor != nil && d.NonLabor != nil {
		want := d.Labor.Add(*d.NonLabor)
		if math.Abs(want.Low-d.Total.Low) > rangeTolerance || math.Abs(want.High-d.Total.High) > rangeTolerance {
			return invalid("total",
				"must equal labor + non_labor: got [%.2f, %.2f], want [%.2f, %.2f]",
				d.Total.Low, d.Total.High, want.Low, want.High)
		}
	}
	return nil
}

// Validate checks a single role requirement.
func (r RoleRequirement) Validate() error {
	if r.Role == "" {
		return invalid("role", "must not be empty")
	}
	if r.FTE < 0 {
		return invalid("fte", "must not be negative, got %g", r.FTE)
	}
	if r.DurationMonths < 0 {
		return invalid("duration_months", "must not be negative, got %g", r.DurationMonths)
	}
	if len(r.PhaseAllocation) > 0 {
		if err := validMixture("phase_allocation", r.PhaseAllocation); err != nil {
			return err
		}
	}
	return nil
}

func validRange(field string, r Range) error {
	if math.IsNaN(r.Low) || math.IsNaN(r.High) {
		return invalid(field, "must not be NaN")
	}
	if r.Low > r.High {
		return invalid(field, "low %.4f exceeds high %.4f", r.Low, r.High)
	}
	return nil
}

func validConfidence(field string, c float64) error {
	if c < 0 || c > 1 || math.IsNaN(c) {
		return invalid(field, "must be in [0,1], got %g", c)
	}
	return nil
}

func validMixture(field string, mix map[string]float64) error {
	var sum float64
	for k, v := range mix {
		if v < 0 {
			return invalid(field, "fraction %q must not be negative, got %g", k, v)
		}
		sum += v
	}
	if math.Abs(sum-1.0) > MixtureTolerance {
		return invalid(field, "fractions must sum to 1.0, got %.4f", sum)
	}
	return nil
}
