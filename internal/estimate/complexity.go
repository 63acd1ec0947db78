package estimate

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
)

// Factors is the complexity-adjustment bundle: six independent multipliers
// applied on top of benchmark effort. 1.0 means neutral.
type Factors struct {
	TechnologyAge         float64 `json:"technology_age" yaml:"technology_age" mapstructure:"technology_age"`
	IntegrationDensity    float64 `json:"integration_density" yaml:"integration_density" mapstructure:"integration_density"`
	DocumentationQuality  float64 `json:"documentation_quality" yaml:"documentation_quality" mapstructure:"documentation_quality"`
	TeamExperience        float64 `json:"team_experience" yaml:"team_experience" mapstructure:"team_experience"`
	TimelinePressure      float64 `json:"timeline_pressure" yaml:"timeline_pressure" mapstructure:"timeline_pressure"`
	RegulatoryConstraints float64 `json:"regulatory_constraints" yaml:"regulatory_constraints" mapstructure:"regulatory_constraints"`
}

// DefaultFactors returns a neutral bundle.
func DefaultFactors() Factors {
	return Factors{
		TechnologyAge:         1.0,
		IntegrationDensity:    1.0,
		DocumentationQuality:  1.0,
		TeamExperience:        1.0,
		TimelinePressure:      1.0,
		RegulatoryConstraints: 1.0,
	}
}

type namedFactor struct {
	name  string
	value float64
}

func (f Factors) list() []namedFactor {
	return []namedFactor{
		{"technology_age", f.TechnologyAge},
		{"integration_density", f.IntegrationDensity},
		{"documentation_quality", f.DocumentationQuality},
		{"team_experience", f.TeamExperience},
		{"timeline_pressure", f.TimelinePressure},
		{"regulatory_constraints", f.RegulatoryConstraints},
	}
}

// Validate rejects non-positive multipliers.
func (f Factors) Validate() error {
	for _, nf := range f.list() {
		if nf.value <= 0 || math.IsNaN(nf.value) {
			return eris.Errorf("estimate: complexity factor %s must be positive, got %g", nf.name, nf.value)
		}
	}
	return nil
}

// Multiplier combines the six factors via geometric mean, so one extreme
// factor cannot dominate the way it would in a product or arithmetic mean.
func (f Factors) Multiplier() float64 {
	product := 1.0
	for _, nf := range f.list() {
		product *= nf.value
	}
	return math.Pow(product, 1.0/6.0)
}

// nonDefault returns human-readable notes for every factor that deviates
// from neutral, for the assumptions trail.
func (f Factors) nonDefault() []string {
	var notes []string
	for _, nf := range f.list() {
		if math.Abs(nf.value-1.0) > 1e-9 {
			notes = append(notes, fmt.Sprintf("complexity factor %s set to %.2f", nf.name, nf.value))
		}
	}
	return notes
}
