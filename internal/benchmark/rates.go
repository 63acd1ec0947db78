package benchmark

import (
	"github.com/sells-group/diligence-engine/internal/model"
)

// baselineGeoMultiplier applies when a geography has no entry in the table.
// Rates are maintained against a US baseline, so the documented fallback is
// no adjustment at all rather than a silent zero.
const baselineGeoMultiplier = 1.0

// RateTable holds blended labor rates in USD per person-month, keyed by
// seniority and sourcing, with a per-geography multiplier applied on top.
type RateTable struct {
	// Base maps seniority -> sourcing -> USD per person-month.
	Base map[model.Seniority]map[model.Sourcing]float64 `yaml:"base"`
	// GeoMultipliers maps geography tag -> multiplier on the base rate.
	GeoMultipliers map[string]float64 `yaml:"geo_multipliers"`
}

// Rate returns the rate for a seniority/sourcing pair in a geography.
func (t RateTable) Rate(seniority model.Seniority, sourcing model.Sourcing, geography string) (float64, error) {
	bySourcing, ok := t.Base[seniority]
	if !ok {
		return 0, &NotFoundError{Kind: "seniority", Key: string(seniority)}
	}
	base, ok := bySourcing[sourcing]
	if !ok {
		return 0, &NotFoundError{Kind: "sourcing", Key: string(sourcing)}
	}

	mul := baselineGeoMultiplier
	if m, ok := t.GeoMultipliers[geography]; ok {
		mul = m
	}
	return base * mul, nil
}

// DefaultRates returns the built-in rate table.
func DefaultRates() RateTable {
	return RateTable{
		Base: map[model.Seniority]map[model.Sourcing]float64{
			model.SeniorityJunior: {
				model.SourcingInternal:   9_000,
				model.SourcingContractor: 13_000,
				model.SourcingVendor:     11_000,
			},
			model.SeniorityMid: {
				model.SourcingInternal:   13_500,
				model.SourcingContractor: 19_000,
				model.SourcingVendor:     16_000,
			},
			model.SenioritySenior: {
				model.SourcingInternal:   18_000,
				model.SourcingContractor: 26_000,
				model.SourcingVendor:     22_000,
			},
			model.SeniorityPrincipal: {
				model.SourcingInternal:   24_000,
				model.SourcingContractor: 34_000,
				model.SourcingVendor:     29_000,
			},
		},
		GeoMultipliers: map[string]float64{
			"us":           1.0,
			"western_eu":   0.95,
			"eastern_eu":   0.55,
			"india":        0.35,
			"latam":        0.45,
			"apac":         0.75,
		},
	}
}
