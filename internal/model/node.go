// Package model defines the estimate node records shared by the calculation,
// aggregation, and persistence subsystems.
package model

import (
	"time"

	"github.com/google/uuid"
)

// NodeKind distinguishes the two estimate payload variants.
type NodeKind string

const (
	KindResource NodeKind = "resource"
	KindCost     NodeKind = "cost"
)

// Seniority is the experience tier used for rate lookups.
type Seniority string

const (
	SeniorityJunior    Seniority = "junior"
	SeniorityMid       Seniority = "mid"
	SenioritySenior    Seniority = "senior"
	SeniorityPrincipal Seniority = "principal"
)

// Sourcing describes where a role is staffed from.
type Sourcing string

const (
	SourcingInternal   Sourcing = "internal"
	SourcingContractor Sourcing = "contractor"
	SourcingVendor     Sourcing = "vendor"
	SourcingMixed      Sourcing = "mixed"
)

// ConsistencyStatus classifies how well an independently entered cost matches
// the resource-derived expectation.
type ConsistencyStatus string

const (
	StatusConsistent   ConsistencyStatus = "consistent"
	StatusNeedsReview  ConsistencyStatus = "needs_review"
	StatusConflicting  ConsistencyStatus = "conflicting"
	StatusNotValidated ConsistencyStatus = "not_validated"
)

// Range is a low/high pair. Used for durations (months) and amounts (USD).
type Range struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Mid returns the midpoint of the range.
func (r Range) Mid() float64 { return (r.Low + r.High) / 2 }

// Scale returns the range multiplied by f.
func (r Range) Scale(f float64) Range { return Range{Low: r.Low * f, High: r.High * f} }

// Add returns the element-wise sum of two ranges.
func (r Range) Add(o Range) Range { return Range{Low: r.Low + o.Low, High: r.High + o.High} }

// RoleRequirement describes one staffed role on a resource estimate.
type RoleRequirement struct {
	Role            string             `json:"role"`
	FTE             float64            `json:"fte"`
	DurationMonths  float64            `json:"duration_months"`
	PhaseAllocation map[string]float64 `json:"phase_allocation,omitempty"`
	Seniority       Seniority          `json:"seniority"`
	Sourcing        Sourcing           `json:"sourcing"`
	Skills          []string           `json:"skills,omitempty"`
}

// EffortPM returns the role's effort in person-months.
func (r RoleRequirement) EffortPM() float64 { return r.FTE * r.DurationMonths }

// ResourceDetails is the payload of a resource-kind node.
//
// AggEffortPM, AggPhaseHeadcounts, and AggPeakHeadcount are rollups written
// only by the hierarchy aggregator for aggregate nodes; leaf nodes derive the
// same figures from Roles at read time and never store them.
type ResourceDetails struct {
	Duration    Range                `json:"duration_months"`
	Roles       []RoleRequirement    `json:"roles,omitempty"`
	Skills      []string             `json:"skills,omitempty"`
	SourcingMix map[Sourcing]float64 `json:"sourcing_mix,omitempty"`
	Assumptions []string             `json:"assumptions,omitempty"`
	Confidence  float64              `json:"confidence"`

	AggEffortPM        float64            `json:"agg_effort_pm,omitempty"`
	AggPhaseHeadcounts map[string]float64 `json:"agg_phase_headcounts,omitempty"`
	AggPeakHeadcount   float64            `json:"agg_peak_headcount,omitempty"`
}

// CostComponent is one line item of a cost estimate.
type CostComponent struct {
	Label    string  `json:"label"`
	Amount   Range   `json:"amount"`
	Quantity float64 `json:"quantity,omitempty"`
	Unit     string  `json:"unit,omitempty"`
}

// CostDetails is the payload of a cost-kind node.
type CostDetails struct {
	Total       Range           `json:"total"`
	Components  []CostComponent `json:"components,omitempty"`
	Labor       *Range          `json:"labor,omitempty"`
	NonLabor    *Range          `json:"non_labor,omitempty"`
	BlendedRate *Range          `json:"blended_rate,omitempty"`
	Assumptions []string        `json:"assumptions,omitempty"`
	Confidence  float64         `json:"confidence"`

	DerivedFromResource bool              `json:"derived_from_resource,omitempty"`
	SourceResourceID    string            `json:"source_resource_id,omitempty"`
	ConsistencyStatus   ConsistencyStatus `json:"consistency_status,omitempty"`
}

// EstimateNode is the unified record for a resource or cost estimate at some
// level of a workstream hierarchy. Exactly one of Resource/Cost is set,
// matching Kind.
type EstimateNode struct {
	ID          string   `json:"id"`
	Kind        NodeKind `json:"kind"`
	Workstream  string   `json:"workstream"`
	DisplayName string   `json:"display_name"`

	ParentID     string   `json:"parent_id,omitempty"`
	ChildrenIDs  []string `json:"children_ids,omitempty"`
	Level        int      `json:"level"`
	Path         string   `json:"path"`
	DisplayOrder int      `json:"display_order"`
	IsAggregate  bool     `json:"is_aggregate"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Resource *ResourceDetails `json:"resource,omitempty"`
	Cost     *CostDetails     `json:"cost,omitempty"`

	// extra holds unknown fields from a persisted record so they survive a
	// decode/encode round trip.
	extra map[string]any
}

// NewResourceNode constructs and validates a leaf resource node.
func NewResourceNode(workstream, displayName string, details ResourceDetails) (*EstimateNode, error) {
	now := time.Now().UTC()
	n := &EstimateNode{
		ID:          uuid.New().String(),
		Kind:        KindResource,
		Workstream:  workstream,
		DisplayName: displayName,
		Level:       1,
		Path:        workstream,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
		Resource:    &details,
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

// NewCostNode constructs and validates a leaf cost node.
func NewCostNode(workstream, displayName string, details CostDetails) (*EstimateNode, error) {
	now := time.Now().UTC()
	n := &EstimateNode{
		ID:          uuid.New().String(),
		Kind:        KindCost,
		Workstream:  workstream,
		DisplayName: displayName,
		Level:       1,
		Path:        workstream,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
		Cost:        &details,
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

// TotalEffortPM returns the node's total effort in person-months. Leaf nodes
// derive it from their roles; aggregate nodes report the rollup written by
// the aggregator. The figure is never stored independently on a leaf.
func (n *EstimateNode) TotalEffortPM() float64 {
	if n.Resource == nil {
		return 0
	}
	if n.IsAggregate {
		return n.Resource.AggEffortPM
	}
	var total float64
	for _, r := range n.Resource.Roles {
		total += r.EffortPM()
	}
	return total
}

// PhaseHeadcounts returns headcount by phase. Roles without a phase
// allocation are assumed to overlap every phase in play; if no role declares
// phases the map is empty and PeakHeadcount falls back to the plain FTE sum.
func (n *EstimateNode) PhaseHeadcounts() map[string]float64 {
	if n.Resource == nil {
		return nil
	}
	if n.IsAggregate {
		return n.Resource.AggPhaseHeadcounts
	}
	phases := map[string]float64{}
	for _, r := range n.Resource.Roles {
		for phase, frac := range r.PhaseAllocation {
			phases[phase] += r.FTE * frac
		}
	}
	if len(phases) == 0 {
		return nil
	}
	// Unphased roles stack into every phase.
	for _, r := range n.Resource.Roles {
		if len(r.PhaseAllocation) == 0 {
			for phase := range phases {
				phases[phase] += r.FTE
			}
		}
	}
	return phases
}

// PeakHeadcount returns the maximum concurrent headcount. With phase
// allocations present this is the largest per-phase sum; without any it is
// the FTE sum (full-overlap assumption).
func (n *EstimateNode) PeakHeadcount() float64 {
	if n.Resource == nil {
		return 0
	}
	if n.IsAggregate {
		return n.Resource.AggPeakHeadcount
	}
	phases := n.PhaseHeadcounts()
	if len(phases) == 0 {
		var sum float64
		for _, r := range n.Resource.Roles {
			sum += r.FTE
		}
		return sum
	}
	var peak float64
	for _, hc := range phases {
		if hc > peak {
			peak = hc
		}
	}
	return peak
}

// Touch bumps UpdatedAt. Version increments happen only in the store's
// guarded save path.
func (n *EstimateNode) Touch() {
	n.UpdatedAt = time.Now().UTC()
}
