// Package estimate converts inventory facts into resource estimate nodes
// using the benchmark library.
package estimate

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/diligence-engine/internal/benchmark"
	"github.com/sells-group/diligence-engine/internal/model"
)

// InventoryItem is one fact about the target environment: an application, a
// server, a dataset, a site. Complexity may be tagged explicitly; otherwise
// it is inferred from the user count, defaulting to moderate.
type InventoryItem struct {
	Name       string         `json:"name" yaml:"name"`
	Complexity benchmark.Tier `json:"complexity,omitempty" yaml:"complexity,omitempty"`
	UserCount  int            `json:"user_count,omitempty" yaml:"user_count,omitempty"`
	Technology string         `json:"technology,omitempty" yaml:"technology,omitempty"`
}

// User-count thresholds for tier inference when no explicit tag is present.
const (
	simpleUserMax   = 100
	moderateUserMax = 1000
	complexUserMax  = 5000
)

// Duration heuristic bounds (months).
const (
	minDurationMonths = 4.0
	maxDurationMonths = 12.0
	effortPerMonth    = 3.0
)

// minRoleFTE drops allocations too small to staff.
const minRoleFTE = 0.1

// specializedPlatforms trigger the vendor-heavier sourcing mix when they
// appear among inventory technology tags.
var specializedPlatforms = []string{
	"sap", "oracle ebs", "oracle e-business", "netsuite", "dynamics",
	"workday", "peoplesoft", "jd edwards", "mainframe", "as/400",
}

// genericSkillCap limits how many benchmark common skills flow to
// non-development roles.
const genericSkillCap = 3

// Engine derives resource estimate nodes from inventory quantities.
type Engine struct {
	lib *benchmark.Library
}

// NewEngine creates an Engine over the given benchmark library.
func NewEngine(lib *benchmark.Library) *Engine {
	return &Engine{lib: lib}
}

// CalculateResource produces a validated resource estimate node for one
// workstream. An unknown workstream errors immediately; an empty inventory
// yields an explicit zero-effort node with confidence 0, not a failure.
func (e *Engine) CalculateResource(workstream string, items []InventoryItem, factors Factors) (*model.EstimateNode, error) {
	bench, err := e.lib.Benchmark(workstream)
	if err != nil {
		return nil, err
	}
	if err := factors.Validate(); err != nil {
		return nil, err
	}

	displayName := displayNameFor(workstream)

	if len(items) == 0 {
		node, err := model.NewResourceNode(workstream, displayName, model.ResourceDetails{
			Duration:   model.Range{},
			Confidence: 0,
			Assumptions: []string{
				"no inventory items provided; effort cannot be estimated from benchmarks",
				fmt.Sprintf("benchmark source: %s", bench.Source),
			},
		})
		if err != nil {
			return nil, err
		}
		zap.L().Warn("estimate: empty inventory, emitting zero-effort node",
			zap.String("workstream", workstream),
		)
		return node, nil
	}

	// Tier tally and base effort.
	tierCounts := map[benchmark.Tier]int{}
	for _, item := range items {
		tierCounts[classifyItem(item)]++
	}
	var baseEffort float64
	for tier, count := range tierCounts {
		baseEffort += float64(count) * bench.EffortPerUnit[tier]
	}

	multiplier := factors.Multiplier()
	totalEffort := baseEffort * multiplier

	// Duration heuristic, then role allocation from the benchmark mix.
	duration := clamp(totalEffort/effortPerMonth, minDurationMonths, maxDurationMonths)

	skills := deriveSkills(bench, items)
	roles := allocateRoles(bench, totalEffort, duration, skills, items)

	sourcingMix, specialized := deriveSourcingMix(items)

	assumptions := []string{
		fmt.Sprintf("benchmark source: %s (confidence %s)", bench.Source, bench.Confidence),
		fmt.Sprintf("%d inventory items classified across complexity tiers", len(items)),
		fmt.Sprintf("duration estimated as effort/%.0f clamped to [%.0f, %.0f] months", effortPerMonth, minDurationMonths, maxDurationMonths),
	}
	assumptions = append(assumptions, factors.nonDefault()...)
	if specialized != "" {
		assumptions = append(assumptions,
			fmt.Sprintf("specialized platform %q detected; sourcing shifted toward contractors and vendors", specialized))
	}

	confidence := deriveConfidence(len(items), bench.Confidence, skills)

	node, err := model.NewResourceNode(workstream, displayName, model.ResourceDetails{
		Duration:    model.Range{Low: duration, High: duration},
		Roles:       roles,
		Skills:      skills,
		SourcingMix: sourcingMix,
		Assumptions: assumptions,
		Confidence:  confidence,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "estimate: build node for %s", workstream)
	}

	zap.L().Info("estimate: resource node computed",
		zap.String("workstream", workstream),
		zap.Int("items", len(items)),
		zap.Float64("base_effort_pm", baseEffort),
		zap.Float64("complexity_multiplier", multiplier),
		zap.Float64("total_effort_pm", node.TotalEffortPM()),
		zap.Float64("duration_months", duration),
		zap.Int("roles", len(roles)),
		zap.Float64("confidence", confidence),
	)
	return node, nil
}

// classifyItem picks a complexity tier: explicit tag wins, then user-count
// thresholds, then moderate.
func classifyItem(item InventoryItem) benchmark.Tier {
	switch item.Complexity {
	case benchmark.TierSimple, benchmark.TierModerate, benchmark.TierComplex, benchmark.TierVeryComplex:
		return item.Complexity
	}
	if item.UserCount > 0 {
		switch {
		case item.UserCount <= simpleUserMax:
			return benchmark.TierSimple
		case item.UserCount <= moderateUserMax:
			return benchmark.TierModerate
		case item.UserCount <= complexUserMax:
			return benchmark.TierComplex
		default:
			return benchmark.TierVeryComplex
		}
	}
	return benchmark.TierModerate
}

func allocateRoles(bench benchmark.Benchmark, totalEffort, duration float64, skills []string, items []InventoryItem) []model.RoleRequirement {
	techSkills := technologyTags(items)

	names := make([]string, 0, len(bench.RoleMix))
	for role := range bench.RoleMix {
		names = append(names, role)
	}
	sort.Strings(names)

	var roles []model.RoleRequirement
	for _, role := range names {
		share := totalEffort * bench.RoleMix[role]
		fte := math.Round(share/duration*100) / 100
		if fte < minRoleFTE {
			continue
		}
		roles = append(roles, model.RoleRequirement{
			Role:           role,
			FTE:            fte,
			DurationMonths: duration,
			Seniority:      seniorityFor(role),
			Sourcing:       model.SourcingMixed,
			Skills:         skillsFor(role, skills, techSkills),
		})
	}
	return roles
}

// seniorityFor assigns a default tier from the role name.
func seniorityFor(role string) model.Seniority {
	lower := strings.ToLower(role)
	for _, marker := range []string{"architect", "manager", "lead", "consultant"} {
		if strings.Contains(lower, marker) {
			return model.SenioritySenior
		}
	}
	return model.SeniorityMid
}

// skillsFor gives development roles the full technology skill set and other
// roles the top generic skills.
func skillsFor(role string, all, tech []string) []string {
	lower := strings.ToLower(role)
	if strings.Contains(lower, "engineer") || strings.Contains(lower, "developer") {
		generic := diff(all, tech)
		if len(generic) > genericSkillCap {
			generic = generic[:genericSkillCap]
		}
		return append(append([]string{}, tech...), generic...)
	}
	generic := diff(all, tech)
	if len(generic) > genericSkillCap {
		generic = generic[:genericSkillCap]
	}
	return generic
}

func deriveSkills(bench benchmark.Benchmark, items []InventoryItem) []string {
	seen := map[string]bool{}
	var skills []string
	for _, s := range bench.CommonSkills {
		if !seen[s] {
			seen[s] = true
			skills = append(skills, s)
		}
	}
	for _, t := range technologyTags(items) {
		if !seen[t] {
			seen[t] = true
			skills = append(skills, t)
		}
	}
	return skills
}

func technologyTags(items []InventoryItem) []string {
	seen := map[string]bool{}
	var tags []string
	for _, item := range items {
		if item.Technology != "" && !seen[item.Technology] {
			seen[item.Technology] = true
			tags = append(tags, item.Technology)
		}
	}
	sort.Strings(tags)
	return tags
}

// deriveSourcingMix returns the default 70/25/5 internal/contractor/vendor
// split, or 50/40/10 when a specialized platform appears in the inventory.
// The second return names the platform that triggered the shift, if any.
func deriveSourcingMix(items []InventoryItem) (map[model.Sourcing]float64, string) {
	for _, item := range items {
		tech := strings.ToLower(item.Technology)
		if tech == "" {
			continue
		}
		for _, platform := range specializedPlatforms {
			if strings.Contains(tech, platform) {
				return map[model.Sourcing]float64{
					model.SourcingInternal:   0.5,
					model.SourcingContractor: 0.4,
					model.SourcingVendor:     0.1,
				}, item.Technology
			}
		}
	}
	return map[model.Sourcing]float64{
		model.SourcingInternal:   0.7,
		model.SourcingContractor: 0.25,
		model.SourcingVendor:     0.05,
	}, ""
}

func deriveConfidence(itemCount int, benchConfidence benchmark.ConfidenceTier, skills []string) float64 {
	confidence := 0.5
	if itemCount >= 10 {
		confidence += 0.1
	}
	switch benchConfidence {
	case benchmark.ConfidenceMedium:
		confidence += 0.1
	case benchmark.ConfidenceHigh:
		confidence += 0.2
	}
	if itemCount < 3 {
		confidence -= 0.2
	}
	if len(skills) == 0 {
		confidence -= 0.1
	}
	return clamp(confidence, 0, 1)
}

func displayNameFor(workstream string) string {
	words := strings.Split(workstream, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func diff(all, exclude []string) []string {
	ex := make(map[string]bool, len(exclude))
	for _, s := range exclude {
		ex[s] = true
	}
	var out []string
	for _, s := range all {
		if !ex[s] {
			out = append(out, s)
		}
	}
	return out
}
