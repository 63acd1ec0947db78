package hierarchy

import (
	"sort"

	"github.com/sells-group/diligence-engine/internal/model"
)

// Aggregate recomputes rollups for every aggregate node in the tree,
// bottom-up. Leaf nodes are untouched: their totals derive from their own
// roles or components. Running it again on an already-aggregated tree
// produces identical values.
func Aggregate(t *Tree) {
	for _, root := range t.Roots {
		aggregateNode(root)
	}
}

func aggregateNode(n *Node) {
	for _, c := range n.Children {
		aggregateNode(c)
	}
	if !n.IsAggregate || len(n.Children) == 0 {
		return
	}

	switch n.Kind {
	case model.KindResource:
		if n.Resource != nil {
			rollupResource(n)
		}
	case model.KindCost:
		if n.Cost != nil {
			rollupCost(n)
		}
	}
	n.Touch()
}

func rollupResource(n *Node) {
	var effort float64
	var duration model.Range
	skillSet := map[string]bool{}
	phases := map[string]float64{}
	var unphasedPeak float64

	for _, c := range n.Children {
		effort += c.TotalEffortPM()

		if c.Resource != nil {
			if c.Resource.Duration.Low > duration.Low {
				duration.Low = c.Resource.Duration.Low
			}
			if c.Resource.Duration.High > duration.High {
				duration.High = c.Resource.Duration.High
			}
			for _, s := range c.Resource.Skills {
				skillSet[s] = true
			}
		}

		// Children with phase allocations stack within each phase; a
		// child without any is assumed to overlap every phase.
		childPhases := c.PhaseHeadcounts()
		if len(childPhases) == 0 {
			unphasedPeak += c.PeakHeadcount()
			continue
		}
		for phase, hc := range childPhases {
			phases[phase] += hc
		}
	}

	var peak float64
	if len(phases) == 0 {
		peak = unphasedPeak
		phases = nil
	} else {
		for phase := range phases {
			phases[phase] += unphasedPeak
		}
		for _, hc := range phases {
			if hc > peak {
				peak = hc
			}
		}
	}

	skills := make([]string, 0, len(skillSet))
	for s := range skillSet {
		skills = append(skills, s)
	}
	sort.Strings(skills)

	n.Resource.AggEffortPM = effort
	n.Resource.AggPhaseHeadcounts = phases
	n.Resource.AggPeakHeadcount = peak
	n.Resource.Duration = duration
	n.Resource.Skills = skills
}

func rollupCost(n *Node) {
	var total model.Range
	var labor, nonLabor model.Range
	haveLabor, haveNonLabor := true, true

	for _, c := range n.Children {
		if c.Cost == nil {
			continue
		}
		total = total.Add(c.Cost.Total)
		if c.Cost.Labor != nil {
			labor = labor.Add(*c.Cost.Labor)
		} else {
			haveLabor = false
		}
		if c.Cost.NonLabor != nil {
			nonLabor = nonLabor.Add(*c.Cost.NonLabor)
		} else {
			haveNonLabor = false
		}
	}

	n.Cost.Total = total
	// A sub-split rolls up only when every child reports it; a partial sum
	// would understate the figure.
	if haveLabor {
		n.Cost.Labor = &labor
	} else {
		n.Cost.Labor = nil
	}
	if haveNonLabor {
		n.Cost.NonLabor = &nonLabor
	} else {
		n.Cost.NonLabor = nil
	}
}
