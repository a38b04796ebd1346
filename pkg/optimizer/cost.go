package optimizer

import (
	"time"

	"github.com/cuemby/orbiter/pkg/config"
	"github.com/cuemby/orbiter/pkg/types"
)

// costEfficiencyThreshold is the efficiency (usage/limit) cut point below
// which a container is flagged (spec.md §4.5, pass 3 default 0.8; not part of the
// closed configuration schema in §6, so kept a constant here rather than
// wired to config.OptimizerConfig).
const costEfficiencyThreshold = 0.8

// costEfficiencyFloor below which a container is downsized outright rather
// than merely resized (spec.md §4.5, pass 3, leaves the stop/downsize
// split unspecified; see DESIGN.md Open Question decisions).
const costEfficiencyFloor = 0.3

// costOptimization flags every container whose efficiency (usage/limit) is
// below costEfficiencyThreshold; containers are not sorted or ranked by
// cost. If total cost exceeds hourlyBudget it stops the single
// lowest-efficiency container in hard enforcement mode, or returns a
// warning in soft mode; it does not check whether the remaining cost then
// fits the budget (spec.md §4.5, pass 3; §8 scenario 5).
func costOptimization(snapshot Snapshot, mode config.EnforcementMode, now time.Time) (actions []types.Action, warnings []string) {
	if len(snapshot.Containers) == 0 {
		return nil, nil
	}

	type scored struct {
		c          ContainerState
		efficiency float64
		cost       float64
	}
	var all []scored
	var totalCost float64
	for _, c := range snapshot.Containers {
		cost := c.hourlyCost(snapshot.Cost)
		eff := c.efficiency()
		all = append(all, scored{c: c, efficiency: eff, cost: cost})
		totalCost += cost
	}

	seq := int64(0)
	for _, s := range all {
		if s.efficiency >= costEfficiencyThreshold {
			continue
		}
		seq++
		kind := types.ActionResize
		reason := "below cost efficiency threshold, downsizing"
		if s.efficiency < costEfficiencyFloor {
			kind = types.ActionStop
			reason = "cost efficiency near zero"
		}
		actions = append(actions, types.Action{
			Kind:        kind,
			Target:      s.c.ContainerID,
			NewLimits:   scaledRecord(s.c.Limits, s.c.Usage.CPUCores*1.1),
			Reason:      reason,
			Priority:    types.ActionPriorityLow,
			Confidence:  0.6,
			GeneratedAt: now,
			Seq:         seq,
		})
	}

	if snapshot.HourlyBudget > 0 && totalCost > snapshot.HourlyBudget {
		worst := all[0]
		for _, s := range all[1:] {
			if s.efficiency < worst.efficiency {
				worst = s
			}
		}
		if mode == config.ModeHard {
			seq++
			actions = append(actions, types.Action{
				Kind:        types.ActionStop,
				Target:      worst.c.ContainerID,
				Reason:      "hourly cost budget exceeded",
				Priority:    types.ActionPriorityHigh,
				Confidence:  0.9,
				GeneratedAt: now,
				Seq:         seq,
			})
		} else {
			warnings = append(warnings, "predicted cost exceeds hourly budget")
		}
	}

	return actions, warnings
}
