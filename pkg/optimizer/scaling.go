package optimizer

import (
	"time"

	"github.com/cuemby/orbiter/pkg/types"
)

// scaleUpFactor and scaleDownFactor are the limit multipliers applied to a
// predicted value when scaling (spec.md §4.5, pass 2).
const (
	scaleUpFactor     = 1.2
	scaleDownFactor   = 1.5
	scaleUpTrigger    = 0.9 // predicted > 90% of current limit
	scaleDownTrigger  = 0.3 // predicted < 30% of current limit
	trendReserveTrigger = 0.2 // medium-term trend > 20%
	minCPUFloorCores  = 0.1
)

// predictiveScaling emits scale_up/scale_down/reserve_capacity actions for
// containers with a sufficiently confident forecast (spec.md §4.5, pass 2).
func predictiveScaling(snapshot Snapshot, minConfidence float64, now time.Time) []types.Action {
	var actions []types.Action
	seq := int64(0)

	for _, c := range snapshot.Containers {
		limit := c.cpuCores()
		if limit <= 0 {
			continue
		}

		if c.Forecast.ShortTerm.Confidence >= minConfidence {
			predicted := c.Forecast.ShortTerm.Value
			switch {
			case predicted > scaleUpTrigger*limit:
				seq++
				target := predicted * scaleUpFactor
				actions = append(actions, types.Action{
					Kind:        types.ActionScaleUp,
					Target:      c.ContainerID,
					NewLimits:   scaledRecord(c.Limits, target),
					Reason:      "predicted demand exceeds 90% of current limit",
					Priority:    types.ActionPriorityHigh,
					Confidence:  c.Forecast.ShortTerm.Confidence,
					GeneratedAt: now,
					Seq:         seq,
				})
			case predicted < scaleDownTrigger*limit:
				seq++
				target := predicted * scaleDownFactor
				if target < minCPUFloorCores {
					target = minCPUFloorCores
				}
				actions = append(actions, types.Action{
					Kind:        types.ActionScaleDown,
					Target:      c.ContainerID,
					NewLimits:   scaledRecord(c.Limits, target),
					Reason:      "predicted demand below 30% of current limit",
					Priority:    types.ActionPriorityLow,
					Confidence:  c.Forecast.ShortTerm.Confidence,
					GeneratedAt: now,
					Seq:         seq,
				})
			}
		}

		if c.Forecast.MediumTrendPct > trendReserveTrigger {
			seq++
			actions = append(actions, types.Action{
				Kind:        types.ActionReserveCapacity,
				Target:      c.ContainerID,
				Reason:      "positive medium-term trend exceeds 20%",
				Priority:    types.ActionPriorityMedium,
				Confidence:  minConfidence,
				GeneratedAt: now,
				Seq:         seq,
			})
		}
	}
	return actions
}

// scaledRecord returns a copy of base with its CPU quota set to express
// targetCores at the same period.
func scaledRecord(base types.ResourceLimitRecord, targetCores float64) *types.ResourceLimitRecord {
	out := base
	period := out.CPU.PeriodMicros
	if period <= 0 {
		period = 100000
	}
	out.CPU.PeriodMicros = period
	out.CPU.QuotaMicros = int64(targetCores * float64(period))
	return &out
}
