package optimizer

import (
	"sort"
	"time"

	"github.com/cuemby/orbiter/pkg/config"
	"github.com/cuemby/orbiter/pkg/log"
	"github.com/cuemby/orbiter/pkg/metrics"
	"github.com/cuemby/orbiter/pkg/types"
	"github.com/rs/zerolog"
)

// minPlanConfidence is the overall plan confidence below which the Engine
// warns rather than rejects (spec.md §4.5).
const minPlanConfidence = 0.5

// Engine runs the four optimization passes over a Snapshot and produces a
// validated OptimizationPlan.
type Engine struct {
	cfg           config.OptimizerConfig
	minConfidence float64 // forecaster's minConfidence, used by the predictive-scaling pass
	logger        zerolog.Logger
}

func New(cfg config.OptimizerConfig, minConfidence float64) *Engine {
	return &Engine{cfg: cfg, minConfidence: minConfidence, logger: log.WithComponent("optimizer")}
}

// Plan runs all four passes, merges and validates their output, and
// returns the resulting plan (spec.md §4.5).
func (e *Engine) Plan(snapshot Snapshot, mode config.EnforcementMode, now time.Time) types.OptimizationPlan {
	var actions []types.Action
	var warnings []string

	actions = append(actions, binPack(snapshot, e.cfg.CPUEfficiencyThreshold, now)...)
	actions = append(actions, predictiveScaling(snapshot, e.minConfidence, now)...)
	costActions, costWarnings := costOptimization(snapshot, mode, now)
	actions = append(actions, costActions...)
	warnings = append(warnings, costWarnings...)
	actions = append(actions, energyConsolidation(snapshot, now)...)

	actions = collapse(actions)
	actions = e.validate(snapshot, actions, &warnings)
	sortActions(actions)

	metrics.PlansGeneratedTotal.Inc()

	confidence := averageConfidence(actions)
	if confidence < minPlanConfidence && len(actions) > 0 {
		warnings = append(warnings, "overall plan confidence below 0.5")
	}

	return types.OptimizationPlan{
		GeneratedAt:     now,
		Actions:         actions,
		Warnings:        warnings,
		Confidence:      confidence,
		EstimatedCostHr: totalCost(snapshot, actions),
	}
}

// collapse applies "actions addressing the same container collapse: keep
// the latest with the highest priority" (spec.md §4.5).
func collapse(actions []types.Action) []types.Action {
	best := map[string]types.Action{}
	var order []string
	for _, a := range actions {
		cur, ok := best[a.Target]
		if !ok {
			best[a.Target] = a
			order = append(order, a.Target)
			continue
		}
		if a.Priority.Rank() > cur.Priority.Rank() ||
			(a.Priority.Rank() == cur.Priority.Rank() && a.GeneratedAt.After(cur.GeneratedAt)) {
			best[a.Target] = a
		}
	}
	out := make([]types.Action, 0, len(order))
	for _, target := range order {
		out = append(out, best[target])
	}
	return out
}

// validate drops actions that would push a host's post-plan reservation
// over capacity, and appends a budget warning (never a rejection) when
// estimated cost exceeds hourlyBudget (spec.md §4.5).
func (e *Engine) validate(snapshot Snapshot, actions []types.Action, warnings *[]string) []types.Action {
	projected := map[string]types.AllocatedTotals{}
	for id, h := range snapshot.Hosts {
		projected[id] = h.Totals
	}

	var kept []types.Action
	for _, a := range actions {
		if a.Kind != types.ActionMigrate {
			kept = append(kept, a)
			continue
		}
		c, ok := snapshot.Containers[a.Target]
		if !ok {
			continue
		}
		dest, ok := snapshot.Hosts[a.Destination]
		if !ok {
			continue
		}
		totals := projected[a.Destination]
		totals.CPUReserved += c.cpuCores()
		totals.MemoryReserved += c.Limits.Memory.LimitBytes
		if totals.CPUReserved > dest.Capacity.CPUCores || totals.MemoryReserved > dest.Capacity.MemoryBytes {
			e.logger.Warn().Str("container_id", a.Target).Str("destination", a.Destination).Msg("migration dropped, would exceed host capacity")
			continue
		}
		projected[a.Destination] = totals
		kept = append(kept, a)
	}

	if snapshot.HourlyBudget > 0 && totalCost(snapshot, kept) > snapshot.HourlyBudget {
		*warnings = append(*warnings, "predicted cost exceeds hourly budget")
	}
	return kept
}

// sortActions orders by priority {high, medium, low}, ties broken by
// earlier-generated-first (spec.md §4.5).
func sortActions(actions []types.Action) {
	sort.SliceStable(actions, func(i, j int) bool {
		if actions[i].Priority.Rank() != actions[j].Priority.Rank() {
			return actions[i].Priority.Rank() > actions[j].Priority.Rank()
		}
		return actions[i].Seq < actions[j].Seq
	})
}

func averageConfidence(actions []types.Action) float64 {
	if len(actions) == 0 {
		return 1
	}
	var sum float64
	for _, a := range actions {
		sum += a.Confidence
	}
	return sum / float64(len(actions))
}

func totalCost(snapshot Snapshot, actions []types.Action) float64 {
	stopped := map[string]bool{}
	for _, a := range actions {
		if a.Kind == types.ActionStop {
			stopped[a.Target] = true
		}
	}
	var total float64
	for id, c := range snapshot.Containers {
		if stopped[id] {
			continue
		}
		total += c.hourlyCost(snapshot.Cost)
	}
	return total
}

// EmergencyPlan builds the restricted single-action plan the Orchestrator
// may execute immediately on a severe bottleneck, skipping normal
// validation (spec.md §4.5).
func EmergencyPlan(bottleneck types.BottleneckEvent, snapshot Snapshot, now time.Time) types.OptimizationPlan {
	var action types.Action
	switch bottleneck.Type {
	case types.BottleneckCPU:
		if bottleneck.RelatedContainer != "" {
			action = types.Action{Kind: types.ActionStop, Target: bottleneck.RelatedContainer, Reason: "severe cpu bottleneck"}
		} else {
			action = types.Action{Kind: types.ActionReduceConcurrency, Target: hostForBottleneck(snapshot, bottleneck), Reason: "severe cpu bottleneck"}
		}
	case types.BottleneckMemory:
		action = types.Action{Kind: types.ActionClearCaches, Target: bottleneck.RelatedContainer, Reason: "severe memory bottleneck"}
	default:
		worst := worstOffender(snapshot)
		action = types.Action{Kind: types.ActionStop, Target: worst, Reason: "severe bottleneck, worst offender stopped"}
	}
	action.GeneratedAt = now
	action.Priority = types.ActionPriorityHigh
	action.Confidence = 0.6

	return types.OptimizationPlan{
		GeneratedAt: now,
		Actions:     []types.Action{action},
		Confidence:  action.Confidence,
	}
}

func hostForBottleneck(snapshot Snapshot, bottleneck types.BottleneckEvent) string {
	for id := range snapshot.Hosts {
		return id
	}
	return ""
}

func worstOffender(snapshot Snapshot) string {
	worstID := ""
	worstEff := 2.0
	for id, c := range snapshot.Containers {
		if eff := c.efficiency(); eff < worstEff {
			worstEff = eff
			worstID = id
		}
	}
	return worstID
}
