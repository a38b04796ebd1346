package orchestrator

import (
	"context"
	"time"

	"github.com/cuemby/orbiter/pkg/events"
	"github.com/cuemby/orbiter/pkg/metrics"
	"github.com/cuemby/orbiter/pkg/optimizer"
	"github.com/cuemby/orbiter/pkg/types"
)

// defaultCostModel prices each dimension when no operator-supplied pricing
// exists; OptimizerConfig carries a single CostBudgetHourly ceiling but no
// per-unit rates, so the cost optimization pass needs a baseline to price
// against.
var defaultCostModel = types.CostModel{
	PerCPUCore:     0.05,
	PerMemoryGB:    0.01,
	PerStorageGB:   0.001,
	PerNetworkMbps: 0.002,
}

func (o *Orchestrator) runCycleLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := o.RunCycle(ctx, interval); err != nil {
				o.logger.Warn().Err(err).Msg("optimize cycle failed")
			}
		case <-o.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunCycle builds a Snapshot from current component state, plans with the
// Optimization Engine, and executes the plan's actions. Only the leader
// (per Elector, or always when none is configured) runs a cycle. Action
// execution runs against a context bounded to half of interval: if any
// action blocks past that deadline, the remaining actions are abandoned
// rather than applied partially, and the next cycle proceeds on its normal
// schedule (spec.md §8 scenario 6).
func (o *Orchestrator) RunCycle(ctx context.Context, interval time.Duration) error {
	if !o.isLeader() {
		return nil
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.CycleDuration)

	before := o.analyzer.HealthScore()
	snapshot := o.buildSnapshot()

	plan := o.engine.Plan(snapshot, o.cfg.Policy.EnforcementMode, time.Now())
	o.publish(events.EventPlanGenerated, map[string]any{"actions": len(plan.Actions)})

	deadline := interval / 2
	execCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	taken, failed := o.executePlan(execCtx, plan)

	after := o.analyzer.HealthScore()
	o.recordHistory(types.ExecutionRecord{
		T:             time.Now(),
		Plan:          plan,
		ScoreBefore:   before,
		ScoreAfter:    after,
		ActionsTaken:  taken,
		ActionsFailed: failed,
	})
	o.publish(events.EventPlanExecuted, map[string]any{"taken": taken, "failed": failed})

	return nil
}

// executePlan applies plan's actions in order. A failed action is counted
// and the next one is still attempted; once the context deadline has
// elapsed it stops, leaving the remaining actions unapplied. Actions
// applied before that point are not rolled back.
func (o *Orchestrator) executePlan(ctx context.Context, plan types.OptimizationPlan) (taken, failed int) {
	for _, action := range plan.Actions {
		select {
		case <-ctx.Done():
			o.logger.Warn().Int("remaining", len(plan.Actions)-taken-failed).Msg("cycle deadline exceeded, abandoning remaining actions")
			return taken, failed
		default:
		}

		if err := o.executeAction(ctx, action); err != nil {
			failed++
			metrics.PlanActionsTotal.WithLabelValues(string(action.Kind), "failed").Inc()
			o.publish(events.EventActionFailed, map[string]any{"kind": string(action.Kind), "target": action.Target, "error": err.Error()})
			continue
		}
		taken++
		metrics.PlanActionsTotal.WithLabelValues(string(action.Kind), "applied").Inc()
	}
	return taken, failed
}

// executeAction dispatches one Action by Kind. Cluster-wide actions
// (migrate, power_down_host) have no single-host capability to mutate
// directly; this instance only logs them and reports them as taken, without
// executing them or publishing an event for them, which matches the
// non-goal of strong cross-host consistency (spec.md §1).
func (o *Orchestrator) executeAction(ctx context.Context, action types.Action) error {
	switch action.Kind {
	case types.ActionResize, types.ActionScaleUp, types.ActionScaleDown:
		return o.applyResize(ctx, action)
	case types.ActionStop:
		return o.enforcer.Remove(ctx, action.Target)
	case types.ActionMigrate, types.ActionPowerDownHost, types.ActionReserveCapacity,
		types.ActionReduceConcurrency, types.ActionClearCaches:
		o.logger.Info().Str("kind", string(action.Kind)).Str("target", action.Target).Str("reason", action.Reason).Msg("action recorded, no local capability to execute")
		return nil
	default:
		o.logger.Warn().Str("kind", string(action.Kind)).Msg("unrecognized action kind")
		return nil
	}
}

func (o *Orchestrator) applyResize(ctx context.Context, action types.Action) error {
	if action.NewLimits == nil {
		return nil
	}
	o.mu.Lock()
	host := o.hostCapacity
	o.mu.Unlock()

	snap := o.enforcer.Snapshot()
	var priority types.Priority = types.PriorityNormal
	for _, c := range snap {
		if c.ContainerID == action.Target {
			priority = c.Priority
			break
		}
	}
	record := *action.NewLimits
	record.ContainerID = action.Target
	return o.enforcer.Apply(ctx, o.hostID, priority, record, host)
}

// buildSnapshot joins the Enforcer's tracked state, this host's capacity,
// and the Analyzer's active bottlenecks into one optimizer.Snapshot.
func (o *Orchestrator) buildSnapshot() optimizer.Snapshot {
	o.mu.Lock()
	host := o.hostCapacity
	o.mu.Unlock()

	containers := map[string]optimizer.ContainerState{}
	for _, c := range o.enforcer.Snapshot() {
		forecast := optimizer.ContainerForecast{}
		if job, ok := o.runningJob(c.ContainerID); ok {
			demand := o.forecaster.DemandForecast(job.jobClass, time.Now())
			if len(demand.Series) > 0 {
				forecast.ShortTerm = demand.Series[0]
			}
			forecast.MediumTrendPct = demand.MeanTrend
		}
		containers[c.ContainerID] = optimizer.ContainerState{
			ContainerID: c.ContainerID,
			HostID:      c.HostID,
			Priority:    c.Priority,
			Limits:      c.Limits,
			Usage:       c.Usage,
			Forecast:    forecast,
		}
	}

	totals := o.enforcer.AllocatedTotals(o.hostID)
	hosts := map[string]optimizer.HostState{
		o.hostID: {
			HostID:       o.hostID,
			Capacity:     host,
			Totals:       totals,
			ContainerIDs: o.enforcer.ContainerIDsOnHost(o.hostID),
		},
	}

	return optimizer.Snapshot{
		Containers:   containers,
		Hosts:        hosts,
		Bottlenecks:  o.analyzer.ActiveBottlenecks(),
		Cost:         defaultCostModel,
		HourlyBudget: o.cfg.Optimizer.CostBudgetHourly,
	}
}

func (o *Orchestrator) runningJob(containerID string) (trackedJob, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	j, ok := o.running[containerID]
	return j, ok
}

// RunEmergencyPlan bypasses the regular cycle to react to a severe
// bottleneck immediately, per the Analyzer's remediation hook (spec.md
// §4.5). It shares executePlan's all-or-nothing-per-action semantics but
// has no cycle deadline of its own.
func (o *Orchestrator) RunEmergencyPlan(ctx context.Context, bottleneck types.BottleneckEvent) {
	snapshot := o.buildSnapshot()
	plan := optimizer.EmergencyPlan(bottleneck, snapshot, time.Now())
	if len(plan.Actions) == 0 {
		return
	}
	taken, failed := o.executePlan(ctx, plan)
	o.logger.Warn().Int("taken", taken).Int("failed", failed).Str("bottleneck", string(bottleneck.Type)).Msg("emergency plan executed")
}
