package orchestrator

import (
	"context"
	"time"

	"github.com/cuemby/orbiter/pkg/analyzer"
	"github.com/cuemby/orbiter/pkg/types"
)

// analysisLoop drives the Analyzer's Regular pass on its configured cadence
// (default 60s) and the Deep pass on its own, slower cadence (default
// 300s), mirroring the teacher's reconciler tick-and-act loop shape.
func (o *Orchestrator) analysisLoop(ctx context.Context, regularInterval, deepInterval time.Duration) {
	regular := time.NewTicker(regularInterval)
	deep := time.NewTicker(deepInterval)
	defer regular.Stop()
	defer deep.Stop()
	for {
		select {
		case <-regular.C:
			o.runRegularAnalysis(ctx)
		case <-deep.C:
			o.runDeepAnalysis()
		case <-o.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// runRegularAnalysis builds the current metric set from every tracked
// container's latest sample plus the host-wide sample, feeds it to the
// Analyzer, and executes any automatic remediation action immediately
// (bypassing the optimize cycle's own cadence, since a newly active
// bottleneck shouldn't wait for the next scheduled cycle).
func (o *Orchestrator) runRegularAnalysis(ctx context.Context) {
	now := time.Now()
	metricsIn := o.buildMetrics()

	_, actions := o.analyzer.Regular(now, metricsIn)
	if len(actions) == 0 {
		return
	}
	plan := types.OptimizationPlan{GeneratedAt: now, Actions: actions}
	taken, failed := o.executePlan(ctx, plan)
	o.logger.Info().Int("taken", taken).Int("failed", failed).Msg("automatic remediation executed")

	for _, b := range o.analyzer.ActiveBottlenecks() {
		if b.Severity == types.SeveritySevere {
			o.RunEmergencyPlan(ctx, b)
		}
	}
}

func (o *Orchestrator) runDeepAnalysis() {
	report := o.analyzer.Deep(time.Now())
	if len(report.Recurring) > 0 || len(report.Anomalies) > 0 {
		o.logger.Info().
			Int("recurring", len(report.Recurring)).
			Int("correlated", len(report.Correlated)).
			Int("anomalies", len(report.Anomalies)).
			Msg("deep analysis pass complete")
	}
}

// buildMetrics turns the Profiler's latest samples for every tracked
// container, plus the most recent host-wide sample, into the Metric set
// the Analyzer's Regular pass classifies.
func (o *Orchestrator) buildMetrics() []analyzer.Metric {
	var out []analyzer.Metric

	o.mu.Lock()
	ids := make([]string, 0, len(o.running))
	for id := range o.running {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	for _, containerID := range ids {
		window := o.profiler.RollingWindow(containerID, time.Minute)
		if len(window) == 0 {
			continue
		}
		s := window[len(window)-1]
		out = append(out,
			analyzer.Metric{Type: types.BottleneckCPU, Layer: types.LayerContainer, Value: s.CPUPct, Container: containerID},
			analyzer.Metric{Type: types.BottleneckMemory, Layer: types.LayerContainer, Value: float64(s.MemUsed), Container: containerID},
		)
	}

	hostWindow := o.profiler.RollingWindow("", time.Minute)
	if len(hostWindow) > 0 {
		s := hostWindow[len(hostWindow)-1]
		out = append(out,
			analyzer.Metric{Type: types.BottleneckCPU, Layer: types.LayerSystem, Value: s.CPUPct},
			analyzer.Metric{Type: types.BottleneckMemory, Layer: types.LayerSystem, Value: float64(s.MemUsed)},
		)
	}

	return out
}
