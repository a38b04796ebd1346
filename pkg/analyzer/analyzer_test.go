package analyzer

import (
	"testing"
	"time"

	"github.com/cuemby/orbiter/pkg/config"
	"github.com/cuemby/orbiter/pkg/types"
	"github.com/stretchr/testify/require"
)

func testConfig() config.AnalyzerConfig {
	cfg := config.Default().Analyzer
	cfg.Thresholds = map[string]config.Thresholds{
		"cpu":             {Warning: 0.7, Critical: 0.85, Severe: 0.95},
		"cache_efficiency": {Warning: 0.7, Critical: 0.5, Severe: 0.3},
	}
	return cfg
}

func TestRegular_EscalatesSeverityAcrossTicks(t *testing.T) {
	a := New(testConfig(), nil)
	now := time.Now()

	active, _ := a.Regular(now, []Metric{{Type: types.BottleneckCPU, Layer: types.LayerSystem, Value: 0.75}})
	require.Len(t, active, 1)
	require.Equal(t, types.SeverityWarning, active[0].Severity)

	active, _ = a.Regular(now.Add(time.Minute), []Metric{{Type: types.BottleneckCPU, Layer: types.LayerSystem, Value: 0.9}})
	require.Len(t, active, 1)
	require.Equal(t, types.SeverityCritical, active[0].Severity)

	active, _ = a.Regular(now.Add(2*time.Minute), []Metric{{Type: types.BottleneckCPU, Layer: types.LayerSystem, Value: 0.97}})
	require.Len(t, active, 1)
	require.Equal(t, types.SeveritySevere, active[0].Severity)
}

func TestRegular_NoDuplicateActiveForSameSeverity(t *testing.T) {
	a := New(testConfig(), nil)
	now := time.Now()

	// Tick 1: goes active.
	active, actions := a.Regular(now, []Metric{{Type: types.BottleneckCacheEfficiency, Layer: types.LayerApplication, Value: 0.55}})
	require.Len(t, active, 1)
	require.Len(t, actions, 1)
	require.Equal(t, types.ActionResize, actions[0].Kind)

	// Ticks 2..20 at the same severity: no duplicate active events.
	for i := 2; i <= 20; i++ {
		active, actions = a.Regular(now.Add(time.Duration(i)*time.Second), []Metric{
			{Type: types.BottleneckCacheEfficiency, Layer: types.LayerApplication, Value: 0.55},
		})
		require.Empty(t, active)
		require.Empty(t, actions)
	}
}

func TestRegular_ResolvesWhenMetricDropsOut(t *testing.T) {
	a := New(testConfig(), nil)
	now := time.Now()

	_, _ = a.Regular(now, []Metric{{Type: types.BottleneckCPU, Layer: types.LayerSystem, Value: 0.9}})
	require.Len(t, a.ActiveBottlenecks(), 1)

	_, _ = a.Regular(now.Add(time.Minute), []Metric{{Type: types.BottleneckCPU, Layer: types.LayerSystem, Value: 0.1}})
	require.Empty(t, a.ActiveBottlenecks())
}

func TestHealthScore_SubtractsPerActiveSeverity(t *testing.T) {
	a := New(testConfig(), nil)
	now := time.Now()

	_, _ = a.Regular(now, []Metric{
		{Type: types.BottleneckCPU, Layer: types.LayerSystem, Value: 0.97},    // severe, -30
		{Type: types.BottleneckCacheEfficiency, Layer: types.LayerApplication, Value: 0.6}, // warning, -10
	})

	require.InDelta(t, 60.0, a.HealthScore(), 0.001)
	require.Equal(t, "good", HealthStatus(a.HealthScore()))
}

func TestDeep_DetectsRecurringBottleneck(t *testing.T) {
	a := New(testConfig(), nil)
	now := time.Now()
	for i := 0; i < historyDepth; i++ {
		a.Regular(now.Add(time.Duration(i)*time.Minute), []Metric{{Type: types.BottleneckCPU, Layer: types.LayerSystem, Value: 0.9}})
	}

	report := a.Deep(now.Add(historyDepth * time.Minute))
	require.Contains(t, report.Recurring, types.Key{Type: types.BottleneckCPU, Layer: types.LayerSystem})
}
