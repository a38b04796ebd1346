package optimizer

import (
	"testing"
	"time"

	"github.com/cuemby/orbiter/pkg/config"
	"github.com/cuemby/orbiter/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cpuRecord(cores float64) types.ResourceLimitRecord {
	const period = 100000
	return types.ResourceLimitRecord{
		CPU: types.CPULimits{QuotaMicros: int64(cores * period), PeriodMicros: period},
	}
}

func TestBinPack_MigratesFromOverloadedToIdleHost(t *testing.T) {
	now := time.Now()
	snapshot := Snapshot{
		Containers: map[string]ContainerState{
			"c1": {ContainerID: "c1", HostID: "host-a", Limits: cpuRecord(3)},
		},
		Hosts: map[string]HostState{
			"host-a": {HostID: "host-a", Capacity: types.HostCapacity{CPUCores: 4, MemoryBytes: 1 << 34}, Totals: types.AllocatedTotals{CPUReserved: 3.8}, ContainerIDs: []string{"c1"}},
			"host-b": {HostID: "host-b", Capacity: types.HostCapacity{CPUCores: 8, MemoryBytes: 1 << 34}, Totals: types.AllocatedTotals{CPUReserved: 0.5}},
		},
	}

	actions := binPack(snapshot, 0.7, now)
	require.Len(t, actions, 1)
	assert.Equal(t, types.ActionMigrate, actions[0].Kind)
	assert.Equal(t, "c1", actions[0].Target)
	assert.Equal(t, "host-b", actions[0].Destination)
}

func TestBinPack_NoActionWhenNoHostOverloaded(t *testing.T) {
	snapshot := Snapshot{
		Hosts: map[string]HostState{
			"host-a": {HostID: "host-a", Capacity: types.HostCapacity{CPUCores: 4}, Totals: types.AllocatedTotals{CPUReserved: 1}},
		},
	}
	assert.Empty(t, binPack(snapshot, 0.7, time.Now()))
}

// TestPredictiveScaling_ScaleUp reproduces the literal scenario of a
// container predicted at 3.5 cores with confidence 0.90 against a current
// 2.0 core limit: exactly one high-priority scale_up to 4.2 cores.
func TestPredictiveScaling_ScaleUp(t *testing.T) {
	now := time.Now()
	snapshot := Snapshot{
		Containers: map[string]ContainerState{
			"c1": {
				ContainerID: "c1",
				Limits:      cpuRecord(2.0),
				Forecast: ContainerForecast{
					ShortTerm: types.ForecastPoint{Value: 3.5, Confidence: 0.90},
				},
			},
		},
	}

	actions := predictiveScaling(snapshot, 0.5, now)
	require.Len(t, actions, 1)
	a := actions[0]
	assert.Equal(t, types.ActionScaleUp, a.Kind)
	assert.Equal(t, types.ActionPriorityHigh, a.Priority)
	require.NotNil(t, a.NewLimits)
	gotCores := float64(a.NewLimits.CPU.QuotaMicros) / float64(a.NewLimits.CPU.PeriodMicros)
	assert.InDelta(t, 4.2, gotCores, 0.01)
}

func TestPredictiveScaling_LowConfidenceSkipped(t *testing.T) {
	snapshot := Snapshot{
		Containers: map[string]ContainerState{
			"c1": {
				ContainerID: "c1",
				Limits:      cpuRecord(2.0),
				Forecast:    ContainerForecast{ShortTerm: types.ForecastPoint{Value: 3.5, Confidence: 0.2}},
			},
		},
	}
	assert.Empty(t, predictiveScaling(snapshot, 0.5, time.Now()))
}

func TestPredictiveScaling_ReserveCapacityOnTrend(t *testing.T) {
	snapshot := Snapshot{
		Containers: map[string]ContainerState{
			"c1": {
				ContainerID: "c1",
				Limits:      cpuRecord(2.0),
				Forecast:    ContainerForecast{MediumTrendPct: 0.3},
			},
		},
	}
	actions := predictiveScaling(snapshot, 0.5, time.Now())
	require.Len(t, actions, 1)
	assert.Equal(t, types.ActionReserveCapacity, actions[0].Kind)
}

// TestCostOptimization_HardModeStopsWorstEfficiencyContainer reproduces the
// literal scenario of three containers costing 0.60/0.50/0.30 per hour
// against a 1.00 budget: hard mode stops the worst-efficiency one and the
// remaining cost falls within budget.
func TestCostOptimization_HardModeStopsWorstEfficiencyContainer(t *testing.T) {
	now := time.Now()
	cost := types.CostModel{PerCPUCore: 0.10}
	snapshot := Snapshot{
		Containers: map[string]ContainerState{
			"c-a": {ContainerID: "c-a", Limits: cpuRecord(6), Usage: types.Usage{CPUCores: 5.7}},
			"c-b": {ContainerID: "c-b", Limits: cpuRecord(5), Usage: types.Usage{CPUCores: 1.5}},
			"c-c": {ContainerID: "c-c", Limits: cpuRecord(3), Usage: types.Usage{CPUCores: 2.85}},
		},
		Cost:         cost,
		HourlyBudget: 1.00,
	}

	actions, warnings := costOptimization(snapshot, config.ModeHard, now)
	assert.Empty(t, warnings)

	var stop *types.Action
	for i := range actions {
		if actions[i].Kind == types.ActionStop && actions[i].Priority == types.ActionPriorityHigh {
			stop = &actions[i]
		}
	}
	require.NotNil(t, stop, "expected a budget-driven stop action")
	assert.Equal(t, "c-b", stop.Target)

	remaining := 0.0
	for id, c := range snapshot.Containers {
		if id == stop.Target {
			continue
		}
		remaining += c.hourlyCost(cost)
	}
	assert.LessOrEqual(t, remaining, snapshot.HourlyBudget)
}

func TestCostOptimization_SoftModeWarnsWithoutStopping(t *testing.T) {
	cost := types.CostModel{PerCPUCore: 0.10}
	snapshot := Snapshot{
		Containers: map[string]ContainerState{
			"c-a": {ContainerID: "c-a", Limits: cpuRecord(6), Usage: types.Usage{CPUCores: 5.7}},
			"c-b": {ContainerID: "c-b", Limits: cpuRecord(5), Usage: types.Usage{CPUCores: 1.5}},
			"c-c": {ContainerID: "c-c", Limits: cpuRecord(3), Usage: types.Usage{CPUCores: 2.85}},
		},
		Cost:         cost,
		HourlyBudget: 1.00,
	}

	actions, warnings := costOptimization(snapshot, config.ModeSoft, time.Now())
	assert.NotEmpty(t, warnings)
	for _, a := range actions {
		assert.NotEqual(t, types.ActionPriorityHigh, a.Priority, "soft mode must not stop for budget")
	}
}

func TestEnergyConsolidation_DrainsAndPowersDownIdleHost(t *testing.T) {
	now := time.Now()
	snapshot := Snapshot{
		Containers: map[string]ContainerState{
			"c1": {ContainerID: "c1", HostID: "host-a", Limits: cpuRecord(1)},
		},
		Hosts: map[string]HostState{
			"host-a": {HostID: "host-a", Capacity: types.HostCapacity{CPUCores: 8, MemoryBytes: 1 << 34}, Totals: types.AllocatedTotals{CPUReserved: 1}, ContainerIDs: []string{"c1"}},
			"host-b": {HostID: "host-b", Capacity: types.HostCapacity{CPUCores: 8, MemoryBytes: 1 << 34}, Totals: types.AllocatedTotals{CPUReserved: 0}},
		},
	}

	actions := energyConsolidation(snapshot, now)
	var migrated, poweredDown bool
	for _, a := range actions {
		if a.Kind == types.ActionMigrate && a.Target == "c1" {
			migrated = true
		}
		if a.Kind == types.ActionPowerDownHost && a.Target == "host-a" {
			poweredDown = true
		}
	}
	assert.True(t, migrated)
	assert.True(t, poweredDown)
}

func TestEnergyConsolidation_NoPowerDownWhenContainerHasNoDestination(t *testing.T) {
	snapshot := Snapshot{
		Containers: map[string]ContainerState{
			"c1": {ContainerID: "c1", HostID: "host-a", Limits: cpuRecord(1), Constraints: types.PlacementConstraints{AntiAffinityWith: []string{"c2"}}},
			"c2": {ContainerID: "c2", HostID: "host-b", Limits: cpuRecord(1), Constraints: types.PlacementConstraints{AntiAffinityWith: []string{"c1"}}},
		},
		Hosts: map[string]HostState{
			"host-a": {HostID: "host-a", Capacity: types.HostCapacity{CPUCores: 8, MemoryBytes: 1 << 34}, Totals: types.AllocatedTotals{CPUReserved: 1}, ContainerIDs: []string{"c1"}},
			"host-b": {HostID: "host-b", Capacity: types.HostCapacity{CPUCores: 8, MemoryBytes: 1 << 34}, Totals: types.AllocatedTotals{CPUReserved: 1}, ContainerIDs: []string{"c2"}},
		},
	}
	actions := energyConsolidation(snapshot, time.Now())
	assert.Empty(t, actions)
}

func TestEngine_Plan_CollapsesSameTargetKeepingHighestPriority(t *testing.T) {
	now := time.Now()
	actions := []types.Action{
		{Kind: types.ActionResize, Target: "c1", Priority: types.ActionPriorityLow, GeneratedAt: now},
		{Kind: types.ActionStop, Target: "c1", Priority: types.ActionPriorityHigh, GeneratedAt: now.Add(time.Second)},
	}
	out := collapse(actions)
	require.Len(t, out, 1)
	assert.Equal(t, types.ActionStop, out[0].Kind)
}

func TestEngine_Validate_DropsMigrationExceedingDestinationCapacity(t *testing.T) {
	e := New(config.OptimizerConfig{}, 0.5)
	now := time.Now()
	snapshot := Snapshot{
		Containers: map[string]ContainerState{
			"c1": {ContainerID: "c1", Limits: cpuRecord(6)},
		},
		Hosts: map[string]HostState{
			"host-b": {HostID: "host-b", Capacity: types.HostCapacity{CPUCores: 4, MemoryBytes: 1 << 34}},
		},
	}
	actions := []types.Action{
		{Kind: types.ActionMigrate, Target: "c1", Destination: "host-b", GeneratedAt: now},
	}
	var warnings []string
	kept := e.validate(snapshot, actions, &warnings)
	assert.Empty(t, kept)
}

func TestEngine_Plan_SortsByPriorityThenSequence(t *testing.T) {
	e := New(config.OptimizerConfig{CPUEfficiencyThreshold: 0.9}, 0.9)
	now := time.Now()
	snapshot := Snapshot{
		Containers: map[string]ContainerState{
			"c1": {ContainerID: "c1", Limits: cpuRecord(1), Usage: types.Usage{CPUCores: 0.9}},
		},
		Hosts: map[string]HostState{
			"host-a": {HostID: "host-a", Capacity: types.HostCapacity{CPUCores: 4, MemoryBytes: 1 << 34}, ContainerIDs: []string{"c1"}},
		},
	}
	plan := e.Plan(snapshot, config.ModeAdaptive, now)
	for i := 1; i < len(plan.Actions); i++ {
		assert.GreaterOrEqual(t, plan.Actions[i-1].Priority.Rank(), plan.Actions[i].Priority.Rank())
	}
}

func TestEmergencyPlan_SevereCPUBottleneckStopsContainer(t *testing.T) {
	now := time.Now()
	bottleneck := types.BottleneckEvent{Type: types.BottleneckCPU, Severity: types.SeveritySevere, RelatedContainer: "c1"}
	plan := EmergencyPlan(bottleneck, Snapshot{}, now)
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, types.ActionStop, plan.Actions[0].Kind)
	assert.Equal(t, "c1", plan.Actions[0].Target)
	assert.Equal(t, types.ActionPriorityHigh, plan.Actions[0].Priority)
}

func TestEmergencyPlan_SevereMemoryBottleneckClearsCaches(t *testing.T) {
	bottleneck := types.BottleneckEvent{Type: types.BottleneckMemory, Severity: types.SeveritySevere, RelatedContainer: "c1"}
	plan := EmergencyPlan(bottleneck, Snapshot{}, time.Now())
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, types.ActionClearCaches, plan.Actions[0].Kind)
}
