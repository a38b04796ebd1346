package enforcer

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/orbiter/pkg/capability"
	"github.com/cuemby/orbiter/pkg/capability/capabilitytest"
	"github.com/cuemby/orbiter/pkg/config"
	"github.com/cuemby/orbiter/pkg/enforcer/quotadriver"
	"github.com/cuemby/orbiter/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestEnforcer() (*Enforcer, *capabilitytest.RuntimeDriver) {
	driver := capabilitytest.NewRuntimeDriver()
	e := New(driver, quotadriver.NewRegistry(), nil, config.Default().Enforcer)
	return e, driver
}

func baseRecord(containerID string) types.ResourceLimitRecord {
	return types.ResourceLimitRecord{
		ContainerID: containerID,
		CPU:         types.CPULimits{QuotaMicros: 100000, PeriodMicros: 100000}, // 1.0 core
		Memory:      types.MemoryLimits{LimitBytes: 1 << 30, ReservationBytes: 1 << 29},
		Storage:     types.StorageLimits{DiskBytes: 10 << 30},
		Network:     types.NetworkLimits{IngressBps: 1000, EgressBps: 1000},
	}
}

func hostCapacity() types.HostCapacity {
	return types.HostCapacity{HostID: "host-1", CPUCores: 8, MemoryBytes: 32 << 30, DiskBytes: 500 << 30, NetworkBps: 1 << 20}
}

func TestApply_RejectsInvalidReservation(t *testing.T) {
	e, _ := newTestEnforcer()
	r := baseRecord("c1")
	r.Memory.ReservationBytes = r.Memory.LimitBytes + 1

	err := e.Apply(context.Background(), "host-1", types.PriorityNormal, r, hostCapacity())
	require.ErrorIs(t, err, capability.ErrInvalidLimits)
}

func TestApply_RejectsWhenCapacityExceeded(t *testing.T) {
	e, _ := newTestEnforcer()
	r := baseRecord("c1")
	r.CPU = types.CPULimits{QuotaMicros: 900000, PeriodMicros: 100000} // 9 cores, host only has 8

	err := e.Apply(context.Background(), "host-1", types.PriorityNormal, r, hostCapacity())
	require.ErrorIs(t, err, capability.ErrInsufficientCapacity)
}

func TestApply_ReapplyReplacesNotAccumulatesReservation(t *testing.T) {
	e, _ := newTestEnforcer()
	r := baseRecord("c1")

	require.NoError(t, e.Apply(context.Background(), "host-1", types.PriorityNormal, r, hostCapacity()))
	require.NoError(t, e.Apply(context.Background(), "host-1", types.PriorityNormal, r, hostCapacity()))

	totals := e.AllocatedTotals("host-1")
	require.InDelta(t, 1.0, totals.CPUReserved, 0.0001)
}

func TestRemove_ReleasesAllocatedTotals(t *testing.T) {
	e, _ := newTestEnforcer()
	r := baseRecord("c1")
	require.NoError(t, e.Apply(context.Background(), "host-1", types.PriorityNormal, r, hostCapacity()))

	require.NoError(t, e.Remove(context.Background(), "c1"))
	totals := e.AllocatedTotals("host-1")
	require.Zero(t, totals.CPUReserved)
	require.Zero(t, totals.MemoryReserved)
}

// TestViolationStateMachine_CompliantThroughKilled drives cpu.limit=1.0
// core with 2.2 observed cores at t=0, 10, 20, 60 and 70s. Tolerance is
// 10%, so 2.2 > 1.1 immediately violates; violationThreshold=3 and
// gracePeriod=60s hold the throttle step until t=60, and
// killOnViolation=true kills on the next violation after throttle (t=70).
func TestViolationStateMachine_CompliantThroughKilled(t *testing.T) {
	e, driver := newTestEnforcer()
	r := baseRecord("c1")
	require.NoError(t, e.Apply(context.Background(), "host-1", types.PriorityNormal, r, hostCapacity()))

	var got []types.ViolationRecord
	e.OnViolation(func(v types.ViolationRecord) { got = append(got, v) })

	base := time.Unix(1700000000, 0)

	// t=0: first violating observation -> violating then grace.
	require.NoError(t, e.Observe(context.Background(), "c1", types.Usage{CPUCores: 2.2, ObservedAt: base}))
	require.Len(t, got, 2)
	require.Equal(t, types.StateViolating, got[0].State)
	require.Equal(t, types.StateGrace, got[1].State)

	// t=10,20: still within grace period, count climbs but no throttle yet.
	require.NoError(t, e.Observe(context.Background(), "c1", types.Usage{CPUCores: 2.2, ObservedAt: base.Add(10 * time.Second)}))
	require.NoError(t, e.Observe(context.Background(), "c1", types.Usage{CPUCores: 2.2, ObservedAt: base.Add(20 * time.Second)}))

	for _, v := range got {
		require.NotEqual(t, types.StateThrottled, v.State)
	}

	// t=60s: count>=3 and grace period elapsed -> throttled.
	require.NoError(t, e.Observe(context.Background(), "c1", types.Usage{CPUCores: 2.2, ObservedAt: base.Add(60 * time.Second)}))
	last := got[len(got)-1]
	require.Equal(t, types.StateThrottled, last.State)
	require.Len(t, driver.Applied, 2) // initial Apply + throttle reapply
	require.Equal(t, int64(75000), driver.Applied[len(driver.Applied)-1].Limits.CPU.QuotaMicros)

	// Next violation after throttled -> killed.
	require.NoError(t, e.Observe(context.Background(), "c1", types.Usage{CPUCores: 2.2, ObservedAt: base.Add(70 * time.Second)}))
	last = got[len(got)-1]
	require.Equal(t, types.StateKilled, last.State)
	require.Contains(t, driver.Stopped, "c1")
}

func TestViolationStateMachine_ReturnsToCompliant(t *testing.T) {
	e, _ := newTestEnforcer()
	r := baseRecord("c1")
	require.NoError(t, e.Apply(context.Background(), "host-1", types.PriorityNormal, r, hostCapacity()))

	base := time.Unix(1700000000, 0)
	require.NoError(t, e.Observe(context.Background(), "c1", types.Usage{CPUCores: 2.2, ObservedAt: base}))
	require.NoError(t, e.Observe(context.Background(), "c1", types.Usage{CPUCores: 0.5, ObservedAt: base.Add(10 * time.Second)}))

	e.mu.Lock()
	v := e.violations[violationKey{containerID: "c1", dimension: types.DimensionCPU}]
	e.mu.Unlock()
	require.Equal(t, types.StateCompliant, v.State)
	require.Zero(t, v.Count)
}

func TestSelectThrottleOrder_LowerPriorityFirstThenLargerRatio(t *testing.T) {
	priorities := map[string]types.Priority{
		"high-priority": types.PriorityHigh,
		"low-priority":  types.PriorityLow,
		"low-worse":     types.PriorityLow,
	}
	ratios := map[string]float64{
		"high-priority": 3.0,
		"low-priority":  1.2,
		"low-worse":     2.5,
	}

	order := SelectThrottleOrder(
		[]string{"high-priority", "low-priority", "low-worse"},
		func(id string) types.Priority { return priorities[id] },
		func(id string) float64 { return ratios[id] },
	)

	require.Equal(t, []string{"low-worse", "low-priority", "high-priority"}, order)
}
