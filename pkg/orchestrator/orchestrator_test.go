package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/orbiter/pkg/capability/capabilitytest"
	"github.com/cuemby/orbiter/pkg/config"
	"github.com/cuemby/orbiter/pkg/forecaster"
	"github.com/cuemby/orbiter/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrchestrator(t *testing.T) (*Orchestrator, *capabilitytest.RuntimeDriver, *capabilitytest.SlotProvider) {
	t.Helper()
	cfg := config.Default()
	driver := capabilitytest.NewRuntimeDriver()
	slots := capabilitytest.NewSlotProvider(10)
	storage := capabilitytest.NewPersistence()
	host := types.HostCapacity{HostID: "host-a", CPUCores: 16, MemoryBytes: 64 * 1024 * 1024 * 1024, DiskBytes: 500 * 1024 * 1024 * 1024, NetworkBps: 1e9}
	o := New(cfg, driver, slots, storage, "host-a", host)
	return o, driver, slots
}

func TestAdmit_SmallProfileMaterializesBufferedLimits(t *testing.T) {
	o, _, _ := testOrchestrator(t)

	// Seed a trusted profile of 1.0 trained CPU cores for "small", exactly
	// as spec.md §8 scenario 1 describes, by recording enough completions.
	features := forecaster.Features{RepositoryHash: 1, WorkflowHash: 2}
	for i := 0; i < 12; i++ {
		o.forecaster.RecordCompletion("small", features, forecaster.Prediction{
			CPUCores:    1.0,
			MemoryBytes: 1024 * 1024 * 1024,
		}, time.Minute, nil)
	}

	req := types.JobRequest{
		JobID:     "job-1",
		JobClass:  "small",
		Priority:  types.PriorityNormal,
		CreatedAt: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	handle, err := o.Admit(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, handle.ContainerID)

	snap := o.enforcer.Snapshot()
	require.Len(t, snap, 1)
	record := snap[0].Limits

	// CPU: trained 1.0 cores * 1.2 buffer / period 100000 => quota 120000.
	assert.Equal(t, int64(120000), record.CPU.QuotaMicros)
	assert.Equal(t, int64(100000), record.CPU.PeriodMicros)

	// Memory: trained 1GB * 1.2 = 1.2GB, rounded up to the 256MB grid.
	assert.Equal(t, roundUpToGrid(int64(float64(1024*1024*1024)*1.2), memoryGridBytes), record.Memory.LimitBytes)

	// Disk was never trained for "small" in this test, so it falls back to
	// the Forecaster's 10GB default (spec.md §8 scenario 1) rather than 0.
	assert.Equal(t, int64(10*1024*1024*1024), record.Storage.DiskBytes)
}

func TestAdmit_RejectsWhenSlotPoolExhausted(t *testing.T) {
	cfg := config.Default()
	driver := capabilitytest.NewRuntimeDriver()
	slots := capabilitytest.NewSlotProvider(0)
	storage := capabilitytest.NewPersistence()
	host := types.HostCapacity{HostID: "host-a", CPUCores: 16, MemoryBytes: 64 * 1024 * 1024 * 1024}
	o := New(cfg, driver, slots, storage, "host-a", host)

	req := types.JobRequest{JobID: "job-1", JobClass: "small", Priority: types.PriorityNormal, CreatedAt: time.Now()}
	_, err := o.Admit(context.Background(), req)
	assert.Error(t, err)
}

func TestAdmit_RejectsWhenHostCapacityInsufficient(t *testing.T) {
	cfg := config.Default()
	driver := capabilitytest.NewRuntimeDriver()
	slots := capabilitytest.NewSlotProvider(10)
	storage := capabilitytest.NewPersistence()
	// Tiny host: even the forecaster's conservative defaults won't fit.
	host := types.HostCapacity{HostID: "host-a", CPUCores: 0.1, MemoryBytes: 1024}
	o := New(cfg, driver, slots, storage, "host-a", host)

	req := types.JobRequest{JobID: "job-1", JobClass: "huge", Priority: types.PriorityHigh, CreatedAt: time.Now()}
	_, err := o.Admit(context.Background(), req)
	assert.Error(t, err)

	// The acquired slot must have been released on rejection.
	avail, availErr := slots.Available(context.Background())
	require.NoError(t, availErr)
	assert.Equal(t, 10, avail)
}

func TestAdmitComplete_RoundTripReleasesState(t *testing.T) {
	o, _, slots := testOrchestrator(t)

	req := types.JobRequest{JobID: "job-1", JobClass: "small", Priority: types.PriorityNormal, CreatedAt: time.Now()}
	handle, err := o.Admit(context.Background(), req)
	require.NoError(t, err)

	err = o.Complete(context.Background(), handle, Outcome{CPUCores: 0.4, MemoryBytes: 400 * 1024 * 1024, Duration: time.Minute})
	require.NoError(t, err)

	assert.Empty(t, o.enforcer.Snapshot())
	avail, availErr := slots.Available(context.Background())
	require.NoError(t, availErr)
	assert.Equal(t, 10, avail)

	// Completing the same handle again is a no-op, not an error.
	err = o.Complete(context.Background(), handle, Outcome{Duration: time.Minute})
	require.NoError(t, err)
}

// slowDriver delays ApplyLimits past the caller's deadline, used to force
// cycle-abandonment behavior (spec.md §8 scenario 6).
type slowDriver struct {
	*capabilitytest.RuntimeDriver
	delay time.Duration
}

func (d *slowDriver) ApplyLimits(ctx context.Context, slotID string, limits types.ResourceLimitRecord) error {
	select {
	case <-time.After(d.delay):
		return d.RuntimeDriver.ApplyLimits(ctx, slotID, limits)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestRunCycle_AbandonsRemainingActionsPastDeadline(t *testing.T) {
	cfg := config.Default()
	driver := &slowDriver{RuntimeDriver: capabilitytest.NewRuntimeDriver(), delay: 200 * time.Millisecond}
	slots := capabilitytest.NewSlotProvider(10)
	storage := capabilitytest.NewPersistence()
	host := types.HostCapacity{HostID: "host-a", CPUCores: 16, MemoryBytes: 64 * 1024 * 1024 * 1024}
	o := New(cfg, driver, slots, storage, "host-a", host)

	req := types.JobRequest{JobID: "job-1", JobClass: "small", Priority: types.PriorityNormal, CreatedAt: time.Now()}
	handle, err := o.Admit(context.Background(), req)
	require.NoError(t, err)

	plan := types.OptimizationPlan{
		Actions: []types.Action{
			{
				Kind:   types.ActionResize,
				Target: handle.ContainerID,
				NewLimits: &types.ResourceLimitRecord{
					CPU:    types.CPULimits{QuotaMicros: 50000, PeriodMicros: 100000},
					Memory: types.MemoryLimits{LimitBytes: 256 * 1024 * 1024},
				},
			},
			{
				Kind:   types.ActionResize,
				Target: handle.ContainerID,
				NewLimits: &types.ResourceLimitRecord{
					CPU:    types.CPULimits{QuotaMicros: 60000, PeriodMicros: 100000},
					Memory: types.MemoryLimits{LimitBytes: 256 * 1024 * 1024},
				},
			},
		},
	}

	// A 50ms deadline is well under the driver's 200ms delay: the first
	// action should be abandoned mid-flight, never reaching the second.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	taken, failed := o.executePlan(ctx, plan)

	assert.Equal(t, 0, taken)
	assert.Equal(t, 1, failed)
}

func TestBuildSnapshot_ReflectsTrackedContainer(t *testing.T) {
	o, _, _ := testOrchestrator(t)

	req := types.JobRequest{JobID: "job-1", JobClass: "small", Priority: types.PriorityHigh, CreatedAt: time.Now()}
	handle, err := o.Admit(context.Background(), req)
	require.NoError(t, err)

	snap := o.buildSnapshot()
	require.Contains(t, snap.Containers, handle.ContainerID)
	assert.Equal(t, types.PriorityHigh, snap.Containers[handle.ContainerID].Priority)
	require.Contains(t, snap.Hosts, "host-a")
	assert.Contains(t, snap.Hosts["host-a"].ContainerIDs, handle.ContainerID)
}

func TestRunCycle_SkippedWhenNotLeader(t *testing.T) {
	o, _, _ := testOrchestrator(t)
	o.SetElector(fixedElector{leader: false})

	err := o.RunCycle(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Empty(t, o.History())
}

type fixedElector struct{ leader bool }

func (f fixedElector) IsLeader() bool { return f.leader }

func TestHealthSupervisor_QuarantinesAfterRepeatedFailures(t *testing.T) {
	cfg := config.Default()
	driver := capabilitytest.NewRuntimeDriver()
	driver.HostStatsFunc = func(ctx context.Context) (types.Sample, error) {
		return types.Sample{}, assertErr
	}
	slots := capabilitytest.NewSlotProvider(10)
	storage := capabilitytest.NewPersistence()
	host := types.HostCapacity{HostID: "host-a", CPUCores: 16, MemoryBytes: 64 * 1024 * 1024 * 1024}
	o := New(cfg, driver, slots, storage, "host-a", host)

	for i := 0; i < maxRestartAttempts; i++ {
		o.health.runChecks(context.Background())
	}
	assert.True(t, o.health.Quarantined("driver"))

	o.health.ResetQuarantine("driver")
	assert.False(t, o.health.Quarantined("driver"))
}

var assertErr = contextErr("probe failed")

type contextErr string

func (e contextErr) Error() string { return string(e) }
