package profiler

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/orbiter/pkg/capability/capabilitytest"
	"github.com/cuemby/orbiter/pkg/config"
	"github.com/cuemby/orbiter/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestSampleContainer_FirstSampleHasNoCPURatio(t *testing.T) {
	driver := capabilitytest.NewRuntimeDriver()
	driver.StatsFunc = func(ctx context.Context, slotID string) (types.Sample, error) {
		return types.Sample{CPUNanos: 1000, SystemNanos: 5000, OnlineCPUs: 4}, nil
	}

	p := New(driver, config.Default().Profiler, "host-1")
	p.RegisterContainer("c1")

	sample, err := p.SampleContainer(context.Background(), "c1")
	require.NoError(t, err)
	require.True(t, sample.FirstSample)
	require.Zero(t, sample.CPUPct)
}

func TestSampleContainer_ComputesCPUPctFromDelta(t *testing.T) {
	driver := capabilitytest.NewRuntimeDriver()
	calls := 0
	driver.StatsFunc = func(ctx context.Context, slotID string) (types.Sample, error) {
		calls++
		if calls == 1 {
			return types.Sample{CPUNanos: 1000, SystemNanos: 10000, OnlineCPUs: 2}, nil
		}
		return types.Sample{CPUNanos: 3000, SystemNanos: 20000, OnlineCPUs: 2}, nil
	}

	p := New(driver, config.Default().Profiler, "host-1")
	p.RegisterContainer("c1")

	_, err := p.SampleContainer(context.Background(), "c1")
	require.NoError(t, err)

	sample, err := p.SampleContainer(context.Background(), "c1")
	require.NoError(t, err)
	require.False(t, sample.FirstSample)
	// cpuDelta=2000, systemDelta=10000, online=2 -> 0.2*2*100 = 40
	require.InDelta(t, 40.0, sample.CPUPct, 0.001)
}

func TestWindowRetentionEvictsOldSamples(t *testing.T) {
	w := newWindow(time.Minute)
	now := time.Now()
	w.add(types.Sample{T: now.Add(-2 * time.Minute)})
	w.add(types.Sample{T: now})

	got := w.rollingWindow(now, time.Minute)
	require.Len(t, got, 1)
}

func TestRollingWindowBoundsToDuration(t *testing.T) {
	driver := capabilitytest.NewRuntimeDriver()
	p := New(driver, config.Default().Profiler, "host-1")
	p.RegisterContainer("c1")

	p.mu.RLock()
	w := p.windows["c1"]
	p.mu.RUnlock()

	now := time.Now()
	w.add(types.Sample{T: now.Add(-10 * time.Second)})
	w.add(types.Sample{T: now.Add(-1 * time.Second)})

	got := p.RollingWindow("c1", 5*time.Second)
	require.Len(t, got, 1)
}
