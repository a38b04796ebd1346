package forecaster

import (
	"testing"
	"time"

	"github.com/cuemby/orbiter/pkg/capability/capabilitytest"
	"github.com/cuemby/orbiter/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestPredict_UntrustedProfileFallsBackToDefaults(t *testing.T) {
	f := New(config.Default().Forecaster, capabilitytest.NewPersistence())
	pred := f.Predict("acme/build", Features{})
	require.Equal(t, "defaults", pred.Source)
	require.Equal(t, int64(defaultDiskBytes), pred.DiskBytes)
}

func TestPredict_TrustedProfileReturnsP95(t *testing.T) {
	f := New(config.Default().Forecaster, capabilitytest.NewPersistence())
	for i := 0; i < 12; i++ {
		f.RecordCompletion("acme/build", Features{}, Prediction{CPUCores: 1.0, MemoryBytes: 1024 * 1024 * 1024}, 180*time.Second, nil)
	}

	pred := f.Predict("acme/build", Features{})
	require.Equal(t, "profile", pred.Source)
	require.InDelta(t, 0.9, pred.Confidence, 0.0001)
}

func TestProfileNotTrustedBelowMinSamples(t *testing.T) {
	f := New(config.Default().Forecaster, capabilitytest.NewPersistence())
	for i := 0; i < int(f.cfg.MinSamples)-1; i++ {
		f.RecordCompletion("acme/build", Features{}, Prediction{CPUCores: 1.0}, time.Second, nil)
	}

	f.mu.Lock()
	trusted := f.profiles["acme/build"].Trusted(f.cfg.MinSamples)
	f.mu.Unlock()
	require.False(t, trusted)
}

func TestDemandForecast_ConfidenceNonIncreasing(t *testing.T) {
	f := New(config.Default().Forecaster, capabilitytest.NewPersistence())
	now := time.Now()
	for i := 0; i < 48; i++ {
		f.ObserveDemand("acme/build", now.Add(time.Duration(i)*time.Hour), 10+float64(i%5))
	}

	forecast := f.DemandForecast("acme/build", now.Add(48*time.Hour))
	require.True(t, forecast.MonotonicConfidence())
	require.NotEmpty(t, forecast.Series)
}

func TestBurstHint_RequiresMinimumAnomalies(t *testing.T) {
	f := New(config.Default().Forecaster, capabilitytest.NewPersistence())
	now := time.Now()
	for i := 0; i < 20; i++ {
		f.ObserveDemand("acme/build", now.Add(time.Duration(i)*time.Minute), 10)
	}
	_, ok := f.BurstHint("acme/build", now.Add(20*time.Minute))
	require.False(t, ok)
}

func TestKNNPredict_RequiresSimilarityAboveThreshold(t *testing.T) {
	completions := []completion{
		{Features: Features{RepositoryHash: 1, WorkflowHash: 1, LabelCount: 2, HourOfDay: 10, DayOfWeek: 1, Priority: 1}, CPUCores: 2.0},
	}
	_, ok := knnPredict(Features{RepositoryHash: 1, WorkflowHash: 1, LabelCount: 2, HourOfDay: 10, DayOfWeek: 1, Priority: 1}, completions)
	require.True(t, ok)

	_, ok = knnPredict(Features{}, completions)
	require.False(t, ok)
}
