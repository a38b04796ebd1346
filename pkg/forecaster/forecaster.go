// Package forecaster predicts future demand and per-job resource needs
// well enough for the Orchestrator to pre-commit capacity ahead of need.
// It composes four sub-models: a demand model (exponential smoothing with
// trend and hourly seasonality), a per-dimension resource model (k-nearest
// neighbours over job features), an anomaly model (z-score), and a burst
// predictor built on the anomaly model's history.
package forecaster

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/orbiter/pkg/capability"
	"github.com/cuemby/orbiter/pkg/config"
	"github.com/cuemby/orbiter/pkg/log"
	"github.com/cuemby/orbiter/pkg/metrics"
	"github.com/cuemby/orbiter/pkg/types"
	"github.com/rs/zerolog"
)

// defaultDiskBytes is the fallback disk prediction absent any trusted
// profile or k-NN match (spec.md §8 scenario 1: "10 GB default").
const defaultDiskBytes = 10 * 1024 * 1024 * 1024

// Conservative defaults for dimensions the spec does not pin a literal
// value for; used only when no profile and no k-NN match exist.
const (
	defaultCPUCores    = 0.5
	defaultMemoryBytes = 512 * 1024 * 1024
	defaultNetworkMbps = 10.0
)

// accuracyTolerance is the relative error under which a prediction counts
// as accurate (spec.md §4.4).
const accuracyTolerance = 0.2

// Features is the per-job feature vector used by the resource model's
// k-NN similarity search (spec.md §4.4).
type Features struct {
	RepositoryHash float64
	WorkflowHash   float64
	LabelCount     float64
	HourOfDay      float64
	DayOfWeek      float64
	Priority       float64
}

func (f Features) vector() []float64 {
	return []float64{f.RepositoryHash, f.WorkflowHash, f.LabelCount, f.HourOfDay, f.DayOfWeek, f.Priority}
}

// Prediction is the Forecaster's per-job resource estimate.
type Prediction struct {
	CPUCores    float64
	MemoryBytes int64
	DiskBytes   int64
	NetworkMbps float64
	Confidence  float64
	Source      string // "profile", "knn", or "defaults"
}

// completion is one recorded training example.
type completion struct {
	Features Features
	CPUCores float64
	Memory   int64
	Disk     int64
	Network  float64
	Duration time.Duration
	T        time.Time
}

// Forecaster owns Resource Profiles (spec.md §5): it is the sole writer.
type Forecaster struct {
	cfg     config.ForecasterConfig
	storage capability.Persistence
	logger  zerolog.Logger

	mu          sync.Mutex
	profiles    map[string]*types.ResourceProfile
	completions map[string][]completion // jobClass -> training examples
	demand      map[string]*demandModel // jobClass -> demand model
	anomalies   map[string]*anomalyDetector

	accurate int64
	total    int64

	stopCh chan struct{}
}

func New(cfg config.ForecasterConfig, storage capability.Persistence) *Forecaster {
	return &Forecaster{
		cfg:         cfg,
		storage:     storage,
		logger:      log.WithComponent("forecaster"),
		profiles:    map[string]*types.ResourceProfile{},
		completions: map[string][]completion{},
		demand:      map[string]*demandModel{},
		anomalies:   map[string]*anomalyDetector{},
	}
}

// Start restores persisted profiles and launches the background refit
// timer (default hourly).
func (f *Forecaster) Start(ctx context.Context) error {
	if f.storage != nil {
		profiles, err := f.storage.ListProfiles(ctx)
		if err != nil {
			f.logger.Warn().Err(err).Msg("profile restore failed, starting empty")
		} else {
			f.mu.Lock()
			for i := range profiles {
				p := profiles[i]
				f.profiles[p.JobClass] = &p
			}
			f.mu.Unlock()
		}
	}

	f.stopCh = make(chan struct{})
	interval := time.Duration(f.cfg.ModelUpdateMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Hour
	}
	go f.refitLoop(ctx, interval)
	return nil
}

func (f *Forecaster) Stop() {
	if f.stopCh != nil {
		close(f.stopCh)
	}
}

func (f *Forecaster) refitLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			f.refit(ctx)
		case <-f.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// refit persists the current profile set; the models themselves (demand,
// k-NN, anomaly) are updated incrementally as observations/completions
// arrive, so refit's job is durability, not recomputation.
func (f *Forecaster) refit(ctx context.Context) {
	f.mu.Lock()
	profiles := make([]types.ResourceProfile, 0, len(f.profiles))
	trusted := 0
	for _, p := range f.profiles {
		profiles = append(profiles, *p)
		if p.Trusted(f.cfg.MinSamples) {
			trusted++
		}
	}
	f.mu.Unlock()

	metrics.ProfilesTrustedTotal.Set(float64(trusted))

	if f.storage == nil {
		return
	}
	for _, p := range profiles {
		metrics.RefitsTotal.Inc()
		if err := f.storage.SaveProfile(ctx, p); err != nil {
			f.logger.Warn().Err(err).Str("job_class", p.JobClass).Msg("profile save failed")
		}
	}
}

// Predict returns the best available resource estimate for jobClass,
// falling back from a trusted profile to the k-NN resource model to
// package defaults.
func (f *Forecaster) Predict(jobClass string, features Features) Prediction {
	f.mu.Lock()
	stored, hasProfile := f.profiles[jobClass]
	trusted := stored.Trusted(f.cfg.MinSamples)
	var profile types.ResourceProfile
	if hasProfile {
		profile = *stored // copied under the lock; RecordCompletion mutates *stored
	}
	completions := append([]completion(nil), f.completions[jobClass]...)
	f.mu.Unlock()

	var pred Prediction
	switch {
	case hasProfile && trusted:
		pred = Prediction{
			CPUCores:    profile.CPUCores.P95,
			MemoryBytes: int64(profile.MemoryBytes.P95),
			DiskBytes:   int64(profile.DiskBytes.P95),
			NetworkMbps: profile.NetworkMbps.P95,
			Confidence:  0.9,
			Source:      "profile",
		}
	default:
		if knn, ok := knnPredict(features, completions); ok {
			pred = knn
		} else if hasProfile {
			pred = Prediction{
				CPUCores:    profile.CPUCores.Mean,
				MemoryBytes: int64(profile.MemoryBytes.Mean),
				DiskBytes:   int64(profile.DiskBytes.Mean),
				NetworkMbps: profile.NetworkMbps.Mean,
				Confidence:  0.5,
				Source:      "profile",
			}
		} else {
			pred = Prediction{
				CPUCores:    defaultCPUCores,
				MemoryBytes: defaultMemoryBytes,
				DiskBytes:   defaultDiskBytes,
				NetworkMbps: defaultNetworkMbps,
				Confidence:  0.3,
				Source:      "defaults",
			}
		}
	}

	// A dimension a job class has never actually reported (e.g. a class
	// trained only on cpu/memory/duration) falls back to its package
	// default rather than asserting zero, even when the rest of the
	// profile is trusted (spec.md §8 scenario 1).
	if pred.CPUCores == 0 {
		pred.CPUCores = defaultCPUCores
	}
	if pred.MemoryBytes == 0 {
		pred.MemoryBytes = defaultMemoryBytes
	}
	if pred.DiskBytes == 0 {
		pred.DiskBytes = defaultDiskBytes
	}
	if pred.NetworkMbps == 0 {
		pred.NetworkMbps = defaultNetworkMbps
	}
	return pred
}

// RecordCompletion updates the job class's Resource Profile and training
// set with one job's actual usage, and checks the pre-completion
// prediction (if any) for accuracy.
func (f *Forecaster) RecordCompletion(jobClass string, features Features, actual Prediction, duration time.Duration, priorPrediction *Prediction) {
	f.mu.Lock()
	defer f.mu.Unlock()

	profile, ok := f.profiles[jobClass]
	if !ok {
		profile = &types.ResourceProfile{JobClass: jobClass}
		f.profiles[jobClass] = profile
	}
	updateStat(&profile.CPUCores, actual.CPUCores)
	updateStat(&profile.MemoryBytes, float64(actual.MemoryBytes))
	updateStat(&profile.DiskBytes, float64(actual.DiskBytes))
	updateStat(&profile.NetworkMbps, actual.NetworkMbps)
	updateStat(&profile.DurationMs, float64(duration.Milliseconds()))
	profile.SampleCount++
	profile.UpdatedAt = time.Now()

	f.completions[jobClass] = append(f.completions[jobClass], completion{
		Features: features,
		CPUCores: actual.CPUCores,
		Memory:   actual.MemoryBytes,
		Disk:     actual.DiskBytes,
		Network:  actual.NetworkMbps,
		Duration: duration,
		T:        time.Now(),
	})

	if priorPrediction != nil {
		f.total++
		if accurate(priorPrediction.CPUCores, actual.CPUCores) &&
			accurate(float64(priorPrediction.MemoryBytes), float64(actual.MemoryBytes)) &&
			accurate(float64(priorPrediction.DiskBytes), float64(actual.DiskBytes)) &&
			accurate(priorPrediction.NetworkMbps, actual.NetworkMbps) {
			f.accurate++
		}
	}
}

// Accuracy returns the fraction of predictions classified accurate so far.
func (f *Forecaster) Accuracy() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.total == 0 {
		return 0
	}
	return float64(f.accurate) / float64(f.total)
}

func accurate(predicted, actual float64) bool {
	if actual == 0 {
		return predicted == 0
	}
	diff := predicted - actual
	if diff < 0 {
		diff = -diff
	}
	return diff/actual < accuracyTolerance
}

func updateStat(s *types.Stat, v float64) {
	// Running approximation: exact percentiles require the full sample
	// set, which profiles intentionally don't retain; the mean and the
	// percentiles all track as EWMA-smoothed estimates toward the new value.
	if s.Max == 0 && s.Min == 0 && s.Mean == 0 {
		s.Min, s.Max, s.Mean, s.P50, s.P95, s.P99 = v, v, v, v, v, v
		return
	}
	if v < s.Min {
		s.Min = v
	}
	if v > s.Max {
		s.Max = v
	}
	const alpha = 0.2
	s.Mean = s.Mean + alpha*(v-s.Mean)
	s.P50 = s.P50 + alpha*(v-s.P50)
	s.P95 = s.P95 + alpha*0.5*(v-s.P95) // percentiles converge slower than the mean
	s.P99 = s.P99 + alpha*0.25*(v-s.P99)
}

// ObserveDemand feeds one raw demand sample (e.g. total concurrent CPU
// cores requested) into jobClass's demand model.
func (f *Forecaster) ObserveDemand(jobClass string, t time.Time, value float64) {
	f.mu.Lock()
	dm, ok := f.demand[jobClass]
	if !ok {
		dm = newDemandModel()
		f.demand[jobClass] = dm
	}
	ad, ok := f.anomalies[jobClass]
	if !ok {
		ad = newAnomalyDetector()
		f.anomalies[jobClass] = ad
	}
	f.mu.Unlock()

	dm.update(t, value)
	ad.observe(t, value)
}

// DemandForecast returns the demand model's forecast series for jobClass
// out to the configured horizon.
func (f *Forecaster) DemandForecast(jobClass string, now time.Time) types.Forecast {
	f.mu.Lock()
	dm, ok := f.demand[jobClass]
	f.mu.Unlock()
	if !ok {
		return types.Forecast{Horizon: time.Duration(f.cfg.HorizonHours) * time.Hour}
	}
	return dm.forecast(now, f.cfg.HorizonHours)
}

// BurstHint reports whether jobClass's anomaly history predicts a burst
// within the configured horizon, per the burst predictor (spec.md §4.4).
func (f *Forecaster) BurstHint(jobClass string, now time.Time) (types.Action, bool) {
	f.mu.Lock()
	ad, ok := f.anomalies[jobClass]
	f.mu.Unlock()
	if !ok {
		return types.Action{}, false
	}
	return ad.burstHint(now, time.Duration(f.cfg.HorizonHours)*time.Hour, jobClass)
}
