package forecaster

import (
	"math"
	"sync"
	"time"

	"github.com/cuemby/orbiter/pkg/types"
)

// burstSensitivity is the z-score magnitude that classifies a sample as a
// spike or drop (spec.md §4.4 default 2.0). Not part of the closed
// configuration schema (§6 Forecaster options do not list it).
const burstSensitivity = 2.0

// minAnomaliesForBurst is the minimum recent anomaly count before the
// burst predictor will emit a hint (spec.md §4.4: "given ≥ 3 recent
// anomalies").
const minAnomaliesForBurst = 3

// burstConfidence is the fixed confidence the burst predictor reports
// (spec.md §4.4).
const burstConfidence = 0.7

// anomalyKind classifies a flagged sample.
type anomalyKind string

const (
	anomalySpike anomalyKind = "spike"
	anomalyDrop  anomalyKind = "drop"
)

type anomalyObservation struct {
	t    time.Time
	kind anomalyKind
}

// anomalyDetector tracks a running mean/variance (Welford) for one job
// class's demand series and flags samples whose z-score exceeds
// burstSensitivity.
type anomalyDetector struct {
	mu sync.Mutex

	mean  float64
	m2    float64
	count int64

	recent []anomalyObservation
}

func newAnomalyDetector() *anomalyDetector {
	return &anomalyDetector{}
}

// observe folds value into the running baseline and records an anomaly if
// its z-score exceeds burstSensitivity.
func (a *anomalyDetector) observe(t time.Time, value float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.count++
	delta := value - a.mean
	a.mean += delta / float64(a.count)
	a.m2 += delta * (value - a.mean)

	if a.count < 2 {
		return
	}
	stddev := math.Sqrt(a.m2 / float64(a.count-1))
	if stddev == 0 {
		return
	}
	z := (value - a.mean) / stddev
	if z > burstSensitivity {
		a.recent = append(a.recent, anomalyObservation{t: t, kind: anomalySpike})
	} else if z < -burstSensitivity {
		a.recent = append(a.recent, anomalyObservation{t: t, kind: anomalyDrop})
	}
	if len(a.recent) > 50 {
		a.recent = a.recent[len(a.recent)-50:]
	}
}

// burstHint implements the burst predictor (spec.md §4.4): given at least
// minAnomaliesForBurst recent anomalies, it computes the mean interval
// between them and, if the next predicted anomaly falls within horizon,
// emits a scale_up hint.
func (a *anomalyDetector) burstHint(now time.Time, horizon time.Duration, target string) (types.Action, bool) {
	a.mu.Lock()
	recent := append([]anomalyObservation(nil), a.recent...)
	a.mu.Unlock()

	if len(recent) < minAnomaliesForBurst {
		return types.Action{}, false
	}

	var totalGap time.Duration
	for i := 1; i < len(recent); i++ {
		totalGap += recent[i].t.Sub(recent[i-1].t)
	}
	meanGap := totalGap / time.Duration(len(recent)-1)
	if meanGap <= 0 {
		return types.Action{}, false
	}

	last := recent[len(recent)-1].t
	nextPredicted := last.Add(meanGap)
	if nextPredicted.After(now.Add(horizon)) {
		return types.Action{}, false
	}

	return types.Action{
		Kind:        types.ActionScaleUp,
		Target:      target,
		Reason:      "burst predicted from recent anomaly interval",
		Priority:    types.ActionPriorityMedium,
		Confidence:  burstConfidence,
		GeneratedAt: now,
	}, true
}
