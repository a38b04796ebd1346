package forecaster

import (
	"math"
	"sync"
	"time"

	"github.com/cuemby/orbiter/pkg/types"
)

// smoothingAlpha and smoothingBeta are the exponential smoothing level and
// trend coefficients (spec.md §4.4).
const (
	smoothingAlpha = 0.3
	smoothingBeta  = 0.1
)

// confidenceDecayPerStep is the linear confidence decay per hour of
// forecast horizon (spec.md §4.4: "decayed linearly by 1% per step").
const confidenceDecayPerStep = 0.01

const seasonalSlots = 24

// demandModel is one job class's Holt-style exponential smoothing model
// with trend and 24-slot (hour-of-day) seasonality.
type demandModel struct {
	mu sync.Mutex

	initialized bool
	level       float64
	trend       float64

	seasonal      [seasonalSlots]float64
	seasonalCount [seasonalSlots]int64

	residualMean   float64
	residualM2     float64
	residualCount  int64
}

func newDemandModel() *demandModel {
	m := &demandModel{}
	for i := range m.seasonal {
		m.seasonal[i] = 1.0
	}
	return m
}

// update folds one new observation into the model (spec.md §4.4):
//
//	levelₜ = α·xₜ + (1-α)·(levelₜ₋₁ + trendₜ₋₁)
//	trendₜ = β·(levelₜ − levelₜ₋₁) + (1-β)·trendₜ₋₁
func (m *demandModel) update(t time.Time, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hour := t.Hour()
	factor := m.seasonal[hour]
	if factor <= 0 {
		factor = 1.0
	}
	deseasonalized := value / factor

	if !m.initialized {
		m.level = deseasonalized
		m.trend = 0
		m.initialized = true
	} else {
		prevLevel := m.level
		m.level = smoothingAlpha*deseasonalized + (1-smoothingAlpha)*(m.level+m.trend)
		m.trend = smoothingBeta*(m.level-prevLevel) + (1-smoothingBeta)*m.trend
	}

	if m.level != 0 {
		ratio := value / m.level
		n := m.seasonalCount[hour]
		m.seasonal[hour] = (m.seasonal[hour]*float64(n) + ratio) / float64(n+1)
		m.seasonalCount[hour] = n + 1
	}

	predicted := m.level * factor
	residual := value - predicted
	m.residualCount++
	delta := residual - m.residualMean
	m.residualMean += delta / float64(m.residualCount)
	m.residualM2 += delta * (residual - m.residualMean)
}

// forecast produces one point per hour out to horizonHours, with
// confidence decaying linearly by 1% per step and never increasing
// (spec.md §8: Forecast.MonotonicConfidence).
func (m *demandModel) forecast(now time.Time, horizonHours int64) types.Forecast {
	m.mu.Lock()
	defer m.mu.Unlock()

	variance := 0.0
	if m.residualCount > 1 {
		variance = m.residualM2 / float64(m.residualCount-1)
	}
	base := 0.5
	if m.level != 0 {
		c := 1 - variance/math.Abs(m.level)
		if c > base {
			base = c
		}
	}
	if base > 1 {
		base = 1
	}

	points := make([]types.ForecastPoint, 0, horizonHours)
	confidence := base
	for step := int64(1); step <= horizonHours; step++ {
		ts := now.Add(time.Duration(step) * time.Hour)
		hour := ts.Hour()
		factor := m.seasonal[hour]
		if factor <= 0 {
			factor = 1.0
		}
		value := (m.level + m.trend*float64(step)) * factor
		if value < 0 {
			value = 0
		}
		confidence = base - confidenceDecayPerStep*float64(step)
		if confidence < 0 {
			confidence = 0
		}
		points = append(points, types.ForecastPoint{T: ts, Value: value, Confidence: confidence})
	}

	return types.Forecast{
		Horizon:   time.Duration(horizonHours) * time.Hour,
		Series:    points,
		MeanTrend: m.trend,
		Seasonality: append([]float64(nil), m.seasonal[:]...),
	}
}
