// Package analyzer rolls Profiler output into discrete, severity-labelled
// Bottleneck Events and a system-health score, on two cadences: a regular
// per-dimension threshold check, and a deep pass over recent history for
// recurring patterns, cross-metric correlation, anomalies, and trend.
package analyzer

import (
	"sync"
	"time"

	"github.com/cuemby/orbiter/pkg/config"
	"github.com/cuemby/orbiter/pkg/events"
	"github.com/cuemby/orbiter/pkg/log"
	"github.com/cuemby/orbiter/pkg/metrics"
	"github.com/cuemby/orbiter/pkg/types"
	"github.com/rs/zerolog"
)

// historyDepth bounds how many regular-tick snapshots the deep pass looks
// back over for pattern detection ("last N analyses", spec.md §4.3 leaves N
// unspecified; 10 keeps "recurring" meaningful without unbounded growth).
const historyDepth = 10

// remediationCooldown is the minimum interval between automatic
// remediation attempts for the same bottleneck type (spec.md §4.3).
const remediationCooldown = 5 * time.Minute

// baselineWindow is the sample count the anomaly model's running baseline
// is drawn from (spec.md §4.3: "30-sample baseline").
const baselineWindow = 30

// invertedTypes are bottleneck types where a lower value is worse (a cache
// hit rate falling, for example), so severity classification compares
// below the threshold rather than above it.
var invertedTypes = map[types.BottleneckType]bool{
	types.BottleneckCacheEfficiency: true,
}

// Metric is one current observation the Regular pass classifies.
type Metric struct {
	Type      types.BottleneckType
	Layer     types.Layer
	Value     float64
	Container string // optional, becomes BottleneckEvent.RelatedContainer
}

type tickSnapshot struct {
	severities map[types.Key]types.Severity
	values     map[types.Key]float64
}

// Analyzer owns the Active Bottleneck Map (spec.md §5); it is the sole
// writer.
type Analyzer struct {
	cfg    config.AnalyzerConfig
	broker *events.Broker
	logger zerolog.Logger

	mu               sync.Mutex
	active           map[types.Key]*types.BottleneckEvent
	history          []tickSnapshot
	lastRemediation  map[types.BottleneckType]time.Time
	baselines        map[types.Key][]float64
}

func New(cfg config.AnalyzerConfig, broker *events.Broker) *Analyzer {
	return &Analyzer{
		cfg:             cfg,
		broker:          broker,
		logger:          log.WithComponent("analyzer"),
		active:          map[types.Key]*types.BottleneckEvent{},
		lastRemediation: map[types.BottleneckType]time.Time{},
		baselines:       map[types.Key][]float64{},
	}
}

// Regular runs one threshold-check tick: classifies each metric's severity,
// updates the Active Bottleneck Map, emits active/resolved events for
// transitions, and returns any automatic remediation actions the newly
// active bottlenecks warrant.
func (a *Analyzer) Regular(now time.Time, metricsIn []Metric) (active []types.BottleneckEvent, actions []types.Action) {
	seen := map[types.Key]bool{}
	snap := tickSnapshot{severities: map[types.Key]types.Severity{}, values: map[types.Key]float64{}}

	a.mu.Lock()
	for _, m := range metricsIn {
		key := types.Key{Type: m.Type, Layer: m.Layer}
		seen[key] = true
		sev := a.classify(m.Type, m.Value)
		snap.severities[key] = sev
		snap.values[key] = m.Value
		a.recordBaselineLocked(key, m.Value)

		prior, existed := a.active[key]
		if sev == types.SeverityNormal {
			if existed {
				delete(a.active, key)
				a.mu.Unlock()
				a.publish(events.EventBottleneckResolved, key, m)
				a.mu.Lock()
			}
			continue
		}

		event := types.BottleneckEvent{
			T: now, Type: m.Type, Layer: m.Layer, Severity: sev,
			CurrentValue: m.Value, RelatedContainer: m.Container,
		}
		isNew := !existed || prior.Severity != sev
		a.active[key] = &event
		if isNew {
			a.mu.Unlock()
			a.publish(events.EventBottleneckActive, key, m)
			a.mu.Lock()
			active = append(active, event)
			if action, ok := a.remediationLocked(now, event); ok {
				actions = append(actions, action)
			}
		}
	}

	// Keys that were active but absent from this tick resolve.
	for key := range a.active {
		if !seen[key] {
			delete(a.active, key)
			a.mu.Unlock()
			a.publishKey(events.EventBottleneckResolved, key)
			a.mu.Lock()
		}
	}

	a.history = append(a.history, snap)
	if len(a.history) > historyDepth {
		a.history = a.history[len(a.history)-historyDepth:]
	}
	a.mu.Unlock()

	counts := map[[2]string]int{}
	for _, e := range a.ActiveBottlenecks() {
		counts[[2]string{string(e.Type), string(e.Severity)}]++
	}
	for k, c := range counts {
		metrics.BottlenecksActive.WithLabelValues(k[0], k[1]).Set(float64(c))
	}
	return active, actions
}

// classify returns the severity for value against the configured
// {warning, critical, severe} triplet for typ, accounting for types whose
// worse direction is "below threshold" rather than "above".
func (a *Analyzer) classify(typ types.BottleneckType, value float64) types.Severity {
	t, ok := a.cfg.Thresholds[string(typ)]
	if !ok {
		return types.SeverityNormal
	}
	if invertedTypes[typ] {
		switch {
		case value <= t.Severe:
			return types.SeveritySevere
		case value <= t.Critical:
			return types.SeverityCritical
		case value <= t.Warning:
			return types.SeverityWarning
		default:
			return types.SeverityNormal
		}
	}
	switch {
	case value >= t.Severe:
		return types.SeveritySevere
	case value >= t.Critical:
		return types.SeverityCritical
	case value >= t.Warning:
		return types.SeverityWarning
	default:
		return types.SeverityNormal
	}
}

func (a *Analyzer) recordBaselineLocked(key types.Key, value float64) {
	series := a.baselines[key]
	series = append(series, value)
	if len(series) > baselineWindow {
		series = series[len(series)-baselineWindow:]
	}
	a.baselines[key] = series
}

// remediationLocked picks and enqueues the automatic remediation action for
// a newly active bottleneck, honoring the 5-minute cooldown per type. Must
// be called with a.mu held.
func (a *Analyzer) remediationLocked(now time.Time, event types.BottleneckEvent) (types.Action, bool) {
	if last, ok := a.lastRemediation[event.Type]; ok && now.Sub(last) < remediationCooldown {
		return types.Action{}, false
	}

	var action types.Action
	switch event.Type {
	case types.BottleneckCacheEfficiency:
		action = types.Action{Kind: types.ActionResize, Target: event.RelatedContainer, Reason: "cache resize factor=1.5"}
	case types.BottleneckContainerStartup:
		action = types.Action{Kind: types.ActionReserveCapacity, Target: event.RelatedContainer, Reason: "grow pre-warm pool"}
	case types.BottleneckMemory:
		action = types.Action{Kind: types.ActionClearCaches, Target: event.RelatedContainer, Reason: "clear caches under memory pressure"}
	case types.BottleneckCPU:
		action = types.Action{Kind: types.ActionReduceConcurrency, Target: event.RelatedContainer, Reason: "lower host concurrency ceiling"}
	default:
		return types.Action{}, false
	}

	action.GeneratedAt = now
	action.Priority = severityToActionPriority(event.Severity)
	a.lastRemediation[event.Type] = now
	return action, true
}

func severityToActionPriority(s types.Severity) types.ActionPriority {
	switch s {
	case types.SeveritySevere, types.SeverityCritical:
		return types.ActionPriorityHigh
	case types.SeverityWarning:
		return types.ActionPriorityMedium
	default:
		return types.ActionPriorityLow
	}
}

// DeepReport is the output of a Deep pass.
type DeepReport struct {
	Recurring   []types.Key
	Correlated  [][2]types.Key
	Anomalies   []types.Key
	Trends      map[types.Key]float64 // per-key linear slope
}

// Deep runs the slower pattern/correlation/anomaly/trend pass over recent
// Regular-tick history.
func (a *Analyzer) Deep(now time.Time) DeepReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	report := DeepReport{Trends: map[types.Key]float64{}}
	if len(a.history) == 0 {
		return report
	}

	counts := map[types.Key]int{}
	for _, snap := range a.history {
		for key, sev := range snap.severities {
			if sev != types.SeverityNormal {
				counts[key]++
			}
		}
	}
	n := len(a.history)
	for key, c := range counts {
		if float64(c)/float64(n) > 0.5 {
			report.Recurring = append(report.Recurring, key)
		}
	}

	series := map[types.Key][]float64{}
	for _, snap := range a.history {
		for key, v := range snap.values {
			series[key] = append(series[key], v)
		}
	}
	keys := make([]types.Key, 0, len(series))
	for k := range series {
		keys = append(keys, k)
		report.Trends[k] = linearTrendSlope(series[k])
	}
	threshold := a.cfg.CorrelationThreshold
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			si, sj := series[keys[i]], series[keys[j]]
			if len(si) != len(sj) {
				continue
			}
			if r := pearson(si, sj); r > threshold || r < -threshold {
				report.Correlated = append(report.Correlated, [2]types.Key{keys[i], keys[j]})
			}
		}
	}

	for key, values := range a.baselines {
		if len(values) < 2 {
			continue
		}
		latest := values[len(values)-1]
		mean, stddev := meanStdDev(values[:len(values)-1])
		if stddev == 0 {
			continue
		}
		if z := zScore(latest, mean, stddev); z > a.cfg.AnomalySigma || z < -a.cfg.AnomalySigma {
			report.Anomalies = append(report.Anomalies, key)
		}
	}

	return report
}

// HealthScore computes S per spec.md §4.3: start at 100, subtract 30 per
// severe, 20 per critical, 10 per warning active bottleneck, clamp at 0.
func (a *Analyzer) HealthScore() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	score := 100.0
	for _, event := range a.active {
		switch event.Severity {
		case types.SeveritySevere:
			score -= 30
		case types.SeverityCritical:
			score -= 20
		case types.SeverityWarning:
			score -= 10
		}
	}
	if score < 0 {
		score = 0
	}
	metrics.HealthScore.Set(score)
	return score
}

// HealthStatus maps a score to its spec.md §4.3 band.
func HealthStatus(score float64) string {
	switch {
	case score >= 80:
		return "excellent"
	case score >= 60:
		return "good"
	case score >= 40:
		return "fair"
	case score >= 20:
		return "poor"
	default:
		return "critical"
	}
}

// ActiveBottlenecks returns a snapshot copy of the Active Bottleneck Map.
func (a *Analyzer) ActiveBottlenecks() []types.BottleneckEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]types.BottleneckEvent, 0, len(a.active))
	for _, e := range a.active {
		out = append(out, *e)
	}
	return out
}

func (a *Analyzer) publish(t events.EventType, key types.Key, m Metric) {
	if a.broker == nil {
		return
	}
	a.broker.Publish(&events.Event{Type: t, Data: map[string]any{
		"type": string(key.Type), "layer": string(key.Layer), "value": m.Value, "container": m.Container,
	}})
}

func (a *Analyzer) publishKey(t events.EventType, key types.Key) {
	if a.broker == nil {
		return
	}
	a.broker.Publish(&events.Event{Type: t, Data: map[string]any{
		"type": string(key.Type), "layer": string(key.Layer),
	}})
}
