package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Job / admission metrics
	JobsAdmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbiter_jobs_admitted_total",
			Help: "Total number of jobs admitted by job class",
		},
		[]string{"job_class"},
	)

	JobsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbiter_jobs_rejected_total",
			Help: "Total number of jobs rejected by reason",
		},
		[]string{"reason"},
	)

	JobsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orbiter_jobs_running",
			Help: "Number of jobs currently running",
		},
	)

	AdmissionLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orbiter_admission_latency_seconds",
			Help:    "Time taken to admit a job and apply its initial limits",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Profiler metrics
	SamplesCollectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbiter_samples_collected_total",
			Help: "Total number of resource samples collected",
		},
		[]string{"scope"}, // "system" or "container"
	)

	SamplingUnavailableTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbiter_sampling_unavailable_total",
			Help: "Total number of sampling ticks where a metric was unavailable",
		},
		[]string{"metric"},
	)

	ProfilesTrustedTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orbiter_profiles_trusted",
			Help: "Number of resource profiles that have crossed the trust threshold",
		},
	)

	// Enforcer metrics
	LimitsAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbiter_limits_applied_total",
			Help: "Total number of resource limit applications by dimension",
		},
		[]string{"dimension"},
	)

	ViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbiter_violations_total",
			Help: "Total number of quota violations observed by dimension and resulting state",
		},
		[]string{"dimension", "state"},
	)

	ContainersThrottled = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orbiter_containers_throttled",
			Help: "Number of containers currently throttled",
		},
	)

	ContainersKilledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orbiter_containers_killed_total",
			Help: "Total number of containers killed for sustained violations",
		},
	)

	// Analyzer metrics
	BottlenecksActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orbiter_bottlenecks_active",
			Help: "Number of active bottlenecks by type and severity",
		},
		[]string{"type", "severity"},
	)

	AnalysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orbiter_analysis_duration_seconds",
			Help:    "Time taken for an analysis cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"cadence"}, // "regular" or "deep"
	)

	HealthScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orbiter_health_score",
			Help: "Composite system health score: 100 minus a penalty per active bottleneck",
		},
	)

	// Forecaster metrics
	ForecastConfidence = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orbiter_forecast_confidence",
			Help: "Most recent forecast confidence by job class",
		},
		[]string{"job_class"},
	)

	ForecastErrorRatio = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orbiter_forecast_error_ratio",
			Help: "Rolling forecast error ratio (actual vs predicted) by job class",
		},
		[]string{"job_class"},
	)

	RefitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orbiter_forecaster_refits_total",
			Help: "Total number of forecaster model refits",
		},
	)

	// Optimizer / orchestrator metrics
	PlansGeneratedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orbiter_plans_generated_total",
			Help: "Total number of optimization plans generated",
		},
	)

	PlanActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbiter_plan_actions_total",
			Help: "Total number of plan actions by kind and outcome",
		},
		[]string{"kind", "outcome"}, // outcome: "applied" or "failed"
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orbiter_cycle_duration_seconds",
			Help:    "Time taken for a full observe-analyze-predict-plan-enforce cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbiter_cycles_total",
			Help: "Total number of orchestration cycles by outcome",
		},
		[]string{"outcome"}, // "completed", "deadline_exceeded", "error"
	)

	// Election metrics
	ElectionIsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orbiter_election_is_leader",
			Help: "Whether this instance currently holds the optimize-cycle leadership (1 = leader, 0 = follower)",
		},
	)

	ElectionPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orbiter_election_peers_total",
			Help: "Total number of election peers",
		},
	)

	// Component health
	ComponentHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orbiter_component_healthy",
			Help: "Whether a component is currently healthy (1 = healthy, 0 = unhealthy)",
		},
		[]string{"component"},
	)
)

func init() {
	prometheus.MustRegister(JobsAdmittedTotal)
	prometheus.MustRegister(JobsRejectedTotal)
	prometheus.MustRegister(JobsRunning)
	prometheus.MustRegister(AdmissionLatency)

	prometheus.MustRegister(SamplesCollectedTotal)
	prometheus.MustRegister(SamplingUnavailableTotal)
	prometheus.MustRegister(ProfilesTrustedTotal)

	prometheus.MustRegister(LimitsAppliedTotal)
	prometheus.MustRegister(ViolationsTotal)
	prometheus.MustRegister(ContainersThrottled)
	prometheus.MustRegister(ContainersKilledTotal)

	prometheus.MustRegister(BottlenecksActive)
	prometheus.MustRegister(AnalysisDuration)
	prometheus.MustRegister(HealthScore)

	prometheus.MustRegister(ForecastConfidence)
	prometheus.MustRegister(ForecastErrorRatio)
	prometheus.MustRegister(RefitsTotal)

	prometheus.MustRegister(PlansGeneratedTotal)
	prometheus.MustRegister(PlanActionsTotal)
	prometheus.MustRegister(CycleDuration)
	prometheus.MustRegister(CyclesTotal)

	prometheus.MustRegister(ElectionIsLeader)
	prometheus.MustRegister(ElectionPeers)

	prometheus.MustRegister(ComponentHealthy)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
