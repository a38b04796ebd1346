/*
Package metrics defines and registers the control plane's Prometheus
metrics and its health/readiness/liveness HTTP handlers.

Every metric is registered at package init against the default Prometheus
registry and exposed for scraping via Handler(). Components call the
package vars directly rather than going through an indirection layer —
JobsAdmittedTotal.WithLabelValues(...).Inc() right where the job is
admitted, CycleDuration.Observe(...) right where a cycle finishes.

# Metric families

Admission (pkg/orchestrator):
  - orbiter_jobs_admitted_total, orbiter_jobs_rejected_total{reason}
  - orbiter_jobs_running
  - orbiter_admission_latency_seconds

Profiling (pkg/profiler):
  - orbiter_samples_collected_total{scope}, orbiter_sampling_unavailable_total{metric}
  - orbiter_profiles_trusted

Enforcement (pkg/enforcer):
  - orbiter_limits_applied_total{dimension}, orbiter_violations_total{dimension,state}
  - orbiter_containers_throttled, orbiter_containers_killed_total

Analysis (pkg/analyzer):
  - orbiter_bottlenecks_active{type,severity}
  - orbiter_analysis_duration_seconds{cadence}
  - orbiter_health_score

Forecasting (pkg/forecaster):
  - orbiter_forecast_confidence{job_class}, orbiter_forecast_error_ratio{job_class}
  - orbiter_forecaster_refits_total

Optimization (pkg/optimizer, pkg/orchestrator):
  - orbiter_plans_generated_total, orbiter_plan_actions_total{kind,outcome}
  - orbiter_cycle_duration_seconds, orbiter_cycles_total{outcome}

Leader election (pkg/election):
  - orbiter_election_is_leader, orbiter_election_peers_total

Component health (pkg/orchestrator health supervisor):
  - orbiter_component_healthy{component}

# Usage

	timer := metrics.NewTimer()
	// ... run the cycle ...
	timer.ObserveDuration(metrics.CycleDuration)

	metrics.JobsAdmittedTotal.WithLabelValues(jobClass).Inc()

HealthHandler, ReadyHandler, and LivenessHandler back the /healthz, /readyz,
and /livez endpoints cmd/orchestrator serves alongside /metrics.
*/
package metrics
