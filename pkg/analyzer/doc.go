/*
Package analyzer rolls Profiler output into discrete Bottleneck Events and
a system-health score, on two cadences.

Regular (default every 60s) classifies each incoming Metric against its
configured {warning, critical, severe} thresholds, updates the Active
Bottleneck Map, and emits bottleneck_active / bottleneck_resolved events on
state transitions. Newly active bottlenecks whose type hasn't had a
remediation attempt in the last 5 minutes get an automatic Action enqueued.

Deep (default every 300s) looks back over the last few Regular ticks for
recurring bottlenecks, Pearson-correlated metric pairs, z-score anomalies
against a 30-sample baseline, and a linear trend per metric.

HealthScore starts at 100 and subtracts 30/20/10 per active severe/
critical/warning bottleneck, reported through HealthStatus's five-band
scale (excellent/good/fair/poor/critical).
*/
package analyzer
