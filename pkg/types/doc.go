/*
Package types defines the data model shared by every component of the
resource-management control plane: job requests, resource profiles, resource
limit records, profiler samples, bottleneck events, forecasts, optimization
plans, and violation records.

This is a leaf package — it imports nothing but the standard library, and
every other package in this module imports it. Keeping it dependency-free
avoids the import cycles that would otherwise appear between the profiler,
enforcer, analyzer, forecaster, and optimizer, all of which need to speak
about the same Sample, ResourceLimitRecord, and Action shapes.

# Lifecycles

A ResourceLimitRecord is created on job admission, mutated only by the
Enforcer (apply, throttle, loosen), and destroyed on job completion or host
eviction — the Enforcer is its single writer (see pkg/enforcer and spec.md
§5's shared-state table).

A ResourceProfile is append-only: new samples update its rolling aggregates,
and it survives across jobs of the same class. It becomes Trusted only once
SampleCount reaches the configured minimum.

A BottleneckEvent is transient: it becomes active on first detection,
persists while the condition holds, and the Analyzer emits a resolved
notification when it is absent for one analysis tick.
*/
package types
