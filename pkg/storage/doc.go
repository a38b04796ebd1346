/*
Package storage implements capability.Persistence over embedded BoltDB.

Three buckets hold everything the core persists: profiles (one entry per job
class, the Forecaster/Profiler's rolling statistics), history_executions
(one entry per orchestration cycle, keyed by zero-padded nanosecond
timestamp so a cursor walk returns chronological order), and baselines (mean/
stddev/sample-count per anomaly-detection metric).

Writes are fire-and-forget: BoltStore logs a failed write rather than
returning it to the caller, matching the capability's documented contract
that persistence failures must never block the control loop. Reads return
errors normally since a failed read (as opposed to a failed write) usually
means the caller needs to fall back to defaults, which only it can decide.
*/
package storage
