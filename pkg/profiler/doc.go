/*
Package profiler samples host and per-container resource usage on
independent timers and exposes it as a rolling window (a bounded snapshot)
and a lazy stream (replay-then-tail, one goroutine per subscriber).

CPU percentage for a container is computed from the delta between two
consecutive raw counter snapshots reported by the RuntimeDriver
(cpuDelta/systemDelta × onlineCPUs × 100); the first sample for any source
carries FirstSample=true and CPUPct=0 rather than a bogus ratio computed
against no baseline.

Sampling never blocks its caller: a tick that overruns its interval causes
the next tick to be skipped, not queued, so the profiler's memory use has a
hard bound even under sustained slow collection.
*/
package profiler
