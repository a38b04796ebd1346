/*
Package enforcer applies Resource Limit Records through a
capability.RuntimeDriver and watches for violations.

It is the sole writer of two pieces of shared state (spec.md §5): the
Resource Limit Record for each tracked container, and the Allocated
Totals for each host. Apply and Remove hold the package's lock only long
enough to read and update that in-memory bookkeeping; the RuntimeDriver
call itself, a suspension point, happens with the lock released.

Violation handling is a per-(container,dimension) state machine driven by
Observe, one observation at a time:

	compliant -> violating -> grace -> throttled -> killed

A container returns to compliant from any non-compliant state as soon as
one observation falls back within tolerance. Throttling reduces
cpu.quota by 25% of its original value per step, floored at 10% of the
original; a container already throttled is killed on its next violation
if killOnViolation is set.

Storage quotas are delegated to pkg/enforcer/quotadriver, which picks a
backend (project quota, subvolume quota, dataset quota, or directory-size
monitoring) by filesystem type. Network shaping is delegated to
pkg/enforcer/bandwidth, which tracks a token bucket for accounting and,
where a shaping hook exists, installs a tc class; otherwise bandwidth
violations fall back through the same cpu.quota throttle path as CPU.
*/
package enforcer
