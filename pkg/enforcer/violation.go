package enforcer

import (
	"context"
	"time"

	"github.com/cuemby/orbiter/pkg/types"
)

// minCPUQuotaFraction is the floor for throttle reduction: cpu.quota is
// never reduced below 10% of its original value, regardless of how many
// throttle steps have applied.
const minCPUQuotaFraction = 0.10

// throttleStepFraction is the fraction cpu.quota is reduced by on each
// throttle step.
const throttleStepFraction = 0.25

// Observe records a fresh usage observation for containerID and advances
// its violation state machine across all four dimensions, applying
// throttle/kill remediation through the driver as transitions demand.
// Callers (the orchestrator's enforcement check loop) call this once per
// enforcementCheckMs tick per tracked container.
func (e *Enforcer) Observe(ctx context.Context, containerID string, usage types.Usage) error {
	e.mu.Lock()
	record, ok := e.records[containerID]
	e.usage[containerID] = usage
	e.mu.Unlock()
	if !ok {
		return nil
	}

	now := usage.ObservedAt
	if now.IsZero() {
		now = time.Now()
	}

	checks := []struct {
		dim      types.ViolationDimension
		observed float64
		limit    float64
	}{
		{types.DimensionCPU, usage.CPUCores, cpuCoresEquivalentLimits(record.CPU)},
		{types.DimensionMemory, float64(usage.MemoryBytes), float64(record.Memory.LimitBytes)},
		{types.DimensionStorage, float64(usage.DiskBytes), float64(record.Storage.DiskBytes)},
		{types.DimensionNetwork, float64(usage.NetworkBps), float64(record.Network.IngressBps + record.Network.EgressBps)},
	}

	for _, c := range checks {
		if c.limit <= 0 {
			continue
		}
		if err := e.step(ctx, containerID, c.dim, c.observed, c.limit, now); err != nil {
			return err
		}
	}
	return nil
}

// step advances the (containerID, dimension) violation state machine by
// one observation, per spec.md §4.2:
//
//	compliant  -> violating  when observed > limit * (1+tolerance)
//	violating  -> compliant  after one compliant observation
//	violating  -> grace      immediately on entering violating
//	grace      -> throttled  when count >= violationThreshold and
//	                         now-graceStart >= gracePeriod
//	throttled  -> killed     on the next violation, if killOnViolation
func (e *Enforcer) step(ctx context.Context, containerID string, dim types.ViolationDimension, observed, limit float64, now time.Time) error {
	key := violationKey{containerID: containerID, dimension: dim}
	threshold := limit * admissionToleranceRatio
	isViolating := observed > threshold

	e.mu.Lock()
	v, tracked := e.violations[key]
	if !tracked {
		v = &types.ViolationRecord{ContainerID: containerID, Dimension: dim, State: types.StateCompliant}
		e.violations[key] = v
	}
	v.T = now
	v.Observed = observed
	v.Limit = limit
	prevState := v.State
	e.mu.Unlock()

	if !isViolating {
		if prevState != types.StateCompliant {
			e.mu.Lock()
			v.State = types.StateCompliant
			v.Count = 0
			e.mu.Unlock()
			e.notify(*v)
		}
		return nil
	}

	switch prevState {
	case types.StateCompliant:
		e.mu.Lock()
		v.State = types.StateViolating
		v.Count = 1
		e.mu.Unlock()
		e.notify(*v)
		e.mu.Lock()
		v.State = types.StateGrace
		v.GraceStart = now
		e.mu.Unlock()
		e.notify(*v)

	case types.StateViolating, types.StateGrace:
		e.mu.Lock()
		v.Count++
		readyToThrottle := v.Count >= e.cfg.ViolationThreshold && now.Sub(v.GraceStart) >= time.Duration(e.cfg.GracePeriodMs)*time.Millisecond
		e.mu.Unlock()
		if readyToThrottle {
			if err := e.throttle(ctx, containerID, dim); err != nil {
				return err
			}
			e.mu.Lock()
			v.State = types.StateThrottled
			e.mu.Unlock()
			e.notify(*v)
		}

	case types.StateThrottled:
		if e.cfg.KillOnViolation {
			if err := e.driver.Stop(ctx, containerID, true); err != nil {
				return err
			}
			e.mu.Lock()
			v.State = types.StateKilled
			e.mu.Unlock()
			e.notify(*v)
		}
	}
	return nil
}

// throttle reduces the container's cpu.quota by throttleStepFraction of its
// original value, never below minCPUQuotaFraction of the original, and
// reapplies limits through the driver. Every dimension, storage included, is
// throttled by this cpu.quota reduction; no filesystem is made read-only.
func (e *Enforcer) throttle(ctx context.Context, containerID string, dim types.ViolationDimension) error {
	e.mu.Lock()
	record, ok := e.records[containerID]
	original, hasOriginal := e.originals[containerID]
	e.mu.Unlock()
	if !ok || !hasOriginal || original.QuotaMicros <= 0 {
		return nil
	}

	floor := int64(float64(original.QuotaMicros) * minCPUQuotaFraction)
	reduced := record.CPU.QuotaMicros - int64(float64(original.QuotaMicros)*throttleStepFraction)
	if reduced < floor {
		reduced = floor
	}
	record.CPU.QuotaMicros = reduced

	if err := e.driver.ApplyLimits(ctx, containerID, record); err != nil {
		return err
	}

	e.mu.Lock()
	e.records[containerID] = record
	e.mu.Unlock()

	e.logger.Warn().
		Str("container_id", containerID).
		Str("dimension", string(dim)).
		Int64("quota_micros", reduced).
		Msg("throttled container")
	return nil
}
