package orchestrator

import (
	"context"

	"github.com/cuemby/orbiter/pkg/events"
	"github.com/cuemby/orbiter/pkg/forecaster"
	"github.com/cuemby/orbiter/pkg/metrics"
)

// Complete reports a job's actual outcome, trains the Forecaster, and
// releases the container's reserved state. Idempotent: completing a
// handle whose container is already untracked is a no-op.
func (o *Orchestrator) Complete(ctx context.Context, handle Handle, outcome Outcome) error {
	o.mu.Lock()
	job, tracked := o.running[handle.ContainerID]
	if tracked {
		delete(o.running, handle.ContainerID)
	}
	o.mu.Unlock()

	if !tracked {
		return nil
	}

	actual := forecaster.Prediction{
		CPUCores:    outcome.CPUCores,
		MemoryBytes: outcome.MemoryBytes,
		DiskBytes:   outcome.DiskBytes,
		NetworkMbps: outcome.NetworkMbps,
	}
	o.forecaster.RecordCompletion(job.jobClass, job.features, actual, outcome.Duration, &job.predicted)

	if err := o.enforcer.Remove(ctx, handle.ContainerID); err != nil {
		o.logger.Warn().Err(err).Str("container_id", handle.ContainerID).Msg("enforcer remove failed")
	}
	o.profiler.UnregisterContainer(handle.ContainerID)
	if err := o.slots.Release(ctx, handle.ContainerID); err != nil {
		o.logger.Warn().Err(err).Str("container_id", handle.ContainerID).Msg("slot release failed")
	}

	metrics.JobsRunning.Dec()
	o.publish(events.EventJobCompleted, map[string]any{
		"job_id":       handle.JobID,
		"container_id": handle.ContainerID,
		"duration_ms":  outcome.Duration.Milliseconds(),
	})

	return nil
}
