package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/orbiter/pkg/capability"
	"github.com/cuemby/orbiter/pkg/events"
	"github.com/cuemby/orbiter/pkg/forecaster"
	"github.com/cuemby/orbiter/pkg/metrics"
	"github.com/cuemby/orbiter/pkg/types"
	"github.com/google/uuid"
)

// cpuBufferRatio and memoryBufferRatio are the headroom added over a
// predicted point estimate before it becomes a Resource Limit Record
// (spec.md §8 scenario 1: a 1.0-core trained profile materializes as
// cpu.quota=120000/period=100000, i.e. +20%).
const (
	cpuBufferRatio    = 1.2
	memoryBufferRatio = 1.2
	memoryGridBytes   = 256 * 1024 * 1024 // memory limits round up to a 256MB grid
	cpuPeriodMicros   = 100000
)

// Admit predicts req's resource needs, reserves a pre-warmed slot, applies
// bounded limits, and returns a Handle tracking the running container.
// Rejection (ErrInsufficientCapacity, ErrInvalidLimits) leaves no residue:
// any slot acquired before the failing step is released.
func (o *Orchestrator) Admit(ctx context.Context, req types.JobRequest) (Handle, error) {
	start := time.Now()
	defer func() {
		metrics.AdmissionLatency.Observe(time.Since(start).Seconds())
	}()

	if req.JobID == "" {
		req.JobID = newJobID()
	}

	features := forecaster.Features{
		RepositoryHash: hashFNV(req.Repository),
		WorkflowHash:   hashFNV(req.Workflow),
		LabelCount:     float64(len(req.Labels)),
		HourOfDay:      float64(req.CreatedAt.Hour()),
		DayOfWeek:      float64(req.CreatedAt.Weekday()),
		Priority:       float64(req.Priority.Rank()),
	}

	pred := o.forecaster.Predict(req.JobClass, features)
	if req.Hints != nil {
		pred = applyHints(pred, *req.Hints)
	}

	record := materializeRecord(req, pred)

	hint := types.ResourceRequirements{
		CPUCores:    pred.CPUCores,
		MemoryBytes: record.Memory.LimitBytes,
		DiskBytes:   record.Storage.DiskBytes,
		NetworkMbps: pred.NetworkMbps,
	}
	slotID, err := o.slots.Acquire(ctx, hint)
	if err != nil {
		metrics.JobsRejectedTotal.WithLabelValues("slot_unavailable").Inc()
		return Handle{}, fmt.Errorf("acquire slot: %w", err)
	}
	record.ContainerID = slotID

	o.mu.Lock()
	host := o.hostCapacity
	o.mu.Unlock()

	if err := o.enforcer.Apply(ctx, o.hostID, req.Priority, record, host); err != nil {
		_ = o.slots.Release(ctx, slotID)
		reason := "invalid_limits"
		if errors.Is(err, capability.ErrInsufficientCapacity) {
			reason = "insufficient_capacity"
		}
		metrics.JobsRejectedTotal.WithLabelValues(reason).Inc()
		return Handle{}, err
	}

	o.profiler.RegisterContainer(slotID)

	now := time.Now()
	handle := Handle{
		JobID:       req.JobID,
		ContainerID: slotID,
		HostID:      o.hostID,
		AdmittedAt:  now,
	}

	o.mu.Lock()
	o.running[slotID] = trackedJob{
		jobClass:    req.JobClass,
		containerID: slotID,
		priority:    req.Priority,
		features:    features,
		predicted:   pred,
		admittedAt:  now,
	}
	o.mu.Unlock()

	metrics.JobsAdmittedTotal.WithLabelValues(req.JobClass).Inc()
	metrics.JobsRunning.Inc()
	o.publish(events.EventJobAdmitted, map[string]any{
		"job_id":       req.JobID,
		"container_id": slotID,
		"job_class":    req.JobClass,
	})

	return handle, nil
}

// materializeRecord converts a point prediction into a bounded
// ResourceLimitRecord: CPU gets a 20% headroom buffer over the predicted
// core count; memory gets a 20% buffer rounded up to the nearest 256MB grid
// line, so two job classes with similar predicted usage converge on shared
// limit values instead of a unique byte count per job.
func materializeRecord(req types.JobRequest, pred forecaster.Prediction) types.ResourceLimitRecord {
	quota := int64(pred.CPUCores * cpuBufferRatio * cpuPeriodMicros)

	memLimit := roundUpToGrid(int64(float64(pred.MemoryBytes)*memoryBufferRatio), memoryGridBytes)

	return types.ResourceLimitRecord{
		CPU: types.CPULimits{
			QuotaMicros:  quota,
			PeriodMicros: cpuPeriodMicros,
		},
		Memory: types.MemoryLimits{
			LimitBytes:       memLimit,
			ReservationBytes: int64(float64(pred.MemoryBytes) * 0.8),
			SwapBytes:        -1,
		},
		Storage: types.StorageLimits{
			DiskBytes: pred.DiskBytes,
			DirectoryQuotas: map[string]int64{
				"workspace": pred.DiskBytes,
			},
		},
		Network: types.NetworkLimits{
			IngressBps: int64(pred.NetworkMbps * 1e6 / 8),
			EgressBps:  int64(pred.NetworkMbps * 1e6 / 8),
		},
		PidsLimit: 4096,
		IOWeight:  100,
	}
}

func roundUpToGrid(v, grid int64) int64 {
	if v <= 0 {
		return grid
	}
	if v%grid == 0 {
		return v
	}
	return (v/grid + 1) * grid
}

// applyHints overrides the Forecaster's prediction with any explicit
// resource hint the caller supplied, which always takes precedence.
func applyHints(pred forecaster.Prediction, hints types.ResourceRequirements) forecaster.Prediction {
	if hints.CPUCores > 0 {
		pred.CPUCores = hints.CPUCores
	}
	if hints.MemoryBytes > 0 {
		pred.MemoryBytes = hints.MemoryBytes
	}
	if hints.DiskBytes > 0 {
		pred.DiskBytes = hints.DiskBytes
	}
	if hints.NetworkMbps > 0 {
		pred.NetworkMbps = hints.NetworkMbps
	}
	pred.Source = "hint"
	pred.Confidence = 1.0
	return pred
}

// hashFNV folds s into a small positive float for use as a k-NN feature
// dimension; it need not be cryptographically distributed, only stable.
func hashFNV(s string) float64 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return float64(h % 1000)
}

// newJobID generates a job identifier when the caller didn't supply one.
func newJobID() string {
	return uuid.NewString()
}
