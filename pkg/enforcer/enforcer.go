// Package enforcer owns the Resource Limit Record for every admitted
// container across all four dimensions (CPU, memory, storage, network),
// applies them through a capability.RuntimeDriver, and detects and
// remediates violations.
package enforcer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/orbiter/pkg/capability"
	"github.com/cuemby/orbiter/pkg/config"
	"github.com/cuemby/orbiter/pkg/enforcer/quotadriver"
	"github.com/cuemby/orbiter/pkg/events"
	"github.com/cuemby/orbiter/pkg/log"
	"github.com/cuemby/orbiter/pkg/metrics"
	"github.com/cuemby/orbiter/pkg/types"
	"github.com/rs/zerolog"
)

// admissionToleranceRatio is the 1+tolerance multiplier used for the
// compliant->violating threshold (spec §4.2, tolerance=0.1).
const admissionToleranceRatio = 1.1

// containerMeta is the bookkeeping the Enforcer needs alongside a
// container's Resource Limit Record: which host it's on (for allocated
// totals) and its priority (for tie-breaking simultaneous violations).
type containerMeta struct {
	hostID   string
	priority types.Priority
}

// Enforcer is the single writer of Resource Limit Records and per-host
// Allocated Totals (spec §5).
type Enforcer struct {
	driver   capability.RuntimeDriver
	quotas   *quotadriver.Registry
	broker   *events.Broker
	cfg      config.EnforcerConfig
	logger   zerolog.Logger

	mu         sync.Mutex
	records    map[string]types.ResourceLimitRecord
	meta       map[string]containerMeta
	totals     map[string]types.AllocatedTotals // hostID -> totals
	originals  map[string]types.CPULimits       // containerID -> baseline CPU limits, for throttle floor math
	usage      map[string]types.Usage
	violations map[violationKey]*types.ViolationRecord

	handlersMu sync.Mutex
	handlers   []func(types.ViolationRecord)
}

type violationKey struct {
	containerID string
	dimension   types.ViolationDimension
}

// New creates an Enforcer.
func New(driver capability.RuntimeDriver, quotas *quotadriver.Registry, broker *events.Broker, cfg config.EnforcerConfig) *Enforcer {
	return &Enforcer{
		driver:     driver,
		quotas:     quotas,
		broker:     broker,
		cfg:        cfg,
		logger:     log.WithComponent("enforcer"),
		records:    map[string]types.ResourceLimitRecord{},
		meta:       map[string]containerMeta{},
		totals:     map[string]types.AllocatedTotals{},
		originals:  map[string]types.CPULimits{},
		usage:      map[string]types.Usage{},
		violations: map[violationKey]*types.ViolationRecord{},
	}
}

// Apply idempotently applies all four dimensions of record to containerID,
// atomically from the caller's view, after an admission bounds check
// against the host's available capacity. On success it updates the
// host's allocated totals exactly once (a re-apply to an already-tracked
// container replaces, not adds to, its reservation).
func (e *Enforcer) Apply(ctx context.Context, hostID string, priority types.Priority, record types.ResourceLimitRecord, host types.HostCapacity) error {
	if err := validateLimits(record); err != nil {
		return fmt.Errorf("%w: %v", capability.ErrInvalidLimits, err)
	}

	e.mu.Lock()
	prior, existed := e.records[record.ContainerID]
	totals := e.totals[hostID]
	if existed {
		totals = subtractReservation(totals, prior)
	}
	candidate := addReservation(totals, record)
	avail := types.Available(host, totals)
	e.mu.Unlock()

	if cpuCoresEquivalentLimits(record.CPU) > avail.CPUCores || record.Memory.ReservationBytes > avail.MemoryBytes {
		return capability.ErrInsufficientCapacity
	}

	if err := e.driver.ApplyLimits(ctx, record.ContainerID, record); err != nil {
		return fmt.Errorf("apply limits: %w", err)
	}

	for dir, quota := range record.Storage.DirectoryQuotas {
		if err := e.quotas.SubQuota().SetQuota(dir, quota); err != nil {
			e.logger.Warn().Err(err).Str("container_id", record.ContainerID).Str("dir", dir).Msg("sub-quota apply failed")
		}
	}

	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now

	e.mu.Lock()
	e.records[record.ContainerID] = record
	e.meta[record.ContainerID] = containerMeta{hostID: hostID, priority: priority}
	if !existed {
		e.originals[record.ContainerID] = record.CPU
	}
	e.totals[hostID] = candidate
	e.mu.Unlock()

	metrics.LimitsAppliedTotal.WithLabelValues("cpu").Inc()
	metrics.LimitsAppliedTotal.WithLabelValues("memory").Inc()
	metrics.LimitsAppliedTotal.WithLabelValues("storage").Inc()
	metrics.LimitsAppliedTotal.WithLabelValues("network").Inc()
	e.publish(events.EventQuotaApplied, map[string]any{"container_id": record.ContainerID})

	return nil
}

// Remove releases all tracked state for containerID and decrements
// allocated totals. Idempotent.
func (e *Enforcer) Remove(ctx context.Context, containerID string) error {
	e.mu.Lock()
	record, ok := e.records[containerID]
	meta := e.meta[containerID]
	if ok {
		e.totals[meta.hostID] = subtractReservation(e.totals[meta.hostID], record)
	}
	delete(e.records, containerID)
	delete(e.meta, containerID)
	delete(e.originals, containerID)
	delete(e.usage, containerID)
	for k := range e.violations {
		if k.containerID == containerID {
			delete(e.violations, k)
		}
	}
	e.mu.Unlock()

	if !ok {
		return nil
	}
	for dir := range record.Storage.DirectoryQuotas {
		_ = e.quotas.SubQuota().RemoveQuota(dir)
	}
	return nil
}

// CurrentUsage returns the most recently observed usage for containerID.
func (e *Enforcer) CurrentUsage(containerID string) (types.Usage, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	u, ok := e.usage[containerID]
	return u, ok
}

// AllocatedTotals returns the current allocated totals for hostID.
func (e *Enforcer) AllocatedTotals(hostID string) types.AllocatedTotals {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totals[hostID]
}

// ContainerSnapshot is one tracked container's current record, usage, host,
// and priority, for building an optimizer Snapshot.
type ContainerSnapshot struct {
	ContainerID string
	HostID      string
	Priority    types.Priority
	Limits      types.ResourceLimitRecord
	Usage       types.Usage
}

// Snapshot returns a point-in-time copy of every tracked container's state.
func (e *Enforcer) Snapshot() []ContainerSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ContainerSnapshot, 0, len(e.records))
	for id, record := range e.records {
		meta := e.meta[id]
		out = append(out, ContainerSnapshot{
			ContainerID: id,
			HostID:      meta.hostID,
			Priority:    meta.priority,
			Limits:      record,
			Usage:       e.usage[id],
		})
	}
	return out
}

// ContainerIDsOnHost returns the containers currently tracked on hostID.
func (e *Enforcer) ContainerIDsOnHost(hostID string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var ids []string
	for id, meta := range e.meta {
		if meta.hostID == hostID {
			ids = append(ids, id)
		}
	}
	return ids
}

// OnViolation subscribes handler to violation state transitions.
func (e *Enforcer) OnViolation(handler func(types.ViolationRecord)) {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()
	e.handlers = append(e.handlers, handler)
}

func (e *Enforcer) notify(v types.ViolationRecord) {
	e.handlersMu.Lock()
	handlers := append([]func(types.ViolationRecord){}, e.handlers...)
	e.handlersMu.Unlock()
	for _, h := range handlers {
		h(v)
	}
	metrics.ViolationsTotal.WithLabelValues(string(v.Dimension), string(v.State)).Inc()
	e.publish(events.EventViolationDetected, map[string]any{
		"container_id": v.ContainerID,
		"dimension":    string(v.Dimension),
		"state":        string(v.State),
	})
}

func (e *Enforcer) publish(t events.EventType, data map[string]any) {
	if e.broker == nil {
		return
	}
	e.broker.Publish(&events.Event{Type: t, Data: data})
}

func validateLimits(r types.ResourceLimitRecord) error {
	if !r.ReservationOK() {
		return fmt.Errorf("memory reservation %d exceeds limit %d", r.Memory.ReservationBytes, r.Memory.LimitBytes)
	}
	if r.CPU.QuotaMicros < 0 || r.CPU.PeriodMicros <= 0 {
		return fmt.Errorf("invalid cpu quota/period")
	}
	if r.Memory.LimitBytes <= 0 {
		return fmt.Errorf("invalid memory limit")
	}
	return nil
}

// cpuCoresEquivalentLimits converts a CPU quota/period pair to a core count for
// admission comparison against host capacity.
func cpuCoresEquivalentLimits(c types.CPULimits) float64 {
	if c.PeriodMicros <= 0 {
		return 0
	}
	return float64(c.QuotaMicros) / float64(c.PeriodMicros)
}

func subtractReservation(totals types.AllocatedTotals, r types.ResourceLimitRecord) types.AllocatedTotals {
	totals.CPUReserved -= cpuCoresEquivalentLimits(r.CPU)
	totals.MemoryReserved -= r.Memory.ReservationBytes
	totals.DiskReserved -= r.Storage.DiskBytes
	totals.NetworkReserved -= r.Network.IngressBps + r.Network.EgressBps
	return totals
}

func addReservation(totals types.AllocatedTotals, r types.ResourceLimitRecord) types.AllocatedTotals {
	totals.CPUReserved += cpuCoresEquivalentLimits(r.CPU)
	totals.MemoryReserved += r.Memory.ReservationBytes
	totals.DiskReserved += r.Storage.DiskBytes
	totals.NetworkReserved += r.Network.IngressBps + r.Network.EgressBps
	return totals
}
