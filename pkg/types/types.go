// Package types defines the core data structures shared across the
// resource-management control plane: job requests, resource profiles, limit
// records, samples, bottleneck events, forecasts, optimization plans, and
// violation records. It has no dependency on any other internal package so
// that every component (profiler, enforcer, analyzer, forecaster, optimizer,
// orchestrator) can share one vocabulary without import cycles.
package types

import "time"

// JobRequest is an immutable request to run a single CI job. JobClass is
// derived by the caller from {repository, workflow, labels} and used to key
// per-class ResourceProfiles.
type JobRequest struct {
	JobID       string
	JobClass    string
	Repository  string
	Workflow    string
	Labels      map[string]string
	Hints       *ResourceRequirements // optional explicit resource hints
	Priority    Priority
	CreatedAt   time.Time
}

// Priority orders jobs for admission and tie-breaking during enforcement.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// priorityRank is lower for lower priority, used for tie-break comparisons.
var priorityRank = map[Priority]int{
	PriorityLow:    0,
	PriorityNormal: 1,
	PriorityHigh:   2,
}

// Rank returns the relative ordering of a priority (higher is more important).
// Unknown priorities rank as PriorityNormal.
func (p Priority) Rank() int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return priorityRank[PriorityNormal]
}

// ResourceRequirements is an explicit resource hint attached to a job
// request. At admission each non-zero field overrides the Forecaster's
// prediction for that dimension, whether or not the profile is trusted.
type ResourceRequirements struct {
	CPUCores    float64
	MemoryBytes int64
	DiskBytes   int64
	NetworkMbps float64
}

// Stat is a rolling statistical summary over one dimension.
type Stat struct {
	Min  float64
	Mean float64
	P50  float64
	P95  float64
	P99  float64
	Max  float64
}

// ResourceProfile holds rolling statistics for one job class across the five
// dimensions tracked by the Forecaster. SampleCount is monotonically
// non-decreasing; a profile is Trusted only once SampleCount reaches the
// configured minimum (default 10, see pkg/config).
type ResourceProfile struct {
	JobClass    string
	CPUCores    Stat
	MemoryBytes Stat
	DiskBytes   Stat
	NetworkMbps Stat
	DurationMs  Stat
	SampleCount int64
	UpdatedAt   time.Time
}

// Trusted reports whether the profile has accumulated enough samples to be
// used directly, rather than falling back to a cluster profile or defaults.
func (p *ResourceProfile) Trusted(minSamples int64) bool {
	return p != nil && p.SampleCount >= minSamples
}

// CPULimits describes cgroup-shaped CPU controls.
type CPULimits struct {
	Shares       int64
	QuotaMicros  int64
	PeriodMicros int64
	PinSet       []int // optional CPU pinning set
}

// MemoryLimits describes cgroup-shaped memory controls. SwapBytes of -1
// encodes "2x memory limit" (see DESIGN.md Open Question decisions).
type MemoryLimits struct {
	LimitBytes      int64
	ReservationBytes int64
	SwapBytes       int64
	OOMKillDisable  bool
}

// EffectiveSwap resolves the -1 sentinel to its concrete byte value.
func (m MemoryLimits) EffectiveSwap() int64 {
	if m.SwapBytes == -1 {
		return 2 * m.LimitBytes
	}
	return m.SwapBytes
}

// StorageLimits describes disk and inode quotas, including per-directory
// sub-quotas which are always monitoring-based (see pkg/enforcer/quotadriver).
type StorageLimits struct {
	DiskBytes       int64
	Inodes          int64
	DirectoryQuotas map[string]int64 // e.g. "workspace" -> bytes, "temp" -> bytes, "cache" -> bytes
}

// NetworkLimits describes a token-bucket bandwidth shape.
type NetworkLimits struct {
	IngressBps  int64
	EgressBps   int64
	BurstBytes  int64
}

// ResourceLimitRecord is the Enforcer's per-container source of truth across
// all four dimensions. The Enforcer is the sole writer (see spec.md §5).
type ResourceLimitRecord struct {
	ContainerID string
	CPU         CPULimits
	Memory      MemoryLimits
	Storage     StorageLimits
	Network     NetworkLimits
	PidsLimit   int64
	IOWeight    int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ReservationOK reports the r.reservation <= r.limit invariant for memory
// (spec.md §8). CPULimits has no reservation field, so CPU is not checked.
func (r *ResourceLimitRecord) ReservationOK() bool {
	return r.Memory.ReservationBytes <= r.Memory.LimitBytes
}

// Sample is one profiler observation, for a host or a single container.
// Fields that could not be measured are left at their zero value rather than
// fabricated (SamplingUnavailable degrades gracefully, see spec.md §4.1);
// callers distinguish "zero" from "unavailable" via the Unavailable set.
type Sample struct {
	T           time.Time
	HostID      string
	ContainerID string // empty for a host-wide sample
	CPUPct      float64
	MemUsed     int64
	MemCache    int64
	BlkRead     int64
	BlkWrite    int64
	NetIn       int64
	NetOut      int64
	Pids        int64
	FirstSample bool            // true when no prior snapshot existed for CPU delta math
	Unavailable map[string]bool // field name -> true if nulled due to SamplingUnavailable

	// Raw cumulative counters as reported by the RuntimeDriver for this
	// snapshot. The Profiler retains these only long enough to compute
	// CPUPct for the *next* sample of the same source; CPUPct above is the
	// field consumers should read.
	CPUNanos    uint64
	SystemNanos uint64
	OnlineCPUs  int
}

// BottleneckType enumerates the dimensions the Analyzer watches.
type BottleneckType string

const (
	BottleneckCPU             BottleneckType = "cpu"
	BottleneckMemory          BottleneckType = "memory"
	BottleneckDisk            BottleneckType = "disk"
	BottleneckNetwork         BottleneckType = "network"
	BottleneckContainerStartup BottleneckType = "container_startup"
	BottleneckCacheEfficiency BottleneckType = "cache_efficiency"
	BottleneckConcurrency     BottleneckType = "concurrency"
)

// Layer enumerates where a bottleneck was observed.
type Layer string

const (
	LayerSystem      Layer = "system"
	LayerApplication Layer = "application"
	LayerContainer   Layer = "container"
	LayerNetwork     Layer = "network"
)

// Severity orders remediation urgency. Values compare via Rank, not string.
type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
	SeveritySevere   Severity = "severe"
)

var severityRank = map[Severity]int{
	SeverityNormal:   0,
	SeverityWarning:  1,
	SeverityCritical: 2,
	SeveritySevere:   3,
}

// Rank returns the relative ordering of a severity (higher is more urgent).
func (s Severity) Rank() int { return severityRank[s] }

// BottleneckEvent is a transient, severity-labelled condition detected by
// the Analyzer. An event becomes active on first detection and persists
// while the condition holds (spec.md §3).
type BottleneckEvent struct {
	T                time.Time
	Type             BottleneckType
	Layer            Layer
	Severity         Severity
	CurrentValue     float64
	Threshold        float64
	RelatedContainer string
}

// Key identifies a bottleneck for the Analyzer's Active Bottleneck Map.
type Key struct {
	Type  BottleneckType
	Layer Layer
}

// ForecastPoint is one point of a Forecast series.
type ForecastPoint struct {
	T          time.Time
	Value      float64
	Confidence float64
}

// Forecast is a confidence-decaying prediction series. Confidence is
// monotonically non-increasing in horizon distance (spec.md §8).
type Forecast struct {
	Horizon     time.Duration
	Series      []ForecastPoint
	MeanTrend   float64
	Seasonality []float64 // optional, e.g. 24 hourly multipliers
}

// MonotonicConfidence reports whether confidence is non-increasing across
// the series, an invariant spec.md §8 requires.
func (f *Forecast) MonotonicConfidence() bool {
	for i := 1; i < len(f.Series); i++ {
		if f.Series[i].Confidence > f.Series[i-1].Confidence {
			return false
		}
	}
	return true
}

// ActionKind enumerates the mutations an Optimization Plan may request.
type ActionKind string

const (
	ActionScaleUp         ActionKind = "scale_up"
	ActionScaleDown       ActionKind = "scale_down"
	ActionResize          ActionKind = "resize"
	ActionMigrate         ActionKind = "migrate"
	ActionStop            ActionKind = "stop"
	ActionReserveCapacity ActionKind = "reserve_capacity"
	ActionPowerDownHost   ActionKind = "power_down_host"

	// Emergency-bypass-only actions (spec.md §4.5).
	ActionReduceConcurrency ActionKind = "reduce_concurrency"
	ActionClearCaches       ActionKind = "clear_caches"
)

// ActionPriority orders execution within a plan: high, medium, low.
type ActionPriority string

const (
	ActionPriorityHigh   ActionPriority = "high"
	ActionPriorityMedium ActionPriority = "medium"
	ActionPriorityLow    ActionPriority = "low"
)

var actionPriorityRank = map[ActionPriority]int{
	ActionPriorityHigh:   2,
	ActionPriorityMedium: 1,
	ActionPriorityLow:    0,
}

// Rank returns the relative ordering of an action priority (higher first).
func (p ActionPriority) Rank() int { return actionPriorityRank[p] }

// Action is a single planned mutation to resource state.
type Action struct {
	Kind        ActionKind
	Target      string // containerID or hostID, depending on Kind
	NewLimits   *ResourceLimitRecord
	Destination string // hostID, for migrate
	Reason      string
	Priority    ActionPriority
	Confidence  float64
	GeneratedAt time.Time
	Seq         int64 // generation order, used for priority tie-breaks
}

// OptimizationPlan is an ordered, validated sequence of Actions produced by
// one optimize cycle.
type OptimizationPlan struct {
	GeneratedAt     time.Time
	Actions         []Action
	Warnings        []string
	Confidence      float64
	EstimatedCostHr float64
}

// ViolationDimension enumerates the four enforced dimensions.
type ViolationDimension string

const (
	DimensionCPU     ViolationDimension = "cpu"
	DimensionMemory  ViolationDimension = "memory"
	DimensionStorage ViolationDimension = "storage"
	DimensionNetwork ViolationDimension = "network"
)

// ViolationState is the per-(container,dimension) state machine stage.
type ViolationState string

const (
	StateCompliant ViolationState = "compliant"
	StateViolating ViolationState = "violating"
	StateGrace     ViolationState = "grace"
	StateThrottled ViolationState = "throttled"
	StateKilled    ViolationState = "killed"
)

// ViolationRecord tracks consecutive over-limit observations for one
// (container, dimension) pair. Count resets to zero on remediation.
type ViolationRecord struct {
	ContainerID string
	T           time.Time
	Dimension   ViolationDimension
	Observed    float64
	Limit       float64
	Count       int
	State       ViolationState
	GraceStart  time.Time
}

// Usage is the Enforcer's most recently observed per-dimension usage for a
// container.
type Usage struct {
	CPUCores    float64
	MemoryBytes int64
	DiskBytes   int64
	NetworkBps  int64
	ObservedAt  time.Time
}

// HostCapacity is a host's total resource capacity.
type HostCapacity struct {
	HostID      string
	CPUCores    float64
	MemoryBytes int64
	DiskBytes   int64
	NetworkBps  int64
	Utilization float64 // 0..1, current aggregate utilization, updated by the profiler
}

// AllocatedTotals is the per-host sum of reservations currently in effect;
// the Enforcer is the sole writer (spec.md §5). Never exceeds the matching
// HostCapacity.
type AllocatedTotals struct {
	HostID          string
	CPUReserved     float64
	MemoryReserved  int64
	DiskReserved    int64
	NetworkReserved int64
}

// Available returns the remaining capacity given current reservations.
func Available(cap HostCapacity, totals AllocatedTotals) HostCapacity {
	return HostCapacity{
		HostID:      cap.HostID,
		CPUCores:    cap.CPUCores - totals.CPUReserved,
		MemoryBytes: cap.MemoryBytes - totals.MemoryReserved,
		DiskBytes:   cap.DiskBytes - totals.DiskReserved,
		NetworkBps:  cap.NetworkBps - totals.NetworkReserved,
	}
}

// CostModel prices each resource dimension per hour, used by the cost
// optimization pass.
type CostModel struct {
	PerCPUCore    float64
	PerMemoryGB   float64
	PerStorageGB  float64
	PerNetworkMbps float64
}

// PlacementConstraints narrow where a container may be placed.
type PlacementConstraints struct {
	Zone              string
	AffinityWith      []string
	AntiAffinityWith  []string
	SameHostPermitted bool
}

// ExecutionRecord captures one orchestrator cycle's before/after state for
// the bounded execution history (spec.md §4.6).
type ExecutionRecord struct {
	T            time.Time
	Plan         OptimizationPlan
	ScoreBefore  float64
	ScoreAfter   float64
	ActionsTaken int
	ActionsFailed int
}
