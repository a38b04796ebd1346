// Package capability defines the external collaborator interfaces the core
// control plane depends on but never implements directly: RuntimeDriver (the
// container engine), SlotProvider (the pre-warmed startup pool), and
// Persistence (a key-value store for profiles, execution history, and
// baselines). Concrete implementations live outside the core — a reference
// containerd-backed RuntimeDriver is in internal/containerdriver, and
// pkg/storage implements Persistence over BoltDB.
package capability

import (
	"context"
	"time"

	"github.com/cuemby/orbiter/pkg/types"
)

// SlotSpec describes the slot a RuntimeDriver is asked to create.
type SlotSpec struct {
	ContainerID string
	Image       string
	Limits      types.ResourceLimitRecord
	Env         []string
}

// RuntimeDriver is the capability through which the core manipulates
// container-level state. The core never talks to a specific engine's API
// directly (spec.md §1) — it only ever calls this interface.
type RuntimeDriver interface {
	CreateSlot(ctx context.Context, spec SlotSpec) (slotID string, err error)
	ApplyLimits(ctx context.Context, slotID string, limits types.ResourceLimitRecord) error
	Stats(ctx context.Context, slotID string) (types.Sample, error)
	Exec(ctx context.Context, slotID string, cmd []string) error
	Stop(ctx context.Context, slotID string, force bool) error
	Destroy(ctx context.Context, slotID string) error

	// HostStats reports host-wide resource usage (the Profiler's
	// sampleSystem). A driver sits on the host it manages, so host-level
	// sampling is naturally this capability's concern rather than a separate
	// one.
	HostStats(ctx context.Context) (types.Sample, error)
}

// SlotProvider is the capability through which the core consumes the
// pre-warmed startup pool.
type SlotProvider interface {
	Acquire(ctx context.Context, hint types.ResourceRequirements) (slotID string, err error)
	Release(ctx context.Context, slotID string) error
	Resize(ctx context.Context, poolSize int) error
	Available(ctx context.Context) (int, error)
}

// Persistence is the capability backing profile storage, execution history,
// and baseline statistics. Writes are fire-and-forget from the caller's
// perspective: implementations log failures rather than return them where
// the spec calls for best-effort persistence (spec.md §6).
type Persistence interface {
	SaveProfile(ctx context.Context, profile types.ResourceProfile) error
	LoadProfile(ctx context.Context, jobClass string) (types.ResourceProfile, bool, error)
	ListProfiles(ctx context.Context) ([]types.ResourceProfile, error)

	AppendExecution(ctx context.Context, t time.Time, record types.ExecutionRecord) error
	ListExecutions(ctx context.Context, limit int) ([]types.ExecutionRecord, error)

	SaveBaseline(ctx context.Context, metric string, mean, stddev float64, n int64) error
	LoadBaseline(ctx context.Context, metric string) (mean, stddev float64, n int64, found bool, err error)
}
