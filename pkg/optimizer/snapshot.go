// Package optimizer turns a point-in-time resource Snapshot, the
// Forecaster's predictions, and a cost model into a validated
// OptimizationPlan. Four independent passes each examine the Snapshot and
// may emit Actions; the Engine merges, deduplicates, sorts, and validates
// the result.
package optimizer

import "github.com/cuemby/orbiter/pkg/types"

// ContainerForecast is the subset of Forecaster output the optimizer's
// predictive-scaling pass needs: a short-term point prediction and a
// medium-term trend percentage.
type ContainerForecast struct {
	ShortTerm       types.ForecastPoint
	MediumTrendPct  float64 // e.g. 0.25 for +25%
}

// ContainerState is one container's current state for planning purposes.
type ContainerState struct {
	ContainerID string
	HostID      string
	Priority    types.Priority
	Limits      types.ResourceLimitRecord
	Usage       types.Usage
	Forecast    ContainerForecast
	Constraints types.PlacementConstraints
}

// cpuCores returns the container's CPU limit expressed in cores.
func (c ContainerState) cpuCores() float64 {
	if c.Limits.CPU.PeriodMicros <= 0 {
		return 0
	}
	return float64(c.Limits.CPU.QuotaMicros) / float64(c.Limits.CPU.PeriodMicros)
}

// efficiency is the container's usage/limit ratio for its dominant
// dimension (CPU), clamped to [0, 1].
func (c ContainerState) efficiency() float64 {
	limit := c.cpuCores()
	if limit <= 0 {
		return 0
	}
	e := c.Usage.CPUCores / limit
	if e > 1 {
		e = 1
	}
	if e < 0 {
		e = 0
	}
	return e
}

// hourlyCost prices one container's reservation under cost.
func (c ContainerState) hourlyCost(cost types.CostModel) float64 {
	memGB := float64(c.Limits.Memory.LimitBytes) / (1024 * 1024 * 1024)
	diskGB := float64(c.Limits.Storage.DiskBytes) / (1024 * 1024 * 1024)
	netMbps := float64(c.Limits.Network.IngressBps+c.Limits.Network.EgressBps) * 8 / 1e6
	return c.cpuCores()*cost.PerCPUCore + memGB*cost.PerMemoryGB + diskGB*cost.PerStorageGB + netMbps*cost.PerNetworkMbps
}

// HostState is one host's current state for planning purposes.
type HostState struct {
	HostID      string
	Capacity    types.HostCapacity
	Totals      types.AllocatedTotals
	ContainerIDs []string
}

// utilization returns the host's CPU utilization as a fraction of capacity.
func (h HostState) utilization() float64 {
	if h.Capacity.CPUCores <= 0 {
		return 0
	}
	return h.Totals.CPUReserved / h.Capacity.CPUCores
}

func (h HostState) available() types.HostCapacity {
	return types.Available(h.Capacity, h.Totals)
}

// Snapshot is the Optimization Engine's complete input for one cycle.
type Snapshot struct {
	Containers   map[string]ContainerState
	Hosts        map[string]HostState
	Bottlenecks  []types.BottleneckEvent
	Cost         types.CostModel
	HourlyBudget float64
}

// canPlace reports whether container c may be placed on host according to
// its affinity/anti-affinity/zone constraints. sameHostIDs is the set of
// container IDs already assigned to host in this planning pass.
func canPlace(c ContainerState, hostID string, sameHostIDs map[string]bool) bool {
	if !c.Constraints.SameHostPermitted {
		for _, other := range c.Constraints.AntiAffinityWith {
			if sameHostIDs[other] {
				return false
			}
		}
	}
	if len(c.Constraints.AffinityWith) > 0 {
		anyPresent := false
		for _, other := range c.Constraints.AffinityWith {
			if sameHostIDs[other] {
				anyPresent = true
				break
			}
		}
		if !anyPresent {
			return false
		}
	}
	return true
}

// feasible reports whether host has room for container c.
func feasible(host HostState, c ContainerState) bool {
	avail := host.available()
	return avail.CPUCores >= c.cpuCores() && avail.MemoryBytes >= c.Limits.Memory.LimitBytes
}
