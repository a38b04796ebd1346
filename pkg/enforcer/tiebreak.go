package enforcer

import "github.com/cuemby/orbiter/pkg/types"

// candidate is one container competing for remediation on a shared host.
type candidate struct {
	containerID string
	priority    types.Priority
	ratio       float64 // observed/limit
}

// SelectThrottleOrder ranks simultaneous CPU violators on the same host for
// remediation: lower-priority containers are throttled first, and ties
// within a priority are broken by the larger observed/limit ratio (the
// worse offender goes first). The returned slice is in throttle order.
func SelectThrottleOrder(containerIDs []string, priorityOf func(string) types.Priority, ratioOf func(string) float64) []string {
	candidates := make([]candidate, 0, len(containerIDs))
	for _, id := range containerIDs {
		candidates = append(candidates, candidate{
			containerID: id,
			priority:    priorityOf(id),
			ratio:       ratioOf(id),
		})
	}

	// Stable insertion sort: small N (simultaneous violators on one host),
	// and stability keeps ordering deterministic across equal keys.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && less(candidates[j], candidates[j-1]); j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}

	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.containerID
	}
	return out
}

// less reports whether a should be throttled before b: lower priority
// first, then larger ratio first.
func less(a, b candidate) bool {
	if a.priority.Rank() != b.priority.Rank() {
		return a.priority.Rank() < b.priority.Rank()
	}
	return a.ratio > b.ratio
}
