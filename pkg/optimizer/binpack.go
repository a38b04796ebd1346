package optimizer

import (
	"sort"
	"time"

	"github.com/cuemby/orbiter/pkg/types"
)

// binPack implements the first-fit-decreasing consolidation pass
// (spec.md §4.5, pass 1): containers on hosts whose utilization exceeds
// efficiencyThreshold are migrated to denser feasible hosts.
func binPack(snapshot Snapshot, efficiencyThreshold float64, now time.Time) []types.Action {
	var overloaded []string
	for id, h := range snapshot.Hosts {
		if h.utilization() > efficiencyThreshold {
			overloaded = append(overloaded, id)
		}
	}
	if len(overloaded) == 0 {
		return nil
	}

	var candidates []ContainerState
	for _, hostID := range overloaded {
		for _, cid := range snapshot.Hosts[hostID].ContainerIDs {
			if c, ok := snapshot.Containers[cid]; ok {
				candidates = append(candidates, c)
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].cpuCores() > candidates[j].cpuCores() })

	var targets []string
	for id := range snapshot.Hosts {
		targets = append(targets, id)
	}
	sort.Slice(targets, func(i, j int) bool { return snapshot.Hosts[targets[i]].utilization() > snapshot.Hosts[targets[j]].utilization() })

	placed := map[string][]string{} // hostID -> container IDs placed there this pass
	var actions []types.Action
	seq := int64(0)

	for _, c := range candidates {
		for _, targetID := range targets {
			if targetID == c.HostID {
				continue
			}
			host := snapshot.Hosts[targetID]
			if host.utilization() > efficiencyThreshold {
				continue // destination must itself not be overloaded
			}
			sameHost := map[string]bool{}
			for _, id := range host.ContainerIDs {
				sameHost[id] = true
			}
			for _, id := range placed[targetID] {
				sameHost[id] = true
			}
			if !canPlace(c, targetID, sameHost) || !feasible(host, c) {
				continue
			}

			seq++
			actions = append(actions, types.Action{
				Kind:        types.ActionMigrate,
				Target:      c.ContainerID,
				Destination: targetID,
				Reason:      "consolidating overloaded host",
				Priority:    types.ActionPriorityMedium,
				Confidence:  0.8,
				GeneratedAt: now,
				Seq:         seq,
			})
			placed[targetID] = append(placed[targetID], c.ContainerID)
			break
		}
	}
	return actions
}
