package optimizer

import (
	"time"

	"github.com/cuemby/orbiter/pkg/types"
)

// energyUtilizationCeiling is the host utilization below which all of its
// containers are considered for consolidation (spec.md §4.5, pass 4).
const energyUtilizationCeiling = 0.20

// energyConsolidation finds hosts running under energyUtilizationCeiling
// and, if every one of their containers has a feasible destination
// elsewhere, emits migrate actions for each plus a power_down_host action
// for the now-empty host (spec.md §4.5, pass 4).
func energyConsolidation(snapshot Snapshot, now time.Time) []types.Action {
	var actions []types.Action
	seq := int64(0)

	var targets []string
	for id := range snapshot.Hosts {
		targets = append(targets, id)
	}

	for hostID, host := range snapshot.Hosts {
		if host.utilization() >= energyUtilizationCeiling || host.utilization() == 0 {
			continue
		}
		if len(host.ContainerIDs) == 0 {
			continue
		}

		destinations := map[string]string{} // containerID -> destination hostID
		placed := map[string][]string{}
		feasibleForAll := true
		for _, cid := range host.ContainerIDs {
			c, ok := snapshot.Containers[cid]
			if !ok {
				feasibleForAll = false
				break
			}
			found := ""
			for _, targetID := range targets {
				if targetID == hostID {
					continue
				}
				target := snapshot.Hosts[targetID]
				sameHost := map[string]bool{}
				for _, id := range target.ContainerIDs {
					sameHost[id] = true
				}
				for _, id := range placed[targetID] {
					sameHost[id] = true
				}
				if canPlace(c, targetID, sameHost) && feasible(target, c) {
					found = targetID
					break
				}
			}
			if found == "" {
				feasibleForAll = false
				break
			}
			destinations[cid] = found
			placed[found] = append(placed[found], cid)
		}

		if !feasibleForAll {
			continue
		}

		for cid, dest := range destinations {
			seq++
			actions = append(actions, types.Action{
				Kind:        types.ActionMigrate,
				Target:      cid,
				Destination: dest,
				Reason:      "draining low-utilization host for power-down",
				Priority:    types.ActionPriorityLow,
				Confidence:  0.75,
				GeneratedAt: now,
				Seq:         seq,
			})
		}
		seq++
		actions = append(actions, types.Action{
			Kind:        types.ActionPowerDownHost,
			Target:      hostID,
			Reason:      "host utilization below 20% and fully drained",
			Priority:    types.ActionPriorityLow,
			Confidence:  0.75,
			GeneratedAt: now,
			Seq:         seq,
		})
	}
	return actions
}
