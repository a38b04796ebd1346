// Package election elects a single leader Orchestrator instance in a
// multi-host deployment using HashiCorp Raft, trimmed to carry nothing but
// a leadership epoch.
//
// The teacher's pkg/manager.Manager bootstraps a Raft group whose FSM
// replicates full cluster state (nodes, services, tasks, secrets, networks,
// volumes) so every manager has an identical view of the world. This
// system's resource-management state is explicitly host-local and
// eventually-consistent, so replicating it through Raft would be both
// unnecessary and contrary to that design. election
// keeps only what every manager genuinely needs to agree on: who is allowed
// to run the optimize cycle this term. The FSM here applies nothing; votes
// and leadership transitions are the entire payload.
package election
