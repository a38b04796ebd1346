// Package containerdriver adapts containerd to capability.RuntimeDriver.
//
// Slots are containerd containers plus their single task, created in the
// "orbiter" namespace. CPU and memory limits translate to Linux CFS quota,
// CPU shares, and the memory cgroup limit; ApplyLimits updates these in
// place on a running task via Task.Update rather than recreating it.
// HostStats falls back to reading /proc directly, since containerd has no
// host-wide metrics endpoint of its own — only per-task cgroup stats.
package containerdriver
