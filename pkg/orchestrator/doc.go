// Package orchestrator is the control plane's top-level supervisor. It
// admits Job Requests (Predict → materialize limits → acquire a slot →
// apply limits), records completions back into the Forecaster, and drives
// the closed observe→analyze→predict→plan→enforce cycle: each tick it
// assembles an optimizer.Snapshot from the Enforcer's tracked state and the
// Analyzer's active bottlenecks, plans with the Optimization Engine, and
// executes the resulting actions against a deadline bounded to half the
// cycle interval so a stuck action abandons the rest of the plan rather
// than blocking the next cycle.
//
// One Orchestrator instance owns one host. Placement actions that target
// another host (migrate, power_down_host) are only logged: they are not
// executed and no event is published for them, matching the system's
// non-goal of strong cross-host consistency.
package orchestrator
