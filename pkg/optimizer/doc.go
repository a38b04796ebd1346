// Package optimizer runs the four independent optimization passes (bin
// packing, predictive scaling, cost optimization, energy consolidation)
// over a point-in-time Snapshot and merges their output into a single
// validated OptimizationPlan.
//
// Each pass is a pure function of a Snapshot; none mutate shared state,
// so Engine.Plan can be called concurrently from multiple goroutines
// without locking. collapse keeps, per target, the action with the
// highest priority and, among ties, the most recently generated one.
// validate then drops migrate actions that would push the destination
// host over capacity and appends non-rejecting warnings when the plan's
// estimated cost exceeds the configured hourly budget. sortActions
// orders the final plan by priority and generation sequence so callers
// observe a stable, deterministic action order.
//
// EmergencyPlan bypasses all of this: it is the single-action plan the
// orchestrator applies immediately on a severe bottleneck, independent
// of the regular optimize cycle.
package optimizer
