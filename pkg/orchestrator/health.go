package orchestrator

import (
	"context"
	"time"

	"github.com/cuemby/orbiter/pkg/events"
)

// healthLoopInterval is not part of the recognized configuration surface
// (spec.md §6 only lists per-component intervals); the health loop runs on
// a fixed cadence independent of those.
const healthLoopInterval = 60 * time.Second

// maxRestartAttempts is the number of consecutive failed probes after which
// a component is quarantined.
const maxRestartAttempts = 3

// healthCheck is one registered component's liveness probe.
type healthCheck struct {
	name  string
	probe func(ctx context.Context) error
}

// componentHealth tracks one component's consecutive failure count and
// quarantine state.
type componentHealth struct {
	consecutiveFailures int
	quarantined         bool
	lastAttempt         time.Time
}

// healthSupervisor runs registered liveness probes on a fixed cadence,
// counts consecutive failures, and (when AutoRecovery is on) quarantines a
// component after maxRestartAttempts failures. It does not restart a failed
// component and applies no backoff; probes run only on the loop's cadence.
// The loop mirrors the teacher's reconciler tick-and-act shape.
type healthSupervisor struct {
	o      *Orchestrator
	checks []healthCheck
	state  map[string]*componentHealth
}

func newHealthSupervisor(o *Orchestrator) *healthSupervisor {
	h := &healthSupervisor{o: o, state: map[string]*componentHealth{}}
	h.register("driver", func(ctx context.Context) error {
		_, err := o.driver.HostStats(ctx)
		return err
	})
	return h
}

func (h *healthSupervisor) register(name string, probe func(ctx context.Context) error) {
	h.checks = append(h.checks, healthCheck{name: name, probe: probe})
	h.state[name] = &componentHealth{}
}

func (h *healthSupervisor) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.runChecks(ctx)
		case <-h.o.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *healthSupervisor) runChecks(ctx context.Context) {
	for _, c := range h.checks {
		st := h.state[c.name]
		if st.quarantined {
			continue
		}

		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := c.probe(checkCtx)
		cancel()

		if err == nil {
			if st.consecutiveFailures > 0 {
				h.o.logger.Info().Str("component", c.name).Msg("component recovered")
			}
			st.consecutiveFailures = 0
			continue
		}

		st.consecutiveFailures++
		h.o.logger.Warn().Err(err).Str("component", c.name).Int("failures", st.consecutiveFailures).Msg("component health check failed")
		h.o.publish(events.EventComponentUnhealthy, map[string]any{"component": c.name, "failures": st.consecutiveFailures})

		if !h.o.cfg.Policy.AutoRecovery {
			continue
		}
		if st.consecutiveFailures >= maxRestartAttempts {
			st.quarantined = true
			h.o.logger.Error().Str("component", c.name).Msg("component quarantined after exhausting restart attempts")
			continue
		}
		st.lastAttempt = time.Now()
	}
}

// Quarantined reports whether name has exhausted its restart attempts and
// is no longer probed.
func (h *healthSupervisor) Quarantined(name string) bool {
	st, ok := h.state[name]
	return ok && st.quarantined
}

// ResetQuarantine clears name's quarantine, allowing probes to resume. An
// operator-triggered recovery action, never automatic.
func (h *healthSupervisor) ResetQuarantine(name string) {
	if st, ok := h.state[name]; ok {
		st.quarantined = false
		st.consecutiveFailures = 0
	}
}
