// Package profiler periodically samples host and per-container resource
// usage and exposes it as a rolling window and a lazy, restartable stream.
package profiler

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/orbiter/pkg/capability"
	"github.com/cuemby/orbiter/pkg/config"
	"github.com/cuemby/orbiter/pkg/log"
	"github.com/cuemby/orbiter/pkg/metrics"
	"github.com/cuemby/orbiter/pkg/types"
	"github.com/rs/zerolog"
)

const hostSourceKey = ""

// Profiler samples the host and every registered container on its own
// tickers and keeps a retention-bounded rolling window per source.
type Profiler struct {
	driver capability.RuntimeDriver
	cfg    config.ProfilerConfig
	logger zerolog.Logger

	mu       sync.RWMutex
	windows  map[string]*window // keyed by containerID, hostSourceKey for the host
	hostID   string
	stopCh   chan struct{}
	started  bool
}

// New creates a Profiler. hostID identifies this host in emitted Samples.
func New(driver capability.RuntimeDriver, cfg config.ProfilerConfig, hostID string) *Profiler {
	return &Profiler{
		driver:  driver,
		cfg:     cfg,
		logger:  log.WithComponent("profiler"),
		windows: map[string]*window{hostSourceKey: newWindow(retention(cfg))},
		hostID:  hostID,
		stopCh:  make(chan struct{}),
	}
}

func retention(cfg config.ProfilerConfig) time.Duration {
	if cfg.RetentionMs <= 0 {
		return time.Hour
	}
	return time.Duration(cfg.RetentionMs) * time.Millisecond
}

// RegisterContainer begins sampling containerID on the container tick.
func (p *Profiler) RegisterContainer(containerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.windows[containerID]; !ok {
		p.windows[containerID] = newWindow(retention(p.cfg))
	}
}

// UnregisterContainer stops sampling containerID and drops its window.
func (p *Profiler) UnregisterContainer(containerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.windows, containerID)
}

// Start launches the system and container sampling loops.
func (p *Profiler) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.runLoop(ctx, intervalOr(p.cfg.SystemIntervalMs, 5*time.Second), p.tickSystem)
	go p.runLoop(ctx, intervalOr(p.cfg.ContainerIntervalMs, 10*time.Second), p.tickContainers)
}

// Stop halts the sampling loops.
func (p *Profiler) Stop() {
	close(p.stopCh)
}

func intervalOr(ms int64, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// runLoop drives one ticker, skipping the next tick (not queuing it) if the
// previous tick function is still running when it fires.
func (p *Profiler) runLoop(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var running sync.Mutex
	for {
		select {
		case <-ticker.C:
			if !running.TryLock() {
				continue // previous tick overran; skip this one
			}
			go func() {
				defer running.Unlock()
				tick(ctx)
			}()
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Profiler) tickSystem(ctx context.Context) {
	sample, err := p.SampleSystem(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("system sample unavailable")
		metrics.SamplingUnavailableTotal.WithLabelValues("system").Inc()
		return
	}
	p.mu.RLock()
	w := p.windows[hostSourceKey]
	p.mu.RUnlock()
	w.add(sample)
	metrics.SamplesCollectedTotal.WithLabelValues("system").Inc()
}

func (p *Profiler) tickContainers(ctx context.Context) {
	p.mu.RLock()
	ids := make([]string, 0, len(p.windows))
	for id := range p.windows {
		if id != hostSourceKey {
			ids = append(ids, id)
		}
	}
	p.mu.RUnlock()

	for _, id := range ids {
		sample, err := p.SampleContainer(ctx, id)
		if err != nil {
			p.logger.Warn().Err(err).Str("container_id", id).Msg("container sample unavailable")
			metrics.SamplingUnavailableTotal.WithLabelValues("container").Inc()
			continue
		}
		p.mu.RLock()
		w, ok := p.windows[id]
		p.mu.RUnlock()
		if !ok {
			continue // unregistered between listing and sampling
		}
		w.add(sample)
		metrics.SamplesCollectedTotal.WithLabelValues("container").Inc()
	}
}

// SampleSystem samples host-wide resource usage. It fails only with
// ErrSamplingUnavailable; individual missing fields are nulled rather than
// fabricated.
func (p *Profiler) SampleSystem(ctx context.Context) (types.Sample, error) {
	sample, err := p.driver.HostStats(ctx)
	if err != nil {
		return types.Sample{}, capability.ErrSamplingUnavailable
	}
	sample.HostID = p.hostID
	sample.T = timeNow()
	return sample, nil
}

// SampleContainer samples containerID's resource usage, computing CPUPct
// from the delta between this and the previous raw snapshot. When no prior
// snapshot exists, it returns cpu=0 with FirstSample set rather than a
// bogus ratio.
func (p *Profiler) SampleContainer(ctx context.Context, containerID string) (types.Sample, error) {
	raw, err := p.driver.Stats(ctx, containerID)
	if err != nil {
		return types.Sample{}, capability.ErrSamplingUnavailable
	}
	raw.ContainerID = containerID
	raw.HostID = p.hostID
	raw.T = timeNow()

	p.mu.RLock()
	w, ok := p.windows[containerID]
	p.mu.RUnlock()
	if !ok {
		// Not registered; still return the point sample without delta math.
		raw.FirstSample = true
		raw.CPUPct = 0
		return raw, nil
	}

	prev, hadPrior := w.takeRaw(raw)
	out := raw
	out.MemUsed = raw.MemUsed - raw.MemCache
	if !hadPrior || raw.SystemNanos <= prev.SystemNanos {
		out.FirstSample = true
		out.CPUPct = 0
		return out, nil
	}

	cpuDelta := float64(raw.CPUNanos - prev.CPUNanos)
	systemDelta := float64(raw.SystemNanos - prev.SystemNanos)
	online := raw.OnlineCPUs
	if online <= 0 {
		online = 1
	}
	out.CPUPct = (cpuDelta / systemDelta) * float64(online) * 100
	out.FirstSample = false
	return out, nil
}

// RollingWindow returns a finite snapshot of samples for containerID (empty
// string for the host) whose t falls within [now-duration, now].
func (p *Profiler) RollingWindow(containerID string, duration time.Duration) []types.Sample {
	p.mu.RLock()
	w, ok := p.windows[containerID]
	p.mu.RUnlock()
	if !ok {
		return nil
	}
	return w.rollingWindow(timeNow(), duration)
}

// Stream returns a channel replaying samples with t >= since and then
// tailing new ones as they arrive, for containerID (empty string for the
// host). Each call gets its own goroutine and channel; Stream is not a
// shared broadcast. The channel closes when ctx is done or the Profiler
// stops.
func (p *Profiler) Stream(ctx context.Context, containerID string, since time.Time) <-chan types.Sample {
	out := make(chan types.Sample, 64)

	p.mu.RLock()
	w, ok := p.windows[containerID]
	p.mu.RUnlock()
	if !ok {
		close(out)
		return out
	}

	go func() {
		defer close(out)
		for _, s := range w.since(since) {
			select {
			case out <- s:
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			}
		}

		poll := time.NewTicker(500 * time.Millisecond)
		defer poll.Stop()
		last := timeNow()
		for {
			select {
			case <-poll.C:
				for _, s := range w.since(last) {
					select {
					case out <- s:
						last = s.T.Add(time.Nanosecond)
					case <-ctx.Done():
						return
					case <-p.stopCh:
						return
					}
				}
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			}
		}
	}()

	return out
}

func timeNow() time.Time { return time.Now() }
