package profiler

import (
	"sync"
	"time"

	"github.com/cuemby/orbiter/pkg/types"
)

// window holds one source's (a host, or a single container) samples within
// the configured retention period. It is the Profiler's single mutable
// collection per source; the Profiler is its only writer (spec §5).
type window struct {
	mu         sync.Mutex
	retention  time.Duration
	samples    []types.Sample
	lastRaw    types.Sample
	haveRaw    bool
}

func newWindow(retention time.Duration) *window {
	return &window{retention: retention}
}

// add appends a sample and drops anything older than the retention cutoff.
func (w *window) add(s types.Sample) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples = append(w.samples, s)
	w.evictLocked(s.T)
}

func (w *window) evictLocked(now time.Time) {
	cutoff := now.Add(-w.retention)
	i := 0
	for i < len(w.samples) && w.samples[i].T.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.samples = append([]types.Sample(nil), w.samples[i:]...)
	}
}

// rollingWindow returns a copy of samples whose t falls within
// [now-duration, now].
func (w *window) rollingWindow(now time.Time, duration time.Duration) []types.Sample {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-duration)
	out := make([]types.Sample, 0, len(w.samples))
	for _, s := range w.samples {
		if !s.T.Before(cutoff) && !s.T.After(now) {
			out = append(out, s)
		}
	}
	return out
}

// since returns a copy of samples with t >= from, for Stream replay.
func (w *window) since(from time.Time) []types.Sample {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]types.Sample, 0, len(w.samples))
	for _, s := range w.samples {
		if !s.T.Before(from) {
			out = append(out, s)
		}
	}
	return out
}

// takeRaw returns the previous raw counters for this source (for CPU delta
// math) and stores the new ones, reporting whether a prior snapshot existed.
func (w *window) takeRaw(next types.Sample) (prev types.Sample, hadPrior bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	prev, hadPrior = w.lastRaw, w.haveRaw
	w.lastRaw, w.haveRaw = next, true
	return prev, hadPrior
}
