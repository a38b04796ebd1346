// Package capabilitytest provides in-memory fakes for the capability
// interfaces, for use in tests of components that depend on them.
package capabilitytest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/orbiter/pkg/capability"
	"github.com/cuemby/orbiter/pkg/types"
)

// RuntimeDriver is an in-memory capability.RuntimeDriver. Tests set
// StatsFunc (and HostStatsFunc) directly to control what sampling observes.
type RuntimeDriver struct {
	mu     sync.Mutex
	slots  map[string]types.ResourceLimitRecord
	seq    int

	HostStatsFunc func(ctx context.Context) (types.Sample, error)
	StatsFunc     func(ctx context.Context, slotID string) (types.Sample, error)

	Applied []AppliedCall
	Stopped []string
}

type AppliedCall struct {
	SlotID string
	Limits types.ResourceLimitRecord
}

func NewRuntimeDriver() *RuntimeDriver {
	return &RuntimeDriver{slots: map[string]types.ResourceLimitRecord{}}
}

func (d *RuntimeDriver) CreateSlot(ctx context.Context, spec capability.SlotSpec) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	id := fmt.Sprintf("slot-%d", d.seq)
	d.slots[id] = spec.Limits
	return id, nil
}

func (d *RuntimeDriver) ApplyLimits(ctx context.Context, slotID string, limits types.ResourceLimitRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slots[slotID] = limits
	d.Applied = append(d.Applied, AppliedCall{SlotID: slotID, Limits: limits})
	return nil
}

func (d *RuntimeDriver) Stats(ctx context.Context, slotID string) (types.Sample, error) {
	if d.StatsFunc != nil {
		return d.StatsFunc(ctx, slotID)
	}
	return types.Sample{ContainerID: slotID, T: time.Now()}, nil
}

func (d *RuntimeDriver) Exec(ctx context.Context, slotID string, cmd []string) error {
	return nil
}

func (d *RuntimeDriver) Stop(ctx context.Context, slotID string, force bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Stopped = append(d.Stopped, slotID)
	return nil
}

func (d *RuntimeDriver) Destroy(ctx context.Context, slotID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.slots, slotID)
	return nil
}

func (d *RuntimeDriver) HostStats(ctx context.Context) (types.Sample, error) {
	if d.HostStatsFunc != nil {
		return d.HostStatsFunc(ctx)
	}
	return types.Sample{T: time.Now()}, nil
}

// SlotProvider is an in-memory capability.SlotProvider backed by a counter.
type SlotProvider struct {
	mu        sync.Mutex
	poolSize  int
	acquired  int
	seq       int
}

func NewSlotProvider(poolSize int) *SlotProvider {
	return &SlotProvider{poolSize: poolSize}
}

func (s *SlotProvider) Acquire(ctx context.Context, hint types.ResourceRequirements) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquired >= s.poolSize {
		return "", capability.ErrInsufficientCapacity
	}
	s.acquired++
	s.seq++
	return fmt.Sprintf("pool-slot-%d", s.seq), nil
}

func (s *SlotProvider) Release(ctx context.Context, slotID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquired > 0 {
		s.acquired--
	}
	return nil
}

func (s *SlotProvider) Resize(ctx context.Context, poolSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poolSize = poolSize
	return nil
}

func (s *SlotProvider) Available(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poolSize - s.acquired, nil
}

// Persistence is an in-memory capability.Persistence.
type Persistence struct {
	mu         sync.Mutex
	profiles   map[string]types.ResourceProfile
	executions []types.ExecutionRecord
	baselines  map[string]baselineEntry
}

type baselineEntry struct {
	mean, stddev float64
	n            int64
}

func NewPersistence() *Persistence {
	return &Persistence{
		profiles:  map[string]types.ResourceProfile{},
		baselines: map[string]baselineEntry{},
	}
}

func (p *Persistence) SaveProfile(ctx context.Context, profile types.ResourceProfile) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles[profile.JobClass] = profile
	return nil
}

func (p *Persistence) LoadProfile(ctx context.Context, jobClass string) (types.ResourceProfile, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prof, ok := p.profiles[jobClass]
	return prof, ok, nil
}

func (p *Persistence) ListProfiles(ctx context.Context) ([]types.ResourceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.ResourceProfile, 0, len(p.profiles))
	for _, prof := range p.profiles {
		out = append(out, prof)
	}
	return out, nil
}

func (p *Persistence) AppendExecution(ctx context.Context, t time.Time, record types.ExecutionRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.executions = append(p.executions, record)
	return nil
}

func (p *Persistence) ListExecutions(ctx context.Context, limit int) ([]types.ExecutionRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.executions)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]types.ExecutionRecord, n)
	for i := 0; i < n; i++ {
		out[i] = p.executions[len(p.executions)-1-i]
	}
	return out, nil
}

func (p *Persistence) SaveBaseline(ctx context.Context, metric string, mean, stddev float64, n int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.baselines[metric] = baselineEntry{mean, stddev, n}
	return nil
}

func (p *Persistence) LoadBaseline(ctx context.Context, metric string) (mean, stddev float64, n int64, found bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.baselines[metric]
	return e.mean, e.stddev, e.n, ok, nil
}
