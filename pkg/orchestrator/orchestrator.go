// Package orchestrator is the top-level supervisor: it routes Job Requests
// to the Enforcer, drives the optimize→validate→execute cycle, and performs
// cross-component health recovery. It composes Profiler, Enforcer, Analyzer,
// Forecaster, and the Optimization Engine the way a teacher's manager
// composes its own subsystems — one struct, one Start/Stop, one set of
// background loops — substituting this system's components for that one's.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/orbiter/pkg/analyzer"
	"github.com/cuemby/orbiter/pkg/capability"
	"github.com/cuemby/orbiter/pkg/config"
	"github.com/cuemby/orbiter/pkg/enforcer"
	"github.com/cuemby/orbiter/pkg/enforcer/quotadriver"
	"github.com/cuemby/orbiter/pkg/events"
	"github.com/cuemby/orbiter/pkg/forecaster"
	"github.com/cuemby/orbiter/pkg/log"
	"github.com/cuemby/orbiter/pkg/optimizer"
	"github.com/cuemby/orbiter/pkg/profiler"
	"github.com/cuemby/orbiter/pkg/types"
	"github.com/rs/zerolog"
)

// maxExecutionHistory bounds the Orchestrator's execution history
// (spec.md §4.6 default 100 cycles).
const maxExecutionHistory = 100

// Elector gates runCycle to a single instance in a multi-manager
// deployment. A nil Elector (the default) means every instance considers
// itself leader, matching a single-instance deployment (spec.md §4.6).
type Elector interface {
	IsLeader() bool
}

// Handle identifies one admitted job's running container.
type Handle struct {
	JobID       string
	ContainerID string
	HostID      string
	AdmittedAt  time.Time
}

// Outcome is the actual resource usage and duration reported at job
// completion, used to train the Forecaster.
type Outcome struct {
	CPUCores    float64
	MemoryBytes int64
	DiskBytes   int64
	NetworkMbps float64
	Duration    time.Duration
}

type trackedJob struct {
	jobClass   string
	containerID string
	priority   types.Priority
	features   forecaster.Features
	predicted  forecaster.Prediction
	admittedAt time.Time
}

// Orchestrator composes the control plane's components around one host.
// Placement across hosts in a cluster is delegated to one Orchestrator
// instance per host; migrate actions targeting a different host are only
// logged (not executed, and no event is published for them); this instance
// never reaches across the network to mutate another
// host's state directly (spec.md §1 non-goals: no strong cross-host
// consistency).
type Orchestrator struct {
	cfg    config.Config
	hostID string
	logger zerolog.Logger

	driver capability.RuntimeDriver
	slots  capability.SlotProvider
	storage capability.Persistence
	broker *events.Broker

	profiler   *profiler.Profiler
	enforcer   *enforcer.Enforcer
	analyzer   *analyzer.Analyzer
	forecaster *forecaster.Forecaster
	engine     *optimizer.Engine
	elector    Elector

	mu           sync.Mutex
	hostCapacity types.HostCapacity
	running      map[string]trackedJob // keyed by containerID

	historyMu sync.Mutex
	history   []types.ExecutionRecord

	health *healthSupervisor

	stopCh chan struct{}
}

// New constructs an Orchestrator for one host. hostCapacity is this host's
// total resource capacity, used for admission bounds checks and the
// optimizer's Snapshot.
func New(cfg config.Config, driver capability.RuntimeDriver, slots capability.SlotProvider, storage capability.Persistence, hostID string, hostCapacity types.HostCapacity) *Orchestrator {
	broker := events.NewBroker()
	quotas := quotadriver.NewRegistry()

	o := &Orchestrator{
		cfg:          cfg,
		hostID:       hostID,
		logger:       log.WithComponent("orchestrator"),
		driver:       driver,
		slots:        slots,
		storage:      storage,
		broker:       broker,
		profiler:     profiler.New(driver, cfg.Profiler, hostID),
		enforcer:     enforcer.New(driver, quotas, broker, cfg.Enforcer),
		analyzer:     analyzer.New(cfg.Analyzer, broker),
		forecaster:   forecaster.New(cfg.Forecaster, storage),
		engine:       optimizer.New(cfg.Optimizer, cfg.Forecaster.MinConfidence),
		hostCapacity: hostCapacity,
		running:      map[string]trackedJob{},
		stopCh:       make(chan struct{}),
	}
	o.health = newHealthSupervisor(o)
	return o
}

// SetElector installs the leader-election gate for runCycle. Nil-safe: an
// Orchestrator with no Elector always considers itself leader.
func (o *Orchestrator) SetElector(e Elector) {
	o.elector = e
}

func (o *Orchestrator) isLeader() bool {
	return o.elector == nil || o.elector.IsLeader()
}

// Broker exposes the event broker for external subscribers.
func (o *Orchestrator) Broker() *events.Broker { return o.broker }

// Analyzer exposes the Bottleneck Analyzer for components (e.g. a metrics
// endpoint) that need read-only access to health scores and active
// bottlenecks.
func (o *Orchestrator) Analyzer() *analyzer.Analyzer { return o.analyzer }

// Start launches the background loops: event broker, profiler sampling,
// forecaster refitting, the optimize cycle, and the health loop.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.broker.Start()
	o.profiler.Start(ctx)
	if err := o.forecaster.Start(ctx); err != nil {
		return err
	}

	cycleInterval := intervalOr(o.cfg.Optimizer.CycleMs, 5*time.Minute)
	go o.runCycleLoop(ctx, cycleInterval)
	go o.health.loop(ctx, healthLoopInterval)
	go o.enforcementLoop(ctx, intervalOr(o.cfg.Enforcer.EnforcementCheckMs, 30*time.Second))
	go o.analysisLoop(ctx,
		intervalOr(o.cfg.Analyzer.AnalysisIntervalMs, 60*time.Second),
		intervalOr(o.cfg.Analyzer.DeepIntervalMs, 5*time.Minute))

	return nil
}

// Stop halts all background loops.
func (o *Orchestrator) Stop() {
	close(o.stopCh)
	o.profiler.Stop()
	o.forecaster.Stop()
	o.broker.Stop()
}

func intervalOr(ms int64, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// enforcementLoop periodically feeds the Profiler's most recent per-container
// samples to the Enforcer's violation state machine.
func (o *Orchestrator) enforcementLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			o.checkViolations(ctx)
		case <-o.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) checkViolations(ctx context.Context) {
	o.mu.Lock()
	ids := make([]string, 0, len(o.running))
	for id := range o.running {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	for _, containerID := range ids {
		window := o.profiler.RollingWindow(containerID, time.Minute)
		if len(window) == 0 {
			continue
		}
		latest := window[len(window)-1]
		usage := types.Usage{
			CPUCores:    latest.CPUPct / 100,
			MemoryBytes: latest.MemUsed - latest.MemCache,
			DiskBytes:   latest.BlkRead + latest.BlkWrite,
			NetworkBps:  latest.NetIn + latest.NetOut,
			ObservedAt:  latest.T,
		}
		if err := o.enforcer.Observe(ctx, containerID, usage); err != nil {
			o.logger.Warn().Err(err).Str("container_id", containerID).Msg("violation observation failed")
		}
	}
}

func (o *Orchestrator) recordHistory(rec types.ExecutionRecord) {
	o.historyMu.Lock()
	defer o.historyMu.Unlock()
	o.history = append(o.history, rec)
	if len(o.history) > maxExecutionHistory {
		o.history = o.history[len(o.history)-maxExecutionHistory:]
	}
	if o.storage != nil {
		if err := o.storage.AppendExecution(context.Background(), rec.T, rec); err != nil {
			o.logger.Warn().Err(err).Msg("execution history persist failed")
		}
	}
}

// History returns a copy of the bounded execution history, most recent last.
func (o *Orchestrator) History() []types.ExecutionRecord {
	o.historyMu.Lock()
	defer o.historyMu.Unlock()
	out := make([]types.ExecutionRecord, len(o.history))
	copy(out, o.history)
	return out
}

func (o *Orchestrator) publish(t events.EventType, data map[string]any) {
	if o.broker == nil {
		return
	}
	o.broker.Publish(&events.Event{Type: t, Data: data})
}
