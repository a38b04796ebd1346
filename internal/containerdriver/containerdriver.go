// Package containerdriver is a reference capability.RuntimeDriver backed by
// containerd. It is not imported by any core package — pkg/orchestrator and
// its collaborators only ever see the capability.RuntimeDriver interface —
// it exists to demonstrate real wiring and is what cmd/orchestrator
// constructs by default.
package containerdriver

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	stats "github.com/containerd/cgroups/stats/v1"
	"github.com/containerd/containerd"
	apitypes "github.com/containerd/containerd/api/types"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/containers"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	"github.com/containerd/typeurl/v2"
	"github.com/cuemby/orbiter/pkg/capability"
	"github.com/cuemby/orbiter/pkg/log"
	"github.com/cuemby/orbiter/pkg/types"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/rs/zerolog"
)

// DefaultNamespace is the containerd namespace slots are created in.
const DefaultNamespace = "orbiter"

// DefaultSocketPath is the default containerd socket.
const DefaultSocketPath = "/run/containerd/containerd.sock"

// Driver implements capability.RuntimeDriver over a containerd client.
type Driver struct {
	client    *containerd.Client
	namespace string
	logger    zerolog.Logger
}

var _ capability.RuntimeDriver = (*Driver)(nil)

// New connects to containerd at socketPath (DefaultSocketPath if empty).
func New(socketPath string) (*Driver, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to containerd: %w", err)
	}
	return &Driver{client: client, namespace: DefaultNamespace, logger: log.WithComponent("containerdriver")}, nil
}

// Close closes the containerd client connection.
func (d *Driver) Close() error {
	if d.client == nil {
		return nil
	}
	return d.client.Close()
}

func (d *Driver) ctx(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, d.namespace)
}

// CreateSlot pulls spec.Image if necessary, creates the container and its
// task, and starts it under the limits given in spec.Limits.
func (d *Driver) CreateSlot(ctx context.Context, spec capability.SlotSpec) (string, error) {
	ctx = d.ctx(ctx)

	image, err := d.client.GetImage(ctx, spec.Image)
	if err != nil {
		image, err = d.client.Pull(ctx, spec.Image, containerd.WithPullUnpack)
		if err != nil {
			return "", fmt.Errorf("pull image %s: %w", spec.Image, err)
		}
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(spec.Env),
	}
	opts = append(opts, cpuSpecOpts(spec.Limits.CPU)...)
	opts = append(opts, memorySpecOpts(spec.Limits.Memory)...)
	if spec.Limits.PidsLimit > 0 {
		opts = append(opts, withPidsLimit(spec.Limits.PidsLimit))
	}

	container, err := d.client.NewContainer(
		ctx,
		spec.ContainerID,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(spec.ContainerID+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	if err := task.Start(ctx); err != nil {
		return "", fmt.Errorf("start task: %w", err)
	}

	return container.ID(), nil
}

// sampleFromMetric decodes a containerd task's typeurl.Any metrics payload
// (cgroup1 stats, the common case on the kernels this runs against) into a
// Sample. Fields that cannot be decoded are left zero rather than guessed.
func sampleFromMetric(metric *apitypes.Metric) (types.Sample, error) {
	v, err := typeurl.UnmarshalAny(metric.Data)
	if err != nil {
		return types.Sample{}, fmt.Errorf("unmarshal task metrics: %w", err)
	}
	m, ok := v.(*stats.Metrics)
	if !ok {
		return types.Sample{}, fmt.Errorf("unsupported metrics payload type %T", v)
	}

	sample := types.Sample{}
	if m.CPU != nil && m.CPU.Usage != nil {
		sample.CPUNanos = m.CPU.Usage.Total
		sample.SystemNanos = uint64(time.Now().UnixNano())
		sample.OnlineCPUs = len(m.CPU.Usage.PerCPU)
	}
	if m.Memory != nil {
		if m.Memory.Usage != nil {
			sample.MemUsed = int64(m.Memory.Usage.Usage)
		}
		sample.MemCache = int64(m.Memory.TotalCache)
	}
	if m.Pids != nil {
		sample.Pids = int64(m.Pids.Current)
	}
	if m.Blkio != nil {
		for _, e := range m.Blkio.IoServiceBytesRecursive {
			switch strings.ToLower(e.Op) {
			case "read":
				sample.BlkRead += int64(e.Value)
			case "write":
				sample.BlkWrite += int64(e.Value)
			}
		}
	}
	return sample, nil
}

func cpuSpecOpts(cpu types.CPULimits) []oci.SpecOpts {
	if cpu.QuotaMicros <= 0 {
		return nil
	}
	period := uint64(cpu.PeriodMicros)
	if period == 0 {
		period = 100000
	}
	opts := []oci.SpecOpts{oci.WithCPUCFS(cpu.QuotaMicros, period)}
	if cpu.Shares > 0 {
		opts = append(opts, oci.WithCPUShares(uint64(cpu.Shares)))
	}
	return opts
}

func memorySpecOpts(mem types.MemoryLimits) []oci.SpecOpts {
	if mem.LimitBytes <= 0 {
		return nil
	}
	return []oci.SpecOpts{oci.WithMemoryLimit(uint64(mem.LimitBytes))}
}

func withPidsLimit(limit int64) oci.SpecOpts {
	return func(_ context.Context, _ oci.Client, _ *containers.Container, s *specs.Spec) error {
		if s.Linux == nil {
			s.Linux = &specs.Linux{}
		}
		s.Linux.Resources = ensureLinuxResources(s.Linux.Resources)
		s.Linux.Resources.Pids = &specs.LinuxPids{Limit: limit}
		return nil
	}
}

func ensureLinuxResources(r *specs.LinuxResources) *specs.LinuxResources {
	if r == nil {
		return &specs.LinuxResources{}
	}
	return r
}

// ApplyLimits updates a running task's cgroup limits in place via
// containerd's Task.Update.
func (d *Driver) ApplyLimits(ctx context.Context, slotID string, limits types.ResourceLimitRecord) error {
	ctx = d.ctx(ctx)
	container, err := d.client.LoadContainer(ctx, slotID)
	if err != nil {
		return fmt.Errorf("load container %s: %w", slotID, err)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return fmt.Errorf("load task %s: %w", slotID, err)
	}

	period := uint64(limits.CPU.PeriodMicros)
	if period == 0 {
		period = 100000
	}
	shares := uint64(limits.CPU.Shares)
	quota := limits.CPU.QuotaMicros
	memLimit := limits.Memory.LimitBytes

	linux := &specs.LinuxResources{
		CPU: &specs.LinuxCPU{
			Shares: &shares,
			Quota:  &quota,
			Period: &period,
		},
		Memory: &specs.LinuxMemory{
			Limit: &memLimit,
		},
	}
	if err := task.Update(ctx, containerd.WithResources(linux)); err != nil {
		return fmt.Errorf("update task resources: %w", err)
	}
	return nil
}

// Stats reads the task's cgroup metrics and converts them into a Sample.
// Cumulative CPU/usage counters are returned raw; the Profiler computes the
// CPU percentage delta across two calls.
func (d *Driver) Stats(ctx context.Context, slotID string) (types.Sample, error) {
	ctx = d.ctx(ctx)
	container, err := d.client.LoadContainer(ctx, slotID)
	if err != nil {
		return types.Sample{}, fmt.Errorf("load container %s: %w", slotID, err)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return types.Sample{}, fmt.Errorf("load task %s: %w", slotID, err)
	}
	metric, err := task.Metrics(ctx)
	if err != nil {
		return types.Sample{}, fmt.Errorf("read task metrics: %w", err)
	}
	return sampleFromMetric(metric)
}

// Exec runs cmd inside slotID's task namespace via a containerd exec
// process and waits for it to complete.
func (d *Driver) Exec(ctx context.Context, slotID string, cmd []string) error {
	ctx = d.ctx(ctx)
	container, err := d.client.LoadContainer(ctx, slotID)
	if err != nil {
		return fmt.Errorf("load container %s: %w", slotID, err)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return fmt.Errorf("load task %s: %w", slotID, err)
	}
	spec, err := container.Spec(ctx)
	if err != nil {
		return fmt.Errorf("load container spec: %w", err)
	}
	procSpec := spec.Process
	procSpec.Args = cmd

	process, err := task.Exec(ctx, "exec-"+strconv.FormatInt(time.Now().UnixNano(), 36), procSpec, cio.NullIO)
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	if err := process.Start(ctx); err != nil {
		return fmt.Errorf("start exec process: %w", err)
	}
	statusC, err := process.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for exec process: %w", err)
	}
	<-statusC
	return nil
}

// Stop sends SIGTERM and escalates to SIGKILL if the task has not exited by
// the time the context given to Stop expires.
func (d *Driver) Stop(ctx context.Context, slotID string, force bool) error {
	ctx = d.ctx(ctx)
	container, err := d.client.LoadContainer(ctx, slotID)
	if err != nil {
		return fmt.Errorf("load container %s: %w", slotID, err)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return nil // no task means already stopped
	}

	sig := syscall.SIGTERM
	if force {
		sig = syscall.SIGKILL
	}
	if err := task.Kill(ctx, sig); err != nil {
		return fmt.Errorf("kill task: %w", err)
	}

	statusC, err := task.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for task: %w", err)
	}
	select {
	case <-statusC:
	case <-ctx.Done():
		// ctx has expired, so the escalation is sent on a fresh context.
		if err := task.Kill(d.ctx(context.Background()), syscall.SIGKILL); err != nil {
			return fmt.Errorf("force kill task: %w", err)
		}
	}

	if _, err := task.Delete(ctx); err != nil {
		d.logger.Warn().Err(err).Str("slot_id", slotID).Msg("task delete after stop failed")
	}
	return nil
}

// Destroy stops slotID if still running and removes its container and
// snapshot.
func (d *Driver) Destroy(ctx context.Context, slotID string) error {
	ctx = d.ctx(ctx)
	container, err := d.client.LoadContainer(ctx, slotID)
	if err != nil {
		return nil // already gone
	}
	if err := d.Stop(ctx, slotID, true); err != nil {
		d.logger.Warn().Err(err).Str("slot_id", slotID).Msg("stop before destroy failed")
	}
	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return fmt.Errorf("delete container: %w", err)
	}
	return nil
}

// HostStats reads aggregate host CPU and memory usage from /proc, since
// containerd has no host-wide metrics endpoint of its own.
func (d *Driver) HostStats(ctx context.Context) (types.Sample, error) {
	cpuNanos, systemNanos, online, err := readProcStat()
	if err != nil {
		return types.Sample{}, fmt.Errorf("read /proc/stat: %w", err)
	}
	memUsed, memCache, err := readProcMeminfo()
	if err != nil {
		return types.Sample{}, fmt.Errorf("read /proc/meminfo: %w", err)
	}
	return types.Sample{
		CPUNanos:    cpuNanos,
		SystemNanos: systemNanos,
		OnlineCPUs:  online,
		MemUsed:     memUsed,
		MemCache:    memCache,
	}, nil
}

// readProcStat returns cumulative non-idle CPU nanoseconds, cumulative total
// nanoseconds, and the online CPU count, derived from /proc/stat's
// aggregate "cpu" line (USER_HZ assumed 100, the near-universal Linux
// default).
func readProcStat() (cpuNanos, systemNanos uint64, online int, err error) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0, 0, 0, err
	}
	lines := strings.Split(string(data), "\n")
	online = strings.Count(string(data), "cpu") - 1 // minus the aggregate "cpu" line
	for _, line := range lines {
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)[1:]
		var total, idle uint64
		for i, f := range fields {
			v, perr := strconv.ParseUint(f, 10, 64)
			if perr != nil {
				continue
			}
			total += v
			if i == 3 || i == 4 { // idle, iowait
				idle += v
			}
		}
		const nsPerJiffy = uint64(time.Second) / 100
		systemNanos = total * nsPerJiffy
		cpuNanos = (total - idle) * nsPerJiffy
		return cpuNanos, systemNanos, online, nil
	}
	return 0, 0, 0, fmt.Errorf("cpu line not found")
}

func readProcMeminfo() (used, cache int64, err error) {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0, 0, err
	}
	fields := map[string]int64{}
	for _, line := range strings.Split(string(data), "\n") {
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		key := strings.TrimSuffix(parts[0], ":")
		v, perr := strconv.ParseInt(parts[1], 10, 64)
		if perr != nil {
			continue
		}
		fields[key] = v * 1024 // kB -> bytes
	}
	total := fields["MemTotal"]
	free := fields["MemFree"]
	cache = fields["Cached"]
	used = total - free
	return used, cache, nil
}
