// Package election provides a Raft-backed leadership gate restricted to one
// question: who runs the Orchestrator's optimize cycle. It deliberately
// carries none of the teacher's cluster FSM (nodes, services, tasks,
// secrets, volumes, networks) — resource-management state is explicitly
// exempt from strong cross-host consistency, so the Raft log here never
// carries anything but leadership changes. Bootstrap always opens a TCP
// transport on cfg.BindAddr, even for the single-node group that
// cmd/orchestrator starts.
package election

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/orbiter/pkg/log"
	"github.com/cuemby/orbiter/pkg/metrics"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/rs/zerolog"
)

// epochFSM is a no-op Raft FSM: it exists only so raft.NewRaft has
// something to drive. Leadership itself is read from raft.Raft.State(),
// never from applied log entries, so Apply/Snapshot/Restore never need to
// reconstruct any domain state.
type epochFSM struct{}

func (epochFSM) Apply(*raft.Log) interface{}         { return nil }
func (epochFSM) Snapshot() (raft.FSMSnapshot, error) { return epochSnapshot{}, nil }
func (epochFSM) Restore(rc io.ReadCloser) error       { return rc.Close() }

type epochSnapshot struct{}

func (epochSnapshot) Persist(sink raft.SnapshotSink) error { return sink.Close() }
func (epochSnapshot) Release()                             {}

// Config configures a single Elector node.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string

	// HeartbeatTimeout/ElectionTimeout tune failover latency the same way
	// the teacher's manager.Bootstrap does for its cluster Raft group
	// (500ms each, targeting a few-second failover).
	HeartbeatTimeout time.Duration
	ElectionTimeout  time.Duration
}

// Elector wraps a single Raft group whose only purpose is electing which
// Orchestrator instance may run the optimize cycle this term. It satisfies
// orchestrator.Elector's IsLeader() bool.
type Elector struct {
	raft   *raft.Raft
	logger zerolog.Logger
}

// Bootstrap starts a new single-node Raft group rooted at cfg.DataDir and
// returns an Elector that reports itself leader once the group's first
// election completes. The package has no call for adding further nodes.
func Bootstrap(cfg Config) (*Elector, error) {
	if cfg.HeartbeatTimeout == 0 {
		cfg.HeartbeatTimeout = 500 * time.Millisecond
	}
	if cfg.ElectionTimeout == 0 {
		cfg.ElectionTimeout = 500 * time.Millisecond
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create election data dir: %w", err)
	}

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID)
	raftCfg.HeartbeatTimeout = cfg.HeartbeatTimeout
	raftCfg.ElectionTimeout = cfg.ElectionTimeout
	raftCfg.LeaderLeaseTimeout = cfg.ElectionTimeout / 2

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	snapshots, err := raft.NewFileSnapshotStore(cfg.DataDir, 1, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "election-log.db"))
	if err != nil {
		return nil, fmt.Errorf("create log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "election-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("create stable store: %w", err)
	}

	r, err := raft.NewRaft(raftCfg, epochFSM{}, logStore, stableStore, snapshots, transport)
	if err != nil {
		return nil, fmt.Errorf("create raft: %w", err)
	}

	future := r.BootstrapCluster(raft.Configuration{
		Servers: []raft.Server{{ID: raftCfg.LocalID, Address: transport.LocalAddr()}},
	})
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("bootstrap raft group: %w", err)
	}

	metrics.ElectionPeers.Set(1)
	return &Elector{raft: r, logger: log.WithComponent("election")}, nil
}

// IsLeader reports whether this node currently holds leadership.
func (e *Elector) IsLeader() bool {
	isLeader := e.raft != nil && e.raft.State() == raft.Leader
	if isLeader {
		metrics.ElectionIsLeader.Set(1)
	} else {
		metrics.ElectionIsLeader.Set(0)
	}
	return isLeader
}

// Shutdown releases the Raft group's resources.
func (e *Elector) Shutdown() error {
	if e.raft == nil {
		return nil
	}
	return e.raft.Shutdown().Error()
}
