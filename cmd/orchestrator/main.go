package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof" // registers on http.DefaultServeMux, which serveMetrics does not serve
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/orbiter/internal/containerdriver"
	"github.com/cuemby/orbiter/pkg/config"
	"github.com/cuemby/orbiter/pkg/election"
	"github.com/cuemby/orbiter/pkg/log"
	"github.com/cuemby/orbiter/pkg/metrics"
	"github.com/cuemby/orbiter/pkg/orchestrator"
	"github.com/cuemby/orbiter/pkg/slotpool"
	"github.com/cuemby/orbiter/pkg/storage"
	"github.com/cuemby/orbiter/pkg/types"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Adaptive resource-management control plane for self-hosted CI runners",
	Long: `orchestrator runs the closed observe -> analyze -> predict -> plan ->
enforce loop on a single host: it profiles running jobs, forecasts
resource demand per job class, classifies bottlenecks, and admits,
limits, and resizes job containers accordingly.`,
	Version: Version,
	RunE:    run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"orchestrator version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime,
	))

	rootCmd.Flags().String("config", "", "Path to orchestrator config YAML (defaults applied when omitted)")
	rootCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.Flags().String("host-id", "localhost", "This host's identifier")
	rootCmd.Flags().String("data-dir", "/var/lib/orbiter", "Directory for profile/execution/baseline persistence")
	rootCmd.Flags().String("containerd-socket", "", "Containerd socket path (auto-detected if not specified)")
	rootCmd.Flags().String("pool-image", "ghcr.io/actions/runner:latest", "Image pre-warmed slots are created from")
	rootCmd.Flags().Int("pool-size", 4, "Pre-warmed slot pool target size")
	rootCmd.Flags().Float64("host-cpu-cores", 8, "Total CPU cores available to admit against")
	rootCmd.Flags().Int64("host-memory-bytes", 32*1024*1024*1024, "Total memory bytes available to admit against")
	rootCmd.Flags().Int64("host-disk-bytes", 200*1024*1024*1024, "Total disk bytes available to admit against")
	rootCmd.Flags().Int64("host-network-bps", 1_000_000_000/8, "Total network bytes/sec available to admit against")
	rootCmd.Flags().String("metrics-addr", ":9090", "Bind address for the Prometheus metrics and health endpoints")
	rootCmd.Flags().Bool("elect", false, "Run Raft leader election (single-node bootstrap) before admitting cycles")
	rootCmd.Flags().String("election-bind-addr", "127.0.0.1:9091", "Bind address for the election Raft transport")
}

func run(cmd *cobra.Command, args []string) error {
	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	hostID, _ := cmd.Flags().GetString("host-id")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	containerdSocket, _ := cmd.Flags().GetString("containerd-socket")
	poolImage, _ := cmd.Flags().GetString("pool-image")
	poolSize, _ := cmd.Flags().GetInt("pool-size")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	hostCapacity, err := hostCapacityFromFlags(cmd, hostID)
	if err != nil {
		return err
	}

	// RuntimeDriver: containerd-backed, the capability the core never
	// touches directly (pkg/orchestrator only sees capability.RuntimeDriver).
	driver, err := containerdriver.New(containerdSocket)
	if err != nil {
		return fmt.Errorf("connect containerd runtime driver: %w", err)
	}
	defer driver.Close()

	// SlotProvider: the pre-warmed startup pool.
	slots := slotpool.New(driver, poolImage, poolSize)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := slots.Warm(ctx); err != nil {
		return fmt.Errorf("warm slot pool: %w", err)
	}

	// Persistence: BoltDB-backed profile/execution/baseline storage.
	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	// Profiler -> Analyzer -> Forecaster -> Optimizer -> Enforcer are
	// composed inside orchestrator.New in that dependency order: the
	// Analyzer classifies what the Profiler samples, the Forecaster trains
	// on what the Orchestrator records, the Optimizer plans against both,
	// and the Enforcer is the only one of the five that touches the
	// RuntimeDriver to apply a decision.
	orch := orchestrator.New(cfg, driver, slots, store, hostID, hostCapacity)

	if elect, _ := cmd.Flags().GetBool("elect"); elect {
		bindAddr, _ := cmd.Flags().GetString("election-bind-addr")
		elector, err := election.Bootstrap(election.Config{
			NodeID:   hostID,
			BindAddr: bindAddr,
			DataDir:  dataDir + "/election",
		})
		if err != nil {
			return fmt.Errorf("bootstrap leader election: %w", err)
		}
		defer elector.Shutdown()
		orch.SetElector(elector)
	}

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}
	defer orch.Stop()

	go serveMetrics(metricsAddr)

	log.Info(fmt.Sprintf("orchestrator running host=%s", hostID))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")
	return nil
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadFile(path)
}

func hostCapacityFromFlags(cmd *cobra.Command, hostID string) (types.HostCapacity, error) {
	cpuCores, _ := cmd.Flags().GetFloat64("host-cpu-cores")
	memBytes, _ := cmd.Flags().GetInt64("host-memory-bytes")
	diskBytes, _ := cmd.Flags().GetInt64("host-disk-bytes")
	netBps, _ := cmd.Flags().GetInt64("host-network-bps")
	return types.HostCapacity{
		HostID:      hostID,
		CPUCores:    cpuCores,
		MemoryBytes: memBytes,
		DiskBytes:   diskBytes,
		NetworkBps:  netBps,
	}, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", metrics.HealthHandler())
	mux.HandleFunc("/readyz", metrics.ReadyHandler())
	mux.HandleFunc("/livez", metrics.LivenessHandler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Logger.Error().Err(err).Msg("metrics server exited")
	}
}
