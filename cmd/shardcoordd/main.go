package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chronosdb/shardcoord/pkg/agency"
	"github.com/chronosdb/shardcoord/pkg/agencycache"
	"github.com/chronosdb/shardcoord/pkg/clusterinfo"
	"github.com/chronosdb/shardcoord/pkg/config"
	"github.com/chronosdb/shardcoord/pkg/coordinator"
	"github.com/chronosdb/shardcoord/pkg/log"
	"github.com/chronosdb/shardcoord/pkg/metrics"
	"github.com/chronosdb/shardcoord/pkg/reboot"
	"github.com/chronosdb/shardcoord/pkg/types"
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
	Use:     "shardcoordd",
	Short:   "shardcoordd runs a shard-coordination agency node",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"shardcoordd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	runCmd.Flags().String("config", "", "Path to a shardcoordd.yaml config file")
	runCmd.Flags().String("node-id", "", "Override the configured node id")
	runCmd.Flags().String("bind-addr", "", "Override the configured Raft bind address")
	runCmd.Flags().String("data-dir", "", "Override the configured data directory")
	runCmd.Flags().Bool("enable-pprof", false, "Expose pprof endpoints alongside the metrics server")

	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Bootstrap or join the agency and start the reconciliation loop",
	RunE:  runE,
}

func runE(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("node-id"); v != "" {
		cfg.NodeID = v
	}
	if v, _ := cmd.Flags().GetString("bind-addr"); v != "" {
		cfg.BindAddr = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log.Init(log.Config{Level: cfg.LogLevel, JSONOutput: cfg.LogJSON})
	logger := log.WithComponent("shardcoordd")

	node, err := agency.NewNode(agency.Config{
		NodeID:       cfg.NodeID,
		BindAddr:     cfg.BindAddr,
		DataDir:      cfg.DataDir,
		ApplyTimeout: cfg.ApplyTimeout,
	})
	if err != nil {
		return fmt.Errorf("create agency node: %w", err)
	}
	defer node.Shutdown()

	if len(cfg.Peers) == 0 {
		if err := node.Bootstrap(); err != nil {
			return fmt.Errorf("bootstrap agency cluster: %w", err)
		}
		logger.Info().Msg("bootstrapped single-node agency cluster")
	} else {
		if err := node.JoinExisting(); err != nil {
			return fmt.Errorf("join agency cluster: %w", err)
		}
		logger.Info().Strs("peers", cfg.Peers).Msg("started agency node, awaiting join")
	}

	client := agency.NewLocalClient(node)
	cache := agencycache.New(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := cache.Start(ctx); err != nil {
		return fmt.Errorf("start agency cache: %w", err)
	}
	defer cache.Stop()

	ids := agencycache.NewIDAllocator(client)
	rebootTracker := reboot.NewTracker()
	rebootTracker.Start()
	defer rebootTracker.Stop()

	info := clusterinfo.New(cache, rebootTracker, ids)

	loop := coordinator.NewLoop(node, cache, ids, cfg.ReconcileInterval)
	go loop.Run(ctx)
	logger.Info().Dur("interval", cfg.ReconcileInterval).Msg("reconciliation loop started")

	collector := metrics.NewCollector(node, cache)
	collector.Start()
	defer collector.Stop()

	metrics.SetVersion(Version)
	metrics.RegisterComponent("agency", true, "bootstrapped")
	metrics.RegisterComponent("coordinator", true, "running")

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())
	mux.HandleFunc("/debug/vpack", vpackDumpHandler(node))
	mux.HandleFunc("/debug/collection", collectionLookupHandler(info))
	if enablePprof, _ := cmd.Flags().GetBool("enable-pprof"); enablePprof {
		mux.Handle("/debug/pprof/", http.DefaultServeMux)
	}

	server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server exited")
		}
	}()
	logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics endpoint listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	cancel()
	return nil
}

// vpackDumpHandler serves the agency tree under the "prefix" query
// parameter (the whole tree if omitted) as a single VelocyPack object, for
// tooling that expects the cluster's wire format rather than this
// package's on-disk JSON.
func vpackDumpHandler(node *agency.Node) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		data, index, err := node.DumpVPack(prefix)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/x-velocypack")
		w.Header().Set("X-Applied-Index", fmt.Sprintf("%d", index))
		_, _ = w.Write(data)
	}
}

// collectionLookupHandler resolves ?db=&collection= to the collection's
// plan via the shared clusterinfo cache, the same lookup the query layer
// would use to route a request to a shard's responsible servers.
func collectionLookupHandler(info *clusterinfo.Info) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db := types.DatabaseName(r.URL.Query().Get("db"))
		coll := r.URL.Query().Get("collection")
		plan, err := info.GetCollection(db, coll)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(plan)
	}
}
