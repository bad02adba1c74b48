package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/tessera-io/tessera/internal/album"
	"github.com/tessera-io/tessera/internal/client"
	"github.com/tessera-io/tessera/internal/config"
	"github.com/tessera-io/tessera/internal/handler"
	"github.com/tessera-io/tessera/internal/metrics"
	"github.com/tessera-io/tessera/internal/model"
	"github.com/tessera-io/tessera/internal/ring"
	"github.com/tessera-io/tessera/internal/task"
	"github.com/tessera-io/tessera/internal/transfer"
	"github.com/tessera-io/tessera/pkg/proto"
)

const defaultVnodes = 16

func main() {
	// Initialize logger
	logger, err := initLogger("info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if cfg.Logging.Level != "" && cfg.Logging.Level != "info" {
		logger, err = initLogger(cfg.Logging.Level)
		if err != nil {
			logger.Fatal("Failed to reconfigure logger", zap.Error(err))
		}
	}

	// Load cluster topology
	entries, err := config.LoadTopology(cfg.Cluster.TopologyFile)
	if err != nil {
		logger.Fatal("Failed to load topology", zap.Error(err))
	}
	for i := range entries {
		if len(entries[i].Node.Tokens) == 0 {
			entries[i].Node.Tokens = ring.DefaultTokens(entries[i].Node.ID, defaultVnodes)
		}
	}

	localEntry, err := config.FindLocal(entries, cfg.Server)
	if err != nil {
		logger.Fatal("Local node not in topology", zap.Error(err))
	}
	local := localEntry.Node

	dataDir := cfg.Storage.DataDir
	if localEntry.DataDir != "" {
		dataDir = localEntry.DataDir
	}
	stagingDir := cfg.Storage.StagingDir

	logger.Info("Configuration loaded",
		zap.Uint32("node_id", local.ID),
		zap.String("host", local.Host),
		zap.Uint16("rpc_port", local.RPCPort),
		zap.String("data_dir", dataDir))

	// Create data directories
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		logger.Fatal("Failed to create data directory", zap.Error(err))
	}
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		logger.Fatal("Failed to create staging directory", zap.Error(err))
	}

	// Initialize metrics
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics()
	}

	// Initialize membership and gossip
	membership := ring.NewMembership(local, ring.Config{
		SuspectTimeout: cfg.Cluster.SuspectTimeout.Std(),
		DeadTimeout:    cfg.Cluster.DeadTimeout.Std(),
	}, logger)

	var seeds []string
	for _, e := range entries {
		if e.Node.ID == local.ID {
			continue
		}
		membership.Merge(e.Node)
		seeds = append(seeds, e.Node.GossipAddr())
	}

	gossip, err := ring.NewGossip(membership, &ring.GossipConfig{
		BindAddr:       cfg.Server.Host,
		BindPort:       int(cfg.Server.GossipPort),
		Seeds:          seeds,
		GossipInterval: cfg.Cluster.GossipInterval.Std(),
		ProbeInterval:  cfg.Cluster.ProbeInterval.Std(),
		ProbeTimeout:   cfg.Cluster.ProbeTimeout.Std(),
	}, logger)
	if err != nil {
		logger.Fatal("Failed to start gossip", zap.Error(err))
	}
	defer gossip.Shutdown()

	// Initialize services
	albums, err := album.NewManager(dataDir, membership, runtime.NumCPU(), logger)
	if err != nil {
		logger.Fatal("Failed to initialize album manager", zap.Error(err))
	}

	peers := client.NewPool(30*time.Second, logger)
	defer peers.Close()

	coordinator := task.NewCoordinator(&task.Config{
		Local:      local,
		Members:    membership,
		Albums:     albums,
		Peers:      peers,
		StagingDir: stagingDir,
		Metrics:    m,
		Logger:     logger,
	})

	// Initialize handlers
	albumHandler := handler.NewAlbumHandler(albums, membership, peers, m, logger)
	clusterHandler := handler.NewClusterHandler(membership, logger)
	dataHandler := handler.NewDataHandler(albums, membership, peers, m, logger)
	taskHandler := handler.NewTaskHandler(coordinator, membership, peers, m, logger)

	// Create gRPC server
	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(64*1024*1024),
		grpc.MaxSendMsgSize(64*1024*1024),
	)
	proto.RegisterAlbumServiceServer(grpcServer, albumHandler)
	proto.RegisterClusterServiceServer(grpcServer, clusterHandler)
	proto.RegisterDataServiceServer(grpcServer, dataHandler)
	proto.RegisterTaskServiceServer(grpcServer, taskHandler)

	// Start transfer server
	xfer := transfer.NewServer(local.XferAddr(), stagingDir, m, logger)
	go func() {
		if err := xfer.Start(); err != nil {
			logger.Error("Transfer server failed", zap.Error(err))
		}
	}()

	// Start metrics server
	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle(cfg.Metrics.Path, promhttp.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				fmt.Fprintln(w, "ok")
			})
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			logger.Info("Starting metrics server", zap.String("address", addr))
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
		go watchMembership(membership, m)
	}

	// Start listening
	listener, err := net.Listen("tcp", local.RPCAddr())
	if err != nil {
		logger.Fatal("Failed to listen", zap.Error(err))
	}

	logger.Info("Node starting",
		zap.Uint32("node_id", local.ID),
		zap.String("address", local.RPCAddr()))

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down gracefully...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := xfer.Stop(ctx); err != nil {
			logger.Error("Failed to stop transfer server", zap.Error(err))
		}
		grpcServer.GracefulStop()
	}()

	// Start server
	if err := grpcServer.Serve(listener); err != nil {
		logger.Fatal("Failed to serve", zap.Error(err))
	}
}

// watchMembership keeps the cluster gauges current.
func watchMembership(membership *ring.Membership, m *metrics.Metrics) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		var live, suspected float64
		for _, n := range membership.Snapshot() {
			switch n.State {
			case model.NodeAlive:
				live++
			case model.NodeSuspected:
				suspected++
			}
		}
		m.LiveNodes.Set(live)
		m.SuspectedNodes.Set(suspected)
	}
}

// initLogger initializes the zap logger
func initLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	config := zap.NewProductionConfig()
	config.Level = lvl
	return config.Build()
}
