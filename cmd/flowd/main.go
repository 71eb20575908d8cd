package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/flowd/flowd/internal/component"
	"github.com/flowd/flowd/internal/components"
	"github.com/flowd/flowd/internal/config"
	"github.com/flowd/flowd/internal/edge"
	"github.com/flowd/flowd/internal/graph"
	"github.com/flowd/flowd/internal/logging"
	"github.com/flowd/flowd/internal/metrics"
	"github.com/flowd/flowd/internal/runtime"
	"github.com/flowd/flowd/internal/server"
)

// version is set at build time via -ldflags, matching the rest of the
// pack's version-stamping convention; "dev" means a local build.
var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config file")
	listenAddr := flag.String("listen", "", "protocol server listen address (overrides config)")
	adminListenAddr := flag.String("admin-listen", "", "admin server listen address (overrides config)")
	componentsFlag := flag.String("components", "", "comma-separated built-in component names to register (overrides config; empty means all)")
	flag.Parse()

	cfg := config.Load(*configPath)
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}
	if *adminListenAddr != "" {
		cfg.Server.AdminListenAddr = *adminListenAddr
	}
	if *componentsFlag != "" {
		cfg.Components.Enabled = strings.Split(*componentsFlag, ",")
	}

	loggers := logging.New(cfg.Logging.Level, cfg.Logging.JSON)

	m := metrics.New()

	if cfg.Edge.BufferSize > 0 {
		edge.BufSize = cfg.Edge.BufferSize
	}

	registry := component.NewRegistry(loggers.Component)
	if err := components.RegisterBuiltins(registry, cfg.Components.Enabled); err != nil {
		log.Fatalf("failed to register builtin components: %v", err)
	}

	sched := runtime.New(loggers.Runtime, registry, m)
	sched.SetWatchdogTiming(
		time.Duration(cfg.Watchdog.PingIntervalSec)*time.Second,
		time.Duration(cfg.Watchdog.PongTimeoutSec)*time.Second,
	)
	io := server.NewClientRegistry(loggers.Server)
	go io.Run()

	protoServer := server.New(loggers.Server, registry, sched, io, cfg.Server.ListenAddr)
	adminServer := server.NewAdminServer(loggers.Server, sched, io, cfg.Server.AdminListenAddr)

	if cfg.Graph.StartupFile != "" {
		loadStartupGraph(loggers.Graph, protoServer, cfg.Graph.StartupFile, cfg.Graph.AutoStart)
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("received shutdown signal, shutting down gracefully")
		shutdownCancel()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := sched.Stop(io, false); err != nil {
			slog.Warn("error stopping network during shutdown", "error", err)
		}
		if err := protoServer.Shutdown(ctx); err != nil {
			slog.Error("protocol server shutdown error", "error", err)
		}
		if err := adminServer.Shutdown(ctx); err != nil {
			slog.Error("admin server shutdown error", "error", err)
		}
	}()

	go func() {
		if err := adminServer.Run(); err != nil {
			slog.Error("admin server failed", "error", err)
		}
	}()

	banner(cfg, version)

	if err := protoServer.Run(); err != nil {
		log.Fatalf("protocol server failed: %v", err)
	}
	<-shutdownCtx.Done()
}

func banner(cfg *config.Config, version string) {
	fmt.Printf("flowd %s\n", version)
	fmt.Printf("protocol:  ws://%s\n", cfg.Server.ListenAddr)
	fmt.Printf("admin:     http://%s/healthz\n", cfg.Server.AdminListenAddr)
	fmt.Printf("metrics:   http://%s/metrics\n", cfg.Server.AdminListenAddr)
}

// loadStartupGraph reads a graph JSON file given via config or --config
// and, if autoStart is set, starts the network immediately — the
// FBP-native equivalent of the teacher loading its config and wiring
// dependencies before ListenAndServe.
func loadStartupGraph(logger *slog.Logger, srv *server.Server, path string, autoStart bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("could not read startup graph file", "path", path, "error", err)
		return
	}
	g, err := graph.ParseJSON(data)
	if err != nil {
		logger.Warn("could not parse startup graph file", "path", path, "error", err)
		return
	}
	logger.Info("loaded startup graph", "path", path, "name", g.Properties.Name)
	srv.LoadGraph(g)

	if autoStart {
		if err := srv.StartGraph(g.Properties.Name); err != nil {
			logger.Error("failed to auto-start startup graph", "error", err)
		}
	}
}
