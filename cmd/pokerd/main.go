// Command pokerd runs the room coordinator's REST and websocket surface
// (§6) behind a kong CLI, grounded on the teacher's cmd/holdem-server and
// cmd/pokerforbots entrypoints: kong flags for config path, listen
// address, and log level, charmbracelet/log for structured output, and a
// signal.Notify-driven graceful shutdown.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/holdemroom/config"
	"github.com/lox/holdemroom/room"
	"github.com/lox/holdemroom/store"
	"github.com/lox/holdemroom/transport"
)

var CLI struct {
	Config   string `short:"c" long:"config" default:"pokerd.hcl" help:"Path to HCL configuration file"`
	Addr     string `short:"a" long:"addr" help:"Server address to bind to (overrides config)"`
	LogLevel string `short:"l" long:"log-level" help:"Log level (overrides config)"`
	DataDir  string `short:"d" long:"data-dir" default:"" help:"Directory for on-disk room snapshots (empty uses in-memory only)"`
}

func main() {
	kong.Parse(&CLI,
		kong.Name("pokerd"),
		kong.Description("Real-time multi-table Texas Hold'em room server"),
		kong.UsageOnError(),
	)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	if CLI.Addr != "" {
		cfg.Server.Address = CLI.Addr
	}
	if CLI.LogLevel != "" {
		cfg.Logging.Level = CLI.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if level, err := log.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	var snapshotStore store.Store
	if CLI.DataDir != "" {
		diskStore, err := store.NewDiskBacked(CLI.DataDir, logger.With("component", "store"))
		if err != nil {
			logger.Fatal("failed to open data dir", "dir", CLI.DataDir, "err", err)
		}
		snapshotStore = diskStore
	} else {
		snapshotStore = store.NewMemory()
	}

	coord := room.NewCoordinator(
		quartz.NewReal(),
		snapshotStore,
		logger.With("component", "coordinator"),
		cfg.Rooms.TurnTimeoutDuration(),
		cfg.Rooms.DisconnectGraceDuration(),
		cfg.Rooms.BuyIn,
	)
	registry := room.NewRegistry(coord, snapshotStore, cfg.Rooms)
	if err := registry.Rehydrate(context.Background()); err != nil {
		logger.Error("room rehydration failed", "err", err)
	}
	srv := transport.New(registry, logger.With("component", "transport"))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: srv.Engine()}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", "err", err)
		}
	}()

	<-sigCh
	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
}
