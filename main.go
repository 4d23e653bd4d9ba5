package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"panic_mesh/internal/config"
	"panic_mesh/internal/server"
	"panic_mesh/internal/simulation"
	"panic_mesh/internal/transport"
	"panic_mesh/internal/utils"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	var basePath string
	var simulate bool
	flag.StringVar(&basePath, "prefix", "", "Config file base path")
	flag.BoolVar(&simulate, "simulate", false, "Run the in-memory propagation demo and exit")
	flag.Parse()

	cfg, err := config.LoadMainConfig(basePath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Fatalf("Load config failed: %v", err)
		}
		log.Printf("No config file found, using defaults: %v", err)
	}

	var logx *utils.LogxManager
	loggerFor := utils.NewConsoleLogger
	if cfg.LogPath != "" {
		logx = utils.NewManager(cfg.LogPath)
		defer logx.Close()
		loggerFor = logx.Logger
	}

	if simulate {
		if err := runSimulation(*cfg, loggerFor); err != nil {
			log.Fatalf("Simulation failed: %v", err)
		}
		return
	}

	name := cfg.NodeName
	if name == "" {
		name = utils.DefaultNodeName()
		cfg.NodeName = name
	}
	logger := loggerFor(name)
	defer func() { _ = logger.Sync() }()

	link := transport.NewHTTPTransport(cfg, name, logger)
	node, err := server.NewNode(cfg, link, logger)
	if err != nil {
		log.Fatalf("Create node failed: %v", err)
	}

	mux := http.NewServeMux()
	link.Register(mux)
	mux.Handle("/metrics", promhttp.Handler())
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.ListenAndServe()
	}()

	node.Start()
	log.Printf("Node %s listening on %s (responder=%v, peers=%d)", name, cfg.ListenAddr, cfg.Responder, len(cfg.Peers))

	events, cancelEvents := node.Subscribe(64)
	defer cancelEvents()
	go printEvents(os.Stdout, events)
	go runConsole(os.Stdin, os.Stdout, node)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("Stopping node...")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}

	node.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("HTTP shutdown failed", zap.Error(err))
	}
	log.Println("Node stopped")
}

func runSimulation(base config.MainConfig, loggerFor func(string) *zap.Logger) error {
	base.CycleInterval = 50 * time.Millisecond
	base.DiscoveryInterval = 100 * time.Millisecond

	sim, err := simulation.NewLine(base, simulation.DemoDevices, loggerFor)
	if err != nil {
		return err
	}
	sim.Start()
	defer sim.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	alert, err := sim.RunPanicDemo(ctx, "Town square")
	if err != nil {
		return err
	}
	log.Printf("Responder received panic %s from %s after %d hops via %v",
		alert.Message.ID, alert.Message.Sender, alert.Message.HopCount, alert.Message.RelayedBy)

	// let the flood settle before reporting
	time.Sleep(300 * time.Millisecond)
	for _, line := range sim.Report() {
		log.Println(line)
	}
	return nil
}
