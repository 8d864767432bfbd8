package main

import (
	"RedWire/internal/api"
	"RedWire/internal/config"
	"RedWire/internal/engine/manager"
	"RedWire/internal/geo"
	"RedWire/internal/probe"
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	iface := flag.String("iface", "", "Start a live capture on this interface at startup.")
	replay := flag.String("replay", "", "Replay this capture file at startup.")
	flag.Parse()

	log.Println("Starting redwire...")

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("Configuration loaded successfully.")

	// 2. Initialize the manager and its snapshot writers
	mgr, err := manager.NewManager(cfg)
	if err != nil {
		log.Fatalf("Failed to create manager: %v", err)
	}
	mgr.Start()

	// 3. Fan pipeline notifications out to NATS, if enabled
	if cfg.NATS.Enabled {
		pub, err := probe.NewPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer pub.Close()
		unsubscribe := mgr.Pipeline().Subscribe(pub)
		defer unsubscribe()
		log.Printf("Publishing events to NATS at %s under %s.>", cfg.NATS.URL, cfg.NATS.SubjectPrefix)
	}

	// 4. gRPC health service
	health := api.NewHealth(mgr.Session())
	lis, err := net.Listen("tcp", cfg.API.GRPCAddr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", cfg.API.GRPCAddr, err)
	}
	go func() {
		if err := health.Serve(lis); err != nil {
			log.Printf("gRPC server stopped: %v", err)
		}
	}()

	// 5. HTTP API
	geoClient := geo.NewClient(cfg.Geo.Endpoint, cfg.Geo.TimeoutDuration())
	server := &http.Server{
		Addr:    cfg.API.HTTPAddr,
		Handler: api.NewServer(mgr, geoClient, cfg.Layout).Router(),
	}
	go func() {
		log.Printf("API server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", server.Addr, err)
		}
	}()

	// 6. Optional capture at startup
	switch {
	case *replay != "":
		if err := mgr.StartReplay(*replay); err != nil {
			log.Printf("Failed to start replay: %v", err)
		}
	case *iface != "":
		if err := mgr.StartLive(*iface); err != nil {
			log.Printf("Failed to start live capture: %v", err)
		}
	}

	// 7. Wait for a shutdown signal for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutdown signal received, stopping...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	health.Stop()
	mgr.Stop()
	log.Println("Shutdown complete.")
}
