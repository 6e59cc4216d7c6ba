package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roverd/config"
	"roverd/engine"
	"roverd/messaging"
	"roverd/store"
	"roverd/www"
)

const version = "dev"

func main() {
	configPath := flag.String("config", "roverd.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	flag.Parse()

	if *debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if *port > 0 {
		cfg.Web.Port = *port
	}

	// Open database
	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	// Create and start engine
	eng := engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: *configPath,
		DB:         db,
		LogFunc:    log.Printf,
		Debug:      *debug,
	})
	eng.Start()
	defer eng.Stop()

	// Set up messaging
	if cfg.Messaging.Enabled {
		msgClient := messaging.NewClient(&cfg.Messaging, cfg.ClientID())
		defer msgClient.Close()
		if err := msgClient.Connect(); err != nil {
			log.Printf("messaging connect: %v (will retry via outbox)", err)
		} else {
			drainer := messaging.NewOutboxDrainer(db, msgClient, &cfg.Messaging)
			drainer.Start()
			defer drainer.Stop()

			hb := messaging.NewHeartbeater(msgClient, cfg.RobotID, version, cfg.Messaging.TelemetryTopic)
			hb.Start()
			defer hb.Stop()

			reporter := messaging.NewReporter(db, eng.Controller(), msgClient, eng.Events, &cfg.Messaging, cfg.RobotID)
			reporter.Start()
			defer reporter.Stop()
		}
	}

	// Set up HTTP server
	router, stopWeb := www.NewRouter(eng)
	defer stopWeb()

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	server := &http.Server{Addr: addr, Handler: router}

	// Start HTTP server
	go func() {
		log.Printf("roverd listening on %s (robot=%s)", addr, cfg.RobotID)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	// Stop the live feeds first so long-lived connections close
	stopWeb()

	// Graceful HTTP shutdown with 10s deadline
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("http server shutdown: %v", err)
	}
}
