package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/automoto/bodysync/config"
	"github.com/automoto/bodysync/recorder"
	"github.com/automoto/bodysync/server/core"
	"github.com/automoto/bodysync/shared/protocol"
)

func main() {
	tuningPath := flag.String("tuning", "", "YAML tuning overrides")
	port := flag.Uint("port", 0, "Server port (overrides tuning)")
	tickRate := flag.Int("tickrate", 20, "World-state sync rate (updates per second)")
	name := flag.String("name", "", "Server display name (overrides tuning)")
	version := flag.String("version", "", "Required client version (empty = accept any)")
	record := flag.String("record", "", "Directory for the snapshot journal (empty = off)")
	noPersist := flag.Bool("no-persist", false, "Do not load or save the world")
	audit := flag.String("audit", "", "SQLite ownership audit log path (overrides tuning)")
	directory := flag.String("directory", "", "Relay directory URL to register with (overrides tuning)")
	advertise := flag.String("advertise", "", "host:port peers should dial (default 127.0.0.1:<port>)")
	flag.Parse()

	tuning := config.Default()
	if *tuningPath != "" {
		t, err := config.Load(*tuningPath)
		if err != nil {
			log.Fatalf("Failed to load tuning: %v", err)
		}
		tuning = t
	}
	config.C = tuning

	cfg := tuning.Server
	if *port != 0 {
		cfg.Port = *port
	}
	if *name != "" {
		cfg.Name = *name
	}
	if *version != "" {
		cfg.Version = *version
	}
	if *record != "" {
		cfg.RecordDir = *record
	}
	if *audit != "" {
		cfg.AuditPath = *audit
	}
	if *directory != "" {
		cfg.Directory = *directory
	}
	if *advertise != "" {
		cfg.Advertise = *advertise
	}
	if cfg.Advertise == "" {
		cfg.Advertise = fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}

	if err := protocol.RegisterComponents(); err != nil {
		log.Fatalf("Failed to register components: %v", err)
	}

	var store core.ItemStore
	if !*noPersist {
		s, err := core.OpenStore(cfg.AppName)
		if err != nil {
			log.Printf("[server] warning: persistence disabled: %v", err)
		} else {
			store = s
		}
	}

	server := core.NewServer(cfg, *tickRate, store)
	if err := server.Restore(); err != nil {
		log.Printf("[server] warning: %v", err)
	}
	if cfg.RecordDir != "" {
		server.SetRecorder(recorder.NewWriter(cfg.RecordDir, "relay"))
	}
	if cfg.AuditPath != "" {
		a, err := core.OpenAudit(cfg.AuditPath)
		if err != nil {
			log.Printf("[server] warning: audit log disabled: %v", err)
		} else {
			server.SetAudit(a)
		}
	}

	var registration *core.Registration
	if cfg.Directory != "" {
		registration = core.NewRegistration(cfg.Directory, cfg.Name, cfg.Advertise, cfg.Version, cfg.Region, server)
		registration.Start()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutting down server...")
		if registration != nil {
			registration.Stop()
		}
		server.Stop()
		os.Exit(0)
	}()

	log.Printf("Starting bodysync relay %q on port %d (tick rate: %d/s, version: %s)",
		cfg.Name, cfg.Port, *tickRate, cfg.Version)
	if err := server.Start(cfg.Port); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
