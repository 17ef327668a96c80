package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/automoto/bodysync/config"
	"github.com/automoto/bodysync/network"
	"github.com/automoto/bodysync/sandbox"
	"github.com/automoto/bodysync/shared/netconfig"
	"github.com/automoto/bodysync/shared/protocol"
)

func main() {
	addr := flag.String("addr", fmt.Sprintf("localhost:%d", netconfig.DefaultPort), "Relay server address")
	name := flag.String("name", "sandbox", "Peer display name")
	tuningPath := flag.String("tuning", "", "YAML tuning overrides")
	sceneDir := flag.String("scenes", "", "Directory to load the scene from (empty = embedded)")
	scene := flag.String("scene", sandbox.DefaultScene, "Scene path within the scene directory")
	claimEvery := flag.Duration("claim-every", 4*time.Second, "Gap between ownership grabs (0 = never)")
	holdFor := flag.Duration("hold", 3*time.Second, "How long a grabbed body is kept")
	record := flag.String("record", "", "Directory for the snapshot journal (empty = off)")
	directory := flag.String("directory", "", "Relay directory URL; waits for a relay instead of using -addr")
	relay := flag.String("relay", "", "Relay name to pick from the directory (empty = least loaded)")
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

	if err := protocol.RegisterComponents(); err != nil {
		log.Fatalf("Failed to register components: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	address := *addr
	if *directory != "" {
		waitCtx, waitCancel := context.WithTimeout(ctx, time.Minute)
		info, err := network.WaitRelay(waitCtx, *directory, netconfig.ProtocolVersion, *relay)
		waitCancel()
		if err != nil {
			log.Fatalf("No relay found in %s: %v", *directory, err)
		}
		log.Printf("[sandbox] directory picked relay %q at %s", info.Name, info.Address)
		address = info.Address
	}

	opts := sandbox.Options{
		Address:    address,
		Name:       *name,
		ClaimEvery: *claimEvery,
		HoldFor:    *holdFor,
		RecordDir:  *record,
	}
	if *sceneDir != "" {
		opts.SceneFS = os.DirFS(*sceneDir)
		opts.ScenePath = *scene
	}

	peer := sandbox.NewPeer(opts, tuning)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			log.Println("[sandbox] reloading scene")
			if err := peer.Reload(ctx); err != nil {
				log.Printf("[sandbox] reload: %v", err)
			}
		}
	}()

	log.Printf("Starting sandbox peer %q against %s", *name, address)
	if err := peer.Run(ctx); err != nil {
		log.Fatalf("Sandbox error: %v", err)
	}
}
