package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/automoto/bodysync/config"
	"github.com/automoto/bodysync/fonts"
	"github.com/automoto/bodysync/inspector"
	"github.com/automoto/bodysync/jitter"
	"github.com/automoto/bodysync/network"
	"github.com/automoto/bodysync/shared/netconfig"
	"github.com/automoto/bodysync/shared/protocol"
	"github.com/hajimehoshi/ebiten/v2"
)

func main() {
	addr := flag.String("addr", fmt.Sprintf("localhost:%d", netconfig.DefaultPort), "Relay server address")
	name := flag.String("name", "inspector", "Display name sent when joining")
	tuningPath := flag.String("tuning", "", "YAML tuning overrides")
	replay := flag.String("replay", "", "Play back a recorded journal instead of connecting")
	directory := flag.String("directory", "", "Relay directory URL to look the relay up in")
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

	// Register network components for client-side deserialization
	if err := protocol.RegisterComponents(); err != nil {
		log.Fatalf("Failed to register network components: %v", err)
	}
	if err := fonts.LoadDefaults(); err != nil {
		log.Fatalf("Failed to load fonts: %v", err)
	}

	var session *inspector.Session
	if *replay != "" {
		r, err := inspector.LoadReplay(*replay)
		if err != nil {
			log.Fatalf("Failed to load replay: %v", err)
		}
		session = inspector.NewReplaySession(r, tuning)
	} else {
		address := *addr
		if *directory != "" {
			address = lookupRelay(*directory, *relay, address)
		}
		buffer := jitter.New(tuning.Jitter)
		client := network.NewClient(buffer)
		client.Connect(address, netconfig.ProtocolVersion, *name)
		defer client.Disconnect()
		session = inspector.NewLiveSession(client, buffer, tuning)
	}

	ebiten.SetWindowSize(config.Inspector.Width, config.Inspector.Height)
	ebiten.SetWindowTitle("bodysync inspector")

	if err := ebiten.RunGame(inspector.NewGame(session)); err != nil {
		log.Fatal(err)
	}
}

// lookupRelay asks the directory for a relay, falling back to addr.
func lookupRelay(directory, name, addr string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	relays, err := network.ListRelays(ctx, directory, netconfig.ProtocolVersion)
	if err != nil {
		log.Printf("[inspector] directory lookup failed, using %s: %v", addr, err)
		return addr
	}
	info, ok := network.PickRelay(relays, netconfig.ProtocolVersion, name)
	if !ok {
		log.Printf("[inspector] no matching relay in directory, using %s", addr)
		return addr
	}
	log.Printf("[inspector] directory picked relay %q at %s", info.Name, info.Address)
	return info.Address
}
