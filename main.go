package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"spacewars/analytics"
	"spacewars/config"
	"spacewars/discovery"
	"spacewars/galaxy"
	"spacewars/game"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := analytics.OpenDB(cfg.EventsDB)
	if err != nil {
		log.Fatalf("analytics: %v", err)
	}
	defer db.Close()
	events := analytics.NewAnalytics(db)

	reg := galaxy.NewRegistry(
		galaxy.WithPeriod(cfg.Tick),
		galaxy.WithCapacity(cfg.MaxClients),
		galaxy.WithGalaxyFactory(func() *game.Galaxy { return game.New() }),
		galaxy.WithTracker(events),
	)

	srv := discovery.NewServer(discovery.Config{
		Name:     cfg.Name,
		Addr:     cfg.ListenAddr(),
		Group:    cfg.Group,
		GamePort: cfg.GamePort,
	}, reg)
	if err := srv.Listen(); err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Server %q starting", srv.Name())
	if err := srv.Serve(ctx); err != nil {
		log.Printf("%v", err)
	}
	log.Println("Shutting down...")

	events.Stop()

	if counts, err := events.Counts(); err == nil {
		log.Printf("analytics: %v", counts)
	}
}
