// Command floor runs the floor subsystem: it loads a scenario file,
// replays its calls and faults on schedule, and maintains the building's
// call-button lamp matrix from arrival traffic.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/elevatorsim/core/internal/config"
	"github.com/elevatorsim/core/internal/floorsub"
	"github.com/elevatorsim/core/internal/ingress"
	"github.com/elevatorsim/core/internal/logging"
	"github.com/elevatorsim/core/internal/scenario"
)

func main() {
	cfg := config.Default()
	cfg.BindFlags(flag.CommandLine)
	flag.Parse()

	sc, err := scenario.Load(cfg.ScenarioPath)
	if err != nil {
		log.Fatalf("load scenario: %v", err)
	}
	cfg = sc.Overrides.Apply(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := logging.New("floor")

	recv, err := ingress.Listen(cfg.FloorPort, cfg.QueueCapacity, logger)
	if err != nil {
		log.Fatalf("bind floor port: %v", err)
	}
	defer recv.Close()

	sub, err := floorsub.New(cfg, sc, recv, logger)
	if err != nil {
		log.Fatalf("build floor subsystem: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recv.Run(ctx)
		return nil
	})
	g.Go(func() error {
		sub.Run(ctx)
		return nil
	})

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	g.Wait()
}
