// Command elevator runs one car's subsystem. The -car flag selects which
// of the building's cars this process represents and therefore which
// elevator port it binds (ElevatorPortBase + car).
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/elevatorsim/core/internal/config"
	"github.com/elevatorsim/core/internal/elevator"
	"github.com/elevatorsim/core/internal/ingress"
	"github.com/elevatorsim/core/internal/logging"
)

func main() {
	cfg := config.Default()
	cfg.BindFlags(flag.CommandLine)
	car := flag.Int("car", 0, "index of the elevator car this process represents")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if *car < 0 || *car >= cfg.Elevators {
		log.Fatalf("car index %d out of range [0,%d)", *car, cfg.Elevators)
	}

	baseLogger := logging.New("elevator")
	logger := logging.ForCar(baseLogger, *car)

	recv, err := ingress.Listen(cfg.ElevatorPortBase+*car, cfg.QueueCapacity, logger)
	if err != nil {
		log.Fatalf("bind elevator port: %v", err)
	}
	defer recv.Close()

	sub, err := elevator.New(*car, cfg, recv, logger)
	if err != nil {
		log.Fatalf("build elevator subsystem: %v", err)
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
