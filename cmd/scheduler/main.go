// Command scheduler runs the global dispatcher subsystem: it binds the
// scheduler's well-known UDP port and routes elevator requests to cars.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/elevatorsim/core/internal/config"
	"github.com/elevatorsim/core/internal/ingress"
	"github.com/elevatorsim/core/internal/logging"
	"github.com/elevatorsim/core/internal/scheduler"
)

func main() {
	cfg := config.Default()
	cfg.BindFlags(flag.CommandLine)
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := logging.New("scheduler")

	recv, err := ingress.Listen(cfg.SchedulerPort, cfg.QueueCapacity, logger)
	if err != nil {
		log.Fatalf("bind scheduler port: %v", err)
	}
	defer recv.Close()

	sched, err := scheduler.New(cfg, recv, logger)
	if err != nil {
		log.Fatalf("build scheduler: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recv.Run(ctx)
		return nil
	})
	g.Go(func() error {
		sched.Run(ctx)
		return nil
	})

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	g.Wait()
}
