package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Run staging, reprocessing, enrichment, and health checks on a schedule",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "work", true)
		if err != nil {
			return err
		}
		defer env.Close()

		return runWorkers(ctx, env)
	},
}

func init() {
	rootCmd.AddCommand(workCmd)
}

// runWorkers runs every periodic job until ctx is cancelled.
func runWorkers(ctx context.Context, env *pipelineEnv) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		every(ctx, "process", seconds(cfg.Worker.ProcessIntervalSecs, time.Minute), func(ctx context.Context) error {
			_, err := env.Dispatcher.ProcessStagingTable(ctx, cfg.Pipeline.BatchSize)
			return err
		})
		return nil
	})
	g.Go(func() error {
		every(ctx, "reprocess", seconds(cfg.Worker.ReprocessIntervalSecs, 15*time.Minute), func(ctx context.Context) error {
			_, err := env.Dispatcher.ProcessQuarantinedRecords(ctx, cfg.Quarantine.ReprocessLimit)
			return err
		})
		return nil
	})
	g.Go(func() error {
		every(ctx, "enrich", seconds(cfg.Worker.EnrichIntervalSecs, time.Hour), func(ctx context.Context) error {
			_, err := env.Scheduler.RunScheduled(ctx)
			return err
		})
		return nil
	})
	g.Go(func() error {
		newChecker(env).Run(ctx)
		return nil
	})

	zap.L().Info("workers started")
	err := g.Wait()
	zap.L().Info("workers stopped")
	return err
}

// every runs fn immediately and then on each tick until ctx is cancelled.
// Errors are logged and the loop continues.
func every(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	log := zap.L().With(zap.String("worker", name))
	run := func() {
		start := time.Now()
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			log.Error("worker tick failed", zap.Error(err))
			return
		}
		log.Debug("worker tick complete", zap.Duration("elapsed", time.Since(start)))
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

func seconds(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}
