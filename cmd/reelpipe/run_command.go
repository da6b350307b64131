package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"reelpipe/internal/config"
	"reelpipe/internal/handlers"
	"reelpipe/internal/queue"
	"reelpipe/internal/stage"
	"reelpipe/internal/worker"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var workersFlag int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every configured stage's workers in one process",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.logger("run")
			if err != nil {
				return err
			}

			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				if workersFlag > 0 {
					cfg.Workflow.WorkersPerStage = workersFlag
				}

				// One all-in-one process per database; stage workers on
				// other hosts are fine, a second `run` is a mistake.
				lock := flock.New(filepath.Join(cfg.Paths.StateDir, "reelpipe-run.lock"))
				locked, err := lock.TryLock()
				if err != nil {
					return fmt.Errorf("acquire run lock: %w", err)
				}
				if !locked {
					return fmt.Errorf("another reelpipe run already holds %s", lock.Path())
				}
				defer func() { _ = lock.Unlock() }()

				resolver := func(st queue.Stage) (stage.Handler, error) {
					return handlers.ForStage(cfg, st, logger)
				}
				pool, err := worker.NewPool(cfg, store, resolver, logger)
				if err != nil {
					return err
				}

				runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				logger.Info("pipeline starting",
					slog.Int("workers_per_stage", cfg.Workflow.WorkersPerStage),
					slog.Any("stages", cfg.Pipeline.Stages),
				)
				if err := pool.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&workersFlag, "workers", 0, "Workers per stage (overrides workflow.workers_per_stage)")
	return cmd
}
