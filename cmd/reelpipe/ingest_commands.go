package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"reelpipe/internal/config"
	"reelpipe/internal/ingest"
	"reelpipe/internal/queue"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Scan media inventories and enqueue jobs",
	}
	ingestCmd.AddCommand(newIngestScanCommand(ctx))
	ingestCmd.AddCommand(newIngestWatchCommand(ctx))
	return ingestCmd
}

func newIngestScanCommand(ctx *commandContext) *cobra.Command {
	var sourceFlag string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the source inventory and write a job manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.logger("ingest")
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				scanner := ingest.NewScanner(cfg, store, logger)
				result, err := scanner.Scan(cmd.Context(), sourceFlag)
				if err != nil {
					return err
				}
				if len(result.Jobs) == 0 && len(result.Review) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing new to ingest")
					return nil
				}
				path, err := ingest.WriteManifest(cfg.Paths.JobsDir, result, time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d to enqueue, %d for review)\n",
					path, len(result.Jobs), len(result.Review))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&sourceFlag, "source", "", "Inventory directory (overrides paths.source_dir)")
	return cmd
}

func newIngestWatchCommand(ctx *commandContext) *cobra.Command {
	var onceFlag bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the jobs directory and enqueue new manifests",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.logger("ingest")
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				watcher := ingest.NewWatcher(cfg, store, logger)

				runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				if err := watcher.Run(runCtx, onceFlag); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&onceFlag, "once", false, "Process at most one new manifest and exit")
	return cmd
}
