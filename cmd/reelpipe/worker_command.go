package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"reelpipe/internal/config"
	"reelpipe/internal/handlers"
	"reelpipe/internal/logging"
	"reelpipe/internal/queue"
	"reelpipe/internal/worker"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var stageFlag string
	var claimStatusFlag string
	var onceFlag bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the processing loop for one stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, ok := queue.ParseStage(stageFlag)
			if !ok {
				return fmt.Errorf("unknown stage %q", stageFlag)
			}

			logger, err := ctx.logger("worker-" + string(st))
			if err != nil {
				return err
			}

			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				handler, err := handlers.ForStage(cfg, st, logger)
				if err != nil {
					return err
				}

				var opts []worker.Option
				if claimStatusFlag != "" {
					status, ok := queue.ParseStatus(claimStatusFlag)
					if !ok {
						return fmt.Errorf("unknown claim status %q", claimStatusFlag)
					}
					opts = append(opts, worker.WithClaimStatus(status))
				}
				if onceFlag {
					opts = append(opts, worker.WithSingleShot(true))
				}

				runner, err := worker.New(cfg, store, st, handler, logger, opts...)
				if err != nil {
					return err
				}

				runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				logger.Info("worker starting",
					logging.String(logging.FieldStage, string(st)),
				)
				if err := runner.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&stageFlag, "stage", "", "Pipeline stage to process (required)")
	cmd.Flags().StringVar(&claimStatusFlag, "claim-status", "", "Claim jobs with this status instead of the configured one")
	cmd.Flags().BoolVar(&onceFlag, "once", false, "Process at most one job and exit")
	_ = cmd.MarkFlagRequired("stage")
	return cmd
}
