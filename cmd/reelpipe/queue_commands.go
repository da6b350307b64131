package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"reelpipe/internal/config"
	"reelpipe/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the job queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueReclaimCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-stage job counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if len(stats) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(stats))
				for _, st := range queue.AllStages() {
					counts, ok := stats[st]
					if !ok {
						continue
					}
					total := 0
					row := []string{string(st)}
					for _, status := range queue.AllStatuses() {
						row = append(row, strconv.Itoa(counts[status]))
						total += counts[status]
					}
					row = append(row, strconv.Itoa(total))
					rows = append(rows, row)
				}

				headers := []string{"Stage"}
				for _, status := range queue.AllStatuses() {
					headers = append(headers, string(status))
				}
				headers = append(headers, "Total")
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, 2, 3, 4, 5, 6))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var statuses []queue.Status
			for _, value := range listStatuses {
				status, ok := queue.ParseStatus(value)
				if !ok {
					return fmt.Errorf("unknown status %q", value)
				}
				statuses = append(statuses, status)
			}

			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				jobs, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						strconv.FormatInt(job.ID, 10),
						job.ExternalKey,
						job.Filename,
						string(job.Stage),
						string(job.Status),
						strconv.Itoa(job.Priority),
						job.UpdatedAt.Local().Format(time.DateTime),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Key", "Filename", "Stage", "Status", "Priority", "Updated"},
					rows, 1, 6,
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by status (repeatable)")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Reset failed jobs to pending at their current stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid job id %q", arg)
				}
				ids = append(ids, id)
			}

			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				count, err := store.RetryFailed(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retried %d job(s)\n", count)
				return nil
			})
		},
	}
}

func newQueueReclaimCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reclaim",
		Short: "Re-pend in-progress jobs whose heartbeat expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				if cfg.Workflow.HeartbeatTimeout <= 0 {
					return fmt.Errorf("workflow.heartbeat_timeout is disabled; nothing to reclaim")
				}
				cutoff := time.Now().Add(-time.Duration(cfg.Workflow.HeartbeatTimeout) * time.Second)
				count, err := store.ReclaimStale(cmd.Context(), cutoff)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reclaimed %d job(s)\n", count)
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a job from the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				removed, err := store.Remove(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("no job with id %d", id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed job %d\n", id)
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearDone bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete completed or failed jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !clearDone && !clearFailed {
				return fmt.Errorf("pass --done, --failed, or both")
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				var total int64
				if clearDone {
					count, err := store.ClearDone(cmd.Context())
					if err != nil {
						return err
					}
					total += count
				}
				if clearFailed {
					count, err := store.ClearFailed(cmd.Context())
					if err != nil {
						return err
					}
					total += count
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d job(s)\n", total)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearDone, "done", false, "Clear jobs that finished the pipeline")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Clear failed jobs")
	return cmd
}
