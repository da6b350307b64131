package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"reelpipe/internal/config"
	"reelpipe/internal/logging"
	"reelpipe/internal/queue"
	"reelpipe/internal/stage"
)

// Runner drives one stage's poll → claim → process → transition loop. Every
// stage worker process, however many run concurrently, executes this exact
// loop; correctness under scale-out rests entirely on the store's claim
// exclusivity.
type Runner struct {
	cfg         *config.Config
	store       *queue.Store
	stage       queue.Stage
	claimStatus queue.Status
	handler     stage.Handler
	pipeline    *queue.Pipeline
	logger      *slog.Logger
	heartbeat   *HeartbeatMonitor

	pollInterval       time.Duration
	errorRetryInterval time.Duration
	singleShot         bool
}

// Option configures optional Runner behavior.
type Option func(*Runner)

// WithClaimStatus overrides the status the runner polls for. The default is
// pending, or the stage's configured claim_status.
func WithClaimStatus(status queue.Status) Option {
	return func(r *Runner) { r.claimStatus = status }
}

// WithSingleShot makes the runner exit after one iteration regardless of
// outcome.
func WithSingleShot(enabled bool) Option {
	return func(r *Runner) { r.singleShot = enabled }
}

// WithPollInterval overrides the empty-queue sleep.
func WithPollInterval(d time.Duration) Option {
	return func(r *Runner) { r.pollInterval = d }
}

// New constructs a runner for one stage.
func New(cfg *config.Config, store *queue.Store, st queue.Stage, handler stage.Handler, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if cfg == nil || store == nil || handler == nil {
		return nil, errors.New("runner requires config, store, and handler")
	}
	pipeline, err := queue.NewPipeline(cfg.Pipeline.Stages)
	if err != nil {
		return nil, err
	}
	if !pipeline.Contains(st) {
		return nil, fmt.Errorf("stage %q is not part of the configured pipeline", st)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	claimStatus := queue.StatusPending
	if configured := cfg.StageSettings(string(st)).ClaimStatus; configured != "" {
		parsed, ok := queue.ParseStatus(configured)
		if !ok {
			return nil, fmt.Errorf("invalid claim status %q for stage %s", configured, st)
		}
		claimStatus = parsed
	}

	r := &Runner{
		cfg:         cfg,
		store:       store,
		stage:       st,
		claimStatus: claimStatus,
		handler:     handler,
		pipeline:    pipeline,
		logger:      logger.With(logging.String(logging.FieldComponent, "worker"), logging.String(logging.FieldStage, string(st))),
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		pollInterval:       time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		errorRetryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		singleShot:         cfg.Workflow.SingleShot,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run polls until the context is cancelled or, in single-shot mode, one
// iteration completes. Handler failures are contained and recorded on the
// job; store failures are fatal and propagate so the process can restart
// against a healthy connection.
func (r *Runner) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := r.heartbeat.ReclaimStale(ctx, r.logger); err != nil {
			return fmt.Errorf("reclaim stale jobs: %w", err)
		}

		job, err := r.store.Claim(ctx, r.stage, r.claimStatus)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			return fmt.Errorf("claim for stage %s: %w", r.stage, err)
		}

		if job == nil {
			if r.singleShot {
				return nil
			}
			r.logger.Debug("queue empty, sleeping",
				logging.Duration("poll_interval", r.pollInterval),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.pollInterval):
			}
			continue
		}

		if err := r.processJob(ctx, job); err != nil {
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			return err
		}

		if r.singleShot {
			return nil
		}
	}
}

// processJob invokes the handler and persists its outcome. Only store errors
// are returned; a handler error ends with the job marked failed.
func (r *Runner) processJob(ctx context.Context, job *queue.Job) error {
	requestID := uuid.NewString()
	jobLogger := r.logger.With(
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String(logging.FieldExternalKey, job.ExternalKey),
		logging.String(logging.FieldRequestID, requestID),
	)
	jobLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("filename", job.Filename),
	)

	start := time.Now()
	outcome, handlerErr := r.executeWithHeartbeat(ctx, job)
	elapsed := time.Since(start)

	// A stage override must move the job forward. Anything else is a handler
	// fault and is recorded on the job, not applied.
	if handlerErr == nil && outcome.NextStage != "" && !r.pipeline.IsAfter(outcome.NextStage, r.stage) {
		handlerErr = fmt.Errorf("outcome requested stage %s, which does not follow %s in the pipeline", outcome.NextStage, r.stage)
	}

	if handlerErr != nil {
		if errors.Is(handlerErr, context.Canceled) {
			jobLogger.Debug("stage interrupted by shutdown")
			return handlerErr
		}
		jobLogger.Error("stage failed",
			logging.String(logging.FieldEventType, "stage_failed"),
			logging.Duration("stage_duration", elapsed),
			logging.Error(handlerErr),
		)
		if err := r.store.MarkFailed(ctx, job.ID, failureFields(r.stage, handlerErr)); err != nil {
			return fmt.Errorf("mark job %d failed: %w", job.ID, err)
		}
		// Pace the loop so a persistently failing job does not spin the
		// worker when it polls for failed claims.
		if !r.singleShot {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.errorRetryInterval):
			}
		}
		return nil
	}

	fields := make(queue.Fields, len(outcome.Fields)+1)
	for column, value := range outcome.Fields {
		fields[column] = value
	}
	if _, ok := fields[queue.TimeColumn(r.stage)]; !ok {
		fields[queue.TimeColumn(r.stage)] = elapsed.Seconds()
	}

	next := outcome.NextStage
	if next == "" {
		successor, ok := r.pipeline.Successor(r.stage)
		if !ok {
			if err := r.store.MarkDone(ctx, job.ID, fields); err != nil {
				return fmt.Errorf("mark job %d done: %w", job.ID, err)
			}
			jobLogger.Info("job completed",
				logging.String(logging.FieldEventType, "job_done"),
				logging.Duration("stage_duration", elapsed),
			)
			return nil
		}
		next = successor
	}

	nextStatus := outcome.NextStatus
	if nextStatus == "" {
		nextStatus = queue.StatusPending
	}
	if err := r.store.Advance(ctx, job.ID, next, nextStatus, fields); err != nil {
		return fmt.Errorf("advance job %d: %w", job.ID, err)
	}
	jobLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_stage", string(next)),
		logging.Duration("stage_duration", elapsed),
	)
	return nil
}

func (r *Runner) executeWithHeartbeat(ctx context.Context, job *queue.Job) (stage.Outcome, error) {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go r.heartbeat.StartLoop(hbCtx, &hbWG, job.ID)

	outcome, err := r.handler.Process(ctx, job)
	hbCancel()
	hbWG.Wait()
	return outcome, err
}

// failureFields builds the diagnostic payload recorded with a failed job.
func failureFields(st queue.Stage, handlerErr error) queue.Fields {
	payload, err := json.Marshal(map[string]string{
		"error":        handlerErr.Error(),
		"failed_stage": string(st),
		"failed_at":    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil
	}
	return queue.Fields{"metadata": string(payload)}
}
