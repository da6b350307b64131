package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"reelpipe/internal/config"
	"reelpipe/internal/logging"
	"reelpipe/internal/queue"
	"reelpipe/internal/stage"
)

// HandlerResolver maps a stage to its handler. The handlers package provides
// the production implementation; tests substitute their own.
type HandlerResolver func(st queue.Stage) (stage.Handler, error)

// Pool runs every configured stage with workers_per_stage runners each,
// sharing one store. The first runner to fail cancels the rest.
type Pool struct {
	cfg      *config.Config
	store    *queue.Store
	resolver HandlerResolver
	logger   *slog.Logger
}

// NewPool builds a pool covering all stages in the configured pipeline.
func NewPool(cfg *config.Config, store *queue.Store, resolver HandlerResolver, logger *slog.Logger) (*Pool, error) {
	if cfg == nil || store == nil || resolver == nil {
		return nil, fmt.Errorf("pool requires config, store, and resolver")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pool{cfg: cfg, store: store, resolver: resolver, logger: logger}, nil
}

// Run blocks until the context is cancelled or any runner returns an error.
func (p *Pool) Run(ctx context.Context) error {
	pipeline, err := queue.NewPipeline(p.cfg.Pipeline.Stages)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(pipeline.Stages())*p.cfg.Workflow.WorkersPerStage)

	for _, st := range pipeline.Stages() {
		handler, err := p.resolver(st)
		if err != nil {
			cancel()
			wg.Wait()
			return fmt.Errorf("resolve handler for stage %s: %w", st, err)
		}
		for i := 0; i < p.cfg.Workflow.WorkersPerStage; i++ {
			runner, err := New(p.cfg, p.store, st, handler, p.logger)
			if err != nil {
				cancel()
				wg.Wait()
				return err
			}
			wg.Add(1)
			go func(st queue.Stage) {
				defer wg.Done()
				if err := runner.Run(runCtx); err != nil && runCtx.Err() == nil {
					p.logger.Error("worker exited",
						logging.String(logging.FieldStage, string(st)),
						logging.Error(err),
					)
					errCh <- err
					cancel()
				}
			}(st)
		}
	}

	wg.Wait()
	close(errCh)
	if err := <-errCh; err != nil {
		return err
	}
	return ctx.Err()
}
