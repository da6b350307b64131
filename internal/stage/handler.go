package stage

import (
	"context"

	"reelpipe/internal/queue"
)

// Outcome describes a successful stage execution.
type Outcome struct {
	// NextStage overrides the pipeline successor. Leave empty to follow
	// the configured stage ordering.
	NextStage queue.Stage
	// NextStatus defaults to pending.
	NextStatus queue.Status
	// Fields are extra column assignments persisted with the transition.
	Fields queue.Fields
}

// Handler performs one stage's real work for a claimed job. Implementations
// must not claim jobs or mutate stage/status themselves; the worker runner
// owns every queue transition.
type Handler interface {
	Process(ctx context.Context, job *queue.Job) (Outcome, error)
}

// Func adapts a plain function to the Handler interface.
type Func func(ctx context.Context, job *queue.Job) (Outcome, error)

func (f Func) Process(ctx context.Context, job *queue.Job) (Outcome, error) {
	return f(ctx, job)
}
