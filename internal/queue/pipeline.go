package queue

import "fmt"

// Pipeline is the ordered list of stages a deployment runs. The successor of
// each stage is data looked up here rather than a literal baked into handlers.
type Pipeline struct {
	stages []Stage
	index  map[Stage]int
}

// NewPipeline builds a pipeline from stage names, validating each against the
// fixed stage set and rejecting duplicates.
func NewPipeline(names []string) (*Pipeline, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("pipeline requires at least one stage")
	}
	stages := make([]Stage, 0, len(names))
	index := make(map[Stage]int, len(names))
	for _, name := range names {
		stage, ok := ParseStage(name)
		if !ok {
			return nil, fmt.Errorf("unknown pipeline stage %q", name)
		}
		if _, dup := index[stage]; dup {
			return nil, fmt.Errorf("duplicate pipeline stage %q", stage)
		}
		index[stage] = len(stages)
		stages = append(stages, stage)
	}
	return &Pipeline{stages: stages, index: index}, nil
}

// DefaultPipeline returns the full stage ordering.
func DefaultPipeline() *Pipeline {
	names := make([]string, 0, len(allStages))
	for _, stage := range allStages {
		names = append(names, string(stage))
	}
	p, err := NewPipeline(names)
	if err != nil {
		panic(err)
	}
	return p
}

// Stages returns the configured stage order.
func (p *Pipeline) Stages() []Stage {
	cp := make([]Stage, len(p.stages))
	copy(cp, p.stages)
	return cp
}

// Contains reports whether the pipeline runs the given stage.
func (p *Pipeline) Contains(stage Stage) bool {
	_, ok := p.index[stage]
	return ok
}

// Successor returns the stage that follows the given one. The second return
// is false when the stage is the last of the pipeline (or not part of it),
// meaning a successful job should be marked done instead of advanced.
func (p *Pipeline) Successor(stage Stage) (Stage, bool) {
	pos, ok := p.index[stage]
	if !ok || pos+1 >= len(p.stages) {
		return "", false
	}
	return p.stages[pos+1], true
}

// IsAfter reports whether stage a comes strictly after stage b in the
// pipeline order. Stages outside the pipeline are never after anything.
func (p *Pipeline) IsAfter(a, b Stage) bool {
	pa, okA := p.index[a]
	pb, okB := p.index[b]
	return okA && okB && pa > pb
}
