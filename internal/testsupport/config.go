package testsupport

import (
	"path/filepath"
	"testing"

	"reelpipe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options. Tests always
// run against SQLite so no external database is needed.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Database.Driver = "sqlite"
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.JobsDir = filepath.Join(base, "jobs")
	cfg.Paths.SourceDir = filepath.Join(base, "source")
	cfg.Paths.DownloadDir = filepath.Join(base, "downloads")
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Workflow.QueuePollInterval = 1
	cfg.Workflow.ErrorRetryInterval = 1
	cfg.Workflow.HeartbeatInterval = 1
	cfg.Workflow.HeartbeatTimeout = 0

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}

// WithStages overrides the configured pipeline ordering.
func WithStages(stages ...string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Pipeline.Stages = stages
	}
}

// WithStageSettings sets the per-stage overrides for one stage.
func WithStageSettings(stage string, settings config.StageSettings) ConfigOption {
	return func(cfg *config.Config) {
		if cfg.Stages == nil {
			cfg.Stages = make(map[string]config.StageSettings)
		}
		cfg.Stages[stage] = settings
	}
}

// WithHeartbeatTimeout enables stale reclaim with the given timeout seconds.
func WithHeartbeatTimeout(seconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.HeartbeatTimeout = seconds
	}
}
