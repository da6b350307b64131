package handlers

import (
	"fmt"
	"log/slog"

	"reelpipe/internal/config"
	"reelpipe/internal/queue"
	"reelpipe/internal/stage"
)

// ForStage resolves the handler for a stage. A configured exec command wins;
// otherwise only download has a built-in. Stages with neither are external
// collaborators that must be configured before a worker can run them.
func ForStage(cfg *config.Config, st queue.Stage, logger *slog.Logger) (stage.Handler, error) {
	settings := cfg.StageSettings(string(st))
	if len(settings.Exec) > 0 {
		return NewExec(settings.Exec, logger)
	}
	if st == queue.StageDownload {
		return NewDownload(cfg, logger), nil
	}
	return nil, fmt.Errorf("stage %s has no built-in handler; set stages.%s.exec in the config", st, st)
}
