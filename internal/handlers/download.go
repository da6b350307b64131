package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"reelpipe/internal/config"
	"reelpipe/internal/logging"
	"reelpipe/internal/queue"
	"reelpipe/internal/stage"
)

// Download materializes a job's media file from the inventory root into the
// per-job destination layout. It is the only stage with a built-in handler;
// everything after it is model inference owned by external commands.
type Download struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewDownload builds the download handler.
func NewDownload(cfg *config.Config, logger *slog.Logger) *Download {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Download{
		cfg:    cfg,
		logger: logger.With(logging.String(logging.FieldComponent, "download-handler")),
	}
}

// Process copies source_prefix/external_key to the destination directory
// under the job's new filename. A file already present counts as success so
// reclaimed and retried jobs do not re-transfer.
func (d *Download) Process(ctx context.Context, job *queue.Job) (stage.Outcome, error) {
	jobCfg, err := job.Config()
	if err != nil {
		return stage.Outcome{}, err
	}
	if strings.TrimSpace(job.Filename) == "" {
		return stage.Outcome{}, fmt.Errorf("job %d has no filename", job.ID)
	}

	sourceRoot := jobCfg.SourcePrefix
	if sourceRoot == "" {
		sourceRoot = d.cfg.Paths.SourceDir
	}
	sourcePath := filepath.Join(sourceRoot, filepath.FromSlash(job.ExternalKey))

	destDir := jobCfg.DestinationDir()
	if destDir == "" {
		return stage.Outcome{}, fmt.Errorf("job %d config resolves to empty destination", job.ID)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return stage.Outcome{}, fmt.Errorf("create destination: %w", err)
	}
	destPath := filepath.Join(destDir, job.Filename)

	if _, err := os.Stat(destPath); err == nil {
		d.logger.Info("media already present, skipping transfer",
			logging.Int64(logging.FieldJobID, job.ID),
			logging.String("path", destPath),
		)
		return stage.Outcome{Fields: queue.Fields{"local_path": destPath}}, nil
	}

	if err := copyFile(ctx, sourcePath, destPath); err != nil {
		return stage.Outcome{}, fmt.Errorf("transfer %s: %w", job.ExternalKey, err)
	}

	d.logger.Info("media transferred",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String("source", sourcePath),
		logging.String("path", destPath),
	)
	return stage.Outcome{Fields: queue.Fields{"local_path": destPath}}, nil
}

// copyFile copies through a temp file so a crash mid-transfer never leaves a
// half-written media file at the destination path.
func copyFile(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".transfer-*")
	if err != nil {
		return err
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := io.Copy(tmp, in); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
